package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

// Sink stores a generated report under key.
type Sink interface {
	Write(ctx context.Context, key string, report *model.Report) error
}

// DirSink writes report bodies below a local directory.
type DirSink struct {
	root string
}

func NewDirSink(root string) *DirSink {
	return &DirSink{root: root}
}

func (s *DirSink) Write(ctx context.Context, key string, report *model.Report) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create report directory", goerr.V("path", path))
	}
	if err := os.WriteFile(path, []byte(report.Body), 0o644); err != nil {
		return goerr.Wrap(err, "failed to write report", goerr.V("path", path))
	}
	return nil
}

// StorageSink uploads report bodies as markdown objects.
type StorageSink struct {
	storage adapter.Storage
	prefix  string
}

// NewStorageSink stores objects at prefix + key. prefix may be empty.
func NewStorageSink(storage adapter.Storage, prefix string) *StorageSink {
	return &StorageSink{storage: storage, prefix: prefix}
}

func (s *StorageSink) Write(ctx context.Context, key string, report *model.Report) error {
	w, err := s.storage.Put(ctx, s.prefix+key, "text/markdown; charset=utf-8")
	if err != nil {
		return goerr.Wrap(err, "failed to open report object", goerr.V("key", s.prefix+key))
	}
	if _, err := w.Write([]byte(report.Body)); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to upload report", goerr.V("key", s.prefix+key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to commit report object", goerr.V("key", s.prefix+key))
	}
	return nil
}

// AssessmentRow is the BigQuery row of one assessment in a report.
type AssessmentRow struct {
	ReportKey        string    `bigquery:"report_key"`
	Customer         string    `bigquery:"customer"`
	Priority         string    `bigquery:"priority"`
	WindowStart      time.Time `bigquery:"window_start"`
	WindowEnd        time.Time `bigquery:"window_end"`
	GeneratedAt      time.Time `bigquery:"generated_at"`
	ItemID           int64     `bigquery:"item_id"`
	Title            string    `bigquery:"title"`
	Status           string    `bigquery:"status"`
	Score            float64   `bigquery:"score"`
	Notable          bool      `bigquery:"notable"`
	MatchedProducts  []string  `bigquery:"matched_products"`
	MatchedPlatforms []string  `bigquery:"matched_platforms"`
	Rationale        string    `bigquery:"rationale"`
}

// AssessmentRows flattens a report into one row per assessment.
func AssessmentRows(key string, report *model.Report) []*AssessmentRow {
	rows := make([]*AssessmentRow, 0, len(report.Assessments))
	for _, a := range report.Assessments {
		rows = append(rows, &AssessmentRow{
			ReportKey:        key,
			Customer:         report.Customer.Name,
			Priority:         string(report.Customer.Priority),
			WindowStart:      report.Window.Start,
			WindowEnd:        report.Window.End,
			GeneratedAt:      report.GeneratedAt,
			ItemID:           a.Item.ID,
			Title:            a.Item.Title,
			Status:           string(a.Item.Status),
			Score:            a.Score,
			Notable:          a.Notable,
			MatchedProducts:  a.MatchedProducts,
			MatchedPlatforms: a.MatchedPlatforms,
			Rationale:        a.Rationale,
		})
	}
	return rows
}

// BigQuerySink appends the assessments of each report to a table for
// analysis. The table is created on first write.
type BigQuerySink struct {
	bq    adapter.BigQuery
	table string

	mu    sync.Mutex
	ready bool
}

func NewBigQuerySink(bq adapter.BigQuery, table string) *BigQuerySink {
	if table == "" {
		table = "impact_assessments"
	}
	return &BigQuerySink{bq: bq, table: table}
}

func (s *BigQuerySink) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	schema, err := bigquery.InferSchema(AssessmentRow{})
	if err != nil {
		return goerr.Wrap(err, "failed to infer assessment schema")
	}
	if err := s.bq.EnsureTable(ctx, s.table, schema); err != nil {
		return err
	}
	s.ready = true
	return nil
}

func (s *BigQuerySink) Write(ctx context.Context, key string, report *model.Report) error {
	if len(report.Assessments) == 0 {
		return nil
	}
	if err := s.ensure(ctx); err != nil {
		return err
	}
	if err := s.bq.Insert(ctx, s.table, AssessmentRows(key, report)); err != nil {
		return goerr.Wrap(err, "failed to insert assessment rows", goerr.V("key", key))
	}
	return nil
}

// MultiSink writes to every sink and reports all of their failures.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, key string, report *model.Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, key, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
