package adapter

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/googleapi"
)

// BigQuery appends analytic rows, such as impact assessments, to tables of
// one dataset.
type BigQuery interface {
	// EnsureTable creates the table with schema if it does not exist yet.
	EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error
	// Insert streams rows into table. rows must be a struct, a slice of
	// structs, or ValueSavers.
	Insert(ctx context.Context, table string, rows any) error
}

type bigqueryClient struct {
	client    *bigquery.Client
	datasetID string
}

func NewBigQuery(ctx context.Context, projectID, datasetID string) (BigQuery, error) {
	if datasetID == "" {
		return nil, goerr.New("bigquery dataset is required")
	}

	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	return &bigqueryClient{
		client:    client,
		datasetID: datasetID,
	}, nil
}

func (bq *bigqueryClient) EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error {
	tbl := bq.client.Dataset(bq.datasetID).Table(table)

	_, err := tbl.Metadata(ctx)
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return goerr.Wrap(err, "failed to get table metadata", goerr.V("table", table))
	}

	if err := tbl.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
		return goerr.Wrap(err, "failed to create table", goerr.V("table", table))
	}
	return nil
}

func (bq *bigqueryClient) Insert(ctx context.Context, table string, rows any) error {
	inserter := bq.client.Dataset(bq.datasetID).Table(table).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert rows", goerr.V("dataset", bq.datasetID), goerr.V("table", table))
	}
	return nil
}
