package report

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/metrics"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Store is the part of the repository the assembler reads.
type Store interface {
	GetCustomer(ctx context.Context, name string) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]*model.Customer, error)
	ListRoadmapItems(ctx context.Context, input repository.ListRoadmapInput) ([]*model.RoadmapItem, error)
}

// Assessor is satisfied by *impact.Scorer.
type Assessor interface {
	Assess(ctx context.Context, customer *model.Customer, candidates []impact.Candidate) ([]*model.ImpactAssessment, error)
}

type Assembler struct {
	store      Store
	assessor   Assessor
	sink       Sink
	locker     Locker
	workers    int
	otherLimit int
	now        func() time.Time
}

type Option func(*Assembler)

// WithSink sets where report bodies are written. Without a sink reports
// are only returned.
func WithSink(sink Sink) Option {
	return func(a *Assembler) { a.sink = sink }
}

func WithLocker(locker Locker) Option {
	return func(a *Assembler) { a.locker = locker }
}

func WithWorkers(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithOtherLimit(n int) Option {
	return func(a *Assembler) {
		if n >= 0 {
			a.otherLimit = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

func New(store Store, assessor Assessor, opts ...Option) *Assembler {
	cfg := DefaultConfig()
	a := &Assembler{
		store:      store,
		assessor:   assessor,
		locker:     NewLocalLocker(),
		workers:    cfg.Workers,
		otherLimit: cfg.OtherLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate builds the report of one customer for window. Runs for the same
// customer are mutually exclusive; a concurrent run fails with ErrLocked.
func (a *Assembler) Generate(ctx context.Context, name string, window model.ReportWindow) (*model.Report, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "customer name is required")
	}
	if !window.Start.Before(window.End) {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "report window is empty",
			goerr.V("start", window.Start), goerr.V("end", window.End))
	}

	unlock, err := a.locker.Lock(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		// release even when ctx is already cancelled
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logging.From(ctx).Warn("failed to release report lock", "customer", name, logging.ErrAttr(err))
		}
	}()

	metrics.ReportsInFlight.Inc()
	defer metrics.ReportsInFlight.Dec()

	report, err := a.generate(ctx, name, window)
	if err != nil {
		metrics.ReportRuns.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil, err
	}
	metrics.ReportRuns.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return report, nil
}

func (a *Assembler) generate(ctx context.Context, name string, window model.ReportWindow) (*model.Report, error) {
	customer, err := a.store.GetCustomer(ctx, name)
	if err != nil {
		return nil, err
	}

	items, err := a.store.ListRoadmapItems(ctx, repository.ListRoadmapInput{Window: &window})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list roadmap items", goerr.V("customer", name))
	}

	candidates := make([]impact.Candidate, len(items))
	for i, item := range items {
		candidates[i] = impact.Candidate{Item: item}
	}
	assessments, err := a.assessor.Assess(ctx, customer, candidates)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to assess roadmap items", goerr.V("customer", name))
	}

	report := &model.Report{
		Customer:    customer,
		Window:      window,
		Assessments: assessments,
		Body:        Render(customer, window, assessments, a.otherLimit),
		GeneratedAt: a.now().UTC(),
	}

	if a.sink != nil {
		key := Key(customer.Name, report.GeneratedAt)
		if err := a.sink.Write(ctx, key, report); err != nil {
			return nil, goerr.Wrap(err, "failed to write report", goerr.V("customer", name), goerr.V("key", key))
		}
		report.Key = key
	}

	logging.From(ctx).Info("report generated",
		slog.String("customer", customer.Name),
		slog.Int("items", len(items)),
		slog.String("key", report.Key),
	)
	return report, nil
}

// Failure is a customer whose report could not be generated.
type Failure struct {
	Customer string
	Err      error
}

type Batch struct {
	Window   model.ReportWindow
	Reports  []*model.Report
	Failures []Failure
}

// Run generates reports for the named customers, or for every customer when
// names is empty. A failing customer does not stop the others; only a
// failure to list customers is returned as an error.
func (a *Assembler) Run(ctx context.Context, window model.ReportWindow, names ...string) (*Batch, error) {
	if len(names) == 0 {
		customers, err := a.store.ListCustomers(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list customers")
		}
		for _, c := range customers {
			names = append(names, c.Name)
		}
	}

	seen := make(map[string]struct{}, len(names))
	var targets []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		targets = append(targets, n)
	}

	batch := &Batch{Window: window}
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(a.workers)
	for _, name := range targets {
		eg.Go(func() error {
			report, err := a.Generate(ctx, name, window)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.From(ctx).Warn("report failed", "customer", name, logging.ErrAttr(err))
				batch.Failures = append(batch.Failures, Failure{Customer: name, Err: err})
				return nil
			}
			batch.Reports = append(batch.Reports, report)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(batch.Reports, func(x, y *model.Report) int {
		return strings.Compare(x.Customer.Name, y.Customer.Name)
	})
	slices.SortFunc(batch.Failures, func(x, y Failure) int {
		return strings.Compare(x.Customer, y.Customer)
	})
	return batch, nil
}

// Err joins the failures of the batch, nil when every report succeeded.
func (b *Batch) Err() error {
	errs := make([]error, len(b.Failures))
	for i, f := range b.Failures {
		errs[i] = goerr.Wrap(f.Err, "report failed", goerr.V("customer", f.Customer))
	}
	return errors.Join(errs...)
}
