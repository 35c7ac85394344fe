package report_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/alicebob/miniredis/v2"
	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository/repositorytest"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/redis/go-redis/v9"
)

var june = model.ReportWindow{
	Start: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC),
}

type env struct {
	repo   *repository.Memory
	scorer *impact.Scorer
}

func setup(t *testing.T, customers ...*model.Customer) *env {
	t.Helper()
	gw, _ := repositorytest.NewGateway(t)
	repo := repositorytest.Seed(t, gw)
	scorer, err := impact.New(impact.DefaultConfig(), retrieval.New(gw, repo))
	gt.NoError(t, err)

	for _, c := range customers {
		_, err := repo.CreateCustomer(context.Background(), c)
		gt.NoError(t, err)
	}
	return &env{repo: repo, scorer: scorer}
}

func contoso() *model.Customer {
	return &model.Customer{
		Name:     "Contoso",
		Products: []string{"Teams", "SharePoint"},
		Priority: model.PriorityHigh,
	}
}

func fabrikam() *model.Customer {
	return &model.Customer{
		Name:     "Fabrikam",
		Products: []string{"Outlook"},
		Priority: model.PriorityLow,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerate(t *testing.T) {
	e := setup(t, contoso())
	generatedAt := time.Date(2025, time.June, 8, 9, 30, 0, 0, time.UTC)
	asm := report.New(e.repo, e.scorer, report.WithClock(fixedClock(generatedAt)))

	got, err := asm.Generate(context.Background(), "Contoso", june)
	gt.NoError(t, err)
	gt.Equal(t, got.Customer.Name, "Contoso")
	gt.Equal(t, got.GeneratedAt, generatedAt)
	gt.Equal(t, got.Key, "")

	// 101 and 104 were modified inside the window
	gt.A(t, got.Assessments).Length(2)
	gt.Equal(t, got.Assessments[0].Item.ID, int64(101))
	gt.True(t, got.Assessments[0].Notable)
	gt.Equal(t, got.Assessments[1].Item.ID, int64(104))
	gt.False(t, got.Assessments[1].Notable)

	gt.True(t, strings.HasPrefix(got.Body, "# Roadmap impact report: Contoso\n"))
	gt.True(t, strings.Contains(got.Body, "## Notable changes (1)"))
	gt.True(t, strings.Contains(got.Body, "### 101: Microsoft Teams: meeting recording transcript"))
	gt.True(t, strings.Contains(got.Body, "## Other changes (1)"))
	gt.True(t, strings.Contains(got.Body, "2025-06-01 to 2025-06-08"))
	gt.False(t, strings.Contains(got.Body, "09:30"))
}

func TestGenerateIsDeterministic(t *testing.T) {
	e := setup(t, contoso())
	dir := t.TempDir()

	first := report.New(e.repo, e.scorer,
		report.WithSink(report.NewDirSink(dir)),
		report.WithClock(fixedClock(time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC))))
	second := report.New(e.repo, e.scorer,
		report.WithSink(report.NewDirSink(dir)),
		report.WithClock(fixedClock(time.Date(2025, time.June, 9, 12, 0, 0, 0, time.UTC))))

	a, err := first.Generate(context.Background(), "Contoso", june)
	gt.NoError(t, err)
	b, err := second.Generate(context.Background(), "Contoso", june)
	gt.NoError(t, err)

	gt.Equal(t, a.Body, b.Body)
	gt.True(t, a.Key != b.Key)

	x, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(a.Key)))
	gt.NoError(t, err)
	y, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(b.Key)))
	gt.NoError(t, err)
	gt.True(t, bytes.Equal(x, y))
}

func TestGenerateEmptyWindow(t *testing.T) {
	e := setup(t, contoso())
	asm := report.New(e.repo, e.scorer)

	window := model.ReportWindow{
		Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC),
	}
	got, err := asm.Generate(context.Background(), "Contoso", window)
	gt.NoError(t, err)
	gt.A(t, got.Assessments).Length(0)
	gt.True(t, strings.Contains(got.Body, "No roadmap changes in this window."))
}

func TestGenerateErrors(t *testing.T) {
	e := setup(t, contoso())
	asm := report.New(e.repo, e.scorer)
	ctx := context.Background()

	_, err := asm.Generate(ctx, "Nobody", june)
	gt.True(t, errors.Is(err, model.ErrCustomerNotFound))

	_, err = asm.Generate(ctx, " ", june)
	gt.True(t, errors.Is(err, model.ErrInvalidArgument))

	_, err = asm.Generate(ctx, "Contoso", model.ReportWindow{Start: june.End, End: june.Start})
	gt.True(t, errors.Is(err, model.ErrInvalidArgument))
}

func TestGenerateRejectsConcurrentRun(t *testing.T) {
	e := setup(t, contoso())
	locker := report.NewLocalLocker()
	asm := report.New(e.repo, e.scorer, report.WithLocker(locker))
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "Contoso")
	gt.NoError(t, err)

	_, err = asm.Generate(ctx, "Contoso", june)
	gt.True(t, errors.Is(err, report.ErrLocked))

	gt.NoError(t, unlock(ctx))
	_, err = asm.Generate(ctx, "Contoso", june)
	gt.NoError(t, err)
}

func TestRunIsolatesFailures(t *testing.T) {
	e := setup(t, contoso(), fabrikam())
	asm := report.New(e.repo, e.scorer, report.WithWorkers(2))

	batch, err := asm.Run(context.Background(), june, "Fabrikam", "Ghost", "Contoso", "Fabrikam")
	gt.NoError(t, err)
	gt.A(t, batch.Reports).Length(2)
	gt.Equal(t, batch.Reports[0].Customer.Name, "Contoso")
	gt.Equal(t, batch.Reports[1].Customer.Name, "Fabrikam")
	gt.A(t, batch.Failures).Length(1)
	gt.Equal(t, batch.Failures[0].Customer, "Ghost")
	gt.True(t, errors.Is(batch.Failures[0].Err, model.ErrCustomerNotFound))
	gt.True(t, errors.Is(batch.Err(), model.ErrCustomerNotFound))
}

func TestRunAllCustomers(t *testing.T) {
	e := setup(t, fabrikam(), contoso())
	asm := report.New(e.repo, e.scorer)

	batch, err := asm.Run(context.Background(), june)
	gt.NoError(t, err)
	gt.A(t, batch.Reports).Length(2)
	gt.A(t, batch.Failures).Length(0)
	gt.NoError(t, batch.Err())

	digest := report.RenderBatch(batch)
	high := strings.Index(digest, "## High priority customers")
	low := strings.Index(digest, "## Low priority customers")
	gt.True(t, high >= 0)
	gt.True(t, low > high)
	gt.False(t, strings.Contains(digest, "## Medium priority customers"))
	gt.True(t, strings.Contains(digest, "- 101: Microsoft Teams: meeting recording transcript"))
	gt.False(t, strings.Contains(digest, "## Failed"))
}

type countingAssessor struct {
	next    report.Assessor
	current atomic.Int32
	peak    atomic.Int32
}

func (c *countingAssessor) Assess(ctx context.Context, customer *model.Customer, candidates []impact.Candidate) ([]*model.ImpactAssessment, error) {
	n := c.current.Add(1)
	defer c.current.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return c.next.Assess(ctx, customer, candidates)
}

func TestRunBoundsWorkers(t *testing.T) {
	var customers []*model.Customer
	for _, name := range []string{"A", "B", "C", "D", "E", "F"} {
		customers = append(customers, &model.Customer{Name: name, Products: []string{"Teams"}})
	}
	e := setup(t, customers...)
	assessor := &countingAssessor{next: e.scorer}
	asm := report.New(e.repo, assessor, report.WithWorkers(2))

	batch, err := asm.Run(context.Background(), june)
	gt.NoError(t, err)
	gt.A(t, batch.Reports).Length(6)
	gt.True(t, assessor.peak.Load() <= 2)
}

func TestRenderBatchFailures(t *testing.T) {
	batch := &report.Batch{
		Window:   june,
		Failures: []report.Failure{{Customer: "Ghost", Err: model.ErrCustomerNotFound}},
	}
	digest := report.RenderBatch(batch)
	gt.True(t, strings.Contains(digest, "0 reported, 1 failed"))
	gt.True(t, strings.Contains(digest, "- Ghost: customer not found"))
}

func TestRenderLimitsOtherChanges(t *testing.T) {
	customer := &model.Customer{Name: "Tailspin", Priority: model.PriorityMedium}
	var assessments []*model.ImpactAssessment
	for i := range 4 {
		assessments = append(assessments, &model.ImpactAssessment{
			Customer: customer,
			Item:     &model.RoadmapItem{ID: int64(i + 1), Title: "Item | with pipe", Status: model.StatusPlanned},
			Score:    0.1,
		})
	}

	body := report.Render(customer, june, assessments, 2)
	gt.True(t, strings.Contains(body, "- Products: none recorded"))
	gt.True(t, strings.Contains(body, "No notable changes for this customer in this window."))
	gt.True(t, strings.Contains(body, `| 1 | Item \| with pipe | In development | 0.10 |`))
	gt.False(t, strings.Contains(body, "| 3 |"))
	gt.True(t, strings.Contains(body, "_2 more changes with lower scores are not listed._"))
}

func TestKey(t *testing.T) {
	at := time.Date(2025, time.June, 8, 9, 30, 5, 0, time.FixedZone("CEST", 2*3600))
	gt.Equal(t, report.Key("Contoso Ltd.", at), "reports/contoso-ltd/20250608T073005Z.md")
	gt.Equal(t, report.Key("!!!", at), "reports/customer/20250608T073005Z.md")
}

func TestWindowEnding(t *testing.T) {
	end := time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC)
	w := report.WindowEnding(end, report.DefaultConfig().Window)
	gt.Equal(t, w.Start, time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC))
	gt.Equal(t, w.End, end)
	gt.True(t, w.Contains(w.Start))
	gt.False(t, w.Contains(w.End))
}

func TestConfigValidate(t *testing.T) {
	gt.NoError(t, report.DefaultConfig().Validate())

	cfg := report.DefaultConfig()
	cfg.Workers = 0
	gt.True(t, errors.Is(cfg.Validate(), model.ErrInvalidArgument))

	cfg = report.DefaultConfig()
	cfg.Window = 0
	gt.True(t, errors.Is(cfg.Validate(), model.ErrInvalidArgument))
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := report.NewLocalLocker()

	unlock, err := locker.Lock(ctx, "a")
	gt.NoError(t, err)
	_, err = locker.Lock(ctx, "a")
	gt.True(t, errors.Is(err, report.ErrLocked))

	other, err := locker.Lock(ctx, "b")
	gt.NoError(t, err)
	gt.NoError(t, other(ctx))

	gt.NoError(t, unlock(ctx))
	gt.NoError(t, unlock(ctx))
	again, err := locker.Lock(ctx, "a")
	gt.NoError(t, err)
	gt.NoError(t, again(ctx))
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	first := report.NewRedisLocker(client, time.Minute)
	second := report.NewRedisLocker(client, time.Minute)

	unlock, err := first.Lock(ctx, "Contoso")
	gt.NoError(t, err)
	_, err = second.Lock(ctx, "Contoso")
	gt.True(t, errors.Is(err, report.ErrLocked))

	gt.NoError(t, unlock(ctx))
	unlock2, err := second.Lock(ctx, "Contoso")
	gt.NoError(t, err)

	t.Run("expired lock is not released by its former holder", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		unlock3, err := first.Lock(ctx, "Contoso")
		gt.NoError(t, err)

		gt.NoError(t, unlock2(ctx))
		_, err = second.Lock(ctx, "Contoso")
		gt.True(t, errors.Is(err, report.ErrLocked))

		gt.NoError(t, unlock3(ctx))
	})
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

type memWriter struct {
	bytes.Buffer
	close func(string)
}

func (w *memWriter) Close() error {
	w.close(w.String())
	return nil
}

func (s *memStorage) Put(ctx context.Context, key, contentType string) (io.WriteCloser, error) {
	return &memWriter{close: func(body string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.objects[key] = body
		s.types[key] = contentType
	}}, nil
}

func (s *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (s *memStorage) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

type memBigQuery struct {
	mu      sync.Mutex
	ensured int
	schema  bigquery.Schema
	rows    []*report.AssessmentRow
	err     error
}

func (b *memBigQuery) EnsureTable(ctx context.Context, table string, schema bigquery.Schema) error {
	b.ensured++
	b.schema = schema
	return nil
}

func (b *memBigQuery) Insert(ctx context.Context, table string, rows any) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, rows.([]*report.AssessmentRow)...)
	return nil
}

func TestSinks(t *testing.T) {
	e := setup(t, contoso(), fabrikam())
	storage := &memStorage{objects: map[string]string{}, types: map[string]string{}}
	bq := &memBigQuery{}
	asm := report.New(e.repo, e.scorer,
		report.WithSink(report.MultiSink{
			report.NewStorageSink(storage, "evergreen/"),
			report.NewBigQuerySink(bq, ""),
		}),
		report.WithClock(fixedClock(june.End)))

	batch, err := asm.Run(context.Background(), june)
	gt.NoError(t, err)
	gt.A(t, batch.Reports).Length(2)

	contosoReport := batch.Reports[0]
	gt.Equal(t, contosoReport.Key, "reports/contoso/20250608T000000Z.md")
	gt.Equal(t, storage.objects["evergreen/"+contosoReport.Key], contosoReport.Body)
	gt.True(t, strings.HasPrefix(storage.types["evergreen/"+contosoReport.Key], "text/markdown"))

	gt.Equal(t, bq.ensured, 1)
	gt.True(t, len(bq.schema) > 0)
	gt.A(t, bq.rows).Length(4)
	for _, row := range bq.rows {
		gt.True(t, row.Customer == "Contoso" || row.Customer == "Fabrikam")
		gt.Equal(t, row.WindowEnd, june.End)
	}
}

func TestSinkFailureFailsCustomer(t *testing.T) {
	e := setup(t, contoso())
	bq := &memBigQuery{err: errors.New("quota exceeded")}
	asm := report.New(e.repo, e.scorer, report.WithSink(report.NewBigQuerySink(bq, "rows")))

	batch, err := asm.Run(context.Background(), june)
	gt.NoError(t, err)
	gt.A(t, batch.Reports).Length(0)
	gt.A(t, batch.Failures).Length(1)
	gt.Equal(t, batch.Failures[0].Customer, "Contoso")
}
