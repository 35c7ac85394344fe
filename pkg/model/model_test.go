package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

func TestDocumentIsCanonical(t *testing.T) {
	release := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	a := &model.RoadmapItem{
		ID:           1,
		Title:        "Meeting recording in Teams",
		Description:  "Record meetings with transcripts.",
		Status:       model.StatusRollingOut,
		Products:     []string{"Teams", "SharePoint"},
		Platforms:    []string{"Web", "Desktop"},
		ReleasePhase: "General Availability",
		ReleaseDate:  &release,
	}
	b := a.Copy()
	b.Products = []string{"SharePoint", "teams", "Teams"}
	b.Platforms = []string{"Desktop", " Web "}

	gt.Equal(t, a.Document(), b.Document())
	gt.Equal(t, a.Hash(), b.Hash())
	gt.S(t, a.Document()).Contains("Status: Rolling out")
	gt.S(t, a.Document()).Contains("Products: SharePoint, Teams")
	gt.S(t, a.Document()).Contains("Release date: October 2025")

	b.Description = "Record meetings."
	gt.NotEqual(t, a.Hash(), b.Hash())
}

func TestStaleEmbedding(t *testing.T) {
	item := &model.RoadmapItem{ID: 1, Title: "x"}
	gt.True(t, item.HasStaleEmbedding())

	item.Embedding = []float32{1}
	item.DocumentHash = item.Hash()
	gt.False(t, item.HasStaleEmbedding())

	item.Title = "y"
	gt.True(t, item.HasStaleEmbedding())
}

func TestParseStatus(t *testing.T) {
	for input, want := range map[string]model.RoadmapStatus{
		"In development": model.StatusPlanned,
		"Rolling out":    model.StatusRollingOut,
		"launched":       model.StatusLaunched,
		"canceled":       model.StatusCancelled,
	} {
		got, ok := model.ParseStatus(input)
		gt.True(t, ok).Describe(input)
		gt.Equal(t, got, want)
	}

	_, ok := model.ParseStatus("unknown")
	gt.False(t, ok)
}

func TestParsePriority(t *testing.T) {
	p, err := model.ParsePriority("")
	gt.NoError(t, err)
	gt.Equal(t, p, model.PriorityMedium)

	p, err = model.ParsePriority("HIGH")
	gt.NoError(t, err)
	gt.Equal(t, p, model.PriorityHigh)

	_, err = model.ParsePriority("urgent")
	gt.True(t, errors.Is(err, model.ErrInvalidPriority))
}

func TestCustomerUpdateApply(t *testing.T) {
	orig := &model.Customer{Name: "Contoso", Products: []string{"Teams"}, Priority: model.PriorityLow}
	notes := "renewal in Q3"
	high := model.PriorityHigh
	u := &model.CustomerUpdate{Notes: &notes, Priority: &high}

	got := u.Apply(orig)
	gt.Equal(t, got.Notes, notes)
	gt.Equal(t, got.Priority, model.PriorityHigh)
	gt.Equal(t, got.Name, "Contoso")
	gt.Equal(t, orig.Priority, model.PriorityLow)
	gt.False(t, u.IsEmpty())
	gt.True(t, (&model.CustomerUpdate{}).IsEmpty())
}

func TestNextUpdatedAt(t *testing.T) {
	prev := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	gt.True(t, model.NextUpdatedAt(prev, prev).After(prev))
	gt.True(t, model.NextUpdatedAt(prev, prev.Add(-time.Hour)).After(prev))
	gt.Equal(t, model.NextUpdatedAt(prev, prev.Add(time.Hour)), prev.Add(time.Hour))
}

func TestIsTransient(t *testing.T) {
	gt.True(t, model.IsTransient(goerr.Wrap(model.ErrStoreUnavailable, "failed to query")))
	gt.True(t, model.IsTransient(model.ErrEmbeddingUnavailable))
	gt.False(t, model.IsTransient(model.ErrDuplicateCustomer))
}

func TestReportWindowHalfOpen(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	w := model.ReportWindow{Start: start, End: start.Add(24 * time.Hour)}
	gt.True(t, w.Contains(start))
	gt.False(t, w.Contains(w.End))
	gt.False(t, w.Contains(start.Add(-time.Second)))
}
