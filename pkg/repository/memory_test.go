package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
)

func TestMemoryListRoadmapItems(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory(testDim)

	released := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	old := newItem(1, "old but released in window", nil, axis(0))
	old.ModifiedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	old.ReleaseDate = &released
	old.DocumentHash = old.Hash()

	recent := newItem(2, "recent", nil, axis(1))
	recent.Status = model.StatusLaunched
	recent.DocumentHash = recent.Hash()

	outside := newItem(3, "outside", nil, axis(2))
	outside.ModifiedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, item := range []*model.RoadmapItem{old, recent, outside} {
		gt.NoError(t, repo.UpsertRoadmapItem(ctx, item))
	}

	window := &model.ReportWindow{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
	}
	got, err := repo.ListRoadmapItems(ctx, repository.ListRoadmapInput{Window: window})
	gt.NoError(t, err)
	gt.A(t, got).Length(2)
	gt.Equal(t, got[0].ID, int64(2))
	gt.Equal(t, got[1].ID, int64(1))

	got, err = repo.ListRoadmapItems(ctx, repository.ListRoadmapInput{Status: model.StatusLaunched})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)

	got, err = repo.ListRoadmapItems(ctx, repository.ListRoadmapInput{Offset: 1, Limit: 1})
	gt.NoError(t, err)
	gt.A(t, got).Length(1)
	gt.Equal(t, got[0].ID, int64(1))

	got, err = repo.ListRoadmapItems(ctx, repository.ListRoadmapInput{Offset: 10})
	gt.NoError(t, err)
	gt.A(t, got).Length(0)

	stats, err := repo.RoadmapStats(ctx)
	gt.NoError(t, err)
	gt.Equal(t, stats.Total, 3)
	gt.Equal(t, stats.ByStatus[model.StatusRollingOut], 2)
	gt.Equal(t, stats.ByStatus[model.StatusLaunched], 1)
}

func TestMemoryUpsertKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := repository.NewMemory(testDim, repository.WithClock(func() time.Time { return now }))

	item := newItem(1, "x", nil, axis(0))
	gt.NoError(t, repo.UpsertRoadmapItem(ctx, item))

	now = now.Add(time.Hour)
	gt.NoError(t, repo.UpsertRoadmapItem(ctx, item))

	got, err := repo.GetRoadmapItem(ctx, 1)
	gt.NoError(t, err)
	gt.Equal(t, got.CreatedAt, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	gt.Equal(t, got.UpdatedAt, now)
}

func TestMemoryUpdatedAtAdvancesWithFrozenClock(t *testing.T) {
	ctx := context.Background()
	frozen := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := repository.NewMemory(testDim, repository.WithClock(func() time.Time { return frozen }))

	c, err := repo.CreateCustomer(ctx, &model.Customer{Name: "Contoso"})
	gt.NoError(t, err)

	notes := "n"
	u, err := repo.UpdateCustomer(ctx, "Contoso", &model.CustomerUpdate{Notes: &notes})
	gt.NoError(t, err)
	gt.True(t, u.UpdatedAt.After(c.UpdatedAt))
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory(testDim)
	gt.NoError(t, repo.UpsertRoadmapItem(ctx, newItem(1, "x", []string{"Teams"}, axis(0))))

	got, err := repo.GetRoadmapItem(ctx, 1)
	gt.NoError(t, err)
	got.Products[0] = "mutated"
	got.Embedding[0] = 42

	again, err := repo.GetRoadmapItem(ctx, 1)
	gt.NoError(t, err)
	gt.Equal(t, again.Products[0], "Teams")
	gt.Equal(t, again.Embedding[0], float32(1))
}

func TestCosine(t *testing.T) {
	gt.Equal(t, repository.Cosine([]float32{1, 0}, []float32{1, 0}), 1.0)
	gt.Equal(t, repository.Cosine([]float32{1, 0}, []float32{0, 1}), 0.0)
	gt.Equal(t, repository.Cosine([]float32{1, 0}, []float32{-1, 0}), -1.0)
	gt.Equal(t, repository.Cosine([]float32{0, 0}, []float32{1, 0}), 0.0)
	gt.Equal(t, repository.Cosine([]float32{1}, []float32{1, 0}), 0.0)
}
