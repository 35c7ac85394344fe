// Package repositorytest seeds an in-memory repository with a small,
// deterministic roadmap for tests of the packages built on top of it.
package repositorytest

import (
	"context"
	"testing"
	"time"

	"github.com/marioweid/evergreeen-multi-agents/pkg/embedding"
	"github.com/marioweid/evergreeen-multi-agents/pkg/embedding/embeddingtest"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
)

const Dimension = 32

// Vocabulary drives the keyword embedder: texts sharing these words are
// similar, everything else is orthogonal.
var Vocabulary = []string{
	"teams", "sharepoint", "outlook", "viva", "planner", "copilot",
	"meeting", "recording", "transcript", "security", "calendar", "mobile",
	"analytics", "tasks", "templates",
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Items returns fresh copies of the fixture roadmap without embeddings.
func Items() []*model.RoadmapItem {
	july := date(2025, time.July, 1)
	return []*model.RoadmapItem{
		{
			ID:          101,
			Title:       "Microsoft Teams: meeting recording transcript",
			Description: "Meeting organizers can download the transcript of a meeting recording.",
			Status:      model.StatusRollingOut,
			Products:    []string{"Microsoft Teams"},
			Platforms:   []string{"Web", "Desktop"},
			ModifiedAt:  date(2025, time.June, 2),
		},
		{
			ID:          102,
			Title:       "SharePoint: security templates for sites",
			Description: "New site templates apply security defaults.",
			Status:      model.StatusPlanned,
			ReleaseDate: &july,
			Products:    []string{"SharePoint"},
			Platforms:   []string{"Web"},
			ModifiedAt:  date(2025, time.May, 1),
		},
		{
			ID:          103,
			Title:       "Outlook: mobile calendar sharing",
			Description: "Share your calendar from Outlook mobile.",
			Status:      model.StatusLaunched,
			Products:    []string{"Outlook"},
			Platforms:   []string{"Android", "iOS"},
			ModifiedAt:  date(2025, time.May, 20),
		},
		{
			ID:          104,
			Title:       "Viva Insights: meeting analytics",
			Description: "Analytics about meeting habits in Viva.",
			Status:      model.StatusRollingOut,
			Products:    []string{"Microsoft Viva"},
			Platforms:   []string{"Web"},
			ModifiedAt:  date(2025, time.June, 5),
		},
		{
			ID:          105,
			Title:       "Planner: Copilot tasks",
			Description: "Copilot suggests tasks in Planner.",
			Status:      model.StatusCancelled,
			Products:    []string{"Microsoft Planner", "Microsoft Copilot (Microsoft 365)"},
			Platforms:   []string{"Web"},
			ModifiedAt:  date(2025, time.April, 1),
		},
	}
}

// NewGateway returns an uncached embedding gateway over a keyword embedder.
func NewGateway(t testing.TB) (*embedding.Gateway, *embeddingtest.Keyword) {
	t.Helper()
	provider := embeddingtest.NewKeyword(Vocabulary...)
	gw, err := embedding.New(provider, Dimension, embedding.WithCache(nil))
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	return gw, provider
}

// Seed embeds items with gw and stores them in a new memory repository. With
// no items the fixture roadmap is used.
func Seed(t testing.TB, gw *embedding.Gateway, items ...*model.RoadmapItem) *repository.Memory {
	t.Helper()
	if len(items) == 0 {
		items = Items()
	}

	ctx := context.Background()
	repo := repository.NewMemory(gw.Dimension())
	for _, item := range items {
		vec, err := gw.Embed(ctx, item.Document())
		if err != nil {
			t.Fatalf("failed to embed item %d: %v", item.ID, err)
		}
		item.Embedding = vec
		item.DocumentHash = item.Hash()
		if err := repo.UpsertRoadmapItem(ctx, item); err != nil {
			t.Fatalf("failed to store item %d: %v", item.ID, err)
		}
	}
	return repo
}
