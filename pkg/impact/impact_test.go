package impact_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository/repositorytest"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
)

func setup(t *testing.T, cfg impact.Config) (*impact.Scorer, *repository.Memory) {
	t.Helper()
	gw, _ := repositorytest.NewGateway(t)
	repo := repositorytest.Seed(t, gw)
	scorer, err := impact.New(cfg, retrieval.New(gw, repo))
	gt.NoError(t, err)
	return scorer, repo
}

func ptr(v float64) *float64 {
	return &v
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func item(t *testing.T, repo *repository.Memory, id int64) *model.RoadmapItem {
	t.Helper()
	x, err := repo.GetRoadmapItem(context.Background(), id)
	gt.NoError(t, err)
	return x
}

func TestContosoTeamsChangeIsNotable(t *testing.T) {
	scorer, repo := setup(t, impact.DefaultConfig())
	contoso := &model.Customer{
		Name:     "Contoso",
		Products: []string{"Teams", "SharePoint"},
		Priority: model.PriorityHigh,
	}

	got, err := scorer.Assess(context.Background(), contoso, []impact.Candidate{
		{Item: item(t, repo, 103)},
		{Item: item(t, repo, 101)},
	})
	gt.NoError(t, err)
	gt.A(t, got).Length(2)

	teams := got[0]
	gt.Equal(t, teams.Item.ID, int64(101))
	gt.True(t, teams.Notable)
	gt.True(t, teams.Score > 0.3)
	gt.A(t, teams.MatchedProducts).Length(1)
	gt.Equal(t, teams.MatchedProducts[0], "Teams")
	gt.True(t, strings.Contains(teams.Rationale, "Teams"))

	outlook := got[1]
	gt.Equal(t, outlook.Item.ID, int64(103))
	gt.False(t, outlook.Notable)
	gt.A(t, outlook.MatchedProducts).Length(0)
	gt.True(t, strings.Contains(outlook.Rationale, "no product overlap"))
}

func TestUnrelatedProductStaysBelowNotable(t *testing.T) {
	scorer, _ := setup(t, impact.DefaultConfig())
	dynamics := &model.RoadmapItem{
		ID:       201,
		Title:    "Dynamics 365 Sales: forecasting insights",
		Status:   model.StatusRollingOut,
		Products: []string{"Dynamics 365"},
	}

	for _, tc := range []struct {
		name       string
		priority   model.Priority
		similarity float64
	}{
		{"high priority with moderate similarity", model.PriorityHigh, 0.5},
		{"medium priority with strong similarity", model.PriorityMedium, 0.8},
		{"high priority with maximal similarity", model.PriorityHigh, 1.0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			contoso := &model.Customer{
				Name:     "Contoso",
				Products: []string{"Teams", "SharePoint"},
				Priority: tc.priority,
			}
			got, err := scorer.Assess(context.Background(), contoso, []impact.Candidate{
				{Item: dynamics, Similarity: ptr(tc.similarity)},
			})
			gt.NoError(t, err)
			gt.A(t, got).Length(1)
			gt.True(t, got[0].Score <= impact.DefaultConfig().ZeroOverlapCap)
			gt.False(t, got[0].Notable)
			gt.True(t, strings.Contains(got[0].Rationale, "no product overlap"))
		})
	}
}

func TestWeightsAtEdges(t *testing.T) {
	customer := &model.Customer{Name: "Fabrikam", Products: []string{"Teams", "Outlook"}}

	t.Run("product only", func(t *testing.T) {
		cfg := impact.DefaultConfig()
		cfg.ProductWeight, cfg.SemanticWeight = 1, 0
		scorer, repo := setup(t, cfg)

		got, err := scorer.Assess(context.Background(), customer, []impact.Candidate{
			{Item: item(t, repo, 101), Similarity: ptr(0.9)},
		})
		gt.NoError(t, err)
		gt.Equal(t, got[0].Score, 0.5)
	})

	t.Run("semantic only", func(t *testing.T) {
		cfg := impact.DefaultConfig()
		cfg.ProductWeight, cfg.SemanticWeight = 0, 1
		scorer, repo := setup(t, cfg)

		got, err := scorer.Assess(context.Background(), customer, []impact.Candidate{
			{Item: item(t, repo, 101), Similarity: ptr(0.9)},
		})
		gt.NoError(t, err)
		gt.Equal(t, got[0].Score, 0.9)
	})

	t.Run("weights are normalised", func(t *testing.T) {
		cfg := impact.DefaultConfig()
		cfg.ProductWeight, cfg.SemanticWeight = 3, 1
		scorer, repo := setup(t, cfg)

		got, err := scorer.Assess(context.Background(), customer, []impact.Candidate{
			{Item: item(t, repo, 101), Similarity: ptr(0.4)},
		})
		gt.NoError(t, err)
		gt.True(t, near(got[0].Score, 0.75*0.5+0.25*0.4))
	})
}

func TestSemanticSignalIsClamped(t *testing.T) {
	cfg := impact.DefaultConfig()
	cfg.ProductWeight, cfg.SemanticWeight = 0, 1
	scorer, repo := setup(t, cfg)
	customer := &model.Customer{Name: "Northwind"}

	got, err := scorer.Assess(context.Background(), customer, []impact.Candidate{
		{Item: item(t, repo, 101), Similarity: ptr(-0.7)},
		{Item: item(t, repo, 102), Similarity: ptr(1.5)},
	})
	gt.NoError(t, err)
	gt.Equal(t, got[0].Score, 1.0)
	gt.Equal(t, got[1].Score, 0.0)
}

func TestHighPriorityBand(t *testing.T) {
	cfg := impact.DefaultConfig()
	cfg.ProductWeight, cfg.SemanticWeight = 0, 1
	scorer, repo := setup(t, cfg)
	ctx := context.Background()
	candidates := []impact.Candidate{{Item: item(t, repo, 104), Similarity: ptr(0.25)}}

	high, err := scorer.Assess(ctx, &model.Customer{Name: "A", Priority: model.PriorityHigh}, candidates)
	gt.NoError(t, err)
	medium, err := scorer.Assess(ctx, &model.Customer{Name: "B", Priority: model.PriorityMedium}, candidates)
	gt.NoError(t, err)

	gt.True(t, high[0].Notable)
	gt.False(t, medium[0].Notable)
	gt.Equal(t, high[0].Score, medium[0].Score)
}

func TestCustomerWithoutProducts(t *testing.T) {
	scorer, repo := setup(t, impact.DefaultConfig())

	got, err := scorer.Assess(context.Background(), &model.Customer{Name: "Empty"}, []impact.Candidate{
		{Item: item(t, repo, 101), Similarity: ptr(0.5)},
	})
	gt.NoError(t, err)
	gt.True(t, near(got[0].Score, 0.4*0.5))
	gt.True(t, strings.Contains(got[0].Rationale, "no product overlap"))
}

func TestProductMatchUsesWordBoundaries(t *testing.T) {
	scorer, _ := setup(t, impact.DefaultConfig())
	x := &model.RoadmapItem{ID: 1, Products: []string{"Steams Portal"}}

	got, err := scorer.Assess(context.Background(), &model.Customer{Name: "C", Products: []string{"Teams"}}, []impact.Candidate{
		{Item: x, Similarity: ptr(0)},
	})
	gt.NoError(t, err)
	gt.A(t, got[0].MatchedProducts).Length(0)
	gt.Equal(t, got[0].Score, 0.0)
}

func TestPlatformEvidence(t *testing.T) {
	scorer, repo := setup(t, impact.DefaultConfig())
	customer := &model.Customer{
		Name:        "Litware",
		Products:    []string{"Outlook"},
		Description: "Field staff work on iOS devices",
	}

	got, err := scorer.Assess(context.Background(), customer, []impact.Candidate{
		{Item: item(t, repo, 103), Similarity: ptr(0.1)},
	})
	gt.NoError(t, err)
	gt.A(t, got[0].MatchedPlatforms).Length(1)
	gt.Equal(t, got[0].MatchedPlatforms[0], "iOS")
	gt.True(t, strings.Contains(got[0].Rationale, "platforms iOS"))
}

func TestOrderingTieBreaks(t *testing.T) {
	scorer, _ := setup(t, impact.DefaultConfig())
	early := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	candidates := []impact.Candidate{
		{Item: &model.RoadmapItem{ID: 5}, Similarity: ptr(0.5)},
		{Item: &model.RoadmapItem{ID: 4, ReleaseDate: &early}, Similarity: ptr(0.5)},
		{Item: &model.RoadmapItem{ID: 3}, Similarity: ptr(0.5)},
		{Item: &model.RoadmapItem{ID: 9, ReleaseDate: &late}, Similarity: ptr(0.5)},
		{Item: &model.RoadmapItem{ID: 1}, Similarity: ptr(0.9)},
	}

	got, err := scorer.Assess(context.Background(), &model.Customer{Name: "C"}, candidates)
	gt.NoError(t, err)

	ids := make([]int64, 0, len(got))
	for _, a := range got {
		ids = append(ids, a.Item.ID)
	}
	gt.Equal(t, ids, []int64{1, 9, 4, 3, 5})
}

func TestEmptyCandidates(t *testing.T) {
	scorer, _ := setup(t, impact.DefaultConfig())
	got, err := scorer.Assess(context.Background(), &model.Customer{Name: "C"}, nil)
	gt.NoError(t, err)
	gt.A(t, got).Length(0)
}

func TestAssessQuery(t *testing.T) {
	scorer, _ := setup(t, impact.DefaultConfig())
	customer := &model.Customer{Name: "Contoso", Products: []string{"Teams"}, Priority: model.PriorityHigh}

	got, err := scorer.AssessQuery(context.Background(), customer, "meeting recording", 3)
	gt.NoError(t, err)
	gt.A(t, got).Length(3)
	gt.Equal(t, got[0].Item.ID, int64(101))
	gt.True(t, got[0].Notable)

	seen := map[int64]bool{}
	for _, a := range got {
		gt.False(t, seen[a.Item.ID])
		seen[a.Item.ID] = true
	}
}

func TestConfigValidate(t *testing.T) {
	gt.NoError(t, impact.DefaultConfig().Validate())

	cfg := impact.DefaultConfig()
	cfg.ProductWeight = -1
	gt.True(t, errors.Is(cfg.Validate(), model.ErrInvalidArgument))

	cfg = impact.DefaultConfig()
	cfg.ProductWeight, cfg.SemanticWeight = 0, 0
	gt.True(t, errors.Is(cfg.Validate(), model.ErrInvalidArgument))

	cfg = impact.DefaultConfig()
	cfg.ZeroOverlapCap = -0.1
	gt.True(t, errors.Is(cfg.Validate(), model.ErrInvalidArgument))

	cfg = impact.DefaultConfig()
	cfg.NotableThreshold = 1.5
	gt.True(t, errors.Is(cfg.Validate(), model.ErrInvalidArgument))

	_, err := impact.New(cfg, nil)
	gt.True(t, errors.Is(err, model.ErrInvalidArgument))
}
