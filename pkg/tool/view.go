package tool

import (
	"time"

	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

// Item is the roadmap item shape returned to the LLM. Embeddings are never
// exposed.
type Item struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         string   `json:"status"`
	ReleaseDate    string   `json:"release_date,omitempty"`
	Products       []string `json:"products,omitempty"`
	Platforms      []string `json:"platforms,omitempty"`
	CloudInstances []string `json:"cloud_instances,omitempty"`
	ReleasePhase   string   `json:"release_phase,omitempty"`
	ModifiedAt     string   `json:"modified_at,omitempty"`
	Relevance      *float64 `json:"relevance,omitempty"`
	Rank           int      `json:"rank,omitempty"`
}

func NewItem(x *model.RoadmapItem) Item {
	v := Item{
		ID:             x.ID,
		Title:          x.Title,
		Description:    x.Description,
		Status:         x.Status.Label(),
		Products:       x.Products,
		Platforms:      x.Platforms,
		CloudInstances: x.CloudInstances,
		ReleasePhase:   x.ReleasePhase,
	}
	if x.ReleaseDate != nil {
		v.ReleaseDate = x.ReleaseDate.Format("January 2006")
	}
	if !x.ModifiedAt.IsZero() {
		v.ModifiedAt = x.ModifiedAt.Format(time.DateOnly)
	}
	return v
}

// Assessment is the impact assessment shape returned to the LLM.
type Assessment struct {
	Item             Item     `json:"item"`
	Score            float64  `json:"score"`
	Notable          bool     `json:"notable"`
	Rationale        string   `json:"rationale"`
	MatchedProducts  []string `json:"matched_products,omitempty"`
	MatchedPlatforms []string `json:"matched_platforms,omitempty"`
}

func NewAssessment(a *model.ImpactAssessment) Assessment {
	return Assessment{
		Item:             NewItem(a.Item),
		Score:            a.Score,
		Notable:          a.Notable,
		Rationale:        a.Rationale,
		MatchedProducts:  a.MatchedProducts,
		MatchedPlatforms: a.MatchedPlatforms,
	}
}
