package roadmap

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
)

type searchInput struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Products  []string `json:"products"`
	Platforms []string `json:"platforms"`
	Status    string   `json:"status"`
}

// Search is the search_roadmap capability.
type Search struct {
	engine *retrieval.Engine
}

func NewSearch(engine *retrieval.Engine) *Search {
	return &Search{engine: engine}
}

func (s *Search) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "search_roadmap",
		Description: "Semantic search over the Microsoft 365 roadmap. Returns the most relevant items with a relevance between 0 and 1.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"query":     tool.String("What to look for, in natural language"),
			"limit":     tool.Integer("Max results (default: 5, max: 50)"),
			"products":  tool.StringArray(`Only items of these products, e.g. "Teams"`),
			"platforms": tool.StringArray(`Only items for these platforms, e.g. "iOS"`),
			"status":    tool.String("Only items with this status", statusEnum()...),
		}, "query"),
	}
}

func (s *Search) Intents() []model.Intent {
	return []model.Intent{model.IntentRoadmapQA, model.IntentImpactAnalysis}
}

func (s *Search) Mutating() bool {
	return false
}

func (s *Search) Prompt(ctx context.Context) string {
	return "Use search_roadmap to find roadmap items. Cite the roadmap ID of every item you mention. If nothing relevant is found, say so instead of guessing."
}

func (s *Search) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input searchInput
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}

	filter := repository.Filter{
		Products:  input.Products,
		Platforms: input.Platforms,
	}
	if input.Status != "" {
		status, err := parseStatus(input.Status)
		if err != nil {
			return nil, err
		}
		filter.Statuses = []model.RoadmapStatus{status}
	}

	results, err := s.engine.Search(ctx, retrieval.Query{
		Text:   input.Query,
		Limit:  input.Limit,
		Filter: filter,
	})
	if err != nil {
		return nil, err
	}

	items := make([]tool.Item, 0, len(results))
	for _, r := range results {
		v := tool.NewItem(r.Item)
		relevance := r.Score
		v.Relevance = &relevance
		v.Rank = r.Rank
		items = append(items, v)
	}

	out := map[string]any{
		"count": len(items),
		"items": items,
	}
	if len(items) == 0 {
		out["message"] = "No roadmap items matched. Try a broader query or fewer filters."
	}
	return tool.Encode(out)
}
