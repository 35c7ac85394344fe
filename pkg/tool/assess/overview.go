package assess

import (
	"cmp"
	"context"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
)

const (
	scopeHighPriority = "high_priority"
	scopeAll          = "all"

	overviewDefaultLimit = 10
)

// Overview is the get_high_impact_changes capability. It merges the notable
// changes of every high priority customer, or of every customer when none
// is high priority.
type Overview struct {
	customers *customeruc.UseCase
	scorer    *impact.Scorer
}

func NewOverview(customers *customeruc.UseCase, scorer *impact.Scorer) *Overview {
	return &Overview{customers: customers, scorer: scorer}
}

func (x *Overview) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "get_high_impact_changes",
		Description: "Overview of notable roadmap changes across high priority customers, with the customers each change affects.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"question": tool.String("Optional focus, e.g. \"security changes\""),
			"limit":    tool.Integer("Max changes (default: 10, max: 50)"),
		}),
	}
}

func (x *Overview) Intents() []model.Intent {
	return []model.Intent{model.IntentImpactAnalysis}
}

func (x *Overview) Mutating() bool {
	return false
}

func (x *Overview) Prompt(ctx context.Context) string {
	return "Use get_high_impact_changes for a cross-customer overview; name the affected customers for each change."
}

type overviewChange struct {
	Item      tool.Item `json:"item"`
	Score     float64   `json:"score"`
	Customers []string  `json:"customers"`
	Rationale string    `json:"rationale"`
}

func (x *Overview) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input struct {
		Question string `json:"question"`
		Limit    int    `json:"limit"`
	}
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}
	limit := input.Limit
	if limit <= 0 {
		limit = overviewDefaultLimit
	}
	limit = min(limit, 50)

	all, err := x.customers.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return tool.Encode(map[string]any{
			"count":   0,
			"changes": []any{},
			"message": "No customers to analyze.",
		})
	}

	scope := scopeHighPriority
	var selected []*model.Customer
	for _, c := range all {
		if c.Priority == model.PriorityHigh {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		scope, selected = scopeAll, all
	}

	merged := make(map[int64]*overviewChange)
	names := make([]string, 0, len(selected))
	for _, c := range selected {
		names = append(names, c.Name)
		assessments, err := x.scorer.AssessQuery(ctx, c, input.Question, limit)
		if err != nil {
			return nil, err
		}
		for _, a := range assessments {
			if !a.Notable {
				continue
			}
			ch, ok := merged[a.Item.ID]
			if !ok {
				ch = &overviewChange{Item: tool.NewItem(a.Item)}
				merged[a.Item.ID] = ch
			}
			ch.Customers = append(ch.Customers, c.Name)
			if a.Score > ch.Score {
				ch.Score, ch.Rationale = a.Score, a.Rationale
			}
		}
	}

	changes := make([]*overviewChange, 0, len(merged))
	for _, ch := range merged {
		slices.Sort(ch.Customers)
		changes = append(changes, ch)
	}
	slices.SortFunc(changes, func(a, b *overviewChange) int {
		if c := cmp.Compare(len(b.Customers), len(a.Customers)); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Item.ID, b.Item.ID)
	})
	if len(changes) > limit {
		changes = changes[:limit]
	}

	return tool.Encode(map[string]any{
		"scope":     scope,
		"customers": names,
		"count":     len(changes),
		"changes":   changes,
	})
}
