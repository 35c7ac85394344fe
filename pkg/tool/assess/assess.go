package assess

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
)

// Impact is the assess_impact capability.
type Impact struct {
	customers *customeruc.UseCase
	scorer    *impact.Scorer
}

func New(customers *customeruc.UseCase, scorer *impact.Scorer) *Impact {
	return &Impact{customers: customers, scorer: scorer}
}

func (x *Impact) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "assess_impact",
		Description: "Assess which roadmap items affect a customer, scored by product overlap and semantic relevance.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"customer": tool.String("Exact customer name"),
			"question": tool.String("Optional focus, e.g. \"security changes\""),
			"limit":    tool.Integer("Max assessments (default: 5, max: 50)"),
		}, "customer"),
	}
}

func (x *Impact) Intents() []model.Intent {
	return []model.Intent{model.IntentImpactAnalysis}
}

func (x *Impact) Mutating() bool {
	return false
}

func (x *Impact) Prompt(ctx context.Context) string {
	return "Use assess_impact to judge how roadmap changes affect a customer. Lead with notable items and quote their rationale."
}

func (x *Impact) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input struct {
		Customer string `json:"customer"`
		Question string `json:"question"`
		Limit    int    `json:"limit"`
	}
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}

	c, err := x.customers.Get(ctx, input.Customer)
	if err != nil {
		return nil, err
	}

	limit := min(input.Limit, 50)
	assessments, err := x.scorer.AssessQuery(ctx, c, input.Question, limit)
	if err != nil {
		return nil, err
	}

	views := make([]tool.Assessment, 0, len(assessments))
	notable := 0
	for _, a := range assessments {
		views = append(views, tool.NewAssessment(a))
		if a.Notable {
			notable++
		}
	}
	return tool.Encode(map[string]any{
		"customer":    c.Name,
		"priority":    c.Priority,
		"notable":     notable,
		"assessments": views,
	})
}
