package roadmap

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	roadmapuc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/roadmap"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

func statusEnum() []string {
	return []string{
		string(model.StatusPlanned),
		string(model.StatusRollingOut),
		string(model.StatusLaunched),
		string(model.StatusCancelled),
	}
}

func parseStatus(s string) (model.RoadmapStatus, error) {
	status, ok := model.ParseStatus(s)
	if !ok {
		return "", goerr.Wrap(model.ErrInvalidArgument, "unknown status", goerr.V("status", s))
	}
	return status, nil
}

func readOnly() []model.Intent {
	return []model.Intent{model.IntentRoadmapQA}
}

// Get is the get_roadmap_item capability.
type Get struct {
	uc *roadmapuc.UseCase
}

func NewGet(uc *roadmapuc.UseCase) *Get {
	return &Get{uc: uc}
}

func (g *Get) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "get_roadmap_item",
		Description: "Get the full details of one roadmap item by its ID.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"id": tool.Integer("Roadmap item ID"),
		}, "id"),
	}
}

func (g *Get) Intents() []model.Intent {
	return readOnly()
}

func (g *Get) Mutating() bool {
	return false
}

func (g *Get) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input struct {
		ID int64 `json:"id"`
	}
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}

	item, err := g.uc.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return tool.Encode(map[string]any{"item": tool.NewItem(item)})
}

// List is the list_roadmap_items capability.
type List struct {
	uc *roadmapuc.UseCase
}

func NewList(uc *roadmapuc.UseCase) *List {
	return &List{uc: uc}
}

func (l *List) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "list_roadmap_items",
		Description: "List roadmap items, most recently modified first.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"status": tool.String("Only items with this status", statusEnum()...),
			"limit":  tool.Integer("Max results (default: 10, max: 50)"),
			"offset": tool.Integer("Skip count for pagination (default: 0)"),
		}),
	}
}

func (l *List) Intents() []model.Intent {
	return readOnly()
}

func (l *List) Mutating() bool {
	return false
}

func (l *List) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	var input struct {
		Status string `json:"status"`
		Limit  int    `json:"limit"`
		Offset int    `json:"offset"`
	}
	if err := tool.Decode(args, &input); err != nil {
		return nil, err
	}

	opts := roadmapuc.ListOptions{Offset: input.Offset, Limit: input.Limit}
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	if input.Status != "" {
		status, err := parseStatus(input.Status)
		if err != nil {
			return nil, err
		}
		opts.Status = status
	}

	items, err := l.uc.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	views := make([]tool.Item, 0, len(items))
	for _, x := range items {
		v := tool.NewItem(x)
		v.Description = ""
		views = append(views, v)
	}
	return tool.Encode(map[string]any{
		"count":  len(views),
		"offset": opts.Offset,
		"items":  views,
	})
}

// Stats is the get_roadmap_stats capability.
type Stats struct {
	uc *roadmapuc.UseCase
}

func NewStats(uc *roadmapuc.UseCase) *Stats {
	return &Stats{uc: uc}
}

func (s *Stats) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "get_roadmap_stats",
		Description: "Count roadmap items in total and per status.",
		Parameters:  tool.Object(nil),
	}
}

func (s *Stats) Intents() []model.Intent {
	return readOnly()
}

func (s *Stats) Mutating() bool {
	return false
}

func (s *Stats) Execute(ctx context.Context, args map[string]any) (map[string]any, error) {
	stats, err := s.uc.Stats(ctx)
	if err != nil {
		return nil, err
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[status.Label()] = n
	}
	return tool.Encode(map[string]any{
		"total":     stats.Total,
		"by_status": byStatus,
	})
}
