package tool

import (
	"context"

	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

// Tool is one capability the router may offer to the LLM.
type Tool interface {
	// Spec returns the name, description and argument schema shown to the LLM
	Spec() llm.ToolSpec

	// Intents lists the intents this capability serves
	Intents() []model.Intent

	// Mutating reports whether the capability changes stored state. Mutating
	// capabilities are never retried.
	Mutating() bool

	// Execute runs the capability with the arguments chosen by the LLM
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Prompter is implemented by tools that add guidance to the system prompt.
type Prompter interface {
	Prompt(ctx context.Context) string
}
