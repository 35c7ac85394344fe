package tool

import (
	"context"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
)

var ErrToolNotFound = goerr.New("tool not found")

// Registry is the closed capability catalogue.
type Registry struct {
	tools map[string]Tool
	names []string
}

// New creates a registry. A later tool with the same name replaces an
// earlier one.
func New(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		name := t.Spec().Name
		if _, ok := r.tools[name]; !ok {
			r.names = append(r.names, name)
		}
		r.tools[name] = t
	}
	slices.Sort(r.names)
	return r
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all capability names in order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Serves reports whether the named capability is offered for intent.
func (r *Registry) Serves(name string, intent model.Intent) bool {
	t, ok := r.tools[name]
	return ok && slices.Contains(t.Intents(), intent)
}

// Specs returns the specifications of the capabilities serving intent,
// ordered by name.
func (r *Registry) Specs(intent model.Intent) []llm.ToolSpec {
	var specs []llm.ToolSpec
	for _, name := range r.names {
		if t := r.tools[name]; slices.Contains(t.Intents(), intent) {
			specs = append(specs, t.Spec())
		}
	}
	return specs
}

// Prompts returns the prompts of the capabilities serving intent
func (r *Registry) Prompts(ctx context.Context, intent model.Intent) string {
	var prompts []string
	for _, name := range r.names {
		t := r.tools[name]
		if !slices.Contains(t.Intents(), intent) {
			continue
		}
		if p, ok := t.(Prompter); ok {
			if prompt := p.Prompt(ctx); prompt != "" {
				prompts = append(prompts, prompt)
			}
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Execute runs the named capability
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, goerr.Wrap(ErrToolNotFound, "unknown capability", goerr.V("name", name))
	}
	return t.Execute(ctx, args)
}
