package router

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed policy/gate.rego
var defaultPolicy string

const gateQuery = "data.evergreen.gate"

// GateInput is the document the policy decides on.
type GateInput struct {
	Intent   model.Intent `json:"intent"`
	Tool     string       `json:"tool"`
	Offered  bool         `json:"offered"`
	Mutating bool         `json:"mutating"`
}

type Decision struct {
	Allow  bool
	Reason string
}

// Gate decides whether a requested capability may run. Policies are Rego
// modules defining data.evergreen.gate.allow and optionally reason.
type Gate struct {
	query *rego.PreparedEvalQuery
}

// NewGate prepares the built-in policy.
func NewGate(ctx context.Context) (*Gate, error) {
	return NewGateFromModules(ctx, map[string]string{"gate.rego": defaultPolicy})
}

// NewGateFromModules prepares a gate from Rego sources keyed by file name.
func NewGateFromModules(ctx context.Context, modules map[string]string) (*Gate, error) {
	if len(modules) == 0 {
		return nil, goerr.New("no gate policy given")
	}

	options := make([]func(*rego.Rego), 0, len(modules)+1)
	options = append(options, rego.Query(gateQuery))
	for name, src := range modules {
		options = append(options, rego.Module(name, src))
	}

	prepared, err := rego.New(options...).PrepareForEval(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to prepare gate policy", goerr.V("query", gateQuery))
	}
	return &Gate{query: &prepared}, nil
}

// LoadGate prepares a gate from all .rego files in dir.
func LoadGate(ctx context.Context, dir string) (*Gate, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.rego"))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to glob policy files")
	}
	if len(files) == 0 {
		return nil, goerr.New("no policy files found", goerr.V("dir", dir))
	}

	modules := make(map[string]string, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", file))
		}
		modules[file] = string(data)
	}
	return NewGateFromModules(ctx, modules)
}

// Check evaluates the policy. An undefined result denies.
func (g *Gate) Check(ctx context.Context, input GateInput) (*Decision, error) {
	rs, err := g.query.Eval(ctx, rego.EvalInput(map[string]any{
		"intent":   string(input.Intent),
		"tool":     input.Tool,
		"offered":  input.Offered,
		"mutating": input.Mutating,
	}))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate gate policy", goerr.V("tool", input.Tool))
	}

	d := &Decision{Reason: "denied by policy"}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return d, nil
	}
	data, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return d, nil
	}

	if allow, ok := data["allow"].(bool); ok {
		d.Allow = allow
	}
	if reason, ok := data["reason"].(string); ok && reason != "" {
		d.Reason = reason
	}
	if d.Allow {
		d.Reason = ""
	}
	return d, nil
}
