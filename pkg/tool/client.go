package tool

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
	"github.com/marioweid/evergreeen-multi-agents/pkg/usecase/roadmap"
)

// Client contains shared resources that tools can use
type Client struct {
	Roadmap   *roadmap.UseCase
	Customers *customer.UseCase
	Retrieval *retrieval.Engine
	Impact    *impact.Scorer
}

// Decode converts LLM supplied arguments into a typed input. Malformed
// arguments are reported as model.ErrInvalidArgument so that the LLM can
// correct them.
func Decode(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return goerr.Wrap(model.ErrInvalidArgument, "failed to encode arguments", goerr.V("cause", err.Error()))
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return goerr.Wrap(model.ErrInvalidArgument, "invalid arguments", goerr.V("cause", err.Error()))
	}
	return nil
}

// Encode converts a result value into the map handed back to the LLM.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode tool result")
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(err, "tool result is not an object")
	}
	return out, nil
}
