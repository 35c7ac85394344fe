// Package llmtest provides a scripted llm.Client for deterministic tests of
// tool-calling loops.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
)

// Step produces the response to one Complete call.
type Step func(ctx context.Context, req *llm.Request) (*llm.Response, error)

// Scripted replays Steps in order and records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []*llm.Request
}

var ErrScriptExhausted = goerr.New("llm script exhausted")

func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

func (s *Scripted) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	idx := len(s.requests)
	snapshot := *req
	snapshot.Messages = append([]llm.Message(nil), req.Messages...)
	snapshot.Tools = append([]llm.ToolSpec(nil), req.Tools...)
	s.requests = append(s.requests, &snapshot)
	s.mu.Unlock()

	if idx >= len(s.steps) {
		return nil, goerr.Wrap(ErrScriptExhausted, "no step left", goerr.V("call", idx+1))
	}
	return s.steps[idx](ctx, req)
}

// Requests returns the recorded requests in call order.
func (s *Scripted) Requests() []*llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*llm.Request(nil), s.requests...)
}

func Text(text string) Step {
	return func(context.Context, *llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: text}, nil
	}
}

func Call(name string, args map[string]any) Step {
	var n int
	return func(context.Context, *llm.Request) (*llm.Response, error) {
		n++
		return &llm.Response{ToolCall: &llm.ToolCall{
			ID:   fmt.Sprintf("call-%s-%d", name, n),
			Name: name,
			Args: args,
		}}, nil
	}
}

func Fail(err error) Step {
	return func(context.Context, *llm.Request) (*llm.Response, error) {
		return nil, err
	}
}

// Block waits until the request context is done.
func Block() Step {
	return func(ctx context.Context, _ *llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// Repeat returns n copies of step.
func Repeat(n int, step Step) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = step
	}
	return steps
}
