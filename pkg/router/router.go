package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/metrics"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
)

// ClassifyToolName is the function the LLM calls to report the intent.
const ClassifyToolName = "route_request"

const (
	// DefaultMaxToolCalls is the number of tool calls a turn may make before
	// it is truncated.
	DefaultMaxToolCalls = 5
	// DefaultLLMTimeout bounds each LLM round trip.
	DefaultLLMTimeout = 60 * time.Second

	// FallbackAnswer is returned when a request matches no intent.
	FallbackAnswer = "I can help with questions about the Microsoft 365 roadmap and with your customers and how roadmap changes affect them. Could you rephrase your request?"
)

// Router classifies a request and drives a bounded, gated tool-calling loop
// for it.
type Router struct {
	client   llm.Client
	registry *tool.Registry
	gate     *Gate

	maxToolCalls  int
	llmTimeout    time.Duration
	retryAttempts int
	retryBackoff  time.Duration
}

type Option func(*Router)

func WithMaxToolCalls(n int) Option {
	return func(r *Router) {
		r.maxToolCalls = n
	}
}

func WithLLMTimeout(d time.Duration) Option {
	return func(r *Router) {
		r.llmTimeout = d
	}
}

// WithRetry sets how often a read-only capability is attempted on transient
// errors and the initial backoff, which doubles after each attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(r *Router) {
		r.retryAttempts = attempts
		r.retryBackoff = backoff
	}
}

// WithGate replaces the built-in policy gate.
func WithGate(g *Gate) Option {
	return func(r *Router) {
		r.gate = g
	}
}

func New(ctx context.Context, client llm.Client, registry *tool.Registry, opts ...Option) (*Router, error) {
	r := &Router{
		client:        client,
		registry:      registry,
		maxToolCalls:  DefaultMaxToolCalls,
		llmTimeout:    DefaultLLMTimeout,
		retryAttempts: 3,
		retryBackoff:  100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.maxToolCalls < 1 {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "max tool calls must be positive", goerr.V("max", r.maxToolCalls))
	}
	if r.retryAttempts < 1 {
		r.retryAttempts = 1
	}
	if r.gate == nil {
		gate, err := NewGate(ctx)
		if err != nil {
			return nil, err
		}
		r.gate = gate
	}
	return r, nil
}

func classifySpec() llm.ToolSpec {
	intents := make([]string, 0, len(model.Intents))
	for _, i := range model.Intents {
		intents = append(intents, string(i))
	}
	return llm.ToolSpec{
		Name:        ClassifyToolName,
		Description: "Report the intent of the latest user message.",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"intent": tool.String("Intent of the request", intents...),
		}, "intent"),
	}
}

// Handle runs one conversation turn for text. history holds earlier user
// and assistant messages of the same conversation.
//
// A request that cannot be classified is answered politely and is not an
// error. The returned turn is never nil, also on error.
func (r *Router) Handle(ctx context.Context, text string, history ...llm.Message) (*model.ConversationTurn, error) {
	started := time.Now()
	turn := &model.ConversationTurn{
		ID:      model.NewTurnID(),
		Request: text,
		Intent:  model.IntentUnclassified,
	}
	turn.Enter(model.StateReceived)

	ctx = logging.With(ctx, logging.From(ctx).With(slog.String("turn_id", string(turn.ID))))
	logger := logging.From(ctx)

	finish := func(outcome string, err error) (*model.ConversationTurn, error) {
		if err != nil {
			turn.Enter(model.StateFailed)
			logger.Warn("turn failed", slog.String("intent", string(turn.Intent)), logging.ErrAttr(err))
		} else {
			turn.Enter(model.StateAnswered)
		}
		metrics.RouterTurns.WithLabelValues(string(turn.Intent), outcome).Inc()
		metrics.RouterTurnDuration.WithLabelValues(string(turn.Intent)).Observe(time.Since(started).Seconds())
		logger.Debug("turn finished",
			slog.String("intent", string(turn.Intent)),
			slog.String("outcome", outcome),
			slog.Int("tool_calls", len(turn.ToolCalls)),
			slog.Any("states", turn.States),
		)
		return turn, err
	}

	if strings.TrimSpace(text) == "" {
		return finish(metrics.OutcomeFailure, goerr.Wrap(model.ErrInvalidArgument, "request is empty"))
	}

	messages := make([]llm.Message, 0, len(history)+1+2*r.maxToolCalls)
	messages = append(messages, history...)
	messages = append(messages, llm.UserMessage(text))

	intent, err := r.classify(ctx, messages)
	if err != nil {
		return finish(metrics.OutcomeFailure, err)
	}
	turn.Intent = intent
	turn.Enter(model.StateClassified)
	logger.Debug("classified request", slog.String("intent", string(intent)))

	if intent == model.IntentUnclassified {
		turn.Answer = FallbackAnswer
		return finish(metrics.OutcomeFallback, nil)
	}
	turn.Enter(intent.WorkingState())

	system, err := renderDispatchPrompt(intent, r.registry.Prompts(ctx, intent), r.maxToolCalls)
	if err != nil {
		return finish(metrics.OutcomeFailure, err)
	}
	specs := r.registry.Specs(intent)

	var partial string
	for {
		if err := ctx.Err(); err != nil {
			return finish(metrics.OutcomeFailure, goerr.Wrap(err, "turn canceled"))
		}

		resp, err := r.complete(ctx, &llm.Request{
			System:   system,
			Messages: messages,
			Tools:    specs,
		})
		if err != nil {
			return finish(metrics.OutcomeFailure, err)
		}
		if t := strings.TrimSpace(resp.Text); t != "" {
			partial = t
		}

		if resp.ToolCall == nil {
			turn.Answer = resp.Text
			return finish(metrics.OutcomeSuccess, nil)
		}

		if len(turn.ToolCalls) >= r.maxToolCalls {
			turn.Truncated = true
			turn.Answer = truncatedAnswer(partial, r.maxToolCalls)
			logger.Warn("tool call limit reached",
				slog.Int("max", r.maxToolCalls),
				slog.String("requested", resp.ToolCall.Name),
				logging.ErrAttr(goerr.Wrap(model.ErrToolCallLimitExceeded, "turn truncated")),
			)
			return finish(metrics.OutcomeTruncated, nil)
		}

		if err := ctx.Err(); err != nil {
			return finish(metrics.OutcomeFailure, goerr.Wrap(err, "turn canceled"))
		}

		call := resp.ToolCall
		record := &model.ToolCall{ID: call.ID, Name: call.Name, Args: call.Args}
		turn.ToolCalls = append(turn.ToolCalls, record)

		output := r.dispatch(ctx, intent, call, record)
		messages = append(messages, llm.ToolCallMessage(call), llm.ToolResultMessage(call, output))
		turn.Enter(model.StateToolResultPending)
	}
}

func (r *Router) classify(ctx context.Context, messages []llm.Message) (model.Intent, error) {
	system, err := renderClassifyPrompt()
	if err != nil {
		return "", err
	}

	resp, err := r.complete(ctx, &llm.Request{
		System:   system,
		Messages: messages,
		Tools:    []llm.ToolSpec{classifySpec()},
	})
	if err != nil {
		return "", err
	}

	if resp.ToolCall == nil || resp.ToolCall.Name != ClassifyToolName {
		return model.IntentUnclassified, nil
	}
	s, _ := resp.ToolCall.Args["intent"].(string)
	return model.ParseIntent(s), nil
}

// complete calls the LLM with a timeout. Failures other than cancellation
// of ctx become model.ErrLLMUnavailable.
func (r *Router) complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	cctx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()

	resp, err := r.client.Complete(cctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "turn canceled")
		}
		return nil, goerr.Wrap(model.ErrLLMUnavailable, "llm call failed",
			goerr.V("cause", err.Error()), goerr.V("timeout", r.llmTimeout.String()))
	}
	if resp == nil {
		return nil, goerr.Wrap(model.ErrLLMUnavailable, "llm returned no response")
	}
	return resp, nil
}

// dispatch gates and executes one capability call and returns the output
// handed back to the LLM. Denials and errors are reported as {"error": ...}.
func (r *Router) dispatch(ctx context.Context, intent model.Intent, call *llm.ToolCall, record *model.ToolCall) map[string]any {
	logger := logging.From(ctx).With(slog.String("tool", call.Name), slog.String("call_id", call.ID))

	t, known := r.registry.Get(call.Name)
	mutating := known && t.Mutating()
	offered := known && r.registry.Serves(call.Name, intent)

	deny := func(reason string) map[string]any {
		record.Denied = true
		record.Error = reason
		metrics.RouterToolCalls.WithLabelValues(call.Name, metrics.OutcomeDenied).Inc()
		logger.Warn("capability denied", slog.String("intent", string(intent)), slog.String("reason", reason))
		return map[string]any{"error": reason}
	}

	decision, err := r.gate.Check(ctx, GateInput{
		Intent:   intent,
		Tool:     call.Name,
		Offered:  offered,
		Mutating: mutating,
	})
	switch {
	case err != nil:
		logger.Error("gate evaluation failed", logging.ErrAttr(err))
		return deny("policy evaluation failed")
	case !known:
		return deny(fmt.Sprintf("unknown capability %q", call.Name))
	case mutating && intent != model.IntentCustomerManagement:
		return deny("changing customer data requires a customer management request")
	case !decision.Allow:
		return deny(decision.Reason)
	}

	logger.Debug("executing capability", slog.Any("args", call.Args))
	out, err := r.execute(ctx, t, call.Args)
	if err != nil {
		record.Error = err.Error()
		metrics.RouterToolCalls.WithLabelValues(call.Name, metrics.OutcomeFailure).Inc()
		logger.Warn("capability failed", logging.ErrAttr(err))
		return map[string]any{"error": record.Error}
	}

	record.Result = out
	metrics.RouterToolCalls.WithLabelValues(call.Name, metrics.OutcomeSuccess).Inc()
	return out
}

// execute runs t, retrying read-only capabilities on transient errors with
// exponential backoff. Mutating capabilities run exactly once.
func (r *Router) execute(ctx context.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
	attempts := r.retryAttempts
	if t.Mutating() {
		attempts = 1
	}

	backoff := r.retryBackoff
	for attempt := 1; ; attempt++ {
		out, err := t.Execute(ctx, args)
		if err == nil {
			return out, nil
		}
		if attempt >= attempts || !model.IsTransient(err) {
			return nil, err
		}

		logging.From(ctx).Debug("retrying capability",
			slog.Int("attempt", attempt), slog.Duration("backoff", backoff), logging.ErrAttr(err))
		select {
		case <-ctx.Done():
			return nil, errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func truncatedAnswer(partial string, limit int) string {
	notice := fmt.Sprintf("_Stopped after %d capability calls; this answer may be incomplete. Ask a narrower question to continue._", limit)
	if partial == "" {
		return notice
	}
	return partial + "\n\n" + notice
}
