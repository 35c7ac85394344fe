package llm

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// OpenAI drives tool calling through the chat completions API.
type OpenAI struct {
	client adapter.OpenAI
}

func NewOpenAI(client adapter.OpenAI) *OpenAI {
	return &OpenAI{client: client}
}

func (o *OpenAI) Complete(ctx context.Context, req *Request) (*Response, error) {
	messages, err := toOpenAIMessages(req)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:       o.client.Model(),
		Messages:    messages,
		Temperature: openai.Float(0),
	}

	if len(req.Tools) > 0 {
		tools, err := toOpenAITools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
		params.ParallelToolCalls = openai.Bool(false)
	}

	resp, err := o.client.ChatCompletion(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call openai")
	}
	if len(resp.Choices) == 0 {
		return nil, goerr.New("no choices in openai response")
	}

	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, goerr.Wrap(err, "failed to decode tool call arguments", goerr.V("tool", tc.Function.Name))
			}
		}
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		return &Response{Text: msg.Content, ToolCall: &ToolCall{ID: id, Name: tc.Function.Name, Args: args}}, nil
	}

	return &Response{Text: msg.Content}, nil
}

func toOpenAIMessages(req *Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.SystemMessage(req.System))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, openai.UserMessage(msg.Content))

		case RoleAssistant:
			if msg.ToolCall == nil {
				out = append(out, openai.AssistantMessage(msg.Content))
				continue
			}
			args, err := json.Marshal(msg.ToolCall.Args)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to encode tool call arguments")
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{{
						ID:   msg.ToolCall.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      msg.ToolCall.Name,
							Arguments: string(args),
						},
					}},
				},
			})

		case RoleTool:
			if msg.ToolResult == nil {
				return nil, goerr.New("tool message without result")
			}
			body, err := json.Marshal(msg.ToolResult.Output)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to encode tool result")
			}
			out = append(out, openai.ToolMessage(string(body), msg.ToolResult.CallID))

		default:
			return nil, goerr.New("unknown message role", goerr.V("role", msg.Role))
		}
	}
	return out, nil
}

func toOpenAITools(specs []ToolSpec) ([]openai.ChatCompletionToolParam, error) {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		var params shared.FunctionParameters
		if spec.Parameters != nil {
			raw, err := json.Marshal(spec.Parameters)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to encode tool schema", goerr.V("tool", spec.Name))
			}
			if err := json.Unmarshal(raw, &params); err != nil {
				return nil, goerr.Wrap(err, "failed to decode tool schema", goerr.V("tool", spec.Name))
			}
		}

		tools = append(tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  params,
			},
		})
	}
	return tools, nil
}
