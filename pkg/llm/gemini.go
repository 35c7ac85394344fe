package llm

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"google.golang.org/genai"
)

// Gemini drives tool calling through genai function declarations.
type Gemini struct {
	client adapter.Gemini
}

func NewGemini(client adapter.Gemini) *Gemini {
	return &Gemini{client: client}
}

func (g *Gemini) Complete(ctx context.Context, req *Request) (*Response, error) {
	contents, err := toGenaiContents(req.Messages)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, "")
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			params, err := toGenaiSchema(spec.Parameters)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert tool schema", goerr.V("tool", spec.Name))
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := g.client.GenerateContent(ctx, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call gemini")
	}

	return fromGenaiResponse(resp)
}

func toGenaiContents(msgs []Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case RoleAssistant:
			if msg.ToolCall != nil {
				contents = append(contents, &genai.Content{
					Role: genai.RoleModel,
					Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
						ID:   msg.ToolCall.ID,
						Name: msg.ToolCall.Name,
						Args: msg.ToolCall.Args,
					}}},
				})
			} else {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
			}

		case RoleTool:
			if msg.ToolResult == nil {
				return nil, goerr.New("tool message without result")
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolResult.CallID,
					Name:     msg.ToolResult.Name,
					Response: msg.ToolResult.Output,
				}}},
			})

		default:
			return nil, goerr.New("unknown message role", goerr.V("role", msg.Role))
		}
	}
	return contents, nil
}

// fromGenaiResponse keeps only the first function call and the text before
// it; tool calls are executed one at a time.
func fromGenaiResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, goerr.New("no candidates in gemini response")
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			return &Response{
				Text: strings.Join(texts, ""),
				ToolCall: &ToolCall{
					ID:   id,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				},
			}, nil
		}
		if part.Text != "" && !part.Thought {
			texts = append(texts, part.Text)
		}
	}

	return &Response{Text: strings.Join(texts, "")}, nil
}
