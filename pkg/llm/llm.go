package llm

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Client is one round trip of a tool-calling conversation. Implementations
// return either final text or a single tool invocation request.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation so far.
//
// An assistant message carries either Content or ToolCall. A tool message
// carries ToolResult answering the ToolCall with the same ID.
type Message struct {
	Role       Role
	Content    string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResult struct {
	CallID string
	Name   string
	Output map[string]any
}

// ToolSpec declares a callable capability to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

type Response struct {
	Text     string
	ToolCall *ToolCall
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

func ToolCallMessage(call *ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCall: call}
}

func ToolResultMessage(call *ToolCall, output map[string]any) Message {
	return Message{
		Role:       RoleTool,
		ToolResult: &ToolResult{CallID: call.ID, Name: call.Name, Output: output},
	}
}
