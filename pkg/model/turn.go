package model

import "github.com/google/uuid"

type Intent string

const (
	IntentRoadmapQA          Intent = "roadmap_qa"
	IntentCustomerManagement Intent = "customer_management"
	IntentImpactAnalysis     Intent = "impact_analysis"
	IntentUnclassified       Intent = "unclassified"
)

// Intents lists the routable intents in catalogue order.
var Intents = []Intent{IntentRoadmapQA, IntentCustomerManagement, IntentImpactAnalysis, IntentUnclassified}

func ParseIntent(s string) Intent {
	for _, i := range Intents {
		if string(i) == s {
			return i
		}
	}
	return IntentUnclassified
}

type TurnState string

const (
	StateReceived          TurnState = "received"
	StateClassified        TurnState = "classified"
	StateRetrieving        TurnState = "retrieving"
	StateMutatingCustomer  TurnState = "mutating_customer"
	StateAssessing         TurnState = "assessing"
	StateToolResultPending TurnState = "tool_result_pending"
	StateAnswered          TurnState = "answered"
	StateFailed            TurnState = "failed"
)

// WorkingState is the state a classified turn enters while serving intent.
func (i Intent) WorkingState() TurnState {
	switch i {
	case IntentRoadmapQA:
		return StateRetrieving
	case IntentCustomerManagement:
		return StateMutatingCustomer
	case IntentImpactAnalysis:
		return StateAssessing
	default:
		return StateClassified
	}
}

type TurnID string

func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// ToolCall records one capability invocation within a turn.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
	Denied bool           `json:"denied,omitempty"`
}

type ConversationTurn struct {
	ID        TurnID      `json:"id"`
	Request   string      `json:"request"`
	Intent    Intent      `json:"intent"`
	States    []TurnState `json:"states"`
	ToolCalls []*ToolCall `json:"tool_calls"`
	Answer    string      `json:"answer"`
	Truncated bool        `json:"truncated"`
}

func (t *ConversationTurn) Enter(s TurnState) {
	t.States = append(t.States, s)
}

// State returns the latest state of the turn.
func (t *ConversationTurn) State() TurnState {
	if len(t.States) == 0 {
		return ""
	}
	return t.States[len(t.States)-1]
}
