package chat

import (
	"context"
	_ "embed"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
)

// compressionRatio is the share of history bytes, oldest first, replaced by
// a summary.
const compressionRatio = 0.7

const summaryHeader = "=== Previous Conversation Summary ===\n\n"

//go:embed prompt/summarize.md
var summarizePrompt string

func messageSize(m llm.Message) int {
	return len(m.Role) + len(m.Content)
}

func historySize(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += messageSize(m)
	}
	return total
}

// splitIndex returns the number of leading messages holding the oldest
// compressionRatio of the bytes, rounded to whole user/assistant pairs.
func splitIndex(messages []llm.Message) int {
	threshold := int(float64(historySize(messages)) * compressionRatio)

	cumulative := 0
	for i, m := range messages {
		cumulative += messageSize(m)
		if cumulative >= threshold {
			idx := i + 1
			if idx%2 == 1 {
				idx++
			}
			return idx
		}
	}
	return 0
}

func (s *Session) compress(ctx context.Context, messages []llm.Message) ([]llm.Message, error) {
	idx := splitIndex(messages)
	if idx == 0 || idx >= len(messages) {
		return nil, goerr.New("insufficient history to compress", goerr.V("messages", len(messages)))
	}
	old, kept := messages[:idx], messages[idx:]

	if s.summarizer == nil {
		return append([]llm.Message(nil), kept...), nil
	}

	summary, err := summarize(ctx, s.summarizer, old)
	if err != nil {
		return nil, err
	}

	out := make([]llm.Message, 0, len(kept)+2)
	out = append(out,
		llm.UserMessage(summaryHeader+summary),
		llm.AssistantMessage("Understood."),
	)
	return append(out, kept...), nil
}

func summarize(ctx context.Context, client llm.Client, messages []llm.Message) (string, error) {
	req := &llm.Request{
		System:   "You summarize conversations about the Microsoft 365 roadmap and the customers it affects.",
		Messages: append(append([]llm.Message(nil), messages...), llm.UserMessage(summarizePrompt)),
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary")
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", goerr.New("empty summary generated")
	}
	return summary, nil
}
