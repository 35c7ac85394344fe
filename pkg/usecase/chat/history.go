package chat

import (
	"context"
	"encoding/json"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
)

type storedMessage struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

func historyKey(id string) string {
	return "histories/" + id + ".json"
}

func loadHistory(ctx context.Context, storage adapter.Storage, id string) ([]llm.Message, error) {
	reader, err := storage.Get(ctx, historyKey(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get history from storage", goerr.V("session_id", id))
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read history data", goerr.V("session_id", id))
	}

	var stored []storedMessage
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal history", goerr.V("session_id", id))
	}

	messages := make([]llm.Message, len(stored))
	for i, m := range stored {
		messages[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return messages, nil
}

func saveHistory(ctx context.Context, storage adapter.Storage, id string, messages []llm.Message) error {
	stored := make([]storedMessage, len(messages))
	for i, m := range messages {
		stored[i] = storedMessage{Role: m.Role, Content: m.Content}
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal history")
	}

	writer, err := storage.Put(ctx, historyKey(id), "application/json")
	if err != nil {
		return goerr.Wrap(err, "failed to create storage writer")
	}
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return goerr.Wrap(err, "failed to write history to storage")
	}
	if err := writer.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage writer")
	}
	return nil
}
