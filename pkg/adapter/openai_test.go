package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"github.com/openai/openai-go"
)

func TestOpenAI(t *testing.T) {
	apiKey := os.Getenv("TEST_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("TEST_OPENAI_API_KEY is not set")
	}

	client, err := adapter.NewOpenAI(apiKey, os.Getenv("TEST_OPENAI_BASE_URL"))
	gt.NoError(t, err)
	ctx := context.Background()

	t.Run("ChatCompletion", func(t *testing.T) {
		resp, err := client.ChatCompletion(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage("Reply with the single word: ok"),
			},
		})
		gt.NoError(t, err)
		gt.A(t, resp.Choices).Longer(0)
	})

	t.Run("Embedding", func(t *testing.T) {
		vec, err := client.Embedding(ctx, "SharePoint site templates", 768)
		gt.NoError(t, err)
		gt.A(t, vec).Length(768)
	})
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := adapter.NewOpenAI("", "")
	gt.Error(t, err)
}
