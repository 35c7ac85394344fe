package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI is the subset of the OpenAI client used for tool calling and
// embeddings.
type OpenAI interface {
	ChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
	Embedding(ctx context.Context, text string, dimensionality int) ([]float32, error)
	Model() string
}

type OpenAIClient struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIChatModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.chatModel = model
	}
}

func WithOpenAIEmbeddingModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.embeddingModel = model
	}
}

// NewOpenAI creates a client for the OpenAI API or a compatible endpoint
// when baseURL is set.
func NewOpenAI(apiKey, baseURL string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("openai api key is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	c := &OpenAIClient{
		client:         openai.NewClient(reqOpts...),
		chatModel:      "gpt-4o-mini",
		embeddingModel: "text-embedding-3-small",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *OpenAIClient) Model() string {
	return c.chatModel
}

// ChatCompletion fills in the configured model when params.Model is empty.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	if params.Model == "" {
		params.Model = c.chatModel
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create chat completion", goerr.V("model", params.Model))
	}
	return resp, nil
}

func (c *OpenAIClient) Embedding(ctx context.Context, text string, dimensionality int) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	}
	if dimensionality > 0 {
		params.Dimensions = openai.Int(int64(dimensionality))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding", goerr.V("model", c.embeddingModel))
	}
	if len(resp.Data) == 0 {
		return nil, goerr.New("empty embedding response", goerr.V("model", c.embeddingModel))
	}

	values := resp.Data[0].Embedding
	vec := make([]float32, len(values))
	for i, v := range values {
		vec[i] = float32(v)
	}
	return vec, nil
}
