package roadmap

import (
	"net/http"
	"time"

	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
)

// DefaultSourceURL is the public Microsoft 365 roadmap export.
const DefaultSourceURL = "https://www.microsoft.com/releasecommunications/api/v1/m365"

// UseCase provides roadmap ingestion and read operations.
type UseCase struct {
	repo        repository.Repository
	embedder    retrieval.Embedder
	dimension   int
	concurrency int
	httpClient  *http.Client
}

type Option func(*UseCase)

// WithConcurrency bounds the number of items embedded at the same time.
func WithConcurrency(n int) Option {
	return func(u *UseCase) {
		if n > 0 {
			u.concurrency = n
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(u *UseCase) {
		u.httpClient = c
	}
}

// New creates the use case. dimension is the embedding size produced by
// embedder.
func New(repo repository.Repository, embedder retrieval.Embedder, dimension int, opts ...Option) *UseCase {
	u := &UseCase{
		repo:        repo,
		embedder:    embedder,
		dimension:   dimension,
		concurrency: 4,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}
