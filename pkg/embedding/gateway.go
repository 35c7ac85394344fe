package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/metrics"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"golang.org/x/sync/singleflight"
)

// DefaultDimension matches the vector(768) column of the roadmap store.
const DefaultDimension = 768

// Provider is the external embedding capability. adapter.GeminiClient and
// adapter.OpenAIClient satisfy it.
type Provider interface {
	Embedding(ctx context.Context, text string, dimensionality int) ([]float32, error)
}

// Gateway turns text into vectors of a fixed dimension. Identical text is
// served from the cache and concurrent requests for it share one provider
// call.
type Gateway struct {
	provider  Provider
	dimension int
	timeout   time.Duration
	cache     Cache
	group     singleflight.Group
}

type Option func(*Gateway)

func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithCache replaces the default in-memory cache. A nil cache disables
// caching.
func WithCache(c Cache) Option {
	return func(g *Gateway) {
		g.cache = c
	}
}

func New(provider Provider, dimension int, opts ...Option) (*Gateway, error) {
	if provider == nil {
		return nil, goerr.New("embedding provider is required")
	}
	if dimension <= 0 {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "dimension must be positive", goerr.V("dimension", dimension))
	}

	g := &Gateway{
		provider:  provider,
		dimension: dimension,
		timeout:   15 * time.Second,
		cache:     NewMemoryCache(10000),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Gateway) Dimension() int {
	return g.dimension
}

// CheckDimension fails when the store was created for vectors of another
// size. It is meant to be called once at startup.
func (g *Gateway) CheckDimension(storeDimension int) error {
	if storeDimension != g.dimension {
		return goerr.Wrap(model.ErrDimensionMismatch, "embedding and store dimensions differ",
			goerr.V("embedding", g.dimension), goerr.V("store", storeDimension))
	}
	return nil
}

// Embed returns the embedding of text. Provider failures, timeouts and
// malformed vectors are reported as model.ErrEmbeddingUnavailable. When ctx
// ends first its error is returned as is, and other callers waiting on the
// same text are unaffected.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(model.ErrInvalidArgument, "text to embed is empty")
	}

	key := g.cacheKey(text)
	if vec, ok := g.lookup(ctx, key); ok {
		return vec, nil
	}

	// The shared call must outlive any single caller, so it runs detached
	// from ctx and is bounded by the gateway timeout alone.
	shared := context.WithoutCancel(ctx)
	ch := g.group.DoChan(key, func() (any, error) {
		vec, err := g.fetch(shared, text)
		if err != nil {
			return nil, err
		}
		g.store(shared, key, vec)
		return vec, nil
	})

	select {
	case <-ctx.Done():
		return nil, goerr.Wrap(ctx.Err(), "embedding request cancelled")
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return slices.Clone(r.Val.([]float32)), nil
	}
}

func (g *Gateway) fetch(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	vec, err := g.provider.Embedding(callCtx, text, g.dimension)
	metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedding provider timed out",
				goerr.V("timeout", g.timeout.String()))
		}
		return nil, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedding provider failed",
			goerr.V("cause", err.Error()))
	}

	if err := g.validate(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (g *Gateway) validate(vec []float32) error {
	if len(vec) != g.dimension {
		return goerr.Wrap(model.ErrEmbeddingUnavailable, "provider returned vector of unexpected length",
			goerr.V("expected", g.dimension), goerr.V("actual", len(vec)))
	}

	var norm float64
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return goerr.Wrap(model.ErrEmbeddingUnavailable, "provider returned non-finite value")
		}
		norm += f * f
	}
	if norm == 0 {
		return goerr.Wrap(model.ErrEmbeddingUnavailable, "provider returned zero vector")
	}
	return nil
}

func (g *Gateway) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return strconv.Itoa(g.dimension) + ":" + hex.EncodeToString(sum[:])
}

func (g *Gateway) lookup(ctx context.Context, key string) ([]float32, bool) {
	if g.cache == nil {
		return nil, false
	}

	vec, ok, err := g.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.EmbeddingCache.WithLabelValues("error").Inc()
		logging.From(ctx).Warn("embedding cache lookup failed", logging.ErrAttr(err))
		return nil, false
	case !ok || len(vec) != g.dimension:
		metrics.EmbeddingCache.WithLabelValues("miss").Inc()
		return nil, false
	}

	metrics.EmbeddingCache.WithLabelValues("hit").Inc()
	return vec, true
}

func (g *Gateway) store(ctx context.Context, key string, vec []float32) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, vec); err != nil {
		logging.From(ctx).Warn("embedding cache store failed", logging.ErrAttr(err))
	}
}
