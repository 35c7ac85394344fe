package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/embedding"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	"github.com/marioweid/evergreeen-multi-agents/pkg/router"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool/catalog"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
	roadmapuc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/roadmap"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/redis/go-redis/v9"
)

// app is the wired set of components a command works with.
type app struct {
	file *fileConfig
	repo repository.Repository
	rdb  *redis.Client

	gateway   *embedding.Gateway
	roadmap   *roadmapuc.UseCase
	customers *customeruc.UseCase
	retrieval *retrieval.Engine
	scorer    *impact.Scorer
	registry  *tool.Registry
	reports   *report.Assembler

	llm    llm.Client
	router *router.Router
}

type requirement int

const (
	// needStore wires the repository and customer use case only.
	needStore requirement = iota
	// needEmbedding adds retrieval, impact scoring and reports.
	needEmbedding
	// needRouter adds the router if an LLM is configured.
	needRouter
	// needLLM fails when no LLM is configured.
	needLLM
)

func (cfg *config) build(ctx context.Context, need requirement) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close(ctx)
		}
	}()

	file, err := cfg.loadFile()
	if err != nil {
		return nil, err
	}
	a.file = file

	if a.repo, err = cfg.newRepository(ctx); err != nil {
		return nil, err
	}
	a.customers = customeruc.New(a.repo)
	if need == needStore {
		ok = true
		return a, nil
	}

	if a.rdb, err = cfg.newRedis(ctx); err != nil {
		return nil, err
	}

	provider, err := cfg.newEmbeddingProvider(ctx)
	if err != nil {
		return nil, err
	}
	opts := []embedding.Option{}
	if a.rdb != nil {
		opts = append(opts, embedding.WithCache(embedding.NewRedisCache(a.rdb, cfg.embeddingCacheTTL)))
	}
	if a.gateway, err = embedding.New(provider, int(cfg.dimension), opts...); err != nil {
		return nil, err
	}
	if err := a.gateway.CheckDimension(a.repo.Dimension()); err != nil {
		return nil, err
	}

	a.roadmap = roadmapuc.New(a.repo, a.gateway, a.gateway.Dimension())
	a.retrieval = retrieval.New(a.gateway, a.repo)
	if a.scorer, err = impact.New(file.Impact, a.retrieval); err != nil {
		return nil, goerr.Wrap(err, "invalid impact config")
	}
	a.registry = catalog.New(&tool.Client{
		Roadmap:   a.roadmap,
		Customers: a.customers,
		Retrieval: a.retrieval,
		Impact:    a.scorer,
	})

	if a.reports, err = cfg.newAssembler(ctx, a); err != nil {
		return nil, err
	}

	if need >= needRouter {
		if a.llm, err = cfg.newLLM(ctx); err != nil {
			return nil, err
		}
		switch {
		case a.llm != nil:
			if a.router, err = cfg.newRouter(ctx, a.llm, a.registry); err != nil {
				return nil, err
			}
		case need == needLLM:
			return nil, goerr.New("no LLM configured; set gemini-project, gemini-api-key or openai-api-key")
		default:
			logging.From(ctx).Warn("no LLM configured, natural language queries are disabled")
		}
	}

	ok = true
	return a, nil
}

func (cfg *config) newRouter(ctx context.Context, client llm.Client, registry *tool.Registry) (*router.Router, error) {
	opts := []router.Option{
		router.WithMaxToolCalls(int(cfg.maxToolCalls)),
		router.WithLLMTimeout(cfg.llmTimeout),
	}
	if cfg.policyDir != "" {
		gate, err := router.LoadGate(ctx, cfg.policyDir)
		if err != nil {
			return nil, err
		}
		opts = append(opts, router.WithGate(gate))
	}
	return router.New(ctx, client, registry, opts...)
}

func (cfg *config) newAssembler(ctx context.Context, a *app) (*report.Assembler, error) {
	rc := a.file.Report
	opts := []report.Option{
		report.WithWorkers(int(cfg.reportWorkers)),
		report.WithOtherLimit(rc.OtherLimit),
	}

	sink, err := cfg.newReportSink(ctx)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		opts = append(opts, report.WithSink(sink))
	}
	if a.rdb != nil {
		opts = append(opts, report.WithLocker(report.NewRedisLocker(a.rdb, rc.LockTTL)))
	}
	return report.New(a.repo, a.scorer, opts...), nil
}

func (a *app) Close(ctx context.Context) {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			logging.From(ctx).Warn("failed to close redis", logging.ErrAttr(err))
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			logging.From(ctx).Warn("failed to close repository", logging.ErrAttr(err))
		}
	}
	logging.From(ctx).Debug("closed application", slog.Bool("router", a.router != nil))
}
