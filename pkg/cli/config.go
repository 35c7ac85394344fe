package cli

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/adapter"
	"github.com/marioweid/evergreeen-multi-agents/pkg/embedding"
	"github.com/marioweid/evergreeen-multi-agents/pkg/impact"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/repository"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/validate"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	backendMemory    = "memory"
	backendPostgres  = "postgres"
	backendFirestore = "firestore"

	providerGemini = "gemini"
	providerOpenAI = "openai"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// configFile is the optional YAML file with impact and report settings
	configFile string

	// Repository
	backend           string
	postgresDSN       string
	postgresMigrate   bool
	firestoreProject  string
	firestoreDatabase string
	dimension         int64

	// Adapters
	embeddingProvider    string
	llmProvider          string
	geminiProject        string
	geminiLocation       string
	geminiAPIKey         string
	geminiModel          string
	geminiEmbeddingModel string
	geminiTaskType       string
	openaiAPIKey         string
	openaiBaseURL        string
	openaiModel          string
	openaiEmbeddingModel string

	// Cache and locks
	redisURL          string
	embeddingCacheTTL time.Duration

	// Router
	maxToolCalls int64
	llmTimeout   time.Duration
	policyDir    string

	// Reports
	reportWindow    time.Duration
	reportWorkers   int64
	reportDir       string
	reportBucket    string
	bigqueryProject string
	bigqueryDataset string
	bigqueryTable   string
}

// fileConfig is the layout of the YAML configuration file.
type fileConfig struct {
	Impact impact.Config `yaml:"impact"`
	Report report.Config `yaml:"report"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("EVERGREEN_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("EVERGREEN_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "YAML file with impact and report settings",
			Sources:     cli.EnvVars("EVERGREEN_CONFIG"),
			Destination: &cfg.configFile,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Store backend (memory, postgres, firestore)",
			Value:       backendMemory,
			Sources:     cli.EnvVars("EVERGREEN_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string",
			Sources:     cli.EnvVars("EVERGREEN_POSTGRES_DSN", "DATABASE_URL"),
			Destination: &cfg.postgresDSN,
		},
		&cli.BoolFlag{
			Name:        "postgres-migrate",
			Usage:       "Apply the schema before connecting",
			Sources:     cli.EnvVars("EVERGREEN_POSTGRES_MIGRATE"),
			Destination: &cfg.postgresMigrate,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID of Firestore",
			Sources:     cli.EnvVars("EVERGREEN_FIRESTORE_PROJECT", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("EVERGREEN_FIRESTORE_DATABASE", "FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimension of the store",
			Value:       embedding.DefaultDimension,
			Sources:     cli.EnvVars("EVERGREEN_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Usage:       "Redis URL for the shared embedding cache and report locks",
			Sources:     cli.EnvVars("EVERGREEN_REDIS_URL"),
			Destination: &cfg.redisURL,
		},
		&cli.DurationFlag{
			Name:        "embedding-cache-ttl",
			Usage:       "Lifetime of embeddings cached in Redis",
			Value:       30 * 24 * time.Hour,
			Sources:     cli.EnvVars("EVERGREEN_EMBEDDING_CACHE_TTL"),
			Destination: &cfg.embeddingCacheTTL,
		},
	}
}

// llmFlags returns flags for LLM and embedding providers with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai); chosen from the credentials when empty",
			Sources:     cli.EnvVars("EVERGREEN_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "LLM provider (gemini, openai); chosen from the credentials when empty",
			Sources:     cli.EnvVars("EVERGREEN_LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini Developer API key, used instead of Vertex AI",
			Sources:     cli.EnvVars("GEMINI_API_KEY", "GOOGLE_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-embedding-model",
			Usage:       "Gemini embedding model",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_MODEL"),
			Destination: &cfg.geminiEmbeddingModel,
		},
		&cli.StringFlag{
			Name:        "gemini-task-type",
			Usage:       "Gemini embedding task type",
			Value:       "SEMANTIC_SIMILARITY",
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_TASK_TYPE"),
			Destination: &cfg.geminiTaskType,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of an OpenAI compatible endpoint",
			Sources:     cli.EnvVars("OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "OpenAI chat model",
			Value:       "gpt-4o-mini",
			Sources:     cli.EnvVars("OPENAI_MODEL"),
			Destination: &cfg.openaiModel,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "OpenAI embedding model",
			Value:       "text-embedding-3-small",
			Sources:     cli.EnvVars("OPENAI_EMBEDDING_MODEL"),
			Destination: &cfg.openaiEmbeddingModel,
		},
		&cli.IntFlag{
			Name:        "max-tool-calls",
			Usage:       "Maximum capability calls per turn",
			Value:       5,
			Sources:     cli.EnvVars("EVERGREEN_MAX_TOOL_CALLS"),
			Destination: &cfg.maxToolCalls,
		},
		&cli.DurationFlag{
			Name:        "llm-timeout",
			Usage:       "Timeout of one LLM call",
			Value:       60 * time.Second,
			Sources:     cli.EnvVars("EVERGREEN_LLM_TIMEOUT"),
			Destination: &cfg.llmTimeout,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of .rego files replacing the built-in capability gate",
			Sources:     cli.EnvVars("EVERGREEN_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// reportFlags returns flags for report generation with destination config
func reportFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "report-window",
			Usage:       "Length of the report window ending now",
			Value:       report.DefaultConfig().Window,
			Sources:     cli.EnvVars("EVERGREEN_REPORT_WINDOW"),
			Destination: &cfg.reportWindow,
		},
		&cli.IntFlag{
			Name:        "report-workers",
			Usage:       "Customers reported concurrently",
			Value:       int64(report.DefaultConfig().Workers),
			Sources:     cli.EnvVars("EVERGREEN_REPORT_WORKERS"),
			Destination: &cfg.reportWorkers,
		},
		&cli.StringFlag{
			Name:        "report-dir",
			Usage:       "Local directory to write reports to",
			Sources:     cli.EnvVars("EVERGREEN_REPORT_DIR"),
			Destination: &cfg.reportDir,
		},
		&cli.StringFlag{
			Name:        "report-bucket",
			Usage:       "Cloud Storage bucket to upload reports to",
			Sources:     cli.EnvVars("EVERGREEN_REPORT_BUCKET"),
			Destination: &cfg.reportBucket,
		},
		&cli.StringFlag{
			Name:        "bigquery-project",
			Usage:       "Google Cloud project of the assessment dataset",
			Sources:     cli.EnvVars("EVERGREEN_BIGQUERY_PROJECT"),
			Destination: &cfg.bigqueryProject,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset to append impact assessments to",
			Sources:     cli.EnvVars("EVERGREEN_BIGQUERY_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table of impact assessments",
			Value:       "impact_assessments",
			Sources:     cli.EnvVars("EVERGREEN_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
	}
}

// setupLogger installs the configured logger as default and in ctx.
func (cfg *config) setupLogger(ctx context.Context) context.Context {
	logger := logging.New(logging.Config{
		Level:  cfg.logLevel,
		Format: cfg.logFormat,
		Writer: os.Stderr,
	})
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// loadFile reads the YAML configuration. Missing sections keep their
// defaults.
func (cfg *config) loadFile() (*fileConfig, error) {
	fc := &fileConfig{
		Impact: impact.DefaultConfig(),
		Report: report.DefaultConfig(),
	}
	if cfg.configFile == "" {
		return fc, nil
	}

	data, err := os.ReadFile(cfg.configFile)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configFile))
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configFile))
	}
	if err := validate.Struct(fc); err != nil {
		return nil, goerr.Wrap(err, "invalid config file", goerr.V("path", cfg.configFile))
	}
	if err := fc.Impact.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid impact config", goerr.V("path", cfg.configFile))
	}
	return fc, nil
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	dim := int(cfg.dimension)
	switch strings.ToLower(cfg.backend) {
	case "", backendMemory:
		logging.From(ctx).Warn("using in-memory store, data is lost on exit")
		return repository.NewMemory(dim), nil

	case backendPostgres:
		if cfg.postgresDSN == "" {
			return nil, goerr.New("postgres-dsn is required")
		}
		repo, err := repository.NewPostgres(ctx, repository.PostgresConfig{
			DSN:     cfg.postgresDSN,
			Migrate: cfg.postgresMigrate,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	case backendFirestore:
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required")
		}
		repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase, dim)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create repository")
		}
		return repo, nil

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

func (cfg *config) newRedis(ctx context.Context) (*redis.Client, error) {
	if cfg.redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.redisURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid redis-url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis")
	}
	return client, nil
}

// provider resolves an explicit provider name, or picks one from the
// configured credentials.
func (cfg *config) provider(explicit string) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	if cfg.geminiAPIKey != "" || cfg.geminiProject != "" {
		return providerGemini
	}
	if cfg.openaiAPIKey != "" {
		return providerOpenAI
	}
	return ""
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	opts := []adapter.GeminiOption{
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.geminiEmbeddingModel),
		adapter.WithEmbeddingTaskType(cfg.geminiTaskType),
	}
	if cfg.geminiAPIKey != "" {
		return adapter.NewGeminiAPI(ctx, cfg.geminiAPIKey, opts...)
	}
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project or gemini-api-key is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
}

// newOpenAI creates a new OpenAI adapter instance
func (cfg *config) newOpenAI() (*adapter.OpenAIClient, error) {
	return adapter.NewOpenAI(cfg.openaiAPIKey, cfg.openaiBaseURL,
		adapter.WithOpenAIChatModel(cfg.openaiModel),
		adapter.WithOpenAIEmbeddingModel(cfg.openaiEmbeddingModel),
	)
}

// newEmbeddingProvider returns the configured embedding provider.
func (cfg *config) newEmbeddingProvider(ctx context.Context) (embedding.Provider, error) {
	switch p := cfg.provider(cfg.embeddingProvider); p {
	case providerGemini:
		return cfg.newGemini(ctx)
	case providerOpenAI:
		return cfg.newOpenAI()
	case "":
		return nil, goerr.New("no embedding provider configured; set gemini-project, gemini-api-key or openai-api-key")
	default:
		return nil, goerr.New("unknown embedding provider", goerr.V("provider", p))
	}
}

// newLLM returns the configured LLM client, or nil when no provider is
// configured.
func (cfg *config) newLLM(ctx context.Context) (llm.Client, error) {
	switch p := cfg.provider(cfg.llmProvider); p {
	case providerGemini:
		g, err := cfg.newGemini(ctx)
		if err != nil {
			return nil, err
		}
		return llm.NewGemini(g), nil
	case providerOpenAI:
		o, err := cfg.newOpenAI()
		if err != nil {
			return nil, err
		}
		return llm.NewOpenAI(o), nil
	case "":
		return nil, nil
	default:
		return nil, goerr.New("unknown llm provider", goerr.V("provider", p))
	}
}

// newReportSink combines every configured report destination. It returns
// nil when none is configured.
func (cfg *config) newReportSink(ctx context.Context) (report.Sink, error) {
	var sinks report.MultiSink
	if cfg.reportDir != "" {
		sinks = append(sinks, report.NewDirSink(cfg.reportDir))
	}
	if cfg.reportBucket != "" {
		storage, err := adapter.NewStorage(ctx, cfg.reportBucket)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create storage")
		}
		sinks = append(sinks, report.NewStorageSink(storage, ""))
	}
	if cfg.bigqueryDataset != "" {
		project := cfg.bigqueryProject
		if project == "" {
			project = cfg.firestoreProject
		}
		bq, err := adapter.NewBigQuery(ctx, project, cfg.bigqueryDataset)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create bigquery client")
		}
		sinks = append(sinks, report.NewBigQuerySink(bq, cfg.bigqueryTable))
	}

	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	default:
		logging.From(ctx).Debug("writing reports to several sinks", slog.Int("sinks", len(sinks)))
		return sinks, nil
	}
}
