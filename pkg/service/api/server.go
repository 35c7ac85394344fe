// Package api is the HTTP front door of Evergreen.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/retrieval"
	customeruc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/customer"
	roadmapuc "github.com/marioweid/evergreeen-multi-agents/pkg/usecase/roadmap"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Answerer is satisfied by *router.Router.
type Answerer interface {
	Handle(ctx context.Context, text string, history ...llm.Message) (*model.ConversationTurn, error)
}

type Deps struct {
	Roadmap   *roadmapuc.UseCase
	Customers *customeruc.UseCase
	Retrieval *retrieval.Engine
	// Router answers natural language queries. Without it POST /query only
	// supports mode "search".
	Router  Answerer
	Reports *report.Assembler
	// ReportWindow is the window length used when a report request names
	// none.
	ReportWindow time.Duration
}

type Server struct {
	deps   Deps
	engine *gin.Engine
	now    func() time.Time
}

type Option func(*Server)

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(deps Deps, opts ...Option) *Server {
	if deps.ReportWindow <= 0 {
		deps.ReportWindow = report.DefaultConfig().Window
	}
	s := &Server{deps: deps, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	s.routes(engine)
	s.engine = engine
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/stats", s.stats)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/query", s.query)

	customers := r.Group("/customers")
	customers.GET("", s.listCustomers)
	customers.POST("", s.createCustomer)
	customers.GET("/:name", s.getCustomer)
	customers.PATCH("/:name", s.updateCustomer)
	customers.DELETE("/:name", s.deleteCustomer)

	r.POST("/reports", s.generateReports)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// router turns may take several LLM round trips
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.From(ctx).Info("http server starting", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- goerr.Wrap(err, "http server failed", goerr.V("addr", addr))
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.From(ctx).Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down http server")
	}
	return <-errCh
}

// requestLogger tags the request context with a request ID and logs every
// request once it is served.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		ctx := logging.Attach(c.Request.Context(), "request_id", requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		logging.From(ctx).Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(started)),
		)
	}
}
