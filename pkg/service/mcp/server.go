// Package mcp exposes Evergreen's read-only capabilities, natural language
// queries and report generation to MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marioweid/evergreeen-multi-agents/pkg/llm"
	"github.com/marioweid/evergreeen-multi-agents/pkg/model"
	"github.com/marioweid/evergreeen-multi-agents/pkg/report"
	"github.com/marioweid/evergreeen-multi-agents/pkg/tool"
	"github.com/marioweid/evergreeen-multi-agents/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Answerer is satisfied by *router.Router.
type Answerer interface {
	Handle(ctx context.Context, text string, history ...llm.Message) (*model.ConversationTurn, error)
}

type Deps struct {
	Registry *tool.Registry
	// Router backs the query tool, which is omitted when nil.
	Router Answerer
	// Reports backs the generate_report tool, which is omitted when nil.
	Reports      *report.Assembler
	ReportWindow time.Duration
	Version      string
}

type Server struct {
	deps   Deps
	server *mcp.Server
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
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := &Server{
		deps: deps,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "evergreen",
			Version: deps.Version,
		}, nil),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.addCapabilities()
	if deps.Router != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "query",
			Description: "Ask a natural language question about the Microsoft 365 roadmap or about how it affects a customer.",
		}, s.query)
	}
	if deps.Reports != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "generate_report",
			Description: "Generate the roadmap impact report of one customer for a recent time window.",
		}, s.generateReport)
	}
	return s
}

// addCapabilities registers every read-only capability of the registry.
// Mutating capabilities are reachable only through the router.
func (s *Server) addCapabilities() {
	if s.deps.Registry == nil {
		return
	}
	for _, name := range s.deps.Registry.Names() {
		t, _ := s.deps.Registry.Get(name)
		if t.Mutating() {
			continue
		}
		spec := t.Spec()
		s.server.AddTool(&mcp.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: spec.Parameters,
		}, s.capability(spec.Name))
	}
}

func (s *Server) capability(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(goerr.Wrap(model.ErrInvalidArgument, "arguments must be an object")), nil
			}
		}

		out, err := s.deps.Registry.Execute(ctx, name, args)
		if err != nil {
			logging.From(ctx).Warn("mcp capability failed", slog.String("tool", name), logging.ErrAttr(err))
			return errorResult(err), nil
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal capability output", goerr.V("tool", name))
		}
		return &mcp.CallToolResult{
			Content:           []mcp.Content{&mcp.TextContent{Text: string(data)}},
			StructuredContent: out,
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

type queryParams struct {
	Text string `json:"text" jsonschema:"the question to answer"`
}

func (s *Server) query(ctx context.Context, req *mcp.CallToolRequest, params queryParams) (*mcp.CallToolResult, any, error) {
	turn, err := s.deps.Router.Handle(ctx, params.Text)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: turn.Answer}},
	}, nil, nil
}

type reportParams struct {
	Customer string `json:"customer" jsonschema:"exact customer name"`
	Window   string `json:"window,omitempty" jsonschema:"window length as a Go duration such as 168h; defaults to the configured window"`
}

func (s *Server) generateReport(ctx context.Context, req *mcp.CallToolRequest, params reportParams) (*mcp.CallToolResult, any, error) {
	length := s.deps.ReportWindow
	if w := strings.TrimSpace(params.Window); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d <= 0 {
			return nil, nil, goerr.Wrap(model.ErrInvalidArgument, "invalid window", goerr.V("window", params.Window))
		}
		length = d
	}

	r, err := s.deps.Reports.Generate(ctx, params.Customer, report.WindowEnding(s.now(), length))
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: r.Body}},
	}, nil, nil
}

// Run serves MCP on stdin and stdout until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server failed")
	}
	return nil
}

// Connect serves one session over t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, t, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect mcp session")
	}
	return session, nil
}
