// Package mcp_server exposes collection, memory and summary operations as MCP tools.
package mcp_server //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"net/http"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/analysis"
	"github.com/lewisedginton/librus_mcp/internal/archive"
	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/internal/collector"
	"github.com/lewisedginton/librus_mcp/internal/memory_service"
	"github.com/lewisedginton/librus_mcp/internal/query"
	"github.com/lewisedginton/librus_mcp/internal/state_manager"
	"github.com/lewisedginton/librus_mcp/internal/task_manager"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Scraper runs one collection.
type Scraper interface {
	Run(ctx context.Context, name string, forceFull bool) (*collector.Result, error)
}

// Config holds the collaborators behind the tools.
type Config struct {
	Name    string
	Version string

	Children *children.Resolver
	Scraper  Scraper
	State    *state_manager.Manager
	Memory   *memory_service.Service
	Archive  archive.Store
	Tasks    *task_manager.Manager
	Query    *query.Service
	Analysis *analysis.Store
	Logger   logger.Logger

	// ToolTimeout bounds every tool except scrape, which uses ScrapeTimeout
	ToolTimeout   time.Duration
	ScrapeTimeout time.Duration
	// Now defaults to time.Now
	Now func() time.Time
}

// Server is the MCP tool server.
type Server struct {
	cfg    Config
	server *mcp.Server
	log    logger.Logger
	now    func() time.Time
}

// New creates the server and registers every tool.
func New(cfg Config) *Server {
	switch {
	case cfg.Children == nil:
		panic("children resolver cannot be nil")
	case cfg.Scraper == nil:
		panic("scraper cannot be nil")
	case cfg.State == nil, cfg.Memory == nil, cfg.Archive == nil, cfg.Tasks == nil, cfg.Query == nil, cfg.Analysis == nil:
		panic("stores cannot be nil")
	case cfg.Logger == nil:
		panic("logger cannot be nil")
	}
	if cfg.Name == "" {
		cfg.Name = "librus-mcp"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 30 * time.Second
	}
	if cfg.ScrapeTimeout <= 0 {
		cfg.ScrapeTimeout = 10 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		cfg:    cfg,
		server: mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		log:    cfg.Logger.WithFields(logger.StringField("component", "mcp")),
		now:    now,
	}
	s.registerTools()
	return s
}

// MCP returns the underlying server, e.g. to connect it to a custom transport.
func (s *Server) MCP() *mcp.Server {
	return s.server
}

// RunStdio serves over stdin/stdout until the client disconnects or ctx ends.
func (s *Server) RunStdio(ctx context.Context) error {
	s.log.Info("Serving MCP over stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.server }, nil)
}

// resolve maps a name or alias to the canonical child name.
func (s *Server) resolve(name string) (string, error) {
	child, err := s.cfg.Children.Lookup(name)
	if err != nil {
		return "", err
	}
	return child.Name, nil
}

// addTool registers a text tool. Handler errors become error results so the
// client sees them without the session failing.
func addTool[In any](s *Server, timeout time.Duration, tool *mcp.Tool, h func(ctx context.Context, in In) (string, error)) {
	mcp.AddTool(s.server, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		start := time.Now()
		log := s.log.WithFields(logger.ToolField(tool.Name))
		text, err := h(ctx, in)
		if err != nil {
			log.Warn("Tool call failed", logger.ErrorField(err), logger.DurationField("duration", time.Since(start)))
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{&mcp.TextContent{Text: "error: " + err.Error()}},
			}, nil, nil
		}
		log.Debug("Tool call finished", logger.DurationField("duration", time.Since(start)))
		return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil, nil
	})
}
