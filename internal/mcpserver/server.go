package mcpserver

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/polyglotvid/lingoctl/internal/api"
)

// Config holds server configuration.
type Config struct {
	Port       int
	BackendURL string
	Timeout    time.Duration
	MaxRuns    int
	LogDir     string
}

// DefaultConfig returns a Config populated from environment variables.
func DefaultConfig() Config {
	return Config{
		Port:       envIntOr("LINGOCTL_MCP_PORT", 8000),
		BackendURL: envOr("LINGOCTL_BACKEND_URL", "http://127.0.0.1:5000"),
		Timeout:    30 * time.Second,
		MaxRuns:    2,
		LogDir:     envOr("LINGOCTL_LOG_DIR", ""),
	}
}

// Server exposes the control panel operations as MCP tools.
type Server struct {
	cfg      Config
	mcp      *server.MCPServer
	handlers *Handlers
	log      *slog.Logger
}

// New creates and configures the MCP server.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}

	client := api.NewClient(cfg.BackendURL, cfg.Timeout)
	runs := NewRunManager(client, cfg.MaxRuns, cfg.LogDir, logger)
	handlers := NewHandlers(runs, client, logger)

	mcpServer := server.NewMCPServer(
		"lingoctl",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	tools := ToolDefs()
	mcpServer.AddTool(tools[0], handlers.HandleGenerateVideo)
	mcpServer.AddTool(tools[1], handlers.HandleGetRun)
	mcpServer.AddTool(tools[2], handlers.HandleListOutputs)
	mcpServer.AddTool(tools[3], handlers.HandleClearCache)

	return &Server{
		cfg:      cfg,
		mcp:      mcpServer,
		handlers: handlers,
		log:      logger,
	}, nil
}

// Start runs the streamable HTTP MCP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("Starting MCP server", "addr", addr, "backend", s.cfg.BackendURL)

	httpServer := server.NewStreamableHTTPServer(s.mcp,
		server.WithStateLess(true),
	)
	return httpServer.Start(addr)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
