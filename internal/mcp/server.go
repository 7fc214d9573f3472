package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/loom-ai/loom/internal/pipeline"
	"github.com/loom-ai/loom/internal/ratelimit"
	"github.com/loom-ai/loom/internal/store"
	"github.com/loom-ai/loom/internal/validation"
)

// Server wraps the MCP SDK server and exposes loom's retrieval and
// generation flows as tools.
type Server struct {
	server       *sdk.Server
	pipeline     *pipeline.Pipeline
	store        store.EntityStore
	reviewer     *validation.Reviewer
	toolLimiters ratelimit.ToolLimiters
	logger       *slog.Logger
}

// Config holds server configuration.
type Config struct {
	Name     string // Server name (e.g., "loom")
	Version  string // Server version
	Pipeline *pipeline.Pipeline
	Store    store.EntityStore
	Reviewer *validation.Reviewer
	Logger   *slog.Logger
}

// NewServer creates a new MCP server with loom tools registered.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Pipeline == nil || cfg.Store == nil {
		return nil, fmt.Errorf("mcp server requires a pipeline and a store")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		pipeline:     cfg.Pipeline,
		store:        cfg.Store,
		reviewer:     cfg.Reviewer,
		toolLimiters: ratelimit.NewToolLimiters(),
		logger:       logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.store.Close()

	return err
}

// Close releases the server's resources.
func (s *Server) Close() error {
	return s.store.Close()
}
