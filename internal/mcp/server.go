package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
)

// ServerInfo is reported to clients during initialization.
type ServerInfo struct {
	Name    string
	Version string
}

// Server exposes a Toolset over MCP on stdio.
type Server struct {
	toolset *Toolset
	mcp     *server.MCPServer
	logger  *slog.Logger
}

// NewServer creates a server with every tool of toolset registered.
func NewServer(info ServerInfo, toolset *Toolset, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if info.Name == "" {
		info.Name = "typeindex"
	}

	s := server.NewMCPServer(
		info.Name,
		info.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	toolset.Register(s)

	return &Server{toolset: toolset, mcp: s, logger: logger}
}

// Serve runs the MCP server on stdio and blocks until stdin closes, a
// shutdown signal arrives or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server.start", "transport", "stdio", "tools", len(s.toolset.Names()))
		errCh <- server.ServeStdio(s.mcp)
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("server.shutdown", "signal", sig.String())
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
