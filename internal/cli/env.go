package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/typeindex/internal/config"
	"github.com/mvp-joe/typeindex/internal/mcp"
	"github.com/mvp-joe/typeindex/internal/query"
	"github.com/mvp-joe/typeindex/internal/scanner"
	"github.com/mvp-joe/typeindex/internal/source"
	"github.com/mvp-joe/typeindex/internal/storage"
)

// appEnv is what every command needs: where the project lives, its
// configuration and the logger built from it.
type appEnv struct {
	dir    string
	cfg    *config.Config
	logger *slog.Logger
}

// loadEnv resolves the project directory, loads its configuration and
// installs the configured logger as the slog default. Logs go to stderr so
// stdout stays clean for reports and the MCP stdio channel.
func loadEnv(stderr io.Writer) (*appEnv, error) {
	dir := projectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	cfg, err := config.LoadConfigFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := newLogger(stderr, level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return &appEnv{dir: dir, cfg: cfg, logger: logger}, nil
}

func (e *appEnv) indexPath() string {
	return e.cfg.ResolveIndexPath(e.dir)
}

func (e *appEnv) newScanner() (*scanner.Scanner, error) {
	return scanner.New(scanner.Options{
		Roots:   e.cfg.ResolveRoots(e.dir),
		Include: e.cfg.Source.Include,
		Ignore:  e.cfg.Source.Ignore,
		Logger:  e.logger,
	})
}

// openToolset opens the index read-only and wires the query engine and the
// source reader into a Toolset. The returned func releases everything.
func (e *appEnv) openToolset(ctx context.Context) (*mcp.Toolset, func(), error) {
	store, err := storage.OpenReadOnly(ctx, e.indexPath())
	if errors.Is(err, storage.ErrIndexNotFound) {
		return nil, nil, fmt.Errorf("no index at %s (run 'typeindex index' first): %w", e.indexPath(), err)
	}
	if err != nil {
		return nil, nil, err
	}

	sc, err := e.newScanner()
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	reader, err := source.NewReader(source.Options{
		Scanner:      sc,
		CacheSize:    e.cfg.Query.FileCacheSize,
		UsageTimeout: e.cfg.UsageTimeout(),
		Logger:       e.logger,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	closeFn := func() {
		reader.Close()
		if err := store.Close(); err != nil {
			e.logger.Warn("index.close_failed", "error", err)
		}
	}
	return mcp.NewToolset(query.NewEngine(store), reader, e.logger), closeFn, nil
}

// newLogger builds a slog logger writing to w. level is debug, info, warn
// or error; format is text or json.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (must be text or json)", format)
	}
}
