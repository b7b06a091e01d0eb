package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/typeindex/internal/indexer"
	"github.com/mvp-joe/typeindex/internal/storage"
)

// indexOptions are the index command's flag values.
type indexOptions struct {
	force   bool
	quiet   bool
	roots   []string
	dbPath  string
	workers int
}

var indexOpts indexOptions

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the structural index",
	Long: `Index scans the configured source roots for C# files, extracts namespaces,
types, methods, properties and base lists, and writes them to the SQLite index.

An index that already holds a completed build is left alone unless --force is
given. Files that cannot be read are reported and skipped; a missing source
root aborts the build.

Examples:
  # Index the current directory
  typeindex index

  # Index two trees into a custom location
  typeindex index --root ./Game --root ./Mods --db /tmp/game.db

  # Rebuild without progress output
  typeindex index --force --quiet
`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&indexOpts.force, "force", "f", false, "Rebuild even if the index already holds a build")
	indexCmd.Flags().BoolVarP(&indexOpts.quiet, "quiet", "q", false, "Disable progress output")
	indexCmd.Flags().StringArrayVar(&indexOpts.roots, "root", nil, "Source root to scan (repeatable; overrides source.roots)")
	indexCmd.Flags().StringVar(&indexOpts.dbPath, "db", "", "Index file (overrides index.path)")
	indexCmd.Flags().IntVar(&indexOpts.workers, "workers", 0, "Parallel parse workers (overrides index.workers)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := loadEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	stats, err := executeIndex(ctx, env, indexOpts, cmd.OutOrStdout())
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("indexing cancelled")
		}
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case stats.Skipped:
		fmt.Fprintf(out, "Index at %s is already built; use --force to rebuild\n", env.indexPath())
	case indexOpts.quiet:
		fmt.Fprintf(out, "Indexing complete: %d files, %d types in %.2fs\n", stats.FilesParsed, stats.Types, stats.Duration.Seconds())
	}
	return nil
}

// executeIndex applies flag overrides to env's configuration and runs one build.
func executeIndex(ctx context.Context, env *appEnv, opts indexOptions, out io.Writer) (*indexer.Stats, error) {
	if len(opts.roots) > 0 {
		env.cfg.Source.Roots = opts.roots
	}
	if opts.dbPath != "" {
		env.cfg.Index.Path = opts.dbPath
	}
	if opts.workers > 0 {
		env.cfg.Index.Workers = opts.workers
	}

	sc, err := env.newScanner()
	if err != nil {
		return nil, err
	}
	// Fail before creating an index file for a tree that is not there.
	if err := sc.CheckRoots(); err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, env.indexPath())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	b := indexer.New(store, sc, nil, indexer.Config{
		BatchSize: env.cfg.Index.BatchSize,
		Workers:   env.cfg.Index.Workers,
	}, NewCLIProgressReporter(out, opts.quiet), env.logger)

	stats, err := b.Build(ctx, indexer.Options{Force: opts.force})
	if err != nil {
		return nil, fmt.Errorf("indexing failed: %w", err)
	}
	return stats, nil
}
