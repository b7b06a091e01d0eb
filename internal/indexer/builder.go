package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mvp-joe/typeindex/internal/parser"
	"github.com/mvp-joe/typeindex/internal/scanner"
	"github.com/mvp-joe/typeindex/internal/storage"
)

const (
	defaultBatchSize = 100
	defaultWorkers   = 4
)

// Config tunes a build.
type Config struct {
	BatchSize int // files per write transaction
	Workers   int // concurrent parsers
}

// Options controls a single Build call.
type Options struct {
	// Force rebuilds an index that already holds a completed build.
	Force bool
}

// FileFailure is a file that could not be read, parsed or written.
type FileFailure struct {
	Path string
	Err  error
}

// Stats describes a finished build. Entity counts cover only files whose
// rows were committed.
type Stats struct {
	BuildID      string
	Skipped      bool // index already populated and Force not set
	FilesScanned int
	FilesParsed  int
	FilesFailed  int
	Failures     []FileFailure
	Namespaces   int
	Types        int
	Methods      int
	Properties   int
	TypesPruned  int // types removed because their declaration is gone
	Duration     time.Duration
}

// Builder runs full builds: enumerate, parse in parallel, write serially.
type Builder struct {
	store    *storage.Store
	writer   *storage.Writer
	scanner  *scanner.Scanner
	parser   parser.Parser
	cfg      Config
	progress ProgressReporter
	logger   *slog.Logger
}

// New creates a Builder. A nil progress reporter or logger falls back to
// NoOpProgressReporter and slog.Default().
func New(store *storage.Store, sc *scanner.Scanner, p parser.Parser, cfg Config, progress ProgressReporter, logger *slog.Logger) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = parser.NewLineParser()
	}
	return &Builder{
		store:    store,
		writer:   storage.NewWriter(store, logger),
		scanner:  sc,
		parser:   p,
		cfg:      cfg,
		progress: progress,
		logger:   logger,
	}
}

// parseResult is the output of one parse worker.
type parseResult struct {
	path string
	file *parser.FileStructure
	err  error
}

// Build indexes every file the scanner yields. A missing source root aborts
// the build with scanner.ErrRootNotFound; per-file problems are collected in
// Stats.Failures and never abort it.
func (b *Builder) Build(ctx context.Context, opts Options) (*Stats, error) {
	start := time.Now()

	if !opts.Force {
		populated, err := b.store.Populated(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check index state: %w", err)
		}
		if populated {
			b.logger.Info("index.skipped", "reason", "index already built, use force to rebuild")
			return &Stats{Skipped: true}, nil
		}
	}

	stats := &Stats{BuildID: uuid.NewString()}
	b.logger.Info("index.start", "build_id", stats.BuildID, "roots", b.scanner.Roots())

	b.progress.OnScanStart()
	files, err := b.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan sources: %w", err)
	}
	stats.FilesScanned = len(files)
	b.progress.OnScanComplete(len(files))
	b.logger.Info("index.scan_complete", "files", len(files))

	if err := b.parseAndWrite(ctx, files, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	if err := b.recordBuild(ctx, stats); err != nil {
		return nil, err
	}

	b.logger.Info("index.complete",
		"build_id", stats.BuildID,
		"files", stats.FilesParsed,
		"failed", stats.FilesFailed,
		"types", stats.Types,
		"methods", stats.Methods,
		"pruned", stats.TypesPruned,
		"duration", stats.Duration,
	)
	b.progress.OnComplete(stats)
	return stats, nil
}

// parseAndWrite fans parsing out over the worker pool and funnels results
// into batched writes on the calling goroutine.
func (b *Builder) parseAndWrite(ctx context.Context, files []string, stats *Stats) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)

	results := make(chan parseResult, b.cfg.Workers*2)
	parseDone := make(chan error, 1)

	go func() {
		for _, path := range files {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				r := b.parseOne(path)
				select {
				case results <- r:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		parseDone <- g.Wait()
		close(results)
	}()

	namespaces := make(map[string]struct{})
	batch := make([]*parser.FileStructure, 0, b.cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := b.writer.WriteBatch(ctx, stats.BuildID, batch)
		if err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}

		failed := make(map[string]bool, len(res.Failed))
		for _, f := range res.Failed {
			failed[f.Path] = true
			stats.Failures = append(stats.Failures, FileFailure{Path: f.Path, Err: f.Err})
		}
		for _, fs := range batch {
			if failed[fs.Path] {
				continue
			}
			stats.FilesParsed++
			if fs.HasNamespace() {
				namespaces[fs.Namespace] = struct{}{}
			}
			stats.Types += len(fs.Types)
			for _, t := range fs.Types {
				stats.Methods += len(t.Methods)
				stats.Properties += len(t.Properties)
			}
		}
		batch = batch[:0]
		return nil
	}

	processed := 0
	var writeErr error
	for r := range results {
		if writeErr != nil {
			continue // drain so the workers can exit
		}

		processed++
		b.progress.OnFileParsed(processed, len(files), r.path)

		if r.err != nil {
			b.logger.Warn("index.file_failed", "path", r.path, "error", r.err)
			stats.Failures = append(stats.Failures, FileFailure{Path: r.path, Err: r.err})
			continue
		}

		batch = append(batch, r.file)
		if len(batch) >= b.cfg.BatchSize {
			if writeErr = flush(); writeErr != nil {
				cancel()
			}
		}
	}

	if writeErr != nil {
		<-parseDone
		return writeErr
	}
	if err := <-parseDone; err != nil {
		return fmt.Errorf("build interrupted: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	keepPaths := make([]string, 0, len(stats.Failures))
	for _, f := range stats.Failures {
		keepPaths = append(keepPaths, f.Path)
	}
	keepNamespaces := make([]string, 0, len(namespaces))
	for ns := range namespaces {
		keepNamespaces = append(keepNamespaces, ns)
	}
	pruned, err := b.writer.PruneStale(ctx, stats.BuildID, keepPaths, keepNamespaces)
	if err != nil {
		return fmt.Errorf("failed to prune stale rows: %w", err)
	}
	stats.TypesPruned = int(pruned)

	stats.FilesFailed = len(stats.Failures)
	stats.Namespaces = len(namespaces)
	return nil
}

// parseOne reads and parses one file. A panic in the parser is reported as
// a failure of that file only.
func (b *Builder) parseOne(path string) (res parseResult) {
	res.path = path
	defer func() {
		if r := recover(); r != nil {
			res.file = nil
			res.err = fmt.Errorf("parser panic: %v", r)
		}
	}()

	text, err := scanner.ReadFile(path)
	if err != nil {
		res.err = err
		return res
	}

	fs := b.parser.ParseFile(text)
	fs.Path = path
	res.file = fs
	return res
}

func (b *Builder) recordBuild(ctx context.Context, stats *Stats) error {
	err := b.store.SetMetadataMap(ctx, map[string]string{
		storage.MetaBuildID:       stats.BuildID,
		storage.MetaBuildTime:     time.Now().UTC().Format(time.RFC3339),
		storage.MetaBuildDuration: stats.Duration.Round(time.Millisecond).String(),
		storage.MetaSourceRoots:   strings.Join(b.scanner.Roots(), ","),
		storage.MetaFilesIndexed:  strconv.Itoa(stats.FilesParsed),
		storage.MetaFilesFailed:   strconv.Itoa(stats.FilesFailed),
	})
	if err != nil {
		return fmt.Errorf("failed to record build metadata: %w", err)
	}
	return nil
}
