package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/typeindex/internal/scanner"
)

// ErrFileNotFound is returned when a path cannot be resolved by any fallback.
var ErrFileNotFound = errors.New("file not found")

// Limits and defaults for raw source access.
const (
	MaxLines            = 500
	MaxWindows          = 5
	DefaultContextLines = 10
	MaxContextLines     = 50
	UsageContextLines   = 3
	DefaultMaxExamples  = 5
	MaxExamples         = 20

	defaultCacheSize    = 256
	defaultUsageTimeout = 30 * time.Second
)

// Options configures a Reader.
type Options struct {
	Scanner      *scanner.Scanner // roots for path fallbacks and usage scans
	CacheSize    int              // decoded files kept in memory
	UsageTimeout time.Duration    // wall-clock bound for FindUsageExamples
	Logger       *slog.Logger
}

// cachedFile is a decoded file, valid while size and mtime are unchanged.
type cachedFile struct {
	lines   []string
	size    int64
	modTime time.Time
}

// Reader serves raw source text: whole files, term windows and usage examples.
// It is safe for concurrent use.
type Reader struct {
	scanner      *scanner.Scanner
	cache        otter.Cache[string, cachedFile]
	usageTimeout time.Duration
	logger       *slog.Logger
}

// NewReader creates a Reader.
func NewReader(opts Options) (*Reader, error) {
	if opts.Scanner == nil {
		return nil, errors.New("source reader requires a scanner")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.UsageTimeout <= 0 {
		opts.UsageTimeout = defaultUsageTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cache, err := otter.MustBuilder[string, cachedFile](opts.CacheSize).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create file cache: %w", err)
	}

	return &Reader{
		scanner:      opts.Scanner,
		cache:        cache,
		usageTimeout: opts.UsageTimeout,
		logger:       opts.Logger,
	}, nil
}

// Close releases the file cache.
func (r *Reader) Close() {
	r.cache.Close()
}

// Line is one numbered source line.
type Line struct {
	Number int
	Text   string
	Match  bool
}

// Window is a contiguous run of lines around one or more matches.
type Window struct {
	Start int
	End   int
	Lines []Line
}

// SourceView is the result of ReadSource.
type SourceView struct {
	Requested    string
	Path         string // resolved location
	Term         string
	TotalLines   int
	Lines        []Line // whole-file mode only
	Truncated    bool   // whole-file mode stopped at MaxLines
	Windows      []Window
	TotalMatches int // matching lines in the file, including those beyond MaxWindows
}

// ReadSource returns the file at path. Without a term it returns up to
// MaxLines numbered lines; with a term it returns up to MaxWindows windows
// of contextLines around case-insensitive matches. Overlapping windows are
// merged.
func (r *Reader) ReadSource(ctx context.Context, path, term string, contextLines int) (*SourceView, error) {
	resolved, err := r.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}

	lines, err := r.lines(resolved)
	if err != nil {
		return nil, err
	}

	view := &SourceView{
		Requested:  path,
		Path:       resolved,
		Term:       term,
		TotalLines: len(lines),
	}

	if term == "" {
		limit := min(len(lines), MaxLines)
		view.Lines = make([]Line, 0, limit)
		for i := 0; i < limit; i++ {
			view.Lines = append(view.Lines, Line{Number: i + 1, Text: lines[i]})
		}
		view.Truncated = len(lines) > MaxLines
		return view, nil
	}

	contextLines = clamp(contextLines, 0, MaxContextLines)
	needle := strings.ToLower(term)

	var matches []int
	for i, line := range lines {
		if strings.Contains(strings.ToLower(line), needle) {
			matches = append(matches, i)
		}
	}
	view.TotalMatches = len(matches)
	view.Windows = buildWindows(lines, matches, contextLines, MaxWindows)
	return view, nil
}

// Resolve finds the file a caller means by path: the path itself, then the
// path joined to each source root, then the first file with the same base
// name anywhere under the roots. Only files under a source root are
// returned; any other path falls through to the base name search.
func (r *Reader) Resolve(ctx context.Context, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrFileNotFound)
	}

	if isFile(path) && r.underRoot(path) {
		return path, nil
	}

	if !filepath.IsAbs(path) {
		for _, root := range r.scanner.Roots() {
			candidate := filepath.Join(root, filepath.FromSlash(path))
			if isFile(candidate) && r.underRoot(candidate) {
				return candidate, nil
			}
		}
	}

	candidates, err := r.scanner.FindByName(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to search for %s: %w", path, err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	if len(candidates) > 1 {
		r.logger.Debug("source.ambiguous_path", "path", path, "candidates", len(candidates), "chosen", candidates[0])
	}
	return candidates[0], nil
}

// underRoot reports whether path, with symlinks resolved, lies inside one of
// the source roots.
func (r *Reader) underRoot(path string) bool {
	target, err := realPath(path)
	if err != nil {
		return false
	}
	for _, root := range r.scanner.Roots() {
		base, err := realPath(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, target)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func realPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// lines returns the decoded lines of path, from cache while the file's size
// and modification time are unchanged.
func (r *Reader) lines(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	if cached, ok := r.cache.Get(path); ok && cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.lines, nil
	}

	text, err := scanner.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	lines := scanner.SplitLines(text)
	r.cache.Set(path, cachedFile{lines: lines, size: info.Size(), modTime: info.ModTime()})
	return lines, nil
}

// buildWindows turns 0-based match indexes into at most limit windows of
// context lines each side, merging windows that overlap or touch.
func buildWindows(lines []string, matches []int, context, limit int) []Window {
	if len(matches) == 0 {
		return nil
	}

	matchSet := make(map[int]bool, len(matches))
	for _, m := range matches {
		matchSet[m] = true
	}

	var windows []Window
	for _, m := range matches {
		start := max(0, m-context)
		end := min(len(lines)-1, m+context)

		if n := len(windows); n > 0 && start <= windows[n-1].End {
			// windows[n-1].End is 1-based, so this also merges touching windows
			last := &windows[n-1]
			for i := last.End; i <= end; i++ {
				last.Lines = append(last.Lines, Line{Number: i + 1, Text: lines[i], Match: matchSet[i]})
			}
			last.End = max(last.End, end+1)
			continue
		}

		if len(windows) == limit {
			break
		}

		w := Window{Start: start + 1, End: end + 1}
		for i := start; i <= end; i++ {
			w.Lines = append(w.Lines, Line{Number: i + 1, Text: lines[i], Match: matchSet[i]})
		}
		windows = append(windows, w)
	}
	return windows
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
