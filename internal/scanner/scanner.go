package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	// ErrRootNotFound is returned when a configured source root does not exist.
	ErrRootNotFound = errors.New("source root not found")

	// ErrBinaryFile is returned by ReadFile for content that is not text.
	ErrBinaryFile = errors.New("binary file")
)

// DefaultInclude matches every C# source file at any depth.
var DefaultInclude = []string{"**/*.cs"}

// binarySniffLen is how many leading bytes are checked for NUL when detecting binaries.
const binarySniffLen = 8000

// Options configures a Scanner.
type Options struct {
	Roots   []string
	Include []string // glob patterns relative to a root; DefaultInclude when empty
	Ignore  []string // glob patterns relative to a root
	Logger  *slog.Logger
}

// compiledPattern holds the pattern string, its compiled glob and, for
// patterns starting with "**/", the glob without that prefix so root-level
// files match too.
type compiledPattern struct {
	pattern string
	glob    glob.Glob
	root    glob.Glob
}

// Scanner walks source roots and yields the files an index is built from.
type Scanner struct {
	roots   []string
	include []compiledPattern
	ignore  []compiledPattern
	logger  *slog.Logger
}

// New compiles the include and ignore patterns and returns a Scanner.
func New(opts Options) (*Scanner, error) {
	s := &Scanner{
		logger: opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	for _, root := range opts.Roots {
		s.roots = append(s.roots, filepath.Clean(root))
	}

	include := opts.Include
	if len(include) == 0 {
		include = DefaultInclude
	}

	var err error
	if s.include, err = compilePatterns(include); err != nil {
		return nil, err
	}
	if s.ignore, err = compilePatterns(opts.Ignore); err != nil {
		return nil, err
	}

	return s, nil
}

func compilePatterns(patterns []string) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		cp := compiledPattern{pattern: pattern, glob: g}
		if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
			if cp.root, err = glob.Compile(rest, '/'); err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
		}
		compiled = append(compiled, cp)
	}
	return compiled, nil
}

// Roots returns the cleaned source roots.
func (s *Scanner) Roots() []string {
	return append([]string(nil), s.roots...)
}

// CheckRoots returns ErrRootNotFound for the first root that is missing or not a directory.
func (s *Scanner) CheckRoots() error {
	for _, root := range s.roots {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, root)
		}
	}
	return nil
}

// Scan returns every matching file under every root, sorted.
// Unreadable directories are logged and skipped; a missing root is an error.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	if err := s.CheckRoots(); err != nil {
		return nil, err
	}

	var files []string
	err := s.walk(ctx, func(path, relPath string) bool {
		if s.matchesAnyPattern(relPath, s.include) {
			files = append(files, path)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// FindByName returns files under the roots whose base name equals name, sorted.
// Ignore patterns still apply; include patterns do not.
func (s *Scanner) FindByName(ctx context.Context, name string) ([]string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, nil
	}

	var matches []string
	err := s.walk(ctx, func(path, relPath string) bool {
		if filepath.Base(path) == base {
			matches = append(matches, path)
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

// Walk calls fn for every non-ignored file matching the include patterns until fn returns false.
func (s *Scanner) Walk(ctx context.Context, fn func(path string) bool) error {
	return s.walk(ctx, func(path, relPath string) bool {
		if !s.matchesAnyPattern(relPath, s.include) {
			return true
		}
		return fn(path)
	})
}

var errStopWalk = errors.New("stop walk")

// walk visits every non-ignored regular file under the existing roots.
func (s *Scanner) walk(ctx context.Context, visit func(path, relPath string) bool) error {
	for _, root := range s.roots {
		if _, err := os.Stat(root); err != nil {
			s.logger.Warn("scan.root_missing", "root", root)
			continue
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				// Report and keep going; one unreadable directory must not abort the scan.
				s.logger.Warn("scan.walk_error", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			relPath, relErr := filepath.Rel(root, path)
			if relErr != nil {
				return nil
			}
			relPath = filepath.ToSlash(relPath)

			if d.IsDir() {
				if relPath != "." && s.shouldIgnore(relPath) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if s.shouldIgnore(relPath) {
				return nil
			}

			if !visit(path, relPath) {
				return errStopWalk
			}
			return nil
		})
		if errors.Is(err, errStopWalk) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// shouldIgnore checks if a path matches any ignore pattern.
func (s *Scanner) shouldIgnore(relPath string) bool {
	if s.matchesAnyPattern(relPath, s.ignore) {
		return true
	}

	// "obj" should match pattern "obj/**" so the whole directory is pruned.
	return s.matchesAnyPattern(relPath+"/**", s.ignore)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func (s *Scanner) matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// "**/*.cs" should match both "Hero.cs" and "Core/Hero.cs".
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if cp.root != nil && cp.root.Match(path) {
				return true
			}
		}
	}

	return false
}

// ReadFile reads path and decodes it leniently: byte order marks select UTF-8 or
// UTF-16, and invalid sequences become U+FFFD instead of failing the read.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return Decode(data)
}

// Decode converts raw file bytes to text using the same rules as ReadFile.
func Decode(data []byte) (string, error) {
	if hasUTF16BOM(data) {
		// BOMOverride switches to the encoding named by the BOM and strips it.
		decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", fmt.Errorf("decode utf-16: %w", err)
		}
		return strings.ToValidUTF8(string(decoded), "\uFFFD"), nil
	}

	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return "", ErrBinaryFile
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	return strings.ToValidUTF8(string(data), "\uFFFD"), nil
}

func hasUTF16BOM(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return (data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF)
}

// SplitLines splits text on \n, trimming a trailing \r from every line.
// A trailing newline does not produce an extra empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
