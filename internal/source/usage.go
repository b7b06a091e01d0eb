package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mvp-joe/typeindex/internal/parser"
)

// Usage is one place where a target appears.
type Usage struct {
	Path   string
	Line   int
	Window Window
}

// UsageResult is the output of FindUsageExamples.
type UsageResult struct {
	Target       string
	Examples     []Usage
	FilesScanned int
	TimedOut     bool // the wall-clock bound hit before the scan finished
}

// FindUsageExamples scans every source file for lines containing target,
// skipping occurrences inside // comments and lines that declare a method
// named after target's last segment. Each hit carries UsageContextLines of
// context each side. The scan stops at maxExamples hits or when the usage
// timeout elapses; a timeout returns what was found so far.
func (r *Reader) FindUsageExamples(ctx context.Context, target string, maxExamples int) (*UsageResult, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, errors.New("target must not be empty")
	}
	if maxExamples <= 0 {
		maxExamples = DefaultMaxExamples
	}
	maxExamples = min(maxExamples, MaxExamples)

	scanCtx, cancel := context.WithTimeout(ctx, r.usageTimeout)
	defer cancel()

	decl := parser.NewDeclarationMatcher(lastSegment(target))
	res := &UsageResult{Target: target}

	err := r.scanner.Walk(scanCtx, func(path string) bool {
		res.FilesScanned++

		lines, err := r.lines(path)
		if err != nil {
			r.logger.Debug("usage.read_failed", "path", path, "error", err)
			return true
		}

		for i := 0; i < len(lines); i++ {
			if !isUsage(lines[i], target, decl) {
				continue
			}

			start := max(0, i-UsageContextLines)
			end := min(len(lines)-1, i+UsageContextLines)
			w := Window{Start: start + 1, End: end + 1}
			for j := start; j <= end; j++ {
				w.Lines = append(w.Lines, Line{Number: j + 1, Text: lines[j], Match: j == i})
			}
			res.Examples = append(res.Examples, Usage{Path: path, Line: i + 1, Window: w})

			if len(res.Examples) >= maxExamples {
				return false
			}
			i = end // next example starts after this window
		}
		return true
	})

	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		r.logger.Warn("usage.timeout", "target", target, "files_scanned", res.FilesScanned, "found", len(res.Examples))
	default:
		return nil, fmt.Errorf("usage scan failed: %w", err)
	}
	return res, nil
}

// isUsage reports whether line mentions target outside a // comment and is
// not itself the method's declaration.
func isUsage(line, target string, decl *parser.DeclarationMatcher) bool {
	idx := strings.Index(line, target)
	if idx < 0 {
		return false
	}
	if comment := strings.Index(line, "//"); comment >= 0 && comment < idx {
		return false
	}
	return !decl.Match(line)
}

func lastSegment(target string) string {
	if idx := strings.LastIndex(target, "."); idx >= 0 && idx < len(target)-1 {
		return target[idx+1:]
	}
	return target
}
