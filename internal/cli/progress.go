package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/typeindex/internal/indexer"
)

// CLIProgressReporter implements progress reporting with a progress bar.
type CLIProgressReporter struct {
	out     io.Writer
	quiet   bool
	fileBar *progressbar.ProgressBar
}

// NewCLIProgressReporter creates a new CLI progress reporter writing to out.
func NewCLIProgressReporter(out io.Writer, quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{out: out, quiet: quiet}
}

func (c *CLIProgressReporter) OnScanStart() {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.out, "Scanning source roots...")
}

func (c *CLIProgressReporter) OnScanComplete(totalFiles int) {
	if c.quiet {
		return
	}
	fmt.Fprintf(c.out, "Found %s source files\n", formatNumber(totalFiles))
	if totalFiles == 0 {
		return
	}

	c.fileBar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetWriter(c.out),
		progressbar.OptionSetDescription("Indexing files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(c.out)
		}),
	)
}

func (c *CLIProgressReporter) OnFileParsed(processed, total int, path string) {
	if c.quiet || c.fileBar == nil {
		return
	}
	_ = c.fileBar.Set(processed)
}

func (c *CLIProgressReporter) OnComplete(stats *indexer.Stats) {
	if c.quiet {
		return
	}
	if c.fileBar != nil {
		_ = c.fileBar.Finish()
		c.fileBar = nil
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "✓ Indexing complete: %s files in %.1fs\n", formatNumber(stats.FilesParsed), stats.Duration.Seconds())
	fmt.Fprintf(c.out, "  Namespaces: %s\n", formatNumber(stats.Namespaces))
	fmt.Fprintf(c.out, "  Types:      %s\n", formatNumber(stats.Types))
	fmt.Fprintf(c.out, "  Methods:    %s\n", formatNumber(stats.Methods))
	fmt.Fprintf(c.out, "  Properties: %s\n", formatNumber(stats.Properties))
	if stats.FilesFailed > 0 {
		fmt.Fprintf(c.out, "  Failed:     %s files\n", formatNumber(stats.FilesFailed))
		for _, f := range stats.Failures {
			fmt.Fprintf(c.out, "    %s: %v\n", f.Path, f.Err)
		}
	}
}

// formatNumber renders n with thousands separators.
func formatNumber(n int) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result []byte
	for i := 0; i < len(str); i++ {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, str[i])
	}
	return string(result)
}
