package indexer

// ProgressReporter provides callbacks for reporting build progress.
// Implementations can display progress bars, log messages, or remain silent.
// Callbacks are invoked from the single writer goroutine, never concurrently.
type ProgressReporter interface {
	// OnScanStart is called when file enumeration begins.
	OnScanStart()

	// OnScanComplete is called once the file list is known.
	OnScanComplete(totalFiles int)

	// OnFileParsed is called after each file has been parsed (or failed).
	OnFileParsed(processed, total int, path string)

	// OnComplete is called when the build finishes successfully.
	OnComplete(stats *Stats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnScanStart()                                   {}
func (n *NoOpProgressReporter) OnScanComplete(totalFiles int)                  {}
func (n *NoOpProgressReporter) OnFileParsed(processed, total int, path string) {}
func (n *NoOpProgressReporter) OnComplete(stats *Stats)                        {}
