package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

var (
	// ErrNoRoots indicates that no source root is configured
	ErrNoRoots = errors.New("no source roots")

	// ErrNoIncludePatterns indicates that nothing would ever be indexed
	ErrNoIncludePatterns = errors.New("no include patterns")

	// ErrInvalidPattern indicates a glob pattern that does not compile
	ErrInvalidPattern = errors.New("invalid glob pattern")

	// ErrEmptyIndexPath indicates a missing index location
	ErrEmptyIndexPath = errors.New("empty index path")

	// ErrInvalidBatchSize indicates a non-positive write batch size
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidWorkers indicates a non-positive worker count
	ErrInvalidWorkers = errors.New("invalid worker count")

	// ErrInvalidQuerySettings indicates invalid timeout or cache settings
	ErrInvalidQuerySettings = errors.New("invalid query settings")

	// ErrInvalidLogSettings indicates an unknown log level or format
	ErrInvalidLogSettings = errors.New("invalid log settings")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateSource(&cfg.Source); err != nil {
		errs = append(errs, err)
	}
	if err := validateIndex(&cfg.Index); err != nil {
		errs = append(errs, err)
	}
	if err := validateQuery(&cfg.Query); err != nil {
		errs = append(errs, err)
	}
	if err := validateLog(&cfg.Log); err != nil {
		errs = append(errs, err)
	}

	return joinErrors(errs)
}

func validateSource(cfg *SourceConfig) error {
	var errs []error

	if len(cfg.Roots) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one root is required", ErrNoRoots))
	}
	for _, root := range cfg.Roots {
		if strings.TrimSpace(root) == "" {
			errs = append(errs, fmt.Errorf("%w: root cannot be blank", ErrNoRoots))
		}
	}

	if len(cfg.Include) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one include pattern is required", ErrNoIncludePatterns))
	}

	for _, pattern := range append(append([]string{}, cfg.Include...), cfg.Ignore...) {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err))
		}
	}

	return joinErrors(errs)
}

func validateIndex(cfg *IndexConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.Path) == "" {
		errs = append(errs, fmt.Errorf("%w: index.path is required", ErrEmptyIndexPath))
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidBatchSize, cfg.BatchSize))
	}
	if cfg.Workers <= 0 {
		errs = append(errs, fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidWorkers, cfg.Workers))
	}

	return joinErrors(errs)
}

func validateQuery(cfg *QueryConfig) error {
	var errs []error

	if cfg.UsageTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%w: usage_timeout_seconds must be positive, got %d", ErrInvalidQuerySettings, cfg.UsageTimeoutSeconds))
	}
	if cfg.FileCacheSize < 0 {
		errs = append(errs, fmt.Errorf("%w: file_cache_size cannot be negative, got %d", ErrInvalidQuerySettings, cfg.FileCacheSize))
	}

	return joinErrors(errs)
}

func validateLog(cfg *LogConfig) error {
	var errs []error

	switch strings.ToLower(cfg.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: level must be debug, info, warn or error, got '%s'", ErrInvalidLogSettings, cfg.Level))
	}

	switch strings.ToLower(cfg.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: format must be 'text' or 'json', got '%s'", ErrInvalidLogSettings, cfg.Format))
	}

	return joinErrors(errs)
}

// joinErrors combines multiple errors into one that still matches every
// sentinel with errors.Is.
func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
