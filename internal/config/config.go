package config

import (
	"path/filepath"
	"time"
)

// Config represents the complete typeindex configuration.
// It can be loaded from .typeindex/config.yml with environment variable overrides.
type Config struct {
	Source SourceConfig `yaml:"source" mapstructure:"source"`
	Index  IndexConfig  `yaml:"index" mapstructure:"index"`
	Query  QueryConfig  `yaml:"query" mapstructure:"query"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// SourceConfig defines which trees are scanned and which files inside them are indexed.
type SourceConfig struct {
	Roots   []string `yaml:"roots" mapstructure:"roots"`     // directories scanned recursively
	Include []string `yaml:"include" mapstructure:"include"` // glob patterns for source files
	Ignore  []string `yaml:"ignore" mapstructure:"ignore"`   // glob patterns to skip
}

// IndexConfig controls where the index lives and how builds are batched.
type IndexConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`             // SQLite file, relative to the project dir
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"` // files per write transaction
	Workers   int    `yaml:"workers" mapstructure:"workers"`       // parallel parse workers
}

// QueryConfig bounds the raw-source operations.
type QueryConfig struct {
	UsageTimeoutSeconds int `yaml:"usage_timeout_seconds" mapstructure:"usage_timeout_seconds"`
	FileCacheSize       int `yaml:"file_cache_size" mapstructure:"file_cache_size"` // decoded files kept in memory
}

// ServerConfig is reported to MCP clients during initialization.
type ServerConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
}

// LogConfig configures the slog handler installed by the CLI.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text or json
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Roots:   []string{"."},
			Include: []string{"**/*.cs"},
			Ignore: []string{
				"bin/**",
				"obj/**",
				"**/bin/**",
				"**/obj/**",
				".git/**",
				".vs/**",
				".typeindex/**",
			},
		},
		Index: IndexConfig{
			Path:      filepath.Join(".typeindex", "index.db"),
			BatchSize: 100,
			Workers:   4,
		},
		Query: QueryConfig{
			UsageTimeoutSeconds: 30,
			FileCacheSize:       256,
		},
		Server: ServerConfig{
			Name:    "typeindex",
			Version: "1.0.0",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// UsageTimeout returns the wall-clock bound for cross-tree usage scans.
func (c *Config) UsageTimeout() time.Duration {
	return time.Duration(c.Query.UsageTimeoutSeconds) * time.Second
}

// ResolveIndexPath returns the index path anchored at projectDir when it is relative.
func (c *Config) ResolveIndexPath(projectDir string) string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(projectDir, c.Index.Path)
}

// ResolveRoots returns the configured source roots anchored at projectDir.
func (c *Config) ResolveRoots(projectDir string) []string {
	roots := make([]string, 0, len(c.Source.Roots))
	for _, root := range c.Source.Roots {
		if filepath.IsAbs(root) {
			roots = append(roots, filepath.Clean(root))
			continue
		}
		roots = append(roots, filepath.Join(projectDir, root))
	}
	return roots
}
