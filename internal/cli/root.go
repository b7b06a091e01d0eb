package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	projectDir string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "typeindex",
	Short: "Structural index and query server for C# source trees",
	Long: `typeindex scans a tree of C# source files, extracts namespaces, types,
methods, properties and inheritance lists, and stores them in a SQLite index.

The index answers structural questions (class definitions, implementations,
subclasses, namespace contents, method signatures) from the command line or
through an MCP server on stdio.

Configuration is read from .typeindex/config.yml in the project directory and
TYPEINDEX_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "C", "", "project directory holding .typeindex/ (default is the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
