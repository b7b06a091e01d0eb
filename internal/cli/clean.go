package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

var cleanQuietFlag bool

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete the index file",
	Long: `Clean removes the SQLite index (and its WAL side files) so the next
'typeindex index' performs a full build. The configuration file is preserved.

The index is a disposable cache of the source tree; deleting it loses nothing
that a rebuild cannot restore.

Examples:
  typeindex clean
  typeindex clean --quiet
`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVarP(&cleanQuietFlag, "quiet", "q", false, "Suppress output messages")
}

func runClean(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return executeClean(env.indexPath(), cleanQuietFlag, cmd.OutOrStdout())
}

// executeClean deletes the index at path together with its -wal and -shm files.
func executeClean(path string, quiet bool, out io.Writer) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if !quiet {
			fmt.Fprintf(out, "No index found at %s\n", path)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat index: %w", err)
	}
	sizeMB := float64(info.Size()) / (1024 * 1024)

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}

	if !quiet {
		fmt.Fprintf(out, "✓ Removed index %s (~%.1f MB)\n", path, sizeMB)
		fmt.Fprintln(out, "Next 'typeindex index' will perform a full build")
	}
	return nil
}
