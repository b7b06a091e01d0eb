package cli

import (
	"github.com/spf13/cobra"

	"github.com/mvp-joe/typeindex/internal/mcp"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index counts and the last build",
	Long: `Status prints how many namespaces, types, methods, properties and edges the
index holds, together with the id, time and duration of the last build.

Example:
  typeindex status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	toolset, closeFn, err := env.openToolset(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	return executeQuery(cmd.Context(), toolset, mcp.ToolIndexStatus, nil, cmd.OutOrStdout())
}
