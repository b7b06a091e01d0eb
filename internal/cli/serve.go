package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/typeindex/internal/mcp"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Serve exposes the index to MCP clients over stdio. The index must already
exist; build it first with 'typeindex index'.

Tools:
  get_class_definition, read_source_code, find_usage_examples, search_api,
  find_implementations, find_subclasses, get_namespace_contents,
  get_method_signature, get_type_hierarchy, index_status

Example:
  typeindex serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	toolset, closeFn, err := env.openToolset(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	env.logger.Info("server.index", "path", env.indexPath())

	server := mcp.NewServer(mcp.ServerInfo{
		Name:    env.cfg.Server.Name,
		Version: env.cfg.Server.Version,
	}, toolset, env.logger)

	if err := server.Serve(cmd.Context()); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
