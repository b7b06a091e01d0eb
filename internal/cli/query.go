package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/typeindex/internal/mcp"
)

// errToolFailed is returned after a tool's error text has been printed.
var errToolFailed = errors.New("tool call failed")

var listToolsFlag bool

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <tool> [key=value]...",
	Short: "Run one tool against the index and print its report",
	Long: `Query runs a single named tool, exactly as an MCP client would, and prints
the text report. Arguments are key=value pairs using the tool's parameter names.

Examples:
  typeindex query get_class_definition class_name=Hero
  typeindex query search_api query=Gold filter_type=method
  typeindex query read_source_code file_path=Core/Hero.cs search_term=AddGold context_lines=3
  typeindex query --list
`,
	Args: func(cmd *cobra.Command, args []string) error {
		if listToolsFlag {
			return nil
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVarP(&listToolsFlag, "list", "l", false, "List the available tools")
}

func runQuery(cmd *cobra.Command, args []string) error {
	env, err := loadEnv(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	toolset, closeFn, err := env.openToolset(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	if listToolsFlag {
		listTools(toolset, cmd.OutOrStdout())
		return nil
	}
	return executeQuery(cmd.Context(), toolset, args[0], args[1:], cmd.OutOrStdout())
}

// executeQuery parses key=value arguments, calls the tool and prints its text.
func executeQuery(ctx context.Context, toolset *mcp.Toolset, tool string, rawArgs []string, out io.Writer) error {
	args, err := parseToolArgs(rawArgs)
	if err != nil {
		return err
	}

	text, isError := toolset.Call(ctx, tool, args)
	fmt.Fprintln(out, strings.TrimRight(text, "\n"))
	if isError {
		return errToolFailed
	}
	return nil
}

// parseToolArgs turns key=value pairs into a tool argument map. Values stay
// strings; the tools coerce them.
func parseToolArgs(raw []string) (map[string]any, error) {
	args := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (expected key=value)", kv)
		}
		args[key] = value
	}
	return args, nil
}

func listTools(toolset *mcp.Toolset, out io.Writer) {
	for _, tool := range toolset.Tools() {
		fmt.Fprintf(out, "%s\n", tool.Name)
		fmt.Fprintf(out, "  %s\n", tool.Description)

		var params []string
		for name := range tool.InputSchema.Properties {
			params = append(params, name)
		}
		if len(params) > 0 {
			sort.Strings(params)
			required := make(map[string]bool, len(tool.InputSchema.Required))
			for _, r := range tool.InputSchema.Required {
				required[r] = true
			}
			for i, p := range params {
				if required[p] {
					params[i] = p + "*"
				}
			}
			fmt.Fprintf(out, "  params: %s\n", strings.Join(params, ", "))
		}
		fmt.Fprintln(out)
	}
}
