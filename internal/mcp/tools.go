package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mvp-joe/typeindex/internal/query"
	"github.com/mvp-joe/typeindex/internal/source"
)

// Tool names.
const (
	ToolGetClassDefinition   = "get_class_definition"
	ToolReadSourceCode       = "read_source_code"
	ToolFindUsageExamples    = "find_usage_examples"
	ToolSearchAPI            = "search_api"
	ToolFindImplementations  = "find_implementations"
	ToolFindSubclasses       = "find_subclasses"
	ToolGetNamespaceContents = "get_namespace_contents"
	ToolGetMethodSignature   = "get_method_signature"
	ToolGetTypeHierarchy     = "get_type_hierarchy"
	ToolIndexStatus          = "index_status"
)

// Querier is the structural query surface the tools dispatch to.
type Querier interface {
	GetClassDefinition(ctx context.Context, name string) ([]query.ClassDefinition, error)
	SearchAPI(ctx context.Context, q string, kind query.Kind) (*query.SearchResults, error)
	FindImplementations(ctx context.Context, interfaceName string) ([]query.EdgeMatch, error)
	FindSubclasses(ctx context.Context, parentName string) ([]query.EdgeMatch, error)
	GetNamespaceContents(ctx context.Context, namespace string) (*query.NamespaceContents, error)
	GetMethodSignature(ctx context.Context, className, methodName string) ([]query.MethodInfo, error)
	GetTypeHierarchy(ctx context.Context, name string) (*query.Hierarchy, error)
	Status(ctx context.Context) (*query.Status, error)
}

// SourceReader is the raw source surface the tools dispatch to.
type SourceReader interface {
	ReadSource(ctx context.Context, path, term string, contextLines int) (*source.SourceView, error)
	FindUsageExamples(ctx context.Context, target string, maxExamples int) (*source.UsageResult, error)
}

type toolFunc func(ctx context.Context, args map[string]any) (string, error)

type toolEntry struct {
	tool mcp.Tool
	run  toolFunc
}

// Toolset is the fixed set of named operations over one index. Every call
// returns a single text block; errors and panics are rendered as text.
type Toolset struct {
	querier Querier
	reader  SourceReader
	logger  *slog.Logger
	tools   map[string]toolEntry
}

// NewToolset builds the tool table.
func NewToolset(querier Querier, reader SourceReader, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	ts := &Toolset{querier: querier, reader: reader, logger: logger}
	ts.tools = map[string]toolEntry{
		ToolGetClassDefinition:   {getClassDefinitionTool(), ts.getClassDefinition},
		ToolReadSourceCode:       {readSourceCodeTool(), ts.readSourceCode},
		ToolFindUsageExamples:    {findUsageExamplesTool(), ts.findUsageExamples},
		ToolSearchAPI:            {searchAPITool(), ts.searchAPI},
		ToolFindImplementations:  {findImplementationsTool(), ts.findImplementations},
		ToolFindSubclasses:       {findSubclassesTool(), ts.findSubclasses},
		ToolGetNamespaceContents: {getNamespaceContentsTool(), ts.getNamespaceContents},
		ToolGetMethodSignature:   {getMethodSignatureTool(), ts.getMethodSignature},
		ToolGetTypeHierarchy:     {getTypeHierarchyTool(), ts.getTypeHierarchy},
		ToolIndexStatus:          {indexStatusTool(), ts.indexStatus},
	}
	return ts
}

// Names returns the tool names, sorted.
func (ts *Toolset) Names() []string {
	names := make([]string, 0, len(ts.tools))
	for name := range ts.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tools returns the tool definitions, sorted by name.
func (ts *Toolset) Tools() []mcp.Tool {
	out := make([]mcp.Tool, 0, len(ts.tools))
	for _, name := range ts.Names() {
		out = append(out, ts.tools[name].tool)
	}
	return out
}

// Register adds every tool to s.
func (ts *Toolset) Register(s *server.MCPServer) {
	for _, name := range ts.Names() {
		s.AddTool(ts.tools[name].tool, ts.handler(name))
	}
}

func (ts *Toolset) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, isError := ts.Call(ctx, name, request.GetArguments())
		if isError {
			return mcp.NewToolResultError(text), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// Call runs the named tool. The second result reports whether the text is
// an error message. Nothing inside a tool propagates past Call.
func (ts *Toolset) Call(ctx context.Context, name string, args map[string]any) (text string, isError bool) {
	entry, ok := ts.tools[name]
	if !ok {
		return fmt.Sprintf("Unknown tool: %s", name), true
	}
	if args == nil {
		args = map[string]any{}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			ts.logger.Error("tool.panic", "tool", name, "panic", r, "stack", string(debug.Stack()))
			text, isError = fmt.Sprintf("Error in %s: internal error: %v", name, r), true
		}
	}()

	text, err := entry.run(ctx, args)
	if err != nil {
		ts.logger.Warn("tool.failed", "tool", name, "error", err, "duration", time.Since(start))
		return fmt.Sprintf("Error in %s: %v", name, err), true
	}
	ts.logger.Debug("tool.call", "tool", name, "duration", time.Since(start))
	return text, false
}

func getClassDefinitionTool() mcp.Tool {
	return mcp.NewTool(ToolGetClassDefinition,
		mcp.WithDescription("Get the full definition of a class, interface, struct or enum: location, base type, interfaces, methods and properties. Matches on simple or fully qualified name; exact names first, at most 10 types."),
		mcp.WithString("class_name", mcp.Required(),
			mcp.Description("Type name or fully qualified name (e.g. 'Hero' or 'Game.Core.Hero')")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) getClassDefinition(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		ClassName string `json:"class_name"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	name, err := requireString("class_name", p.ClassName)
	if err != nil {
		return "", err
	}

	defs, err := ts.querier.GetClassDefinition(ctx, name)
	if err != nil {
		return "", err
	}
	return renderClassDefinitions(name, defs), nil
}

func readSourceCodeTool() mcp.Tool {
	return mcp.NewTool(ToolReadSourceCode,
		mcp.WithDescription("Read a source file. Without search_term returns up to 500 numbered lines. With search_term returns up to 5 windows of context around case-insensitive matches, matching lines marked with '>'. Falls back to a search by file name when the path does not exist."),
		mcp.WithString("file_path", mcp.Required(),
			mcp.Description("Path to the file, absolute or relative to a source root")),
		mcp.WithString("search_term",
			mcp.Description("Optional text to find in the file")),
		mcp.WithNumber("context_lines",
			mcp.Description("Lines of context before and after each match (0-50, default: 10)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) readSourceCode(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		FilePath     string `json:"file_path"`
		SearchTerm   string `json:"search_term"`
		ContextLines *int   `json:"context_lines"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	path, err := requireString("file_path", p.FilePath)
	if err != nil {
		return "", err
	}
	contextLines := clampInt(p.ContextLines, source.DefaultContextLines, 0, source.MaxContextLines)

	view, err := ts.reader.ReadSource(ctx, path, p.SearchTerm, contextLines)
	if errors.Is(err, source.ErrFileNotFound) {
		return fmt.Sprintf("File not found: %s", path), nil
	}
	if err != nil {
		return "", err
	}
	return renderSource(view), nil
}

func findUsageExamplesTool() mcp.Tool {
	return mcp.NewTool(ToolFindUsageExamples,
		mcp.WithDescription("Find real call sites of a method or type in the source tree. Skips commented-out lines and the declaration itself. Each example shows 3 lines of context."),
		mcp.WithString("target", mcp.Required(),
			mcp.Description("Text to find, e.g. 'AddGold' or 'GiveGoldAction.ApplyBetweenCharacters'")),
		mcp.WithNumber("max_examples",
			mcp.Description("Maximum examples to return (1-20, default: 5)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) findUsageExamples(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		Target      string `json:"target"`
		MaxExamples *int   `json:"max_examples"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	target, err := requireString("target", p.Target)
	if err != nil {
		return "", err
	}
	maxExamples := clampInt(p.MaxExamples, source.DefaultMaxExamples, 1, source.MaxExamples)

	res, err := ts.reader.FindUsageExamples(ctx, target, maxExamples)
	if err != nil {
		return "", err
	}
	return renderUsages(res), nil
}

func searchAPITool() mcp.Tool {
	return mcp.NewTool(ToolSearchAPI,
		mcp.WithDescription("Search types, methods and properties by name. Method search also matches signatures. Case-insensitive substring match, at most 50 results per kind."),
		mcp.WithString("query", mcp.Required(),
			mcp.Description("Text to search for, e.g. 'Gold'")),
		mcp.WithString("filter_type",
			mcp.Enum(query.ValidKinds...),
			mcp.Description("Restrict results: class, method, property, interface or all (default: all)")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) searchAPI(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		Query      string `json:"query"`
		FilterType string `json:"filter_type"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	q, err := requireString("query", p.Query)
	if err != nil {
		return "", err
	}
	kind, err := enumArg("filter_type", p.FilterType, string(query.KindAll), query.ValidKinds)
	if err != nil {
		return "", err
	}

	res, err := ts.querier.SearchAPI(ctx, q, query.Kind(kind))
	if err != nil {
		return "", err
	}
	return renderSearch(res), nil
}

func findImplementationsTool() mcp.Tool {
	return mcp.NewTool(ToolFindImplementations,
		mcp.WithDescription("List types whose interface list mentions the given name (substring match on the name as written). Not transitive."),
		mcp.WithString("interface_name", mcp.Required(),
			mcp.Description("Interface name, e.g. 'IHeroInfo'")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) findImplementations(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		InterfaceName string `json:"interface_name"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	name, err := requireString("interface_name", p.InterfaceName)
	if err != nil {
		return "", err
	}

	matches, err := ts.querier.FindImplementations(ctx, name)
	if err != nil {
		return "", err
	}
	return renderEdgeMatches("implement", name, matches), nil
}

func findSubclassesTool() mcp.Tool {
	return mcp.NewTool(ToolFindSubclasses,
		mcp.WithDescription("List types whose base type mentions the given name (substring match on the name as written). Direct subclasses only; use get_type_hierarchy for the full tree."),
		mcp.WithString("parent_name", mcp.Required(),
			mcp.Description("Base class name, e.g. 'CampaignBehaviorBase'")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) findSubclasses(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		ParentName string `json:"parent_name"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	name, err := requireString("parent_name", p.ParentName)
	if err != nil {
		return "", err
	}

	matches, err := ts.querier.FindSubclasses(ctx, name)
	if err != nil {
		return "", err
	}
	return renderEdgeMatches("inherit from", name, matches), nil
}

func getNamespaceContentsTool() mcp.Tool {
	return mcp.NewTool(ToolGetNamespaceContents,
		mcp.WithDescription("List the types declared in a namespace and all of its sub-namespaces."),
		mcp.WithString("namespace_name", mcp.Required(),
			mcp.Description("Namespace, e.g. 'Game.Core'")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) getNamespaceContents(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		NamespaceName string `json:"namespace_name"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	ns, err := requireString("namespace_name", p.NamespaceName)
	if err != nil {
		return "", err
	}

	res, err := ts.querier.GetNamespaceContents(ctx, ns)
	if err != nil {
		return "", err
	}
	return renderNamespace(res), nil
}

func getMethodSignatureTool() mcp.Tool {
	return mcp.NewTool(ToolGetMethodSignature,
		mcp.WithDescription("Get the signature, return type, parameters and location of methods on a specific type."),
		mcp.WithString("class_name", mcp.Required(),
			mcp.Description("Owning type, simple or fully qualified name")),
		mcp.WithString("method_name", mcp.Required(),
			mcp.Description("Method name or part of it")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) getMethodSignature(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		ClassName  string `json:"class_name"`
		MethodName string `json:"method_name"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	className, err := requireString("class_name", p.ClassName)
	if err != nil {
		return "", err
	}
	methodName, err := requireString("method_name", p.MethodName)
	if err != nil {
		return "", err
	}

	methods, err := ts.querier.GetMethodSignature(ctx, className, methodName)
	if err != nil {
		return "", err
	}
	return renderMethodSignatures(className, methodName, methods), nil
}

func getTypeHierarchyTool() mcp.Tool {
	return mcp.NewTool(ToolGetTypeHierarchy,
		mcp.WithDescription("Show the inheritance chain above a type and the tree of indexed subclasses below it. Base types outside the index are marked as not indexed."),
		mcp.WithString("class_name", mcp.Required(),
			mcp.Description("Type name or fully qualified name")),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) getTypeHierarchy(ctx context.Context, args map[string]any) (string, error) {
	var p struct {
		ClassName string `json:"class_name"`
	}
	if err := bindArgs(args, &p); err != nil {
		return "", err
	}
	name, err := requireString("class_name", p.ClassName)
	if err != nil {
		return "", err
	}

	h, err := ts.querier.GetTypeHierarchy(ctx, name)
	if errors.Is(err, query.ErrTypeNotFound) {
		return fmt.Sprintf("No type found matching '%s'.", name), nil
	}
	if err != nil {
		return "", err
	}
	return renderHierarchy(h), nil
}

func indexStatusTool() mcp.Tool {
	return mcp.NewTool(ToolIndexStatus,
		mcp.WithDescription("Report index row counts and details of the last build."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)
}

func (ts *Toolset) indexStatus(ctx context.Context, _ map[string]any) (string, error) {
	st, err := ts.querier.Status(ctx)
	if err != nil {
		return "", err
	}
	return renderStatus(st), nil
}
