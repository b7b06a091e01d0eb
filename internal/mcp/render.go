package mcp

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvp-joe/typeindex/internal/query"
	"github.com/mvp-joe/typeindex/internal/source"
	"github.com/mvp-joe/typeindex/internal/storage"
)

func renderClassDefinitions(name string, defs []query.ClassDefinition) string {
	if len(defs) == 0 {
		return fmt.Sprintf("No class found matching '%s'.", name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d type(s) matching '%s'", len(defs), name)
	if len(defs) == query.ClassDefinitionLimit {
		fmt.Fprintf(&b, " (showing first %d)", query.ClassDefinitionLimit)
	}
	b.WriteString(":\n")

	for _, d := range defs {
		fmt.Fprintf(&b, "\n=== %s %s ===\n", d.Kind, d.FullName)
		fmt.Fprintf(&b, "File: %s:%d\n", d.FilePath, d.Line)
		if d.Namespace != "" {
			fmt.Fprintf(&b, "Namespace: %s\n", d.Namespace)
		}
		if d.Modifiers != "" {
			fmt.Fprintf(&b, "Modifiers: %s\n", d.Modifiers)
		}
		if d.BaseType != "" {
			fmt.Fprintf(&b, "Base type: %s\n", d.BaseType)
		}
		if len(d.Interfaces) > 0 {
			fmt.Fprintf(&b, "Interfaces: %s\n", strings.Join(d.Interfaces, ", "))
		} else {
			b.WriteString("Interfaces: none\n")
		}

		if len(d.Properties) > 0 {
			fmt.Fprintf(&b, "\nProperties (%d):\n", len(d.Properties))
			for _, p := range d.Properties {
				fmt.Fprintf(&b, "  %s  [line %d]\n", propertyText(p), p.Line)
			}
		}
		if len(d.Methods) > 0 {
			fmt.Fprintf(&b, "\nMethods (%d):\n", len(d.Methods))
			for _, m := range d.Methods {
				fmt.Fprintf(&b, "  %s  [line %d]\n", m.Signature, m.Line)
			}
		}
	}
	return b.String()
}

func renderSearch(res *query.SearchResults) string {
	if res.Empty() {
		return fmt.Sprintf("No results found for '%s' (filter: %s).", res.Query, res.Kind)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for '%s' (filter: %s):\n", res.Query, res.Kind)

	writeTypes := func(title string, types []query.TypeInfo) {
		if len(types) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s (%d%s):\n", title, len(types), capNote(len(types), query.SearchLimit))
		for _, t := range types {
			fmt.Fprintf(&b, "  %s %s  [%s]\n", t.Kind, t.FullName, location(t.FilePath, t.Line))
		}
	}

	writeTypes("Types", res.Classes)
	writeTypes("Interfaces", res.Interfaces)

	if len(res.Methods) > 0 {
		fmt.Fprintf(&b, "\nMethods (%d%s):\n", len(res.Methods), capNote(len(res.Methods), query.SearchLimit))
		for _, m := range res.Methods {
			fmt.Fprintf(&b, "  %s: %s  [%s]\n", m.OwnerFullName, m.Signature, location(m.FilePath, m.Line))
		}
	}
	if len(res.Properties) > 0 {
		fmt.Fprintf(&b, "\nProperties (%d%s):\n", len(res.Properties), capNote(len(res.Properties), query.SearchLimit))
		for _, p := range res.Properties {
			fmt.Fprintf(&b, "  %s: %s  [%s]\n", p.OwnerFullName, propertyText(p), location(p.FilePath, p.Line))
		}
	}
	return b.String()
}

func renderEdgeMatches(verb, name string, matches []query.EdgeMatch) string {
	if len(matches) == 0 {
		switch verb {
		case "implement":
			return fmt.Sprintf("No implementations found for '%s'.", name)
		default:
			return fmt.Sprintf("No subclasses found for '%s'.", name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d type(s) that %s '%s':\n\n", len(matches), verb, name)
	for _, m := range matches {
		fmt.Fprintf(&b, "  %s %s : %s  [%s]\n", m.Type.Kind, m.Type.FullName, m.Edge, location(m.Type.FilePath, m.Type.Line))
	}
	return b.String()
}

func renderNamespace(res *query.NamespaceContents) string {
	if len(res.Types) == 0 {
		return fmt.Sprintf("No types found in namespace '%s'.", res.Namespace)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Namespace '%s' contains %d type(s)", res.Namespace, len(res.Types))
	if res.Truncated {
		fmt.Fprintf(&b, " (showing first %d)", query.NamespaceLimit)
	}
	b.WriteString(":\n")

	current := "\x00"
	for _, t := range res.Types {
		if t.Namespace != current {
			current = t.Namespace
			fmt.Fprintf(&b, "\n[%s]\n", current)
		}
		line := fmt.Sprintf("  %s %s", t.Kind, t.Name)
		if t.BaseType != "" {
			line += " : " + t.BaseType
		}
		fmt.Fprintf(&b, "%s  [%s]\n", line, location(t.FilePath, t.Line))
	}
	return b.String()
}

func renderMethodSignatures(className, methodName string, methods []query.MethodInfo) string {
	if len(methods) == 0 {
		return fmt.Sprintf("No method matching '%s' found on '%s'.", methodName, className)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d method(s) matching '%s' on '%s':\n", len(methods), methodName, className)
	for _, m := range methods {
		fmt.Fprintf(&b, "\n%s.%s\n", m.OwnerFullName, m.Name)
		fmt.Fprintf(&b, "  Signature:  %s\n", m.Signature)
		fmt.Fprintf(&b, "  Returns:    %s\n", m.ReturnType)
		params := m.Parameters
		if params == "" {
			params = "(none)"
		}
		fmt.Fprintf(&b, "  Parameters: %s\n", params)
		if m.Modifiers != "" {
			fmt.Fprintf(&b, "  Modifiers:  %s\n", m.Modifiers)
		}
		fmt.Fprintf(&b, "  Location:   %s:%d\n", m.FilePath, m.Line)
	}
	return b.String()
}

func renderHierarchy(h *query.Hierarchy) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Type hierarchy for %s:\n", h.Root.Key)

	if len(h.Ancestors) > 0 {
		b.WriteString("\nAncestors (nearest first):\n")
		for _, a := range h.Ancestors {
			if a.External {
				fmt.Fprintf(&b, "  %s (not indexed)\n", a.Key)
				continue
			}
			fmt.Fprintf(&b, "  %s  [%s]\n", a.Key, location(a.Type.FilePath, a.Type.Line))
		}
	} else {
		b.WriteString("\nAncestors: none\n")
	}

	if len(h.Interfaces) > 0 {
		fmt.Fprintf(&b, "Implements: %s\n", strings.Join(h.Interfaces, ", "))
	}

	descendants := h.Descendants()
	if len(descendants) == 0 {
		b.WriteString("\nSubclasses: none\n")
	} else {
		fmt.Fprintf(&b, "\nSubclasses (%d):\n%s\n", len(descendants), h.Root.Key)
		for _, d := range descendants {
			fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", d.Depth), d.Key)
		}
	}

	if h.Truncated {
		fmt.Fprintf(&b, "\n(hierarchy truncated at depth %d or %d types)\n", query.HierarchyMaxDepth, query.HierarchyMaxNodes)
	}
	return b.String()
}

func renderStatus(st *query.Status) string {
	var b strings.Builder
	b.WriteString("Index status:\n")
	if st.Path != "" {
		fmt.Fprintf(&b, "  Index file:        %s\n", st.Path)
	}
	fmt.Fprintf(&b, "  Namespaces:        %d\n", st.Counts.Namespaces)
	fmt.Fprintf(&b, "  Types:             %d (interfaces: %d)\n", st.Counts.Types, st.Counts.Interfaces)
	fmt.Fprintf(&b, "  Methods:           %d\n", st.Counts.Methods)
	fmt.Fprintf(&b, "  Properties:        %d\n", st.Counts.Properties)
	fmt.Fprintf(&b, "  Inheritance edges: %d\n", st.Counts.Inheritance)
	fmt.Fprintf(&b, "  Interface edges:   %d\n", st.Counts.Implements)

	meta := st.Metadata
	if meta[storage.MetaBuildID] == "" {
		b.WriteString("\nNo build recorded. Run 'typeindex index' to build the index.\n")
		return b.String()
	}

	b.WriteString("\nLast build:\n")
	fmt.Fprintf(&b, "  ID:       %s\n", meta[storage.MetaBuildID])
	fmt.Fprintf(&b, "  Finished: %s\n", meta[storage.MetaBuildTime])
	fmt.Fprintf(&b, "  Duration: %s\n", meta[storage.MetaBuildDuration])
	fmt.Fprintf(&b, "  Files:    %s indexed, %s failed\n", meta[storage.MetaFilesIndexed], meta[storage.MetaFilesFailed])
	if roots := meta[storage.MetaSourceRoots]; roots != "" {
		fmt.Fprintf(&b, "  Roots:    %s\n", strings.ReplaceAll(roots, ",", ", "))
	}

	known := map[string]bool{
		storage.MetaBuildID: true, storage.MetaBuildTime: true, storage.MetaBuildDuration: true,
		storage.MetaFilesIndexed: true, storage.MetaFilesFailed: true, storage.MetaSourceRoots: true,
	}
	var extra []string
	for k := range meta {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintf(&b, "  %s: %s\n", k, meta[k])
	}
	return b.String()
}

func renderSource(view *source.SourceView) string {
	var b strings.Builder

	header := view.Path
	if filepath.Clean(view.Requested) != view.Path {
		header = fmt.Sprintf("%s (resolved from %s)", view.Path, view.Requested)
	}

	if view.Term == "" {
		fmt.Fprintf(&b, "File: %s (%d lines)\n\n", header, view.TotalLines)
		for _, l := range view.Lines {
			writeLine(&b, l)
		}
		if view.Truncated {
			fmt.Fprintf(&b, "\n... truncated: showing %d of %d lines\n", len(view.Lines), view.TotalLines)
		}
		return b.String()
	}

	if len(view.Windows) == 0 {
		return fmt.Sprintf("No matches for '%s' in %s.", view.Term, header)
	}

	fmt.Fprintf(&b, "Found %d match(es) for '%s' in %s", view.TotalMatches, view.Term, header)
	if view.TotalMatches > len(view.Windows) {
		fmt.Fprintf(&b, " (showing %d window(s))", len(view.Windows))
	}
	b.WriteString(":\n")

	for i, w := range view.Windows {
		if i > 0 {
			b.WriteString("---\n")
		} else {
			b.WriteString("\n")
		}
		for _, l := range w.Lines {
			writeLine(&b, l)
		}
	}
	return b.String()
}

func renderUsages(res *source.UsageResult) string {
	var b strings.Builder
	if len(res.Examples) == 0 {
		fmt.Fprintf(&b, "No usage examples found for '%s'.", res.Target)
	} else {
		fmt.Fprintf(&b, "Found %d usage example(s) of '%s' (scanned %d files):\n", len(res.Examples), res.Target, res.FilesScanned)
		for _, u := range res.Examples {
			fmt.Fprintf(&b, "\n--- %s:%d ---\n", u.Path, u.Line)
			for _, l := range u.Window.Lines {
				writeLine(&b, l)
			}
		}
	}
	if res.TimedOut {
		b.WriteString("\n(search timed out; results are partial)\n")
	}
	return b.String()
}

func writeLine(b *strings.Builder, l source.Line) {
	marker := " "
	if l.Match {
		marker = ">"
	}
	fmt.Fprintf(b, "%s%5d: %s\n", marker, l.Number, l.Text)
}

func propertyText(p query.PropertyInfo) string {
	var accessors []string
	if p.HasGetter {
		accessors = append(accessors, "get;")
	}
	if p.HasSetter {
		accessors = append(accessors, "set;")
	}
	decl := strings.TrimSpace(fmt.Sprintf("%s %s %s", p.Modifiers, p.Type, p.Name))
	if len(accessors) == 0 {
		return decl + " { }"
	}
	return decl + " { " + strings.Join(accessors, " ") + " }"
}

func location(path string, line int) string {
	return fmt.Sprintf("%s:%d", filepath.Base(path), line)
}

func capNote(n, limit int) string {
	if n >= limit {
		return fmt.Sprintf(", capped at %d", limit)
	}
	return ""
}
