package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/dominikbraun/graph"
)

// HierarchyNode is one type in a hierarchy. External nodes are base types
// referenced by name that are not in the index.
type HierarchyNode struct {
	Key      string // full name, or the raw name for external nodes
	Name     string
	Type     *TypeInfo // nil when External
	External bool
	Depth    int // distance from the root; ancestors negative, descendants positive
}

// Hierarchy is the resolved inheritance neighbourhood of one type.
type Hierarchy struct {
	Root       *HierarchyNode
	Ancestors  []*HierarchyNode // nearest parent first
	Interfaces []string         // raw interface names of the root
	Truncated  bool             // a depth or size cap was hit

	g graph.Graph[string, *HierarchyNode]
}

// Children returns the direct subclasses of key, ordered by key.
func (h *Hierarchy) Children(key string) []*HierarchyNode {
	preds, err := h.g.PredecessorMap()
	if err != nil {
		return nil
	}
	var out []*HierarchyNode
	for child := range preds[key] {
		node, err := h.g.Vertex(child)
		if err != nil {
			continue
		}
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Descendants returns every subclass below the root in depth-first order.
func (h *Hierarchy) Descendants() []*HierarchyNode {
	var out []*HierarchyNode
	var walk func(key string)
	walk = func(key string) {
		for _, child := range h.Children(key) {
			out = append(out, child)
			walk(child.Key)
		}
	}
	walk(h.Root.Key)
	return out
}

// GetTypeHierarchy resolves the ancestors and descendants of the type named
// name. Raw base-type names are joined against the type name index at query
// time; a name that resolves to nothing ends the chain as an external node.
// Each direction stops after HierarchyMaxDepth levels, and cycles are cut.
func (e *Engine) GetTypeHierarchy(ctx context.Context, name string) (*Hierarchy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyQuery
	}

	root, err := e.resolveType(ctx, name, "")
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrTypeNotFound, name)
	}

	h := &Hierarchy{
		g: graph.New(func(n *HierarchyNode) string { return n.Key }, graph.Directed()),
	}
	h.Root = &HierarchyNode{Key: root.FullName, Name: root.Name, Type: root}
	if err := h.g.AddVertex(h.Root); err != nil {
		return nil, fmt.Errorf("failed to add root: %w", err)
	}

	if h.Interfaces, err = e.interfacesOf(ctx, root.ID); err != nil {
		return nil, err
	}
	if err := e.walkAncestors(ctx, h, root); err != nil {
		return nil, err
	}
	if err := e.walkDescendants(ctx, h, root); err != nil {
		return nil, err
	}
	return h, nil
}

// walkAncestors follows base types upward. Edges point child -> parent.
func (e *Engine) walkAncestors(ctx context.Context, h *Hierarchy, root *TypeInfo) error {
	current := root
	childKey := root.FullName

	for depth := 1; current.BaseType != ""; depth++ {
		if depth > HierarchyMaxDepth {
			h.Truncated = true
			return nil
		}

		parent, err := e.resolveType(ctx, current.BaseType, current.Namespace)
		if err != nil {
			return err
		}

		node := &HierarchyNode{Key: current.BaseType, Name: lastName(current.BaseType), External: true, Depth: -depth}
		if parent != nil {
			node = &HierarchyNode{Key: parent.FullName, Name: parent.Name, Type: parent, Depth: -depth}
		}

		if err := h.g.AddVertex(node); err != nil {
			if errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil // inheritance cycle in the source
			}
			return fmt.Errorf("failed to add %s: %w", node.Key, err)
		}
		if err := h.g.AddEdge(childKey, node.Key); err != nil {
			return fmt.Errorf("failed to link %s: %w", node.Key, err)
		}
		h.Ancestors = append(h.Ancestors, node)

		if parent == nil {
			return nil
		}
		current = parent
		childKey = parent.FullName
	}
	return nil
}

// walkDescendants finds subclasses level by level. A child matches when its
// raw parent text equals the type's name or full name, or ends in ".Name".
func (e *Engine) walkDescendants(ctx context.Context, h *Hierarchy, root *TypeInfo) error {
	frontier := []*TypeInfo{root}
	total := 1

	for depth := 1; len(frontier) > 0; depth++ {
		if depth > HierarchyMaxDepth {
			h.Truncated = true
			return nil
		}

		var next []*TypeInfo
		for _, parent := range frontier {
			children, err := e.directSubclasses(ctx, parent)
			if err != nil {
				return err
			}
			for i := range children {
				child := &children[i]
				if _, err := h.g.Vertex(child.FullName); err == nil {
					continue // already placed, or a cycle back to an ancestor
				}
				if total >= HierarchyMaxNodes {
					h.Truncated = true
					return nil
				}

				node := &HierarchyNode{Key: child.FullName, Name: child.Name, Type: child, Depth: depth}
				if err := h.g.AddVertex(node); err != nil {
					return fmt.Errorf("failed to add %s: %w", node.Key, err)
				}
				if err := h.g.AddEdge(node.Key, parent.FullName); err != nil {
					return fmt.Errorf("failed to link %s: %w", node.Key, err)
				}
				total++
				next = append(next, child)
			}
		}
		frontier = next
	}
	return nil
}

func (e *Engine) directSubclasses(ctx context.Context, parent *TypeInfo) ([]TypeInfo, error) {
	return e.selectTypes(ctx, typesQuery().
		Join("type_inheritance h ON h.class_id = t.id").
		Where(sq.Or{
			sq.Eq{"h.parent_name": parent.Name},
			sq.Eq{"h.parent_name": parent.FullName},
			likeExpr("h.parent_name", "%."+escapeLike(parent.Name)),
		}).
		Where(sq.NotEq{"t.id": parent.ID}).
		OrderBy("t.full_name"))
}

// resolveType finds the indexed type a raw name refers to. An exact full
// name wins; otherwise a type with that simple name, preferring one in
// namespace. Returns nil when nothing matches.
func (e *Engine) resolveType(ctx context.Context, raw, namespace string) (*TypeInfo, error) {
	simple := lastName(raw)
	candidates, err := e.selectTypes(ctx, typesQuery().
		Where(sq.Or{
			sq.Expr("t.full_name = ? COLLATE NOCASE", raw),
			sq.Expr("t.name = ? COLLATE NOCASE", simple),
		}).
		OrderByClause("(t.full_name = ? COLLATE NOCASE) DESC", raw).
		OrderByClause("(IFNULL(n.name, '') = ?) DESC", namespace).
		OrderBy("t.full_name").
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

func lastName(raw string) string {
	if idx := strings.LastIndex(raw, "."); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}
