package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/typeindex/internal/storage"
)

var (
	// ErrEmptyQuery is returned when a required search string is blank.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrInvalidKind is returned for an unknown SearchAPI filter.
	ErrInvalidKind = errors.New("invalid filter type")

	// ErrTypeNotFound is returned when a lookup needs exactly one type and none matches.
	ErrTypeNotFound = errors.New("type not found")
)

// typeColumns is the column list scanned by scanType, in order.
var typeColumns = []string{
	"t.id", "t.name", "t.full_name", "IFNULL(n.name, '')", "t.file_path", "t.line", "t.end_line",
	"t.kind", "t.modifiers", "t.is_interface", "t.is_abstract", "t.is_static", "IFNULL(t.base_type, '')",
}

var methodColumns = []string{
	"m.name", "m.return_type", "m.parameters", "m.modifiers", "m.signature",
	"m.is_virtual", "m.is_override", "m.is_abstract", "m.line",
	"t.name", "t.full_name", "t.file_path",
}

var propertyColumns = []string{
	"p.name", "p.property_type", "p.modifiers", "p.has_getter", "p.has_setter", "p.line",
	"t.name", "t.full_name", "t.file_path",
}

// Engine answers structural questions against an index. It only reads and
// is safe for concurrent use.
type Engine struct {
	store *storage.Store
	db    *sql.DB
}

// NewEngine creates an Engine over store.
func NewEngine(store *storage.Store) *Engine {
	return &Engine{store: store, db: store.DB()}
}

// GetClassDefinition returns up to ClassDefinitionLimit types whose name or
// full name contains name, with their members and interfaces. Types whose
// name equals name sort first, the rest by full name.
func (e *Engine) GetClassDefinition(ctx context.Context, name string) ([]ClassDefinition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyQuery
	}
	pattern := containsPattern(name)

	types, err := e.selectTypes(ctx, typesQuery().
		Where(sq.Or{likeExpr("t.name", pattern), likeExpr("t.full_name", pattern)}).
		OrderByClause("(LOWER(t.name) = LOWER(?)) DESC", name).
		OrderBy("t.full_name").
		Limit(ClassDefinitionLimit))
	if err != nil {
		return nil, err
	}

	defs := make([]ClassDefinition, 0, len(types))
	for _, t := range types {
		def := ClassDefinition{TypeInfo: t}

		if def.Interfaces, err = e.interfacesOf(ctx, t.ID); err != nil {
			return nil, err
		}
		if def.Methods, err = e.selectMethods(ctx, methodsQuery().
			Where(sq.Eq{"m.class_id": t.ID}).
			OrderBy("m.line", "m.id")); err != nil {
			return nil, err
		}
		if def.Properties, err = e.selectProperties(ctx, propertiesQuery().
			Where(sq.Eq{"p.class_id": t.ID}).
			OrderBy("p.line", "p.id")); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// SearchAPI finds types and properties whose simple name, and methods whose
// name or signature, contains query, capped at SearchLimit per kind.
func (e *Engine) SearchAPI(ctx context.Context, query string, kind Kind) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if kind == "" {
		kind = KindAll
	}
	if !validKind(kind) {
		return nil, fmt.Errorf("%w: %q (expected one of %s)", ErrInvalidKind, kind, strings.Join(ValidKinds, ", "))
	}

	pattern := containsPattern(query)
	res := &SearchResults{Query: query, Kind: kind}

	if kind == KindAll || kind == KindClass || kind == KindInterface {
		// Simple name only: a namespace segment containing the query is not a hit.
		classes, err := e.selectTypes(ctx, typesQuery().
			Where(likeExpr("t.name", pattern)).
			OrderBy("t.full_name").
			Limit(SearchLimit))
		if err != nil {
			return nil, err
		}
		// Interfaces are never queried on their own; they are the
		// interface rows of the class result set.
		for _, c := range classes {
			if c.IsInterface {
				res.Interfaces = append(res.Interfaces, c)
			}
		}
		if kind != KindInterface {
			res.Classes = classes
		}
	}

	if kind == KindAll || kind == KindMethod {
		methods, err := e.selectMethods(ctx, methodsQuery().
			Where(sq.Or{likeExpr("m.name", pattern), likeExpr("m.signature", pattern)}).
			OrderBy("t.full_name", "m.line").
			Limit(SearchLimit))
		if err != nil {
			return nil, err
		}
		res.Methods = methods
	}

	if kind == KindAll || kind == KindProperty {
		props, err := e.selectProperties(ctx, propertiesQuery().
			Where(likeExpr("p.name", pattern)).
			OrderBy("t.full_name", "p.line").
			Limit(SearchLimit))
		if err != nil {
			return nil, err
		}
		res.Properties = props
	}

	return res, nil
}

// FindImplementations returns every type whose raw interface list has an
// entry containing interfaceName. Results are not capped.
func (e *Engine) FindImplementations(ctx context.Context, interfaceName string) ([]EdgeMatch, error) {
	interfaceName = strings.TrimSpace(interfaceName)
	if interfaceName == "" {
		return nil, ErrEmptyQuery
	}
	return e.selectEdgeMatches(ctx, typesQuery().
		Column("i.interface_name").
		Join("type_interfaces i ON i.class_id = t.id").
		Where(likeExpr("i.interface_name", containsPattern(interfaceName))).
		OrderBy("t.full_name", "i.interface_name"))
}

// FindSubclasses returns every type whose raw base type contains
// parentName. Only direct edges are consulted; there is no transitive walk.
func (e *Engine) FindSubclasses(ctx context.Context, parentName string) ([]EdgeMatch, error) {
	parentName = strings.TrimSpace(parentName)
	if parentName == "" {
		return nil, ErrEmptyQuery
	}
	return e.selectEdgeMatches(ctx, typesQuery().
		Column("h.parent_name").
		Join("type_inheritance h ON h.class_id = t.id").
		Where(likeExpr("h.parent_name", containsPattern(parentName))).
		OrderBy("t.full_name"))
}

// GetNamespaceContents returns the types declared in namespace or any
// namespace below it.
func (e *Engine) GetNamespaceContents(ctx context.Context, namespace string) (*NamespaceContents, error) {
	namespace = strings.Trim(strings.TrimSpace(namespace), ".")
	if namespace == "" {
		return nil, ErrEmptyQuery
	}

	types, err := e.selectTypes(ctx, typesQuery().
		Where(sq.Or{
			sq.Expr("n.name = ? COLLATE NOCASE", namespace),
			likeExpr("n.name", escapeLike(namespace)+".%"),
		}).
		OrderBy("n.name", "t.full_name").
		Limit(NamespaceLimit+1))
	if err != nil {
		return nil, err
	}

	res := &NamespaceContents{Namespace: namespace, Types: types}
	if len(types) > NamespaceLimit {
		res.Types = types[:NamespaceLimit]
		res.Truncated = true
	}
	return res, nil
}

// GetMethodSignature returns methods whose owner's name or full name equals
// className and whose name contains methodName.
func (e *Engine) GetMethodSignature(ctx context.Context, className, methodName string) ([]MethodInfo, error) {
	className = strings.TrimSpace(className)
	methodName = strings.TrimSpace(methodName)
	if className == "" || methodName == "" {
		return nil, ErrEmptyQuery
	}

	return e.selectMethods(ctx, methodsQuery().
		Where(sq.Or{
			sq.Expr("t.name = ? COLLATE NOCASE", className),
			sq.Expr("t.full_name = ? COLLATE NOCASE", className),
		}).
		Where(likeExpr("m.name", containsPattern(methodName))).
		OrderByClause("(LOWER(m.name) = LOWER(?)) DESC", methodName).
		OrderBy("t.full_name", "m.line").
		Limit(MethodSignatureLimit))
}

// Status returns row counts and the metadata of the last build.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	counts, err := e.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := e.store.AllMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{Path: e.store.Path(), Counts: counts, Metadata: meta}, nil
}

func typesQuery() sq.SelectBuilder {
	return sq.Select(typeColumns...).
		From("types t").
		LeftJoin("namespaces n ON n.id = t.namespace_id")
}

func methodsQuery() sq.SelectBuilder {
	return sq.Select(methodColumns...).
		From("methods m").
		Join("types t ON t.id = m.class_id")
}

func propertiesQuery() sq.SelectBuilder {
	return sq.Select(propertyColumns...).
		From("properties p").
		Join("types t ON t.id = p.class_id")
}

func (e *Engine) selectTypes(ctx context.Context, q sq.SelectBuilder) ([]TypeInfo, error) {
	rows, err := q.RunWith(e.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query types: %w", err)
	}
	defer rows.Close()

	var out []TypeInfo
	for rows.Next() {
		var t TypeInfo
		if err := rows.Scan(typeDest(&t)...); err != nil {
			return nil, fmt.Errorf("failed to scan type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (e *Engine) selectEdgeMatches(ctx context.Context, q sq.SelectBuilder) ([]EdgeMatch, error) {
	rows, err := q.RunWith(e.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []EdgeMatch
	for rows.Next() {
		var m EdgeMatch
		if err := rows.Scan(append(typeDest(&m.Type), &m.Edge)...); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (e *Engine) selectMethods(ctx context.Context, q sq.SelectBuilder) ([]MethodInfo, error) {
	rows, err := q.RunWith(e.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query methods: %w", err)
	}
	defer rows.Close()

	var out []MethodInfo
	for rows.Next() {
		var m MethodInfo
		if err := rows.Scan(
			&m.Name, &m.ReturnType, &m.Parameters, &m.Modifiers, &m.Signature,
			&m.IsVirtual, &m.IsOverride, &m.IsAbstract, &m.Line,
			&m.OwnerName, &m.OwnerFullName, &m.FilePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan method: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (e *Engine) selectProperties(ctx context.Context, q sq.SelectBuilder) ([]PropertyInfo, error) {
	rows, err := q.RunWith(e.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	var out []PropertyInfo
	for rows.Next() {
		var p PropertyInfo
		if err := rows.Scan(
			&p.Name, &p.Type, &p.Modifiers, &p.HasGetter, &p.HasSetter, &p.Line,
			&p.OwnerName, &p.OwnerFullName, &p.FilePath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (e *Engine) interfacesOf(ctx context.Context, typeID int64) ([]string, error) {
	rows, err := sq.Select("interface_name").
		From("type_interfaces").
		Where(sq.Eq{"class_id": typeID}).
		OrderBy("rowid").
		RunWith(e.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query interfaces: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan interface: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func typeDest(t *TypeInfo) []any {
	return []any{
		&t.ID, &t.Name, &t.FullName, &t.Namespace, &t.FilePath, &t.Line, &t.EndLine,
		&t.Kind, &t.Modifiers, &t.IsInterface, &t.IsAbstract, &t.IsStatic, &t.BaseType,
	}
}

func validKind(k Kind) bool {
	for _, v := range ValidKinds {
		if string(k) == v {
			return true
		}
	}
	return false
}

// likeExpr is a case-insensitive LIKE with backslash as the escape character.
func likeExpr(column, pattern string) sq.Sqlizer {
	return sq.Expr(column+` LIKE ? ESCAPE '\'`, pattern)
}

func containsPattern(s string) string {
	return "%" + escapeLike(s) + "%"
}

// escapeLike neutralises LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
