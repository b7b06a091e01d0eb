package query

import "github.com/mvp-joe/typeindex/internal/storage"

// Result caps.
const (
	ClassDefinitionLimit = 10
	SearchLimit          = 50 // per kind
	MethodSignatureLimit = 20
	NamespaceLimit       = 500
	HierarchyMaxDepth    = 10
	HierarchyMaxNodes    = 200
)

// Kind selects which entity kinds SearchAPI returns.
type Kind string

const (
	KindAll       Kind = "all"
	KindClass     Kind = "class"
	KindMethod    Kind = "method"
	KindProperty  Kind = "property"
	KindInterface Kind = "interface"
)

// ValidKinds lists the accepted SearchAPI filters.
var ValidKinds = []string{string(KindClass), string(KindMethod), string(KindProperty), string(KindInterface), string(KindAll)}

// TypeInfo is one stored type declaration.
type TypeInfo struct {
	ID          int64
	Name        string
	FullName    string
	Namespace   string // empty when the file declared none
	FilePath    string
	Line        int
	EndLine     int
	Kind        string
	Modifiers   string
	IsInterface bool
	IsAbstract  bool
	IsStatic    bool
	BaseType    string // raw text; empty when none
}

// MethodInfo is a method together with its owning type.
type MethodInfo struct {
	Name          string
	ReturnType    string
	Parameters    string
	Modifiers     string
	Signature     string
	IsVirtual     bool
	IsOverride    bool
	IsAbstract    bool
	Line          int
	OwnerName     string
	OwnerFullName string
	FilePath      string
}

// PropertyInfo is a property together with its owning type.
type PropertyInfo struct {
	Name          string
	Type          string
	Modifiers     string
	HasGetter     bool
	HasSetter     bool
	Line          int
	OwnerName     string
	OwnerFullName string
	FilePath      string
}

// ClassDefinition is a type with everything declared directly on it.
type ClassDefinition struct {
	TypeInfo
	Interfaces []string
	Methods    []MethodInfo
	Properties []PropertyInfo
}

// SearchResults holds SearchAPI output. Interfaces is the subset of the
// class result set whose rows are interfaces.
type SearchResults struct {
	Query      string
	Kind       Kind
	Classes    []TypeInfo
	Interfaces []TypeInfo
	Methods    []MethodInfo
	Properties []PropertyInfo
}

// Empty reports whether nothing matched.
func (r *SearchResults) Empty() bool {
	return len(r.Classes) == 0 && len(r.Interfaces) == 0 && len(r.Methods) == 0 && len(r.Properties) == 0
}

// EdgeMatch is a type whose raw inheritance or interface text matched a lookup.
type EdgeMatch struct {
	Type TypeInfo
	Edge string // the raw name as written in the base list
}

// NamespaceContents lists the types of a namespace and its sub-namespaces.
type NamespaceContents struct {
	Namespace string
	Types     []TypeInfo
	Truncated bool
}

// Status summarises the index.
type Status struct {
	Path     string // index file
	Counts   storage.Counts
	Metadata map[string]string
}
