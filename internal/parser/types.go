package parser

import "strings"

// Kind is the declaration keyword of a type.
type Kind string

const (
	KindClass     Kind = "class"
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
)

// Parser extracts the structural model of one source file.
// Implementations must not fail: unrecognised constructs are simply omitted.
type Parser interface {
	ParseFile(text string) *FileStructure
}

// FileStructure is everything the index keeps about one file.
type FileStructure struct {
	Path      string
	Namespace string // first namespace statement; empty when the file declares none
	Types     []*TypeDecl
}

// HasNamespace reports whether the file declared a namespace.
func (f *FileStructure) HasNamespace() bool {
	return f.Namespace != ""
}

// TypeDecl is a class, interface, struct or enum declaration.
type TypeDecl struct {
	Name       string
	FullName   string // Namespace.Name, or Namespace.Outer.Name for nested types
	Kind       Kind
	Modifiers  []string // access and modifier keywords in source order
	BaseType   string   // first base-list entry of a class or struct; empty otherwise
	Interfaces []string // remaining base-list entries; every entry for interfaces
	Line       int      // 1-based declaration line
	EndLine    int      // line holding the closing brace, or the last line for unterminated bodies

	IsInterface bool
	IsAbstract  bool
	IsStatic    bool

	Methods    []MethodDecl
	Properties []PropertyDecl
}

// ModifierText joins the modifier keywords with single spaces.
func (t *TypeDecl) ModifierText() string {
	return strings.Join(t.Modifiers, " ")
}

// MethodDecl is a method signature found directly inside a type body.
type MethodDecl struct {
	Name       string
	ReturnType string
	Parameters string // raw parameter text, as written on the declaration line
	Modifiers  []string
	IsVirtual  bool
	IsOverride bool
	IsAbstract bool
	Line       int
	Signature  string // normalised "modifiers ReturnType Name(params)"
}

// ModifierText joins the modifier keywords with single spaces.
func (m *MethodDecl) ModifierText() string {
	return strings.Join(m.Modifiers, " ")
}

// PropertyDecl is a property found directly inside a type body.
// Getter and setter flags come from the declaration line only.
type PropertyDecl struct {
	Name      string
	Type      string
	HasGetter bool
	HasSetter bool
	Modifiers []string
	Line      int
}

// ModifierText joins the modifier keywords with single spaces.
func (p *PropertyDecl) ModifierText() string {
	return strings.Join(p.Modifiers, " ")
}
