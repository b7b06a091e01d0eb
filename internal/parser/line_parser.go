package parser

import (
	"regexp"
	"strings"
)

// Declaration patterns. They run against sanitized lines (no comments, no
// string contents), so they only ever see code.
const (
	typeModifiers   = `(?:(?:public|private|protected|internal|static|abstract|sealed|partial|new|unsafe|readonly|ref|file)\s+)*`
	memberModifiers = `(?:(?:public|private|protected|internal|static|virtual|override|abstract|sealed|async|extern|new|unsafe|readonly|partial|volatile|required)\s+)*`
	typeRef         = `[\w.]+(?:\s*<[^()]*?>)?(?:\s*\[[\s,]*\])*\??`
	memberName      = `(?:\w+\.)*@?\w+`
)

var (
	namespaceRe  = regexp.MustCompile(`^\s*namespace\s+([\w.]+)`)
	attributesRe = regexp.MustCompile(`^\s*(?:\[[^\]]*\]\s*)+`)
	genericRe    = regexp.MustCompile(`<[^<>]*>`)
	typeDeclRe   = regexp.MustCompile(`^\s*(` + typeModifiers + `)(class|interface|struct|enum)\s+@?(\w+)(.*)$`)
	methodRe     = regexp.MustCompile(`^\s*(` + memberModifiers + `)(` + typeRef + `)\s+(` + memberName + `)\s*(?:<[^()]*?>)?\s*\(([^)]*)`)
	propertyRe   = regexp.MustCompile(`^\s*(` + memberModifiers + `)(` + typeRef + `)\s+(` + memberName + `)\s*\{`)
	getterRe     = regexp.MustCompile(`\bget\b`)
	setterRe     = regexp.MustCompile(`\bset\b`)
	whereRe      = regexp.MustCompile(`\bwhere\b`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// accessorNames are never methods even when they look like one.
var accessorNames = map[string]bool{
	"get":    true,
	"set":    true,
	"add":    true,
	"remove": true,
	"init":   true,
}

// statementKeywords cannot start a member declaration; seeing one in the
// return-type or name slot means the pattern matched a statement.
var statementKeywords = map[string]bool{
	"return": true, "new": true, "if": true, "else": true, "while": true,
	"for": true, "foreach": true, "switch": true, "case": true, "using": true,
	"lock": true, "throw": true, "catch": true, "try": true, "finally": true,
	"do": true, "goto": true, "await": true, "yield": true, "var": true,
	"fixed": true, "checked": true, "unchecked": true, "typeof": true,
	"sizeof": true, "nameof": true, "delegate": true, "event": true,
	"operator": true, "namespace": true, "base": true, "this": true,
	"class": true, "struct": true, "interface": true, "enum": true,
	"default": true, "in": true, "is": true, "as": true, "out": true,
	"ref": true, "params": true, "const": true, "implicit": true, "explicit": true,
}

// LineParser is the heuristic, line-oriented Parser. It tracks brace depth
// instead of building a syntax tree, so it tolerates partial and malformed
// input at the cost of missing unusual layouts.
type LineParser struct{}

// NewLineParser returns the default Parser.
func NewLineParser() *LineParser {
	return &LineParser{}
}

// openType is a type declaration whose body is still being read.
type openType struct {
	decl      *TypeDecl
	opened    bool // body brace seen
	bodyDepth int  // depth inside the body; members start at exactly this depth
}

// ParseFile extracts the namespace, type declarations and their direct members.
func (p *LineParser) ParseFile(text string) *FileStructure {
	fs := &FileStructure{}

	raw := splitLines(text)
	code := sanitizeLines(raw)

	for _, line := range code {
		if m := namespaceRe.FindStringSubmatch(line); m != nil {
			fs.Namespace = m[1]
			break
		}
	}

	var (
		stack []*openType
		depth int
	)

	// closePending drops types whose body never opened before another
	// declaration started; they keep their declaration line as end.
	closePending := func() {
		for len(stack) > 0 && !stack[len(stack)-1].opened {
			top := stack[len(stack)-1]
			top.decl.EndLine = top.decl.Line
			stack = stack[:len(stack)-1]
		}
	}

	for i, line := range code {
		lineNo := i + 1
		decl := stripAttributes(line)

		if t := parseTypeDeclaration(decl, lineNo); t != nil {
			closePending()
			t.FullName = qualify(fs.Namespace, stack, t.Name)
			fs.Types = append(fs.Types, t)
			stack = append(stack, &openType{decl: t})
		} else if len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.opened && depth == top.bodyDepth && top.decl.Kind != KindEnum {
				collectMember(top.decl, decl, lineNo)
			}
		}

		for j := 0; j < len(line); j++ {
			switch line[j] {
			case '{':
				depth++
				if len(stack) > 0 {
					top := stack[len(stack)-1]
					if !top.opened {
						top.opened = true
						top.bodyDepth = depth
					}
				}
			case '}':
				depth--
				if depth < 0 {
					depth = 0
				}
				for len(stack) > 0 {
					top := stack[len(stack)-1]
					if !top.opened || depth >= top.bodyDepth {
						break
					}
					top.decl.EndLine = lineNo
					stack = stack[:len(stack)-1]
				}
			}
		}
	}

	// Unterminated bodies run to the end of the file.
	for _, ot := range stack {
		if ot.opened {
			ot.decl.EndLine = len(code)
		} else {
			ot.decl.EndLine = ot.decl.Line
		}
	}

	return fs
}

// qualify builds the full name of a type declared inside the open types on the stack.
func qualify(namespace string, stack []*openType, name string) string {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].opened {
			return stack[i].decl.FullName + "." + name
		}
	}
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

// parseTypeDeclaration matches one sanitized line against the type pattern.
// Generic parameter lists are removed first, so "class Repo<T> : IRepo<T>"
// yields the name Repo and the interface IRepo.
func parseTypeDeclaration(line string, lineNo int) *TypeDecl {
	m := typeDeclRe.FindStringSubmatch(stripGenerics(line))
	if m == nil {
		return nil
	}

	t := &TypeDecl{
		Name:      m[3],
		Kind:      Kind(m[2]),
		Modifiers: strings.Fields(m[1]),
		Line:      lineNo,
	}
	t.IsInterface = t.Kind == KindInterface
	for _, mod := range t.Modifiers {
		switch mod {
		case "abstract":
			t.IsAbstract = true
		case "static":
			t.IsStatic = true
		}
	}

	bases := parseBaseList(m[4])
	switch t.Kind {
	case KindInterface:
		t.Interfaces = bases
	case KindClass, KindStruct:
		if len(bases) > 0 {
			t.BaseType = bases[0]
			t.Interfaces = bases[1:]
		}
	}
	if len(t.Interfaces) == 0 {
		t.Interfaces = nil
	}

	return t
}

// parseBaseList splits the text after a type name (": A, B where T : C {")
// into its comma-separated entries.
func parseBaseList(rest string) []string {
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, ":") {
		return nil
	}
	rest = rest[1:]

	if idx := strings.IndexAny(rest, "{;"); idx >= 0 {
		rest = rest[:idx]
	}
	if loc := whereRe.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}

	var bases []string
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bases = append(bases, part)
	}
	return bases
}

// collectMember records a method or property declared on line.
func collectMember(t *TypeDecl, line string, lineNo int) {
	if m := methodRe.FindStringSubmatch(line); m != nil {
		mods := strings.Fields(m[1])
		returnType := normalizeSpace(m[2])
		name := lastSegment(m[3])
		if name == t.Name || accessorNames[name] || statementKeywords[name] || statementKeywords[returnType] {
			return
		}

		params := strings.TrimSpace(m[4])
		method := MethodDecl{
			Name:       name,
			ReturnType: returnType,
			Parameters: params,
			Modifiers:  mods,
			Line:       lineNo,
			Signature:  buildSignature(mods, returnType, m[3], params),
		}
		for _, mod := range mods {
			switch mod {
			case "virtual":
				method.IsVirtual = true
			case "override":
				method.IsOverride = true
			case "abstract":
				method.IsAbstract = true
			}
		}
		t.Methods = append(t.Methods, method)
		return
	}

	if m := propertyRe.FindStringSubmatch(line); m != nil {
		propType := normalizeSpace(m[2])
		name := lastSegment(m[3])
		if accessorNames[name] || statementKeywords[name] || statementKeywords[propType] {
			return
		}

		t.Properties = append(t.Properties, PropertyDecl{
			Name:      name,
			Type:      propType,
			HasGetter: getterRe.MatchString(line),
			HasSetter: setterRe.MatchString(line),
			Modifiers: strings.Fields(m[1]),
			Line:      lineNo,
		})
	}
}

func buildSignature(mods []string, returnType, name, params string) string {
	var b strings.Builder
	for _, mod := range mods {
		b.WriteString(mod)
		b.WriteByte(' ')
	}
	b.WriteString(returnType)
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteByte('(')
	b.WriteString(normalizeSpace(params))
	b.WriteByte(')')
	return b.String()
}

// DeclarationMatcher recognises lines that declare a method with one name.
// It applies the same member pattern the parser uses, pinned to that name.
type DeclarationMatcher struct {
	re *regexp.Regexp
}

// NewDeclarationMatcher builds a matcher for methods called name.
func NewDeclarationMatcher(name string) *DeclarationMatcher {
	return &DeclarationMatcher{
		re: regexp.MustCompile(`^\s*(?:\[[^\]]*\]\s*)*` + memberModifiers + `(` + typeRef + `)\s+(?:\w+\.)*` + regexp.QuoteMeta(name) + `\s*(?:<[^()]*?>)?\s*\(`),
	}
}

// Match reports whether line declares the method. "return Foo(x)" and
// similar statements are calls, not declarations.
func (d *DeclarationMatcher) Match(line string) bool {
	m := d.re.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	return !statementKeywords[normalizeSpace(m[1])]
}

// stripGenerics removes generic argument lists, innermost first.
func stripGenerics(s string) string {
	for {
		stripped := genericRe.ReplaceAllString(s, "")
		if stripped == s {
			return s
		}
		s = stripped
	}
}

func stripAttributes(line string) string {
	if loc := attributesRe.FindStringIndex(line); loc != nil {
		return line[loc[1]:]
	}
	return line
}

func lastSegment(name string) string {
	name = strings.TrimPrefix(name, "@")
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return strings.TrimPrefix(name[idx+1:], "@")
	}
	return name
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// splitLines splits on \n and drops a trailing \r per line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
