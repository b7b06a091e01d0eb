package parser

import "strings"

// lexState carries multi-line constructs from one line to the next.
type lexState struct {
	inBlockComment bool
	inVerbatim     bool // inside @"..." which may span lines
}

// sanitizeLines returns a copy of lines with comments removed and string and
// character literal contents blanked to "" and ''. Braces left in the result
// are structural.
func sanitizeLines(lines []string) []string {
	out := make([]string, len(lines))
	var st lexState
	for i, line := range lines {
		out[i] = st.sanitize(line)
	}
	return out
}

func (st *lexState) sanitize(line string) string {
	var b strings.Builder
	b.Grow(len(line))

	for i := 0; i < len(line); i++ {
		c := line[i]

		if st.inBlockComment {
			if c == '*' && i+1 < len(line) && line[i+1] == '/' {
				st.inBlockComment = false
				i++
				b.WriteByte(' ')
			}
			continue
		}

		if st.inVerbatim {
			if c == '"' {
				if i+1 < len(line) && line[i+1] == '"' {
					i++ // escaped quote
					continue
				}
				st.inVerbatim = false
				b.WriteByte('"')
			}
			continue
		}

		switch {
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(b.String(), " \t")
		case c == '/' && i+1 < len(line) && line[i+1] == '*':
			st.inBlockComment = true
			i++
		case isVerbatimStart(line, i):
			// skip the @ / $ prefix characters up to the quote
			for line[i] != '"' {
				i++
			}
			b.WriteByte('"')
			st.inVerbatim = true
		case c == '"':
			b.WriteByte('"')
			i = skipQuoted(line, i+1, '"')
			b.WriteByte('"')
		case c == '\'':
			b.WriteString("''")
			i = skipQuoted(line, i+1, '\'')
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// isVerbatimStart matches @" $@" and @$" at position i.
func isVerbatimStart(line string, i int) bool {
	rest := line[i:]
	return strings.HasPrefix(rest, `@"`) || strings.HasPrefix(rest, `$@"`) || strings.HasPrefix(rest, `@$"`)
}

// skipQuoted returns the index of the closing quote, honouring backslash
// escapes. Unterminated literals end at the end of the line.
func skipQuoted(line string, i int, quote byte) int {
	for ; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return len(line)
}
