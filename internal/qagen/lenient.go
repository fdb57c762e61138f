package qagen

import (
	"strings"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// UnmarshalLenient decodes JSON5 into v. Single-quoted strings, which the
// decoder does not accept, are rewritten as double-quoted strings first.
func UnmarshalLenient(data []byte, v any) error {
	return json5.Unmarshal([]byte(requoteSingle(string(data))), v)
}

// requoteSingle rewrites single-quoted strings as double-quoted ones,
// leaving double-quoted strings and comments untouched.
func requoteSingle(s string) string {
	if !strings.ContainsRune(s, '\'') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '"':
			end := skipString(rs, i, '"')
			b.WriteString(string(rs[i:end]))
			i = end - 1
		case r == '/' && i+1 < len(rs) && rs[i+1] == '/':
			end := i
			for end < len(rs) && rs[end] != '\n' {
				end++
			}
			b.WriteString(string(rs[i:end]))
			i = end - 1
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			end := i + 2
			for end+1 < len(rs) && !(rs[end] == '*' && rs[end+1] == '/') {
				end++
			}
			if end+1 >= len(rs) {
				b.WriteString(string(rs[i:]))
				return b.String()
			}
			b.WriteString(string(rs[i : end+2]))
			i = end + 1
		case r == '\'':
			b.WriteByte('"')
			i++
			for ; i < len(rs) && rs[i] != '\''; i++ {
				switch {
				case rs[i] == '\\' && i+1 < len(rs) && rs[i+1] == '\'':
					b.WriteRune('\'')
					i++
				case rs[i] == '\\' && i+1 < len(rs):
					b.WriteRune('\\')
					b.WriteRune(rs[i+1])
					i++
				case rs[i] == '"':
					b.WriteString(`\"`)
				default:
					b.WriteRune(rs[i])
				}
			}
			b.WriteByte('"')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// skipString returns the index just past the string opened at rs[start].
func skipString(rs []rune, start int, quote rune) int {
	for i := start + 1; i < len(rs); i++ {
		switch rs[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return len(rs)
}
