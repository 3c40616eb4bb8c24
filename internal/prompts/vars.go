package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

// Placeholder is one {{VAR:name|key=value}} occurrence in a template
type Placeholder struct {
	Raw     string
	Name    string
	Options map[string]string // join, default
}

var (
	varPattern = regexp.MustCompile(`\{\{VAR:([a-zA-Z0-9_\-]+)((?:\|[^}]+)?)}}`)
	optPattern = regexp.MustCompile(`\|([^=|]+)=([^|]+)`)
)

// ParsePlaceholders returns all placeholders in order of appearance
func ParsePlaceholders(body string) []Placeholder {
	matches := varPattern.FindAllStringSubmatch(body, -1)
	out := make([]Placeholder, 0, len(matches))
	for _, m := range matches {
		out = append(out, Placeholder{Raw: m[0], Name: m[1], Options: parseOptions(m[2])})
	}
	return out
}

func parseOptions(raw string) map[string]string {
	opts := map[string]string{}
	for _, seg := range optPattern.FindAllStringSubmatch(raw, -1) {
		key := strings.ToLower(strings.TrimSpace(seg[1]))
		val := strings.TrimSpace(seg[2])
		if len(val) >= 2 && (val[0] == '"' || val[0] == '\'') && val[len(val)-1] == val[0] {
			val = val[1 : len(val)-1]
		}
		opts[key] = decodeEscapes(val)
	}
	return opts
}

// Vars maps placeholder names to a string or a []string value
type Vars map[string]interface{}

// Render substitutes every placeholder in body. List values are joined with
// the join option (default a blank line). Missing or empty values fall back
// to the default option, or to the empty string.
func Render(body string, vars Vars) string {
	return varPattern.ReplaceAllStringFunc(body, func(raw string) string {
		m := varPattern.FindStringSubmatch(raw)
		opts := parseOptions(m[2])

		joinSep, ok := opts["join"]
		if !ok {
			joinSep = "\n\n"
		}

		var value string
		switch v := vars[m[1]].(type) {
		case nil:
		case string:
			value = v
		case []string:
			value = strings.Join(v, joinSep)
		default:
			value = fmt.Sprint(v)
		}

		if strings.TrimSpace(value) == "" {
			return opts["default"]
		}
		return value
	})
}

func decodeEscapes(s string) string {
	// Minimal decoding: \n, \t, \r, \\; leave others as-is
	b := strings.Builder{}
	b.Grow(len(s))
	esc := false
	for _, r := range s {
		if !esc {
			if r == '\\' {
				esc = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
		esc = false
	}
	if esc {
		b.WriteByte('\\')
	}
	return b.String()
}
