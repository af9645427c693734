package entities

import "strings"

// SubstitutePlaceholders replaces every `{{name}}` occurrence in s with
// whatever resolve returns for name. When resolve reports false (unknown
// or cyclic name) the placeholder expands to the empty string, matching
// the giza replacement behavior described in spec.md §4.5 step 3.
func SubstitutePlaceholders(s string, resolve func(name string) (string, bool)) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "{{")
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start:], "}}")
		if end == -1 {
			b.WriteString(s)
			break
		}
		end += start
		b.WriteString(s[:start])
		name := strings.TrimSpace(s[start+2 : end])
		if v, ok := resolve(name); ok {
			b.WriteString(v)
		}
		s = s[end+2:]
	}
	return b.String()
}
