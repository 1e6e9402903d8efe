package gate

import (
	"regexp"
	"strings"

	"remex/internal/domain"
)

// callShape matches text shaped like a routine invocation:
// a dotted identifier followed by a parenthesized argument list.
var callShape = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+)\((.*)\)\s*$`)

// ParseCallLiteral recognizes the routine-call shape inside a literal
// string argument. A literal like "key.delete(web1)" is an invocation
// attempt and must face the gate itself; plain data does not match.
func ParseCallLiteral(s string) (*domain.RoutineCall, bool) {
	m := callShape.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}

	call := &domain.RoutineCall{Name: m[1]}
	for _, part := range splitArgs(m[2]) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, val, ok := splitKwarg(part); ok {
			if call.Kwargs == nil {
				call.Kwargs = make(map[string]domain.Value)
			}
			call.Kwargs[key] = domain.Lit(val)
			continue
		}
		call.Args = append(call.Args, domain.Lit(part))
	}
	return call, true
}

// splitArgs splits a call argument list on top-level commas, keeping
// nested parentheses intact so inner call shapes survive for the next
// scan pass.
func splitArgs(s string) []string {
	var parts []string
	var depth int
	start := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// splitKwarg recognizes key=value with an identifier key
func splitKwarg(s string) (string, string, bool) {
	i := strings.IndexByte(s, '=')
	if i <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(s[:i])
	for _, r := range key {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return "", "", false
		}
	}
	return key, strings.TrimSpace(s[i+1:]), true
}
