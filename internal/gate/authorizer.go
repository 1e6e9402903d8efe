package gate

import (
	"context"
	"fmt"
	"path"
)

// MatchStrategy selects how ACL patterns match argument shapes.
// Whether grants match by exact value or by pattern is deployment
// policy, so the strategy is configured rather than assumed.
type MatchStrategy string

const (
	// MatchExact requires literal equality with the granted shape
	MatchExact MatchStrategy = "exact"
	// MatchGlob matches each segment with shell-style patterns
	MatchGlob MatchStrategy = "glob"
)

// Rule grants one (routine, argument shape) pattern
type Rule struct {
	// Routine is the routine name or pattern
	Routine string
	// Args constrains the argument shape per position; empty means any
	// arguments are permitted for the routine
	Args []string
}

// TableAuthorizer is the built-in authorizer over a pre-resolved allow
// table: identity -> granted rules. Grants are per (routine, argument
// shape) pattern, not per bare routine name.
type TableAuthorizer struct {
	Strategy MatchStrategy
	Allow    map[string][]Rule
}

// Authorize reports whether identity may call routine with argShape
func (t *TableAuthorizer) Authorize(ctx context.Context, identity, routine string, argShape []string) (bool, error) {
	rules, ok := t.Allow[identity]
	if !ok {
		return false, nil
	}

	for _, rule := range rules {
		nameOK, err := t.match(rule.Routine, routine)
		if err != nil {
			return false, err
		}
		if !nameOK {
			continue
		}
		argsOK, err := t.matchArgs(rule.Args, argShape)
		if err != nil {
			return false, err
		}
		if argsOK {
			return true, nil
		}
	}
	return false, nil
}

func (t *TableAuthorizer) match(pattern, value string) (bool, error) {
	switch t.Strategy {
	case MatchExact:
		return pattern == value, nil
	case MatchGlob, "":
		ok, err := path.Match(pattern, value)
		if err != nil {
			return false, fmt.Errorf("bad acl pattern %q: %w", pattern, err)
		}
		return ok, nil
	default:
		return false, fmt.Errorf("unknown match strategy %q", t.Strategy)
	}
}

func (t *TableAuthorizer) matchArgs(patterns, shape []string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	if len(patterns) != len(shape) {
		return false, nil
	}
	for i, pattern := range patterns {
		ok, err := t.match(pattern, shape[i])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
