package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ValueKind tags an argument value as data or as a nested invocation
type ValueKind string

const (
	// ValueLiteral is plain argument data
	ValueLiteral ValueKind = "literal"
	// ValueCall is an argument that itself encodes a routine invocation.
	// Nested calls are authorized independently of the call that carries
	// them, so an argument can never smuggle an unauthorized routine.
	ValueCall ValueKind = "call"
)

// Value is a tagged argument variant: either a literal string or a
// nested routine call. Representing the variant explicitly lets the
// privilege gate recurse structurally instead of pattern matching on
// loosely typed data.
type Value struct {
	Kind    ValueKind    `json:"kind"`
	Literal string       `json:"literal,omitempty"`
	Call    *RoutineCall `json:"call,omitempty"`
}

// Lit wraps a plain string as a literal value
func Lit(s string) Value {
	return Value{Kind: ValueLiteral, Literal: s}
}

// Nested wraps a routine call as an argument value
func Nested(c *RoutineCall) Value {
	return Value{Kind: ValueCall, Call: c}
}

// String renders the value for shape matching and fingerprints
func (v Value) String() string {
	if v.Kind == ValueCall && v.Call != nil {
		return v.Call.String()
	}
	return v.Literal
}

// RoutineCall is a named, argument-parameterized unit of remote work
type RoutineCall struct {
	// Name is the routine identifier, e.g. "test.ping" or "pkg.install"
	Name string `json:"name"`

	// Args are ordered positional arguments
	Args []Value `json:"args,omitempty"`

	// Kwargs are named arguments
	Kwargs map[string]Value `json:"kwargs,omitempty"`

	// Caller is the identity requesting the call
	Caller string `json:"caller"`
}

// ArgShape returns the canonical argument shape used for authorization:
// positional values in order, then named values as key=value sorted by key.
func (c *RoutineCall) ArgShape() []string {
	shape := make([]string, 0, len(c.Args)+len(c.Kwargs))
	for _, a := range c.Args {
		shape = append(shape, a.String())
	}
	keys := make([]string, 0, len(c.Kwargs))
	for k := range c.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		shape = append(shape, k+"="+c.Kwargs[k].String())
	}
	return shape
}

// ArgumentFingerprint is a stable digest over the routine name and the
// canonical argument shape. Authorization decisions are keyed by this
// fingerprint and never reused across calls whose fingerprints differ.
func (c *RoutineCall) ArgumentFingerprint() string {
	h := sha256.New()
	h.Write([]byte(c.Name))
	for _, s := range c.ArgShape() {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String renders the call in routine-call shape
func (c *RoutineCall) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(c.ArgShape(), ", "))
}

// AuthDecision records one authorization outcome for one call
type AuthDecision struct {
	Identity           string `json:"identity"`
	Routine            string `json:"routine"`
	ArgumentFingerprint string `json:"argument_fingerprint"`
	Allow              bool   `json:"allow"`
	// Reason explains a denial, empty on allow
	Reason string `json:"reason,omitempty"`
}
