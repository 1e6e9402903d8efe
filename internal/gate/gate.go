// Package gate validates routine calls before anything executes. Every
// call moves through Received -> ArgumentScan -> PolicyLookup ->
// Allow/Deny; arguments are scanned recursively and every nested
// routine invocation found in them is authorized as if it were a
// top-level call, so an allowed routine can never be used to smuggle a
// restricted one. Deny is terminal: no retry, no partial execution,
// and no side effect has occurred by the time it is reached.
package gate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"remex/internal/domain"
)

// maxScanDepth bounds recursion into nested call arguments
const maxScanDepth = 16

// Authorizer is the external ACL collaborator. Its decision for a
// (identity, routine, argument shape) tuple is authoritative and final.
type Authorizer interface {
	Authorize(ctx context.Context, identity, routine string, argShape []string) (bool, error)
}

// Gate enforces pre-resolved authorization decisions per call
type Gate struct {
	auth   Authorizer
	logger *zap.Logger
}

// New returns a gate backed by the given authorizer
func New(auth Authorizer, logger *zap.Logger) *Gate {
	return &Gate{auth: auth, logger: logger}
}

// Check runs the full state machine for one call. It returns the
// decision for the top-level call; any denial, including of a nested
// call found during argument scan, yields a DenyError. Decisions are
// computed fresh per call and never reused across calls with different
// argument fingerprints.
func (g *Gate) Check(ctx context.Context, call *domain.RoutineCall) (*domain.AuthDecision, error) {
	candidates, err := scan(call, 0)
	if err != nil {
		return nil, &domain.DenyError{
			Identity: call.Caller,
			Routine:  call.Name,
			Reason:   err.Error(),
		}
	}

	var top *domain.AuthDecision
	for _, candidate := range candidates {
		decision, err := g.lookup(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if !decision.Allow {
			g.logger.Warn("call denied",
				zap.String("identity", candidate.Caller),
				zap.String("routine", candidate.Name),
				zap.String("reason", decision.Reason),
			)
			return decision, &domain.DenyError{
				Identity: candidate.Caller,
				Routine:  candidate.Name,
				Reason:   decision.Reason,
			}
		}
		if candidate == call {
			top = decision
		}
	}
	return top, nil
}

// lookup queries the authorizer for one candidate call
func (g *Gate) lookup(ctx context.Context, call *domain.RoutineCall) (*domain.AuthDecision, error) {
	allowed, err := g.auth.Authorize(ctx, call.Caller, call.Name, call.ArgShape())
	if err != nil {
		return nil, fmt.Errorf("authorize %s for %s: %w", call.Name, call.Caller, err)
	}

	decision := &domain.AuthDecision{
		Identity:            call.Caller,
		Routine:             call.Name,
		ArgumentFingerprint: call.ArgumentFingerprint(),
		Allow:               allowed,
	}
	if !allowed {
		decision.Reason = "not in authorized set for this argument shape"
	}
	return decision, nil
}

// scan collects the call plus every nested routine invocation found in
// its arguments, recursively. Nested candidates inherit the caller
// identity: authorization is about what the caller may run, however
// deeply it is wrapped.
func scan(call *domain.RoutineCall, depth int) ([]*domain.RoutineCall, error) {
	if depth > maxScanDepth {
		return nil, fmt.Errorf("argument scan exceeded depth %d", maxScanDepth)
	}

	out := []*domain.RoutineCall{call}

	values := make([]domain.Value, 0, len(call.Args)+len(call.Kwargs))
	values = append(values, call.Args...)
	for _, v := range call.Kwargs {
		values = append(values, v)
	}

	for _, v := range values {
		nested := nestedCall(v, call.Caller)
		if nested == nil {
			continue
		}
		sub, err := scan(nested, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// nestedCall extracts a routine invocation from an argument value:
// either an explicitly tagged nested call, or a literal whose text
// matches the routine-call shape.
func nestedCall(v domain.Value, caller string) *domain.RoutineCall {
	if v.Kind == domain.ValueCall && v.Call != nil {
		c := *v.Call
		c.Caller = caller
		return &c
	}
	if parsed, ok := ParseCallLiteral(v.Literal); ok {
		parsed.Caller = caller
		return parsed
	}
	return nil
}
