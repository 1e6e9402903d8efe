package gate

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"remex/internal/domain"
)

func newTestGate(strategy MatchStrategy, allow map[string][]Rule) *Gate {
	return New(&TableAuthorizer{Strategy: strategy, Allow: allow}, zap.NewNop())
}

func TestCheckAllow(t *testing.T) {
	g := newTestGate(MatchGlob, map[string][]Rule{
		"ops": {{Routine: "test.*"}},
	})

	call := &domain.RoutineCall{Name: "test.ping", Caller: "ops"}
	decision, err := g.Check(context.Background(), call)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !decision.Allow {
		t.Error("expected allow")
	}
	if decision.ArgumentFingerprint != call.ArgumentFingerprint() {
		t.Error("decision fingerprint does not match call")
	}
}

func TestCheckDeny(t *testing.T) {
	g := newTestGate(MatchGlob, map[string][]Rule{
		"ops": {{Routine: "test.*"}},
	})

	t.Run("unauthorized routine", func(t *testing.T) {
		_, err := g.Check(context.Background(), &domain.RoutineCall{Name: "key.delete", Caller: "ops"})
		var de *domain.DenyError
		if !errors.As(err, &de) {
			t.Fatalf("expected DenyError, got %v", err)
		}
		if de.Routine != "key.delete" {
			t.Errorf("denied routine = %q", de.Routine)
		}
	})

	t.Run("unknown identity", func(t *testing.T) {
		_, err := g.Check(context.Background(), &domain.RoutineCall{Name: "test.ping", Caller: "nobody"})
		var de *domain.DenyError
		if !errors.As(err, &de) {
			t.Fatalf("expected DenyError, got %v", err)
		}
	})
}

func TestEscalationViaNesting(t *testing.T) {
	// ops may run cmd.run but not key.delete
	g := newTestGate(MatchGlob, map[string][]Rule{
		"ops": {{Routine: "cmd.*"}, {Routine: "test.*"}},
	})
	ctx := context.Background()

	t.Run("tagged nested call denied", func(t *testing.T) {
		call := &domain.RoutineCall{
			Name:   "cmd.run",
			Caller: "ops",
			Args: []domain.Value{
				domain.Nested(&domain.RoutineCall{Name: "key.delete", Args: []domain.Value{domain.Lit("web1")}}),
			},
		}
		_, err := g.Check(ctx, call)
		var de *domain.DenyError
		if !errors.As(err, &de) {
			t.Fatalf("expected DenyError, got %v", err)
		}
		if de.Routine != "key.delete" {
			t.Errorf("denial names %q, want the nested routine", de.Routine)
		}
	})

	t.Run("call-shaped literal denied", func(t *testing.T) {
		call := &domain.RoutineCall{
			Name:   "cmd.run",
			Caller: "ops",
			Args:   []domain.Value{domain.Lit("key.delete(web1)")},
		}
		_, err := g.Check(ctx, call)
		var de *domain.DenyError
		if !errors.As(err, &de) {
			t.Fatalf("expected DenyError, got %v", err)
		}
	})

	t.Run("nested call in named argument denied", func(t *testing.T) {
		call := &domain.RoutineCall{
			Name:   "cmd.run",
			Caller: "ops",
			Kwargs: map[string]domain.Value{
				"hook": domain.Nested(&domain.RoutineCall{Name: "key.delete"}),
			},
		}
		_, err := g.Check(ctx, call)
		var de *domain.DenyError
		if !errors.As(err, &de) {
			t.Fatalf("expected DenyError, got %v", err)
		}
	})

	t.Run("doubly nested call denied", func(t *testing.T) {
		call := &domain.RoutineCall{
			Name:   "cmd.run",
			Caller: "ops",
			Args: []domain.Value{
				domain.Nested(&domain.RoutineCall{
					Name: "test.echo",
					Args: []domain.Value{domain.Lit("key.delete(web1)")},
				}),
			},
		}
		_, err := g.Check(ctx, call)
		var de *domain.DenyError
		if !errors.As(err, &de) {
			t.Fatalf("expected DenyError, got %v", err)
		}
	})

	t.Run("authorized nested call allowed", func(t *testing.T) {
		call := &domain.RoutineCall{
			Name:   "cmd.run",
			Caller: "ops",
			Args: []domain.Value{
				domain.Nested(&domain.RoutineCall{Name: "test.ping"}),
			},
		}
		if _, err := g.Check(ctx, call); err != nil {
			t.Fatalf("Check: %v", err)
		}
	})

	t.Run("plain data is not an invocation", func(t *testing.T) {
		call := &domain.RoutineCall{
			Name:   "cmd.run",
			Caller: "ops",
			Args:   []domain.Value{domain.Lit("systemctl restart nginx")},
		}
		if _, err := g.Check(ctx, call); err != nil {
			t.Fatalf("plain argument rejected: %v", err)
		}
	})
}

func TestArgumentShapeGrants(t *testing.T) {
	ctx := context.Background()

	t.Run("glob grants per argument pattern", func(t *testing.T) {
		g := newTestGate(MatchGlob, map[string][]Rule{
			"ops": {{Routine: "pkg.install", Args: []string{"nginx*"}}},
		})

		allowed := &domain.RoutineCall{Name: "pkg.install", Caller: "ops", Args: []domain.Value{domain.Lit("nginx-core")}}
		if _, err := g.Check(ctx, allowed); err != nil {
			t.Errorf("matching shape denied: %v", err)
		}

		denied := &domain.RoutineCall{Name: "pkg.install", Caller: "ops", Args: []domain.Value{domain.Lit("openssh")}}
		if _, err := g.Check(ctx, denied); err == nil {
			t.Error("non-matching shape allowed")
		}

		wrongArity := &domain.RoutineCall{Name: "pkg.install", Caller: "ops",
			Args: []domain.Value{domain.Lit("nginx"), domain.Lit("extra")}}
		if _, err := g.Check(ctx, wrongArity); err == nil {
			t.Error("extra argument slipped past a one-argument grant")
		}
	})

	t.Run("exact strategy ignores wildcards", func(t *testing.T) {
		g := newTestGate(MatchExact, map[string][]Rule{
			"ops": {{Routine: "test.*"}},
		})
		_, err := g.Check(ctx, &domain.RoutineCall{Name: "test.ping", Caller: "ops"})
		var de *domain.DenyError
		if !errors.As(err, &de) {
			t.Errorf("exact strategy treated pattern as wildcard: %v", err)
		}
	})
}

func TestParseCallLiteral(t *testing.T) {
	tests := []struct {
		in     string
		isCall bool
		name   string
		args   int
		kwargs int
	}{
		{"key.delete(web1)", true, "key.delete", 1, 0},
		{"pkg.install(nginx, refresh=true)", true, "pkg.install", 1, 1},
		{"test.ping()", true, "test.ping", 0, 0},
		{"a.b(c.d(e))", true, "a.b", 1, 0},
		{"plain string", false, "", 0, 0},
		{"not a call (parenthetical)", false, "", 0, 0},
		{"noarglist", false, "", 0, 0},
		{"single(word)", false, "", 0, 0}, // no dotted name, not routine shape
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			call, ok := ParseCallLiteral(tt.in)
			if ok != tt.isCall {
				t.Fatalf("ParseCallLiteral(%q) ok = %v, want %v", tt.in, ok, tt.isCall)
			}
			if !ok {
				return
			}
			if call.Name != tt.name {
				t.Errorf("name = %q, want %q", call.Name, tt.name)
			}
			if len(call.Args) != tt.args {
				t.Errorf("args = %d, want %d", len(call.Args), tt.args)
			}
			if len(call.Kwargs) != tt.kwargs {
				t.Errorf("kwargs = %d, want %d", len(call.Kwargs), tt.kwargs)
			}
		})
	}
}
