// Package dispatch invokes routines through the staged runtime and
// turns their output into structured results. It is only reachable
// after the privilege gate has allowed the call.
package dispatch

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"remex/internal/domain"
	"remex/internal/shell"
)

// Runner is the transport primitive the dispatcher needs
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, status int, err error)
}

// envelope is the JSON wire format the runtime prints on stdout
type envelope struct {
	Return  any `json:"return"`
	Retcode int `json:"retcode"`
}

// Dispatcher executes allowed routine calls on staged targets
type Dispatcher struct {
	Logger *zap.Logger
}

// Execute runs the call through the staged runtime. A non-zero routine
// exit is an ExecutionError, a routine-level failure distinct from
// transport failures; transport errors pass through unchanged.
func (d *Dispatcher) Execute(ctx context.Context, sess Runner, profile shell.Profile, staged *domain.StagedPath, call *domain.RoutineCall) (*domain.SessionResult, error) {
	command := profile.Invoke(staged.Path, call.Name, call.ArgShape())

	stdout, stderr, status, err := sess.Run(ctx, command)
	if err != nil {
		return nil, err
	}

	result := &domain.SessionResult{
		Target:     staged.Target,
		ExitStatus: status,
	}

	var env envelope
	if jerr := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &env); jerr == nil {
		result.Return = env.Return
		result.ExitStatus = env.Retcode
	} else {
		// runtime produced no envelope; keep raw output
		result.Raw = stdout
	}

	if result.ExitStatus != 0 {
		reason := strings.TrimSpace(stderr)
		if reason == "" {
			if s, ok := result.Return.(string); ok {
				reason = s
			} else {
				reason = strings.TrimSpace(result.Raw)
			}
		}
		d.Logger.Debug("routine failed",
			zap.String("target", staged.Target),
			zap.String("routine", call.Name),
			zap.Int("status", result.ExitStatus),
		)
		return nil, &domain.ExecutionError{
			Target:     staged.Target,
			Routine:    call.Name,
			ExitStatus: result.ExitStatus,
			Stderr:     reason,
		}
	}

	return result, nil
}
