// Package fleet fans one routine call out across many targets. Target
// failures are isolated: every target ends in exactly one terminal
// outcome, and one target's trust or transport failure never blocks the
// rest of the fleet.
package fleet

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"remex/internal/dispatch"
	"remex/internal/domain"
	"remex/internal/events"
	"remex/internal/gate"
	"remex/internal/payload"
	"remex/internal/shell"
	"remex/internal/stage"
	"remex/internal/transport"
)

// CredentialSource resolves credential references from the roster
type CredentialSource interface {
	Credential(id string) (domain.Credential, error)
}

// Session is the per-target transport surface the pipeline consumes
type Session interface {
	Run(ctx context.Context, command string) (stdout, stderr string, status int, err error)
	Put(ctx context.Context, path string, data []byte, mode uint32) error
	Target() domain.Target
	Close() error
}

// Opener opens authenticated sessions
type Opener interface {
	Open(ctx context.Context, target domain.Target, cred domain.Credential, trustOverride bool) (Session, error)
}

// TransportOpener adapts the transport dialer to Opener
type TransportOpener struct {
	Dialer *transport.Dialer
}

func (o TransportOpener) Open(ctx context.Context, target domain.Target, cred domain.Credential, trustOverride bool) (Session, error) {
	sess, err := o.Dialer.Open(ctx, target, cred, trustOverride)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Request is one fleet dispatch: a single call against a target set.
// TrustOverride names the targets whose recorded fingerprint may be
// rebound on this invocation only; it is never carried forward.
type Request struct {
	Targets       []domain.Target
	Call          *domain.RoutineCall
	TrustOverride map[string]bool
}

// Coordinator owns the per-target pipeline: session, shell profile,
// staging, execution.
type Coordinator struct {
	Opener      Opener
	Gate        *gate.Gate
	Builder     *payload.Builder
	Stager      *stage.Stager
	Dispatcher  *dispatch.Dispatcher
	Credentials CredentialSource
	Bus         *events.Bus

	// Concurrency bounds in-flight targets; zero means unbounded is
	// replaced by a single slot
	Concurrency int
	// Retries bounds re-attempts per target for transport failures only
	Retries int

	Logger *zap.Logger
}

// Dispatch authorizes the call once, builds the payload once, and runs
// it on every target concurrently. The returned map holds exactly one
// outcome per target address. Authorization happens before any
// connection is opened, so a denied call leaves no remote trace.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) map[string]domain.TargetOutcome {
	outcomes := make(map[string]domain.TargetOutcome, len(req.Targets))

	if _, err := c.Gate.Check(ctx, req.Call); err != nil {
		for _, t := range req.Targets {
			outcomes[t.Addr()] = domain.TargetOutcome{Err: err}
		}
		return outcomes
	}

	pkg, err := c.Builder.Build(ctx, payload.DefaultPlatform)
	if err != nil {
		for _, t := range req.Targets {
			outcomes[t.Addr()] = domain.TargetOutcome{Err: err}
		}
		return outcomes
	}

	limit := int64(c.Concurrency)
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, target := range req.Targets {
		wg.Add(1)
		go func(target domain.Target) {
			defer wg.Done()

			addr := target.Addr()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				outcomes[addr] = domain.TargetOutcome{Err: err}
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			outcome := c.runTarget(ctx, target, req.Call, pkg, req.TrustOverride[addr])
			mu.Lock()
			outcomes[addr] = outcome
			mu.Unlock()
		}(target)
	}

	wg.Wait()
	return outcomes
}

// runTarget drives one target to a terminal outcome, retrying only
// transport-layer failures up to the configured bound.
func (c *Coordinator) runTarget(ctx context.Context, target domain.Target, call *domain.RoutineCall, pkg *domain.BootstrapPackage, override bool) domain.TargetOutcome {
	addr := target.Addr()

	cred, err := c.Credentials.Credential(target.CredentialID)
	if err != nil {
		return domain.TargetOutcome{Err: err}
	}

	attempts := 1 + c.Retries
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return domain.TargetOutcome{Err: lastErr}
			}
			return domain.TargetOutcome{Err: ctx.Err()}
		}
		if attempt > 1 {
			c.publish(events.Event{Type: events.EventRetrying, Target: addr, Attempt: attempt})
			c.Logger.Info("retrying target",
				zap.String("target", addr),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
		}

		result, err := c.attempt(ctx, target, cred, call, pkg, override)
		if err == nil {
			c.publish(events.Event{Type: events.EventDone, Target: addr})
			return domain.TargetOutcome{Result: result}
		}
		lastErr = err
		if !domain.Retryable(err) {
			break
		}
	}

	c.publish(events.Event{Type: events.EventFailed, Target: addr, Detail: lastErr.Error()})
	return domain.TargetOutcome{Err: lastErr}
}

// attempt is one full pass over the pipeline: connect, profile, stage,
// execute, and tear down. The staged directory is removed whether the
// routine succeeded or not.
func (c *Coordinator) attempt(ctx context.Context, target domain.Target, cred domain.Credential, call *domain.RoutineCall, pkg *domain.BootstrapPackage, override bool) (*domain.SessionResult, error) {
	addr := target.Addr()

	c.publish(events.Event{Type: events.EventConnecting, Target: addr})
	sess, err := c.Opener.Open(ctx, target, cred, override)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	profile, err := shell.Detect(ctx, sess)
	if err != nil {
		return nil, err
	}

	c.publish(events.Event{Type: events.EventStaging, Target: addr})
	staged, err := c.Stager.Stage(ctx, sess, profile, pkg)
	if err != nil {
		return nil, err
	}
	defer c.Stager.Cleanup(ctx, sess, profile, staged)

	c.publish(events.Event{Type: events.EventExecuting, Target: addr, Detail: call.Name})
	return c.Dispatcher.Execute(ctx, sess, profile, staged, call)
}

func (c *Coordinator) publish(ev events.Event) {
	if c.Bus != nil {
		c.Bus.Publish(ev)
	}
}
