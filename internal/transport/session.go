// Package transport owns the authenticated connection to one target.
// A Session exposes exactly two primitives, Run and Put; every higher
// component is built from those two to keep the attack surface small.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"remex/internal/domain"
	"remex/internal/trust"
)

// Dialer opens sessions. Host key verification is bound to the trust
// store: any non-trusted outcome aborts the handshake before further
// traffic.
type Dialer struct {
	Trust          *trust.Store
	Policy         trust.Policy
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	Logger         *zap.Logger

	// DialContext is the raw network dial. Defaults to net.Dialer;
	// overridden in tests.
	DialContext func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Session is one authenticated connection to one target
type Session struct {
	target  domain.Target
	client  *ssh.Client
	timeout time.Duration
	logger  *zap.Logger
}

// Open authenticates to the target and verifies its identity. The
// credential kind is explicitly selected, never guessed; password
// material is handed to the transport as one opaque token.
func (d *Dialer) Open(ctx context.Context, target domain.Target, cred domain.Credential, trustOverride bool) (*Session, error) {
	cfg, err := clientConfig(cred)
	if err != nil {
		return nil, &domain.ConnectError{Target: target.Addr(), Op: "credential", Err: err}
	}
	cfg.Timeout = d.ConnectTimeout

	// The handshake error from x/crypto does not preserve the callback
	// error's type, so keep it aside and prefer it on failure.
	var trustErr error
	cfg.HostKeyCallback = func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		fp := ssh.FingerprintSHA256(key)
		if err := d.Trust.Check(ctx, target.Address, fp, d.Policy, trustOverride); err != nil {
			trustErr = err
			return err
		}
		return nil
	}

	dial := d.DialContext
	if dial == nil {
		dialer := &net.Dialer{Timeout: d.ConnectTimeout}
		dial = dialer.DialContext
	}

	dialCtx := ctx
	if d.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.ConnectTimeout)
		defer cancel()
	}

	addr := target.Addr()
	conn, err := dial(dialCtx, "tcp", addr)
	if err != nil {
		return nil, classifyDialError(addr, "dial", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		if trustErr != nil {
			return nil, trustErr
		}
		return nil, classifyDialError(addr, "handshake", err)
	}

	d.Logger.Debug("session opened",
		zap.String("target", addr),
		zap.String("user", cred.Username),
		zap.String("credential", cred.ID),
	)

	return &Session{
		target:  target,
		client:  ssh.NewClient(sshConn, chans, reqs),
		timeout: d.CommandTimeout,
		logger:  d.Logger,
	}, nil
}

// clientConfig builds the ssh client config for a credential
func clientConfig(cred domain.Credential) (*ssh.ClientConfig, error) {
	if cred.Username == "" {
		return nil, fmt.Errorf("credential %q has no username", cred.ID)
	}

	switch cred.Kind {
	case domain.CredentialKey:
		var signer ssh.Signer
		var err error
		if cred.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(cred.Material), []byte(cred.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(cred.Material))
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return &ssh.ClientConfig{
			User: cred.Username,
			Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		}, nil

	case domain.CredentialPassword:
		// The material is opaque: whitespace and punctuation pass
		// through verbatim.
		return &ssh.ClientConfig{
			User: cred.Username,
			Auth: []ssh.AuthMethod{ssh.Password(cred.Material)},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported credential kind %q", cred.Kind)
	}
}

func classifyDialError(target, op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.TimeoutError{Target: target, Op: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutError{Target: target, Op: op, Err: err}
	}
	return &domain.ConnectError{Target: target, Op: op, Err: err}
}

// Run executes one command and returns stdout, stderr, and the exit
// status. A non-zero exit is not an error here; callers classify it.
func (s *Session) Run(ctx context.Context, command string) (string, string, int, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return "", "", -1, &domain.ConnectError{Target: s.target.Addr(), Op: "session", Err: err}
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- sess.Run(command) }()

	select {
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
			}
			return stdout.String(), stderr.String(), -1,
				&domain.ConnectError{Target: s.target.Addr(), Op: "run", Err: err}
		}
		return stdout.String(), stderr.String(), 0, nil

	case <-runCtx.Done():
		_ = sess.Signal(ssh.SIGKILL)
		op := "run"
		if ctx.Err() != nil {
			// caller cancellation, not a per-command timeout
			return "", "", -1, ctx.Err()
		}
		return "", "", -1, &domain.TimeoutError{Target: s.target.Addr(), Op: op, Err: runCtx.Err()}
	}
}

// Target returns the session's target
func (s *Session) Target() domain.Target {
	return s.target
}

// Close tears down the connection
func (s *Session) Close() error {
	return s.client.Close()
}
