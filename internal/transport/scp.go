package transport

import (
	"context"
	"fmt"
	"io"
	"path"

	"remex/internal/domain"
	"remex/internal/shell"
)

// Put transfers bytes to an absolute remote path using the SCP sink
// protocol over a session channel. x/crypto/ssh has no file transfer of
// its own and the sink protocol needs nothing installed beyond scp
// itself, which keeps the remote surface at our two primitives.
func (s *Session) Put(ctx context.Context, remotePath string, data []byte, mode uint32) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return &domain.ConnectError{Target: s.target.Addr(), Op: "session", Err: err}
	}
	defer sess.Close()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return &domain.ConnectError{Target: s.target.Addr(), Op: "put", Err: err}
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		return &domain.ConnectError{Target: s.target.Addr(), Op: "put", Err: err}
	}

	dir, file := path.Split(remotePath)
	if dir == "" || file == "" {
		return fmt.Errorf("put: %q is not an absolute file path", remotePath)
	}

	if err := sess.Start(shell.Wrap("scp -t " + shell.Quote(dir))); err != nil {
		return &domain.ConnectError{Target: s.target.Addr(), Op: "put", Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- func() error {
			if err := readAck(stdout); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(stdin, "C%04o %d %s\n", mode&0777, len(data), file); err != nil {
				return err
			}
			if err := readAck(stdout); err != nil {
				return err
			}
			if _, err := stdin.Write(data); err != nil {
				return err
			}
			if _, err := stdin.Write([]byte{0}); err != nil {
				return err
			}
			if err := readAck(stdout); err != nil {
				return err
			}
			return stdin.Close()
		}()
	}()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	select {
	case err := <-done:
		if err != nil {
			return &domain.ConnectError{Target: s.target.Addr(), Op: "put", Err: err}
		}
		if err := sess.Wait(); err != nil {
			return &domain.ConnectError{Target: s.target.Addr(), Op: "put", Err: err}
		}
		return nil

	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.TimeoutError{Target: s.target.Addr(), Op: "put", Err: runCtx.Err()}
	}
}

// readAck consumes one SCP acknowledgement byte. 0 is success; 1 and 2
// are warnings/errors followed by a message line.
func readAck(r io.Reader) error {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("read scp ack: %w", err)
	}
	if buf[0] == 0 {
		return nil
	}
	msg := make([]byte, 0, 128)
	b := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, b); err != nil || b[0] == '\n' {
			break
		}
		msg = append(msg, b[0])
	}
	return fmt.Errorf("scp: remote error: %s", string(msg))
}
