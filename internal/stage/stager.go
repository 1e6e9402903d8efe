// Package stage transfers the bootstrap package onto a target and
// verifies it before anything from it may execute. The staged
// directory is created exclusively under the remote home with a random
// name component and owner-only permissions; the archive checksum is
// recomputed on the target side and compared to the package checksum,
// and any mismatch or partial transfer is discarded, never executed.
package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"remex/internal/domain"
	"remex/internal/shell"
)

// ArchiveName is the payload archive file inside the staged directory
const ArchiveName = "payload.tgz"

// Session is the transport surface staging needs
type Session interface {
	Run(ctx context.Context, command string) (stdout, stderr string, status int, err error)
	Put(ctx context.Context, path string, data []byte, mode uint32) error
	Target() domain.Target
}

// Stager stages packages over transport sessions
type Stager struct {
	Logger *zap.Logger
}

// Stage creates the staged path, transfers the package, verifies its
// checksum remotely, and extracts it. The returned path is reused for
// every routine call in the session and removed at session end.
func (s *Stager) Stage(ctx context.Context, sess Session, profile shell.Profile, pkg *domain.BootstrapPackage) (*domain.StagedPath, error) {
	addr := sess.Target().Addr()

	name := "rx-" + uuid.NewString()
	stdout, stderr, status, err := sess.Run(ctx, profile.MakeStagedDir(name))
	if err != nil {
		return nil, err
	}
	if status != 0 {
		return nil, fmt.Errorf("stage %s: create directory: exit %d: %s", addr, status, strings.TrimSpace(stderr))
	}
	dir := strings.TrimSpace(stdout)
	if !strings.HasPrefix(dir, "/") || !strings.HasSuffix(dir, name) {
		return nil, fmt.Errorf("stage %s: unexpected staged directory %q", addr, dir)
	}

	archive := dir + "/" + ArchiveName
	if err := sess.Put(ctx, archive, pkg.Data, 0600); err != nil {
		s.discard(ctx, sess, profile, dir)
		return nil, err
	}

	if err := s.verify(ctx, sess, profile, pkg, archive); err != nil {
		s.discard(ctx, sess, profile, dir)
		return nil, err
	}

	stdout, stderr, status, err = sess.Run(ctx, profile.Extract(archive, dir))
	if err != nil {
		s.discard(ctx, sess, profile, dir)
		return nil, err
	}
	if status != 0 {
		s.discard(ctx, sess, profile, dir)
		return nil, fmt.Errorf("stage %s: extract: exit %d: %s", addr, status, strings.TrimSpace(stderr))
	}

	s.Logger.Debug("payload staged",
		zap.String("target", addr),
		zap.String("dir", dir),
		zap.String("checksum", pkg.Checksum),
	)

	return &domain.StagedPath{
		Target:      addr,
		Path:        dir,
		ArchivePath: archive,
		Mode:        0700,
	}, nil
}

// verify recomputes the archive checksum on the target and compares it
// to the package's declared checksum. Fails closed when the target has
// no hash tool or produces unexpected output.
func (s *Stager) verify(ctx context.Context, sess Session, profile shell.Profile, pkg *domain.BootstrapPackage, archive string) error {
	addr := sess.Target().Addr()

	stdout, stderr, status, err := sess.Run(ctx, profile.HashFile(archive))
	if err != nil {
		return err
	}
	if status != 0 {
		return &domain.IntegrityError{
			Target: addr,
			Want:   pkg.Checksum,
			Got:    "unavailable: " + strings.TrimSpace(stderr),
		}
	}

	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return &domain.IntegrityError{Target: addr, Want: pkg.Checksum, Got: "empty"}
	}
	got := strings.ToLower(fields[0])
	if got != pkg.Checksum {
		return &domain.IntegrityError{Target: addr, Want: pkg.Checksum, Got: got}
	}
	return nil
}

// Cleanup removes the staged directory at session end
func (s *Stager) Cleanup(ctx context.Context, sess Session, profile shell.Profile, staged *domain.StagedPath) {
	s.discard(ctx, sess, profile, staged.Path)
}

// discard best-effort removes a staged directory, even when the caller
// was cancelled: partially staged content must not survive in an
// ambiguous state.
func (s *Stager) discard(ctx context.Context, sess Session, profile shell.Profile, dir string) {
	cleanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, _, _, err := sess.Run(cleanCtx, profile.Cleanup(dir)); err != nil {
		s.Logger.Warn("staged directory cleanup failed",
			zap.String("target", sess.Target().Addr()),
			zap.String("dir", dir),
			zap.Error(err),
		)
	}
}
