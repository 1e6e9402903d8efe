package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"

	"remex/internal/domain"
	"remex/internal/shell"
)

// fakeSession simulates the remote side of staging
type fakeSession struct {
	target   domain.Target
	files    map[string][]byte
	commands []string

	// corrupt flips a byte after transfer, simulating tampering
	corrupt bool
	// putErr fails the transfer
	putErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		target: domain.Target{Address: "10.0.0.5"},
		files:  make(map[string][]byte),
	}
}

func (f *fakeSession) Target() domain.Target { return f.target }

func (f *fakeSession) Put(ctx context.Context, path string, data []byte, mode uint32) error {
	if f.putErr != nil {
		return f.putErr
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	if f.corrupt && len(stored) > 0 {
		stored[0] ^= 0xff
	}
	f.files[path] = stored
	return nil
}

func (f *fakeSession) Run(ctx context.Context, command string) (string, string, int, error) {
	f.commands = append(f.commands, command)

	switch {
	case strings.Contains(command, "mkdir \"$d\""):
		// extract the rx- name from the embedded script
		idx := strings.Index(command, "rx-")
		name := command[idx : idx+39] // "rx-" + uuid
		return "/home/u/.remex/" + name, "", 0, nil

	case strings.Contains(command, "sha256sum"):
		for path, data := range f.files {
			if strings.Contains(command, path) {
				sum := sha256.Sum256(data)
				return fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), path), "", 0, nil
			}
		}
		return "", "no such file", 1, nil

	case strings.Contains(command, "tar -xzf"):
		return "", "", 0, nil

	case strings.Contains(command, "rm -rf"):
		f.files = make(map[string][]byte)
		return "", "", 0, nil
	}
	return "", "unknown command", 127, nil
}

func testPackage() *domain.BootstrapPackage {
	data := []byte("payload bytes")
	sum := sha256.Sum256(data)
	return &domain.BootstrapPackage{
		Version:  "1",
		Platform: "posix",
		Checksum: hex.EncodeToString(sum[:]),
		Data:     data,
	}
}

func testProfile() shell.Profile {
	return shell.Profile{Flavor: shell.FlavorBash, HashCommand: "sha256sum"}
}

func TestStage(t *testing.T) {
	ctx := context.Background()
	stager := &Stager{Logger: zap.NewNop()}

	t.Run("success returns verified path", func(t *testing.T) {
		sess := newFakeSession()
		staged, err := stager.Stage(ctx, sess, testProfile(), testPackage())
		if err != nil {
			t.Fatalf("Stage: %v", err)
		}
		if !strings.HasPrefix(staged.Path, "/home/u/.remex/rx-") {
			t.Errorf("staged path = %q", staged.Path)
		}
		if staged.ArchivePath != staged.Path+"/"+ArchiveName {
			t.Errorf("archive path = %q", staged.ArchivePath)
		}
	})

	t.Run("random path component differs per staging", func(t *testing.T) {
		sess := newFakeSession()
		a, err := stager.Stage(ctx, sess, testProfile(), testPackage())
		if err != nil {
			t.Fatalf("Stage: %v", err)
		}
		b, err := stager.Stage(ctx, sess, testProfile(), testPackage())
		if err != nil {
			t.Fatalf("Stage: %v", err)
		}
		if a.Path == b.Path {
			t.Errorf("two stagings used the same path %q", a.Path)
		}
	})

	t.Run("tampered byte fails closed", func(t *testing.T) {
		sess := newFakeSession()
		sess.corrupt = true
		_, err := stager.Stage(ctx, sess, testProfile(), testPackage())
		var ie *domain.IntegrityError
		if !errors.As(err, &ie) {
			t.Fatalf("expected IntegrityError, got %v", err)
		}
		// tampered content was discarded, nothing extracted
		for _, cmd := range sess.commands {
			if strings.Contains(cmd, "tar -xzf") {
				t.Error("extraction ran on unverified content")
			}
		}
		if len(sess.files) != 0 {
			t.Error("tampered archive left on target")
		}
	})

	t.Run("missing hash tool fails closed", func(t *testing.T) {
		sess := newFakeSession()
		profile := shell.Profile{Flavor: shell.FlavorPOSIX} // no hash command
		_, err := stager.Stage(ctx, sess, profile, testPackage())
		var ie *domain.IntegrityError
		if !errors.As(err, &ie) {
			t.Fatalf("expected IntegrityError, got %v", err)
		}
	})

	t.Run("transfer failure cleans up", func(t *testing.T) {
		sess := newFakeSession()
		sess.putErr = &domain.ConnectError{Target: "10.0.0.5:22", Op: "put", Err: errors.New("broken pipe")}
		_, err := stager.Stage(ctx, sess, testProfile(), testPackage())
		var ce *domain.ConnectError
		if !errors.As(err, &ce) {
			t.Fatalf("expected ConnectError, got %v", err)
		}
		cleaned := false
		for _, cmd := range sess.commands {
			if strings.Contains(cmd, "rm -rf") {
				cleaned = true
			}
		}
		if !cleaned {
			t.Error("failed staging did not remove the directory")
		}
	})
}

func TestCleanup(t *testing.T) {
	sess := newFakeSession()
	stager := &Stager{Logger: zap.NewNop()}

	staged, err := stager.Stage(context.Background(), sess, testProfile(), testPackage())
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	stager.Cleanup(context.Background(), sess, testProfile(), staged)
	last := sess.commands[len(sess.commands)-1]
	if !strings.Contains(last, "rm -rf") || !strings.Contains(last, staged.Path) {
		t.Errorf("cleanup command = %q", last)
	}
}
