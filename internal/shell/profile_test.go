package shell

import (
	"context"
	"strings"
	"testing"
)

// scriptedRunner replays a canned probe response
type scriptedRunner struct {
	stdout string
	status int
	seen   []string
}

func (r *scriptedRunner) Run(ctx context.Context, command string) (string, string, int, error) {
	r.seen = append(r.seen, command)
	return r.stdout, "", r.status, nil
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		flavor   Flavor
		hashCmd  string
		os       string
	}{
		{
			name:    "linux with bash and sha256sum",
			stdout:  "Linux\n/bin/bash\n-\n/usr/bin/sha256sum\n-\n-\n",
			flavor:  FlavorBash,
			hashCmd: "sha256sum",
			os:      "Linux",
		},
		{
			name:    "busybox only",
			stdout:  "Linux\n-\n/bin/busybox\n-\n-\n-\n",
			flavor:  FlavorBusyBox,
			hashCmd: "busybox sha256sum",
			os:      "Linux",
		},
		{
			name:    "macos with shasum",
			stdout:  "Darwin\n/bin/bash\n-\n-\n/usr/bin/shasum\n-\n",
			flavor:  FlavorBash,
			hashCmd: "shasum -a 256",
			os:      "Darwin",
		},
		{
			name:    "openbsd posix with sha256",
			stdout:  "OpenBSD\n-\n-\n-\n-\n/bin/sha256\n",
			flavor:  FlavorPOSIX,
			hashCmd: "sha256 -r",
			os:      "OpenBSD",
		},
		{
			name:    "bare posix without hash tool",
			stdout:  "Linux\n-\n-\n-\n-\n-\n",
			flavor:  FlavorPOSIX,
			hashCmd: "",
			os:      "Linux",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{stdout: tt.stdout}
			profile, err := Detect(context.Background(), runner)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if profile.Flavor != tt.flavor {
				t.Errorf("flavor = %s, want %s", profile.Flavor, tt.flavor)
			}
			if profile.HashCommand != tt.hashCmd {
				t.Errorf("hash command = %q, want %q", profile.HashCommand, tt.hashCmd)
			}
			if profile.OS != tt.os {
				t.Errorf("os = %q, want %q", profile.OS, tt.os)
			}
		})
	}

	t.Run("single round trip", func(t *testing.T) {
		runner := &scriptedRunner{stdout: "Linux\n-\n-\n-\n-\n-\n"}
		if _, err := Detect(context.Background(), runner); err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if len(runner.seen) != 1 {
			t.Errorf("detection used %d round trips, want 1", len(runner.seen))
		}
	})
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"pa ss word", "'pa ss word'"},
		{"it's", `'it'\''s'`},
		{"$HOME;rm -rf /", `'$HOME;rm -rf /'`},
	}

	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestInvoke(t *testing.T) {
	profile := Profile{Flavor: FlavorPOSIX}

	t.Run("arguments stay single words", func(t *testing.T) {
		cmd := profile.Invoke("/home/d/.remex/rx-1", "cmd.run", []string{"echo a b", "x=1 2"})
		if !strings.Contains(cmd, "'echo a b'") {
			t.Errorf("argument with spaces not preserved as one word: %s", cmd)
		}
		if !strings.Contains(cmd, "'x=1 2'") {
			t.Errorf("named argument with spaces not preserved: %s", cmd)
		}
	})

	t.Run("wrapped for login-shell independence", func(t *testing.T) {
		cmd := profile.Invoke("/tmp/x", "test.ping", nil)
		if !strings.HasPrefix(cmd, "exec /bin/sh -c '") {
			t.Errorf("invocation not wrapped in /bin/sh: %s", cmd)
		}
	})
}

func TestHashFile(t *testing.T) {
	t.Run("fails closed without a hash tool", func(t *testing.T) {
		profile := Profile{Flavor: FlavorPOSIX}
		cmd := profile.HashFile("/tmp/f")
		if !strings.Contains(cmd, "exit 90") {
			t.Errorf("expected failing command, got %s", cmd)
		}
	})

	t.Run("uses detected tool", func(t *testing.T) {
		profile := Profile{Flavor: FlavorBash, HashCommand: "sha256sum"}
		cmd := profile.HashFile("/tmp/f")
		if !strings.Contains(cmd, "sha256sum '/tmp/f'") {
			t.Errorf("unexpected hash command: %s", cmd)
		}
	})
}
