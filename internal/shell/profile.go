// Package shell classifies a target's command interpreter and builds
// invocation strings that behave the same regardless of the login
// shell. Every command remex sends is wrapped in `/bin/sh -c '...'`
// with POSIX single-quote escaping, so csh- or fish-flavored login
// shells never parse our syntax; the profile mostly records which
// auxiliary tools (hash, tar, bash) the target offers.
package shell

import (
	"context"
	"fmt"
	"strings"
)

// Flavor is the closed set of interpreter classes remex distinguishes
type Flavor string

const (
	// FlavorPOSIX is a plain POSIX /bin/sh target
	FlavorPOSIX Flavor = "posix"
	// FlavorBash is a target where bash is available
	FlavorBash Flavor = "bash"
	// FlavorBusyBox is a BusyBox userland (applet tools)
	FlavorBusyBox Flavor = "busybox"
)

// Profile is the detected interpreter profile for one session, cached
// for the session's lifetime.
type Profile struct {
	Flavor Flavor
	// OS is the uname -s value, e.g. Linux, Darwin, OpenBSD
	OS string
	// HashCommand produces a hex sha256 digest of a file as the first
	// whitespace-separated field of its output. Empty when the target
	// offers no usable hash tool; staging fails closed in that case.
	HashCommand string
}

// Runner is the single transport primitive detection needs
type Runner interface {
	Run(ctx context.Context, command string) (stdout, stderr string, status int, err error)
}

// probeScript gathers everything detection needs in one round trip.
// Each probe is side-effect-free and does not rely on interactive
// shell startup files.
const probeScript = `uname -s
command -v bash || echo -
command -v busybox || echo -
command -v sha256sum || echo -
command -v shasum || echo -
command -v sha256 || echo -`

// Detect classifies the target in a single round trip
func Detect(ctx context.Context, runner Runner) (Profile, error) {
	stdout, stderr, status, err := runner.Run(ctx, Wrap(probeScript))
	if err != nil {
		return Profile{}, err
	}
	if status != 0 {
		return Profile{}, fmt.Errorf("shell probe exited %d: %s", status, strings.TrimSpace(stderr))
	}

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	if len(lines) < 6 {
		return Profile{}, fmt.Errorf("shell probe returned %d lines, expected 6", len(lines))
	}

	get := func(i int) string {
		v := strings.TrimSpace(lines[i])
		if v == "-" {
			return ""
		}
		return v
	}

	profile := Profile{OS: get(0)}

	hasBash := get(1) != ""
	hasBusyBox := get(2) != ""
	switch {
	case hasBash:
		profile.Flavor = FlavorBash
	case hasBusyBox:
		profile.Flavor = FlavorBusyBox
	default:
		profile.Flavor = FlavorPOSIX
	}

	switch {
	case get(3) != "":
		profile.HashCommand = "sha256sum"
	case get(4) != "":
		profile.HashCommand = "shasum -a 256"
	case get(5) != "":
		// BSD sha256; -r puts the digest first like sha256sum
		profile.HashCommand = "sha256 -r"
	case hasBusyBox:
		profile.HashCommand = "busybox sha256sum"
	}

	return profile, nil
}

// Quote escapes s for inclusion inside a POSIX single-quoted string
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Wrap turns a script into a single login-shell-agnostic command line.
// The outer layer any login shell sees is one word plus one quoted
// argument, which csh, fish, and every POSIX shell parse identically.
func Wrap(script string) string {
	return "exec /bin/sh -c " + Quote(script)
}
