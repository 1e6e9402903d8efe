package shell

import (
	"fmt"
	"strings"
)

// RuntimeEntry is the entry script inside the staged runtime directory
const RuntimeEntry = "runtime.sh"

// MakeStagedDir returns one command that creates the base directory
// under the remote $HOME (never a shared world-writable location) and
// then the session directory exclusively: plain mkdir fails if the
// path already exists, which combined with the random name component
// guarantees a fresh, non-predictable, owner-only directory. Prints
// the absolute directory on success. name must be shell-safe; the
// stager only passes uuid-derived names.
func (p Profile) MakeStagedDir(name string) string {
	script := fmt.Sprintf(
		`umask 077 && base="${HOME:-/tmp}/.remex" && mkdir -p "$base" && chmod 700 "$base" && d="$base/%s" && mkdir "$d" && printf %%s "$d"`,
		name,
	)
	return Wrap(script)
}

// HashFile returns a command printing the hex sha256 of path as the
// first field of stdout, or a failing command when the profile has no
// hash tool so the caller fails closed.
func (p Profile) HashFile(path string) string {
	if p.HashCommand == "" {
		return Wrap("echo 'no sha256 tool available' >&2; exit 90")
	}
	return Wrap(p.HashCommand + " " + Quote(path))
}

// Extract unpacks the verified archive into dir
func (p Profile) Extract(archive, dir string) string {
	tar := "tar"
	if p.Flavor == FlavorBusyBox {
		tar = "busybox tar"
	}
	return Wrap(fmt.Sprintf("%s -xzf %s -C %s", tar, Quote(archive), Quote(dir)))
}

// Invoke builds the command line executing a routine through the staged
// runtime. Name and every argument are passed as separate, individually
// quoted words; credential-free by construction.
func (p Profile) Invoke(stagedDir, routine string, args []string) string {
	words := make([]string, 0, len(args)+2)
	words = append(words, "./"+RuntimeEntry, routine)
	for _, a := range args {
		words = append(words, a)
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}
	script := fmt.Sprintf("cd %s && exec /bin/sh %s", Quote(stagedDir), strings.Join(quoted, " "))
	return Wrap(script)
}

// Cleanup removes the staged directory at session end
func (p Profile) Cleanup(dir string) string {
	return Wrap("rm -rf " + Quote(dir))
}
