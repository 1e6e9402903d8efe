package domain

import (
	"net"
	"strconv"
	"time"
)

// TrustState reflects what the trust store knows about a target's host key
type TrustState string

const (
	// TrustUnknown means no fingerprint has been recorded for the address
	TrustUnknown TrustState = "unknown"
	// TrustTrusted means the presented fingerprint matches the recorded one
	TrustTrusted TrustState = "trusted"
	// TrustMismatched means a different fingerprint was recorded earlier
	TrustMismatched TrustState = "mismatched"
)

// Target represents a remote host addressed for one routine dispatch.
// Trust is mutated only by the trust store; credentials are referenced
// by ID and never embedded, so a Target is always safe to log.
type Target struct {
	// Address is the hostname or IP of the target
	Address string `json:"address" yaml:"address"`

	// Port is the SSH port (default 22)
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Fingerprint is the declared host key fingerprint, if known ahead
	// of time; empty means unknown until first contact
	Fingerprint string `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`

	// CredentialID references a credential supplied by the credential source
	CredentialID string `json:"credential" yaml:"credential"`

	// Trust is the last verification outcome for this target
	Trust TrustState `json:"trust,omitempty" yaml:"-"`
}

// Addr returns the dialable host:port for the target
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Address, strconv.Itoa(port))
}

// TrustRecord binds an address to a host key fingerprint.
// Once recorded, a different fingerprint for the same address is always
// a hard failure unless an explicit per-invocation override is given.
type TrustRecord struct {
	Address     string    `json:"address"`
	Fingerprint string    `json:"fingerprint"`
	FirstSeen   time.Time `json:"first_seen"`
}

// StagedPath identifies the verified runtime location on one target.
// It is created exclusively with a random component, reused for the
// lifetime of the session, and removed at session end.
type StagedPath struct {
	Target string
	// Path is the absolute remote directory holding the extracted runtime
	Path string
	// ArchivePath is the transferred archive inside Path
	ArchivePath string
	// Mode is the creation mode of the directory
	Mode uint32
}
