package config

import "time"

// Config is the root configuration for remex
type Config struct {
	// Version is the config schema version
	Version int `yaml:"version"`

	// Database holds persistence settings
	Database DatabaseConfig `yaml:"database"`

	// Logging holds log output settings
	Logging LoggingConfig `yaml:"logging"`

	// Trust holds host key verification policy
	Trust TrustConfig `yaml:"trust"`

	// Fleet holds concurrency, retry, and timeout settings
	Fleet FleetConfig `yaml:"fleet"`

	// Preflight holds the optional pre-dispatch reachability scan settings
	Preflight PreflightConfig `yaml:"preflight"`

	// Payload holds runtime package build settings
	Payload PayloadConfig `yaml:"payload"`

	// Identity is the caller identity presented to the privilege gate
	Identity string `yaml:"identity"`

	// Credentials declares the credentials targets may reference
	Credentials []CredentialConfig `yaml:"credentials"`

	// Targets is the initial target roster
	Targets []TargetConfig `yaml:"targets"`

	// ACL is the pre-resolved allow table consulted by the privilege gate
	ACL ACLConfig `yaml:"acl"`
}

// DatabaseConfig locates the SQLite database holding trust records and
// the payload cache
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	// Level is debug, info, warn, or error
	Level string `yaml:"level"`
	// Format is json or console
	Format string `yaml:"format"`
}

// TrustConfig controls host key verification
type TrustConfig struct {
	// Policy is "strict" (unknown hosts fail closed) or "accept-new"
	// (first-use fingerprints are recorded). Mismatches always fail.
	Policy string `yaml:"policy"`
}

// FleetConfig bounds the coordinator
type FleetConfig struct {
	// Concurrency is the maximum number of targets worked in parallel
	Concurrency int `yaml:"concurrency"`
	// Retries is the bounded retry count for transport-layer failures
	Retries int `yaml:"retries"`
	// ConnectTimeout applies per connection attempt
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// CommandTimeout applies per remote command execution
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// PreflightConfig controls the optional nmap reachability scan
type PreflightConfig struct {
	Enabled bool `yaml:"enabled"`
}

// PayloadConfig controls runtime package builds
type PayloadConfig struct {
	// Version tags built packages; changing it invalidates the cache
	Version string `yaml:"version"`
	// SourceDir overrides the embedded runtime source, if set
	SourceDir string `yaml:"source_dir,omitempty"`
}

// CredentialConfig declares a credential in the config file. Material
// may be given inline or by file reference; file references keep
// material out of the config itself.
type CredentialConfig struct {
	ID       string `yaml:"id"`
	Username string `yaml:"username"`
	// Kind is "key" or "password"
	Kind string `yaml:"kind"`
	// KeyFile is the private key path for kind=key
	KeyFile string `yaml:"key_file,omitempty"`
	// Passphrase decrypts an encrypted key
	Passphrase string `yaml:"passphrase,omitempty"`
	// PasswordFile holds the password for kind=password; trailing
	// newline is stripped, interior whitespace is preserved verbatim
	PasswordFile string `yaml:"password_file,omitempty"`
	// Password is an inline password; preserved verbatim
	Password string `yaml:"password,omitempty"`
}

// TargetConfig declares one roster entry
type TargetConfig struct {
	Address     string `yaml:"address"`
	Port        int    `yaml:"port,omitempty"`
	Credential  string `yaml:"credential"`
	Fingerprint string `yaml:"fingerprint,omitempty"`
}

// ACLConfig is the pre-resolved authorization table
type ACLConfig struct {
	// Strategy is "exact" or "glob" argument-shape matching
	Strategy string `yaml:"strategy"`
	// Allow maps identity to the routine patterns it may call
	Allow map[string][]ACLRule `yaml:"allow"`
}

// ACLRule grants one (routine, argument shape) pattern
type ACLRule struct {
	// Routine is the routine name or pattern, e.g. "test.*"
	Routine string `yaml:"routine"`
	// Args constrains the argument shape; empty allows any arguments
	Args []string `yaml:"args,omitempty"`
}
