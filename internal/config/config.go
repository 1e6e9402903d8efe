// Package config provides configuration management for remex.
//
// The config file persists operator intent (targets, credentials, trust
// policy, the ACL table); the database stores what remex has learned
// (trust records, payload cache) and can be reset independently.
//
// Config file locations (priority order):
//  1. $REMEX_CONFIG
//  2. ./remex.yaml
//  3. $XDG_CONFIG_HOME/remex/config.yaml
//  4. ~/.config/remex/config.yaml
//  5. /etc/remex/config.yaml
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"remex/internal/domain"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Database.Path == "" {
		c.Database.Path = "./remex.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Trust.Policy == "" {
		c.Trust.Policy = "strict"
	}
	if c.Fleet.Concurrency == 0 {
		c.Fleet.Concurrency = 25
	}
	if c.Fleet.ConnectTimeout == 0 {
		c.Fleet.ConnectTimeout = 10 * time.Second
	}
	if c.Fleet.CommandTimeout == 0 {
		c.Fleet.CommandTimeout = 60 * time.Second
	}
	if c.Payload.Version == "" {
		c.Payload.Version = "1"
	}
	if c.ACL.Strategy == "" {
		c.ACL.Strategy = "glob"
	}
	if c.Identity == "" {
		c.Identity = "local"
	}
}

// validate rejects configs that cannot be acted on safely
func (c *Config) validate() error {
	switch c.Trust.Policy {
	case "strict", "accept-new":
	default:
		return fmt.Errorf("config: trust.policy must be \"strict\" or \"accept-new\", got %q", c.Trust.Policy)
	}
	switch c.ACL.Strategy {
	case "exact", "glob":
	default:
		return fmt.Errorf("config: acl.strategy must be \"exact\" or \"glob\", got %q", c.ACL.Strategy)
	}
	if c.Fleet.Retries < 0 {
		return fmt.Errorf("config: fleet.retries must not be negative")
	}
	seen := make(map[string]bool, len(c.Credentials))
	for _, cc := range c.Credentials {
		if cc.ID == "" {
			return fmt.Errorf("config: credential with empty id")
		}
		if seen[cc.ID] {
			return fmt.Errorf("config: duplicate credential id %q", cc.ID)
		}
		seen[cc.ID] = true
		switch cc.Kind {
		case "key":
			if cc.KeyFile == "" {
				return fmt.Errorf("config: credential %q: kind=key requires key_file", cc.ID)
			}
		case "password":
			if cc.Password == "" && cc.PasswordFile == "" {
				return fmt.Errorf("config: credential %q: kind=password requires password or password_file", cc.ID)
			}
		default:
			return fmt.Errorf("config: credential %q: kind must be \"key\" or \"password\", got %q", cc.ID, cc.Kind)
		}
	}
	for _, tc := range c.Targets {
		if tc.Address == "" {
			return fmt.Errorf("config: target with empty address")
		}
		if tc.Credential != "" && !seen[tc.Credential] {
			return fmt.Errorf("config: target %q references unknown credential %q", tc.Address, tc.Credential)
		}
	}
	return nil
}

// TargetList converts the roster into domain targets
func (c *Config) TargetList() []domain.Target {
	targets := make([]domain.Target, 0, len(c.Targets))
	for _, tc := range c.Targets {
		targets = append(targets, domain.Target{
			Address:      tc.Address,
			Port:         tc.Port,
			Fingerprint:  tc.Fingerprint,
			CredentialID: tc.Credential,
			Trust:        domain.TrustUnknown,
		})
	}
	return targets
}

// Credential resolves a declared credential by ID, reading referenced
// material files. Material is returned verbatim: a password read from a
// file keeps interior whitespace and punctuation, with only a single
// trailing newline stripped.
func (c *Config) Credential(id string) (domain.Credential, error) {
	for _, cc := range c.Credentials {
		if cc.ID != id {
			continue
		}
		cred := domain.Credential{
			ID:       cc.ID,
			Username: cc.Username,
			Kind:     domain.CredentialKind(cc.Kind),
		}
		switch cred.Kind {
		case domain.CredentialKey:
			data, err := os.ReadFile(cc.KeyFile)
			if err != nil {
				return domain.Credential{}, fmt.Errorf("credential %q: read key: %w", id, err)
			}
			cred.Material = string(data)
			cred.Passphrase = cc.Passphrase
		case domain.CredentialPassword:
			if cc.Password != "" {
				cred.Material = cc.Password
			} else {
				data, err := os.ReadFile(cc.PasswordFile)
				if err != nil {
					return domain.Credential{}, fmt.Errorf("credential %q: read password: %w", id, err)
				}
				cred.Material = strings.TrimSuffix(string(data), "\n")
			}
		}
		return cred, nil
	}
	return domain.Credential{}, fmt.Errorf("credential %q not declared", id)
}
