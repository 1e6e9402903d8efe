package domain

// CredentialKind categorizes how a credential authenticates
type CredentialKind string

const (
	// CredentialKey authenticates with an SSH private key
	CredentialKey CredentialKind = "key"
	// CredentialPassword authenticates with a password. The material is
	// treated as an opaque token end to end: it may contain whitespace
	// and arbitrary punctuation and is never tokenized or split.
	CredentialPassword CredentialKind = "password"
)

// Credential holds authentication material for one or more targets.
// The kind is explicitly selected by the operator, never auto-guessed.
type Credential struct {
	// ID is the identifier targets reference
	ID string `json:"id" yaml:"id"`

	// Username is the remote login user
	Username string `json:"username" yaml:"username"`

	// Kind selects key or password authentication
	Kind CredentialKind `json:"kind" yaml:"kind"`

	// Material is the private key PEM or the password, verbatim
	Material string `json:"-" yaml:"-"`

	// Passphrase decrypts an encrypted private key, if set
	Passphrase string `json:"-" yaml:"-"`
}

// CredentialSummary is a safe view of a credential with no material
type CredentialSummary struct {
	ID       string         `json:"id"`
	Username string         `json:"username"`
	Kind     CredentialKind `json:"kind"`
}

// ToSummary returns a view safe for logs and listings
func (c Credential) ToSummary() CredentialSummary {
	return CredentialSummary{
		ID:       c.ID,
		Username: c.Username,
		Kind:     c.Kind,
	}
}
