package domain

// SessionResult is the terminal outcome of one routine call on one target
type SessionResult struct {
	// Target is the address the routine ran on
	Target string `json:"target"`

	// ExitStatus is the remote routine's exit code
	ExitStatus int `json:"exit_status"`

	// Return is the structured value the routine produced
	Return any `json:"return,omitempty"`

	// Raw holds unparsed stdout when the runtime produced no envelope
	Raw string `json:"raw,omitempty"`
}

// TargetOutcome is exactly one terminal state per target: a result or
// one error kind from the taxonomy. Silence is never a valid outcome.
type TargetOutcome struct {
	Result *SessionResult `json:"result,omitempty"`
	Err    error          `json:"-"`
}

// ErrString renders the error for serialized output
func (o TargetOutcome) ErrString() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
