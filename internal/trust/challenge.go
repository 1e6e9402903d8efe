package trust

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ssh"

	"remex/internal/domain"
)

// NonceSize is the length of challenge nonces in bytes
const NonceSize = 32

// NewNonce returns a random challenge nonce. Data posted by a remote
// identity is only accepted after the poster signs a fresh nonce with
// the key bound to its address, so one identity cannot post data while
// claiming to be another.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// VerifyPosted checks a challenge-response proof for data posted by the
// identity at address: the presented public key must match the recorded
// fingerprint for that address, and sig must be a valid signature over
// nonce by that key. A claimed identifier alone is never trusted.
func (s *Store) VerifyPosted(address string, key ssh.PublicKey, nonce []byte, sig *ssh.Signature) error {
	if len(nonce) != NonceSize {
		return fmt.Errorf("challenge: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}

	presented := ssh.FingerprintSHA256(key)
	switch s.Verify(address, presented) {
	case domain.TrustTrusted:
	case domain.TrustUnknown:
		return &domain.TrustMismatchError{Address: address, Presented: presented}
	default:
		s.mu.RLock()
		known := s.records[address].Fingerprint
		s.mu.RUnlock()
		return &domain.TrustMismatchError{Address: address, Known: known, Presented: presented}
	}

	if err := key.Verify(nonce, sig); err != nil {
		return fmt.Errorf("challenge: signature verification failed for %s: %w", address, err)
	}
	return nil
}
