// Package trust persists known target identities and enforces
// verification policy. A recorded fingerprint binds permanently to an
// address: any later connection presenting a different fingerprint is a
// hard failure unless the caller passes an explicit per-invocation
// override. The override is never implicit and never cached.
package trust

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"remex/internal/domain"
	"remex/internal/repository"
)

// Policy decides what happens on first contact with an unknown host
type Policy string

const (
	// PolicyStrict fails closed on unknown hosts
	PolicyStrict Policy = "strict"
	// PolicyAcceptNew records the fingerprint on first use and proceeds
	PolicyAcceptNew Policy = "accept-new"
)

// Store is the in-memory trust state backed by the repository.
// Lookups are concurrent; acceptance writes for the same address are
// serialized so at most one acceptance is ever recorded. A concurrent
// second acceptance is re-checked against the now-recorded value
// instead of overwriting it.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.TrustRecord
	repo    repository.Repository
	logger  *zap.Logger

	// OnAccept, if set, is called once per newly recorded first-use
	// binding. Invoked under the store lock; must not call back into
	// the store.
	OnAccept func(address, fingerprint string)
}

// NewStore loads recorded fingerprints from the repository
func NewStore(ctx context.Context, repo repository.Repository, logger *zap.Logger) (*Store, error) {
	records, err := repo.ListTrustRecords(ctx)
	if err != nil {
		return nil, err
	}
	byAddr := make(map[string]domain.TrustRecord, len(records))
	for _, rec := range records {
		byAddr[rec.Address] = rec
	}
	logger.Debug("trust store loaded", zap.Int("records", len(byAddr)))
	return &Store{records: byAddr, repo: repo, logger: logger}, nil
}

// Verify reports the trust state of a presented fingerprint
func (s *Store) Verify(address, presented string) domain.TrustState {
	s.mu.RLock()
	rec, ok := s.records[address]
	s.mu.RUnlock()

	if !ok {
		return domain.TrustUnknown
	}
	if rec.Fingerprint == presented {
		return domain.TrustTrusted
	}
	return domain.TrustMismatched
}

// Accept records a first-use fingerprint for an address. If a record
// already exists the presented fingerprint is compared against it: a
// match is a no-op, anything else is a TrustMismatchError. The check
// and the write happen under one lock, so two concurrent first
// connections record exactly one binding.
func (s *Store) Accept(ctx context.Context, address, presented string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[address]; ok {
		if rec.Fingerprint == presented {
			return nil
		}
		return &domain.TrustMismatchError{
			Address:   address,
			Known:     rec.Fingerprint,
			Presented: presented,
		}
	}

	rec := domain.TrustRecord{
		Address:     address,
		Fingerprint: presented,
		FirstSeen:   time.Now().UTC(),
	}
	if err := s.repo.PutTrustRecord(ctx, rec); err != nil {
		return err
	}
	s.records[address] = rec
	s.logger.Info("trust: recorded first-use fingerprint",
		zap.String("address", address),
		zap.String("fingerprint", presented),
	)
	if s.OnAccept != nil {
		s.OnAccept(address, presented)
	}
	return nil
}

// Check applies policy to a presented fingerprint and returns nil only
// when the connection may proceed. override permits replacing a
// mismatched record for this invocation only; it is supplied per call
// and nothing about it is remembered beyond the re-recorded binding.
func (s *Store) Check(ctx context.Context, address, presented string, policy Policy, override bool) error {
	switch s.Verify(address, presented) {
	case domain.TrustTrusted:
		return nil

	case domain.TrustUnknown:
		if policy == PolicyAcceptNew {
			return s.Accept(ctx, address, presented)
		}
		return &domain.TrustMismatchError{Address: address, Presented: presented}

	default: // mismatched
		if !override {
			s.mu.RLock()
			known := s.records[address].Fingerprint
			s.mu.RUnlock()
			return &domain.TrustMismatchError{
				Address:   address,
				Known:     known,
				Presented: presented,
			}
		}
		return s.rebind(ctx, address, presented)
	}
}

// rebind replaces a mismatched record under an explicit override
func (s *Store) rebind(ctx context.Context, address, presented string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.records[address].Fingerprint
	rec := domain.TrustRecord{
		Address:     address,
		Fingerprint: presented,
		FirstSeen:   time.Now().UTC(),
	}
	if err := s.repo.PutTrustRecord(ctx, rec); err != nil {
		return err
	}
	s.records[address] = rec
	s.logger.Warn("trust: fingerprint replaced under explicit override",
		zap.String("address", address),
		zap.String("old", old),
		zap.String("new", presented),
	)
	return nil
}

// List returns all recorded bindings
func (s *Store) List() []domain.TrustRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.TrustRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	return records
}

// Forget removes the binding for an address
func (s *Store) Forget(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.DeleteTrustRecord(ctx, address); err != nil {
		return err
	}
	delete(s.records, address)
	s.logger.Info("trust: binding removed", zap.String("address", address))
	return nil
}
