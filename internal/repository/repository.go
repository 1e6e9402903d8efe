package repository

import (
	"context"

	"remex/internal/domain"
)

// PackageRecord is a cached bootstrap package keyed by checksum.
// SourceDigest identifies the source contents the package was built
// from, so a rebuild with identical sources hits the cache.
type PackageRecord struct {
	Checksum     string
	Version      string
	Platform     string
	SourceDigest string
	Data         []byte
}

// Repository defines persistent storage for trust records and the
// bootstrap package cache. Both survive process restarts.
type Repository interface {
	// Trust records (address -> fingerprint)
	ListTrustRecords(ctx context.Context) ([]domain.TrustRecord, error)
	PutTrustRecord(ctx context.Context, rec domain.TrustRecord) error
	DeleteTrustRecord(ctx context.Context, address string) error

	// Bootstrap package cache (checksum -> bytes)
	GetPackage(ctx context.Context, platform, version, sourceDigest string) (*PackageRecord, error)
	PutPackage(ctx context.Context, rec PackageRecord) error

	// Close releases resources
	Close() error
}
