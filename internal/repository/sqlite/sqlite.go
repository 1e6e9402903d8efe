package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"remex/internal/domain"
	"remex/internal/repository"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// Compile-time interface guard.
var _ repository.Repository = (*Repository)(nil)

// New opens (or creates) the database at the given path and applies
// WAL pragmas. SQLite performs best with a single write connection.
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	// modernc.org/sqlite requires pragmas as SQL statements, not DSN params
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trust_records (
		address TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		first_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payload_cache (
		checksum TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		platform TEXT NOT NULL,
		source_digest TEXT NOT NULL,
		data BLOB NOT NULL,
		built_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payload_cache_key
		ON payload_cache(platform, version, source_digest);
	`

	_, err := r.db.Exec(schema)
	return err
}

// ListTrustRecords loads all recorded address/fingerprint bindings
func (r *Repository) ListTrustRecords(ctx context.Context) ([]domain.TrustRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT address, fingerprint, first_seen FROM trust_records
	`)
	if err != nil {
		return nil, fmt.Errorf("query trust records: %w", err)
	}
	defer rows.Close()

	var records []domain.TrustRecord
	for rows.Next() {
		var rec domain.TrustRecord
		if err := rows.Scan(&rec.Address, &rec.Fingerprint, &rec.FirstSeen); err != nil {
			return nil, fmt.Errorf("scan trust record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trust records: %w", err)
	}

	return records, nil
}

// PutTrustRecord inserts or replaces the binding for an address
func (r *Repository) PutTrustRecord(ctx context.Context, rec domain.TrustRecord) error {
	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trust_records (address, fingerprint, first_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			first_seen = excluded.first_seen
	`, rec.Address, rec.Fingerprint, rec.FirstSeen)
	if err != nil {
		return fmt.Errorf("put trust record: %w", err)
	}
	return nil
}

// DeleteTrustRecord removes the binding for an address
func (r *Repository) DeleteTrustRecord(ctx context.Context, address string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM trust_records WHERE address = ?
	`, address)
	if err != nil {
		return fmt.Errorf("delete trust record: %w", err)
	}
	return nil
}

// GetPackage returns the cached package for the given build key, or
// nil when no matching package exists
func (r *Repository) GetPackage(ctx context.Context, platform, version, sourceDigest string) (*repository.PackageRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT checksum, version, platform, source_digest, data
		FROM payload_cache
		WHERE platform = ? AND version = ? AND source_digest = ?
	`, platform, version, sourceDigest)

	var rec repository.PackageRecord
	err := row.Scan(&rec.Checksum, &rec.Version, &rec.Platform, &rec.SourceDigest, &rec.Data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	return &rec, nil
}

// PutPackage stores a built package keyed by checksum
func (r *Repository) PutPackage(ctx context.Context, rec repository.PackageRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payload_cache (checksum, version, platform, source_digest, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(checksum) DO UPDATE SET
			version = excluded.version,
			platform = excluded.platform,
			source_digest = excluded.source_digest,
			data = excluded.data
	`, rec.Checksum, rec.Version, rec.Platform, rec.SourceDigest, rec.Data)
	if err != nil {
		return fmt.Errorf("put package: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}
