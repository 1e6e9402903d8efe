// Package payload builds the bootstrap package: a deterministic gzip
// tarball of the minimal runtime, addressed by its sha256 checksum and
// cached in the repository. Building twice from identical sources
// yields byte-identical archives and therefore identical checksums.
package payload

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"remex/internal/domain"
	"remex/internal/repository"
)

//go:embed runtime/runtime.sh
var runtimeFS embed.FS

// DefaultPlatform is the platform class the embedded runtime targets
const DefaultPlatform = "posix"

// Builder builds and caches bootstrap packages
type Builder struct {
	// Version tags built packages; a changed version invalidates cache hits
	Version string
	// Source is the runtime source tree; defaults to the embedded runtime
	Source fs.FS
	// Repo caches built packages by checksum, surviving restarts
	Repo   repository.Repository
	Logger *zap.Logger
}

// NewBuilder returns a builder over the embedded runtime source
func NewBuilder(version string, repo repository.Repository, logger *zap.Logger) *Builder {
	sub, err := fs.Sub(runtimeFS, "runtime")
	if err != nil {
		// embed layout is fixed at compile time
		panic(err)
	}
	return &Builder{Version: version, Source: sub, Repo: repo, Logger: logger}
}

// Build returns the bootstrap package for a platform class. Idempotent:
// identical source contents and version always produce a package with
// the same checksum, and a cached package is returned without
// rebuilding.
func (b *Builder) Build(ctx context.Context, platform string) (*domain.BootstrapPackage, error) {
	if platform == "" {
		platform = DefaultPlatform
	}

	digest, err := b.sourceDigest()
	if err != nil {
		return nil, fmt.Errorf("digest runtime source: %w", err)
	}

	if b.Repo != nil {
		cached, err := b.Repo.GetPackage(ctx, platform, b.Version, digest)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			b.Logger.Debug("payload cache hit",
				zap.String("platform", platform),
				zap.String("checksum", cached.Checksum),
			)
			return &domain.BootstrapPackage{
				Version:  cached.Version,
				Platform: cached.Platform,
				Checksum: cached.Checksum,
				Data:     cached.Data,
			}, nil
		}
	}

	data, err := b.archive(platform)
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}

	sum := sha256.Sum256(data)
	pkg := &domain.BootstrapPackage{
		Version:  b.Version,
		Platform: platform,
		Checksum: hex.EncodeToString(sum[:]),
		Data:     data,
	}

	if b.Repo != nil {
		rec := repository.PackageRecord{
			Checksum:     pkg.Checksum,
			Version:      pkg.Version,
			Platform:     pkg.Platform,
			SourceDigest: digest,
			Data:         pkg.Data,
		}
		if err := b.Repo.PutPackage(ctx, rec); err != nil {
			return nil, err
		}
	}

	b.Logger.Info("payload built",
		zap.String("platform", platform),
		zap.String("version", pkg.Version),
		zap.String("checksum", pkg.Checksum),
		zap.Int("bytes", len(pkg.Data)),
	)
	return pkg, nil
}

// sourceFiles lists the runtime source in stable order
func (b *Builder) sourceFiles() ([]string, error) {
	var names []string
	err := fs.WalkDir(b.Source, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// sourceDigest hashes names and contents of the source tree
func (b *Builder) sourceDigest() (string, error) {
	names, err := b.sourceFiles()
	if err != nil {
		return "", err
	}
	h := sha256.New()
	for _, name := range names {
		data, err := fs.ReadFile(b.Source, name)
		if err != nil {
			return "", err
		}
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// archive produces the deterministic tarball: fixed timestamps, fixed
// ownership, lexical entry order.
func (b *Builder) archive(platform string) ([]byte, error) {
	names, err := b.sourceFiles()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	epoch := time.Unix(0, 0)
	writeEntry := func(name string, data []byte, mode int64) error {
		hdr := &tar.Header{
			Name:    name,
			Mode:    mode,
			Size:    int64(len(data)),
			ModTime: epoch,
			Uid:     0,
			Gid:     0,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	version := fmt.Sprintf("%s %s\n", b.Version, platform)
	if err := writeEntry("VERSION", []byte(version), 0644); err != nil {
		return nil, err
	}

	for _, name := range names {
		data, err := fs.ReadFile(b.Source, name)
		if err != nil {
			return nil, err
		}
		mode := int64(0644)
		if strings.HasSuffix(name, ".sh") {
			mode = 0755
		}
		if err := writeEntry(name, data, mode); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
