package domain

// BootstrapPackage is the immutable, checksum-addressed archive holding
// the minimal runtime staged on targets. The checksum is computed at
// build time and independently recomputed on the target after transfer;
// a mismatch discards the payload before any of it executes.
type BootstrapPackage struct {
	// Version tags the package contents
	Version string `json:"version"`

	// Platform is the platform class the package targets
	Platform string `json:"platform"`

	// Checksum is the hex sha256 of Data
	Checksum string `json:"checksum"`

	// Data is the gzip tarball payload
	Data []byte `json:"-"`
}
