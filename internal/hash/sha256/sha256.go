// Package sha256 provides content addressing for archived bodies.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// Hasher implements indieweb.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ObjectPath returns prefix/<digest><ext>, the content-addressed location of
// data.
func ObjectPath(prefix, digest, ext string) string {
	return path.Join(prefix, digest+ext)
}
