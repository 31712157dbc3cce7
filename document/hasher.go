// Package document computes the content hash that identifies a credential document.
package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// HashBytes returns the lowercase hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashReader returns the lowercase hex SHA-256 digest of everything read from r.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Digest is the hash of a selected document.
type Digest struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Hasher reads documents in the background. A caller that stops waiting through ctx gets
// ctx.Err(); the read finishes on its own and its result is discarded.
type Hasher struct {
	log *slog.Logger
}

func NewHasher(log *slog.Logger) *Hasher {
	return &Hasher{log: log}
}

type hashResult struct {
	hash string
	size int64
	err  error
}

// Hash digests r, returning when the read completes or ctx is done, whichever is first.
func (h *Hasher) Hash(ctx context.Context, name string, r io.Reader) (*Digest, error) {
	return h.hash(ctx, name, r, func() {})
}

// HashFile digests the file at path. The file is closed once the read completes, even
// when the caller stopped waiting.
func (h *Hasher) HashFile(ctx context.Context, path string) (*Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open document: %w", err)
	}
	return h.hash(ctx, filepath.Base(path), f, func() { f.Close() })
}

func (h *Hasher) hash(ctx context.Context, name string, r io.Reader, release func()) (*Digest, error) {
	start := time.Now()
	done := make(chan hashResult, 1)

	go func() {
		defer release()
		hash, size, err := HashReader(r)
		done <- hashResult{hash: hash, size: size, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			h.log.Warn("Failed to read document", "name", name, "err", res.err)
			return nil, fmt.Errorf("could not read document %s: %w", name, res.err)
		}
		h.log.Debug("Document hashed",
			slog.String("name", name),
			slog.String("hash", res.hash),
			slog.Int64("size", res.size),
			slog.Duration("duration", time.Since(start)))
		return &Digest{Name: name, Hash: res.hash, Size: res.size}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
