package interfaces

import (
	"context"
	"errors"
	"io"
)

// Pinner uploads a document to a content-addressed store and pins it.
type Pinner interface {
	// Pin uploads the content read from r under the given file name and returns its CID.
	// Abandoning the call through ctx does not guarantee the remote upload is cancelled.
	Pin(ctx context.Context, name string, r io.Reader) (string, error)

	// Available checks whether the backend can currently accept uploads.
	Available(ctx context.Context) bool

	// Name returns a unique identifier for this pinning backend.
	Name() string
}

var (
	// ErrBackendUnavailable is returned when a pinning backend is not accessible.
	ErrBackendUnavailable = errors.New("pinning backend unavailable")

	// ErrInvalidLocationURI is returned when a pinning backend URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid pinning location URI")
)
