package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// MultiPinner pins every document on all available backends for redundancy.
type MultiPinner struct {
	backends []interfaces.Pinner
	log      *slog.Logger
}

// NewMultiPinner creates a pinner over backends, tried in order.
func NewMultiPinner(backends []interfaces.Pinner, logger *slog.Logger) *MultiPinner {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiPinner{
		backends: backends,
		log:      logger,
	}
}

// Pin uploads the document to every available backend and returns the CID reported by
// the first successful one. It fails only when no backend pinned the document.
func (m *MultiPinner) Pin(ctx context.Context, name string, r io.Reader) (string, error) {
	start := time.Now()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("could not read document %s: %w", name, err)
	}

	var result string
	var errs []error
	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		cid, err := backend.Pin(ctx, name, bytes.NewReader(data))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Debug("Failed to pin on backend",
				slog.String("backend_name", backend.Name()),
				"err", err)
			continue
		}

		if result == "" {
			result = cid
			m.log.Info("Successfully pinned document",
				slog.String("backend_name", backend.Name()),
				slog.String("cid", cid),
				slog.Duration("duration", time.Since(start)))
		} else if result != cid {
			m.log.Warn("Inconsistent CIDs from backends",
				slog.String("backend_name", backend.Name()),
				slog.String("expected_cid", result),
				slog.String("actual_cid", cid))
		}
	}

	if result == "" {
		m.log.Error("All backends failed to pin document",
			slog.String("name", name),
			slog.Int("failed_backends", len(errs)),
			slog.Duration("duration", time.Since(start)))
		if len(errs) == 0 {
			return "", errors.New("no pinning backends configured")
		}
		return "", fmt.Errorf("all backends failed to pin %s: %w", name, errors.Join(errs...))
	}

	return result, nil
}

// Available checks if any backend is available.
func (m *MultiPinner) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the combined name of all backends.
func (m *MultiPinner) Name() string {
	names := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		names = append(names, backend.Name())
	}
	return "multi:[" + strings.Join(names, ",") + "]"
}
