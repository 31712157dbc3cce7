package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/credential-registry-client/interfaces"
)

// PinnerFactory creates pinning backends from URI strings.
type PinnerFactory struct {
	log *slog.Logger

	// Pinata credentials used when a pinata:// URI carries none.
	pinataCreds PinataCredentials
}

// NewPinnerFactory creates a new factory. creds are the default Pinata credentials, for
// example loaded with PinataCredentialsFromVault.
func NewPinnerFactory(logger *slog.Logger, creds PinataCredentials) *PinnerFactory {
	return &PinnerFactory{
		log:         logger,
		pinataCreds: creds,
	}
}

// PinnerFor creates a pinning backend from a location URI.
//
// Supported schemes:
//   - pinata://[KEY:SECRET@]host[?scheme=http] or pinata://JWT@host - Pinata pinning API
//   - ipfs://host[:port][?timeout=30s] - IPFS node HTTP API
func (f *PinnerFactory) PinnerFor(locationURI string) (interfaces.Pinner, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "pinata":
		return f.createPinataPinner(u)
	case "ipfs":
		return f.createIPFSPinner(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiPinner creates a pinner that pins to every backend in locationURIs.
// Invalid URIs are logged and skipped.
func (f *PinnerFactory) CreateMultiPinner(locationURIs []string) (interfaces.Pinner, error) {
	backends := make([]interfaces.Pinner, 0, len(locationURIs))

	for _, uri := range locationURIs {
		backend, err := f.PinnerFor(uri)
		if err != nil {
			f.log.Warn("Failed to create pinning backend",
				"err", err,
				slog.String("locationURI", redact(uri)))
			continue
		}
		backends = append(backends, backend)
	}

	switch len(backends) {
	case 0:
		return nil, fmt.Errorf("no valid pinning backends created")
	case 1:
		return backends[0], nil
	default:
		return NewMultiPinner(backends, f.log), nil
	}
}

func (f *PinnerFactory) createPinataPinner(u *url.URL) (interfaces.Pinner, error) {
	f.log.Debug("Creating pinata backend", slog.String("uri", u.Redacted()))

	host := u.Host
	if host == "" {
		return nil, fmt.Errorf("%w: missing pinata host", interfaces.ErrInvalidLocationURI)
	}

	scheme := u.Query().Get("scheme")
	if scheme == "" {
		scheme = "https"
	}

	creds := f.pinataCreds
	if u.User != nil {
		if secret, ok := u.User.Password(); ok {
			creds = PinataCredentials{APIKey: u.User.Username(), APISecret: secret}
		} else {
			creds = PinataCredentials{JWT: u.User.Username()}
		}
	}
	if creds.empty() {
		f.log.Warn("No pinata credentials configured, uploads will fail")
	}

	return NewPinataPinner(fmt.Sprintf("%s://%s", scheme, host), creds, f.log), nil
}

func (f *PinnerFactory) createIPFSPinner(u *url.URL) (interfaces.Pinner, error) {
	f.log.Debug("Creating IPFS backend", slog.String("uri", u.String()))

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing IPFS host", interfaces.ErrInvalidLocationURI)
	}
	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	timeout := 30 * time.Second
	if raw := u.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = parsed
	}

	return NewIPFSPinner(host, port, timeout, f.log), nil
}

func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
