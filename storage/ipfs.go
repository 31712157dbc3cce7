package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/ruteri/credential-registry-client/interfaces"
	"github.com/ruteri/credential-registry-client/metrics"
)

// IPFSPinner adds and pins documents on an IPFS node through its HTTP API.
type IPFSPinner struct {
	shell *shell.Shell
	host  string
	port  string
	log   *slog.Logger
}

// NewIPFSPinner creates a pinner for the IPFS node API at host:port.
func NewIPFSPinner(host, port string, timeout time.Duration, log *slog.Logger) *IPFSPinner {
	sh := shell.NewShell(fmt.Sprintf("%s:%s", host, port))
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSPinner{
		shell: sh,
		host:  host,
		port:  port,
		log:   log,
	}
}

type addResult struct {
	cid string
	err error
}

// Pin adds r to the node as a pinned CIDv0 object. The shell API is not context aware:
// cancelling ctx returns early but the node may still complete the add.
func (b *IPFSPinner) Pin(ctx context.Context, name string, r io.Reader) (cid string, err error) {
	start := time.Now()
	defer func() { metrics.RecordPin("ipfs", err) }()

	if !b.shell.IsUp() {
		b.log.Warn("IPFS node unavailable",
			slog.String("host", b.host),
			slog.String("port", b.port))
		return "", interfaces.ErrBackendUnavailable
	}

	done := make(chan addResult, 1)
	go func() {
		cid, err := b.shell.Add(r, shell.Pin(true), shell.CidVersion(0))
		done <- addResult{cid: cid, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			b.log.Error("Failed to add document to IPFS",
				slog.String("name", name),
				"err", res.err,
				slog.Duration("duration", time.Since(start)))
			return "", fmt.Errorf("failed to add data to IPFS: %w", res.err)
		}

		b.log.Info("Pinned document",
			slog.String("backend", b.Name()),
			slog.String("name", name),
			slog.String("cid", res.cid),
			slog.Duration("duration", time.Since(start)))
		return res.cid, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Available checks if the IPFS node is accessible.
func (b *IPFSPinner) Available(ctx context.Context) bool {
	return b.shell.IsUp()
}

// Name returns a unique identifier for this pinning backend.
func (b *IPFSPinner) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}
