// Package metrics defines the client's prometheus metrics and the server exposing them.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ruteri/credential-registry-client/interfaces"
)

const namespace = "credential_registry_client"

var (
	txSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_submitted_total",
		Help:      "Transactions accepted by the node, by operation.",
	}, []string{"operation"})

	txFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transactions_finished_total",
		Help:      "Transactions that reached a terminal status, by operation and status.",
	}, []string{"operation", "status"})

	txConfirmationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "transaction_confirmation_seconds",
		Help:      "Time from submission to a terminal status.",
		Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
	}, []string{"operation"})

	contractReads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "contract_reads_total",
		Help:      "Read-only contract calls, by query and result.",
	}, []string{"query", "result"})

	pinUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pin_uploads_total",
		Help:      "Document uploads to pinning backends, by backend and result.",
	}, []string{"backend", "result"})

	sessionEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_events_total",
		Help:      "Wallet session transitions, by event.",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(txSubmitted, txFinished, txConfirmationSeconds, contractReads, pinUploads, sessionEvents)
}

// RecordTxSubmitted counts a transaction accepted by the node.
func RecordTxSubmitted(operation string) {
	txSubmitted.WithLabelValues(operation).Inc()
}

// RecordTxFinished counts a transaction reaching status and observes its confirmation time.
func RecordTxFinished(operation, status string, elapsed time.Duration) {
	txFinished.WithLabelValues(operation, status).Inc()
	txConfirmationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordRead counts a read-only contract call.
func RecordRead(query string, err error) {
	contractReads.WithLabelValues(query, resultLabel(err)).Inc()
}

// RecordPin counts a pinning upload.
func RecordPin(backend string, err error) {
	pinUploads.WithLabelValues(backend, resultLabel(err)).Inc()
}

// RecordSessionEvent counts a wallet session transition.
func RecordSessionEvent(event string) {
	sessionEvents.WithLabelValues(event).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, interfaces.ErrNotFound):
		return "not_found"
	case errors.Is(err, interfaces.ErrReverted):
		return "reverted"
	case errors.Is(err, interfaces.ErrNetwork):
		return "network_error"
	default:
		return "error"
	}
}

// MetricsServer serves the prometheus metrics over HTTP.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on addr.
func New(addr string) (*MetricsServer, error) {
	if addr == "" {
		return nil, errors.New("metrics address must not be empty")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
