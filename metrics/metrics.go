// Package metrics exposes Prometheus counters for the ingestion pipeline and a
// standalone metrics HTTP server.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/genui/attested-trace-backend/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ChallengesIssued counts successfully minted challenge tokens.
	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "challenges_issued_total",
		Help:      "Number of attestation challenges issued.",
	})

	// AttestationsAccepted counts attestation objects that passed verification.
	AttestationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "attestations_accepted_total",
		Help:      "Number of attestation objects accepted.",
	})

	// AttestationsRejected counts attestation objects that failed verification,
	// including malformed and replayed submissions.
	AttestationsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "attestations_rejected_total",
		Help:      "Number of attestation objects rejected.",
	})

	// TracesWritten counts traces persisted to the blob store.
	TracesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "traces_written_total",
		Help:      "Number of traces written to storage.",
	})

	// StorageWriteErrors counts failed blob store writes.
	StorageWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: common.PackageName,
		Name:      "storage_write_errors_total",
		Help:      "Number of failed blob store writes.",
	})
)

// MetricsServer serves the Prometheus scrape endpoint on a dedicated address.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server listening on listenAddr.
func New(listenAddr string) (*MetricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:         listenAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
