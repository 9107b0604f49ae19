// Package metrics exposes the relay's Prometheus instrumentation.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Relay metrics. Registered on the default registry via promauto.
var (
	// IntentsClassified counts classified intents by kind.
	IntentsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamrelay_intents_classified_total",
		Help: "Routing intents produced by the classifier, by kind.",
	}, []string{"kind"})

	// FlowsResolved counts finished confirmation flows by outcome.
	FlowsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamrelay_flows_resolved_total",
		Help: "Confirmation flows that reached a terminal state, by outcome.",
	}, []string{"outcome"})

	// Deliveries counts per-recipient delivery attempts by result.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamrelay_deliveries_total",
		Help: "Per-recipient delivery attempts, by result.",
	}, []string{"result"})

	// StaleTokens counts confirm/cancel callbacks that found no pending
	// action.
	StaleTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teamrelay_stale_tokens_total",
		Help: "Confirmation callbacks whose token had no pending action.",
	})

	// RejectedFlows counts flows ended by a classification or resolution
	// error, by error class.
	RejectedFlows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teamrelay_flows_rejected_total",
		Help: "Flows ended before confirmation by a routing error, by class.",
	}, []string{"reason"})
)

// Serve runs the /metrics listener until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
