package metrics

import (
	"cmp"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Cells = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbridge_cells_total",
			Help: "Total number of cells seen by the dispatcher by outcome (routed, excluded, unrouted)",
		},
		[]string{"table", "outcome"},
	)

	DispatchedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbridge_dispatched_messages_total",
			Help: "Total number of messages handed to the producer by topic",
		},
		[]string{"topic"},
	)

	SendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbridge_send_errors_total",
			Help: "Total number of messages the broker failed to acknowledge by topic",
		},
		[]string{"topic"},
	)

	SerializationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbridge_serialization_errors_total",
			Help: "Total number of events that could not be encoded by codec",
		},
		[]string{"codec"},
	)

	Batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbridge_batches_total",
			Help: "Total number of submitted batches by table and result",
		},
		[]string{"table", "result"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cellbridge_batch_duration_seconds",
			Help:    "Duration of a batch submission including the acknowledgement barrier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	RuleReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cellbridge_rule_reloads_total",
			Help: "Total number of rule reload attempts by result",
		},
		[]string{"result"},
	)

	ActiveRules = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cellbridge_active_rules",
			Help: "Number of rules in the active rule set by action",
		},
		[]string{"action"},
	)
)

type PromServerOpts struct {
	Logger            *zap.Logger
	Addr              string
	Path              string        // Path for metrics endpoint, defaults to "/metrics"
	ShutdownTimeout   time.Duration // Timeout for server shutdown, defaults to 5 seconds
	ReadHeaderTimeout time.Duration // Timeout for reading request headers, defaults to 3 seconds
}

func defaultPrometheusServerOptions() PromServerOpts {
	return PromServerOpts{
		Addr:              ":9100",
		Path:              "/metrics",
		ShutdownTimeout:   5 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Logger:            zap.NewNop(),
	}
}

// StartPrometheusServer starts a Prometheus metrics server with the given options
// The server gracefully shutdown when the provided context is canceled
func StartPrometheusServer(ctx context.Context, wg *sync.WaitGroup, opts *PromServerOpts) {
	// merge with defaults
	effectiveOpts := defaultPrometheusServerOptions()
	if opts != nil {
		effectiveOpts.Addr = cmp.Or(opts.Addr, effectiveOpts.Addr)
		effectiveOpts.Path = cmp.Or(opts.Path, effectiveOpts.Path)
		effectiveOpts.ShutdownTimeout = cmp.Or(opts.ShutdownTimeout, effectiveOpts.ShutdownTimeout)
		effectiveOpts.ReadHeaderTimeout = cmp.Or(opts.ReadHeaderTimeout, effectiveOpts.ReadHeaderTimeout)
		if opts.Logger != nil {
			effectiveOpts.Logger = opts.Logger
		}
	}
	logger := effectiveOpts.Logger

	mux := http.NewServeMux()
	mux.Handle(effectiveOpts.Path, promhttp.Handler())
	server := &http.Server{
		Addr:              effectiveOpts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: effectiveOpts.ReadHeaderTimeout,
	}

	serverClosed := make(chan struct{})

	// Increment wait group
	wg.Add(1)

	// Start server
	go func() {
		defer wg.Done()
		logger.Info("Starting Prometheus metrics server", zap.String("addr", effectiveOpts.Addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("Metrics server error", zap.Error(err))
		}
		close(serverClosed)
	}()

	// Monitor context cancellation in a separate goroutine
	go func() {
		<-ctx.Done()

		// Create a timeout context for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), effectiveOpts.ShutdownTimeout)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error shutting down metrics server", zap.Error(err))
		}

		// Wait for server to close or timeout
		select {
		case <-serverClosed:
			logger.Info("Metrics server shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Metrics server shutdown timed out")
		}
	}()
}
