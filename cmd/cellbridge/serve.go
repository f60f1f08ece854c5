package cellbridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/cellbridge/pkg/httputil"
	"github.com/edgeflare/cellbridge/pkg/ingest"
	"github.com/edgeflare/cellbridge/pkg/metrics"
	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/edgeflare/cellbridge/pkg/pipeline/codec"
	"github.com/edgeflare/cellbridge/pkg/rules"
	"github.com/edgeflare/cellbridge/pkg/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	// Register built-in producers
	_ "github.com/edgeflare/cellbridge/pkg/pipeline/peer/debug"
	_ "github.com/edgeflare/cellbridge/pkg/pipeline/peer/kafka"
	_ "github.com/edgeflare/cellbridge/pkg/pipeline/peer/kafkago"
	_ "github.com/edgeflare/cellbridge/pkg/pipeline/peer/mqtt"
	_ "github.com/edgeflare/cellbridge/pkg/pipeline/peer/nats"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Run the ingest server",
	Long: `Loads the rule file, connects the configured producer and accepts mutation
batches over HTTP. SIGHUP reloads the rule file.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringP("ingest.listenAddr", "l", "", "ingest server listen address")
	f.String("producer.connector", "", "producer connector ("+fmt.Sprint(pipeline.Producers())+")")
	f.String("codec", "", "event encoding ("+fmt.Sprint(codec.Names())+")")
	f.Bool("rules.watch", true, "reload the rule file when it changes")
	f.Bool("metrics.enabled", true, "serve prometheus metrics")
	f.String("metrics.addr", "", "prometheus metrics listen address")

	viper.BindPFlags(f)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	if cfg.Metrics.Enabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   cfg.Metrics.Addr,
			Path:   cfg.Metrics.Path,
			Logger: logger,
		})
	}

	src := rules.FileSource{Path: cfg.Rules.Path, Format: cfg.Rules.Format}
	store := rules.NewStore(nil, logger)
	if err := store.Reload(src); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	if cfg.Rules.Watch {
		w := rules.NewWatcher(store, src, logger)
		w.SetDebounce(cfg.Rules.Debounce)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				logger.Error("Rule watcher stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reloadOnHangup(ctx, store, src, logger)
	}()

	enc, err := codec.Get(cfg.Codec)
	if err != nil {
		return err
	}

	producer, err := pipeline.Open(ctx, cfg.Producer, logger)
	if err != nil {
		return err
	}

	dispatcher := pipeline.NewDispatcher(store, producer,
		pipeline.WithCodec(enc),
		pipeline.WithLogger(logger.Named("dispatcher")),
	)

	server := ingest.NewServer(dispatcher, store, ingest.Options{
		Source:        src,
		MaxBodyBytes:  cfg.Ingest.MaxBodyBytes,
		SubmitTimeout: cfg.Ingest.SubmitTimeout,
		Logger:        logger.Named("ingest"),
	})
	var routerOpts []httputil.RouterOptions
	if cfg.Ingest.TLS.Enabled {
		cert, err := util.LoadOrGenerateCert(cfg.Ingest.TLS.CertFile, cfg.Ingest.TLS.KeyFile, cfg.Ingest.TLS.Hosts...)
		if err != nil {
			return err
		}
		routerOpts = append(routerOpts, httputil.WithTLS(cert))
	}
	router := server.NewRouter(routerOpts...)

	errChan := make(chan error, 1)
	go func() {
		errChan <- router.ListenAndServe(cfg.Ingest.ListenAddr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Received termination signal, shutting down gracefully")
	case serveErr = <-errChan:
		logger.Error("Ingest server failed", zap.Error(serveErr))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting batches first so in-flight submissions finish their barrier.
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Error shutting down ingest server", zap.Error(err))
	}
	if err := producer.Flush(shutdownCtx); err != nil {
		logger.Warn("Error flushing producer", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		logger.Warn("Error closing producer", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("Shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timed out", zap.Duration("timeout", shutdownTimeout))
	}

	return serveErr
}

func reloadOnHangup(ctx context.Context, store *rules.Store, src rules.Source, logger *zap.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := store.Reload(src); err != nil {
				logger.Error("Rule reload on SIGHUP failed", zap.Error(err))
				continue
			}
			logger.Info("Rules reloaded on SIGHUP", zap.Uint64("generation", store.Generation()))
		}
	}
}
