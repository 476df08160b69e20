package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/constants"
	"github.com/kozaktomas/face-indexer/internal/metrics"
	"github.com/kozaktomas/face-indexer/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the Face Indexer HTTP API.

The API exposes the indexing stages (partition, index, aggregate) for external
orchestrators, full indexing jobs, identity reconciliation, face lookups and
Prometheus metrics at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	cfg.Web.Host = stringOr(cmd, "host", cfg.Web.Host)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.requireRecognizer(); err != nil {
		return err
	}

	metrics.Register(prometheus.DefaultRegisterer)

	server := web.NewServer(cfg, web.Deps{
		Store:      b.store,
		Runner:     b.indexer(),
		Aggregator: b.aggregator(),
		Pipeline:   b.pipeline(),
		Reconciler: b.reconciler(),
		Registry:   b.registry,
		Gatherer:   prometheus.DefaultGatherer,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
		return err
	}
	return <-errCh
}
