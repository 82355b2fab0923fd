package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Ukasha007/mizuho-algolia/internal/api"
	"github.com/Ukasha007/mizuho-algolia/internal/config"
	"github.com/Ukasha007/mizuho-algolia/internal/sync/coordinator"
	"github.com/Ukasha007/mizuho-algolia/internal/telemetry"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync API server",
	Long: `Start the HTTP server that accepts sync triggers and webhook
deliveries, and run the periodic background sync for every configured
sync unit.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to the configuration file")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Error binding address flag", "error", err)
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Error binding config flag", "error", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Error marking config flag as required", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configureLogging()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.LoadConfig(config.WithConfigPath(viper.GetString("config")))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	deps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownMeterProvider(deps)

	// The scheduler loop owns all outbound request pacing. It stops when
	// the serve context is cancelled.
	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- deps.scheduler.Run(ctx)
	}()

	coord, err := coordinator.New(deps.service, cfg)
	if err != nil {
		return fmt.Errorf("failed to create sync coordinator: %w", err)
	}
	go func() {
		if err := coord.Start(ctx); err != nil {
			slog.Error("Sync coordinator stopped", "error", err)
		}
	}()

	metricsMiddleware, err := telemetry.MetricsMiddleware(deps.meterProvider)
	if err != nil {
		return fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	router := api.NewServer(deps.service, deps.guard,
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			api.LoggingMiddleware,
			metricsMiddleware,
		),
	)

	address := viper.GetString("address")
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting sync API server",
			"address", address,
			"units", len(cfg.Units))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig.String())
	}

	if err := coord.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}

	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
	}

	return nil
}

// configureLogging sets the default slog handler, honoring --debug.
func configureLogging() {
	level := slog.LevelInfo
	if viper.GetBool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// shutdownMeterProvider flushes pending metrics when the SDK provider is in
// use. The no-op provider has nothing to shut down.
func shutdownMeterProvider(deps *runtimeDeps) {
	sdk, ok := deps.meterProvider.(*sdkmetric.MeterProvider)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sdk.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down meter provider", "error", err)
	}
}
