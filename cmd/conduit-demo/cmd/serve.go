package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	auditpg "github.com/Togather-Foundation/conduit/audit/postgres"
	"github.com/Togather-Foundation/conduit/config"
	"github.com/Togather-Foundation/conduit/endpoint"
	"github.com/Togather-Foundation/conduit/events"
	"github.com/Togather-Foundation/conduit/metrics"
	"github.com/Togather-Foundation/conduit/registry"
	"github.com/Togather-Foundation/conduit/telemetry"
	"github.com/Togather-Foundation/conduit/transport/httptransport"
)

var (
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo HTTP server",
	Long: `Start the demo HTTP server and begin accepting requests.

With DATABASE_URL set, audit records go to Postgres and events are
enqueued as River jobs; without it, audit records stay in memory and
events are logged. Shutdown is graceful on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	env := config.New()
	logger := config.NewLogger(env)
	logger.Info().Str("version", Version).Msg("starting conduit demo server")

	host := serverHost
	if host == "" {
		host = env.String("SERVER_HOST", "0.0.0.0")
	}
	port := serverPort
	if port == 0 {
		port = env.Int("SERVER_PORT", 8080)
	}

	shutdownTracing, err := telemetry.InitTracing(context.Background(), telemetry.LoadTracingConfig(env), Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	rt := &endpoint.Runtime{
		Registry: registry.New(),
		Env:      env,
		Logger:   logger,
	}

	store := userStoreService()
	auditor, publisher, err := backingServices(env, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	httptransport.Mount(mux, rt,
		healthEndpoint(),
		createUserEndpoint(store, auditor, publisher),
		getUserEndpoint(store),
	)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           httptransport.RequestLogging(logger)(mux),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	waitForShutdown(server, rt, logger, shutdownTracing)
	return nil
}

// backingServices picks audit storage and an event publisher based on
// whether a database is configured.
func backingServices(env *config.Env, logger zerolog.Logger) (auditor, publisher *registry.Descriptor, err error) {
	url := env.String("DATABASE_URL", "")
	if url == "" {
		logger.Info().Msg("DATABASE_URL not set; using in-memory audit storage and log publisher")
		logPublisher := events.NewLogPublisher(logger)
		return memoryAuditService(), registry.NewService("events", func(context.Context, *config.Env) (any, error) {
			return logPublisher, nil
		}), nil
	}

	if err := auditpg.Migrate(url); err != nil {
		return nil, nil, fmt.Errorf("audit migrations: %w", err)
	}
	logger.Info().Msg("audit log schema up to date")
	return auditpg.Service("audit-storage", "db"), events.Service("events"), nil
}

func waitForShutdown(server *http.Server, rt *endpoint.Runtime, logger zerolog.Logger, shutdownTracing func(context.Context) error) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	// Release resolved services (connection pools, job clients) only after
	// in-flight requests have drained.
	if err := rt.Registry.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("service shutdown error")
	}
	if err := shutdownTracing(ctx); err != nil {
		logger.Error().Err(err).Msg("tracing shutdown error")
	}
}
