package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dingleup-reward-service/internal/app"
	"dingleup-reward-service/internal/config"
	"dingleup-reward-service/internal/log"
	transport "dingleup-reward-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the reward service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: cfg.Log.Level})
	logger := log.WithComponent("server")

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	go runJanitor(ctx, d.service, config.TTLDuration(cfg.Rewards.PurgeInterval, time.Hour), logger)

	handler := transport.NewHandler(d.service, transport.NewUserLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst), log.WithComponent("http"))
	ws := transport.NewWSHandler(d.service, log.WithComponent("watch"))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(handler, ws, log.WithComponent("http")),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: watch sockets stay open for the whole playback
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("starting reward service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("failed to start server")
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// runJanitor purges orphaned pending sessions until ctx is done.
func runJanitor(ctx context.Context, service *app.RewardService, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := service.PurgeOrphanSessions(ctx); err != nil {
				logger.Warn().Err(err).Msg("session purge failed")
			}
		}
	}
}
