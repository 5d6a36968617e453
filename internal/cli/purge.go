package cli

import (
	"context"

	"github.com/spf13/cobra"

	"dingleup-reward-service/internal/config"
	"dingleup-reward-service/internal/log"
)

// NewPurgeSessionsCmd deletes pending reward sessions older than rewards.session_ttl.
func NewPurgeSessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete orphaned pending reward sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd.Context(), *configPath)
		},
	}
}

func runPurge(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Configure(log.Config{Level: cfg.Log.Level})
	logger := log.WithComponent("purge")

	d, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.service.PurgeOrphanSessions(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("purged", n).Msg("purge finished")
	return nil
}
