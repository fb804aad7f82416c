package jobs

import (
	"context"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"leadpulse/internal/config"
	"leadpulse/internal/webhooks"
)

// DispatchBatchSize caps how many pending leads one run relays.
const DispatchBatchSize = 50

// WebhookDispatchJob relays leads that have never been sent.
type WebhookDispatchJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	relay     *webhooks.Relay
}

func NewWebhookDispatchJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *WebhookDispatchJob {
	return &WebhookDispatchJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		relay:     webhooks.NewRelayFromConfig(logger, cfg),
	}
}

// Run sends pending leads when a webhook URL is configured.
func (j *WebhookDispatchJob) Run(ctx context.Context) error {
	db := j.dbManager.GetConnection()

	target := webhooks.ResolveURL(db, j.cfg)
	if target == "" {
		j.logger.Debug("No webhook URL configured - pending leads stay queued")
		return nil
	}
	if err := webhooks.ValidateURL(target); err != nil {
		j.logger.Warn("Configured webhook URL is invalid", slog.String("url", target))
		return nil
	}

	summary, err := j.relay.DispatchPending(ctx, db, target, DispatchBatchSize)
	if err != nil {
		return err
	}
	if summary.Attempted > 0 {
		j.logger.Info("Pending leads dispatched",
			slog.Int("attempted", summary.Attempted),
			slog.Int("succeeded", summary.Succeeded),
			slog.Int("failed", summary.Failed))
	}
	return nil
}
