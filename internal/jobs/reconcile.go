package jobs

import (
	"context"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"leadpulse/internal/sessions"
)

// ReconcileJob re-derives the denormalised session flags.
type ReconcileJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
}

func NewReconcileJob(dbManager cartridge.DBManager, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{dbManager: dbManager, logger: logger}
}

// Run fixes any session whose bounce or conversion flag drifted from the facts.
func (j *ReconcileJob) Run(ctx context.Context) error {
	_, err := sessions.ReconcileFlags(j.dbManager.GetConnection(), j.logger)
	return err
}
