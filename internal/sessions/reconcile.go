package sessions

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// ReconcileFlags re-derives the stored bounce and conversion flags from the
// session counters and the conversions table. It returns how many sessions
// were corrected.
func ReconcileFlags(db *gorm.DB, logger *slog.Logger) (int64, error) {
	var corrected int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		now := time.Now().UTC()

		conversion := tx.Exec(`
            UPDATE sessions
            SET conversion = EXISTS (SELECT 1 FROM conversions c WHERE c.session_id = sessions.id),
                updated_at = ?
            WHERE conversion <> EXISTS (SELECT 1 FROM conversions c WHERE c.session_id = sessions.id)
        `, now)
		if conversion.Error != nil {
			return conversion.Error
		}

		bounce := tx.Exec(`
            UPDATE sessions
            SET bounce = (page_views <= ? AND duration_seconds < ?),
                updated_at = ?
            WHERE bounce <> (page_views <= ? AND duration_seconds < ?)
        `, BounceMaxPageViews, BounceMinDurationSeconds, now, BounceMaxPageViews, BounceMinDurationSeconds)
		if bounce.Error != nil {
			return bounce.Error
		}

		corrected = conversion.RowsAffected + bounce.RowsAffected
		return nil
	})
	if err != nil {
		logger.Error("Failed to reconcile session flags", slog.Any("error", err))
		return 0, fmt.Errorf("failed to reconcile session flags: %w", err)
	}

	if corrected > 0 {
		logger.Info("Session flags reconciled", slog.Int64("corrected", corrected))
	}
	return corrected, nil
}
