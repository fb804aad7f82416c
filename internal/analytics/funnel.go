package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"leadpulse/internal/timeframe"
)

// FunnelStep is one stage of the visit to conversion funnel.
type FunnelStep struct {
	Step  int    `json:"step"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Funnel counts sessions, sessions with a form interaction, and sessions
// with any conversion. Events and conversions are windowed on their own
// timestamps so rows whose session is missing still count.
func Funnel(db *gorm.DB, window timeframe.Window) ([]FunnelStep, error) {
	steps := []FunnelStep{}
	err := db.Raw(`
        SELECT 1 AS step, 'sessions' AS name, COUNT(*) AS count
        FROM sessions
        WHERE started_at >= ?
        UNION ALL
        SELECT 2 AS step, 'form_interactions' AS name, COUNT(DISTINCT session_id) AS count
        FROM events
        WHERE event_category = 'form' AND timestamp >= ?
        UNION ALL
        SELECT 3 AS step, 'conversions' AS name, COUNT(DISTINCT session_id) AS count
        FROM conversions
        WHERE timestamp >= ?
        ORDER BY step
    `, window.From, window.From, window.From).Scan(&steps).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching funnel: %w", err)
	}
	return steps, nil
}
