package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"leadpulse/internal/pkg/geoip"
	ua "leadpulse/internal/pkg/user_agent"
	"leadpulse/internal/settings"
)

// StartInput describes a new session as reported by the tracking client.
type StartInput struct {
	ID               string
	UserAgent        string
	IPAddress        string
	Referrer         string
	LandingPage      string
	UTMSource        string
	UTMMedium        string
	UTMCampaign      string
	UTMTerm          string
	UTMContent       string
	DeviceType       string
	Browser          string
	OS               string
	ScreenResolution string
	Language         string
	Timezone         string
	StartedAt        time.Time
}

// UpdateInput carries the counters sent by heartbeats and the unload beacon.
type UpdateInput struct {
	SessionID       string
	DurationSeconds int
	PageViews       int
	// Bounce is the client's opinion; the stored flag is always re-derived.
	Bounce       *bool
	LastActivity time.Time
}

// Start inserts a session row. A reused id yields ErrDuplicateSession, an
// excluded client IP yields ErrExcludedIP and a crawler User-Agent yields
// ErrBotTraffic; none of them writes anything.
func Start(db *gorm.DB, logger *slog.Logger, input StartInput) (*Session, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	excluded, err := settings.IsIPExcluded(input.IPAddress)
	if err != nil {
		logger.Warn("Error checking IP exclusion", slog.Any("error", err))
	} else if excluded {
		logger.Debug("Skipping session for excluded IP", slog.String("ip", input.IPAddress))
		return nil, ErrExcludedIP
	}

	parsed := ua.ParseUserAgent(input.UserAgent)
	if parsed.Bot {
		logger.Debug("Skipping session for bot", slog.String("user_agent", input.UserAgent))
		return nil, ErrBotTraffic
	}

	session := newSession(id, input, parsed)

	duplicate := false
	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Session{}).Where("id = ?", id).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			duplicate = true
			return nil
		}
		return tx.Create(session).Error
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateSession
		}
		logger.Error("Failed to store session", slog.String("session_id", id), slog.Any("error", err))
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	if duplicate {
		logger.Debug("Session id already exists", slog.String("session_id", id))
		return nil, ErrDuplicateSession
	}

	logger.Debug("Session started",
		slog.String("session_id", id),
		slog.String("device_type", session.DeviceType),
		slog.String("utm_source", session.UTMSource))
	return session, nil
}

func newSession(id string, input StartInput, parsed ua.UserAgent) *Session {
	deviceType := ua.NormalizeDeviceType(input.DeviceType)
	if deviceType == "" {
		deviceType = parsed.DeviceType
	}
	browser := strings.TrimSpace(input.Browser)
	if browser == "" {
		browser = parsed.Browser
	}
	os := strings.TrimSpace(input.OS)
	if os == "" {
		os = parsed.OS
	}

	startedAt := input.StartedAt.UTC()
	now := time.Now().UTC()
	if startedAt.IsZero() || startedAt.After(now) {
		startedAt = now
	}

	return &Session{
		ID:               id,
		UserAgent:        input.UserAgent,
		IPAddress:        input.IPAddress,
		Referrer:         input.Referrer,
		LandingPage:      input.LandingPage,
		UTMSource:        strings.TrimSpace(input.UTMSource),
		UTMMedium:        strings.TrimSpace(input.UTMMedium),
		UTMCampaign:      strings.TrimSpace(input.UTMCampaign),
		UTMTerm:          strings.TrimSpace(input.UTMTerm),
		UTMContent:       strings.TrimSpace(input.UTMContent),
		DeviceType:       deviceType,
		Browser:          browser,
		OS:               os,
		ScreenResolution: input.ScreenResolution,
		Language:         input.Language,
		Timezone:         input.Timezone,
		Country:          geoip.CountryCode(input.IPAddress),
		StartedAt:        startedAt,
		LastActivityAt:   &startedAt,
		DurationSeconds:  0,
		PageViews:        1,
		Bounce:           IsBounce(1, 0),
		Conversion:       false,
		UpdatedAt:        now,
	}
}

// Heartbeat stores the periodic duration and page view counters.
func Heartbeat(db *gorm.DB, logger *slog.Logger, input UpdateInput) error {
	return update(db, logger, input, false)
}

// End stores the final counters and stamps ended_at.
func End(db *gorm.DB, logger *slog.Logger, input UpdateInput) error {
	return update(db, logger, input, true)
}

// update never lowers the counters, so a late heartbeat landing after the
// unload beacon cannot roll a session back. bounce is computed in the same
// statement from the resulting counters.
func update(db *gorm.DB, logger *slog.Logger, input UpdateInput, end bool) error {
	id := strings.TrimSpace(input.SessionID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}

	duration := max(input.DurationSeconds, 0)
	pageViews := max(input.PageViews, 0)

	now := time.Now().UTC()
	lastActivity := input.LastActivity.UTC()
	if lastActivity.IsZero() || lastActivity.After(now) {
		lastActivity = now
	}

	if input.Bounce != nil && *input.Bounce != IsBounce(pageViews, duration) {
		logger.Debug("Ignoring inconsistent client bounce flag",
			slog.String("session_id", id),
			slog.Bool("client_bounce", *input.Bounce),
			slog.Int("page_views", pageViews),
			slog.Int("duration", duration))
	}

	fields := map[string]interface{}{
		"duration_seconds": gorm.Expr("MAX(duration_seconds, ?)", duration),
		"page_views":       gorm.Expr("MAX(page_views, ?)", pageViews),
		"bounce": gorm.Expr("(MAX(page_views, ?) <= ? AND MAX(duration_seconds, ?) < ?)",
			pageViews, BounceMaxPageViews, duration, BounceMinDurationSeconds),
		"last_activity_at": lastActivity,
		"updated_at":       now,
	}
	if end {
		fields["ended_at"] = now
	}

	var affected int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Model(&Session{}).Where("id = ?", id).UpdateColumns(fields)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		logger.Error("Failed to update session", slog.String("session_id", id), slog.Any("error", err))
		return fmt.Errorf("failed to update session: %w", err)
	}
	if affected == 0 {
		logger.Debug("Session update for unknown id", slog.String("session_id", id), slog.Bool("end", end))
	}
	return nil
}

// Get loads a session by id.
func Get(db *gorm.DB, id string) (*Session, error) {
	var session Session
	if err := db.Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &SessionNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return &session, nil
}
