package sessions

import (
	"errors"
	"fmt"
	"time"
)

// BounceMaxPageViews and BounceMinDurationSeconds define a bounce: a session
// with at most one page view that lasted less than thirty seconds.
const (
	BounceMaxPageViews       = 1
	BounceMinDurationSeconds = 30
)

// Session is one visitor's continuous interaction window, keyed by an id the
// client generates. Rows are never deleted by the application.
type Session struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	UserAgent        string     `gorm:"type:text" json:"user_agent"`
	IPAddress        string     `gorm:"size:64" json:"ip_address"`
	Referrer         string     `gorm:"type:text" json:"referrer"`
	LandingPage      string     `gorm:"type:text" json:"landing_page"`
	UTMSource        string     `gorm:"index;size:255" json:"utm_source"`
	UTMMedium        string     `gorm:"size:255" json:"utm_medium"`
	UTMCampaign      string     `gorm:"size:255" json:"utm_campaign"`
	UTMTerm          string     `gorm:"size:255" json:"utm_term"`
	UTMContent       string     `gorm:"size:255" json:"utm_content"`
	DeviceType       string     `gorm:"index;size:16" json:"device_type"`
	Browser          string     `gorm:"size:64" json:"browser"`
	OS               string     `gorm:"column:os;size:64" json:"os"`
	ScreenResolution string     `gorm:"size:32" json:"screen_resolution"`
	Language         string     `gorm:"size:32" json:"language"`
	Timezone         string     `gorm:"size:64" json:"timezone"`
	Country          string     `gorm:"size:2" json:"country"`
	StartedAt        time.Time  `gorm:"index;not null" json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	LastActivityAt   *time.Time `json:"last_activity_at"`
	DurationSeconds  int        `gorm:"not null;default:0" json:"duration_seconds"`
	PageViews        int        `gorm:"not null;default:1" json:"page_views"`
	Bounce           bool       `gorm:"not null" json:"bounce"`
	Conversion       bool       `gorm:"index;not null;default:false" json:"conversion"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsBounce is the single derivation rule for the bounce flag.
func IsBounce(pageViews, durationSeconds int) bool {
	return pageViews <= BounceMaxPageViews && durationSeconds < BounceMinDurationSeconds
}

// ErrDuplicateSession is returned when a client reuses a session id.
var ErrDuplicateSession = errors.New("session already exists")

// ErrExcludedIP is returned when the request originates from an IP the admin excluded.
var ErrExcludedIP = errors.New("ip address excluded from tracking")

// ErrBotTraffic is returned when the User-Agent belongs to a crawler.
var ErrBotTraffic = errors.New("bot traffic is not tracked")

// SessionNotFoundError represents an error when a session id is unknown
type SessionNotFoundError struct {
	ID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}
