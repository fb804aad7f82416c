package timeframe

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is the day key used by SQLite DATE() and by report rows.
const DateLayout = "2006-01-02"

// TimeProvider abstracts the clock so windows can be pinned in tests.
type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

// Now returns the current time in loc.
func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Window is a trailing range of whole UTC days ending now. A one day window
// covers today only.
type Window struct {
	Days int
	From time.Time
	To   time.Time
}

// NewWindow builds a window of days whole days ending at the provider's now.
func NewWindow(days int, provider TimeProvider) Window {
	if days < 1 {
		days = 1
	}
	if provider == nil {
		provider = &DefaultTimeProvider{}
	}
	now := provider.Now(time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Window{
		Days: days,
		From: today.AddDate(0, 0, -(days - 1)),
		To:   now,
	}
}

// Last returns a window of days ending now on the system clock.
func Last(days int) Window {
	return NewWindow(days, nil)
}

// ParseDays reads a days query value. Missing, non-numeric or non-positive
// values give fallback; values above max are clamped to max.
func ParseDays(raw string, fallback, max int) int {
	days, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || days < 1 {
		return fallback
	}
	if max > 0 && days > max {
		return max
	}
	return days
}

// Dates lists every day key in the window, newest first.
func (w Window) Dates() []string {
	dates := make([]string, 0, w.Days)
	day := time.Date(w.To.Year(), w.To.Month(), w.To.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < w.Days; i++ {
		dates = append(dates, day.AddDate(0, 0, -i).Format(DateLayout))
	}
	return dates
}

// Today returns the start of the window's last day.
func (w Window) Today() time.Time {
	return time.Date(w.To.Year(), w.To.Month(), w.To.Day(), 0, 0, 0, 0, time.UTC)
}
