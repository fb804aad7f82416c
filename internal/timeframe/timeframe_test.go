package timeframe_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"leadpulse/internal/timeframe"
)

// MockTimeProvider implements the TimeProvider interface for testing
type MockTimeProvider struct {
	FixedTime time.Time
}

func (m *MockTimeProvider) Now(loc *time.Location) time.Time {
	return m.FixedTime.In(loc)
}

func TestNewWindow(t *testing.T) {
	fixedTime := time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)
	provider := &MockTimeProvider{FixedTime: fixedTime}

	testCases := []struct {
		name         string
		days         int
		expectedFrom time.Time
	}{
		{"single day covers today", 1, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"seven days", 7, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{"thirty days across month boundary", 30, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)},
		{"zero is treated as one", 0, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := timeframe.NewWindow(tc.days, provider)
			assert.Equal(t, tc.expectedFrom, w.From)
			assert.Equal(t, fixedTime, w.To)
		})
	}
}

func TestNewWindowNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	// 23:00 in BRT is already the next day in UTC
	provider := &MockTimeProvider{FixedTime: time.Date(2024, 3, 15, 23, 0, 0, 0, loc)}

	w := timeframe.NewWindow(1, provider)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.UTC, w.To.Location())
}

func TestWindowDates(t *testing.T) {
	provider := &MockTimeProvider{FixedTime: time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)}
	w := timeframe.NewWindow(4, provider)

	assert.Equal(t, []string{"2024-03-02", "2024-03-01", "2024-02-29", "2024-02-28"}, w.Dates())
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), w.Today())
}

func TestParseDays(t *testing.T) {
	testCases := []struct {
		raw      string
		expected int
	}{
		{"", 30},
		{"abc", 30},
		{"0", 30},
		{"-5", 30},
		{"1", 1},
		{" 7 ", 7},
		{"365", 365},
		{"1000", 365},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.expected, timeframe.ParseDays(tc.raw, 30, 365))
		})
	}
}
