package analytics

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"leadpulse/internal/timeframe"
)

// DailyLeadStat holds one day of lead counters.
type DailyLeadStat struct {
	Date           string `json:"date"`
	TotalLeads     int64  `json:"total_leads"`
	UniqueLeads    int64  `json:"unique_leads"`
	DuplicateLeads int64  `json:"duplicate_leads"`
	WebhookSent    int64  `json:"webhook_sent"`
	WebhookFailed  int64  `json:"webhook_failed"`
}

// LeadSummary totals the lead counters over a window.
type LeadSummary struct {
	TotalLeads      int64 `json:"total_leads"`
	UniqueLeads     int64 `json:"unique_leads"`
	DuplicateLeads  int64 `json:"duplicate_leads"`
	WebhookSent     int64 `json:"webhook_sent"`
	WebhookFailed   int64 `json:"webhook_failed"`
	PendingWebhooks int64 `json:"pending_webhooks"`
}

// HourStat is the lead count for one hour of the day (UTC).
type HourStat struct {
	Hour  int   `json:"hour"`
	Leads int64 `json:"leads"`
}

// WeekdayStat is the lead count for one weekday, 0 being Sunday.
type WeekdayStat struct {
	Weekday int    `json:"weekday"`
	Name    string `json:"name"`
	Leads   int64  `json:"leads"`
}

// TimeAnalysis points at the hour and weekday that bring the most leads.
type TimeAnalysis struct {
	BestHour    *HourStat     `json:"best_hour"`
	BestWeekday *WeekdayStat  `json:"best_weekday"`
	ByHour      []HourStat    `json:"by_hour"`
	ByWeekday   []WeekdayStat `json:"by_weekday"`
}

// DailyReport is the payload of the leads focused daily view.
type DailyReport struct {
	Days         int             `json:"days"`
	Daily        []DailyLeadStat `json:"daily"`
	Summary      LeadSummary     `json:"summary"`
	TimeAnalysis TimeAnalysis    `json:"time_analysis"`
}

// DailyLeadStats returns one row per day in the window, newest first, with
// days without leads filled with zeros.
func DailyLeadStats(db *gorm.DB, window timeframe.Window) ([]DailyLeadStat, error) {
	var rows []DailyLeadStat
	err := db.Raw(`
        SELECT
            DATE(created_at) AS date,
            COUNT(*) AS total_leads,
            COALESCE(SUM(CASE WHEN is_duplicate = 0 THEN 1 ELSE 0 END), 0) AS unique_leads,
            COALESCE(SUM(CASE WHEN is_duplicate = 1 THEN 1 ELSE 0 END), 0) AS duplicate_leads,
            COALESCE(SUM(CASE WHEN webhook_sent = 1 THEN 1 ELSE 0 END), 0) AS webhook_sent,
            COALESCE(SUM(CASE WHEN webhook_status = 'error' THEN 1 ELSE 0 END), 0) AS webhook_failed
        FROM leads
        WHERE created_at >= ?
        GROUP BY DATE(created_at)
    `, window.From).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily lead stats: %w", err)
	}

	byDate := make(map[string]DailyLeadStat, len(rows))
	for _, row := range rows {
		byDate[row.Date] = row
	}

	dates := window.Dates()
	result := make([]DailyLeadStat, 0, len(dates))
	for _, date := range dates {
		stat, ok := byDate[date]
		if !ok {
			stat = DailyLeadStat{Date: date}
		}
		result = append(result, stat)
	}
	return result, nil
}

// LeadTotals sums the lead counters over the window.
func LeadTotals(db *gorm.DB, window timeframe.Window) (LeadSummary, error) {
	var summary LeadSummary
	err := db.Raw(`
        SELECT
            COUNT(*) AS total_leads,
            COALESCE(SUM(CASE WHEN is_duplicate = 0 THEN 1 ELSE 0 END), 0) AS unique_leads,
            COALESCE(SUM(CASE WHEN is_duplicate = 1 THEN 1 ELSE 0 END), 0) AS duplicate_leads,
            COALESCE(SUM(CASE WHEN webhook_sent = 1 THEN 1 ELSE 0 END), 0) AS webhook_sent,
            COALESCE(SUM(CASE WHEN webhook_status = 'error' THEN 1 ELSE 0 END), 0) AS webhook_failed,
            COALESCE(SUM(CASE WHEN webhook_status = 'pending' THEN 1 ELSE 0 END), 0) AS pending_webhooks
        FROM leads
        WHERE created_at >= ?
    `, window.From).Scan(&summary).Error
	if err != nil {
		return LeadSummary{}, fmt.Errorf("error fetching lead summary: %w", err)
	}
	return summary, nil
}

// LeadTimeAnalysis finds the busiest hour and weekday by lead count. Both
// are nil when the window has no leads.
func LeadTimeAnalysis(db *gorm.DB, window timeframe.Window) (TimeAnalysis, error) {
	analysis := TimeAnalysis{ByHour: []HourStat{}, ByWeekday: []WeekdayStat{}}

	err := db.Raw(`
        SELECT
            CAST(strftime('%H', created_at) AS INTEGER) AS hour,
            COUNT(*) AS leads
        FROM leads
        WHERE created_at >= ?
        GROUP BY hour
        ORDER BY leads DESC, hour ASC
    `, window.From).Scan(&analysis.ByHour).Error
	if err != nil {
		return TimeAnalysis{}, fmt.Errorf("error fetching leads by hour: %w", err)
	}

	err = db.Raw(`
        SELECT
            CAST(strftime('%w', created_at) AS INTEGER) AS weekday,
            COUNT(*) AS leads
        FROM leads
        WHERE created_at >= ?
        GROUP BY weekday
        ORDER BY leads DESC, weekday ASC
    `, window.From).Scan(&analysis.ByWeekday).Error
	if err != nil {
		return TimeAnalysis{}, fmt.Errorf("error fetching leads by weekday: %w", err)
	}

	for i := range analysis.ByWeekday {
		analysis.ByWeekday[i].Name = time.Weekday(analysis.ByWeekday[i].Weekday).String()
	}

	if len(analysis.ByHour) > 0 {
		best := analysis.ByHour[0]
		analysis.BestHour = &best
	}
	if len(analysis.ByWeekday) > 0 {
		best := analysis.ByWeekday[0]
		analysis.BestWeekday = &best
	}
	return analysis, nil
}

// Daily builds the leads focused daily report.
func Daily(db *gorm.DB, window timeframe.Window) (*DailyReport, error) {
	daily, err := DailyLeadStats(db, window)
	if err != nil {
		return nil, err
	}
	summary, err := LeadTotals(db, window)
	if err != nil {
		return nil, err
	}
	timing, err := LeadTimeAnalysis(db, window)
	if err != nil {
		return nil, err
	}
	return &DailyReport{
		Days:         window.Days,
		Daily:        daily,
		Summary:      summary,
		TimeAnalysis: timing,
	}, nil
}
