// Package seeder fills a database with plausible landing page traffic so the
// reports have something to show in development.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"leadpulse/internal/conversions"
	"leadpulse/internal/events"
	"leadpulse/internal/leads"
	"leadpulse/internal/sessions"
)

// Seeder generates sessions with their events, conversions and leads.
type Seeder struct {
	DBManager    cartridge.DBManager
	Logger       *slog.Logger
	SessionCount int
	// Days is how far back session start times are spread.
	Days int
}

// Summary counts the rows a run created.
type Summary struct {
	Sessions    int
	Events      int
	Conversions int
	Leads       int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, sessionCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:    dbManager,
		Logger:       logger,
		SessionCount: sessionCount,
		Days:         30,
	}
}

type journey struct {
	pages   []string
	scroll  int
	link    string
	form    bool
	noStore bool
}

var journeyTemplates = []journey{
	{pages: []string{"/"}, scroll: 25},
	{pages: []string{"/"}, scroll: 50},
	{pages: []string{"/", "/planos"}, scroll: 75, link: "https://wa.me/5511999990000"},
	{pages: []string{"/", "/como-funciona", "/planos"}, scroll: 100, form: true},
	{pages: []string{"/planos"}, scroll: 100, form: true, noStore: true},
	{pages: []string{"/", "/contato"}, scroll: 50, link: "tel:+5511999990000"},
	{pages: []string{"/", "/depoimentos"}, scroll: 75, link: "mailto:vendas@example.com"},
	{pages: []string{"/depoimentos", "/planos", "/contato"}, scroll: 100, form: true},
}

// Run generates SessionCount sessions spread over the last Days days.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	s.Logger.Info("Seeding demo traffic...", slog.Int("sessions", s.SessionCount), slog.Int("days", s.Days))

	db := s.DBManager.GetConnection()
	ipPool := generateIPPool(100)
	userAgents := getUserAgents()
	referrers := getReferrers()
	summary := Summary{}

	for i := 0; i < s.SessionCount; i++ {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}

		tmpl := journeyTemplates[rand.IntN(len(journeyTemplates))]
		utm := pickUTM()
		startedAt := time.Now().UTC().Add(-time.Duration(rand.IntN(max(s.Days, 1)*24*60*60)) * time.Second)
		id := fmt.Sprintf("%d-seed%06d", startedAt.UnixMilli(), i)

		_, err := sessions.Start(db, s.Logger, sessions.StartInput{
			ID:          id,
			UserAgent:   userAgents[rand.IntN(len(userAgents))],
			IPAddress:   ipPool[rand.IntN(len(ipPool))],
			Referrer:    referrers[rand.IntN(len(referrers))],
			LandingPage: "https://landing.example.com" + tmpl.pages[0],
			UTMSource:   utm.source,
			UTMMedium:   utm.medium,
			UTMCampaign: utm.campaign,
			StartedAt:   startedAt,
		})
		if err != nil {
			s.Logger.Error("Failed to start session during seeding", slog.Any("error", err))
			continue
		}
		summary.Sessions++

		elapsed, recorded := s.playJourney(db, id, startedAt, tmpl, utm, &summary)
		summary.Events += recorded

		err = sessions.End(db, s.Logger, sessions.UpdateInput{
			SessionID:       id,
			DurationSeconds: int(elapsed.Seconds()),
			PageViews:       len(tmpl.pages),
			LastActivity:    startedAt.Add(elapsed),
		})
		if err != nil {
			s.Logger.Error("Failed to end session during seeding", slog.Any("error", err))
		}
	}

	s.Logger.Info("Seeding completed",
		slog.Int("sessions", summary.Sessions),
		slog.Int("events", summary.Events),
		slog.Int("conversions", summary.Conversions),
		slog.Int("leads", summary.Leads),
		slog.Duration("elapsed", time.Since(start)))
	return summary, nil
}

// playJourney records the events and conversions of one session and returns
// how long it lasted and how many events it produced.
func (s *Seeder) playJourney(db *gorm.DB, sessionID string, startedAt time.Time, tmpl journey, utm utmSet, summary *Summary) (time.Duration, int) {
	elapsed := time.Duration(rand.IntN(20)+5) * time.Second
	recorded := 0
	pageURL := ""

	record := func(input events.RecordInput) {
		input.SessionID = sessionID
		input.PageURL = pageURL
		input.Timestamp = startedAt.Add(elapsed)
		if _, err := events.Record(db, s.Logger, input); err != nil {
			s.Logger.Error("Failed to record event during seeding", slog.Any("error", err))
			return
		}
		recorded++
	}
	convert := func(conversionType conversions.ConversionType, leadID *uint) {
		_, err := conversions.Record(db, s.Logger, conversions.RecordInput{
			SessionID:       sessionID,
			LeadID:          leadID,
			ConversionType:  conversionType,
			ConversionValue: 1,
			PageURL:         pageURL,
			Timestamp:       startedAt.Add(elapsed),
		})
		if err != nil {
			s.Logger.Error("Failed to record conversion during seeding", slog.Any("error", err))
			return
		}
		summary.Conversions++
	}

	for index, page := range tmpl.pages {
		pageURL = "https://landing.example.com" + page
		if index > 0 {
			elapsed += time.Duration(rand.IntN(90)+10) * time.Second
			record(events.RecordInput{EventType: events.EventTypePageView, EventCategory: events.CategoryNavigation, EventAction: "page_view"})
		}
		for _, threshold := range events.ScrollThresholds {
			if threshold > tmpl.scroll {
				break
			}
			elapsed += time.Duration(rand.IntN(8)+2) * time.Second
			record(events.RecordInput{
				EventType:     events.EventTypeScroll,
				EventCategory: events.CategoryEngagement,
				EventAction:   "scroll_depth",
				EventValue:    fmt.Sprint(threshold),
			})
		}
	}

	if tmpl.link != "" {
		elapsed += 5 * time.Second
		record(events.RecordInput{EventType: events.EventTypeClick, EventCategory: events.CategoryNavigation, EventAction: "link_click", EventLabel: tmpl.link})
		if conversionType, ok := conversions.ClassifyLink(tmpl.link); ok {
			convert(conversionType, nil)
		}
	}

	if tmpl.form {
		hasCNPJ := "sim"
		if tmpl.noStore {
			hasCNPJ = "nao"
		}
		for _, field := range []string{"name", "phone", "has_cnpj"} {
			elapsed += time.Duration(rand.IntN(6)+2) * time.Second
			record(events.RecordInput{EventType: events.EventTypeFormInteraction, EventAction: "change", EventLabel: field})
		}
		if conversions.IsNoStoreSignal("has_cnpj", hasCNPJ) {
			convert(conversions.TypeNoStoreIndication, nil)
		}

		lead, err := leads.Capture(db, s.Logger, leads.CaptureInput{
			Name:        fmt.Sprintf("Visitante %d", rand.IntN(100000)),
			Phone:       fmt.Sprintf("11 9%04d-%04d", rand.IntN(10000), rand.IntN(10000)),
			HasCNPJ:     hasCNPJ,
			Source:      "seed",
			SessionID:   sessionID,
			UTMSource:   utm.source,
			UTMMedium:   utm.medium,
			UTMCampaign: utm.campaign,
		})
		if err != nil {
			s.Logger.Error("Failed to capture lead during seeding", slog.Any("error", err))
		} else {
			summary.Leads++
			record(events.RecordInput{EventType: events.EventTypeFormSubmit, EventAction: "submit", EventLabel: "lead_form"})
			convert(conversions.TypeLeadForm, &lead.ID)
		}
	}

	return elapsed, recorded
}

type utmSet struct {
	source, medium, campaign string
}

// pickUTM leaves about half of the sessions as direct traffic.
func pickUTM() utmSet {
	if rand.IntN(2) == 0 {
		return utmSet{}
	}
	options := []utmSet{
		{"google", "cpc", "lojistas_busca"},
		{"facebook", "social", "lojistas_feed"},
		{"instagram", "social", "stories_outubro"},
		{"newsletter", "email", "base_clientes"},
	}
	return options[rand.IntN(len(options))]
}

// generateIPPool creates a pool of unique IPv4 addresses
func generateIPPool(count int) []string {
	seen := make(map[string]bool)
	var ips []string
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", rand.IntN(255)+1, rand.IntN(256), rand.IntN(256), rand.IntN(256))
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

func getUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
		"Mozilla/5.0 (Linux; Android 14; SM-S911B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	}
}

func getReferrers() []string {
	return []string{
		"",
		"https://www.google.com/",
		"https://l.facebook.com/",
		"https://www.instagram.com/",
		"https://www.youtube.com/",
	}
}
