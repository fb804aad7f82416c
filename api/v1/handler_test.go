// Package v1_test contains tests for the public tracking API handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpulse/internal/conversions"
	"leadpulse/internal/events"
	"leadpulse/internal/leads"
	"leadpulse/internal/sessions"
	"leadpulse/internal/testsupport"
)

func doJSON(t *testing.T, app *fiber.App, method, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36")
	req.Header.Set("X-Forwarded-For", "203.0.113.10")

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func TestStartSessionHandler(t *testing.T) {
	t.Run("creates a bounced session with one page view", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/session", map[string]interface{}{
			"id":          "1700000000000-abc123",
			"landingPage": "https://example.com/revenda",
			"referrer":    "https://www.google.com/",
			"utmSource":   "google",
			"utmMedium":   "cpc",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "1700000000000-abc123", body["sessionId"])

		session, err := sessions.Get(db, "1700000000000-abc123")
		require.NoError(t, err)
		assert.Equal(t, 1, session.PageViews)
		assert.True(t, session.Bounce)
		assert.False(t, session.Conversion)
		assert.Equal(t, "google", session.UTMSource)
		assert.Equal(t, "desktop", session.DeviceType)
	})

	t.Run("reports a reused id as duplicate", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		payload := map[string]interface{}{"id": "dup-session"}
		resp, _ := doJSON(t, app, http.MethodPost, "/api/analytics/session", payload)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/session", payload)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, true, body["duplicate"])

		var count int64
		require.NoError(t, db.Model(&sessions.Session{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("rejects a missing id", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/session", map[string]interface{}{
			"landingPage": "https://example.com/",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("folds device aliases before validating", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := doJSON(t, app, http.MethodPost, "/api/analytics/session", map[string]interface{}{
			"id":         "alias-session",
			"deviceType": "Phone",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		session, err := sessions.Get(db, "alias-session")
		require.NoError(t, err)
		assert.Equal(t, "mobile", session.DeviceType)

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/session", map[string]interface{}{
			"id":         "watch-session",
			"deviceType": "watch",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("acknowledges crawlers without storing them", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/session", map[string]interface{}{
			"id":        "bot-session",
			"userAgent": "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["tracked"])

		var count int64
		require.NoError(t, db.Model(&sessions.Session{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestUpdateSessionHandler(t *testing.T) {
	t.Run("heartbeat overrides an inconsistent client bounce", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)
		testsupport.CreateTestSession(t, db, sessions.Session{ID: "s-heartbeat", Bounce: true})

		resp, body := doJSON(t, app, http.MethodPut, "/api/analytics/session/update", map[string]interface{}{
			"sessionId": "s-heartbeat",
			"duration":  45,
			"pageViews": 3,
			"bounce":    true,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])

		session, err := sessions.Get(db, "s-heartbeat")
		require.NoError(t, err)
		assert.Equal(t, 45, session.DurationSeconds)
		assert.Equal(t, 3, session.PageViews)
		assert.False(t, session.Bounce)
		assert.Nil(t, session.EndedAt)
	})

	t.Run("rejects a heartbeat without sessionId", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := doJSON(t, app, http.MethodPut, "/api/analytics/session/update", map[string]interface{}{
			"duration": 10,
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("unknown session is a no-op success", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := doJSON(t, app, http.MethodPut, "/api/analytics/session/update", map[string]interface{}{
			"sessionId": "never-started",
			"duration":  5,
			"pageViews": 1,
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&sessions.Session{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestEndSessionHandler(t *testing.T) {
	t.Run("accepts a text/plain beacon and stamps ended_at", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)
		testsupport.CreateTestSession(t, db, sessions.Session{ID: "s-end", Bounce: true})

		req := httptest.NewRequest(http.MethodPost, "/api/analytics/session/end",
			strings.NewReader(`{"sessionId":"s-end","duration":12,"pageViews":1}`))
		req.Header.Set("Content-Type", "text/plain;charset=UTF-8")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		session, err := sessions.Get(db, "s-end")
		require.NoError(t, err)
		require.NotNil(t, session.EndedAt)
		assert.Equal(t, 12, session.DurationSeconds)
		assert.True(t, session.Bounce)
	})

	t.Run("swallows malformed beacons", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, "/api/analytics/session/end", strings.NewReader("not json"))
		req.Header.Set("Content-Type", "text/plain")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})
}

func TestRecordEventHandler(t *testing.T) {
	t.Run("stores a scroll milestone sent as a number", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/event", map[string]interface{}{
			"sessionId":     "s-events",
			"eventType":     "scroll",
			"eventCategory": "engagement",
			"eventAction":   "scroll_depth",
			"eventValue":    75,
			"pageUrl":       "https://example.com/",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.NotZero(t, body["id"])

		var event events.Event
		require.NoError(t, db.First(&event).Error)
		assert.Equal(t, "75", event.EventValue)
		assert.Equal(t, events.EventTypeScroll, event.EventType)
	})

	t.Run("rejects an off-threshold scroll value", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/event", map[string]interface{}{
			"sessionId":  "s-events",
			"eventType":  "scroll",
			"eventValue": "60",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, false, body["success"])

		var count int64
		require.NoError(t, db.Model(&events.Event{}).Count(&count).Error)
		assert.Zero(t, count)
	})

	t.Run("rejects an event without session", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := doJSON(t, app, http.MethodPost, "/api/analytics/event", map[string]interface{}{
			"eventType": "click",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRecordConversionHandler(t *testing.T) {
	t.Run("flags the session and mirrors the conversion", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)
		testsupport.CreateTestSession(t, db, sessions.Session{ID: "s-conv", Bounce: true})

		resp, body := doJSON(t, app, http.MethodPost, "/api/analytics/conversion", map[string]interface{}{
			"sessionId":       "s-conv",
			"conversionType":  "phone_click",
			"conversionValue": 1,
			"pageUrl":         "https://example.com/contato",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])

		session, err := sessions.Get(db, "s-conv")
		require.NoError(t, err)
		assert.True(t, session.Conversion)

		var mirrored events.Event
		require.NoError(t, db.Where("session_id = ? AND event_type = ?", "s-conv", events.EventTypeConversion).First(&mirrored).Error)
		assert.Equal(t, events.CategoryConversion, mirrored.EventCategory)
		assert.Equal(t, "phone_click", mirrored.EventAction)
		assert.Equal(t, "https://example.com/contato", mirrored.EventLabel)
		assert.Equal(t, "1", mirrored.EventValue)
	})

	t.Run("rejects an unknown conversion type", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := doJSON(t, app, http.MethodPost, "/api/analytics/conversion", map[string]interface{}{
			"sessionId":      "s-conv",
			"conversionType": "newsletter",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&conversions.Conversion{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestCaptureLeadHandler(t *testing.T) {
	t.Run("captures a lead with its conversions", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)
		testsupport.CreateTestSession(t, db, sessions.Session{ID: "s-lead", Bounce: true})

		resp, body := doJSON(t, app, http.MethodPost, "/api/leads", map[string]interface{}{
			"name":      "Maria Souza",
			"email":     "Maria@Example.com",
			"phone":     "(11) 98765-4321",
			"city":      "Campinas",
			"state":     "SP",
			"hasCnpj":   "nao",
			"sessionId": "s-lead",
			"pageUrl":   "https://example.com/revenda",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["duplicate"])
		require.NotZero(t, body["leadId"])

		lead, err := leads.Get(db, uint(body["leadId"].(float64)))
		require.NoError(t, err)
		assert.Equal(t, "maria@example.com", lead.Email)
		assert.Equal(t, leads.WebhookPending, lead.WebhookStatus)

		var types []string
		require.NoError(t, db.Model(&conversions.Conversion{}).Order("id").Pluck("conversion_type", &types).Error)
		assert.Equal(t, []string{"lead_form", "no_store_indication"}, types)

		session, err := sessions.Get(db, "s-lead")
		require.NoError(t, err)
		assert.True(t, session.Conversion)
	})

	t.Run("flags a repeated phone as duplicate", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		first := map[string]interface{}{"name": "Ana", "phone": "11 98765-4321"}
		resp, body := doJSON(t, app, http.MethodPost, "/api/leads", first)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["duplicate"])

		second := map[string]interface{}{"name": "Ana Paula", "phone": "(11) 98765 4321"}
		resp, body = doJSON(t, app, http.MethodPost, "/api/leads", second)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["duplicate"])

		var count int64
		require.NoError(t, db.Model(&conversions.Conversion{}).Count(&count).Error)
		assert.Zero(t, count, "leads without a session record no conversions")
	})

	t.Run("rejects an invalid email", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, body := doJSON(t, app, http.MethodPost, "/api/leads", map[string]interface{}{
			"name":  "Joao",
			"email": "not-an-email",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid email format", body["message"])
	})

	t.Run("requires phone or email", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		testsupport.CleanAllTables(db)
		app := testsupport.CreateMinimalTestApp(t, db)

		resp, _ := doJSON(t, app, http.MethodPost, "/api/leads", map[string]interface{}{"name": "Joao"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestPublicPreflight(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	for _, path := range []string{
		"/api/analytics/session",
		"/api/analytics/session/update",
		"/api/analytics/session/end",
		"/api/analytics/event",
		"/api/analytics/conversion",
		"/api/leads",
	} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "https://landing.example.com")
		req.Header.Set("Access-Control-Request-Method", "POST")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equalf(t, http.StatusNoContent, resp.StatusCode, "preflight for %s", path)
	}
}
