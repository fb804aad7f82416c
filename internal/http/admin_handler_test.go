package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"leadpulse/internal/conversions"
	"leadpulse/internal/events"
	"leadpulse/internal/leads"
	"leadpulse/internal/sessions"
	"leadpulse/internal/settings"
	"leadpulse/internal/testsupport"
)

type adminClient struct {
	t    *testing.T
	app  *fiber.App
	auth string
}

func newAdminClient(t *testing.T) (*adminClient, *gorm.DB) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	app := testsupport.CreateMinimalTestApp(t, db)
	return &adminClient{t: t, app: app, auth: testsupport.AdminAuthHeader(t, db)}, db
}

func (c *adminClient) do(method, path string, payload interface{}) (*http.Response, []byte) {
	c.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(c.t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", c.auth)

	resp, err := c.app.Test(req, 30000)
	require.NoError(c.t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp, raw
}

func (c *adminClient) doJSON(method, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	c.t.Helper()
	resp, raw := c.do(method, path, payload)
	var decoded map[string]interface{}
	require.NoErrorf(c.t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	return resp, decoded
}

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	app := testsupport.CreateMinimalTestApp(t, db)
	_ = testsupport.AdminAuthHeader(t, db)

	for _, path := range []string{"/api/analytics/sessions", "/api/analytics/daily", "/api/analytics/leads"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "GET %s", path)

		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer wrong")
		resp, err = app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "GET %s with wrong key", path)
	}
}

func TestHealthIndexAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateMinimalTestApp(t, db)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/_health", nil), 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["db_status"])
	assert.EqualValues(t, 0, health["pending_webhooks"])
	assert.EqualValues(t, 0, health["failed_webhooks"])
}

func TestSessionsReportAction(t *testing.T) {
	client, db := newAdminClient(t)

	for i := 0; i < 3; i++ {
		testsupport.CreateTestSession(t, db, sessions.Session{
			ID:         fmt.Sprintf("s-%d", i),
			UTMSource:  "google",
			DeviceType: "mobile",
			Bounce:     true,
			StartedAt:  time.Now().UTC().Add(-time.Duration(i) * time.Minute),
		})
	}

	resp, body := client.doJSON(http.MethodGet, "/api/analytics/sessions?days=7&page=1&limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, float64(7), body["days"])
	assert.Len(t, body["sessions"], 2)

	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, float64(2), pagination["total_pages"])

	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(3), summary["total_sessions"])
	assert.Equal(t, "100.00", summary["bounce_rate"])
	assert.Equal(t, "0.00", summary["conversion_rate"])
}

func TestReportsAreIdempotent(t *testing.T) {
	client, db := newAdminClient(t)
	testsupport.CreateTestSession(t, db, sessions.Session{ID: "s-1", UTMSource: "facebook"})
	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11999990000"})

	for _, path := range []string{
		"/api/analytics/sessions",
		"/api/analytics/events",
		"/api/analytics/conversions",
		"/api/analytics/daily",
	} {
		first, firstBody := client.do(http.MethodGet, path, nil)
		second, secondBody := client.do(http.MethodGet, path, nil)
		require.Equalf(t, http.StatusOK, first.StatusCode, "GET %s: %s", path, firstBody)
		require.Equal(t, http.StatusOK, second.StatusCode)
		assert.JSONEqf(t, string(firstBody), string(secondBody), "GET %s", path)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(firstBody, &decoded))
		assert.Equalf(t, true, decoded["success"], "GET %s", path)
	}
}

func TestTrafficSourceFromTrackedSession(t *testing.T) {
	client, _ := newAdminClient(t)

	resp, _ := client.doJSON(http.MethodPost, "/api/analytics/session", map[string]interface{}{
		"id":         "s1",
		"deviceType": "mobile",
		"utmSource":  "facebook",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := client.doJSON(http.MethodGet, "/api/analytics/sessions?days=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sources := body["traffic_sources"].([]interface{})
	require.Len(t, sources, 1)
	source := sources[0].(map[string]interface{})
	assert.Equal(t, "facebook", source["source"])
	assert.Equal(t, "none", source["medium"])
	assert.Equal(t, float64(1), source["sessions"])
}

func TestScrollEventsGroupInTopEvents(t *testing.T) {
	client, _ := newAdminClient(t)

	for _, depth := range []int{25, 50, 75} {
		resp, _ := client.doJSON(http.MethodPost, "/api/analytics/event", map[string]interface{}{
			"sessionId":     "s1",
			"eventType":     "scroll",
			"eventCategory": "engagement",
			"eventAction":   "scroll_depth",
			"eventValue":    depth,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := client.doJSON(http.MethodGet, "/api/analytics/events?days=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var scroll map[string]interface{}
	for _, raw := range body["top_events"].([]interface{}) {
		group := raw.(map[string]interface{})
		if group["event_type"] == "scroll" {
			scroll = group
		}
	}
	require.NotNil(t, scroll)
	assert.Equal(t, float64(3), scroll["event_count"])
	assert.Equal(t, float64(1), scroll["unique_sessions"])
}

func TestSessionShowAction(t *testing.T) {
	client, db := newAdminClient(t)
	testsupport.CreateTestSession(t, db, sessions.Session{ID: "s-detail", UTMSource: "google", Conversion: true})
	testsupport.CreateTestEvent(t, db, events.Event{SessionID: "s-detail", EventType: events.EventTypePageView})
	testsupport.CreateTestEvent(t, db, events.Event{SessionID: "s-detail", EventType: events.EventTypeClick})
	testsupport.CreateTestConversion(t, db, conversions.Conversion{SessionID: "s-detail", ConversionType: conversions.TypePhoneClick})

	resp, body := client.doJSON(http.MethodGet, "/api/analytics/sessions/s-detail", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["event_count"])
	assert.Len(t, body["conversions"], 1)

	session := body["session"].(map[string]interface{})
	assert.Equal(t, "google", session["utm_source"])

	resp, body = client.doJSON(http.MethodGet, "/api/analytics/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestWebhookSendAction(t *testing.T) {
	t.Run("marks a 2xx delivery as sent", func(t *testing.T) {
		client, db := newAdminClient(t)
		lead := testsupport.CreateTestLead(t, db, leads.Lead{Name: "Ana", Phone: "11988887777"})

		var received map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&received)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		resp, body := client.doJSON(http.MethodPost, fmt.Sprintf("/api/analytics/webhook/%d", lead.ID),
			map[string]interface{}{"webhook_url": server.URL})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, true, data["success"])
		assert.Equal(t, float64(200), data["status_code"])
		assert.Equal(t, "Ana", received["name"])

		stored, err := leads.Get(db, lead.ID)
		require.NoError(t, err)
		assert.True(t, stored.WebhookSent)
		assert.Equal(t, leads.WebhookSuccess, stored.WebhookStatus)
		assert.Equal(t, `{"ok":true}`, stored.WebhookResponse)
		assert.Equal(t, 1, stored.WebhookAttempts)
		assert.NotNil(t, stored.LastWebhookAttempt)
	})

	t.Run("stores the body of a 500 reply", func(t *testing.T) {
		client, db := newAdminClient(t)
		lead := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11977776666"})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("boom"))
		}))
		defer server.Close()

		resp, body := client.doJSON(http.MethodPost, fmt.Sprintf("/api/analytics/webhook/%d", lead.ID),
			map[string]interface{}{"webhook_url": server.URL})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, false, data["success"])
		assert.Equal(t, float64(500), data["status_code"])

		stored, err := leads.Get(db, lead.ID)
		require.NoError(t, err)
		assert.False(t, stored.WebhookSent)
		assert.Equal(t, leads.WebhookError, stored.WebhookStatus)
		assert.Equal(t, "boom", stored.WebhookResponse)
		assert.Equal(t, 1, stored.WebhookAttempts)
	})

	t.Run("stores the transport error", func(t *testing.T) {
		client, db := newAdminClient(t)
		lead := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11966665555"})

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		deadURL := server.URL
		server.Close()

		resp, body := client.doJSON(http.MethodPost, fmt.Sprintf("/api/analytics/webhook/%d", lead.ID),
			map[string]interface{}{"webhook_url": deadURL})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := body["data"].(map[string]interface{})
		assert.Equal(t, false, data["success"])

		stored, err := leads.Get(db, lead.ID)
		require.NoError(t, err)
		assert.False(t, stored.WebhookSent)
		assert.Equal(t, leads.WebhookError, stored.WebhookStatus)
		assert.NotEmpty(t, stored.WebhookResponse)
		assert.Equal(t, 1, stored.WebhookAttempts)
	})

	t.Run("unknown lead is 404", func(t *testing.T) {
		client, _ := newAdminClient(t)

		resp, body := client.doJSON(http.MethodPost, "/api/analytics/webhook/9999",
			map[string]interface{}{"webhook_url": "https://hooks.example.com/lead"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, false, body["success"])
	})

	t.Run("bad URL and bad id are 400", func(t *testing.T) {
		client, db := newAdminClient(t)
		lead := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11955554444"})

		resp, _ := client.doJSON(http.MethodPost, fmt.Sprintf("/api/analytics/webhook/%d", lead.ID),
			map[string]interface{}{"webhook_url": "ftp://example.com"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = client.doJSON(http.MethodPost, "/api/analytics/webhook/abc",
			map[string]interface{}{"webhook_url": "https://hooks.example.com/lead"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		stored, err := leads.Get(db, lead.ID)
		require.NoError(t, err)
		assert.Zero(t, stored.WebhookAttempts)
	})
}

func TestWebhookResendFailedAction(t *testing.T) {
	client, db := newAdminClient(t)
	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "1", WebhookStatus: leads.WebhookError, WebhookAttempts: 1})
	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "2", WebhookStatus: leads.WebhookError, WebhookAttempts: 2})
	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "3", WebhookStatus: leads.WebhookSuccess, WebhookSent: true})
	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "4", WebhookStatus: leads.WebhookPending})

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	resp, body := client.doJSON(http.MethodPost, "/api/analytics/webhook/resend-failed",
		map[string]interface{}{"webhook_url": server.URL})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["attempted"])
	assert.Equal(t, float64(2), data["succeeded"])
	assert.Equal(t, float64(0), data["failed"])
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	var remaining int64
	require.NoError(t, db.Model(&leads.Lead{}).Where("webhook_status = ?", leads.WebhookError).Count(&remaining).Error)
	assert.Zero(t, remaining)

	var pending int64
	require.NoError(t, db.Model(&leads.Lead{}).Where("webhook_status = ?", leads.WebhookPending).Count(&pending).Error)
	assert.Equal(t, int64(1), pending)
}

func TestCheckDuplicatesAction(t *testing.T) {
	client, db := newAdminClient(t)
	first := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "(11) 91234-5678", IsDuplicate: true})
	second := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11 91234 5678"})
	other := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "21 90000-0000"})

	resp, body := client.doJSON(http.MethodPost, "/api/analytics/check-duplicates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["updated"])

	for id, expected := range map[uint]bool{first.ID: false, second.ID: true, other.ID: false} {
		lead, err := leads.Get(db, id)
		require.NoError(t, err)
		assert.Equalf(t, expected, lead.IsDuplicate, "lead %d", id)
	}
}

func TestReconcileAction(t *testing.T) {
	client, db := newAdminClient(t)
	testsupport.CreateTestSession(t, db, sessions.Session{ID: "drifted", PageViews: 4, DurationSeconds: 90, Bounce: true})
	testsupport.CreateTestSession(t, db, sessions.Session{ID: "consistent", Bounce: true})

	resp, body := client.doJSON(http.MethodPost, "/api/analytics/reconcile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["updated"])

	session, err := sessions.Get(db, "drifted")
	require.NoError(t, err)
	assert.False(t, session.Bounce)
}

func TestLeadsActions(t *testing.T) {
	t.Run("lists leads filtered by webhook status", func(t *testing.T) {
		client, db := newAdminClient(t)
		testsupport.CreateTestLead(t, db, leads.Lead{Phone: "1", WebhookStatus: leads.WebhookError})
		testsupport.CreateTestLead(t, db, leads.Lead{Phone: "2"})

		resp, body := client.doJSON(http.MethodGet, "/api/analytics/leads?status=error", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Len(t, body["leads"], 1)

		resp, _ = client.doJSON(http.MethodGet, "/api/analytics/leads?status=bogus", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("deletes a lead and 404s on unknown ids", func(t *testing.T) {
		client, db := newAdminClient(t)
		lead := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "1"})

		resp, body := client.doJSON(http.MethodDelete, fmt.Sprintf("/api/analytics/leads/%d", lead.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])

		_, err := leads.Get(db, lead.ID)
		var notFound *leads.LeadNotFoundError
		assert.ErrorAs(t, err, &notFound)

		resp, _ = client.doJSON(http.MethodDelete, fmt.Sprintf("/api/analytics/leads/%d", lead.ID), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("exports an xlsx workbook", func(t *testing.T) {
		client, db := newAdminClient(t)
		testsupport.CreateTestLead(t, db, leads.Lead{Name: "Carla", Phone: "11911112222"})

		resp, raw := client.do(http.MethodGet, "/api/analytics/leads/export?days=30", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")

		book, err := excelize.OpenReader(bytes.NewReader(raw))
		require.NoError(t, err)
		defer book.Close()

		rows, err := book.GetRows("Leads")
		require.NoError(t, err)
		require.Len(t, rows, 2)
		header := make([]string, 0, len(leads.ExportHeader))
		for _, cell := range leads.ExportHeader {
			header = append(header, cell.(string))
		}
		assert.Equal(t, header, rows[0])
		assert.Equal(t, "Carla", rows[1][2])
	})
}

func TestWebhookSettingsActions(t *testing.T) {
	client, db := newAdminClient(t)

	resp, body := client.doJSON(http.MethodPut, "/api/settings/webhook",
		map[string]interface{}{"webhook_url": "https://hooks.example.com/leads"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])

	stored, err := settings.GetSetting(db, settings.KeyWebhookURL)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/leads", stored)

	resp, body = client.doJSON(http.MethodGet, "/api/settings/webhook", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://hooks.example.com/leads", body["webhook_url"])

	resp, _ = client.doJSON(http.MethodPut, "/api/settings/webhook",
		map[string]interface{}{"webhook_url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
