// Package tracker is a Go client for the leadpulse tracking endpoints. A
// Client owns exactly one visitor session: Start opens it, the interaction
// methods record events and conversions against it, and Close ends it.
//
// Delivery is best effort. Network and server failures are logged at debug
// level and dropped; nothing is queued or retried.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadpulse/internal/conversions"
	"leadpulse/internal/events"
	"leadpulse/internal/sessions"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second

	requestTimeout = 5 * time.Second
	beaconTimeout  = 2 * time.Second
	maxErrorBody   = 4 * 1024
)

var (
	ErrAlreadyStarted = errors.New("tracker: session already started")
	ErrNotStarted     = errors.New("tracker: session not started")
	ErrClosed         = errors.New("tracker: client closed")
)

// Options configures a Client. Only BaseURL is required.
type Options struct {
	BaseURL           string
	HTTPClient        *http.Client
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// SessionInfo describes the visitor when the session opens.
type SessionInfo struct {
	UserAgent        string
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
}

// LeadForm is a lead form submission.
type LeadForm struct {
	Name        string
	Email       string
	Phone       string
	City        string
	State       string
	StoreType   string
	HasCNPJ     string
	CNPJStatus  string
	Message     string
	Source      string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Extra       map[string]interface{}
}

// LeadResult is the server's answer to a lead submission.
type LeadResult struct {
	LeadID    uint
	Duplicate bool
}

// Client tracks a single session. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	interval   time.Duration
	now        func() time.Time

	mu           sync.Mutex
	sessionID    string
	startedAt    time.Time
	lastActivity time.Time
	pageViews    int
	pageURL      string
	scrolled     map[int]bool
	starting     bool
	closed       bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	beacons   sync.WaitGroup
}

// New creates a client. It performs no I/O until Start.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := opts.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		interval:   interval,
		now:        now,
		scrolled:   make(map[int]bool),
	}
}

// NewSessionID returns an id of the form <unix-millis>-<random suffix>.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

// SessionID returns the current session id, empty before Start.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// PageViews returns the page views counted so far.
func (c *Client) PageViews() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageViews
}

// Start opens the session and starts the heartbeat. The landing page counts
// as the first page view. Only one Start can succeed per Client; if Close
// runs while the session request is in flight, the session is ended
// immediately and Start returns ErrClosed.
func (c *Client) Start(ctx context.Context, info SessionInfo) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.sessionID != "" || c.starting {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.starting = true
	now := c.now().UTC()
	id := NewSessionID(now)
	c.mu.Unlock()

	body := startRequest{
		ID:               id,
		UserAgent:        info.UserAgent,
		Referrer:         info.Referrer,
		LandingPage:      info.LandingPage,
		UTMSource:        info.UTMSource,
		UTMMedium:        info.UTMMedium,
		UTMCampaign:      info.UTMCampaign,
		UTMTerm:          info.UTMTerm,
		UTMContent:       info.UTMContent,
		DeviceType:       info.DeviceType,
		Browser:          info.Browser,
		OS:               info.OS,
		ScreenResolution: info.ScreenResolution,
		Language:         info.Language,
		Timezone:         info.Timezone,
		StartedAt:        now.Format(time.RFC3339Nano),
	}
	if err := c.send(ctx, http.MethodPost, "/api/analytics/session", body, nil); err != nil {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
		return fmt.Errorf("start session: %w", err)
	}

	c.mu.Lock()
	c.starting = false
	c.sessionID = id
	c.startedAt = now
	c.lastActivity = now
	c.pageViews = 1
	c.pageURL = info.LandingPage
	if c.closed {
		// Close ran while the session POST was in flight.
		c.mu.Unlock()
		c.endSession()
		return ErrClosed
	}
	stop, done := make(chan struct{}), make(chan struct{})
	c.stop, c.done = stop, done
	c.mu.Unlock()

	go c.heartbeat(stop, done)

	c.logger.Debug("Tracking session started", slog.String("session_id", id))
	return nil
}

func (c *Client) heartbeat(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			c.sendUpdate(ctx, "/api/analytics/session/update", http.MethodPut)
			cancel()
		case <-stop:
			return
		}
	}
}

// Heartbeat sends the current counters immediately.
func (c *Client) Heartbeat(ctx context.Context) {
	c.sendUpdate(ctx, "/api/analytics/session/update", http.MethodPut)
}

func (c *Client) snapshot() (updateRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return updateRequest{}, false
	}
	duration := int(c.lastActivity.Sub(c.startedAt).Seconds())
	if elapsed := int(c.now().UTC().Sub(c.startedAt).Seconds()); elapsed > duration {
		duration = elapsed
	}
	bounce := sessions.IsBounce(c.pageViews, duration)
	return updateRequest{
		SessionID:    c.sessionID,
		Duration:     duration,
		PageViews:    c.pageViews,
		Bounce:       &bounce,
		LastActivity: c.lastActivity.Format(time.RFC3339Nano),
	}, true
}

func (c *Client) sendUpdate(ctx context.Context, path, method string) {
	body, ok := c.snapshot()
	if !ok {
		return
	}
	if err := c.send(ctx, method, path, body, nil); err != nil {
		c.logger.Debug("Session update dropped", slog.String("path", path), slog.Any("error", err))
	}
}

// PageView counts a navigation to url and records a page_view event.
func (c *Client) PageView(url, title string) {
	c.mu.Lock()
	if c.sessionID != "" {
		c.pageViews++
		c.pageURL = url
		c.scrolled = make(map[int]bool)
	}
	c.mu.Unlock()

	c.record(eventRequest{
		EventType:     string(events.EventTypePageView),
		EventCategory: events.CategoryNavigation,
		EventAction:   "page_view",
		PageURL:       url,
		PageTitle:     title,
	})
}

// Scroll reports the visitor's scroll depth on the current page. Every
// threshold at or below percent fires once per page view.
func (c *Client) Scroll(percent int) {
	c.mu.Lock()
	var crossed []int
	if c.sessionID != "" {
		for _, threshold := range events.ScrollThresholds {
			if threshold <= percent && !c.scrolled[threshold] {
				c.scrolled[threshold] = true
				crossed = append(crossed, threshold)
			}
		}
	}
	c.mu.Unlock()

	for _, threshold := range crossed {
		c.record(eventRequest{
			EventType:     string(events.EventTypeScroll),
			EventCategory: events.CategoryEngagement,
			EventAction:   "scroll_depth",
			EventValue:    strconv.Itoa(threshold),
		})
	}
}

// Click records a click on an element.
func (c *Client) Click(elementID, text string) {
	c.record(eventRequest{
		EventType:     string(events.EventTypeClick),
		EventCategory: events.CategoryEngagement,
		EventAction:   "click",
		ElementID:     elementID,
		ElementText:   text,
	})
}

// Link records a link click and, for tel:, mailto: and social links, the
// matching conversion.
func (c *Client) Link(href string) {
	c.record(eventRequest{
		EventType:     string(events.EventTypeClick),
		EventCategory: events.CategoryNavigation,
		EventAction:   "link_click",
		EventLabel:    href,
	})
	if conversionType, ok := conversions.ClassifyLink(href); ok {
		c.convert(conversionRequest{
			ConversionType:  string(conversionType),
			ConversionValue: 1,
			FormData:        map[string]interface{}{"href": href},
		})
	}
}

// FormInteraction records focus, blur or similar activity on a form field.
func (c *Client) FormInteraction(field, action string) {
	c.record(eventRequest{
		EventType:     string(events.EventTypeFormInteraction),
		EventCategory: events.CategoryForm,
		EventAction:   action,
		EventLabel:    field,
	})
}

// FieldChange records a changed form field. A value saying the visitor has
// no store or no CNPJ also records a no_store_indication conversion.
func (c *Client) FieldChange(field, value string) {
	c.FormInteraction(field, "change")
	if conversions.IsNoStoreSignal(field, value) {
		c.convert(conversionRequest{
			ConversionType:  string(conversions.TypeNoStoreIndication),
			ConversionValue: 1,
			FormData:        map[string]interface{}{"field": field, "value": value},
		})
	}
}

// Visibility records the page becoming visible or hidden.
func (c *Client) Visibility(visible bool) {
	state := "hidden"
	if visible {
		state = "visible"
	}
	c.record(eventRequest{
		EventType:     string(events.EventTypePageVisibility),
		EventCategory: events.CategoryEngagement,
		EventAction:   "visibility_change",
		EventValue:    state,
	})
}

// SubmitLead posts a lead linked to the current session, if any.
func (c *Client) SubmitLead(ctx context.Context, form LeadForm) (*LeadResult, error) {
	c.mu.Lock()
	sessionID, pageURL := c.sessionID, c.pageURL
	c.mu.Unlock()

	body := leadRequest{
		Name:        form.Name,
		Email:       form.Email,
		Phone:       form.Phone,
		City:        form.City,
		State:       form.State,
		StoreType:   form.StoreType,
		HasCNPJ:     form.HasCNPJ,
		CNPJStatus:  form.CNPJStatus,
		Message:     form.Message,
		Source:      form.Source,
		SessionID:   sessionID,
		UTMSource:   form.UTMSource,
		UTMMedium:   form.UTMMedium,
		UTMCampaign: form.UTMCampaign,
		PageURL:     pageURL,
		Extra:       form.Extra,
	}

	var resp leadResponse
	if err := c.send(ctx, http.MethodPost, "/api/leads", body, &resp); err != nil {
		return nil, fmt.Errorf("submit lead: %w", err)
	}
	c.touch()
	return &LeadResult{LeadID: resp.LeadID, Duplicate: resp.Duplicate}, nil
}

// Close stops the heartbeat and sends the end beacon without waiting for
// it. Calling Close more than once is a no-op.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		stop, done := c.stop, c.done
		c.mu.Unlock()

		if stop == nil {
			return
		}
		close(stop)
		<-done
		c.endSession()
	})
}

// endSession fires the end beacon in the background.
func (c *Client) endSession() {
	body, ok := c.snapshot()
	if !ok {
		return
	}
	c.beacons.Add(1)
	go func() {
		defer c.beacons.Done()
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		if err := c.send(ctx, http.MethodPost, "/api/analytics/session/end", body, nil); err != nil {
			c.logger.Debug("End beacon dropped", slog.Any("error", err))
		}
	}()
}

// Wait blocks until an in-flight end beacon finishes. Short lived programs
// call it after Close so the process does not exit first.
func (c *Client) Wait() {
	c.beacons.Wait()
}

func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = c.now().UTC()
	c.mu.Unlock()
}

func (c *Client) record(event eventRequest) {
	c.mu.Lock()
	sessionID, pageURL, closed := c.sessionID, c.pageURL, c.closed
	c.mu.Unlock()
	if sessionID == "" || closed {
		c.logger.Debug("Event ignored outside an open session", slog.String("event_type", event.EventType))
		return
	}

	event.SessionID = sessionID
	if event.PageURL == "" {
		event.PageURL = pageURL
	}
	event.Timestamp = c.now().UTC().Format(time.RFC3339Nano)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.send(ctx, http.MethodPost, "/api/analytics/event", event, nil); err != nil {
		c.logger.Debug("Event dropped", slog.String("event_type", event.EventType), slog.Any("error", err))
		return
	}
	c.touch()
}

func (c *Client) convert(conversion conversionRequest) {
	c.mu.Lock()
	sessionID, pageURL, closed := c.sessionID, c.pageURL, c.closed
	c.mu.Unlock()
	if sessionID == "" || closed {
		return
	}

	conversion.SessionID = sessionID
	conversion.PageURL = pageURL
	conversion.Timestamp = c.now().UTC().Format(time.RFC3339Nano)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.send(ctx, http.MethodPost, "/api/analytics/conversion", conversion, nil); err != nil {
		c.logger.Debug("Conversion dropped",
			slog.String("conversion_type", conversion.ConversionType),
			slog.Any("error", err))
	}
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var parsed struct {
		Message string `json:"message"`
	}
	message := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &parsed) == nil && parsed.Message != "" {
		message = parsed.Message
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: message}
}
