// Package webhooks forwards captured leads to an admin configured URL and
// records the delivery outcome on the lead row.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"leadpulse/internal/config"
	"leadpulse/internal/leads"
	"leadpulse/internal/pkg/async"
	"leadpulse/internal/settings"
)

const (
	DefaultTimeout   = 10 * time.Second
	DeliveryHeader   = "X-Leadpulse-Delivery"
	maxResponseBytes = 64 * 1024
)

// ErrInvalidURL is returned for anything that is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("webhook_url must be an absolute http or https URL")

// Payload is the fixed projection of a lead sent to the webhook.
type Payload struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	StoreType   string    `json:"store_type"`
	HasCNPJ     string    `json:"has_cnpj"`
	CNPJStatus  string    `json:"cnpj_status"`
	Message     string    `json:"message"`
	Source      string    `json:"source"`
	UTMSource   string    `json:"utm_source"`
	UTMMedium   string    `json:"utm_medium"`
	UTMCampaign string    `json:"utm_campaign"`
	IsDuplicate bool      `json:"is_duplicate"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewPayload projects a lead onto the webhook payload.
func NewPayload(lead *leads.Lead) Payload {
	return Payload{
		ID:          lead.ID,
		Name:        lead.Name,
		Email:       lead.Email,
		Phone:       lead.Phone,
		City:        lead.City,
		State:       lead.State,
		StoreType:   lead.StoreType,
		HasCNPJ:     lead.HasCNPJ,
		CNPJStatus:  lead.CNPJStatus,
		Message:     lead.Message,
		Source:      lead.Source,
		UTMSource:   lead.UTMSource,
		UTMMedium:   lead.UTMMedium,
		UTMCampaign: lead.UTMCampaign,
		IsDuplicate: lead.IsDuplicate,
		CreatedAt:   lead.CreatedAt.UTC(),
	}
}

// Result describes one delivery attempt.
type Result struct {
	LeadID     uint   `json:"lead_id"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code"`
	Response   string `json:"response"`
	DeliveryID string `json:"delivery_id"`
}

// ResendSummary tallies a batch of deliveries.
type ResendSummary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Relay posts leads to a webhook. Every call is a single attempt.
type Relay struct {
	client  *http.Client
	timeout time.Duration
	workers int
	logger  *slog.Logger
}

// NewRelay creates a relay with the given per-request timeout.
func NewRelay(logger *slog.Logger, timeout time.Duration) *Relay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Relay{
		client:  &http.Client{},
		timeout: timeout,
		workers: 1,
		logger:  logger,
	}
}

// NewRelayFromConfig creates a relay using the configured timeout and resend worker count.
func NewRelayFromConfig(logger *slog.Logger, cfg *config.Config) *Relay {
	relay := NewRelay(logger, cfg.GetWebhookTimeout())
	if cfg.WebhookResendWorkers > 1 {
		relay.workers = cfg.WebhookResendWorkers
	}
	return relay
}

// ValidateURL checks that target is usable as a webhook endpoint.
func ValidateURL(target string) error {
	parsed, err := url.Parse(strings.TrimSpace(target))
	if err != nil || parsed.Host == "" {
		return ErrInvalidURL
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidURL
	}
	return nil
}

// ResolveURL returns the configured webhook URL, falling back to the webhook_url setting.
func ResolveURL(db *gorm.DB, cfg *config.Config) string {
	if cfg != nil {
		if configured := strings.TrimSpace(cfg.WebhookURL); configured != "" {
			return configured
		}
	}
	return strings.TrimSpace(settings.GetSettingOrDefault(db, settings.KeyWebhookURL, ""))
}

// Send delivers one lead to target and stores the outcome on the lead.
// Non-2xx replies and transport failures are reported through the Result,
// not the error; the error is reserved for an invalid URL, an unknown lead
// or a failure to persist the outcome.
func (r *Relay) Send(ctx context.Context, db *gorm.DB, leadID uint, target string) (*Result, error) {
	if err := ValidateURL(target); err != nil {
		return nil, err
	}

	lead, err := leads.Get(db, leadID)
	if err != nil {
		return nil, err
	}

	result := r.deliver(ctx, lead, strings.TrimSpace(target))

	status := leads.WebhookError
	if result.Success {
		status = leads.WebhookSuccess
	}
	now := time.Now().UTC()

	err = sqlite.PerformWrite(r.logger, db, func(tx *gorm.DB) error {
		return tx.Model(&leads.Lead{}).Where("id = ?", lead.ID).UpdateColumns(map[string]interface{}{
			"webhook_sent":         result.Success,
			"webhook_status":       status,
			"webhook_response":     result.Response,
			"webhook_attempts":     gorm.Expr("webhook_attempts + 1"),
			"last_webhook_attempt": now,
			"updated_at":           now,
		}).Error
	})
	if err != nil {
		r.logger.Error("Failed to record webhook outcome",
			slog.Uint64("lead_id", uint64(lead.ID)),
			slog.Any("error", err))
		return result, fmt.Errorf("failed to record webhook outcome: %w", err)
	}

	return result, nil
}

func (r *Relay) deliver(ctx context.Context, lead *leads.Lead, target string) *Result {
	result := &Result{LeadID: lead.ID, DeliveryID: uuid.NewString()}

	body, err := json.Marshal(NewPayload(lead))
	if err != nil {
		result.Response = err.Error()
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		result.Response = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, result.DeliveryID)

	started := time.Now()
	resp, err := r.client.Do(req)
	deliveryDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		deliveriesTotal.WithLabelValues(outcomeTransport).Inc()
		result.Response = err.Error()
		r.logger.Warn("Webhook delivery failed",
			slog.Uint64("lead_id", uint64(lead.ID)),
			slog.String("delivery_id", result.DeliveryID),
			slog.Any("error", err))
		return result
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		r.logger.Warn("Failed to read webhook response body",
			slog.Uint64("lead_id", uint64(lead.ID)),
			slog.Any("error", err))
	}

	result.StatusCode = resp.StatusCode
	result.Response = string(raw)
	result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300

	if result.Success {
		deliveriesTotal.WithLabelValues(outcomeSuccess).Inc()
	} else {
		deliveriesTotal.WithLabelValues(outcomeRejected).Inc()
	}

	r.logger.Info("Webhook delivered",
		slog.Uint64("lead_id", uint64(lead.ID)),
		slog.String("delivery_id", result.DeliveryID),
		slog.Int("status", resp.StatusCode))
	return result
}

// ResendFailed redelivers every lead whose last attempt ended in error.
func (r *Relay) ResendFailed(ctx context.Context, db *gorm.DB, target string) (ResendSummary, error) {
	if err := ValidateURL(target); err != nil {
		return ResendSummary{}, err
	}
	failed, err := leads.ListByStatus(db, leads.WebhookError, 0)
	if err != nil {
		return ResendSummary{}, err
	}
	return r.sendAll(ctx, db, failed, target), nil
}

// DispatchPending delivers up to limit leads that were never attempted.
func (r *Relay) DispatchPending(ctx context.Context, db *gorm.DB, target string, limit int) (ResendSummary, error) {
	if err := ValidateURL(target); err != nil {
		return ResendSummary{}, err
	}
	pending, err := leads.ListByStatus(db, leads.WebhookPending, limit)
	if err != nil {
		return ResendSummary{}, err
	}
	return r.sendAll(ctx, db, pending, target), nil
}

func (r *Relay) sendAll(ctx context.Context, db *gorm.DB, batch []leads.Lead, target string) ResendSummary {
	summary := ResendSummary{}
	if len(batch) == 0 {
		return summary
	}

	tasks := make([]async.Task[*Result], 0, len(batch))
	for _, lead := range batch {
		id := lead.ID
		tasks = append(tasks, async.Task[*Result]{
			Name: strconv.FormatUint(uint64(id), 10),
			Execute: func(ctx context.Context) (*Result, error) {
				return r.Send(ctx, db, id, target)
			},
		})
	}

	results := async.NewPool[*Result](r.workers).Execute(ctx, tasks)
	for _, res := range results {
		summary.Attempted++
		if res.Err == nil && res.Data != nil && res.Data.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	r.logger.Info("Webhook batch finished",
		slog.Int("attempted", summary.Attempted),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed))
	return summary
}
