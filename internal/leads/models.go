package leads

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"gorm.io/datatypes"
)

// WebhookStatus is the delivery state of a lead's webhook relay.
type WebhookStatus string

const (
	WebhookPending WebhookStatus = "pending"
	WebhookSuccess WebhookStatus = "success"
	WebhookError   WebhookStatus = "error"
)

// IsValid reports whether s is a known delivery state.
func (s WebhookStatus) IsValid() bool {
	return s == WebhookPending || s == WebhookSuccess || s == WebhookError
}

// Lead is a captured reseller form submission.
type Lead struct {
	ID                 uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Name               string         `gorm:"size:255;not null" json:"name"`
	Email              string         `gorm:"index;size:255" json:"email"`
	Phone              string         `gorm:"size:64" json:"phone"`
	PhoneDigits        string         `gorm:"index;size:32" json:"-"`
	City               string         `gorm:"size:128" json:"city"`
	State              string         `gorm:"size:64" json:"state"`
	StoreType          string         `gorm:"size:64" json:"store_type"`
	HasCNPJ            string         `gorm:"column:has_cnpj;size:16" json:"has_cnpj"`
	CNPJStatus         string         `gorm:"column:cnpj_status;size:64" json:"cnpj_status"`
	Message            string         `gorm:"type:text" json:"message"`
	Source             string         `gorm:"size:64" json:"source"`
	SessionID          string         `gorm:"index;size:64" json:"session_id"`
	UTMSource          string         `gorm:"size:255" json:"utm_source"`
	UTMMedium          string         `gorm:"size:255" json:"utm_medium"`
	UTMCampaign        string         `gorm:"size:255" json:"utm_campaign"`
	Extra              datatypes.JSON `json:"extra,omitempty"`
	IsDuplicate        bool           `gorm:"index;not null" json:"is_duplicate"`
	WebhookSent        bool           `gorm:"not null" json:"webhook_sent"`
	WebhookStatus      WebhookStatus  `gorm:"index;size:16;not null" json:"webhook_status"`
	WebhookResponse    string         `gorm:"type:text" json:"webhook_response"`
	WebhookAttempts    int            `gorm:"not null" json:"webhook_attempts"`
	LastWebhookAttempt *time.Time     `json:"last_webhook_attempt"`
	CreatedAt          time.Time      `gorm:"index;not null" json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// LeadNotFoundError represents an error when a lead id is unknown
type LeadNotFoundError struct {
	ID uint
}

func (e *LeadNotFoundError) Error() string {
	return fmt.Sprintf("lead not found: %d", e.ID)
}

// NormalizePhone strips everything but digits so formatting differences do
// not hide duplicates.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
