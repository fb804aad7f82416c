package leads

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrMissingName    = errors.New("name is required")
	ErrMissingContact = errors.New("phone or email is required")
)

// CaptureInput is a submitted lead form.
type CaptureInput struct {
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
	SessionID   string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Extra       map[string]interface{}
}

// Validate checks the minimum a lead needs to be useful.
func (in CaptureInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(in.Phone) == "" && strings.TrimSpace(in.Email) == "" {
		return ErrMissingContact
	}
	return nil
}

// Capture stores a lead in pending webhook state. The lead is flagged as a
// duplicate when an earlier lead has the same phone digits.
func Capture(db *gorm.DB, logger *slog.Logger, input CaptureInput) (*Lead, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	var extra datatypes.JSON
	if len(input.Extra) > 0 {
		raw, err := json.Marshal(input.Extra)
		if err != nil {
			return nil, fmt.Errorf("invalid extra fields: %w", err)
		}
		extra = datatypes.JSON(raw)
	}

	now := time.Now().UTC()
	lead := &Lead{
		Name:          strings.TrimSpace(input.Name),
		Email:         strings.ToLower(strings.TrimSpace(input.Email)),
		Phone:         strings.TrimSpace(input.Phone),
		PhoneDigits:   NormalizePhone(input.Phone),
		City:          strings.TrimSpace(input.City),
		State:         strings.TrimSpace(input.State),
		StoreType:     strings.TrimSpace(input.StoreType),
		HasCNPJ:       strings.TrimSpace(input.HasCNPJ),
		CNPJStatus:    strings.TrimSpace(input.CNPJStatus),
		Message:       input.Message,
		Source:        strings.TrimSpace(input.Source),
		SessionID:     strings.TrimSpace(input.SessionID),
		UTMSource:     strings.TrimSpace(input.UTMSource),
		UTMMedium:     strings.TrimSpace(input.UTMMedium),
		UTMCampaign:   strings.TrimSpace(input.UTMCampaign),
		Extra:         extra,
		WebhookStatus: WebhookPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if lead.Source == "" {
		lead.Source = "website"
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if lead.PhoneDigits != "" {
			var earlier int64
			if err := tx.Model(&Lead{}).Where("phone_digits = ?", lead.PhoneDigits).Count(&earlier).Error; err != nil {
				return err
			}
			lead.IsDuplicate = earlier > 0
		}
		return tx.Create(lead).Error
	})
	if err != nil {
		logger.Error("Failed to store lead", slog.Any("error", err))
		return nil, fmt.Errorf("failed to store lead: %w", err)
	}

	logger.Info("Lead captured",
		slog.Uint64("lead_id", uint64(lead.ID)),
		slog.String("source", lead.Source),
		slog.Bool("duplicate", lead.IsDuplicate))
	return lead, nil
}

// Get loads a lead by id.
func Get(db *gorm.DB, id uint) (*Lead, error) {
	var lead Lead
	if err := db.First(&lead, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &LeadNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}
	return &lead, nil
}

// ListParams filters and paginates lead listings.
type ListParams struct {
	Since  time.Time
	Status WebhookStatus
	Limit  int
	Offset int
}

// List returns leads created since params.Since, newest first, with the total match count.
func List(db *gorm.DB, params ListParams) ([]Lead, int64, error) {
	query := db.Model(&Lead{}).Where("created_at >= ?", params.Since.UTC())
	if params.Status != "" {
		query = query.Where("webhook_status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if params.Limit > 0 {
		query = query.Limit(params.Limit).Offset(params.Offset)
	}

	var items []Lead
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	return items, total, nil
}

// ListByStatus returns up to limit leads in the given webhook state, oldest first.
// A limit of zero returns every match.
func ListByStatus(db *gorm.DB, status WebhookStatus, limit int) ([]Lead, error) {
	query := db.Where("webhook_status = ?", status).Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var items []Lead
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s leads: %w", status, err)
	}
	return items, nil
}

// Delete removes a lead.
func Delete(db *gorm.DB, logger *slog.Logger, id uint) error {
	var affected int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		result := tx.Delete(&Lead{}, id)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	if affected == 0 {
		return &LeadNotFoundError{ID: id}
	}
	logger.Info("Lead deleted", slog.Uint64("lead_id", uint64(id)))
	return nil
}

// MarkDuplicates keeps the earliest lead per phone number and flags every
// later one. It returns how many leads end up flagged.
func MarkDuplicates(db *gorm.DB, logger *slog.Logger) (int64, error) {
	var flagged int64
	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		err := tx.Exec(`
			UPDATE leads
			SET is_duplicate = CASE
				WHEN id = (SELECT MIN(l2.id) FROM leads l2 WHERE l2.phone_digits = leads.phone_digits) THEN 0
				ELSE 1
			END,
			updated_at = ?
			WHERE phone_digits <> ''
		`, time.Now().UTC()).Error
		if err != nil {
			return err
		}
		return tx.Model(&Lead{}).Where("is_duplicate = ?", true).Count(&flagged).Error
	})
	if err != nil {
		logger.Error("Failed to mark duplicate leads", slog.Any("error", err))
		return 0, fmt.Errorf("failed to mark duplicates: %w", err)
	}

	logger.Info("Duplicate leads marked", slog.Int64("duplicates", flagged))
	return flagged, nil
}

// BackfillPhoneDigits fills phone_digits for rows written before the column existed.
func BackfillPhoneDigits(db *gorm.DB, logger *slog.Logger) (int, error) {
	var pending []Lead
	if err := db.Select("id", "phone").Where("phone_digits = '' OR phone_digits IS NULL").Where("phone <> ''").Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("failed to load leads without phone digits: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		for _, lead := range pending {
			if err := tx.Model(&Lead{}).Where("id = ?", lead.ID).UpdateColumn("phone_digits", NormalizePhone(lead.Phone)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to backfill phone digits: %w", err)
	}
	return len(pending), nil
}
