package conversions

import (
	"time"

	"gorm.io/datatypes"
)

// ConversionType names the qualifying action behind a conversion.
type ConversionType string

const (
	TypeLeadForm          ConversionType = "lead_form"
	TypePhoneClick        ConversionType = "phone_click"
	TypeEmailClick        ConversionType = "email_click"
	TypeSocialClick       ConversionType = "social_click"
	TypeNoStoreIndication ConversionType = "no_store_indication"
)

// Types lists every accepted conversion type in report order.
var Types = []ConversionType{
	TypeLeadForm,
	TypePhoneClick,
	TypeEmailClick,
	TypeSocialClick,
	TypeNoStoreIndication,
}

// IsValid reports whether t is a known conversion type.
func (t ConversionType) IsValid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Conversion is created once per qualifying action and never updated.
// SessionID and LeadID are soft references.
type Conversion struct {
	ID              uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID       string         `gorm:"index;size:64;not null" json:"session_id"`
	LeadID          *uint          `gorm:"index" json:"lead_id"`
	ConversionType  ConversionType `gorm:"index;size:32;not null" json:"conversion_type"`
	ConversionValue float64        `gorm:"not null;default:0" json:"conversion_value"`
	FormData        datatypes.JSON `json:"form_data"`
	PageURL         string         `gorm:"type:text" json:"page_url"`
	Timestamp       time.Time      `gorm:"index;not null" json:"timestamp"`
	CreatedAt       time.Time      `json:"created_at"`
}
