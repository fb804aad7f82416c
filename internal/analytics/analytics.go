// Package analytics computes read-only rollups over the sessions, events,
// conversions and leads tables. Every report is plain SQL over a trailing
// window and keeps no state between calls.
package analytics

import (
	"fmt"
	"math"
	"strings"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	topLimit     = 10
	recentLimit  = 50
	topEventsMax = 20
	unknownLabel = "Unknown"
)

var countries = gountries.New()

// Rate formats part/total as a percentage with two decimals. A zero total
// yields "0.00".
func Rate(part, total int64) string {
	if total <= 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(part)/float64(total)*100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// DeviceLabel turns a stored device type into a display label.
func DeviceLabel(deviceType string) string {
	if strings.TrimSpace(deviceType) == "" {
		return unknownLabel
	}
	return cases.Title(language.AmericanEnglish).String(deviceType)
}

// CountryLabel turns an ISO alpha-2 code into a common country name.
func CountryLabel(code string) string {
	if strings.TrimSpace(code) == "" {
		return unknownLabel
	}
	country, err := countries.FindCountryByAlpha(code)
	if err != nil {
		return cases.Upper(language.AmericanEnglish).String(code)
	}
	return country.Name.Common
}
