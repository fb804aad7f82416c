// Package user_agent turns raw User-Agent headers into the device, browser and
// operating system labels stored on sessions.
package user_agent

import (
	"strings"

	"github.com/mssola/useragent"
)

// Device types stored on sessions.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Unknown is used when a header carries no usable browser or OS.
const Unknown = "unknown"

type UserAgent struct {
	UserAgent  string
	OS         string
	Browser    string
	DeviceType string
	Bot        bool
}

// ParseUserAgent parses a raw header. Empty headers yield a desktop device
// with unknown browser and OS.
func ParseUserAgent(userAgent string) UserAgent {
	result := UserAgent{
		UserAgent:  userAgent,
		OS:         Unknown,
		Browser:    Unknown,
		DeviceType: DeviceDesktop,
	}
	if strings.TrimSpace(userAgent) == "" {
		return result
	}

	ua := useragent.New(userAgent)
	result.Bot = ua.Bot()

	if name, _ := ua.Browser(); name != "" {
		result.Browser = NormalizeBrowser(name)
	}
	if os := ua.OS(); os != "" {
		result.OS = NormalizeOperatingSystem(os)
	}
	result.DeviceType = deviceType(userAgent, ua)

	return result
}

// deviceType checks tablets before phones because iPad and most Android
// tablets also advertise mobile tokens.
func deviceType(raw string, ua *useragent.UserAgent) string {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "ipad"),
		strings.Contains(lower, "tablet"),
		strings.Contains(lower, "kindle"),
		strings.Contains(lower, "silk/"),
		strings.Contains(lower, "android") && !strings.Contains(lower, "mobile"):
		return DeviceTablet
	case ua.Mobile(),
		strings.Contains(lower, "iphone"),
		strings.Contains(lower, "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

// NormalizeDeviceType maps client supplied device labels onto the three
// stored values, falling back to desktop.
func NormalizeDeviceType(device string) string {
	switch strings.ToLower(strings.TrimSpace(device)) {
	case DeviceMobile, "phone", "smartphone":
		return DeviceMobile
	case DeviceTablet:
		return DeviceTablet
	case DeviceDesktop, "pc", "laptop":
		return DeviceDesktop
	default:
		return ""
	}
}

// NormalizeBrowser lowercases browser names and folds mobile variants into
// their desktop family.
func NormalizeBrowser(browser string) string {
	name := strings.ToLower(strings.TrimSpace(browser))
	switch name {
	case "":
		return Unknown
	case "internet explorer":
		return "ie"
	case "mobile safari":
		return "safari"
	case "chrome mobile", "chrome mobile webview", "android":
		return "chrome"
	case "firefox mobile":
		return "firefox"
	case "opera mini", "opera mobile":
		return "opera"
	case "edge mobile":
		return "edge"
	default:
		return name
	}
}

// NormalizeOperatingSystem normalizes operating system names to standardize them
func NormalizeOperatingSystem(os string) string {
	if os == "" {
		return Unknown
	}

	osLower := strings.ToLower(os)

	// iOS strings also contain "like Mac OS X"
	switch {
	case strings.Contains(osLower, "iphone os"), strings.Contains(osLower, "cpu os"), strings.Contains(osLower, "ios"):
		return "iOS"
	case strings.Contains(osLower, "android"):
		return "Android"
	case strings.Contains(osLower, "mac"), strings.Contains(osLower, "darwin"):
		return "MacOS"
	case strings.Contains(osLower, "windows"):
		return "Windows"
	case strings.Contains(osLower, "linux"), strings.Contains(osLower, "ubuntu"):
		return "Linux"
	}

	return strings.ToUpper(os[:1]) + strings.ToLower(os[1:])
}
