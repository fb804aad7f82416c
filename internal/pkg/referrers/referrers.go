package referrers

import (
	"net/url"
	"strings"
)

// Direct is the label for sessions that arrived without a referrer.
const Direct = "Direct"

// Hostnames seen in landing page traffic mapped to display names
var knownReferrers = map[string]string{
	// Search
	"google.com":       "Google",
	"google.com.br":    "Google",
	"google.com.pt":    "Google",
	"google.co.uk":     "Google",
	"bing.com":         "Bing",
	"duckduckgo.com":   "DuckDuckGo",
	"yahoo.com":        "Yahoo",
	"ecosia.org":       "Ecosia",
	"search.brave.com": "Brave Search",

	// Social and ads
	"facebook.com":                "Facebook",
	"fb.com":                      "Facebook",
	"m.facebook.com":              "Facebook",
	"l.facebook.com":              "Facebook",
	"lm.facebook.com":             "Facebook",
	"instagram.com":               "Instagram",
	"l.instagram.com":             "Instagram",
	"tiktok.com":                  "TikTok",
	"kwai.com":                    "Kwai",
	"youtube.com":                 "YouTube",
	"youtu.be":                    "YouTube",
	"linkedin.com":                "LinkedIn",
	"lnkd.in":                     "LinkedIn",
	"pinterest.com":               "Pinterest",
	"x.com":                       "X/Twitter",
	"twitter.com":                 "X/Twitter",
	"t.co":                        "X/Twitter",
	"threads.net":                 "Threads",
	"googleads.g.doubleclick.net": "Google Ads",
	"syndicatedsearch.goog":       "Google Ads",

	// Messaging
	"whatsapp.com":     "WhatsApp",
	"web.whatsapp.com": "WhatsApp",
	"wa.me":            "WhatsApp",
	"telegram.org":     "Telegram",
	"t.me":             "Telegram",

	// Email
	"mail.google.com":    "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"mail.yahoo.com":     "Yahoo Mail",
	"mail.uol.com.br":    "UOL Mail",

	// Link shorteners and bio pages
	"bit.ly":      "Bitly",
	"linktr.ee":   "Linktree",
	"tinyurl.com": "TinyURL",
}

// FriendlyName returns a display name for a referrer hostname. Unknown hosts
// come back without a leading "www." and with the first letter capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return Direct
	}

	if name, ok := knownReferrers[hostname]; ok {
		return name
	}

	if strings.HasPrefix(hostname, "www.") {
		hostname = hostname[4:]
		if name, ok := knownReferrers[hostname]; ok {
			return name
		}
	}

	for domain, name := range knownReferrers {
		if strings.HasSuffix(hostname, "."+domain) {
			return name
		}
	}

	return strings.ToUpper(hostname[:1]) + hostname[1:]
}

// FromURL extracts the host of a full referrer URL and returns its display
// name. Empty or unparsable referrers count as direct traffic.
func FromURL(referrer string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return Direct
	}
	if !strings.Contains(referrer, "://") {
		referrer = "https://" + referrer
	}
	parsed, err := url.Parse(referrer)
	if err != nil || parsed.Hostname() == "" {
		return Direct
	}
	return FriendlyName(parsed.Hostname())
}
