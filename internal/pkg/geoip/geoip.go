package geoip

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"leadpulse/internal/config"
)

var (
	geoDB  *geoip2.Reader
	once   sync.Once
	mu     sync.RWMutex
	logger = slog.Default()
)

// InitLogger sets the logger for the geoip package.
func InitLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Open loads a GeoLite2 country database from path.
// Returns nil when the path is empty or the file is missing; GeoIP is optional.
func Open(path string) *geoip2.Reader {
	if path == "" {
		logger.Debug("GeoIP database path not configured - country lookup disabled")
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logger.Info("GeoLite2 database not found - country lookup disabled",
				slog.String("path", path),
				slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		} else {
			logger.Warn("Error checking GeoLite2 database file", slog.String("path", path), slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		logger.Error("Failed to open GeoLite2 database", slog.String("path", path), slog.Any("error", err))
		return nil
	}

	logger.Info("GeoLite2 database initialized", slog.String("path", path))
	return db
}

// GetGeoDB returns the configured reader, opening it on first use.
func GetGeoDB() *geoip2.Reader {
	once.Do(func() {
		mu.Lock()
		geoDB = Open(config.GetConfig().GeoDBPath)
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return geoDB
}

// CountryCode resolves an IP address to an upper-case ISO country code.
// It returns "" when GeoIP is disabled or the address cannot be resolved.
func CountryCode(ipAddress string) string {
	db := GetGeoDB()
	if db == nil {
		return ""
	}
	return lookupCountry(db, ipAddress)
}

func lookupCountry(db *geoip2.Reader, ipAddress string) string {
	ip := net.ParseIP(strings.TrimSpace(ipAddress))
	if ip == nil || ip.IsPrivate() || ip.IsLoopback() {
		return ""
	}

	record, err := db.Country(ip)
	if err != nil {
		logger.Debug("Country lookup failed", slog.String("ip_address", ipAddress), slog.Any("error", err))
		return ""
	}

	code := strings.ToUpper(record.Country.IsoCode)
	if code == "--" {
		return ""
	}
	return code
}
