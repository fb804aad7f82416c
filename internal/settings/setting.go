package settings

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting keys
const (
	KeyWebhookURL  = "webhook_url"
	KeyExcludedIPs = "excluded_ips"
	KeyAdminAPIKey = "admin_api_key"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

var (
	excludedIPsCache *cache.Cache[string, []string]
	cacheMu          sync.RWMutex
)

// SetupDefaultSettings inserts the default settings rows and warms the excluded IPs cache.
func SetupDefaultSettings(dbConn *gorm.DB, logger *slog.Logger) error {
	defaults := []Setting{
		{Key: KeyExcludedIPs, Value: ""},
		{Key: KeyWebhookURL, Value: ""},
	}
	err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, setting := range defaults {
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	loadCache(dbConn, logger)

	return err
}

// IsIPExcluded reports whether ip is listed in the excluded_ips setting.
func IsIPExcluded(ip string) (bool, error) {
	cacheMu.RLock()
	c := excludedIPsCache
	cacheMu.RUnlock()
	if c == nil || ip == "" {
		return false, nil
	}

	excludedIPs, err := c.Get(KeyExcludedIPs)
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	for _, excludedIP := range excludedIPs {
		if excludedIP == ip {
			return true, nil
		}
	}
	return false, nil
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	if err := dbConn.Where("key = ?", key).First(&setting).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

// GetSettingOrDefault returns the stored value or fallback when the key is missing.
func GetSettingOrDefault(dbConn *gorm.DB, key, fallback string) string {
	value, err := GetSetting(dbConn, key)
	if err != nil {
		return fallback
	}
	return value
}

// CreateOrUpdateSetting upserts a setting and refreshes the excluded IPs cache.
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		return tx.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, value, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}

	if key == KeyExcludedIPs {
		cacheMu.RLock()
		c := excludedIPsCache
		cacheMu.RUnlock()
		if c != nil {
			c.Clear()
		}
		loadCache(dbConn, slog.Default())
	}
	return nil
}

// ValidateIPList checks a comma separated list of IP addresses.
func ValidateIPList(ipList string) error {
	for _, ip := range strings.Split(ipList, ",") {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("invalid IP address format: %s", ip)
		}
	}
	return nil
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		var ips []string
		for _, ip := range strings.Split(value, ",") {
			if ip = strings.TrimSpace(ip); ip != "" {
				ips = append(ips, ip)
			}
		}
		return ips, nil
	}

	cacheMu.Lock()
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
	cacheMu.Unlock()
}

// GetAdminAPIKey retrieves the stored admin API key
func GetAdminAPIKey(db *gorm.DB) (string, error) {
	return GetSetting(db, KeyAdminAPIKey)
}

// GetOrCreateAdminAPIKey returns the existing API key or generates a new one
func GetOrCreateAdminAPIKey(db *gorm.DB) (string, error) {
	key, err := GetAdminAPIKey(db)
	if err == nil && key != "" {
		return key, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	return GenerateAdminAPIKey(db)
}

// GenerateAdminAPIKey creates a new random API key, replacing any existing one
func GenerateAdminAPIKey(db *gorm.DB) (string, error) {
	key := generateRandomToken(32)
	if err := CreateOrUpdateSetting(db, KeyAdminAPIKey, key); err != nil {
		return "", err
	}
	return key, nil
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, length)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = charset[int(buf[i])%len(charset)]
	}
	return string(buf)
}
