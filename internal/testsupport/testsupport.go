package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"leadpulse/internal"
	"leadpulse/internal/config"
	"leadpulse/internal/conversions"
	"leadpulse/internal/database"
	"leadpulse/internal/events"
	"leadpulse/internal/leads"
	"leadpulse/internal/sessions"
	"leadpulse/internal/settings"
)

func init() {
	if os.Getenv("LEADPULSE_ENV") == "" {
		os.Setenv("LEADPULSE_ENV", config.Test)
	}
}

// testDBCache shares one database between every call made from the same root test.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates an in-memory database with every model migrated.
// Calls from subtests of the same root test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set LEADPULSE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	require.NoError(t, settings.SetupDefaultSettings(db, GetLogger()))

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	// The tracking client and admin tooling are not browsers.
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// AdminAuthHeader generates an admin API key and returns the Authorization header value.
func AdminAuthHeader(t *testing.T, db *gorm.DB) string {
	t.Helper()
	key, err := settings.GenerateAdminAPIKey(db)
	require.NoError(t, err)
	return "Bearer " + key
}

// CreateTestSession inserts a session row directly.
func CreateTestSession(t *testing.T, db *gorm.DB, session sessions.Session) *sessions.Session {
	t.Helper()
	now := time.Now().UTC()
	if session.ID == "" {
		session.ID = fmt.Sprintf("%d-test", now.UnixNano())
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = now
	}
	if session.PageViews == 0 {
		session.PageViews = 1
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	require.NoError(t, db.Create(&session).Error)
	return &session
}

// CreateTestLead inserts a lead row directly, keeping phone_digits consistent.
func CreateTestLead(t *testing.T, db *gorm.DB, lead leads.Lead) *leads.Lead {
	t.Helper()
	now := time.Now().UTC()
	if lead.Name == "" {
		lead.Name = "Test Lead"
	}
	lead.PhoneDigits = leads.NormalizePhone(lead.Phone)
	if lead.WebhookStatus == "" {
		lead.WebhookStatus = leads.WebhookPending
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = now
	}
	require.NoError(t, db.Create(&lead).Error)
	return &lead
}

// CreateTestEvent inserts an event row directly.
func CreateTestEvent(t *testing.T, db *gorm.DB, event events.Event) *events.Event {
	t.Helper()
	now := time.Now().UTC()
	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	require.NoError(t, db.Create(&event).Error)
	return &event
}

// CreateTestConversion inserts a conversion row directly, without touching
// the session flag or the event mirror.
func CreateTestConversion(t *testing.T, db *gorm.DB, conversion conversions.Conversion) *conversions.Conversion {
	t.Helper()
	now := time.Now().UTC()
	if conversion.Timestamp.IsZero() {
		conversion.Timestamp = now
	}
	if conversion.CreatedAt.IsZero() {
		conversion.CreatedAt = now
	}
	require.NoError(t, db.Create(&conversion).Error)
	return &conversion
}
