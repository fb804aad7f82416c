package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpulse/internal/settings"
	"leadpulse/internal/testsupport"
)

func TestIsIPExcluded(t *testing.T) {
	t.Run("excludes exact IP match", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		require.NoError(t, settings.SetupDefaultSettings(db, logger))

		require.NoError(t, settings.CreateOrUpdateSetting(db, settings.KeyExcludedIPs, "192.168.1.100"))

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.True(t, isExcluded)

		isExcluded, err = settings.IsIPExcluded("192.168.1.101")
		require.NoError(t, err)
		assert.False(t, isExcluded)
	})

	t.Run("handles IPs with whitespace", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		require.NoError(t, settings.SetupDefaultSettings(db, logger))

		require.NoError(t, settings.CreateOrUpdateSetting(db, settings.KeyExcludedIPs, " 192.168.1.100 , 10.0.0.1 "))

		isExcluded, err := settings.IsIPExcluded("10.0.0.1")
		require.NoError(t, err)
		assert.True(t, isExcluded)
	})

	t.Run("empty list excludes nothing", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		require.NoError(t, settings.SetupDefaultSettings(db, logger))

		require.NoError(t, settings.CreateOrUpdateSetting(db, settings.KeyExcludedIPs, ""))

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.False(t, isExcluded)
	})
}

func TestCreateOrUpdateSetting(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)
	require.NoError(t, settings.SetupDefaultSettings(db, logger))

	value, err := settings.GetSetting(db, settings.KeyWebhookURL)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, settings.CreateOrUpdateSetting(db, settings.KeyWebhookURL, "https://hooks.example.com/leads"))
	require.NoError(t, settings.CreateOrUpdateSetting(db, settings.KeyWebhookURL, "https://hooks.example.com/v2"))

	value, err = settings.GetSetting(db, settings.KeyWebhookURL)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/v2", value)

	var count int64
	require.NoError(t, db.Model(&settings.Setting{}).Where("key = ?", settings.KeyWebhookURL).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	assert.Equal(t, "fallback", settings.GetSettingOrDefault(db, "missing_key", "fallback"))
}

func TestAdminAPIKey(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	key, err := settings.GetOrCreateAdminAPIKey(db)
	require.NoError(t, err)
	assert.Len(t, key, 32)

	again, err := settings.GetOrCreateAdminAPIKey(db)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	rotated, err := settings.GenerateAdminAPIKey(db)
	require.NoError(t, err)
	assert.NotEqual(t, key, rotated)
}

func TestValidateIPList(t *testing.T) {
	assert.NoError(t, settings.ValidateIPList(""))
	assert.NoError(t, settings.ValidateIPList("10.0.0.1, 2001:db8::1"))
	assert.Error(t, settings.ValidateIPList("10.0.0.1, not-an-ip"))
}
