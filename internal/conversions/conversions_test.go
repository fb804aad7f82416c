package conversions_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadpulse/internal/conversions"
	"leadpulse/internal/events"
	"leadpulse/internal/sessions"
	"leadpulse/internal/testsupport"
)

func TestClassifyLink(t *testing.T) {
	tests := []struct {
		href     string
		expected conversions.ConversionType
		ok       bool
	}{
		{"tel:+5511987654321", conversions.TypePhoneClick, true},
		{"TEL:11987654321", conversions.TypePhoneClick, true},
		{"mailto:vendas@example.com", conversions.TypeEmailClick, true},
		{"https://wa.me/5511987654321", conversions.TypeSocialClick, true},
		{"https://api.whatsapp.com/send?phone=55119", conversions.TypeSocialClick, true},
		{"https://www.instagram.com/brand", conversions.TypeSocialClick, true},
		{"https://facebook.com/brand", conversions.TypeSocialClick, true},
		{"https://example.com/produtos", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := conversions.ClassifyLink(tt.href)
		assert.Equalf(t, tt.ok, ok, "ClassifyLink(%q)", tt.href)
		assert.Equalf(t, tt.expected, got, "ClassifyLink(%q)", tt.href)
	}
}

func TestIsNoStoreSignal(t *testing.T) {
	tests := []struct {
		field    string
		value    string
		expected bool
	}{
		{"has_cnpj", "nao", true},
		{"cnpj_status", "sem_cnpj", true},
		{"possui_loja", "Não", true},
		{"has_store", "false", true},
		{"loja_fisica", "0", true},
		{"store", "no", true},
		{"Has-CNPJ", "nao", true},
		{"store_type", "0", false},
		{"store_name", "no", false},
		{"cnpj_number", "0", false},
		{"has_cnpj", "sim", false},
		{"has_cnpj", "yes", false},
		{"email", "nao", false},
		{"", "nao", false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.expected, conversions.IsNoStoreSignal(tt.field, tt.value),
			"IsNoStoreSignal(%q, %q)", tt.field, tt.value)
	}
}

func TestRecord(t *testing.T) {
	t.Run("flags the session and mirrors an event", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)
		testsupport.CreateTestSession(t, db, sessions.Session{ID: "s1", Bounce: true})

		leadID := uint(7)
		conversion, err := conversions.Record(db, logger, conversions.RecordInput{
			SessionID:       "s1",
			LeadID:          &leadID,
			ConversionType:  conversions.TypeLeadForm,
			ConversionValue: 2.5,
			FormData:        map[string]interface{}{"city": "Campinas"},
			PageURL:         "https://example.com/revenda",
		})
		require.NoError(t, err)
		require.NotNil(t, conversion.LeadID)
		assert.Equal(t, uint(7), *conversion.LeadID)

		var formData map[string]interface{}
		require.NoError(t, json.Unmarshal(conversion.FormData, &formData))
		assert.Equal(t, "Campinas", formData["city"])

		session, err := sessions.Get(db, "s1")
		require.NoError(t, err)
		assert.True(t, session.Conversion)

		var mirrored events.Event
		require.NoError(t, db.Where("event_type = ?", events.EventTypeConversion).First(&mirrored).Error)
		assert.Equal(t, "s1", mirrored.SessionID)
		assert.Equal(t, events.CategoryConversion, mirrored.EventCategory)
		assert.Equal(t, "lead_form", mirrored.EventAction)
		assert.Equal(t, "https://example.com/revenda", mirrored.EventLabel)
		assert.Equal(t, "2.5", mirrored.EventValue)
	})

	t.Run("orphan conversions are still stored", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		_, err := conversions.Record(db, logger, conversions.RecordInput{
			SessionID:      "missing-session",
			ConversionType: conversions.TypeEmailClick,
		})
		require.NoError(t, err)

		var count int64
		require.NoError(t, db.Model(&conversions.Conversion{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()

		_, err := conversions.Record(db, logger, conversions.RecordInput{ConversionType: conversions.TypePhoneClick})
		assert.ErrorIs(t, err, conversions.ErrMissingSessionID)

		_, err = conversions.Record(db, logger, conversions.RecordInput{SessionID: "s1", ConversionType: "newsletter"})
		assert.ErrorIs(t, err, conversions.ErrInvalidType)
	})
}

func TestListForSession(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	now := time.Now().UTC()
	testsupport.CreateTestConversion(t, db, conversions.Conversion{SessionID: "a", ConversionType: conversions.TypeSocialClick, Timestamp: now})
	testsupport.CreateTestConversion(t, db, conversions.Conversion{SessionID: "a", ConversionType: conversions.TypePhoneClick, Timestamp: now.Add(-time.Hour)})
	testsupport.CreateTestConversion(t, db, conversions.Conversion{SessionID: "b", ConversionType: conversions.TypeEmailClick, Timestamp: now})

	items, err := conversions.ListForSession(db, "a")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, conversions.TypePhoneClick, items[0].ConversionType)
	assert.Equal(t, conversions.TypeSocialClick, items[1].ConversionType)

	none, err := conversions.ListForSession(db, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
