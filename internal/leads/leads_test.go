package leads_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"leadpulse/internal/leads"
	"leadpulse/internal/testsupport"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "11987654321", leads.NormalizePhone("(11) 98765-4321"))
	assert.Equal(t, "5511987654321", leads.NormalizePhone("+55 11 98765 4321"))
	assert.Equal(t, "", leads.NormalizePhone("n/a"))
}

func TestCapture(t *testing.T) {
	t.Run("stores a pending lead", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		lead, err := leads.Capture(db, logger, leads.CaptureInput{
			Name:  " Bruno ",
			Email: "Bruno@Example.COM",
			Phone: "(11) 98765-4321",
			Extra: map[string]interface{}{"instagram": "@bruno"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Bruno", lead.Name)
		assert.Equal(t, "bruno@example.com", lead.Email)
		assert.Equal(t, "website", lead.Source)
		assert.Equal(t, leads.WebhookPending, lead.WebhookStatus)
		assert.False(t, lead.IsDuplicate)
		assert.Zero(t, lead.WebhookAttempts)
	})

	t.Run("flags a later lead with the same phone", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		_, err := leads.Capture(db, logger, leads.CaptureInput{Name: "A", Phone: "11 98765-4321"})
		require.NoError(t, err)

		second, err := leads.Capture(db, logger, leads.CaptureInput{Name: "B", Phone: "(11)987654321"})
		require.NoError(t, err)
		assert.True(t, second.IsDuplicate)

		third, err := leads.Capture(db, logger, leads.CaptureInput{Name: "C", Email: "c@example.com"})
		require.NoError(t, err)
		assert.False(t, third.IsDuplicate)
	})

	t.Run("validates the minimum fields", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()

		_, err := leads.Capture(db, logger, leads.CaptureInput{Phone: "11"})
		assert.ErrorIs(t, err, leads.ErrMissingName)

		_, err = leads.Capture(db, logger, leads.CaptureInput{Name: "Nobody"})
		assert.ErrorIs(t, err, leads.ErrMissingContact)
	})
}

func TestMarkDuplicates(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	first := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11 90000-0001", IsDuplicate: true})
	second := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "(11) 900000001"})
	third := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11900000001"})
	single := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "21 91111-1111"})
	noPhone := testsupport.CreateTestLead(t, db, leads.Lead{Email: "x@example.com"})

	flagged, err := leads.MarkDuplicates(db, logger)
	require.NoError(t, err)
	assert.Equal(t, int64(2), flagged)

	expected := map[uint]bool{
		first.ID:   false,
		second.ID:  true,
		third.ID:   true,
		single.ID:  false,
		noPhone.ID: false,
	}
	for id, duplicate := range expected {
		lead, err := leads.Get(db, id)
		require.NoError(t, err)
		assert.Equalf(t, duplicate, lead.IsDuplicate, "lead %d", id)
	}

	again, err := leads.MarkDuplicates(db, logger)
	require.NoError(t, err)
	assert.Equal(t, flagged, again)
}

func TestDelete(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	lead := testsupport.CreateTestLead(t, db, leads.Lead{Phone: "11"})
	require.NoError(t, leads.Delete(db, logger, lead.ID))

	var count int64
	require.NoError(t, db.Unscoped().Model(&leads.Lead{}).Count(&count).Error)
	assert.Zero(t, count)

	err := leads.Delete(db, logger, lead.ID)
	var notFound *leads.LeadNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, lead.ID, notFound.ID)
}

func TestListAndListByStatus(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "1", WebhookStatus: leads.WebhookError})
	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "2", WebhookStatus: leads.WebhookError})
	testsupport.CreateTestLead(t, db, leads.Lead{Phone: "3", WebhookStatus: leads.WebhookSuccess})

	items, total, err := leads.List(db, leads.ListParams{Status: leads.WebhookError, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 1)

	failed, err := leads.ListByStatus(db, leads.WebhookError, 0)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Less(t, failed[0].ID, failed[1].ID)
}

func TestExportXLSX(t *testing.T) {
	data, err := leads.ExportXLSX([]leads.Lead{
		{ID: 1, Name: "Ana", Phone: "11", WebhookStatus: leads.WebhookSuccess, WebhookAttempts: 2},
		{ID: 2, Name: "Bia", Email: "bia@example.com", IsDuplicate: true, WebhookStatus: leads.WebhookPending},
	})
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Leads")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Len(t, rows[0], len(leads.ExportHeader))
	for i, cell := range leads.ExportHeader {
		assert.Equal(t, cell, rows[0][i])
	}
	assert.Equal(t, "Ana", rows[1][2])
	assert.Equal(t, "bia@example.com", rows[2][3])
	assert.Equal(t, "true", rows[2][14])
}
