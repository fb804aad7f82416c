package leads

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Leads"

// ExportHeader is the first row of every lead export.
var ExportHeader = []interface{}{
	"ID", "Created At", "Name", "Email", "Phone", "City", "State",
	"Store Type", "Has CNPJ", "CNPJ Status", "Source",
	"UTM Source", "UTM Medium", "UTM Campaign",
	"Duplicate", "Webhook Status", "Webhook Attempts", "Message",
}

// ExportXLSX renders leads as a single-sheet workbook.
func ExportXLSX(items []Lead) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	header := ExportHeader
	if err := xl.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, lead := range items {
		row := []interface{}{
			lead.ID,
			lead.CreatedAt.UTC().Format(time.RFC3339),
			lead.Name,
			lead.Email,
			lead.Phone,
			lead.City,
			lead.State,
			lead.StoreType,
			lead.HasCNPJ,
			lead.CNPJStatus,
			lead.Source,
			lead.UTMSource,
			lead.UTMMedium,
			lead.UTMCampaign,
			strconv.FormatBool(lead.IsDuplicate),
			string(lead.WebhookStatus),
			lead.WebhookAttempts,
			lead.Message,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := xl.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write lead %d: %w", lead.ID, err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
