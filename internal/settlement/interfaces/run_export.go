package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	settlement "retail-settlement/internal/settlement/domain"
)

var chargeLabels = map[settlement.ChargeType]string{
	settlement.ChargeEnergy:               "Energy",
	settlement.ChargeGridTariff:           "Grid tariff",
	settlement.ChargeSystemTariff:         "System tariff",
	settlement.ChargeTransmissionTariff:   "Transmission tariff",
	settlement.ChargeElectricityTax:       "Electricity tax",
	settlement.ChargeGridSubscription:     "Grid subscription",
	settlement.ChargeSupplierSubscription: "Supplier subscription",
}

func chargeLabel(chargeType settlement.ChargeType) string {
	if label, ok := chargeLabels[chargeType]; ok {
		return label
	}
	return string(chargeType)
}

func lineKWh(line settlement.RunLine) string {
	if !line.KWh.Valid {
		return ""
	}
	return line.KWh.Decimal.StringFixed(3)
}

// BuildRunPDF renders an itemized bill for a run.
func BuildRunPDF(run *settlement.SettlementRun, lines []settlement.RunLine) ([]byte, error) {
	if run == nil {
		return nil, settlement.ErrRunNotFound
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Electricity Settlement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	header := []string{
		fmt.Sprintf("Metering point: %s", run.MeteringPointID),
		fmt.Sprintf("Grid area: %s", run.GridArea),
		fmt.Sprintf("Period: %s - %s", run.PeriodStart.Format("2006-01-02"), run.PeriodEnd.Format("2006-01-02")),
		fmt.Sprintf("Frequency: %s", run.Frequency),
		fmt.Sprintf("Run: %s (version %d, %s)", run.ID, run.Version, run.Status),
		fmt.Sprintf("Executed: %s", run.ExecutedAt.Format(time.RFC3339)),
	}
	for _, text := range header {
		pdf.Cell(0, 6, text)
		pdf.Ln(5)
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Charge", "1", 0, "L", false, 0, "")
	pdf.CellFormat(35, 6, "kWh", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, "Amount", "1", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, "VAT", "1", 0, "R", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, line := range lines {
		pdf.CellFormat(60, 6, chargeLabel(line.ChargeType), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, lineKWh(line), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, line.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, line.VATAmount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	totals := []struct {
		label string
		value string
	}{
		{"Total kWh", run.TotalKWh.StringFixed(3)},
		{"Subtotal", run.Subtotal.StringFixed(2)},
		{"VAT (25%)", run.VATAmount.StringFixed(2)},
		{"Total", run.Total.StringFixed(2)},
	}
	for _, row := range totals {
		pdf.CellFormat(95, 6, row.label, "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, row.value, "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRunXLSX renders a run as a workbook with summary and lines sheets.
func BuildRunXLSX(run *settlement.SettlementRun, lines []settlement.RunLine) ([]byte, error) {
	if run == nil {
		return nil, settlement.ErrRunNotFound
	}
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet, linesSheet = "summary", "lines"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(linesSheet); err != nil {
		return nil, err
	}

	summary := [][2]any{
		{"Metering point", run.MeteringPointID},
		{"Grid area", run.GridArea},
		{"Period start", run.PeriodStart.Format("2006-01-02")},
		{"Period end", run.PeriodEnd.Format("2006-01-02")},
		{"Frequency", string(run.Frequency)},
		{"Run", run.ID},
		{"Version", run.Version},
		{"Status", string(run.Status)},
		{"Total kWh", run.TotalKWh.InexactFloat64()},
		{"Subtotal", run.Subtotal.InexactFloat64()},
		{"VAT", run.VATAmount.InexactFloat64()},
		{"Total", run.Total.InexactFloat64()},
	}
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	for col, title := range []string{"Position", "Charge", "kWh", "Amount", "VAT"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(linesSheet, cell, title)
	}
	for i, line := range lines {
		row := i + 2
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("A%d", row), line.Position)
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("B%d", row), chargeLabel(line.ChargeType))
		if line.KWh.Valid {
			_ = f.SetCellValue(linesSheet, fmt.Sprintf("C%d", row), line.KWh.Decimal.InexactFloat64())
		}
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("D%d", row), line.Amount.InexactFloat64())
		_ = f.SetCellValue(linesSheet, fmt.Sprintf("E%d", row), line.VATAmount.InexactFloat64())
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
