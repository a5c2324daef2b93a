// Package interfaces renders offers into export formats.
package interfaces

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"freight-cloud/internal/offers/domain"
	offermongo "freight-cloud/internal/offers/infrastructure/mongo"
)

// BuildOffersXLSX renders a workbook of offer rows with their USD
// totals.
func BuildOffersXLSX(rows []offermongo.View) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "offers"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{
		"Loading Port", "Discharge Port", "Final Destination", "Client",
		"Forwarder", "Sealine", "Incoterm", "Valid From", "Valid Until",
		"Transit Days", "Free Days", "Total 20' (USD)", "Total 40' (USD)",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, row := range rows {
		values := []any{
			row.LoadingPort, row.DischargePort, row.FinalDestination, row.Client,
			row.Forwarder, row.Sealine, string(row.Incoterm),
			row.ValidFrom.Format("2006-01-02"), row.ValidUntil.Format("2006-01-02"),
			row.DurationSum, row.FreeDays, row.TotalPrice20USD, row.TotalPrice40USD,
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildQuotePDF renders a single offer as a client-facing quotation.
func BuildQuotePDF(offer *domain.Offer) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Freight Quotation")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Route: %s - %s - %s", offer.LoadingPort, offer.DischargePort, offer.FinalDestination))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Client: %s", offer.Client))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Incoterm: %s", offer.Incoterm))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Valid: %s to %s",
		offer.ValidFrom.Format("2006-01-02"), offer.ValidUntil.Format("2006-01-02")))
	pdf.Ln(5)
	if offer.Duration != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Transit: %s days", offer.Duration))
		pdf.Ln(5)
	}
	if len(offer.Mode) > 0 {
		pdf.Cell(0, 6, fmt.Sprintf("Mode: %s", strings.Join(offer.Mode, ", ")))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "20'", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "40'", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Currency", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, item := range offer.Details {
		pdf.CellFormat(60, 6, item.ItemLine, "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", item.Price20), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", item.Price40), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, item.CurrencyCode, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
