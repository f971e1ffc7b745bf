// Package export renders tenant ledger statements as XLSX or PDF.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"payment-mail-reconciler-go/internal/model"
)

// Format is an export file type.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Statement is a tenant ledger ready to render.
type Statement struct {
	Tenant       model.Tenant
	Entries      []model.LedgerEntry
	GeneratedAt  time.Time
	Location     *time.Location
	TotalCharges decimal.Decimal
	TotalPaid    decimal.Decimal
	Balance      decimal.Decimal
}

// NewStatement totals entries for tenant.
func NewStatement(tenant model.Tenant, entries []model.LedgerEntry, loc *time.Location, now time.Time) *Statement {
	if loc == nil {
		loc = time.UTC
	}
	st := &Statement{
		Tenant:       tenant,
		Entries:      entries,
		GeneratedAt:  now,
		Location:     loc,
		TotalCharges: decimal.Zero,
		TotalPaid:    decimal.Zero,
		Balance:      decimal.Zero,
	}
	for _, e := range entries {
		if e.Type.IsCharge() {
			st.TotalCharges = st.TotalCharges.Add(e.Amount)
		} else if e.Type == model.EntryPayment {
			st.TotalPaid = st.TotalPaid.Add(e.Amount.Abs())
		}
	}
	if n := len(entries); n > 0 {
		st.Balance = entries[n-1].Balance
	}
	return st
}

// Render dispatches on format.
func Render(st *Statement, format Format) ([]byte, error) {
	switch format {
	case FormatXLSX:
		return BuildStatementXLSX(st)
	case FormatPDF:
		return BuildStatementPDF(st)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Filename suggests a download name.
func (st *Statement) Filename(format Format) string {
	return fmt.Sprintf("ledger-tenant-%d-%s.%s", st.Tenant.ID, st.GeneratedAt.In(st.Location).Format("20060102"), format)
}

// BuildStatementPDF renders the ledger as a one-table PDF.
func BuildStatementPDF(st *Statement) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.Cell(0, 8, "Tenant Ledger Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Tenant: %s (#%d)", st.Tenant.Name, st.Tenant.ID)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", st.GeneratedAt.In(st.Location).Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total charges: %s", st.TotalCharges.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total paid: %s", st.TotalPaid.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Balance: %s", st.Balance.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(24, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(16, 6, "Period", "1", 0, "C", false, 0, "")
	pdf.CellFormat(26, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(68, 6, "Description", "1", 0, "C", false, 0, "")
	pdf.CellFormat(26, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(26, 6, "Balance", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, e := range st.Entries {
		pdf.CellFormat(24, 6, e.CreatedAt.In(st.Location).Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(16, 6, e.Period.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(26, 6, string(e.Type), "1", 0, "L", false, 0, "")
		pdf.CellFormat(68, 6, tr(truncate(e.Description, 45)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(26, 6, e.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(26, 6, e.Balance.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a summary sheet and an entries sheet.
func BuildStatementXLSX(st *Statement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summary, entries := "summary", "entries"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(entries); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summary, "A1", "Tenant Ledger Statement")
	_ = f.SetCellValue(summary, "A3", "Tenant")
	_ = f.SetCellValue(summary, "B3", st.Tenant.Name)
	_ = f.SetCellValue(summary, "A4", "Tenant ID")
	_ = f.SetCellValue(summary, "B4", st.Tenant.ID)
	_ = f.SetCellValue(summary, "A5", "Generated")
	_ = f.SetCellValue(summary, "B5", st.GeneratedAt.In(st.Location).Format(time.RFC3339))
	_ = f.SetCellValue(summary, "A6", "Total Charges")
	_ = f.SetCellValue(summary, "B6", st.TotalCharges.InexactFloat64())
	_ = f.SetCellValue(summary, "A7", "Total Paid")
	_ = f.SetCellValue(summary, "B7", st.TotalPaid.InexactFloat64())
	_ = f.SetCellValue(summary, "A8", "Balance")
	_ = f.SetCellValue(summary, "B8", st.Balance.InexactFloat64())

	headers := []string{"Entry", "Date", "Period", "Type", "Description", "Amount", "Balance", "Payment"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(entries, cell, h)
	}
	for i, e := range st.Entries {
		row := i + 2
		_ = f.SetCellValue(entries, fmt.Sprintf("A%d", row), e.ID)
		_ = f.SetCellValue(entries, fmt.Sprintf("B%d", row), e.CreatedAt.In(st.Location).Format("2006-01-02"))
		_ = f.SetCellValue(entries, fmt.Sprintf("C%d", row), e.Period.String())
		_ = f.SetCellValue(entries, fmt.Sprintf("D%d", row), string(e.Type))
		_ = f.SetCellValue(entries, fmt.Sprintf("E%d", row), e.Description)
		_ = f.SetCellValue(entries, fmt.Sprintf("F%d", row), e.Amount.InexactFloat64())
		_ = f.SetCellValue(entries, fmt.Sprintf("G%d", row), e.Balance.InexactFloat64())
		if e.PaymentID != nil {
			_ = f.SetCellValue(entries, fmt.Sprintf("H%d", row), *e.PaymentID)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
