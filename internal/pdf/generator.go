package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/nurpe/carbon-credits/internal/model"
)

const fontName = "Helvetica"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders the receipt of one claim submission.
func (g *Generator) Generate(sub model.ClaimSubmission) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont(fontName, "B", 16)
	pdf.CellFormat(0, 10, "Carbon credit claim receipt", "", 1, "C", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Claim #%s, issued %s", sub.ClaimID, formatTime(sub.CreatedAt)), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	section(pdf, "Project")
	rows := [][2]string{
		{"Organization", sub.Organization},
		{"Submitted by", tr(safeValue(sub.SubmittedBy))},
		{"Project", tr(safeValue(sub.ProjectName))},
		{"Acres", fmt.Sprintf("%d", sub.Acres)},
		{"Year", fmt.Sprintf("%d", sub.Year)},
		{"Evidence", safeValue(sub.EvidenceHash)},
	}
	drawRows(pdf, rows)
	pdf.Ln(4)

	section(pdf, "Tokens")
	predicted := fmt.Sprintf("%d", sub.PredictedTokens)
	if sub.OracleDegraded {
		predicted += " (prediction unavailable)"
	}
	drawRows(pdf, [][2]string{
		{"Demanded", fmt.Sprintf("%d", sub.DemandedTokens)},
		{"Predicted", predicted},
		{"Awarded", fmt.Sprintf("%d", sub.AwardedTokens)},
	})
	pdf.Ln(4)

	section(pdf, "Ledger")
	ledgerRows := [][2]string{
		{"State", string(sub.State)},
		{"Submit tx", safeValue(sub.SubmitTxHash)},
	}
	if sub.ApproveTxHash != nil {
		ledgerRows = append(ledgerRows, [2]string{"Approve tx", *sub.ApproveTxHash})
	}
	drawRows(pdf, ledgerRows)

	if sub.State == model.SubmissionStateSubmittedUnapproved {
		pdf.Ln(4)
		pdf.SetTextColor(200, 0, 0)
		msg := "The claim is recorded on the ledger but its award has not been approved."
		if sub.FailureReason != nil {
			msg += " Reason: " + tr(*sub.FailureReason)
		}
		pdf.MultiCell(0, 6, msg, "", "L", false)
		pdf.SetTextColor(0, 0, 0)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
}

func drawRows(pdf *gofpdf.Fpdf, rows [][2]string) {
	pdf.SetFont(fontName, "", 9)
	for _, row := range rows {
		pdf.CellFormat(35, 7, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, row[1], "1", 1, "L", false, 0, "")
	}
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("02.01.2006 15:04 UTC")
}
