package reports

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/service"
)

const (
	dateLayout     = "02/01/2006"
	dateTimeLayout = "02/01/2006 15:04"
)

// ProcessReport is the exported view of a process and its movement history
type ProcessReport struct {
	CNJNumber        string           `json:"cnj_number"`
	FormattedNumber  string           `json:"formatted_number"`
	Court            string           `json:"court"`
	ClassName        string           `json:"class_name"`
	Subject          string           `json:"subject"`
	JudgingBody      string           `json:"judging_body"`
	FilingDate       *time.Time       `json:"filing_date,omitempty"`
	LastMovementDate *time.Time       `json:"last_movement_date,omitempty"`
	GeneratedAt      time.Time        `json:"generated_at"`
	Movements        []MovementReport `json:"movements"`
}

// MovementReport is the exported view of one movement
type MovementReport struct {
	Date        time.Time `json:"date"`
	Code        int       `json:"code"`
	Description string    `json:"description"`
	Details     string    `json:"details,omitempty"`
	Hash        string    `json:"hash"`
}

// NewProcessReport builds the report view
func NewProcessReport(process *model.JudicialProcess, movements []model.JudicialMovement, generatedAt time.Time) ProcessReport {
	report := ProcessReport{
		CNJNumber:       process.CNJNumber,
		FormattedNumber: service.FormatCNJ(process.CNJNumber),
		Court:           process.CourtAlias,
		ClassName:       process.ClassName,
		Subject:         process.Subject,
		JudgingBody:     process.JudgingBody,
		GeneratedAt:     generatedAt.UTC(),
		Movements:       make([]MovementReport, len(movements)),
	}
	if process.FilingDate.Valid {
		t := process.FilingDate.Time.UTC()
		report.FilingDate = &t
	}
	if process.LastMovementDate.Valid {
		t := process.LastMovementDate.Time.UTC()
		report.LastMovementDate = &t
	}

	for i, m := range movements {
		report.Movements[i] = MovementReport{
			Date:        m.MovementDate.UTC(),
			Code:        m.Code,
			Description: m.Description,
			Details:     m.Details,
			Hash:        m.Hash,
		}
	}

	return report
}

func GenerateJSON(process *model.JudicialProcess, movements []model.JudicialMovement) ([]byte, error) {
	return json.MarshalIndent(NewProcessReport(process, movements, time.Now()), "", "  ")
}

func GeneratePDF(process *model.JudicialProcess, movements []model.JudicialMovement) (*bytes.Buffer, error) {
	report := NewProcessReport(process, movements, time.Now())

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(15, 98, 254)
	pdf.Cell(0, 10, tr("Relatório de Movimentações Processuais"))
	pdf.Ln(12)

	pdf.SetFillColor(240, 240, 240)
	pdf.Rect(10, 22, 190, 42, "F")
	pdf.SetTextColor(0, 0, 0)

	pdf.SetXY(12, 24)
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, tr("Processo "+report.FormattedNumber))

	pdf.SetFont("Arial", "", 10)
	pdf.SetXY(12, 32)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Tribunal: %s", report.Court)))
	pdf.SetXY(120, 32)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Ajuizamento: %s", formatOptional(report.FilingDate, dateLayout))))

	pdf.SetXY(12, 38)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Classe: %s", report.ClassName)))
	pdf.SetXY(12, 44)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Assunto: %s", report.Subject)))
	pdf.SetXY(12, 50)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Órgão julgador: %s", report.JudgingBody)))
	pdf.SetXY(12, 56)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Última movimentação: %s", formatOptional(report.LastMovementDate, dateTimeLayout))))

	pdf.SetXY(10, 68)
	pdf.SetFont("Arial", "B", 13)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Movimentações (%d)", len(report.Movements))))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(30, 30, 30)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(32, 7, "Data", "0", 0, "", true, 0, "")
	pdf.CellFormat(18, 7, tr("Código"), "0", 0, "", true, 0, "")
	pdf.CellFormat(140, 7, tr("Descrição"), "0", 1, "", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(0, 0, 0)
	for i, m := range report.Movements {
		fill := i%2 == 1
		pdf.SetFillColor(245, 245, 245)

		text := m.Description
		if m.Details != "" {
			text += " (" + m.Details + ")"
		}

		date := "-"
		if !m.Date.IsZero() {
			date = m.Date.Format(dateTimeLayout)
		}

		y := pdf.GetY()
		pdf.CellFormat(32, 6, date, "0", 0, "", fill, 0, "")
		pdf.CellFormat(18, 6, fmt.Sprintf("%d", m.Code), "0", 0, "", fill, 0, "")
		pdf.MultiCell(140, 6, tr(text), "0", "", fill)
		if pdf.GetY() == y {
			pdf.Ln(6)
		}
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Gerado em %s (UTC) a partir do DataJud/CNJ", report.GeneratedAt.Format(dateTimeLayout))))

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	return &buf, err
}

func formatOptional(t *time.Time, layout string) string {
	if t == nil {
		return "-"
	}
	return t.Format(layout)
}
