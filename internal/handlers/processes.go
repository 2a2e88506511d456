package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/reports"
	"github.com/clausify/clausify/internal/service"
)

const (
	msgCourtRequired = "Informe o tribunal (court) para a busca por documento."
	msgDocumentEmpty = "Informe o documento (CPF ou CNPJ) para a busca."
	msgReportFailed  = "Erro ao gerar relatório."
)

// ProcessLookup serves direct process queries
type ProcessLookup interface {
	Stored(ctx context.Context, number string) (*service.ProcessView, error)
	ByDocument(ctx context.Context, document, courtAlias string) ([]model.CourtProcess, error)
}

type processResponse struct {
	CNJNumber        string             `json:"cnj_number"`
	FormattedNumber  string             `json:"formatted_number"`
	Court            string             `json:"court"`
	ClassName        string             `json:"class_name"`
	Subject          string             `json:"subject"`
	JudgingBody      string             `json:"judging_body"`
	FilingDate       *time.Time         `json:"filing_date,omitempty"`
	LastMovementDate *time.Time         `json:"last_movement_date,omitempty"`
	LastMovementHash string             `json:"last_movement_hash,omitempty"`
	Movements        []movementResponse `json:"movements"`
}

type movementResponse struct {
	Date        time.Time `json:"date"`
	Code        int       `json:"code"`
	Description string    `json:"description"`
	Details     string    `json:"details,omitempty"`
}

type searchResult struct {
	CNJNumber       string     `json:"cnj_number"`
	FormattedNumber string     `json:"formatted_number"`
	Court           string     `json:"court"`
	ClassName       string     `json:"class_name"`
	Subject         string     `json:"subject"`
	JudgingBody     string     `json:"judging_body"`
	FilingDate      *time.Time `json:"filing_date,omitempty"`
	Movements       int        `json:"movements"`
}

func newProcessResponse(view *service.ProcessView) processResponse {
	p := view.Process
	resp := processResponse{
		CNJNumber:        p.CNJNumber,
		FormattedNumber:  service.FormatCNJ(p.CNJNumber),
		Court:            p.CourtAlias,
		ClassName:        p.ClassName,
		Subject:          p.Subject,
		JudgingBody:      p.JudgingBody,
		LastMovementHash: p.LastMovementHash.String,
		Movements:        make([]movementResponse, len(view.Movements)),
	}
	if p.FilingDate.Valid {
		t := p.FilingDate.Time
		resp.FilingDate = &t
	}
	if p.LastMovementDate.Valid {
		t := p.LastMovementDate.Time
		resp.LastMovementDate = &t
	}
	for i, m := range view.Movements {
		resp.Movements[i] = movementResponse{
			Date:        m.MovementDate,
			Code:        m.Code,
			Description: m.Description,
			Details:     m.Details,
		}
	}
	return resp
}

func ProcessHandler(lookup ProcessLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := loadProcess(c, lookup)
		if err != nil {
			return err
		}
		if view == nil {
			return nil
		}

		return c.JSON(fiber.Map{"success": true, "process": newProcessResponse(view)})
	}
}

func ReportJSONHandler(lookup ProcessLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := loadProcess(c, lookup)
		if err != nil || view == nil {
			return err
		}

		body, err := reports.GenerateJSON(view.Process, view.Movements)
		if err != nil {
			log.Printf("Error generating JSON report for %s: %v", view.Process.CNJNumber, err)
			return fail(c, fiber.StatusInternalServerError, msgReportFailed)
		}

		c.Set(fiber.HeaderContentDisposition, `attachment; filename="processo-`+view.Process.CNJNumber+`.json"`)
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSONCharsetUTF8)
		return c.Send(body)
	}
}

func ReportPDFHandler(lookup ProcessLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view, err := loadProcess(c, lookup)
		if err != nil || view == nil {
			return err
		}

		buf, err := reports.GeneratePDF(view.Process, view.Movements)
		if err != nil {
			log.Printf("Error generating PDF report for %s: %v", view.Process.CNJNumber, err)
			return fail(c, fiber.StatusInternalServerError, msgReportFailed)
		}

		c.Set(fiber.HeaderContentDisposition, `attachment; filename="processo-`+view.Process.CNJNumber+`.pdf"`)
		c.Set(fiber.HeaderContentType, "application/pdf")
		return c.Send(buf.Bytes())
	}
}

func SearchHandler(lookup ProcessLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		document := service.NormalizeCNJ(c.Query("document"))
		if document == "" {
			return fail(c, fiber.StatusBadRequest, msgDocumentEmpty)
		}

		processes, err := lookup.ByDocument(c.UserContext(), document, c.Query("court"))
		if err != nil {
			switch {
			case errors.Is(err, service.ErrCourtRequired):
				return fail(c, fiber.StatusBadRequest, msgCourtRequired)
			case errors.Is(err, service.ErrUnresolvableCourt):
				return fail(c, fiber.StatusBadRequest, service.MsgUnresolvableCourt)
			default:
				log.Printf("Error searching document in %s: %v", c.Query("court"), err)
				return fail(c, fiber.StatusBadGateway, service.MsgUpstreamFailure)
			}
		}

		results := make([]searchResult, len(processes))
		for i, p := range processes {
			results[i] = searchResult{
				CNJNumber:       p.Number,
				FormattedNumber: service.FormatCNJ(p.Number),
				Court:           p.CourtAlias,
				ClassName:       p.ClassName,
				Subject:         p.Subject,
				JudgingBody:     p.JudgingBody,
				Movements:       len(p.Movements),
			}
			if !p.FilingDate.IsZero() {
				t := p.FilingDate
				results[i].FilingDate = &t
			}
		}

		return c.JSON(fiber.Map{"success": true, "processes": results})
	}
}

// loadProcess resolves the :cnj param. A nil view with a nil error means the
// error response has already been written.
func loadProcess(c *fiber.Ctx, lookup ProcessLookup) (*service.ProcessView, error) {
	number := service.NormalizeCNJ(c.Params("cnj"))
	if !service.IsValidCNJ(number) {
		return nil, fail(c, fiber.StatusBadRequest, service.MsgInvalidNumber)
	}

	view, err := lookup.Stored(c.UserContext(), number)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProcessNotFound):
			return nil, fail(c, fiber.StatusNotFound, service.MsgProcessNotFound)
		case errors.Is(err, service.ErrUnresolvableCourt):
			return nil, fail(c, fiber.StatusUnprocessableEntity, service.MsgUnresolvableCourt)
		default:
			log.Printf("Error loading process %s: %v", number, err)
			return nil, fail(c, fiber.StatusBadGateway, service.MsgUpstreamFailure)
		}
	}

	return view, nil
}
