package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clausify/clausify/internal/model"
	"github.com/clausify/clausify/internal/service"
	"github.com/clausify/clausify/internal/store"
)

const (
	msgMonitoredNotFound = "Monitoramento não encontrado."
	msgInvalidStatus     = "Status inválido para este monitoramento."
	msgInvalidID         = "Identificador inválido."
	msgInvalidBody       = "Requisição inválida."
	msgListFailed        = "Erro ao carregar monitoramentos."
	msgUpdateFailed      = "Erro ao atualizar monitoramento."
)

// JobRunner runs one monitoring batch
type JobRunner interface {
	RunJob(ctx context.Context) service.JobResult
}

// Subscriptions manages a user's monitored processes
type Subscriptions interface {
	Add(ctx context.Context, userID, processNumber, nickname, frequency string) service.Result
	List(ctx context.Context, userID string, status model.MonitorStatus) ([]model.MonitoredProcess, error)
	Remove(ctx context.Context, userID string, id int64) error
	Update(ctx context.Context, userID string, id int64, update service.MonitoredUpdate) (*model.MonitoredProcess, error)
}

type addMonitoredRequest struct {
	ProcessNumber string `json:"process_number"`
	Nickname      string `json:"nickname"`
	Frequency     string `json:"frequency"`
}

type updateMonitoredRequest struct {
	Status    *string `json:"status"`
	Frequency *string `json:"frequency"`
}

type monitoredResponse struct {
	ID              int64      `json:"id"`
	CNJNumber       string     `json:"cnj_number"`
	FormattedNumber string     `json:"formatted_number"`
	Nickname        string     `json:"nickname"`
	Frequency       string     `json:"frequency"`
	Status          string     `json:"status"`
	LastCheckAt     *time.Time `json:"last_check_at,omitempty"`
	NextCheckAt     time.Time  `json:"next_check_at"`
	Due             bool       `json:"due"`
	FailureCount    int        `json:"failure_count"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func newMonitoredResponse(m model.MonitoredProcess, now time.Time) monitoredResponse {
	resp := monitoredResponse{
		ID:              m.ID,
		CNJNumber:       m.CNJNumber,
		FormattedNumber: service.FormatCNJ(m.CNJNumber),
		Nickname:        m.Nickname,
		Frequency:       string(m.Frequency),
		Status:          string(m.Status),
		NextCheckAt:     m.NextCheckAt,
		Due:             m.IsDue(now),
		FailureCount:    m.FailureCount,
		LastError:       m.LastError.String,
		CreatedAt:       m.CreatedAt,
	}
	if m.LastCheckAt.Valid {
		t := m.LastCheckAt.Time
		resp.LastCheckAt = &t
	}
	return resp
}

// MonitoringJobHandler triggers one monitoring batch
func MonitoringJobHandler(runner JobRunner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result := runner.RunJob(c.UserContext())
		if !result.Success {
			return c.Status(fiber.StatusInternalServerError).JSON(result)
		}
		return c.JSON(result)
	}
}

func AddMonitoredHandler(subs Subscriptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req addMonitoredRequest
		if err := c.BodyParser(&req); err != nil {
			return fail(c, fiber.StatusBadRequest, msgInvalidBody)
		}

		result := subs.Add(c.UserContext(), UserID(c), req.ProcessNumber, req.Nickname, req.Frequency)
		if !result.Success {
			return c.Status(registrationStatus(result.Error)).JSON(result)
		}

		return c.Status(fiber.StatusCreated).JSON(result)
	}
}

func ListMonitoredHandler(subs Subscriptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var status model.MonitorStatus
		if raw := c.Query("status"); raw != "" {
			parsed, err := model.ParseStatus(raw)
			if err != nil {
				return fail(c, fiber.StatusBadRequest, msgInvalidStatus)
			}
			status = parsed
		}

		monitored, err := subs.List(c.UserContext(), UserID(c), status)
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, msgListFailed)
		}

		now := time.Now()
		items := make([]monitoredResponse, len(monitored))
		for i, m := range monitored {
			items[i] = newMonitoredResponse(m, now)
		}

		return c.JSON(fiber.Map{"success": true, "monitored_processes": items})
	}
}

func DeleteMonitoredHandler(subs Subscriptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, msgInvalidID)
		}

		if err := subs.Remove(c.UserContext(), UserID(c), id); err != nil {
			return subscriptionError(c, err)
		}

		return c.JSON(fiber.Map{"success": true})
	}
}

func UpdateMonitoredHandler(subs Subscriptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseInt(c.Params("id"), 10, 64)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, msgInvalidID)
		}

		var req updateMonitoredRequest
		if err := c.BodyParser(&req); err != nil || (req.Status == nil && req.Frequency == nil) {
			return fail(c, fiber.StatusBadRequest, msgInvalidBody)
		}

		update := service.MonitoredUpdate{Frequency: req.Frequency}
		if req.Status != nil {
			status, err := model.ParseStatus(*req.Status)
			if err != nil {
				return fail(c, fiber.StatusBadRequest, msgInvalidStatus)
			}
			update.Status = &status
		}

		updated, err := subs.Update(c.UserContext(), UserID(c), id, update)
		if err != nil {
			return subscriptionError(c, err)
		}

		return c.JSON(fiber.Map{"success": true, "monitored_process": newMonitoredResponse(*updated, time.Now())})
	}
}

func subscriptionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrMonitoredNotFound):
		return fail(c, fiber.StatusNotFound, msgMonitoredNotFound)
	case errors.Is(err, service.ErrInvalidStatus):
		return fail(c, fiber.StatusConflict, msgInvalidStatus)
	case errors.Is(err, service.ErrInvalidFrequency):
		return fail(c, fiber.StatusBadRequest, service.MsgInvalidFrequency)
	default:
		return fail(c, fiber.StatusInternalServerError, msgUpdateFailed)
	}
}

func registrationStatus(message string) int {
	switch message {
	case service.MsgInvalidNumber, service.MsgInvalidFrequency:
		return fiber.StatusBadRequest
	case service.MsgProcessNotFound:
		return fiber.StatusNotFound
	case service.MsgUnresolvableCourt:
		return fiber.StatusUnprocessableEntity
	case service.MsgAlreadyMonitored:
		return fiber.StatusConflict
	case service.MsgUpstreamFailure:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
