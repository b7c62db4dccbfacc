package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
)

// SLAQueriesHandler serves per-ticket and per-department SLA views.
type SLAQueriesHandler struct {
	lifecycle  *service.LifecycleService
	escalation *service.EscalationService
}

// NewSLAQueriesHandler constructs handler.
func NewSLAQueriesHandler(lifecycle *service.LifecycleService, escalation *service.EscalationService) *SLAQueriesHandler {
	return &SLAQueriesHandler{lifecycle: lifecycle, escalation: escalation}
}

// GetTicket GET /tickets/:id. Returns the ticket with its live clock state.
func (h *SLAQueriesHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.GetTicket(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	state := h.escalation.ClockState(c.Context(), ticket)
	return c.JSON(fiber.Map{"data": dto.TicketDetailResponse{
		TicketResponse: ticketResponse(ticket),
		Clock:          clockStateResponse(state),
	}})
}

// ListTransitions GET /tickets/:id/transitions.
func (h *SLAQueriesHandler) ListTransitions(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	transitions, err := h.lifecycle.ListTransitions(c.Context(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.TransitionResponse, 0, len(transitions))
	for _, tr := range transitions {
		items = append(items, dto.TransitionResponse{
			ID:         tr.ID,
			FromStatus: string(tr.FromStatus),
			ToStatus:   string(tr.ToStatus),
			Comment:    tr.Comment,
			CreatedAt:  tr.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// BlockedTickets GET /departments/:id/blocked.
func (h *SLAQueriesHandler) BlockedTickets(c *fiber.Ctx) error {
	views, err := h.escalation.BlockedTickets(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.BlockedTicketResponse, 0, len(views))
	for _, v := range views {
		items = append(items, dto.BlockedTicketResponse{
			TicketID:       v.TicketID,
			DisplayID:      v.DisplayID,
			Title:          v.Title,
			AssigneeID:     v.AssigneeID,
			BlockedSeconds: v.BlockedSeconds,
			BlockReason:    v.BlockReason,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// AtRiskTickets GET /departments/:id/at-risk.
func (h *SLAQueriesHandler) AtRiskTickets(c *fiber.Ctx) error {
	views, err := h.escalation.AtRiskTickets(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AtRiskTicketResponse, 0, len(views))
	for _, v := range views {
		items = append(items, dto.AtRiskTicketResponse{
			TicketID:         v.TicketID,
			DisplayID:        v.DisplayID,
			RemainingSeconds: v.RemainingSeconds,
			TargetSeconds:    v.TargetSeconds,
			AssigneeID:       v.AssigneeID,
			Status:           v.Status,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func clockStateResponse(state domain.SLAClockState) dto.ClockStateResponse {
	return dto.ClockStateResponse{
		PolicyVersionID:  state.PolicyVersionID,
		ClockStartAt:     state.ClockStartAt,
		DeadlineAt:       state.DeadlineAt,
		WarnAt:           state.WarnAt,
		EscalateAt:       state.EscalateAt,
		PausedSeconds:    int64(state.PausedFor.Seconds()),
		ElapsedSeconds:   int64(state.Elapsed.Seconds()),
		RemainingSeconds: int64(state.Remaining.Seconds()),
		Classification:   state.Classification,
		ComputedAt:       state.ComputedAt,
	}
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
