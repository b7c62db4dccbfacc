package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// TicketEventsHandler ingests lifecycle events from the upstream ticketing
// system.
type TicketEventsHandler struct {
	lifecycle *service.LifecycleService
}

// NewTicketEventsHandler constructs handler.
func NewTicketEventsHandler(lifecycle *service.LifecycleService) *TicketEventsHandler {
	return &TicketEventsHandler{lifecycle: lifecycle}
}

// Register POST /tickets.
func (h *TicketEventsHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.RegisterTicket(c.Context(), service.RegisterTicketInput{
		DepartmentID: req.DepartmentID,
		ServiceKey:   req.ServiceKey,
		Title:        req.Title,
		AssigneeID:   req.AssigneeID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketEventsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.AssigneeID) == "" {
		return apperrors.NewValidationError("assignee_id required", nil)
	}
	ticket, err := h.lifecycle.Assign(c.Context(), c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Accept POST /tickets/:id/accept.
func (h *TicketEventsHandler) Accept(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Accept(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Start POST /tickets/:id/start.
func (h *TicketEventsHandler) Start(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Start(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Block POST /tickets/:id/block.
func (h *TicketEventsHandler) Block(c *fiber.Ctx) error {
	var req dto.BlockRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Block(c.Context(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Unblock POST /tickets/:id/unblock.
func (h *TicketEventsHandler) Unblock(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Unblock(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Complete POST /tickets/:id/complete.
func (h *TicketEventsHandler) Complete(c *fiber.Ctx) error {
	ticket, err := h.lifecycle.Complete(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Cancel POST /tickets/:id/cancel.
func (h *TicketEventsHandler) Cancel(c *fiber.Ctx) error {
	var req dto.CancelRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.lifecycle.Cancel(c.Context(), c.Params("id"), req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:                 ticket.ID,
		DisplayID:          ticket.DisplayID,
		DepartmentID:       ticket.DepartmentID,
		ServiceKey:         ticket.ServiceKey,
		Title:              ticket.Title,
		AssigneeID:         ticket.AssigneeID,
		Status:             ticket.Status,
		BlockReason:        ticket.BlockReason,
		PolicyVersionID:    ticket.PolicyVersionID,
		LastClassification: ticket.LastClassification,
		CreatedAt:          ticket.CreatedAt,
		CompletedAt:        ticket.CompletedAt,
		CancelledAt:        ticket.CancelledAt,
	}
}
