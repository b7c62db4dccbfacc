package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
)

// ReportsHandler serves compliance reporting endpoints.
type ReportsHandler struct {
	compliance *service.ComplianceService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(compliance *service.ComplianceService) *ReportsHandler {
	return &ReportsHandler{compliance: compliance}
}

// Trend GET /reports/trend?days=.
func (h *ReportsHandler) Trend(c *fiber.Ctx) error {
	points, err := h.compliance.Trend(c.Context(), queryInt(c, "days", 30))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": trendResponses(points)})
}

// DepartmentTrend GET /departments/:id/trend?days=.
func (h *ReportsHandler) DepartmentTrend(c *fiber.Ctx) error {
	points, err := h.compliance.TrendForDepartment(c.Context(), c.Params("id"), queryInt(c, "days", 30))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": trendResponses(points)})
}

// Impact GET /reports/impact?days=.
func (h *ReportsHandler) Impact(c *fiber.Ctx) error {
	rows, err := h.compliance.ImpactBreakdown(c.Context(), queryInt(c, "days", 30))
	if err != nil {
		return err
	}
	items := make([]dto.ImpactRowResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.ImpactRowResponse{
			DepartmentID:   row.DepartmentID,
			DepartmentName: row.DepartmentName,
			Breached:       row.BreachedCount,
			ImpactPercent:  row.ImpactPercent,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Exceptions GET /departments/:id/exceptions?service_key=&days=.
func (h *ReportsHandler) Exceptions(c *fiber.Ctx) error {
	var serviceKey *string
	if raw := c.Query("service_key"); raw != "" {
		serviceKey = &raw
	}
	outcomes, err := h.compliance.Exceptions(c.Context(), c.Params("id"), serviceKey, queryInt(c, "days", 30))
	if err != nil {
		return err
	}
	items := make([]dto.ExceptionResponse, 0, len(outcomes))
	for _, outcome := range outcomes {
		items = append(items, dto.ExceptionResponse{
			TicketID:     outcome.TicketID,
			DepartmentID: outcome.DepartmentID,
			ServiceKey:   outcome.ServiceKey,
			Outcome:      outcome.Outcome,
			DeadlineAt:   outcome.DeadlineAt,
			OccurredAt:   outcome.OccurredAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

func trendResponses(points []domain.TrendPoint) []dto.TrendPointResponse {
	items := make([]dto.TrendPointResponse, 0, len(points))
	for _, point := range points {
		items = append(items, dto.TrendPointResponse{
			Day:               point.Day.Format("2006-01-02"),
			WithinSLA:         point.CompletedWithinSLA,
			Breached:          point.BreachedSLA,
			Exempted:          point.SLAExempted,
			CompliancePercent: point.CompliancePercent,
		})
	}
	return items
}
