package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-engine/internal/api/dto"
	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/service"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// AdminHandler serves department and policy administration.
type AdminHandler struct {
	departments *service.DepartmentService
	policies    *service.PolicyService
	escalation  *service.EscalationService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(departments *service.DepartmentService, policies *service.PolicyService, escalation *service.EscalationService) *AdminHandler {
	return &AdminHandler{departments: departments, policies: policies, escalation: escalation}
}

// CreateDepartment POST /admin/departments.
func (h *AdminHandler) CreateDepartment(c *fiber.Ctx) error {
	var req dto.CreateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	dept, err := h.departments.Create(c.Context(), req.Code, req.Name)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// ListDepartments GET /admin/departments.
func (h *AdminHandler) ListDepartments(c *fiber.Ctx) error {
	depts, err := h.departments.ListActive(c.Context())
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		items = append(items, departmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeactivateDepartment DELETE /admin/departments/:id.
func (h *AdminHandler) DeactivateDepartment(c *fiber.Ctx) error {
	dept, err := h.departments.Deactivate(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": departmentResponse(dept)})
}

// SetPolicy PUT /admin/departments/:id/policy.
func (h *AdminHandler) SetPolicy(c *fiber.Ctx) error {
	var req dto.SetPolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	policy, err := h.policies.SetPolicy(c.Context(), c.Params("id"), service.PolicyInput{
		TargetMinutes:   req.TargetMinutes,
		WarnMinutes:     req.WarnMinutes,
		EscalateMinutes: req.EscalateMinutes,
		StartTrigger:    req.StartTrigger,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// GetCurrentPolicy GET /admin/departments/:id/policy.
func (h *AdminHandler) GetCurrentPolicy(c *fiber.Ctx) error {
	policy, err := h.policies.GetCurrentPolicy(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// PolicyHistory GET /admin/departments/:id/policy/history.
func (h *AdminHandler) PolicyHistory(c *fiber.Ctx) error {
	policies, err := h.policies.History(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// RebuildClocks POST /admin/sla/rebuild. Refreshes derived clock state for
// every open ticket; pinned policy versions are not touched.
func (h *AdminHandler) RebuildClocks(c *fiber.Ctx) error {
	result, err := h.escalation.RebuildOpenTickets(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResultResponse{
		Evaluated:  result.Evaluated,
		Changed:    result.Changed,
		Failed:     result.Failed,
		DurationMS: result.Duration.Milliseconds(),
	}})
}

func departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:        dept.ID,
		Code:      dept.Code,
		Name:      dept.Name,
		IsActive:  dept.IsActive,
		CreatedAt: dept.CreatedAt,
	}
}

func policyResponse(policy *domain.SLAPolicy) dto.PolicyResponse {
	return dto.PolicyResponse{
		ID:              policy.ID,
		DepartmentID:    policy.DepartmentID,
		TargetMinutes:   policy.TargetMinutes,
		WarnMinutes:     policy.WarnMinutes,
		EscalateMinutes: policy.EscalateMinutes,
		StartTrigger:    policy.StartTrigger,
		ValidFrom:       policy.ValidFrom,
		ValidTo:         policy.ValidTo,
		Current:         policy.IsCurrent(),
	}
}
