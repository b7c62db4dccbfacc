package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// SetPolicyRequest payload.
type SetPolicyRequest struct {
	TargetMinutes   int                 `json:"target_minutes"`
	WarnMinutes     int                 `json:"warn_minutes"`
	EscalateMinutes int                 `json:"escalate_minutes"`
	StartTrigger    domain.StartTrigger `json:"start_trigger"`
}

// PolicyResponse response.
type PolicyResponse struct {
	ID              string              `json:"id"`
	DepartmentID    string              `json:"department_id"`
	TargetMinutes   int                 `json:"target_minutes"`
	WarnMinutes     int                 `json:"warn_minutes"`
	EscalateMinutes int                 `json:"escalate_minutes"`
	StartTrigger    domain.StartTrigger `json:"start_trigger"`
	ValidFrom       time.Time           `json:"valid_from"`
	ValidTo         *time.Time          `json:"valid_to,omitempty"`
	Current         bool                `json:"current"`
}

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// DepartmentResponse response.
type DepartmentResponse struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
