package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// RegisterTicketRequest is the payload for an inbound ticket-created event
// from the ticketing system.
type RegisterTicketRequest struct {
	DepartmentID string  `json:"department_id"`
	ServiceKey   string  `json:"service_key"`
	Title        string  `json:"title"`
	AssigneeID   *string `json:"assignee_id"`
}

// AssignRequest payload.
type AssignRequest struct {
	AssigneeID string `json:"assignee_id"`
}

// BlockRequest payload.
type BlockRequest struct {
	Reason string `json:"reason"`
}

// CancelRequest payload.
type CancelRequest struct {
	Comment string `json:"comment"`
}

// TicketResponse response.
type TicketResponse struct {
	ID                 string                 `json:"id"`
	DisplayID          string                 `json:"display_id"`
	DepartmentID       string                 `json:"department_id"`
	ServiceKey         string                 `json:"service_key"`
	Title              string                 `json:"title"`
	AssigneeID         *string                `json:"assignee_id,omitempty"`
	Status             domain.TicketStatus    `json:"status"`
	BlockReason        *string                `json:"block_reason,omitempty"`
	PolicyVersionID    *string                `json:"policy_version_id,omitempty"`
	LastClassification *domain.Classification `json:"last_classification,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	CompletedAt        *time.Time             `json:"completed_at,omitempty"`
	CancelledAt        *time.Time             `json:"cancelled_at,omitempty"`
}

// TicketDetailResponse adds the derived clock state to the ticket view.
type TicketDetailResponse struct {
	TicketResponse
	Clock ClockStateResponse `json:"clock"`
}

// ClockStateResponse is the derived SLA timing view.
type ClockStateResponse struct {
	PolicyVersionID  string                `json:"policy_version_id,omitempty"`
	ClockStartAt     *time.Time            `json:"clock_start_at,omitempty"`
	DeadlineAt       *time.Time            `json:"deadline_at,omitempty"`
	WarnAt           *time.Time            `json:"warn_at,omitempty"`
	EscalateAt       *time.Time            `json:"escalate_at,omitempty"`
	PausedSeconds    int64                 `json:"paused_seconds"`
	ElapsedSeconds   int64                 `json:"elapsed_seconds"`
	RemainingSeconds int64                 `json:"remaining_seconds"`
	Classification   domain.Classification `json:"classification"`
	ComputedAt       time.Time             `json:"computed_at"`
}

// TransitionResponse is one audit-trail entry.
type TransitionResponse struct {
	ID         string    `json:"id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
