package dto

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TrendPointResponse is one day of compliance history.
type TrendPointResponse struct {
	Day               string  `json:"day"`
	WithinSLA         int64   `json:"within_sla"`
	Breached          int64   `json:"breached"`
	Exempted          int64   `json:"exempted"`
	CompliancePercent float64 `json:"compliance_percent"`
}

// ImpactRowResponse ranks one department's share of breaches.
type ImpactRowResponse struct {
	DepartmentID   string  `json:"department_id"`
	DepartmentName string  `json:"department_name"`
	Breached       int64   `json:"breached"`
	ImpactPercent  float64 `json:"impact_percent"`
}

// ExceptionResponse is one breached-outcome record.
type ExceptionResponse struct {
	TicketID     string            `json:"ticket_id"`
	DepartmentID string            `json:"department_id"`
	ServiceKey   string            `json:"service_key"`
	Outcome      domain.SLAOutcome `json:"outcome"`
	DeadlineAt   *time.Time        `json:"deadline_at,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// BlockedTicketResponse is one currently paused ticket.
type BlockedTicketResponse struct {
	TicketID       string  `json:"ticket_id"`
	DisplayID      string  `json:"display_id"`
	Title          string  `json:"title"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	BlockedSeconds int64   `json:"blocked_seconds"`
	BlockReason    string  `json:"block_reason"`
}

// AtRiskTicketResponse is one ticket nearing its deadline.
type AtRiskTicketResponse struct {
	TicketID         string              `json:"ticket_id"`
	DisplayID        string              `json:"display_id"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	TargetSeconds    int64               `json:"target_seconds"`
	AssigneeID       *string             `json:"assignee_id,omitempty"`
	Status           domain.TicketStatus `json:"status"`
}

// SweepResultResponse summarizes one admin-triggered rebuild.
type SweepResultResponse struct {
	Evaluated  int    `json:"evaluated"`
	Changed    int    `json:"changed"`
	Failed     int    `json:"failed"`
	DurationMS int64  `json:"duration_ms"`
	StartedBy  string `json:"started_by,omitempty"`
}
