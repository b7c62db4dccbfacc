package events

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketTransitioned     EventType = "ticket_transitioned"
	EventClassificationChanged  EventType = "classification_changed"
	EventSLABreached            EventType = "sla_breached"
	EventSLAEscalated           EventType = "sla_escalated"
	EventOutcomeRecorded        EventType = "outcome_recorded"
	EventPolicyVersionPublished EventType = "policy_version_published"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketTransitionedPayload payload.
type TicketTransitionedPayload struct {
	DepartmentID string              `json:"department_id"`
	OldStatus    domain.TicketStatus `json:"old_status"`
	NewStatus    domain.TicketStatus `json:"new_status"`
	BlockReason  *string             `json:"block_reason,omitempty"`
	Comment      string              `json:"comment,omitempty"`
}

// ClassificationChangedPayload payload. Emitted only when the classification
// actually changed since the last observation, never on raw polling ticks.
type ClassificationChangedPayload struct {
	DepartmentID      string                 `json:"department_id"`
	OldClassification *domain.Classification `json:"old_classification,omitempty"`
	NewClassification domain.Classification  `json:"new_classification"`
	DeadlineAt        *time.Time             `json:"deadline_at,omitempty"`
	At                time.Time              `json:"at"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	DepartmentID string     `json:"department_id"`
	DeadlineAt   *time.Time `json:"deadline_at,omitempty"`
	At           time.Time  `json:"at"`
}

// SLAEscalatedPayload payload, intended for supervisor notification.
type SLAEscalatedPayload struct {
	DepartmentID string     `json:"department_id"`
	DeadlineAt   *time.Time `json:"deadline_at,omitempty"`
	EscalateAt   *time.Time `json:"escalate_at,omitempty"`
	At           time.Time  `json:"at"`
}

// OutcomeRecordedPayload payload.
type OutcomeRecordedPayload struct {
	DepartmentID string            `json:"department_id"`
	Outcome      domain.SLAOutcome `json:"outcome"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// PolicyVersionPublishedPayload payload.
type PolicyVersionPublishedPayload struct {
	DepartmentID    string `json:"department_id"`
	PolicyVersionID string `json:"policy_version_id"`
	TargetMinutes   int    `json:"target_minutes"`
}
