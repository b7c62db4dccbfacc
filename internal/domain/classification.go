package domain

import "time"

// Classification enumerates the SLA states a ticket can be observed in.
type Classification string

const (
	ClassificationOnTrack   Classification = "ON_TRACK"
	ClassificationAtRisk    Classification = "AT_RISK"
	ClassificationBreached  Classification = "BREACHED"
	ClassificationEscalated Classification = "ESCALATED"
	ClassificationBlocked   Classification = "BLOCKED"
	ClassificationExempt    Classification = "EXEMPT"
)

// SLAClockState is the derived timing view of a ticket under its pinned
// policy. It is recomputed on demand and cached, never stored as source of
// truth.
type SLAClockState struct {
	TicketID        string         `json:"ticket_id"`
	PolicyVersionID string         `json:"policy_version_id,omitempty"`
	ClockStartAt    *time.Time     `json:"clock_start_at,omitempty"`
	DeadlineAt      *time.Time     `json:"deadline_at,omitempty"`
	WarnAt          *time.Time     `json:"warn_at,omitempty"`
	EscalateAt      *time.Time     `json:"escalate_at,omitempty"`
	PausedFor       time.Duration  `json:"paused_for"`
	Elapsed         time.Duration  `json:"elapsed"`
	Remaining       time.Duration  `json:"remaining"`
	Classification  Classification `json:"classification"`
	ComputedAt      time.Time      `json:"computed_at"`
}
