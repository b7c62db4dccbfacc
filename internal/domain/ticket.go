package domain

import "time"

// TicketStatus enumerates lifecycle states for operational tickets.
type TicketStatus string

const (
	TicketStatusCreated    TicketStatus = "CREATED"
	TicketStatusAssigned   TicketStatus = "ASSIGNED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusBlocked    TicketStatus = "BLOCKED"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
)

// IsTerminal reports whether the status ends the ticket lifecycle.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled
}

// IsOpen reports whether the ticket still accrues SLA time.
func (s TicketStatus) IsOpen() bool {
	return !s.IsTerminal()
}

// BlockInterval records one pause of a ticket's SLA clock. EndedAt is nil
// while the ticket is still blocked.
type BlockInterval struct {
	ID        string
	TicketID  string
	Reason    string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Duration returns the length of a closed interval, zero for an open one.
func (b BlockInterval) Duration() time.Duration {
	if b.EndedAt == nil {
		return 0
	}
	d := b.EndedAt.Sub(b.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Ticket is the SLA engine's view of an operational ticket. The ticketing
// collaborator owns assignment and content; this aggregate owns lifecycle
// timestamps, the pinned policy version, and block intervals.
type Ticket struct {
	ID           string
	DisplayID    string
	DepartmentID string
	ServiceKey   string
	Title        string
	AssigneeID   *string
	Status       TicketStatus
	BlockReason  *string

	// PolicyVersionID and ClockStartAt are captured once, at the transition
	// named by the policy's start trigger. Later policy edits never move them.
	PolicyVersionID *string
	ClockStartAt    *time.Time

	LastClassification *Classification

	CreatedAt   time.Time
	UpdatedAt   time.Time
	AssignedAt  *time.Time
	AcceptedAt  *time.Time
	StartedAt   *time.Time
	BlockedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	BlockIntervals []BlockInterval
}

// PausedDuration sums all completed block intervals. An open interval is
// excluded: its length is unknown until the ticket is unblocked.
func (t *Ticket) PausedDuration() time.Duration {
	var total time.Duration
	for _, interval := range t.BlockIntervals {
		total += interval.Duration()
	}
	return total
}

// OpenBlockInterval returns the current open pause, if any.
func (t *Ticket) OpenBlockInterval() *BlockInterval {
	for i := range t.BlockIntervals {
		if t.BlockIntervals[i].EndedAt == nil {
			return &t.BlockIntervals[i]
		}
	}
	return nil
}

// TriggerTime returns the timestamp at which the given start trigger fired,
// or nil if that transition has not happened yet.
func (t *Ticket) TriggerTime(trigger StartTrigger) *time.Time {
	switch trigger {
	case StartTriggerOnCreate:
		created := t.CreatedAt
		return &created
	case StartTriggerOnAssign:
		return t.AssignedAt
	case StartTriggerOnAccept:
		return t.AcceptedAt
	}
	return nil
}
