package domain

import "time"

// TicketTransition is an immutable audit entry for one lifecycle change.
type TicketTransition struct {
	ID         string
	TicketID   string
	FromStatus TicketStatus
	ToStatus   TicketStatus
	Comment    string
	CreatedAt  time.Time
}
