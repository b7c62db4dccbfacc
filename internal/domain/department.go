package domain

import "time"

// Department represents an operational unit of the hotel (housekeeping,
// front desk, kitchen). Each active department owns exactly one current
// SLA policy at any time.
type Department struct {
	ID        string
	Code      string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
