package domain

import "time"

// SLAOutcome classifies how a ticket left the open set.
type SLAOutcome string

const (
	OutcomeWithinSLA SLAOutcome = "WITHIN_SLA"
	OutcomeBreached  SLAOutcome = "BREACHED"
	OutcomeExempted  SLAOutcome = "EXEMPTED"
)

// TicketOutcome is the per-ticket terminal record. It is the idempotency key
// for compliance folding: a ticket_id can be recorded exactly once.
type TicketOutcome struct {
	TicketID     string
	DepartmentID string
	ServiceKey   string
	Outcome      SLAOutcome
	DeadlineAt   *time.Time
	OccurredAt   time.Time
	RecordedAt   time.Time
}

// ComplianceBucket is a daily per-department compliance tally.
type ComplianceBucket struct {
	DepartmentID       string
	Day                time.Time
	CompletedWithinSLA int64
	BreachedSLA        int64
	SLAExempted        int64
}

// CompliancePercent is the on-time ratio over non-exempted completions.
// An empty denominator reads as fully compliant.
func (b ComplianceBucket) CompliancePercent() float64 {
	denominator := b.CompletedWithinSLA + b.BreachedSLA
	if denominator == 0 {
		return 100
	}
	return float64(b.CompletedWithinSLA) / float64(denominator) * 100
}

// TrendPoint is one day of the hotel-wide compliance trend.
type TrendPoint struct {
	Day                time.Time
	CompletedWithinSLA int64
	BreachedSLA        int64
	SLAExempted        int64
	CompliancePercent  float64
}

// ImpactRow attributes compliance loss in a window to one department.
type ImpactRow struct {
	DepartmentID   string
	DepartmentName string
	BreachedCount  int64
	ImpactPercent  float64
}
