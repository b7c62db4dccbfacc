package domain

import "time"

// StartTrigger enumerates the lifecycle transition at which a ticket's
// SLA clock starts.
type StartTrigger string

const (
	StartTriggerOnCreate StartTrigger = "ON_CREATE"
	StartTriggerOnAssign StartTrigger = "ON_ASSIGN"
	StartTriggerOnAccept StartTrigger = "ON_ACCEPT"
)

// IsValid reports whether the trigger is one of the enumerated values.
func (t StartTrigger) IsValid() bool {
	switch t {
	case StartTriggerOnCreate, StartTriggerOnAssign, StartTriggerOnAccept:
		return true
	}
	return false
}

// SLAPolicy is an effective-dated SLA target for a department. Policies are
// immutable once superseded: setting a new policy stamps ValidTo on the
// previous current version and inserts a fresh row.
type SLAPolicy struct {
	ID              string
	DepartmentID    string
	TargetMinutes   int
	WarnMinutes     int
	EscalateMinutes int
	StartTrigger    StartTrigger
	ValidFrom       time.Time
	ValidTo         *time.Time
	CreatedAt       time.Time
}

// IsCurrent reports whether the policy version is the department's current one.
func (p *SLAPolicy) IsCurrent() bool {
	return p.ValidTo == nil
}

// Target returns the completion target as a duration.
func (p *SLAPolicy) Target() time.Duration {
	return time.Duration(p.TargetMinutes) * time.Minute
}

// Warn returns the at-risk window before the deadline.
func (p *SLAPolicy) Warn() time.Duration {
	return time.Duration(p.WarnMinutes) * time.Minute
}

// Escalate returns the buffer past the deadline before supervisor escalation.
func (p *SLAPolicy) Escalate() time.Duration {
	return time.Duration(p.EscalateMinutes) * time.Minute
}
