// Package sla computes derived SLA clock state for tickets. All functions are
// pure: the same ticket snapshot, policy version and reference time always
// yield the same result.
package sla

import (
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Compute derives the SLA clock state for a ticket under its pinned policy.
//
// The deadline is the clock start plus the policy target plus the total
// duration of completed block intervals: blocked time never counts against
// the SLA. While a ticket is BLOCKED its open pause interval has no end yet,
// so the effective deadline is indeterminate and the classification is
// BLOCKED regardless of elapsed time.
func Compute(ticket *domain.Ticket, policy *domain.SLAPolicy, now time.Time) domain.SLAClockState {
	state := domain.SLAClockState{
		TicketID:   ticket.ID,
		ComputedAt: now,
	}
	if policy != nil {
		state.PolicyVersionID = policy.ID
	}

	if ticket.Status == domain.TicketStatusCancelled {
		state.Classification = domain.ClassificationExempt
		return state
	}

	if ticket.Status == domain.TicketStatusBlocked {
		state.PausedFor = ticket.PausedDuration()
		state.Classification = domain.ClassificationBlocked
		return state
	}

	// The clock starts at the transition named by the policy's start trigger.
	// Before that transition (or without a pinned policy) there is no
	// deadline and the ticket is trivially on track.
	if policy == nil {
		state.Classification = domain.ClassificationOnTrack
		return state
	}
	start := ticket.ClockStartAt
	if start == nil {
		start = ticket.TriggerTime(policy.StartTrigger)
	}
	if start == nil {
		state.Classification = domain.ClassificationOnTrack
		return state
	}

	paused := ticket.PausedDuration()
	deadline := start.Add(policy.Target()).Add(paused)
	warnAt := deadline.Add(-policy.Warn())
	escalateAt := deadline.Add(policy.Escalate())

	// Completed tickets are judged at their completion instant, not at now.
	reference := now
	if ticket.Status == domain.TicketStatusCompleted && ticket.CompletedAt != nil {
		reference = *ticket.CompletedAt
	}

	state.ClockStartAt = start
	state.DeadlineAt = &deadline
	state.WarnAt = &warnAt
	state.EscalateAt = &escalateAt
	state.PausedFor = paused
	state.Elapsed = reference.Sub(*start) - paused
	if state.Elapsed < 0 {
		state.Elapsed = 0
	}
	state.Remaining = deadline.Sub(reference)
	state.Classification = classify(reference, warnAt, deadline, escalateAt)
	return state
}

// MetOutcome classifies a terminal ticket for compliance folding. Cancelled
// tickets are exempted; completed tickets are within SLA when they finished
// at or before the pause-adjusted deadline. A ticket whose clock never
// started cannot have breached.
func MetOutcome(ticket *domain.Ticket, policy *domain.SLAPolicy) domain.SLAOutcome {
	if ticket.Status == domain.TicketStatusCancelled {
		return domain.OutcomeExempted
	}
	if policy == nil || ticket.ClockStartAt == nil || ticket.CompletedAt == nil {
		return domain.OutcomeWithinSLA
	}
	deadline := ticket.ClockStartAt.Add(policy.Target()).Add(ticket.PausedDuration())
	if ticket.CompletedAt.After(deadline) {
		return domain.OutcomeBreached
	}
	return domain.OutcomeWithinSLA
}

func classify(reference, warnAt, deadline, escalateAt time.Time) domain.Classification {
	switch {
	case reference.After(escalateAt):
		return domain.ClassificationEscalated
	case reference.After(deadline):
		return domain.ClassificationBreached
	case !reference.Before(warnAt):
		return domain.ClassificationAtRisk
	default:
		return domain.ClassificationOnTrack
	}
}
