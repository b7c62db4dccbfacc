package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

func testPolicy() *domain.SLAPolicy {
	return &domain.SLAPolicy{
		ID:              "policy-1",
		DepartmentID:    "dept-1",
		TargetMinutes:   30,
		WarnMinutes:     10,
		EscalateMinutes: 15,
		StartTrigger:    domain.StartTriggerOnAssign,
	}
}

func assignedTicket(start time.Time) *domain.Ticket {
	policyID := "policy-1"
	return &domain.Ticket{
		ID:              "ticket-1",
		DepartmentID:    "dept-1",
		Status:          domain.TicketStatusInProgress,
		PolicyVersionID: &policyID,
		ClockStartAt:    &start,
		AssignedAt:      &start,
	}
}

func TestComputeClassifications(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := testPolicy()

	t.Run("on track well before warn window", func(t *testing.T) {
		state := Compute(assignedTicket(start), policy, start.Add(10*time.Minute))
		assert.Equal(t, domain.ClassificationOnTrack, state.Classification)
		assert.Equal(t, 10*time.Minute, state.Elapsed)
		assert.Equal(t, 20*time.Minute, state.Remaining)
	})

	t.Run("at risk inside warn window", func(t *testing.T) {
		state := Compute(assignedTicket(start), policy, start.Add(25*time.Minute))
		assert.Equal(t, domain.ClassificationAtRisk, state.Classification)
	})

	t.Run("breached past deadline", func(t *testing.T) {
		state := Compute(assignedTicket(start), policy, start.Add(35*time.Minute))
		assert.Equal(t, domain.ClassificationBreached, state.Classification)
		assert.Equal(t, -5*time.Minute, state.Remaining)
	})

	t.Run("escalated past escalation buffer", func(t *testing.T) {
		state := Compute(assignedTicket(start), policy, start.Add(46*time.Minute))
		assert.Equal(t, domain.ClassificationEscalated, state.Classification)
	})

	t.Run("exactly at deadline is not breached", func(t *testing.T) {
		state := Compute(assignedTicket(start), policy, start.Add(30*time.Minute))
		assert.Equal(t, domain.ClassificationAtRisk, state.Classification)
	})
}

func TestComputePauseExtendsDeadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := testPolicy()

	ticket := assignedTicket(start)
	blockedAt := start.Add(20 * time.Minute)
	unblockedAt := start.Add(40 * time.Minute)
	ticket.BlockIntervals = []domain.BlockInterval{
		{ID: "b1", TicketID: ticket.ID, Reason: "awaiting part", StartedAt: blockedAt, EndedAt: &unblockedAt},
	}

	state := Compute(ticket, policy, start.Add(45*time.Minute))

	require.NotNil(t, state.DeadlineAt)
	assert.Equal(t, start.Add(50*time.Minute), *state.DeadlineAt)
	assert.Equal(t, 25*time.Minute, state.Elapsed)
	assert.NotEqual(t, domain.ClassificationBreached, state.Classification)
	assert.NotEqual(t, domain.ClassificationEscalated, state.Classification)
}

func TestComputeBlockedAlwaysClassifiesBlocked(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := testPolicy()

	ticket := assignedTicket(start)
	ticket.Status = domain.TicketStatusBlocked
	blockedAt := start.Add(5 * time.Minute)
	ticket.BlockIntervals = []domain.BlockInterval{
		{ID: "b1", TicketID: ticket.ID, Reason: "guest unavailable", StartedAt: blockedAt},
	}

	// Far past what would be the deadline; the open pause makes the
	// effective deadline indeterminate.
	state := Compute(ticket, policy, start.Add(6*time.Hour))
	assert.Equal(t, domain.ClassificationBlocked, state.Classification)
	assert.Nil(t, state.DeadlineAt)
}

func TestComputeCancelledIsExempt(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ticket := assignedTicket(start)
	ticket.Status = domain.TicketStatusCancelled

	state := Compute(ticket, testPolicy(), start.Add(2*time.Hour))
	assert.Equal(t, domain.ClassificationExempt, state.Classification)
}

func TestComputeNoClockStartIsOnTrack(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("no pinned policy", func(t *testing.T) {
		ticket := &domain.Ticket{ID: "t", Status: domain.TicketStatusCreated}
		state := Compute(ticket, nil, now)
		assert.Equal(t, domain.ClassificationOnTrack, state.Classification)
		assert.Nil(t, state.DeadlineAt)
	})

	t.Run("trigger not reached yet", func(t *testing.T) {
		policy := testPolicy()
		policy.StartTrigger = domain.StartTriggerOnAccept
		ticket := &domain.Ticket{ID: "t", Status: domain.TicketStatusAssigned}
		state := Compute(ticket, policy, now)
		assert.Equal(t, domain.ClassificationOnTrack, state.Classification)
	})
}

func TestComputeCompletedJudgedAtCompletion(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := testPolicy()

	ticket := assignedTicket(start)
	ticket.Status = domain.TicketStatusCompleted
	completedAt := start.Add(15 * time.Minute)
	ticket.CompletedAt = &completedAt

	// Evaluating hours later must not reclassify a timely completion.
	state := Compute(ticket, policy, start.Add(8*time.Hour))
	assert.Equal(t, domain.ClassificationOnTrack, state.Classification)
	assert.Equal(t, 15*time.Minute, state.Elapsed)
}

func TestMetOutcome(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := testPolicy()

	t.Run("completed before deadline", func(t *testing.T) {
		ticket := assignedTicket(start)
		ticket.Status = domain.TicketStatusCompleted
		completedAt := start.Add(29 * time.Minute)
		ticket.CompletedAt = &completedAt
		assert.Equal(t, domain.OutcomeWithinSLA, MetOutcome(ticket, policy))
	})

	t.Run("completed after deadline", func(t *testing.T) {
		ticket := assignedTicket(start)
		ticket.Status = domain.TicketStatusCompleted
		completedAt := start.Add(31 * time.Minute)
		ticket.CompletedAt = &completedAt
		assert.Equal(t, domain.OutcomeBreached, MetOutcome(ticket, policy))
	})

	t.Run("pause keeps late completion within sla", func(t *testing.T) {
		ticket := assignedTicket(start)
		ticket.Status = domain.TicketStatusCompleted
		blockedAt := start.Add(10 * time.Minute)
		unblockedAt := start.Add(30 * time.Minute)
		ticket.BlockIntervals = []domain.BlockInterval{
			{ID: "b1", TicketID: ticket.ID, Reason: "parts", StartedAt: blockedAt, EndedAt: &unblockedAt},
		}
		completedAt := start.Add(45 * time.Minute)
		ticket.CompletedAt = &completedAt
		assert.Equal(t, domain.OutcomeWithinSLA, MetOutcome(ticket, policy))
	})

	t.Run("cancelled is exempted", func(t *testing.T) {
		ticket := assignedTicket(start)
		ticket.Status = domain.TicketStatusCancelled
		assert.Equal(t, domain.OutcomeExempted, MetOutcome(ticket, policy))
	})

	t.Run("clock never started cannot breach", func(t *testing.T) {
		ticket := &domain.Ticket{ID: "t", Status: domain.TicketStatusCompleted}
		completedAt := start.Add(10 * time.Hour)
		ticket.CompletedAt = &completedAt
		assert.Equal(t, domain.OutcomeWithinSLA, MetOutcome(ticket, policy))
	})
}
