package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
)

type complianceFixture struct {
	snapshots  *repository.MemorySnapshotRepository
	service    *ComplianceService
	dispatcher events.Dispatcher
	recorded   []events.Event
}

func newComplianceFixture(t *testing.T) *complianceFixture {
	t.Helper()
	snapshots := repository.NewMemorySnapshotRepository()
	dispatcher := events.NewInMemoryDispatcher()
	f := &complianceFixture{snapshots: snapshots, dispatcher: dispatcher}
	f.service = NewComplianceService(ComplianceDependencies{
		SnapshotRepo: snapshots,
		Dispatcher:   dispatcher,
		Logger:       zap.NewNop(),
	})
	dispatcher.Subscribe(events.EventOutcomeRecorded, func(ctx context.Context, event events.Event) error {
		f.recorded = append(f.recorded, event)
		return nil
	})
	return f
}

func terminalTicket(id, departmentID string, completedAgo time.Duration) *domain.Ticket {
	completedAt := time.Now().Add(-completedAgo)
	return &domain.Ticket{
		ID:           id,
		DepartmentID: departmentID,
		ServiceKey:   "room_cleaning",
		Status:       domain.TicketStatusCompleted,
		CompletedAt:  &completedAt,
	}
}

func TestFoldTicketIdempotent(t *testing.T) {
	f := newComplianceFixture(t)
	ctx := context.Background()

	ticket := terminalTicket("t1", "dept-1", time.Hour)
	require.NoError(t, f.service.FoldTicket(ctx, ticket))
	require.NoError(t, f.service.FoldTicket(ctx, ticket))
	require.NoError(t, f.service.FoldTicket(ctx, ticket))

	// Re-delivered terminal transitions count once.
	assert.Len(t, f.recorded, 1)

	points, err := f.service.Trend(ctx, 7)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(1), points[0].CompletedWithinSLA)
}

func TestFoldTicketRejectsOpenTicket(t *testing.T) {
	f := newComplianceFixture(t)
	ticket := &domain.Ticket{ID: "t1", DepartmentID: "dept-1", Status: domain.TicketStatusInProgress}
	require.Error(t, f.service.FoldTicket(context.Background(), ticket))
}

func TestTrendCompliancePercent(t *testing.T) {
	f := newComplianceFixture(t)
	ctx := context.Background()

	// Eight timely completions, one breach, one exemption on the same day.
	start := time.Now().Add(-2 * time.Hour)
	policyID := "policy-1"
	for i := 0; i < 8; i++ {
		ticket := terminalTicket(string(rune('a'+i)), "dept-1", time.Hour)
		require.NoError(t, f.service.FoldTicket(ctx, ticket))
	}

	breachedAt := start.Add(90 * time.Minute)
	breached := &domain.Ticket{
		ID:              "breached",
		DepartmentID:    "dept-1",
		ServiceKey:      "room_cleaning",
		Status:          domain.TicketStatusCompleted,
		PolicyVersionID: &policyID,
		ClockStartAt:    &start,
		CompletedAt:     &breachedAt,
	}
	// No policy service wired, so outcome falls back to the pause-adjusted
	// deadline check being skipped; fold directly through the repository to
	// pin the breached outcome.
	_, err := f.snapshots.FoldOutcome(ctx, &domain.TicketOutcome{
		TicketID:     breached.ID,
		DepartmentID: breached.DepartmentID,
		ServiceKey:   breached.ServiceKey,
		Outcome:      domain.OutcomeBreached,
		OccurredAt:   breachedAt,
	})
	require.NoError(t, err)

	cancelledAt := time.Now().Add(-time.Hour)
	cancelled := &domain.Ticket{
		ID:           "cancelled",
		DepartmentID: "dept-1",
		ServiceKey:   "room_cleaning",
		Status:       domain.TicketStatusCancelled,
		CancelledAt:  &cancelledAt,
	}
	require.NoError(t, f.service.FoldTicket(ctx, cancelled))

	points, err := f.service.Trend(ctx, 7)
	require.NoError(t, err)
	require.Len(t, points, 1)
	point := points[0]
	assert.Equal(t, int64(8), point.CompletedWithinSLA)
	assert.Equal(t, int64(1), point.BreachedSLA)
	assert.Equal(t, int64(1), point.SLAExempted)
	// Exempted tickets stay out of the denominator: 8/9.
	assert.InDelta(t, 88.9, point.CompliancePercent, 0.1)
}

func TestImpactBreakdown(t *testing.T) {
	f := newComplianceFixture(t)
	ctx := context.Background()

	fold := func(id, dept string, outcome domain.SLAOutcome) {
		_, err := f.snapshots.FoldOutcome(ctx, &domain.TicketOutcome{
			TicketID:     id,
			DepartmentID: dept,
			ServiceKey:   "misc",
			Outcome:      outcome,
			OccurredAt:   time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
	}

	// Twenty outcomes total: maintenance breaches 3 (15%), housekeeping 2 (10%).
	for i := 0; i < 3; i++ {
		fold("mnt-b"+string(rune('0'+i)), "maintenance", domain.OutcomeBreached)
	}
	for i := 0; i < 2; i++ {
		fold("hsk-b"+string(rune('0'+i)), "housekeeping", domain.OutcomeBreached)
	}
	for i := 0; i < 15; i++ {
		fold("ok-"+string(rune('a'+i)), "frontdesk", domain.OutcomeWithinSLA)
	}

	rows, err := f.service.ImpactBreakdown(ctx, 7)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "maintenance", rows[0].DepartmentID)
	assert.InDelta(t, 15.0, rows[0].ImpactPercent, 0.01)
	assert.Equal(t, "housekeeping", rows[1].DepartmentID)
	assert.InDelta(t, 10.0, rows[1].ImpactPercent, 0.01)
}

func TestExceptionsListing(t *testing.T) {
	f := newComplianceFixture(t)
	ctx := context.Background()

	fold := func(id, dept, serviceKey string, outcome domain.SLAOutcome) {
		_, err := f.snapshots.FoldOutcome(ctx, &domain.TicketOutcome{
			TicketID:     id,
			DepartmentID: dept,
			ServiceKey:   serviceKey,
			Outcome:      outcome,
			OccurredAt:   time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
	}

	fold("b1", "dept-1", "hvac", domain.OutcomeBreached)
	fold("b2", "dept-1", "plumbing", domain.OutcomeBreached)
	fold("ok", "dept-1", "hvac", domain.OutcomeWithinSLA)
	fold("other", "dept-2", "hvac", domain.OutcomeBreached)

	all, err := f.service.Exceptions(ctx, "dept-1", nil, 7)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	hvac := "hvac"
	filtered, err := f.service.Exceptions(ctx, "dept-1", &hvac, 7)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "b1", filtered[0].TicketID)
}
