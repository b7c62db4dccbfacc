package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/repository"
)

type escalationFixture struct {
	tickets    *repository.MemoryTicketRepository
	policies   *PolicyService
	dispatcher events.Dispatcher
	service    *EscalationService
	department *domain.Department
	policy     *domain.SLAPolicy

	changed   []events.Event
	breached  []events.Event
	escalated []events.Event
}

func newEscalationFixture(t *testing.T) *escalationFixture {
	t.Helper()

	departments := repository.NewMemoryDepartmentRepository()
	dept := &domain.Department{Code: "MNT", Name: "Maintenance", IsActive: true}
	require.NoError(t, departments.Create(context.Background(), dept))

	dispatcher := events.NewInMemoryDispatcher()
	policies := NewPolicyService(PolicyDependencies{
		DepartmentRepo: departments,
		PolicyRepo:     repository.NewMemoryPolicyRepository(),
		Dispatcher:     dispatcher,
		Logger:         zap.NewNop(),
	})
	policy, err := policies.SetPolicy(context.Background(), dept.ID, PolicyInput{
		TargetMinutes:   30,
		WarnMinutes:     10,
		EscalateMinutes: 15,
		StartTrigger:    domain.StartTriggerOnAssign,
	})
	require.NoError(t, err)

	tickets := repository.NewMemoryTicketRepository()
	f := &escalationFixture{
		tickets:    tickets,
		policies:   policies,
		dispatcher: dispatcher,
		department: dept,
		policy:     policy,
	}
	f.service = NewEscalationService(EscalationDependencies{
		TicketRepo: tickets,
		Policies:   policies,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
		Logger:     zap.NewNop(),
		Workers:    4,
	})

	dispatcher.Subscribe(events.EventClassificationChanged, func(ctx context.Context, event events.Event) error {
		f.changed = append(f.changed, event)
		return nil
	})
	dispatcher.Subscribe(events.EventSLABreached, func(ctx context.Context, event events.Event) error {
		f.breached = append(f.breached, event)
		return nil
	})
	dispatcher.Subscribe(events.EventSLAEscalated, func(ctx context.Context, event events.Event) error {
		f.escalated = append(f.escalated, event)
		return nil
	})
	return f
}

func (f *escalationFixture) seedTicket(t *testing.T, status domain.TicketStatus, clockAge time.Duration) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		DisplayID:       generateDisplayID(),
		DepartmentID:    f.department.ID,
		ServiceKey:      "plumbing",
		Title:           "leaking faucet",
		Status:          status,
		PolicyVersionID: &f.policy.ID,
	}
	if clockAge > 0 {
		start := time.Now().Add(-clockAge)
		ticket.ClockStartAt = &start
		ticket.AssignedAt = &start
	}
	require.NoError(t, f.tickets.Create(context.Background(), ticket))
	return ticket
}

func TestSweepClassifiesAndEmitsOnChange(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	onTrack := f.seedTicket(t, domain.TicketStatusInProgress, 5*time.Minute)
	breached := f.seedTicket(t, domain.TicketStatusInProgress, 35*time.Minute)
	escalated := f.seedTicket(t, domain.TicketStatusInProgress, 50*time.Minute)

	result, err := f.service.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Evaluated)
	assert.Equal(t, 3, result.Changed)
	assert.Equal(t, 0, result.Failed)

	// Every first evaluation transitions from unset to a classification.
	assert.Len(t, f.changed, 3)
	require.Len(t, f.breached, 1)
	assert.Equal(t, breached.ID, f.breached[0].TicketID)
	require.Len(t, f.escalated, 1)
	assert.Equal(t, escalated.ID, f.escalated[0].TicketID)

	stored, err := f.tickets.GetByID(ctx, onTrack.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastClassification)
	assert.Equal(t, domain.ClassificationOnTrack, *stored.LastClassification)
}

func TestSweepDeliversEventsOneAtATime(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		f.seedTicket(t, domain.TicketStatusInProgress, 35*time.Minute)
	}

	// Subscribers are written single-threaded, so the sweep must never invoke
	// them from more than one goroutine at once.
	var inFlight, peak int32
	f.dispatcher.Subscribe(events.EventSLABreached, func(ctx context.Context, event events.Event) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			seen := atomic.LoadInt32(&peak)
			if n <= seen || atomic.CompareAndSwapInt32(&peak, seen, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	})

	result, err := f.service.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, result.Changed)
	require.Len(t, f.breached, 12)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestSweepEmitsNothingWhenUnchanged(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	f.seedTicket(t, domain.TicketStatusInProgress, 35*time.Minute)

	_, err := f.service.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, f.changed, 1)
	require.Len(t, f.breached, 1)

	// Second pass observes the same classification and stays silent.
	result, err := f.service.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Equal(t, 0, result.Changed)
	assert.Len(t, f.changed, 1)
	assert.Len(t, f.breached, 1)
}

func TestSweepSkipsTerminalTickets(t *testing.T) {
	f := newEscalationFixture(t)

	done := f.seedTicket(t, domain.TicketStatusCompleted, 50*time.Minute)
	_ = done

	result, err := f.service.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Evaluated)
	assert.Empty(t, f.changed)
}

func TestSweepBlockedClassification(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	ticket := f.seedTicket(t, domain.TicketStatusBlocked, 3*time.Hour)

	_, err := f.service.Sweep(ctx)
	require.NoError(t, err)

	stored, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastClassification)
	assert.Equal(t, domain.ClassificationBlocked, *stored.LastClassification)
	assert.Empty(t, f.breached)
	assert.Empty(t, f.escalated)
}

type flakyTicketRepo struct {
	*repository.MemoryTicketRepository
	failID string
}

func (r *flakyTicketRepo) UpdateClassification(ctx context.Context, ticketID string, classification domain.Classification) error {
	if ticketID == r.failID {
		return errors.New("storage hiccup")
	}
	return r.MemoryTicketRepository.UpdateClassification(ctx, ticketID, classification)
}

func TestSweepIsolatesPerTicketFailures(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	bad := f.seedTicket(t, domain.TicketStatusInProgress, 35*time.Minute)
	good := f.seedTicket(t, domain.TicketStatusInProgress, 36*time.Minute)

	flaky := &flakyTicketRepo{MemoryTicketRepository: f.tickets, failID: bad.ID}
	svc := NewEscalationService(EscalationDependencies{
		TicketRepo: flaky,
		Policies:   f.policies,
		Dispatcher: f.dispatcher,
		Metrics:    observability.NewMetrics(),
		Logger:     zap.NewNop(),
		Workers:    2,
	})

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Evaluated)
	assert.Equal(t, 1, result.Changed)
	assert.Equal(t, 1, result.Failed)

	stored, err := f.tickets.GetByID(ctx, good.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastClassification)
	assert.Equal(t, domain.ClassificationBreached, *stored.LastClassification)
}

func TestEvaluateTicketOnTransition(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	ticket := f.seedTicket(t, domain.TicketStatusInProgress, 35*time.Minute)
	f.service.RegisterHandlers()

	require.NoError(t, f.dispatcher.Publish(ctx, events.Event{
		ID:       "evt-1",
		Type:     events.EventTicketTransitioned,
		TicketID: ticket.ID,
		Payload: events.TicketTransitionedPayload{
			DepartmentID: f.department.ID,
			OldStatus:    domain.TicketStatusAssigned,
			NewStatus:    domain.TicketStatusInProgress,
		},
	}))

	require.Len(t, f.breached, 1)
	assert.Equal(t, ticket.ID, f.breached[0].TicketID)
}

func TestBlockedAndAtRiskViews(t *testing.T) {
	f := newEscalationFixture(t)
	ctx := context.Background()

	reason := "awaiting replacement valve"
	blocked := f.seedTicket(t, domain.TicketStatusBlocked, time.Hour)
	blocked.BlockReason = &reason
	require.NoError(t, f.tickets.Update(ctx, blocked))
	require.NoError(t, f.tickets.OpenBlockInterval(ctx, &domain.BlockInterval{
		TicketID:  blocked.ID,
		Reason:    reason,
		StartedAt: time.Now().Add(-30 * time.Minute),
	}))

	atRisk := f.seedTicket(t, domain.TicketStatusInProgress, 25*time.Minute)
	f.seedTicket(t, domain.TicketStatusInProgress, 5*time.Minute)

	blockedViews, err := f.service.BlockedTickets(ctx, f.department.ID)
	require.NoError(t, err)
	require.Len(t, blockedViews, 1)
	assert.Equal(t, blocked.ID, blockedViews[0].TicketID)
	assert.Equal(t, reason, blockedViews[0].BlockReason)
	assert.InDelta(t, 30*60, blockedViews[0].BlockedSeconds, 5)

	atRiskViews, err := f.service.AtRiskTickets(ctx, f.department.ID)
	require.NoError(t, err)
	require.Len(t, atRiskViews, 1)
	assert.Equal(t, atRisk.ID, atRiskViews[0].TicketID)
	assert.Equal(t, int64(30*60), atRiskViews[0].TargetSeconds)
	assert.InDelta(t, 5*60, atRiskViews[0].RemainingSeconds, 5)
}
