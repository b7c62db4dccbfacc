package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/sla"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// ComplianceService folds terminal ticket outcomes into daily compliance
// buckets and serves the reporting views over them.
type ComplianceService struct {
	snapshots  repository.SnapshotRepository
	policies   *PolicyService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// ComplianceDependencies bundles collaborators for the compliance service.
type ComplianceDependencies struct {
	SnapshotRepo repository.SnapshotRepository
	Policies     *PolicyService
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
}

// NewComplianceService constructs the service.
func NewComplianceService(deps ComplianceDependencies) *ComplianceService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplianceService{
		snapshots:  deps.SnapshotRepo,
		policies:   deps.Policies,
		dispatcher: deps.Dispatcher,
		logger:     logger,
	}
}

// FoldTicket classifies a terminal ticket's outcome once and folds it into
// the department's daily bucket. Folding is keyed by ticket_id: re-delivery
// of the same terminal transition is a no-op.
func (s *ComplianceService) FoldTicket(ctx context.Context, ticket *domain.Ticket) error {
	if !ticket.Status.IsTerminal() {
		return apperrors.NewValidationError("ticket is not terminal", map[string]any{"ticket_id": ticket.ID})
	}

	var policy *domain.SLAPolicy
	if ticket.PolicyVersionID != nil && s.policies != nil {
		p, err := s.policies.GetVersion(ctx, *ticket.PolicyVersionID)
		if err == nil {
			policy = p
		}
	}

	outcome := &domain.TicketOutcome{
		TicketID:     ticket.ID,
		DepartmentID: ticket.DepartmentID,
		ServiceKey:   ticket.ServiceKey,
		Outcome:      sla.MetOutcome(ticket, policy),
		OccurredAt:   terminalInstant(ticket),
	}
	if policy != nil && ticket.ClockStartAt != nil {
		deadline := ticket.ClockStartAt.Add(policy.Target()).Add(ticket.PausedDuration())
		outcome.DeadlineAt = &deadline
	}

	inserted, err := s.snapshots.FoldOutcome(ctx, outcome)
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventOutcomeRecorded,
		TicketID: ticket.ID,
		Payload: events.OutcomeRecordedPayload{
			DepartmentID: ticket.DepartmentID,
			Outcome:      outcome.Outcome,
			OccurredAt:   outcome.OccurredAt,
		},
	})
	return nil
}

// Trend returns the hotel-wide per-day compliance series for the last N days.
func (s *ComplianceService) Trend(ctx context.Context, days int) ([]domain.TrendPoint, error) {
	from, to := windowFor(days)
	buckets, err := s.snapshots.Trend(ctx, from, to)
	if err != nil {
		return nil, err
	}
	points := make([]domain.TrendPoint, 0, len(buckets))
	for _, bucket := range buckets {
		points = append(points, domain.TrendPoint{
			Day:                bucket.Day,
			CompletedWithinSLA: bucket.CompletedWithinSLA,
			BreachedSLA:        bucket.BreachedSLA,
			SLAExempted:        bucket.SLAExempted,
			CompliancePercent:  bucket.CompliancePercent(),
		})
	}
	return points, nil
}

// TrendForDepartment returns one department's per-day compliance series.
func (s *ComplianceService) TrendForDepartment(ctx context.Context, departmentID string, days int) ([]domain.TrendPoint, error) {
	from, to := windowFor(days)
	buckets, err := s.snapshots.TrendByDepartment(ctx, departmentID, from, to)
	if err != nil {
		return nil, err
	}
	points := make([]domain.TrendPoint, 0, len(buckets))
	for _, bucket := range buckets {
		points = append(points, domain.TrendPoint{
			Day:                bucket.Day,
			CompletedWithinSLA: bucket.CompletedWithinSLA,
			BreachedSLA:        bucket.BreachedSLA,
			SLAExempted:        bucket.SLAExempted,
			CompliancePercent:  bucket.CompliancePercent(),
		})
	}
	return points, nil
}

// ImpactBreakdown attributes compliance loss in the window to departments:
// impact_percent = breached_count / total_tickets_in_window * 100. Summing
// departmental impacts plus the final compliance score approximately
// reconstructs the 100% baseline.
func (s *ComplianceService) ImpactBreakdown(ctx context.Context, days int) ([]domain.ImpactRow, error) {
	from, to := windowFor(days)
	rows, total, err := s.snapshots.Impact(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return rows, nil
	}
	for i := range rows {
		rows[i].ImpactPercent = float64(rows[i].BreachedCount) / float64(total) * 100
	}
	return rows, nil
}

// Exceptions lists breached outcomes for a department, optionally narrowed
// to one service category, over the last N days.
func (s *ComplianceService) Exceptions(ctx context.Context, departmentID string, serviceKey *string, days int) ([]domain.TicketOutcome, error) {
	from, _ := windowFor(days)
	return s.snapshots.ListExceptions(ctx, departmentID, serviceKey, from)
}

func terminalInstant(ticket *domain.Ticket) time.Time {
	if ticket.CompletedAt != nil {
		return *ticket.CompletedAt
	}
	if ticket.CancelledAt != nil {
		return *ticket.CancelledAt
	}
	return time.Now()
}

func windowFor(days int) (time.Time, time.Time) {
	if days <= 0 {
		days = 7
	}
	to := time.Now()
	from := to.AddDate(0, 0, -days).UTC().Truncate(24 * time.Hour)
	return from, to
}
