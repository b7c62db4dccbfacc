package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// allowedTransitions encodes the lifecycle state machine. Terminal states
// have no outgoing edges.
var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusCreated:    {domain.TicketStatusAssigned, domain.TicketStatusCancelled},
	domain.TicketStatusAssigned:   {domain.TicketStatusInProgress, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress: {domain.TicketStatusBlocked, domain.TicketStatusCompleted, domain.TicketStatusCancelled},
	domain.TicketStatusBlocked:    {domain.TicketStatusInProgress, domain.TicketStatusCancelled},
	domain.TicketStatusCompleted:  {},
	domain.TicketStatusCancelled:  {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// LifecycleService applies ticket lifecycle transitions fed from the external
// ticketing system, timestamps each one, and pins the SLA policy version at
// the clock-start trigger.
type LifecycleService struct {
	tickets     repository.TicketRepository
	departments repository.DepartmentRepository
	policies    *PolicyService
	compliance  *ComplianceService
	dispatcher  events.Dispatcher
	logger      *zap.Logger

	// Transitions for one ticket are serialized; different tickets proceed
	// independently.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo     repository.TicketRepository
	DepartmentRepo repository.DepartmentRepository
	Policies       *PolicyService
	Compliance     *ComplianceService
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// RegisterTicketInput describes an inbound ticket-created event.
type RegisterTicketInput struct {
	DepartmentID string
	ServiceKey   string
	Title        string
	AssigneeID   *string
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		tickets:     deps.TicketRepo,
		departments: deps.DepartmentRepo,
		policies:    deps.Policies,
		compliance:  deps.Compliance,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
		locks:       make(map[string]*sync.Mutex),
	}
}

// RegisterTicket records a newly created operational ticket. When the
// department's policy starts ON_CREATE, the clock is pinned immediately.
func (s *LifecycleService) RegisterTicket(ctx context.Context, input RegisterTicketInput) (*domain.Ticket, error) {
	if strings.TrimSpace(input.DepartmentID) == "" || strings.TrimSpace(input.ServiceKey) == "" {
		return nil, apperrors.NewValidationError("department_id and service_key required", nil)
	}
	dept, err := s.departments.GetByID(ctx, input.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": input.DepartmentID})
		}
		return nil, err
	}
	if !dept.IsActive {
		return nil, apperrors.NewValidationError("department inactive", map[string]any{"department_id": dept.ID})
	}

	ticket := &domain.Ticket{
		DisplayID:    generateDisplayID(),
		DepartmentID: dept.ID,
		ServiceKey:   strings.TrimSpace(input.ServiceKey),
		Title:        strings.TrimSpace(input.Title),
		AssigneeID:   input.AssigneeID,
		Status:       domain.TicketStatusCreated,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.capturePolicy(ctx, ticket)
	if ticket.PolicyVersionID != nil {
		if err := s.tickets.Update(ctx, ticket); err != nil {
			return nil, err
		}
	}
	s.publishTransition(ctx, ticket, "", ticket.Status, "")
	return ticket, nil
}

// Assign marks the ticket assigned to a staff member.
func (s *LifecycleService) Assign(ctx context.Context, ticketID string, assigneeID string) (*domain.Ticket, error) {
	return s.applyTransition(ctx, ticketID, domain.TicketStatusAssigned, "", func(t *domain.Ticket, now time.Time) error {
		t.AssigneeID = &assigneeID
		t.AssignedAt = &now
		return nil
	})
}

// Accept records the assignee's acknowledgement. It does not change status
// but fires the ON_ACCEPT clock trigger.
func (s *LifecycleService) Accept(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	unlock := s.lockTicket(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketStatusAssigned {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), "accepted")
	}
	if ticket.AcceptedAt == nil {
		now := time.Now()
		ticket.AcceptedAt = &now
	}
	s.capturePolicy(ctx, ticket)
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.recordTransition(ctx, ticket, ticket.Status, ticket.Status, "accepted")
	s.publishTransition(ctx, ticket, ticket.Status, ticket.Status, "accepted")
	return ticket, nil
}

// Start moves an assigned ticket into active work.
func (s *LifecycleService) Start(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.applyTransition(ctx, ticketID, domain.TicketStatusInProgress, "", func(t *domain.Ticket, now time.Time) error {
		t.StartedAt = &now
		return nil
	})
}

// Block pauses a ticket's SLA clock. A non-empty reason is required.
func (s *LifecycleService) Block(ctx context.Context, ticketID, reason string) (*domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("block_reason required", nil)
	}
	ticket, err := s.applyTransition(ctx, ticketID, domain.TicketStatusBlocked, reason, func(t *domain.Ticket, now time.Time) error {
		t.BlockReason = &reason
		t.BlockedAt = &now
		// The interval opens before the status write lands. A failure here
		// aborts the whole transition, so a BLOCKED ticket always has an
		// open interval for Unblock to close.
		interval := &domain.BlockInterval{
			TicketID:  t.ID,
			Reason:    reason,
			StartedAt: now,
		}
		if err := s.tickets.OpenBlockInterval(ctx, interval); err != nil {
			return err
		}
		t.BlockIntervals = append(t.BlockIntervals, *interval)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Unblock resumes a blocked ticket. The closed pause interval extends the
// deadline by its duration; blocked time never counts against the SLA.
func (s *LifecycleService) Unblock(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.applyTransition(ctx, ticketID, domain.TicketStatusInProgress, "unblocked", func(t *domain.Ticket, now time.Time) error {
		// No open interval means a previous transition half-landed; resume
		// rather than trap the ticket in BLOCKED.
		if err := s.tickets.CloseBlockInterval(ctx, t.ID, now); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		for i := range t.BlockIntervals {
			if t.BlockIntervals[i].EndedAt == nil {
				end := now
				t.BlockIntervals[i].EndedAt = &end
			}
		}
		t.BlockReason = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Complete finishes a ticket and folds its outcome into compliance.
func (s *LifecycleService) Complete(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.applyTransition(ctx, ticketID, domain.TicketStatusCompleted, "", func(t *domain.Ticket, now time.Time) error {
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.foldOutcome(ctx, ticket)
	return ticket, nil
}

// Cancel voids a ticket; the outcome is recorded as exempted.
func (s *LifecycleService) Cancel(ctx context.Context, ticketID, comment string) (*domain.Ticket, error) {
	ticket, err := s.applyTransition(ctx, ticketID, domain.TicketStatusCancelled, comment, func(t *domain.Ticket, now time.Time) error {
		t.CancelledAt = &now
		if t.BlockReason != nil {
			if err := s.tickets.CloseBlockInterval(ctx, t.ID, now); err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			t.BlockReason = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.foldOutcome(ctx, ticket)
	return ticket, nil
}

// GetTicket returns a ticket with its block intervals.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.getTicket(ctx, ticketID)
}

// ListTransitions returns the audit trail for a ticket.
func (s *LifecycleService) ListTransitions(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketTransition, error) {
	return s.tickets.ListTransitions(ctx, ticketID, limit, offset)
}

func (s *LifecycleService) applyTransition(ctx context.Context, ticketID string, next domain.TicketStatus, comment string, mutate func(*domain.Ticket, time.Time) error) (*domain.Ticket, error) {
	unlock := s.lockTicket(ticketID)
	defer unlock()

	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(ticket.Status, next) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(next))
	}

	now := time.Now()
	oldStatus := ticket.Status
	ticket.Status = next
	if mutate != nil {
		if err := mutate(ticket, now); err != nil {
			return nil, err
		}
	}
	s.capturePolicy(ctx, ticket)

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.recordTransition(ctx, ticket, oldStatus, next, comment)
	s.publishTransition(ctx, ticket, oldStatus, next, comment)
	return ticket, nil
}

// capturePolicy pins the department's current policy version and the clock
// start instant once the trigger transition has fired. The pin is permanent:
// later policy edits never move an in-flight ticket's deadline.
func (s *LifecycleService) capturePolicy(ctx context.Context, ticket *domain.Ticket) {
	if ticket.PolicyVersionID != nil || s.policies == nil {
		return
	}
	policy, err := s.policies.GetCurrentPolicy(ctx, ticket.DepartmentID)
	if err != nil {
		s.logger.Warn("no current policy for department; clock not started",
			zap.String("ticket_id", ticket.ID),
			zap.String("department_id", ticket.DepartmentID))
		return
	}
	start := ticket.TriggerTime(policy.StartTrigger)
	if start == nil {
		return
	}
	ticket.PolicyVersionID = &policy.ID
	ticket.ClockStartAt = start
}

func (s *LifecycleService) foldOutcome(ctx context.Context, ticket *domain.Ticket) {
	if s.compliance == nil {
		return
	}
	if err := s.compliance.FoldTicket(ctx, ticket); err != nil {
		// Idempotent upsert makes a retry safe under at-least-once delivery.
		s.logger.Error("compliance fold failed, retrying once",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		if err := s.compliance.FoldTicket(ctx, ticket); err != nil {
			s.logger.Error("compliance fold retry failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
}

func (s *LifecycleService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *LifecycleService) lockTicket(ticketID string) func() {
	s.locksMu.Lock()
	lock, ok := s.locks[ticketID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ticketID] = lock
	}
	s.locksMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (s *LifecycleService) recordTransition(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus, comment string) {
	entry := &domain.TicketTransition{
		TicketID:   ticket.ID,
		FromStatus: from,
		ToStatus:   to,
		Comment:    comment,
	}
	if err := s.tickets.RecordTransition(ctx, entry); err != nil {
		s.logger.Warn("failed to record transition",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}
}

func (s *LifecycleService) publishTransition(ctx context.Context, ticket *domain.Ticket, from, to domain.TicketStatus, comment string) {
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketTransitioned,
		TicketID: ticket.ID,
		Payload: events.TicketTransitionedPayload{
			DepartmentID: ticket.DepartmentID,
			OldStatus:    from,
			NewStatus:    to,
			BlockReason:  ticket.BlockReason,
			Comment:      comment,
		},
	})
}

func generateDisplayID() string {
	return "SLA-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
