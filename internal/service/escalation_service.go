package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/observability"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	"github.com/spec-kit/sla-engine/internal/sla"
)

const clockCacheKeyPrefix = "sla:clock:"

// EscalationService classifies open tickets against their pinned policies
// and emits classification-change events. It runs as a periodic sweep and is
// also invoked synchronously on lifecycle transitions; the sweep is the
// correctness backstop against missed triggers.
type EscalationService struct {
	tickets    repository.TicketRepository
	policies   *PolicyService
	dispatcher events.Dispatcher
	cache      *persistence.Redis
	metrics    *observability.Metrics
	logger     *zap.Logger
	workers    int
}

// EscalationDependencies bundles collaborators for the escalation service.
type EscalationDependencies struct {
	TicketRepo repository.TicketRepository
	Policies   *PolicyService
	Dispatcher events.Dispatcher
	Cache      *persistence.Redis
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Workers    int
}

// SweepResult summarizes one evaluation pass.
type SweepResult struct {
	Evaluated int
	Changed   int
	Failed    int
	Duration  time.Duration
}

// BlockedTicketView is the query shape for currently blocked tickets.
type BlockedTicketView struct {
	TicketID       string  `json:"ticket_id"`
	DisplayID      string  `json:"display_id"`
	Title          string  `json:"title"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	BlockedSeconds int64   `json:"blocked_seconds"`
	BlockReason    string  `json:"block_reason"`
}

// AtRiskTicketView is the query shape for at-risk tickets.
type AtRiskTicketView struct {
	TicketID         string              `json:"ticket_id"`
	DisplayID        string              `json:"display_id"`
	RemainingSeconds int64               `json:"remaining_seconds"`
	TargetSeconds    int64               `json:"target_seconds"`
	AssigneeID       *string             `json:"assignee_id,omitempty"`
	Status           domain.TicketStatus `json:"status"`
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 8
	}
	return &EscalationService{
		tickets:    deps.TicketRepo,
		policies:   deps.Policies,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		logger:     logger,
		workers:    workers,
	}
}

// RegisterHandlers subscribes the transition-triggered evaluation path.
func (s *EscalationService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventTicketTransitioned, func(ctx context.Context, event events.Event) error {
		s.invalidateClockCache(ctx, event.TicketID)
		payload, ok := event.Payload.(events.TicketTransitionedPayload)
		if ok && payload.NewStatus.IsTerminal() {
			return nil
		}
		_, err := s.EvaluateTicket(ctx, event.TicketID)
		return err
	})
}

// Sweep re-evaluates every open ticket. Classification is a pure per-ticket
// computation, so tickets are processed by a worker pool and event emission
// is merged afterward. One corrupt ticket never blinds the evaluator to the
// rest.
func (s *EscalationService) Sweep(ctx context.Context) (SweepResult, error) {
	started := time.Now()
	tickets, err := s.tickets.ListOpen(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	jobs := make(chan *domain.Ticket)
	type evaluation struct {
		changed bool
		emitted []events.Event
		err     error
	}
	results := make(chan evaluation, len(tickets))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticket := range jobs {
				changed, emitted, err := s.evaluate(ctx, ticket)
				results <- evaluation{changed: changed, emitted: emitted, err: err}
			}
		}()
	}

dispatch:
	for i := range tickets {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- &tickets[i]:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	// Workers only compute and persist; events flow out through the single
	// sweep goroutine so subscribers never see concurrent calls.
	result := SweepResult{}
	for eval := range results {
		result.Evaluated++
		if eval.changed {
			result.Changed++
		}
		if eval.err != nil {
			result.Failed++
			continue
		}
		for _, event := range eval.emitted {
			publishEvent(ctx, s.dispatcher, event)
		}
	}
	result.Duration = time.Since(started)

	s.metrics.RecordSweep(result.Evaluated, result.Changed, result.Failed, result.Duration)
	s.logger.Debug("escalation sweep finished",
		zap.Int("evaluated", result.Evaluated),
		zap.Int("changed", result.Changed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, ctx.Err()
}

// EvaluateTicket recomputes one ticket's classification immediately.
func (s *EscalationService) EvaluateTicket(ctx context.Context, ticketID string) (bool, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return false, err
	}
	changed, emitted, err := s.evaluate(ctx, ticket)
	if err != nil {
		return false, err
	}
	for _, event := range emitted {
		publishEvent(ctx, s.dispatcher, event)
	}
	return changed, nil
}

// ClockState computes the current clock view for a ticket.
func (s *EscalationService) ClockState(ctx context.Context, ticket *domain.Ticket) domain.SLAClockState {
	return sla.Compute(ticket, s.pinnedPolicy(ctx, ticket), time.Now())
}

// BlockedTickets lists currently blocked tickets for a department with how
// long each has been waiting.
func (s *EscalationService) BlockedTickets(ctx context.Context, departmentID string) ([]BlockedTicketView, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		DepartmentID: &departmentID,
		Statuses:     []domain.TicketStatus{domain.TicketStatusBlocked},
		Limit:        500,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]BlockedTicketView, 0, len(tickets))
	for i := range tickets {
		ticket := &tickets[i]
		view := BlockedTicketView{
			TicketID:   ticket.ID,
			DisplayID:  ticket.DisplayID,
			Title:      ticket.Title,
			AssigneeID: ticket.AssigneeID,
		}
		if ticket.BlockReason != nil {
			view.BlockReason = *ticket.BlockReason
		}
		if open := ticket.OpenBlockInterval(); open != nil {
			view.BlockedSeconds = int64(now.Sub(open.StartedAt).Seconds())
		}
		views = append(views, view)
	}
	return views, nil
}

// AtRiskTickets lists open tickets currently classified AT_RISK for a
// department.
func (s *EscalationService) AtRiskTickets(ctx context.Context, departmentID string) ([]AtRiskTicketView, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		DepartmentID: &departmentID,
		Statuses: []domain.TicketStatus{
			domain.TicketStatusCreated,
			domain.TicketStatusAssigned,
			domain.TicketStatusInProgress,
		},
		Limit: 500,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	views := make([]AtRiskTicketView, 0)
	for i := range tickets {
		ticket := &tickets[i]
		policy := s.pinnedPolicy(ctx, ticket)
		state := sla.Compute(ticket, policy, now)
		if state.Classification != domain.ClassificationAtRisk {
			continue
		}
		view := AtRiskTicketView{
			TicketID:         ticket.ID,
			DisplayID:        ticket.DisplayID,
			RemainingSeconds: int64(state.Remaining.Seconds()),
			AssigneeID:       ticket.AssigneeID,
			Status:           ticket.Status,
		}
		if policy != nil {
			view.TargetSeconds = int64(policy.Target().Seconds())
		}
		views = append(views, view)
	}
	return views, nil
}

// RebuildOpenTickets recomputes the cached clock state for every open
// ticket. Pinned policy versions are left untouched.
func (s *EscalationService) RebuildOpenTickets(ctx context.Context) (SweepResult, error) {
	return s.Sweep(ctx)
}

// evaluate classifies one ticket and persists the change. It never touches
// the dispatcher itself; pending events come back to the caller, which
// publishes them outside the worker pool.
func (s *EscalationService) evaluate(ctx context.Context, ticket *domain.Ticket) (changed bool, emitted []events.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed = false
			emitted = nil
			err = fmt.Errorf("evaluate ticket %s: panic: %v", ticket.ID, r)
			s.logger.Error("ticket evaluation panicked",
				zap.String("ticket_id", ticket.ID), zap.Any("panic", r))
		}
	}()

	state := sla.Compute(ticket, s.pinnedPolicy(ctx, ticket), time.Now())
	s.cacheClockState(ctx, &state)

	if ticket.LastClassification != nil && *ticket.LastClassification == state.Classification {
		return false, nil, nil
	}

	old := ticket.LastClassification
	if err := s.tickets.UpdateClassification(ctx, ticket.ID, state.Classification); err != nil {
		return false, nil, err
	}

	at := state.ComputedAt
	emitted = append(emitted, events.Event{
		Type:     events.EventClassificationChanged,
		TicketID: ticket.ID,
		Payload: events.ClassificationChangedPayload{
			DepartmentID:      ticket.DepartmentID,
			OldClassification: old,
			NewClassification: state.Classification,
			DeadlineAt:        state.DeadlineAt,
			At:                at,
		},
	})

	switch state.Classification {
	case domain.ClassificationBreached:
		emitted = append(emitted, events.Event{
			Type:     events.EventSLABreached,
			TicketID: ticket.ID,
			Payload: events.SLABreachedPayload{
				DepartmentID: ticket.DepartmentID,
				DeadlineAt:   state.DeadlineAt,
				At:           at,
			},
		})
	case domain.ClassificationEscalated:
		emitted = append(emitted, events.Event{
			Type:     events.EventSLAEscalated,
			TicketID: ticket.ID,
			Payload: events.SLAEscalatedPayload{
				DepartmentID: ticket.DepartmentID,
				DeadlineAt:   state.DeadlineAt,
				EscalateAt:   state.EscalateAt,
				At:           at,
			},
		})
	}

	return true, emitted, nil
}

func (s *EscalationService) pinnedPolicy(ctx context.Context, ticket *domain.Ticket) *domain.SLAPolicy {
	if ticket.PolicyVersionID == nil || s.policies == nil {
		return nil
	}
	policy, err := s.policies.GetVersion(ctx, *ticket.PolicyVersionID)
	if err != nil {
		s.logger.Warn("pinned policy version not found",
			zap.String("ticket_id", ticket.ID),
			zap.String("policy_version_id", *ticket.PolicyVersionID))
		return nil
	}
	return policy
}

func (s *EscalationService) cacheClockState(ctx context.Context, state *domain.SLAClockState) {
	if s.cache == nil || s.cache.Client == nil {
		return
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := s.cache.Client.Set(ctx, clockCacheKeyPrefix+state.TicketID, raw, 2*time.Minute).Err(); err != nil {
		s.logger.Debug("clock cache set failed", zap.Error(err))
	}
}

func (s *EscalationService) invalidateClockCache(ctx context.Context, ticketID string) {
	if s.cache == nil || s.cache.Client == nil || ticketID == "" {
		return
	}
	if err := s.cache.Client.Del(ctx, clockCacheKeyPrefix+ticketID).Err(); err != nil {
		s.logger.Debug("clock cache invalidation failed", zap.Error(err))
	}
}
