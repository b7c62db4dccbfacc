package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// MemoryTicketRepository is an in-memory TicketRepository used by tests.
type MemoryTicketRepository struct {
	mu          sync.RWMutex
	tickets     map[string]*domain.Ticket
	transitions []domain.TicketTransition
}

// NewMemoryTicketRepository creates an empty in-memory repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: make(map[string]*domain.Ticket)}
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	stored := cloneTicket(ticket)
	r.tickets[ticket.ID] = stored
	return nil
}

func (r *MemoryTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = time.Now()
	updated := cloneTicket(ticket)
	updated.BlockIntervals = existing.BlockIntervals
	r.tickets[ticket.ID] = updated
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTicket(ticket), nil
}

func (r *MemoryTicketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.Status.IsOpen() {
			result = append(result, *cloneTicket(ticket))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *MemoryTicketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.DepartmentID != nil && ticket.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.ServiceKey != nil && ticket.ServiceKey != *filter.ServiceKey {
			continue
		}
		if len(filter.Statuses) > 0 && !statusIn(ticket.Status, filter.Statuses) {
			continue
		}
		if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		result = append(result, *cloneTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *MemoryTicketRepository) UpdateClassification(ctx context.Context, ticketID string, classification domain.Classification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.LastClassification = &classification
	ticket.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryTicketRepository) OpenBlockInterval(ctx context.Context, interval *domain.BlockInterval) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[interval.TicketID]
	if !ok {
		return pgx.ErrNoRows
	}
	interval.ID = uuid.NewString()
	ticket.BlockIntervals = append(ticket.BlockIntervals, *interval)
	return nil
}

func (r *MemoryTicketRepository) CloseBlockInterval(ctx context.Context, ticketID string, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	for i := range ticket.BlockIntervals {
		if ticket.BlockIntervals[i].EndedAt == nil {
			end := endedAt
			ticket.BlockIntervals[i].EndedAt = &end
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *MemoryTicketRepository) RecordTransition(ctx context.Context, transition *domain.TicketTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	transition.ID = uuid.NewString()
	transition.CreatedAt = time.Now()
	r.transitions = append(r.transitions, *transition)
	return nil
}

func (r *MemoryTicketRepository) ListTransitions(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketTransition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.TicketTransition
	for i := len(r.transitions) - 1; i >= 0; i-- {
		if r.transitions[i].TicketID == ticketID {
			result = append(result, r.transitions[i])
		}
	}
	if offset > len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func cloneTicket(ticket *domain.Ticket) *domain.Ticket {
	copied := *ticket
	copied.BlockIntervals = append([]domain.BlockInterval(nil), ticket.BlockIntervals...)
	return &copied
}

func statusIn(status domain.TicketStatus, statuses []domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
