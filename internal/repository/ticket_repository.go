package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// TicketFilter captures query parameters for ticket listings.
type TicketFilter struct {
	DepartmentID *string
	ServiceKey   *string
	Statuses     []domain.TicketStatus
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket, block-interval and transition
// persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	UpdateClassification(ctx context.Context, ticketID string, classification domain.Classification) error

	OpenBlockInterval(ctx context.Context, interval *domain.BlockInterval) error
	CloseBlockInterval(ctx context.Context, ticketID string, endedAt time.Time) error

	RecordTransition(ctx context.Context, transition *domain.TicketTransition) error
	ListTransitions(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketTransition, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, display_id, department_id, service_key, title, assignee_id, status,
               block_reason, policy_version_id, clock_start_at, last_classification,
               created_at, updated_at, assigned_at, accepted_at, started_at, blocked_at,
               completed_at, cancelled_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (display_id, department_id, service_key, title, assignee_id, status, policy_version_id, clock_start_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.DisplayID,
		ticket.DepartmentID,
		ticket.ServiceKey,
		ticket.Title,
		ticket.AssigneeID,
		ticket.Status,
		ticket.PolicyVersionID,
		ticket.ClockStartAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assignee_id=$1, status=$2, block_reason=$3, policy_version_id=$4,
            clock_start_at=$5, last_classification=$6, assigned_at=$7, accepted_at=$8,
            started_at=$9, blocked_at=$10, completed_at=$11, cancelled_at=$12, updated_at=NOW()
        WHERE id=$13`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.AssigneeID,
		ticket.Status,
		ticket.BlockReason,
		ticket.PolicyVersionID,
		ticket.ClockStartAt,
		ticket.LastClassification,
		ticket.AssignedAt,
		ticket.AcceptedAt,
		ticket.StartedAt,
		ticket.BlockedAt,
		ticket.CompletedAt,
		ticket.CancelledAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	if err := r.attachBlockIntervals(ctx, []*domain.Ticket{ticket}); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	open := []domain.TicketStatus{
		domain.TicketStatusCreated,
		domain.TicketStatusAssigned,
		domain.TicketStatusInProgress,
		domain.TicketStatusBlocked,
	}
	return r.ListWithFilter(ctx, TicketFilter{Statuses: open, Limit: 10000})
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.ServiceKey != nil {
		args = append(args, *filter.ServiceKey)
		clauses = append(clauses, fmt.Sprintf("service_key=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at ASC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	var refs []*domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		refs = append(refs, &result[i])
	}
	if err := r.attachBlockIntervals(ctx, refs); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ticketRepository) UpdateClassification(ctx context.Context, ticketID string, classification domain.Classification) error {
	const query = `UPDATE tickets SET last_classification=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, classification, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) OpenBlockInterval(ctx context.Context, interval *domain.BlockInterval) error {
	const query = `
        INSERT INTO ticket_block_intervals (ticket_id, reason, started_at)
        VALUES ($1,$2,$3)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		interval.TicketID,
		interval.Reason,
		interval.StartedAt,
	).Scan(&interval.ID)
}

func (r *ticketRepository) CloseBlockInterval(ctx context.Context, ticketID string, endedAt time.Time) error {
	const query = `
        UPDATE ticket_block_intervals SET ended_at=$1
        WHERE ticket_id=$2 AND ended_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, endedAt, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) RecordTransition(ctx context.Context, transition *domain.TicketTransition) error {
	const query = `
        INSERT INTO ticket_transitions (ticket_id, from_status, to_status, comment)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		transition.TicketID,
		transition.FromStatus,
		transition.ToStatus,
		transition.Comment,
	).Scan(&transition.ID, &transition.CreatedAt)
}

func (r *ticketRepository) ListTransitions(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketTransition, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, from_status, to_status, comment, created_at
        FROM ticket_transitions WHERE ticket_id=$1
        ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketTransition
	for rows.Next() {
		var entry domain.TicketTransition
		if err := rows.Scan(&entry.ID, &entry.TicketID, &entry.FromStatus, &entry.ToStatus, &entry.Comment, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *ticketRepository) attachBlockIntervals(ctx context.Context, tickets []*domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	ids := make([]string, 0, len(tickets))
	byID := make(map[string]*domain.Ticket, len(tickets))
	for _, ticket := range tickets {
		ids = append(ids, ticket.ID)
		byID[ticket.ID] = ticket
	}

	const query = `
        SELECT id, ticket_id, reason, started_at, ended_at
        FROM ticket_block_intervals WHERE ticket_id = ANY($1)
        ORDER BY started_at ASC`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var interval domain.BlockInterval
		if err := rows.Scan(&interval.ID, &interval.TicketID, &interval.Reason, &interval.StartedAt, &interval.EndedAt); err != nil {
			return err
		}
		if ticket, ok := byID[interval.TicketID]; ok {
			ticket.BlockIntervals = append(ticket.BlockIntervals, interval)
		}
	}
	return rows.Err()
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.DisplayID,
		&ticket.DepartmentID,
		&ticket.ServiceKey,
		&ticket.Title,
		&ticket.AssigneeID,
		&ticket.Status,
		&ticket.BlockReason,
		&ticket.PolicyVersionID,
		&ticket.ClockStartAt,
		&ticket.LastClassification,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.AssignedAt,
		&ticket.AcceptedAt,
		&ticket.StartedAt,
		&ticket.BlockedAt,
		&ticket.CompletedAt,
		&ticket.CancelledAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
