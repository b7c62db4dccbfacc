package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// SnapshotRepository persists terminal ticket outcomes and the daily
// compliance buckets derived from them. Folding is idempotent: the outcome
// row is keyed by ticket_id and the bucket increment only happens when the
// row is first inserted.
type SnapshotRepository interface {
	FoldOutcome(ctx context.Context, outcome *domain.TicketOutcome) (bool, error)
	Trend(ctx context.Context, from, to time.Time) ([]domain.ComplianceBucket, error)
	TrendByDepartment(ctx context.Context, departmentID string, from, to time.Time) ([]domain.ComplianceBucket, error)
	Impact(ctx context.Context, from, to time.Time) ([]domain.ImpactRow, int64, error)
	ListExceptions(ctx context.Context, departmentID string, serviceKey *string, from time.Time) ([]domain.TicketOutcome, error)
}

type snapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository instantiates repository.
func NewSnapshotRepository(pool *pgxpool.Pool) SnapshotRepository {
	return &snapshotRepository{pool: pool}
}

func (r *snapshotRepository) FoldOutcome(ctx context.Context, outcome *domain.TicketOutcome) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cmd, err := tx.Exec(ctx, `
        INSERT INTO sla_outcomes (ticket_id, department_id, service_key, outcome, deadline_at, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (ticket_id) DO NOTHING`,
		outcome.TicketID,
		outcome.DepartmentID,
		outcome.ServiceKey,
		outcome.Outcome,
		outcome.DeadlineAt,
		outcome.OccurredAt,
	)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		// Already folded; at-least-once redelivery is a no-op.
		return false, tx.Commit(ctx)
	}

	day := outcome.OccurredAt.UTC().Truncate(24 * time.Hour)
	column := bucketColumn(outcome.Outcome)
	query := `
        INSERT INTO compliance_snapshots (department_id, day, ` + column + `)
        VALUES ($1,$2,1)
        ON CONFLICT (department_id, day)
        DO UPDATE SET ` + column + ` = compliance_snapshots.` + column + ` + 1`
	if _, err := tx.Exec(ctx, query, outcome.DepartmentID, day); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

func bucketColumn(outcome domain.SLAOutcome) string {
	switch outcome {
	case domain.OutcomeBreached:
		return "breached_sla"
	case domain.OutcomeExempted:
		return "sla_exempted"
	default:
		return "completed_within_sla"
	}
}

func (r *snapshotRepository) Trend(ctx context.Context, from, to time.Time) ([]domain.ComplianceBucket, error) {
	const query = `
        SELECT '', day, COALESCE(SUM(completed_within_sla),0), COALESCE(SUM(breached_sla),0), COALESCE(SUM(sla_exempted),0)
        FROM compliance_snapshots
        WHERE day >= $1 AND day <= $2
        GROUP BY day ORDER BY day ASC`
	return r.queryBuckets(ctx, query, from, to)
}

func (r *snapshotRepository) TrendByDepartment(ctx context.Context, departmentID string, from, to time.Time) ([]domain.ComplianceBucket, error) {
	const query = `
        SELECT department_id, day, completed_within_sla, breached_sla, sla_exempted
        FROM compliance_snapshots
        WHERE department_id = $3 AND day >= $1 AND day <= $2
        ORDER BY day ASC`
	return r.queryBuckets(ctx, query, from, to, departmentID)
}

func (r *snapshotRepository) queryBuckets(ctx context.Context, query string, args ...any) ([]domain.ComplianceBucket, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ComplianceBucket
	for rows.Next() {
		var bucket domain.ComplianceBucket
		if err := rows.Scan(&bucket.DepartmentID, &bucket.Day, &bucket.CompletedWithinSLA, &bucket.BreachedSLA, &bucket.SLAExempted); err != nil {
			return nil, err
		}
		result = append(result, bucket)
	}
	return result, rows.Err()
}

func (r *snapshotRepository) Impact(ctx context.Context, from, to time.Time) ([]domain.ImpactRow, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM sla_outcomes WHERE occurred_at >= $1 AND occurred_at <= $2`,
		from, to).Scan(&total); err != nil {
		return nil, 0, err
	}

	const query = `
        SELECT o.department_id, COALESCE(d.name, o.department_id), COUNT(*)
        FROM sla_outcomes o
        LEFT JOIN departments d ON d.id = o.department_id
        WHERE o.outcome = 'BREACHED' AND o.occurred_at >= $1 AND o.occurred_at <= $2
        GROUP BY o.department_id, d.name
        ORDER BY COUNT(*) DESC`
	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.ImpactRow
	for rows.Next() {
		var row domain.ImpactRow
		if err := rows.Scan(&row.DepartmentID, &row.DepartmentName, &row.BreachedCount); err != nil {
			return nil, 0, err
		}
		result = append(result, row)
	}
	return result, total, rows.Err()
}

func (r *snapshotRepository) ListExceptions(ctx context.Context, departmentID string, serviceKey *string, from time.Time) ([]domain.TicketOutcome, error) {
	query := `
        SELECT ticket_id, department_id, service_key, outcome, deadline_at, occurred_at, recorded_at
        FROM sla_outcomes
        WHERE department_id = $1 AND outcome = 'BREACHED' AND occurred_at >= $2`
	args := []any{departmentID, from}
	if serviceKey != nil {
		args = append(args, *serviceKey)
		query += ` AND service_key = $3`
	}
	query += ` ORDER BY occurred_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketOutcome
	for rows.Next() {
		var outcome domain.TicketOutcome
		if err := rows.Scan(&outcome.TicketID, &outcome.DepartmentID, &outcome.ServiceKey, &outcome.Outcome, &outcome.DeadlineAt, &outcome.OccurredAt, &outcome.RecordedAt); err != nil {
			return nil, err
		}
		result = append(result, outcome)
	}
	return result, rows.Err()
}
