package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// PolicyRepository manages versioned SLA policy persistence. Versions are
// append-only: superseding a policy stamps valid_to, never mutates history.
type PolicyRepository interface {
	// Supersede stamps valid_to on the department's current policy (which must
	// match expectedCurrentID, nil meaning "no current policy") and inserts the
	// new version in one transaction. Returns a StaleWrite error when another
	// writer changed the current policy in between.
	Supersede(ctx context.Context, policy *domain.SLAPolicy, expectedCurrentID *string) error
	GetCurrent(ctx context.Context, departmentID string) (*domain.SLAPolicy, error)
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	ListByDepartment(ctx context.Context, departmentID string) ([]domain.SLAPolicy, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

const policyColumns = `id, department_id, target_minutes, warn_minutes, escalate_minutes,
               start_trigger, valid_from, valid_to, created_at`

func (r *policyRepository) Supersede(ctx context.Context, policy *domain.SLAPolicy, expectedCurrentID *string) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Row lock on the current version serializes writers per department.
	var currentID *string
	err = tx.QueryRow(ctx, `
        SELECT id FROM sla_policies
        WHERE department_id=$1 AND valid_to IS NULL
        FOR UPDATE`, policy.DepartmentID).Scan(&currentID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	if !sameID(currentID, expectedCurrentID) {
		return apperrors.NewStaleWrite("current policy changed since read",
			map[string]any{"department_id": policy.DepartmentID})
	}

	now := time.Now()
	if currentID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE sla_policies SET valid_to=$1 WHERE id=$2`, now, *currentID); err != nil {
			return err
		}
	}

	policy.ValidFrom = now
	policy.ValidTo = nil
	if err := tx.QueryRow(ctx, `
        INSERT INTO sla_policies (department_id, target_minutes, warn_minutes, escalate_minutes, start_trigger, valid_from)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`,
		policy.DepartmentID,
		policy.TargetMinutes,
		policy.WarnMinutes,
		policy.EscalateMinutes,
		policy.StartTrigger,
		policy.ValidFrom,
	).Scan(&policy.ID, &policy.CreatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *policyRepository) GetCurrent(ctx context.Context, departmentID string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT ` + policyColumns + `
        FROM sla_policies WHERE department_id=$1 AND valid_to IS NULL`
	return r.fetchSingle(ctx, query, departmentID)
}

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT ` + policyColumns + `
        FROM sla_policies WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *policyRepository) ListByDepartment(ctx context.Context, departmentID string) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT ` + policyColumns + `
        FROM sla_policies WHERE department_id=$1 ORDER BY valid_from DESC`
	rows, err := r.pool.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func (r *policyRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.SLAPolicy, error) {
	return scanPolicy(r.pool.QueryRow(ctx, query, arg))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*domain.SLAPolicy, error) {
	var policy domain.SLAPolicy
	if err := row.Scan(
		&policy.ID,
		&policy.DepartmentID,
		&policy.TargetMinutes,
		&policy.WarnMinutes,
		&policy.EscalateMinutes,
		&policy.StartTrigger,
		&policy.ValidFrom,
		&policy.ValidTo,
		&policy.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
