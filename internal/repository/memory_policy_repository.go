package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// MemoryPolicyRepository is an in-memory PolicyRepository used by tests and
// local development without Postgres.
type MemoryPolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]*domain.SLAPolicy
}

// NewMemoryPolicyRepository creates an empty in-memory repository.
func NewMemoryPolicyRepository() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{policies: make(map[string]*domain.SLAPolicy)}
}

func (r *MemoryPolicyRepository) Supersede(ctx context.Context, policy *domain.SLAPolicy, expectedCurrentID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var currentID *string
	for _, existing := range r.policies {
		if existing.DepartmentID == policy.DepartmentID && existing.ValidTo == nil {
			id := existing.ID
			currentID = &id
			break
		}
	}

	if !sameID(currentID, expectedCurrentID) {
		return apperrors.NewStaleWrite("current policy changed since read",
			map[string]any{"department_id": policy.DepartmentID})
	}

	now := time.Now()
	if currentID != nil {
		superseded := r.policies[*currentID]
		end := now
		superseded.ValidTo = &end
	}

	policy.ID = uuid.NewString()
	policy.ValidFrom = now
	policy.ValidTo = nil
	policy.CreatedAt = now

	stored := *policy
	r.policies[policy.ID] = &stored
	return nil
}

func (r *MemoryPolicyRepository) GetCurrent(ctx context.Context, departmentID string) (*domain.SLAPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, policy := range r.policies {
		if policy.DepartmentID == departmentID && policy.ValidTo == nil {
			copied := *policy
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	policy, ok := r.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *policy
	return &copied, nil
}

func (r *MemoryPolicyRepository) ListByDepartment(ctx context.Context, departmentID string) ([]domain.SLAPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.SLAPolicy
	for _, policy := range r.policies {
		if policy.DepartmentID == departmentID {
			result = append(result, *policy)
		}
	}
	return result, nil
}
