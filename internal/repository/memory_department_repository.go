package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// MemoryDepartmentRepository is an in-memory DepartmentRepository used by tests.
type MemoryDepartmentRepository struct {
	mu          sync.RWMutex
	departments map[string]*domain.Department
}

// NewMemoryDepartmentRepository creates an empty in-memory repository.
func NewMemoryDepartmentRepository() *MemoryDepartmentRepository {
	return &MemoryDepartmentRepository{departments: make(map[string]*domain.Department)}
}

func (r *MemoryDepartmentRepository) Create(ctx context.Context, dept *domain.Department) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if dept.ID == "" {
		dept.ID = uuid.NewString()
	}
	now := time.Now()
	dept.CreatedAt = now
	dept.UpdatedAt = now
	stored := *dept
	r.departments[dept.ID] = &stored
	return nil
}

func (r *MemoryDepartmentRepository) Update(ctx context.Context, dept *domain.Department) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.departments[dept.ID]; !ok {
		return pgx.ErrNoRows
	}
	dept.UpdatedAt = time.Now()
	stored := *dept
	r.departments[dept.ID] = &stored
	return nil
}

func (r *MemoryDepartmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dept, ok := r.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *dept
	return &copied, nil
}

func (r *MemoryDepartmentRepository) GetByCode(ctx context.Context, code string) (*domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dept := range r.departments {
		if dept.Code == code {
			copied := *dept
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryDepartmentRepository) ListActive(ctx context.Context) ([]domain.Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Department
	for _, dept := range r.departments {
		if dept.IsActive {
			result = append(result, *dept)
		}
	}
	return result, nil
}
