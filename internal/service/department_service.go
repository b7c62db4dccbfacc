package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

// DepartmentService manages the operational departments tickets belong to.
type DepartmentService struct {
	departments repository.DepartmentRepository
}

// NewDepartmentService constructs the service.
func NewDepartmentService(departments repository.DepartmentRepository) *DepartmentService {
	return &DepartmentService{departments: departments}
}

// Create registers a new department. Codes are unique and uppercased.
func (s *DepartmentService) Create(ctx context.Context, code, name string) (*domain.Department, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, apperrors.NewValidationError("code and name required", nil)
	}

	if existing, err := s.departments.GetByCode(ctx, code); err == nil && existing != nil {
		return nil, apperrors.NewConflict("department code already exists", map[string]any{"code": code})
	} else if err != nil && err != pgx.ErrNoRows {
		return nil, apperrors.MapError(err)
	}

	now := time.Now()
	dept := &domain.Department{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// Get returns a department by id.
func (s *DepartmentService) Get(ctx context.Context, id string) (*domain.Department, error) {
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// ListActive returns all active departments.
func (s *DepartmentService) ListActive(ctx context.Context) ([]domain.Department, error) {
	depts, err := s.departments.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return depts, nil
}

// Deactivate marks a department inactive. Existing tickets keep their pinned
// policies and continue to be evaluated.
func (s *DepartmentService) Deactivate(ctx context.Context, id string) (*domain.Department, error) {
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	dept.IsActive = false
	dept.UpdatedAt = time.Now()
	if err := s.departments.Update(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}
