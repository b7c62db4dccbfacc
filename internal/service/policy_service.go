package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/persistence"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

const (
	policyCacheTTL       = 30 * time.Second
	policyWriteAttempts  = 3
	policyCacheKeyPrefix = "sla:policy:current:"
)

// PolicyService owns versioned SLA policies per department.
type PolicyService struct {
	departments repository.DepartmentRepository
	policies    repository.PolicyRepository
	cache       *persistence.Redis
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// PolicyDependencies bundles collaborators for the policy service.
type PolicyDependencies struct {
	DepartmentRepo repository.DepartmentRepository
	PolicyRepo     repository.PolicyRepository
	Cache          *persistence.Redis
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
}

// PolicyInput describes a policy write payload.
type PolicyInput struct {
	TargetMinutes   int
	WarnMinutes     int
	EscalateMinutes int
	StartTrigger    domain.StartTrigger
}

// NewPolicyService constructs the service.
func NewPolicyService(deps PolicyDependencies) *PolicyService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyService{
		departments: deps.DepartmentRepo,
		policies:    deps.PolicyRepo,
		cache:       deps.Cache,
		dispatcher:  deps.Dispatcher,
		logger:      logger,
	}
}

// SetPolicy publishes a new policy version for a department. The previous
// current version is stamped valid_to, never mutated, so tickets opened under
// it keep their original deadline semantics. Concurrent writers are
// serialized per department; a loser re-reads the fresh current version and
// retries.
func (s *PolicyService) SetPolicy(ctx context.Context, departmentID string, input PolicyInput) (*domain.SLAPolicy, error) {
	if err := validatePolicyInput(input); err != nil {
		return nil, err
	}

	dept, err := s.departments.GetByID(ctx, departmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": departmentID})
		}
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < policyWriteAttempts; attempt++ {
		var expectedCurrentID *string
		current, err := s.policies.GetCurrent(ctx, dept.ID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		if current != nil {
			expectedCurrentID = &current.ID
		}

		policy := &domain.SLAPolicy{
			DepartmentID:    dept.ID,
			TargetMinutes:   input.TargetMinutes,
			WarnMinutes:     input.WarnMinutes,
			EscalateMinutes: input.EscalateMinutes,
			StartTrigger:    input.StartTrigger,
		}
		err = s.policies.Supersede(ctx, policy, expectedCurrentID)
		if err == nil {
			s.invalidateCache(ctx, dept.ID)
			s.publish(ctx, events.Event{
				Type: events.EventPolicyVersionPublished,
				Payload: events.PolicyVersionPublishedPayload{
					DepartmentID:    dept.ID,
					PolicyVersionID: policy.ID,
					TargetMinutes:   policy.TargetMinutes,
				},
			})
			return policy, nil
		}
		if !apperrors.IsStaleWrite(err) {
			return nil, err
		}
		lastErr = err
		s.logger.Warn("policy write lost race, retrying",
			zap.String("department_id", dept.ID),
			zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// GetCurrentPolicy returns the department's current policy. Reads go through
// a short-lived cache: slightly stale reads are acceptable because clock
// start capture, not the live read, is what pins a ticket's deadline.
func (s *PolicyService) GetCurrentPolicy(ctx context.Context, departmentID string) (*domain.SLAPolicy, error) {
	if cached := s.cachedPolicy(ctx, departmentID); cached != nil {
		return cached, nil
	}

	policy, err := s.policies.GetCurrent(ctx, departmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla policy", map[string]any{"department_id": departmentID})
		}
		return nil, err
	}
	s.cachePolicy(ctx, policy)
	return policy, nil
}

// GetVersion returns a specific policy version, current or superseded.
func (s *PolicyService) GetVersion(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("sla policy version", map[string]any{"policy_version_id": id})
		}
		return nil, err
	}
	return policy, nil
}

// History lists all policy versions for a department, newest first.
func (s *PolicyService) History(ctx context.Context, departmentID string) ([]domain.SLAPolicy, error) {
	return s.policies.ListByDepartment(ctx, departmentID)
}

func validatePolicyInput(input PolicyInput) error {
	details := map[string]any{}
	// A zero target is legal: the ticket is due the instant its clock starts.
	if input.TargetMinutes < 0 {
		details["target_minutes"] = "must be >= 0"
	}
	if input.WarnMinutes < 0 {
		details["warn_minutes"] = "must be >= 0"
	}
	if input.EscalateMinutes < 0 {
		details["escalate_minutes"] = "must be >= 0"
	}
	if input.WarnMinutes > input.TargetMinutes {
		// A warning that would fire after the breach is nonsensical.
		details["warn_minutes"] = "must not exceed target_minutes"
	}
	if !input.StartTrigger.IsValid() {
		details["start_trigger"] = "must be one of ON_CREATE, ON_ASSIGN, ON_ACCEPT"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sla policy", details)
	}
	return nil
}

func (s *PolicyService) cachedPolicy(ctx context.Context, departmentID string) *domain.SLAPolicy {
	if s.cache == nil || s.cache.Client == nil {
		return nil
	}
	raw, err := s.cache.Client.Get(ctx, policyCacheKeyPrefix+departmentID).Bytes()
	if err != nil {
		return nil
	}
	var policy domain.SLAPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return nil
	}
	return &policy
}

func (s *PolicyService) cachePolicy(ctx context.Context, policy *domain.SLAPolicy) {
	if s.cache == nil || s.cache.Client == nil {
		return
	}
	raw, err := json.Marshal(policy)
	if err != nil {
		return
	}
	if err := s.cache.Client.Set(ctx, policyCacheKeyPrefix+policy.DepartmentID, raw, policyCacheTTL).Err(); err != nil {
		s.logger.Debug("policy cache set failed", zap.Error(err))
	}
}

func (s *PolicyService) invalidateCache(ctx context.Context, departmentID string) {
	if s.cache == nil || s.cache.Client == nil {
		return
	}
	if err := s.cache.Client.Del(ctx, policyCacheKeyPrefix+departmentID).Err(); err != nil {
		s.logger.Debug("policy cache invalidation failed", zap.Error(err))
	}
}

func (s *PolicyService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, event)
}
