package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
	"github.com/spec-kit/sla-engine/internal/repository"
	apperrors "github.com/spec-kit/sla-engine/pkg/util"
)

func newPolicyFixture(t *testing.T) (*PolicyService, *domain.Department, events.Dispatcher) {
	t.Helper()
	departments := repository.NewMemoryDepartmentRepository()
	dept := &domain.Department{Code: "HSK", Name: "Housekeeping", IsActive: true}
	require.NoError(t, departments.Create(context.Background(), dept))

	dispatcher := events.NewInMemoryDispatcher()
	svc := NewPolicyService(PolicyDependencies{
		DepartmentRepo: departments,
		PolicyRepo:     repository.NewMemoryPolicyRepository(),
		Dispatcher:     dispatcher,
		Logger:         zap.NewNop(),
	})
	return svc, dept, dispatcher
}

func validInput() PolicyInput {
	return PolicyInput{
		TargetMinutes:   30,
		WarnMinutes:     10,
		EscalateMinutes: 15,
		StartTrigger:    domain.StartTriggerOnAssign,
	}
}

func TestSetPolicyValidation(t *testing.T) {
	svc, dept, _ := newPolicyFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*PolicyInput)
	}{
		{"negative target", func(in *PolicyInput) { in.TargetMinutes = -5 }},
		{"negative warn", func(in *PolicyInput) { in.WarnMinutes = -1 }},
		{"negative escalate", func(in *PolicyInput) { in.EscalateMinutes = -1 }},
		{"warn exceeds target", func(in *PolicyInput) { in.WarnMinutes = 31 }},
		{"unknown trigger", func(in *PolicyInput) { in.StartTrigger = "ON_WHIM" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			_, err := svc.SetPolicy(ctx, dept.ID, input)
			require.Error(t, err)
			var domainErr *apperrors.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
		})
	}

	t.Run("unknown department", func(t *testing.T) {
		_, err := svc.SetPolicy(ctx, "missing", validInput())
		require.Error(t, err)
	})
}

func TestSetPolicyZeroTarget(t *testing.T) {
	svc, dept, _ := newPolicyFixture(t)

	// Due the moment the clock starts; some departments run "immediate
	// response" services this way.
	policy, err := svc.SetPolicy(context.Background(), dept.ID, PolicyInput{
		TargetMinutes:   0,
		WarnMinutes:     0,
		EscalateMinutes: 5,
		StartTrigger:    domain.StartTriggerOnCreate,
	})
	require.NoError(t, err)
	assert.True(t, policy.IsCurrent())
	assert.Equal(t, 0, policy.TargetMinutes)
}

func TestSetPolicyVersioning(t *testing.T) {
	svc, dept, dispatcher := newPolicyFixture(t)
	ctx := context.Background()

	var published []events.Event
	dispatcher.Subscribe(events.EventPolicyVersionPublished, func(ctx context.Context, event events.Event) error {
		published = append(published, event)
		return nil
	})

	first, err := svc.SetPolicy(ctx, dept.ID, validInput())
	require.NoError(t, err)
	assert.True(t, first.IsCurrent())

	second, err := svc.SetPolicy(ctx, dept.ID, PolicyInput{
		TargetMinutes:   45,
		WarnMinutes:     15,
		EscalateMinutes: 20,
		StartTrigger:    domain.StartTriggerOnCreate,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	current, err := svc.GetCurrentPolicy(ctx, dept.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, 45, current.TargetMinutes)

	// The superseded version stays readable: tickets pinned to it still
	// resolve their original deadline parameters.
	superseded, err := svc.GetVersion(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, superseded.ValidTo)
	assert.Equal(t, 30, superseded.TargetMinutes)

	history, err := svc.History(ctx, dept.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	assert.Len(t, published, 2)
}

// racingPolicyRepo lets a rival version land between a caller's read of the
// current policy and its write, forcing the compare-and-set to fail once.
type racingPolicyRepo struct {
	*repository.MemoryPolicyRepository
	rival          *domain.SLAPolicy
	supersedeCalls int
}

func (r *racingPolicyRepo) Supersede(ctx context.Context, policy *domain.SLAPolicy, expectedCurrentID *string) error {
	r.supersedeCalls++
	if r.rival != nil {
		rival := r.rival
		r.rival = nil
		if err := r.MemoryPolicyRepository.Supersede(ctx, rival, expectedCurrentID); err != nil {
			return err
		}
	}
	return r.MemoryPolicyRepository.Supersede(ctx, policy, expectedCurrentID)
}

func TestSetPolicyRetriesLostRace(t *testing.T) {
	departments := repository.NewMemoryDepartmentRepository()
	dept := &domain.Department{Code: "MNT", Name: "Maintenance", IsActive: true}
	require.NoError(t, departments.Create(context.Background(), dept))

	racing := &racingPolicyRepo{MemoryPolicyRepository: repository.NewMemoryPolicyRepository()}
	svc := NewPolicyService(PolicyDependencies{
		DepartmentRepo: departments,
		PolicyRepo:     racing,
		Dispatcher:     events.NewInMemoryDispatcher(),
		Logger:         zap.NewNop(),
	})
	ctx := context.Background()

	seed, err := svc.SetPolicy(ctx, dept.ID, validInput())
	require.NoError(t, err)

	// Both writers read the seed as current; the rival wins the first write.
	racing.rival = &domain.SLAPolicy{
		DepartmentID:    dept.ID,
		TargetMinutes:   60,
		WarnMinutes:     20,
		EscalateMinutes: 10,
		StartTrigger:    domain.StartTriggerOnCreate,
	}
	callsBefore := racing.supersedeCalls

	loser, err := svc.SetPolicy(ctx, dept.ID, PolicyInput{
		TargetMinutes:   90,
		WarnMinutes:     30,
		EscalateMinutes: 15,
		StartTrigger:    domain.StartTriggerOnAssign,
	})
	require.NoError(t, err)

	// The loser re-read the fresh current version and wrote again.
	assert.Equal(t, 2, racing.supersedeCalls-callsBefore)

	current, err := svc.GetCurrentPolicy(ctx, dept.ID)
	require.NoError(t, err)
	assert.Equal(t, loser.ID, current.ID)
	assert.Equal(t, 90, current.TargetMinutes)

	history, err := svc.History(ctx, dept.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	currentCount := 0
	for _, p := range history {
		if p.ValidTo == nil {
			currentCount++
		}
	}
	assert.Equal(t, 1, currentCount)

	superseded, err := svc.GetVersion(ctx, seed.ID)
	require.NoError(t, err)
	assert.NotNil(t, superseded.ValidTo)
}

func TestGetCurrentPolicyMissing(t *testing.T) {
	svc, dept, _ := newPolicyFixture(t)
	_, err := svc.GetCurrentPolicy(context.Background(), dept.ID)
	require.Error(t, err)
}
