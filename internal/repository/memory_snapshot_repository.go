package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// MemorySnapshotRepository is an in-memory SnapshotRepository used by tests.
type MemorySnapshotRepository struct {
	mu       sync.RWMutex
	outcomes map[string]domain.TicketOutcome
	buckets  map[string]*domain.ComplianceBucket
}

// NewMemorySnapshotRepository creates an empty in-memory repository.
func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{
		outcomes: make(map[string]domain.TicketOutcome),
		buckets:  make(map[string]*domain.ComplianceBucket),
	}
}

func (r *MemorySnapshotRepository) FoldOutcome(ctx context.Context, outcome *domain.TicketOutcome) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.outcomes[outcome.TicketID]; exists {
		return false, nil
	}
	outcome.RecordedAt = time.Now()
	r.outcomes[outcome.TicketID] = *outcome

	day := outcome.OccurredAt.UTC().Truncate(24 * time.Hour)
	key := outcome.DepartmentID + "|" + day.Format("2006-01-02")
	bucket, ok := r.buckets[key]
	if !ok {
		bucket = &domain.ComplianceBucket{DepartmentID: outcome.DepartmentID, Day: day}
		r.buckets[key] = bucket
	}
	switch outcome.Outcome {
	case domain.OutcomeBreached:
		bucket.BreachedSLA++
	case domain.OutcomeExempted:
		bucket.SLAExempted++
	default:
		bucket.CompletedWithinSLA++
	}
	return true, nil
}

func (r *MemorySnapshotRepository) Trend(ctx context.Context, from, to time.Time) ([]domain.ComplianceBucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byDay := make(map[time.Time]*domain.ComplianceBucket)
	for _, bucket := range r.buckets {
		if bucket.Day.Before(from) || bucket.Day.After(to) {
			continue
		}
		merged, ok := byDay[bucket.Day]
		if !ok {
			merged = &domain.ComplianceBucket{Day: bucket.Day}
			byDay[bucket.Day] = merged
		}
		merged.CompletedWithinSLA += bucket.CompletedWithinSLA
		merged.BreachedSLA += bucket.BreachedSLA
		merged.SLAExempted += bucket.SLAExempted
	}

	result := make([]domain.ComplianceBucket, 0, len(byDay))
	for _, bucket := range byDay {
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result, nil
}

func (r *MemorySnapshotRepository) TrendByDepartment(ctx context.Context, departmentID string, from, to time.Time) ([]domain.ComplianceBucket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.ComplianceBucket
	for _, bucket := range r.buckets {
		if bucket.DepartmentID != departmentID || bucket.Day.Before(from) || bucket.Day.After(to) {
			continue
		}
		result = append(result, *bucket)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day) })
	return result, nil
}

func (r *MemorySnapshotRepository) Impact(ctx context.Context, from, to time.Time) ([]domain.ImpactRow, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	breachedByDept := make(map[string]int64)
	for _, outcome := range r.outcomes {
		if outcome.OccurredAt.Before(from) || outcome.OccurredAt.After(to) {
			continue
		}
		total++
		if outcome.Outcome == domain.OutcomeBreached {
			breachedByDept[outcome.DepartmentID]++
		}
	}

	result := make([]domain.ImpactRow, 0, len(breachedByDept))
	for departmentID, count := range breachedByDept {
		result = append(result, domain.ImpactRow{
			DepartmentID:   departmentID,
			DepartmentName: departmentID,
			BreachedCount:  count,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BreachedCount > result[j].BreachedCount })
	return result, total, nil
}

func (r *MemorySnapshotRepository) ListExceptions(ctx context.Context, departmentID string, serviceKey *string, from time.Time) ([]domain.TicketOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.TicketOutcome
	for _, outcome := range r.outcomes {
		if outcome.DepartmentID != departmentID || outcome.Outcome != domain.OutcomeBreached {
			continue
		}
		if outcome.OccurredAt.Before(from) {
			continue
		}
		if serviceKey != nil && outcome.ServiceKey != *serviceKey {
			continue
		}
		result = append(result, outcome)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OccurredAt.After(result[j].OccurredAt) })
	return result, nil
}
