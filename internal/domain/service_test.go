package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	snap    *Snapshot
	entries []ActivityEntry
	err     error
}

func (r *stubRepo) GetPlan(ctx context.Context, tenantID, planID string) (*Plan, error) {
	if r.snap == nil {
		return nil, r.err
	}
	plan := r.snap.Plan
	return &plan, r.err
}

func (r *stubRepo) PlanSnapshot(ctx context.Context, tenantID, planID string) (*Snapshot, error) {
	return r.snap, r.err
}

func (r *stubRepo) ListEntries(ctx context.Context, tenantID, planID string, cursor *Cursor, limit int) ([]ActivityEntry, *Cursor, error) {
	return r.entries, nil, r.err
}

func TestServicePlanAchievement(t *testing.T) {
	repo := &stubRepo{
		snap: &Snapshot{
			Plan:       frequencyPlan(1, "run"),
			Activities: acts("run"),
			Entries: []ActivityEntry{
				entry("e1", "run", at(2023, time.January, 2, 7)),
				entry("e2", "run", at(2023, time.January, 9, 7)),
			},
		},
	}
	now := at(2023, time.January, 10, 12)
	service := NewService(repo, DefaultConfig(), WithClock(func() time.Time { return now }))

	result, tiers, err := service.PlanAchievement(context.Background(), "tenant-1", "plan-1")
	require.NoError(t, err)
	require.Equal(t, 2, result.Streak)
	require.Equal(t, 2, result.CompletedWeeks)
	require.Len(t, tiers, 2)
	require.InDelta(t, 0.5, tiers[0].Progress, 1e-9)
}

func TestServicePlanNotFound(t *testing.T) {
	service := NewService(&stubRepo{}, DefaultConfig())

	_, _, err := service.PlanAchievement(context.Background(), "tenant-1", "missing")
	require.ErrorIs(t, err, ErrPlanNotFound)

	_, err = service.PlanWeekSummaries(context.Background(), "tenant-1", "missing", nil)
	require.ErrorIs(t, err, ErrPlanNotFound)

	_, _, err = service.EntryLog(context.Background(), "tenant-1", "missing", nil, 20)
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestServicePlanWeekSummariesUsesClock(t *testing.T) {
	repo := &stubRepo{
		snap: &Snapshot{
			Plan:       frequencyPlan(2, "run"),
			Activities: acts("run"),
		},
	}
	now := at(2023, time.January, 11, 9)
	service := NewService(repo, DefaultConfig(), WithClock(func() time.Time { return now }))

	weeks, err := service.PlanWeekSummaries(context.Background(), "tenant-1", "plan-1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, weeks)
	require.Equal(t, day(2023, time.January, 8), weeks[0].StartDate)
}
