// Package domain implements the plan progress and achievement engine: pure
// week-windowing, completion, streak, and summary computations plus the
// service that feeds them repository snapshots.
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrPlanNotFound is returned when a plan cannot be located.
var ErrPlanNotFound = errors.New("plan not found")

// Snapshot is the immutable input the engine computes from. Soft-deleted
// entries are excluded upstream; the engine drops any that slip through.
type Snapshot struct {
	Plan       Plan
	Activities []Activity
	Entries    []ActivityEntry
}

// Cursor models the pagination token for the entry log.
type Cursor struct {
	Date time.Time
	ID   string
}

// Repository captures persistence operations.
type Repository interface {
	GetPlan(ctx context.Context, tenantID, planID string) (*Plan, error)
	PlanSnapshot(ctx context.Context, tenantID, planID string) (*Snapshot, error)
	ListEntries(ctx context.Context, tenantID, planID string, cursor *Cursor, limit int) ([]ActivityEntry, *Cursor, error)
}

// Service orchestrates progress computations over repository snapshots. It
// holds no mutable state of its own; every call reads a fresh snapshot and
// allocates a fresh result, so it is safe for concurrent use.
type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithClock overrides the clock used to anchor the current week.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(repo Repository, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config exposes the engine constants the service was built with.
func (s *Service) Config() Config {
	return s.cfg
}

// PlanAchievement loads the plan snapshot and derives the achievement
// verdict plus tier progress.
func (s *Service) PlanAchievement(ctx context.Context, tenantID, planID string) (AchievementResult, []TierProgress, error) {
	snap, err := s.loadSnapshot(ctx, tenantID, planID)
	if err != nil {
		return AchievementResult{}, nil, err
	}

	result := CalculateAchievement(snap.Plan, snap.Activities, snap.Entries, nil, s.now(), s.cfg)
	return result, TierProgression(result.Streak, s.cfg), nil
}

// PlanWeekSummaries loads the plan snapshot and builds the per-week view
// starting at rangeStart, or the current week when rangeStart is nil.
func (s *Service) PlanWeekSummaries(ctx context.Context, tenantID, planID string, rangeStart *time.Time) ([]WeekSummary, error) {
	snap, err := s.loadSnapshot(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	return PlanWeeks(snap.Plan, snap.Activities, snap.Entries, rangeStart, s.now(), s.cfg), nil
}

// EntryLog returns the cursor-paginated raw entry feed for a plan.
func (s *Service) EntryLog(ctx context.Context, tenantID, planID string, cursor *Cursor, limit int) ([]ActivityEntry, *Cursor, error) {
	plan, err := s.repo.GetPlan(ctx, tenantID, planID)
	if err != nil {
		return nil, nil, err
	}
	if plan == nil {
		return nil, nil, ErrPlanNotFound
	}
	return s.repo.ListEntries(ctx, tenantID, planID, cursor, limit)
}

func (s *Service) loadSnapshot(ctx context.Context, tenantID, planID string) (*Snapshot, error) {
	snap, err := s.repo.PlanSnapshot(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrPlanNotFound
	}
	return snap, nil
}
