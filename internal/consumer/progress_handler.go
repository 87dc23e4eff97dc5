package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"example.com/progress/internal/domain"
	"example.com/progress/internal/events"
	"example.com/progress/internal/observability"
)

// ProgressStore is the persistence surface the handler needs: entry and plan
// ingestion plus the cached progress read/write used for milestone detection.
type ProgressStore interface {
	UpsertPlan(ctx context.Context, plan domain.Plan) error
	UpsertEntry(ctx context.Context, entry domain.ActivityEntry) error
	SoftDeleteEntry(ctx context.Context, tenantID, entryID string, deletedAt time.Time) error
	PlansTrackingActivity(ctx context.Context, tenantID, activityID string) ([]string, error)
	PlanSnapshot(ctx context.Context, tenantID, planID string) (*domain.Snapshot, error)
	GetProgress(ctx context.Context, tenantID, planID string) (*domain.AchievementResult, error)
	SaveProgress(ctx context.Context, plan domain.Plan, result domain.AchievementResult, crossedTiers []domain.Tier, achievedNow bool, occurredAt time.Time) error
}

// ProgressHandler applies entry and plan events to the store, then recomputes
// the cached achievement for every plan the event touches. Milestone events
// (tier crossings, plan achievement) are written to the outbox in the same
// transaction as the progress row.
type ProgressHandler struct {
	store  ProgressStore
	cfg    domain.Config
	now    func() time.Time
	logger *log.Logger
}

// HandlerOption configures optional behaviour for the ProgressHandler.
type HandlerOption func(*ProgressHandler)

// WithHandlerClock overrides the wall clock, mainly for tests.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *ProgressHandler) {
		h.now = now
	}
}

// WithHandlerLogger overrides the logger used to report recompute errors.
func WithHandlerLogger(logger *log.Logger) HandlerOption {
	return func(h *ProgressHandler) {
		h.logger = logger
	}
}

// NewProgressHandler constructs a handler backed by the provided store.
func NewProgressHandler(store ProgressStore, cfg domain.Config, opts ...HandlerOption) *ProgressHandler {
	h := &ProgressHandler{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: log.New(log.Writer(), "[progress-handler] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle routes one decoded message by its event type. Unknown event types
// return an error so the processor leaves the offset uncommitted.
func (h *ProgressHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case "entry.logged":
		return h.handleEntryLogged(ctx, msg)
	case "entry.deleted":
		return h.handleEntryDeleted(ctx, msg)
	case "plan.upserted":
		return h.handlePlanUpserted(ctx, msg)
	default:
		return fmt.Errorf("unhandled event type: %s", msg.EventType)
	}
}

func (h *ProgressHandler) handleEntryLogged(ctx context.Context, msg Message) error {
	var payload events.EntryLogged
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal entry.logged: %w", err)
	}

	entry := domain.ActivityEntry{
		ID:         payload.EntryID,
		TenantID:   payload.TenantID,
		UserID:     payload.UserID,
		ActivityID: payload.ActivityID,
		Date:       payload.Date,
		Quantity:   payload.Quantity,
		Source:     payload.Source,
	}
	if err := h.store.UpsertEntry(ctx, entry); err != nil {
		return fmt.Errorf("upsert entry %s: %w", payload.EntryID, err)
	}

	return h.recomputeForActivity(ctx, payload.TenantID, payload.ActivityID)
}

func (h *ProgressHandler) handleEntryDeleted(ctx context.Context, msg Message) error {
	var payload events.EntryDeleted
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal entry.deleted: %w", err)
	}

	deletedAt := payload.DeletedAt
	if deletedAt.IsZero() {
		deletedAt = h.now()
	}
	if err := h.store.SoftDeleteEntry(ctx, payload.TenantID, payload.EntryID, deletedAt); err != nil {
		return fmt.Errorf("soft delete entry %s: %w", payload.EntryID, err)
	}

	return h.recomputeForActivity(ctx, payload.TenantID, payload.ActivityID)
}

func (h *ProgressHandler) handlePlanUpserted(ctx context.Context, msg Message) error {
	var payload events.PlanUpserted
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal plan.upserted: %w", err)
	}

	plan := domain.Plan{
		ID:                 payload.PlanID,
		TenantID:           payload.TenantID,
		UserID:             payload.UserID,
		Title:              payload.Title,
		Outline:            domain.OutlineType(payload.OutlineType),
		TimesPerWeek:       payload.TimesPerWeek,
		TrackedActivityIDs: payload.TrackedActivityIDs,
		FinishingDate:      payload.FinishingDate,
		UpdatedAt:          payload.UpdatedAt,
	}
	for _, session := range payload.Sessions {
		plan.Sessions = append(plan.Sessions, domain.PlannedSession{
			ID:         session.SessionID,
			ActivityID: session.ActivityID,
			Date:       session.Date,
			Quantity:   session.Quantity,
		})
	}

	if err := h.store.UpsertPlan(ctx, plan); err != nil {
		return fmt.Errorf("upsert plan %s: %w", payload.PlanID, err)
	}

	return h.recomputePlan(ctx, payload.TenantID, payload.PlanID)
}

// recomputeForActivity refreshes the cached achievement of every plan that
// tracks the given activity.
func (h *ProgressHandler) recomputeForActivity(ctx context.Context, tenantID, activityID string) error {
	planIDs, err := h.store.PlansTrackingActivity(ctx, tenantID, activityID)
	if err != nil {
		return fmt.Errorf("plans tracking %s: %w", activityID, err)
	}
	for _, planID := range planIDs {
		if err := h.recomputePlan(ctx, tenantID, planID); err != nil {
			return err
		}
	}
	return nil
}

func (h *ProgressHandler) recomputePlan(ctx context.Context, tenantID, planID string) error {
	snap, err := h.store.PlanSnapshot(ctx, tenantID, planID)
	if err != nil {
		return fmt.Errorf("snapshot plan %s: %w", planID, err)
	}
	if snap == nil {
		// A plan.upserted for this plan has not arrived yet.
		h.logger.Printf("skipping recompute, plan not found (tenant=%s, plan=%s)", tenantID, planID)
		return nil
	}

	previous, err := h.store.GetProgress(ctx, tenantID, planID)
	if err != nil {
		return fmt.Errorf("load progress %s: %w", planID, err)
	}

	now := h.now()
	started := time.Now()
	result := domain.CalculateAchievement(snap.Plan, snap.Activities, snap.Entries, nil, now, h.cfg)
	observability.ObserveComputeDuration(time.Since(started))

	crossed := crossedTiers(previous, result, h.cfg)
	achievedNow := result.IsAchieved && (previous == nil || !previous.IsAchieved)

	if err := h.store.SaveProgress(ctx, snap.Plan, result, crossed, achievedNow, now); err != nil {
		return fmt.Errorf("save progress %s: %w", planID, err)
	}

	for _, tier := range crossed {
		observability.RecordTierReached(tier.Name)
	}
	return nil
}

// crossedTiers lists tiers the streak reached with this computation but had
// not reached before.
func crossedTiers(previous *domain.AchievementResult, current domain.AchievementResult, cfg domain.Config) []domain.Tier {
	prevStreak := 0
	if previous != nil {
		prevStreak = previous.Streak
	}

	var crossed []domain.Tier
	for _, tier := range cfg.Tiers {
		if prevStreak < tier.Weeks && current.Streak >= tier.Weeks {
			crossed = append(crossed, tier)
		}
	}
	return crossed
}
