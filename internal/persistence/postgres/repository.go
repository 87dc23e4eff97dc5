package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progress/internal/domain"
	"example.com/progress/internal/events"
	"example.com/progress/internal/observability"
)

// Repository provides Postgres-backed persistence for plans, activity
// entries, cached progress, and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPlan loads a plan with its sessions and tracked activity set. Returns
// nil when no plan matches.
func (r *Repository) GetPlan(ctx context.Context, tenantID, planID string) (*domain.Plan, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	plan, err := loadPlan(ctx, tx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, tx.Commit(ctx)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return plan, nil
}

// PlanSnapshot loads the immutable computation input for one plan: the plan
// itself, the tracked activities, and the live (non-deleted) entries for
// those activities.
func (r *Repository) PlanSnapshot(ctx context.Context, tenantID, planID string) (*domain.Snapshot, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	plan, err := loadPlan(ctx, tx, tenantID, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, tx.Commit(ctx)
	}

	snap := &domain.Snapshot{Plan: *plan}

	const activityQuery = `SELECT a.activity_id, a.tenant_id, a.name
        FROM activities a
        JOIN plan_tracked_activities t ON t.activity_id = a.activity_id AND t.tenant_id = a.tenant_id
        WHERE t.tenant_id=$1 AND t.plan_id=$2`

	rows, err := tx.Query(ctx, activityQuery, tenantID, planID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var activity domain.Activity
		if err := rows.Scan(&activity.ID, &activity.TenantID, &activity.Name); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Activities = append(snap.Activities, activity)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const entryQuery = `SELECT e.entry_id, e.tenant_id, e.user_id, e.activity_id, e.entry_date, e.quantity, e.source
        FROM activity_entries e
        JOIN plan_tracked_activities t ON t.activity_id = e.activity_id AND t.tenant_id = e.tenant_id
        WHERE t.tenant_id=$1 AND t.plan_id=$2 AND e.deleted_at IS NULL
        ORDER BY e.entry_date ASC, e.entry_id ASC`

	rows, err = tx.Query(ctx, entryQuery, tenantID, planID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.UserID, &entry.ActivityID, &entry.Date, &entry.Quantity, &entry.Source); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Entries = append(snap.Entries, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListEntries returns the live entry feed for a plan's tracked activities,
// newest first, with keyset pagination.
func (r *Repository) ListEntries(ctx context.Context, tenantID, planID string, cursor *domain.Cursor, limit int) ([]domain.ActivityEntry, *domain.Cursor, error) {
	args := []interface{}{tenantID, planID, limit}
	query := `SELECT e.entry_id, e.tenant_id, e.user_id, e.activity_id, e.entry_date, e.quantity, e.source
        FROM activity_entries e
        JOIN plan_tracked_activities t ON t.activity_id = e.activity_id AND t.tenant_id = e.tenant_id
        WHERE t.tenant_id=$1 AND t.plan_id=$2 AND e.deleted_at IS NULL`

	if cursor != nil {
		query += ` AND (e.entry_date, e.entry_id) < ($4, $5)`
		args = append(args, cursor.Date, cursor.ID)
	}

	query += ` ORDER BY e.entry_date DESC, e.entry_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.ActivityEntry, 0, limit)
	for rows.Next() {
		var entry domain.ActivityEntry
		if err := rows.Scan(&entry.ID, &entry.TenantID, &entry.UserID, &entry.ActivityID, &entry.Date, &entry.Quantity, &entry.Source); err != nil {
			return nil, nil, err
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{Date: last.Date, ID: last.ID}
	}

	return results, nextCursor, nil
}

// UpsertPlan replaces the stored plan snapshot, including its sessions and
// tracked activity set, inside a single transaction.
func (r *Repository) UpsertPlan(ctx context.Context, plan domain.Plan) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", plan.TenantID); err != nil {
		return err
	}

	const upsertPlan = `INSERT INTO plans (plan_id, tenant_id, user_id, title, outline_type, times_per_week, finishing_date, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (tenant_id, plan_id) DO UPDATE SET
            title = EXCLUDED.title,
            outline_type = EXCLUDED.outline_type,
            times_per_week = EXCLUDED.times_per_week,
            finishing_date = EXCLUDED.finishing_date,
            updated_at = EXCLUDED.updated_at`

	createdAt := plan.CreatedAt
	if createdAt.IsZero() {
		createdAt = plan.UpdatedAt
	}
	if _, err = tx.Exec(ctx, upsertPlan,
		plan.ID, plan.TenantID, plan.UserID, plan.Title, string(plan.Outline),
		plan.TimesPerWeek, plan.FinishingDate, createdAt, plan.UpdatedAt,
	); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM planned_sessions WHERE tenant_id=$1 AND plan_id=$2`, plan.TenantID, plan.ID); err != nil {
		return err
	}
	for _, session := range plan.Sessions {
		if _, err = tx.Exec(ctx,
			`INSERT INTO planned_sessions (session_id, plan_id, tenant_id, activity_id, session_date, quantity)
             VALUES ($1,$2,$3,$4,$5,$6)`,
			session.ID, plan.ID, plan.TenantID, session.ActivityID, session.Date, session.Quantity,
		); err != nil {
			return err
		}
	}

	if _, err = tx.Exec(ctx, `DELETE FROM plan_tracked_activities WHERE tenant_id=$1 AND plan_id=$2`, plan.TenantID, plan.ID); err != nil {
		return err
	}
	for _, activityID := range plan.TrackedActivityIDs {
		if _, err = tx.Exec(ctx,
			`INSERT INTO plan_tracked_activities (plan_id, tenant_id, activity_id) VALUES ($1,$2,$3)`,
			plan.ID, plan.TenantID, activityID,
		); err != nil {
			return err
		}
		// The tracked set is the only activity signal this service gets;
		// keep the activities table in sync.
		if _, err = tx.Exec(ctx,
			`INSERT INTO activities (activity_id, tenant_id, name) VALUES ($1,$2,$3)
             ON CONFLICT (tenant_id, activity_id) DO NOTHING`,
			activityID, plan.TenantID, activityID,
		); err != nil {
			return err
		}
	}

	err = tx.Commit(ctx)
	return err
}

// UpsertEntry stores one activity entry, replaying idempotently on conflict.
func (r *Repository) UpsertEntry(ctx context.Context, entry domain.ActivityEntry) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", entry.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO activity_entries (entry_id, tenant_id, user_id, activity_id, entry_date, quantity, source, deleted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (tenant_id, entry_id) DO UPDATE SET
            entry_date = EXCLUDED.entry_date,
            quantity = EXCLUDED.quantity,
            deleted_at = EXCLUDED.deleted_at`

	if _, err = tx.Exec(ctx, stmt,
		entry.ID, entry.TenantID, entry.UserID, entry.ActivityID,
		entry.Date, entry.Quantity, entry.Source, entry.DeletedAt,
	); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordEntryPersisted(entry.Date)
	return nil
}

// SoftDeleteEntry marks an entry deleted without removing the row.
func (r *Repository) SoftDeleteEntry(ctx context.Context, tenantID, entryID string, deletedAt time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx,
		`UPDATE activity_entries SET deleted_at=$1 WHERE tenant_id=$2 AND entry_id=$3`,
		deletedAt, tenantID, entryID,
	); err != nil {
		return err
	}

	err = tx.Commit(ctx)
	return err
}

// PlansTrackingActivity returns the ids of all plans monitoring the given
// activity. The consumer uses this set to decide which plans to recompute.
func (r *Repository) PlansTrackingActivity(ctx context.Context, tenantID, activityID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx,
		`SELECT plan_id FROM plan_tracked_activities WHERE tenant_id=$1 AND activity_id=$2`,
		tenantID, activityID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var planIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		planIDs = append(planIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return planIDs, nil
}

// GetProgress loads the cached achievement for a plan, or nil when no
// computation has been recorded yet.
func (r *Repository) GetProgress(ctx context.Context, tenantID, planID string) (*domain.AchievementResult, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx,
		`SELECT streak, total_weeks, completed_weeks, incomplete_weeks, is_achieved, weeks_to_achieve
         FROM plan_progress WHERE tenant_id=$1 AND plan_id=$2`,
		tenantID, planID,
	)

	var result domain.AchievementResult
	if err := row.Scan(&result.Streak, &result.TotalWeeks, &result.CompletedWeeks, &result.IncompleteWeeks, &result.IsAchieved, &result.WeeksToAchieve); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveProgress upserts the cached achievement and records milestone events
// in the outbox inside the same transaction. crossedTiers lists tiers the
// streak reached with this computation; achievedNow flags the first time
// the ratio threshold was met.
func (r *Repository) SaveProgress(ctx context.Context, plan domain.Plan, result domain.AchievementResult, crossedTiers []domain.Tier, achievedNow bool, occurredAt time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", plan.TenantID); err != nil {
		return err
	}

	const stmt = `INSERT INTO plan_progress (plan_id, tenant_id, streak, total_weeks, completed_weeks, incomplete_weeks, is_achieved, weeks_to_achieve, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (tenant_id, plan_id) DO UPDATE SET
            streak = EXCLUDED.streak,
            total_weeks = EXCLUDED.total_weeks,
            completed_weeks = EXCLUDED.completed_weeks,
            incomplete_weeks = EXCLUDED.incomplete_weeks,
            is_achieved = EXCLUDED.is_achieved,
            weeks_to_achieve = EXCLUDED.weeks_to_achieve,
            updated_at = EXCLUDED.updated_at`

	if _, err = tx.Exec(ctx, stmt,
		plan.ID, plan.TenantID, result.Streak, result.TotalWeeks, result.CompletedWeeks,
		result.IncompleteWeeks, result.IsAchieved, result.WeeksToAchieve, occurredAt,
	); err != nil {
		return err
	}

	for _, tier := range crossedTiers {
		if err = r.insertOutbox(ctx, tx, plan, "progress.tier_reached", tier.Name, events.TierReached{
			PlanID:     plan.ID,
			TenantID:   plan.TenantID,
			UserID:     plan.UserID,
			Tier:       tier.Name,
			TierWeeks:  tier.Weeks,
			Streak:     result.Streak,
			OccurredAt: occurredAt,
		}); err != nil {
			return err
		}
	}

	if achievedNow {
		if err = r.insertOutbox(ctx, tx, plan, "progress.plan_achieved", "", events.PlanAchieved{
			PlanID:         plan.ID,
			TenantID:       plan.TenantID,
			UserID:         plan.UserID,
			CompletedWeeks: result.CompletedWeeks,
			TotalWeeks:     result.TotalWeeks,
			OccurredAt:     occurredAt,
		}); err != nil {
			return err
		}
	}

	err = tx.Commit(ctx)
	return err
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, plan domain.Plan, eventType, discriminator string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	dedupeKey := fmt.Sprintf("%s:%s", plan.ID, eventType)
	if discriminator != "" {
		dedupeKey = fmt.Sprintf("%s:%s", dedupeKey, discriminator)
	}

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		plan.TenantID,
		"plan",
		plan.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(plan),
		body,
		dedupeKey,
	)
	return err
}

func loadPlan(ctx context.Context, tx pgx.Tx, tenantID, planID string) (*domain.Plan, error) {
	const planQuery = `SELECT plan_id, tenant_id, user_id, title, outline_type, times_per_week, finishing_date, created_at, updated_at
        FROM plans WHERE tenant_id=$1 AND plan_id=$2`

	row := tx.QueryRow(ctx, planQuery, tenantID, planID)
	var plan domain.Plan
	var outline string
	if err := row.Scan(&plan.ID, &plan.TenantID, &plan.UserID, &plan.Title, &outline, &plan.TimesPerWeek, &plan.FinishingDate, &plan.CreatedAt, &plan.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	plan.Outline = domain.OutlineType(outline)

	const sessionQuery = `SELECT session_id, activity_id, session_date, quantity
        FROM planned_sessions WHERE tenant_id=$1 AND plan_id=$2 ORDER BY session_date ASC, session_id ASC`

	rows, err := tx.Query(ctx, sessionQuery, tenantID, planID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var session domain.PlannedSession
		if err := rows.Scan(&session.ID, &session.ActivityID, &session.Date, &session.Quantity); err != nil {
			rows.Close()
			return nil, err
		}
		plan.Sessions = append(plan.Sessions, session)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const trackedQuery = `SELECT activity_id FROM plan_tracked_activities WHERE tenant_id=$1 AND plan_id=$2`

	rows, err = tx.Query(ctx, trackedQuery, tenantID, planID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		plan.TrackedActivityIDs = append(plan.TrackedActivityIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &plan, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Plan) string
}

var eventCatalog = map[string]EventMetadata{
	"progress.tier_reached": {
		Topic:         "progress_events",
		SchemaSubject: "progress_events-value",
		PartitionKeyFn: func(p domain.Plan) string {
			return fmt.Sprintf("%s:%s", p.TenantID, p.UserID)
		},
	},
	"progress.plan_achieved": {
		Topic:         "progress_events",
		SchemaSubject: "progress_events-value",
		PartitionKeyFn: func(p domain.Plan) string {
			return fmt.Sprintf("%s:%s", p.TenantID, p.UserID)
		},
	},
}
