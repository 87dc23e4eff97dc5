// Package events defines the cross-service event payloads this service
// consumes and emits.
package events

import "time"

// EntryLogged is emitted by the activity-logging service when a user records
// an activity entry.
type EntryLogged struct {
	EntryID    string    `json:"entry_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	ActivityID string    `json:"activity_id"`
	Date       time.Time `json:"date"`
	Quantity   float64   `json:"quantity"`
	Source     string    `json:"source"`
}

// EntryDeleted is emitted when an entry is soft-deleted.
type EntryDeleted struct {
	EntryID    string    `json:"entry_id"`
	TenantID   string    `json:"tenant_id"`
	ActivityID string    `json:"activity_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// PlanUpserted carries the full plan snapshot from the plan-management
// service, including scheduled sessions and the tracked activity set.
type PlanUpserted struct {
	PlanID             string           `json:"plan_id"`
	TenantID           string           `json:"tenant_id"`
	UserID             string           `json:"user_id"`
	Title              string           `json:"title"`
	OutlineType        string           `json:"outline_type"`
	TimesPerWeek       int              `json:"times_per_week"`
	Sessions           []SessionPayload `json:"sessions,omitempty"`
	TrackedActivityIDs []string         `json:"tracked_activity_ids"`
	FinishingDate      *time.Time       `json:"finishing_date,omitempty"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// SessionPayload is one dated commitment inside a PlanUpserted snapshot.
type SessionPayload struct {
	SessionID  string    `json:"session_id"`
	ActivityID string    `json:"activity_id"`
	Date       time.Time `json:"date"`
	Quantity   float64   `json:"quantity"`
}

// TierReached is emitted when a plan's streak crosses a tier milestone.
type TierReached struct {
	PlanID     string    `json:"plan_id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Tier       string    `json:"tier"`
	TierWeeks  int       `json:"tier_weeks"`
	Streak     int       `json:"streak"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PlanAchieved is emitted when the completed/total ratio first reaches the
// achievement threshold.
type PlanAchieved struct {
	PlanID         string    `json:"plan_id"`
	TenantID       string    `json:"tenant_id"`
	UserID         string    `json:"user_id"`
	CompletedWeeks int       `json:"completed_weeks"`
	TotalWeeks     int       `json:"total_weeks"`
	OccurredAt     time.Time `json:"occurred_at"`
}
