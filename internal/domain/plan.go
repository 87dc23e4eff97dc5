package domain

import "time"

// OutlineType distinguishes how a plan measures a week.
type OutlineType string

const (
	// OutlineFrequency plans track a weekly quota of distinct active days.
	OutlineFrequency OutlineType = "frequency"
	// OutlineScheduled plans track concrete dated sessions per activity.
	OutlineScheduled OutlineType = "scheduled"
)

// Plan is the tracking definition owned by the plan-management service. The
// engine treats it as an immutable snapshot for the duration of a computation.
type Plan struct {
	ID                 string
	TenantID           string
	UserID             string
	Title              string
	Outline            OutlineType
	TimesPerWeek       int
	Sessions           []PlannedSession
	TrackedActivityIDs []string
	FinishingDate      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PlannedSession is one dated commitment inside a scheduled plan.
type PlannedSession struct {
	ID         string
	ActivityID string
	Date       time.Time
	Quantity   float64
}

// Activity is the tracked-set membership record; the engine only needs its identity.
type Activity struct {
	ID       string
	TenantID string
	Name     string
}

// ActivityEntry is one logged occurrence of an activity. Entries are
// append-mostly and soft-deleted, never rewritten.
type ActivityEntry struct {
	ID         string
	TenantID   string
	UserID     string
	ActivityID string
	Date       time.Time
	Quantity   float64
	Source     string
	DeletedAt  *time.Time
}

// Deleted reports whether the entry was soft-deleted.
func (e ActivityEntry) Deleted() bool {
	return e.DeletedAt != nil
}

// Tracks reports whether the plan monitors the given activity.
func (p Plan) Tracks(activityID string) bool {
	for _, id := range p.TrackedActivityIDs {
		if id == activityID {
			return true
		}
	}
	return false
}

func (p Plan) trackedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.TrackedActivityIDs))
	for _, id := range p.TrackedActivityIDs {
		set[id] = struct{}{}
	}
	return set
}
