package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/progress/internal/domain"
	"example.com/progress/internal/events"
)

// handlerClock keeps the computed current week stable across test runs.
var handlerClock = time.Date(2023, time.January, 18, 12, 0, 0, 0, time.UTC)

func newTestHandler(store *stubStore) *ProgressHandler {
	return NewProgressHandler(store, domain.DefaultConfig(), WithHandlerClock(func() time.Time { return handlerClock }))
}

func trackedPlan() domain.Plan {
	return domain.Plan{
		ID:                 "plan-1",
		TenantID:           "tenant-1",
		UserID:             "user-1",
		Title:              "Morning runs",
		Outline:            domain.OutlineFrequency,
		TimesPerWeek:       1,
		TrackedActivityIDs: []string{"run"},
	}
}

func runEntry(id string, date time.Time) domain.ActivityEntry {
	return domain.ActivityEntry{
		ID:         id,
		TenantID:   "tenant-1",
		UserID:     "user-1",
		ActivityID: "run",
		Date:       date,
		Quantity:   5,
		Source:     "manual",
	}
}

func encode(t *testing.T, eventType string, payload interface{}) Message {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return Message{
		Topic:     "entry_events",
		EventType: eventType,
		TenantID:  "tenant-1",
		Payload:   body,
	}
}

func TestHandleEntryLoggedRecomputesTrackingPlans(t *testing.T) {
	plan := trackedPlan()
	store := &stubStore{
		trackingPlans: []string{"plan-1"},
		snapshot: &domain.Snapshot{
			Plan:       plan,
			Activities: []domain.Activity{{ID: "run", TenantID: "tenant-1", Name: "Run"}},
			Entries: []domain.ActivityEntry{
				runEntry("e1", time.Date(2023, time.January, 3, 8, 0, 0, 0, time.UTC)),
				runEntry("e2", time.Date(2023, time.January, 10, 8, 0, 0, 0, time.UTC)),
			},
		},
	}
	handler := newTestHandler(store)

	msg := encode(t, "entry.logged", events.EntryLogged{
		EntryID:    "e2",
		TenantID:   "tenant-1",
		UserID:     "user-1",
		ActivityID: "run",
		Date:       time.Date(2023, time.January, 10, 8, 0, 0, 0, time.UTC),
		Quantity:   5,
		Source:     "manual",
	})

	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, store.upsertedEntries, 1)
	require.Equal(t, "e2", store.upsertedEntries[0].ID)
	require.Len(t, store.savedResults, 1)
	// Two completed past weeks plus the pending current week.
	require.Equal(t, 2, store.savedResults[0].Streak)
	require.Equal(t, 3, store.savedResults[0].TotalWeeks)
	require.Equal(t, 2, store.savedResults[0].CompletedWeeks)
}

func TestHandleEntryLoggedEmitsTierCrossing(t *testing.T) {
	plan := trackedPlan()
	entries := make([]domain.ActivityEntry, 0, 4)
	for week := 0; week < 4; week++ {
		date := time.Date(2022, time.December, 20, 8, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week)
		entries = append(entries, runEntry("e"+date.Format("0102"), date))
	}
	store := &stubStore{
		trackingPlans: []string{"plan-1"},
		snapshot: &domain.Snapshot{
			Plan:       plan,
			Activities: []domain.Activity{{ID: "run", TenantID: "tenant-1", Name: "Run"}},
			Entries:    entries,
		},
		progress: &domain.AchievementResult{Streak: 3, TotalWeeks: 3, CompletedWeeks: 3},
	}
	handler := newTestHandler(store)

	msg := encode(t, "entry.logged", events.EntryLogged{
		EntryID:    "e4",
		TenantID:   "tenant-1",
		ActivityID: "run",
		Date:       entries[3].Date,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, store.savedCrossings, 1)
	require.Len(t, store.savedCrossings[0], 1)
	require.Equal(t, "habit", store.savedCrossings[0][0].Name)
	require.True(t, store.savedAchieved[0])
}

func TestHandleEntryDeletedSoftDeletes(t *testing.T) {
	store := &stubStore{trackingPlans: []string{}}
	handler := newTestHandler(store)

	deletedAt := time.Date(2023, time.January, 17, 9, 0, 0, 0, time.UTC)
	msg := encode(t, "entry.deleted", events.EntryDeleted{
		EntryID:    "e1",
		TenantID:   "tenant-1",
		ActivityID: "run",
		DeletedAt:  deletedAt,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, store.softDeleted, 1)
	require.Equal(t, "e1", store.softDeleted[0].entryID)
	require.Equal(t, deletedAt, store.softDeleted[0].deletedAt)
	require.Empty(t, store.savedResults)
}

func TestHandlePlanUpsertedStoresAndRecomputes(t *testing.T) {
	finishing := time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC)
	store := &stubStore{}
	handler := newTestHandler(store)

	msg := encode(t, "plan.upserted", events.PlanUpserted{
		PlanID:       "plan-1",
		TenantID:     "tenant-1",
		UserID:       "user-1",
		Title:        "Swim schedule",
		OutlineType:  "scheduled",
		TimesPerWeek: 0,
		Sessions: []events.SessionPayload{
			{SessionID: "s1", ActivityID: "swim", Date: time.Date(2023, time.January, 16, 7, 0, 0, 0, time.UTC), Quantity: 1},
		},
		TrackedActivityIDs: []string{"swim"},
		FinishingDate:      &finishing,
		UpdatedAt:          handlerClock,
	})

	require.NoError(t, handler.Handle(context.Background(), msg))

	require.Len(t, store.upsertedPlans, 1)
	stored := store.upsertedPlans[0]
	require.Equal(t, domain.OutlineScheduled, stored.Outline)
	require.Len(t, stored.Sessions, 1)
	require.Equal(t, "s1", stored.Sessions[0].ID)
	require.Equal(t, &finishing, stored.FinishingDate)
	// No snapshot stubbed: recompute is skipped, not failed.
	require.Empty(t, store.savedResults)
}

func TestHandleRejectsUnknownEventType(t *testing.T) {
	handler := newTestHandler(&stubStore{})
	err := handler.Handle(context.Background(), Message{EventType: "plan.archived"})
	require.Error(t, err)
}

type softDeletion struct {
	entryID   string
	deletedAt time.Time
}

type stubStore struct {
	trackingPlans []string
	snapshot      *domain.Snapshot
	progress      *domain.AchievementResult

	upsertedPlans   []domain.Plan
	upsertedEntries []domain.ActivityEntry
	softDeleted     []softDeletion
	savedResults    []domain.AchievementResult
	savedCrossings  [][]domain.Tier
	savedAchieved   []bool
}

func (s *stubStore) UpsertPlan(_ context.Context, plan domain.Plan) error {
	s.upsertedPlans = append(s.upsertedPlans, plan)
	return nil
}

func (s *stubStore) UpsertEntry(_ context.Context, entry domain.ActivityEntry) error {
	s.upsertedEntries = append(s.upsertedEntries, entry)
	return nil
}

func (s *stubStore) SoftDeleteEntry(_ context.Context, _, entryID string, deletedAt time.Time) error {
	s.softDeleted = append(s.softDeleted, softDeletion{entryID: entryID, deletedAt: deletedAt})
	return nil
}

func (s *stubStore) PlansTrackingActivity(context.Context, string, string) ([]string, error) {
	return s.trackingPlans, nil
}

func (s *stubStore) PlanSnapshot(context.Context, string, string) (*domain.Snapshot, error) {
	return s.snapshot, nil
}

func (s *stubStore) GetProgress(context.Context, string, string) (*domain.AchievementResult, error) {
	return s.progress, nil
}

func (s *stubStore) SaveProgress(_ context.Context, _ domain.Plan, result domain.AchievementResult, crossedTiers []domain.Tier, achievedNow bool, _ time.Time) error {
	s.savedResults = append(s.savedResults, result)
	s.savedCrossings = append(s.savedCrossings, crossedTiers)
	s.savedAchieved = append(s.savedAchieved, achievedNow)
	return nil
}
