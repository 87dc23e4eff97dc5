package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/progress/internal/auth"
	"example.com/progress/internal/domain"
)

func testClaims() *auth.Claims {
	return &auth.Claims{
		Subject:  "tester",
		TenantID: "tenant-1",
		Scopes: map[string]struct{}{
			auth.ScopeProgressRead: {},
		},
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func testService(repo domain.Repository) *domain.Service {
	now := time.Date(2023, time.January, 18, 12, 0, 0, 0, time.UTC)
	return domain.NewService(repo, domain.DefaultConfig(), domain.WithClock(func() time.Time { return now }))
}

func frequencySnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Plan: domain.Plan{
			ID:                 "plan-1",
			TenantID:           "tenant-1",
			UserID:             "user-1",
			Title:              "Morning runs",
			Outline:            domain.OutlineFrequency,
			TimesPerWeek:       3,
			TrackedActivityIDs: []string{"run"},
		},
		Activities: []domain.Activity{{ID: "run", TenantID: "tenant-1", Name: "Run"}},
		Entries: []domain.ActivityEntry{
			{ID: "e1", TenantID: "tenant-1", ActivityID: "run", Date: time.Date(2023, time.January, 2, 7, 0, 0, 0, time.UTC), Quantity: 5},
			{ID: "e2", TenantID: "tenant-1", ActivityID: "run", Date: time.Date(2023, time.January, 4, 7, 0, 0, 0, time.UTC), Quantity: 5},
			{ID: "e3", TenantID: "tenant-1", ActivityID: "run", Date: time.Date(2023, time.January, 6, 7, 0, 0, 0, time.UTC), Quantity: 5},
		},
	}
}

func TestPlanAchievementSuccess(t *testing.T) {
	repo := &mockRepo{snap: frequencySnapshot()}
	handler := NewHandler(testService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/plans/plan-1/achievement", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims()))

	rr := httptest.NewRecorder()
	handler.planRoutes(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp AchievementResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.PlanID != "plan-1" {
		t.Fatalf("unexpected plan id %s", resp.PlanID)
	}
	// Week of Jan 1 completed, weeks of Jan 8 and Jan 15 (current) empty.
	if resp.TotalWeeks != 3 {
		t.Fatalf("expected total_weeks 3 got %d", resp.TotalWeeks)
	}
	if resp.CompletedWeeks != 1 {
		t.Fatalf("expected completed_weeks 1 got %d", resp.CompletedWeeks)
	}
	if resp.Streak != 1 {
		t.Fatalf("expected streak 1 got %d", resp.Streak)
	}
	if len(resp.Tiers) != 2 {
		t.Fatalf("expected 2 tiers got %d", len(resp.Tiers))
	}
	if resp.Tiers[0].Name != "habit" || resp.Tiers[0].Progress <= 0.24 || resp.Tiers[0].Progress >= 0.26 {
		t.Fatalf("unexpected habit tier %+v", resp.Tiers[0])
	}
}

func TestPlanAchievementNotFound(t *testing.T) {
	handler := NewHandler(testService(&mockRepo{}))

	req := httptest.NewRequest(http.MethodGet, "/v1/plans/missing/achievement", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims()))

	rr := httptest.NewRecorder()
	handler.planRoutes(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestPlanAchievementRequiresScope(t *testing.T) {
	handler := NewHandler(testService(&mockRepo{snap: frequencySnapshot()}))

	req := httptest.NewRequest(http.MethodGet, "/v1/plans/plan-1/achievement", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{
		Subject:   "tester",
		TenantID:  "tenant-1",
		Scopes:    map[string]struct{}{},
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	rr := httptest.NewRecorder()
	handler.planRoutes(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rr.Code)
	}
}

func TestPlanWeeksSuccess(t *testing.T) {
	repo := &mockRepo{snap: frequencySnapshot()}
	handler := NewHandler(testService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/plans/plan-1/weeks?from=2023-01-01T00:00:00Z", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims()))

	rr := httptest.NewRecorder()
	handler.planRoutes(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp PlanWeeksResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(resp.Weeks) != 12 {
		t.Fatalf("expected 12 weeks got %d", len(resp.Weeks))
	}
	first := resp.Weeks[0]
	if first.TimesPerWeek != 3 {
		t.Fatalf("expected quota 3 got %d", first.TimesPerWeek)
	}
	if len(first.CompletedEntries) != 3 {
		t.Fatalf("expected 3 entries in first week got %d", len(first.CompletedEntries))
	}
	if len(first.WeekActivities) != 1 || first.WeekActivities[0].ActivityID != "run" {
		t.Fatalf("unexpected week activities %+v", first.WeekActivities)
	}
}

func TestPlanWeeksRejectsBadFrom(t *testing.T) {
	handler := NewHandler(testService(&mockRepo{snap: frequencySnapshot()}))

	req := httptest.NewRequest(http.MethodGet, "/v1/plans/plan-1/weeks?from=yesterday", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims()))

	rr := httptest.NewRecorder()
	handler.planRoutes(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestPlanEntriesPaginates(t *testing.T) {
	snap := frequencySnapshot()
	repo := &mockRepo{snap: snap, entries: snap.Entries}
	handler := NewHandler(testService(repo))

	req := httptest.NewRequest(http.MethodGet, "/v1/plans/plan-1/entries?limit=2", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), testClaims()))

	rr := httptest.NewRecorder()
	handler.planRoutes(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ListEntriesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 items got %d", len(resp.Items))
	}
	if resp.NextCursor == "" {
		t.Fatalf("expected next cursor for full page")
	}
}

type mockRepo struct {
	snap    *domain.Snapshot
	entries []domain.ActivityEntry
}

func (m *mockRepo) GetPlan(ctx context.Context, tenantID, planID string) (*domain.Plan, error) {
	if m.snap == nil {
		return nil, nil
	}
	plan := m.snap.Plan
	return &plan, nil
}

func (m *mockRepo) PlanSnapshot(ctx context.Context, tenantID, planID string) (*domain.Snapshot, error) {
	return m.snap, nil
}

func (m *mockRepo) ListEntries(ctx context.Context, tenantID, planID string, cursor *domain.Cursor, limit int) ([]domain.ActivityEntry, *domain.Cursor, error) {
	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]domain.ActivityEntry, limit)
	copy(out, m.entries[:limit])
	var next *domain.Cursor
	if limit > 0 && limit < len(m.entries) {
		last := out[limit-1]
		next = &domain.Cursor{Date: last.Date, ID: last.ID}
	}
	return out, next, nil
}
