// Package api exposes HTTP handlers for the progress service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/progress/internal/auth"
	"example.com/progress/internal/domain"
	"example.com/progress/internal/persistence"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/plans/", h.planRoutes)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) planRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing plan id")
		return
	}
	planID := parts[0]

	switch parts[1] {
	case "achievement":
		h.planAchievement(w, r, planID)
	case "weeks":
		h.planWeeks(w, r, planID)
	case "entries":
		h.planEntries(w, r, planID)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) planAchievement(w http.ResponseWriter, r *http.Request, planID string) {
	claims, ok := requireRead(w, r)
	if !ok {
		return
	}

	result, tiers, err := h.service.PlanAchievement(r.Context(), claims.TenantID, planID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := AchievementResponse{
		PlanID:          planID,
		Streak:          result.Streak,
		TotalWeeks:      result.TotalWeeks,
		CompletedWeeks:  result.CompletedWeeks,
		IncompleteWeeks: result.IncompleteWeeks,
		IsAchieved:      result.IsAchieved,
		WeeksToAchieve:  result.WeeksToAchieve,
		Tiers:           make([]TierView, 0, len(tiers)),
	}
	for _, tier := range tiers {
		resp.Tiers = append(resp.Tiers, TierView{
			Name:        tier.Name,
			TargetWeeks: tier.Weeks,
			Progress:    tier.Progress,
			Achieved:    tier.Achieved,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) planWeeks(w http.ResponseWriter, r *http.Request, planID string) {
	claims, ok := requireRead(w, r)
	if !ok {
		return
	}

	var rangeStart *time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid from parameter")
			return
		}
		rangeStart = &parsed
	}

	weeks, err := h.service.PlanWeekSummaries(r.Context(), claims.TenantID, planID, rangeStart)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := PlanWeeksResponse{
		PlanID: planID,
		Weeks:  make([]WeekSummaryView, 0, len(weeks)),
	}
	for _, week := range weeks {
		resp.Weeks = append(resp.Weeks, toWeekSummaryView(week))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) planEntries(w http.ResponseWriter, r *http.Request, planID string) {
	claims, ok := requireRead(w, r)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.service.EntryLog(r.Context(), claims.TenantID, planID, cursor, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := ListEntriesResponse{
		Items:      make([]EntryView, 0, len(entries)),
		NextCursor: persistence.EncodeCursor(next),
	}
	for _, entry := range entries {
		resp.Items = append(resp.Items, toEntryView(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireRead(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(auth.ScopeProgressRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope progress:read required")
		return nil, false
	}
	return claims, true
}

// AchievementResponse is the body for GET /v1/plans/{id}/achievement.
type AchievementResponse struct {
	PlanID          string     `json:"plan_id"`
	Streak          int        `json:"streak"`
	TotalWeeks      int        `json:"total_weeks"`
	CompletedWeeks  int        `json:"completed_weeks"`
	IncompleteWeeks int        `json:"incomplete_weeks"`
	IsAchieved      bool       `json:"is_achieved"`
	WeeksToAchieve  int        `json:"weeks_to_achieve"`
	Tiers           []TierView `json:"tiers"`
}

// TierView reports progress toward one streak milestone.
type TierView struct {
	Name        string  `json:"name"`
	TargetWeeks int     `json:"target_weeks"`
	Progress    float64 `json:"progress"`
	Achieved    bool    `json:"achieved"`
}

// PlanWeeksResponse is the body for GET /v1/plans/{id}/weeks.
type PlanWeeksResponse struct {
	PlanID string            `json:"plan_id"`
	Weeks  []WeekSummaryView `json:"weeks"`
}

// WeekSummaryView is the per-week snapshot for display consumers. Frequency
// plans carry times_per_week; scheduled plans carry planned_sessions.
type WeekSummaryView struct {
	StartDate         time.Time      `json:"start_date"`
	TrackedActivities []ActivityView `json:"tracked_activities"`
	CompletedEntries  []EntryView    `json:"completed_entries"`
	TimesPerWeek      int            `json:"times_per_week,omitempty"`
	PlannedSessions   []SessionView  `json:"planned_sessions,omitempty"`
	WeekActivities    []ActivityView `json:"week_activities"`
}

// ActivityView exposes tracked-set membership.
type ActivityView struct {
	ActivityID string `json:"activity_id"`
	Name       string `json:"name"`
}

// SessionView exposes one planned session.
type SessionView struct {
	SessionID  string    `json:"session_id"`
	ActivityID string    `json:"activity_id"`
	Date       time.Time `json:"date"`
	Quantity   float64   `json:"quantity,omitempty"`
}

// EntryView exposes one logged activity entry.
type EntryView struct {
	EntryID    string    `json:"entry_id"`
	ActivityID string    `json:"activity_id"`
	Date       time.Time `json:"date"`
	Quantity   float64   `json:"quantity"`
	Source     string    `json:"source,omitempty"`
}

// ListEntriesResponse packages the paginated entry feed.
type ListEntriesResponse struct {
	Items      []EntryView `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func toWeekSummaryView(week domain.WeekSummary) WeekSummaryView {
	view := WeekSummaryView{
		StartDate:         week.StartDate,
		TrackedActivities: make([]ActivityView, 0, len(week.TrackedActivities)),
		CompletedEntries:  make([]EntryView, 0, len(week.CompletedEntries)),
		TimesPerWeek:      week.TimesPerWeek,
		WeekActivities:    make([]ActivityView, 0, len(week.ActiveActivities)),
	}
	for _, activity := range week.TrackedActivities {
		view.TrackedActivities = append(view.TrackedActivities, toActivityView(activity))
	}
	for _, entry := range week.CompletedEntries {
		view.CompletedEntries = append(view.CompletedEntries, toEntryView(entry))
	}
	for _, session := range week.PlannedSessions {
		view.PlannedSessions = append(view.PlannedSessions, SessionView{
			SessionID:  session.ID,
			ActivityID: session.ActivityID,
			Date:       session.Date,
			Quantity:   session.Quantity,
		})
	}
	for _, activity := range week.ActiveActivities {
		view.WeekActivities = append(view.WeekActivities, toActivityView(activity))
	}
	return view
}

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{ActivityID: activity.ID, Name: activity.Name}
}

func toEntryView(entry domain.ActivityEntry) EntryView {
	return EntryView{
		EntryID:    entry.ID,
		ActivityID: entry.ActivityID,
		Date:       entry.Date,
		Quantity:   entry.Quantity,
		Source:     entry.Source,
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrPlanNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "plan not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
