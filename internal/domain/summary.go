package domain

import "time"

// WeekSummary is the per-week snapshot consumed by display and analytics.
// Exactly one of TimesPerWeek and PlannedSessions is meaningful, depending
// on the plan outline.
type WeekSummary struct {
	StartDate         time.Time
	TrackedActivities []Activity
	CompletedEntries  []ActivityEntry
	TimesPerWeek      int
	PlannedSessions   []PlannedSession
	ActiveActivities  []Activity
}

// PlanWeeks produces one summary per week from rangeStart (or now when nil)
// up to the plan's finishing date. Plans without a finishing date get the
// configured target window. Read-only; the plan and entries are never
// mutated.
func PlanWeeks(plan Plan, activities []Activity, entries []ActivityEntry, rangeStart *time.Time, now time.Time, cfg Config) []WeekSummary {
	start := now
	if rangeStart != nil {
		start = *rangeStart
	}
	end := start.AddDate(0, 0, 7*cfg.TargetWeeks)
	if plan.FinishingDate != nil {
		end = *plan.FinishingDate
	}

	tracked := trackedActivities(plan, activities)
	relevant := snapshotEntries(plan, activities, entries)

	summaries := make([]WeekSummary, 0, cfg.TargetWeeks)
	for week := WeekOf(start); week.Start.Before(end); week = week.Next() {
		weekEntries := entriesInWeek(week, relevant)

		summary := WeekSummary{
			StartDate:         week.Start,
			TrackedActivities: tracked,
			CompletedEntries:  weekEntries,
			ActiveActivities:  activeActivities(tracked, weekEntries),
		}
		switch plan.Outline {
		case OutlineFrequency:
			summary.TimesPerWeek = plan.TimesPerWeek
		case OutlineScheduled:
			summary.PlannedSessions = sessionsInWeek(week, plan.Sessions)
		}
		summaries = append(summaries, summary)
	}
	return summaries
}

func trackedActivities(plan Plan, activities []Activity) []Activity {
	tracked := plan.trackedSet()
	out := make([]Activity, 0, len(activities))
	for _, activity := range activities {
		if _, ok := tracked[activity.ID]; ok {
			out = append(out, activity)
		}
	}
	return out
}

// activeActivities is the subset of tracked activities with at least one
// entry inside the week.
func activeActivities(tracked []Activity, weekEntries []ActivityEntry) []Activity {
	seen := make(map[string]struct{}, len(weekEntries))
	for _, entry := range weekEntries {
		seen[entry.ActivityID] = struct{}{}
	}
	out := make([]Activity, 0, len(tracked))
	for _, activity := range tracked {
		if _, ok := seen[activity.ID]; ok {
			out = append(out, activity)
		}
	}
	return out
}
