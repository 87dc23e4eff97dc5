package domain

import (
	"sort"
	"time"
)

// WeekOutcome classifies a single week for the streak reducer.
type WeekOutcome string

const (
	// WeekCompleted means the plan's weekly requirement was met.
	WeekCompleted WeekOutcome = "completed"
	// WeekIncomplete means a past week missed its requirement.
	WeekIncomplete WeekOutcome = "incomplete"
	// WeekPending marks the still-in-progress current week. Pending weeks
	// never penalize the streak or the grace counter.
	WeekPending WeekOutcome = "pending"
)

// IsWeekCompleted reports whether the given week counts as completed for the
// plan. Frequency plans complete when entries land on at least TimesPerWeek
// distinct calendar days inside the window; the quota measures showing up,
// not volume logged per day. Scheduled plans complete when every session due
// that week is fulfilled; a week with nothing due never completes.
func IsWeekCompleted(week Week, plan Plan, entries []ActivityEntry) bool {
	relevant := entriesInWeek(week, trackedEntries(plan, entries))

	switch plan.Outline {
	case OutlineFrequency:
		return distinctDays(relevant) >= plan.TimesPerWeek
	case OutlineScheduled:
		due := sessionsInWeek(week, plan.Sessions)
		if len(due) == 0 {
			return false
		}
		for _, session := range due {
			if !IsSessionCompleted(session, week, plan, entries) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EvaluateWeek folds completion and the provisional current week into one
// outcome so the reducer never has to special-case the week in progress.
func EvaluateWeek(week, current Week, plan Plan, entries []ActivityEntry) WeekOutcome {
	if IsWeekCompleted(week, plan, entries) {
		return WeekCompleted
	}
	if week.Equal(current) {
		return WeekPending
	}
	return WeekIncomplete
}

// distinctDays counts calendar days (UTC) carrying at least one entry.
func distinctDays(entries []ActivityEntry) int {
	days := make(map[time.Time]struct{}, len(entries))
	for _, entry := range entries {
		d := entry.Date.UTC()
		days[time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)] = struct{}{}
	}
	return len(days)
}

// trackedEntries filters out soft-deleted entries and entries referencing
// activities outside the plan's tracked set. Malformed references are
// dropped silently; identity validation belongs to the caller.
func trackedEntries(plan Plan, entries []ActivityEntry) []ActivityEntry {
	tracked := plan.trackedSet()
	out := make([]ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Deleted() {
			continue
		}
		if _, ok := tracked[entry.ActivityID]; !ok {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func entriesInWeek(week Week, entries []ActivityEntry) []ActivityEntry {
	out := make([]ActivityEntry, 0, len(entries))
	for _, entry := range entries {
		if week.Contains(entry.Date) {
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func sessionsInWeek(week Week, sessions []PlannedSession) []PlannedSession {
	out := make([]PlannedSession, 0, len(sessions))
	for _, session := range sessions {
		if week.Contains(session.Date) {
			out = append(out, session)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
