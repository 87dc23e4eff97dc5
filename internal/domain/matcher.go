package domain

import "time"

// IsSessionCompleted reports whether one planned session was fulfilled
// within its week. See SessionCompletedOn for the matching rule.
func IsSessionCompleted(session PlannedSession, week Week, plan Plan, entries []ActivityEntry) bool {
	_, ok := SessionCompletedOn(session, week, plan, entries)
	return ok
}

// SessionCompletedOn resolves when a planned session was fulfilled, if ever.
// Matching is positional, not date-exact: the i-th planned session for an
// activity in a week is satisfied by the i-th entry for that activity
// anywhere inside the same week. Users can shift a scheduled activity to a
// different day without breaking completion; when one activity carries
// several differently-sized sessions in a week, attribution follows date
// order on both sides.
func SessionCompletedOn(session PlannedSession, week Week, plan Plan, entries []ActivityEntry) (time.Time, bool) {
	siblings := sessionsForActivity(week, plan.Sessions, session.ActivityID)

	index := -1
	for i, sibling := range siblings {
		if sibling.ID == session.ID {
			index = i
			break
		}
	}
	if index < 0 {
		return time.Time{}, false
	}

	matched := entriesForActivity(week, trackedEntries(plan, entries), session.ActivityID)
	if len(matched) <= index {
		return time.Time{}, false
	}
	return matched[index].Date, true
}

func sessionsForActivity(week Week, sessions []PlannedSession, activityID string) []PlannedSession {
	all := sessionsInWeek(week, sessions)
	out := make([]PlannedSession, 0, len(all))
	for _, session := range all {
		if session.ActivityID == activityID {
			out = append(out, session)
		}
	}
	return out
}

func entriesForActivity(week Week, entries []ActivityEntry, activityID string) []ActivityEntry {
	all := entriesInWeek(week, entries)
	out := make([]ActivityEntry, 0, len(all))
	for _, entry := range all {
		if entry.ActivityID == activityID {
			out = append(out, entry)
		}
	}
	return out
}
