package domain

import "time"

// weekStartDay anchors the aggregation bucket. Every consumer of week math
// goes through WeekOf, so changing the anchor is a one-line edit here.
const weekStartDay = time.Sunday

// Week is the canonical seven-day aggregation bucket [Start, End).
type Week struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the week containing t. The bucket starts at 00:00 UTC on
// the most recent Sunday at or before t and spans exactly seven days.
func WeekOf(t time.Time) Week {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) - int(weekStartDay) + 7) % 7
	start := day.AddDate(0, 0, -offset)
	return Week{Start: start, End: start.AddDate(0, 0, 7)}
}

// Contains reports whether t falls inside the bucket.
func (w Week) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && t.Before(w.End)
}

// Next returns the immediately following week.
func (w Week) Next() Week {
	return Week{Start: w.End, End: w.End.AddDate(0, 0, 7)}
}

// Equal reports whether both values denote the same bucket.
func (w Week) Equal(other Week) bool {
	return w.Start.Equal(other.Start)
}
