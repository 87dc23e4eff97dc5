package domain

import (
	"math"
	"sort"
	"time"
)

// Tier is a fixed streak milestone used for badge display.
type Tier struct {
	Name  string
	Weeks int
}

// Config carries the tunable constants of the achievement engine. All of
// them are injectable so edge ratios and alternate tiers can be tested.
type Config struct {
	// AchieveRatio is the completed/total threshold for IsAchieved. The
	// comparison is inclusive.
	AchieveRatio float64
	// TargetWeeks sizes the rolling window behind the WeeksToAchieve hint
	// and the default week-summary range.
	TargetWeeks int
	// Tiers lists streak milestones in ascending order.
	Tiers []Tier
	// CountIdleScheduledWeeks keeps weeks with no sessions due inside the
	// week walk of scheduled plans, where they count as incomplete. When
	// false such weeks are skipped and touch no counter.
	CountIdleScheduledWeeks bool
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		AchieveRatio: 0.8,
		TargetWeeks:  12,
		Tiers: []Tier{
			{Name: "habit", Weeks: 4},
			{Name: "lifestyle", Weeks: 9},
		},
		CountIdleScheduledWeeks: true,
	}
}

// AchievementResult is the aggregate verdict over a plan's full history.
type AchievementResult struct {
	Streak          int
	TotalWeeks      int
	CompletedWeeks  int
	IncompleteWeeks int
	IsAchieved      bool
	WeeksToAchieve  int
}

// TierProgress reports advancement toward one streak milestone.
type TierProgress struct {
	Name     string
	Weeks    int
	Progress float64
	Achieved bool
}

// CalculateAchievement walks every week from the first relevant week (the
// week of initialDate when given, else of the earliest surviving entry) to
// the week containing now, and folds each outcome into the totals and the
// streak. The streak tolerates a single non-consecutive miss; a second
// consecutive missed past week decrements it by one, floored at zero. The
// current week is provisional and never penalizes anything.
//
// The computation is pure: identical inputs always yield identical results.
func CalculateAchievement(plan Plan, activities []Activity, entries []ActivityEntry, initialDate *time.Time, now time.Time, cfg Config) AchievementResult {
	relevant := snapshotEntries(plan, activities, entries)
	if len(relevant) == 0 {
		return AchievementResult{}
	}

	first := WeekOf(relevant[0].Date)
	if initialDate != nil {
		first = WeekOf(*initialDate)
	}
	current := WeekOf(now)

	var result AchievementResult
	for week := first; !week.Start.After(current.Start); week = week.Next() {
		if plan.Outline == OutlineScheduled && !cfg.CountIdleScheduledWeeks && len(sessionsInWeek(week, plan.Sessions)) == 0 {
			continue
		}

		result.TotalWeeks++
		isCurrent := week.Equal(current)

		switch EvaluateWeek(week, current, plan, relevant) {
		case WeekCompleted:
			result.Streak++
			result.CompletedWeeks++
			if !isCurrent {
				result.IncompleteWeeks = 0
			}
		case WeekIncomplete:
			result.IncompleteWeeks++
			if result.IncompleteWeeks > 1 && result.Streak > 0 {
				result.Streak--
			}
		case WeekPending:
			// Still in progress; nothing to fold in yet.
		}
	}

	if result.TotalWeeks > 0 {
		ratio := float64(result.CompletedWeeks) / float64(result.TotalWeeks)
		result.IsAchieved = ratio >= cfg.AchieveRatio
	}
	result.WeeksToAchieve = int(math.Ceil(float64(cfg.TargetWeeks)*cfg.AchieveRatio)) - result.CompletedWeeks
	return result
}

// TierProgression derives badge progress from the streak. Progress is
// min(streak, tier)/tier, so it saturates at 1.0 once the tier is reached.
func TierProgression(streak int, cfg Config) []TierProgress {
	out := make([]TierProgress, 0, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		if tier.Weeks <= 0 {
			continue
		}
		reached := streak
		if reached > tier.Weeks {
			reached = tier.Weeks
		}
		out = append(out, TierProgress{
			Name:     tier.Name,
			Weeks:    tier.Weeks,
			Progress: float64(reached) / float64(tier.Weeks),
			Achieved: streak >= tier.Weeks,
		})
	}
	return out
}

// snapshotEntries restricts entries to the plan's tracked set intersected
// with the known activities, drops soft-deleted rows, and orders the rest
// by date so callers can take the earliest entry directly.
func snapshotEntries(plan Plan, activities []Activity, entries []ActivityEntry) []ActivityEntry {
	known := make(map[string]struct{}, len(activities))
	for _, activity := range activities {
		known[activity.ID] = struct{}{}
	}

	out := make([]ActivityEntry, 0, len(entries))
	for _, entry := range trackedEntries(plan, entries) {
		if _, ok := known[entry.ActivityID]; !ok {
			continue
		}
		out = append(out, entry)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
