package core

import "time"

// Thresholds for bucketing a budget by spent percentage. One canonical table,
// applied at every call site.
const (
	underBudgetMaxPct      = 80
	onTrackMaxPct          = 95
	approachingLimitMaxPct = 100
)

// Rollup holds the derived budget-health fields computed from the raw sums of
// a category or an event.
type Rollup struct {
	Budgeted  Money
	Scheduled Money
	Spent     Money
	Remaining Money
	// Percentage of the budget spent, rounded half-up. Values above 100 are
	// valid and signal over-budget; they are not clamped.
	Percentage int
	Status     BudgetStatus
}

// ComputeRollup derives remaining, percentage and status from raw sums.
// It is total over its numeric domain: negative inputs are treated as 0,
// and a zero budget yields percentage 0 instead of dividing by zero.
func ComputeRollup(budgeted, scheduled, spent Money) Rollup {
	b := clampNonNegative(budgeted.Cents)
	sch := clampNonNegative(scheduled.Cents)
	sp := clampNonNegative(spent.Cents)

	r := Rollup{
		Budgeted:  Money{Cents: b},
		Scheduled: Money{Cents: sch},
		Spent:     Money{Cents: sp},
		Remaining: Money{Cents: b - sp},
	}
	if b > 0 {
		r.Percentage = int((sp*100 + b/2) / b)
	}
	r.Status = statusForPercentage(r.Percentage)
	return r
}

// StatusForEvent buckets an event like a category, except that an event whose
// date has passed is completed regardless of spending.
func StatusForEvent(e Event, now time.Time) BudgetStatus {
	if !e.Date.IsZero() && e.Date.Before(now) {
		return StatusCompleted
	}
	roll := ComputeRollup(e.TotalBudgeted, e.TotalScheduled, e.TotalSpent)
	return roll.Status
}

// CanDeleteCategory reports whether a category may be deleted. A category
// with at least one expense must keep its expenses reachable, so deletion is
// blocked before any write happens.
func CanDeleteCategory(expenseCount int) bool {
	return expenseCount == 0
}

func statusForPercentage(pct int) BudgetStatus {
	switch {
	case pct <= underBudgetMaxPct:
		return StatusUnderBudget
	case pct <= onTrackMaxPct:
		return StatusOnTrack
	case pct <= approachingLimitMaxPct:
		return StatusApproachingLimit
	default:
		return StatusOverBudget
	}
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
