package mutation

import (
	"strings"

	"github.com/google/uuid"

	"festa/internal/core"
)

// Optimistic list edits. Every function is copy-on-write: it returns a new
// slice and leaves its input untouched, so a snapshot taken before the edit
// stays byte-exact for rollback.

const tempIDPrefix = "tmp_"

// TempID synthesizes a placeholder identifier for an optimistically added
// entity. It is replaced by the real id once the server confirms the write.
func TempID() string {
	return tempIDPrefix + uuid.New().String()
}

// IsTempID reports whether id is a placeholder from TempID.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// PrependExpense puts a freshly added expense at the head of the cached list.
func PrependExpense(list []core.Expense, e core.Expense) []core.Expense {
	out := make([]core.Expense, 0, len(list)+1)
	out = append(out, e)
	return append(out, list...)
}

// RemoveExpense filters an expense out of the cached list.
func RemoveExpense(list []core.Expense, id string) []core.Expense {
	out := make([]core.Expense, 0, len(list))
	for _, e := range list {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// MergeExpense replaces the matching entry with the updated expense. An
// expense not present in the list is left for the refetch to pick up.
func MergeExpense(list []core.Expense, updated core.Expense) []core.Expense {
	out := make([]core.Expense, len(list))
	for i, e := range list {
		if e.ID == updated.ID {
			out[i] = updated
		} else {
			out[i] = e
		}
	}
	return out
}

// PrependCategory puts a freshly added category at the head of the cached list.
func PrependCategory(list []core.BudgetCategory, c core.BudgetCategory) []core.BudgetCategory {
	out := make([]core.BudgetCategory, 0, len(list)+1)
	out = append(out, c)
	return append(out, list...)
}

// RemoveCategory filters a category out of the cached list.
func RemoveCategory(list []core.BudgetCategory, id string) []core.BudgetCategory {
	out := make([]core.BudgetCategory, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// MergeCategory replaces the matching entry with the updated category.
func MergeCategory(list []core.BudgetCategory, updated core.BudgetCategory) []core.BudgetCategory {
	out := make([]core.BudgetCategory, len(list))
	for i, c := range list {
		if c.ID == updated.ID {
			out[i] = updated
		} else {
			out[i] = c
		}
	}
	return out
}

// AdjustCategoryScheduled shifts a category's scheduled aggregate by
// deltaCents so the cached rollup reflects the eventual total immediately.
// The aggregate never goes below zero even when concurrent edits would imply
// a negative value; the refetch after commit is the source of truth. When the
// category is not in the cached list the adjustment is skipped silently.
func AdjustCategoryScheduled(list []core.BudgetCategory, categoryID string, deltaCents int64) []core.BudgetCategory {
	return adjustCategory(list, categoryID, func(c *core.BudgetCategory) {
		c.Scheduled.Cents = clampZero(c.Scheduled.Cents + deltaCents)
	})
}

// AdjustCategorySpent shifts a category's spent aggregate, clamped at zero.
func AdjustCategorySpent(list []core.BudgetCategory, categoryID string, deltaCents int64) []core.BudgetCategory {
	return adjustCategory(list, categoryID, func(c *core.BudgetCategory) {
		c.Spent.Cents = clampZero(c.Spent.Cents + deltaCents)
	})
}

func adjustCategory(list []core.BudgetCategory, categoryID string, apply func(*core.BudgetCategory)) []core.BudgetCategory {
	out := make([]core.BudgetCategory, len(list))
	copy(out, list)
	for i := range out {
		if out[i].ID == categoryID {
			apply(&out[i])
			break
		}
	}
	return out
}

func clampZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
