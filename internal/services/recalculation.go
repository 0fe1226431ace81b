package services

import (
	"context"
	"fmt"
	"log/slog"

	"festa/internal/cache"
	"festa/internal/core"
	"festa/internal/mutation"
	"festa/internal/storage"
)

// AggregateDrift records one stored value that disagreed with the recomputed
// one. CategoryID is empty for event-level totals.
type AggregateDrift struct {
	CategoryID string `json:"categoryId,omitempty"`
	Field      string `json:"field"`
	Prior      int64  `json:"prior"`
	Recomputed int64  `json:"recomputed"`
}

// RecalcResult reports what a recalculation found and whether it wrote.
type RecalcResult struct {
	EventID string           `json:"eventId"`
	Drift   []AggregateDrift `json:"drift"`
	Applied bool             `json:"applied"`
}

// RecalcService recomputes category and event aggregates from the raw expense
// and payment rows. Stored sums drift when writes race or a past bug skipped
// an adjustment; this service is the repair path.
type RecalcService struct {
	repo  *storage.SQLiteRepository
	store mutation.Store
}

func NewRecalcService(repo *storage.SQLiteRepository, store mutation.Store) *RecalcService {
	return &RecalcService{repo: repo, store: store}
}

// Recalculate rebuilds every aggregate for one event. The write is a single
// transaction: either all categories and the event totals are updated, or
// none are. On success the event's cache entries are invalidated.
func (s *RecalcService) Recalculate(ctx context.Context, eventID string) (RecalcResult, error) {
	tree, err := s.repo.GetEventTree(ctx, eventID)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("load event tree: %w", err)
	}

	result := RecalcResult{EventID: eventID}

	type sums struct{ scheduled, spent int64 }
	byCategory := map[string]sums{}
	for _, e := range tree.Expenses {
		cur := byCategory[e.CategoryID]
		cur.scheduled += e.Amount.Cents
		cur.spent += e.PaidTotal().Cents
		byCategory[e.CategoryID] = cur
	}

	var aggregates []storage.CategoryAggregate
	totals := core.Event{TotalBudgeted: core.Money{}, TotalScheduled: core.Money{}, TotalSpent: core.Money{}}
	for _, c := range tree.Categories {
		want := byCategory[c.ID]
		if c.Scheduled.Cents != want.scheduled {
			result.Drift = append(result.Drift, AggregateDrift{
				CategoryID: c.ID, Field: "scheduled",
				Prior: c.Scheduled.Cents, Recomputed: want.scheduled,
			})
		}
		if c.Spent.Cents != want.spent {
			result.Drift = append(result.Drift, AggregateDrift{
				CategoryID: c.ID, Field: "spent",
				Prior: c.Spent.Cents, Recomputed: want.spent,
			})
		}
		aggregates = append(aggregates, storage.CategoryAggregate{
			CategoryID: c.ID, Scheduled: want.scheduled, Spent: want.spent,
		})
		totals.TotalBudgeted.Cents += c.Budgeted.Cents
		totals.TotalScheduled.Cents += want.scheduled
		totals.TotalSpent.Cents += want.spent
	}

	for _, d := range []struct {
		field         string
		prior, wanted int64
	}{
		{"totalBudgeted", tree.Event.TotalBudgeted.Cents, totals.TotalBudgeted.Cents},
		{"totalScheduled", tree.Event.TotalScheduled.Cents, totals.TotalScheduled.Cents},
		{"totalSpent", tree.Event.TotalSpent.Cents, totals.TotalSpent.Cents},
	} {
		if d.prior != d.wanted {
			result.Drift = append(result.Drift, AggregateDrift{
				Field: d.field, Prior: d.prior, Recomputed: d.wanted,
			})
		}
	}

	if len(result.Drift) == 0 {
		return result, nil
	}

	if err := s.repo.SaveAggregates(ctx, eventID, aggregates, totals); err != nil {
		return RecalcResult{}, fmt.Errorf("save aggregates: %w", err)
	}
	result.Applied = true

	if s.store != nil {
		scope := cache.Scope{UserID: tree.Event.UserID, EventID: eventID}
		for _, k := range cache.KeysFor(cache.UpdateEvent, scope) {
			s.store.Delete(k.String())
		}
		s.store.Delete(cache.CategoriesKey(eventID).String())
		s.store.Delete(cache.OverviewKey(tree.Event.UserID, eventID).String())
	}

	slog.InfoContext(ctx, "Aggregates recalculated",
		"event_id", eventID, "drift_count", len(result.Drift))
	return result, nil
}
