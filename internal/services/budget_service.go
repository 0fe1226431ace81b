package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"festa/internal/cache"
	"festa/internal/core"
	"festa/internal/mutation"
	"festa/internal/storage"
)

// ExportPublisher enqueues an asynchronous budget export after a successful
// write. Implementations must be safe for concurrent use.
type ExportPublisher interface {
	PublishBudgetExport(ctx context.Context, userID, eventID string) error
}

// AttachmentRemover deletes a stored attachment blob by its URL. Cascade
// deletes use it so files do not outlive their database rows.
type AttachmentRemover interface {
	Delete(ctx context.Context, url string) error
}

// BudgetService orchestrates budget operations: every write goes through the
// mutation coordinator so the query caches are updated optimistically and
// rolled back if SQLite rejects the write.
type BudgetService struct {
	repo        *storage.SQLiteRepository
	coordinator *mutation.Coordinator
	store       mutation.Store
	publisher   ExportPublisher
	blobs       AttachmentRemover
}

func NewBudgetService(repo *storage.SQLiteRepository, store mutation.Store, publisher ExportPublisher) *BudgetService {
	return &BudgetService{
		repo:        repo,
		coordinator: mutation.NewCoordinator(store),
		store:       store,
		publisher:   publisher,
	}
}

// WithAttachmentRemover enables blob cleanup on cascading deletes.
func (s *BudgetService) WithAttachmentRemover(blobs AttachmentRemover) *BudgetService {
	s.blobs = blobs
	return s
}

// removeBlobs is best effort: the rows are already gone, so a failed file
// removal only leaves an orphan on disk, which is logged and skipped.
func (s *BudgetService) removeBlobs(ctx context.Context, urls []string) {
	if s.blobs == nil {
		return
	}
	for _, url := range urls {
		if err := s.blobs.Delete(ctx, url); err != nil {
			slog.WarnContext(ctx, "Failed to remove attachment blob", "url", url, "error", err)
		}
	}
}

// --- cached reads ---

func (s *BudgetService) ListEvents(ctx context.Context, userID string) ([]core.Event, error) {
	key := cache.EventsKey(userID).String()
	if v, ok := s.store.Get(key); ok {
		return v.([]core.Event), nil
	}
	events, err := s.repo.ListEvents(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, events)
	return events, nil
}

func (s *BudgetService) ListCategories(ctx context.Context, eventID string) ([]core.BudgetCategory, error) {
	key := cache.CategoriesKey(eventID).String()
	if v, ok := s.store.Get(key); ok {
		return v.([]core.BudgetCategory), nil
	}
	cats, err := s.repo.ListCategories(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, cats)
	return cats, nil
}

func (s *BudgetService) ListExpenses(ctx context.Context, userID, eventID string) ([]core.Expense, error) {
	key := cache.ExpensesKey(userID, eventID).String()
	if v, ok := s.store.Get(key); ok {
		return v.([]core.Expense), nil
	}
	expenses, err := s.repo.ListExpenses(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.store.Set(key, expenses)
	return expenses, nil
}

func (s *BudgetService) GetWorkspace(ctx context.Context, userID string) (core.Workspace, error) {
	key := cache.WorkspaceKey(userID).String()
	if v, ok := s.store.Get(key); ok {
		return v.(core.Workspace), nil
	}
	w, err := s.repo.GetWorkspace(ctx, userID)
	if err != nil {
		return core.Workspace{}, err
	}
	s.store.Set(key, w)
	return w, nil
}

func (s *BudgetService) SaveWorkspace(ctx context.Context, w core.Workspace) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpsertWorkspace(ctx, w); err != nil {
		return err
	}
	s.store.Delete(cache.WorkspaceKey(w.ID).String())
	return nil
}

// CategoryOverview pairs a category with its derived budget figures.
type CategoryOverview struct {
	Category core.BudgetCategory
	Rollup   core.Rollup
}

// EventOverview is the dashboard view of one event.
type EventOverview struct {
	Event      core.Event
	Rollup     core.Rollup
	Status     core.BudgetStatus
	Categories []CategoryOverview
}

// Overview assembles the dashboard for one event from the cached lists.
func (s *BudgetService) Overview(ctx context.Context, userID, eventID string) (EventOverview, error) {
	key := cache.OverviewKey(userID, eventID).String()
	if v, ok := s.store.Get(key); ok {
		return v.(EventOverview), nil
	}

	event, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return EventOverview{}, err
	}
	if event.UserID != userID {
		return EventOverview{}, core.ErrNotFound
	}
	cats, err := s.ListCategories(ctx, eventID)
	if err != nil {
		return EventOverview{}, err
	}

	ov := EventOverview{
		Event:  event,
		Rollup: core.ComputeRollup(event.TotalBudgeted, event.TotalScheduled, event.TotalSpent),
		Status: core.StatusForEvent(event, time.Now()),
	}
	for _, c := range cats {
		ov.Categories = append(ov.Categories, CategoryOverview{
			Category: c,
			Rollup:   core.ComputeRollup(c.Budgeted, c.Scheduled, c.Spent),
		})
	}
	s.store.Set(key, ov)
	return ov, nil
}

// --- event mutations ---

func (s *BudgetService) CreateEvent(ctx context.Context, e core.Event) (core.Event, error) {
	e.ID = uuid.NewString()
	if e.Currency == "" {
		e.Currency = "EUR"
	}
	if err := e.Validate(); err != nil {
		return core.Event{}, err
	}

	scope := cache.Scope{UserID: e.UserID, EventID: e.ID}
	_, err := s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.AddEvent,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			return tx.Update(cache.EventsKey(e.UserID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return append([]core.Event{e}, cur.([]core.Event)...), true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			return e.ID, s.repo.CreateEvent(ctx, e)
		},
	})
	if err != nil {
		return core.Event{}, err
	}
	return e, nil
}

func (s *BudgetService) UpdateEvent(ctx context.Context, e core.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	scope := cache.Scope{UserID: e.UserID, EventID: e.ID}
	_, err := s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.UpdateEvent,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			return tx.Update(cache.EventsKey(e.UserID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				list := cur.([]core.Event)
				next := make([]core.Event, len(list))
				copy(next, list)
				for i := range next {
					if next[i].ID == e.ID {
						// Derived totals stay as cached; only user fields change.
						e.TotalBudgeted = next[i].TotalBudgeted
						e.TotalScheduled = next[i].TotalScheduled
						e.TotalSpent = next[i].TotalSpent
						next[i] = e
					}
				}
				return next, true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			return e.ID, s.repo.UpdateEvent(ctx, e)
		},
	})
	return err
}

func (s *BudgetService) DeleteEvent(ctx context.Context, userID, eventID string) error {
	scope := cache.Scope{UserID: userID, EventID: eventID}
	_, err := s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.DeleteEvent,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			return tx.Update(cache.EventsKey(userID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				list := cur.([]core.Event)
				next := make([]core.Event, 0, len(list))
				for _, ev := range list {
					if ev.ID != eventID {
						next = append(next, ev)
					}
				}
				return next, true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			urls, err := s.repo.DeleteEvent(ctx, userID, eventID)
			if err != nil {
				return "", err
			}
			s.removeBlobs(ctx, urls)
			return eventID, nil
		},
	})
	return err
}

// --- category mutations ---

func (s *BudgetService) CreateCategory(ctx context.Context, userID string, c core.BudgetCategory) (core.BudgetCategory, error) {
	c.ID = uuid.NewString()
	if err := c.Validate(); err != nil {
		return core.BudgetCategory{}, err
	}

	scope := cache.Scope{UserID: userID, EventID: c.EventID, CategoryID: c.ID}
	_, err := s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.AddCategory,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			return tx.Update(cache.CategoriesKey(c.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return mutation.PrependCategory(cur.([]core.BudgetCategory), c), true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			return c.ID, s.repo.CreateCategory(ctx, c)
		},
	})
	if err != nil {
		return core.BudgetCategory{}, err
	}
	return c, nil
}

func (s *BudgetService) UpdateCategory(ctx context.Context, userID string, c core.BudgetCategory) error {
	if err := c.Validate(); err != nil {
		return err
	}

	scope := cache.Scope{UserID: userID, EventID: c.EventID, CategoryID: c.ID}
	_, err := s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.UpdateCategory,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			return tx.Update(cache.CategoriesKey(c.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return mutation.MergeCategory(cur.([]core.BudgetCategory), c), true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			return c.ID, s.repo.UpdateCategory(ctx, c)
		},
	})
	return err
}

// DeleteCategory refuses while expenses remain, checking the cached list
// first so the common case fails before touching the coordinator.
func (s *BudgetService) DeleteCategory(ctx context.Context, userID, eventID, categoryID string) error {
	count, err := s.repo.CountExpenses(ctx, categoryID)
	if err != nil {
		return err
	}
	if !core.CanDeleteCategory(count) {
		return core.ErrCategoryHasExpenses
	}

	scope := cache.Scope{UserID: userID, EventID: eventID, CategoryID: categoryID}
	_, err = s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.DeleteCategory,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			return tx.Update(cache.CategoriesKey(eventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return mutation.RemoveCategory(cur.([]core.BudgetCategory), categoryID), true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			return categoryID, s.repo.DeleteCategory(ctx, categoryID)
		},
	})
	return err
}

// --- expense mutations ---

// CreateExpense snapshots the category's name, icon and color onto the
// expense, applies it optimistically under a temporary id and persists with
// the real one. The caches are invalidated on commit so the next read shows
// the persisted row.
func (s *BudgetService) CreateExpense(ctx context.Context, userID string, e core.Expense) (core.Expense, error) {
	cat, err := s.repo.GetCategory(ctx, e.CategoryID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("lookup category: %w", err)
	}
	e.CategoryName, e.CategoryIcon, e.CategoryColor = cat.Name, cat.Icon, cat.Color

	e.ID = uuid.NewString()
	stampPaymentIDs(&e)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}

	optimistic := e
	optimistic.ID = mutation.TempID()

	scope := cache.Scope{UserID: userID, EventID: cat.EventID, CategoryID: e.CategoryID}
	_, err = s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.AddExpense,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			if err := tx.Update(cache.ExpensesKey(userID, cat.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return mutation.PrependExpense(cur.([]core.Expense), optimistic), true
			}); err != nil {
				return err
			}
			return tx.Update(cache.CategoriesKey(cat.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				cats := mutation.AdjustCategoryScheduled(cur.([]core.BudgetCategory), e.CategoryID, e.Amount.Cents)
				return mutation.AdjustCategorySpent(cats, e.CategoryID, e.PaidTotal().Cents), true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			return e.ID, s.repo.CreateExpense(ctx, e)
		},
		OnSuccess: func(string) { s.publishExport(ctx, userID, cat.EventID) },
	})
	if err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (s *BudgetService) UpdateExpense(ctx context.Context, userID string, e core.Expense) error {
	prev, err := s.repo.GetExpense(ctx, e.ID)
	if err != nil {
		return err
	}
	cat, err := s.repo.GetCategory(ctx, e.CategoryID)
	if err != nil {
		return fmt.Errorf("lookup category: %w", err)
	}
	e.CategoryName, e.CategoryIcon, e.CategoryColor = cat.Name, cat.Icon, cat.Color
	stampPaymentIDs(&e)
	if err := e.Validate(); err != nil {
		return err
	}

	// A move to a category under a different event touches the old event's
	// cached lists too; widen the transaction so they are invalidated on
	// commit instead of going stale.
	prevEventID := cat.EventID
	var extraKeys []cache.Key
	if prev.CategoryID != e.CategoryID {
		prevCat, err := s.repo.GetCategory(ctx, prev.CategoryID)
		if err != nil {
			return fmt.Errorf("lookup previous category: %w", err)
		}
		prevEventID = prevCat.EventID
		if prevEventID != cat.EventID {
			prevScope := cache.Scope{UserID: userID, EventID: prevEventID, CategoryID: prev.CategoryID}
			extraKeys = cache.KeysFor(cache.UpdateExpense, prevScope)
		}
	}

	scope := cache.Scope{UserID: userID, EventID: cat.EventID, CategoryID: e.CategoryID}
	_, err = s.coordinator.Run(ctx, mutation.Request{
		Mutation:  cache.UpdateExpense,
		Scope:     scope,
		ExtraKeys: extraKeys,
		Apply: func(tx *mutation.Tx) error {
			if err := tx.Update(cache.ExpensesKey(userID, cat.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return mutation.MergeExpense(cur.([]core.Expense), e), true
			}); err != nil {
				return err
			}
			if prevEventID != cat.EventID {
				if err := tx.Update(cache.ExpensesKey(userID, prevEventID), func(cur any, ok bool) (any, bool) {
					if !ok {
						return nil, false
					}
					return mutation.RemoveExpense(cur.([]core.Expense), e.ID), true
				}); err != nil {
					return err
				}
				if err := tx.Update(cache.CategoriesKey(prevEventID), func(cur any, ok bool) (any, bool) {
					if !ok {
						return nil, false
					}
					cats := mutation.AdjustCategoryScheduled(cur.([]core.BudgetCategory), prev.CategoryID, -prev.Amount.Cents)
					return mutation.AdjustCategorySpent(cats, prev.CategoryID, -prev.PaidTotal().Cents), true
				}); err != nil {
					return err
				}
			}
			return tx.Update(cache.CategoriesKey(cat.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				cats := cur.([]core.BudgetCategory)
				if prev.CategoryID == e.CategoryID {
					cats = mutation.AdjustCategoryScheduled(cats, e.CategoryID, e.Amount.Cents-prev.Amount.Cents)
					return mutation.AdjustCategorySpent(cats, e.CategoryID, e.PaidTotal().Cents-prev.PaidTotal().Cents), true
				}
				cats = mutation.AdjustCategoryScheduled(cats, prev.CategoryID, -prev.Amount.Cents)
				cats = mutation.AdjustCategorySpent(cats, prev.CategoryID, -prev.PaidTotal().Cents)
				cats = mutation.AdjustCategoryScheduled(cats, e.CategoryID, e.Amount.Cents)
				return mutation.AdjustCategorySpent(cats, e.CategoryID, e.PaidTotal().Cents), true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			return e.ID, s.repo.UpdateExpense(ctx, e)
		},
		OnSuccess: func(string) {
			s.publishExport(ctx, userID, cat.EventID)
			if prevEventID != cat.EventID {
				s.publishExport(ctx, userID, prevEventID)
			}
		},
	})
	return err
}

func (s *BudgetService) DeleteExpense(ctx context.Context, userID, expenseID string) error {
	prev, err := s.repo.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	cat, err := s.repo.GetCategory(ctx, prev.CategoryID)
	if err != nil {
		return fmt.Errorf("lookup category: %w", err)
	}

	scope := cache.Scope{UserID: userID, EventID: cat.EventID, CategoryID: prev.CategoryID}
	_, err = s.coordinator.Run(ctx, mutation.Request{
		Mutation: cache.DeleteExpense,
		Scope:    scope,
		Apply: func(tx *mutation.Tx) error {
			if err := tx.Update(cache.ExpensesKey(userID, cat.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return mutation.RemoveExpense(cur.([]core.Expense), expenseID), true
			}); err != nil {
				return err
			}
			return tx.Update(cache.CategoriesKey(cat.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				cats := mutation.AdjustCategoryScheduled(cur.([]core.BudgetCategory), prev.CategoryID, -prev.Amount.Cents)
				return mutation.AdjustCategorySpent(cats, prev.CategoryID, -prev.PaidTotal().Cents), true
			})
		},
		Persist: func(ctx context.Context) (string, error) {
			urls, err := s.repo.DeleteExpense(ctx, expenseID)
			if err != nil {
				return "", err
			}
			s.removeBlobs(ctx, urls)
			return expenseID, nil
		},
		OnSuccess: func(string) { s.publishExport(ctx, userID, cat.EventID) },
	})
	return err
}

// SetPaymentPaid toggles one payment and shifts the spent aggregates.
func (s *BudgetService) SetPaymentPaid(ctx context.Context, userID, paymentID string, isPaid bool) error {
	// The owning scope is only known after the write, so this mutation
	// persists first and invalidates directly instead of going optimistic.
	categoryID, eventID, err := s.repo.SetPaymentPaid(ctx, userID, paymentID, isPaid)
	if err != nil {
		return err
	}

	scope := cache.Scope{UserID: userID, EventID: eventID, CategoryID: categoryID}
	for _, k := range cache.KeysFor(cache.UpdatePayment, scope) {
		s.store.Delete(k.String())
	}
	s.publishExport(ctx, userID, eventID)
	return nil
}

func (s *BudgetService) publishExport(ctx context.Context, userID, eventID string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBudgetExport(ctx, userID, eventID); err != nil {
		// The write already succeeded; the export sweep will catch up.
		slog.ErrorContext(ctx, "Failed to publish budget export",
			"user_id", userID, "event_id", eventID, "error", err)
	}
}

func stampPaymentIDs(e *core.Expense) {
	if e.OneOff != nil {
		if e.OneOff.ID == "" {
			e.OneOff.ID = uuid.NewString()
		}
		e.OneOff.ExpenseID = e.ID
	}
	for i := range e.Schedule {
		if e.Schedule[i].ID == "" {
			e.Schedule[i].ID = uuid.NewString()
		}
		e.Schedule[i].ExpenseID = e.ID
	}
}
