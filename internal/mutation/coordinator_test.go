package mutation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"festa/internal/cache"
	"festa/internal/core"
)

func newTestStore() Store {
	return cache.NewLRUCache[any](100, time.Minute)
}

func seedStore(store Store, scope cache.Scope) {
	store.Set(cache.ExpensesKey(scope.UserID, scope.EventID).String(), []core.Expense{
		{ID: "e1", CategoryID: scope.CategoryID, Name: "Flowers", Amount: core.Money{Cents: 12000}},
	})
	store.Set(cache.CategoriesKey(scope.EventID).String(), []core.BudgetCategory{
		{ID: scope.CategoryID, EventID: scope.EventID, Name: "Decoration",
			Budgeted: core.Money{Cents: 100000}, Scheduled: core.Money{Cents: 20000}},
	})
	store.Set(cache.EventsKey(scope.UserID).String(), []core.Event{
		{ID: scope.EventID, UserID: scope.UserID, Name: "Wedding"},
	})
}

// dump captures the observable cache state for the keys a scope can touch.
func dump(store Store, scope cache.Scope) map[string]any {
	out := make(map[string]any)
	for _, m := range []cache.Mutation{cache.AddExpense, cache.DeleteEvent} {
		for _, k := range cache.KeysFor(m, scope) {
			if v, ok := store.Get(k.String()); ok {
				out[k.String()] = v
			}
		}
	}
	return out
}

func TestCoordinator_RollbackRestoresExactState(t *testing.T) {
	scope := cache.Scope{UserID: "u1", EventID: "ev1", CategoryID: "c1"}
	failure := errors.New("permission denied")

	applies := map[string]func(tx *Tx) error{
		"add expense": func(tx *Tx) error {
			return tx.Update(cache.ExpensesKey(scope.UserID, scope.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				list := cur.([]core.Expense)
				return PrependExpense(list, core.Expense{ID: TempID(), CategoryID: "c1", Name: "Band", Amount: core.Money{Cents: 40000}}), true
			})
		},
		"update expense": func(tx *Tx) error {
			return tx.Update(cache.ExpensesKey(scope.UserID, scope.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				list := cur.([]core.Expense)
				return MergeExpense(list, core.Expense{ID: "e1", CategoryID: "c1", Name: "Flowers deluxe", Amount: core.Money{Cents: 15000}}), true
			})
		},
		"delete expense": func(tx *Tx) error {
			return tx.Update(cache.ExpensesKey(scope.UserID, scope.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return RemoveExpense(cur.([]core.Expense), "e1"), true
			})
		},
		"adjust category aggregate": func(tx *Tx) error {
			return tx.Update(cache.CategoriesKey(scope.EventID), func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return AdjustCategoryScheduled(cur.([]core.BudgetCategory), "c1", 40000), true
			})
		},
	}

	for name, apply := range applies {
		t.Run(name, func(t *testing.T) {
			store := newTestStore()
			seedStore(store, scope)
			before := dump(store, scope)

			var reportedErr error
			_, err := NewCoordinator(store).Run(context.Background(), Request{
				Mutation: cache.AddExpense,
				Scope:    scope,
				Apply:    apply,
				Persist: func(context.Context) (string, error) {
					return "", failure
				},
				OnError: func(err error) { reportedErr = err },
			})

			if !errors.Is(err, failure) {
				t.Fatalf("Run() error = %v, want %v", err, failure)
			}
			if !errors.Is(reportedErr, failure) {
				t.Errorf("OnError received %v, want %v", reportedErr, failure)
			}

			after := dump(store, scope)
			if !reflect.DeepEqual(before, after) {
				t.Errorf("cache after rollback differs from pre-mutation state:\nbefore: %#v\nafter:  %#v", before, after)
			}
		})
	}
}

func TestCoordinator_AddExpenseScenario(t *testing.T) {
	// Category with budgeted 1000.00, scheduled 200.00, spent 0; adding a
	// 150.00 expense must show scheduled 350.00 while the write is in flight,
	// and the refetch after success carries the real id.
	scope := cache.Scope{UserID: "u1", EventID: "ev1", CategoryID: "c1"}
	store := newTestStore()
	expensesKey := cache.ExpensesKey(scope.UserID, scope.EventID)
	categoriesKey := cache.CategoriesKey(scope.EventID)

	store.Set(expensesKey.String(), []core.Expense{})
	store.Set(categoriesKey.String(), []core.BudgetCategory{
		{ID: "c1", EventID: "ev1", Name: "Catering",
			Budgeted: core.Money{Cents: 100000}, Scheduled: core.Money{Cents: 20000}},
	})

	tempID := TempID()
	var confirmedID string

	id, err := NewCoordinator(store).Run(context.Background(), Request{
		Mutation: cache.AddExpense,
		Scope:    scope,
		Apply: func(tx *Tx) error {
			if err := tx.Update(expensesKey, func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return PrependExpense(cur.([]core.Expense), core.Expense{
					ID: tempID, CategoryID: "c1", Name: "Cake", Amount: core.Money{Cents: 15000},
				}), true
			}); err != nil {
				return err
			}
			return tx.Update(categoriesKey, func(cur any, ok bool) (any, bool) {
				if !ok {
					return nil, false
				}
				return AdjustCategoryScheduled(cur.([]core.BudgetCategory), "c1", 15000), true
			})
		},
		Persist: func(context.Context) (string, error) {
			// While the write is in flight the optimistic state is visible.
			cats, _ := store.Get(categoriesKey.String())
			if got := cats.([]core.BudgetCategory)[0].Scheduled.Cents; got != 35000 {
				t.Errorf("optimistic scheduled = %d, want 35000", got)
			}
			exps, _ := store.Get(expensesKey.String())
			if got := exps.([]core.Expense); len(got) != 1 || got[0].ID != tempID {
				t.Errorf("optimistic expense list = %+v, want one entry with temp id", got)
			}
			return "e99", nil
		},
		OnSuccess: func(id string) { confirmedID = id },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if id != "e99" || confirmedID != "e99" {
		t.Errorf("confirmed id = %q/%q, want e99", id, confirmedID)
	}

	// Commit invalidated the keys; the next read misses and refetches.
	if _, ok := store.Get(expensesKey.String()); ok {
		t.Error("expenses key should be invalidated after commit")
	}
	if _, ok := store.Get(categoriesKey.String()); ok {
		t.Error("categories key should be invalidated after commit")
	}

	// Simulated refetch: the server list replaces the temp entry.
	store.Set(expensesKey.String(), []core.Expense{
		{ID: "e99", CategoryID: "c1", Name: "Cake", Amount: core.Money{Cents: 15000}},
	})
	refetched, _ := store.Get(expensesKey.String())
	list := refetched.([]core.Expense)
	if len(list) != 1 || list[0].ID != "e99" || IsTempID(list[0].ID) {
		t.Errorf("refetched list = %+v, want the confirmed entry only", list)
	}
}

type recordingStore struct {
	Store
	deleted []string
}

func (r *recordingStore) Delete(key string) {
	r.deleted = append(r.deleted, key)
	r.Store.Delete(key)
}

func TestCoordinator_CommitInvalidatesDeclaredKeys(t *testing.T) {
	scope := cache.Scope{UserID: "u1", EventID: "ev1", CategoryID: "c1"}
	rec := &recordingStore{Store: newTestStore()}
	seedStore(rec.Store, scope)

	_, err := NewCoordinator(rec).Run(context.Background(), Request{
		Mutation: cache.DeleteExpense,
		Scope:    scope,
		Persist:  func(context.Context) (string, error) { return "e1", nil },
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := make(map[string]bool)
	for _, k := range cache.KeysFor(cache.DeleteExpense, scope) {
		want[k.String()] = true
	}
	got := make(map[string]bool)
	for _, k := range rec.deleted {
		got[k] = true
	}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("invalidated keys = %v, want %v", got, want)
	}
}

func TestTx_StateMachine(t *testing.T) {
	store := newTestStore()
	key := cache.EventsKey("u1")

	tx := Begin(store, key)
	if tx.State() != StateApplying {
		t.Fatalf("State() after Begin = %v, want %v", tx.State(), StateApplying)
	}

	if err := tx.Put(key, []core.Event{}); err != nil {
		t.Fatalf("Put() in applying state: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() = %v", err)
	}
	if tx.State() != StateCommitted {
		t.Errorf("State() after Commit = %v, want %v", tx.State(), StateCommitted)
	}

	if err := tx.Put(key, nil); !errors.Is(err, ErrTxNotApplying) {
		t.Errorf("Put() after commit = %v, want %v", err, ErrTxNotApplying)
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxFinished) {
		t.Errorf("second Commit() = %v, want %v", err, ErrTxFinished)
	}
	if err := tx.Rollback(); !errors.Is(err, ErrTxFinished) {
		t.Errorf("Rollback() after commit = %v, want %v", err, ErrTxFinished)
	}
}

func TestTx_RollbackRemovesEntriesAbsentBefore(t *testing.T) {
	store := newTestStore()
	key := cache.EventsKey("u1")

	tx := Begin(store, key)
	if err := tx.Put(key, []core.Event{{ID: "ev1"}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if _, ok := store.Get(key.String()); ok {
		t.Error("entry absent before the transaction must be absent after rollback")
	}
}
