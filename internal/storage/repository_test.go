package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"festa/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "festa.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedEvent(t *testing.T, repo *SQLiteRepository) (userID, eventID, categoryID string) {
	t.Helper()
	ctx := context.Background()

	userID, eventID, categoryID = "u1", "ev1", "c1"
	if err := repo.UpsertWorkspace(ctx, core.Workspace{
		ID: userID, Email: "ada@example.com", Name: "Ada", Language: "en", Currency: "EUR",
	}); err != nil {
		t.Fatalf("UpsertWorkspace() error = %v", err)
	}
	if err := repo.CreateEvent(ctx, core.Event{
		ID: eventID, UserID: userID, Name: "Wedding", Type: "wedding",
		Date: time.Date(2027, 6, 12, 0, 0, 0, 0, time.UTC), Currency: "EUR",
	}); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if err := repo.CreateCategory(ctx, core.BudgetCategory{
		ID: categoryID, EventID: eventID, Name: "Catering", Icon: "🍽", Color: "#e07a5f",
		Budgeted: core.Money{Cents: 500000},
	}); err != nil {
		t.Fatalf("CreateCategory() error = %v", err)
	}
	return userID, eventID, categoryID
}

func TestSQLiteRepository_EventLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID, eventID, _ := seedEvent(t, repo)

	events, err := repo.ListEvents(ctx, userID)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].ID != eventID {
		t.Fatalf("ListEvents() = %+v, want one event %s", events, eventID)
	}
	if got := events[0].TotalBudgeted.Cents; got != 500000 {
		t.Errorf("event budgeted after category insert = %d, want 500000", got)
	}

	events[0].Name = "Summer wedding"
	if err := repo.UpdateEvent(ctx, events[0]); err != nil {
		t.Fatalf("UpdateEvent() error = %v", err)
	}
	got, err := repo.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if got.Name != "Summer wedding" {
		t.Errorf("event name = %q, want %q", got.Name, "Summer wedding")
	}

	if _, err := repo.GetEvent(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetEvent(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_ExpenseAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, eventID, categoryID := seedEvent(t, repo)

	due := time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC)
	expense := core.Expense{
		ID: "e1", CategoryID: categoryID, Name: "Caterer deposit",
		Amount: core.Money{Cents: 120000}, HasSchedule: true,
		Tags: []string{"deposit"},
		Schedule: []core.Payment{
			{ID: "p1", ExpenseID: "e1", Name: "Deposit", Amount: core.Money{Cents: 40000}, DueDate: due, IsPaid: true},
			{ID: "p2", ExpenseID: "e1", Name: "Balance", Amount: core.Money{Cents: 80000}, DueDate: due.AddDate(0, 1, 0)},
		},
	}
	if err := repo.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	cat, err := repo.GetCategory(ctx, categoryID)
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if cat.Scheduled.Cents != 120000 {
		t.Errorf("category scheduled = %d, want 120000", cat.Scheduled.Cents)
	}
	if cat.Spent.Cents != 40000 {
		t.Errorf("category spent = %d, want 40000", cat.Spent.Cents)
	}

	ev, err := repo.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if ev.TotalScheduled.Cents != 120000 || ev.TotalSpent.Cents != 40000 {
		t.Errorf("event totals = %d/%d, want 120000/40000", ev.TotalScheduled.Cents, ev.TotalSpent.Cents)
	}

	// Another user's payment must look missing and leave aggregates alone.
	if _, _, err := repo.SetPaymentPaid(ctx, "someone-else", "p2", true); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("SetPaymentPaid() by non-owner = %v, want ErrNotFound", err)
	}
	cat, _ = repo.GetCategory(ctx, categoryID)
	if cat.Spent.Cents != 40000 {
		t.Errorf("category spent after foreign toggle = %d, want 40000", cat.Spent.Cents)
	}

	// Paying the balance moves its amount into spent.
	gotCat, gotEv, err := repo.SetPaymentPaid(ctx, "u1", "p2", true)
	if err != nil {
		t.Fatalf("SetPaymentPaid() error = %v", err)
	}
	if gotCat != categoryID || gotEv != eventID {
		t.Errorf("SetPaymentPaid() owner = %s/%s, want %s/%s", gotCat, gotEv, categoryID, eventID)
	}
	cat, _ = repo.GetCategory(ctx, categoryID)
	if cat.Spent.Cents != 120000 {
		t.Errorf("category spent after paying balance = %d, want 120000", cat.Spent.Cents)
	}

	// Toggling the same state twice must not double count.
	if _, _, err := repo.SetPaymentPaid(ctx, "u1", "p2", true); err != nil {
		t.Fatalf("SetPaymentPaid() repeat error = %v", err)
	}
	cat, _ = repo.GetCategory(ctx, categoryID)
	if cat.Spent.Cents != 120000 {
		t.Errorf("category spent after repeated toggle = %d, want 120000", cat.Spent.Cents)
	}

	// Deleting the expense unwinds everything.
	if _, err := repo.DeleteExpense(ctx, "e1"); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	cat, _ = repo.GetCategory(ctx, categoryID)
	if cat.Scheduled.Cents != 0 || cat.Spent.Cents != 0 {
		t.Errorf("category aggregates after delete = %d/%d, want 0/0", cat.Scheduled.Cents, cat.Spent.Cents)
	}
}

func TestSQLiteRepository_ListExpensesLoadsPayments(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, eventID, categoryID := seedEvent(t, repo)

	due := time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC)
	oneOff := core.Expense{
		ID: "e1", CategoryID: categoryID, Name: "Flowers",
		Amount: core.Money{Cents: 30000},
		OneOff: &core.Payment{ID: "p1", ExpenseID: "e1", Name: "Flowers", Amount: core.Money{Cents: 30000}, DueDate: due},
	}
	if err := repo.CreateExpense(ctx, oneOff); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	expenses, err := repo.ListExpenses(ctx, eventID)
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("ListExpenses() returned %d expenses, want 1", len(expenses))
	}
	got := expenses[0]
	if got.CategoryName != "Catering" || got.CategoryIcon != "🍽" {
		t.Errorf("denormalized category fields = %q/%q, want Catering/🍽", got.CategoryName, got.CategoryIcon)
	}
	if got.OneOff == nil || got.OneOff.ID != "p1" {
		t.Errorf("one-off payment = %+v, want p1", got.OneOff)
	}
}

func TestSQLiteRepository_DeleteCategoryPrecondition(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, eventID, categoryID := seedEvent(t, repo)

	expense := core.Expense{
		ID: "e1", CategoryID: categoryID, Name: "Band",
		Amount: core.Money{Cents: 80000},
	}
	if err := repo.CreateExpense(ctx, expense); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	if err := repo.DeleteCategory(ctx, categoryID); !errors.Is(err, core.ErrCategoryHasExpenses) {
		t.Fatalf("DeleteCategory() with expenses = %v, want ErrCategoryHasExpenses", err)
	}

	if _, err := repo.DeleteExpense(ctx, "e1"); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	if err := repo.DeleteCategory(ctx, categoryID); err != nil {
		t.Fatalf("DeleteCategory() after clearing = %v", err)
	}

	ev, err := repo.GetEvent(ctx, eventID)
	if err != nil {
		t.Fatalf("GetEvent() error = %v", err)
	}
	if ev.TotalBudgeted.Cents != 0 {
		t.Errorf("event budgeted after category delete = %d, want 0", ev.TotalBudgeted.Cents)
	}
}

func TestSQLiteRepository_DeleteEventCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	userID, eventID, categoryID := seedEvent(t, repo)

	if err := repo.CreateExpense(ctx, core.Expense{
		ID: "e1", CategoryID: categoryID, Name: "Venue", Amount: core.Money{Cents: 200000},
	}); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	if err := repo.AddAttachment(ctx, "a1", "e1", "/attachments/e1/contract.pdf"); err != nil {
		t.Fatalf("AddAttachment() error = %v", err)
	}

	if _, err := repo.DeleteEvent(ctx, "someone-else", eventID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("DeleteEvent() by non-owner = %v, want ErrNotFound", err)
	}

	urls, err := repo.DeleteEvent(ctx, userID, eventID)
	if err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if len(urls) != 1 || urls[0] != "/attachments/e1/contract.pdf" {
		t.Errorf("DeleteEvent() attachment urls = %v, want the expense's attachment", urls)
	}
	if _, err := repo.GetEvent(ctx, eventID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetEvent() after delete = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetExpense(ctx, "e1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetExpense() after event delete = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_SaveAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, eventID, categoryID := seedEvent(t, repo)

	totals := core.Event{
		TotalBudgeted:  core.Money{Cents: 500000},
		TotalScheduled: core.Money{Cents: 90000},
		TotalSpent:     core.Money{Cents: 30000},
	}
	err := repo.SaveAggregates(ctx, eventID, []CategoryAggregate{
		{CategoryID: categoryID, Scheduled: 90000, Spent: 30000},
	}, totals)
	if err != nil {
		t.Fatalf("SaveAggregates() error = %v", err)
	}

	cat, err := repo.GetCategory(ctx, categoryID)
	if err != nil {
		t.Fatalf("GetCategory() error = %v", err)
	}
	if cat.Scheduled.Cents != 90000 || cat.Spent.Cents != 30000 {
		t.Errorf("category aggregates = %d/%d, want 90000/30000", cat.Scheduled.Cents, cat.Spent.Cents)
	}

	// A stale category id rolls the whole write back.
	err = repo.SaveAggregates(ctx, eventID, []CategoryAggregate{
		{CategoryID: categoryID, Scheduled: 1, Spent: 1},
		{CategoryID: "ghost", Scheduled: 2, Spent: 2},
	}, totals)
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("SaveAggregates() with stale id = %v, want ErrNotFound", err)
	}
	cat, _ = repo.GetCategory(ctx, categoryID)
	if cat.Scheduled.Cents != 90000 {
		t.Errorf("category scheduled after failed write = %d, want 90000 (unchanged)", cat.Scheduled.Cents)
	}
}
