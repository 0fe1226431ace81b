package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"festa/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := migrateSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- workspaces ---

func (r *SQLiteRepository) GetWorkspace(ctx context.Context, userID string) (core.Workspace, error) {
	var w core.Workspace
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, language, currency FROM workspaces WHERE id = ?`, userID).
		Scan(&w.ID, &w.Email, &w.Name, &w.Language, &w.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Workspace{}, core.ErrNotFound
	}
	if err != nil {
		return core.Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	return w, nil
}

func (r *SQLiteRepository) UpsertWorkspace(ctx context.Context, w core.Workspace) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO workspaces (id, email, name, language, currency)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   email = excluded.email, name = excluded.name,
		   language = excluded.language, currency = excluded.currency,
		   updated_at = CURRENT_TIMESTAMP`,
		w.ID, w.Email, w.Name, w.Language, w.Currency)
	if err != nil {
		return fmt.Errorf("upsert workspace: %w", err)
	}
	return nil
}

// --- events ---

const eventColumns = `id, user_id, name, event_type, event_date, currency,
	total_budgeted_cents, total_scheduled_cents, total_spent_cents`

func scanEvent(row interface{ Scan(...any) error }) (core.Event, error) {
	var e core.Event
	err := row.Scan(&e.ID, &e.UserID, &e.Name, &e.Type, &e.Date, &e.Currency,
		&e.TotalBudgeted.Cents, &e.TotalScheduled.Cents, &e.TotalSpent.Cents)
	return e, err
}

func (r *SQLiteRepository) ListEvents(ctx context.Context, userID string) ([]core.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE user_id = ? ORDER BY event_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []core.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListEventIDs returns every event id with its owner, for maintenance sweeps.
func (r *SQLiteRepository) ListEventIDs(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id FROM events`)
	if err != nil {
		return nil, fmt.Errorf("list event ids: %w", err)
	}
	defer rows.Close()

	ids := map[string]string{}
	for rows.Next() {
		var id, userID string
		if err := rows.Scan(&id, &userID); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids[id] = userID
	}
	return ids, rows.Err()
}

func (r *SQLiteRepository) GetEvent(ctx context.Context, id string) (core.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Event{}, core.ErrNotFound
	}
	if err != nil {
		return core.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *SQLiteRepository) CreateEvent(ctx context.Context, e core.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, name, event_type, event_date, currency,
		   total_budgeted_cents, total_scheduled_cents, total_spent_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Name, e.Type, e.Date, e.Currency,
		e.TotalBudgeted.Cents, e.TotalScheduled.Cents, e.TotalSpent.Cents)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	slog.InfoContext(ctx, "Event created", "id", e.ID, "user_id", e.UserID, "name", e.Name)
	return nil
}

func (r *SQLiteRepository) UpdateEvent(ctx context.Context, e core.Event) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET name = ?, event_type = ?, event_date = ?, currency = ?,
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND user_id = ?`,
		e.Name, e.Type, e.Date, e.Currency, e.ID, e.UserID)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return requireRow(res)
}

// DeleteEvent removes the event and everything under it in one transaction.
// The deleted attachment URLs are returned for blob cleanup.
func (r *SQLiteRepository) DeleteEvent(ctx context.Context, userID, eventID string) (urls []string, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT user_id FROM events WHERE id = ?`, eventID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != userID) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup event owner: %w", err)
		}

		urls, err = attachmentURLs(ctx, tx,
			`SELECT a.url FROM attachments a
			 JOIN expenses e ON a.expense_id = e.id
			 JOIN categories c ON e.category_id = c.id
			 WHERE c.event_id = ?`, eventID)
		if err != nil {
			return err
		}

		stmts := []string{
			`DELETE FROM payments WHERE expense_id IN
			   (SELECT e.id FROM expenses e JOIN categories c ON e.category_id = c.id WHERE c.event_id = ?)`,
			`DELETE FROM attachments WHERE expense_id IN
			   (SELECT e.id FROM expenses e JOIN categories c ON e.category_id = c.id WHERE c.event_id = ?)`,
			`DELETE FROM expenses WHERE category_id IN (SELECT id FROM categories WHERE event_id = ?)`,
			`DELETE FROM categories WHERE event_id = ?`,
			`DELETE FROM events WHERE id = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, eventID); err != nil {
				return fmt.Errorf("cascade delete event: %w", err)
			}
		}

		slog.InfoContext(ctx, "Event deleted", "id", eventID, "user_id", userID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

// --- categories ---

const categoryColumns = `id, event_id, name, icon, color, budgeted_cents, scheduled_cents, spent_cents`

func scanCategory(row interface{ Scan(...any) error }) (core.BudgetCategory, error) {
	var c core.BudgetCategory
	err := row.Scan(&c.ID, &c.EventID, &c.Name, &c.Icon, &c.Color,
		&c.Budgeted.Cents, &c.Scheduled.Cents, &c.Spent.Cents)
	return c, err
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, eventID string) ([]core.BudgetCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE event_id = ? ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	cats := []core.BudgetCategory{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.BudgetCategory, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetCategory{}, core.ErrNotFound
	}
	if err != nil {
		return core.BudgetCategory{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.BudgetCategory) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, event_id, name, icon, color, budgeted_cents, scheduled_cents, spent_cents)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.EventID, c.Name, c.Icon, c.Color,
			c.Budgeted.Cents, c.Scheduled.Cents, c.Spent.Cents)
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		return bumpEventBudget(ctx, tx, c.EventID, c.Budgeted.Cents)
	})
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.BudgetCategory) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var prevBudgeted int64
		err := tx.QueryRowContext(ctx,
			`SELECT budgeted_cents FROM categories WHERE id = ?`, c.ID).Scan(&prevBudgeted)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup category: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE categories SET name = ?, icon = ?, color = ?, budgeted_cents = ?,
			   updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			c.Name, c.Icon, c.Color, c.Budgeted.Cents, c.ID)
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}
		return bumpEventBudget(ctx, tx, c.EventID, c.Budgeted.Cents-prevBudgeted)
	})
}

// DeleteCategory refuses to remove a category that still has expenses.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var eventID string
		var budgeted int64
		err := tx.QueryRowContext(ctx,
			`SELECT event_id, budgeted_cents FROM categories WHERE id = ?`, id).
			Scan(&eventID, &budgeted)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup category: %w", err)
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM expenses WHERE category_id = ?`, id).Scan(&count); err != nil {
			return fmt.Errorf("count expenses: %w", err)
		}
		if !core.CanDeleteCategory(count) {
			return core.ErrCategoryHasExpenses
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return bumpEventBudget(ctx, tx, eventID, -budgeted)
	})
}

func (r *SQLiteRepository) CountExpenses(ctx context.Context, categoryID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM expenses WHERE category_id = ?`, categoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count expenses: %w", err)
	}
	return count, nil
}

// --- expenses ---

func (r *SQLiteRepository) ListExpenses(ctx context.Context, eventID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.category_id, c.name, c.icon, c.color,
		        e.name, e.amount_cents, e.currency, e.vendor_name, e.vendor_contact,
		        e.expense_date, e.notes, e.tags, e.has_schedule
		 FROM expenses e
		 JOIN categories c ON e.category_id = c.id
		 WHERE c.event_id = ?
		 ORDER BY e.created_at DESC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	byID := map[string]int{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		byID[e.ID] = len(expenses)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	if err := r.attachPayments(ctx, eventID, expenses, byID); err != nil {
		return nil, err
	}
	if err := r.attachAttachments(ctx, eventID, expenses, byID); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		`SELECT e.id, e.category_id, c.name, c.icon, c.color,
		        e.name, e.amount_cents, e.currency, e.vendor_name, e.vendor_contact,
		        e.expense_date, e.notes, e.tags, e.has_schedule
		 FROM expenses e
		 JOIN categories c ON e.category_id = c.id
		 WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, err
	}

	payments, err := r.paymentsForExpense(ctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	assignPayments(&e, payments)

	rows, err := r.db.QueryContext(ctx,
		`SELECT url FROM attachments WHERE expense_id = ? ORDER BY uploaded_at`, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return core.Expense{}, fmt.Errorf("scan attachment: %w", err)
		}
		e.Attachments = append(e.Attachments, url)
	}
	return e, rows.Err()
}

// CreateExpense inserts the expense with its payments and folds the new
// amounts into the category and event aggregates, all in one transaction.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		tags, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO expenses (id, category_id, name, amount_cents, currency,
			   vendor_name, vendor_contact, expense_date, notes, tags, has_schedule)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.CategoryID, e.Name, e.Amount.Cents, e.Currency,
			e.VendorName, e.VendorContact, nullTime(e.Date), e.Notes, string(tags), e.HasSchedule)
		if err != nil {
			return fmt.Errorf("create expense: %w", err)
		}

		if err := insertPayments(ctx, tx, e); err != nil {
			return err
		}
		if err := bumpCategoryAggregates(ctx, tx, e.CategoryID, e.Amount.Cents, e.PaidTotal().Cents); err != nil {
			return err
		}

		slog.InfoContext(ctx, "Expense created",
			"id", e.ID, "category_id", e.CategoryID, "amount_cents", e.Amount.Cents)
		return nil
	})
}

// UpdateExpense replaces the expense row and its payment schedule. Aggregates
// are adjusted by the difference between the old and new amounts.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := expenseDeltas(ctx, tx, e.ID)
		if err != nil {
			return err
		}

		tags, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE expenses SET category_id = ?, name = ?, amount_cents = ?, currency = ?,
			   vendor_name = ?, vendor_contact = ?, expense_date = ?, notes = ?, tags = ?,
			   has_schedule = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			e.CategoryID, e.Name, e.Amount.Cents, e.Currency,
			e.VendorName, e.VendorContact, nullTime(e.Date), e.Notes, string(tags),
			e.HasSchedule, e.ID)
		if err != nil {
			return fmt.Errorf("update expense: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE expense_id = ?`, e.ID); err != nil {
			return fmt.Errorf("clear payments: %w", err)
		}
		if err := insertPayments(ctx, tx, e); err != nil {
			return err
		}

		// Moving between categories splits the adjustment in two.
		if prev.categoryID != e.CategoryID {
			if err := bumpCategoryAggregates(ctx, tx, prev.categoryID, -prev.amount, -prev.paid); err != nil {
				return err
			}
			return bumpCategoryAggregates(ctx, tx, e.CategoryID, e.Amount.Cents, e.PaidTotal().Cents)
		}
		return bumpCategoryAggregates(ctx, tx, e.CategoryID,
			e.Amount.Cents-prev.amount, e.PaidTotal().Cents-prev.paid)
	})
}

// DeleteExpense removes the expense with its payments and attachment rows
// and returns the deleted attachment URLs so callers can clean up the
// stored blobs.
func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) (urls []string, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		prev, err := expenseDeltas(ctx, tx, id)
		if err != nil {
			return err
		}

		urls, err = attachmentURLs(ctx, tx,
			`SELECT url FROM attachments WHERE expense_id = ?`, id)
		if err != nil {
			return err
		}

		for _, stmt := range []string{
			`DELETE FROM payments WHERE expense_id = ?`,
			`DELETE FROM attachments WHERE expense_id = ?`,
			`DELETE FROM expenses WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return fmt.Errorf("delete expense: %w", err)
			}
		}
		return bumpCategoryAggregates(ctx, tx, prev.categoryID, -prev.amount, -prev.paid)
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

func attachmentURLs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attachment urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan attachment url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

// --- payments ---

// SetPaymentPaid toggles a payment and moves its amount in or out of the
// spent aggregates. It returns the owning expense's category and event ids
// so callers can invalidate the right cache entries. A payment owned by
// another user's event is reported as missing.
func (r *SQLiteRepository) SetPaymentPaid(ctx context.Context, userID, paymentID string, isPaid bool) (categoryID, eventID string, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var amount int64
		var wasPaid bool
		var expenseID string
		err := tx.QueryRowContext(ctx,
			`SELECT amount_cents, is_paid, expense_id FROM payments WHERE id = ?`, paymentID).
			Scan(&amount, &wasPaid, &expenseID)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup payment: %w", err)
		}

		var owner string
		if err := tx.QueryRowContext(ctx,
			`SELECT e.category_id, c.event_id, ev.user_id FROM expenses e
			 JOIN categories c ON e.category_id = c.id
			 JOIN events ev ON c.event_id = ev.id
			 WHERE e.id = ?`, expenseID).Scan(&categoryID, &eventID, &owner); err != nil {
			return fmt.Errorf("lookup payment owner: %w", err)
		}
		if owner != userID {
			categoryID, eventID = "", ""
			return core.ErrNotFound
		}

		if wasPaid == isPaid {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE payments SET is_paid = ? WHERE id = ?`, isPaid, paymentID); err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		delta := amount
		if !isPaid {
			delta = -amount
		}
		return bumpCategoryAggregates(ctx, tx, categoryID, 0, delta)
	})
	return categoryID, eventID, err
}

// --- attachments ---

func (r *SQLiteRepository) AddAttachment(ctx context.Context, id, expenseID, url string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attachments (id, expense_id, url) VALUES (?, ?, ?)`, id, expenseID, url)
	if err != nil {
		return fmt.Errorf("add attachment: %w", err)
	}
	return nil
}

// AttachmentExpense returns the id of the expense an attachment belongs to.
func (r *SQLiteRepository) AttachmentExpense(ctx context.Context, id string) (string, error) {
	var expenseID string
	err := r.db.QueryRowContext(ctx, `SELECT expense_id FROM attachments WHERE id = ?`, id).Scan(&expenseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup attachment: %w", err)
	}
	return expenseID, nil
}

func (r *SQLiteRepository) DeleteAttachment(ctx context.Context, id string) (url string, err error) {
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT url FROM attachments WHERE id = ?`, id).Scan(&url)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lookup attachment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete attachment: %w", err)
		}
		return nil
	})
	return url, err
}

// --- recalculation support ---

// EventTree is a full snapshot of one event's rows, read for recalculation.
type EventTree struct {
	Event      core.Event
	Categories []core.BudgetCategory
	Expenses   []core.Expense
}

func (r *SQLiteRepository) GetEventTree(ctx context.Context, eventID string) (EventTree, error) {
	event, err := r.GetEvent(ctx, eventID)
	if err != nil {
		return EventTree{}, err
	}
	categories, err := r.ListCategories(ctx, eventID)
	if err != nil {
		return EventTree{}, err
	}
	expenses, err := r.ListExpenses(ctx, eventID)
	if err != nil {
		return EventTree{}, err
	}
	return EventTree{Event: event, Categories: categories, Expenses: expenses}, nil
}

// CategoryAggregate carries recomputed sums for one category.
type CategoryAggregate struct {
	CategoryID string
	Scheduled  int64
	Spent      int64
}

// SaveAggregates writes the recomputed category sums and event totals in a
// single transaction. Either every row is updated or none is.
func (r *SQLiteRepository) SaveAggregates(ctx context.Context, eventID string, cats []CategoryAggregate, totals core.Event) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, ca := range cats {
			res, err := tx.ExecContext(ctx,
				`UPDATE categories SET scheduled_cents = ?, spent_cents = ?,
				   updated_at = CURRENT_TIMESTAMP
				 WHERE id = ? AND event_id = ?`,
				ca.Scheduled, ca.Spent, ca.CategoryID, eventID)
			if err != nil {
				return fmt.Errorf("save category aggregate: %w", err)
			}
			if err := requireRow(res); err != nil {
				return fmt.Errorf("category %s: %w", ca.CategoryID, err)
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE events SET total_budgeted_cents = ?, total_scheduled_cents = ?,
			   total_spent_cents = ?, updated_at = CURRENT_TIMESTAMP
			 WHERE id = ?`,
			totals.TotalBudgeted.Cents, totals.TotalScheduled.Cents,
			totals.TotalSpent.Cents, eventID)
		if err != nil {
			return fmt.Errorf("save event totals: %w", err)
		}
		return requireRow(res)
	})
}

// --- helpers ---

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanExpense(row interface{ Scan(...any) error }) (core.Expense, error) {
	var e core.Expense
	var date sql.NullTime
	var tags string
	err := row.Scan(&e.ID, &e.CategoryID, &e.CategoryName, &e.CategoryIcon, &e.CategoryColor,
		&e.Name, &e.Amount.Cents, &e.Currency, &e.VendorName, &e.VendorContact,
		&date, &e.Notes, &tags, &e.HasSchedule)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan expense: %w", err)
	}
	if date.Valid {
		e.Date = date.Time
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return e, fmt.Errorf("unmarshal tags: %w", err)
	}
	return e, nil
}

func insertPayments(ctx context.Context, tx *sql.Tx, e core.Expense) error {
	write := func(p core.Payment, pos int) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO payments (id, expense_id, name, amount_cents, due_date, is_paid, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, e.ID, p.Name, p.Amount.Cents, p.DueDate, p.IsPaid, pos)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		return nil
	}

	if e.HasSchedule {
		for i, p := range e.Schedule {
			if err := write(p, i); err != nil {
				return err
			}
		}
		return nil
	}
	if e.OneOff != nil {
		return write(*e.OneOff, 0)
	}
	return nil
}

func assignPayments(e *core.Expense, payments []core.Payment) {
	if e.HasSchedule {
		e.Schedule = payments
		return
	}
	if len(payments) > 0 {
		p := payments[0]
		e.OneOff = &p
	}
}

func (r *SQLiteRepository) paymentsForExpense(ctx context.Context, expenseID string) ([]core.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, expense_id, name, amount_cents, due_date, is_paid
		 FROM payments WHERE expense_id = ? ORDER BY position`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []core.Payment
	for rows.Next() {
		var p core.Payment
		if err := rows.Scan(&p.ID, &p.ExpenseID, &p.Name, &p.Amount.Cents, &p.DueDate, &p.IsPaid); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (r *SQLiteRepository) attachPayments(ctx context.Context, eventID string, expenses []core.Expense, byID map[string]int) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.expense_id, p.name, p.amount_cents, p.due_date, p.is_paid
		 FROM payments p
		 JOIN expenses e ON p.expense_id = e.id
		 JOIN categories c ON e.category_id = c.id
		 WHERE c.event_id = ?
		 ORDER BY p.expense_id, p.position`, eventID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	grouped := map[string][]core.Payment{}
	for rows.Next() {
		var p core.Payment
		if err := rows.Scan(&p.ID, &p.ExpenseID, &p.Name, &p.Amount.Cents, &p.DueDate, &p.IsPaid); err != nil {
			return fmt.Errorf("scan payment: %w", err)
		}
		grouped[p.ExpenseID] = append(grouped[p.ExpenseID], p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, payments := range grouped {
		if i, ok := byID[id]; ok {
			assignPayments(&expenses[i], payments)
		}
	}
	return nil
}

func (r *SQLiteRepository) attachAttachments(ctx context.Context, eventID string, expenses []core.Expense, byID map[string]int) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.expense_id, a.url
		 FROM attachments a
		 JOIN expenses e ON a.expense_id = e.id
		 JOIN categories c ON e.category_id = c.id
		 WHERE c.event_id = ?
		 ORDER BY a.uploaded_at`, eventID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var expenseID, url string
		if err := rows.Scan(&expenseID, &url); err != nil {
			return fmt.Errorf("scan attachment: %w", err)
		}
		if i, ok := byID[expenseID]; ok {
			expenses[i].Attachments = append(expenses[i].Attachments, url)
		}
	}
	return rows.Err()
}

type expenseTotals struct {
	categoryID string
	amount     int64
	paid       int64
}

func expenseDeltas(ctx context.Context, tx *sql.Tx, expenseID string) (expenseTotals, error) {
	var t expenseTotals
	err := tx.QueryRowContext(ctx,
		`SELECT e.category_id, e.amount_cents,
		        COALESCE((SELECT SUM(p.amount_cents) FROM payments p
		                  WHERE p.expense_id = e.id AND p.is_paid = 1), 0)
		 FROM expenses e WHERE e.id = ?`, expenseID).
		Scan(&t.categoryID, &t.amount, &t.paid)
	if errors.Is(err, sql.ErrNoRows) {
		return t, core.ErrNotFound
	}
	if err != nil {
		return t, fmt.Errorf("lookup expense totals: %w", err)
	}
	return t, nil
}

// bumpCategoryAggregates shifts the scheduled and spent sums on a category
// and mirrors the change on the parent event.
func bumpCategoryAggregates(ctx context.Context, tx *sql.Tx, categoryID string, scheduledDelta, spentDelta int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE categories SET
		   scheduled_cents = MAX(0, scheduled_cents + ?),
		   spent_cents = MAX(0, spent_cents + ?),
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, scheduledDelta, spentDelta, categoryID)
	if err != nil {
		return fmt.Errorf("bump category aggregates: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE events SET
		   total_scheduled_cents = MAX(0, total_scheduled_cents + ?),
		   total_spent_cents = MAX(0, total_spent_cents + ?),
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = (SELECT event_id FROM categories WHERE id = ?)`,
		scheduledDelta, spentDelta, categoryID)
	if err != nil {
		return fmt.Errorf("bump event aggregates: %w", err)
	}
	return nil
}

func bumpEventBudget(ctx context.Context, tx *sql.Tx, eventID string, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE events SET total_budgeted_cents = MAX(0, total_budgeted_cents + ?),
		   updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, delta, eventID)
	if err != nil {
		return fmt.Errorf("bump event budget: %w", err)
	}
	return nil
}
