package core

import (
	"errors"
	"strings"
	"time"
)

const (
	StatusUnderBudget      BudgetStatus = "under-budget"
	StatusOnTrack          BudgetStatus = "on-track"
	StatusApproachingLimit BudgetStatus = "approaching-limit"
	StatusOverBudget       BudgetStatus = "over-budget"
	StatusCompleted        BudgetStatus = "completed"
)

type (
	// BudgetStatus buckets a budget by how much of it has been spent.
	BudgetStatus string

	Money struct {
		Cents int64
	}

	// Event is a user-defined occasion (wedding, party, ...) that owns a budget.
	// The Total* fields are derived sums over the event's categories; they are
	// maintained incrementally on writes and repaired by the recalculation
	// service when they drift.
	Event struct {
		ID             string
		UserID         string
		Name           string
		Type           string
		Date           time.Time
		Currency       string
		TotalBudgeted  Money
		TotalScheduled Money
		TotalSpent     Money
	}

	// BudgetCategory groups expenses under one event with its own sub-budget.
	// Scheduled and Spent are sums over the category's expenses.
	BudgetCategory struct {
		ID        string
		EventID   string
		Name      string
		Icon      string
		Color     string
		Budgeted  Money
		Scheduled Money
		Spent     Money
	}

	// Expense is a single cost item within a category. The category name,
	// icon and color are denormalized snapshots taken at creation time.
	// An expense is paid either through a single one-off payment or a
	// schedule of payments whose amounts must sum to Amount.
	Expense struct {
		ID            string
		CategoryID    string
		CategoryName  string
		CategoryIcon  string
		CategoryColor string
		Name          string
		Amount        Money
		Currency      string
		VendorName    string
		VendorContact string
		Date          time.Time
		Notes         string
		Tags          []string
		Attachments   []string
		HasSchedule   bool
		OneOff        *Payment
		Schedule      []Payment
	}

	// Payment is one scheduled or one-off charge belonging to an expense.
	Payment struct {
		ID        string
		ExpenseID string
		Name      string
		Amount    Money
		DueDate   time.Time
		IsPaid    bool
	}

	// Workspace holds per-user settings. Its ID equals the user ID and it is
	// created once at sign-up.
	Workspace struct {
		ID       string
		Email    string
		Name     string
		Language string
		Currency string
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyName           = errors.New("empty name")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrInvalidDate         = errors.New("invalid date")
	ErrScheduleSumMismatch = errors.New("payment schedule does not sum to expense amount")
	ErrCategoryHasExpenses = errors.New("category still has expenses")
	ErrNotFound            = errors.New("not found")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validName(name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	return nil
}

func validCurrency(code string) error {
	if len(code) != 3 {
		return ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ErrInvalidCurrency
		}
	}
	return nil
}

func (e Event) Validate() error {
	if err := validName(e.Name); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return ErrInvalidDate
	}
	if err := validCurrency(e.Currency); err != nil {
		return err
	}
	if e.TotalBudgeted.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c BudgetCategory) Validate() error {
	if err := validName(c.Name); err != nil {
		return err
	}
	if c.EventID == "" {
		return errors.New("missing event id")
	}
	if c.Budgeted.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := validName(e.Name); err != nil {
		return err
	}
	if e.CategoryID == "" {
		return errors.New("missing category id")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Currency != "" {
		if err := validCurrency(e.Currency); err != nil {
			return err
		}
	}
	if e.HasSchedule {
		if len(e.Schedule) == 0 {
			return errors.New("payment schedule flagged but empty")
		}
		if e.ScheduleTotal().Cents != e.Amount.Cents {
			return ErrScheduleSumMismatch
		}
	} else if e.OneOff != nil && e.OneOff.Amount.Cents != e.Amount.Cents {
		return ErrScheduleSumMismatch
	}
	return nil
}

func (p Payment) Validate() error {
	if err := validName(p.Name); err != nil {
		return err
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if p.DueDate.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (w Workspace) Validate() error {
	if w.ID == "" {
		return errors.New("missing workspace id")
	}
	if err := validName(w.Name); err != nil {
		return err
	}
	if !strings.Contains(w.Email, "@") {
		return errors.New("invalid email")
	}
	if w.Currency != "" {
		if err := validCurrency(w.Currency); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleTotal sums the amounts of all scheduled payments.
func (e Expense) ScheduleTotal() Money {
	var total int64
	for _, p := range e.Schedule {
		total += p.Amount.Cents
	}
	return Money{Cents: total}
}

// PaidTotal sums the amounts of all payments already marked paid. For an
// expense without a schedule the one-off payment counts as a whole.
func (e Expense) PaidTotal() Money {
	if !e.HasSchedule {
		if e.OneOff != nil && e.OneOff.IsPaid {
			return e.Amount
		}
		return Money{}
	}
	var total int64
	for _, p := range e.Schedule {
		if p.IsPaid {
			total += p.Amount.Cents
		}
	}
	return Money{Cents: total}
}
