package http

import (
	"time"

	"festa/internal/core"
	"festa/internal/services"
)

// Request payloads carry amounts as decimal strings ("123.45") and parse
// them through core.ParseDecimalToCents. Responses always report cents.

type eventRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Date     string `json:"date"`
	Currency string `json:"currency"`
}

type eventPayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Date           string `json:"date"`
	Currency       string `json:"currency"`
	TotalBudgeted  int64  `json:"total_budgeted_cents"`
	TotalScheduled int64  `json:"total_scheduled_cents"`
	TotalSpent     int64  `json:"total_spent_cents"`
}

func toEventPayload(e core.Event) eventPayload {
	return eventPayload{
		ID:             e.ID,
		Name:           e.Name,
		Type:           e.Type,
		Date:           e.Date.Format("2006-01-02"),
		Currency:       e.Currency,
		TotalBudgeted:  e.TotalBudgeted.Cents,
		TotalScheduled: e.TotalScheduled.Cents,
		TotalSpent:     e.TotalSpent.Cents,
	}
}

func (req eventRequest) toEvent(userID string) (core.Event, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return core.Event{}, err
	}
	return core.Event{
		UserID:   userID,
		Name:     sanitizeInput(req.Name),
		Type:     sanitizeInput(req.Type),
		Date:     date,
		Currency: req.Currency,
	}, nil
}

type categoryRequest struct {
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Color  string `json:"color"`
	Budget string `json:"budget"`
}

type categoryPayload struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	Budgeted  int64  `json:"budgeted_cents"`
	Scheduled int64  `json:"scheduled_cents"`
	Spent     int64  `json:"spent_cents"`
}

func toCategoryPayload(c core.BudgetCategory) categoryPayload {
	return categoryPayload{
		ID:        c.ID,
		EventID:   c.EventID,
		Name:      c.Name,
		Icon:      c.Icon,
		Color:     c.Color,
		Budgeted:  c.Budgeted.Cents,
		Scheduled: c.Scheduled.Cents,
		Spent:     c.Spent.Cents,
	}
}

func (req categoryRequest) toCategory(eventID string) (core.BudgetCategory, error) {
	cents, err := core.ParseDecimalToCents(req.Budget)
	if err != nil {
		return core.BudgetCategory{}, err
	}
	return core.BudgetCategory{
		EventID:  eventID,
		Name:     sanitizeInput(req.Name),
		Icon:     req.Icon,
		Color:    req.Color,
		Budgeted: core.Money{Cents: cents},
	}, nil
}

type paymentRequest struct {
	Name    string `json:"name"`
	Amount  string `json:"amount"`
	DueDate string `json:"due_date"`
	IsPaid  bool   `json:"is_paid"`
}

type paymentPayload struct {
	ID        string `json:"id"`
	ExpenseID string `json:"expense_id"`
	Name      string `json:"name"`
	Amount    int64  `json:"amount_cents"`
	DueDate   string `json:"due_date"`
	IsPaid    bool   `json:"is_paid"`
}

func toPaymentPayload(p core.Payment) paymentPayload {
	return paymentPayload{
		ID:        p.ID,
		ExpenseID: p.ExpenseID,
		Name:      p.Name,
		Amount:    p.Amount.Cents,
		DueDate:   p.DueDate.Format("2006-01-02"),
		IsPaid:    p.IsPaid,
	}
}

func (req paymentRequest) toPayment() (core.Payment, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.Payment{}, err
	}
	due, err := parseDate(req.DueDate)
	if err != nil {
		return core.Payment{}, err
	}
	return core.Payment{
		Name:    sanitizeInput(req.Name),
		Amount:  core.Money{Cents: cents},
		DueDate: due,
		IsPaid:  req.IsPaid,
	}, nil
}

type expenseRequest struct {
	CategoryID    string           `json:"category_id"`
	Name          string           `json:"name"`
	Amount        string           `json:"amount"`
	Currency      string           `json:"currency"`
	VendorName    string           `json:"vendor_name"`
	VendorContact string           `json:"vendor_contact"`
	Date          string           `json:"date"`
	Notes         string           `json:"notes"`
	Tags          []string         `json:"tags"`
	Schedule      []paymentRequest `json:"schedule"`
	OneOff        *paymentRequest  `json:"one_off"`
}

type expensePayload struct {
	ID            string           `json:"id"`
	CategoryID    string           `json:"category_id"`
	CategoryName  string           `json:"category_name"`
	CategoryIcon  string           `json:"category_icon"`
	CategoryColor string           `json:"category_color"`
	Name          string           `json:"name"`
	Amount        int64            `json:"amount_cents"`
	Currency      string           `json:"currency"`
	VendorName    string           `json:"vendor_name,omitempty"`
	VendorContact string           `json:"vendor_contact,omitempty"`
	Date          string           `json:"date,omitempty"`
	Notes         string           `json:"notes,omitempty"`
	Tags          []string         `json:"tags,omitempty"`
	Attachments   []string         `json:"attachments,omitempty"`
	HasSchedule   bool             `json:"has_schedule"`
	OneOff        *paymentPayload  `json:"one_off,omitempty"`
	Schedule      []paymentPayload `json:"schedule,omitempty"`
	PaidTotal     int64            `json:"paid_total_cents"`
}

func toExpensePayload(e core.Expense) expensePayload {
	p := expensePayload{
		ID:            e.ID,
		CategoryID:    e.CategoryID,
		CategoryName:  e.CategoryName,
		CategoryIcon:  e.CategoryIcon,
		CategoryColor: e.CategoryColor,
		Name:          e.Name,
		Amount:        e.Amount.Cents,
		Currency:      e.Currency,
		VendorName:    e.VendorName,
		VendorContact: e.VendorContact,
		Notes:         e.Notes,
		Tags:          e.Tags,
		Attachments:   e.Attachments,
		HasSchedule:   e.HasSchedule,
		PaidTotal:     e.PaidTotal().Cents,
	}
	if !e.Date.IsZero() {
		p.Date = e.Date.Format("2006-01-02")
	}
	if e.OneOff != nil {
		pp := toPaymentPayload(*e.OneOff)
		p.OneOff = &pp
	}
	for _, sp := range e.Schedule {
		p.Schedule = append(p.Schedule, toPaymentPayload(sp))
	}
	return p
}

func (req expenseRequest) toExpense() (core.Expense, error) {
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		CategoryID:    req.CategoryID,
		Name:          sanitizeInput(req.Name),
		Amount:        core.Money{Cents: cents},
		Currency:      req.Currency,
		VendorName:    sanitizeInput(req.VendorName),
		VendorContact: sanitizeInput(req.VendorContact),
		Notes:         sanitizeInput(req.Notes),
		Tags:          req.Tags,
	}
	if req.Date != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			return core.Expense{}, err
		}
		e.Date = date
	}
	for _, pr := range req.Schedule {
		p, err := pr.toPayment()
		if err != nil {
			return core.Expense{}, err
		}
		e.Schedule = append(e.Schedule, p)
	}
	e.HasSchedule = len(e.Schedule) > 0
	if !e.HasSchedule {
		oneOff := core.Payment{Name: e.Name, Amount: e.Amount, DueDate: time.Now()}
		if req.OneOff != nil {
			p, err := req.OneOff.toPayment()
			if err != nil {
				return core.Expense{}, err
			}
			oneOff = p
		}
		e.OneOff = &oneOff
	}
	return e, nil
}

type rollupPayload struct {
	Budgeted   int64  `json:"budgeted_cents"`
	Scheduled  int64  `json:"scheduled_cents"`
	Spent      int64  `json:"spent_cents"`
	Remaining  int64  `json:"remaining_cents"`
	Percentage int    `json:"percentage"`
	Status     string `json:"status"`
}

func toRollupPayload(r core.Rollup) rollupPayload {
	return rollupPayload{
		Budgeted:   r.Budgeted.Cents,
		Scheduled:  r.Scheduled.Cents,
		Spent:      r.Spent.Cents,
		Remaining:  r.Remaining.Cents,
		Percentage: r.Percentage,
		Status:     string(r.Status),
	}
}

type categoryOverviewPayload struct {
	Category categoryPayload `json:"category"`
	Rollup   rollupPayload   `json:"rollup"`
}

type overviewPayload struct {
	Event      eventPayload              `json:"event"`
	Rollup     rollupPayload             `json:"rollup"`
	Status     string                    `json:"status"`
	Categories []categoryOverviewPayload `json:"categories"`
}

func toOverviewPayload(ov services.EventOverview) overviewPayload {
	p := overviewPayload{
		Event:  toEventPayload(ov.Event),
		Rollup: toRollupPayload(ov.Rollup),
		Status: string(ov.Status),
	}
	for _, c := range ov.Categories {
		p.Categories = append(p.Categories, categoryOverviewPayload{
			Category: toCategoryPayload(c.Category),
			Rollup:   toRollupPayload(c.Rollup),
		})
	}
	return p
}

type duePaymentPayload struct {
	Payment     paymentPayload `json:"payment"`
	ExpenseName string         `json:"expense_name"`
	Dueness     string         `json:"dueness"`
}

type workspaceRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Currency string `json:"currency"`
}

type workspacePayload struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Currency string `json:"currency"`
}

func toWorkspacePayload(w core.Workspace) workspacePayload {
	return workspacePayload{ID: w.ID, Email: w.Email, Name: w.Name, Language: w.Language, Currency: w.Currency}
}
