package services

import (
	"sort"
	"time"

	"festa/internal/core"
)

// PaymentDueness classifies a payment relative to its due date.
type PaymentDueness string

const (
	DuenessPaid    PaymentDueness = "paid"
	DuenessOverdue PaymentDueness = "overdue"
	DuenessDueSoon PaymentDueness = "due-soon"
	DuenessLater   PaymentDueness = "later"
)

// dueSoonWindow is how far ahead a payment counts as due soon.
const dueSoonWindow = 14 * 24 * time.Hour

// ClassifyPayment buckets one payment by its due date. Paid wins over
// everything; an unpaid payment whose due date has passed is overdue.
func ClassifyPayment(p core.Payment, now time.Time) PaymentDueness {
	switch {
	case p.IsPaid:
		return DuenessPaid
	case p.DueDate.Before(now):
		return DuenessOverdue
	case p.DueDate.Sub(now) <= dueSoonWindow:
		return DuenessDueSoon
	default:
		return DuenessLater
	}
}

// DuePayment is one upcoming or overdue payment with its owning expense.
type DuePayment struct {
	Payment     core.Payment
	ExpenseName string
	Dueness     PaymentDueness
}

// UpcomingPayments collects unpaid payments across the given expenses,
// soonest due first. Paid payments are excluded.
func UpcomingPayments(expenses []core.Expense, now time.Time) []DuePayment {
	var due []DuePayment
	collect := func(e core.Expense, p core.Payment) {
		d := ClassifyPayment(p, now)
		if d == DuenessPaid {
			return
		}
		due = append(due, DuePayment{Payment: p, ExpenseName: e.Name, Dueness: d})
	}

	for _, e := range expenses {
		if e.HasSchedule {
			for _, p := range e.Schedule {
				collect(e, p)
			}
		} else if e.OneOff != nil {
			collect(e, *e.OneOff)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Payment.DueDate.Before(due[j].Payment.DueDate)
	})
	return due
}
