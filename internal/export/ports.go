package export

import (
	"context"
	"time"

	"festa/internal/core"
)

// Snapshot is a flattened budget snapshot of one event, ready to be written
// to an external sink.
type Snapshot struct {
	EventID     string
	EventName   string
	Currency    string
	GeneratedAt time.Time
	Rows        []Row
}

// Row holds one expense line with its category context.
type Row struct {
	Category  string
	Expense   string
	Vendor    string
	Amount    core.Money
	Paid      core.Money
	Scheduled bool
}

// SnapshotWriter is the outbound port for budget exports.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, snap Snapshot) (ref string, err error)
}

// BuildSnapshot flattens an event and its expenses into export rows, one row
// per expense, ordered as given.
func BuildSnapshot(event core.Event, expenses []core.Expense, now time.Time) Snapshot {
	snap := Snapshot{
		EventID:     event.ID,
		EventName:   event.Name,
		Currency:    event.Currency,
		GeneratedAt: now,
	}
	for _, e := range expenses {
		snap.Rows = append(snap.Rows, Row{
			Category:  e.CategoryName,
			Expense:   e.Name,
			Vendor:    e.VendorName,
			Amount:    e.Amount,
			Paid:      e.PaidTotal(),
			Scheduled: e.HasSchedule,
		})
	}
	return snap
}
