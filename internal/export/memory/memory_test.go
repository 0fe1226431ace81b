package memory

import (
	"context"
	"testing"
	"time"

	"festa/internal/core"
	"festa/internal/export"
)

func TestStore_WriteSnapshot(t *testing.T) {
	store := New()
	ctx := context.Background()

	event := core.Event{ID: "ev1", Name: "Wedding", Currency: "EUR"}
	expenses := []core.Expense{
		{CategoryName: "Catering", Name: "Caterer", VendorName: "Bella Cucina",
			Amount: core.Money{Cents: 120000}, HasSchedule: true,
			Schedule: []core.Payment{{Amount: core.Money{Cents: 40000}, IsPaid: true}, {Amount: core.Money{Cents: 80000}}}},
	}
	snap := export.BuildSnapshot(event, expenses, time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC))

	ref, err := store.WriteSnapshot(ctx, snap)
	if err != nil {
		t.Fatalf("WriteSnapshot() error = %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}

	got := store.Snapshots()
	if len(got) != 1 {
		t.Fatalf("Snapshots() returned %d, want 1", len(got))
	}
	if got[0].EventName != "Wedding" || len(got[0].Rows) != 1 {
		t.Errorf("snapshot = %+v, want Wedding with one row", got[0])
	}
	row := got[0].Rows[0]
	if row.Paid.Cents != 40000 {
		t.Errorf("row paid = %d, want 40000", row.Paid.Cents)
	}
	if !row.Scheduled {
		t.Error("row should be marked scheduled")
	}
}
