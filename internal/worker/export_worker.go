package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"festa/internal/amqp"
	"festa/internal/export"
	"festa/internal/storage"
)

// ExportWorker turns export messages into budget snapshots written to the
// configured sink.
type ExportWorker struct {
	storage     *storage.SQLiteRepository
	writer      export.SnapshotWriter
	concurrency int
}

func NewExportWorker(storage *storage.SQLiteRepository, writer export.SnapshotWriter, concurrency int) *ExportWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ExportWorker{storage: storage, writer: writer, concurrency: concurrency}
}

// HandleExportMessage processes a single export request from AMQP.
func (w *ExportWorker) HandleExportMessage(ctx context.Context, msg *amqp.BudgetExportMessage) error {
	slog.InfoContext(ctx, "Processing export message",
		"user_id", msg.UserID, "event_id", msg.EventID)

	return w.exportEvent(ctx, msg.EventID)
}

// ExportAll snapshots every event, up to concurrency at a time. It is run at
// worker startup so exports missed while the worker was down still happen.
func (w *ExportWorker) ExportAll(ctx context.Context) error {
	ids, err := w.storage.ListEventIDs(ctx)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(ids) == 0 {
		slog.InfoContext(ctx, "No events to export on startup")
		return nil
	}

	slog.InfoContext(ctx, "Exporting all events on startup", "count", len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for eventID := range ids {
		g.Go(func() error {
			if err := w.exportEvent(ctx, eventID); err != nil {
				slog.ErrorContext(ctx, "Failed to export event",
					"event_id", eventID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (w *ExportWorker) exportEvent(ctx context.Context, eventID string) error {
	tree, err := w.storage.GetEventTree(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event tree: %w", err)
	}

	snap := export.BuildSnapshot(tree.Event, tree.Expenses, time.Now())
	ref, err := w.writer.WriteSnapshot(ctx, snap)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	slog.InfoContext(ctx, "Budget snapshot exported",
		"event_id", eventID, "rows", len(snap.Rows), "ref", ref)
	return nil
}
