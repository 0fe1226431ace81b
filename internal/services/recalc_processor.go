package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RecalcProcessorConfig holds configuration for the background sweep.
type RecalcProcessorConfig struct {
	// SweepInterval is how often every event is recalculated (default: 1h)
	SweepInterval time.Duration
}

func DefaultRecalcProcessorConfig() RecalcProcessorConfig {
	return RecalcProcessorConfig{SweepInterval: time.Hour}
}

// RecalcProcessor periodically sweeps every event through the recalculation
// service so aggregate drift never survives longer than one interval.
type RecalcProcessor struct {
	recalc *RecalcService
	config RecalcProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRecalcProcessor(recalc *RecalcService, config RecalcProcessorConfig) *RecalcProcessor {
	return &RecalcProcessor{recalc: recalc, config: config}
}

// Start begins the sweep loop. Returns an error if already running.
func (p *RecalcProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("recalc processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Recalc processor started", "sweep_interval", p.config.SweepInterval)
	return nil
}

// Stop signals the loop and waits for it to drain.
func (p *RecalcProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Recalc processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Recalc processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *RecalcProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RecalcProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *RecalcProcessor) sweep(ctx context.Context) {
	ids, err := p.recalc.repo.ListEventIDs(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list events for recalc sweep", "error", err)
		return
	}

	repaired := 0
	for eventID := range ids {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		result, err := p.recalc.Recalculate(ctx, eventID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to recalculate event", "event_id", eventID, "error", err)
			continue
		}
		if result.Applied {
			repaired++
		}
	}

	if repaired > 0 {
		slog.WarnContext(ctx, "Recalc sweep repaired drifted aggregates",
			"events", len(ids), "repaired", repaired)
	}
}
