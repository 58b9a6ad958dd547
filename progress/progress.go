package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/mboxport/mboxport/stats"
)

// Bar manages a progress bar for tracking message processing.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	total       int
	alreadyDone int
	mu          sync.Mutex
	enabled     bool
}

// New creates a new progress bar if logLevel is "info".
func New(title string, total, alreadyDone int, logLevel string) *Bar {
	enabled := logLevel == "info" && total > 0

	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle(title).
			Start()

		bar.pb = pb

		pterm.Info.Printf("Total messages: %d\n", total)
		if alreadyDone > 0 {
			pterm.Info.Printf("Already confirmed uploaded: %d\n", alreadyDone)
			pterm.Info.Printf("Remaining: %d\n", total-alreadyDone)
		}
		pterm.Println()
	}

	return bar
}

// Update advances the bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()

		if evt.Identity != "" {
			displayID := evt.Identity
			if len(displayID) > 16 {
				displayID = displayID[:16]
			}
			b.pb.UpdateTitle("Processing " + displayID)
		}
	case stats.EventTypeFailed:
		if evt.Err != nil {
			pterm.Error.Printf("Failed %s: %v\n", evt.Identity, evt.Err)
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	_, _ = b.pb.Stop()
}

// Subscriber creates a stats subscriber function that updates the bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// Reporter pairs the progress bar with a stats collector that prints the
// final summary once the pipeline drains.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewReporter subscribes the bar and a summary printer to the event
// stream. When the bar is disabled the plain stats reporter takes over.
func NewReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	} else {
		stats.NewReporter(stream, logger)
	}

	return reporter
}

func (r *Reporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	r.collector.Run(ctx, events)

	summary := r.collector.Snapshot()
	duration := time.Since(r.started)

	pterm.Println()
	pterm.DefaultSection.Println("Summary")
	pterm.Info.Printf("Duration: %v\n", duration)
	pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
	pterm.Info.Printf("Skipped (already uploaded): %d\n", summary.Skipped)
	pterm.Info.Printf("Converted: %d\n", summary.Converted)
	pterm.Info.Printf("Uploaded: %d\n", summary.Uploaded)
	pterm.Info.Printf("Dry-run uploaded: %d\n", summary.DryRunUploaded)
	pterm.Info.Printf("Retries: %d\n", summary.Retries)
	pterm.Info.Printf("Failed: %d\n", summary.Failed)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}

	return nil
}

// Summary returns the collected totals.
func (r *Reporter) Summary() stats.Summary {
	return r.collector.Snapshot()
}
