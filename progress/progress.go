package progress

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"

	"github.com/dhcgn/threadgraph/stats"
)

// Bar tracks threads moving through the parse workers.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar when logLevel is "info" and the total is known.
func New(total int, logLevel string) *Bar {
	bar := &Bar{
		total:   total,
		enabled: logLevel == "info" && total > 0,
	}

	if bar.enabled {
		pterm.Info.Printf("Threads to read: %s\n", humanize.Comma(int64(total)))
		pterm.Println()

		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Parsing threads").
			Start()
		bar.pb = pb
	}

	return bar
}

// Update advances the bar once per thread that reached a worker.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()
		if evt.Source != "" {
			b.pb.UpdateTitle("Parsing: " + shorten(evt.Source, 40))
		}
	case stats.EventTypeError:
		// Source errors never reach a worker's scanned event.
		if evt.Stage == stats.StageSource {
			b.pb.Increment()
		}
	}
}

func shorten(source string, max int) string {
	dir, file := filepath.Split(source)
	display := filepath.Join(filepath.Base(dir), file)
	if len(display) > max {
		display = "..." + display[len(display)-max+3:]
	}
	return display
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
	pterm.Success.Println("Parsing complete!")
}

// Subscriber creates a stats subscriber function that updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
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

// ProgressReporter wraps the stats collector with the progress bar and
// prints a summary table when the run ends.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collectStats)
	}

	return reporter
}

func (pr *ProgressReporter) collectStats(ctx context.Context, events <-chan stats.Event) error {
	pr.collector.Run(ctx, events)

	summary := pr.collector.Snapshot()
	duration := time.Since(pr.started).Round(time.Millisecond)

	count := func(n int) string { return humanize.Comma(int64(n)) }
	data := pterm.TableData{
		{"Metric", "Count"},
		{"Threads scanned", count(summary.Scanned)},
		{"Excluded", count(summary.Excluded)},
		{"Filtered", count(summary.Filtered)},
		{"Duplicate files", count(summary.DuplicateFiles)},
		{"Duplicate parents", count(summary.DuplicateParents)},
		{"Quoted messages dropped", count(summary.Dropped)},
		{"Empty threads", count(summary.Empty)},
		{"Messages parsed", count(summary.Messages)},
		{"Emails stored", count(summary.Stored)},
		{"Errors", count(summary.Errors)},
	}

	pterm.Println()
	pterm.DefaultSection.Println("Summary Statistics")
	pterm.Info.Printf("Duration: %v\n", duration)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil && pr.logger != nil {
		pr.logger.Debug("render summary", "err", err)
	}
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
	return nil
}
