package stats

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pterm/pterm"
)

type Stage string

const (
	StageSource  Stage = "source"
	StageParse   Stage = "parse"
	StageResolve Stage = "resolve"
)

type EventType string

const (
	EventTypeScanned   EventType = "scanned"
	EventTypeExcluded  EventType = "excluded"
	EventTypeFiltered  EventType = "filtered"
	EventTypeDuplicate EventType = "duplicate"
	EventTypeDropped   EventType = "dropped"
	EventTypeEmpty     EventType = "empty"
	EventTypeParsed    EventType = "parsed"
	EventTypeStored    EventType = "stored"
	EventTypeError     EventType = "error"
)

// Duplicate event details.
const (
	DetailFile   = "file"
	DetailParent = "parent"
)

type Event struct {
	Stage  Stage
	Type   EventType
	Source string
	Err    error
	Detail string
	// Count is the number of messages an event covers, where that applies.
	Count int
}

type Summary struct {
	Scanned          int
	Excluded         int
	Filtered         int
	DuplicateFiles   int
	DuplicateParents int
	Dropped          int
	Empty            int
	Parsed           int
	Messages         int
	Stored           int
	Errors           int
	LastError        error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"excluded", s.Excluded,
		"filtered", s.Filtered,
		"duplicateFiles", s.DuplicateFiles,
		"duplicateParents", s.DuplicateParents,
		"droppedQuoted", s.Dropped,
		"empty", s.Empty,
		"parsed", s.Parsed,
		"messages", s.Messages,
		"stored", s.Stored,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.apply(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

func (c *Collector) apply(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeScanned:
		c.summary.Scanned++
	case EventTypeExcluded:
		c.summary.Excluded++
	case EventTypeFiltered:
		c.summary.Filtered++
	case EventTypeDuplicate:
		if evt.Detail == DetailParent {
			c.summary.DuplicateParents++
		} else {
			c.summary.DuplicateFiles++
		}
	case EventTypeDropped:
		c.summary.Dropped++
	case EventTypeEmpty:
		c.summary.Empty++
	case EventTypeParsed:
		c.summary.Parsed++
		c.summary.Messages += evt.Count
	case EventTypeStored:
		c.summary.Stored += evt.Count
	case EventTypeError:
		c.summary.Errors++
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// PrettyPrintTop renders the top N most frequent items in m as a table.
func PrettyPrintTop(m map[string]int, limit int) error {
	return pterm.DefaultTable.WithHasHeader().WithData(TopTable(m, limit)).Render()
}

// TopTable is the header row plus one ranked row per item of Top.
func TopTable(m map[string]int, limit int) [][]string {
	data := [][]string{{"#", "Value", "Count"}}
	for i, p := range Top(m, limit) {
		data = append(data, []string{strconv.Itoa(i + 1), p.Key, strconv.Itoa(p.Value)})
	}
	return data
}

// Pair is one counted item.
type Pair struct {
	Key   string
	Value int
}

// Top returns the limit most frequent items of m, ties broken by key.
func Top(m map[string]int, limit int) []Pair {
	pairs := make([]Pair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, Pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Value != pairs[j].Value {
			return pairs[i].Value > pairs[j].Value
		}
		return pairs[i].Key < pairs[j].Key
	})

	if limit >= 0 && limit < len(pairs) {
		pairs = pairs[:limit]
	}
	return pairs
}
