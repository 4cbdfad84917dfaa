package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dhcgn/threadgraph/config"
	"github.com/dhcgn/threadgraph/filter"
	"github.com/dhcgn/threadgraph/model"
	"github.com/dhcgn/threadgraph/state"
	"github.com/dhcgn/threadgraph/stats"
	"github.com/dhcgn/threadgraph/thread"
)

var ErrEmptyThread = errors.New("thread is empty")

type StageFunc func(context.Context) error

// Runner wires sources, the parse worker pool and the consumer together.
// Sources write envelopes to ThreadWriter, workers parse them against the
// shared Tracker, and a single consumer reads Results.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	threads chan model.Envelope
	results chan model.FileResult
	events  chan stats.Event

	tracker *state.MemoryTracker
	parser  *thread.Parser
	filter  *filter.Filter

	subsMu      sync.Mutex
	subscribers []subscriber

	workWG  sync.WaitGroup
	parseWG sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeThreadsOnce sync.Once
	closeResultsOnce sync.Once
	closeEventsOnce  sync.Once
	since            time.Time
}

type subscriber struct {
	name string
	fn   func(context.Context, <-chan stats.Event) error
	ch   chan stats.Event
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive")
	}

	f, err := filter.New(filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	})
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	tracker := state.NewMemoryTracker()

	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		threads: make(chan model.Envelope, 4*cfg.Workers),
		results: make(chan model.FileResult, 4*cfg.Workers),
		events:  make(chan stats.Event, 256),
		tracker: tracker,
		parser:  thread.NewParser(tracker),
		filter:  f,
	}

	r.parseWG.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		r.AddStage(fmt.Sprintf("parse-%d", i), r.parse)
	}
	r.AddStage("fan-in", func(context.Context) error {
		r.parseWG.Wait()
		r.closeResults()
		return nil
	})
	return r, nil
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

func (r *Runner) ThreadWriter() chan<- model.Envelope {
	return r.threads
}

func (r *Runner) CloseThreads() {
	r.closeThreadsOnce.Do(func() {
		close(r.threads)
	})
}

func (r *Runner) Results() <-chan model.FileResult {
	return r.results
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

// SubscribeStats registers fn to receive every event. Subscribers start with
// Start and each gets its own copy of the stream.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.subsMu.Lock()
	r.subscribers = append(r.subscribers, subscriber{name: name, fn: fn, ch: make(chan stats.Event, 256)})
	r.subsMu.Unlock()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Fail aborts the run with err unless an earlier error already did.
func (r *Runner) Fail(err error) {
	r.fail(err)
}

func (r *Runner) Start() error {
	r.since = time.Now()

	r.subsMu.Lock()
	subs := r.subscribers
	r.subsMu.Unlock()

	for _, sub := range subs {
		r.statsWG.Add(1)
		go func(sub subscriber) {
			defer r.statsWG.Done()
			err := sub.fn(r.ctx, sub.ch)
			for range sub.ch {
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				r.fail(fmt.Errorf("%s stats: %w", sub.name, err))
			}
		}(sub)
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		r.dispatch(subs)
	}()

	r.workWG.Wait()
	r.closeEvents()
	<-dispatched
	r.statsWG.Wait()

	r.cancel()

	err := r.err
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	if r.filter.Active() {
		r.logger.Info("filter hits", r.filter.Stats().LogAttrs()...)
	}
	snap := r.tracker.Snapshot()
	r.logger.Info("pipeline completed", "duration", duration, "uniqueFiles", snap.Files, "uniqueMessages", snap.Messages)
	return nil
}

// dispatch copies every event to each subscriber. Subscriber channels are
// drained after their function returns, so a send only blocks on a slow reader.
func (r *Runner) dispatch(subs []subscriber) {
	defer func() {
		for _, sub := range subs {
			close(sub.ch)
		}
	}()
	for evt := range r.events {
		for _, sub := range subs {
			select {
			case sub.ch <- evt:
			case <-r.ctx.Done():
			}
		}
	}
}

func (r *Runner) parse(ctx context.Context) error {
	defer r.parseWG.Done()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.threads:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeError, Source: envelope.Thread.Source, Err: envelope.Err})
				r.logger.Warn("source error", "source", envelope.Thread.Source, "err", envelope.Err)
				continue
			}

			res, ok := r.processThread(envelope.Thread)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.results <- res:
			}
		}
	}
}

// processThread runs one thread through dedup and parsing. Failures are
// confined to the thread: they are logged and counted, never returned.
func (r *Runner) processThread(t model.Thread) (res model.FileResult, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("panic: %v", rec)
			r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeError, Source: t.Source, Err: err})
			r.logger.Warn("thread dropped", "source", t.Source, "err", err, "stack", string(debug.Stack()))
			ok = false
		}
	}()

	r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeScanned, Source: t.Source})

	text := thread.Canonicalize(t.Raw)
	if text == "" {
		r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeError, Source: t.Source, Err: ErrEmptyThread})
		r.logger.Warn("thread dropped", "source", t.Source, "err", ErrEmptyThread)
		return model.FileResult{}, false
	}

	if !r.filter.Allows(filter.SplitRawMessage([]byte(text))) {
		r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeFiltered, Source: t.Source})
		return model.FileResult{}, false
	}

	fileHash := thread.Hash(text)
	if !r.tracker.ClaimFile(fileHash) {
		r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeDuplicate, Source: t.Source, Detail: stats.DetailFile})
		r.logger.Debug("duplicate file", "source", t.Source, "hash", fileHash)
		return model.FileResult{}, false
	}

	parsed, err := r.parser.Parse(text)
	if err != nil {
		r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeError, Source: t.Source, Err: err})
		r.logger.Warn("thread dropped", "source", t.Source, "err", err)
		return model.FileResult{}, false
	}

	for _, dropped := range parsed.Dropped {
		r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeDropped, Source: t.Source, Err: dropped})
		r.logger.Debug("quoted message dropped", "source", t.Source, "err", dropped)
	}
	if parsed.ParentDuplicate {
		r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeDuplicate, Source: t.Source, Detail: stats.DetailParent})
	}
	if len(parsed.Messages) == 0 {
		r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeEmpty, Source: t.Source})
		return model.FileResult{}, false
	}

	r.EmitEvent(stats.Event{Stage: stats.StageParse, Type: stats.EventTypeParsed, Source: t.Source, Count: len(parsed.Messages)})
	return model.FileResult{Source: t.Source, FileHash: fileHash, Messages: parsed.Messages}, true
}

func (r *Runner) closeResults() {
	r.closeResultsOnce.Do(func() {
		close(r.results)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
