// Package maildir reads thread files from a directory tree such as the Enron
// maildir corpus.
package maildir

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhcgn/threadgraph/model"
	"github.com/dhcgn/threadgraph/runner"
	"github.com/dhcgn/threadgraph/stats"
)

type Options struct {
	Root    string
	Pattern string
	// Exclude holds slash-separated paths relative to Root.
	Exclude []string
	// OnExcluded, if set, is called for every file skipped by Exclude.
	OnExcluded func(path string)
}

type Reader struct {
	root       string
	pattern    string
	exclude    map[string]struct{}
	onExcluded func(string)
	logger     *slog.Logger
}

func NewReader(opts Options, logger *slog.Logger) (*Reader, error) {
	root := strings.TrimSpace(opts.Root)
	if root == "" {
		return nil, fmt.Errorf("input directory is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input %s is not a directory", root)
	}

	pattern := opts.Pattern
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("file pattern %q: %w", pattern, err)
	}

	exclude := make(map[string]struct{}, len(opts.Exclude))
	for _, p := range opts.Exclude {
		p = strings.Trim(filepath.ToSlash(strings.TrimSpace(p)), "/")
		if p != "" {
			exclude[p] = struct{}{}
		}
	}

	return &Reader{
		root:       root,
		pattern:    pattern,
		exclude:    exclude,
		onExcluded: opts.OnExcluded,
		logger:     logger,
	}, nil
}

// Count returns the number of files Stream would read.
func (r *Reader) Count(ctx context.Context) (int, error) {
	n := 0
	err := r.walk(ctx, func(string) error {
		n++
		return nil
	}, nil, nil)
	return n, err
}

// Stream sends one envelope per matching file. Unreadable files become error
// envelopes; only a missing root or a canceled context end the walk early.
func (r *Reader) Stream(ctx context.Context, out chan<- model.Envelope) error {
	return r.walk(ctx, func(path string) error {
		raw, err := os.ReadFile(path)
		if err != nil {
			return r.emit(ctx, out, model.Envelope{Thread: model.Thread{Source: path}, Err: fmt.Errorf("read: %w", err)})
		}
		return r.emit(ctx, out, model.Envelope{Thread: model.Thread{Source: path, Raw: raw}})
	}, func(path string, err error) error {
		return r.emit(ctx, out, model.Envelope{Thread: model.Thread{Source: path}, Err: err})
	}, r.onExcluded)
}

func (r *Reader) walk(ctx context.Context, visit func(path string) error, onErr func(path string, err error) error, onExcluded func(string)) error {
	return filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == r.root {
				return err
			}
			if r.logger != nil {
				r.logger.Warn("walk error", "path", path, "err", err)
			}
			if onErr != nil {
				if emitErr := onErr(path, err); emitErr != nil {
					return emitErr
				}
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(r.pattern, d.Name()); !ok {
			return nil
		}
		if r.excluded(path) {
			if onExcluded != nil {
				onExcluded(path)
			}
			return nil
		}
		return visit(path)
	})
}

func (r *Reader) excluded(path string) bool {
	if len(r.exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return false
	}
	_, ok := r.exclude[filepath.ToSlash(rel)]
	return ok
}

func (r *Reader) emit(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

type Producer struct {
	reader *Reader
	runner *runner.Runner
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	if opts.OnExcluded == nil {
		opts.OnExcluded = func(path string) {
			r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeExcluded, Source: path})
		}
	}
	reader, err := NewReader(opts, logger)
	if err != nil {
		return nil, err
	}
	producer := &Producer{reader: reader, runner: r}
	r.AddStage("maildir", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseThreads()
	err := p.reader.Stream(ctx, p.runner.ThreadWriter())
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("input directory vanished: %w", err)
	}
	return err
}

// Count walks the tree once without reading files.
func (p *Producer) Count(ctx context.Context) (int, error) {
	return p.reader.Count(ctx)
}
