// Package mbox reads threads from an mbox archive; every archived message is
// handed to the parser as one thread.
package mbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/dhcgn/threadgraph/model"
	"github.com/dhcgn/threadgraph/runner"
)

type Options struct {
	Path string
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Envelope) error
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	return &fileReader{path: path, logger: logger}, nil
}

type fileReader struct {
	path   string
	logger *slog.Logger
}

func (f *fileReader) Stream(ctx context.Context, out chan<- model.Envelope) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return f.stream(ctx, file, out)
}

// stream stops at the first framing error: the archive offsets after a
// corrupt separator cannot be trusted.
func (f *fileReader) stream(ctx context.Context, src io.Reader, out chan<- model.Envelope) error {
	reader := mboxlib.NewReader(src)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		source := fmt.Sprintf("%s#%d", f.path, idx)

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return f.emitError(ctx, out, source, fmt.Errorf("message %d: %w", idx, err))
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return f.emitError(ctx, out, source, fmt.Errorf("message %d read: %w", idx, err))
		}

		if err := f.emitEnvelope(ctx, out, model.Envelope{Thread: model.Thread{Source: source, Raw: raw}}); err != nil {
			return err
		}
	}
}

func (f *fileReader) emitError(ctx context.Context, out chan<- model.Envelope, source string, err error) error {
	if f.logger != nil {
		f.logger.Error("mbox stream error", "path", f.path, "err", err)
	}
	return f.emitEnvelope(ctx, out, model.Envelope{Thread: model.Thread{Source: source}, Err: err})
}

func (f *fileReader) emitEnvelope(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

type Producer struct {
	reader Reader
	runner *runner.Runner
	path   string
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	reader, err := NewReader(opts, logger)
	if err != nil {
		return nil, err
	}
	producer := &Producer{reader: reader, runner: r, path: opts.Path}
	r.AddStage("mbox", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseThreads()
	return p.reader.Stream(ctx, p.runner.ThreadWriter())
}

// Count returns the number of messages in the archive.
func (p *Producer) Count(context.Context) (int, error) {
	return CountMessages(p.path)
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	return countMessages(file)
}

func countMessages(src io.Reader) (int, error) {
	reader := mboxlib.NewReader(src)
	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}
		// A message that fails to drain still counts.
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}
