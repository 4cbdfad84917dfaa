// Package imap reads threads from an IMAP folder. Every message body is
// handed to the parser as one thread; the folder is opened read-only.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/threadgraph/model"
	"github.com/dhcgn/threadgraph/runner"
)

const defaultFetchBatch = 100

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Folder             string
	// FetchBatch is the number of messages requested per FETCH.
	FetchBatch int
}

func (o Options) validate() error {
	if o.Host == "" {
		return fmt.Errorf("imap host is empty")
	}
	if o.Port <= 0 {
		return fmt.Errorf("imap port must be positive")
	}
	if o.Username == "" {
		return fmt.Errorf("imap username is empty")
	}
	return nil
}

func (o Options) folder() string {
	if o.Folder == "" {
		return "INBOX"
	}
	return o.Folder
}

type Source struct {
	opts   Options
	runner *runner.Runner
	logger *slog.Logger
}

func NewSource(opts Options, r *runner.Runner, logger *slog.Logger) (*Source, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.FetchBatch <= 0 {
		opts.FetchBatch = defaultFetchBatch
	}
	source := &Source{opts: opts, runner: r, logger: logger}
	r.AddStage("imap", source.run)
	return source, nil
}

func (s *Source) run(ctx context.Context) error {
	defer s.runner.CloseThreads()

	client, cleanup, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	folder := s.opts.folder()
	data, err := client.Select(folder, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("select %s: %w", folder, err)
	}
	if s.logger != nil {
		s.logger.Info("imap folder selected", "folder", folder, "messages", data.NumMessages)
	}

	out := s.runner.ThreadWriter()
	for _, r := range seqRanges(data.NumMessages, uint32(s.opts.FetchBatch)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var set imapv2.SeqSet
		set.AddRange(r[0], r[1])
		if err := s.fetch(ctx, client, set, out); err != nil {
			return err
		}
	}
	return nil
}

// seqRanges splits 1..total into inclusive ranges of at most size messages.
func seqRanges(total, size uint32) [][2]uint32 {
	if size == 0 {
		size = defaultFetchBatch
	}
	var ranges [][2]uint32
	for start := uint32(1); start <= total; start += size {
		stop := start + size - 1
		if stop > total {
			stop = total
		}
		ranges = append(ranges, [2]uint32{start, stop})
	}
	return ranges
}

func (s *Source) fetch(ctx context.Context, client *imapclient.Client, set imapv2.SeqSet, out chan<- model.Envelope) error {
	section := &imapv2.FetchItemBodySection{Peek: true}
	cmd := client.Fetch(set, &imapv2.FetchOptions{
		UID:         true,
		BodySection: []*imapv2.FetchItemBodySection{section},
	})

	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			env := model.Envelope{Thread: model.Thread{Source: s.sourceName(0)}, Err: fmt.Errorf("fetch: %w", err)}
			if err := emit(ctx, out, env); err != nil {
				_ = cmd.Close()
				return err
			}
			continue
		}

		raw := buf.FindBodySection(section)
		env := model.Envelope{Thread: model.Thread{Source: s.sourceName(uint32(buf.UID)), Raw: raw}}
		if raw == nil {
			env.Err = fmt.Errorf("message %d: empty body", buf.SeqNum)
		}
		if err := emit(ctx, out, env); err != nil {
			_ = cmd.Close()
			return err
		}
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

func (s *Source) sourceName(uid uint32) string {
	return fmt.Sprintf("imap://%s/%s;UID=%d", s.opts.Host, s.opts.folder(), uid)
}

func emit(ctx context.Context, out chan<- model.Envelope, env model.Envelope) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- env:
		return nil
	}
}

func (s *Source) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	options := &imapclient.Options{}

	if s.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         s.opts.Host,
			InsecureSkipVerify: s.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if s.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(s.opts.Username, s.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("imap connection established", "address", address, "user", s.opts.Username, "folder", s.opts.folder(), "tls", s.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				if s.logger != nil {
					s.logger.Warn("imap logout failed", "err", err)
				}
			}
		}
		if err := client.Close(); err != nil && s.logger != nil {
			s.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}
