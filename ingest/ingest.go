// Package ingest is the single consumer of parsed threads. It owns the user
// and group resolvers and writes the online tables.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dhcgn/threadgraph/identity"
	"github.com/dhcgn/threadgraph/model"
	"github.com/dhcgn/threadgraph/runner"
	"github.com/dhcgn/threadgraph/stats"
	"github.com/dhcgn/threadgraph/store"
)

// An alias with more commas than this is a recipient list that was not split.
const maxAliasCommas = 3

type Options struct {
	Domain    string
	BatchSize int
}

type Summary struct {
	Files  int
	Emails int
	Users  int
	Groups int
}

func (s Summary) LogAttrs() []any {
	return []any{"files", s.Files, "emails", s.Emails, "users", s.Users, "groups", s.Groups}
}

type Consumer struct {
	opts   Options
	runner *runner.Runner
	store  *store.Store
	logger *slog.Logger

	users  *identity.Users
	groups *identity.Groups

	summary Summary
}

func NewConsumer(opts Options, r *runner.Runner, s *store.Store, logger *slog.Logger) (*Consumer, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if strings.TrimSpace(opts.Domain) == "" {
		return nil, fmt.Errorf("org domain is empty")
	}
	c := &Consumer{
		opts:   opts,
		runner: r,
		store:  s,
		logger: logger,
		users:  identity.NewUsers(opts.Domain),
		groups: identity.NewGroups(),
	}
	r.AddStage("resolve", c.run)
	return c, nil
}

// Summary is complete once the runner's Start returned.
func (c *Consumer) Summary() Summary {
	return c.summary
}

func (c *Consumer) run(ctx context.Context) error {
	if err := c.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset tables: %w", err)
	}

	buf := c.store.NewEmailBuffer(store.TableEmail, c.opts.BatchSize)
	results := c.runner.Results()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return c.finish(ctx, buf)
			}
			if err := c.consume(ctx, buf, res); err != nil {
				return fmt.Errorf("%s: %w", res.Source, err)
			}
		}
	}
}

func (c *Consumer) consume(ctx context.Context, buf *store.EmailBuffer, res model.FileResult) error {
	for _, msg := range res.Messages {
		row, err := c.resolve(msg)
		if err != nil {
			return err
		}
		if err := buf.Add(ctx, row, msg.ParentHash); err != nil {
			return err
		}
	}
	c.summary.Files++
	c.summary.Emails += len(res.Messages)
	c.runner.EmitEvent(stats.Event{Stage: stats.StageResolve, Type: stats.EventTypeStored, Source: res.Source, Count: len(res.Messages)})
	return nil
}

// resolve turns a parsed message into an email row. Each participant alias is
// resolved on its own; all sender aliases describe one person.
func (c *Consumer) resolve(msg model.RawMessage) (model.EmailRow, error) {
	var members []int
	for _, alias := range msg.Aliases {
		for _, part := range ExpandAlias(alias) {
			id, err := c.users.Resolve(part)
			if err != nil {
				return model.EmailRow{}, err
			}
			members = append(members, id)
		}
	}

	sender := model.NoID
	var senders []string
	for _, s := range msg.Sender {
		if strings.TrimSpace(s) != "" {
			senders = append(senders, s)
		}
	}
	if len(senders) > 0 {
		id, err := c.users.ResolveSet(senders)
		if err != nil {
			return model.EmailRow{}, err
		}
		sender = id
	}

	return model.EmailRow{
		Hash:     msg.Hash,
		GroupID:  c.groups.ID(members),
		Subject:  msg.Subject,
		Date:     msg.Date,
		NormDate: msg.NormDate,
		SenderID: sender,
	}, nil
}

func (c *Consumer) finish(ctx context.Context, buf *store.EmailBuffer) error {
	if err := buf.Flush(ctx); err != nil {
		return err
	}
	if err := c.store.WriteUsers(ctx, store.TableUser, c.users.Profiles()); err != nil {
		return err
	}
	if err := c.store.WriteGroups(ctx, store.TableGroup, c.groups.Groups()); err != nil {
		return err
	}

	c.summary.Users = c.users.Len()
	c.summary.Groups = c.groups.Len()
	if c.logger != nil {
		c.logger.Info("online tables written", c.summary.LogAttrs()...)
	}
	return nil
}

// ExpandAlias splits an alias that is really a recipient list. Parts holding
// an address are kept; bare "Last First" names become "Last, First". Blank
// parts are dropped.
func ExpandAlias(alias string) []string {
	if strings.TrimSpace(alias) == "" {
		return nil
	}
	if strings.Count(alias, ",") <= maxAliasCommas {
		return []string{alias}
	}

	var parts []string
	for _, part := range strings.Split(alias, ", ") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if !strings.Contains(part, "@") {
			part = strings.ReplaceAll(part, " ", ", ")
		}
		parts = append(parts, part)
	}
	return parts
}
