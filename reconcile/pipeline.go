package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dhcgn/threadgraph/store"
)

var ErrMissingInput = errors.New("missing ingest table")

type Options struct {
	Workers int
	// Cleanup drops the intermediate tables once all stages succeeded.
	Cleanup bool
}

// Summary describes what the three stages changed.
type Summary struct {
	Users          int
	MergedUsers    int
	DeletedUsers   int
	Groups         int
	RemappedGroups int
	Emails         int
	DroppedEmails  int
	DuplicateRows  int
	EmailUsers     int
}

func (s Summary) LogAttrs() []any {
	return []any{
		"users", s.Users,
		"mergedUsers", s.MergedUsers,
		"deletedUsers", s.DeletedUsers,
		"groups", s.Groups,
		"remappedGroups", s.RemappedGroups,
		"emails", s.Emails,
		"droppedEmails", s.DroppedEmails,
		"duplicateRows", s.DuplicateRows,
		"emailUsers", s.EmailUsers,
	}
}

// Run executes stages A, B and C in sequence. Each stage reads its inputs
// back from the store, so a stage only ever sees persisted output of the
// previous one.
func Run(ctx context.Context, s *store.Store, opts Options, logger *slog.Logger) (Summary, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var summary Summary

	for _, t := range []store.Table{store.TableUser, store.TableGroup, store.TableEmail} {
		ok, err := s.Exists(ctx, t)
		if err != nil {
			return summary, err
		}
		if !ok {
			return summary, fmt.Errorf("%w: %s", ErrMissingInput, t)
		}
	}

	if err := s.Truncate(ctx, store.ReconcileTables...); err != nil {
		return summary, fmt.Errorf("reset reconcile tables: %w", err)
	}

	stages := []struct {
		name string
		fn   func(context.Context, *store.Store, Options, *Summary) error
	}{
		{"users", runUsers},
		{"groups", runGroups},
		{"emails", runEmails},
	}
	for _, stage := range stages {
		started := time.Now()
		logger.Info("reconcile stage started", "stage", stage.name)
		if err := stage.fn(ctx, s, opts, &summary); err != nil {
			return summary, fmt.Errorf("%s stage: %w", stage.name, err)
		}
		logger.Info("reconcile stage finished", "stage", stage.name, "duration", time.Since(started))
	}

	if opts.Cleanup {
		if err := s.DropTables(ctx, store.IntermediateTables...); err != nil {
			return summary, fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("intermediate tables removed", "tables", store.IntermediateTables)
	}

	logger.Info("reconcile summary", summary.LogAttrs()...)
	return summary, nil
}

func runUsers(ctx context.Context, s *store.Store, opts Options, summary *Summary) error {
	profiles, err := s.ReadUsers(ctx, store.TableUser)
	if err != nil {
		return err
	}
	res, err := StageA(ctx, profiles, opts.Workers)
	if err != nil {
		return err
	}
	if err := s.WriteUsers(ctx, store.TableUserUpdated, res.Users); err != nil {
		return err
	}
	if err := s.WriteUserMap(ctx, res.Merges); err != nil {
		return err
	}
	if err := s.WriteToDelete(ctx, res.Deleted); err != nil {
		return err
	}
	summary.Users = len(res.Users)
	summary.MergedUsers = len(res.Merges)
	summary.DeletedUsers = len(res.Deleted)
	return nil
}

func runGroups(ctx context.Context, s *store.Store, _ Options, summary *Summary) error {
	groups, err := s.ReadGroups(ctx, store.TableGroup)
	if err != nil {
		return err
	}
	merges, err := s.ReadUserMap(ctx)
	if err != nil {
		return err
	}
	deleted, err := s.ReadToDelete(ctx)
	if err != nil {
		return err
	}

	res := StageB(groups, merges, deleted)
	if err := s.WriteGroups(ctx, store.TableGroupsUpdated, res.Groups); err != nil {
		return err
	}
	if err := s.WriteGroupRemap(ctx, res.Remap); err != nil {
		return err
	}
	summary.Groups = len(res.Groups)
	summary.RemappedGroups = len(res.Remap)
	return nil
}

func runEmails(ctx context.Context, s *store.Store, _ Options, summary *Summary) error {
	emails, err := s.ReadEmails(ctx, store.TableEmail)
	if err != nil {
		return err
	}
	merges, err := s.ReadUserMap(ctx)
	if err != nil {
		return err
	}
	remap, err := s.ReadGroupRemap(ctx)
	if err != nil {
		return err
	}
	groups, err := s.ReadGroups(ctx, store.TableGroupsUpdated)
	if err != nil {
		return err
	}

	res := StageC(emails, merges, remap, groups)
	if err := s.WriteEmails(ctx, store.TableEmailUpdated, res.Emails); err != nil {
		return err
	}
	if err := s.WriteEmailGroups(ctx, res.EmailGroups); err != nil {
		return err
	}
	if err := s.WriteEmailUsers(ctx, res.EmailUsers); err != nil {
		return err
	}
	summary.Emails = len(res.Emails)
	summary.DroppedEmails = res.Dropped
	summary.DuplicateRows = res.Duplicates
	summary.EmailUsers = len(res.EmailUsers)
	return nil
}
