package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dhcgn/threadgraph/model"
)

const timeLayout = time.RFC3339Nano

var emailColumns = []string{"email_hash", "group_id", "subject", "date", "norm_date", "sender_id"}

// WriteEmails appends rows to table (TableEmail or TableEmailUpdated).
func (s *Store) WriteEmails(ctx context.Context, table Table, rows []model.EmailRow) error {
	return s.insert(ctx, table, emailColumns, len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{r.Hash, r.GroupID, r.Subject, r.Date.Format(timeLayout), r.NormDate.UTC().Format(timeLayout), r.SenderID}, nil
	})
}

func (s *Store) ReadEmails(ctx context.Context, table Table) ([]model.EmailRow, error) {
	var out []model.EmailRow
	q := "SELECT email_hash, group_id, subject, date, norm_date, sender_id FROM " + table.quoted() + " ORDER BY rowid"
	err := s.query(ctx, q, func(rows *sql.Rows) error {
		var (
			r              model.EmailRow
			date, normDate string
			err            error
		)
		if err := rows.Scan(&r.Hash, &r.GroupID, &r.Subject, &date, &normDate, &r.SenderID); err != nil {
			return err
		}
		if r.Date, err = time.Parse(timeLayout, date); err != nil {
			return fmt.Errorf("email %s date: %w", r.Hash, err)
		}
		if r.NormDate, err = time.Parse(timeLayout, normDate); err != nil {
			return fmt.Errorf("email %s norm_date: %w", r.Hash, err)
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

var userColumns = []string{"user_id", "first_name", "last_name", "generated_aliases", "aliases"}

// WriteUsers appends profiles to table (TableUser or TableUserUpdated).
func (s *Store) WriteUsers(ctx context.Context, table Table, users []model.PersonProfile) error {
	return s.insert(ctx, table, userColumns, len(users), func(i int) ([]any, error) {
		u := users[i]
		generated, err := encodeList(u.GeneratedAliases)
		if err != nil {
			return nil, err
		}
		aliases, err := encodeList(u.Aliases)
		if err != nil {
			return nil, err
		}
		return []any{u.ID, u.FirstName, u.LastName, generated, aliases}, nil
	})
}

func (s *Store) ReadUsers(ctx context.Context, table Table) ([]model.PersonProfile, error) {
	var out []model.PersonProfile
	q := "SELECT user_id, first_name, last_name, generated_aliases, aliases FROM " + table.quoted() + " ORDER BY user_id"
	err := s.query(ctx, q, func(rows *sql.Rows) error {
		var (
			p                  model.PersonProfile
			generated, aliases string
		)
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &generated, &aliases); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(generated), &p.GeneratedAliases); err != nil {
			return fmt.Errorf("user %d generated_aliases: %w", p.ID, err)
		}
		if err := json.Unmarshal([]byte(aliases), &p.Aliases); err != nil {
			return fmt.Errorf("user %d aliases: %w", p.ID, err)
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

// WriteGroups appends groups to table (TableGroup or TableGroupsUpdated).
func (s *Store) WriteGroups(ctx context.Context, table Table, groups []model.Group) error {
	return s.insert(ctx, table, []string{"group_id", "user_ids"}, len(groups), func(i int) ([]any, error) {
		members, err := json.Marshal(nonNilInts(groups[i].Members))
		if err != nil {
			return nil, err
		}
		return []any{groups[i].ID, string(members)}, nil
	})
}

func (s *Store) ReadGroups(ctx context.Context, table Table) ([]model.Group, error) {
	var out []model.Group
	err := s.query(ctx, "SELECT group_id, user_ids FROM "+table.quoted()+" ORDER BY group_id", func(rows *sql.Rows) error {
		var (
			g       model.Group
			members string
		)
		if err := rows.Scan(&g.ID, &members); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
			return fmt.Errorf("group %d user_ids: %w", g.ID, err)
		}
		out = append(out, g)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	return out, nil
}

func (s *Store) WriteUserMap(ctx context.Context, merges []model.UserMerge) error {
	return s.insert(ctx, TableUserMap, []string{"child_id", "parent_id"}, len(merges), func(i int) ([]any, error) {
		return []any{merges[i].ChildID, merges[i].ParentID}, nil
	})
}

func (s *Store) ReadUserMap(ctx context.Context) ([]model.UserMerge, error) {
	var out []model.UserMerge
	err := s.query(ctx, "SELECT child_id, parent_id FROM user_map ORDER BY child_id", func(rows *sql.Rows) error {
		var m model.UserMerge
		if err := rows.Scan(&m.ChildID, &m.ParentID); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read user_map: %w", err)
	}
	return out, nil
}

func (s *Store) WriteToDelete(ctx context.Context, ids []int) error {
	return s.insert(ctx, TableToDelete, []string{"user_id"}, len(ids), func(i int) ([]any, error) {
		return []any{ids[i]}, nil
	})
}

func (s *Store) ReadToDelete(ctx context.Context) ([]int, error) {
	var out []int
	err := s.query(ctx, "SELECT user_id FROM to_delete ORDER BY user_id", func(rows *sql.Rows) error {
		var id int
		if err := rows.Scan(&id); err != nil {
			return err
		}
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read to_delete: %w", err)
	}
	return out, nil
}

func (s *Store) WriteGroupRemap(ctx context.Context, remaps []model.GroupRemap) error {
	return s.insert(ctx, TableGroupRemap, []string{"old_group_id", "new_group_id"}, len(remaps), func(i int) ([]any, error) {
		return []any{remaps[i].OldID, remaps[i].NewID}, nil
	})
}

func (s *Store) ReadGroupRemap(ctx context.Context) ([]model.GroupRemap, error) {
	var out []model.GroupRemap
	err := s.query(ctx, "SELECT old_group_id, new_group_id FROM group_remap ORDER BY old_group_id", func(rows *sql.Rows) error {
		var r model.GroupRemap
		if err := rows.Scan(&r.OldID, &r.NewID); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read group_remap: %w", err)
	}
	return out, nil
}

func (s *Store) WriteEmailGroups(ctx context.Context, rows []model.EmailGroup) error {
	return s.insert(ctx, TableEmailGroup, []string{"email_hash", "group_id"}, len(rows), func(i int) ([]any, error) {
		return []any{rows[i].Hash, rows[i].GroupID}, nil
	})
}

func (s *Store) ReadEmailGroups(ctx context.Context) ([]model.EmailGroup, error) {
	var out []model.EmailGroup
	err := s.query(ctx, "SELECT email_hash, group_id FROM email_group_junction ORDER BY rowid", func(rows *sql.Rows) error {
		var r model.EmailGroup
		if err := rows.Scan(&r.Hash, &r.GroupID); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read email_group_junction: %w", err)
	}
	return out, nil
}

func (s *Store) WriteEmailUsers(ctx context.Context, rows []model.EmailUser) error {
	return s.insert(ctx, TableEmailUser, []string{"email_hash", "user_id"}, len(rows), func(i int) ([]any, error) {
		return []any{rows[i].Hash, rows[i].UserID}, nil
	})
}

func (s *Store) ReadEmailUsers(ctx context.Context) ([]model.EmailUser, error) {
	var out []model.EmailUser
	err := s.query(ctx, "SELECT email_hash, user_id FROM email_user_junction ORDER BY rowid", func(rows *sql.Rows) error {
		var r model.EmailUser
		if err := rows.Scan(&r.Hash, &r.UserID); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read email_user_junction: %w", err)
	}
	return out, nil
}

func (s *Store) WriteThreadLinks(ctx context.Context, links []model.ThreadLink) error {
	return s.insert(ctx, TableEmailThread, []string{"email_hash", "parent_hash"}, len(links), func(i int) ([]any, error) {
		return []any{links[i].Hash, links[i].ParentHash}, nil
	})
}

func (s *Store) ReadThreadLinks(ctx context.Context) ([]model.ThreadLink, error) {
	var out []model.ThreadLink
	err := s.query(ctx, "SELECT email_hash, parent_hash FROM email_thread ORDER BY rowid", func(rows *sql.Rows) error {
		var l model.ThreadLink
		if err := rows.Scan(&l.Hash, &l.ParentHash); err != nil {
			return err
		}
		out = append(out, l)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read email_thread: %w", err)
	}
	return out, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nonNilInts(values []int) []int {
	if values == nil {
		return []int{}
	}
	return values
}
