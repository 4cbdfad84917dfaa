package reconcile

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/dhcgn/threadgraph/model"
)

const (
	maxAddressAliasLen = 60
	maxNameAliasLen    = 35
)

// ValidAlias reports whether alias is short enough to be real evidence.
// Addresses may be longer than display names.
func ValidAlias(alias string) bool {
	n := utf8.RuneCountInString(alias)
	if strings.Contains(alias, "@") {
		return n <= maxAddressAliasLen
	}
	return n <= maxNameAliasLen
}

func filterAliases(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if ValidAlias(a) {
			out = append(out, a)
		}
	}
	return model.StringSet(out...)
}

// UserResult is the output of StageA.
type UserResult struct {
	Users   []model.PersonProfile
	Merges  []model.UserMerge
	Deleted []int
}

// StageA merges user profiles using evidence from the whole corpus. Pass 1
// matches generated aliases exactly; pass 2 matches the aliases of nameless
// profiles against name patterns of named ones, sharded across workers.
// Merges are not transitive: a profile merged as a child is never examined
// as a parent in the same run.
func StageA(ctx context.Context, profiles []model.PersonProfile, workers int) (UserResult, error) {
	if workers <= 0 {
		workers = 1
	}

	users := make(map[int]*model.PersonProfile, len(profiles))
	var order, deleted []int
	for _, p := range profiles {
		cp := p.Clone()
		cp.Aliases = filterAliases(cp.Aliases)
		if strings.TrimSpace(cp.FirstName) == "" && strings.TrimSpace(cp.LastName) == "" && len(cp.Aliases) == 0 {
			deleted = append(deleted, cp.ID)
			continue
		}
		users[cp.ID] = &cp
		order = append(order, cp.ID)
	}
	slices.Sort(order)
	slices.Sort(deleted)

	merges := matchGenerated(users, order)
	order = applyMerges(users, order, merges)

	var named, nameless []*model.PersonProfile
	for _, id := range order {
		if users[id].HasName() {
			named = append(named, users[id])
		} else {
			nameless = append(nameless, users[id])
		}
	}

	patternMerges, err := matchPatterns(ctx, named, nameless, workers)
	if err != nil {
		return UserResult{}, err
	}
	order = applyMerges(users, order, patternMerges)

	for child, parent := range patternMerges {
		merges[child] = parent
	}

	res := UserResult{Deleted: deleted}
	for _, id := range order {
		res.Users = append(res.Users, *users[id])
	}
	children := make([]int, 0, len(merges))
	for child := range merges {
		children = append(children, child)
	}
	slices.Sort(children)
	for _, child := range children {
		res.Merges = append(res.Merges, model.UserMerge{ChildID: child, ParentID: merges[child]})
	}
	return res, nil
}

// matchGenerated is pass 1. Every alias maps to one owner, the last profile
// in id order that holds it. A named profile claims the owner of each of its
// generated aliases unless the owner already took part in a merge.
func matchGenerated(users map[int]*model.PersonProfile, order []int) map[int]int {
	owner := make(map[string]int)
	for _, id := range order {
		for _, a := range users[id].Aliases {
			owner[a] = id
		}
	}

	merges := make(map[int]int)
	parents := make(map[int]bool)
	for _, id := range order {
		p := users[id]
		if !p.HasName() {
			continue
		}
		if _, isChild := merges[id]; isChild {
			continue
		}
		for _, gen := range p.GeneratedAliases {
			child, ok := owner[gen]
			if !ok || child == id || parents[child] {
				continue
			}
			if _, done := merges[child]; done {
				continue
			}
			merges[child] = id
			parents[id] = true
		}
	}
	return merges
}

type namePattern struct {
	id       int
	initial  *regexp.Regexp
	fullName *regexp.Regexp
}

func (n namePattern) match(alias string) bool {
	return n.initial.MatchString(alias) || n.fullName.MatchString(alias)
}

func compileNamePatterns(named []*model.PersonProfile) ([]namePattern, error) {
	patterns := make([]namePattern, 0, len(named))
	for _, p := range named {
		first, last := strings.TrimSpace(p.FirstName), strings.TrimSpace(p.LastName)
		r, _ := utf8.DecodeRuneInString(first)
		initial, err := regexp.Compile("^" + regexp.QuoteMeta(string(r)+last) + "$")
		if err != nil {
			return nil, fmt.Errorf("user %d initial pattern: %w", p.ID, err)
		}
		fullName, err := regexp.Compile(regexp.QuoteMeta(first) + ".*" + regexp.QuoteMeta(last))
		if err != nil {
			return nil, fmt.Errorf("user %d name pattern: %w", p.ID, err)
		}
		patterns = append(patterns, namePattern{id: p.ID, initial: initial, fullName: fullName})
	}
	return patterns, nil
}

// matchPatterns is pass 2. The nameless profiles are split into contiguous
// chunks, one per worker; every worker reads the shared named patterns and
// reports merges only for its own chunk.
func matchPatterns(ctx context.Context, named, nameless []*model.PersonProfile, workers int) (map[int]int, error) {
	merges := make(map[int]int)
	if len(named) == 0 || len(nameless) == 0 {
		return merges, nil
	}

	patterns, err := compileNamePatterns(named)
	if err != nil {
		return nil, err
	}

	chunkSize := len(nameless)/workers + 1
	var chunks [][]*model.PersonProfile
	for start := 0; start < len(nameless); start += chunkSize {
		chunks = append(chunks, nameless[start:min(start+chunkSize, len(nameless))])
	}

	results := make([]map[int]int, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			found := make(map[int]int)
			for _, child := range chunk {
				if err := gctx.Err(); err != nil {
					return err
				}
				if parent, ok := firstMatch(child, patterns); ok {
					found[child.ID] = parent
				}
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("name pattern pass: %w", err)
	}

	for _, found := range results {
		for child, parent := range found {
			merges[child] = parent
		}
	}
	return merges, nil
}

func firstMatch(child *model.PersonProfile, patterns []namePattern) (int, bool) {
	for _, alias := range child.Aliases {
		for _, p := range patterns {
			if p.id != child.ID && p.match(alias) {
				return p.id, true
			}
		}
	}
	return model.NoID, false
}

// applyMerges unions each child's aliases into its parent and removes the
// child. It returns the surviving ids in order.
func applyMerges(users map[int]*model.PersonProfile, order []int, merges map[int]int) []int {
	if len(merges) == 0 {
		return order
	}
	children := make([]int, 0, len(merges))
	for child := range merges {
		children = append(children, child)
	}
	slices.Sort(children)

	for _, child := range children {
		parent := users[merges[child]]
		parent.Aliases = model.UnionStrings(parent.Aliases, users[child].Aliases)
	}
	for _, child := range children {
		delete(users, child)
	}

	kept := make([]int, 0, len(order))
	for _, id := range order {
		if _, ok := users[id]; ok {
			kept = append(kept, id)
		}
	}
	return kept
}
