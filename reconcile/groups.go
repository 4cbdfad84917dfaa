package reconcile

import (
	"slices"

	"github.com/dhcgn/threadgraph/model"
)

// GroupResult is the output of StageB.
type GroupResult struct {
	Groups []model.Group
	Remap  []model.GroupRemap
}

// StageB rewrites group memberships through the user merges, drops deleted
// users and collapses groups whose updated member sets became equal. The
// first group seen with a set keeps its id; emptied groups map to model.NoID.
func StageB(groups []model.Group, merges []model.UserMerge, deleted []int) GroupResult {
	parentOf := userRemap(merges)
	gone := make(map[int]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}

	ordered := slices.Clone(groups)
	slices.SortFunc(ordered, func(a, b model.Group) int { return a.ID - b.ID })

	var res GroupResult
	seen := make(map[string]int)
	for _, g := range ordered {
		members := make([]int, 0, len(g.Members))
		for _, id := range g.Members {
			if gone[id] {
				continue
			}
			members = append(members, remapUser(parentOf, id))
		}
		members = model.IntSet(members...)

		if len(members) == 0 {
			res.Remap = append(res.Remap, model.GroupRemap{OldID: g.ID, NewID: model.NoID})
			continue
		}
		key := model.SetKey(members)
		if first, ok := seen[key]; ok {
			if first != g.ID {
				res.Remap = append(res.Remap, model.GroupRemap{OldID: g.ID, NewID: first})
			}
			continue
		}
		seen[key] = g.ID
		res.Groups = append(res.Groups, model.Group{ID: g.ID, Members: members})
	}
	return res
}

func userRemap(merges []model.UserMerge) map[int]int {
	m := make(map[int]int, len(merges))
	for _, merge := range merges {
		m[merge.ChildID] = merge.ParentID
	}
	return m
}

func remapUser(parentOf map[int]int, id int) int {
	if parent, ok := parentOf[id]; ok {
		return parent
	}
	return id
}
