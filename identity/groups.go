package identity

import "github.com/dhcgn/threadgraph/model"

// Groups hands out one id per distinct participant set.
type Groups struct {
	ids    map[string]int
	groups []model.Group
}

func NewGroups() *Groups {
	return &Groups{ids: make(map[string]int)}
}

// ID returns the group id for members. model.NoID entries are ignored and an
// empty set yields model.NoID.
func (g *Groups) ID(members []int) int {
	filtered := make([]int, 0, len(members))
	for _, m := range members {
		if m != model.NoID {
			filtered = append(filtered, m)
		}
	}
	set := model.IntSet(filtered...)
	if len(set) == 0 {
		return model.NoID
	}

	key := model.SetKey(set)
	if id, ok := g.ids[key]; ok {
		return id
	}
	id := len(g.groups)
	g.ids[key] = id
	g.groups = append(g.groups, model.Group{ID: id, Members: set})
	return id
}

func (g *Groups) Len() int {
	return len(g.groups)
}

// Groups returns copies of all groups ordered by id.
func (g *Groups) Groups() []model.Group {
	out := make([]model.Group, len(g.groups))
	for i, grp := range g.groups {
		out[i] = model.Group{ID: grp.ID, Members: model.IntSet(grp.Members...)}
	}
	return out
}
