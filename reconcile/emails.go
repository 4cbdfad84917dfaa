package reconcile

import "github.com/dhcgn/threadgraph/model"

// EmailResult is the output of StageC.
type EmailResult struct {
	Emails      []model.EmailRow
	EmailGroups []model.EmailGroup
	EmailUsers  []model.EmailUser
	// Dropped counts rows removed because their group was deleted.
	Dropped int
	// Duplicates counts (hash, group) pairs removed after group collapse.
	Duplicates int
}

type emailGroupKey struct {
	hash  string
	group int
}

type emailUserKey struct {
	hash string
	user int
}

// StageC propagates user and group renumbering into the email table and
// derives the email↔group and email↔user junctions. Rows whose group maps to
// model.NoID are dropped, which includes rows that never had a group.
func StageC(emails []model.EmailRow, merges []model.UserMerge, remap []model.GroupRemap, groups []model.Group) EmailResult {
	parentOf := userRemap(merges)
	groupOf := make(map[int]int, len(remap))
	for _, r := range remap {
		groupOf[r.OldID] = r.NewID
	}
	members := make(map[int][]int, len(groups))
	for _, g := range groups {
		members[g.ID] = g.Members
	}

	var res EmailResult
	seen := make(map[emailGroupKey]bool, len(emails))
	seenUser := make(map[emailUserKey]bool)
	for _, e := range emails {
		e.SenderID = remapUser(parentOf, e.SenderID)
		if g, ok := groupOf[e.GroupID]; ok {
			e.GroupID = g
		}
		if e.GroupID == model.NoID {
			res.Dropped++
			continue
		}

		key := emailGroupKey{hash: e.Hash, group: e.GroupID}
		if seen[key] {
			res.Duplicates++
			continue
		}
		seen[key] = true

		res.Emails = append(res.Emails, e)
		res.EmailGroups = append(res.EmailGroups, model.EmailGroup{Hash: e.Hash, GroupID: e.GroupID})
		for _, user := range members[e.GroupID] {
			uk := emailUserKey{hash: e.Hash, user: user}
			if seenUser[uk] {
				continue
			}
			seenUser[uk] = true
			res.EmailUsers = append(res.EmailUsers, model.EmailUser{Hash: e.Hash, UserID: user})
		}
	}
	return res
}
