package model

import (
	"slices"
	"strconv"
	"strings"
)

// PersonProfile is the resolved identity behind a set of aliases.
type PersonProfile struct {
	ID               int
	FirstName        string
	LastName         string
	GeneratedAliases []string
	Aliases          []string
}

// HasName reports whether both name components are known.
func (p PersonProfile) HasName() bool {
	return strings.TrimSpace(p.FirstName) != "" && strings.TrimSpace(p.LastName) != ""
}

// Clone returns a copy that shares no slices with p.
func (p PersonProfile) Clone() PersonProfile {
	p.GeneratedAliases = slices.Clone(p.GeneratedAliases)
	p.Aliases = slices.Clone(p.Aliases)
	return p
}

// Group is a distinct set of message participants.
type Group struct {
	ID      int
	Members []int
}

// StringSet returns the sorted, de-duplicated copy of values. Empty strings are dropped.
func StringSet(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// UnionStrings returns a new sorted set holding every member of a and b.
// Neither input is modified.
func UnionStrings(a, b []string) []string {
	merged := make([]string, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	return StringSet(merged...)
}

// IntSet returns the sorted, de-duplicated copy of ids.
func IntSet(ids ...int) []int {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// SetKey renders a sorted id set as a map key.
func SetKey(ids []int) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}
