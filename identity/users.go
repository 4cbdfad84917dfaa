package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhcgn/threadgraph/model"
)

var ErrInvalidAlias = errors.New("invalid alias")

// A profile with this many generated aliases already knows first name, last
// name and initial; more evidence cannot improve it.
const maxGeneratedAliases = 4

// Users resolves alias evidence to person ids during a single online pass.
// It is not safe for concurrent use; the ingest consumer owns it.
type Users struct {
	domain   string
	profiles []model.PersonProfile
	lookup   map[string]int
}

func NewUsers(domain string) *Users {
	return &Users{
		domain: strings.ToLower(strings.TrimSpace(domain)),
		lookup: make(map[string]int),
	}
}

func normalize(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

// Resolve returns the person id for a single alias.
func (u *Users) Resolve(alias string) (int, error) {
	norm := normalize(alias)
	if norm == "" {
		return model.NoID, fmt.Errorf("%w: blank alias", ErrInvalidAlias)
	}
	if id, ok := u.lookup[norm]; ok {
		return id, nil
	}
	return u.ResolveSet([]string{norm})
}

// ResolveSet returns one person id for aliases that are known to belong to
// the same person, creating or enriching a profile as needed.
func (u *Users) ResolveSet(aliases []string) (int, error) {
	cleaned := make([]string, 0, len(aliases))
	for _, a := range aliases {
		cleaned = append(cleaned, normalize(a))
	}
	cleaned = model.StringSet(cleaned...)
	if len(cleaned) == 0 {
		return model.NoID, fmt.Errorf("%w: empty alias set", ErrInvalidAlias)
	}

	var matches []int
	for _, a := range cleaned {
		if id, ok := u.lookup[a]; ok {
			matches = append(matches, id)
		}
	}
	matches = model.IntSet(matches...)

	for _, id := range matches {
		if len(u.profiles[id].GeneratedAliases) == maxGeneratedAliases {
			return id, nil
		}
	}

	name := u.parseName(cleaned)
	if len(matches) == 0 {
		return u.create(cleaned, name), nil
	}

	id := matches[0]
	u.update(id, cleaned, name)
	return id, nil
}

func (u *Users) parseName(aliases []string) Name {
	for _, rule := range NameRules {
		for _, a := range aliases {
			if n, ok := rule.Parse(a, u.domain); ok {
				return n
			}
		}
	}
	return Name{}
}

func (u *Users) create(aliases []string, name Name) int {
	id := len(u.profiles)
	generated := model.StringSet(GenerateAliases(name, u.domain)...)
	profile := model.PersonProfile{
		ID:               id,
		FirstName:        strings.ToLower(name.First),
		LastName:         strings.ToLower(name.Last),
		GeneratedAliases: generated,
		Aliases:          model.UnionStrings(aliases, generated),
	}
	u.profiles = append(u.profiles, profile)
	u.register(id, profile.Aliases)
	return id
}

func (u *Users) update(id int, aliases []string, name Name) {
	profile := u.profiles[id]

	if profile.FirstName == "" && name.Valid() {
		profile.FirstName = strings.ToLower(name.First)
		profile.LastName = strings.ToLower(name.Last)
		profile.GeneratedAliases = model.UnionStrings(profile.GeneratedAliases, GenerateAliases(name, u.domain))
	}
	profile.Aliases = model.UnionStrings(model.UnionStrings(profile.Aliases, aliases), profile.GeneratedAliases)

	u.profiles[id] = profile
	u.register(id, profile.Aliases)
}

// register claims aliases for id. An alias already claimed by another
// profile keeps its owner; reconciliation resolves the conflict later.
func (u *Users) register(id int, aliases []string) {
	for _, a := range aliases {
		if _, ok := u.lookup[a]; !ok {
			u.lookup[a] = id
		}
	}
}

// Lookup returns the id currently registered for alias.
func (u *Users) Lookup(alias string) (int, bool) {
	id, ok := u.lookup[normalize(alias)]
	return id, ok
}

func (u *Users) Len() int {
	return len(u.profiles)
}

// Profiles returns copies of all profiles ordered by id.
func (u *Users) Profiles() []model.PersonProfile {
	out := make([]model.PersonProfile, len(u.profiles))
	for i, p := range u.profiles {
		out[i] = p.Clone()
	}
	return out
}

// Profile returns a copy of the profile with the given id.
func (u *Users) Profile(id int) (model.PersonProfile, bool) {
	if id < 0 || id >= len(u.profiles) {
		return model.PersonProfile{}, false
	}
	return u.profiles[id].Clone(), true
}
