package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/threadgraph/model"
)

func TestNameRules(t *testing.T) {
	tests := []struct {
		rule  string
		alias string
		want  Name
		ok    bool
	}{
		{"email-local-part", "john.doe@enron.com", Name{First: "john", Last: "doe"}, true},
		{"email-local-part", "john.q.doe@enron.com", Name{First: "john", Initial: "q", Last: "doe"}, true},
		{"email-local-part", "j.doe@enron.com", Name{}, false},
		{"email-local-part", "john.doe@aol.com", Name{}, false},
		{"email-local-part", "john..doe@enron.com", Name{}, false},
		{"email-local-part", "jdoe@enron.com", Name{}, false},
		{"last-first", "doe, john", Name{First: "john", Last: "doe"}, true},
		{"last-first", "o'neil, mary k.", Name{First: "mary", Last: "oneil", Initial: "k"}, true},
		{"last-first", "doe, john <jdoe@enron.com>", Name{First: "john", Last: "doe"}, true},
		{"last-first", "doe, john [ect]", Name{First: "john", Last: "doe"}, true},
		{"last-first", "doe, john, smith, bob", Name{}, false},
		{"last-first", "doe,john", Name{}, false},
		{"last-first", "123, 456", Name{}, false},
	}
	rules := map[string]NameRule{}
	for _, r := range NameRules {
		rules[r.Name] = r
	}
	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.alias, func(t *testing.T) {
			got, ok := rules[tt.rule].Parse(tt.alias, "enron.com")
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestGenerateAliases(t *testing.T) {
	assert.Equal(t,
		[]string{"john.doe@enron.com", "jdoe@enron.com"},
		GenerateAliases(Name{First: "john", Last: "doe"}, "enron.com"))
	assert.Equal(t,
		[]string{"john.doe@enron.com", "jdoe@enron.com", "john.q.doe@enron.com", "q..doe@enron.com"},
		GenerateAliases(Name{First: "John", Last: "Doe", Initial: "Q"}, "enron.com"))
	assert.Nil(t, GenerateAliases(Name{First: "john"}, "enron.com"))
}

func TestResolveSet_ScrambledInitialAndName(t *testing.T) {
	users := NewUsers("enron.com")
	id, err := users.ResolveSet([]string{"j.doe@enron.com", "Doe, John"})
	require.NoError(t, err)

	p, ok := users.Profile(id)
	require.True(t, ok)
	assert.Equal(t, "john", p.FirstName)
	assert.Equal(t, "doe", p.LastName)
	assert.Subset(t, p.Aliases, []string{"john.doe@enron.com", "jdoe@enron.com", "j.doe@enron.com", "doe, john"})
	assert.ElementsMatch(t, []string{"john.doe@enron.com", "jdoe@enron.com"}, p.GeneratedAliases)

	again, err := users.Resolve("JDOE@enron.com ")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, users.Len())
}

func TestResolve_Idempotent(t *testing.T) {
	users := NewUsers("enron.com")
	first, err := users.Resolve("trader@hotmail.com")
	require.NoError(t, err)
	second, err := users.Resolve("trader@hotmail.com")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, users.Len())
}

func TestResolve_InvalidInput(t *testing.T) {
	users := NewUsers("enron.com")
	_, err := users.Resolve("   ")
	assert.ErrorIs(t, err, ErrInvalidAlias)
	_, err = users.ResolveSet([]string{"", " "})
	assert.ErrorIs(t, err, ErrInvalidAlias)
	_, err = users.ResolveSet(nil)
	assert.ErrorIs(t, err, ErrInvalidAlias)
	assert.Equal(t, 0, users.Len())
}

func TestResolveSet_EnrichesNamelessProfile(t *testing.T) {
	users := NewUsers("enron.com")
	id, err := users.Resolve("desk@enron.com")
	require.NoError(t, err)
	p, _ := users.Profile(id)
	require.Empty(t, p.FirstName)

	got, err := users.ResolveSet([]string{"desk@enron.com", "Allen, Phillip K."})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	p, _ = users.Profile(id)
	assert.Equal(t, "phillip", p.FirstName)
	assert.Equal(t, "allen", p.LastName)
	assert.Len(t, p.GeneratedAliases, 4)
	assert.Contains(t, p.Aliases, "phillip.k.allen@enron.com")

	owner, ok := users.Lookup("k..allen@enron.com")
	require.True(t, ok)
	assert.Equal(t, id, owner)
}

func TestResolveSet_FullyNamedProfileShortCircuits(t *testing.T) {
	users := NewUsers("enron.com")
	id, err := users.Resolve("phillip.k.allen@enron.com")
	require.NoError(t, err)
	p, _ := users.Profile(id)
	require.Len(t, p.GeneratedAliases, 4)

	got, err := users.ResolveSet([]string{"phillip.k.allen@enron.com", "pallen70@hotmail.com"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	p, _ = users.Profile(id)
	assert.NotContains(t, p.Aliases, "pallen70@hotmail.com", "complete profiles take no further evidence")
}

func TestResolveSet_LowestMatchedIDWins(t *testing.T) {
	users := NewUsers("enron.com")
	a, _ := users.Resolve("a@x.com")
	b, _ := users.Resolve("b@x.com")
	got, err := users.ResolveSet([]string{"b@x.com", "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, min(a, b), got)
}

func TestGeneratedAliasFirstClaimerKeepsIt(t *testing.T) {
	users := NewUsers("enron.com")
	first, _ := users.Resolve("jdoe@enron.com")
	second, _ := users.Resolve("Doe, John")
	require.NotEqual(t, first, second)

	owner, ok := users.Lookup("jdoe@enron.com")
	require.True(t, ok)
	assert.Equal(t, first, owner)

	p, _ := users.Profile(second)
	assert.Contains(t, p.Aliases, "jdoe@enron.com", "conflict stays visible for reconciliation")
}

func TestProfilesAreCopies(t *testing.T) {
	users := NewUsers("enron.com")
	id, _ := users.Resolve("doe, john")
	profiles := users.Profiles()
	profiles[id].Aliases[0] = "mutated"
	p, _ := users.Profile(id)
	assert.NotContains(t, p.Aliases, "mutated")
}

func TestGroupID(t *testing.T) {
	groups := NewGroups()

	a := groups.ID([]int{3, 1, 2})
	b := groups.ID([]int{2, 3, 1, 1})
	c := groups.ID([]int{1, 2, 3, model.NoID})
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)

	d := groups.ID([]int{1, 2})
	assert.NotEqual(t, a, d)

	assert.Equal(t, model.NoID, groups.ID(nil))
	assert.Equal(t, model.NoID, groups.ID([]int{model.NoID, model.NoID}))

	assert.Equal(t, []model.Group{
		{ID: a, Members: []int{1, 2, 3}},
		{ID: d, Members: []int{1, 2}},
	}, groups.Groups())
}
