package identity

import (
	"regexp"
	"strings"
)

// Name is what the grammars can recover from a single alias.
type Name struct {
	First   string
	Last    string
	Initial string
}

func (n Name) Valid() bool {
	return n.First != "" && n.Last != ""
}

// NameRule is one ordered alternative for extracting a name; the first rule
// that parses any alias wins.
type NameRule struct {
	Name  string
	Parse func(alias, domain string) (Name, bool)
}

var NameRules = []NameRule{
	{Name: "email-local-part", Parse: parseEmailName},
	{Name: "last-first", Parse: parseLastFirst},
}

var (
	emailAlias   = regexp.MustCompile(`^([\w.]+)@([\w.]+)$`)
	twoPartLocal = regexp.MustCompile(`^(\w{2,})\.(\w+)$`)
	initialLocal = regexp.MustCompile(`^(\w{2,})\.(\w)\.(\w+)$`)
	bracketed    = regexp.MustCompile(`<[^>]*>|\[[^\]]*\]|\([^)]*\)`)
	nonLetter    = regexp.MustCompile(`[^a-zA-Z]`)
)

// parseEmailName recognises first.last@domain and first.i.last@domain.
func parseEmailName(alias, domain string) (Name, bool) {
	m := emailAlias.FindStringSubmatch(alias)
	if m == nil || !strings.EqualFold(m[2], domain) || strings.Contains(m[1], "..") {
		return Name{}, false
	}
	local := m[1]
	switch strings.Count(local, ".") {
	case 1:
		if p := twoPartLocal.FindStringSubmatch(local); p != nil {
			return Name{First: p[1], Last: p[2]}, true
		}
	case 2:
		if p := initialLocal.FindStringSubmatch(local); p != nil {
			return Name{First: p[1], Initial: p[2], Last: p[3]}, true
		}
	}
	return Name{}, false
}

// parseLastFirst recognises "Last, First [Initial]" with bracketed parts
// removed and every component reduced to letters.
func parseLastFirst(alias, _ string) (Name, bool) {
	alias = bracketed.ReplaceAllString(alias, "")
	parts := strings.Split(alias, ", ")
	if len(parts) != 2 {
		return Name{}, false
	}

	given := strings.Fields(parts[1])
	if len(given) == 0 {
		return Name{}, false
	}
	n := Name{
		Last:  lettersOnly(parts[0]),
		First: lettersOnly(given[0]),
	}
	if len(given) > 1 {
		if initial := lettersOnly(given[1]); initial != "" {
			n.Initial = initial[:1]
		}
	}
	return n, n.Valid()
}

func lettersOnly(s string) string {
	return strings.ToLower(nonLetter.ReplaceAllString(s, ""))
}

// GenerateAliases derives the canonical addresses the organisation assigns
// for a name. It returns nil unless both first and last name are known.
func GenerateAliases(n Name, domain string) []string {
	if !n.Valid() {
		return nil
	}
	first, last, initial := strings.ToLower(n.First), strings.ToLower(n.Last), strings.ToLower(n.Initial)
	aliases := []string{
		first + "." + last + "@" + domain,
		first[:1] + last + "@" + domain,
	}
	if initial != "" {
		aliases = append(aliases,
			first+"."+initial+"."+last+"@"+domain,
			initial+".."+last+"@"+domain,
		)
	}
	return aliases
}
