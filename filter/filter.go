// Package filter selects threads by regular expressions over their leading
// header block or the text that follows it.
package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

type pattern struct {
	re   *regexp.Regexp
	hits atomic.Int64
}

// ruleSet is one side of the filter: either every include rule or every
// exclude rule, split by the part of the thread it looks at.
type ruleSet struct {
	header []*pattern
	body   []*pattern
}

func (s ruleSet) empty() bool { return len(s.header) == 0 && len(s.body) == 0 }

// match counts every pattern that hits, so the reported totals do not depend
// on pattern order.
func (s ruleSet) match(header, body []byte) bool {
	matched := false
	for _, side := range [2]struct {
		patterns []*pattern
		text     []byte
	}{{s.header, header}, {s.body, body}} {
		for _, p := range side.patterns {
			if p.re.Match(side.text) {
				p.hits.Add(1)
				matched = true
			}
		}
	}
	return matched
}

// Filter is safe for concurrent use by the parse workers. At most one of
// include and exclude holds patterns.
type Filter struct {
	include ruleSet
	exclude ruleSet
}

// Stats reports how often each pattern matched, keyed by pattern text. A
// map is nil when its list has no patterns.
type Stats struct {
	IncludeHeaderHits map[string]int64
	IncludeBodyHits   map[string]int64
	ExcludeHeaderHits map[string]int64
	ExcludeBodyHits   map[string]int64
}

func New(opts Options) (*Filter, error) {
	var (
		f   Filter
		err error
	)
	for _, c := range []struct {
		name string
		src  []string
		dst  *[]*pattern
	}{
		{"include-header", opts.IncludeHeader, &f.include.header},
		{"include-body", opts.IncludeBody, &f.include.body},
		{"exclude-header", opts.ExcludeHeader, &f.exclude.header},
		{"exclude-body", opts.ExcludeBody, &f.exclude.body},
	} {
		if *c.dst, err = compile(c.src); err != nil {
			return nil, fmt.Errorf("%s pattern: %w", c.name, err)
		}
	}
	if !f.include.empty() && !f.exclude.empty() {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}
	return &f, nil
}

func (f *Filter) Active() bool {
	return !f.include.empty() || !f.exclude.empty()
}

// Allows reports whether a thread with the given parts passes. With include
// rules a thread needs one hit; with exclude rules it must have none.
func (f *Filter) Allows(header, body []byte) bool {
	switch {
	case !f.include.empty():
		return f.include.match(header, body)
	case !f.exclude.empty():
		return !f.exclude.match(header, body)
	default:
		return true
	}
}

func (f *Filter) Stats() Stats {
	return Stats{
		IncludeHeaderHits: hitCounts(f.include.header),
		IncludeBodyHits:   hitCounts(f.include.body),
		ExcludeHeaderHits: hitCounts(f.exclude.header),
		ExcludeBodyHits:   hitCounts(f.exclude.body),
	}
}

// LogAttrs flattens the counters into slog key/value pairs such as
// "excludeBody[confidential]", 12.
func (s Stats) LogAttrs() []any {
	var attrs []any
	add := func(prefix string, m map[string]int64) {
		for p, n := range m {
			attrs = append(attrs, prefix+"["+p+"]", n)
		}
	}
	add("includeHeader", s.IncludeHeaderHits)
	add("includeBody", s.IncludeBodyHits)
	add("excludeHeader", s.ExcludeHeaderHits)
	add("excludeBody", s.ExcludeBodyHits)
	return attrs
}

// SplitRawMessage cuts raw at the first blank line. Without one, everything
// is header.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}
	for _, sep := range [][]byte{[]byte("\r\n\r\n"), []byte("\n\n")} {
		if i := bytes.Index(raw, sep); i >= 0 {
			return raw[:i], raw[i+len(sep):]
		}
	}
	return raw, nil
}

func compile(src []string) ([]*pattern, error) {
	var out []*pattern
	for _, s := range src {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", s, err)
		}
		out = append(out, &pattern{re: re})
	}
	return out, nil
}

func hitCounts(patterns []*pattern) map[string]int64 {
	if len(patterns) == 0 {
		return nil
	}
	out := make(map[string]int64, len(patterns))
	for _, p := range patterns {
		out[p.re.String()] += p.hits.Load()
	}
	return out
}
