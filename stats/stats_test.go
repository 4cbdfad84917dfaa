package stats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_Apply(t *testing.T) {
	events := make(chan Event, 16)
	boom := errors.New("boom")
	for _, evt := range []Event{
		{Type: EventTypeScanned},
		{Type: EventTypeScanned},
		{Type: EventTypeExcluded},
		{Type: EventTypeFiltered},
		{Type: EventTypeDuplicate, Detail: DetailFile},
		{Type: EventTypeDuplicate, Detail: DetailParent},
		{Type: EventTypeDropped},
		{Type: EventTypeEmpty},
		{Type: EventTypeParsed, Count: 3},
		{Type: EventTypeParsed, Count: 2},
		{Type: EventTypeStored, Count: 5},
		{Type: EventTypeError, Err: boom},
	} {
		events <- evt
	}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)

	got := c.Snapshot()
	assert.Equal(t, Summary{
		Scanned:          2,
		Excluded:         1,
		Filtered:         1,
		DuplicateFiles:   1,
		DuplicateParents: 1,
		Dropped:          1,
		Empty:            1,
		Parsed:           2,
		Messages:         5,
		Stored:           5,
		Errors:           1,
		LastError:        boom,
	}, got)
	assert.Contains(t, got.LogAttrs(), "lastError")
}

func TestTop(t *testing.T) {
	m := map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}
	assert.Equal(t, []Pair{{"c", 5}, {"a", 2}, {"b", 2}}, Top(m, 3))
	assert.Len(t, Top(m, 10), 4)
	assert.Empty(t, Top(nil, 3))
}

func TestTopTable(t *testing.T) {
	m := map[string]int{"jane roe": 5, "john doe": 3, "bob smith": 1}
	assert.Equal(t, [][]string{
		{"#", "Value", "Count"},
		{"1", "jane roe", "5"},
		{"2", "john doe", "3"},
	}, TopTable(m, 2))
	assert.Equal(t, [][]string{{"#", "Value", "Count"}}, TopTable(nil, 5))
	assert.NoError(t, PrettyPrintTop(m, 2))
}
