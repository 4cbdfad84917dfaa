package store

import (
	"context"

	"github.com/dhcgn/threadgraph/model"
)

const DefaultBatchSize = 1000

// EmailBuffer collects email rows and thread links and writes them in
// batches so memory stays bounded on large corpora.
type EmailBuffer struct {
	store *Store
	table Table
	size  int

	rows  []model.EmailRow
	links []model.ThreadLink

	written int
}

// NewEmailBuffer returns a buffer writing to table. A non-positive size
// falls back to DefaultBatchSize.
func (s *Store) NewEmailBuffer(table Table, size int) *EmailBuffer {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &EmailBuffer{
		store: s,
		table: table,
		size:  size,
		rows:  make([]model.EmailRow, 0, size),
	}
}

// Add queues row and, if parentHash is set, its thread link. The buffer is
// flushed once it holds size rows.
func (b *EmailBuffer) Add(ctx context.Context, row model.EmailRow, parentHash string) error {
	b.rows = append(b.rows, row)
	if parentHash != "" {
		b.links = append(b.links, model.ThreadLink{Hash: row.Hash, ParentHash: parentHash})
	}
	if len(b.rows) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

func (b *EmailBuffer) Flush(ctx context.Context) error {
	if err := b.store.WriteEmails(ctx, b.table, b.rows); err != nil {
		return err
	}
	if err := b.store.WriteThreadLinks(ctx, b.links); err != nil {
		return err
	}
	b.written += len(b.rows)
	b.rows = b.rows[:0]
	b.links = b.links[:0]
	return nil
}

// Written returns the number of rows flushed so far.
func (b *EmailBuffer) Written() int {
	return b.written
}

// Pending returns the number of rows not yet flushed.
func (b *EmailBuffer) Pending() int {
	return len(b.rows)
}
