package eql

import (
	"context"

	"github.com/kvquery/eql/internal/recordstore"
)

// Batch accumulates inserts/deletes across record types for a single
// atomic Write (spec.md §6's batch_insert/batch_delete/write).
type Batch struct {
	rs *recordstore.Batch
}

// NewBatch starts a new, empty batch.
func (db *DB) NewBatch() *Batch {
	return &Batch{rs: db.rs.NewBatch()}
}

// BatchInsert stages an insert into b; nothing is durable until Write.
func (db *DB) BatchInsert(ctx context.Context, b *Batch, recordType string, key, val Value) error {
	return db.rs.BatchInsert(ctx, b.rs, recordType, key, val)
}

// BatchDelete stages a delete into b; nothing is durable until Write.
func (db *DB) BatchDelete(ctx context.Context, b *Batch, recordType string, key Value) error {
	return db.rs.BatchDelete(ctx, b.rs, recordType, key)
}

// Write commits every mutation staged in b in one transaction.
func (db *DB) Write(ctx context.Context, b *Batch) error {
	return db.rs.Write(ctx, b.rs)
}
