// Package eql is the top-level embedded-database handle: it wires the
// storage façade, catalog, record store, executor, and textual/scripting
// front end behind the external interface spec.md §6 names (open,
// destroy, get, insert, delete, batch_insert/batch_delete, write,
// create_index, drop_index, execute, execute_script).
package eql

import (
	"context"

	"go.uber.org/zap"

	"github.com/kvquery/eql/internal/applog"
	"github.com/kvquery/eql/internal/catalog"
	"github.com/kvquery/eql/internal/eqlconfig"
	"github.com/kvquery/eql/internal/eqlerr"
	"github.com/kvquery/eql/internal/eqlscript"
	"github.com/kvquery/eql/internal/eqlscript/bridge"
	"github.com/kvquery/eql/internal/exec"
	"github.com/kvquery/eql/internal/kvstore/mdbxstore"
	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/recordstore"
	"github.com/kvquery/eql/internal/value"
)

// Re-exported so callers never need to import the internal packages
// directly for everyday use.
type (
	Value  = value.Value
	Object = value.Object
	Array  = value.Array
	Path   = value.Path
	Record = record.Record
	Iterator = record.Iterator
	Operator = op.Operator
)

// DB is an open database handle (spec.md's "database handle").
type DB struct {
	kv     *mdbxstore.Store
	cat    *catalog.Catalog
	rs     *recordstore.Store
	ex     *exec.Executor
	bridge *bridge.Bridge
	log    *zap.Logger
}

// Open opens (creating if absent) the database rooted at the DBPath set
// by opts, or at path if no option sets one.
func Open(path string, opts ...eqlconfig.Option) (*DB, error) {
	cfg := eqlconfig.New(opts...)
	if cfg.DBPath == "" {
		cfg.DBPath = path
	}
	cfg = cfg.Normalized()

	log := applog.ForDB(applog.L(), cfg.DBPath)

	kv, err := mdbxstore.OpenWith(cfg.DBPath, mdbxstore.Options{
		Log: log, ReadOnly: cfg.ReadOnly, ReadBufferSize: cfg.ReadBufferSize,
	})
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Open(cfg.DBPath)
	if err != nil {
		kv.Close()
		return nil, err
	}
	rs := recordstore.New(kv, cat, log)
	rs.SetBackfillFlushEvery(cfg.BackfillFlushEvery)

	return &DB{
		kv:     kv,
		cat:    cat,
		rs:     rs,
		ex:     exec.New(kv, cat, log),
		bridge: bridge.New(),
		log:    log,
	}, nil
}

// Destroy removes all persistent state at path -- the mdbx data files
// and the catalog file alike, since both live under the same root -- so
// a subsequent Open starts from a clean slate (spec.md §6 destroy(path),
// I3). The database must not be open elsewhere.
func Destroy(path string) error {
	return mdbxstore.Destroy(path)
}

// Close releases the handle's storage resources.
func (db *DB) Close() error {
	return db.kv.Close()
}

// Get reads the record stored at (recordType, key), if any.
func (db *DB) Get(ctx context.Context, recordType string, key Value) (Value, bool, error) {
	return db.rs.Get(ctx, recordType, key)
}

// Insert writes (recordType, key, val), maintaining every index on
// recordType synchronously.
func (db *DB) Insert(ctx context.Context, recordType string, key, val Value) error {
	return db.rs.Insert(ctx, recordType, key, val)
}

// Delete removes the record at (recordType, key) and its index entries.
func (db *DB) Delete(ctx context.Context, recordType string, key Value) error {
	return db.rs.Delete(ctx, recordType, key)
}

// CreateIndex registers and back-fills a new index on recordType.
func (db *DB) CreateIndex(ctx context.Context, recordType, name string, paths []Path) error {
	return db.rs.CreateIndex(ctx, recordType, name, paths)
}

// DropIndex unregisters an index and drops its namespace.
func (db *DB) DropIndex(ctx context.Context, recordType, name string) error {
	return db.rs.DropIndex(ctx, recordType, name)
}

// Execute runs a programmatically-built operator tree and returns its
// lazy record stream.
func (db *DB) Execute(ctx context.Context, o *Operator) (Iterator, error) {
	return db.ex.Execute(ctx, o)
}

// ExecuteScript parses and compiles a textual query (spec.md §6's
// textual surface) and runs it, returning its lazy record stream.
func (db *DB) ExecuteScript(ctx context.Context, text string) (Iterator, error) {
	so, err := eqlscript.Parse(text)
	if err != nil {
		return nil, err
	}
	o, err := db.bridge.ToExecutable(so)
	if err != nil {
		return nil, err
	}
	return db.ex.Execute(ctx, o)
}

// Types lists every record type ever inserted into, for catalog
// introspection (cmd/eqld's GET /types).
func (db *DB) Types() []string {
	return db.cat.Types()
}

// Indices lists the index names registered on recordType.
func (db *DB) Indices(recordType string) []string {
	return db.cat.Indices(recordType)
}

// KindOf classifies err per spec.md §7, for callers (e.g. cmd/eqld) that
// need to branch on error kind rather than match concrete types.
func KindOf(err error) eqlerr.Kind {
	return eqlerr.KindOf(err)
}
