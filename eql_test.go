package eql_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvquery/eql"
	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/value"
)

func open(t *testing.T) *eql.DB {
	t.Helper()
	db, err := eql.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCRUDRoundTrip(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	john := eql.Object{"name": "John", "age": 43.0}
	require.NoError(t, db.Insert(ctx, "people", "p1", john))

	v, ok, err := db.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, value.Equal(john, v))

	require.NoError(t, db.Delete(ctx, "people", "p1"))
	_, ok, err = db.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDestroyThenReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	db, err := eql.Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Insert(ctx, "people", "p1", eql.Object{"name": "John"}))
	require.NoError(t, db.CreateIndex(ctx, "people", "by_name", []eql.Path{value.ParsePath("/name")}))
	require.NoError(t, db.Close())

	require.NoError(t, eql.Destroy(dir))

	reopened, err := eql.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	require.Empty(t, reopened.Types())
	require.Empty(t, reopened.Indices("people"))
	_, ok, err := reopened.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBatchWriteIsAtomic(t *testing.T) {
	db := open(t)
	ctx := context.Background()

	b := db.NewBatch()
	require.NoError(t, db.BatchInsert(ctx, b, "people", "p1", eql.Object{"name": "A"}))
	require.NoError(t, db.BatchInsert(ctx, b, "people", "p2", eql.Object{"name": "B"}))

	// nothing durable before Write
	_, ok, err := db.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.Write(ctx, b))

	_, ok, err = db.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = db.Get(ctx, "people", "p2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExecuteScriptScan(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "people", "p1", eql.Object{"name": "John", "age": 43.0}))
	require.NoError(t, db.Insert(ctx, "people", "p2", eql.Object{"name": "Jane", "age": 34.0}))

	it, err := db.ExecuteScript(ctx, "scan(people)")
	require.NoError(t, err)
	defer it.Close()

	n := 0
	for it.Next() {
		n++
	}
	require.NoError(t, it.Err())
	require.Equal(t, 2, n)
}

func TestCreateAndDropIndex(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "products", "sku1", eql.Object{"category_id": "c1"}))
	require.NoError(t, db.Insert(ctx, "products", "sku2", eql.Object{"category_id": "c2"}))

	require.NoError(t, db.CreateIndex(ctx, "products", "by_category", []eql.Path{value.ParsePath("/category_id")}))
	require.Contains(t, db.Indices("products"), "by_category")

	it, err := db.Execute(ctx, op.IndexLookup("products", "by_category", []value.Value{"c1"}, nil))
	require.NoError(t, err)
	recs, err := record.Collect(it)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	require.NoError(t, db.DropIndex(ctx, "products", "by_category"))
	require.NotContains(t, db.Indices("products"), "by_category")
}

func TestTypesLists(t *testing.T) {
	db := open(t)
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, "widgets", "w1", eql.Object{"n": 1.0}))
	require.Contains(t, db.Types(), "widgets")
}
