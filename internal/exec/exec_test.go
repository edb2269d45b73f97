package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvquery/eql/internal/catalog"
	"github.com/kvquery/eql/internal/kvstore/storetest"
	"github.com/kvquery/eql/internal/op"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/recordstore"
	"github.com/kvquery/eql/internal/value"
)

func newHarness(t *testing.T) (*recordstore.Store, *Executor) {
	t.Helper()
	kv := storetest.New()
	dir := t.TempDir()
	cat, err := catalog.Open(dir)
	require.NoError(t, err)
	rs := recordstore.New(kv, cat, nil)
	ex := New(kv, cat, nil)
	return rs, ex
}

func drain(t *testing.T, it record.Iterator, err error) []record.Record {
	t.Helper()
	require.NoError(t, err)
	recs, err := record.Collect(it)
	require.NoError(t, err)
	return recs
}

// Scenario 1: basic CRUD round-trip via Scan.
func TestScanYieldsInsertedRecord(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()

	john := value.Object{
		"name": "John", "age": 43.0,
		"phones": value.Array{"+44 1234567", "+44 2345678"},
	}
	require.NoError(t, rs.Insert(ctx, "type1", "key1", john))

	it, err := ex.Execute(ctx, op.Scan("type1"))
	recs := drain(t, it, err)
	require.Len(t, recs, 1)
	require.Equal(t, "key1", recs[0].Key)
	require.True(t, value.Equal(john, recs[0].Value))

	require.NoError(t, rs.Delete(ctx, "type1", "key1"))
	v, ok, err := rs.Get(ctx, "type1", "key1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, v)
}

// Scenario 2 (partial): Scan + Extract projects named fields only.
func TestExtractProjectsFields(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()
	require.NoError(t, rs.Insert(ctx, "people", "p1", value.Object{"name": "John", "age": 43.0}))
	require.NoError(t, rs.Insert(ctx, "people", "p2", value.Object{"name": "Jane", "age": 34.0}))

	plan := op.Extract([]string{"age"}, op.Scan("people"))
	it, err := ex.Execute(ctx, plan)
	recs := drain(t, it, err)
	require.Len(t, recs, 2)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.Len(t, obj, 1)
		require.Contains(t, obj, "age")
	}
}

// Composite index lookup, including delete removing the index entry.
func TestIndexLookupAndDeleteRemovesEntry(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()

	require.NoError(t, rs.Insert(ctx, "products", "prod1", value.Object{
		"category_id": "cat1", "name": "Widget",
	}))
	require.NoError(t, rs.Insert(ctx, "products", "prod2", value.Object{
		"category_id": "cat1", "name": "Gadget",
	}))
	require.NoError(t, rs.CreateIndex(ctx, "products", "by_category",
		[]value.Path{value.ParsePath("/category_id")}))

	lookup := op.IndexLookup("products", "by_category", []any{"cat1"}, []string{"category_id"})
	it, err := ex.Execute(ctx, lookup)
	recs := drain(t, it, err)
	require.Len(t, recs, 2)

	require.NoError(t, rs.Delete(ctx, "products", "prod1"))
	it, err = ex.Execute(ctx, lookup)
	recs = drain(t, it, err)
	require.Len(t, recs, 1)
	require.Equal(t, "prod2", recs[0].Key)
}

// Unknown type/index on a read-only operator yields an empty stream, not
// an error (spec.md C7 failure policy).
func TestUnknownTypeAndIndexYieldEmptyStream(t *testing.T) {
	_, ex := newHarness(t)
	ctx := context.Background()

	it, err := ex.Execute(ctx, op.Scan("nonexistent"))
	require.NoError(t, err)
	recs, err := record.Collect(it)
	require.NoError(t, err)
	require.Empty(t, recs)

	it, err = ex.Execute(ctx, op.IndexLookup("nonexistent", "nope", nil, nil))
	require.NoError(t, err)
	recs, err = record.Collect(it)
	require.NoError(t, err)
	require.Empty(t, recs)

	it, err = ex.Execute(ctx, op.KeyLookup("nonexistent", "k"))
	require.NoError(t, err)
	recs, err = record.Collect(it)
	require.NoError(t, err)
	require.Empty(t, recs)
}

// Scenario 4: nested-loops join (categories -> products via index, then
// key_lookup back to the full product record), augmented with the
// category description.
func TestNestedLoopsJoinCategoriesToProducts(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()

	require.NoError(t, rs.Insert(ctx, "categories", "cat1", value.Object{"description": "Tools"}))
	require.NoError(t, rs.Insert(ctx, "categories", "cat2", value.Object{"description": "Toys"}))
	require.NoError(t, rs.CreateIndex(ctx, "products", "product_category_id",
		[]value.Path{value.ParsePath("/category_id")}))
	require.NoError(t, rs.Insert(ctx, "products", "p1", value.Object{"category_id": "cat1", "name": "Hammer"}))
	require.NoError(t, rs.Insert(ctx, "products", "p2", value.Object{"category_id": "cat1", "name": "Wrench"}))
	require.NoError(t, rs.Insert(ctx, "products", "p3", value.Object{"category_id": "cat2", "name": "Kite"}))
	require.NoError(t, rs.Insert(ctx, "products", "p4", value.Object{"category_id": "cat2", "name": "Ball"}))

	outer := op.Extract([]string{"description"}, op.Scan("categories"))
	buildInner := op.BuildInnerFunc(func(catRec record.Record) (*op.Operator, error) {
		catKey := catRec.Key
		desc := catRec.Value.(value.Object)
		innerBuild := op.BuildInnerFunc(func(productRef record.Record) (*op.Operator, error) {
			return op.Augment(desc, op.KeyLookup("products", productRef.Key)), nil
		})
		return op.NestedLoops(
			op.IndexLookup("products", "product_category_id", []any{catKey}, nil),
			innerBuild,
		), nil
	})
	plan := op.NestedLoops(outer, buildInner)

	it, err := ex.Execute(ctx, plan)
	recs := drain(t, it, err)
	require.Len(t, recs, 4)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.Contains(t, obj, "description")
		require.Contains(t, obj, "name")
	}
}

// Scenario 5: hash-join equivalent of scenario 4.
func TestHashJoinCategoriesToProducts(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()

	require.NoError(t, rs.Insert(ctx, "categories", "cat1", value.Object{"description": "Tools"}))
	require.NoError(t, rs.Insert(ctx, "categories", "cat2", value.Object{"description": "Toys"}))
	require.NoError(t, rs.Insert(ctx, "products", "p1", value.Object{"category_id": "cat1", "name": "Hammer"}))
	require.NoError(t, rs.Insert(ctx, "products", "p2", value.Object{"category_id": "cat1", "name": "Wrench"}))
	require.NoError(t, rs.Insert(ctx, "products", "p3", value.Object{"category_id": "cat2", "name": "Kite"}))
	require.NoError(t, rs.Insert(ctx, "products", "p4", value.Object{"category_id": "cat2", "name": "Ball"}))

	combine := op.CombineFunc(func(l, r *record.Record) (record.Record, bool, error) {
		if l == nil || r == nil {
			return record.Record{}, false, nil
		}
		desc := l.Value.(value.Object)["description"]
		prod := r.Value.(value.Object)
		out := value.Object{"name": prod["name"], "category_id": prod["category_id"], "description": desc}
		return record.Record{Key: r.Key, Value: out}, true, nil
	})
	plan := op.HashJoin(
		op.Scan("categories"), op.ExtractKey(),
		op.Scan("products"), op.ExtractPath(value.ParsePath("/category_id")),
		combine,
	)
	it, err := ex.Execute(ctx, plan)
	recs := drain(t, it, err)
	require.Len(t, recs, 4)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.Contains(t, obj, "description")
	}
}

// Scenario 6: reduce-via-Process yields exactly one record with the
// summed age, key=null.
func TestProcessReduceToOneRecord(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()
	require.NoError(t, rs.Insert(ctx, "people", "p1", value.Object{"name": "John", "age": 43.0}))
	require.NoError(t, rs.Insert(ctx, "people", "p2", value.Object{"name": "Jane", "age": 34.0}))

	sumAges := op.TransformFunc(func(in record.Iterator) record.Iterator {
		sum := 0.0
		for in.Next() {
			sum += in.Record().Value.(value.Object)["age"].(float64)
		}
		in.Close()
		return record.NewSlice([]record.Record{{Key: nil, Value: value.Object{"age": sum}}})
	})
	plan := op.Process(op.Scan("people"), sumAges)
	it, err := ex.Execute(ctx, plan)
	recs := drain(t, it, err)
	require.Len(t, recs, 1)
	require.Nil(t, recs[0].Key)
	require.Equal(t, 77.0, recs[0].Value.(value.Object)["age"])
}

// MergeJoin: both sides pre-sorted by key; on equality only the right
// side advances (O2), giving one-to-many left-to-right fan-out.
func TestMergeJoinAdvancesRightOnlyOnEquality(t *testing.T) {
	_, ex := newHarness(t)
	ctx := context.Background()

	left := record.NewSlice([]record.Record{
		{Key: "a", Value: value.Object{"side": "left"}},
		{Key: "b", Value: value.Object{"side": "left"}},
	})
	right := record.NewSlice([]record.Record{
		{Key: "a", Value: value.Object{"n": 1.0}},
		{Key: "a", Value: value.Object{"n": 2.0}},
		{Key: "c", Value: value.Object{"n": 3.0}},
	})

	combine := op.CombineFunc(func(l, r *record.Record) (record.Record, bool, error) {
		out := value.Object{}
		if l != nil {
			out["left"] = l.Key
		}
		if r != nil {
			out["right"] = r.Key
		}
		return record.Record{Value: out}, true, nil
	})

	plan := op.MergeJoin(
		op.Process(op.Scan("unused_left"), op.TransformFunc(func(record.Iterator) record.Iterator { return left })),
		op.ExtractKey(),
		op.Process(op.Scan("unused_right"), op.TransformFunc(func(record.Iterator) record.Iterator { return right })),
		op.ExtractKey(),
		combine,
	)
	it, err := ex.Execute(ctx, plan)
	recs := drain(t, it, err)

	// a/a, a/a, a/<none> (right moved on to c), b/<none>, <none>/c
	require.Len(t, recs, 5)
	require.Equal(t, "a", recs[0].Value.(value.Object)["left"])
	require.Equal(t, "a", recs[0].Value.(value.Object)["right"])
	require.Equal(t, "a", recs[1].Value.(value.Object)["left"])
	require.Equal(t, "a", recs[1].Value.(value.Object)["right"])
	require.Equal(t, "a", recs[2].Value.(value.Object)["left"])
	require.Nil(t, recs[2].Value.(value.Object)["right"])
	require.Equal(t, "b", recs[3].Value.(value.Object)["left"])
	require.Nil(t, recs[3].Value.(value.Object)["right"])
	require.Equal(t, "c", recs[4].Value.(value.Object)["right"])
	require.Nil(t, recs[4].Value.(value.Object)["left"])
}
