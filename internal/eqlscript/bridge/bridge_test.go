package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvquery/eql/internal/catalog"
	"github.com/kvquery/eql/internal/eqlscript"
	"github.com/kvquery/eql/internal/exec"
	"github.com/kvquery/eql/internal/kvstore/storetest"
	"github.com/kvquery/eql/internal/record"
	"github.com/kvquery/eql/internal/recordstore"
	"github.com/kvquery/eql/internal/value"
)

func newHarness(t *testing.T) (*recordstore.Store, *exec.Executor) {
	t.Helper()
	kv := storetest.New()
	cat, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	rs := recordstore.New(kv, cat, nil)
	return rs, exec.New(kv, cat, nil)
}

// run parses src, compiles it through a fresh Bridge, and executes the
// resulting operator tree, asserting no error at any stage.
func run(t *testing.T, ex *exec.Executor, src string) []record.Record {
	t.Helper()
	so, err := eqlscript.Parse(src)
	require.NoError(t, err)
	o, err := New().ToExecutable(so)
	require.NoError(t, err)
	it, err := ex.Execute(context.Background(), o)
	require.NoError(t, err)
	recs, err := record.Collect(it)
	require.NoError(t, err)
	return recs
}

func seedCategoriesAndProducts(t *testing.T, rs *recordstore.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, rs.Insert(ctx, "categories", "cat1", value.Object{"description": "Tools"}))
	require.NoError(t, rs.Insert(ctx, "categories", "cat2", value.Object{"description": "Toys"}))
	require.NoError(t, rs.Insert(ctx, "products", "p1", value.Object{"category_id": "cat1", "name": "Hammer"}))
	require.NoError(t, rs.Insert(ctx, "products", "p2", value.Object{"category_id": "cat1", "name": "Wrench"}))
	require.NoError(t, rs.Insert(ctx, "products", "p3", value.Object{"category_id": "cat2", "name": "Kite"}))
	require.NoError(t, rs.Insert(ctx, "products", "p4", value.Object{"category_id": "cat2", "name": "Ball"}))
}

// A parsed scan(...) round-trips through ToExecutable into a working
// op.Scan and returns the inserted record.
func TestToExecutableScan(t *testing.T) {
	rs, ex := newHarness(t)
	require.NoError(t, rs.Insert(context.Background(), "people", "p1", value.Object{"name": "John", "age": 43.0}))

	recs := run(t, ex, `scan(people)`)
	require.Len(t, recs, 1)
	require.Equal(t, "p1", recs[0].Key)
}

// extract(...) projects named fields through the scripting front-end
// exactly as the programmatic op.Extract does.
func TestToExecutableExtract(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()
	require.NoError(t, rs.Insert(ctx, "people", "p1", value.Object{"name": "John", "age": 43.0}))
	require.NoError(t, rs.Insert(ctx, "people", "p2", value.Object{"name": "Jane", "age": 34.0}))

	recs := run(t, ex, `extract([age], scan(people))`)
	require.Len(t, recs, 2)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.Len(t, obj, 1)
		require.Contains(t, obj, "age")
	}
}

// nested_loops with a build script that calls the bridge's own
// index_lookup/augment builtins to fan each category out to its
// products, merging in the category description.
func TestToExecutableNestedLoops(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()
	seedCategoriesAndProducts(t, rs)
	require.NoError(t, rs.CreateIndex(ctx, "products", "product_category_id",
		[]value.Path{value.ParsePath("/category_id")}))

	src := `nested_loops(scan(categories), #"augment(rec.value, index_lookup("products", "product_category_id", [rec.key], []))"#)`
	recs := run(t, ex, src)
	require.Len(t, recs, 4)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.Contains(t, obj, "description")
	}
}

// hash_lookup (textual keyword) compiles to op.HashJoin; the combine
// script drops unmatched build-side rows (build === null).
func TestToExecutableHashLookup(t *testing.T) {
	rs, ex := newHarness(t)
	seedCategoriesAndProducts(t, rs)

	src := `hash_lookup(scan(categories), key, scan(products), pointer("/category_id"), ` +
		`#"(function(){if(build===null){return null;} return {key:probe.key,value:{name:probe.value.name,description:build.value.description}};})()"#)`
	recs := run(t, ex, src)
	require.Len(t, recs, 4)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.Contains(t, obj, "description")
		require.Contains(t, obj, "name")
	}
}

// merge compiles to op.MergeJoin; both sides are already key-ordered so
// the lockstep walk pairs each category with its products in order.
func TestToExecutableMerge(t *testing.T) {
	rs, ex := newHarness(t)
	seedCategoriesAndProducts(t, rs)

	src := `merge(scan(categories), key, scan(products), pointer("/category_id"), ` +
		`#"(function(){if(rec1===null||rec2===null){return null;} return {key:rec2.key,value:{name:rec2.value.name,description:rec1.value.description}};})()"#)`
	recs := run(t, ex, src)
	require.Len(t, recs, 4)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.Contains(t, obj, "description")
	}
}

// map applies a per-record script, preserving the 1:1 stream contract.
func TestToExecutableMap(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()
	require.NoError(t, rs.Insert(ctx, "people", "p1", value.Object{"name": "John", "age": 43.0}))
	require.NoError(t, rs.Insert(ctx, "people", "p2", value.Object{"name": "Jane", "age": 34.0}))

	src := `map(scan(people), #"({key: rec.key, value: {name: rec.value.name, age2: rec.value.age*2}})"#)`
	recs := run(t, ex, src)
	require.Len(t, recs, 2)
	for _, r := range recs {
		obj := r.Value.(value.Object)
		require.NotContains(t, obj, "age")
		require.Contains(t, obj, "age2")
	}
}

// reduce materializes the whole stream into recs and produces exactly
// one summary record.
func TestToExecutableReduce(t *testing.T) {
	rs, ex := newHarness(t)
	ctx := context.Background()
	require.NoError(t, rs.Insert(ctx, "people", "p1", value.Object{"name": "John", "age": 43.0}))
	require.NoError(t, rs.Insert(ctx, "people", "p2", value.Object{"name": "Jane", "age": 34.0}))

	src := `reduce(scan(people), #"(function(){var sum=0; for(var i=0;i<recs.length;i++){sum+=recs[i].value.age;} return {key:null,value:{sum:sum}};})()"#)`
	recs := run(t, ex, src)
	require.Len(t, recs, 1)
	require.Nil(t, recs[0].Key)
	require.Equal(t, 77.0, recs[0].Value.(value.Object)["sum"])
}
