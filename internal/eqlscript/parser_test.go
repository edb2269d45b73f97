package eqlscript

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvquery/eql/internal/value"
)

func TestParseScan(t *testing.T) {
	for _, src := range []string{
		`scan("type1")`, `scan ("type1")`, `scan ( "type1" ) `,
		`SCAN("type1")`, `scan(type1)`, `scan (type1)`,
		`scan ( type1 ) `, `SCAN(type1)`,
	} {
		op, err := Parse(src)
		require.NoError(t, err, src)
		require.Equal(t, KindScan, op.Kind)
		require.Equal(t, "type1", op.ScanName)
	}
	op, err := Parse(`scan("Customer Details")`)
	require.NoError(t, err)
	require.Equal(t, "Customer Details", op.ScanName)
}

func TestParseKeyLookup(t *testing.T) {
	op, err := Parse(`key_lookup("accounts","123")`)
	require.NoError(t, err)
	require.Equal(t, "accounts", op.LookupName)
	require.Equal(t, "123", op.LookupKey)

	op, err = Parse(`key_lookup( accounts ,"123")`)
	require.NoError(t, err)
	require.Equal(t, "accounts", op.LookupName)
	require.Equal(t, "123", op.LookupKey)

	op, err = Parse(`key_lookup("accounts",123)`)
	require.NoError(t, err)
	require.Equal(t, 123.0, op.LookupKey)

	op, err = Parse(`key_lookup("accounts",{"key":"value"})`)
	require.NoError(t, err)
	require.Equal(t, value.Object{"key": "value"}, op.LookupKey)
}

func TestParseExtract(t *testing.T) {
	for _, src := range []string{
		`extract(["name", "age"],key_lookup("accounts",123))`,
		`extract(["name" , "age" ],key_lookup(accounts,123))`,
		`extract([name , age ],key_lookup(accounts,123))`,
	} {
		op, err := Parse(src)
		require.NoError(t, err, src)
		require.Equal(t, KindExtract, op.Kind)
		require.ElementsMatch(t, []string{"name", "age"}, op.ExtractNames)
		require.Equal(t, KindKeyLookup, op.ExtractChild.Kind)
		require.Equal(t, "accounts", op.ExtractChild.LookupName)
		require.Equal(t, 123.0, op.ExtractChild.LookupKey)
	}
}

func TestParseAugment(t *testing.T) {
	for _, src := range []string{
		`augment({"key":"value"},key_lookup("accounts",123))`,
		`augment({"key":"value"},key_lookup(accounts,123))`,
	} {
		op, err := Parse(src)
		require.NoError(t, err, src)
		require.Equal(t, KindAugment, op.Kind)
		require.Equal(t, value.Object{"key": "value"}, op.AugmentValue)
		require.Equal(t, "accounts", op.AugmentChild.LookupName)
	}
}

func TestParseIndexLookup(t *testing.T) {
	op, err := Parse(`index_lookup("accounts","account_id",["123"])`)
	require.NoError(t, err)
	require.Equal(t, "accounts", op.IxName)
	require.Equal(t, "account_id", op.IxIndex)
	require.Equal(t, []value.Value{"123"}, op.IxValues)
	require.Empty(t, op.IxOutKeys)

	op, err = Parse(`index_lookup(accounts , account_id , ["123"] , ["","age"])`)
	require.NoError(t, err)
	require.Equal(t, []string{"", "age"}, op.IxOutKeys)
}

func TestParseNestedLoops(t *testing.T) {
	op, err := Parse(`nested_loops(index_lookup("accounts","account_id",["123"],["name","age"]),#"key_lookup("type1", rec.key)"#)`)
	require.NoError(t, err)
	require.Equal(t, KindNestedLoops, op.Kind)
	require.Equal(t, KindIndexLookup, op.NLFirst.Kind)
	require.Equal(t, `key_lookup("type1", rec.key)`, op.NLScript)

	op, err = Parse(`nested_loops(index_lookup(accounts,account_id,["123"],["name","age"]),  #"key_lookup(type1, rec.key)"#)`)
	require.NoError(t, err)
	require.Equal(t, `key_lookup(type1, rec.key)`, op.NLScript)
}

func TestParseHashLookup(t *testing.T) {
	src := `hash_lookup(scan(categories),key,scan(products),pointer("/category_id"),#"probe.value["description"]=build.value["description"];probe"#)`
	op, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, KindHashJoin, op.Kind)
	require.Equal(t, KindScan, op.HJBuild.Kind)
	require.Equal(t, "categories", op.HJBuild.ScanName)
	require.Equal(t, ExtractKindKey, op.HJBuildHash.Kind)
	require.Equal(t, "products", op.HJProbe.ScanName)
	require.Equal(t, ExtractKindPointer, op.HJProbeHash.Kind)
	require.Equal(t, "/category_id", op.HJProbeHash.Pointer)
	require.Equal(t, `probe.value["description"]=build.value["description"];probe`, op.HJJoinScript)
}

func TestParseMerge(t *testing.T) {
	src := `merge(scan(categories),key,index_lookup(products,product_category_id,[],["category_id"]),pointer("/category_id"),#"let rec3=empty_record();rec3"#)`
	op, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, KindMergeJoin, op.Kind)
	require.Equal(t, ExtractKindKey, op.MJFirstKey.Kind)
	require.Equal(t, KindIndexLookup, op.MJSecond.Kind)
	require.Equal(t, ExtractKindPointer, op.MJSecondKey.Kind)
	require.Equal(t, `let rec3=empty_record();rec3`, op.MJJoinScript)
}

func TestParseMap(t *testing.T) {
	src := `map(scan(categories),#"rec.value["description"]="unknown";rec"#)`
	op, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, KindMap, op.Kind)
	require.Equal(t, "categories", op.PrChild.ScanName)
	require.Equal(t, `rec.value["description"]="unknown";rec`, op.PrProcessScript)
}

func TestParseReduce(t *testing.T) {
	src := `reduce(scan(categories),#"rec.value["count"]=recs.length;"#)`
	op, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, KindReduce, op.Kind)
	require.Equal(t, `rec.value["count"]=recs.length;`, op.PrProcessScript)
}

func TestParseDoubleHashRawString(t *testing.T) {
	src := `map(scan(t),##"a "#" b"##)`
	op, err := Parse(src)
	require.NoError(t, err)
	require.Equal(t, `a "#" b`, op.PrProcessScript)
}

func TestParseRejectsTrailingInput(t *testing.T) {
	_, err := Parse(`scan(t) garbage`)
	require.Error(t, err)
}
