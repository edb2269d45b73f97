package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvquery/eql/internal/value"
)

func TestEnsureTypeAndIndexRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cat, err := Open(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, cat.EnsureType(ctx, "widgets"))
	require.True(t, cat.HasType("widgets"))
	require.Contains(t, cat.Types(), "widgets")
	require.Empty(t, cat.Indices("widgets"))

	paths := []value.Path{value.ParsePath("/name")}
	require.NoError(t, cat.CreateIndex(ctx, "widgets", "by_name", paths))
	require.Contains(t, cat.Indices("widgets"), "by_name")

	got, ok := cat.IndexPaths("widgets", "by_name")
	require.True(t, ok)
	require.Equal(t, paths, got)

	err = cat.CreateIndex(ctx, "widgets", "by_name", paths)
	require.Error(t, err)

	require.NoError(t, cat.DropIndex(ctx, "widgets", "by_name"))
	require.NotContains(t, cat.Indices("widgets"), "by_name")

	// persisted catalog survives reopen
	reopened, err := Open(dir)
	require.NoError(t, err)
	require.True(t, reopened.HasType("widgets"))
}

func TestTypesEmptyOnFreshCatalog(t *testing.T) {
	cat, err := Open(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, cat.Types())
}
