package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "nested", "history.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestRecentDistinctNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := openTest(t)

	for _, q := range []string{"Seoul Station", "Busan", "Seoul Station", "  ", "부산역"} {
		require.NoError(t, h.Record(ctx, q, nil, nil))
	}

	got, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	var queries []string
	for _, e := range got {
		queries = append(queries, e.Query)
	}
	assert.Equal(t, []string{"부산역", "Seoul Station", "Busan"}, queries)
}

func TestRecentLimitAndCoordinates(t *testing.T) {
	ctx := context.Background()
	h := openTest(t)

	lat, lon := 37.5547, 126.9707
	require.NoError(t, h.Record(ctx, "a", nil, nil))
	require.NoError(t, h.Record(ctx, "b", &lat, &lon))

	got, err := h.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Query)
	require.NotNil(t, got[0].Lat)
	assert.InDelta(t, lat, *got[0].Lat, 1e-9)
	assert.InDelta(t, lon, *got[0].Lon, 1e-9)
	assert.False(t, got[0].At.IsZero())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	h := openTest(t)
	require.NoError(t, h.Record(ctx, "a", nil, nil))
	require.NoError(t, h.Clear(ctx))

	got, err := h.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.sqlite")

	h, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, h.Record(ctx, "Gwanghwamun", nil, nil))
	require.NoError(t, h.Close())

	h, err = Open(path)
	require.NoError(t, err)
	defer h.Close()
	got, err := h.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Gwanghwamun", got[0].Query)
}
