package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageresize/database"
	"imageresize/models"
)

func newTestCache(t *testing.T) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	conn, err := database.ConnectCache(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewStatusCache(conn), mr
}

func TestStatusCache_SetOverwrites(t *testing.T) {
	ctx := context.Background()
	sc, mr := newTestCache(t)

	require.NoError(t, sc.Set(ctx, "run-1", "a", models.StatusLoaded))
	require.NoError(t, sc.Set(ctx, "run-1", "a", models.StatusSaved))

	raw, err := mr.Get("image:status:run-1:a")
	require.NoError(t, err)
	assert.Equal(t, "saved", raw)
	assert.Equal(t, statusTTL, mr.TTL("image:status:run-1:a"))
}

func TestStatusCache_RunIsScopedToItsID(t *testing.T) {
	ctx := context.Background()
	sc, _ := newTestCache(t)

	require.NoError(t, sc.Set(ctx, "run-1", "a", models.StatusSaved))
	require.NoError(t, sc.Set(ctx, "run-1", "holiday.2011", models.StatusFailed))
	require.NoError(t, sc.Set(ctx, "run-10", "b", models.StatusResized))

	statuses, err := sc.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Status{
		"a":            models.StatusSaved,
		"holiday.2011": models.StatusFailed,
	}, statuses)
}

func TestStatusCache_RunWithGlobCharacters(t *testing.T) {
	ctx := context.Background()
	sc, _ := newTestCache(t)

	require.NoError(t, sc.Set(ctx, "run-1", "a", models.StatusSaved))

	statuses, err := sc.Run(ctx, "run-*")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestStatusCache_TTL(t *testing.T) {
	ctx := context.Background()
	sc, mr := newTestCache(t)

	require.NoError(t, sc.Set(ctx, "run-1", "b", models.StatusFailed))
	mr.FastForward(statusTTL + time.Second)

	statuses, err := sc.Run(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}
