package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

func openBackends(t *testing.T) map[Backend]Store {
	t.Helper()
	stores := make(map[Backend]Store)
	for _, b := range []Backend{BackendBadger, BackendSQLite, BackendLevelDB} {
		s, err := Open(b, t.TempDir())
		require.NoError(t, err, "бэкенд %s", b)
		t.Cleanup(func() { s.Close() })
		stores[b] = s
	}
	return stores
}

func TestBlockKey(t *testing.T) {
	for _, p := range []vec.Vec3{{X: 0, Y: 0, Z: 0}, {X: -1, Y: 2, Z: -300}, {X: 2047, Y: -2048, Z: 5}} {
		got, err := parseBlockKey(blockKey(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := parseBlockKey([]byte("chunk:1:2"))
	assert.ErrorIs(t, err, ErrBadKey)
	_, err = parseBlockKey([]byte("block:1:x:2"))
	assert.ErrorIs(t, err, ErrBadKey)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("cassandra", t.TempDir())
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range openBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			a := vec.Vec3{X: 1, Y: -2, Z: 3}
			b := vec.Vec3{X: -5, Y: 0, Z: 0}

			_, found, err := s.LoadBlock(ctx, a)
			require.NoError(t, err)
			assert.False(t, found, "пустая база не содержит блоков")

			require.NoError(t, s.SaveBlock(ctx, a, []byte{13, 1, 2, 3}))
			require.NoError(t, s.SaveBlock(ctx, b, []byte{13}))
			require.NoError(t, s.SaveBlock(ctx, a, []byte{13, 9}))

			data, found, err := s.LoadBlock(ctx, a)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, []byte{13, 9}, data, "повторная запись заменяет блок")

			list, err := s.ListBlocks(ctx)
			require.NoError(t, err)
			assert.ElementsMatch(t, []vec.Vec3{a, b}, list)

			require.NoError(t, s.DeleteBlock(ctx, b))
			_, found, err = s.LoadBlock(ctx, b)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestMapPersistsThroughStore(t *testing.T) {
	ctx := context.Background()
	reg := content.DefaultRegistry()

	for name, s := range openBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			pos := vec.Vec3{X: 0, Y: 1, Z: 0}
			m := world.NewMap(reg, s, nil)
			blk := m.GetOrCreateBlock(pos)
			blk.Fill(world.Node{Content: content.Air})

			node := world.Node{Content: content.Stone}
			p := vec.Vec3{X: 3, Y: 20, Z: 7}
			require.NoError(t, m.SetNode(p, node))

			n, err := m.Save(ctx, world.ModWriteNeeded)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			fresh := world.NewMap(reg, s, nil)
			_, err = fresh.LoadBlock(ctx, pos)
			require.NoError(t, err)
			assert.Equal(t, content.Stone, fresh.GetNodeNoEx(p).Content)
			assert.Equal(t, content.Air, fresh.GetNodeNoEx(vec.Vec3{X: 0, Y: 16, Z: 0}).Content)
		})
	}
}
