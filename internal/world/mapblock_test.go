package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
)

func TestBlockCoordinates(t *testing.T) {
	tests := []struct {
		p        vec.Vec3
		blockPos vec.Vec3
		localPos vec.Vec3
	}{
		{vec.New(0, 0, 0), vec.New(0, 0, 0), vec.New(0, 0, 0)},
		{vec.New(15, 16, 17), vec.New(0, 1, 1), vec.New(15, 0, 1)},
		{vec.New(-1, -16, -17), vec.New(-1, -1, -2), vec.New(15, 0, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.p.String(), func(t *testing.T) {
			assert.Equal(t, tt.blockPos, BlockPosOf(tt.p))
			assert.Equal(t, tt.localPos, LocalPosOf(tt.p))
			assert.Equal(t, tt.p, BlockOrigin(tt.blockPos).Add(tt.localPos))
		})
	}

	for _, i := range []uint16{0, 1, 255, 256, 4095} {
		assert.Equal(t, i, PackLocal(UnpackLocal(i)))
	}
}

func TestBlockNodeAccess(t *testing.T) {
	b := NewBlock(nil, vec.Zero, true)

	t.Run("заглушка", func(t *testing.T) {
		assert.True(t, b.IsDummy())
		_, err := b.GetNode(vec.New(1, 1, 1))
		assert.ErrorIs(t, err, ErrUnloaded)
		assert.ErrorIs(t, b.SetNode(vec.New(1, 1, 1), AirNode), ErrUnloaded)
		assert.Equal(t, IgnoreNode, b.GetNodeNoEx(vec.New(1, 1, 1)))
	})

	b.Reallocate()

	t.Run("после выделения все узлы ignore", func(t *testing.T) {
		n, err := b.GetNode(vec.New(3, 4, 5))
		require.NoError(t, err)
		assert.True(t, n.IsIgnore())
	})

	t.Run("координаты вне блока", func(t *testing.T) {
		_, err := b.GetNode(vec.New(16, 0, 0))
		assert.ErrorIs(t, err, ErrOutOfRange)
		assert.ErrorIs(t, b.SetNode(vec.New(0, -1, 0), AirNode), ErrOutOfRange)
		assert.Equal(t, IgnoreNode, b.GetNodeNoEx(vec.New(0, 0, 16)))
	})

	t.Run("запись и чтение", func(t *testing.T) {
		n := Node{Content: 3, Param1: 4, Param2: 5}
		require.NoError(t, b.SetNode(vec.New(15, 15, 15), n))
		got, err := b.GetNode(vec.New(15, 15, 15))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	})
}

func TestModifiedStateIsMonotonic(t *testing.T) {
	b := NewBlock(nil, vec.Zero, true)
	b.Reallocate()
	b.ResetModified()
	assert.Equal(t, ModClean, b.Modified())

	b.SetTimestamp(100)
	assert.Equal(t, ModWriteAtUnload, b.Modified())

	require.NoError(t, b.SetNode(vec.Zero, AirNode))
	assert.Equal(t, ModWriteNeeded, b.Modified())

	b.RaiseModified(ModWriteAtUnload)
	assert.Equal(t, ModWriteNeeded, b.Modified(), "понижение игнорируется")
	b.RaiseModified(ModClean)
	assert.Equal(t, ModWriteNeeded, b.Modified())

	b.ResetModified()
	b.SetTimestampNoChangedFlag(200)
	assert.Equal(t, ModClean, b.Modified())
	assert.Equal(t, uint32(200), b.Timestamp())
	assert.Equal(t, "clean", b.Modified().String())
}

func TestGetNodeParent(t *testing.T) {
	m := NewMap(testRegistry(), nil, testLogger())
	a := insertFilled(m, vec.Zero, AirNode, true)
	insertFilled(m, vec.New(1, 0, 0), NewNode(testStone), true)

	assert.Equal(t, testStone, a.GetNodeParent(vec.New(16, 3, 3)).Content)
	assert.True(t, a.GetNodeParent(vec.New(-1, 3, 3)).IsIgnore(), "сосед не загружен")
	assert.Equal(t, AirNode, a.GetNodeParent(vec.New(3, 3, 3)))
}

func TestTempMods(t *testing.T) {
	b := NewBlock(nil, vec.New(1, 0, 0), false)
	mod := NodeMod{Type: NodeModCrack, Param: 2}

	assert.True(t, b.SetTempMod(vec.New(1, 2, 3), mod))
	assert.False(t, b.SetTempMod(vec.New(1, 2, 3), mod), "та же подмена")
	assert.Equal(t, map[vec.Vec3]NodeMod{vec.New(17, 2, 3): mod}, b.TempMods())

	assert.True(t, b.ClearTempMod(vec.New(1, 2, 3)))
	assert.False(t, b.ClearTempMod(vec.New(1, 2, 3)))
	assert.False(t, b.ClearTempMods())
}

func TestUpdateDayNightDiff(t *testing.T) {
	reg := testRegistry()
	b := NewBlock(nil, vec.Zero, false)
	b.Fill(AirNode)
	b.UpdateDayNightDiff(reg)
	assert.False(t, b.DayNightDiffers())

	n := AirNode
	n.SetLight(LightDay, 5, reg)
	b.SetNodeNoCheck(vec.New(2, 2, 2), n)
	b.UpdateDayNightDiff(reg)
	assert.True(t, b.DayNightDiffers())
}

func TestBlockPropagateSunlight(t *testing.T) {
	reg := testRegistry()
	b := NewBlock(nil, vec.Zero, false)
	b.Fill(AirNode)
	b.SetNodeNoCheck(vec.New(2, 10, 2), NewNode(testStone))

	sources := make(map[vec.Vec3]struct{})
	through := b.PropagateSunlight(reg, sources)

	assert.Len(t, through, BlockSize*BlockSize-1, "все столбы кроме перекрытого выходят вниз")
	assert.NotContains(t, through, vec.New(2, -1, 2))
	assert.Equal(t, content.LightSun, b.GetNodeNoEx(vec.New(2, 11, 2)).Light(LightDay, reg))
	assert.Equal(t, uint8(0), b.GetNodeNoEx(vec.New(2, 9, 2)).Light(LightDay, reg))
	assert.Len(t, sources, BlockSize*BlockSize*BlockSize-11)

	under := NewBlock(nil, vec.Zero, false)
	under.Fill(AirNode)
	under.isUnderground = true
	assert.Empty(t, under.PropagateSunlight(reg, nil), "подземный блок без соседа сверху тёмный")
}
