package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
)

func TestGeneratorDeterministic(t *testing.T) {
	pos := vec.New(3, 0, -2)

	a := NewBlock(nil, pos, false)
	b := NewBlock(nil, pos, false)
	require.NoError(t, NewMapGenerator(99).Generate(a))
	require.NoError(t, NewMapGenerator(99).Generate(b))
	assert.Equal(t, a.data, b.data)

	for _, n := range a.data {
		require.False(t, n.IsIgnore(), "генератор заполняет весь блок")
	}
}

func TestGeneratorLayers(t *testing.T) {
	g := NewMapGenerator(7)

	deep := NewBlock(nil, vec.New(0, -20, 0), false)
	require.NoError(t, g.Generate(deep))
	assert.True(t, deep.IsUnderground())
	for _, n := range deep.data {
		require.Contains(t, []uint8{content.Stone, content.CoalStone}, n.Content)
	}

	sky := NewBlock(nil, vec.New(0, 20, 0), false)
	require.NoError(t, g.Generate(sky))
	assert.False(t, sky.IsUnderground())
	for _, n := range sky.data {
		require.Equal(t, content.Air, n.Content)
	}

	t.Run("поверхность", func(t *testing.T) {
		x, z := 5, 9
		h := g.SurfaceHeight(x, z)
		top := g.nodeAt(x, h, z, h).Content
		assert.Contains(t, []uint8{content.Grass, content.Sand}, top)
		assert.Contains(t, []uint8{content.Air, content.WaterSource}, g.nodeAt(x, h+1, z, h).Content)
	})
}
