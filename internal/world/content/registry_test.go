package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupIsTotal(t *testing.T) {
	r := DefaultRegistry()

	for id := 0; id < 256; id++ {
		f := r.Lookup(uint8(id))
		require.NotNil(t, f, "id %d должен иметь свойства", id)
	}

	unknown := r.Lookup(200)
	assert.False(t, r.Registered(200))
	assert.Equal(t, uint8(0), unknown.Solidness)
	assert.False(t, unknown.Walkable)
	assert.False(t, unknown.LightPropagates)

	ignore := r.Lookup(Ignore)
	assert.Equal(t, "ignore", ignore.Name)
	assert.False(t, ignore.Walkable)
	assert.False(t, ignore.Pointable)

	air := r.Lookup(Air)
	assert.True(t, air.AirEquivalent)
	assert.True(t, air.LightPropagates)
	assert.True(t, air.SunlightPropagates)
	assert.Equal(t, ParamLight, air.ParamType)
}

func TestRegisterRules(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(Stone, ContentFeatures{Name: "a"}))
	require.NoError(t, r.Register(Stone, ContentFeatures{Name: "b"}))
	assert.Equal(t, "b", r.Lookup(Stone).Name, "последняя регистрация побеждает")

	assert.ErrorIs(t, r.Register(Ignore, ContentFeatures{}), ErrReserved)
	assert.ErrorIs(t, r.Register(Air, ContentFeatures{}), ErrReserved)

	r.Freeze()
	assert.True(t, r.Frozen())
	assert.ErrorIs(t, r.Register(Mud, ContentFeatures{}), ErrFrozen)
}

func TestDefaultTable(t *testing.T) {
	r := DefaultRegistry()

	stone := r.Lookup(Stone)
	assert.Equal(t, uint8(2), stone.Solidness)
	assert.Equal(t, "stone.png", stone.Tiles[FaceUp].Texture)
	assert.Equal(t, "cobble", stone.DugItem)

	grass := r.Lookup(Grass)
	assert.Equal(t, "grass.png", grass.Tiles[FaceUp].Texture)
	assert.Equal(t, "mud.png", grass.Tiles[FaceDown].Texture)

	assert.Equal(t, LightMax, r.LightSource(Torch))
	assert.True(t, r.Lookup(Torch).WallMounted)

	water, source := r.Lookup(Water), r.Lookup(WaterSource)
	assert.Equal(t, water.LiquidAlternativeFlowing, source.LiquidAlternativeFlowing)
	assert.True(t, source.IsLiquid())

	assert.True(t, r.Lookup(GrassFootsteps).HasTranslation)
	assert.NotNil(t, r.Lookup(Chest).InitialMetadata)

	id, ok := r.ByName("furnace")
	assert.True(t, ok)
	assert.Equal(t, Furnace, id)
}
