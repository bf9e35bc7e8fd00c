package world

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
)

func TestEmitterSpreadsLinearly(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	_, err := m.AddNodeAndUpdate(vec.New(8, 8, 8), NewNode(testLamp), 0)
	require.NoError(t, err)

	for _, bank := range Banks {
		n, err := m.GetNode(vec.New(8, 8, 0))
		require.NoError(t, err)
		assert.Equal(t, uint8(7), n.Light(bank, reg), "восемь шагов от источника 15")

		n, _ = m.GetNode(vec.New(8, 8, 15))
		assert.Equal(t, uint8(8), n.Light(bank, reg))

		n, _ = m.GetNode(vec.New(8, 8, 8))
		assert.Equal(t, content.LightSun, n.Light(bank, reg))

		n, _ = m.GetNode(vec.New(0, 0, 0))
		assert.Equal(t, uint8(0), n.Light(bank, reg), "24 шага гасят свет полностью")
	}
}

func TestLightBlockedByOpaque(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	// Стена по z=4 отрезает половину блока
	for y := 0; y < BlockSize; y++ {
		for x := 0; x < BlockSize; x++ {
			require.NoError(t, m.SetNode(vec.New(x, y, 4), NewNode(testStone)))
		}
	}
	_, err := m.AddNodeAndUpdate(vec.New(8, 8, 8), NewNode(testLamp), 0)
	require.NoError(t, err)

	n, _ := m.GetNode(vec.New(8, 8, 2))
	assert.Equal(t, uint8(0), n.Light(LightNight, reg))
	n, _ = m.GetNode(vec.New(8, 8, 5))
	assert.Equal(t, uint8(12), n.Light(LightNight, reg))
}

func TestRecomputeIsIdempotent(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, false)
	insertFilled(m, vec.New(0, -1, 0), AirNode, false)

	m.UpdateLighting([]vec.Vec3{vec.Zero, vec.New(0, -1, 0)})
	_, err := m.AddNodeAndUpdate(vec.New(3, 10, 3), NewNode(testStone), 0)
	require.NoError(t, err)
	_, err = m.AddNodeAndUpdate(vec.New(12, -5, 12), NewNode(testLamp), 0)
	require.NoError(t, err)

	upper, lower := snapshot(m, vec.Zero), snapshot(m, vec.New(0, -1, 0))

	m.UpdateLighting([]vec.Vec3{vec.Zero, vec.New(0, -1, 0)})
	assert.Equal(t, upper, snapshot(m, vec.Zero), "повторный пересчёт ничего не меняет")
	assert.Equal(t, lower, snapshot(m, vec.New(0, -1, 0)))
}

func TestRemoveAndReaddRestoresLight(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	p := vec.New(5, 5, 5)
	_, err := m.AddNodeAndUpdate(p, NewNode(testLamp), 0)
	require.NoError(t, err)
	before := snapshot(m, vec.Zero)

	_, err = m.RemoveNodeAndUpdate(p, 0)
	require.NoError(t, err)
	n, _ := m.GetNode(vec.New(5, 5, 0))
	assert.Equal(t, uint8(0), n.Light(LightDay, reg), "после удаления источника свет гаснет")

	_, err = m.AddNodeAndUpdate(p, NewNode(testLamp), 0)
	require.NoError(t, err)
	assert.Equal(t, before, snapshot(m, vec.Zero))
}

func TestSunlight(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, false)
	m.UpdateLighting([]vec.Vec3{vec.Zero})

	t.Run("открытый блок полностью освещён днём", func(t *testing.T) {
		n, _ := m.GetNode(vec.New(8, 0, 8))
		assert.Equal(t, content.LightSun, n.Light(LightDay, reg))
		assert.Equal(t, uint8(0), n.Light(LightNight, reg))
		b := m.GetBlockNoCreateNoEx(vec.Zero)
		assert.True(t, b.DayNightDiffers())
		assert.False(t, b.LightingExpired())
	})

	before := snapshot(m, vec.Zero)

	t.Run("непрозрачный узел отбрасывает тень", func(t *testing.T) {
		_, err := m.AddNodeAndUpdate(vec.New(8, 15, 8), NewNode(testStone), 0)
		require.NoError(t, err)

		n, _ := m.GetNode(vec.New(8, 10, 8))
		assert.Equal(t, content.LightMax, n.Light(LightDay, reg), "тень подсвечена соседними столбами")
		n, _ = m.GetNode(vec.New(9, 10, 8))
		assert.Equal(t, content.LightSun, n.Light(LightDay, reg))
	})

	t.Run("стекло пропускает солнце", func(t *testing.T) {
		_, err := m.AddNodeAndUpdate(vec.New(8, 15, 8), NewNode(testGlass), 0)
		require.NoError(t, err)
		n, _ := m.GetNode(vec.New(8, 10, 8))
		assert.Equal(t, content.LightSun, n.Light(LightDay, reg))
	})

	t.Run("удаление возвращает исходный свет", func(t *testing.T) {
		_, err := m.RemoveNodeAndUpdate(vec.New(8, 15, 8), 0)
		require.NoError(t, err)
		assert.Equal(t, before, snapshot(m, vec.Zero))
	})
}

func TestSunlightCrossesBlocks(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, false)
	insertFilled(m, vec.New(0, -1, 0), AirNode, true)

	m.UpdateLighting([]vec.Vec3{vec.New(0, -1, 0), vec.Zero})

	n, _ := m.GetNode(vec.New(3, -16, 3))
	assert.Equal(t, content.LightSun, n.Light(LightDay, reg), "солнце проходит в нижний блок")
}

func TestLightCrossesBlockBoundary(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)
	insertFilled(m, vec.New(1, 0, 0), AirNode, true)

	_, err := m.AddNodeAndUpdate(vec.New(14, 8, 8), NewNode(testLamp), 0)
	require.NoError(t, err)

	n, _ := m.GetNode(vec.New(18, 8, 8))
	assert.Equal(t, uint8(11), n.Light(LightNight, reg))

	// Соседний блок, загруженный позже, забирает свет с границы
	insertFilled(m, vec.New(0, 0, 1), AirNode, true)
	modified := m.UpdateLighting([]vec.Vec3{vec.New(0, 0, 1)})
	assert.Contains(t, modified, vec.New(0, 0, 1))
	n, _ = m.GetNode(vec.New(14, 8, 16))
	assert.Equal(t, uint8(7), n.Light(LightNight, reg))
}

func TestUpdateExpiredLighting(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	require.NoError(t, m.SetNode(vec.New(1, 1, 1), NewNode(testLamp)))
	assert.True(t, m.GetBlockNoCreateNoEx(vec.Zero).LightingExpired(), "смена световых свойств требует пересчёта")

	modified := m.UpdateExpiredLighting()
	assert.Contains(t, modified, vec.Zero)
	assert.False(t, m.GetBlockNoCreateNoEx(vec.Zero).LightingExpired())

	n, _ := m.GetNode(vec.New(1, 1, 3))
	assert.Equal(t, uint8(13), n.Light(LightDay, reg))

	assert.Empty(t, m.UpdateExpiredLighting())
}

func TestTorchUnderOpenSky(t *testing.T) {
	reg := testRegistry()
	m := NewMap(reg, nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, false)
	require.NoError(t, m.SetNode(vec.New(5, 5, 2), NewNode(testTorch)))

	m.UpdateLighting([]vec.Vec3{vec.Zero})

	n, _ := m.GetNode(vec.New(5, 5, 2))
	assert.Equal(t, content.LightSun, n.StoredLight(LightDay, reg), "солнце сильнее факела")
	assert.Equal(t, content.LightMax, n.StoredLight(LightNight, reg))
	n, _ = m.GetNode(vec.New(5, 0, 2))
	assert.Equal(t, content.LightSun, n.Light(LightDay, reg), "факел пропускает солнце вниз")
}

// Инкрементальные правки и полный пересчёт должны давать один и тот же свет
func TestIncrementalMatchesRecompute(t *testing.T) {
	blocks := []vec.Vec3{vec.Zero, vec.New(1, 0, 0), vec.New(0, -1, 0), vec.New(1, -1, 0)}
	placeable := []uint8{testStone, testTorch, testGlass}

	for seed := int64(1); seed <= 12; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			reg := testRegistry()
			m := NewMap(reg, nil, testLogger())
			for _, bp := range blocks {
				insertFilled(m, bp, AirNode, false)
			}
			m.UpdateLighting(blocks)

			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 60; i++ {
				p := vec.New(rng.Intn(2*BlockSize), rng.Intn(2*BlockSize)-BlockSize, rng.Intn(BlockSize))
				if rng.Intn(3) == 0 {
					_, err := m.RemoveNodeAndUpdate(p, 0)
					require.NoError(t, err)
					continue
				}
				_, err := m.AddNodeAndUpdate(p, NewNode(placeable[rng.Intn(len(placeable))]), 0)
				require.NoError(t, err)
			}

			incremental := make(map[vec.Vec3][]Node, len(blocks))
			for _, bp := range blocks {
				incremental[bp] = snapshot(m, bp)
			}
			m.UpdateLighting(blocks)
			for _, bp := range blocks {
				assert.Equal(t, incremental[bp], snapshot(m, bp), "блок %v", bp)
			}
		})
	}
}
