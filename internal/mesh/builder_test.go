package mesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

func airMap(t *testing.T, blocks ...vec.Vec3) *world.Map {
	t.Helper()
	m := world.NewMap(content.DefaultRegistry(), nil, logging.NewConsoleLogger("mesh-test"))
	for _, bp := range blocks {
		b := world.NewBlock(m, bp, false)
		b.Fill(world.AirNode)
		b.SetGenerated(true)
		m.InsertBlock(b)
	}
	return m
}

func setStone(t *testing.T, m *world.Map, ps ...vec.Vec3) {
	t.Helper()
	for _, p := range ps {
		require.NoError(t, m.SetNode(p, world.NewNode(content.Stone)))
	}
}

func TestSingleNodeHasSixFaces(t *testing.T) {
	m := airMap(t, vec.Zero)
	setStone(t, m, vec.New(5, 5, 5))

	mesh := NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false))
	require.NotNil(t, mesh)
	assert.Equal(t, 6, mesh.FaceCount())
	require.Len(t, mesh.Buffers, 1, "все грани камня в одном буфере")
	assert.Equal(t, "stone.png", mesh.Buffers[0].Tile.Texture)
	assert.Len(t, mesh.Buffers[0].Indices, 36)
}

func TestEmptyBlockHasNoMesh(t *testing.T) {
	m := airMap(t, vec.Zero)
	assert.Nil(t, NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false)))

	full := airMap(t)
	b := world.NewBlock(full, vec.Zero, false)
	b.Fill(world.NewNode(content.Stone))
	full.InsertBlock(b)
	assert.Nil(t, NewBuilder().Build(FillMakeData(full, vec.Zero, 1000, false)),
		"камень внутри и ignore снаружи не дают граней")
}

func TestEqualContentHasNoSharedFace(t *testing.T) {
	m := airMap(t, vec.Zero)
	setStone(t, m, vec.New(5, 5, 5), vec.New(6, 5, 5))

	merged := NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false))
	require.NotNil(t, merged)
	assert.Equal(t, 6, merged.FaceCount(), "соседние одинаковые грани сливаются")

	separate := (&Builder{DisableMerge: true}).Build(FillMakeData(m, vec.Zero, 1000, false))
	require.NotNil(t, separate)
	assert.Equal(t, 10, separate.FaceCount(), "между двумя камнями грани нет")
}

func TestMergedQuadSpansRow(t *testing.T) {
	m := airMap(t, vec.Zero)
	setStone(t, m, vec.New(2, 5, 5), vec.New(3, 5, 5), vec.New(4, 5, 5))

	mesh := NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false))
	require.NotNil(t, mesh)

	var top []Vertex
	for _, v := range mesh.Buffers[0].Vertices {
		if v.Normal == (mgl32.Vec3{0, 1, 0}) {
			top = append(top, v)
		}
	}
	require.Len(t, top, 4)
	minX, maxX := top[0].Pos.X(), top[0].Pos.X()
	for _, v := range top {
		minX = min(minX, v.Pos.X())
		maxX = max(maxX, v.Pos.X())
		assert.InDelta(t, 5.5, v.Pos.Y(), 1e-6)
	}
	assert.InDelta(t, 1.5, minX, 1e-6)
	assert.InDelta(t, 4.5, maxX, 1e-6)
}

func TestMissingNeighbourDrawsNothing(t *testing.T) {
	m := airMap(t, vec.Zero)
	setStone(t, m, vec.New(15, 5, 5))

	mesh := NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false))
	require.NotNil(t, mesh)
	assert.Equal(t, 5, mesh.FaceCount(), "к незагруженному соседу грани нет")

	m2 := airMap(t, vec.Zero, vec.New(1, 0, 0))
	setStone(t, m2, vec.New(15, 5, 5))
	mesh = NewBuilder().Build(FillMakeData(m2, vec.Zero, 1000, false))
	require.NotNil(t, mesh)
	assert.Equal(t, 6, mesh.FaceCount())
}

func TestFlatLighting(t *testing.T) {
	m := airMap(t, vec.Zero)
	m.UpdateLighting([]vec.Vec3{vec.Zero})
	_, err := m.AddNodeAndUpdate(vec.New(5, 5, 5), world.NewNode(content.Stone), 0)
	require.NoError(t, err)

	mesh := NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false))
	require.NotNil(t, mesh)

	lights := make(map[mgl32.Vec3]uint8)
	for _, v := range mesh.Buffers[0].Vertices {
		lights[v.Normal] = v.Light
	}
	assert.Equal(t, uint8(255), lights[mgl32.Vec3{0, 1, 0}], "верх под прямым солнцем")
	assert.Equal(t, DecodeLight(12), lights[mgl32.Vec3{0, -1, 0}], "низ в тени и затенён дважды")
	assert.Equal(t, DecodeLight(13), lights[mgl32.Vec3{-1, 0, 0}])
	assert.Equal(t, DecodeLight(12), lights[mgl32.Vec3{1, 0, 0}])

	night := NewBuilder().Build(FillMakeData(m, vec.Zero, 0, false))
	for _, v := range night.Buffers[0].Vertices {
		assert.LessOrEqual(t, v.Light, DecodeLight(1))
	}
}

func TestSmoothLighting(t *testing.T) {
	m := airMap(t, vec.Zero)
	setStone(t, m, vec.New(5, 5, 5))

	mesh := NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, true))
	require.NotNil(t, mesh)
	for _, v := range mesh.Buffers[0].Vertices {
		assert.Equal(t, DecodeLight(0), v.Light, "темнота без затенения углов")
	}

	vm := world.NewVoxelManipulator()
	assert.Equal(t, uint8(255), smoothLight(vm, vec.Zero, vec.New(1, 1, 1), 1000, content.DefaultRegistry()),
		"без данных угол считается освещённым")
}

func TestAmbientOcclusion(t *testing.T) {
	reg := content.DefaultRegistry()
	vm := world.NewVoxelManipulator()
	lit := world.AirNode
	lit.SetLight(world.LightDay, content.LightMax, reg)

	// Угол между узлами (0..1)^3: два воздуха, шесть камней
	for _, d := range cornerSamples {
		vm.SetNode(vec.New(1, 1, 1).Sub(d), world.NewNode(content.Stone))
	}
	vm.SetNode(vec.New(1, 1, 1), lit)
	vm.SetNode(vec.New(0, 1, 1), lit)

	got := smoothLight(vm, vec.New(0, 0, 0), vec.New(1, 1, 1), 1000, reg)
	assert.Equal(t, uint8(127), got, "255 / (2*0.5 + 1)")
}

func TestTempMods(t *testing.T) {
	m := airMap(t, vec.Zero)
	setStone(t, m, vec.New(5, 5, 5))

	m.SetTempMod(vec.New(5, 5, 5), world.NodeMod{Type: world.NodeModCrack, Param: 2})
	mesh := NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false))
	require.NotNil(t, mesh)
	assert.NotNil(t, mesh.Buffer("stone.png^[crack2"))
	assert.Nil(t, mesh.Buffer("stone.png"))

	m.SetTempMod(vec.New(5, 5, 5), world.NodeMod{Type: world.NodeModChangeContent, Param: uint16(content.Air)})
	assert.Nil(t, NewBuilder().Build(FillMakeData(m, vec.Zero, 1000, false)), "узел подменён воздухом")

	n, err := m.GetNode(vec.New(5, 5, 5))
	require.NoError(t, err)
	assert.Equal(t, content.Stone, n.Content, "подмена не трогает данные")
}

func TestDecodeLight(t *testing.T) {
	assert.Equal(t, uint8(8), DecodeLight(0))
	assert.Equal(t, uint8(255), DecodeLight(content.LightMax))
	assert.Equal(t, uint8(255), DecodeLight(content.LightSun))
	for l := uint8(1); l <= content.LightMax; l++ {
		assert.Greater(t, DecodeLight(l), DecodeLight(l-1))
	}
}

func TestMeshTransform(t *testing.T) {
	mesh := &Mesh{BlockPos: vec.New(1, -1, 2)}
	assert.Equal(t, mgl32.Translate3D(16, -16, 32), mesh.Transform())
	assert.Equal(t, 0, (*Mesh)(nil).VertexCount())
}
