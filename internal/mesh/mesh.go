// Package mesh строит геометрию блоков для отрисовки на клиенте.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// Vertex вершина грани в координатах блока, узел занимает единичный куб
// с центром в целой точке
type Vertex struct {
	Pos    mgl32.Vec3
	Normal mgl32.Vec3
	UV     mgl32.Vec2
	// Light яркость 0..255 после декодирования уровня
	Light uint8
	Alpha uint8
}

// MeshBuffer вершины с одним и тем же тайлом
type MeshBuffer struct {
	Tile     content.TileSpec
	Vertices []Vertex
	Indices  []uint16
}

// Mesh готовая геометрия блока. Это только данные, отрисовку выполняет
// внешний движок через Renderable.
type Mesh struct {
	BlockPos vec.Vec3
	Buffers  []*MeshBuffer
}

// Renderable то, что умеет отрисовать движок: геометрия и положение
type Renderable interface {
	VertexCount() int
	Transform() mgl32.Mat4
}

var (
	_ Renderable     = (*Mesh)(nil)
	_ world.Drawable = (*Mesh)(nil)
)

// VertexCount сумма вершин всех буферов
func (m *Mesh) VertexCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, b := range m.Buffers {
		n += len(b.Vertices)
	}
	return n
}

// FaceCount количество четырёхугольников
func (m *Mesh) FaceCount() int {
	return m.VertexCount() / 4
}

// Transform перенос в мировые координаты узлов
func (m *Mesh) Transform() mgl32.Mat4 {
	o := world.BlockOrigin(m.BlockPos)
	return mgl32.Translate3D(float32(o.X), float32(o.Y), float32(o.Z))
}

// Buffer буфер с тайлом tile или nil
func (m *Mesh) Buffer(texture string) *MeshBuffer {
	for _, b := range m.Buffers {
		if b.Tile.Texture == texture {
			return b
		}
	}
	return nil
}

// collector раскладывает четырёхугольники по буферам тайлов
type collector struct {
	buffers []*MeshBuffer
	index   map[content.TileSpec]int
}

func newCollector() *collector {
	return &collector{index: make(map[content.TileSpec]int)}
}

func (c *collector) append(tile content.TileSpec, v [4]Vertex) {
	i, ok := c.index[tile]
	if !ok {
		i = len(c.buffers)
		c.index[tile] = i
		c.buffers = append(c.buffers, &MeshBuffer{Tile: tile})
	}
	buf := c.buffers[i]
	base := uint16(len(buf.Vertices))
	buf.Vertices = append(buf.Vertices, v[:]...)
	buf.Indices = append(buf.Indices, base, base+1, base+2, base+2, base+3, base)
}
