package mesh

import (
	"strconv"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// MakeData снимок всего, что нужно для построения геометрии блока.
// Собирается под блокировкой карты, строится уже без неё.
type MakeData struct {
	BlockPos       vec.Vec3
	VM             *world.VoxelManipulator
	TempMods       map[vec.Vec3]world.NodeMod
	DayNightRatio  uint32
	SmoothLighting bool
	Registry       *content.Registry
}

// neighbourhood блок и шесть соседей по граням
func neighbourhood(blockPos vec.Vec3) []vec.Vec3 {
	out := make([]vec.Vec3, 0, 7)
	out = append(out, blockPos)
	for _, d := range vec.FaceDirs {
		out = append(out, blockPos.Add(d))
	}
	return out
}

// FillMakeData копирует блок и его соседей из карты. Отсутствующие
// соседи остаются ignore, граней к ним не будет.
func FillMakeData(m *world.Map, blockPos vec.Vec3, ratio uint32, smooth bool) *MakeData {
	blocks := neighbourhood(blockPos)
	return &MakeData{
		BlockPos:       blockPos,
		VM:             m.InitialEmergeBlocks(blocks),
		TempMods:       m.TempModsAround(blocks),
		DayNightRatio:  ratio,
		SmoothLighting: smooth,
		Registry:       m.Registry(),
	}
}

// Builder строит геометрию. Нулевое значение готово к работе.
type Builder struct {
	// DisableMerge рисует каждую грань отдельно
	DisableMerge bool
}

// NewBuilder создаёт построитель со слиянием граней
func NewBuilder() *Builder {
	return &Builder{}
}

// Направления обхода: нормаль грани и ось, вдоль которой сливаются грани
var rowPasses = [3]struct {
	face      vec.Vec3
	translate vec.Vec3
}{
	{face: vec.Vec3{Y: 1}, translate: vec.Vec3{X: 1}},
	{face: vec.Vec3{X: 1}, translate: vec.Vec3{Z: 1}},
	{face: vec.Vec3{Z: 1}, translate: vec.Vec3{X: 1}},
}

// Build строит геометрию блока. nil, если граней нет.
func (bd *Builder) Build(data *MakeData) *Mesh {
	c := newCollector()
	origin := world.BlockOrigin(data.BlockPos)

	for _, pass := range rowPasses {
		// Третья ось, по которой идут ряды вместе с нормалью
		for a := 0; a < world.BlockSize; a++ {
			for b := 0; b < world.BlockSize; b++ {
				start := rowStart(origin, pass.face, pass.translate, a, b)
				bd.buildRow(c, data, start, pass.face, pass.translate)
			}
		}
	}

	if len(c.buffers) == 0 {
		return nil
	}
	return &Mesh{BlockPos: data.BlockPos, Buffers: c.buffers}
}

// rowStart первый узел ряда: по оси translate ноль, по двум другим a и b
func rowStart(origin, face, translate vec.Vec3, a, b int) vec.Vec3 {
	p := origin
	coords := [2]int{a, b}
	k := 0
	for axis := 0; axis < 3; axis++ {
		if axisComponent(translate, axis) != 0 {
			continue
		}
		p = setAxis(p, axis, axisComponent(p, axis)+coords[k])
		k++
	}
	return p
}

func axisComponent(v vec.Vec3, axis int) int {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func setAxis(v vec.Vec3, axis, value int) vec.Vec3 {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

// fastFace грань одного узла до слияния
type fastFace struct {
	tile   content.TileSpec
	pos    vec.Vec3 // узел, которому принадлежит грань
	normal vec.Vec3
	lights [4]uint8
}

func (f fastFace) sameAs(o fastFace) bool {
	return f.tile == o.tile && f.normal == o.normal && f.lights == o.lights
}

func (bd *Builder) buildRow(c *collector, data *MakeData, start, face, translate vec.Vec3) {
	var run []fastFace
	flush := func() {
		if len(run) > 0 {
			c.append(run[0].tile, quad(run[0], run[len(run)-1], translate, data.BlockPos))
			run = run[:0]
		}
	}

	for i := 0; i < world.BlockSize; i++ {
		p := start.Add(translate.Scale(i))
		f, ok := tileInfo(data, p, face)
		if !ok {
			flush()
			continue
		}
		if len(run) > 0 && (bd.DisableMerge || !run[len(run)-1].sameAs(f)) {
			flush()
		}
		run = append(run, f)
	}
	flush()
}

// contentAt тип узла с учётом подмены CHANGECONTENT
func contentAt(data *MakeData, p vec.Vec3) uint8 {
	c := data.VM.GetNodeNoEx(p).Content
	if mod, ok := data.TempMods[p]; ok && mod.Type == world.NodeModChangeContent {
		c = uint8(mod.Param)
	}
	return c
}

// tileInfo решает, есть ли грань между p и p+face, и чья она
func tileInfo(data *MakeData, p, face vec.Vec3) (fastFace, bool) {
	reg := data.Registry
	p2 := p.Add(face)
	c1, c2 := contentAt(data, p), contentAt(data, p2)

	owner := world.FaceContents(reg, c1, c2)
	if owner == 0 {
		return fastFace{}, false
	}

	f := fastFace{pos: p, normal: face}
	ownerContent := c1
	if owner == 2 {
		f.pos, f.normal, ownerContent = p2, face.Neg(), c2
	}
	f.tile = nodeTile(data, f.pos, ownerContent, f.normal)

	if data.SmoothLighting {
		dirs := vertexDirs(f.normal)
		for i, d := range dirs {
			f.lights[i] = smoothLight(data.VM, f.pos, d, data.DayNightRatio, reg)
		}
	} else {
		n1, n2 := data.VM.GetNodeNoEx(p), data.VM.GetNodeNoEx(p2)
		l := faceLight(data.DayNightRatio, n1, n2, f.normal, reg)
		f.lights = [4]uint8{l, l, l, l}
	}
	return f, true
}

// nodeTile тайл грани с учётом поворота узла и трещины
func nodeTile(data *MakeData, p vec.Vec3, c uint8, normal vec.Vec3) content.TileSpec {
	reg := data.Registry
	dir := normal
	if reg.Lookup(c).ParamType == content.ParamFaceDirSimple {
		n := data.VM.GetNodeNoEx(p)
		dir = facedirRotate(n.Param1&0x03, dir)
	}
	tile := reg.Lookup(c).Tiles[faceIndex(dir)]

	if mod, ok := data.TempMods[p]; ok && mod.Type == world.NodeModCrack {
		tile.Texture += "^[crack" + strconv.Itoa(int(mod.Param))
	}
	return tile
}

// facedirRotate поворот направления вокруг Y для узлов с ParamFaceDirSimple
func facedirRotate(facedir uint8, d vec.Vec3) vec.Vec3 {
	switch facedir {
	case 1:
		return vec.Vec3{X: d.Z, Y: d.Y, Z: -d.X}
	case 2:
		return vec.Vec3{X: -d.X, Y: d.Y, Z: -d.Z}
	case 3:
		return vec.Vec3{X: -d.Z, Y: d.Y, Z: d.X}
	default:
		return d
	}
}

func faceIndex(d vec.Vec3) int {
	switch {
	case d.Y == 1:
		return content.FaceUp
	case d.Y == -1:
		return content.FaceDown
	case d.X == 1:
		return content.FaceRight
	case d.X == -1:
		return content.FaceLeft
	case d.Z == 1:
		return content.FaceBack
	default:
		return content.FaceFront
	}
}

// vertexDirs углы грани в порядке обхода вершин
func vertexDirs(normal vec.Vec3) [4]vec.Vec3 {
	switch normal {
	case vec.Vec3{Z: 1}:
		return [4]vec.Vec3{{X: -1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1}}
	case vec.Vec3{Z: -1}:
		return [4]vec.Vec3{{X: 1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: -1}, {X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: -1}}
	case vec.Vec3{X: 1}:
		return [4]vec.Vec3{{X: 1, Y: -1, Z: 1}, {X: 1, Y: -1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: 1}}
	case vec.Vec3{X: -1}:
		return [4]vec.Vec3{{X: -1, Y: -1, Z: -1}, {X: -1, Y: -1, Z: 1}, {X: -1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: -1}}
	case vec.Vec3{Y: 1}:
		return [4]vec.Vec3{{X: -1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: -1}, {X: 1, Y: 1, Z: 1}, {X: -1, Y: 1, Z: 1}}
	default:
		return [4]vec.Vec3{{X: 1, Y: -1, Z: 1}, {X: -1, Y: -1, Z: 1}, {X: -1, Y: -1, Z: -1}, {X: 1, Y: -1, Z: -1}}
	}
}

// quad четырёхугольник от грани first до грани last вдоль translate
func quad(first, last fastFace, translate, blockPos vec.Vec3) [4]Vertex {
	origin := world.BlockOrigin(blockPos)
	normal := mgl32.Vec3{float32(first.normal.X), float32(first.normal.Y), float32(first.normal.Z)}
	alpha := uint8(255)
	if first.tile.Material == content.MaterialAlphaVertex {
		alpha = first.tile.Alpha
	}

	var out [4]Vertex
	for i, d := range vertexDirs(first.normal) {
		base := first.pos
		if d.X*translate.X+d.Y*translate.Y+d.Z*translate.Z > 0 {
			base = last.pos
		}
		local := base.Sub(origin)
		pos := mgl32.Vec3{
			float32(local.X) + 0.5*float32(d.X),
			float32(local.Y) + 0.5*float32(d.Y),
			float32(local.Z) + 0.5*float32(d.Z),
		}
		out[i] = Vertex{
			Pos:    pos,
			Normal: normal,
			UV:     planarUV(pos, first.normal),
			Light:  first.lights[i],
			Alpha:  alpha,
		}
	}
	return out
}

// planarUV текстурные координаты проекцией на плоскость грани,
// слитые грани повторяют текстуру
func planarUV(p mgl32.Vec3, normal vec.Vec3) mgl32.Vec2 {
	switch {
	case normal.Y != 0:
		return mgl32.Vec2{p.X() + 0.5, p.Z() + 0.5}
	case normal.X != 0:
		return mgl32.Vec2{p.Z() + 0.5, 0.5 - p.Y()}
	default:
		return mgl32.Vec2{p.X() + 0.5, 0.5 - p.Y()}
	}
}
