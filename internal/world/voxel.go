package world

import (
	"fmt"

	"github.com/annel0/voxelworld/internal/vec"
)

// VoxelArea прямоугольная область, оба угла включительно
type VoxelArea struct {
	MinEdge vec.Vec3
	MaxEdge vec.Vec3
}

// NewVoxelArea область между двумя углами в любом порядке
func NewVoxelArea(a, b vec.Vec3) VoxelArea {
	return VoxelArea{MinEdge: a.Min(b), MaxEdge: a.Max(b)}
}

// Empty область без единого узла
func (a VoxelArea) Empty() bool {
	return a.MaxEdge.X < a.MinEdge.X || a.MaxEdge.Y < a.MinEdge.Y || a.MaxEdge.Z < a.MinEdge.Z
}

// Extent размеры по осям
func (a VoxelArea) Extent() vec.Vec3 {
	if a.Empty() {
		return vec.Zero
	}
	return a.MaxEdge.Sub(a.MinEdge).Add(vec.New(1, 1, 1))
}

// Volume количество узлов
func (a VoxelArea) Volume() int {
	e := a.Extent()
	return e.X * e.Y * e.Z
}

// Contains лежит ли точка в области
func (a VoxelArea) Contains(p vec.Vec3) bool {
	return !a.Empty() &&
		p.X >= a.MinEdge.X && p.X <= a.MaxEdge.X &&
		p.Y >= a.MinEdge.Y && p.Y <= a.MaxEdge.Y &&
		p.Z >= a.MinEdge.Z && p.Z <= a.MaxEdge.Z
}

// ContainsArea целиком ли o внутри области
func (a VoxelArea) ContainsArea(o VoxelArea) bool {
	if o.Empty() {
		return true
	}
	return a.Contains(o.MinEdge) && a.Contains(o.MaxEdge)
}

// Union наименьшая область, содержащая обе
func (a VoxelArea) Union(o VoxelArea) VoxelArea {
	if a.Empty() {
		return o
	}
	if o.Empty() {
		return a
	}
	return VoxelArea{MinEdge: a.MinEdge.Min(o.MinEdge), MaxEdge: a.MaxEdge.Max(o.MaxEdge)}
}

// AddArea расширяет область до o
func (a VoxelArea) AddArea(o VoxelArea) VoxelArea {
	return a.Union(o)
}

// AddPoint расширяет область до точки
func (a VoxelArea) AddPoint(p vec.Vec3) VoxelArea {
	return a.AddArea(VoxelArea{MinEdge: p, MaxEdge: p})
}

// Pad расширяет область на d во все стороны
func (a VoxelArea) Pad(d vec.Vec3) VoxelArea {
	return VoxelArea{MinEdge: a.MinEdge.Sub(d), MaxEdge: a.MaxEdge.Add(d)}
}

// Index индекс точки в плоском массиве области, x меняется быстрее всех
func (a VoxelArea) Index(p vec.Vec3) int {
	e := a.Extent()
	return (p.Z-a.MinEdge.Z)*e.Y*e.X + (p.Y-a.MinEdge.Y)*e.X + (p.X - a.MinEdge.X)
}

func (a VoxelArea) String() string {
	return fmt.Sprintf("%s-%s", a.MinEdge, a.MaxEdge)
}

// BlockArea область узлов блока
func BlockArea(blockPos vec.Vec3) VoxelArea {
	o := BlockOrigin(blockPos)
	return VoxelArea{MinEdge: o, MaxEdge: o.Add(vec.New(BlockSize-1, BlockSize-1, BlockSize-1))}
}

// Флаги ячеек манипулятора
const (
	VoxelFlagNotLoaded uint8 = 0x01
)

// VoxelManipulator временный буфер узлов по мировым координатам.
// Принадлежит операции, которая его создала.
type VoxelManipulator struct {
	Area  VoxelArea
	Data  []Node
	Flags []uint8
}

// NewVoxelManipulator пустой буфер
func NewVoxelManipulator() *VoxelManipulator {
	return &VoxelManipulator{Area: VoxelArea{MinEdge: vec.New(1, 1, 1)}}
}

// Clear освобождает данные
func (vm *VoxelManipulator) Clear() {
	vm.Area = VoxelArea{MinEdge: vec.New(1, 1, 1)}
	vm.Data = nil
	vm.Flags = nil
}

// AddArea расширяет буфер, новые ячейки помечаются как незагруженные
func (vm *VoxelManipulator) AddArea(a VoxelArea) {
	if a.Empty() || vm.Area.ContainsArea(a) {
		return
	}
	newArea := vm.Area.Union(a)
	vol := newArea.Volume()
	data := make([]Node, vol)
	flags := make([]uint8, vol)
	for i := range data {
		data[i] = IgnoreNode
		flags[i] = VoxelFlagNotLoaded
	}

	if !vm.Area.Empty() {
		old := vm.Area
		for z := old.MinEdge.Z; z <= old.MaxEdge.Z; z++ {
			for y := old.MinEdge.Y; y <= old.MaxEdge.Y; y++ {
				src := old.Index(vec.New(old.MinEdge.X, y, z))
				dst := newArea.Index(vec.New(old.MinEdge.X, y, z))
				n := old.Extent().X
				copy(data[dst:dst+n], vm.Data[src:src+n])
				copy(flags[dst:dst+n], vm.Flags[src:src+n])
			}
		}
	}

	vm.Area = newArea
	vm.Data = data
	vm.Flags = flags
}

// Exists загружена ли ячейка
func (vm *VoxelManipulator) Exists(p vec.Vec3) bool {
	return vm.Area.Contains(p) && vm.Flags[vm.Area.Index(p)]&VoxelFlagNotLoaded == 0
}

// GetNode строгое чтение
func (vm *VoxelManipulator) GetNode(p vec.Vec3) (Node, error) {
	if !vm.Exists(p) {
		return IgnoreNode, fmt.Errorf("%w: %s", ErrInvalidPosition, p)
	}
	return vm.Data[vm.Area.Index(p)], nil
}

// GetNodeNoEx чтение без ошибок, вне загруженного возвращает ignore
func (vm *VoxelManipulator) GetNodeNoEx(p vec.Vec3) Node {
	if !vm.Exists(p) {
		return IgnoreNode
	}
	return vm.Data[vm.Area.Index(p)]
}

// SetNode пишет узел, при необходимости расширяя буфер
func (vm *VoxelManipulator) SetNode(p vec.Vec3, n Node) {
	vm.AddArea(VoxelArea{MinEdge: p, MaxEdge: p})
	i := vm.Area.Index(p)
	vm.Data[i] = n
	vm.Flags[i] &^= VoxelFlagNotLoaded
}

// CopyFromBlock копирует узлы блока в буфер. Заглушки пропускаются.
func (vm *VoxelManipulator) CopyFromBlock(b *Block) {
	if b.IsDummy() {
		return
	}
	area := BlockArea(b.Pos())
	vm.AddArea(area)
	o := area.MinEdge
	for z := 0; z < BlockSize; z++ {
		for y := 0; y < BlockSize; y++ {
			dst := vm.Area.Index(vec.New(o.X, o.Y+y, o.Z+z))
			src := localIndex(vec.New(0, y, z))
			copy(vm.Data[dst:dst+BlockSize], b.data[src:src+BlockSize])
			for x := 0; x < BlockSize; x++ {
				vm.Flags[dst+x] &^= VoxelFlagNotLoaded
			}
		}
	}
}

// CopyToBlock записывает загруженные ячейки буфера обратно в блок.
// Возвращает true, если хоть один узел изменился.
func (vm *VoxelManipulator) CopyToBlock(b *Block) bool {
	if b.IsDummy() {
		return false
	}
	changed := false
	o := b.Origin()
	for z := 0; z < BlockSize; z++ {
		for y := 0; y < BlockSize; y++ {
			for x := 0; x < BlockSize; x++ {
				p := vec.New(o.X+x, o.Y+y, o.Z+z)
				if !vm.Exists(p) {
					continue
				}
				i := localIndex(vec.New(x, y, z))
				n := vm.Data[vm.Area.Index(p)]
				if b.data[i] != n {
					b.data[i] = n
					changed = true
				}
			}
		}
	}
	if changed {
		b.RaiseModified(ModWriteNeeded)
	}
	return changed
}
