package world

import (
	"fmt"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
	"github.com/annel0/voxelworld/internal/world/nodemeta"
)

// BlockSize длина ребра блока в узлах
const BlockSize = 16

// BlockVolume количество узлов в блоке
const BlockVolume = BlockSize * BlockSize * BlockSize

// BlockTimestampUndefined блок ещё ни разу не обрабатывался игровым временем
const BlockTimestampUndefined uint32 = 0xffffffff

// ModifiedState насколько срочно блок нужно записать на диск
type ModifiedState uint8

const (
	ModClean         ModifiedState = 0
	ModWriteAtUnload ModifiedState = 2
	ModWriteNeeded   ModifiedState = 4
)

func (s ModifiedState) String() string {
	switch s {
	case ModClean:
		return "clean"
	case ModWriteAtUnload:
		return "write-at-unload"
	case ModWriteNeeded:
		return "write-needed"
	default:
		return fmt.Sprintf("ModifiedState(%d)", uint8(s))
	}
}

// NodeContainer источник узлов по мировым координатам.
// Вызывается, когда блокировка карты уже удерживается.
type NodeContainer interface {
	getNodeLocked(p vec.Vec3) Node
}

// Drawable готовая геометрия блока на клиенте
type Drawable interface {
	VertexCount() int
}

// BlockPosOf координата блока, содержащего узел p
func BlockPosOf(p vec.Vec3) vec.Vec3 {
	return vec.Vec3{
		X: vec.FloorDiv(p.X, BlockSize),
		Y: vec.FloorDiv(p.Y, BlockSize),
		Z: vec.FloorDiv(p.Z, BlockSize),
	}
}

// LocalPosOf координата узла p внутри его блока, всегда в [0, BlockSize)
func LocalPosOf(p vec.Vec3) vec.Vec3 {
	return vec.Vec3{
		X: vec.Mod(p.X, BlockSize),
		Y: vec.Mod(p.Y, BlockSize),
		Z: vec.Mod(p.Z, BlockSize),
	}
}

// BlockOrigin мировая координата узла (0,0,0) блока
func BlockOrigin(blockPos vec.Vec3) vec.Vec3 {
	return blockPos.Scale(BlockSize)
}

// PackLocal упаковывает локальную позицию в индекс z*256 + y*16 + x
func PackLocal(p vec.Vec3) uint16 {
	return uint16(p.Z*BlockSize*BlockSize + p.Y*BlockSize + p.X)
}

// UnpackLocal обратная к PackLocal
func UnpackLocal(i uint16) vec.Vec3 {
	v := int(i)
	return vec.Vec3{
		X: v % BlockSize,
		Y: (v / BlockSize) % BlockSize,
		Z: v / (BlockSize * BlockSize),
	}
}

func validLocal(p vec.Vec3) bool {
	return p.X >= 0 && p.X < BlockSize &&
		p.Y >= 0 && p.Y < BlockSize &&
		p.Z >= 0 && p.Z < BlockSize
}

func localIndex(p vec.Vec3) int {
	return p.Z*BlockSize*BlockSize + p.Y*BlockSize + p.X
}

// Block куб 16x16x16 узлов и его служебное состояние.
// Блок без массива узлов - заглушка (dummy): ещё не загружен и не сгенерирован.
// Потокобезопасность обеспечивает блокировка карты, которой принадлежит блок.
type Block struct {
	pos    vec.Vec3
	parent NodeContainer
	data   []Node

	modified        ModifiedState
	changeCounter   uint64
	isUnderground   bool
	dayNightDiffers bool
	lightingExpired bool
	generated       bool

	timestamp  uint32
	usageTimer float32

	NodeMeta      *nodemeta.List
	StaticObjects *StaticObjectList

	// Только на клиенте
	tempMods    map[uint16]NodeMod
	mesh        Drawable
	meshExpired bool
}

// NewBlock создаёт блок. dummy=true оставляет его без данных.
func NewBlock(parent NodeContainer, pos vec.Vec3, dummy bool) *Block {
	b := &Block{
		pos:             pos,
		parent:          parent,
		lightingExpired: true,
		timestamp:       BlockTimestampUndefined,
		NodeMeta:        nodemeta.NewList(),
		StaticObjects:   NewStaticObjectList(),
		tempMods:        make(map[uint16]NodeMod),
		meshExpired:     true,
	}
	if !dummy {
		b.Reallocate()
	}
	return b
}

// Pos координата блока
func (b *Block) Pos() vec.Vec3 { return b.pos }

// Origin мировая координата первого узла
func (b *Block) Origin() vec.Vec3 { return BlockOrigin(b.pos) }

// Parent контейнер, через который блок видит соседей
func (b *Block) Parent() NodeContainer { return b.parent }

// IsDummy нет данных узлов
func (b *Block) IsDummy() bool { return b.data == nil }

// Reallocate выделяет массив и заполняет его ignore. Содержимое
// после этого неопределено, поэтому блок помечается на запись.
func (b *Block) Reallocate() {
	b.data = make([]Node, BlockVolume)
	for i := range b.data {
		b.data[i] = IgnoreNode
	}
	b.RaiseModified(ModWriteNeeded)
}

// Unallocate превращает блок в заглушку
func (b *Block) Unallocate() {
	b.data = nil
}

// GetNode строгое чтение узла
func (b *Block) GetNode(p vec.Vec3) (Node, error) {
	if !validLocal(p) {
		return IgnoreNode, fmt.Errorf("%w: %s", ErrOutOfRange, p)
	}
	if b.data == nil {
		return IgnoreNode, fmt.Errorf("%w: блок %s", ErrUnloaded, b.pos)
	}
	return b.data[localIndex(p)], nil
}

// GetNodeNoEx чтение без ошибок: вне блока или в заглушке возвращает ignore
func (b *Block) GetNodeNoEx(p vec.Vec3) Node {
	if !validLocal(p) || b.data == nil {
		return IgnoreNode
	}
	return b.data[localIndex(p)]
}

// SetNode записывает узел и поднимает состояние до ModWriteNeeded.
// Освещение не пересчитывается, это отдельный шаг.
func (b *Block) SetNode(p vec.Vec3, n Node) error {
	if !validLocal(p) {
		return fmt.Errorf("%w: %s", ErrOutOfRange, p)
	}
	if b.data == nil {
		return fmt.Errorf("%w: блок %s", ErrUnloaded, b.pos)
	}
	b.data[localIndex(p)] = n
	b.RaiseModified(ModWriteNeeded)
	return nil
}

// SetNodeNoCheck запись без проверки и без изменения состояния записи.
// Используется генератором и загрузкой, вызывающий отвечает за границы.
func (b *Block) SetNodeNoCheck(p vec.Vec3, n Node) {
	b.data[localIndex(p)] = n
}

// GetNodeParent читает узел по локальной координате, которая может
// выходить за блок: тогда узел берётся у родителя
func (b *Block) GetNodeParent(p vec.Vec3) Node {
	if validLocal(p) {
		return b.GetNodeNoEx(p)
	}
	if b.parent == nil {
		return IgnoreNode
	}
	return b.parent.getNodeLocked(b.Origin().Add(p))
}

// Fill заполняет весь блок одним узлом
func (b *Block) Fill(n Node) {
	if b.data == nil {
		b.data = make([]Node, BlockVolume)
	}
	for i := range b.data {
		b.data[i] = n
	}
	b.RaiseModified(ModWriteNeeded)
}

// RaiseModified повышает состояние, понижение игнорируется
func (b *Block) RaiseModified(s ModifiedState) {
	if s != ModClean {
		b.changeCounter++
	}
	if s > b.modified {
		b.modified = s
	}
}

// ResetModified вызывается только после успешной записи
func (b *Block) ResetModified() { b.modified = ModClean }

// Modified текущее состояние записи
func (b *Block) Modified() ModifiedState { return b.modified }

func (b *Block) IsUnderground() bool { return b.isUnderground }

func (b *Block) SetIsUnderground(v bool) {
	b.isUnderground = v
	b.RaiseModified(ModWriteNeeded)
}

func (b *Block) LightingExpired() bool { return b.lightingExpired }

func (b *Block) SetLightingExpired(v bool) {
	b.lightingExpired = v
	b.RaiseModified(ModWriteNeeded)
}

func (b *Block) Generated() bool { return b.generated }

func (b *Block) SetGenerated(v bool) {
	b.generated = v
	b.RaiseModified(ModWriteNeeded)
}

func (b *Block) DayNightDiffers() bool { return b.dayNightDiffers }

// UpdateDayNightDiff пересчитывает флаг различия дневного и ночного света
func (b *Block) UpdateDayNightDiff(reg *content.Registry) {
	if b.data == nil {
		b.dayNightDiffers = false
		return
	}
	differs := false
	for _, n := range b.data {
		if n.Light(LightDay, reg) != n.Light(LightNight, reg) {
			differs = true
			break
		}
	}
	b.dayNightDiffers = differs
}

// Timestamp последнее игровое время, когда блок обрабатывался
func (b *Block) Timestamp() uint32 { return b.timestamp }

// SetTimestamp обновляет время и помечает блок к записи при выгрузке
func (b *Block) SetTimestamp(t uint32) {
	b.timestamp = t
	b.RaiseModified(ModWriteAtUnload)
}

// SetTimestampNoChangedFlag обновляет время без изменения состояния записи
func (b *Block) SetTimestampNoChangedFlag(t uint32) { b.timestamp = t }

// UsageTimer сколько секунд блок не использовался
func (b *Block) UsageTimer() float32 { return b.usageTimer }

func (b *Block) IncrementUsageTimer(dtime float32) { b.usageTimer += dtime }

func (b *Block) ResetUsageTimer() { b.usageTimer = 0 }

// GetMeta метаданные узла или nil
func (b *Block) GetMeta(p vec.Vec3) nodemeta.NodeMetadata {
	if !validLocal(p) {
		return nil
	}
	return b.NodeMeta.Get(PackLocal(p))
}

// SetMeta заменяет метаданные узла, nil удаляет
func (b *Block) SetMeta(p vec.Vec3, m nodemeta.NodeMetadata) error {
	if !validLocal(p) {
		return fmt.Errorf("%w: %s", ErrOutOfRange, p)
	}
	b.NodeMeta.Set(PackLocal(p), m)
	b.RaiseModified(ModWriteNeeded)
	return nil
}

// MeshExpired нужна ли перестройка геометрии
func (b *Block) MeshExpired() bool { return b.meshExpired }

func (b *Block) SetMeshExpired(v bool) { b.meshExpired = v }

// Mesh последняя построенная геометрия, может быть nil
func (b *Block) Mesh() Drawable { return b.mesh }

func (b *Block) SetMesh(m Drawable) {
	b.mesh = m
	b.meshExpired = false
}

// SetTempMod ставит временную подмену узла. true если что-то изменилось.
func (b *Block) SetTempMod(p vec.Vec3, mod NodeMod) bool {
	key := PackLocal(p)
	if old, ok := b.tempMods[key]; ok && old == mod {
		return false
	}
	b.tempMods[key] = mod
	return true
}

// ClearTempMod убирает подмену. true если она была.
func (b *Block) ClearTempMod(p vec.Vec3) bool {
	key := PackLocal(p)
	if _, ok := b.tempMods[key]; !ok {
		return false
	}
	delete(b.tempMods, key)
	return true
}

// ClearTempMods убирает все подмены
func (b *Block) ClearTempMods() bool {
	had := len(b.tempMods) > 0
	b.tempMods = make(map[uint16]NodeMod)
	return had
}

// TempMods копия подмен по мировым координатам
func (b *Block) TempMods() map[vec.Vec3]NodeMod {
	out := make(map[vec.Vec3]NodeMod, len(b.tempMods))
	origin := b.Origin()
	for k, m := range b.tempMods {
		out[origin.Add(UnpackLocal(k))] = m
	}
	return out
}

// GetBlockNodeBounds мировые координаты первого и последнего узла
func (b *Block) GetBlockNodeBounds() (vec.Vec3, vec.Vec3) {
	o := b.Origin()
	return o, o.Add(vec.New(BlockSize-1, BlockSize-1, BlockSize-1))
}

// translateLegacy заменяет устаревшие типы после загрузки
func (b *Block) translateLegacy(reg *content.Registry) {
	for i, n := range b.data {
		f := reg.Lookup(n.Content)
		if f.HasTranslation {
			b.data[i].Content = f.TranslateTo
		}
	}
}
