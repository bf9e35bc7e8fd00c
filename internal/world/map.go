package world

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
	"github.com/annel0/voxelworld/internal/world/nodemeta"
)

// BlockStore постоянное хранилище сериализованных блоков
type BlockStore interface {
	// LoadBlock возвращает данные и false, если блока нет
	LoadBlock(ctx context.Context, pos vec.Vec3) ([]byte, bool, error)
	SaveBlock(ctx context.Context, pos vec.Vec3, data []byte) error
	Close() error
}

// Generator внешний генератор ландшафта. Заполняет узлы блока.
type Generator interface {
	Generate(b *Block) error
}

// Map все загруженные блоки мира по координате блока.
//
// Одна общая блокировка защищает и саму карту, и все блоки в ней:
// распространение света и выборка соседей для геометрии должны видеть
// согласованное состояние нескольких блоков сразу. Блокировка никогда
// не удерживается во время обращения к хранилищу.
type Map struct {
	mu     sync.RWMutex
	blocks map[vec.Vec3]*Block

	reg       *content.Registry
	factories *nodemeta.Factories
	store     BlockStore
	log       *logging.Logger

	receiversMu sync.Mutex
	receivers   []EventReceiver
}

// NewMap создаёт пустую карту. store может быть nil - тогда блоки
// живут только в памяти (клиент, тесты).
func NewMap(reg *content.Registry, store BlockStore, log *logging.Logger) *Map {
	if log == nil {
		log = logging.GetWorldLogger()
	}
	return &Map{
		blocks:    make(map[vec.Vec3]*Block),
		reg:       reg,
		factories: nodemeta.DefaultFactories(),
		store:     store,
		log:       log,
	}
}

// Registry таблица контента карты
func (m *Map) Registry() *content.Registry { return m.reg }

// SetFactories заменяет таблицу фабрик метаданных
func (m *Map) SetFactories(f *nodemeta.Factories) { m.factories = f }

// DecodeContext контекст чтения блоков этой карты
func (m *Map) DecodeContext() DecodeContext {
	return DecodeContext{Registry: m.reg, Factories: m.factories, Log: m.log}
}

// AddEventReceiver подписывает получателя на изменения карты
func (m *Map) AddEventReceiver(r EventReceiver) {
	m.receiversMu.Lock()
	defer m.receiversMu.Unlock()
	m.receivers = append(m.receivers, r)
}

// RemoveEventReceiver отписывает получателя
func (m *Map) RemoveEventReceiver(r EventReceiver) {
	m.receiversMu.Lock()
	defer m.receiversMu.Unlock()
	for i, existing := range m.receivers {
		if existing == r {
			m.receivers = append(m.receivers[:i], m.receivers[i+1:]...)
			return
		}
	}
}

// dispatchEvent вызывается без блокировки карты
func (m *Map) dispatchEvent(ev MapEditEvent) {
	m.receiversMu.Lock()
	receivers := make([]EventReceiver, len(m.receivers))
	copy(receivers, m.receivers)
	m.receiversMu.Unlock()

	for _, r := range receivers {
		r.OnMapEditEvent(ev.Clone())
	}
}

// GetBlock загруженный блок с данными. Заглушка считается незагруженной.
func (m *Map) GetBlock(pos vec.Vec3) (*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[pos]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, pos)
	}
	if b.IsDummy() {
		return nil, fmt.Errorf("%w: %s", ErrUnloaded, pos)
	}
	return b, nil
}

// GetBlockNoCreate возвращает существующий блок или ErrBlockNotFound
func (m *Map) GetBlockNoCreate(pos vec.Vec3) (*Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.blocks[pos]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, pos)
}

// GetBlockNoCreateNoEx существующий блок или nil
func (m *Map) GetBlockNoCreateNoEx(pos vec.Vec3) *Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blocks[pos]
}

// GetOrCreateBlock возвращает блок, при отсутствии создаёт заглушку
func (m *Map) GetOrCreateBlock(pos vec.Vec3) *Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(pos)
}

func (m *Map) getOrCreateLocked(pos vec.Vec3) *Block {
	if b, ok := m.blocks[pos]; ok {
		return b
	}
	b := NewBlock(m, pos, true)
	m.blocks[pos] = b
	return b
}

// InsertBlock кладёт готовый блок, заменяя существующий
func (m *Map) InsertBlock(b *Block) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.parent = m
	m.blocks[b.pos] = b
}

// BlockCount количество блоков в карте, включая заглушки
func (m *Map) BlockCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}

// BlockPositions координаты всех блоков
func (m *Map) BlockPositions() []vec.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]vec.Vec3, 0, len(m.blocks))
	for p := range m.blocks {
		out = append(out, p)
	}
	return out
}

// IsBlockReady блок загружен и сгенерирован
func (m *Map) IsBlockReady(pos vec.Vec3) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[pos]
	return ok && !b.IsDummy() && b.Generated()
}

// WithBlock выполняет fn над блоком под блокировкой чтения.
// fn не должна менять блок.
func (m *Map) WithBlock(pos vec.Vec3, fn func(b *Block)) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blocks[pos]
	if !ok {
		return false
	}
	fn(b)
	return true
}

// UpdateBlock выполняет fn над блоком под блокировкой записи
func (m *Map) UpdateBlock(pos vec.Vec3, fn func(b *Block)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[pos]
	if !ok {
		return false
	}
	fn(b)
	return true
}

func (m *Map) loadedBlockLocked(blockPos vec.Vec3) *Block {
	b := m.blocks[blockPos]
	if b == nil || b.IsDummy() {
		return nil
	}
	return b
}

// GetNode строгое чтение узла по мировой координате
func (m *Map) GetNode(p vec.Vec3) (Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := m.loadedBlockLocked(BlockPosOf(p))
	if b == nil {
		return IgnoreNode, fmt.Errorf("%w: %s", ErrInvalidPosition, p)
	}
	return b.GetNodeNoEx(LocalPosOf(p)), nil
}

// GetNodeNoEx чтение узла, вне загруженного мира возвращает ignore
func (m *Map) GetNodeNoEx(p vec.Vec3) Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getNodeLocked(p)
}

func (m *Map) getNodeLocked(p vec.Vec3) Node {
	b := m.loadedBlockLocked(BlockPosOf(p))
	if b == nil {
		return IgnoreNode
	}
	return b.GetNodeNoEx(LocalPosOf(p))
}

// SetNode пишет узел в загруженный блок без пересчёта света.
// Если изменились световые свойства, блок помечается как требующий
// пересчёта освещения. Получатели событий уведомляются.
func (m *Map) SetNode(p vec.Vec3, n Node) error {
	m.mu.Lock()
	bp := BlockPosOf(p)
	b := m.loadedBlockLocked(bp)
	if b == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidPosition, p)
	}
	old := b.GetNodeNoEx(LocalPosOf(p))
	if err := b.SetNode(LocalPosOf(p), n); err != nil {
		m.mu.Unlock()
		return err
	}
	fo, fn := m.reg.Lookup(old.Content), m.reg.Lookup(n.Content)
	if fo.LightPropagates != fn.LightPropagates || fo.LightSource != fn.LightSource ||
		fo.SunlightPropagates != fn.SunlightPropagates {
		b.SetLightingExpired(true)
	}
	m.mu.Unlock()

	typ := EventAddNode
	if m.reg.Lookup(n.Content).AirEquivalent {
		typ = EventRemoveNode
	}
	m.dispatchEvent(MapEditEvent{
		Type:           typ,
		Pos:            p,
		Node:           n,
		ModifiedBlocks: map[vec.Vec3]struct{}{bp: {}},
	})
	return nil
}

// AddNodeAndUpdate ставит узел, пересчитывает свет вокруг него и
// рассылает событие. Возвращает все изменённые блоки.
func (m *Map) AddNodeAndUpdate(p vec.Vec3, n Node, knownBy uint16) (map[vec.Vec3]struct{}, error) {
	modified := make(map[vec.Vec3]struct{})

	m.mu.Lock()
	b := m.loadedBlockLocked(BlockPosOf(p))
	if b == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidPosition, p)
	}
	old := b.GetNodeNoEx(LocalPosOf(p))

	// Свет в самом узле начинается с нуля, его восстановит распространение
	if m.reg.Lookup(n.Content).ParamType == content.ParamLight {
		n.Param1 = 0
	}

	local := LocalPosOf(p)
	b.NodeMeta.Remove(PackLocal(local))
	if proto := m.reg.Lookup(n.Content).InitialMetadata; proto != nil {
		b.NodeMeta.Set(PackLocal(local), proto.Clone())
	}

	m.replaceNodeLocked(p, old, n, modified)
	m.mu.Unlock()

	m.dispatchEvent(MapEditEvent{
		Type:           EventAddNode,
		Pos:            p,
		Node:           n,
		ModifiedBlocks: modified,
		AlreadyKnownBy: knownBy,
	})
	return modified, nil
}

// RemoveNodeAndUpdate заменяет узел воздухом с пересчётом света
func (m *Map) RemoveNodeAndUpdate(p vec.Vec3, knownBy uint16) (map[vec.Vec3]struct{}, error) {
	modified := make(map[vec.Vec3]struct{})

	m.mu.Lock()
	b := m.loadedBlockLocked(BlockPosOf(p))
	if b == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInvalidPosition, p)
	}
	old := b.GetNodeNoEx(LocalPosOf(p))
	b.NodeMeta.Remove(PackLocal(LocalPosOf(p)))
	m.replaceNodeLocked(p, old, AirNode, modified)
	m.mu.Unlock()

	m.dispatchEvent(MapEditEvent{
		Type:           EventRemoveNode,
		Pos:            p,
		Node:           AirNode,
		ModifiedBlocks: modified,
		AlreadyKnownBy: knownBy,
	})
	return modified, nil
}

// GetNodeMetadata метаданные узла или nil
func (m *Map) GetNodeMetadata(p vec.Vec3) nodemeta.NodeMetadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := m.loadedBlockLocked(BlockPosOf(p))
	if b == nil {
		return nil
	}
	return b.GetMeta(LocalPosOf(p))
}

// UpdateNodeMetadata меняет метаданные узла под блокировкой и рассылает событие
func (m *Map) UpdateNodeMetadata(p vec.Vec3, fn func(meta nodemeta.NodeMetadata) bool) error {
	bp := BlockPosOf(p)
	m.mu.Lock()
	b := m.loadedBlockLocked(bp)
	if b == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidPosition, p)
	}
	meta := b.GetMeta(LocalPosOf(p))
	if meta == nil || !fn(meta) {
		m.mu.Unlock()
		return nil
	}
	b.RaiseModified(ModWriteNeeded)
	m.mu.Unlock()

	m.dispatchEvent(MapEditEvent{
		Type:           EventBlockNodeMetadata,
		Pos:            p,
		ModifiedBlocks: map[vec.Vec3]struct{}{bp: {}},
	})
	return nil
}

// StepNodeMetadata продвигает время всех метаданных (печи).
// Блоки с изменениями уходят одним событием.
func (m *Map) StepNodeMetadata(dtime float32) map[vec.Vec3]struct{} {
	changed := make(map[vec.Vec3]struct{})
	m.mu.Lock()
	for pos, b := range m.blocks {
		if b.IsDummy() || b.NodeMeta.Len() == 0 {
			continue
		}
		if b.NodeMeta.Step(dtime) {
			b.RaiseModified(ModWriteNeeded)
			changed[pos] = struct{}{}
		}
	}
	m.mu.Unlock()

	if len(changed) > 0 {
		m.dispatchEvent(MapEditEvent{Type: EventBlockNodeMetadata, ModifiedBlocks: changed})
	}
	return changed
}

// SetTempMod ставит визуальную подмену узла. Возвращает блоки,
// геометрию которых нужно перестроить.
func (m *Map) SetTempMod(p vec.Vec3, mod NodeMod) []vec.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.blocks[BlockPosOf(p)]
	if b == nil || !b.SetTempMod(LocalPosOf(p), mod) {
		return nil
	}
	return m.expireMeshesAroundLocked(p)
}

// ClearTempMod убирает подмену узла
func (m *Map) ClearTempMod(p vec.Vec3) []vec.Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.blocks[BlockPosOf(p)]
	if b == nil || !b.ClearTempMod(LocalPosOf(p)) {
		return nil
	}
	return m.expireMeshesAroundLocked(p)
}

// expireMeshesAroundLocked помечает блок узла и соседние блоки, если
// узел лежит на их границе
func (m *Map) expireMeshesAroundLocked(p vec.Vec3) []vec.Vec3 {
	seen := make(map[vec.Vec3]struct{})
	var out []vec.Vec3
	for _, d := range append([]vec.Vec3{vec.Zero}, vec.FaceDirs[:]...) {
		bp := BlockPosOf(p.Add(d))
		if _, ok := seen[bp]; ok {
			continue
		}
		seen[bp] = struct{}{}
		if b := m.blocks[bp]; b != nil {
			b.SetMeshExpired(true)
			out = append(out, bp)
		}
	}
	return out
}

// InitialEmerge копирует область в новый манипулятор одним захватом
// блокировки. Ячейки незагруженных блоков остаются помеченными.
func (m *Map) InitialEmerge(area VoxelArea) *VoxelManipulator {
	vm := NewVoxelManipulator()
	vm.AddArea(area)

	minB := BlockPosOf(area.MinEdge)
	maxB := BlockPosOf(area.MaxEdge)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for z := minB.Z; z <= maxB.Z; z++ {
		for y := minB.Y; y <= maxB.Y; y++ {
			for x := minB.X; x <= maxB.X; x++ {
				if b := m.loadedBlockLocked(vec.New(x, y, z)); b != nil {
					vm.CopyFromBlock(b)
				}
			}
		}
	}
	return vm
}

// InitialEmergeBlocks копирует перечисленные блоки в новый манипулятор
// одним захватом блокировки. Область охватывает все блоки из списка.
func (m *Map) InitialEmergeBlocks(positions []vec.Vec3) *VoxelManipulator {
	vm := NewVoxelManipulator()
	area := VoxelArea{MinEdge: vec.New(1, 1, 1)}
	for _, bp := range positions {
		area = area.AddArea(BlockArea(bp))
	}
	vm.AddArea(area)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, bp := range positions {
		if b := m.loadedBlockLocked(bp); b != nil {
			vm.CopyFromBlock(b)
		}
	}
	return vm
}

// TempModsAround подмены узлов всех перечисленных блоков
func (m *Map) TempModsAround(positions []vec.Vec3) map[vec.Vec3]NodeMod {
	out := make(map[vec.Vec3]NodeMod)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, bp := range positions {
		if b := m.blocks[bp]; b != nil {
			for p, mod := range b.TempMods() {
				out[p] = mod
			}
		}
	}
	return out
}

// BlitBack записывает манипулятор в загруженные блоки
func (m *Map) BlitBack(vm *VoxelManipulator) map[vec.Vec3]struct{} {
	modified := make(map[vec.Vec3]struct{})
	if vm.Area.Empty() {
		return modified
	}
	minB := BlockPosOf(vm.Area.MinEdge)
	maxB := BlockPosOf(vm.Area.MaxEdge)

	m.mu.Lock()
	defer m.mu.Unlock()
	for z := minB.Z; z <= maxB.Z; z++ {
		for y := minB.Y; y <= maxB.Y; y++ {
			for x := minB.X; x <= maxB.X; x++ {
				bp := vec.New(x, y, z)
				if b := m.loadedBlockLocked(bp); b != nil && vm.CopyToBlock(b) {
					modified[bp] = struct{}{}
				}
			}
		}
	}
	return modified
}

// TimerUpdate увеличивает таймеры простоя и выгружает чистые блоки,
// простоявшие дольше timeout. Изменённые блоки сначала записываются,
// а выгружаются на одном из следующих проходов.
func (m *Map) TimerUpdate(ctx context.Context, dtime, timeout float32) (unloaded []vec.Vec3, err error) {
	var toSave []vec.Vec3

	m.mu.Lock()
	for pos, b := range m.blocks {
		b.IncrementUsageTimer(dtime)
		if b.UsageTimer() <= timeout {
			continue
		}
		if b.Modified() == ModClean || m.store == nil {
			delete(m.blocks, pos)
			unloaded = append(unloaded, pos)
			continue
		}
		toSave = append(toSave, pos)
	}
	m.mu.Unlock()

	if len(toSave) > 0 {
		_, err = m.saveBlocks(ctx, toSave)
	}
	if len(unloaded) > 0 {
		m.log.Debug("Выгружено блоков: %d", len(unloaded))
	}
	return unloaded, err
}

// Save записывает все блоки с состоянием не ниже level.
// Ошибки записи возвращаются все вместе, проход не прерывается.
func (m *Map) Save(ctx context.Context, level ModifiedState) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	if level == ModClean {
		level = ModWriteAtUnload
	}
	var positions []vec.Vec3
	m.mu.RLock()
	for pos, b := range m.blocks {
		if !b.IsDummy() && b.Modified() >= level {
			positions = append(positions, pos)
		}
	}
	m.mu.RUnlock()

	return m.saveBlocks(ctx, positions)
}

type pendingWrite struct {
	pos     vec.Vec3
	data    []byte
	counter uint64
}

func (m *Map) saveBlocks(ctx context.Context, positions []vec.Vec3) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	// Сериализуем под блокировкой, пишем без неё
	writes := make([]pendingWrite, 0, len(positions))
	var errs []error
	m.mu.RLock()
	for _, pos := range positions {
		b := m.loadedBlockLocked(pos)
		if b == nil {
			continue
		}
		data, err := b.SerializeForDisk()
		if err != nil {
			errs = append(errs, fmt.Errorf("блок %s: %w", pos, err))
			continue
		}
		writes = append(writes, pendingWrite{pos: pos, data: data, counter: b.changeCounter})
	}
	m.mu.RUnlock()

	saved := make([]pendingWrite, 0, len(writes))
	for _, w := range writes {
		if err := m.store.SaveBlock(ctx, w.pos, w.data); err != nil {
			m.log.Error("Ошибка записи блока %s: %v", w.pos, err)
			errs = append(errs, fmt.Errorf("блок %s: %w", w.pos, err))
			continue
		}
		saved = append(saved, w)
	}

	// Сбрасываем состояние, только если блок не менялся во время записи
	m.mu.Lock()
	for _, w := range saved {
		if b := m.blocks[w.pos]; b != nil && b.changeCounter == w.counter {
			b.ResetModified()
		}
	}
	m.mu.Unlock()

	return len(saved), errors.Join(errs...)
}

// LoadBlock читает блок из хранилища и кладёт его в карту.
// Уже загруженный блок не заменяется.
func (m *Map) LoadBlock(ctx context.Context, pos vec.Vec3) (*Block, error) {
	if m.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, pos)
	}
	data, ok, err := m.store.LoadBlock(ctx, pos)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения блока %s: %w", pos, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlockNotFound, pos)
	}

	b := NewBlock(m, pos, true)
	if err := b.DeserializeFromDisk(data, m.DecodeContext()); err != nil {
		return nil, err
	}
	b.ResetModified()

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.loadedBlockLocked(pos); existing != nil {
		return existing, nil
	}
	if existing := m.blocks[pos]; existing != nil {
		// Заглушка могла накопить подмены клиента, переносим их
		b.tempMods = existing.tempMods
	}
	m.blocks[pos] = b
	return b, nil
}

// EmergeBlock загружает блок или, если allowGenerate, генерирует его.
// Блок, который не удалось прочитать, считается отсутствующим.
func (m *Map) EmergeBlock(ctx context.Context, pos vec.Vec3, gen Generator, allowGenerate bool) (*Block, map[vec.Vec3]struct{}, error) {
	modified := make(map[vec.Vec3]struct{})

	m.mu.RLock()
	if b := m.loadedBlockLocked(pos); b != nil && b.Generated() {
		m.mu.RUnlock()
		return b, modified, nil
	}
	m.mu.RUnlock()

	b, err := m.LoadBlock(ctx, pos)
	switch {
	case err == nil && b.Generated():
		return b, modified, nil
	case err == nil:
	case errors.Is(err, ErrBlockNotFound):
	case errors.Is(err, ErrUnsupportedVersion), errors.Is(err, ErrSerialization):
		m.log.Warn("Блок %s не прочитан, будет создан заново: %v", pos, err)
	default:
		return nil, nil, err
	}

	if !allowGenerate || gen == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrBlockNotFound, pos)
	}

	fresh := NewBlock(m, pos, false)
	if err := gen.Generate(fresh); err != nil {
		return nil, nil, fmt.Errorf("ошибка генерации блока %s: %w", pos, err)
	}
	fresh.generated = true
	fresh.lightingExpired = true
	fresh.RaiseModified(ModWriteNeeded)

	m.mu.Lock()
	if existing := m.loadedBlockLocked(pos); existing != nil && existing.Generated() {
		m.mu.Unlock()
		return existing, modified, nil
	}
	if existing := m.blocks[pos]; existing != nil {
		fresh.tempMods = existing.tempMods
	}
	m.blocks[pos] = fresh
	modified[pos] = struct{}{}
	m.updateLightingLocked(map[vec.Vec3]struct{}{pos: {}}, modified)
	m.mu.Unlock()

	return fresh, modified, nil
}

// ApplyBlockData заменяет данные блока присланными по сети
func (m *Map) ApplyBlockData(pos vec.Vec3, data []byte) (*Block, error) {
	tmp := NewBlock(m, pos, true)
	if err := tmp.Deserialize(bytes.NewReader(data), m.DecodeContext()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.getOrCreateLocked(pos)
	b.data = tmp.data
	b.isUnderground = tmp.isUnderground
	b.dayNightDiffers = tmp.dayNightDiffers
	b.generated = tmp.generated
	b.lightingExpired = tmp.lightingExpired
	b.NodeMeta = tmp.NodeMeta
	b.StaticObjects = tmp.StaticObjects
	b.ResetUsageTimer()
	b.meshExpired = true
	return b, nil
}

// UnloadAll сохраняет все изменённые блоки и выгружает записанные.
// Блоки, которые не удалось записать, остаются в карте.
func (m *Map) UnloadAll(ctx context.Context) error {
	_, err := m.Save(ctx, ModWriteAtUnload)
	m.mu.Lock()
	defer m.mu.Unlock()
	for pos, b := range m.blocks {
		if m.store == nil || b.IsDummy() || b.Modified() < ModWriteAtUnload {
			delete(m.blocks, pos)
		}
	}
	return err
}

// ResetUsageTimers откладывает выгрузку блоков, которые только что использовались
func (m *Map) ResetUsageTimers(positions ...vec.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pos := range positions {
		if b, ok := m.blocks[pos]; ok {
			b.ResetUsageTimer()
		}
	}
}

// KeepBlocksAround обнуляет таймеры простоя загруженных блоков не дальше
// radius блоков (по каждой оси) от любого из centers. Возвращает их число.
func (m *Map) KeepBlocksAround(centers []vec.Vec3, radius int) int {
	if len(centers) == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := 0
	for pos, b := range m.blocks {
		for _, c := range centers {
			if abs(pos.X-c.X) <= radius && abs(pos.Y-c.Y) <= radius && abs(pos.Z-c.Z) <= radius {
				b.ResetUsageTimer()
				kept++
				break
			}
		}
	}
	return kept
}
