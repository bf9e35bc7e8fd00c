package world

import (
	"sort"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
)

// Освещение считается волнами в ширину по двум независимым каналам.
// Каждый шаг через грань уменьшает свет на единицу, узлы без
// LightPropagates свет не пропускают. Солнце заходит сверху столбом
// без ослабления, пока узлы пропускают солнечный свет.
//
// Все функции *Locked вызываются под блокировкой карты на запись,
// поэтому проход по нескольким блокам атомарен для остальных потоков.

var (
	dirUp   = vec.New(0, 1, 0)
	dirDown = vec.New(0, -1, 0)
)

type posSet map[vec.Vec3]struct{}

// setStoredLightLocked пишет свет узла и отмечает блок изменённым
func (m *Map) setStoredLightLocked(p vec.Vec3, bank LightBank, level uint8, modified posSet) {
	bp := BlockPosOf(p)
	b := m.loadedBlockLocked(bp)
	if b == nil {
		return
	}
	i := localIndex(LocalPosOf(p))
	n := b.data[i]
	n.SetLight(bank, level, m.reg)
	if n == b.data[i] {
		return
	}
	b.data[i] = n
	b.RaiseModified(ModWriteNeeded)
	modified[bp] = struct{}{}
}

// unspreadLightLocked гасит свет, пришедший из seeds (позиция -> старый
// уровень). Соседи, светящиеся не меньше погашенного, имеют другой
// источник и попадают в sources для повторного распространения.
func (m *Map) unspreadLightLocked(bank LightBank, seeds map[vec.Vec3]uint8, sources, modified posSet) {
	type item struct {
		p     vec.Vec3
		light uint8
	}
	queue := make([]item, 0, len(seeds))
	for p, l := range seeds {
		queue = append(queue, item{p, l})
	}

	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		for _, d := range vec.FaceDirs {
			q := it.p.Add(d)
			n := m.getNodeLocked(q)
			if n.IsIgnore() {
				continue
			}
			ql := n.StoredLight(bank, m.reg)
			if ql != 0 && ql < it.light {
				m.setStoredLightLocked(q, bank, 0, modified)
				queue = append(queue, item{q, ql})
				if m.reg.LightSource(n.Content) > 0 {
					sources[q] = struct{}{}
				}
			} else if ql >= it.light || m.reg.LightSource(n.Content) > 0 {
				sources[q] = struct{}{}
			}
		}
	}
}

// spreadLightLocked распространяет свет от sources, пока он растёт
func (m *Map) spreadLightLocked(bank LightBank, sources, modified posSet) {
	queue := make([]vec.Vec3, 0, len(sources))
	for p := range sources {
		queue = append(queue, p)
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		n := m.getNodeLocked(p)
		if n.IsIgnore() {
			continue
		}
		l := n.Light(bank, m.reg)
		if l <= 1 {
			continue
		}
		next := l - 1

		for _, d := range vec.FaceDirs {
			q := p.Add(d)
			qn := m.getNodeLocked(q)
			if qn.IsIgnore() || !m.reg.Lookup(qn.Content).LightPropagates {
				continue
			}
			if qn.StoredLight(bank, m.reg) >= next {
				continue
			}
			m.setStoredLightLocked(q, bank, next, modified)
			queue = append(queue, q)
		}
	}
}

// sunColumnLocked заливает солнцем столб вниз от p, пока узлы пропускают солнце
func (m *Map) sunColumnLocked(p vec.Vec3, sources, modified posSet) {
	for q := p; ; q = q.Add(dirDown) {
		n := m.getNodeLocked(q)
		if n.IsIgnore() || !m.reg.Lookup(n.Content).SunlightPropagates {
			return
		}
		if n.StoredLight(LightDay, m.reg) == content.LightSun && q != p {
			return
		}
		m.setStoredLightLocked(q, LightDay, content.LightSun, modified)
		sources[q] = struct{}{}
	}
}

// receivesSunLocked получает ли узел p солнце сверху
func (m *Map) receivesSunLocked(p vec.Vec3) bool {
	above := p.Add(dirUp)
	ab := m.loadedBlockLocked(BlockPosOf(above))
	if ab == nil {
		own := m.loadedBlockLocked(BlockPosOf(p))
		return own != nil && !own.IsUnderground()
	}
	an := ab.GetNodeNoEx(LocalPosOf(above))
	return m.reg.Lookup(an.Content).SunlightPropagates &&
		an.StoredLight(LightDay, m.reg) == content.LightSun
}

// replaceNodeLocked ставит узел n вместо old и чинит свет вокруг
func (m *Map) replaceNodeLocked(p vec.Vec3, old, n Node, modified posSet) {
	bp := BlockPosOf(p)
	b := m.loadedBlockLocked(bp)
	if b == nil {
		return
	}

	var oldLight [2]uint8
	for _, bank := range Banks {
		oldLight[bank] = old.Light(bank, m.reg)
	}

	b.data[localIndex(LocalPosOf(p))] = n
	b.RaiseModified(ModWriteNeeded)
	modified[bp] = struct{}{}

	f := m.reg.Lookup(n.Content)
	for _, bank := range Banks {
		seeds := make(map[vec.Vec3]uint8)
		sources := make(posSet)

		if oldLight[bank] > 0 {
			seeds[p] = oldLight[bank]
		}
		m.setStoredLightLocked(p, bank, 0, modified)

		// Новый узел перекрыл солнце - столб под ним теряет его
		if bank == LightDay && !f.SunlightPropagates {
			for q := p.Add(dirDown); ; q = q.Add(dirDown) {
				qn := m.getNodeLocked(q)
				if qn.IsIgnore() || qn.StoredLight(LightDay, m.reg) != content.LightSun {
					break
				}
				seeds[q] = content.LightSun
				m.setStoredLightLocked(q, LightDay, 0, modified)
			}
		}

		m.unspreadLightLocked(bank, seeds, sources, modified)

		if f.LightPropagates || f.LightSource > 0 {
			for _, d := range vec.FaceDirs {
				sources[p.Add(d)] = struct{}{}
			}
		}
		if f.LightSource > 0 {
			m.setStoredLightLocked(p, bank, f.LightSource, modified)
			sources[p] = struct{}{}
		}
		if bank == LightDay && f.SunlightPropagates && m.receivesSunLocked(p) {
			m.sunColumnLocked(p, sources, modified)
		}

		m.spreadLightLocked(bank, sources, modified)
	}

	b.UpdateDayNightDiff(m.reg)
}

// updateLightingLocked пересчитывает свет блоков целиком, с учётом
// света, приходящего из соседних загруженных блоков
func (m *Map) updateLightingLocked(blocks posSet, modified posSet) {
	// Сверху вниз, чтобы солнце верхних блоков было готово для нижних
	order := make([]vec.Vec3, 0, len(blocks))
	for bp := range blocks {
		if m.loadedBlockLocked(bp) != nil {
			order = append(order, bp)
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Y != order[j].Y {
			return order[i].Y > order[j].Y
		}
		if order[i].X != order[j].X {
			return order[i].X < order[j].X
		}
		return order[i].Z < order[j].Z
	})

	for _, bank := range Banks {
		seeds := make(map[vec.Vec3]uint8)
		sources := make(posSet)

		for _, bp := range order {
			b := m.blocks[bp]
			origin := b.Origin()
			for i := range b.data {
				l := b.data[i].StoredLight(bank, m.reg)
				if l == 0 {
					continue
				}
				seeds[origin.Add(UnpackLocal(uint16(i)))] = l
				b.data[i].SetLight(bank, 0, m.reg)
				modified[bp] = struct{}{}
			}
		}
		m.unspreadLightLocked(bank, seeds, sources, modified)
		// Источники внутри пересчитываемых блоков добавятся ниже
		for p := range sources {
			if _, inside := blocks[BlockPosOf(p)]; inside {
				delete(sources, p)
			}
		}

		for _, bp := range order {
			b := m.blocks[bp]
			if bank == LightDay {
				m.propagateSunlightLocked(b, sources, modified)
			}
			m.collectBlockSourcesLocked(b, bank, sources, modified)
		}

		m.spreadLightLocked(bank, sources, modified)
	}

	for _, bp := range order {
		b := m.blocks[bp]
		b.lightingExpired = false
		b.UpdateDayNightDiff(m.reg)
		b.RaiseModified(ModWriteNeeded)
		modified[bp] = struct{}{}
	}
}

// propagateSunlightLocked заливает солнцем столбы блока и продолжает
// сквозные столбы в загруженные блоки ниже
func (m *Map) propagateSunlightLocked(b *Block, sources, modified posSet) {
	through := b.PropagateSunlight(m.reg, sources)
	b.RaiseModified(ModWriteNeeded)
	modified[b.pos] = struct{}{}
	for _, p := range through {
		m.sunColumnLocked(p, sources, modified)
	}
}

// PropagateSunlight заливает солнцем столбы блока, открытые сверху.
// Столб открыт, если узел над ним освещён солнцем, или если блок
// сверху не загружен, а сам блок не подземный. Освещённые узлы
// попадают в sources. Возвращает мировые координаты узлов под блоком,
// куда столбы выходят насквозь.
func (b *Block) PropagateSunlight(reg *content.Registry, sources map[vec.Vec3]struct{}) []vec.Vec3 {
	if b.data == nil {
		return nil
	}
	origin := b.Origin()
	var through []vec.Vec3

	for z := 0; z < BlockSize; z++ {
		for x := 0; x < BlockSize; x++ {
			above := b.GetNodeParent(vec.New(x, BlockSize, z))
			lit := !b.isUnderground
			if !above.IsIgnore() {
				lit = reg.Lookup(above.Content).SunlightPropagates &&
					above.StoredLight(LightDay, reg) == content.LightSun
			}
			if !lit {
				continue
			}

			y := BlockSize - 1
			for ; y >= 0; y-- {
				i := localIndex(vec.New(x, y, z))
				if !reg.Lookup(b.data[i].Content).SunlightPropagates {
					break
				}
				b.data[i].SetLight(LightDay, content.LightSun, reg)
				if sources != nil {
					sources[origin.Add(vec.New(x, y, z))] = struct{}{}
				}
			}
			if y < 0 {
				through = append(through, origin.Add(vec.New(x, -1, z)))
			}
		}
	}
	return through
}

// collectBlockSourcesLocked источники внутри блока и свет соседей на его границах
func (m *Map) collectBlockSourcesLocked(b *Block, bank LightBank, sources, modified posSet) {
	origin := b.Origin()
	for i, n := range b.data {
		// Свет узла: максимум из собственного источника и уже пришедшего
		// (например, солнца); источник ставится, только если поднимает его
		src := m.reg.LightSource(n.Content)
		if src == 0 || src <= n.StoredLight(bank, m.reg) {
			continue
		}
		p := origin.Add(UnpackLocal(uint16(i)))
		m.setStoredLightLocked(p, bank, src, modified)
		sources[p] = struct{}{}
	}

	for a := 0; a < BlockSize; a++ {
		for c := 0; c < BlockSize; c++ {
			border := [6]vec.Vec3{
				{X: a, Y: -1, Z: c},
				{X: a, Y: BlockSize, Z: c},
				{X: -1, Y: a, Z: c},
				{X: BlockSize, Y: a, Z: c},
				{X: a, Y: c, Z: -1},
				{X: a, Y: c, Z: BlockSize},
			}
			for _, l := range border {
				p := origin.Add(l)
				n := m.getNodeLocked(p)
				if n.IsIgnore() || n.Light(bank, m.reg) == 0 {
					continue
				}
				sources[p] = struct{}{}
			}
		}
	}
}

// UpdateLighting пересчитывает свет указанных блоков.
// Возвращает все блоки, в которых изменился хоть один узел.
func (m *Map) UpdateLighting(blocks []vec.Vec3) map[vec.Vec3]struct{} {
	set := make(posSet, len(blocks))
	for _, bp := range blocks {
		set[bp] = struct{}{}
	}
	modified := make(posSet)

	m.mu.Lock()
	m.updateLightingLocked(set, modified)
	m.mu.Unlock()

	if len(modified) > 0 {
		m.dispatchEvent(MapEditEvent{Type: EventOther, ModifiedBlocks: modified})
	}
	return modified
}

// UpdateExpiredLighting пересчитывает свет всех блоков с флагом
// LightingExpired
func (m *Map) UpdateExpiredLighting() map[vec.Vec3]struct{} {
	var expired []vec.Vec3
	m.mu.RLock()
	for bp, b := range m.blocks {
		if !b.IsDummy() && b.LightingExpired() {
			expired = append(expired, bp)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return nil
	}
	return m.UpdateLighting(expired)
}
