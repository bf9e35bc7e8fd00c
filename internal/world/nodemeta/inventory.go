package nodemeta

import (
	"fmt"
	"io"

	"github.com/annel0/voxelworld/internal/serialize"
)

// MaxStack максимальный размер стопки предметов в одной ячейке
const MaxStack = 99

// ItemStack стопка одинаковых предметов
type ItemStack struct {
	Name  string
	Count uint16
}

// Empty возвращает true для пустой ячейки
func (s ItemStack) Empty() bool {
	return s.Name == "" || s.Count == 0
}

// InventoryList именованный список ячеек фиксированного размера
type InventoryList struct {
	Name  string
	Items []ItemStack
}

// NewInventoryList создаёт пустой список на size ячеек
func NewInventoryList(name string, size int) *InventoryList {
	return &InventoryList{Name: name, Items: make([]ItemStack, size)}
}

// Size количество ячеек
func (l *InventoryList) Size() int { return len(l.Items) }

// UsedSlots количество занятых ячеек
func (l *InventoryList) UsedSlots() int {
	n := 0
	for _, it := range l.Items {
		if !it.Empty() {
			n++
		}
	}
	return n
}

// GetItem возвращает содержимое ячейки
func (l *InventoryList) GetItem(i int) ItemStack {
	if i < 0 || i >= len(l.Items) {
		return ItemStack{}
	}
	return l.Items[i]
}

// RoomFor проверяет, поместится ли стопка целиком
func (l *InventoryList) RoomFor(s ItemStack) bool {
	need := int(s.Count)
	for _, it := range l.Items {
		switch {
		case it.Empty():
			need -= MaxStack
		case it.Name == s.Name:
			need -= MaxStack - int(it.Count)
		}
		if need <= 0 {
			return true
		}
	}
	return need <= 0
}

// AddItem кладёт стопку в список и возвращает то, что не поместилось
func (l *InventoryList) AddItem(s ItemStack) ItemStack {
	// Сначала докладываем в существующие стопки
	for i := range l.Items {
		if s.Count == 0 {
			break
		}
		it := &l.Items[i]
		if it.Empty() || it.Name != s.Name || it.Count >= MaxStack {
			continue
		}
		n := min(MaxStack-it.Count, s.Count)
		it.Count += n
		s.Count -= n
	}
	for i := range l.Items {
		if s.Count == 0 {
			break
		}
		it := &l.Items[i]
		if !it.Empty() {
			continue
		}
		n := min(uint16(MaxStack), s.Count)
		*it = ItemStack{Name: s.Name, Count: n}
		s.Count -= n
	}
	if s.Count == 0 {
		return ItemStack{}
	}
	return s
}

// TakeItem забирает до count предметов из ячейки
func (l *InventoryList) TakeItem(i int, count uint16) ItemStack {
	if i < 0 || i >= len(l.Items) || l.Items[i].Empty() {
		return ItemStack{}
	}
	it := &l.Items[i]
	n := min(count, it.Count)
	taken := ItemStack{Name: it.Name, Count: n}
	it.Count -= n
	if it.Count == 0 {
		*it = ItemStack{}
	}
	return taken
}

// Inventory набор именованных списков
type Inventory struct {
	lists []*InventoryList
}

// NewInventory создаёт пустой инвентарь
func NewInventory() *Inventory {
	return &Inventory{}
}

// AddList добавляет или заменяет список
func (inv *Inventory) AddList(name string, size int) *InventoryList {
	l := NewInventoryList(name, size)
	for i, existing := range inv.lists {
		if existing.Name == name {
			inv.lists[i] = l
			return l
		}
	}
	inv.lists = append(inv.lists, l)
	return l
}

// GetList возвращает список по имени или nil
func (inv *Inventory) GetList(name string) *InventoryList {
	for _, l := range inv.lists {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// Clone глубокая копия
func (inv *Inventory) Clone() *Inventory {
	out := &Inventory{lists: make([]*InventoryList, len(inv.lists))}
	for i, l := range inv.lists {
		items := make([]ItemStack, len(l.Items))
		copy(items, l.Items)
		out.lists[i] = &InventoryList{Name: l.Name, Items: items}
	}
	return out
}

// Serialize пишет инвентарь в бинарном виде
func (inv *Inventory) Serialize(w io.Writer) error {
	if err := serialize.WriteU16(w, uint16(len(inv.lists))); err != nil {
		return err
	}
	for _, l := range inv.lists {
		if err := serialize.WriteString(w, l.Name); err != nil {
			return err
		}
		if err := serialize.WriteU16(w, uint16(len(l.Items))); err != nil {
			return err
		}
		for _, it := range l.Items {
			if it.Empty() {
				it = ItemStack{}
			}
			if err := serialize.WriteString(w, it.Name); err != nil {
				return err
			}
			if err := serialize.WriteU16(w, it.Count); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize заменяет содержимое инвентаря прочитанным из r
func (inv *Inventory) Deserialize(r io.Reader) error {
	n, err := serialize.ReadU16(r)
	if err != nil {
		return err
	}
	lists := make([]*InventoryList, 0, n)
	for i := 0; i < int(n); i++ {
		name, err := serialize.ReadString(r)
		if err != nil {
			return err
		}
		size, err := serialize.ReadU16(r)
		if err != nil {
			return err
		}
		if size > 1024 {
			return fmt.Errorf("%w: список %q на %d ячеек", serialize.ErrMalformed, name, size)
		}
		l := NewInventoryList(name, int(size))
		for j := range l.Items {
			itemName, err := serialize.ReadString(r)
			if err != nil {
				return err
			}
			count, err := serialize.ReadU16(r)
			if err != nil {
				return err
			}
			l.Items[j] = ItemStack{Name: itemName, Count: count}
		}
		lists = append(lists, l)
	}
	inv.lists = lists
	return nil
}
