package world

import (
	"github.com/annel0/voxelworld/internal/vec"
)

// EventType определяет тип события изменения карты
type EventType uint8

const (
	EventAddNode           EventType = iota // Установка узла
	EventRemoveNode                         // Удаление узла
	EventBlockNodeMetadata                  // Изменились метаданные узла
	EventOther                              // Изменение набора блоков без конкретного узла
)

func (t EventType) String() string {
	switch t {
	case EventAddNode:
		return "add_node"
	case EventRemoveNode:
		return "remove_node"
	case EventBlockNodeMetadata:
		return "node_metadata"
	default:
		return "other"
	}
}

// MapEditEvent событие изменения карты. Освещение и рассылка блоков
// клиентам реагируют именно на него.
type MapEditEvent struct {
	Type EventType
	Pos  vec.Vec3 // Мировая координата узла
	Node Node
	// ModifiedBlocks все блоки, затронутые изменением, включая пересчёт света
	ModifiedBlocks map[vec.Vec3]struct{}
	// AlreadyKnownBy пир, от которого пришло изменение; ему не нужно слать ADDNODE
	AlreadyKnownBy uint16
}

// Clone копия с отдельным набором блоков
func (e MapEditEvent) Clone() MapEditEvent {
	c := e
	c.ModifiedBlocks = make(map[vec.Vec3]struct{}, len(e.ModifiedBlocks))
	for p := range e.ModifiedBlocks {
		c.ModifiedBlocks[p] = struct{}{}
	}
	return c
}

// EventReceiver получатель событий карты.
// Вызывается без удержания блокировки карты.
type EventReceiver interface {
	OnMapEditEvent(ev MapEditEvent)
}

// EventReceiverFunc адаптер функции к EventReceiver
type EventReceiverFunc func(ev MapEditEvent)

func (f EventReceiverFunc) OnMapEditEvent(ev MapEditEvent) { f(ev) }
