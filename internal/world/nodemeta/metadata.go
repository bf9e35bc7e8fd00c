// Package nodemeta хранит произвольные данные, привязанные к отдельному узлу:
// текст таблички, содержимое сундука, состояние печи.
package nodemeta

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/serialize"
)

// Идентификаторы типов метаданных в бинарном формате
const (
	TypeSign    uint16 = 14
	TypeChest   uint16 = 15
	TypeFurnace uint16 = 16
)

// ErrUnknownType для идентификатора типа не зарегистрирована фабрика
var ErrUnknownType = errors.New("неизвестный тип метаданных узла")

// NodeMetadata данные одного узла
type NodeMetadata interface {
	TypeID() uint16
	// SerializeBody пишет тело без заголовка типа
	SerializeBody(w io.Writer) error
	Clone() NodeMetadata
	// InfoText короткая подпись для интерфейса клиента
	InfoText() string
	// Inventory возвращает инвентарь или nil
	Inventory() *Inventory
	// Step продвигает внутреннее время, true если состояние изменилось
	Step(dtime float32) bool
	// NodeRemovalDisabled запрещает копать узел, пока внутри что-то лежит
	NodeRemovalDisabled() bool
}

// Factory восстанавливает метаданные из тела записи
type Factory func(r io.Reader) (NodeMetadata, error)

// Factories таблица фабрик по идентификатору типа.
// Заполняется при старте и дальше только читается.
type Factories struct {
	byType map[uint16]Factory
}

// NewFactories создаёт пустую таблицу
func NewFactories() *Factories {
	return &Factories{byType: make(map[uint16]Factory)}
}

// DefaultFactories таблица со всеми встроенными типами
func DefaultFactories() *Factories {
	f := NewFactories()
	f.Register(TypeSign, deserializeSign)
	f.Register(TypeChest, deserializeChest)
	f.Register(TypeFurnace, deserializeFurnace)
	return f
}

// Register регистрирует фабрику, повторная регистрация заменяет старую
func (f *Factories) Register(typeID uint16, factory Factory) {
	f.byType[typeID] = factory
}

// Create восстанавливает метаданные по типу и телу
func (f *Factories) Create(typeID uint16, body []byte) (NodeMetadata, error) {
	factory, ok := f.byType[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typeID)
	}
	meta, err := factory(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: тип %d: %v", serialize.ErrMalformed, typeID, err)
	}
	return meta, nil
}

// List метаданные узлов одного блока, ключ - упакованная локальная позиция
type List struct {
	data map[uint16]NodeMetadata
}

// NewList создаёт пустой список
func NewList() *List {
	return &List{data: make(map[uint16]NodeMetadata)}
}

func (l *List) Get(p uint16) NodeMetadata { return l.data[p] }
func (l *List) Set(p uint16, m NodeMetadata) {
	if m == nil {
		delete(l.data, p)
		return
	}
	l.data[p] = m
}
func (l *List) Remove(p uint16) { delete(l.data, p) }
func (l *List) Len() int        { return len(l.data) }
func (l *List) Clear()          { l.data = make(map[uint16]NodeMetadata) }

// Positions возвращает занятые позиции по возрастанию
func (l *List) Positions() []uint16 {
	out := make([]uint16, 0, len(l.data))
	for p := range l.data {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Step вызывает Step у всех метаданных, true если хоть одна изменилась
func (l *List) Step(dtime float32) bool {
	changed := false
	for _, m := range l.data {
		if m.Step(dtime) {
			changed = true
		}
	}
	return changed
}

// Serialize пишет количество записей и затем
// (позиция u16, тип u16, тело со строковым префиксом длины) для каждой
func (l *List) Serialize(w io.Writer) error {
	positions := l.Positions()
	if err := serialize.WriteU16(w, uint16(len(positions))); err != nil {
		return err
	}
	var body bytes.Buffer
	for _, p := range positions {
		m := l.data[p]
		body.Reset()
		if err := m.SerializeBody(&body); err != nil {
			return fmt.Errorf("ошибка сериализации метаданных в %d: %w", p, err)
		}
		if err := serialize.WriteU16(w, p); err != nil {
			return err
		}
		if err := serialize.WriteU16(w, m.TypeID()); err != nil {
			return err
		}
		if err := serialize.WriteString(w, body.String()); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize читает список. Записи неизвестного типа и с битым телом
// пропускаются с предупреждением, ошибка возвращается только при обрыве
// самого списка.
func (l *List) Deserialize(r io.Reader, factories *Factories, log *logging.Logger) error {
	l.Clear()

	count, err := serialize.ReadU16(r)
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		p, err := serialize.ReadU16(r)
		if err != nil {
			return err
		}
		typeID, err := serialize.ReadU16(r)
		if err != nil {
			return err
		}
		body, err := serialize.ReadString(r)
		if err != nil {
			return err
		}

		meta, err := factories.Create(typeID, []byte(body))
		if err != nil {
			log.Warn("Метаданные узла %d пропущены: %v", p, err)
			continue
		}
		if _, dup := l.data[p]; dup {
			log.Warn("Повторные метаданные для узла %d, берём последние", p)
		}
		l.data[p] = meta
	}
	return nil
}
