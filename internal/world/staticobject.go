package world

import (
	"fmt"
	"io"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelworld/internal/serialize"
)

// StaticObject снимок объекта, лежащего в блоке, пока блок не активен
type StaticObject struct {
	Type uint8
	Pos  mgl32.Vec3
	Data string
}

// StaticObjectList сохранённые и активные объекты блока
type StaticObjectList struct {
	Stored []StaticObject
	// Active объекты, которые сейчас живут в окружении, по их id
	Active map[uint16]StaticObject
}

// NewStaticObjectList создаёт пустой список
func NewStaticObjectList() *StaticObjectList {
	return &StaticObjectList{Active: make(map[uint16]StaticObject)}
}

// Insert добавляет объект. id=0 - неактивный объект.
func (l *StaticObjectList) Insert(id uint16, obj StaticObject) {
	if id == 0 {
		l.Stored = append(l.Stored, obj)
		return
	}
	l.Active[id] = obj
}

// Remove удаляет активный объект
func (l *StaticObjectList) Remove(id uint16) {
	delete(l.Active, id)
}

// Count всего объектов
func (l *StaticObjectList) Count() int {
	return len(l.Stored) + len(l.Active)
}

// maxStaticObjects ограничение на количество объектов в одном блоке
const maxStaticObjects = 1000

// Serialize пишет версию списка, количество и записи.
// Активные объекты пишутся вместе с сохранёнными.
func (l *StaticObjectList) Serialize(w io.Writer) error {
	all := make([]StaticObject, 0, l.Count())
	all = append(all, l.Stored...)
	for _, id := range sortedIDs(l.Active) {
		all = append(all, l.Active[id])
	}

	if err := serialize.WriteU8(w, 0); err != nil {
		return err
	}
	if err := serialize.WriteU16(w, uint16(len(all))); err != nil {
		return err
	}
	for _, obj := range all {
		if err := serialize.WriteU8(w, obj.Type); err != nil {
			return err
		}
		for _, c := range obj.Pos {
			if err := serialize.WriteF1000(w, c); err != nil {
				return err
			}
		}
		if err := serialize.WriteString(w, obj.Data); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize читает список, все объекты попадают в Stored
func (l *StaticObjectList) Deserialize(r io.Reader) error {
	version, err := serialize.ReadU8(r)
	if err != nil {
		return err
	}
	if version != 0 {
		return fmt.Errorf("%w: версия списка объектов %d", ErrSerialization, version)
	}
	count, err := serialize.ReadU16(r)
	if err != nil {
		return err
	}
	if count > maxStaticObjects {
		return fmt.Errorf("%w: %d объектов в блоке", ErrSerialization, count)
	}

	stored := make([]StaticObject, 0, count)
	for i := 0; i < int(count); i++ {
		var obj StaticObject
		if obj.Type, err = serialize.ReadU8(r); err != nil {
			return err
		}
		for c := range obj.Pos {
			if obj.Pos[c], err = serialize.ReadF1000(r); err != nil {
				return err
			}
		}
		if obj.Data, err = serialize.ReadString(r); err != nil {
			return err
		}
		stored = append(stored, obj)
	}
	l.Stored = stored
	l.Active = make(map[uint16]StaticObject)
	return nil
}

func sortedIDs(m map[uint16]StaticObject) []uint16 {
	ids := make([]uint16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
