package content

import (
	"errors"
	"fmt"
)

var (
	// ErrFrozen таблица уже отдана в работу и больше не меняется
	ErrFrozen = errors.New("реестр контента заморожен")
	// ErrReserved попытка переопределить ignore или air
	ErrReserved = errors.New("зарезервированный идентификатор контента")
)

// Registry таблица свойств на все 256 идентификаторов.
// Заполняется при старте, затем Freeze и только чтение без блокировок.
type Registry struct {
	features   [256]ContentFeatures
	registered [256]bool
	frozen     bool
}

// NewRegistry создаёт таблицу, где все идентификаторы имеют безопасные
// свойства по умолчанию, а Ignore и Air - свои зарезервированные
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.features {
		r.features[i] = unknownFeatures()
	}
	r.features[Ignore] = ignoreFeatures()
	r.features[Air] = airFeatures()
	r.registered[Ignore] = true
	r.registered[Air] = true
	return r
}

// Register записывает свойства для id. Повторный вызов заменяет запись.
func (r *Registry) Register(id uint8, f ContentFeatures) error {
	if r.frozen {
		return fmt.Errorf("%w: id %d", ErrFrozen, id)
	}
	if id == Ignore || id == Air {
		return fmt.Errorf("%w: %d", ErrReserved, id)
	}
	r.features[id] = f
	r.registered[id] = true
	return nil
}

// Freeze запрещает дальнейшую регистрацию
func (r *Registry) Freeze() {
	r.frozen = true
}

// Frozen заморожена ли таблица
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Lookup возвращает свойства для любого id. Результат менять нельзя.
func (r *Registry) Lookup(id uint8) *ContentFeatures {
	return &r.features[id]
}

// Registered явно ли зарегистрирован id
func (r *Registry) Registered(id uint8) bool {
	return r.registered[id]
}

// ByName ищет идентификатор по имени
func (r *Registry) ByName(name string) (uint8, bool) {
	for i := range r.features {
		if r.registered[i] && r.features[i].Name == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// LightSource собственный свет узла
func (r *Registry) LightSource(id uint8) uint8 {
	return r.features[id].LightSource
}
