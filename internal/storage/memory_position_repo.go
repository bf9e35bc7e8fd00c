package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryPositionRepo позиции игроков в памяти процесса: для одиночной
// игры и тестов. Переживает отключение игрока, но не перезапуск сервера.
type MemoryPositionRepo struct {
	mu        sync.RWMutex
	positions map[string]PlayerPosition
	now       func() time.Time
}

func NewMemoryPositionRepo() *MemoryPositionRepo {
	return &MemoryPositionRepo{
		positions: make(map[string]PlayerPosition),
		now:       time.Now,
	}
}

func (r *MemoryPositionRepo) Save(ctx context.Context, pos PlayerPosition) error {
	return r.BatchSave(ctx, []PlayerPosition{pos})
}

// BatchSave проверяет весь пакет до записи: либо сохраняются все позиции, либо ни одной
func (r *MemoryPositionRepo) BatchSave(ctx context.Context, batch []PlayerPosition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, pos := range batch {
		if err := validatePosition(pos); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stamp := r.now()
	for _, pos := range batch {
		if pos.UpdatedAt.IsZero() {
			pos.UpdatedAt = stamp
		}
		r.positions[pos.Name] = pos
	}
	return nil
}

func (r *MemoryPositionRepo) Load(ctx context.Context, name string) (PlayerPosition, bool, error) {
	if err := ctx.Err(); err != nil {
		return PlayerPosition{}, false, err
	}
	r.mu.RLock()
	pos, found := r.positions[name]
	r.mu.RUnlock()
	return pos, found, nil
}

func (r *MemoryPositionRepo) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.positions[name]; !found {
		return positionNotFound(name)
	}
	delete(r.positions, name)
	return nil
}

// Names игроки с сохранённой позицией, по алфавиту
func (r *MemoryPositionRepo) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.positions))
	for name := range r.positions {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (r *MemoryPositionRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}

func (r *MemoryPositionRepo) Close() error { return nil }
