package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// PlayerPosition последняя известная позиция игрока
type PlayerPosition struct {
	Name      string     `json:"name"`
	Position  mgl32.Vec3 `json:"position"`
	Pitch     float32    `json:"pitch"`
	Yaw       float32    `json:"yaw"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PositionRepo определяет интерфейс для сохранения и загрузки позиций игроков.
// Позиции привязаны к имени игрока, так что игрок появляется там, где вышел.
type PositionRepo interface {
	// Save сохраняет позицию игрока в хранилище.
	Save(ctx context.Context, pos PlayerPosition) error

	// Load загружает позицию игрока из хранилища.
	// Возвращает false, если игрок заходит впервые.
	Load(ctx context.Context, name string) (PlayerPosition, bool, error)

	// Delete удаляет сохраненную позицию игрока.
	Delete(ctx context.Context, name string) error

	// BatchSave сохраняет позиции нескольких игроков одновременно (для автосохранения).
	BatchSave(ctx context.Context, positions []PlayerPosition) error

	Close() error
}

// ErrPositionNotFound удаление позиции игрока, которой нет в хранилище
var ErrPositionNotFound = errors.New("позиция игрока не найдена")

func positionNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrPositionNotFound, name)
}

func validatePosition(pos PlayerPosition) error {
	if pos.Name == "" {
		return fmt.Errorf("пустое имя игрока")
	}
	for _, c := range pos.Position {
		if c != c {
			return fmt.Errorf("недействительная позиция игрока %s: %v", pos.Name, pos.Position)
		}
	}
	return nil
}
