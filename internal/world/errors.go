package world

import (
	"errors"

	"github.com/annel0/voxelworld/internal/serialize"
)

var (
	// ErrOutOfRange локальная координата вне блока, ошибка вызывающего кода
	ErrOutOfRange = errors.New("координата вне блока")
	// ErrUnloaded блок-заглушка без данных
	ErrUnloaded = errors.New("блок не загружен")
	// ErrInvalidPosition в этой позиции нет загруженного блока
	ErrInvalidPosition = errors.New("позиция вне загруженного мира")
	// ErrBlockNotFound блока нет в карте
	ErrBlockNotFound = errors.New("блок не найден")
	// ErrUnsupportedVersion версия формата вне известного диапазона
	ErrUnsupportedVersion = errors.New("неподдерживаемая версия формата")
	// ErrSerialization повреждённые данные блока или метаданных
	ErrSerialization = serialize.ErrMalformed
)
