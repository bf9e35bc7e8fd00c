// Package storage хранит блоки карты и позиции игроков.
//
// Блоки лежат в виде тех же байт, что пишет world.Block.SerializeForDisk,
// ключ блока - его позиция в блоках. Основной бэкенд badger, для
// переносимых карт есть sqlite и leveldb.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

var (
	// ErrNotReady хранилище уже закрыто
	ErrNotReady = errors.New("хранилище не готово")
	// ErrUnknownBackend неизвестное имя бэкенда
	ErrUnknownBackend = errors.New("неизвестный бэкенд хранилища")
	// ErrBadKey ключ блока не разбирается
	ErrBadKey = errors.New("повреждённый ключ блока")
)

// Backend имя реализации хранилища блоков
type Backend string

const (
	BackendBadger  Backend = "badger"
	BackendSQLite  Backend = "sqlite"
	BackendLevelDB Backend = "leveldb"
)

// Store хранилище блоков карты
type Store interface {
	world.BlockStore
	// ListBlocks перечисляет позиции всех сохранённых блоков
	ListBlocks(ctx context.Context) ([]vec.Vec3, error)
	DeleteBlock(ctx context.Context, pos vec.Vec3) error
}

// Open открывает хранилище выбранного бэкенда в каталоге карты
func Open(backend Backend, mapDir string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch Backend(strings.ToLower(string(backend))) {
	case BackendBadger, "":
		store, err = NewBadgerStore(filepath.Join(mapDir, "blocks"))
	case BackendSQLite:
		store, err = NewSQLiteStore(filepath.Join(mapDir, "map.sqlite"))
	case BackendLevelDB:
		store, err = NewLevelDBStore(filepath.Join(mapDir, "map.ldb"))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

const blockKeyPrefix = "block:"

// blockKey ключ вида block:x:y:z
func blockKey(pos vec.Vec3) []byte {
	return []byte(fmt.Sprintf("%s%d:%d:%d", blockKeyPrefix, pos.X, pos.Y, pos.Z))
}

func parseBlockKey(key []byte) (vec.Vec3, error) {
	var p vec.Vec3
	s := string(key)
	if !strings.HasPrefix(s, blockKeyPrefix) {
		return p, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	if _, err := fmt.Sscanf(s[len(blockKeyPrefix):], "%d:%d:%d", &p.X, &p.Y, &p.Z); err != nil {
		return p, fmt.Errorf("%w: %q: %v", ErrBadKey, s, err)
	}
	return p, nil
}
