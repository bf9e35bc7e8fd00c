package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/annel0/voxelworld/internal/vec"
)

// LevelDBStore хранилище блоков в LevelDB
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore открывает базу в каталоге path
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть LevelDB: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) SaveBlock(ctx context.Context, pos vec.Vec3, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put(blockKey(pos), data, nil); err != nil {
		return fmt.Errorf("ошибка сохранения блока %v в LevelDB: %w", pos, err)
	}
	return nil
}

func (s *LevelDBStore) LoadBlock(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := s.db.Get(blockKey(pos), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения блока %v из LevelDB: %w", pos, err)
	}
	return data, true, nil
}

func (s *LevelDBStore) DeleteBlock(ctx context.Context, pos vec.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Delete(blockKey(pos), nil)
}

func (s *LevelDBStore) ListBlocks(ctx context.Context) ([]vec.Vec3, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(blockKeyPrefix)), nil)
	defer iter.Release()

	var out []vec.Vec3
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pos, err := parseBlockKey(iter.Key())
		if err != nil {
			continue
		}
		out = append(out, pos)
	}
	return out, iter.Error()
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
