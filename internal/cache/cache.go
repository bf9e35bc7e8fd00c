// Package cache горячий слой перед хранилищем блоков.
//
// BlockCache читает блоки через кеш (Read-Through) и пишет сразу в оба
// слоя (Write-Through). Если задан Invalidator, запись блока рассылается
// другим узлам, и они выбрасывают ключ из своего кеша.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/storage"
	"github.com/annel0/voxelworld/internal/vec"
)

// ErrCacheMiss ключа нет в кеше
var ErrCacheMiss = errors.New("cache miss")

// Hot быстрый слой кеша с TTL
type Hot interface {
	// Get возвращает ErrCacheMiss, если ключа нет
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Invalidator рассылает и принимает уведомления об устаревших ключах
type Invalidator interface {
	PublishInvalidation(ctx context.Context, key string) error
	SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error
	Close() error
}

// InvalidationHandler обрабатывает уведомления об инвалидации кеша.
type InvalidationHandler func(key string) error

// Stats счётчики попаданий
type Stats struct {
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	Errors   int64   `json:"errors"`
	HitRatio float64 `json:"hit_ratio"`
}

// BlockCache storage.Store с горячим слоем
type BlockCache struct {
	cold        storage.Store
	hot         Hot
	invalidator Invalidator
	ttl         time.Duration
	logger      *logging.Logger

	hits   *atomic.Int64
	misses *atomic.Int64
	errs   *atomic.Int64
}

var _ storage.Store = (*BlockCache)(nil)

// NewBlockCache оборачивает cold. invalidator может быть nil.
func NewBlockCache(ctx context.Context, cold storage.Store, hot Hot, invalidator Invalidator, ttl time.Duration) (*BlockCache, error) {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &BlockCache{
		cold:        cold,
		hot:         hot,
		invalidator: invalidator,
		ttl:         ttl,
		logger:      logging.GetComponentLogger("cache"),
		hits:        atomic.NewInt64(0),
		misses:      atomic.NewInt64(0),
		errs:        atomic.NewInt64(0),
	}
	if invalidator != nil {
		if err := invalidator.SubscribeInvalidations(ctx, c.onInvalidation); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func blockCacheKey(pos vec.Vec3) string {
	return fmt.Sprintf("voxel:block:%d,%d,%d", pos.X, pos.Y, pos.Z)
}

// LoadBlock сначала спрашивает горячий слой. Ошибка кеша не мешает
// чтению с диска.
func (c *BlockCache) LoadBlock(ctx context.Context, pos vec.Vec3) ([]byte, bool, error) {
	key := blockCacheKey(pos)
	data, err := c.hot.Get(ctx, key)
	if err == nil {
		c.hits.Inc()
		return data, true, nil
	}
	c.misses.Inc()
	if !errors.Is(err, ErrCacheMiss) {
		c.errs.Inc()
		c.logger.Warn("Кеш недоступен для %s: %v", key, err)
	}

	data, ok, err := c.cold.LoadBlock(ctx, pos)
	if err != nil || !ok {
		return data, ok, err
	}
	if err := c.hot.Set(ctx, key, data, c.ttl); err != nil {
		c.errs.Inc()
		c.logger.Debug("Не удалось положить %s в кеш: %v", key, err)
	}
	return data, true, nil
}

// SaveBlock пишет на диск, затем в кеш и рассылает инвалидацию
func (c *BlockCache) SaveBlock(ctx context.Context, pos vec.Vec3, data []byte) error {
	if err := c.cold.SaveBlock(ctx, pos, data); err != nil {
		return err
	}
	key := blockCacheKey(pos)
	if err := c.hot.Set(ctx, key, data, c.ttl); err != nil {
		c.errs.Inc()
		c.logger.Debug("Не удалось обновить %s в кеше: %v", key, err)
	}
	c.publish(ctx, key)
	return nil
}

// DeleteBlock удаляет блок из обоих слоёв
func (c *BlockCache) DeleteBlock(ctx context.Context, pos vec.Vec3) error {
	key := blockCacheKey(pos)
	if err := c.hot.Delete(ctx, key); err != nil {
		c.errs.Inc()
	}
	if err := c.cold.DeleteBlock(ctx, pos); err != nil {
		return err
	}
	c.publish(ctx, key)
	return nil
}

func (c *BlockCache) ListBlocks(ctx context.Context) ([]vec.Vec3, error) {
	return c.cold.ListBlocks(ctx)
}

func (c *BlockCache) publish(ctx context.Context, key string) {
	if c.invalidator == nil {
		return
	}
	if err := c.invalidator.PublishInvalidation(ctx, key); err != nil {
		c.errs.Inc()
		c.logger.Warn("Инвалидация %s не разослана: %v", key, err)
	}
}

func (c *BlockCache) onInvalidation(key string) error {
	return c.hot.Delete(context.Background(), key)
}

// Stats текущие счётчики
func (c *BlockCache) Stats() Stats {
	s := Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

// Close закрывает оба слоя и invalidator
func (c *BlockCache) Close() error {
	var errs []error
	if c.invalidator != nil {
		errs = append(errs, c.invalidator.Close())
	}
	errs = append(errs, c.hot.Close(), c.cold.Close())
	return errors.Join(errs...)
}
