package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/voxelworld/internal/logging"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr         string        // Адрес Redis сервера
	Password     string        // Пароль (пустой если не требуется)
	DB           int           // Номер базы данных
	KeyPrefix    string        // Префикс для ключей
	TTL          time.Duration // Время жизни записей, 0 - бессрочно
	BatchSize    int           // Размер батча для записи
	BatchFlushMs int           // Интервал сброса батча в миллисекундах
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "voxel:pos:",
		TTL:          0,
		BatchSize:    100,
		BatchFlushMs: 500,
	}
}

// RedisPositionRepo хранит позиции игроков в Redis. Save копит
// записи в буфере, буфер сбрасывается пайплайном по таймеру или
// при заполнении.
type RedisPositionRepo struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	batchSize int

	batchMu     sync.Mutex
	batchBuffer map[string]PlayerPosition

	batchTicker *time.Ticker
	shutdown    chan struct{}
	wg          sync.WaitGroup
	logger      *logging.Logger
}

// NewRedisPositionRepo подключается к Redis и запускает сброс батчей
func NewRedisPositionRepo(ctx context.Context, config *RedisConfig) (*RedisPositionRepo, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	repo := newRedisPositionRepo(client, config)
	repo.logger.Info("🔴 Connected to Redis at %s", config.Addr)
	return repo, nil
}

func newRedisPositionRepo(client redis.UniversalClient, config *RedisConfig) *RedisPositionRepo {
	flush := time.Duration(config.BatchFlushMs) * time.Millisecond
	if flush <= 0 {
		flush = 500 * time.Millisecond
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	repo := &RedisPositionRepo{
		client:      client,
		keyPrefix:   config.KeyPrefix,
		ttl:         config.TTL,
		batchSize:   batchSize,
		batchBuffer: make(map[string]PlayerPosition),
		batchTicker: time.NewTicker(flush),
		shutdown:    make(chan struct{}),
		logger:      logging.GetStorageLogger(),
	}

	repo.wg.Add(1)
	go repo.batchFlusher()
	return repo
}

// Save ставит позицию в батч
func (r *RedisPositionRepo) Save(ctx context.Context, pos PlayerPosition) error {
	if err := validatePosition(pos); err != nil {
		return err
	}
	if pos.UpdatedAt.IsZero() {
		pos.UpdatedAt = time.Now()
	}

	r.batchMu.Lock()
	r.batchBuffer[pos.Name] = pos

	// Если буфер заполнен, сбрасываем немедленно
	if len(r.batchBuffer) >= r.batchSize {
		batch := r.takeBatchLocked()
		r.batchMu.Unlock()
		return r.flushBatch(ctx, batch)
	}
	r.batchMu.Unlock()
	return nil
}

// Load ищет сначала в несброшенном буфере, потом в Redis
func (r *RedisPositionRepo) Load(ctx context.Context, name string) (PlayerPosition, bool, error) {
	r.batchMu.Lock()
	if pos, ok := r.batchBuffer[name]; ok {
		r.batchMu.Unlock()
		return pos, true, nil
	}
	r.batchMu.Unlock()

	data, err := r.client.Get(ctx, r.keyPrefix+name).Bytes()
	if errors.Is(err, redis.Nil) {
		return PlayerPosition{}, false, nil
	}
	if err != nil {
		return PlayerPosition{}, false, fmt.Errorf("failed to get position: %w", err)
	}

	var pos PlayerPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return PlayerPosition{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return pos, true, nil
}

// Delete удаляет позицию игрока
func (r *RedisPositionRepo) Delete(ctx context.Context, name string) error {
	r.batchMu.Lock()
	delete(r.batchBuffer, name)
	r.batchMu.Unlock()

	if err := r.client.Del(ctx, r.keyPrefix+name).Err(); err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}

// BatchSave пишет позиции сразу, минуя буфер
func (r *RedisPositionRepo) BatchSave(ctx context.Context, positions []PlayerPosition) error {
	batch := make(map[string]PlayerPosition, len(positions))
	for _, pos := range positions {
		if err := validatePosition(pos); err != nil {
			return err
		}
		batch[pos.Name] = pos
	}
	return r.flushBatch(ctx, batch)
}

// Close сбрасывает остаток буфера и закрывает соединение
func (r *RedisPositionRepo) Close() error {
	close(r.shutdown)
	r.wg.Wait()
	r.batchTicker.Stop()

	r.batchMu.Lock()
	batch := r.takeBatchLocked()
	r.batchMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.flushBatch(ctx, batch); err != nil {
		r.logger.Error("❌ Failed to flush positions on close: %v", err)
	}
	return r.client.Close()
}

func (r *RedisPositionRepo) takeBatchLocked() map[string]PlayerPosition {
	batch := r.batchBuffer
	r.batchBuffer = make(map[string]PlayerPosition)
	return batch
}

// batchFlusher периодически сбрасывает батч-буфер
func (r *RedisPositionRepo) batchFlusher() {
	defer r.wg.Done()

	for {
		select {
		case <-r.shutdown:
			return
		case <-r.batchTicker.C:
			r.batchMu.Lock()
			batch := r.takeBatchLocked()
			r.batchMu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.flushBatch(ctx, batch); err != nil {
				r.logger.Error("❌ Failed to flush batch: %v", err)
			}
			cancel()
		}
	}
}

// flushBatch записывает батч позиций в Redis
func (r *RedisPositionRepo) flushBatch(ctx context.Context, batch map[string]PlayerPosition) error {
	if len(batch) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for name, pos := range batch {
		data, err := json.Marshal(pos)
		if err != nil {
			r.logger.Warn("⚠️ Failed to marshal position for %s: %v", name, err)
			continue
		}
		pipe.Set(ctx, r.keyPrefix+name, data, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}
