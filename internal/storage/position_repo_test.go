package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exercisePositionRepo общий сценарий для всех реализаций
func exercisePositionRepo(t *testing.T, repo PositionRepo) {
	ctx := context.Background()

	t.Run("сохранение и загрузка", func(t *testing.T) {
		want := PlayerPosition{Name: "celeron55", Position: mgl32.Vec3{10, 20.5, -3}, Pitch: 12, Yaw: 90}
		require.NoError(t, repo.Save(ctx, want))

		got, found, err := repo.Load(ctx, "celeron55")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, want.Position, got.Position)
		assert.Equal(t, want.Yaw, got.Yaw)
	})

	t.Run("неизвестный игрок", func(t *testing.T) {
		_, found, err := repo.Load(ctx, "nobody")
		require.NoError(t, err)
		assert.False(t, found, "первый вход игрока")
	})

	t.Run("обновление позиции", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, PlayerPosition{Name: "p2", Position: mgl32.Vec3{1, 2, 3}}))
		require.NoError(t, repo.Save(ctx, PlayerPosition{Name: "p2", Position: mgl32.Vec3{4, 5, 6}}))
		got, _, err := repo.Load(ctx, "p2")
		require.NoError(t, err)
		assert.Equal(t, mgl32.Vec3{4, 5, 6}, got.Position)
	})

	t.Run("пакетное сохранение", func(t *testing.T) {
		batch := []PlayerPosition{
			{Name: "a", Position: mgl32.Vec3{1, 0, 0}},
			{Name: "b", Position: mgl32.Vec3{0, 1, 0}},
		}
		require.NoError(t, repo.BatchSave(ctx, batch))
		for _, want := range batch {
			got, found, err := repo.Load(ctx, want.Name)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, want.Position, got.Position)
		}
		assert.Error(t, repo.BatchSave(ctx, []PlayerPosition{{Name: ""}}), "пустое имя отклоняется")
	})

	t.Run("удаление", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, PlayerPosition{Name: "gone"}))
		require.NoError(t, repo.Delete(ctx, "gone"))
		_, found, err := repo.Load(ctx, "gone")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestMemoryPositionRepo(t *testing.T) {
	repo := NewMemoryPositionRepo()
	exercisePositionRepo(t, repo)

	assert.ErrorIs(t, repo.Delete(context.Background(), "never-saved"), ErrPositionNotFound)
	assert.Equal(t, []string{"a", "b", "celeron55", "p2"}, repo.Names())

	got, _, err := repo.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.IsZero(), "время сохранения проставляется")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, repo.Save(ctx, PlayerPosition{Name: "x"}), context.Canceled)
}

// Нужен живой Redis: VOXEL_TEST_REDIS=localhost:6379
func TestRedisPositionRepo(t *testing.T) {
	addr := os.Getenv("VOXEL_TEST_REDIS")
	if addr == "" {
		t.Skip("VOXEL_TEST_REDIS не задан")
	}
	cfg := DefaultRedisConfig()
	cfg.Addr = addr
	cfg.KeyPrefix = "voxel:test:" + time.Now().Format("150405.000") + ":"
	cfg.TTL = time.Minute

	repo, err := NewRedisPositionRepo(context.Background(), cfg)
	require.NoError(t, err)
	defer repo.Close()

	exercisePositionRepo(t, repo)
}
