package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/config"
	"github.com/annel0/voxelworld/internal/server"
	"github.com/annel0/voxelworld/internal/storage"
)

func TestServerConfig(t *testing.T) {
	t.Run("пустой конфиг даёт значения по умолчанию", func(t *testing.T) {
		assert.Equal(t, server.DefaultConfig(), ServerConfig(&config.Config{}))
	})

	t.Run("поля секции server", func(t *testing.T) {
		cfg := &config.Config{Server: config.ServerConfig{
			StepIntervalMs:         20,
			UnloadTimeoutS:         5,
			MaxSimultaneousEmerges: 7,
			BlockSendDistance:      3,
			DefaultPassword:        "pw",
			AdminName:              "root",
		}}
		sc := ServerConfig(cfg)
		assert.Equal(t, 20*time.Millisecond, sc.StepInterval)
		assert.Equal(t, 5*time.Second, sc.UnloadTimeout)
		assert.Equal(t, 7, sc.MaxEmergesPerPeer)
		assert.Equal(t, 3, sc.BlockSendDistance)
		assert.Equal(t, server.DefaultConfig().BlockGenerateDistance, sc.BlockGenerateDistance)
		assert.Equal(t, "pw", sc.DefaultPassword)
		assert.Equal(t, "root", sc.AdminName)
	})
}

func TestClientConfig(t *testing.T) {
	off := false
	cfg := &config.Config{Client: config.ClientConfig{Name: "alice", Password: "x", SmoothLighting: &off, ViewRange: 4}}
	cc := ClientConfig(cfg)
	assert.Equal(t, "alice", cc.Name)
	assert.Equal(t, "x", cc.Password)
	assert.False(t, cc.SmoothLighting)
	assert.Equal(t, 4, cc.ViewRange)

	def := ClientConfig(&config.Config{})
	assert.True(t, def.SmoothLighting)
	assert.NotEmpty(t, def.Name)
}

func TestNewServerRuntime(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		Server:  config.ServerConfig{MapDir: t.TempDir(), Port: 30999},
		Storage: config.StorageConfig{Backend: "sqlite"},
	}
	rt, err := NewServerRuntime(ctx, cfg)
	require.NoError(t, err)

	_, isMemory := rt.Positions.(*storage.MemoryPositionRepo)
	assert.True(t, isMemory)
	assert.NotNil(t, rt.Bus)
	assert.Equal(t, 0, rt.Server.LoadedBlocks())

	require.NoError(t, rt.Close(ctx))
}

func TestNewServerRuntimeBadBackend(t *testing.T) {
	cfg := &config.Config{
		Server:  config.ServerConfig{MapDir: t.TempDir()},
		Storage: config.StorageConfig{Backend: "postgres"},
	}
	_, err := NewServerRuntime(context.Background(), cfg)
	assert.ErrorIs(t, err, storage.ErrUnknownBackend)
}
