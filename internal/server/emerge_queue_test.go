package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/vec"
)

func TestEmergeQueue(t *testing.T) {
	a, b := vec.New(0, 0, 0), vec.New(1, 0, 0)

	t.Run("повторный запрос не создаёт второе задание", func(t *testing.T) {
		eq := NewEmergeQueue()
		eq.AddBlock(2, a, 0)
		eq.AddBlock(3, a, EmergeFlagFromDisk)
		eq.AddBlock(2, b, 0)
		assert.Equal(t, 2, eq.Size())
		assert.Equal(t, 2, eq.PeerItemCount(2))
		assert.Equal(t, 1, eq.PeerItemCount(3))

		q := eq.Pop()
		require.NotNil(t, q)
		assert.Equal(t, a, q.Pos, "порядок FIFO")
		assert.Len(t, q.Peers, 2)
		assert.False(t, q.OnlyFromDisk(), "пир 2 просил генерацию")

		assert.Equal(t, b, eq.Pop().Pos)
		assert.Nil(t, eq.Pop())
	})

	t.Run("флаги одного пира сужаются", func(t *testing.T) {
		eq := NewEmergeQueue()
		eq.AddBlock(2, a, EmergeFlagFromDisk)
		q := eq.Pop()
		assert.True(t, q.OnlyFromDisk())

		eq.AddBlock(2, a, EmergeFlagFromDisk)
		eq.AddBlock(2, a, 0)
		q = eq.Pop()
		assert.Equal(t, EmergeFlags(0), q.Peers[2])
		assert.False(t, q.OnlyFromDisk())
	})

	t.Run("задание без ждущего", func(t *testing.T) {
		eq := NewEmergeQueue()
		eq.AddBlock(network.PeerIDInexistent, a, 0)
		q := eq.Pop()
		require.NotNil(t, q)
		assert.Empty(t, q.Peers)
		assert.True(t, q.OnlyFromDisk())
	})

	t.Run("уведомление не блокирует", func(t *testing.T) {
		eq := NewEmergeQueue()
		for i := range 10 {
			eq.AddBlock(2, vec.New(i, 0, 0), 0)
		}
		select {
		case <-eq.Notify():
		default:
			t.Fatal("нет уведомления")
		}
	})
}
