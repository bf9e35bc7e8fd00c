package network

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameCodec(t *testing.T) {
	codec, err := NewFrameCodec(DefaultChannelConfig())
	require.NoError(t, err)
	defer codec.Close()

	t.Run("короткий кадр без сжатия", func(t *testing.T) {
		frame, compressed, err := codec.Encode([]byte("hello"))
		require.NoError(t, err)
		assert.False(t, compressed)
		assert.Len(t, frame, frameHeaderSize+5)

		got, n, err := codec.ReadFrame(bytes.NewReader(frame))
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), got)
		assert.Equal(t, len(frame), n)
	})

	t.Run("длинный кадр сжимается", func(t *testing.T) {
		payload := bytes.Repeat([]byte{13, 0, 0, 1}, 4096)
		frame, compressed, err := codec.Encode(payload)
		require.NoError(t, err)
		assert.True(t, compressed)
		assert.Less(t, len(frame), len(payload))

		got, _, err := codec.ReadFrame(bytes.NewReader(frame))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("несколько кадров подряд", func(t *testing.T) {
		var stream bytes.Buffer
		for _, p := range [][]byte{{1}, {2, 2}, bytes.Repeat([]byte{3}, 2000)} {
			frame, _, err := codec.Encode(p)
			require.NoError(t, err)
			stream.Write(frame)
		}
		for _, want := range []int{1, 2, 2000} {
			got, _, err := codec.ReadFrame(&stream)
			require.NoError(t, err)
			assert.Len(t, got, want)
		}
	})

	t.Run("обрезанный кадр", func(t *testing.T) {
		frame, _, err := codec.Encode([]byte("hello world"))
		require.NoError(t, err)
		_, _, err = codec.ReadFrame(bytes.NewReader(frame[:len(frame)-3]))
		assert.Error(t, err)
	})

	t.Run("слишком длинный кадр", func(t *testing.T) {
		small, err := NewFrameCodec(&ChannelConfig{MaxFrameSize: 8, CompressThreshold: 0})
		require.NoError(t, err)
		defer small.Close()
		_, _, err = small.Encode(make([]byte, 9))
		assert.ErrorIs(t, err, ErrFrameTooLarge)

		header := []byte{0xff, 0xff, 0, 0, 0}
		_, _, err = small.ReadFrame(bytes.NewReader(header))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}

func TestAllocatePeer(t *testing.T) {
	cs, err := NewChannelServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)

	id, ok := cs.allocatePeer()
	require.True(t, ok)
	assert.Equal(t, firstClientPeer, id)

	cs.peers[firstClientPeer+1] = nil
	id, ok = cs.allocatePeer()
	require.True(t, ok)
	assert.Equal(t, firstClientPeer+2, id, "занятый номер пропускается")

	cs.nextPeer = 0xffff
	id, _ = cs.allocatePeer()
	assert.Equal(t, PeerID(0xffff), id)
	id, _ = cs.allocatePeer()
	assert.Equal(t, firstClientPeer, id, "после переполнения номера начинаются заново")
}

func TestServerClientLoopback(t *testing.T) {
	cs, err := NewChannelServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	require.NoError(t, cs.Start())
	defer cs.Stop()

	client, err := Dial(cs.Addr().String(), nil, nil, nil)
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// KCP узнаёт о сессии только по первому пакету клиента
	require.NoError(t, client.Send(ctx, []byte("init")))

	ev, err := cs.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, EventConnect, ev.Type)
	peer := ev.Peer

	ev, err = cs.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventData, ev.Type)
	assert.Equal(t, []byte("init"), ev.Data)

	big := bytes.Repeat([]byte("block"), 10000)
	require.NoError(t, cs.Send(ctx, peer, big))
	got, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, big, got)

	assert.Equal(t, 1, cs.PeerCount())
	assert.ErrorIs(t, cs.Send(ctx, peer+100, nil), ErrPeerNotFound)
}
