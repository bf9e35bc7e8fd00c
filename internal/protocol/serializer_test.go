package protocol

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

func TestMessagesSurviveEncoding(t *testing.T) {
	tests := []Message{
		&Init{MaxSerializationVersion: 13, ProtocolVersion: ProtocolVersion, PlayerName: "игрок", Password: "секрет"},
		&InitReply{SerializationVersion: 13, SpawnPos: mgl32.Vec3{0.5, 20, -3.25}},
		&AccessDenied{Reason: "Неверный пароль"},
		&BlockData{Pos: vec.New(-1, 0, 7), Data: []byte{13, 0, 1, 2, 3}},
		&AddNode{Pos: vec.New(-17, 5, 100000), Node: world.Node{Content: 3, Param1: 0x0f, Param2: 2}},
		&RemoveNode{Pos: vec.New(0, -33, 0)},
		&TimeOfDay{Time: 23999},
		&PlayerPos{Position: mgl32.Vec3{1, 2, 3}, Speed: mgl32.Vec3{0, -9.8, 0}, Pitch: 12.5, Yaw: -90},
		&GotBlocks{Blocks: []vec.Vec3{vec.New(0, 0, 0), vec.New(-1, -1, -1)}},
		&DeletedBlocks{Blocks: []vec.Vec3{vec.New(3, 2, 1)}},
		&Password{Old: "a", New: "b"},
		&Interact{Action: InteractPlace, Under: vec.New(1, 1, 1), Above: vec.New(1, 2, 1), Item: 4},
	}

	for _, msg := range tests {
		t.Run(msg.Command().String(), func(t *testing.T) {
			data, err := Encode(msg)
			require.NoError(t, err)
			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, msg, got)
		})
	}
}

func TestPacketEnvelope(t *testing.T) {
	ms := NewMessageSerializer()
	ms.Now = func() time.Time { return time.Unix(0, 42) }

	data, err := ms.SerializeMessage(&RemoveNode{Pos: vec.New(1, 2, 3)}, 7)
	require.NoError(t, err)

	p, err := ms.DeserializePacket(data)
	require.NoError(t, err)
	assert.Equal(t, ToClientRemoveNode, p.Command)
	assert.Equal(t, uint32(7), p.Sequence)
	assert.Equal(t, int64(42), p.Timestamp)
	assert.True(t, p.Command.ToClient())
	assert.False(t, ToServerGotBlocks.ToClient())
}

func TestMalformedInput(t *testing.T) {
	data, err := Encode(&BlockData{Pos: vec.New(1, 2, 3), Data: make([]byte, 64)})
	require.NoError(t, err)

	t.Run("обрезанный пакет", func(t *testing.T) {
		_, err := Decode(data[:len(data)-10])
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("неизвестная команда", func(t *testing.T) {
		var env encoder
		env.uint(1, 0x999)
		env.bytes(4, nil)
		_, err := Decode(env.b)
		assert.ErrorIs(t, err, ErrUnknownCommand)
	})

	t.Run("нет команды", func(t *testing.T) {
		var env encoder
		env.bytes(4, []byte{1})
		_, err := Decode(env.b)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("неверный тип поля", func(t *testing.T) {
		var payload encoder
		payload.uint(1, 5) // позиция должна быть вложенным сообщением
		var env encoder
		env.uint(1, uint64(ToClientRemoveNode))
		env.bytes(4, payload.b)
		_, err := Decode(env.b)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	var payload encoder
	payload.uint(1, 1200)
	payload.string(15, "новое поле")
	payload.b = protowire.AppendTag(payload.b, 16, protowire.Fixed64Type)
	payload.b = protowire.AppendFixed64(payload.b, 1)

	var env encoder
	env.uint(1, uint64(ToClientTimeOfDay))
	env.bytes(4, payload.b)

	msg, err := Decode(env.b)
	require.NoError(t, err)
	assert.Equal(t, &TimeOfDay{Time: 1200}, msg)
}

func TestTimeOfDayWraps(t *testing.T) {
	var payload encoder
	payload.uint(1, 24001)
	var env encoder
	env.uint(1, uint64(ToClientTimeOfDay))
	env.bytes(4, payload.b)

	msg, err := Decode(env.b)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), msg.(*TimeOfDay).Time)
}
