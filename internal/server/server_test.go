package server

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/annel0/voxelworld/internal/auth"
	"github.com/annel0/voxelworld/internal/eventbus"
	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/protocol"
	"github.com/annel0/voxelworld/internal/storage"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// fakeTransport запоминает отправленные сообщения
type fakeTransport struct {
	mu           sync.Mutex
	sent         map[network.PeerID][]protocol.Message
	disconnected []network.PeerID
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[network.PeerID][]protocol.Message)}
}

func (f *fakeTransport) Receive(ctx context.Context) (network.Event, error) {
	<-ctx.Done()
	return network.Event{}, ctx.Err()
}

func (f *fakeTransport) Send(_ context.Context, peer network.PeerID, payload []byte) error {
	msg, err := protocol.Decode(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent[peer] = append(f.sent[peer], msg)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Disconnect(peer network.PeerID) {
	f.mu.Lock()
	f.disconnected = append(f.disconnected, peer)
	f.mu.Unlock()
}

// take забирает отправленные пиру сообщения
func (f *fakeTransport) take(peer network.PeerID) []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.sent[peer]
	delete(f.sent, peer)
	return msgs
}

// flatGen камень ниже y=0, выше воздух
type flatGen struct{}

func (flatGen) SurfaceHeight(int, int) int { return -1 }

func (flatGen) Generate(b *world.Block) error {
	origin := b.Origin()
	for x := 0; x < world.BlockSize; x++ {
		for y := 0; y < world.BlockSize; y++ {
			for z := 0; z < world.BlockSize; z++ {
				n := world.NewNode(content.Air)
				if origin.Y+y < 0 {
					n = world.NewNode(content.Stone)
				}
				b.SetNodeNoCheck(vec.New(x, y, z), n)
			}
		}
	}
	return nil
}

// panicGen падает на блоке (0,0,0)
type panicGen struct{ flatGen }

func (g panicGen) Generate(b *world.Block) error {
	if b.Pos() == vec.Zero {
		panic("генератор сломан")
	}
	return g.flatGen.Generate(b)
}

type testEnv struct {
	srv       *Server
	transport *fakeTransport
	positions *storage.MemoryPositionRepo
	bus       eventbus.EventBus
}

func newTestServer(t *testing.T, gen TerrainGenerator) *testEnv {
	t.Helper()
	reg := content.DefaultRegistry()
	m := world.NewMap(reg, nil, nil)
	tr := newFakeTransport()
	positions := storage.NewMemoryPositionRepo()
	bus := eventbus.NewMemoryBus(64)
	t.Cleanup(func() { _ = bus.Close() })

	srv := New(DefaultConfig(), Deps{
		Map:       m,
		Generator: gen,
		Transport: tr,
		Auth:      auth.NewPlayerAuthenticator(auth.NewMemoryUserRepo(), "", "admin"),
		Positions: positions,
		Bus:       bus,
	})
	return &testEnv{srv: srv, transport: tr, positions: positions, bus: bus}
}

func encode(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	return data
}

// join подключает пира и проходит INIT
func (e *testEnv) join(t *testing.T, peer network.PeerID, name string) {
	t.Helper()
	ctx := context.Background()
	e.srv.HandleEvent(ctx, network.Event{Type: network.EventConnect, Peer: peer})
	require.NoError(t, e.srv.HandlePeerMessage(ctx, peer, encode(t, &protocol.Init{
		MaxSerializationVersion: world.HighestVersion,
		ProtocolVersion:         protocol.ProtocolVersion,
		PlayerName:              name,
		Password:                "secret",
	})))
}

func init() {
	// Хэши в тестах считаются быстро
	auth.SetHashCost(bcrypt.MinCost)
}

func TestInit(t *testing.T) {
	ctx := context.Background()

	t.Run("несовпадение версии протокола", func(t *testing.T) {
		env := newTestServer(t, flatGen{})
		env.srv.HandleEvent(ctx, network.Event{Type: network.EventConnect, Peer: 2})
		_ = env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.Init{
			MaxSerializationVersion: 13,
			ProtocolVersion:         protocol.ProtocolVersion + 1,
			PlayerName:              "bob",
		}))

		msgs := env.transport.take(2)
		require.Len(t, msgs, 1)
		denied, ok := msgs[0].(*protocol.AccessDenied)
		require.True(t, ok, "ожидался ACCESS_DENIED")
		assert.Contains(t, denied.Reason, "версия протокола")
		assert.Equal(t, []network.PeerID{2}, env.transport.disconnected)
		assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.metrics.AccessDenied))
	})

	t.Run("успешный вход", func(t *testing.T) {
		env := newTestServer(t, flatGen{})
		env.srv.HandleEvent(ctx, network.Event{Type: network.EventConnect, Peer: 2})
		require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.Init{
			MaxSerializationVersion: 25,
			ProtocolVersion:         protocol.ProtocolVersion,
			PlayerName:              "bob",
			Password:                "secret",
		})))

		msgs := env.transport.take(2)
		require.Len(t, msgs, 2)
		reply, ok := msgs[0].(*protocol.InitReply)
		require.True(t, ok)
		assert.Equal(t, world.HighestVersion, reply.SerializationVersion, "версия не выше поддерживаемой")
		assert.InDelta(t, 0, reply.SpawnPos.Y(), 1e-6, "над поверхностью генератора")
		_, ok = msgs[1].(*protocol.TimeOfDay)
		assert.True(t, ok)
		assert.True(t, env.srv.client(2).Active())
	})

	t.Run("неверный пароль и занятое имя", func(t *testing.T) {
		env := newTestServer(t, flatGen{})
		env.join(t, 2, "bob")
		env.transport.take(2)

		env.srv.HandleEvent(ctx, network.Event{Type: network.EventConnect, Peer: 3})
		_ = env.srv.HandlePeerMessage(ctx, 3, encode(t, &protocol.Init{
			ProtocolVersion: protocol.ProtocolVersion, PlayerName: "bob", Password: "wrong",
		}))
		msgs := env.transport.take(3)
		require.Len(t, msgs, 1)
		assert.Equal(t, auth.ErrWrongPassword.Error(), msgs[0].(*protocol.AccessDenied).Reason)

		_ = env.srv.HandlePeerMessage(ctx, 3, encode(t, &protocol.Init{
			ProtocolVersion: protocol.ProtocolVersion, PlayerName: "Bob", Password: "secret",
		}))
		msgs = env.transport.take(3)
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0].(*protocol.AccessDenied).Reason, "уже в игре")
	})
}

func TestMalformedMessageIsDropped(t *testing.T) {
	env := newTestServer(t, flatGen{})
	ctx := context.Background()
	env.join(t, 2, "bob")

	assert.Error(t, env.srv.HandlePeerMessage(ctx, 2, []byte{0xff, 0xff, 0xff}))
	assert.Error(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.TimeOfDay{Time: 1})),
		"команда клиенту от клиента")
	assert.Equal(t, 2.0, testutil.ToFloat64(env.srv.metrics.ProtocolErrors))
	assert.Empty(t, env.transport.disconnected)
	assert.True(t, env.srv.client(2).Active())
}

func TestGotBlocksWithoutSendIsNoop(t *testing.T) {
	env := newTestServer(t, flatGen{})
	ctx := context.Background()
	env.join(t, 2, "bob")

	require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.GotBlocks{Blocks: []vec.Vec3{vec.Zero}})))
	rc := env.srv.client(2)
	assert.Equal(t, 0, rc.SentCount())
	assert.Equal(t, 0, rc.SendingCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.metrics.ExcessGotBlocks))
}

func TestSendBlocksAndEdits(t *testing.T) {
	env := newTestServer(t, flatGen{})
	ctx := context.Background()
	_, _, err := env.srv.m.EmergeBlock(ctx, vec.Zero, flatGen{}, true)
	require.NoError(t, err)

	env.join(t, 2, "bob")
	env.join(t, 3, "alice")
	for _, peer := range []network.PeerID{2, 3} {
		require.NoError(t, env.srv.HandlePeerMessage(ctx, peer, encode(t, &protocol.PlayerPos{Position: [3]float32{8, 8, 8}})))
		env.transport.take(peer)
	}

	env.srv.SendBlocks(ctx, 0.1)
	for _, peer := range []network.PeerID{2, 3} {
		var got []vec.Vec3
		for _, msg := range env.transport.take(peer) {
			if bd, ok := msg.(*protocol.BlockData); ok {
				got = append(got, bd.Pos)
			}
		}
		assert.Equal(t, []vec.Vec3{vec.Zero}, got, "пир %d", peer)
		assert.Equal(t, 1, env.srv.client(peer).SendingCount())
	}
	assert.Positive(t, env.srv.EmergeQueueSize(), "соседние блоки запрошены")

	require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.GotBlocks{Blocks: []vec.Vec3{vec.Zero}})))
	assert.Equal(t, 1, env.srv.client(2).SentCount())

	t.Run("установка узла", func(t *testing.T) {
		require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.Interact{
			Action: protocol.InteractPlace,
			Under:  vec.New(8, -1, 8),
			Above:  vec.New(8, 0, 8),
			Item:   content.Cobble,
		})))
		env.srv.processEdits(ctx)

		assert.Empty(t, env.transport.take(2), "автору правки ADDNODE не нужен")
		msgs := env.transport.take(3)
		require.Len(t, msgs, 1)
		add, ok := msgs[0].(*protocol.AddNode)
		require.True(t, ok)
		assert.Equal(t, vec.New(8, 0, 8), add.Pos)
		assert.Equal(t, content.Cobble, add.Node.Content)
	})

	t.Run("копание", func(t *testing.T) {
		require.NoError(t, env.srv.HandlePeerMessage(ctx, 3, encode(t, &protocol.Interact{
			Action: protocol.InteractDigComplete,
			Under:  vec.New(8, 0, 8),
			Above:  vec.New(8, 1, 8),
		})))
		env.srv.processEdits(ctx)

		msgs := env.transport.take(2)
		require.Len(t, msgs, 1)
		_, ok := msgs[0].(*protocol.RemoveNode)
		assert.True(t, ok)
		assert.Equal(t, content.Air, env.srv.m.GetNodeNoEx(vec.New(8, 0, 8)).Content)
	})

	t.Run("место занято", func(t *testing.T) {
		occupied := vec.New(9, 0, 8)
		require.NoError(t, env.srv.m.SetNode(occupied, world.NewNode(content.Stone)))
		env.srv.processEdits(ctx)
		env.transport.take(2)

		require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.Interact{
			Action: protocol.InteractPlace,
			Under:  vec.New(9, -1, 8),
			Above:  occupied,
			Item:   content.Cobble,
		})))
		env.srv.processEdits(ctx)
		assert.Equal(t, content.Stone, env.srv.m.GetNodeNoEx(occupied).Content)
		assert.False(t, env.srv.client(2).KnowsBlock(vec.Zero), "блок будет отправлен заново")
	})
}

func TestBlocksNearPlayerStayLoaded(t *testing.T) {
	env := newTestServer(t, flatGen{})
	ctx := context.Background()
	far := vec.New(20, 0, 0)
	for _, bp := range []vec.Vec3{vec.Zero, far} {
		_, _, err := env.srv.m.EmergeBlock(ctx, bp, flatGen{}, true)
		require.NoError(t, err)
	}

	env.join(t, 2, "bob")
	require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.PlayerPos{Position: [3]float32{8, 8, 8}})))
	env.srv.SendBlocks(ctx, 0.1)
	require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.GotBlocks{Blocks: []vec.Vec3{vec.Zero}})))
	env.transport.take(2)

	// Больше минуты простоя при таймауте выгрузки 60 с
	for i := 0; i < 700; i++ {
		env.srv.Step(ctx, 0.1)
	}
	assert.True(t, env.srv.m.IsBlockReady(vec.Zero), "блок с игроком не выгружается")
	assert.Nil(t, env.srv.m.GetBlockNoCreateNoEx(far), "дальний блок выгружен")

	require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.Interact{
		Action: protocol.InteractPlace,
		Under:  vec.New(8, -1, 8),
		Above:  vec.New(8, 0, 8),
		Item:   content.Cobble,
	})))
	env.srv.processEdits(ctx)
	assert.Equal(t, content.Cobble, env.srv.m.GetNodeNoEx(vec.New(8, 0, 8)).Content)
}

func TestEmergeJobSurvivesPanic(t *testing.T) {
	env := newTestServer(t, panicGen{})
	ctx := context.Background()

	err := env.srv.runEmergeJob(ctx, &QueuedBlockEmerge{Pos: vec.Zero, Peers: map[network.PeerID]EmergeFlags{2: 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "паника")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.metrics.EmergeFailures))

	next := vec.New(1, 0, 0)
	require.NoError(t, env.srv.runEmergeJob(ctx, &QueuedBlockEmerge{Pos: next, Peers: map[network.PeerID]EmergeFlags{2: 0}}))
	assert.True(t, env.srv.m.IsBlockReady(next))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.srv.metrics.Emerged))
}

func TestEmergeFromDiskLeavesDummy(t *testing.T) {
	env := newTestServer(t, flatGen{})
	ctx := context.Background()

	require.NoError(t, env.srv.runEmergeJob(ctx, &QueuedBlockEmerge{Pos: vec.Zero, Peers: map[network.PeerID]EmergeFlags{2: EmergeFlagFromDisk}}))
	assert.Equal(t, BlockDummy, env.srv.BlockStatus(vec.Zero))
}

func TestTimeOfDay(t *testing.T) {
	env := newTestServer(t, flatGen{})
	assert.Equal(t, uint16(6000), env.srv.TimeOfDay())

	// 100 секунд при скорости 72: 2000 единиц
	env.srv.advanceTime(100)
	assert.Equal(t, uint16(8000), env.srv.TimeOfDay())

	// Полные сутки возвращают время на место
	env.srv.advanceTime(1200)
	assert.Equal(t, uint16(8000), env.srv.TimeOfDay())
}

func TestDisconnectSavesPosition(t *testing.T) {
	env := newTestServer(t, flatGen{})
	ctx := context.Background()
	env.join(t, 2, "bob")
	require.NoError(t, env.srv.HandlePeerMessage(ctx, 2, encode(t, &protocol.PlayerPos{Position: [3]float32{1, 2, 3}})))

	env.srv.HandleEvent(ctx, network.Event{Type: network.EventDisconnect, Peer: 2})
	assert.Nil(t, env.srv.client(2))

	p, ok, err := env.positions.Load(ctx, "bob")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float32(2), p.Position.Y())

	// Следующий вход начинается с сохранённого места
	env.join(t, 4, "bob")
	reply := env.transport.take(4)[0].(*protocol.InitReply)
	assert.Equal(t, float32(3), reply.SpawnPos.Z())
}
