// Package server ведёт мир на стороне сервера: шаг симуляции, очередь
// загрузки и генерации блоков, выбор и отправку блоков каждому клиенту,
// рассылку правок узлов.
package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"

	"github.com/annel0/voxelworld/internal/auth"
	"github.com/annel0/voxelworld/internal/eventbus"
	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/protocol"
	"github.com/annel0/voxelworld/internal/storage"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

const (
	timeOfDayUnits     = 24000
	timeOfDaySendEvery = 5.0
	unloadCheckEvery   = 2.0
	minSendBurst       = 64 * 1024
)

// Config параметры сервера
type Config struct {
	StepInterval  time.Duration
	SaveInterval  time.Duration
	UnloadTimeout time.Duration

	MaxBlockSendsPerClient int
	MaxBlockSendsTotal     int
	MaxEmergesPerPeer      int
	EmergeWorkers          int
	BlockSendDistance      int
	BlockGenerateDistance  int
	// SendBytesPerSecond 0 без ограничения
	SendBytesPerSecond int

	DefaultPassword string
	AdminName       string
	// TimeSpeed во сколько раз игровые сутки быстрее настоящих
	TimeSpeed float32
	// MaxReach дальность копания и установки узлов без PrivTeleport
	MaxReach float32
}

// DefaultConfig параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		StepInterval:           100 * time.Millisecond,
		SaveInterval:           60 * time.Second,
		UnloadTimeout:          60 * time.Second,
		MaxBlockSendsPerClient: 2,
		MaxBlockSendsTotal:     8,
		MaxEmergesPerPeer:      2,
		EmergeWorkers:          1,
		BlockSendDistance:      10,
		BlockGenerateDistance:  6,
		TimeSpeed:              72,
		MaxReach:               10,
	}
}

// TerrainGenerator генератор с высотой поверхности для точки появления
type TerrainGenerator interface {
	world.Generator
	SurfaceHeight(x, z int) int
}

// Deps внешние зависимости сервера
type Deps struct {
	Map       *world.Map
	Generator TerrainGenerator
	Transport Transport
	Auth      *auth.PlayerAuthenticator
	// Positions хранит положения игроков между сессиями; может быть nil
	Positions storage.PositionRepo
	// Bus получает события правок и входов; может быть nil
	Bus        eventbus.EventBus
	Registerer prometheus.Registerer
}

// Server игровой сервер
type Server struct {
	cfg       Config
	m         *world.Map
	gen       TerrainGenerator
	transport Transport
	auth      *auth.PlayerAuthenticator
	positions storage.PositionRepo
	bus       eventbus.EventBus

	serializer *protocol.MessageSerializer
	seq        *atomic.Uint32
	limiter    *rate.Limiter
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *logging.Logger

	emergeQueue *EmergeQueue

	clientsMu sync.RWMutex
	clients   map[network.PeerID]*RemoteClient

	editMu      sync.Mutex
	unsentEdits []world.MapEditEvent

	timeOfDay   *atomic.Uint32
	uptime      *atomic.Float64
	timeCounter float64

	timeSendTimer float32
	saveTimer     float32
	unloadTimer   float32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт сервер и подписывает его на события карты
func New(cfg Config, deps Deps) *Server {
	def := DefaultConfig()
	if cfg.StepInterval <= 0 {
		cfg.StepInterval = def.StepInterval
	}
	if cfg.MaxBlockSendsPerClient <= 0 {
		cfg.MaxBlockSendsPerClient = def.MaxBlockSendsPerClient
	}
	if cfg.MaxBlockSendsTotal <= 0 {
		cfg.MaxBlockSendsTotal = def.MaxBlockSendsTotal
	}
	if cfg.MaxEmergesPerPeer <= 0 {
		cfg.MaxEmergesPerPeer = def.MaxEmergesPerPeer
	}
	if cfg.EmergeWorkers <= 0 {
		cfg.EmergeWorkers = def.EmergeWorkers
	}
	if cfg.MaxReach <= 0 {
		cfg.MaxReach = def.MaxReach
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.SendBytesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SendBytesPerSecond), max(cfg.SendBytesPerSecond, minSendBurst))
	}

	s := &Server{
		cfg:         cfg,
		m:           deps.Map,
		gen:         deps.Generator,
		transport:   deps.Transport,
		auth:        deps.Auth,
		positions:   deps.Positions,
		bus:         deps.Bus,
		serializer:  protocol.NewMessageSerializer(),
		seq:         atomic.NewUint32(0),
		limiter:     limiter,
		metrics:     NewMetrics(deps.Registerer),
		tracer:      otel.Tracer("voxelworld/server"),
		logger:      logging.GetServerLogger(),
		emergeQueue: NewEmergeQueue(),
		clients:     make(map[network.PeerID]*RemoteClient),
		timeOfDay:   atomic.NewUint32(6000),
		uptime:      atomic.NewFloat64(0),
	}
	s.m.AddEventReceiver(world.EventReceiverFunc(s.onMapEdit))
	return s
}

// Map карта сервера
func (s *Server) Map() *world.Map { return s.m }

// Start запускает приём сообщений, загрузку блоков и шаг сервера
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for range s.cfg.EmergeWorkers {
		s.wg.Add(1)
		go s.emergeLoop(ctx)
	}
	s.wg.Add(2)
	go s.receiveLoop(ctx)
	go s.stepLoop(ctx)

	s.logger.Info("🚀 Сервер запущен: шаг %v, радиус отправки %d, генерации %d",
		s.cfg.StepInterval, s.cfg.BlockSendDistance, s.cfg.BlockGenerateDistance)
}

// Stop останавливает циклы и сохраняет мир
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	var errs []error
	if err := s.savePositions(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.m.UnloadAll(ctx); err != nil {
		s.metrics.SaveErrors.Inc()
		errs = append(errs, err)
	}
	s.logger.Info("🛑 Сервер остановлен")
	return errors.Join(errs...)
}

func (s *Server) receiveLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		ev, err := s.transport.Receive(ctx)
		if err != nil {
			return
		}
		s.HandleEvent(ctx, ev)
	}
}

func (s *Server) stepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.StepInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dtime := float32(now.Sub(last).Seconds())
			last = now
			s.Step(ctx, dtime)
		}
	}
}

// Step один шаг сервера
func (s *Server) Step(ctx context.Context, dtime float32) {
	start := time.Now()
	defer func() { s.metrics.StepDuration.Observe(time.Since(start).Seconds()) }()

	s.uptime.Add(float64(dtime))
	s.advanceTime(dtime)

	s.timeSendTimer += dtime
	if s.timeSendTimer >= timeOfDaySendEvery {
		s.timeSendTimer = 0
		s.broadcast(ctx, &protocol.TimeOfDay{Time: s.TimeOfDay()})
	}

	s.forEachClient(func(rc *RemoteClient) { rc.AddTimeFromBuilding(dtime) })

	s.m.StepNodeMetadata(dtime)
	s.processEdits(ctx)
	s.SendBlocks(ctx, dtime)

	if s.cfg.SaveInterval > 0 {
		s.saveTimer += dtime
		if float64(s.saveTimer) >= s.cfg.SaveInterval.Seconds() {
			s.saveTimer = 0
			if err := s.Save(ctx); err != nil {
				s.logger.Error("Ошибка сохранения мира: %v", err)
			}
		}
	}

	s.unloadTimer += dtime
	if s.unloadTimer >= unloadCheckEvery {
		timeout := float32(s.cfg.UnloadTimeout.Seconds())
		if timeout > 0 {
			s.keepClientBlocks()
			if _, err := s.m.TimerUpdate(ctx, s.unloadTimer, timeout); err != nil {
				s.metrics.SaveErrors.Inc()
				s.logger.Error("Ошибка записи при выгрузке блоков: %v", err)
			}
		}
		s.unloadTimer = 0
		s.metrics.LoadedBlocks.Set(float64(s.m.BlockCount()))
	}
}

// keepClientBlocks не даёт выгрузить блоки в радиусе отправки активных игроков
func (s *Server) keepClientBlocks() {
	var centers []vec.Vec3
	s.forEachClient(func(rc *RemoteClient) {
		if c, ok := rc.CenterBlock(); ok {
			centers = append(centers, c)
		}
	})
	s.m.KeepBlocksAround(centers, s.cfg.BlockSendDistance)
}

// Save записывает изменённые блоки и положения игроков
func (s *Server) Save(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "server.save")
	defer span.End()

	n, err := s.m.Save(ctx, world.ModWriteNeeded)
	s.metrics.BlocksSaved.Add(float64(n))
	if err != nil {
		s.metrics.SaveErrors.Inc()
		span.RecordError(err)
	}
	if n > 0 {
		s.logger.Debug("💾 Записано блоков: %d", n)
	}
	return errors.Join(err, s.savePositions(ctx))
}

func (s *Server) savePositions(ctx context.Context) error {
	if s.positions == nil {
		return nil
	}
	var batch []storage.PlayerPosition
	s.forEachClient(func(rc *RemoteClient) {
		if p, ok := rc.playerPosition(); ok {
			batch = append(batch, p)
		}
	})
	if len(batch) == 0 {
		return nil
	}
	if err := s.positions.BatchSave(ctx, batch); err != nil {
		return fmt.Errorf("ошибка записи положений игроков: %w", err)
	}
	return nil
}

// advanceTime двигает время суток на dtime секунд
func (s *Server) advanceTime(dtime float32) {
	s.timeCounter += float64(dtime) * float64(s.cfg.TimeSpeed) * timeOfDayUnits / 86400
	units := uint32(s.timeCounter)
	s.timeCounter -= float64(units)
	if units > 0 {
		s.timeOfDay.Store((s.timeOfDay.Load() + units) % timeOfDayUnits)
	}
}

// TimeOfDay время суток 0..23999
func (s *Server) TimeOfDay() uint16 { return uint16(s.timeOfDay.Load()) }

// SetTimeOfDay задаёт время суток и рассылает его клиентам
func (s *Server) SetTimeOfDay(ctx context.Context, t uint16) {
	s.timeOfDay.Store(uint32(t) % timeOfDayUnits)
	s.broadcast(ctx, &protocol.TimeOfDay{Time: s.TimeOfDay()})
}

// Uptime секунды работы сервера
func (s *Server) Uptime() float64 { return s.uptime.Load() }

// onMapEdit вызывается картой; обработка откладывается до шага
func (s *Server) onMapEdit(ev world.MapEditEvent) {
	s.editMu.Lock()
	s.unsentEdits = append(s.unsentEdits, ev)
	s.editMu.Unlock()
}

// processEdits рассылает накопленные правки карты
func (s *Server) processEdits(ctx context.Context) {
	s.editMu.Lock()
	edits := s.unsentEdits
	s.unsentEdits = nil
	s.editMu.Unlock()

	for _, ev := range edits {
		touched := []vec.Vec3{world.BlockPosOf(ev.Pos)}
		for bp := range ev.ModifiedBlocks {
			touched = append(touched, bp)
		}
		s.m.ResetUsageTimers(touched...)

		switch ev.Type {
		case world.EventAddNode:
			s.sendNodeEdit(ctx, ev, &protocol.AddNode{Pos: ev.Pos, Node: ev.Node})
		case world.EventRemoveNode:
			s.sendNodeEdit(ctx, ev, &protocol.RemoveNode{Pos: ev.Pos})
		default:
			s.forEachClient(func(rc *RemoteClient) { rc.SetBlocksNotSent(ev.ModifiedBlocks) })
		}
		s.publishEdit(ctx, ev)
	}
}

// sendNodeEdit отправляет правку узла клиентам, у которых есть его блок
func (s *Server) sendNodeEdit(ctx context.Context, ev world.MapEditEvent, msg protocol.Message) {
	bp := world.BlockPosOf(ev.Pos)
	s.forEachClient(func(rc *RemoteClient) {
		if uint16(rc.PeerID) == ev.AlreadyKnownBy || !rc.KnowsBlock(bp) {
			return
		}
		if err := s.send(ctx, rc.PeerID, msg); err != nil {
			s.logger.Warn("Правка %s не отправлена пиру %d: %v", ev.Pos, rc.PeerID, err)
		}
	})
}

// MapEditPayload тело события map.edit
type MapEditPayload struct {
	Type    string `json:"type"`
	Pos     [3]int `json:"pos"`
	Content uint8  `json:"content"`
	Blocks  int    `json:"blocks"`
	Peer    uint16 `json:"peer,omitempty"`
}

func (s *Server) publishEdit(ctx context.Context, ev world.MapEditEvent) {
	if s.bus == nil {
		return
	}
	prio := 5
	if ev.Type != world.EventAddNode && ev.Type != world.EventRemoveNode {
		prio = 2
	}
	env, err := eventbus.NewEnvelope(eventbus.TypeMapEdit, "server", prio, MapEditPayload{
		Type:    ev.Type.String(),
		Pos:     [3]int{ev.Pos.X, ev.Pos.Y, ev.Pos.Z},
		Content: ev.Node.Content,
		Blocks:  len(ev.ModifiedBlocks),
		Peer:    ev.AlreadyKnownBy,
	})
	if err == nil {
		err = s.bus.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Debug("Событие правки не опубликовано: %v", err)
	}
}

// PlayerEventPayload тело событий player.join и player.leave
type PlayerEventPayload struct {
	Name    string `json:"name"`
	Peer    uint16 `json:"peer"`
	Session string `json:"session"`
}

func (s *Server) publishPlayer(ctx context.Context, typ string, rc *RemoteClient) {
	if s.bus == nil {
		return
	}
	env, err := eventbus.NewEnvelope(typ, "server", 5, PlayerEventPayload{
		Name:    rc.Name(),
		Peer:    uint16(rc.PeerID),
		Session: rc.SessionID.String(),
	})
	if err == nil {
		err = s.bus.Publish(ctx, env)
	}
	if err != nil {
		s.logger.Debug("Событие %s не опубликовано: %v", typ, err)
	}
}

// BlockStatus состояние блока для выбора отправки
func (s *Server) BlockStatus(pos vec.Vec3) BlockStatus {
	b := s.m.GetBlockNoCreateNoEx(pos)
	switch {
	case b == nil:
		return BlockMissing
	case b.IsDummy():
		return BlockDummy
	case !b.Generated():
		return BlockInvalid
	default:
		return BlockReady
	}
}

// RequestEmerge ставит блок в очередь загрузки, если у пира есть место
func (s *Server) RequestEmerge(peer network.PeerID, pos vec.Vec3, flags EmergeFlags) {
	if s.emergeQueue.PeerItemCount(peer) >= s.cfg.MaxEmergesPerPeer {
		return
	}
	s.emergeQueue.AddBlock(peer, pos, flags)
	s.metrics.EmergeQueue.Set(float64(s.emergeQueue.Size()))
}

// SendBlocks выбирает блоки всех клиентов и отправляет ближайшие,
// пока не исчерпан общий лимит блоков в полёте и байтовый бюджет
func (s *Server) SendBlocks(ctx context.Context, dtime float32) {
	limits := SendLimits{
		MaxSimultaneousSends: s.cfg.MaxBlockSendsPerClient,
		SendDistance:         s.cfg.BlockSendDistance,
		GenerateDistance:     s.cfg.BlockGenerateDistance,
	}

	var queue []BlockTransfer
	total := 0
	s.forEachClient(func(rc *RemoteClient) {
		total += rc.SendingCount()
		queue = append(queue, rc.GetNextBlocks(s, limits, dtime)...)
	})
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Priority < queue[j].Priority })

	var sent []vec.Vec3
	defer func() { s.m.ResetUsageTimers(sent...) }()

	for _, bt := range queue {
		if total >= s.cfg.MaxBlockSendsTotal {
			break
		}
		rc := s.client(bt.Peer)
		if rc == nil {
			continue
		}

		var data []byte
		var err error
		version := rc.SerializationVersion()
		if !s.m.WithBlock(bt.Pos, func(b *world.Block) { data, err = b.SerializeToBytes(version) }) {
			continue
		}
		if err != nil {
			s.logger.Error("Блок %s не сериализован: %v", bt.Pos, err)
			continue
		}

		payload, err := s.serializer.SerializeMessage(&protocol.BlockData{Pos: bt.Pos, Data: data}, s.seq.Inc())
		if err != nil {
			s.logger.Error("BLOCKDATA %s не собран: %v", bt.Pos, err)
			continue
		}
		if !s.limiter.AllowN(time.Now(), min(len(payload), s.limiter.Burst())) {
			break
		}
		if err := s.transport.Send(ctx, bt.Peer, payload); err != nil {
			s.logger.Warn("Блок %s не отправлен пиру %d: %v", bt.Pos, bt.Peer, err)
			continue
		}
		rc.SentBlock(bt.Pos)
		sent = append(sent, bt.Pos)
		total++
		s.metrics.BlocksSent.Inc()
		s.metrics.BlockBytesSent.Add(float64(len(data)))
	}
}

// send кодирует и отправляет сообщение пиру
func (s *Server) send(ctx context.Context, peer network.PeerID, msg protocol.Message) error {
	payload, err := s.serializer.SerializeMessage(msg, s.seq.Inc())
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, peer, payload)
}

// broadcast отправляет сообщение всем клиентам, прошедшим INIT
func (s *Server) broadcast(ctx context.Context, msg protocol.Message) {
	s.forEachClient(func(rc *RemoteClient) {
		if !rc.Active() {
			return
		}
		if err := s.send(ctx, rc.PeerID, msg); err != nil {
			s.logger.Debug("%s не отправлен пиру %d: %v", msg.Command(), rc.PeerID, err)
		}
	})
}

func (s *Server) client(peer network.PeerID) *RemoteClient {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.clients[peer]
}

func (s *Server) forEachClient(fn func(rc *RemoteClient)) {
	s.clientsMu.RLock()
	clients := make([]*RemoteClient, 0, len(s.clients))
	for _, rc := range s.clients {
		clients = append(clients, rc)
	}
	s.clientsMu.RUnlock()
	for _, rc := range clients {
		fn(rc)
	}
}

// Clients снимок состояния клиентов для HTTP API
func (s *Server) Clients() []ClientInfo {
	var out []ClientInfo
	s.forEachClient(func(rc *RemoteClient) { out = append(out, rc.Info()) })
	sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
	return out
}

// EmergeQueueSize заданий в очереди загрузки
func (s *Server) EmergeQueueSize() int { return s.emergeQueue.Size() }

// LoadedBlocks сколько блоков сейчас в памяти
func (s *Server) LoadedBlocks() int { return s.m.BlockCount() }
