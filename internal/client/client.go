// Package client держит копию мира на стороне игрока: принимает блоки
// и правки узлов от сервера, подтверждает их, строит геометрию блоков
// и отправляет серверу положение игрока и действия с узлами.
package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/atomic"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/protocol"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

var (
	// ErrAccessDenied сервер отказал в подключении
	ErrAccessDenied = errors.New("доступ запрещён")
	// ErrNotConnected соединение ещё не открыто или уже закрыто
	ErrNotConnected = errors.New("нет соединения с сервером")
	// ErrUnexpectedCommand сервер прислал команду, адресованную серверу
	ErrUnexpectedCommand = errors.New("неожиданная команда от сервера")
)

// deletedBlocksBatch сколько позиций уходит в одном DeletedBlocks
const deletedBlocksBatch = 255

// Conn соединение с сервером
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

var _ Conn = (*network.Conn)(nil)

// Config параметры клиента
type Config struct {
	Name     string
	Password string

	SmoothLighting bool
	// ViewRange радиус в блоках, внутри которого блоки не выгружаются
	ViewRange     int
	UnloadTimeout time.Duration
	MeshWorkers   int

	PositionSendInterval time.Duration
	// DigStageTime длительность одной стадии трещины
	DigStageTime time.Duration
}

// DefaultConfig параметры по умолчанию
func DefaultConfig() Config {
	return Config{
		SmoothLighting:       true,
		ViewRange:            10,
		UnloadTimeout:        60 * time.Second,
		MeshWorkers:          1,
		PositionSendInterval: 200 * time.Millisecond,
		DigStageTime:         250 * time.Millisecond,
	}
}

// Client клиент игры
type Client struct {
	cfg Config
	m   *world.Map

	conn       Conn
	serializer *protocol.MessageSerializer
	seq        *atomic.Uint32
	logger     *logging.Logger

	meshQueue *MeshUpdateQueue

	initialized          *atomic.Bool
	serializationVersion *atomic.Uint32
	timeOfDay            *atomic.Uint32
	initDone             chan error
	initOnce             sync.Once

	posMu  sync.Mutex
	pos    mgl32.Vec3
	speed  mgl32.Vec3
	pitch  float32
	yaw    float32
	posDue float32

	digMu sync.Mutex
	dig   digState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New создаёт клиента над картой m. Карта обычно без хранилища.
func New(cfg Config, m *world.Map) *Client {
	def := DefaultConfig()
	if cfg.ViewRange <= 0 {
		cfg.ViewRange = def.ViewRange
	}
	if cfg.UnloadTimeout <= 0 {
		cfg.UnloadTimeout = def.UnloadTimeout
	}
	if cfg.MeshWorkers <= 0 {
		cfg.MeshWorkers = def.MeshWorkers
	}
	if cfg.PositionSendInterval <= 0 {
		cfg.PositionSendInterval = def.PositionSendInterval
	}
	if cfg.DigStageTime <= 0 {
		cfg.DigStageTime = def.DigStageTime
	}

	return &Client{
		cfg:                  cfg,
		m:                    m,
		serializer:           protocol.NewMessageSerializer(),
		seq:                  atomic.NewUint32(0),
		logger:               logging.GetClientLogger(),
		meshQueue:            NewMeshUpdateQueue(),
		initialized:          atomic.NewBool(false),
		serializationVersion: atomic.NewUint32(0),
		timeOfDay:            atomic.NewUint32(0),
		initDone:             make(chan error, 1),
		dig:                  digState{crackLevel: -1},
	}
}

// Map карта клиента
func (c *Client) Map() *world.Map { return c.m }

// Connect подключается к серверу и ждёт ответа на Init
func (c *Client) Connect(ctx context.Context, addr string) error {
	conn, err := network.Dial(addr, nil, nil, c.logger)
	if err != nil {
		return err
	}
	if err := c.Attach(ctx, conn); err != nil {
		conn.Close()
		return err
	}
	return c.WaitInit(ctx)
}

// Attach начинает сессию поверх открытого соединения: отправляет Init
// и запускает приём сообщений и построение геометрии.
func (c *Client) Attach(ctx context.Context, conn Conn) error {
	if c.conn != nil {
		return errors.New("клиент уже подключён")
	}
	c.conn = conn

	err := c.send(ctx, &protocol.Init{
		MaxSerializationVersion: world.HighestVersion,
		ProtocolVersion:         protocol.ProtocolVersion,
		PlayerName:              c.cfg.Name,
		Password:                c.cfg.Password,
	})
	if err != nil {
		c.conn = nil
		return fmt.Errorf("failed to send init: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	for range c.cfg.MeshWorkers {
		c.wg.Add(1)
		go c.meshLoop(ctx)
	}
	c.wg.Add(1)
	go c.receiveLoop(ctx)

	c.logger.Info("🔌 Подключение как %q, протокол %d", c.cfg.Name, protocol.ProtocolVersion)
	return nil
}

// WaitInit ждёт InitReply или отказа сервера
func (c *Client) WaitInit(ctx context.Context) error {
	select {
	case err := <-c.initDone:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close закрывает соединение и останавливает фоновые горутины
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.wg.Wait()
	c.initialized.Store(false)
	return err
}

// Initialized получен ли InitReply
func (c *Client) Initialized() bool { return c.initialized.Load() }

// SerializationVersion версия формата блоков, о которой договорились
func (c *Client) SerializationVersion() uint8 {
	return uint8(c.serializationVersion.Load())
}

// TimeOfDay время суток 0..23999 по последнему сообщению сервера
func (c *Client) TimeOfDay() uint32 { return c.timeOfDay.Load() }

// SetPosition обновляет положение игрока. На сервер оно уходит из Step.
func (c *Client) SetPosition(pos, speed mgl32.Vec3, pitch, yaw float32) {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	c.pos = pos
	c.speed = speed
	c.pitch = pitch
	c.yaw = yaw
}

// Position положение игрока
func (c *Client) Position() (mgl32.Vec3, float32, float32) {
	c.posMu.Lock()
	defer c.posMu.Unlock()
	return c.pos, c.pitch, c.yaw
}

// Step продвигает копание, отправляет положение и выгружает блоки
// за пределами видимости
func (c *Client) Step(ctx context.Context, dtime float32) error {
	if !c.Initialized() {
		return nil
	}
	if err := c.stepDigging(ctx, dtime); err != nil {
		return err
	}
	if err := c.stepPosition(ctx, dtime); err != nil {
		return err
	}
	return c.unloadUnused(ctx, dtime)
}

func (c *Client) stepPosition(ctx context.Context, dtime float32) error {
	c.posMu.Lock()
	c.posDue -= dtime
	if c.posDue > 0 {
		c.posMu.Unlock()
		return nil
	}
	c.posDue = float32(c.cfg.PositionSendInterval.Seconds())
	msg := &protocol.PlayerPos{Position: c.pos, Speed: c.speed, Pitch: c.pitch, Yaw: c.yaw}
	c.posMu.Unlock()

	return c.send(ctx, msg)
}

// unloadUnused выгружает блоки, простоявшие вне радиуса видимости,
// и сообщает о них серверу
func (c *Client) unloadUnused(ctx context.Context, dtime float32) error {
	pos, _, _ := c.Position()
	center := world.BlockPosOf(nodePosOf(pos))
	for _, bp := range c.m.BlockPositions() {
		if bp.ChebyshevDistance(center) <= c.cfg.ViewRange {
			c.m.UpdateBlock(bp, func(b *world.Block) { b.ResetUsageTimer() })
		}
	}

	unloaded, err := c.m.TimerUpdate(ctx, dtime, float32(c.cfg.UnloadTimeout.Seconds()))
	if err != nil {
		return err
	}
	for len(unloaded) > 0 {
		n := min(len(unloaded), deletedBlocksBatch)
		if err := c.send(ctx, &protocol.DeletedBlocks{Blocks: unloaded[:n]}); err != nil {
			return err
		}
		unloaded = unloaded[n:]
	}
	return nil
}

func (c *Client) receiveLoop(ctx context.Context) {
	defer c.wg.Done()
	for {
		data, err := c.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Соединение с сервером потеряно: %v", err)
				c.finishInit(fmt.Errorf("%w: %v", ErrNotConnected, err))
			}
			c.initialized.Store(false)
			return
		}
		if err := c.ProcessPacket(ctx, data); errors.Is(err, ErrAccessDenied) {
			c.conn.Close()
			c.initialized.Store(false)
			return
		}
	}
}

// finishInit сообщает WaitInit результат подключения один раз
func (c *Client) finishInit(err error) {
	c.initOnce.Do(func() {
		c.initDone <- err
	})
}

func (c *Client) send(ctx context.Context, msg protocol.Message) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	payload, err := c.serializer.SerializeMessage(msg, c.seq.Inc())
	if err != nil {
		return err
	}
	return c.conn.Send(ctx, payload)
}

// nodePosOf узел, в котором находится точка
func nodePosOf(p mgl32.Vec3) vec.Vec3 {
	return vec.New(
		int(math.Floor(float64(p.X()))),
		int(math.Floor(float64(p.Y()))),
		int(math.Floor(float64(p.Z()))),
	)
}
