package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/xtaci/kcp-go/v5"
	"go.uber.org/atomic"

	"github.com/annel0/voxelworld/internal/logging"
)

// Conn одна сессия KCP. Запись идёт через очередь и отдельную горутину,
// входящие кадры складываются в очередь приёма.
type Conn struct {
	id      PeerID
	conn    net.Conn
	session *kcp.UDPSession
	codec   *FrameCodec
	config  *ChannelConfig
	metrics *Metrics
	logger  *logging.Logger

	sendBuffer chan []byte
	recvBuffer chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
	ownsCodec bool

	packetsSent     *atomic.Uint64
	packetsReceived *atomic.Uint64
	bytesSent       *atomic.Uint64
	bytesReceived   *atomic.Uint64
	lastActivity    *atomic.Int64
	connected       *atomic.Bool
}

// tuneSession настраивает KCP для игрового трафика
func tuneSession(s *kcp.UDPSession) {
	s.SetStreamMode(true)
	s.SetWriteDelay(false)
	s.SetNoDelay(1, 20, 2, 1) // Агрессивные настройки для игр
	s.SetWindowSize(512, 512) // Увеличиваем окно для пропускной способности
	s.SetMtu(1400)            // Стандартный MTU для интернета
}

// newConn оборачивает соединение и запускает циклы чтения и записи
func newConn(id PeerID, conn net.Conn, codec *FrameCodec, cfg *ChannelConfig, metrics *Metrics, logger *logging.Logger) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:              id,
		conn:            conn,
		codec:           codec,
		config:          cfg,
		metrics:         metrics,
		logger:          logger,
		sendBuffer:      make(chan []byte, cfg.SendQueue),
		recvBuffer:      make(chan []byte, cfg.RecvQueue),
		ctx:             ctx,
		cancel:          cancel,
		packetsSent:     atomic.NewUint64(0),
		packetsReceived: atomic.NewUint64(0),
		bytesSent:       atomic.NewUint64(0),
		bytesReceived:   atomic.NewUint64(0),
		lastActivity:    atomic.NewInt64(time.Now().UnixNano()),
		connected:       atomic.NewBool(true),
	}
	if s, ok := conn.(*kcp.UDPSession); ok {
		c.session = s
		tuneSession(s)
	}

	c.wg.Add(2)
	go c.sendLoop()
	go c.receiveLoop()
	return c
}

// Dial подключается к серверу KCP
func Dial(addr string, cfg *ChannelConfig, metrics *Metrics, logger *logging.Logger) (*Conn, error) {
	if cfg == nil {
		cfg = DefaultChannelConfig()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = logging.GetNetworkLogger()
	}

	codec, err := NewFrameCodec(cfg)
	if err != nil {
		return nil, err
	}
	sess, err := kcp.DialWithOptions(addr, nil, cfg.DataShards, cfg.ParityShards)
	if err != nil {
		codec.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	logger.Info("KCP channel connected: addr=%s", addr)
	c := newConn(PeerIDServer, sess, codec, cfg, metrics, logger)
	c.ownsCodec = true
	return c, nil
}

// ID номер пира
func (c *Conn) ID() PeerID { return c.id }

// Send ставит кадр в очередь отправки
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	if !c.IsConnected() {
		return ErrClosed
	}
	select {
	case c.sendBuffer <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Receive ждёт следующий входящий кадр
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.recvBuffer:
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		// Дочитываем то, что успело прийти до закрытия
		select {
		case data := <-c.recvBuffer:
			return data, nil
		default:
			return nil, ErrClosed
		}
	}
}

// Done закрывается, когда соединение закрыто
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Close закрывает канал
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.connected.Store(false)
		c.cancel()
		c.closeErr = c.conn.Close()
		c.wg.Wait()
		if c.ownsCodec {
			c.codec.Close()
		}
		c.logger.Debug("KCP channel closed: peer=%d", c.id)
	})
	return c.closeErr
}

// IsConnected проверяет состояние соединения
func (c *Conn) IsConnected() bool {
	return c.connected.Load()
}

// RemoteAddr возвращает адрес удалённого узла
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// LastActivity время последнего принятого кадра
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Stats возвращает статистику соединения
func (c *Conn) Stats() ConnectionStats {
	s := ConnectionStats{
		PacketsSent:     c.packetsSent.Load(),
		PacketsReceived: c.packetsReceived.Load(),
		BytesSent:       c.bytesSent.Load(),
		BytesReceived:   c.bytesReceived.Load(),
		LastActivity:    c.LastActivity(),
		Connected:       c.IsConnected(),
		RemoteAddr:      c.RemoteAddr(),
	}
	if c.session != nil {
		s.RTT = time.Duration(c.session.GetSRTT()) * time.Millisecond
	}
	return s
}

// sendLoop обрабатывает отправку кадров
func (c *Conn) sendLoop() {
	defer c.wg.Done()

	for {
		select {
		case payload := <-c.sendBuffer:
			if err := c.writeFrame(payload); err != nil {
				c.logger.Error("Failed to send frame to peer %d: %v", c.id, err)
				if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
					c.connected.Store(false)
					c.cancel()
					return
				}
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Conn) writeFrame(payload []byte) error {
	frame, compressed, err := c.codec.Encode(payload)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	c.packetsSent.Inc()
	c.bytesSent.Add(uint64(len(frame)))
	c.metrics.FramesSent.Inc()
	c.metrics.BytesSent.Add(float64(len(frame)))
	if compressed {
		c.metrics.FramesCompressed.Inc()
	}
	return nil
}

// receiveLoop читает кадры, пока соединение не закроется
func (c *Conn) receiveLoop() {
	defer c.wg.Done()
	defer c.cancel()

	reader := bufio.NewReaderSize(c.conn, 64*1024)
	for {
		payload, n, err := c.codec.ReadFrame(reader)
		if err != nil {
			c.connected.Store(false)
			select {
			case <-c.ctx.Done():
			default:
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					c.metrics.FrameErrors.Inc()
					c.logger.Warn("Failed to read frame from peer %d: %v", c.id, err)
				}
			}
			// После ошибки в потоке граница кадров потеряна
			return
		}

		c.packetsReceived.Inc()
		c.bytesReceived.Add(uint64(n))
		c.lastActivity.Store(time.Now().UnixNano())
		c.metrics.FramesReceived.Inc()
		c.metrics.BytesReceived.Add(float64(n))

		select {
		case c.recvBuffer <- payload:
		case <-c.ctx.Done():
			return
		}
	}
}
