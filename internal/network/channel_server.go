package network

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/xtaci/kcp-go/v5"

	"github.com/annel0/voxelworld/internal/logging"
)

// EventType тип события сервера
type EventType int

const (
	EventConnect EventType = iota
	EventData
	EventDisconnect
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "connect"
	case EventData:
		return "data"
	default:
		return "disconnect"
	}
}

// Event подключение, кадр или отключение пира
type Event struct {
	Type EventType
	Peer PeerID
	Data []byte
	Addr string
}

// ChannelServer представляет сервер каналов
type ChannelServer struct {
	addr     string
	listener *kcp.Listener
	config   *ChannelConfig
	codec    *FrameCodec
	metrics  *Metrics

	peers    map[PeerID]*Conn
	nextPeer PeerID
	peersMu  sync.RWMutex

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logging.Logger
}

// NewChannelServer создаёт новый сервер
func NewChannelServer(addr string, config *ChannelConfig, metrics *Metrics) (*ChannelServer, error) {
	if config == nil {
		config = DefaultChannelConfig()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	codec, err := NewFrameCodec(config)
	if err != nil {
		return nil, err
	}
	return &ChannelServer{
		addr:     addr,
		config:   config,
		codec:    codec,
		metrics:  metrics,
		peers:    make(map[PeerID]*Conn),
		nextPeer: firstClientPeer,
		events:   make(chan Event, config.RecvQueue),
		logger:   logging.GetNetworkLogger(),
	}, nil
}

// Start запускает сервер
func (cs *ChannelServer) Start() error {
	listener, err := kcp.ListenWithOptions(cs.addr, nil, cs.config.DataShards, cs.config.ParityShards)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cs.addr, err)
	}

	cs.listener = listener
	cs.ctx, cs.cancel = context.WithCancel(context.Background())

	cs.wg.Add(2)
	go cs.acceptLoop()
	go cs.timeoutLoop()

	cs.logger.Info("🚀 Channel server started on %s", listener.Addr())
	return nil
}

// Addr фактический адрес (после Start)
func (cs *ChannelServer) Addr() net.Addr {
	if cs.listener == nil {
		return nil
	}
	return cs.listener.Addr()
}

// Stop останавливает сервер
func (cs *ChannelServer) Stop() error {
	if cs.cancel != nil {
		cs.cancel()
	}
	if cs.listener != nil {
		cs.listener.Close()
	}

	cs.peersMu.Lock()
	peers := cs.peers
	cs.peers = make(map[PeerID]*Conn)
	cs.peersMu.Unlock()
	for _, c := range peers {
		c.Close()
	}

	cs.wg.Wait()
	cs.codec.Close()
	cs.metrics.Peers.Set(0)

	cs.logger.Info("🛑 Channel server stopped")
	return nil
}

// Receive ждёт следующее событие
func (cs *ChannelServer) Receive(ctx context.Context) (Event, error) {
	select {
	case ev := <-cs.events:
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// TryReceive возвращает событие, если оно уже есть
func (cs *ChannelServer) TryReceive() (Event, bool) {
	select {
	case ev := <-cs.events:
		return ev, true
	default:
		return Event{}, false
	}
}

// acceptLoop принимает входящие соединения
func (cs *ChannelServer) acceptLoop() {
	defer cs.wg.Done()

	for {
		sess, err := cs.listener.AcceptKCP()
		if err != nil {
			select {
			case <-cs.ctx.Done():
				return // Сервер останавливается
			default:
				cs.logger.Error("Failed to accept connection: %v", err)
				continue
			}
		}

		id, ok := cs.allocatePeer()
		if !ok {
			cs.logger.Warn("Нет свободных номеров пиров, соединение %s закрыто", sess.RemoteAddr())
			sess.Close()
			continue
		}

		c := newConn(id, sess, cs.codec, cs.config, cs.metrics, cs.logger)
		cs.peersMu.Lock()
		cs.peers[id] = c
		cs.peersMu.Unlock()
		cs.metrics.Peers.Inc()

		cs.logger.Info("🔌 Peer %d connected from %s", id, sess.RemoteAddr())
		cs.emit(Event{Type: EventConnect, Peer: id, Addr: sess.RemoteAddr().String()})

		cs.wg.Add(1)
		go cs.readLoop(c)
	}
}

// allocatePeer выдаёт свободный номер пира
func (cs *ChannelServer) allocatePeer() (PeerID, bool) {
	cs.peersMu.Lock()
	defer cs.peersMu.Unlock()
	for range 0xffff {
		id := cs.nextPeer
		cs.nextPeer++
		if cs.nextPeer < firstClientPeer {
			cs.nextPeer = firstClientPeer
		}
		if _, used := cs.peers[id]; !used {
			return id, true
		}
	}
	return PeerIDInexistent, false
}

func (cs *ChannelServer) emit(ev Event) {
	select {
	case cs.events <- ev:
	case <-cs.ctx.Done():
	}
}

// readLoop пересылает кадры пира в общую очередь событий
func (cs *ChannelServer) readLoop(c *Conn) {
	defer cs.wg.Done()

	for {
		data, err := c.Receive(cs.ctx)
		if err != nil {
			break
		}
		cs.emit(Event{Type: EventData, Peer: c.ID(), Data: data})
	}
	cs.disconnect(c.ID(), "соединение закрыто")
}

// timeoutLoop проверяет таймауты клиентов
func (cs *ChannelServer) timeoutLoop() {
	defer cs.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cs.ctx.Done():
			return
		case <-ticker.C:
			cs.checkTimeouts(time.Now())
		}
	}
}

// checkTimeouts проверяет и отключает неактивных клиентов
func (cs *ChannelServer) checkTimeouts(now time.Time) {
	cs.peersMu.RLock()
	var stale []PeerID
	for id, c := range cs.peers {
		if now.Sub(c.LastActivity()) > cs.config.Timeout {
			stale = append(stale, id)
		}
	}
	cs.peersMu.RUnlock()

	for _, id := range stale {
		cs.logger.Warn("⏱️ Peer %d timed out", id)
		cs.metrics.Timeouts.Inc()
		cs.Disconnect(id)
	}
}

// Disconnect закрывает соединение пира. Событие отключения придёт
// через очередь, когда цикл чтения завершится.
func (cs *ChannelServer) Disconnect(id PeerID) {
	cs.peersMu.RLock()
	c := cs.peers[id]
	cs.peersMu.RUnlock()
	if c != nil {
		c.Close()
	}
}

func (cs *ChannelServer) disconnect(id PeerID, reason string) {
	cs.peersMu.Lock()
	c, exists := cs.peers[id]
	if exists {
		delete(cs.peers, id)
	}
	cs.peersMu.Unlock()
	if !exists {
		return
	}

	c.Close()
	cs.metrics.Peers.Dec()
	cs.logger.Info("👋 Peer %d disconnected: %s", id, reason)
	cs.emit(Event{Type: EventDisconnect, Peer: id})
}

// Send отправляет кадр пиру
func (cs *ChannelServer) Send(ctx context.Context, id PeerID, payload []byte) error {
	cs.peersMu.RLock()
	c, exists := cs.peers[id]
	cs.peersMu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %d", ErrPeerNotFound, id)
	}
	return c.Send(ctx, payload)
}

// PeerStats статистика соединения пира
func (cs *ChannelServer) PeerStats(id PeerID) (ConnectionStats, bool) {
	cs.peersMu.RLock()
	defer cs.peersMu.RUnlock()
	c, ok := cs.peers[id]
	if !ok {
		return ConnectionStats{}, false
	}
	return c.Stats(), true
}

// PeerCount возвращает количество подключенных пиров
func (cs *ChannelServer) PeerCount() int {
	cs.peersMu.RLock()
	defer cs.peersMu.RUnlock()
	return len(cs.peers)
}
