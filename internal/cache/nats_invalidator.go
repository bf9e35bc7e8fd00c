package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/atomic"

	"github.com/annel0/voxelworld/internal/logging"
)

// NATSInvalidator рассылает инвалидацию ключей между узлами через NATS.
// Свои сообщения узел пропускает, повторы одного ключа в пределах
// DedupeWindow схлопываются.
type NATSInvalidator struct {
	conn    *nats.Conn
	config  InvalidatorConfig
	nodeID  string
	logger  *logging.Logger
	subMu   sync.Mutex
	sub     *nats.Subscription
	handler InvalidationHandler

	stopCh chan struct{}
	wg     sync.WaitGroup

	keysMu     sync.Mutex
	recentKeys map[string]time.Time

	published *atomic.Int64
	received  *atomic.Int64
	errors    *atomic.Int64
}

// InvalidatorConfig содержит конфигурацию для NATS invalidator.
type InvalidatorConfig struct {
	NATSURL       string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
	DedupeWindow  time.Duration
}

// InvalidationMessage представляет сообщение об инвалидации кеша.
type InvalidationMessage struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id"`
}

// NewNATSInvalidator подключается к NATS
func NewNATSInvalidator(config InvalidatorConfig, nodeID string) (*NATSInvalidator, error) {
	if config.Subject == "" {
		config.Subject = "voxel.cache.invalidate"
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = 10
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 2 * time.Second
	}
	if config.DedupeWindow == 0 {
		config.DedupeWindow = time.Second
	}

	logger := logging.GetComponentLogger("cache")
	conn, err := nats.Connect(config.NATSURL,
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := &NATSInvalidator{
		conn:       conn,
		config:     config,
		nodeID:     nodeID,
		logger:     logger,
		stopCh:     make(chan struct{}),
		recentKeys: make(map[string]time.Time),
		published:  atomic.NewInt64(0),
		received:   atomic.NewInt64(0),
		errors:     atomic.NewInt64(0),
	}
	n.wg.Add(1)
	go n.dedupeCleanupLoop()

	logger.Info("NATS invalidator: %s (subject: %s)", config.NATSURL, config.Subject)
	return n, nil
}

// PublishInvalidation отправляет уведомление об инвалидации ключа.
func (n *NATSInvalidator) PublishInvalidation(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.seenRecently(key) {
		return nil
	}
	data, err := json.Marshal(InvalidationMessage{Key: key, Timestamp: time.Now(), NodeID: n.nodeID})
	if err != nil {
		n.errors.Inc()
		return err
	}
	if err := n.conn.Publish(n.config.Subject, data); err != nil {
		n.errors.Inc()
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	n.published.Inc()
	return nil
}

// SubscribeInvalidations подписывается до отмены ctx или Close
func (n *NATSInvalidator) SubscribeInvalidations(ctx context.Context, handler InvalidationHandler) error {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.sub != nil {
		return fmt.Errorf("already subscribed to invalidations")
	}
	n.handler = handler
	sub, err := n.conn.Subscribe(n.config.Subject, n.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to invalidations: %w", err)
	}
	n.sub = sub

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		select {
		case <-ctx.Done():
		case <-n.stopCh:
		}
		n.unsubscribe()
	}()
	return nil
}

func (n *NATSInvalidator) handleMessage(msg *nats.Msg) {
	n.received.Inc()
	var m InvalidationMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		n.errors.Inc()
		n.logger.Warn("Битое сообщение инвалидации: %v", err)
		return
	}
	if m.NodeID == n.nodeID {
		return
	}
	if err := n.handler(m.Key); err != nil {
		n.errors.Inc()
		n.logger.Warn("Инвалидация %s не применена: %v", m.Key, err)
	}
}

// seenRecently запоминает ключ и сообщает, был ли он в окне дедупликации
func (n *NATSInvalidator) seenRecently(key string) bool {
	n.keysMu.Lock()
	defer n.keysMu.Unlock()
	now := time.Now()
	if last, ok := n.recentKeys[key]; ok && now.Sub(last) < n.config.DedupeWindow {
		return true
	}
	n.recentKeys[key] = now
	return false
}

func (n *NATSInvalidator) dedupeCleanupLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.config.DedupeWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.keysMu.Lock()
			now := time.Now()
			for key, ts := range n.recentKeys {
				if now.Sub(ts) > n.config.DedupeWindow {
					delete(n.recentKeys, key)
				}
			}
			n.keysMu.Unlock()
		case <-n.stopCh:
			return
		}
	}
}

func (n *NATSInvalidator) unsubscribe() {
	n.subMu.Lock()
	defer n.subMu.Unlock()
	if n.sub != nil {
		if err := n.sub.Unsubscribe(); err != nil {
			n.logger.Debug("Failed to unsubscribe from invalidations: %v", err)
		}
		n.sub = nil
	}
}

// Close закрывает соединение с NATS.
func (n *NATSInvalidator) Close() error {
	close(n.stopCh)
	n.wg.Wait()
	n.conn.Close()
	return nil
}

// Counters опубликовано, получено, ошибок
func (n *NATSInvalidator) Counters() (published, received, errs int64) {
	return n.published.Load(), n.received.Load(), n.errors.Load()
}
