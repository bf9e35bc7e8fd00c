package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annel0/voxelworld/internal/eventbus"
	"github.com/annel0/voxelworld/internal/logging"
)

// OutboundWebhook внешний адрес, куда уходят события шины
type OutboundWebhook struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name" binding:"required"`
	URL          string     `json:"url" binding:"required"`
	Secret       string     `json:"secret,omitempty"`
	Events       []string   `json:"events" binding:"required"` // типы событий, "*" - все
	Active       bool       `json:"active"`
	Timeout      int        `json:"timeout"` // секунды
	RetryCount   int        `json:"retry_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	FailureCount int        `json:"failure_count"`
}

// WebhookManager пересылает события шины на внешние адреса. Тело
// запроса - Envelope в JSON, подпись HMAC-SHA256 в X-Webhook-Signature.
type WebhookManager struct {
	mu         sync.RWMutex
	webhooks   map[uint64]*OutboundWebhook
	nextID     uint64
	httpClient *http.Client
	serverID   string
	sub        eventbus.Subscription
	wg         sync.WaitGroup
	logger     *logging.Logger
}

// NewWebhookManager создаёт пустой менеджер
func NewWebhookManager(serverID string) *WebhookManager {
	return &WebhookManager{
		webhooks:   make(map[uint64]*OutboundWebhook),
		nextID:     1,
		serverID:   serverID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.GetComponentLogger("webhooks"),
	}
}

// Start подписывается на все события шины
func (wm *WebhookManager) Start(ctx context.Context, bus eventbus.EventBus) error {
	sub, err := bus.Subscribe(ctx, eventbus.Filter{}, wm.dispatch)
	if err != nil {
		return err
	}
	wm.sub = sub
	return nil
}

// Stop отписывается и ждёт уже начатых отправок
func (wm *WebhookManager) Stop() {
	if wm.sub != nil {
		wm.sub.Unsubscribe()
	}
	wm.wg.Wait()
}

// AddWebhook добавляет новый webhook
func (wm *WebhookManager) AddWebhook(webhook OutboundWebhook) *OutboundWebhook {
	wm.mu.Lock()
	defer wm.mu.Unlock()

	webhook.ID = wm.nextID
	wm.nextID++
	webhook.CreatedAt = time.Now()
	webhook.Active = true
	if webhook.Timeout <= 0 {
		webhook.Timeout = 10
	}
	if webhook.RetryCount <= 0 {
		webhook.RetryCount = 3
	}

	wm.webhooks[webhook.ID] = &webhook
	out := webhook
	return &out
}

// GetWebhooks копии всех webhook'ов по возрастанию ID
func (wm *WebhookManager) GetWebhooks() []OutboundWebhook {
	wm.mu.RLock()
	defer wm.mu.RUnlock()

	out := make([]OutboundWebhook, 0, len(wm.webhooks))
	for _, w := range wm.webhooks {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeleteWebhook удаляет webhook
func (wm *WebhookManager) DeleteWebhook(id uint64) bool {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if _, ok := wm.webhooks[id]; !ok {
		return false
	}
	delete(wm.webhooks, id)
	return true
}

// dispatch отправляет событие каждому подписанному webhook'у
func (wm *WebhookManager) dispatch(ctx context.Context, ev *eventbus.Envelope) {
	wm.mu.RLock()
	var targets []OutboundWebhook
	for _, w := range wm.webhooks {
		if w.Active && subscribed(w.Events, ev.EventType) {
			targets = append(targets, *w)
		}
	}
	wm.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		wm.logger.Error("Ошибка маршалинга события %s: %v", ev.EventType, err)
		return
	}
	for _, w := range targets {
		wm.wg.Add(1)
		go func(w OutboundWebhook) {
			defer wm.wg.Done()
			ok := wm.send(context.WithoutCancel(ctx), w, ev.EventType, body)
			wm.recordResult(w.ID, ok)
		}(w)
	}
}

func subscribed(events []string, eventType string) bool {
	for _, e := range events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// send делает до RetryCount+1 попыток с растущей паузой
func (wm *WebhookManager) send(ctx context.Context, w OutboundWebhook, eventType string, body []byte) bool {
	for attempt := 0; attempt <= w.RetryCount; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		reqCtx, cancel := context.WithTimeout(ctx, time.Duration(w.Timeout)*time.Second)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, w.URL, bytes.NewReader(body))
		if err != nil {
			cancel()
			wm.logger.Error("Ошибка создания запроса для webhook %s: %v", w.Name, err)
			return false
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "voxelworld-server/1.0")
		req.Header.Set("X-Event-Type", eventType)
		req.Header.Set("X-Server-ID", wm.serverID)
		if w.Secret != "" {
			req.Header.Set("X-Webhook-Signature", Sign(body, w.Secret))
		}

		resp, err := wm.httpClient.Do(req)
		if err != nil {
			cancel()
			wm.logger.Warn("⚠️ Попытка %d/%d для webhook %s: %v", attempt+1, w.RetryCount+1, w.Name, err)
			continue
		}
		resp.Body.Close()
		cancel()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			wm.logger.Debug("Событие %s отправлено в webhook %s", eventType, w.Name)
			return true
		}
		wm.logger.Warn("⚠️ Webhook %s вернул статус %d на попытке %d", w.Name, resp.StatusCode, attempt+1)
	}
	return false
}

func (wm *WebhookManager) recordResult(id uint64, ok bool) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	w, exists := wm.webhooks[id]
	if !exists {
		return
	}
	now := time.Now()
	w.LastUsed = &now
	if !ok {
		w.FailureCount++
	}
}

// Sign подпись тела: "sha256=" + hex(HMAC-SHA256)
func Sign(data []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (rs *RestServer) handleGetWebhooks(c *gin.Context) {
	webhooks := rs.webhooks.GetWebhooks()
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список webhook'ов получен",
		Data:    gin.H{"webhooks": webhooks, "total": len(webhooks)},
	})
}

func (rs *RestServer) handleCreateWebhook(c *gin.Context) {
	var req OutboundWebhook
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный формат запроса"})
		return
	}
	created := rs.webhooks.AddWebhook(req)
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Webhook создан", Data: created})
}

func (rs *RestServer) handleDeleteWebhook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Неверный ID"})
		return
	}
	if !rs.webhooks.DeleteWebhook(id) {
		c.JSON(http.StatusNotFound, GenericResponse{Message: "Webhook не найден"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Webhook удалён"})
}
