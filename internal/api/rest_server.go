// Package api административный HTTP API сервера мира: состояние,
// список клиентов, сохранение, время суток, поток событий и /metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxelworld/internal/auth"
	"github.com/annel0/voxelworld/internal/eventbus"
	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/middleware"
	"github.com/annel0/voxelworld/internal/server"
)

// GameServer то, что API спрашивает у игрового сервера
type GameServer interface {
	Clients() []server.ClientInfo
	EmergeQueueSize() int
	LoadedBlocks() int
	TimeOfDay() uint16
	SetTimeOfDay(ctx context.Context, t uint16)
	Uptime() float64
	Save(ctx context.Context) error
}

var _ GameServer = (*server.Server)(nil)

// Config содержит конфигурацию для REST сервера
type Config struct {
	Addr   string // адрес для запуска сервера, ":8088"
	Game   GameServer
	Auth   *auth.PlayerAuthenticator
	Tokens *auth.TokenIssuer
	// Bus источник /api/v1/events и исходящих webhook'ов; может быть nil
	Bus eventbus.EventBus
	// Registry регистр метрик для /metrics; nil - регистр по умолчанию
	Registry *prometheus.Registry
	// Webhooks начальный список исходящих webhook'ов
	Webhooks []OutboundWebhook
}

// RestServer представляет REST API сервер
type RestServer struct {
	router   *gin.Engine
	httpSrv  *http.Server
	game     GameServer
	auth     *auth.PlayerAuthenticator
	tokens   *auth.TokenIssuer
	bus      eventbus.EventBus
	metrics  *ProcessMetrics
	webhooks *WebhookManager
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewRestServer создает новый REST API сервер
func NewRestServer(cfg Config) *RestServer {
	if cfg.Addr == "" {
		cfg.Addr = ":8088"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("voxelworld-api"))
	router.Use(middleware.NewRequestLogger("/health", "/api/v1/status").Handler())

	var reg prometheus.Registerer
	var gatherer prometheus.Gatherer
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
	} else {
		reg, gatherer = prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	}
	promMw := middleware.NewPrometheusMiddleware("api", reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	rs := &RestServer{
		router:   router,
		game:     cfg.Game,
		auth:     cfg.Auth,
		tokens:   cfg.Tokens,
		bus:      cfg.Bus,
		metrics:  NewProcessMetrics(),
		webhooks: NewWebhookManager("voxelworld"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logging.GetComponentLogger("api"),
	}
	for _, wh := range cfg.Webhooks {
		rs.webhooks.AddWebhook(wh)
	}
	rs.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	v1 := rs.router.Group("/api/v1")
	v1.GET("/status", rs.handleStatus)
	v1.GET("/clients", rs.handleClients)

	admin := v1.Group("/admin")
	admin.POST("/login", rs.handleLogin)

	protected := admin.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.POST("/save", requirePrivs(auth.PrivServer), rs.handleSave)
		protected.POST("/time", requirePrivs(auth.PrivSetTime), rs.handleSetTime)
		protected.GET("/events", requirePrivs(auth.PrivServer), rs.handleEvents)

		protected.GET("/webhooks", requirePrivs(auth.PrivServer), rs.handleGetWebhooks)
		protected.POST("/webhooks", requirePrivs(auth.PrivServer), rs.handleCreateWebhook)
		protected.DELETE("/webhooks/:id", requirePrivs(auth.PrivServer), rs.handleDeleteWebhook)
	}
}

// Handler маршрутизатор, для тестов и встраивания
func (rs *RestServer) Handler() http.Handler { return rs.router }

// Start подписывает webhook'и на шину и слушает порт до Stop
func (rs *RestServer) Start(ctx context.Context) error {
	if rs.bus != nil {
		if err := rs.webhooks.Start(ctx, rs.bus); err != nil {
			return err
		}
	}
	rs.logger.Info("🌐 Admin API на %s", rs.httpSrv.Addr)
	if err := rs.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop дожидается текущих запросов не дольше ctx
func (rs *RestServer) Stop(ctx context.Context) error {
	rs.webhooks.Stop()
	return rs.httpSrv.Shutdown(ctx)
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Privs     string    `json:"privs,omitempty"`
	Message   string    `json:"message"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatusResponse состояние мира и процесса
type StatusResponse struct {
	Clients      int          `json:"clients"`
	LoadedBlocks int          `json:"loaded_blocks"`
	EmergeQueue  int          `json:"emerge_queue"`
	TimeOfDay    uint16       `json:"time_of_day"`
	GameUptime   float64      `json:"game_uptime_s"`
	Process      ProcessStats `json:"process"`
}

// TimeRequest новое время суток 0..23999
type TimeRequest struct {
	Time *uint16 `json:"time" binding:"required"`
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

func (rs *RestServer) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Clients:      len(rs.game.Clients()),
		LoadedBlocks: rs.game.LoadedBlocks(),
		EmergeQueue:  rs.game.EmergeQueueSize(),
		TimeOfDay:    rs.game.TimeOfDay(),
		GameUptime:   rs.game.Uptime(),
		Process:      rs.metrics.Snapshot(),
	})
}

func (rs *RestServer) handleClients(c *gin.Context) {
	clients := rs.game.Clients()
	if clients == nil {
		clients = []server.ClientInfo{}
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Подключённые клиенты",
		Data:    clients,
	})
}

// handleLogin выдаёт токен по имени и паролю игрока
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	user, err := rs.auth.Login(c.Request.Context(), req.Username, req.Password, auth.PrivNone)
	switch {
	case errors.Is(err, auth.ErrWrongPassword):
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	case err != nil:
		rs.logger.Error("Ошибка входа %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}

	token, expires, err := rs.tokens.Issue(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Ошибка генерации токена"})
		return
	}
	c.JSON(http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expires,
		Privs:     user.Privs.String(),
		Message:   "Успешная авторизация",
	})
}

func (rs *RestServer) handleSave(c *gin.Context) {
	if err := rs.game.Save(c.Request.Context()); err != nil {
		rs.logger.Error("Сохранение по запросу API: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Message: "Ошибка сохранения: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Мир сохранён"})
}

func (rs *RestServer) handleSetTime(c *gin.Context) {
	var req TimeRequest
	if err := c.ShouldBindJSON(&req); err != nil || *req.Time >= 24000 {
		c.JSON(http.StatusBadRequest, GenericResponse{Message: "Время суток должно быть от 0 до 23999"})
		return
	}
	rs.game.SetTimeOfDay(c.Request.Context(), *req.Time)
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Время суток изменено",
		Data:    gin.H{"time_of_day": rs.game.TimeOfDay()},
	})
}
