// Package app собирает процесс из конфигурации: хранилища, шину событий,
// игровой сервер, админский API и локального клиента.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/voxelworld/internal/api"
	"github.com/annel0/voxelworld/internal/auth"
	"github.com/annel0/voxelworld/internal/cache"
	"github.com/annel0/voxelworld/internal/client"
	"github.com/annel0/voxelworld/internal/config"
	"github.com/annel0/voxelworld/internal/eventbus"
	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/observability"
	"github.com/annel0/voxelworld/internal/server"
	"github.com/annel0/voxelworld/internal/storage"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// ServerConfig переносит секцию server в параметры игрового сервера.
// Нулевые поля остаются нулевыми, server.New заменит их значениями по умолчанию.
func ServerConfig(cfg *config.Config) server.Config {
	sc := server.DefaultConfig()
	s := cfg.Server
	if d := s.StepInterval(); d > 0 {
		sc.StepInterval = d
	}
	if d := s.SaveInterval(); d > 0 {
		sc.SaveInterval = d
	}
	if d := s.UnloadTimeout(); d > 0 {
		sc.UnloadTimeout = d
	}
	setIfPositive(&sc.MaxBlockSendsPerClient, s.MaxBlockSendsPerClient)
	setIfPositive(&sc.MaxBlockSendsTotal, s.MaxBlockSendsTotal)
	setIfPositive(&sc.MaxEmergesPerPeer, s.MaxSimultaneousEmerges)
	setIfPositive(&sc.EmergeWorkers, s.EmergeWorkers)
	setIfPositive(&sc.BlockSendDistance, s.BlockSendDistance)
	setIfPositive(&sc.BlockGenerateDistance, s.BlockGenerateDistance)
	setIfPositive(&sc.SendBytesPerSecond, s.SendBytesPerSecond)
	if s.TimeSpeed > 0 {
		sc.TimeSpeed = s.TimeSpeed
	}
	sc.DefaultPassword = s.DefaultPassword
	sc.AdminName = s.AdminName
	return sc
}

// DefaultPlayerName имя клиента, если в конфиге его нет
const DefaultPlayerName = "singleplayer"

// ClientConfig переносит секцию client в параметры клиента
func ClientConfig(cfg *config.Config) client.Config {
	cc := client.DefaultConfig()
	c := cfg.Client
	cc.Name = DefaultPlayerName
	if c.Name != "" {
		cc.Name = c.Name
	}
	cc.Password = c.Password
	cc.SmoothLighting = c.Smooth()
	setIfPositive(&cc.ViewRange, c.ViewRange)
	if d := cfg.Server.UnloadTimeout(); d > 0 {
		cc.UnloadTimeout = d
	}
	return cc
}

func setIfPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Runtime все компоненты серверного процесса
type Runtime struct {
	cfg      *config.Config
	Registry *prometheus.Registry

	Store     storage.Store
	Map       *world.Map
	Users     auth.UserRepository
	Positions storage.PositionRepo
	Bus       eventbus.EventBus
	Transport *network.ChannelServer
	Server    *server.Server
	API       *api.RestServer

	busMetrics  *eventbus.MetricsExporter
	started     bool
	busLog      eventbus.Subscription
	metricsHTTP *http.Server
	telemetry   observability.ShutdownFunc
	logger      *logging.Logger
}

// NewServerRuntime открывает хранилища и создаёт сервер. Ничего не
// слушает до Start. При ошибке уже открытое закрывается.
func NewServerRuntime(ctx context.Context, cfg *config.Config) (_ *Runtime, err error) {
	rt := &Runtime{
		cfg:      cfg,
		Registry: prometheus.NewRegistry(),
		logger:   logging.GetServerLogger(),
	}
	defer func() {
		if err != nil {
			_ = rt.closeResources(context.Background())
		}
	}()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if cfg.Telemetry.OTLPEndpoint != "" {
		rt.telemetry, err = observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			return nil, fmt.Errorf("telemetry: %w", err)
		}
	}

	mapDir := cfg.Server.GetMapDir()
	if err = os.MkdirAll(mapDir, 0o755); err != nil {
		return nil, err
	}
	if rt.Store, err = openStore(ctx, cfg, mapDir); err != nil {
		return nil, err
	}
	if rt.Users, err = openUsers(ctx, cfg); err != nil {
		return nil, err
	}
	if rt.Positions, err = openPositions(ctx, cfg); err != nil {
		return nil, err
	}
	if rt.Bus, err = openBus(cfg); err != nil {
		return nil, err
	}
	rt.busMetrics = eventbus.NewMetricsExporter(rt.Bus, rt.Registry)

	tokens, err := auth.NewTokenIssuer(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL())
	if err != nil {
		return nil, err
	}
	sc := ServerConfig(cfg)
	authenticator := auth.NewPlayerAuthenticator(rt.Users, sc.DefaultPassword, sc.AdminName)

	addr := ":" + strconv.Itoa(cfg.Server.GetPort())
	rt.Transport, err = network.NewChannelServer(addr, network.DefaultChannelConfig(), network.NewMetrics(rt.Registry))
	if err != nil {
		return nil, err
	}

	rt.Map = world.NewMap(content.DefaultRegistry(), rt.Store, logging.GetComponentLogger("world"))
	rt.Server = server.New(sc, server.Deps{
		Map:        rt.Map,
		Generator:  world.NewMapGenerator(cfg.Server.Seed),
		Transport:  rt.Transport,
		Auth:       authenticator,
		Positions:  rt.Positions,
		Bus:        rt.Bus,
		Registerer: rt.Registry,
	})

	var webhooks []api.OutboundWebhook
	for _, wh := range cfg.Admin.Webhooks {
		webhooks = append(webhooks, api.OutboundWebhook{Name: wh.Name, URL: wh.URL, Secret: wh.Secret, Events: wh.Events})
	}
	rt.API = api.NewRestServer(api.Config{
		Addr:     ":" + strconv.Itoa(cfg.Admin.GetRESTPort()),
		Game:     rt.Server,
		Auth:     authenticator,
		Tokens:   tokens,
		Bus:      rt.Bus,
		Registry: rt.Registry,
		Webhooks: webhooks,
	})
	return rt, nil
}

func openStore(ctx context.Context, cfg *config.Config, mapDir string) (storage.Store, error) {
	store, err := storage.Open(storage.Backend(cfg.Storage.Backend), mapDir)
	if err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return store, nil
	}

	hot, err := cache.NewRedisHot(ctx, cache.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		store.Close()
		return nil, err
	}
	var inv cache.Invalidator
	if cfg.EventBus.URL != "" {
		inv, err = cache.NewNATSInvalidator(cache.InvalidatorConfig{NATSURL: cfg.EventBus.URL}, uuid.NewString())
		if err != nil {
			hot.Close()
			store.Close()
			return nil, err
		}
	}
	bc, err := cache.NewBlockCache(ctx, store, hot, inv, 0)
	if err != nil {
		if inv != nil {
			inv.Close()
		}
		hot.Close()
		store.Close()
		return nil, err
	}
	return bc, nil
}

func openUsers(ctx context.Context, cfg *config.Config) (auth.UserRepository, error) {
	switch cfg.Auth.Backend {
	case "mysql":
		m := cfg.Auth.MySQL
		repo, err := auth.NewMariaUserRepo(ctx, auth.MariaConfig{
			Host: m.Host, Port: m.Port, Database: m.Database, Username: m.Username, Password: m.Password,
		})
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mongo":
		repo, err := auth.NewMongoUserRepo(ctx, auth.MongoConfig{URI: cfg.Auth.Mongo.URI, Database: cfg.Auth.Mongo.Database})
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return auth.NewMemoryUserRepo(), nil
	}
}

func openPositions(ctx context.Context, cfg *config.Config) (storage.PositionRepo, error) {
	switch cfg.Storage.Positions {
	case "redis":
		rc := storage.DefaultRedisConfig()
		if cfg.Redis.Addr != "" {
			rc.Addr = cfg.Redis.Addr
		}
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		repo, err := storage.NewRedisPositionRepo(ctx, rc)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "mysql":
		repo, err := storage.NewMariaPositionRepo(ctx, cfg.Storage.MySQLDSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return storage.NewMemoryPositionRepo(), nil
	}
}

func openBus(cfg *config.Config) (eventbus.EventBus, error) {
	if cfg.EventBus.URL == "" {
		return eventbus.NewMemoryBus(1024), nil
	}
	retention := time.Duration(cfg.EventBus.Retention) * time.Hour
	bus, err := eventbus.NewJetStreamBus(cfg.EventBus.URL, cfg.EventBus.Stream, retention)
	if err != nil {
		return nil, err
	}
	return bus, nil
}

// Start начинает слушать игровой порт, API и /metrics
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.Transport.Start(); err != nil {
		return fmt.Errorf("игровой порт: %w", err)
	}
	rt.busMetrics.Start()
	rt.started = true
	sub, err := eventbus.StartLoggingListener(ctx, rt.Bus)
	if err != nil {
		return err
	}
	rt.busLog = sub
	rt.Server.Start(ctx)

	go func() {
		if err := rt.API.Start(ctx); err != nil {
			rt.logger.Error("❌ Admin API остановлен: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
	rt.metricsHTTP = &http.Server{
		Addr:              ":" + strconv.Itoa(rt.cfg.Admin.GetMetricsPort()),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := rt.metricsHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("❌ Prometheus endpoint: %v", err)
		}
	}()

	rt.logger.Info("🎮 Сервер слушает %s, карта %s", rt.Transport.Addr(), rt.cfg.Server.GetMapDir())
	return nil
}

// Close останавливает всё в обратном порядке и сохраняет мир
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.metricsHTTP != nil {
		errs = append(errs, rt.metricsHTTP.Shutdown(ctx))
	}
	if rt.API != nil {
		errs = append(errs, rt.API.Stop(ctx))
	}
	if rt.Server != nil {
		errs = append(errs, rt.Server.Stop(ctx))
	}
	if rt.Transport != nil {
		errs = append(errs, rt.Transport.Stop())
	}
	if rt.busLog != nil {
		rt.busLog.Unsubscribe()
	}
	errs = append(errs, rt.closeResources(ctx))
	return errors.Join(errs...)
}

func (rt *Runtime) closeResources(ctx context.Context) error {
	var errs []error
	if rt.started {
		rt.busMetrics.Stop()
	}
	if rt.Bus != nil {
		errs = append(errs, rt.Bus.Close())
	}
	if rt.Positions != nil {
		errs = append(errs, rt.Positions.Close())
	}
	if rt.Users != nil {
		errs = append(errs, rt.Users.Close())
	}
	if rt.Store != nil {
		errs = append(errs, rt.Store.Close())
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry(ctx))
	}
	return errors.Join(errs...)
}
