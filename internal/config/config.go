package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации.
// Нулевые значения полей означают "взять из окружения или по умолчанию".
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	Client    ClientConfig    `yaml:"client"`
	Admin     AdminConfig     `yaml:"admin"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	MapDir     string `yaml:"map_dir"`
	ServerOnly bool   `yaml:"server_only"`
	Seed       int64  `yaml:"seed"`

	StepIntervalMs int `yaml:"step_interval_ms"`
	SaveIntervalS  int `yaml:"save_interval_s"`
	UnloadTimeoutS int `yaml:"unload_timeout_s"`

	MaxBlockSendsPerClient int `yaml:"max_block_sends_per_client"`
	MaxBlockSendsTotal     int `yaml:"max_block_sends_total"`
	MaxSimultaneousEmerges int `yaml:"max_simultaneous_emerges"`
	EmergeWorkers          int `yaml:"emerge_workers"`
	BlockSendDistance      int `yaml:"block_send_distance"`
	BlockGenerateDistance  int `yaml:"block_generate_distance"`
	SendBytesPerSecond     int `yaml:"send_bytes_per_second"`

	DefaultPassword string  `yaml:"default_password"`
	AdminName       string  `yaml:"admin_name"`
	TimeSpeed       float32 `yaml:"time_speed"`
}

// StorageConfig хранилище блоков и позиций игроков
type StorageConfig struct {
	Backend string `yaml:"backend"` // badger | sqlite | leveldb
	// Positions где хранить позиции игроков: memory | redis | mysql
	Positions string `yaml:"positions"`
	MySQLDSN  string `yaml:"mysql_dsn"`
}

// AuthConfig хранилище учётных записей игроков
type AuthConfig struct {
	Backend string      `yaml:"backend"` // memory | mysql | mongo
	MySQL   MySQLConfig `yaml:"mysql"`
	Mongo   MongoConfig `yaml:"mongo"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type ClientConfig struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	// SmoothLighting nil - включено
	SmoothLighting *bool `yaml:"smooth_lighting"`
	ViewRange      int   `yaml:"view_range"`
}

// AdminConfig REST API и /metrics
type AdminConfig struct {
	RESTPort    int             `yaml:"rest_port"`
	MetricsPort int             `yaml:"metrics_port"`
	JWTSecret   string          `yaml:"jwt_secret"`
	TokenTTLMin int             `yaml:"token_ttl_minutes"`
	Webhooks    []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	Name   string   `yaml:"name"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// EventBusConfig пустой URL - шина в памяти процесса
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// GetPort возвращает игровой UDP порт с поддержкой fallback значений
func (s *ServerConfig) GetPort() int {
	return getPortWithEnvFallback(s.Port, "VOXEL_PORT", 30000)
}

// GetMapDir каталог карты: config -> VOXEL_MAP_DIR -> ./world
func (s *ServerConfig) GetMapDir() string {
	if s.MapDir != "" {
		return s.MapDir
	}
	if env := os.Getenv("VOXEL_MAP_DIR"); env != "" {
		return env
	}
	return "./world"
}

func (s *ServerConfig) StepInterval() time.Duration {
	return time.Duration(s.StepIntervalMs) * time.Millisecond
}

func (s *ServerConfig) SaveInterval() time.Duration {
	return time.Duration(s.SaveIntervalS) * time.Second
}

func (s *ServerConfig) UnloadTimeout() time.Duration {
	return time.Duration(s.UnloadTimeoutS) * time.Second
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (a *AdminConfig) GetRESTPort() int {
	return getPortWithEnvFallback(a.RESTPort, "VOXEL_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (a *AdminConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(a.MetricsPort, "VOXEL_METRICS_PORT", 2112)
}

func (a *AdminConfig) TokenTTL() time.Duration {
	if a.TokenTTLMin <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(a.TokenTTLMin) * time.Minute
}

func (c *ClientConfig) Smooth() bool {
	return c.SmoothLighting == nil || *c.SmoothLighting
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Validate проверяет перечислимые поля
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "", "badger", "sqlite", "leveldb":
	default:
		return fmt.Errorf("storage.backend: неизвестный бэкенд %q", c.Storage.Backend)
	}
	switch c.Storage.Positions {
	case "", "memory", "redis":
	case "mysql":
		if c.Storage.MySQLDSN == "" {
			return fmt.Errorf("storage.positions=mysql требует storage.mysql_dsn")
		}
	default:
		return fmt.Errorf("storage.positions: неизвестный бэкенд %q", c.Storage.Positions)
	}
	switch c.Auth.Backend {
	case "", "memory", "mysql":
	case "mongo":
		if c.Auth.Mongo.URI == "" {
			return fmt.Errorf("auth.backend=mongo требует auth.mongo.uri")
		}
	default:
		return fmt.Errorf("auth.backend: неизвестный бэкенд %q", c.Auth.Backend)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port вне диапазона: %d", c.Server.Port)
	}
	return nil
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV VOXEL_CONFIG или возвращает пустой Config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("VOXEL_CONFIG")
		if path == "" {
			return &Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("разбор %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
