package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxelworld/internal/app"
	"github.com/annel0/voxelworld/internal/config"
	"github.com/annel0/voxelworld/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или VOXEL_CONFIG)")
	mapDir := flag.String("map-dir", "", "каталог карты")
	port := flag.Int("port", 0, "игровой UDP порт")
	flag.Parse()

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *mapDir != "" {
		cfg.Server.MapDir = *mapDir
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("🎮 Запуск сервера мира: порт %d, карта %s", cfg.Server.GetPort(), cfg.Server.GetMapDir())
	rt, err := app.NewServerRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Ошибка создания сервера: %v", err)
	}
	if err := rt.Start(ctx); err != nil {
		_ = rt.Close(context.Background())
		log.Fatalf("❌ Ошибка запуска сервера: %v", err)
	}

	logging.Info("✅ Сервер запущен (REST API :%d, metrics :%d). Ctrl+C для остановки",
		cfg.Admin.GetRESTPort(), cfg.Admin.GetMetricsPort())
	<-ctx.Done()

	logging.Info("🛑 Получен сигнал остановки, сохраняем мир...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := rt.Close(shutdownCtx); err != nil {
		logging.Error("Ошибка при остановке: %v", err)
		os.Exit(1)
	}
	logging.Info("👋 Сервер остановлен")
}
