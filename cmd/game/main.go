// Команда game запускает headless клиента. Без -address поднимает
// собственный сервер в том же процессе и подключается к нему; с
// -server-only работает как выделенный сервер.
package main

import (
	"context"
	"flag"
	"fmt"
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
	serverOnly := flag.Bool("server-only", false, "только сервер, без клиента")
	address := flag.String("address", "", "адрес удалённого сервера host:port")
	name := flag.String("name", "", "имя игрока")
	password := flag.String("password", "", "пароль игрока")
	flag.Parse()

	if err := logging.InitDefaultLogger("game"); err != nil {
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
	if *serverOnly {
		cfg.Server.ServerOnly = true
	}
	if *name != "" {
		cfg.Client.Name = *name
	}
	if *password != "" {
		cfg.Client.Password = *password
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *address); err != nil {
		logging.Error("❌ %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, address string) error {
	if address != "" {
		return app.RunClient(ctx, app.ClientConfig(cfg), address)
	}

	rt, err := app.NewServerRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("создание сервера: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rt.Close(shutdownCtx); err != nil {
			logging.Error("Ошибка при остановке сервера: %v", err)
		}
	}()
	if err := rt.Start(ctx); err != nil {
		return err
	}

	if cfg.Server.ServerOnly {
		logging.Info("✅ Выделенный сервер на порту %d", cfg.Server.GetPort())
		<-ctx.Done()
		return nil
	}
	return app.RunClient(ctx, app.ClientConfig(cfg), fmt.Sprintf("127.0.0.1:%d", cfg.Server.GetPort()))
}
