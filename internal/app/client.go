package app

import (
	"context"
	"time"

	"github.com/annel0/voxelworld/internal/client"
	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// ClientStepInterval шаг headless клиента
const ClientStepInterval = 50 * time.Millisecond

// RunClient подключается к addr и шагает клиента до отмены ctx
func RunClient(ctx context.Context, cfg client.Config, addr string) error {
	logger := logging.GetClientLogger()
	m := world.NewMap(content.DefaultRegistry(), nil, logging.GetComponentLogger("client-map"))
	c := client.New(cfg, m)
	if err := c.Connect(ctx, addr); err != nil {
		return err
	}
	defer c.Close()

	pos, _, _ := c.Position()
	logger.Info("✅ Подключён к %s как %s, позиция %v", addr, cfg.Name, pos)

	ticker := time.NewTicker(ClientStepInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			dtime := float32(now.Sub(last).Seconds())
			last = now
			if err := c.Step(ctx, dtime); err != nil {
				return err
			}
		}
	}
}
