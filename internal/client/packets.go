package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/annel0/voxelworld/internal/network"
	"github.com/annel0/voxelworld/internal/protocol"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

// ProcessPacket применяет одно сообщение сервера. Испорченные сообщения
// отбрасываются с ошибкой, состояние клиента при этом не меняется.
func (c *Client) ProcessPacket(ctx context.Context, data []byte) error {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.logger.LogProtocolError(uint16(network.PeerIDServer), err, data)
		return err
	}
	if !msg.Command().ToClient() {
		err := fmt.Errorf("%w: %s", ErrUnexpectedCommand, msg.Command())
		c.logger.LogProtocolError(uint16(network.PeerIDServer), err, data)
		return err
	}

	switch m := msg.(type) {
	case *protocol.InitReply:
		return c.handleInitReply(m)
	case *protocol.AccessDenied:
		err := fmt.Errorf("%w: %s", ErrAccessDenied, m.Reason)
		c.logger.Warn("❌ Сервер отказал: %s", m.Reason)
		c.finishInit(err)
		return err
	case *protocol.BlockData:
		return c.handleBlockData(ctx, m)
	case *protocol.AddNode:
		modified, err := c.m.AddNodeAndUpdate(m.Pos, m.Node, 0)
		c.afterNodeEdit(m.Pos, modified, err)
		return nil
	case *protocol.RemoveNode:
		modified, err := c.m.RemoveNodeAndUpdate(m.Pos, 0)
		c.afterNodeEdit(m.Pos, modified, err)
		return nil
	case *protocol.TimeOfDay:
		c.setTimeOfDay(uint32(m.Time))
		return nil
	default:
		c.logger.Debug("Сообщение %s пропущено", msg.Command())
		return nil
	}
}

func (c *Client) handleInitReply(m *protocol.InitReply) error {
	if !world.VersionSupported(m.SerializationVersion) {
		err := fmt.Errorf("%w: версия блоков %d не поддерживается", ErrAccessDenied, m.SerializationVersion)
		c.finishInit(err)
		return err
	}
	c.serializationVersion.Store(uint32(m.SerializationVersion))
	c.SetPosition(m.SpawnPos, mgl32.Vec3{}, 0, 0)
	c.initialized.Store(true)
	c.finishInit(nil)

	c.logger.Info("✅ Подключено: версия блоков %d, точка появления %v", m.SerializationVersion, m.SpawnPos)
	return nil
}

// handleBlockData кладёт блок в карту, подтверждает его и ставит
// в очередь геометрию блока и соседей, у которых меняются граничные грани
func (c *Client) handleBlockData(ctx context.Context, m *protocol.BlockData) error {
	if _, err := c.m.ApplyBlockData(m.Pos, m.Data); err != nil {
		c.logger.Warn("Блок %s не прочитан: %v", m.Pos, err)
		return err
	}
	if err := c.send(ctx, &protocol.GotBlocks{Blocks: []vec.Vec3{m.Pos}}); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("GOTBLOCKS %s не отправлен: %v", m.Pos, err)
	}
	c.addUpdateMeshTaskWithEdge(m.Pos)
	return nil
}

// afterNodeEdit ставит в очередь геометрию после правки узла.
// Правка в невыгруженном блоке просто пропускается: блок придёт целиком.
func (c *Client) afterNodeEdit(p vec.Vec3, modified map[vec.Vec3]struct{}, err error) {
	if err != nil {
		c.logger.Debug("Правка узла %s пропущена: %v", p, err)
		return
	}
	for bp := range modified {
		c.AddUpdateMeshTask(bp)
	}
	c.addUpdateMeshTaskForNode(p)
}

// setTimeOfDay запоминает время. Если поменялась доля дневного света,
// перестраиваются блоки, в которых день и ночь освещены по-разному.
func (c *Client) setTimeOfDay(t uint32) {
	old := c.timeOfDay.Swap(t % 24000)
	if DayNightRatio(old) == DayNightRatio(t) {
		return
	}
	for _, bp := range c.m.BlockPositions() {
		differs := false
		c.m.WithBlock(bp, func(b *world.Block) { differs = b.DayNightDiffers() })
		if differs {
			c.AddUpdateMeshTask(bp)
		}
	}
}
