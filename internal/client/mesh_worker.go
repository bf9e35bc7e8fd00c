package client

import (
	"context"

	"github.com/annel0/voxelworld/internal/mesh"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
)

// AddUpdateMeshTask помечает геометрию блока устаревшей и ставит блок
// в очередь построения. false, если блок не загружен.
func (c *Client) AddUpdateMeshTask(pos vec.Vec3) bool {
	ok := c.m.UpdateBlock(pos, func(b *world.Block) { b.SetMeshExpired(true) })
	if !ok {
		return false
	}
	c.meshQueue.Push(pos)
	return true
}

// addUpdateMeshTaskWithEdge блок и шесть соседей
func (c *Client) addUpdateMeshTaskWithEdge(pos vec.Vec3) {
	c.AddUpdateMeshTask(pos)
	for _, d := range vec.FaceDirs {
		c.AddUpdateMeshTask(pos.Add(d))
	}
}

// addUpdateMeshTaskForNode блок узла и соседние блоки, если узел
// лежит на их границе
func (c *Client) addUpdateMeshTaskForNode(p vec.Vec3) {
	bp := world.BlockPosOf(p)
	c.AddUpdateMeshTask(bp)
	for _, d := range vec.FaceDirs {
		if nb := world.BlockPosOf(p.Add(d)); nb != bp {
			c.AddUpdateMeshTask(nb)
		}
	}
}

// MeshQueueSize сколько блоков ждёт построения
func (c *Client) MeshQueueSize() int { return c.meshQueue.Size() }

// BuildPendingMeshes строит всю очередь в вызывающей горутине.
// Возвращает число построенных блоков.
func (c *Client) BuildPendingMeshes() int {
	builder := mesh.NewBuilder()
	n := 0
	for {
		pos, ok := c.meshQueue.Pop()
		if !ok {
			return n
		}
		if c.buildMesh(builder, pos) {
			n++
		}
	}
}

func (c *Client) meshLoop(ctx context.Context) {
	defer c.wg.Done()
	builder := mesh.NewBuilder()
	for {
		if pos, ok := c.meshQueue.Pop(); ok {
			c.buildMesh(builder, pos)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-c.meshQueue.Notify():
		}
	}
}

// buildMesh снимает блок с соседями под блокировкой карты, строит
// геометрию без неё и кладёт результат в блок. Правка, пришедшая
// во время построения, снова поставит блок в очередь.
func (c *Client) buildMesh(builder *mesh.Builder, pos vec.Vec3) bool {
	if !c.m.WithBlock(pos, func(*world.Block) {}) {
		return false
	}
	data := mesh.FillMakeData(c.m, pos, DayNightRatio(c.TimeOfDay()), c.cfg.SmoothLighting)
	built := builder.Build(data)

	return c.m.UpdateBlock(pos, func(b *world.Block) {
		if built == nil {
			b.SetMesh(nil)
			return
		}
		b.SetMesh(built)
	})
}
