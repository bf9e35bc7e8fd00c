package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/annel0/voxelworld/internal/protocol"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// CrackStages число стадий трещины, стадии идут от 0 до CrackStages-1
const CrackStages = 5

var (
	// ErrNotDiggable узел нельзя выкопать
	ErrNotDiggable = errors.New("узел нельзя выкопать")
	// ErrNotBuildable место для установки занято
	ErrNotBuildable = errors.New("место занято")
)

type digState struct {
	digging bool
	under   vec.Vec3
	timer   float32

	crackLevel int
	crackPos   vec.Vec3
}

// SetCrack рисует трещину стадии level на узле p. Отрицательная
// стадия убирает трещину. Узел меняется только при построении геометрии.
func (c *Client) SetCrack(level int, p vec.Vec3) {
	c.digMu.Lock()
	defer c.digMu.Unlock()
	c.setCrackLocked(level, p)
}

func (c *Client) setCrackLocked(level int, p vec.Vec3) {
	var changed []vec.Vec3
	if c.dig.crackLevel >= 0 && (level < 0 || p != c.dig.crackPos) {
		changed = append(changed, c.m.ClearTempMod(c.dig.crackPos)...)
	}
	if level >= 0 {
		mod := world.NodeMod{Type: world.NodeModCrack, Param: uint16(min(level, CrackStages-1))}
		changed = append(changed, c.m.SetTempMod(p, mod)...)
	}
	c.dig.crackLevel = level
	c.dig.crackPos = p

	for _, bp := range changed {
		c.meshQueue.Push(bp)
	}
}

// Crack текущая стадия трещины и её узел; стадия -1 если трещины нет
func (c *Client) Crack() (int, vec.Vec3) {
	c.digMu.Lock()
	defer c.digMu.Unlock()
	return c.dig.crackLevel, c.dig.crackPos
}

// Interact отправляет действие с узлом как есть
func (c *Client) Interact(ctx context.Context, action protocol.InteractAction, under, above vec.Vec3, item uint8) error {
	return c.send(ctx, &protocol.Interact{Action: action, Under: under, Above: above, Item: item})
}

// StartDigging начинает копать узел under. Копание продвигается в Step.
func (c *Client) StartDigging(ctx context.Context, under vec.Vec3) error {
	n, err := c.m.GetNode(under)
	if err != nil {
		return err
	}
	if !c.m.Registry().Lookup(n.Content).Diggable {
		return fmt.Errorf("%w: %s", ErrNotDiggable, under)
	}
	if err := c.Interact(ctx, protocol.InteractStartDigging, under, under, 0); err != nil {
		return err
	}

	c.digMu.Lock()
	defer c.digMu.Unlock()
	c.dig.digging = true
	c.dig.under = under
	c.dig.timer = 0
	c.setCrackLocked(0, under)
	return nil
}

// StopDigging бросает копание и убирает трещину
func (c *Client) StopDigging(ctx context.Context) error {
	c.digMu.Lock()
	if !c.dig.digging {
		c.digMu.Unlock()
		return nil
	}
	under := c.dig.under
	c.dig.digging = false
	c.setCrackLocked(-1, under)
	c.digMu.Unlock()

	return c.Interact(ctx, protocol.InteractStopDigging, under, under, 0)
}

// stepDigging продвигает трещину; после последней стадии узел
// убирается локально и сервер получает DigComplete
func (c *Client) stepDigging(ctx context.Context, dtime float32) error {
	c.digMu.Lock()
	if !c.dig.digging {
		c.digMu.Unlock()
		return nil
	}
	c.dig.timer += dtime
	under := c.dig.under
	stage := int(c.dig.timer / float32(c.cfg.DigStageTime.Seconds()))
	if stage < CrackStages {
		if stage != c.dig.crackLevel {
			c.setCrackLocked(stage, under)
		}
		c.digMu.Unlock()
		return nil
	}
	c.dig.digging = false
	c.setCrackLocked(-1, under)
	c.digMu.Unlock()

	if err := c.Interact(ctx, protocol.InteractDigComplete, under, under, 0); err != nil {
		return err
	}
	modified, err := c.m.RemoveNodeAndUpdate(under, 0)
	c.afterNodeEdit(under, modified, err)
	return nil
}

// PlaceNode ставит узел item в above сразу в своей карте и просит
// сервер сделать то же. При отказе сервер пришлёт блок заново.
func (c *Client) PlaceNode(ctx context.Context, under, above vec.Vec3, item uint8) error {
	reg := c.m.Registry()
	old, err := c.m.GetNode(above)
	if err != nil {
		return err
	}
	if !reg.Lookup(old.Content).BuildableTo {
		return fmt.Errorf("%w: %s", ErrNotBuildable, above)
	}
	if err := c.Interact(ctx, protocol.InteractPlace, under, above, item); err != nil {
		return err
	}

	n := world.NewNode(item)
	if reg.Lookup(item).ParamType == content.ParamFaceDirSimple {
		_, _, yaw := c.Position()
		n.Param1 = world.FaceDirFromYaw(yaw)
	}
	modified, err := c.m.AddNodeAndUpdate(above, n, 0)
	c.afterNodeEdit(above, modified, err)
	return nil
}
