package nodemeta

import (
	"fmt"
	"io"

	"github.com/annel0/voxelworld/internal/serialize"
)

// ChestSlots размер сундука
const ChestSlots = 8 * 4

// FurnaceStepInterval шаг, с которым печь обрабатывает накопленное время
const FurnaceStepInterval = 2.0

// SignMetadata табличка с текстом
type SignMetadata struct {
	Text string
}

// NewSign создаёт табличку
func NewSign(text string) *SignMetadata {
	return &SignMetadata{Text: text}
}

func (s *SignMetadata) TypeID() uint16            { return TypeSign }
func (s *SignMetadata) Clone() NodeMetadata       { return &SignMetadata{Text: s.Text} }
func (s *SignMetadata) InfoText() string          { return fmt.Sprintf("%q", s.Text) }
func (s *SignMetadata) Inventory() *Inventory     { return nil }
func (s *SignMetadata) Step(float32) bool         { return false }
func (s *SignMetadata) NodeRemovalDisabled() bool { return false }
func (s *SignMetadata) SerializeBody(w io.Writer) error {
	return serialize.WriteString(w, s.Text)
}

func deserializeSign(r io.Reader) (NodeMetadata, error) {
	text, err := serialize.ReadString(r)
	if err != nil {
		return nil, err
	}
	return &SignMetadata{Text: text}, nil
}

// ChestMetadata сундук с одним списком "0"
type ChestMetadata struct {
	inv *Inventory
}

// NewChest создаёт пустой сундук
func NewChest() *ChestMetadata {
	inv := NewInventory()
	inv.AddList("0", ChestSlots)
	return &ChestMetadata{inv: inv}
}

func (c *ChestMetadata) TypeID() uint16        { return TypeChest }
func (c *ChestMetadata) Clone() NodeMetadata   { return &ChestMetadata{inv: c.inv.Clone()} }
func (c *ChestMetadata) InfoText() string      { return "Chest" }
func (c *ChestMetadata) Inventory() *Inventory { return c.inv }
func (c *ChestMetadata) Step(float32) bool     { return false }

// NodeRemovalDisabled сундук нельзя сломать, пока он не пуст
func (c *ChestMetadata) NodeRemovalDisabled() bool {
	l := c.inv.GetList("0")
	return l != nil && l.UsedSlots() > 0
}

func (c *ChestMetadata) SerializeBody(w io.Writer) error {
	return c.inv.Serialize(w)
}

func deserializeChest(r io.Reader) (NodeMetadata, error) {
	c := &ChestMetadata{inv: NewInventory()}
	if err := c.inv.Deserialize(r); err != nil {
		return nil, err
	}
	if c.inv.GetList("0") == nil {
		return nil, fmt.Errorf("%w: в сундуке нет списка 0", serialize.ErrMalformed)
	}
	return c, nil
}

// Рецепты печи и время горения топлива в секундах
var (
	cookResults = map[string]string{
		"cobble":     "stone",
		"sand":       "glass",
		"clay_lump":  "brick",
		"iron_lump":  "steel_ingot",
		"tree":       "coal_lump",
		"mese_shard": "mese",
	}
	fuelTimes = map[string]float32{
		"tree":      30,
		"wood":      7.5,
		"coal_lump": 40,
		"cactus":    15,
		"papyrus":   1,
		"bookshelf": 30,
	}
)

// CookTime время приготовления одного предмета
const CookTime = 3.0

// FurnaceMetadata печь: топливо, исходный материал, результат
type FurnaceMetadata struct {
	inv             *Inventory
	fuelTotalTime   float32
	fuelTime        float32
	srcTotalTime    float32
	srcTime         float32
	stepAccumulator float32
}

// NewFurnace создаёт холодную пустую печь
func NewFurnace() *FurnaceMetadata {
	inv := NewInventory()
	inv.AddList("fuel", 1)
	inv.AddList("src", 1)
	inv.AddList("dst", 4)
	return &FurnaceMetadata{inv: inv}
}

func (f *FurnaceMetadata) TypeID() uint16        { return TypeFurnace }
func (f *FurnaceMetadata) Inventory() *Inventory { return f.inv }

func (f *FurnaceMetadata) Clone() NodeMetadata {
	c := *f
	c.inv = f.inv.Clone()
	return &c
}

// Burning горит ли топливо
func (f *FurnaceMetadata) Burning() bool {
	return f.fuelTime < f.fuelTotalTime
}

func (f *FurnaceMetadata) InfoText() string {
	if f.Burning() {
		return fmt.Sprintf("Furnace is active (%d%%)", int(100*f.fuelTime/f.fuelTotalTime))
	}
	if !f.inv.GetList("src").GetItem(0).Empty() {
		return "Furnace is out of fuel"
	}
	return "Furnace is inactive"
}

func (f *FurnaceMetadata) NodeRemovalDisabled() bool {
	for _, name := range []string{"fuel", "src", "dst"} {
		if l := f.inv.GetList(name); l != nil && l.UsedSlots() > 0 {
			return true
		}
	}
	return false
}

func (f *FurnaceMetadata) SerializeBody(w io.Writer) error {
	if err := f.inv.Serialize(w); err != nil {
		return err
	}
	for _, v := range []float32{f.fuelTotalTime, f.fuelTime, f.srcTotalTime, f.srcTime} {
		if err := serialize.WriteF1000(w, v); err != nil {
			return err
		}
	}
	return nil
}

func deserializeFurnace(r io.Reader) (NodeMetadata, error) {
	f := &FurnaceMetadata{inv: NewInventory()}
	if err := f.inv.Deserialize(r); err != nil {
		return nil, err
	}
	for _, name := range []string{"fuel", "src", "dst"} {
		if f.inv.GetList(name) == nil {
			return nil, fmt.Errorf("%w: в печи нет списка %s", serialize.ErrMalformed, name)
		}
	}
	for _, dst := range []*float32{&f.fuelTotalTime, &f.fuelTime, &f.srcTotalTime, &f.srcTime} {
		v, err := serialize.ReadF1000(r)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return f, nil
}

// Step копит время и обрабатывает его порциями по FurnaceStepInterval
func (f *FurnaceMetadata) Step(dtime float32) bool {
	f.stepAccumulator += dtime
	changed := false

	for f.stepAccumulator >= FurnaceStepInterval {
		f.stepAccumulator -= FurnaceStepInterval
		const dt = float32(FurnaceStepInterval)

		src := f.inv.GetList("src")
		dst := f.inv.GetList("dst")
		fuel := f.inv.GetList("fuel")

		srcItem := src.GetItem(0)
		result, cookable := cookResults[srcItem.Name]
		if srcItem.Empty() || !cookable {
			f.srcTotalTime = 0
			f.srcTime = 0
		} else if f.srcTotalTime == 0 {
			f.srcTotalTime = CookTime
		}
		roomAvailable := cookable && dst.RoomFor(ItemStack{Name: result, Count: 1})

		if f.Burning() {
			if roomAvailable {
				f.srcTime += dt
				if f.srcTime >= f.srcTotalTime && f.srcTotalTime > 0 {
					src.TakeItem(0, 1)
					dst.AddItem(ItemStack{Name: result, Count: 1})
					f.srcTime = 0
					f.srcTotalTime = 0
				}
			}
			f.fuelTime += dt
			changed = true
			continue
		}

		// Нечего готовить, топливо не тратим
		if !cookable || !roomAvailable {
			f.stepAccumulator = 0
			break
		}

		fuelItem := fuel.GetItem(0)
		burn, ok := fuelTimes[fuelItem.Name]
		if fuelItem.Empty() || !ok {
			f.stepAccumulator = 0
			break
		}
		fuel.TakeItem(0, 1)
		f.fuelTotalTime = burn
		f.fuelTime = 0
		changed = true
	}
	return changed
}
