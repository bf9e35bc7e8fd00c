package world

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
	"github.com/annel0/voxelworld/internal/world/nodemeta"
)

func TestMapNodeAccess(t *testing.T) {
	m := NewMap(testRegistry(), nil, testLogger())

	_, err := m.GetNode(vec.New(1, 2, 3))
	assert.ErrorIs(t, err, ErrInvalidPosition)
	assert.True(t, m.GetNodeNoEx(vec.New(1, 2, 3)).IsIgnore())
	assert.ErrorIs(t, m.SetNode(vec.New(1, 2, 3), AirNode), ErrInvalidPosition)

	m.GetOrCreateBlock(vec.Zero)
	_, err = m.GetNode(vec.New(1, 2, 3))
	assert.ErrorIs(t, err, ErrInvalidPosition, "заглушка не считается загруженной")
	assert.False(t, m.IsBlockReady(vec.Zero))

	insertFilled(m, vec.Zero, AirNode, true)
	assert.True(t, m.IsBlockReady(vec.Zero))
	require.NoError(t, m.SetNode(vec.New(1, 2, 3), NewNode(testStone)))
	n, err := m.GetNode(vec.New(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, testStone, n.Content)

	_, err = m.GetBlockNoCreate(vec.New(9, 9, 9))
	assert.ErrorIs(t, err, ErrBlockNotFound)
	assert.Nil(t, m.GetBlockNoCreateNoEx(vec.New(9, 9, 9)))
}

func TestMapEvents(t *testing.T) {
	m := NewMap(testRegistry(), nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	var events []MapEditEvent
	recv := EventReceiverFunc(func(ev MapEditEvent) { events = append(events, ev) })
	m.AddEventReceiver(&recv)

	_, err := m.AddNodeAndUpdate(vec.New(15, 1, 1), NewNode(testLamp), 7)
	require.NoError(t, err)
	_, err = m.RemoveNodeAndUpdate(vec.New(15, 1, 1), 0)
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, EventAddNode, events[0].Type)
	assert.Equal(t, vec.New(15, 1, 1), events[0].Pos)
	assert.Equal(t, uint16(7), events[0].AlreadyKnownBy)
	assert.Contains(t, events[0].ModifiedBlocks, vec.Zero)
	assert.Equal(t, EventRemoveNode, events[1].Type)
	assert.Equal(t, "remove_node", events[1].Type.String())

	m.RemoveEventReceiver(&recv)
	require.NoError(t, m.SetNode(vec.New(2, 2, 2), NewNode(testStone)))
	assert.Len(t, events, 2, "после отписки событий нет")
}

func TestAddNodeCreatesMetadata(t *testing.T) {
	m := NewMap(content.DefaultRegistry(), nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	p := vec.New(3, 3, 3)
	_, err := m.AddNodeAndUpdate(p, NewNode(content.Chest), 0)
	require.NoError(t, err)

	meta := m.GetNodeMetadata(p)
	require.NotNil(t, meta)
	assert.Equal(t, nodemeta.TypeChest, meta.TypeID())

	_, err = m.AddNodeAndUpdate(vec.New(4, 3, 3), NewNode(content.Chest), 0)
	require.NoError(t, err)
	assert.NotSame(t, meta, m.GetNodeMetadata(vec.New(4, 3, 3)), "каждый сундук со своим инвентарём")

	require.NoError(t, m.UpdateNodeMetadata(p, func(md nodemeta.NodeMetadata) bool {
		md.Inventory().GetList("0").AddItem(nodemeta.ItemStack{Name: "cobble", Count: 5})
		return true
	}))
	assert.Equal(t, 1, m.GetNodeMetadata(p).Inventory().GetList("0").UsedSlots())

	_, err = m.RemoveNodeAndUpdate(p, 0)
	require.NoError(t, err)
	assert.Nil(t, m.GetNodeMetadata(p))
}

func TestStepNodeMetadata(t *testing.T) {
	m := NewMap(content.DefaultRegistry(), nil, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	p := vec.New(1, 1, 1)
	_, err := m.AddNodeAndUpdate(p, NewNode(content.Furnace), 0)
	require.NoError(t, err)
	require.NoError(t, m.UpdateNodeMetadata(p, func(md nodemeta.NodeMetadata) bool {
		inv := md.Inventory()
		inv.GetList("fuel").AddItem(nodemeta.ItemStack{Name: "coal_lump", Count: 1})
		inv.GetList("src").AddItem(nodemeta.ItemStack{Name: "cobble", Count: 1})
		return true
	}))

	assert.Empty(t, m.StepNodeMetadata(0.5), "меньше интервала - ничего не происходит")

	changed := m.StepNodeMetadata(2.0)
	assert.Contains(t, changed, vec.Zero)
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	reg := testRegistry()
	m := NewMap(reg, store, testLogger())

	b := insertFilled(m, vec.New(1, 2, 3), NewNode(testStone), true)
	require.NoError(t, m.SetNode(vec.New(16, 32, 48), NewNode(testLamp)))
	assert.Equal(t, ModWriteNeeded, b.Modified())

	n, err := m.Save(ctx, ModWriteNeeded)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, ModClean, b.Modified())

	n, err = m.Save(ctx, ModWriteNeeded)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "чистые блоки не пишутся")

	other := NewMap(reg, store, testLogger())
	loaded, err := other.LoadBlock(ctx, vec.New(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, ModClean, loaded.Modified())
	got, err := other.GetNode(vec.New(16, 32, 48))
	require.NoError(t, err)
	assert.Equal(t, testLamp, got.Content)

	_, err = other.LoadBlock(ctx, vec.New(5, 5, 5))
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestSaveErrorsKeepBlocksDirty(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.err = errors.New("диск заполнен")
	m := NewMap(testRegistry(), store, testLogger())

	a := insertFilled(m, vec.Zero, AirNode, true)
	b := insertFilled(m, vec.New(1, 0, 0), AirNode, true)

	n, err := m.Save(ctx, ModWriteNeeded)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, ModWriteNeeded, a.Modified())
	assert.Equal(t, ModWriteNeeded, b.Modified())
}

func TestTimerUpdateEviction(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMap(testRegistry(), store, testLogger())

	insertFilled(m, vec.Zero, AirNode, true)
	clean := insertFilled(m, vec.New(1, 0, 0), AirNode, true)
	clean.ResetModified()

	unloaded, err := m.TimerUpdate(ctx, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{vec.New(1, 0, 0)}, unloaded, "чистый блок выгружается сразу")
	assert.Equal(t, 1, store.saves, "изменённый блок сначала записывается")
	assert.Equal(t, 1, m.BlockCount())

	unloaded, err = m.TimerUpdate(ctx, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, []vec.Vec3{vec.Zero}, unloaded)
	assert.Equal(t, 0, m.BlockCount())

	t.Run("используемый блок остаётся", func(t *testing.T) {
		b := insertFilled(m, vec.New(2, 0, 0), AirNode, true)
		b.ResetModified()
		_, err := m.TimerUpdate(ctx, 3, 5)
		require.NoError(t, err)
		m.UpdateBlock(vec.New(2, 0, 0), func(b *Block) { b.ResetUsageTimer() })
		_, err = m.TimerUpdate(ctx, 3, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, m.BlockCount())
	})
}

// countingGenerator заполняет блок камнем ниже нуля
type countingGenerator struct{ calls int }

func (g *countingGenerator) Generate(b *Block) error {
	g.calls++
	o := b.Origin()
	for i := range b.data {
		p := o.Add(UnpackLocal(uint16(i)))
		if p.Y < 0 {
			b.data[i] = NewNode(testStone)
		} else {
			b.data[i] = AirNode
		}
	}
	b.isUnderground = o.Y < 0
	return nil
}

func TestEmergeBlock(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	reg := testRegistry()
	m := NewMap(reg, store, testLogger())
	gen := &countingGenerator{}

	_, _, err := m.EmergeBlock(ctx, vec.Zero, gen, false)
	assert.ErrorIs(t, err, ErrBlockNotFound, "без генерации блока нет")

	b, modified, err := m.EmergeBlock(ctx, vec.Zero, gen, true)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.True(t, b.Generated())
	assert.False(t, b.LightingExpired())
	assert.Contains(t, modified, vec.Zero)

	n, _ := m.GetNode(vec.New(3, 3, 3))
	assert.Equal(t, content.LightSun, n.Light(LightDay, reg))

	again, _, err := m.EmergeBlock(ctx, vec.Zero, gen, true)
	require.NoError(t, err)
	assert.Same(t, b, again)
	assert.Equal(t, 1, gen.calls, "готовый блок не генерируется повторно")

	t.Run("битые данные генерируются заново", func(t *testing.T) {
		store.blocks[vec.New(0, 5, 0)] = []byte{200, 0, 1}
		b, _, err := m.EmergeBlock(ctx, vec.New(0, 5, 0), gen, true)
		require.NoError(t, err)
		assert.True(t, b.Generated())
		assert.Equal(t, 2, gen.calls)
	})

	t.Run("записанный блок читается с диска", func(t *testing.T) {
		_, err := m.Save(ctx, ModWriteAtUnload)
		require.NoError(t, err)
		other := NewMap(reg, store, testLogger())
		b, _, err := other.EmergeBlock(ctx, vec.Zero, gen, true)
		require.NoError(t, err)
		assert.True(t, b.Generated())
		assert.Equal(t, 2, gen.calls)
	})
}

func TestApplyBlockData(t *testing.T) {
	reg := testRegistry()
	src := NewMap(reg, nil, testLogger())
	b := insertFilled(src, vec.New(0, 1, 0), NewNode(testStone), true)
	data, err := b.SerializeToBytes(HighestVersion)
	require.NoError(t, err)

	dst := NewMap(reg, nil, testLogger())
	dst.GetOrCreateBlock(vec.New(0, 1, 0))
	dst.SetTempMod(vec.New(1, 17, 1), NodeMod{Type: NodeModCrack, Param: 1})

	got, err := dst.ApplyBlockData(vec.New(0, 1, 0), data)
	require.NoError(t, err)
	assert.False(t, got.IsDummy())
	assert.True(t, got.MeshExpired())
	assert.Len(t, got.TempMods(), 1, "подмены переживают замену данных")

	n, err := dst.GetNode(vec.New(1, 17, 1))
	require.NoError(t, err)
	assert.Equal(t, testStone, n.Content)
}

func TestUnloadAllKeepsUnsavedBlocks(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewMap(testRegistry(), store, testLogger())
	insertFilled(m, vec.Zero, AirNode, true)

	store.err = errors.New("диск заполнен")
	assert.Error(t, m.UnloadAll(ctx))
	assert.Equal(t, 1, m.BlockCount(), "незаписанный блок не теряется")

	store.err = nil
	require.NoError(t, m.UnloadAll(ctx))
	assert.Equal(t, 0, m.BlockCount())
	assert.Equal(t, 1, store.saves)
}

func TestKeepBlocksAround(t *testing.T) {
	ctx := context.Background()
	m := NewMap(testRegistry(), newMemStore(), testLogger())
	for _, bp := range []vec.Vec3{vec.Zero, vec.New(2, 0, 0), vec.New(5, 0, 0)} {
		insertFilled(m, bp, AirNode, true).ResetModified()
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, 2, m.KeepBlocksAround([]vec.Vec3{vec.New(1, 0, 0)}, 1))
		_, err := m.TimerUpdate(ctx, 3, 5)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, m.BlockCount(), "дальний блок выгружен, ближние остались")
	assert.Nil(t, m.GetBlockNoCreateNoEx(vec.New(5, 0, 0)))

	m.ResetUsageTimers(vec.Zero)
	assert.Zero(t, m.GetBlockNoCreateNoEx(vec.Zero).UsageTimer())
}
