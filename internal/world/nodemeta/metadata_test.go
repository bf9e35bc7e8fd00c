package nodemeta

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/serialize"
)

func TestListRoundTrip(t *testing.T) {
	factories := DefaultFactories()

	chest := NewChest()
	chest.Inventory().GetList("0").AddItem(ItemStack{Name: "cobble", Count: 150})

	furnace := NewFurnace()
	furnace.Inventory().GetList("src").AddItem(ItemStack{Name: "sand", Count: 3})

	l := NewList()
	l.Set(0, NewSign("Привет"))
	l.Set(4095, chest)
	l.Set(273, furnace)

	var buf bytes.Buffer
	require.NoError(t, l.Serialize(&buf))

	got := NewList()
	require.NoError(t, got.Deserialize(bytes.NewReader(buf.Bytes()), factories, logging.NewConsoleLogger("test")))

	assert.Equal(t, []uint16{0, 273, 4095}, got.Positions())
	assert.Equal(t, "Привет", got.Get(0).(*SignMetadata).Text)

	gotChest := got.Get(4095).(*ChestMetadata)
	assert.Equal(t, 2, gotChest.Inventory().GetList("0").UsedSlots(), "150 предметов занимают две ячейки")
	assert.True(t, gotChest.NodeRemovalDisabled())

	gotFurnace := got.Get(273).(*FurnaceMetadata)
	assert.Equal(t, "sand", gotFurnace.Inventory().GetList("src").GetItem(0).Name)
}

func TestListSkipsUnknownAndBroken(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, serialize.WriteU16(&buf, 3))

	// неизвестный тип
	require.NoError(t, serialize.WriteU16(&buf, 1))
	require.NoError(t, serialize.WriteU16(&buf, 999))
	require.NoError(t, serialize.WriteString(&buf, "мусор"))

	// сундук с обрезанным телом
	require.NoError(t, serialize.WriteU16(&buf, 2))
	require.NoError(t, serialize.WriteU16(&buf, TypeChest))
	require.NoError(t, serialize.WriteString(&buf, "\x00"))

	// нормальная табличка
	var body bytes.Buffer
	require.NoError(t, NewSign("ok").SerializeBody(&body))
	require.NoError(t, serialize.WriteU16(&buf, 3))
	require.NoError(t, serialize.WriteU16(&buf, TypeSign))
	require.NoError(t, serialize.WriteString(&buf, body.String()))

	l := NewList()
	err := l.Deserialize(bytes.NewReader(buf.Bytes()), DefaultFactories(), logging.NewConsoleLogger("test"))
	require.NoError(t, err, "битые записи не должны прерывать чтение списка")
	assert.Equal(t, []uint16{3}, l.Positions())
}

func TestFactoryErrors(t *testing.T) {
	f := DefaultFactories()
	_, err := f.Create(77, nil)
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = f.Create(TypeSign, []byte{0, 5, 'a'})
	assert.ErrorIs(t, err, serialize.ErrMalformed)
}

func TestFurnaceFixedInterval(t *testing.T) {
	f := NewFurnace()
	f.Inventory().GetList("src").AddItem(ItemStack{Name: "cobble", Count: 1})
	f.Inventory().GetList("fuel").AddItem(ItemStack{Name: "tree", Count: 1})

	assert.False(t, f.Step(1.0), "меньше интервала ничего не происходит")
	assert.True(t, f.Step(1.0), "накопилось 2 секунды, печь загорается")
	assert.True(t, f.Burning())
	assert.True(t, f.Inventory().GetList("fuel").GetItem(0).Empty())

	f.Step(FurnaceStepInterval)
	f.Step(FurnaceStepInterval)

	assert.Equal(t, ItemStack{Name: "stone", Count: 1}, f.Inventory().GetList("dst").GetItem(0))
	assert.True(t, f.Inventory().GetList("src").GetItem(0).Empty())
}

func TestFurnaceWithoutFuelStaysCold(t *testing.T) {
	f := NewFurnace()
	f.Inventory().GetList("src").AddItem(ItemStack{Name: "cobble", Count: 1})
	assert.False(t, f.Step(10))
	assert.Equal(t, "Furnace is out of fuel", f.InfoText())
}

func TestInventoryAddTake(t *testing.T) {
	l := NewInventoryList("main", 2)
	left := l.AddItem(ItemStack{Name: "dirt", Count: 250})
	assert.Equal(t, uint16(250-2*MaxStack), left.Count)
	assert.False(t, l.RoomFor(ItemStack{Name: "dirt", Count: 1}))

	taken := l.TakeItem(0, 200)
	assert.Equal(t, uint16(MaxStack), taken.Count)
	assert.True(t, l.GetItem(0).Empty())
	assert.True(t, l.RoomFor(ItemStack{Name: "stone", Count: 10}))
}
