package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []*Envelope
}

func (c *collector) handle(_ context.Context, ev *Envelope) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.EventType)
	}
	return out
}

func mustEnvelope(t *testing.T, typ string, prio int) *Envelope {
	t.Helper()
	ev, err := NewEnvelope(typ, "test", prio, map[string]int{"x": 1})
	require.NoError(t, err)
	return ev
}

func TestNewEnvelope(t *testing.T) {
	ev := mustEnvelope(t, TypeMapEdit, 5)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 1, ev.Version)
	assert.JSONEq(t, `{"x":1}`, string(ev.Payload))

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"map.edit"`)
}

func TestMemoryBus(t *testing.T) {
	ctx := context.Background()

	t.Run("доставка по порядку и фильтр", func(t *testing.T) {
		bus := NewMemoryBus(16)
		all, edits := &collector{}, &collector{}
		_, err := bus.Subscribe(ctx, Filter{}, all.handle)
		require.NoError(t, err)
		_, err = bus.Subscribe(ctx, Filter{Types: []string{TypeMapEdit}}, edits.handle)
		require.NoError(t, err)

		for _, typ := range []string{TypePlayerJoin, TypeMapEdit, TypePlayerLeave, TypeMapEdit} {
			require.NoError(t, bus.Publish(ctx, mustEnvelope(t, typ, 5)))
		}
		require.NoError(t, bus.Close())

		assert.Equal(t, []string{TypePlayerJoin, TypeMapEdit, TypePlayerLeave, TypeMapEdit}, all.types())
		assert.Equal(t, []string{TypeMapEdit, TypeMapEdit}, edits.types())

		st := bus.Metrics()
		assert.Equal(t, uint64(4), st.Published)
		assert.Equal(t, uint64(6), st.Consumed)
	})

	t.Run("отписка", func(t *testing.T) {
		bus := NewMemoryBus(4)
		c := &collector{}
		sub, err := bus.Subscribe(ctx, Filter{}, c.handle)
		require.NoError(t, err)
		sub.Unsubscribe()
		require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeMapEdit, 5)))
		require.NoError(t, bus.Close())
		assert.Empty(t, c.types())
	})

	t.Run("низкий приоритет отбрасывается при переполнении", func(t *testing.T) {
		bus := NewMemoryBus(1)
		block := make(chan struct{})
		_, err := bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) { <-block })
		require.NoError(t, err)

		// Первое событие занимает обработчик, второе буфер
		require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeMapEdit, 5)))
		require.Eventually(t, func() bool { return bus.Metrics().InFlight == 0 }, time.Second, time.Millisecond)
		require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeMapEdit, 5)))
		require.NoError(t, bus.Publish(ctx, mustEnvelope(t, TypeMapEdit, 1)))
		assert.Equal(t, uint64(1), bus.Metrics().Dropped)

		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, bus.Publish(tctx, mustEnvelope(t, TypeMapEdit, 9)), context.DeadlineExceeded)

		close(block)
		require.NoError(t, bus.Close())
		assert.ErrorIs(t, bus.Publish(ctx, mustEnvelope(t, TypeMapEdit, 9)), ErrClosed)
	})
}

func TestMetricsExporter(t *testing.T) {
	bus := NewMemoryBus(8)
	reg := prometheus.NewRegistry()
	me := NewMetricsExporter(bus, reg)

	require.NoError(t, bus.Publish(context.Background(), mustEnvelope(t, TypeMapEdit, 5)))
	require.NoError(t, bus.Publish(context.Background(), mustEnvelope(t, TypeMapEdit, 5)))
	prev := me.collect(Stats{})
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))

	require.NoError(t, bus.Publish(context.Background(), mustEnvelope(t, TypeMapEdit, 5)))
	me.collect(prev)
	assert.Equal(t, 3.0, testutil.ToFloat64(me.published))
	require.NoError(t, bus.Close())
}
