package world

import (
	"context"
	"sync"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
)

// Контент для тестов освещения
const (
	testStone uint8 = 0
	testLamp  uint8 = 1
	testGlass uint8 = 2
	testTorch uint8 = 3
)

func testRegistry() *content.Registry {
	r := content.NewRegistry()
	_ = r.Register(testStone, content.ContentFeatures{
		Name:      "stone",
		ParamType: content.ParamMineral,
		Solidness: 2,
		Walkable:  true,
	})
	_ = r.Register(testLamp, content.ContentFeatures{
		Name:               "lamp",
		ParamType:          content.ParamLight,
		LightPropagates:    true,
		SunlightPropagates: true,
		LightSource:        content.LightSun,
	})
	_ = r.Register(testGlass, content.ContentFeatures{
		Name:               "glass",
		ParamType:          content.ParamLight,
		LightPropagates:    true,
		SunlightPropagates: true,
		Solidness:          1,
	})
	_ = r.Register(testTorch, content.ContentFeatures{
		Name:               "torch",
		ParamType:          content.ParamLight,
		LightPropagates:    true,
		SunlightPropagates: true,
		LightSource:        content.LightMax,
	})
	r.Freeze()
	return r
}

func testLogger() *logging.Logger {
	return logging.NewConsoleLogger("world-test")
}

// memStore хранилище блоков в памяти
type memStore struct {
	mu     sync.Mutex
	blocks map[vec.Vec3][]byte
	saves  int
	err    error
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[vec.Vec3][]byte)}
}

func (s *memStore) LoadBlock(_ context.Context, pos vec.Vec3) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blocks[pos]
	return data, ok, nil
}

func (s *memStore) SaveBlock(_ context.Context, pos vec.Vec3, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.blocks[pos] = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *memStore) Close() error { return nil }

// insertFilled кладёт в карту загруженный блок, заполненный n
func insertFilled(m *Map, pos vec.Vec3, n Node, underground bool) *Block {
	b := NewBlock(m, pos, false)
	b.Fill(n)
	b.generated = true
	b.isUnderground = underground
	m.InsertBlock(b)
	return b
}

func snapshot(m *Map, pos vec.Vec3) []Node {
	var out []Node
	m.WithBlock(pos, func(b *Block) {
		out = append([]Node(nil), b.data...)
	})
	return out
}
