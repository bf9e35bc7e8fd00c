package world

import (
	"math"

	"github.com/annel0/voxelworld/internal/util"
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world/content"
)

// Параметры рельефа по умолчанию
const (
	DefaultSeaLevel   = 1
	DefaultHeightBase = -4
	DefaultHeightAmp  = 40
	DefaultNoiseScale = 0.01
	DefaultTreeChance = 0.02
)

// MapGenerator генерирует ландшафт по шуму Перлина: рельеф задаётся
// двумерным шумом, руды и пещеры трёхмерным. Результат зависит только от
// сида и координат, поэтому блоки можно генерировать в любом порядке.
type MapGenerator struct {
	Seed       int64
	SeaLevel   int
	HeightBase int
	HeightAmp  float64
	NoiseScale float64
	TreeChance float64

	height *util.Noise
	detail *util.Noise
	trees  *util.Noise
}

// NewMapGenerator создаёт генератор с параметрами по умолчанию
func NewMapGenerator(seed int64) *MapGenerator {
	return &MapGenerator{
		Seed:       seed,
		SeaLevel:   DefaultSeaLevel,
		HeightBase: DefaultHeightBase,
		HeightAmp:  DefaultHeightAmp,
		NoiseScale: DefaultNoiseScale,
		TreeChance: DefaultTreeChance,
		height:     util.NewNoise(seed, 4),
		detail:     util.NewNoise(seed+1, 2),
		trees:      util.NewNoise(seed+2, 2),
	}
}

// SurfaceHeight высота верхнего твёрдого узла столбца
func (g *MapGenerator) SurfaceHeight(x, z int) int {
	n := g.height.Noise2D(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	// Квадрат делает равнины шире, а горы реже
	return g.HeightBase + int(math.Round(n*n*g.HeightAmp))
}

// Generate заполняет блок узлами
func (g *MapGenerator) Generate(b *Block) error {
	if b.IsDummy() {
		b.Reallocate()
	}
	origin := b.Origin()
	minSurface := math.MaxInt

	for z := 0; z < BlockSize; z++ {
		for x := 0; x < BlockSize; x++ {
			wx, wz := origin.X+x, origin.Z+z
			h := g.SurfaceHeight(wx, wz)
			minSurface = min(minSurface, h)

			for y := 0; y < BlockSize; y++ {
				wy := origin.Y + y
				b.data[localIndex(vec.New(x, y, z))] = g.nodeAt(wx, wy, wz, h)
			}
		}
	}

	g.placeTrees(b)

	b.SetIsUnderground(origin.Y+BlockSize-1 < minSurface)
	return nil
}

func (g *MapGenerator) nodeAt(x, y, z, surface int) Node {
	switch {
	case y > surface:
		if y <= g.SeaLevel {
			return NewNode(content.WaterSource)
		}
		return AirNode
	case y == surface:
		if surface <= g.SeaLevel+1 {
			return NewNode(content.Sand)
		}
		return NewNode(content.Grass)
	case y > surface-3:
		if surface <= g.SeaLevel+1 {
			return NewNode(content.Sand)
		}
		return NewNode(content.Mud)
	}

	d := g.detail.Noise3D(float64(x)*0.08, float64(y)*0.08, float64(z)*0.08)
	if d > 0.78 && y < surface-6 {
		return NewNode(content.CoalStone)
	}
	return NewNode(content.Stone)
}

// placeTrees ставит деревья, чьи ствол или крона попадают в блок.
// Столбцы вокруг блока тоже проверяются, чтобы крона не обрывалась
// на границе.
func (g *MapGenerator) placeTrees(b *Block) {
	const reach = 2
	origin := b.Origin()

	for z := -reach; z < BlockSize+reach; z++ {
		for x := -reach; x < BlockSize+reach; x++ {
			wx, wz := origin.X+x, origin.Z+z
			if !g.hasTree(wx, wz) {
				continue
			}
			ground := g.SurfaceHeight(wx, wz)
			if ground <= g.SeaLevel+1 {
				continue
			}
			trunk := 4 + int(columnHash(g.Seed, wx, wz)>>60)%2

			for dy := 1; dy <= trunk; dy++ {
				g.putIfAir(b, vec.New(wx, ground+dy, wz), content.Tree, true)
			}
			top := ground + trunk
			for dz := -reach; dz <= reach; dz++ {
				for dy := -1; dy <= 1; dy++ {
					for dx := -reach; dx <= reach; dx++ {
						if abs(dx)+abs(dz)+abs(dy) > 3 {
							continue
						}
						g.putIfAir(b, vec.New(wx+dx, top+dy, wz+dz), content.Leaves, false)
					}
				}
			}
		}
	}
}

func (g *MapGenerator) hasTree(x, z int) bool {
	density := g.trees.Noise2D(float64(x)*0.02, float64(z)*0.02)
	if density < 0.45 {
		return false
	}
	r := float64(columnHash(g.Seed, x, z)&0xffff) / 0xffff
	return r < g.TreeChance*density*2
}

func (g *MapGenerator) putIfAir(b *Block, p vec.Vec3, c uint8, overwrite bool) {
	if BlockPosOf(p) != b.Pos() {
		return
	}
	i := localIndex(LocalPosOf(p))
	cur := b.data[i].Content
	if cur == content.Air || (overwrite && cur == content.Leaves) {
		b.data[i] = NewNode(c)
	}
}

// columnHash детерминированный хеш столбца
func columnHash(seed int64, x, z int) uint64 {
	h := uint64(seed) ^ uint64(int64(x))*0x9e3779b97f4a7c15 ^ uint64(int64(z))*0xc2b2ae3d27d4eb4f
	h ^= h >> 30
	h *= 0xbf58476d1ce4e5b9
	h ^= h >> 27
	h *= 0x94d049bb133111eb
	h ^= h >> 31
	return h
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
