package util

import (
	"github.com/aquilax/go-perlin"
)

// Noise генератор шума Перлина с собственным сидом.
// Каждый генератор мира держит свой экземпляр.
type Noise struct {
	p    *perlin.Perlin
	Seed int64
}

// NewNoise создаёт генератор шума с указанным сидом и числом октав
func NewNoise(seed int64, octaves int32) *Noise {
	alpha := 2.0 // Сглаживание шума
	beta := 2.0  // Частота шума
	return &Noise{
		p:    perlin.NewPerlin(alpha, beta, octaves, seed),
		Seed: seed,
	}
}

// Noise2D возвращает значение шума для указанных координат (от 0 до 1)
func (n *Noise) Noise2D(x, y float64) float64 {
	return clamp01((n.p.Noise2D(x, y) + 1.0) / 2.0)
}

// Noise3D возвращает значение трёхмерного шума (от 0 до 1)
func (n *Noise) Noise3D(x, y, z float64) float64 {
	return clamp01((n.p.Noise3D(x, y, z) + 1.0) / 2.0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
