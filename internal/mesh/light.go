package mesh

import (
	"github.com/annel0/voxelworld/internal/vec"
	"github.com/annel0/voxelworld/internal/world"
	"github.com/annel0/voxelworld/internal/world/content"
)

// lightDecodeTable яркость для уровней 0..LightMax
var lightDecodeTable = [content.LightMax + 1]uint8{
	8, 11, 14, 18, 22, 29, 37, 47, 60, 76, 97, 123, 157, 200, 255,
}

// DecodeLight переводит уровень света в яркость вершины.
// Уровни выше LightMax (солнце) дают максимальную яркость.
func DecodeLight(light uint8) uint8 {
	if light > content.LightMax {
		light = content.LightMax
	}
	return lightDecodeTable[light]
}

// faceLight плоский свет грани между a и b. Грани разных сторон
// затеняются по-разному, чтобы куб читался без сглаживания.
func faceLight(ratio uint32, a, b world.Node, dir vec.Vec3, reg *content.Registry) uint8 {
	light := max(a.LightBlend(ratio, reg), b.LightBlend(ratio, reg))

	switch {
	case dir.X == 1 || dir.Z == 1 || dir.Y == -1:
		light = world.DiminishLight(world.DiminishLight(light))
	case dir.X == -1 || dir.Z == -1:
		light = world.DiminishLight(light)
	}
	return DecodeLight(light)
}

// cornerSamples смещения восьми узлов вокруг угла
var cornerSamples = [8]vec.Vec3{
	{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 1},
	{X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1},
}

// smoothLight свет угла узла p в направлении corner (компоненты +-1).
// Усредняются узлы со светом среди восьми вокруг угла. Если таких нет,
// угол считается полностью освещённым, чтобы на краю загруженного мира
// не было тёмных швов.
func smoothLight(vm *world.VoxelManipulator, p, corner vec.Vec3, ratio uint32, reg *content.Registry) uint8 {
	if corner.X == 1 {
		p.X++
	}
	if corner.Y == 1 {
		p.Y++
	}
	if corner.Z == 1 {
		p.Z++
	}

	var light, count, occlusion int
	for _, d := range cornerSamples {
		n := vm.GetNodeNoEx(p.Sub(d))
		f := reg.Lookup(n.Content)
		if f.ParamType == content.ParamLight && f.Solidness != 2 {
			light += int(DecodeLight(n.LightBlend(ratio, reg)))
			count++
		} else if !n.IsIgnore() {
			occlusion++
		}
	}
	if count == 0 {
		return 255
	}
	light /= count
	if occlusion > 4 {
		light = int(float32(light) / (float32(occlusion-4)*0.5 + 1))
	}
	return uint8(light)
}
