package world

import (
	"math"

	"github.com/annel0/voxelworld/internal/world/content"
)

// Node минимальная ячейка мира: тип и два байта параметров.
// Смысл Param1 и Param2 определяется свойствами типа в реестре.
type Node struct {
	Content uint8
	Param1  uint8
	Param2  uint8
}

// LightBank один из двух каналов освещения
type LightBank uint8

const (
	LightDay LightBank = iota
	LightNight
)

// Banks оба канала для циклов
var Banks = [2]LightBank{LightDay, LightNight}

// IgnoreNode возвращается вместо узлов незагруженных блоков
var IgnoreNode = Node{Content: content.Ignore}

// AirNode пустой воздух без света
var AirNode = Node{Content: content.Air}

// NewNode создаёт узел без параметров
func NewNode(c uint8) Node {
	return Node{Content: c}
}

// IsIgnore узел за пределами загруженного мира
func (n Node) IsIgnore() bool {
	return n.Content == content.Ignore
}

// Light возвращает освещённость канала с учётом собственного света узла
func (n Node) Light(bank LightBank, reg *content.Registry) uint8 {
	f := reg.Lookup(n.Content)
	var stored uint8
	if f.ParamType == content.ParamLight {
		if bank == LightDay {
			stored = n.Param1 & 0x0f
		} else {
			stored = (n.Param1 >> 4) & 0x0f
		}
	}
	return max(stored, f.LightSource)
}

// StoredLight освещённость из param1 без собственного света
func (n Node) StoredLight(bank LightBank, reg *content.Registry) uint8 {
	if reg.Lookup(n.Content).ParamType != content.ParamLight {
		return 0
	}
	if bank == LightDay {
		return n.Param1 & 0x0f
	}
	return (n.Param1 >> 4) & 0x0f
}

// SetLight записывает освещённость канала. Для типов без света ничего не делает.
func (n *Node) SetLight(bank LightBank, level uint8, reg *content.Registry) {
	if reg.Lookup(n.Content).ParamType != content.ParamLight {
		return
	}
	level &= 0x0f
	if bank == LightDay {
		n.Param1 = (n.Param1 & 0xf0) | level
	} else {
		n.Param1 = (n.Param1 & 0x0f) | (level << 4)
	}
}

// LightBlend смешивает дневной и ночной свет, ratio от 0 (ночь) до 1000 (день).
// Результат не превышает LightMax, кроме случая прямого солнца днём.
func (n Node) LightBlend(ratio uint32, reg *content.Registry) uint8 {
	day := uint32(n.Light(LightDay, reg))
	night := uint32(n.Light(LightNight, reg))
	mix := (ratio*day + (1000-ratio)*night + 500) / 1000

	limit := uint32(content.LightMax)
	if day == uint32(content.LightSun) {
		limit = uint32(content.LightSun)
	}
	return uint8(min(mix, limit))
}

// DiminishLight уменьшает свет на один шаг для затенения граней.
// Солнце и LightMax дают LightMax-1.
func DiminishLight(light uint8) uint8 {
	if light == 0 {
		return 0
	}
	if light >= content.LightMax {
		return content.LightMax - 1
	}
	return light - 1
}

// Direction направление 0..3 для узлов с ParamFaceDirSimple
func (n Node) Direction(reg *content.Registry) uint8 {
	if reg.Lookup(n.Content).ParamType == content.ParamFaceDirSimple {
		return n.Param1 & 0x03
	}
	return 0
}

// FaceContents решает, рисуется ли грань между a и b.
// 0 - не рисуется, 1 - грань узла a, 2 - грань узла b.
func FaceContents(reg *content.Registry, a, b uint8) uint8 {
	if a == content.Ignore || b == content.Ignore {
		return 0
	}

	fa, fb := reg.Lookup(a), reg.Lookup(b)

	contentsDiffer := a != b
	// Текущая и стоячая вода считаются одним и тем же
	if fa.IsLiquid() && fb.IsLiquid() && fa.LiquidAlternativeFlowing == fb.LiquidAlternativeFlowing {
		contentsDiffer = false
	}

	if !contentsDiffer || fa.Solidness == fb.Solidness {
		return 0
	}
	if fa.Solidness > fb.Solidness {
		return 1
	}
	return 2
}

// SerializedNodeLength размер одного узла в байтах для версии формата
func SerializedNodeLength(version uint8) int {
	switch {
	case version == 0:
		return 1
	case version < Param2Version:
		return 2
	default:
		return 3
	}
}

// Serialize пишет узел в dst, длина dst не меньше SerializedNodeLength
func (n Node) Serialize(dst []byte, version uint8) {
	dst[0] = n.Content
	if version >= Param1Version {
		dst[1] = n.Param1
	}
	if version >= Param2Version {
		dst[2] = n.Param2
	}
}

// DeserializeNode читает узел, отсутствующие в версии поля равны нулю
func DeserializeNode(src []byte, version uint8) Node {
	n := Node{Content: src[0]}
	if version >= Param1Version {
		n.Param1 = src[1]
	}
	if version >= Param2Version {
		n.Param2 = src[2]
	}
	return n
}

// FaceDirFromYaw поворот 0..3 вокруг оси Y по углу взгляда в градусах
func FaceDirFromYaw(yaw float32) uint8 {
	d := int(math.Round(float64(yaw)/90)) % 4
	if d < 0 {
		d += 4
	}
	return uint8(d)
}
