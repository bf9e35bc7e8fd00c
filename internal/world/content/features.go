// Package content описывает статические свойства типов узлов.
package content

import "github.com/annel0/voxelworld/internal/world/nodemeta"

// Зарезервированные идентификаторы
const (
	// Ignore узел за пределами загруженного мира
	Ignore uint8 = 255
	// Air обычный воздух
	Air uint8 = 254
)

// Уровни освещённости, хранятся в 4 битах
const (
	LightMax uint8 = 14
	LightSun uint8 = 15
)

// ParamType определяет смысл param1
type ParamType uint8

const (
	ParamNone ParamType = iota
	// ParamLight param1 хранит два банка освещённости
	ParamLight
	ParamMineral
	// ParamFaceDirSimple param1 хранит направление 0..3 вокруг оси Y
	ParamFaceDirSimple
)

// LiquidType вид жидкости
type LiquidType uint8

const (
	LiquidNone LiquidType = iota
	LiquidFlowing
	LiquidSource
)

// MaterialType способ смешивания тайла при отрисовке
type MaterialType uint8

const (
	MaterialOpaque MaterialType = iota
	MaterialAlphaVertex
	MaterialAlphaSimple
)

// Индексы граней в ContentFeatures.Tiles
const (
	FaceUp = iota
	FaceDown
	FaceRight // +X
	FaceLeft  // -X
	FaceBack  // +Z
	FaceFront // -Z
)

// TileSpec ссылка на текстуру одной грани
type TileSpec struct {
	Texture         string
	Alpha           uint8
	Material        MaterialType
	BackfaceCulling bool
}

// ContentFeatures свойства одного типа узла
type ContentFeatures struct {
	Name  string
	Tiles [6]TileSpec
	// InventoryTexture картинка в инвентаре
	InventoryTexture string

	ParamType       ParamType
	IsGroundContent bool

	LightPropagates    bool
	SunlightPropagates bool
	// Solidness 0 невидимый, 1 прозрачный, 2 непрозрачный
	Solidness uint8

	Walkable    bool
	Pointable   bool
	Diggable    bool
	BuildableTo bool

	LiquidType LiquidType
	// LiquidAlternativeFlowing текущая форма жидкости, общая у всего семейства
	LiquidAlternativeFlowing uint8
	LiquidAlternativeSource  uint8

	WallMounted   bool
	AirEquivalent bool

	// DugItem что выпадает при выкапывании, пусто - сам узел
	DugItem string
	// LightSource собственный свет узла
	LightSource uint8

	// InitialMetadata прототип, клонируется при установке узла
	InitialMetadata nodemeta.NodeMetadata

	// TranslateTo устаревший идентификатор заменяется при загрузке
	TranslateTo    uint8
	HasTranslation bool
}

// SetAllTextures задаёт одну текстуру всем граням
func (f *ContentFeatures) SetAllTextures(name string) {
	for i := range f.Tiles {
		f.Tiles[i] = TileSpec{Texture: name, BackfaceCulling: true}
	}
	if f.InventoryTexture == "" {
		f.InventoryTexture = name
	}
}

// SetTexture задаёт текстуру одной грани
func (f *ContentFeatures) SetTexture(face int, name string) {
	f.Tiles[face] = TileSpec{Texture: name, BackfaceCulling: true}
}

// SetAlpha задаёт прозрачность всем граням
func (f *ContentFeatures) SetAlpha(alpha uint8) {
	for i := range f.Tiles {
		f.Tiles[i].Alpha = alpha
		f.Tiles[i].Material = MaterialAlphaVertex
	}
}

// IsLiquid для текущей и стоячей жидкости
func (f *ContentFeatures) IsLiquid() bool {
	return f.LiquidType != LiquidNone
}

// unknownFeatures безопасные свойства для незарегистрированного идентификатора:
// не видно, не твёрдый, свет не пропускает
func unknownFeatures() ContentFeatures {
	f := ContentFeatures{
		Name:      "unknown",
		ParamType: ParamNone,
	}
	f.SetAllTextures("unknown_block.png")
	return f
}

func ignoreFeatures() ContentFeatures {
	return ContentFeatures{
		Name:      "ignore",
		ParamType: ParamNone,
	}
}

func airFeatures() ContentFeatures {
	return ContentFeatures{
		Name:               "air",
		ParamType:          ParamLight,
		LightPropagates:    true,
		SunlightPropagates: true,
		BuildableTo:        true,
		AirEquivalent:      true,
	}
}
