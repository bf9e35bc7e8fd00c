package content

import "github.com/annel0/voxelworld/internal/world/nodemeta"

// Идентификаторы встроенного набора контента
const (
	Stone uint8 = iota
	Grass
	Water
	Torch
	Tree
	Leaves
	GrassFootsteps
	Mese
	Mud
	WaterSource
	Cloud
	CoalStone
	Wood
	Sand
	SignWall
	Chest
	Furnace
	Workbench
	Cobble
	Steel
	Glass
	Fence
	Sandstone
	Cactus
	Brick
	Clay
	Papyrus
	Bookshelf
	Rail
)

// WaterAlpha прозрачность воды
const WaterAlpha = 160

// DefaultRegistry собирает и замораживает встроенную таблицу
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for id, f := range defaultTable() {
		if err := r.Register(id, f); err != nil {
			panic(err)
		}
	}
	r.Freeze()
	return r
}

func solid(name, texture string) ContentFeatures {
	f := ContentFeatures{
		Name:            name,
		ParamType:       ParamMineral,
		IsGroundContent: true,
		Solidness:       2,
		Walkable:        true,
		Pointable:       true,
		Diggable:        true,
		DugItem:         name,
	}
	f.SetAllTextures(texture)
	return f
}

func liquid(name string, typ LiquidType) ContentFeatures {
	f := ContentFeatures{
		Name:                     name,
		ParamType:                ParamLight,
		LightPropagates:          true,
		Solidness:                1,
		BuildableTo:              true,
		LiquidType:               typ,
		LiquidAlternativeFlowing: Water,
		LiquidAlternativeSource:  WaterSource,
	}
	f.SetAllTextures("water.png")
	f.SetAlpha(WaterAlpha)
	f.InventoryTexture = "water.png"
	return f
}

func defaultTable() map[uint8]ContentFeatures {
	t := make(map[uint8]ContentFeatures)

	t[Stone] = solid("stone", "stone.png")
	f := t[Stone]
	f.DugItem = "cobble"
	t[Stone] = f

	f = solid("grass", "mud.png^grass_side.png")
	f.SetTexture(FaceUp, "grass.png")
	f.SetTexture(FaceDown, "mud.png")
	f.DugItem = "mud"
	t[Grass] = f

	f = solid("grass_footsteps", "mud.png^grass_side.png")
	f.SetTexture(FaceUp, "grass_footsteps.png")
	f.SetTexture(FaceDown, "mud.png")
	f.DugItem = "mud"
	f.TranslateTo = Grass
	f.HasTranslation = true
	t[GrassFootsteps] = f

	t[Mud] = solid("mud", "mud.png")
	t[Sand] = solid("sand", "sand.png")
	t[Sandstone] = solid("sandstone", "sandstone.png")
	t[Clay] = solid("clay", "clay.png")
	f = t[Clay]
	f.DugItem = "clay_lump"
	t[Clay] = f
	t[Brick] = solid("brick", "brick.png")
	t[Mese] = solid("mese", "mese.png")
	t[Cobble] = solid("cobble", "cobble.png")
	t[Steel] = solid("steelblock", "steel_block.png")

	f = solid("coalstone", "stone.png^mineral_coal.png")
	f.DugItem = "coal_lump"
	t[CoalStone] = f

	f = solid("tree", "tree.png")
	f.SetTexture(FaceUp, "tree_top.png")
	f.SetTexture(FaceDown, "tree_top.png")
	f.IsGroundContent = false
	t[Tree] = f

	f = solid("leaves", "leaves.png")
	f.ParamType = ParamLight
	f.LightPropagates = true
	f.Solidness = 1
	f.IsGroundContent = false
	t[Leaves] = f

	f = solid("wood", "wood.png")
	f.IsGroundContent = false
	t[Wood] = f

	f = solid("bookshelf", "bookshelf.png")
	f.SetTexture(FaceUp, "wood.png")
	f.SetTexture(FaceDown, "wood.png")
	f.IsGroundContent = false
	t[Bookshelf] = f

	f = solid("glass", "glass.png")
	f.ParamType = ParamLight
	f.LightPropagates = true
	f.SunlightPropagates = true
	f.Solidness = 1
	f.IsGroundContent = false
	t[Glass] = f

	f = solid("cactus", "cactus_side.png")
	f.SetTexture(FaceUp, "cactus_top.png")
	f.SetTexture(FaceDown, "cactus_top.png")
	f.ParamType = ParamNone
	f.IsGroundContent = false
	t[Cactus] = f

	f = solid("cloud", "cloud.png")
	f.ParamType = ParamNone
	f.Walkable = true
	f.Diggable = false
	f.IsGroundContent = false
	t[Cloud] = f

	t[Water] = liquid("water", LiquidFlowing)
	t[WaterSource] = liquid("water_source", LiquidSource)

	// Плоские узлы: не перекрывают свет и не рисуются гранями блока
	flat := func(name, texture string) ContentFeatures {
		f := ContentFeatures{
			Name:               name,
			ParamType:          ParamLight,
			LightPropagates:    true,
			SunlightPropagates: true,
			Pointable:          true,
			Diggable:           true,
			DugItem:            name,
			InventoryTexture:   texture,
		}
		return f
	}

	f = flat("torch", "torch_on_floor.png")
	f.WallMounted = true
	f.LightSource = LightMax
	t[Torch] = f

	f = flat("sign_wall", "sign_wall.png")
	f.WallMounted = true
	f.InitialMetadata = nodemeta.NewSign("Some sign")
	t[SignWall] = f

	f = flat("fence", "fence.png")
	f.Walkable = true
	t[Fence] = f

	f = flat("rail", "rail.png")
	t[Rail] = f

	f = flat("papyrus", "papyrus.png")
	t[Papyrus] = f

	f = solid("chest", "chest_side.png")
	f.SetTexture(FaceUp, "chest_top.png")
	f.SetTexture(FaceDown, "chest_top.png")
	f.SetTexture(FaceFront, "chest_front.png")
	f.ParamType = ParamFaceDirSimple
	f.IsGroundContent = false
	f.InitialMetadata = nodemeta.NewChest()
	t[Chest] = f

	f = solid("furnace", "furnace_side.png")
	f.SetTexture(FaceFront, "furnace_front.png")
	f.ParamType = ParamFaceDirSimple
	f.IsGroundContent = false
	f.DugItem = "cobble"
	f.InitialMetadata = nodemeta.NewFurnace()
	t[Furnace] = f

	f = solid("workbench", "workbench_side.png")
	f.SetTexture(FaceUp, "workbench_top.png")
	f.IsGroundContent = false
	t[Workbench] = f

	return t
}
