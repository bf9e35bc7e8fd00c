package world

// NodeModType вид временной подмены узла
type NodeModType uint8

const (
	NodeModNone NodeModType = iota
	// NodeModChangeContent рисовать узел с другим content
	NodeModChangeContent
	// NodeModCrack наложить трещину стадии Param
	NodeModCrack
)

// NodeMod визуальная подмена, действует только при построении геометрии
// и никогда не сохраняется
type NodeMod struct {
	Type  NodeModType
	Param uint16
}
