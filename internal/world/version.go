package world

// Версии бинарного формата блока.
//
//	0      только content, 1 байт на узел
//	1..9   content + param1
//	8..    массивы узлов сжимаются (RLE до 11, zlib с 11)
//	10..   + param2
//	12..   + секция метаданных узлов
//	13     + секция статических объектов
const (
	LowestVersion     uint8 = 0
	Param1Version     uint8 = 1
	CompressedVersion uint8 = 8
	Param2Version     uint8 = 10
	NodeMetaVersion   uint8 = 12
	StaticObjVersion  uint8 = 13
	HighestVersion    uint8 = 13
)

// VersionSupported в пределах ли версия известного диапазона
func VersionSupported(v uint8) bool {
	return v <= HighestVersion
}
