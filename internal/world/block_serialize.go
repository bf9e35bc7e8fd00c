package world

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/annel0/voxelworld/internal/logging"
	"github.com/annel0/voxelworld/internal/serialize"
	"github.com/annel0/voxelworld/internal/world/content"
	"github.com/annel0/voxelworld/internal/world/nodemeta"
)

// Биты байта флагов
const (
	flagUnderground     = 0x01
	flagDayNightDiffers = 0x02
	flagGenerated       = 0x04
	flagLightingExpired = 0x08
)

// DecodeContext всё, что нужно для чтения блока помимо самих байтов
type DecodeContext struct {
	Registry  *content.Registry
	Factories *nodemeta.Factories
	Log       *logging.Logger
}

// Serialize пишет блок в формате указанной версии, первым байтом идёт версия
func (b *Block) Serialize(w io.Writer, version uint8) error {
	if !VersionSupported(version) {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if b.data == nil {
		return fmt.Errorf("%w: нельзя сериализовать блок-заглушку %s", ErrUnloaded, b.pos)
	}

	var flags uint8
	if b.isUnderground {
		flags |= flagUnderground
	}
	if b.dayNightDiffers {
		flags |= flagDayNightDiffers
	}
	if b.generated {
		flags |= flagGenerated
	}
	if b.lightingExpired {
		flags |= flagLightingExpired
	}
	if _, err := w.Write([]byte{version, flags}); err != nil {
		return err
	}

	if version < CompressedVersion {
		nodeLen := SerializedNodeLength(version)
		buf := make([]byte, BlockVolume*nodeLen)
		for i, n := range b.data {
			n.Serialize(buf[i*nodeLen:], version)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	} else {
		// Массивы content, param1, param2 друг за другом сжимаются вместе
		planes := 2
		if version >= Param2Version {
			planes = 3
		}
		buf := make([]byte, BlockVolume*planes)
		for i, n := range b.data {
			buf[i] = n.Content
			buf[BlockVolume+i] = n.Param1
			if planes == 3 {
				buf[2*BlockVolume+i] = n.Param2
			}
		}
		if err := serialize.Compress(w, buf, version); err != nil {
			return fmt.Errorf("ошибка сжатия узлов блока %s: %w", b.pos, err)
		}
	}

	if version >= NodeMetaVersion {
		if err := b.NodeMeta.Serialize(w); err != nil {
			return fmt.Errorf("ошибка записи метаданных блока %s: %w", b.pos, err)
		}
	}
	if version >= StaticObjVersion {
		if err := b.StaticObjects.Serialize(w); err != nil {
			return fmt.Errorf("ошибка записи объектов блока %s: %w", b.pos, err)
		}
	}
	return nil
}

// Deserialize читает блок, записанный Serialize. Битые метаданные и
// объекты теряются с предупреждением, битые узлы - ошибка всего блока.
// Байты после известных версии секций не читаются.
func (b *Block) Deserialize(r serialize.Reader, dc DecodeContext) error {
	_, err := b.deserialize(r, dc)
	return err
}

// deserialize возвращает tailLost, если секция метаданных или
// статических объектов оборвалась: узлы прочитаны, но положение потока
// неизвестно, и всё дальнейшее (в том числе дисковые поля) не читается.
func (b *Block) deserialize(r serialize.Reader, dc DecodeContext) (tailLost bool, err error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return false, fmt.Errorf("%w: заголовок блока %s: %v", ErrSerialization, b.pos, err)
	}
	version, flags := hdr[0], hdr[1]
	if !VersionSupported(version) {
		return false, fmt.Errorf("%w: %d (блок %s)", ErrUnsupportedVersion, version, b.pos)
	}

	data := make([]Node, BlockVolume)
	if version < CompressedVersion {
		nodeLen := SerializedNodeLength(version)
		buf := make([]byte, BlockVolume*nodeLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return false, fmt.Errorf("%w: узлы блока %s: %v", ErrSerialization, b.pos, err)
		}
		for i := range data {
			data[i] = DeserializeNode(buf[i*nodeLen:], version)
		}
	} else {
		buf, err := serialize.Decompress(r, version)
		if err != nil {
			return false, fmt.Errorf("%w: узлы блока %s: %v", ErrSerialization, b.pos, err)
		}
		planes := 2
		if version >= Param2Version {
			planes = 3
		}
		if len(buf) != BlockVolume*planes {
			return false, fmt.Errorf("%w: блок %s: %d байт узлов вместо %d",
				ErrSerialization, b.pos, len(buf), BlockVolume*planes)
		}
		for i := range data {
			data[i].Content = buf[i]
			data[i].Param1 = buf[BlockVolume+i]
			if planes == 3 {
				data[i].Param2 = buf[2*BlockVolume+i]
			}
		}
	}

	b.data = data
	b.isUnderground = flags&flagUnderground != 0
	b.dayNightDiffers = flags&flagDayNightDiffers != 0
	b.generated = flags&flagGenerated != 0
	b.lightingExpired = flags&flagLightingExpired != 0
	b.NodeMeta.Clear()
	b.StaticObjects = NewStaticObjectList()

	if dc.Registry != nil {
		b.translateLegacy(dc.Registry)
	}

	if version >= NodeMetaVersion {
		factories := dc.Factories
		if factories == nil {
			factories = nodemeta.DefaultFactories()
		}
		if err := b.NodeMeta.Deserialize(r, factories, dc.Log); err != nil {
			dc.Log.Warn("Метаданные блока %s потеряны, остаток блока пропущен: %v", b.pos, err)
			b.NodeMeta.Clear()
			return true, nil
		}
	}
	if version >= StaticObjVersion {
		if err := b.StaticObjects.Deserialize(r); err != nil {
			dc.Log.Warn("Статические объекты блока %s потеряны: %v", b.pos, err)
			b.StaticObjects = NewStaticObjectList()
			return true, nil
		}
	}
	return false, nil
}

// SerializeDiskExtra пишет поля, которые хранятся только на диске
func (b *Block) SerializeDiskExtra(w io.Writer, version uint8) error {
	return serialize.WriteU32(w, b.timestamp)
}

// DeserializeDiskExtra читает поля диска. Их отсутствие не ошибка.
func (b *Block) DeserializeDiskExtra(r io.Reader, version uint8) error {
	ts, err := serialize.ReadU32(r)
	if errors.Is(err, io.EOF) {
		b.timestamp = BlockTimestampUndefined
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: дисковые поля блока %s: %v", ErrSerialization, b.pos, err)
	}
	b.timestamp = ts
	return nil
}

// SerializeToBytes удобная обёртка для сети
func (b *Block) SerializeToBytes(version uint8) ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Serialize(&buf, version); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SerializeForDisk блок последней версии плюс дисковые поля
func (b *Block) SerializeForDisk() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Serialize(&buf, HighestVersion); err != nil {
		return nil, err
	}
	if err := b.SerializeDiskExtra(&buf, HighestVersion); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeFromDisk обратная к SerializeForDisk
func (b *Block) DeserializeFromDisk(data []byte, dc DecodeContext) error {
	r := bytes.NewReader(data)
	tailLost, err := b.deserialize(r, dc)
	if err != nil {
		return err
	}
	if tailLost {
		b.timestamp = BlockTimestampUndefined
		return nil
	}
	return b.DeserializeDiskExtra(r, data[0])
}
