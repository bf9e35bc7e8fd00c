package serialize

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Reader источник данных, который умеет читать по байту.
// zlib-декодер на таком источнике не забирает байты следующей секции.
type Reader interface {
	io.Reader
	io.ByteReader
}

// ZlibVersion первая версия формата, в которой массивы сжимаются zlib
const ZlibVersion = 11

// MaxDecompressed ограничение на размер распакованных данных одной секции
const MaxDecompressed = 1 << 24

// Compress пишет data в w: zlib для новых версий, RLE для старых
func Compress(w io.Writer, data []byte, version uint8) error {
	if version >= ZlibVersion {
		return CompressZlib(w, data)
	}
	return CompressRLE(w, data)
}

// Decompress читает секцию, записанную Compress с той же версией
func Decompress(r Reader, version uint8) ([]byte, error) {
	if version >= ZlibVersion {
		return DecompressZlib(r)
	}
	return DecompressRLE(r)
}

// CompressZlib сжимает data одним zlib-потоком
func CompressZlib(w io.Writer, data []byte) error {
	zw := zlib.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return fmt.Errorf("ошибка zlib сжатия: %w", err)
	}
	return zw.Close()
}

// DecompressZlib читает ровно один zlib-поток из r
func DecompressZlib(r Reader) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения zlib заголовка: %w", err)
	}
	defer zr.Close()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(zr, MaxDecompressed+1))
	if err != nil {
		return nil, fmt.Errorf("ошибка zlib распаковки: %w", err)
	}
	if n > MaxDecompressed {
		return nil, fmt.Errorf("распакованные данные больше %d байт", MaxDecompressed)
	}
	return buf.Bytes(), nil
}

// CompressRLE пишет длину (u32) и пары (дополнительный счётчик, байт)
func CompressRLE(w io.Writer, data []byte) error {
	if err := WriteU32(w, uint32(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	out := make([]byte, 0, 64)
	var more uint8
	cur := data[0]
	for _, b := range data[1:] {
		if b != cur || more == 255 {
			out = append(out, more, cur)
			more = 0
			cur = b
			continue
		}
		more++
	}
	out = append(out, more, cur)

	_, err := w.Write(out)
	return err
}

// DecompressRLE разворачивает данные, записанные CompressRLE
func DecompressRLE(r Reader) ([]byte, error) {
	size, err := ReadU32(r)
	if err != nil {
		return nil, err
	}
	if size > MaxDecompressed {
		return nil, fmt.Errorf("RLE секция слишком большая: %d", size)
	}

	out := make([]byte, 0, size)
	for uint32(len(out)) < size {
		more, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("обрыв RLE данных: %w", err)
		}
		b, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("обрыв RLE данных: %w", err)
		}
		for i := 0; i <= int(more); i++ {
			out = append(out, b)
		}
	}
	if uint32(len(out)) != size {
		return nil, fmt.Errorf("RLE длина %d не совпадает с заголовком %d", len(out), size)
	}
	return out, nil
}
