package network

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Кадр: длина остатка (u32 LE), флаги (u8), тело
const (
	frameHeaderSize = 5

	frameFlagZstd uint8 = 1 << 0
)

// FrameCodec пишет и читает кадры. Безопасен для одновременного
// использования: EncodeAll и DecodeAll не держат состояния между вызовами.
type FrameCodec struct {
	threshold int
	maxSize   int

	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

// NewFrameCodec создаёт кодек по настройкам канала
func NewFrameCodec(cfg *ChannelConfig) (*FrameCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(cfg.MaxFrameSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	return &FrameCodec{
		threshold:    cfg.CompressThreshold,
		maxSize:      cfg.MaxFrameSize,
		compressor:   enc,
		decompressor: dec,
	}, nil
}

// Close освобождает ресурсы декодера
func (fc *FrameCodec) Close() {
	fc.decompressor.Close()
	fc.compressor.Close()
}

// Encode собирает кадр. Сжатие применяется, только если оно
// действительно уменьшает тело.
func (fc *FrameCodec) Encode(payload []byte) ([]byte, bool, error) {
	if len(payload) > fc.maxSize {
		return nil, false, fmt.Errorf("%w: %d", ErrFrameTooLarge, len(payload))
	}
	flags := uint8(0)
	body := payload
	if fc.threshold > 0 && len(payload) > fc.threshold {
		if packed := fc.compressor.EncodeAll(payload, nil); len(packed) < len(payload) {
			body = packed
			flags |= frameFlagZstd
		}
	}

	frame := make([]byte, frameHeaderSize+len(body))
	binary.LittleEndian.PutUint32(frame[:4], uint32(1+len(body)))
	frame[4] = flags
	copy(frame[frameHeaderSize:], body)
	return frame, flags&frameFlagZstd != 0, nil
}

// ReadFrame читает один кадр и возвращает распакованное тело
// и число прочитанных байт.
func (fc *FrameCodec) ReadFrame(r io.Reader) ([]byte, int, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, err
	}
	length := int(binary.LittleEndian.Uint32(header[:4]))
	if length < 1 || length-1 > fc.maxSize {
		return nil, frameHeaderSize, fmt.Errorf("%w: %d", ErrFrameTooLarge, length)
	}
	body := make([]byte, length-1)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, frameHeaderSize, fmt.Errorf("message too short: %w", err)
	}
	n := frameHeaderSize + len(body)

	if header[4]&frameFlagZstd != 0 {
		decompressed, err := fc.decompressor.DecodeAll(body, nil)
		if err != nil {
			return nil, n, fmt.Errorf("decompression failed: %w", err)
		}
		return decompressed, n, nil
	}
	return body, n, nil
}
