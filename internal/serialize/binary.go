// Package serialize содержит бинарные примитивы формата блоков и метаданных.
// Все многобайтовые числа пишутся в big-endian.
package serialize

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrStringTooLong строка не помещается в префикс длины
var ErrStringTooLong = errors.New("строка слишком длинная")

// WriteU8 записывает один байт
func WriteU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// WriteU16 записывает uint16 в big-endian формате
func WriteU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// WriteU32 записывает uint32 в big-endian формате
func WriteU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// WriteS32 записывает int32 в big-endian формате
func WriteS32(w io.Writer, v int32) error {
	return WriteU32(w, uint32(v))
}

// WriteF1000 записывает float как int32 с фиксированной точкой 1/1000
func WriteF1000(w io.Writer, v float32) error {
	return WriteS32(w, int32(math.Round(float64(v)*1000)))
}

// WriteString записывает строку с 16-битным префиксом длины
func WriteString(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: %d байт", ErrStringTooLong, len(s))
	}
	if err := WriteU16(w, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// WriteLongString записывает строку с 32-битным префиксом длины
func WriteLongString(w io.Writer, s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d байт", ErrStringTooLong, len(s))
	}
	if err := WriteU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadU8 читает один байт
func ReadU8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 читает uint16 из big-endian формата
func ReadU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// ReadU32 читает uint32 из big-endian формата
func ReadU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ReadS32 читает int32 из big-endian формата
func ReadS32(r io.Reader) (int32, error) {
	v, err := ReadU32(r)
	return int32(v), err
}

// ReadF1000 читает число с фиксированной точкой 1/1000
func ReadF1000(r io.Reader) (float32, error) {
	v, err := ReadS32(r)
	return float32(v) / 1000, err
}

// ReadString читает строку с 16-битным префиксом длины
func ReadString(r io.Reader) (string, error) {
	n, err := ReadU16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadLongString читает строку с 32-битным префиксом длины.
// limit ограничивает размер, чтобы битые данные не выделяли гигабайты.
func ReadLongString(r io.Reader, limit uint32) (string, error) {
	n, err := ReadU32(r)
	if err != nil {
		return "", err
	}
	if n > limit {
		return "", fmt.Errorf("%w: %d > %d", ErrStringTooLong, n, limit)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ErrMalformed данные секции не соответствуют формату
var ErrMalformed = errors.New("повреждённые данные")
