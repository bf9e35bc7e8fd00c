package serialize

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressLeavesTrailingBytes(t *testing.T) {
	data := bytes.Repeat([]byte{7, 7, 7, 1, 2}, 300)

	for _, version := range []uint8{8, 10, 11, 13} {
		var buf bytes.Buffer
		require.NoError(t, Compress(&buf, data, version))
		buf.WriteString("tail")

		r := bytes.NewReader(buf.Bytes())
		got, err := Decompress(r, version)
		require.NoError(t, err, "версия %d", version)
		assert.Equal(t, data, got, "версия %d", version)

		rest := make([]byte, 4)
		_, err = r.Read(rest)
		require.NoError(t, err)
		assert.Equal(t, "tail", string(rest), "хвост после секции должен остаться нетронутым")
	}
}

func TestRLELongRuns(t *testing.T) {
	data := bytes.Repeat([]byte{9}, 1000)
	var buf bytes.Buffer
	require.NoError(t, CompressRLE(&buf, data))
	// 4 байта длины + 4 пары (256*3 + 232)
	assert.Equal(t, 4+2*4, buf.Len())

	got, err := DecompressRLE(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRLETruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CompressRLE(&buf, []byte{1, 2, 3}))
	_, err := DecompressRLE(bytes.NewReader(buf.Bytes()[:buf.Len()-1]))
	assert.Error(t, err)
}

func TestStrings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString(&buf, "табличка"))
	require.NoError(t, WriteLongString(&buf, "длинная"))
	require.NoError(t, WriteF1000(&buf, -1.5))

	r := bytes.NewReader(buf.Bytes())
	s, err := ReadString(r)
	require.NoError(t, err)
	assert.Equal(t, "табличка", s)

	_, err = ReadLongString(r, 3)
	assert.ErrorIs(t, err, ErrStringTooLong)

	r = bytes.NewReader(buf.Bytes())
	_, _ = ReadString(r)
	ls, err := ReadLongString(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, "длинная", ls)
	f, err := ReadF1000(r)
	require.NoError(t, err)
	assert.InDelta(t, -1.5, f, 0.001)
}
