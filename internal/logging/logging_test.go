package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	SetLogDir(dir)
	defer SetLogDir("logs")

	l, err := NewLogger("unit")
	require.NoError(t, err)
	l.SetLevels(ERROR, DEBUG)

	l.Trace("не должно попасть %d", 1)
	l.Debug("блок %d загружен", 42)
	require.NoError(t, l.Close())

	files, err := filepath.Glob(filepath.Join(dir, "unit_*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1, "должен быть создан ровно один файл")

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "блок 42 загружен"))
	assert.False(t, strings.Contains(string(data), "не должно попасть"))
}

func TestManagerReturnsSameLogger(t *testing.T) {
	SetLogDir("")
	defer SetLogDir("logs")

	lm := newLoggerManager()
	a := lm.MustGetLogger("world")
	b := lm.MustGetLogger("world")
	assert.Same(t, a, b)

	lm.SetLogLevel("world", WARN, WARN)
	assert.Equal(t, WARN, a.minConsoleLevel)

	// Уровень, заданный до создания логгера, применяется при создании
	lm.SetLogLevel("mesh", ERROR, INFO)
	m := lm.MustGetLogger("mesh")
	assert.Equal(t, ERROR, m.minConsoleLevel)
	assert.Equal(t, INFO, m.minFileLevel)

	assert.Equal(t, []string{"mesh", "world"}, lm.ListComponents())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, "WARN", WARN.String())
}
