package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Level:    "debug",
		FilePath: filepath.Join(dir, "logs", "server.log"),
		MaxSizeMB: 1,
		MaxFiles:  2,
	}

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)

	logger.Info("index_opened", slog.String("workspace", "/tmp/ws"))
	cleanup()

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"index_opened"`)
	assert.Contains(t, string(data), `"workspace":"/tmp/ws"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelFromString("debug"))
	assert.Equal(t, slog.LevelWarn, LevelFromString("WARNING"))
	assert.Equal(t, slog.LevelInfo, LevelFromString("bogus"))
}

func TestRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")

	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer w.Close()

	// Force a rotation by exceeding 1MB.
	line := []byte(strings.Repeat("x", 64*1024))
	for i := 0; i < 20; i++ {
		_, err := w.Write(line)
		require.NoError(t, err)
	}

	_, err = os.Stat(path + ".1")
	assert.NoError(t, err, "expected rotated file to exist")
}

func TestFindLogFile(t *testing.T) {
	base := t.TempDir()
	_, ok := FindLogFile(base, "")
	assert.False(t, ok)

	require.NoError(t, os.MkdirAll(LogDir(base), 0o755))
	require.NoError(t, os.WriteFile(LogPath(base), []byte("{}"), 0o644))

	p, ok := FindLogFile(base, "")
	assert.True(t, ok)
	assert.Equal(t, LogPath(base), p)
}
