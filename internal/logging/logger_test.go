package logging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("unknown"))
}

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socialhub.log")

	logger, closer := New(Options{Level: "info", Format: "json", File: path})
	logger.Info("client_registered", "user_id", "u1")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"client_registered"`)
	assert.Contains(t, string(data), `"user_id":"u1"`)
}

func TestNew_DebugFilteredAtInfo(t *testing.T) {
	logger, closer := New(Options{Level: "info"})
	defer closer.Close()

	assert.False(t, logger.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelInfo))
}

func TestNew_RotationSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socialhub.log")

	_, closer := New(Options{File: path, MaxSizeMB: 50, MaxBackups: 7, MaxAgeDays: 14})
	defer closer.Close()

	rotating, ok := closer.(*lumberjack.Logger)
	require.True(t, ok)
	assert.Equal(t, 50, rotating.MaxSize)
	assert.Equal(t, 7, rotating.MaxBackups)
	assert.Equal(t, 14, rotating.MaxAge)

	_, closer = New(Options{File: path})
	defer closer.Close()
	rotating = closer.(*lumberjack.Logger)
	assert.Equal(t, 10, rotating.MaxSize)
	assert.Equal(t, 3, rotating.MaxBackups)
	assert.Equal(t, 28, rotating.MaxAge)
}
