package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_JSONOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := New(Config{Level: "debug", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Info("write called for stream users", zap.String("stream", "users"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "write called for stream users", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "users", entry["stream"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	l, err := New(Config{Level: "warn", OutputPaths: []string{path}})
	require.NoError(t, err)

	l.Info("dropped")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	ctx := context.WithValue(context.Background(), SyncIDKey, "sync-1")
	ctx = context.WithValue(ctx, SyncRunIDKey, "run-1")
	ctx = context.WithValue(ctx, ConnectorKey, "postgresql")

	WithContext(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "sync-1", fields["sync_id"])
	assert.Equal(t, "run-1", fields["sync_run_id"])
	assert.Equal(t, "postgresql", fields["connector"])
}

func TestWithContext_NilLogger(t *testing.T) {
	l := WithContext(context.Background(), nil)
	require.NotNil(t, l)
	l.Info("discarded")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
