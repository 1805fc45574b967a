package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")

	l, err := New(&Config{Level: "debug", ServiceName: "eventflow-cli", Output: path})
	require.NoError(t, err)

	l.Info("session restored", zap.String("username", "alice"))
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session restored")
	assert.Contains(t, string(data), `"service":"eventflow-cli"`)
	assert.Contains(t, string(data), `"username":"alice"`)
}

func TestInitAndGet(t *testing.T) {
	require.NoError(t, Init(&Config{Level: "warn", Output: filepath.Join(t.TempDir(), "x.log")}))
	defer Sync()

	l := Get()
	require.NotNil(t, l)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
}

func TestNopAndChildren(t *testing.T) {
	l := NewNop().Named("feed").With(zap.String("mode", "polling"))
	assert.NotNil(t, l)
	l.Info("ignored")
}
