package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log := New(Options{Level: "info", FilePath: path})

	log.Info("bot invited", zap.String("bot_id", "01HX"))
	log.Debug("dropped below level")
	_ = log.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "bot invited", entry["msg"])
	assert.Equal(t, "01HX", entry["bot_id"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log := New(Options{Level: "chatty"})
	assert.True(t, log.Core().Enabled(zap.InfoLevel))
	assert.False(t, log.Core().Enabled(zap.DebugLevel))
}
