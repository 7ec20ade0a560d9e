package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/liliang-cn/storerouter/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "router.log")

	log, err := New(config.LogConfig{Level: "info", File: path, Production: true})
	require.NoError(t, err)

	log.Info("store created")
	log.Debug("dropped below level")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "store created")
	assert.NotContains(t, string(data), "dropped below level")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
