package logger

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fanctl-backend/config"
)

func TestSetup_WritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
	})

	require.NoError(t, Setup(config.LoggingConfig{Level: "debug", Dir: dir, MaxAgeDays: 1}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.WithField("fan_id", "fan-1").Info("hello")

	matches, err := filepath.Glob(filepath.Join(dir, "fand-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "fan_id=fan-1")
}

func TestSetup_InvalidLevel(t *testing.T) {
	err := Setup(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
