package logging

import (
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lostik.log")

	config := DefaultConfig()
	config.Level = "debug"
	config.Format = "json"
	config.File = path
	config.Stderr = false

	closer, err := Setup(config)
	require.NoError(t, err)

	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetLevel(log.InfoLevel)
		log.SetFormatter(&log.TextFormatter{})
	})

	log.WithField("role", "ping").Debugf("Hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"Hello"`)
	assert.Contains(t, string(data), `"role":"ping"`)
	assert.Equal(t, log.DebugLevel, log.GetLevel())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	config := DefaultConfig()
	config.Level = "loud"
	assert.Error(t, config.Validate())

	config = DefaultConfig()
	config.Format = "xml"
	assert.Error(t, config.Validate())

	_, err := Setup(config)
	assert.Error(t, err)
}
