package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inkpress/gatekeeper/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	logger, closeFn, err := NewLogger("api", config.LogConfig{Level: "debug", Dir: dir})
	require.NoError(t, err)

	logger.WithField("client_key", "203.0.113.9").Debug("admission checked")
	closeFn()
	closeFn()

	raw, err := os.ReadFile(filepath.Join(dir, "api.log"))
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &line))
	assert.Equal(t, "admission checked", line["msg"])
	assert.Equal(t, "203.0.113.9", line["client_key"])
	assert.Equal(t, "debug", line["level"])
}

func TestNewLogger_RejectsPathLikeServerType(t *testing.T) {
	_, _, err := NewLogger("../etc", config.LogConfig{Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestResolveLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, logrus.InfoLevel, resolveLevel(""))
	assert.Equal(t, logrus.WarnLevel, resolveLevel("warn"))
	assert.Equal(t, logrus.InfoLevel, resolveLevel("loud"))

	t.Setenv("LOG_LEVEL", "error")
	assert.Equal(t, logrus.ErrorLevel, resolveLevel("debug"))
}

func TestConsoleHook(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.AddHook(NewConsoleHook(&buf))

	logger.Warn("store unavailable")
	assert.True(t, strings.Contains(buf.String(), "store unavailable"))
}
