package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "chatty"})
	assert.Error(t, err)
}

func TestNewLogger_JSONFieldMap(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(LoggerConfig{Level: "debug", Console: true, Output: &buf})
	require.NoError(t, err)

	WithImageOperation(log, "cat.jpg", "compress").Info("done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "done", entry["message"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "cat.jpg", entry["image"])
	assert.Equal(t, "compress", entry["operation"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "compressor.log")

	log, err := NewLogger(LoggerConfig{Level: "info", FilePath: path, MaxSize: 1})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	WithImage(log, "dog.jpg").Warn("not smaller")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dog.jpg")
}

func TestNewLogger_FileAndConsole(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "compressor.log")

	log, err := NewLogger(LoggerConfig{Level: "info", FilePath: path, Console: true, Output: &buf})
	require.NoError(t, err)

	WithOperation(log, "batch").Info("started")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operation":"batch"`)
	assert.Contains(t, buf.String(), `"operation":"batch"`)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
}
