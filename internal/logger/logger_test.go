package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := New("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLogger_ComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newZerolog(&buf, "dispatch", "warn")
	l.Infof("dropped")
	l.Warnf("kept %d", 7)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "dispatch", entry["component"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept 7", entry["message"])
}

func TestNewWithOptions_WritesFile(t *testing.T) {
	t.Setenv("APP_ENV", "")
	path := filepath.Join(t.TempDir(), "logs", "dispatch.log")
	l := NewWithOptions("file-test", Options{Level: "info", File: path, MaxSizeMB: 1})
	l.Infof("hello %s", "file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Infof("ignored")
	l.Debugw("ignored", nil)
}
