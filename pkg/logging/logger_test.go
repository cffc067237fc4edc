package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_FieldsAndWith(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf)).With("component", "aggregator")

	l.Warn("primary read failed", "error", errors.New("paused"), "attempt", 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "aggregator", entry["component"])
	assert.Equal(t, "paused", entry["error"])
	assert.EqualValues(t, 2, entry["attempt"])
	assert.Equal(t, "primary read failed", entry["message"])
}

func TestLogger_OddFieldsIgnored(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf))

	l.Info("hello", "dangling")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, "dangling")
}

func TestInitWithFile_Rotating(t *testing.T) {
	path := t.TempDir() + "/oracle.log"
	l, err := InitWithFile("debug", "json", "stdout", FileOptions{Path: path, MaxSize: 1})
	require.NoError(t, err)
	l.Info("written")
	assert.FileExists(t, path)
}

func TestNoopLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNoopLogger().Error("nothing", "k", "v")
	})
}
