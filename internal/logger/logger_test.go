package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	charmlog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, charmlog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, charmlog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, charmlog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, charmlog.InfoLevel, ParseLevel("bogus"))
}

func TestNew_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "debug", JSON: true, Output: &buf}).With("run_id", "r1")
	l.Info("stage done", "stage", "retrieve")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stage done", entry["msg"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "retrieve", entry["stage"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "warn", Output: &buf})
	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	var buf bytes.Buffer
	l := New(&Config{Output: &buf})
	ctx := ContextWithLogger(context.Background(), l)
	FromContext(ctx).Info("hello")
	assert.Contains(t, buf.String(), "hello")
}
