package log

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	require.NotNil(t, New(Config{}))
}

func TestNewWithWriterText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Info("crawl finished", "documents", 42)

	out := buf.String()
	assert.Contains(t, out, "crawl finished")
	assert.Contains(t, out, "documents=42")
}

func TestNewWithWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo, JSON: true})

	logger.Info("ingested documents", "collection", "raw")

	assert.Contains(t, buf.String(), `"msg":"ingested documents"`)
	assert.Contains(t, buf.String(), `"collection":"raw"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelInfo})

	logger.Debug("chunk detail")
	logger.Info("batch loaded")

	assert.NotContains(t, buf.String(), "chunk detail")
	assert.Contains(t, buf.String(), "batch loaded")
}

func TestWithNarrowing(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{})

	logger.With("component", "retriever").Info("fused results")

	assert.Contains(t, buf.String(), "component=retriever")
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	require.NotNil(t, logger)
	logger.Error("never rendered")
}
