package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldsAreWritten(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.DebugLevel)
	l.Info("computed",
		String("symbol", "NIFTY"),
		Int("window", 20),
		Float("value", 0.25),
		Duration("took", 1500*time.Millisecond),
		Bool("annualized", true),
		Error(errors.New("boom")),
	)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "computed", rec["message"])
	assert.Equal(t, "NIFTY", rec["symbol"])
	assert.Equal(t, 20.0, rec["window"])
	assert.Equal(t, 0.25, rec["value"])
	assert.Equal(t, 1500.0, rec["took"])
	assert.Equal(t, true, rec["annualized"])
	assert.Equal(t, "boom", rec["error"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.WarnLevel)
	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, zerolog.InfoLevel).With(String("component", "scheduler"))
	l.Info("tick")
	assert.Contains(t, buf.String(), `"component":"scheduler"`)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1})
	require.NoError(t, err)
	l.Info("to file")
	assert.FileExists(t, path)
}
