package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", "zones", 4)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.InDelta(t, 4, entry["zones"], 0)
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "TEXT")
	logger.Debug("stage done", "stage", "join")
	assert.Contains(t, buf.String(), "stage=join")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("anything"))
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewRegistry()
	for _, c := range m.collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.RecordsJoined.WithLabelValues("assigned").Add(3)
	m.ZoneCache.WithLabelValues("hit").Inc()
	assert.InDelta(t, 3, testutil.ToFloat64(m.RecordsJoined.WithLabelValues("assigned")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ZoneCache.WithLabelValues("hit")), 0)
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "geoaggregate.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "go_goroutines")
}
