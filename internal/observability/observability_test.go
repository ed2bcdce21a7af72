package observability

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "site", "KMSO")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"site":"KMSO"`)

	buf.Reset()
	logger, err = NewLogger(&buf, "info", "text")
	require.NoError(t, err)
	logger.Info("file added", "type", "GFS")
	assert.Contains(t, buf.String(), "type=GFS")

	_, err = NewLogger(&buf, "loud", "text")
	assert.Error(t, err)
}

func TestMetrics_ObserveCheck(t *testing.T) {
	m := NewMetricsForTesting()
	m.ObserveCheck(12, 1, 3)
	m.FilesAdded.Add(2)

	assert.Equal(t, 12.0, testutil.ToFloat64(m.Files))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MissingBlobs))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OrphanedBlobs))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesAdded))
	assert.Positive(t, testutil.ToFloat64(m.LastCheck))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveCheck(4, 0, 1)
	m.FilesRemoved.Inc()

	path := filepath.Join(t.TempDir(), "archive.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sounding_archive_files 4")
	assert.Contains(t, string(data), "sounding_archive_orphaned_blobs 1")
	assert.Contains(t, string(data), "sounding_archive_files_removed_total 1")
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.FilesAdded.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sounding_archive_files_added_total 1")
}
