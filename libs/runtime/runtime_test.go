package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadyz(t *testing.T) {
	ok := ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }}
	down := ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("dial refused") }}

	rec := httptest.NewRecorder()
	NewBaseMuxWithReady(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewBaseMuxWithReady(ok, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var report readyReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "unavailable", report.Status)
	assert.Equal(t, "ok", report.Checks["db"])
	assert.Equal(t, "dial refused", report.Checks["kafka"])

	rec = httptest.NewRecorder()
	NewBaseMuxWithReady(down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestGetenv(t *testing.T) {
	t.Setenv("SCHOOL_TEST_VAR", "")
	assert.Equal(t, "fallback", Getenv("SCHOOL_TEST_VAR", "fallback"))
	t.Setenv("SCHOOL_TEST_VAR", "set")
	assert.Equal(t, "set", Getenv("SCHOOL_TEST_VAR", "fallback"))
}
