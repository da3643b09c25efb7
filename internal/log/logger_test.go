package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerFieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "debug", Format: "json", Output: &buf}).WithComponent(ComponentLedger)

	ctx := WithRequestID(context.Background(), "req-1")
	logger.InfoContext(ctx, "entry created", FieldEntryID, "e1", FieldAmountCents, int64(250), FieldError, errors.New("x"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "entry created", lines[0]["msg"])
	assert.Equal(t, ComponentLedger, lines[0][FieldComponent])
	assert.Equal(t, "e1", lines[0][FieldEntryID])
	assert.Equal(t, "req-1", lines[0][FieldRequestID])
	assert.Equal(t, "x", lines[0][FieldError])
	assert.EqualValues(t, 250, lines[0][FieldAmountCents])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown", "dangling")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "dangling", lines[0]["!BADKEY"])
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "loud", Format: "json", Output: &buf})
	logger.Debug("hidden")
	logger.Info("shown")
	assert.Len(t, decodeLines(t, &buf), 1)
}

func TestFromContext(t *testing.T) {
	logger := Discard().WithComponent("x")
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	r := gin.New()
	r.Use(Middleware(logger))
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "warning", lines[0]["level"])
	assert.EqualValues(t, http.StatusNotFound, lines[0][FieldStatusCode])
}
