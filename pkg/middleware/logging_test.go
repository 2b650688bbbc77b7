package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newLoggedRouter(logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(logger), CorrelationID(), RequestLogger(logger))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	return r
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		path  string
		level zapcore.Level
		msg   string
	}{
		{"/ok", zapcore.InfoLevel, "Request handled"},
		{"/bad", zapcore.WarnLevel, "Request rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			r := newLoggedRouter(zap.New(core))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(CorrelationIDHeader, "corr-1")
			r.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.FilterMessage(tt.msg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)

			fields := entries[0].ContextMap()
			assert.Equal(t, tt.path, fields["path"])
			assert.Equal(t, "corr-1", fields["correlation_id"])
		})
	}
}

func TestRecovery_ReturnsGenericError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newLoggedRouter(zap.New(core))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"error": "internal server error"}, body)
	assert.Equal(t, 1, logs.FilterMessage("Panic while handling request").Len())
}
