package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(SecurityHeaders())
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	// HSTS only in release mode
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestCorrelationID(t *testing.T) {
	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CorrelationIDKey))
	})

	t.Run("Generated_When_Missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		id := w.Header().Get(CorrelationIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("Propagated_When_Present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(CorrelationIDHeader, "abc-123")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Header().Get(CorrelationIDHeader))
		assert.Equal(t, "abc-123", w.Body.String())
	})
}

func TestRequestTimeout(t *testing.T) {
	t.Run("Sets_Deadline", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestTimeout(time.Minute))
		router.GET("/", func(c *gin.Context) {
			_, ok := c.Request.Context().Deadline()
			assert.True(t, ok)
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Zero_Disables", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestTimeout(0))
		router.GET("/", func(c *gin.Context) {
			_, ok := c.Request.Context().Deadline()
			assert.False(t, ok)
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	router := gin.New()
	router.Use(CorrelationID(), AuditLogger(logger))
	router.POST("/generate", func(c *gin.Context) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": []string{}})
	})

	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString(`{"location":"Bronx"}`))
	req.Header.Set(CorrelationIDHeader, "corr-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/generate", entry["path"])
	assert.EqualValues(t, 422, entry["status"])
	assert.Equal(t, "warning", entry["level"])
	assert.NotContains(t, buf.String(), "Bronx")
}
