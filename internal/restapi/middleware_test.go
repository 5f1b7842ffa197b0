package restapi

import (
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ressuche.dev/internal/logging"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("test response"))
})

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("blocks requests over the burst", func(t *testing.T) {
		rl := NewRateLimitMiddleware(3, time.Second)
		defer rl.Stop()
		handler := rl.Handler(okHandler)

		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/current-time.json?key=a", nil))
			assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		}

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/current-time.json?key=a", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), `"code":429`)
	})

	t.Run("limits per key", func(t *testing.T) {
		rl := NewRateLimitMiddleware(1, time.Second)
		defer rl.Stop()
		handler := rl.Handler(okHandler)

		for _, key := range []string{"a", "b", ""} {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/x?key="+key, nil))
			assert.Equal(t, http.StatusOK, w.Code, key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/x?key=a", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})

	t.Run("zero rejects everything", func(t *testing.T) {
		rl := NewRateLimitMiddleware(0, time.Second)
		defer rl.Stop()

		w := httptest.NewRecorder()
		rl.Handler(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/x?key=a", nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "3600", w.Header().Get("Retry-After"))
	})

	t.Run("negative disables limiting", func(t *testing.T) {
		rl := NewRateLimitMiddleware(-1, time.Second)
		defer rl.Stop()
		handler := rl.Handler(okHandler)

		for i := 0; i < 50; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("GET", "/x?key=a", nil))
			require.Equal(t, http.StatusOK, w.Code)
		}
	})

	t.Run("evicts idle keys", func(t *testing.T) {
		rl := NewRateLimitMiddleware(1, time.Second)
		defer rl.Stop()
		now := time.Now()
		rl.getLimiter("old", now.Add(-time.Hour))
		rl.getLimiter("fresh", now)

		rl.evictIdle(now)

		assert.NotContains(t, rl.limiters, "old")
		assert.Contains(t, rl.limiters, "fresh")
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	securityHeaders(okHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, "test response", rec.Body.String())
	headers := rec.Header()
	assert.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", headers.Get("X-Frame-Options"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", headers.Get("Strict-Transport-Security"))
	assert.Equal(t, "strict-origin-when-cross-origin", headers.Get("Referrer-Policy"))
	assert.Contains(t, headers.Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, headers.Get("Access-Control-Allow-Origin"), "no CORS headers without Origin")
}

func TestSecurityHeadersPreflight(t *testing.T) {
	handler := securityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("preflight must not reach the handler")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/searches.json", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestRequestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewStructuredLogger(&buf, slog.LevelInfo)

	var fromContext *slog.Logger
	handler := NewRequestLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromContext = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest("POST", "/api/searches.json?key=TEST", nil)
	req.Header.Set("User-Agent", "test-client/1.0")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	output := buf.String()
	assert.Contains(t, output, `"msg":"http_request"`)
	assert.Contains(t, output, `"method":"POST"`)
	assert.Contains(t, output, `"path":"/api/searches.json"`)
	assert.Contains(t, output, `"status":201`)
	assert.Contains(t, output, `"user_agent":"test-client/1.0"`)
	assert.Contains(t, output, `"component":"http_server"`)
	assert.NotContains(t, output, "key=TEST", "query strings are not logged")
	assert.NotNil(t, fromContext)
}

func TestCompressionMiddleware(t *testing.T) {
	large := strings.Repeat(`{"startTime":"10:04"}`, 500)
	handler := NewCompressionMiddleware(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(large))
	}))

	t.Run("gzip accepted", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		reader, err := gzip.NewReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer func() { _ = reader.Close() }()
		body, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, large, string(body))
	})

	t.Run("gzip not accepted", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))

		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, large, rec.Body.String())
	})

	t.Run("invalid level falls back to defaults", func(t *testing.T) {
		fallback := NewCompressionMiddleware(CompressionConfig{MinSize: 10, Level: 42})(okHandler)
		rec := httptest.NewRecorder()
		fallback.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
		assert.Equal(t, "test response", rec.Body.String())
	})
}
