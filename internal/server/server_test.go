package server_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/server"
	"github.com/prophezy/oracle-resolver/internal/server/handler"
)

type observation struct {
	method string
	route  string
	status int
}

type recordingObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (r *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obs = append(r.obs, observation{method, route, status})
}

func newTestServer(apiKey string, obs *recordingObserver) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Oracle:    handler.NewOracleHandler(nil, nil, nil, logger),
		Markets:   handler.NewMarketHandler(nil, logger),
		Directory: handler.NewDirectoryHandler(nil, logger),
		Users:     handler.NewUserHandler(nil, nil, logger),
	}
	srv := server.NewServer(server.Config{APIKey: apiKey}, handlers, server.Options{Observer: obs}, logger)
	return srv.Handler()
}

func TestServer_MutatingOracleRoutesRequireKey(t *testing.T) {
	h := newTestServer("s3cret", &recordingObserver{})

	for _, path := range []string{"/api/oracle/resolve/1", "/api/oracle/challenge/1"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oracle/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsUseRoutePattern(t *testing.T) {
	obs := &recordingObserver{}
	h := newTestServer("", obs)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Len(t, obs.obs, 2)
	assert.Equal(t, observation{http.MethodGet, "GET /api/health", http.StatusOK}, obs.obs[0])
	assert.Equal(t, observation{http.MethodGet, "unmatched", http.StatusNotFound}, obs.obs[1])
}

func TestServer_CORSPreflight(t *testing.T) {
	h := newTestServer("", &recordingObserver{})

	req := httptest.NewRequest(http.MethodOptions, "/api/markets", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
