package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"chatTracker/internal/app"
	"chatTracker/internal/config"
	"chatTracker/internal/hub"
	"chatTracker/internal/repository/inmemory"
	"chatTracker/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		cfg         config.DatabaseConfig
		expectError bool
	}{
		{name: "inmemory", cfg: config.DatabaseConfig{Type: "inmemory"}},
		{name: "sqlite", cfg: config.DatabaseConfig{Type: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "chat.db")}},
		{name: "unknown", cfg: config.DatabaseConfig{Type: "mongo"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := app.OpenStore(ctx, tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.NoError(t, store.HealthCheck(ctx))
		})
	}
}

func newRouter(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.RateLimit = 0
	if mutate != nil {
		mutate(cfg)
	}
	h := hub.New(cfg.Hub)
	t.Cleanup(h.Close)
	return app.NewRouter(cfg, service.NewChatService(inmemory.New(), h), h)
}

func TestRouter_Health(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	w := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_HubRequiresUpgrade(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, hub.Path, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_MCPToggle(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`

	tests := []struct {
		name    string
		enabled bool
	}{
		{name: "enabled", enabled: true},
		{name: "disabled", enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(t, func(c *config.Config) { c.HTTP.EnableMCP = tt.enabled })

			req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json, text/event-stream")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if tt.enabled {
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Contains(t, w.Body.String(), "chat-tracker")
			} else {
				assert.Equal(t, http.StatusNotFound, w.Code)
			}
		})
	}
}
