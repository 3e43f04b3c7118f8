package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"umbrella-admin/internal/accounting"
	"umbrella-admin/internal/audit"
	"umbrella-admin/internal/config"
	"umbrella-admin/internal/event"
	"umbrella-admin/internal/handler"
	"umbrella-admin/internal/lifecycle"
	"umbrella-admin/internal/metrics"
	"umbrella-admin/internal/middleware"
	"umbrella-admin/internal/model"
	"umbrella-admin/internal/notify"
	"umbrella-admin/internal/repository"
	"umbrella-admin/internal/rights"
	"umbrella-admin/internal/service"
	"umbrella-admin/internal/websocket"
)

func newTestServer(t *testing.T, health func(ctx context.Context) error) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	cfg := &config.Config{
		RequestTimeout:   5 * time.Second,
		CORSOrigins:      []string{"*"},
		RateLimitRPM:     0,
		AuthRateLimitRPM: 100,
	}

	backend := repository.NewMemoryBackend()
	units, err := service.LoadHierarchy(ctx, backend, "AGEPoly")
	require.NoError(t, err)
	evaluator, err := rights.NewEvaluator(units, 64)
	require.NoError(t, err)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := event.NewBus()
	reg := metrics.NewRegistry()
	engine := &lifecycle.Engine{
		Units:    units,
		Rights:   evaluator,
		Backend:  backend,
		Recorder: audit.NewRecorder(),
		Events:   bus,
		Notifier: notify.NewLogNotifier(quiet),
		Metrics:  metrics.NewLifecycle(reg),
		Logger:   quiet,
	}
	kinds := lifecycle.NewRegistry()
	require.NoError(t, accounting.Register(kinds, engine))
	reports, err := accounting.ReportsFrom(kinds, units)
	require.NoError(t, err)

	authService, err := service.NewAuthService(backend, "test-secret", time.Minute, time.Hour)
	require.NoError(t, err)
	require.NoError(t, authService.EnsureAdmin(ctx, "admin", "s3cret-pass"))
	_, err = authService.CreateAccount(ctx, "member", "member-pass", false, nil)
	require.NoError(t, err)

	hubCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	hub := websocket.NewHub(bus)
	go hub.Run(hubCtx)

	srv := httptest.NewServer(New(cfg, middleware.NewAuthMiddleware(authService), Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Unit:        handler.NewUnitHandler(service.NewUnitService(backend, units)),
		Entity:      handler.NewEntityHandler(kinds),
		Audit:       handler.NewAuditHandler(service.NewAuditService(backend.Audit())),
		Report:      handler.NewReportHandler(reports),
		Health:      health,
		Live:        hub.Handler(cfg.CORSOrigins),
		Metrics:     metrics.Handler(reg),
		HTTPMetrics: metrics.NewHTTP(reg),
	}))
	t.Cleanup(srv.Close)
	return srv
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *model.APIError `json:"error"`
}

func do(t *testing.T, srv *httptest.Server, token string, method string, path string, body any) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func login(t *testing.T, srv *httptest.Server, username string, password string) string {
	t.Helper()
	resp, env := do(t, srv, "", http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tokens model.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)
	return tokens.AccessToken
}

func TestRouter(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(context.Context) error { return nil })

	adminToken := login(t, srv, "admin", "s3cret-pass")
	memberToken := login(t, srv, "member", "member-pass")

	t.Run("health and security headers", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	})

	t.Run("bad credentials", func(t *testing.T) {
		resp, env := do(t, srv, "", http.MethodPost, "/api/v1/auth/login", model.LoginRequest{Username: "admin", Password: "nope"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, env.Error)
	})

	t.Run("protected routes need a token", func(t *testing.T) {
		resp, _ := do(t, srv, "", http.MethodGet, "/api/v1/kinds", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("me", func(t *testing.T) {
		resp, env := do(t, srv, memberToken, http.MethodGet, "/api/v1/auth/me", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var me model.Subject
		require.NoError(t, json.Unmarshal(env.Data, &me))
		assert.Equal(t, "member", me.Username)
		assert.False(t, me.Superuser)
	})

	t.Run("units", func(t *testing.T) {
		resp, _ := do(t, srv, memberToken, http.MethodPost, "/api/v1/units", model.CreateUnitRequest{Name: "Ski club"})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, _ = do(t, srv, adminToken, http.MethodPost, "/api/v1/units", model.CreateUnitRequest{Name: "Ski club"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp, env := do(t, srv, memberToken, http.MethodGet, "/api/v1/units/check-name?name=SKI%20CLUB", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var check struct {
			Available bool `json:"available"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &check))
		assert.False(t, check.Available)

		resp, env = do(t, srv, memberToken, http.MethodGet, "/api/v1/units", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var tree model.UnitNode
		require.NoError(t, json.Unmarshal(env.Data, &tree))
		assert.Equal(t, "AGEPoly", tree.Name)
		require.Len(t, tree.Children, 1)
	})

	t.Run("objects and audit", func(t *testing.T) {
		resp, env := do(t, srv, adminToken, http.MethodPost, "/api/v1/objects/accounting_year", map[string]any{
			"data": map[string]any{
				"name":       "2026-2027",
				"start_date": "2026-08-01T00:00:00Z",
				"end_date":   "2027-07-31T00:00:00Z",
			},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &created))
		require.NotEmpty(t, created.Entity.ID)

		resp, env = do(t, srv, adminToken, http.MethodGet, "/api/v1/reports/subventions/"+created.Entity.ID, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var report accounting.YearReport
		require.NoError(t, json.Unmarshal(env.Data, &report))
		assert.Equal(t, "2026-2027", report.Year.Name)
		assert.Empty(t, report.Subventions)

		resp, _ = do(t, srv, memberToken, http.MethodGet, "/api/v1/reports/subventions/"+created.Entity.ID, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = do(t, srv, adminToken, http.MethodGet, "/api/v1/objects/invoice/export", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = do(t, srv, memberToken, http.MethodGet, "/api/v1/objects/invoice/export", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = do(t, srv, memberToken, http.MethodGet, "/api/v1/objects/accounting_year", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = do(t, srv, memberToken, http.MethodGet, "/api/v1/audit", nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, env = do(t, srv, adminToken, http.MethodGet, "/api/v1/audit?kind=accounting_year", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var entries model.AuditListData
		require.NoError(t, json.Unmarshal(env.Data, &entries))
		require.Len(t, entries.Items, 1)
		assert.Equal(t, model.AuditCreated, entries.Items[0].Action)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, err := srv.Client().Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "umbrella_http_requests_total")
		assert.Contains(t, string(body), "umbrella_lifecycle_operations_total")
	})
}

func TestHealthReportsStoreFailure(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, func(context.Context) error { return errors.New("connection refused") })

	resp, env := do(t, srv, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAVAILABLE", env.Error.Code)
}
