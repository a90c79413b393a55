package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense/internal/core"
	"expense/internal/log"
	"expense/internal/memory"
	"expense/internal/metrics"
	"expense/internal/router"
	"expense/internal/services"
)

type testEnv struct {
	srv        *Server
	categories *services.CategoryService
	expenses   *services.ExpenseService
	metrics    *metrics.Metrics
	home, rent core.Category
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	cats := services.NewCategoryService(store, time.Minute)
	exps := services.NewExpenseService(store, nil)

	home, err := cats.CreateTopLevel(ctx, "Home")
	require.NoError(t, err)
	rent, err := cats.CreateChild(ctx, home.ID, "Rent")
	require.NoError(t, err)

	m := metrics.New()
	d := Deps{
		Addr:       ":0",
		Categories: cats,
		Expenses:   exps,
		Pinger:     store,
		Metrics:    m,
		Logger: log.New(log.Config{
			Handler: slog.NewTextHandler(io.Discard, nil),
		}),
		RateLimitPerMinute: 100,
	}
	if mutate != nil {
		mutate(&d)
	}
	srv, err := NewServer(d)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{srv: srv, categories: cats, expenses: exps, metrics: m, home: home, rent: rent}
}

func (e *testEnv) do(method, target string, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_PagesRenderIntoMountPoint(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		target    string
		status    int
		component string
	}{
		{"/expense-backend/", http.StatusOK, "Expense"},
		{"/expense-backend/category-action", http.StatusOK, "Category"},
		{"/expense-backend/subcategory-action", http.StatusOK, "Subcategory"},
		{"/expense-backend/expense-table", http.StatusOK, "ExpenseTable"},
		{"/expense-backend/expense-edit/42", http.StatusNotFound, "ExpenseEdit"},
		{"/expense-backend/expense-edit/abc", http.StatusBadRequest, "ExpenseEdit"},
		{"/expense-backend/bar", http.StatusOK, "/bar"},
		{"/expense-backend/does-not-exist", http.StatusNotFound, "*"},
		{"/expense-backend/expense-table/extra", http.StatusNotFound, "*"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := env.do(http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, rec.Code)
			body := rec.Body.String()
			assert.Contains(t, body, `<div id="app">`)
			assert.Contains(t, body, `data-component="`+tt.component+`"`)
			assert.Equal(t, 1, strings.Count(body, "data-component="), "exactly one component is rendered")
		})
	}
}

func TestServer_PartialNavigation(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/expense-backend/bar", "", "HX-Request", "true", "HX-Target", "app")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<html")
	assert.Contains(t, rec.Body.String(), `data-component="/bar"`)
}

func TestServer_BaseWithoutSlashRedirects(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/expense-backend", "")
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/expense-backend/", rec.Header().Get("Location"))
}

func TestServer_EmptyBasePathUsesDefault(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.BasePath = "" })

	assert.Equal(t, router.DefaultBase, env.srv.Routes().Base())
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/expense-backend/expense-table", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/expense-table", "").Code)
}

func TestServer_CustomBasePath(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.BasePath = "money" })
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/money/expense-table", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/expense-backend/", "").Code)
	assert.Equal(t, "/money/", env.srv.Routes().Base())
}

func TestServer_Static(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/expense-backend/static/app.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
}

func TestServer_CommonHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz", "")
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestServer_Ready(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", "").Code)

	down := newTestEnv(t, func(d *Deps) {
		d.Pinger = pingFunc(func(context.Context) error { return errors.New("database is locked") })
	})
	rec := down.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
	assert.Contains(t, rec.Body.String(), "not_ready")
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(http.MethodGet, "/expense-backend/api/category", "")

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `expense_http_requests_total{method="GET",route="/expense-backend/api/category",status="200"} 1`)
	assert.Contains(t, body, `expense_cache_entries{cache="categories"}`)
}

func TestServer_RateLimitsWrites(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.RateLimitPerMinute = 1 })

	first := env.do(http.MethodPost, "/expense-backend/api/category", `{"name":"Food"}`)
	require.Equal(t, http.StatusCreated, first.Code)
	second := env.do(http.MethodPost, "/expense-backend/api/category", `{"name":"Travel"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	page := env.do(http.MethodPost, "/expense-backend/category-action", "action=add&name=Gifts",
		"Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusTooManyRequests, page.Code, "page writes share the limit")

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/expense-backend/api/category", "").Code, "reads are not limited")

	rec := env.do(http.MethodGet, "/metrics", "")
	assert.Contains(t, rec.Body.String(), "expense_http_rate_limited_total 2")
}

func TestServer_SubcategoryOptions(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodGet, "/expense-backend/ui/subcategory-options?parent="+itoa(env.home.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rent")
	assert.NotContains(t, rec.Body.String(), "<html")
}

func TestServer_ShutdownTwice(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.srv.Shutdown(context.Background()))
	require.NoError(t, env.srv.Shutdown(context.Background()))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v), rec.Body.String())
	return v
}
