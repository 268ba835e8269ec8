package command

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kronos-Integration/service-sub000/health"
	"github.com/Kronos-Integration/service-sub000/lifecycle"
	"github.com/Kronos-Integration/service-sub000/service"
)

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

type listResponse struct {
	Result []service.Info `json:"result"`
}

type detailsResponse struct {
	Result ServiceDetails `json:"result"`
	Error  string         `json:"error"`
	Code   string         `json:"code"`
}

func TestHTTPHandler_Services(t *testing.T) {
	f := newFixture(t)
	h := NewHTTPHandler(f.dispatcher, f.registry)

	rec := serve(t, h, http.MethodGet, "/services", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	list := decode[listResponse](t, rec)
	require.Len(t, list.Result, 2)
	assert.Equal(t, "alpha", list.Result[0].Name)

	rec = serve(t, h, http.MethodGet, "/services/beta?validate=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	details := decode[detailsResponse](t, rec)
	assert.Equal(t, "beta", details.Result.Name)
	assert.Len(t, details.Result.Unresolved, 1)

	rec = serve(t, h, http.MethodGet, "/services/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown_service", decode[detailsResponse](t, rec).Code)
}

func TestHTTPHandler_Actions(t *testing.T) {
	f := newFixture(t)
	h := NewHTTPHandler(f.dispatcher, f.registry)

	rec := serve(t, h, http.MethodPost, "/services/alpha/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lifecycle.StateRunning, decode[detailsResponse](t, rec).Result.State)

	rec = serve(t, h, http.MethodPost, "/services/alpha/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_transition", decode[detailsResponse](t, rec).Code)

	rec = serve(t, h, http.MethodPost, "/command", `{"action":"stop","service":"alpha"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, lifecycle.StateStopped, f.alpha.State())

	rec = serve(t, h, http.MethodPost, "/command", `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_command", decode[detailsResponse](t, rec).Code)

	rec = serve(t, h, http.MethodPost, "/command", `{"action":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decode[detailsResponse](t, rec).Code)

	rec = serve(t, h, http.MethodGet, "/command", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPHandler_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	h := NewHTTPHandler(f.dispatcher, f.registry)

	rec := serve(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "stopped services are unhealthy")
	status := decode[health.Status](t, rec)
	assert.Equal(t, "system", status.Component)

	ctx := context.Background()
	require.NoError(t, f.provider.Start(ctx))
	require.NoError(t, f.alpha.Start(ctx))
	require.NoError(t, f.beta.Start(ctx))
	rec = serve(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	serve(t, h, http.MethodGet, "/services", "")
	rec = serve(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "servicekit_command_requests_total")

	withoutMetrics := NewHTTPHandler(f.dispatcher, nil)
	rec = serve(t, withoutMetrics, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPServer_StartStop(t *testing.T) {
	f := newFixture(t)
	server := NewHTTPServer("127.0.0.1:0", NewHTTPHandler(f.dispatcher, nil), nil)
	assert.Empty(t, server.Addr())

	require.NoError(t, server.Start())
	assert.Error(t, server.Start(), "second start")
	addr := server.Addr()
	require.NotEmpty(t, addr)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	assert.NoError(t, server.Stop(ctx))
}
