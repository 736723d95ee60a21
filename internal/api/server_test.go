package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verkehr-aachen/frost-crawler/internal/service"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeCycles struct {
	summary *service.CycleSummary
}

func (f fakeCycles) LastCycle() (service.CycleSummary, bool) {
	if f.summary == nil {
		return service.CycleSummary{}, false
	}
	return *f.summary, true
}

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(fakePinger{}, fakeCycles{}, zap.NewNop()), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ready := serve(t, NewServer(fakePinger{}, fakeCycles{}, nil), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, ready.Code)

	down := serve(t, NewServer(fakePinger{err: errors.New("dial tcp: refused")}, fakeCycles{}, nil), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, down.Code)
	assert.Contains(t, down.Body.String(), "store unavailable")
}

func TestServer_LastCycle(t *testing.T) {
	t.Parallel()

	empty := serve(t, NewServer(fakePinger{}, fakeCycles{}, nil), http.MethodGet, "/v1/cycles/last")
	require.Equal(t, http.StatusNotFound, empty.Code)

	summary := &service.CycleSummary{
		CycleID:     "0190f1c2-0000-7000-8000-000000000001",
		StartedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Datastreams: 3,
		Done:        2,
		Failed:      []int64{2},
		Stored:      6,
	}
	rec := serve(t, NewServer(fakePinger{}, fakeCycles{summary: summary}, nil), http.MethodGet, "/v1/cycles/last")
	require.Equal(t, http.StatusOK, rec.Code)

	var got service.CycleSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, summary.CycleID, got.CycleID)
	assert.Equal(t, []int64{2}, got.Failed)
	assert.Equal(t, int64(6), got.Stored)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	s := NewServer(fakePinger{}, fakeCycles{}, nil)
	serve(t, s, http.MethodGet, "/healthz")
	rec := serve(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRequestIDMiddlewareKeepsIncomingID(t *testing.T) {
	t.Parallel()

	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Use(recoverMiddleware(zap.NewNop()))
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
