package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modpoints/points-bot/internal/infrastructure/scheduler"
	"github.com/modpoints/points-bot/internal/interface/telegram/middleware"
	"github.com/modpoints/points-bot/pkg/circuitbreaker"
)

type fakeScheduler []scheduler.TaskStatus

func (f fakeScheduler) Status() []scheduler.TaskStatus { return f }

type fakeCache circuitbreaker.State

func (f fakeCache) BreakerState() circuitbreaker.State { return circuitbreaker.State(f) }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	health := NewHealthChecker(time.Second)
	health.AddCheck("storage", func(context.Context) error { return nil })
	s := NewServer(DefaultConfig(), Dependencies{Health: health})

	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Healthy)
	assert.True(t, status.Checks["storage"].Healthy)

	health.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })
	rec = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Healthy)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
}

func TestHealthChecker_Timeout(t *testing.T) {
	health := NewHealthChecker(20 * time.Millisecond)
	health.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := health.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline")
}

func TestStatus(t *testing.T) {
	metrics := middleware.NewMetrics()
	metrics.Observe("points", time.Millisecond, nil)
	metrics.GateRejected()

	s := NewServer(DefaultConfig(), Dependencies{
		Scheduler: fakeScheduler{{Name: "daily_reminder", Trigger: "daily 18:00", RunCount: 3}},
		Metrics:   metrics,
	})

	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Health.Healthy)
	require.Len(t, resp.Scheduler, 1)
	assert.Equal(t, "daily_reminder", resp.Scheduler[0].Name)
	assert.Equal(t, int64(3), resp.Scheduler[0].RunCount)
	require.NotNil(t, resp.Bot)
	assert.Equal(t, int64(1), resp.Bot.TotalRequests)
	assert.Equal(t, int64(1), resp.Bot.GateRejections)
}

func TestStatus_WithoutCollaborators(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})

	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scheduler":[]`)
	assert.NotContains(t, rec.Body.String(), `"bot"`)
	assert.NotContains(t, rec.Body.String(), `"cache"`)
	assert.NotContains(t, rec.Body.String(), `"schema"`)
}

func TestStatus_CacheAndSchema(t *testing.T) {
	applied := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s := NewServer(DefaultConfig(), Dependencies{
		Cache: fakeCache(circuitbreaker.StateOpen),
		Schema: func(context.Context) ([]SchemaMigration, error) {
			return []SchemaMigration{
				{Name: "001_create_modules_and_logs", Applied: true, AppliedAt: &applied},
				{Name: "002_create_admins"},
			}, nil
		},
	})

	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Cache)
	assert.Equal(t, "open", resp.Cache.Breaker)
	require.Len(t, resp.Schema, 2)
	assert.True(t, resp.Schema[0].Applied)
	assert.True(t, applied.Equal(*resp.Schema[0].AppliedAt))
	assert.False(t, resp.Schema[1].Applied)
	assert.Nil(t, resp.Schema[1].AppliedAt)
	assert.Empty(t, resp.SchemaError)
}

func TestStatus_SchemaFailureIsReported(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{
		Schema: func(context.Context) ([]SchemaMigration, error) {
			return nil, errors.New("relation does not exist")
		},
	})

	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "relation does not exist", resp.SchemaError)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/v1/leaderboard").Code)
}

func TestStartAndShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	s := NewServer(cfg, Dependencies{})

	require.NoError(t, s.Start())
	assert.Error(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, s.Shutdown(ctx))
}
