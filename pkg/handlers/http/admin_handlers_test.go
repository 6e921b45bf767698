package http

import (
	"errors"
	"fmt"
	"testing"
	"time"

	limiterMocks "github.com/inkpress/gatekeeper/pkg/app/ratelimit/mocks"
	"github.com/inkpress/gatekeeper/pkg/app/sweep"
	sweepMocks "github.com/inkpress/gatekeeper/pkg/app/sweep/mocks"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestGetRateLimit(t *testing.T) {
	const route = "/api/v1/admin/rate-limits/:client_key"
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		limiter := new(limiterMocks.Limiter)
		rec := ratelimit.NewRecord(testClientKey, now, 10*time.Second)
		rec.RequestCount = 3
		limiter.On("Inspect", mock.Anything, testClientKey).Return(rec, nil)

		app := newFiber()
		app.Get(route, NewGetRateLimitHandler(newTestLogger(), limiter).Handle)

		status, _, _ := doRequest(t, app, "GET", "/api/v1/admin/rate-limits/"+testClientKey, nil)
		assert.Equal(t, 200, status)
	})

	t.Run("not found", func(t *testing.T) {
		limiter := new(limiterMocks.Limiter)
		limiter.On("Inspect", mock.Anything, "198.51.100.1").
			Return(nil, domain.NewNotFoundError(ratelimit.EntityType, "198.51.100.1"))

		app := newFiber()
		app.Get(route, NewGetRateLimitHandler(newTestLogger(), limiter).Handle)

		status, _, _ := doRequest(t, app, "GET", "/api/v1/admin/rate-limits/198.51.100.1", nil)
		assert.Equal(t, 404, status)
	})

	t.Run("rejected key", func(t *testing.T) {
		limiter := new(limiterMocks.Limiter)
		limiter.On("Inspect", mock.Anything, testClientKey).
			Return(nil, fmt.Errorf("%w: invalid byte sequence", domain.ErrInvalidClientKey))

		app := newFiber()
		app.Get(route, NewGetRateLimitHandler(newTestLogger(), limiter).Handle)

		status, _, _ := doRequest(t, app, "GET", "/api/v1/admin/rate-limits/"+testClientKey, nil)
		assert.Equal(t, 400, status)
	})

	t.Run("store unavailable", func(t *testing.T) {
		limiter := new(limiterMocks.Limiter)
		limiter.On("Inspect", mock.Anything, testClientKey).Return(nil, errors.New("timeout"))

		app := newFiber()
		app.Get(route, NewGetRateLimitHandler(newTestLogger(), limiter).Handle)

		status, _, _ := doRequest(t, app, "GET", "/api/v1/admin/rate-limits/"+testClientKey, nil)
		assert.Equal(t, 503, status)
	})
}

func TestResetRateLimit(t *testing.T) {
	const route = "/api/v1/admin/rate-limits/:client_key"
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "reset", status: 204},
		{name: "missing", err: domain.NewNotFoundError(ratelimit.EntityType, testClientKey), status: 404},
		{name: "rejected key", err: fmt.Errorf("%w: value too long", domain.ErrInvalidClientKey), status: 400},
		{name: "store failure", err: errors.New("breaker open"), status: 503},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := new(limiterMocks.Limiter)
			limiter.On("Reset", mock.Anything, testClientKey).Return(tt.err)

			app := newFiber()
			app.Delete(route, NewResetRateLimitHandler(newTestLogger(), limiter).Handle)

			status, _, _ := doRequest(t, app, "DELETE", "/api/v1/admin/rate-limits/"+testClientKey, nil)
			assert.Equal(t, tt.status, status)
			limiter.AssertExpectations(t)
		})
	}
}

func TestTriggerSweep(t *testing.T) {
	const route = "/api/v1/admin/sweeps/:job"

	t.Run("runs job", func(t *testing.T) {
		scheduler := new(sweepMocks.Scheduler)
		scheduler.On("RunOnce", mock.Anything, sweep.JobGuest).Return(int64(7), nil)

		app := newFiber()
		app.Post(route, NewTriggerSweepHandler(newTestLogger(), scheduler).Handle)

		status, body, _ := doRequest(t, app, "POST", "/api/v1/admin/sweeps/guest", nil)
		assert.Equal(t, 200, status)
		out := decodeBody(t, body)
		assert.Equal(t, "guest", out["job"])
		assert.EqualValues(t, 7, out["deleted"])
	})

	t.Run("unknown job lists known jobs", func(t *testing.T) {
		scheduler := new(sweepMocks.Scheduler)
		scheduler.On("RunOnce", mock.Anything, "nope").Return(int64(0), fmt.Errorf("%w: %q", sweep.ErrUnknownJob, "nope"))
		scheduler.On("Jobs").Return([]string{sweep.JobGuest, sweep.JobRateLimit})

		app := newFiber()
		app.Post(route, NewTriggerSweepHandler(newTestLogger(), scheduler).Handle)

		status, body, _ := doRequest(t, app, "POST", "/api/v1/admin/sweeps/nope", nil)
		assert.Equal(t, 404, status)
		assert.Len(t, decodeBody(t, body)["jobs"], 2)
	})

	t.Run("already running", func(t *testing.T) {
		scheduler := new(sweepMocks.Scheduler)
		scheduler.On("RunOnce", mock.Anything, sweep.JobRateLimit).Return(int64(0), sweep.ErrJobRunning)

		app := newFiber()
		app.Post(route, NewTriggerSweepHandler(newTestLogger(), scheduler).Handle)

		status, _, _ := doRequest(t, app, "POST", "/api/v1/admin/sweeps/ratelimit", nil)
		assert.Equal(t, 409, status)
	})

	t.Run("partial failure reports progress", func(t *testing.T) {
		scheduler := new(sweepMocks.Scheduler)
		scheduler.On("RunOnce", mock.Anything, sweep.JobRateLimit).Return(int64(500), errors.New("context deadline exceeded"))

		app := newFiber()
		app.Post(route, NewTriggerSweepHandler(newTestLogger(), scheduler).Handle)

		status, body, _ := doRequest(t, app, "POST", "/api/v1/admin/sweeps/ratelimit", nil)
		assert.Equal(t, 500, status)
		assert.EqualValues(t, 500, decodeBody(t, body)["deleted"])
	})
}

func TestGetVersion(t *testing.T) {
	app := newFiber()
	app.Get("/version", NewGetVersionHandler(newTestLogger()).Handle)

	status, body, _ := doRequest(t, app, "GET", "/version", nil)
	assert.Equal(t, 200, status)
	out := decodeBody(t, body)
	assert.Equal(t, version.AppName, out["app_name"])
	assert.Equal(t, version.Version, out["version"])
}
