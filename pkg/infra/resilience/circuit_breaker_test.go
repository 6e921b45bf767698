package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
)

func TestNewCircuitBreaker(t *testing.T) {
	tests := []struct {
		name        string
		breakerName string
		timeout     time.Duration
		maxFailures uint32
	}{
		{name: "Valid circuit breaker", breakerName: "ratelimit-store", timeout: 30 * time.Second, maxFailures: 3},
		{name: "Zero timeout", breakerName: "zero-timeout-breaker", timeout: 0, maxFailures: 1},
		{name: "Zero max failures", breakerName: "zero-failures-breaker", timeout: 10 * time.Second, maxFailures: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := NewCircuitBreaker(tt.breakerName, tt.timeout, tt.maxFailures, logrus.New())

			wrapper, ok := breaker.(*circuitBreakerWrapper)
			assert.True(t, ok)
			assert.Equal(t, tt.breakerName, wrapper.breaker.Name())
			assert.Equal(t, gobreaker.StateClosed, breaker.State())
		})
	}
}

func TestCircuitBreakerWrapper_Execute_ErrorWrapping(t *testing.T) {
	breaker := NewCircuitBreaker("error-wrap-test", 30*time.Second, 3, nil)
	testError := errors.New("original error")

	err := breaker.Execute(func() error {
		return testError
	})

	assert.ErrorIs(t, err, testError)
	assert.Contains(t, err.Error(), "breaker (error-wrap-test)")
	assert.False(t, IsOpen(err))
}

func TestCircuitBreakerWrapper_Execute_Success(t *testing.T) {
	breaker := NewCircuitBreaker("success-test", 30*time.Second, 3, nil)
	assert.NoError(t, breaker.Execute(func() error { return nil }))
}

func TestCircuitBreakerWrapper_Execute_OpensAfterConsecutiveFailures(t *testing.T) {
	breaker := NewCircuitBreaker("open-test", 30*time.Second, 2, logrus.New())

	for i := 0; i < 2; i++ {
		assert.Error(t, breaker.Execute(func() error { return errors.New("store down") }))
	}
	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	called := false
	err := breaker.Execute(func() error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, IsOpen(err))
}

func TestCircuitBreakerWrapper_Execute_Recovery(t *testing.T) {
	breaker := NewCircuitBreaker("recovery-test", 50*time.Millisecond, 1, nil)

	assert.Error(t, breaker.Execute(func() error { return errors.New("trigger failure") }))
	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, breaker.State())

	assert.NoError(t, breaker.Execute(func() error { return nil }))
	assert.Equal(t, gobreaker.StateClosed, breaker.State())
}

func TestCircuitBreakerWrapper_Execute_PanicIsReported(t *testing.T) {
	breaker := NewCircuitBreaker("panic-test", 30*time.Second, 3, nil)

	assert.Panics(t, func() {
		_ = breaker.Execute(func() error { //nolint:errcheck
			panic("boom")
		})
	})
}
