package ratelimit_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	appRatelimit "github.com/inkpress/gatekeeper/pkg/app/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit/mocks"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/channel"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
	cacheMocks "github.com/inkpress/gatekeeper/pkg/infra/cache/mocks"
	"github.com/inkpress/gatekeeper/pkg/infra/repository"
	"github.com/inkpress/gatekeeper/pkg/infra/resilience"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// countingStore records how often each operation reaches the store.
type countingStore struct {
	ratelimit.Store
	gets int32
}

func (s *countingStore) Get(ctx context.Context, clientKey string) (*ratelimit.Record, error) {
	atomic.AddInt32(&s.gets, 1)
	return s.Store.Get(ctx, clientKey)
}

// slowStore never answers before the caller gives up.
type slowStore struct {
	ratelimit.Store
}

func (s *slowStore) Get(ctx context.Context, _ string) (*ratelimit.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *slowStore) IncrementAndGet(ctx context.Context, _ string, _ time.Time, _ time.Duration) (*ratelimit.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newLimiter(t *testing.T, store ratelimit.Store, clock *fakeClock, opts ...appRatelimit.Option) appRatelimit.Limiter {
	t.Helper()
	opts = append([]appRatelimit.Option{appRatelimit.WithTimeProvider(clock.Now)}, opts...)
	l, err := appRatelimit.NewLimiter(logrus.New(), store, ratelimit.DefaultPolicy(), opts...)
	require.NoError(t, err)
	return l
}

func TestNewLimiter_RejectsInvalidPolicy(t *testing.T) {
	p := ratelimit.DefaultPolicy()
	p.Threshold = 0
	_, err := appRatelimit.NewLimiter(logrus.New(), repository.NewRateLimitMemoryStore(1), p)
	assert.ErrorIs(t, err, ratelimit.ErrInvalidThreshold)
}

func TestLimiter_ThresholdIsStrict(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := l.Admit(ctx, "203.0.113.1")
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, int64(i), d.RequestCount)
	}

	d := l.Admit(ctx, "203.0.113.1")
	assert.False(t, d.Allowed)
	assert.True(t, d.NewlyBlocked)
	assert.Equal(t, t0.Add(24*time.Hour), d.BlockUntil)
	assert.Equal(t, appRatelimit.ReasonThresholdExceeded, d.Reason)
}

func TestLimiter_BlockIsMonotonic(t *testing.T) {
	clock := newFakeClock()
	store := repository.NewRateLimitMemoryStore(4)
	l := newLimiter(t, store, clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Admit(ctx, "k")
	}

	for _, offset := range []time.Duration{time.Second, time.Hour, 23 * time.Hour} {
		clock.Set(t0.Add(offset))
		assert.True(t, l.RecordRequest(ctx, "k"))
		d := l.Admit(ctx, "k")
		assert.False(t, d.Allowed)
		assert.False(t, d.NewlyBlocked)

		rec, err := l.Inspect(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, t0.Add(24*time.Hour), rec.BlockUntil)
	}
}

func TestLimiter_WindowReset(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, l.Admit(ctx, "k").Allowed)
	}

	clock.Set(t0.Add(10*time.Second + time.Millisecond))
	d := l.Admit(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.RequestCount)
}

func TestLimiter_BlockExpiry(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Admit(ctx, "k")
	}
	require.True(t, l.IsBlocked(ctx, "k"))

	clock.Set(t0.Add(24 * time.Hour))
	assert.False(t, l.IsBlocked(ctx, "k"))
	d := l.Admit(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.RequestCount)
}

func TestLimiter_BurstThenBlockScenario(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		clock.Set(t0.Add(time.Duration(i) * 400 * time.Millisecond))
		require.True(t, l.Admit(ctx, "198.51.100.4").Allowed)
	}

	clock.Set(t0.Add(2500 * time.Millisecond))
	sixth := l.Admit(ctx, "198.51.100.4")
	assert.False(t, sixth.Allowed)
	assert.Equal(t, t0.Add(2500*time.Millisecond+24*time.Hour), sixth.BlockUntil)

	clock.Set(t0.Add(time.Hour))
	assert.False(t, l.Admit(ctx, "198.51.100.4").Allowed)

	clock.Set(t0.Add(24*time.Hour + 2500*time.Millisecond))
	d := l.Admit(ctx, "198.51.100.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.RequestCount)
}

func TestLimiter_BoundaryScenario(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, l.Admit(ctx, "k").Allowed)
	}
	clock.Set(t0.Add(10001 * time.Millisecond))
	d := l.Admit(ctx, "k")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.RequestCount)
}

func TestLimiter_ConcurrentCallsBlockExactlyOnce(t *testing.T) {
	stores := map[string]ratelimit.Store{
		"memory": repository.NewRateLimitMemoryStore(4),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock()
			l := newLimiter(t, store, clock)
			ctx := context.Background()

			for i := 0; i < 4; i++ {
				require.True(t, l.Admit(ctx, "hot").Allowed)
			}

			const n = 32
			var (
				wg      sync.WaitGroup
				allowed int32
				newly   int32
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d := l.Admit(ctx, "hot")
					if d.Allowed {
						atomic.AddInt32(&allowed, 1)
					}
					if d.NewlyBlocked {
						atomic.AddInt32(&newly, 1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), allowed)
			assert.Equal(t, int32(1), newly)
		})
	}
}

func TestLimiter_IsBlockedDoesNotCount(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()

	assert.False(t, l.RecordRequest(ctx, "k"))
	for i := 0; i < 10; i++ {
		assert.False(t, l.IsBlocked(ctx, "k"))
	}
	rec, err := l.Inspect(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.RequestCount)
}

func TestLimiter_AnonymousBucket(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()

	l.Admit(ctx, "")
	l.Admit(ctx, "   ")
	rec, err := l.Inspect(ctx, ratelimit.AnonymousClientKey)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.RequestCount)
}

func TestLimiter_LocalBlockCache(t *testing.T) {
	clock := newFakeClock()
	store := &countingStore{Store: repository.NewRateLimitMemoryStore(4)}
	l := newLimiter(t, store, clock)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Admit(ctx, "k")
	}
	before := atomic.LoadInt32(&store.gets)
	for i := 0; i < 5; i++ {
		assert.True(t, l.IsBlocked(ctx, "k"))
	}
	assert.Equal(t, before, atomic.LoadInt32(&store.gets))

	l.Forget("k")
	assert.True(t, l.IsBlocked(ctx, "k"))
	assert.Equal(t, before+1, atomic.LoadInt32(&store.gets))
}

func TestLimiter_FailurePolicy(t *testing.T) {
	tests := []struct {
		name          string
		policy        ratelimit.FailurePolicy
		expectAllowed bool
	}{
		{name: "fail open", policy: ratelimit.FailOpen, expectAllowed: true},
		{name: "fail closed", policy: ratelimit.FailClosed, expectAllowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mocks.Store)
			store.On("Get", mock.Anything, "k").Return(nil, errors.New("connection refused"))
			store.On("IncrementAndGet", mock.Anything, "k", t0, 10*time.Second).Return(nil, errors.New("connection refused"))

			p := ratelimit.DefaultPolicy()
			p.FailurePolicy = tt.policy
			l, err := appRatelimit.NewLimiter(logrus.New(), store, p, appRatelimit.WithTimeProvider(newFakeClock().Now))
			require.NoError(t, err)

			d := l.Admit(context.Background(), "k")
			assert.Equal(t, tt.expectAllowed, d.Allowed)
			assert.True(t, d.Degraded)
			assert.Equal(t, appRatelimit.ReasonStoreUnavailable, d.Reason)
			assert.Equal(t, !tt.expectAllowed, l.IsBlocked(context.Background(), "k"))
			assert.Equal(t, !tt.expectAllowed, l.RecordRequest(context.Background(), "k"))
		})
	}
}

func TestLimiter_StoreTimeout(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, &slowStore{}, clock, appRatelimit.WithStoreTimeout(20*time.Millisecond))

	start := time.Now()
	d := l.Admit(context.Background(), "k")
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiter_OpenBreakerSkipsStore(t *testing.T) {
	store := new(mocks.Store)
	store.On("Get", mock.Anything, "k").Return(nil, errors.New("connection refused")).Times(2)

	clock := newFakeClock()
	cb := resilience.NewCircuitBreaker("ratelimit-store", time.Minute, 2, nil)
	l := newLimiter(t, store, clock, appRatelimit.WithCircuitBreaker(cb))

	for i := 0; i < 5; i++ {
		assert.False(t, l.IsBlocked(context.Background(), "k"))
	}
	store.AssertNumberOfCalls(t, "Get", 2)
}

func TestLimiter_NotFoundDoesNotTripBreaker(t *testing.T) {
	store := new(mocks.Store)
	store.On("Get", mock.Anything, "k").Return(nil, domain.NewNotFoundError(ratelimit.EntityType, "k"))

	clock := newFakeClock()
	cb := resilience.NewCircuitBreaker("ratelimit-store", time.Minute, 1, nil)
	l := newLimiter(t, store, clock, appRatelimit.WithCircuitBreaker(cb))

	for i := 0; i < 3; i++ {
		assert.False(t, l.IsBlocked(context.Background(), "k"))
	}
	store.AssertNumberOfCalls(t, "Get", 3)
}

func TestLimiter_RejectedKeyDoesNotTripBreaker(t *testing.T) {
	rejected := fmt.Errorf("%w: value too long for type character varying(255) (SQLSTATE 22001)", domain.ErrInvalidClientKey)
	store := new(mocks.Store)
	store.On("Get", mock.Anything, "k").Return(nil, domain.NewNotFoundError(ratelimit.EntityType, "k"))
	store.On("IncrementAndGet", mock.Anything, "k", t0, 10*time.Second).Return(nil, rejected)

	clock := newFakeClock()
	cb := resilience.NewCircuitBreaker("ratelimit-store", time.Minute, 2, nil)
	l := newLimiter(t, store, clock, appRatelimit.WithCircuitBreaker(cb))

	for i := 0; i < 5; i++ {
		d := l.Admit(context.Background(), "k")
		assert.False(t, d.Allowed)
		assert.False(t, d.Degraded)
		assert.Equal(t, appRatelimit.ReasonInvalidClientKey, d.Reason)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	store.AssertNumberOfCalls(t, "IncrementAndGet", 5)
}

func TestLimiter_OversizedKeyIsCounted(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock)
	ctx := context.Background()
	key := strings.Repeat("9", 1024)

	for i := 1; i <= 5; i++ {
		require.True(t, l.Admit(ctx, key).Allowed, "request %d", i)
	}
	d := l.Admit(ctx, key)
	assert.False(t, d.Allowed)
	assert.True(t, d.NewlyBlocked)

	rec, err := l.Inspect(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, ratelimit.NormalizeClientKey(key), rec.ClientKey)
	assert.LessOrEqual(t, len(rec.ClientKey), ratelimit.MaxClientKeyLength)
}

func TestLimiter_PublishesBlockAndReset(t *testing.T) {
	clock := newFakeClock()
	publisher := new(cacheMocks.EventPublisher)
	publisher.On("Publish", mock.Anything, channel.RateLimitEventsChannel, event.ClientBlockedEvent{
		ClientKey:  "k",
		BlockUntil: t0.Add(24 * time.Hour),
	}).Return(nil).Once()
	publisher.On("Publish", mock.Anything, channel.RateLimitEventsChannel, event.ClientUnblockedEvent{
		ClientKey: "k",
	}).Return(errors.New("redis down")).Once()

	l := newLimiter(t, repository.NewRateLimitMemoryStore(4), clock, appRatelimit.WithEventPublisher(publisher))
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Admit(ctx, "k")
	}
	require.True(t, l.IsBlocked(ctx, "k"))

	require.NoError(t, l.Reset(ctx, "k"))
	assert.False(t, l.IsBlocked(ctx, "k"))
	assert.True(t, l.Admit(ctx, "k").Allowed)

	err := l.Reset(ctx, "unknown")
	assert.True(t, domain.IsNotFoundError(err))
	publisher.AssertExpectations(t)
}

func TestLimiter_PeerResetWithoutEventChannel(t *testing.T) {
	tests := []struct {
		name          string
		localCache    bool
		blockedAtPeer bool
	}{
		{name: "local cache outlives a peer reset", localCache: true, blockedAtPeer: true},
		{name: "store is the only source of truth", localCache: false, blockedAtPeer: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			store := repository.NewRateLimitMemoryStore(4)
			api := newLimiter(t, store, clock, appRatelimit.WithLocalBlockCache(tt.localCache))
			admin := newLimiter(t, store, clock, appRatelimit.WithLocalBlockCache(tt.localCache))
			ctx := context.Background()

			for i := 0; i < 6; i++ {
				api.Admit(ctx, "k")
			}
			require.True(t, api.IsBlocked(ctx, "k"))

			require.NoError(t, admin.Reset(ctx, "k"))
			assert.Equal(t, tt.blockedAtPeer, api.IsBlocked(ctx, "k"))
		})
	}
}

func TestLimiter_RememberWithoutLocalCacheIsNoop(t *testing.T) {
	clock := newFakeClock()
	store := &countingStore{Store: repository.NewRateLimitMemoryStore(4)}
	l := newLimiter(t, store, clock, appRatelimit.WithLocalBlockCache(false))

	l.Remember("peer-blocked", t0.Add(time.Hour))
	l.Forget("peer-blocked")
	assert.False(t, l.IsBlocked(context.Background(), "peer-blocked"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.gets))
}

func TestLimiter_RememberIgnoresLapsedBlocks(t *testing.T) {
	clock := newFakeClock()
	store := &countingStore{Store: repository.NewRateLimitMemoryStore(4)}
	l := newLimiter(t, store, clock)

	l.Remember("peer-blocked", t0.Add(time.Hour))
	l.Remember("stale", t0.Add(-time.Hour))

	assert.True(t, l.IsBlocked(context.Background(), "peer-blocked"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&store.gets))
	assert.False(t, l.IsBlocked(context.Background(), "stale"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.gets))
}
