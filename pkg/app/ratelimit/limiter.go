package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/infra/cache"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/channel"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
	"github.com/inkpress/gatekeeper/pkg/infra/prometheus"
	"github.com/inkpress/gatekeeper/pkg/infra/resilience"
	"github.com/sirupsen/logrus"
)

const DefaultStoreTimeout = 250 * time.Millisecond

const (
	ReasonAllowed           = "allowed"
	ReasonBlocked           = "blocked"
	ReasonThresholdExceeded = "threshold_exceeded"
	ReasonStoreUnavailable  = "store_unavailable"
	ReasonInvalidClientKey  = "invalid_client_key"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed      bool      `json:"allowed"`
	NewlyBlocked bool      `json:"newly_blocked"`
	RequestCount int64     `json:"request_count"`
	BlockUntil   time.Time `json:"block_until,omitempty"`
	// Degraded is set when the store could not be reached and the failure
	// policy decided the outcome.
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason"`
}

//go:generate mockery --name=Limiter --dir=. --output=./mocks --filename=limiter_mock.go --case=underscore --with-expecter
type Limiter interface {
	// IsBlocked reports whether clientKey is under an active block. It never counts.
	IsBlocked(ctx context.Context, clientKey string) bool
	// RecordRequest counts one request and reports whether the client is now
	// blocked, either by this call or by an earlier one.
	RecordRequest(ctx context.Context, clientKey string) bool
	// Admit runs IsBlocked then RecordRequest and returns the full decision.
	Admit(ctx context.Context, clientKey string) Decision
	Inspect(ctx context.Context, clientKey string) (*ratelimit.Record, error)
	Reset(ctx context.Context, clientKey string) error
	Policy() ratelimit.Policy
	Remember(clientKey string, until time.Time)
	Forget(clientKey string)
}

type Option func(*limiter)

func WithTimeProvider(now func() time.Time) Option {
	return func(l *limiter) {
		l.timeProvider = now
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(l *limiter) {
		if d > 0 {
			l.storeTimeout = d
		}
	}
}

func WithCircuitBreaker(cb resilience.CircuitBreaker) Option {
	return func(l *limiter) {
		l.breaker = cb
	}
}

// WithLocalBlockCache toggles the in-process cache of active blocks. Peers
// only learn about resets through the event channel, so instances sharing a
// store without one must run with the cache off.
func WithLocalBlockCache(enabled bool) Option {
	return func(l *limiter) {
		l.cacheBlocks = enabled
	}
}

func WithEventPublisher(p cache.EventPublisher) Option {
	return func(l *limiter) {
		l.publisher = p
	}
}

type limiter struct {
	logger       *logrus.Logger
	store        ratelimit.Store
	policy       ratelimit.Policy
	counter      *WindowCounter
	escalator    *BlockEscalator
	blocks       *cache.TTLMap
	breaker      resilience.CircuitBreaker
	publisher    cache.EventPublisher
	timeProvider func() time.Time
	storeTimeout time.Duration
	cacheBlocks  bool
}

func NewLimiter(
	logger *logrus.Logger,
	store ratelimit.Store,
	policy ratelimit.Policy,
	opts ...Option,
) (Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	l := &limiter{
		logger:       logger,
		store:        store,
		policy:       policy,
		counter:      NewWindowCounter(store, policy.Window),
		escalator:    NewBlockEscalator(store, policy.Threshold, policy.BlockDuration),
		publisher:    cache.NewNoopEventPublisher(),
		timeProvider: time.Now,
		storeTimeout: DefaultStoreTimeout,
		cacheBlocks:  true,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.cacheBlocks {
		l.blocks = cache.NewTTLMap(cache.WithClock(l.timeProvider))
	}
	return l, nil
}

func (l *limiter) Policy() ratelimit.Policy {
	return l.policy
}

func (l *limiter) IsBlocked(ctx context.Context, clientKey string) bool {
	d := l.checkBlocked(ctx, ratelimit.NormalizeClientKey(clientKey))
	if !d.Allowed {
		l.observe(d)
	}
	return !d.Allowed
}

func (l *limiter) RecordRequest(ctx context.Context, clientKey string) bool {
	d := l.record(ctx, ratelimit.NormalizeClientKey(clientKey))
	l.observe(d)
	return !d.Allowed
}

func (l *limiter) Admit(ctx context.Context, clientKey string) Decision {
	key := ratelimit.NormalizeClientKey(clientKey)
	d := l.checkBlocked(ctx, key)
	if !d.Allowed {
		l.observe(d)
		return d
	}
	d = l.record(ctx, key)
	l.observe(d)
	return d
}

func (l *limiter) Inspect(ctx context.Context, clientKey string) (*ratelimit.Record, error) {
	key := ratelimit.NormalizeClientKey(clientKey)
	var rec *ratelimit.Record
	err := l.call(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = l.store.Get(ctx, key)
		return err
	})
	return rec, err
}

// Reset drops the client's record everywhere: the store, the local block
// cache and, through the event channel, the caches of peer instances.
func (l *limiter) Reset(ctx context.Context, clientKey string) error {
	key := ratelimit.NormalizeClientKey(clientKey)
	l.Forget(key)
	err := l.call(ctx, "delete", func(ctx context.Context) error {
		return l.store.Delete(ctx, key)
	})
	if err != nil {
		return err
	}
	l.publish(ctx, event.ClientUnblockedEvent{ClientKey: key})
	l.logger.WithField("client_key", key).Info("rate limit record reset")
	return nil
}

func (l *limiter) Remember(clientKey string, until time.Time) {
	if l.blocks != nil && until.After(l.timeProvider()) {
		l.blocks.SetWithExpiry(clientKey, until, until)
	}
}

func (l *limiter) Forget(clientKey string) {
	if l.blocks != nil {
		l.blocks.Delete(clientKey)
	}
}

func (l *limiter) checkBlocked(ctx context.Context, key string) Decision {
	if l.blocks != nil {
		if until, ok := l.blocks.Get(key); ok {
			blockUntil, _ := until.(time.Time) //nolint:errcheck
			return Decision{Allowed: false, BlockUntil: blockUntil, Reason: ReasonBlocked}
		}
	}

	now := l.timeProvider()
	var rec *ratelimit.Record
	err := l.call(ctx, "get", func(ctx context.Context) error {
		var err error
		rec, err = l.store.Get(ctx, key)
		return err
	})
	if err != nil {
		if domain.IsNotFoundError(err) {
			return Decision{Allowed: true, Reason: ReasonAllowed}
		}
		if errors.Is(err, domain.ErrInvalidClientKey) {
			return l.rejected(key, err)
		}
		return l.degraded(key, "get", err)
	}
	if rec.IsBlockedAt(now) {
		l.Remember(key, rec.BlockUntil)
		return Decision{
			Allowed:      false,
			RequestCount: rec.RequestCount,
			BlockUntil:   rec.BlockUntil,
			Reason:       ReasonBlocked,
		}
	}
	return Decision{Allowed: true, RequestCount: rec.RequestCount, Reason: ReasonAllowed}
}

func (l *limiter) record(ctx context.Context, key string) Decision {
	now := l.timeProvider()

	var rec *ratelimit.Record
	err := l.call(ctx, "increment", func(ctx context.Context) error {
		var err error
		rec, err = l.counter.Record(ctx, key, now)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidClientKey) {
			return l.rejected(key, err)
		}
		return l.degraded(key, "increment", err)
	}

	if rec.IsBlockedAt(now) {
		l.Remember(key, rec.BlockUntil)
		return Decision{
			Allowed:      false,
			RequestCount: rec.RequestCount,
			BlockUntil:   rec.BlockUntil,
			Reason:       ReasonBlocked,
		}
	}
	if !rec.ShouldEscalate(l.policy.Threshold) {
		return Decision{Allowed: true, RequestCount: rec.RequestCount, Reason: ReasonAllowed}
	}

	var newlyBlocked bool
	err = l.call(ctx, "block", func(ctx context.Context) error {
		var err error
		newlyBlocked, err = l.escalator.MaybeBlock(ctx, rec, now)
		return err
	})
	if err != nil {
		// the window is already over threshold, so the request is refused
		// even though the block itself could not be persisted
		l.logger.WithError(err).WithField("client_key", key).Warn("failed to persist client block")
	}

	d := Decision{
		Allowed:      false,
		NewlyBlocked: newlyBlocked,
		RequestCount: rec.RequestCount,
		Reason:       ReasonThresholdExceeded,
	}
	if newlyBlocked {
		d.BlockUntil = now.Add(l.policy.BlockDuration)
		l.Remember(key, d.BlockUntil)
		prometheus.ClientsBlockedTotal.Inc()
		l.logger.WithFields(logrus.Fields{
			"client_key":    key,
			"request_count": rec.RequestCount,
			"block_until":   d.BlockUntil.Format(time.RFC3339),
		}).Warn("client blocked for exceeding request threshold")
		l.publish(ctx, event.ClientBlockedEvent{ClientKey: key, BlockUntil: d.BlockUntil})
	}
	return d
}

// call runs fn against the store under the per-call timeout and the circuit
// breaker. Not found results and rejected keys pass through without counting
// as failures: they say nothing about the store's health.
func (l *limiter) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()

	start := time.Now()
	var passthrough error
	run := func() error {
		err := fn(ctx)
		if domain.IsNotFoundError(err) || errors.Is(err, domain.ErrInvalidClientKey) {
			passthrough = err
			return nil
		}
		return err
	}

	var err error
	if l.breaker != nil {
		err = l.breaker.Execute(run)
	} else {
		err = run()
	}
	prometheus.StoreLatency.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		prometheus.StoreErrorsTotal.WithLabelValues(op).Inc()
		return err
	}
	return passthrough
}

func (l *limiter) degraded(key, op string, err error) Decision {
	allowed := l.policy.FailurePolicy != ratelimit.FailClosed
	fields := logrus.Fields{
		"client_key":     key,
		"operation":      op,
		"failure_policy": string(l.policy.FailurePolicy),
		"breaker_open":   resilience.IsOpen(err),
	}
	l.logger.WithError(err).WithFields(fields).Warn("rate limit store unavailable")
	return Decision{Allowed: allowed, Degraded: true, Reason: ReasonStoreUnavailable}
}

// rejected refuses a request whose key the store cannot hold. The failure
// policy does not apply.
func (l *limiter) rejected(key string, err error) Decision {
	l.logger.WithError(err).WithField("client_key", key).Warn("client key rejected by rate limit store")
	return Decision{Allowed: false, Reason: ReasonInvalidClientKey}
}

func (l *limiter) publish(ctx context.Context, ev event.Event) {
	ctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	if err := l.publisher.Publish(ctx, channel.RateLimitEventsChannel, ev); err != nil {
		l.logger.WithError(err).WithField("event", ev.Type()).Warn("failed to publish rate limit event")
	}
}

func (l *limiter) observe(d Decision) {
	var outcome string
	switch {
	case d.Degraded && d.Allowed:
		outcome = prometheus.OutcomeFailOpen
	case d.Degraded:
		outcome = prometheus.OutcomeFailClosed
	case d.NewlyBlocked:
		outcome = prometheus.OutcomeBlocked
	case !d.Allowed:
		outcome = prometheus.OutcomeDenied
	default:
		outcome = prometheus.OutcomeAllowed
	}
	prometheus.AdmissionDecisionsTotal.WithLabelValues(outcome).Inc()
}
