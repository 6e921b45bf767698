package sweep

import (
	"context"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
)

const (
	JobRateLimit        = "ratelimit"
	JobGuest            = "guest"
	JobVerificationCode = "verification_code"
)

const (
	DefaultRateLimitInterval        = 2 * time.Hour
	DefaultGuestInterval            = time.Hour
	DefaultVerificationCodeInterval = 30 * time.Minute
)

// Job removes records that are stale at now and reports how many it removed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) (int64, error)
}

func NewRateLimitJob(store ratelimit.Store, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultRateLimitInterval
	}
	return Job{
		Name:     JobRateLimit,
		Interval: interval,
		Run:      store.DeleteExpired,
	}
}

func NewGuestJob(repo identity.Repository, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultGuestInterval
	}
	return newIdentityJob(JobGuest, repo, identity.KindGuest, interval)
}

func NewVerificationCodeJob(repo identity.Repository, interval time.Duration) Job {
	if interval <= 0 {
		interval = DefaultVerificationCodeInterval
	}
	return newIdentityJob(JobVerificationCode, repo, identity.KindVerificationCode, interval)
}

func newIdentityJob(name string, repo identity.Repository, kind identity.Kind, interval time.Duration) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context, now time.Time) (int64, error) {
			return repo.DeleteExpired(ctx, kind, now)
		},
	}
}
