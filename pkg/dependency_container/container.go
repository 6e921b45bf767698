package dependency_container

import (
	"errors"
	"fmt"
	"reflect"

	appIdentity "github.com/inkpress/gatekeeper/pkg/app/identity"
	appRatelimit "github.com/inkpress/gatekeeper/pkg/app/ratelimit"
	"github.com/inkpress/gatekeeper/pkg/app/sweep"
	"github.com/inkpress/gatekeeper/pkg/config"
	"github.com/inkpress/gatekeeper/pkg/domain/attachment"
	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
	handlers "github.com/inkpress/gatekeeper/pkg/handlers/http"
	"github.com/inkpress/gatekeeper/pkg/infra/cache"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/event"
	"github.com/inkpress/gatekeeper/pkg/infra/cache/subscriber"
	"github.com/inkpress/gatekeeper/pkg/infra/database"
	"github.com/inkpress/gatekeeper/pkg/infra/jwt"
	"github.com/inkpress/gatekeeper/pkg/infra/repository"
	"github.com/inkpress/gatekeeper/pkg/infra/resilience"
	"github.com/inkpress/gatekeeper/pkg/middleware"
	"github.com/sirupsen/logrus"

	// registers schema migrations
	_ "github.com/inkpress/gatekeeper/pkg/infra/migrations"
)

const breakerName = "ratelimit-store"

var ErrRedisRequired = errors.New("redis client required")

type Container struct {
	Cache               cache.Client
	DB                  *database.DB
	RedisListener       cache.EventListener
	RedisPublisher      cache.EventPublisher
	RateLimitStore      ratelimit.Store
	IdentityRepository  identity.Repository
	AttachmentFinder    attachment.Finder
	Limiter             appRatelimit.Limiter
	GuestService        appIdentity.GuestService
	CodeService         appIdentity.VerificationCodeService
	CodeAttemptLimiter  appRatelimit.Limiter
	CodeSender          appIdentity.CodeSender
	JWTManager          jwt.Manager
	Sweeper             sweep.Scheduler
	HandlerTransport    *handlers.HandlerTransport
	MiddlewareTransport *middleware.Transport
}

type ContainerDI struct {
	Cfg            *config.Config
	Logger         *logrus.Logger
	EventsRegistry map[string]reflect.Type
	// Optional overrides, mostly for tests.
	Cache cache.Client
	DB    *database.DB
}

func NewContainer(di ContainerDI) (*Container, error) {
	cfg := di.Cfg
	c := &Container{
		Cache:          di.Cache,
		DB:             di.DB,
		RedisPublisher: cache.NewNoopEventPublisher(),
	}

	if err := c.connect(di); err != nil {
		c.Close()
		return nil, err
	}

	var err error
	c.RateLimitStore, err = newRateLimitStore(cfg, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.IdentityRepository, err = newIdentityRepository(cfg, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.AttachmentFinder = repository.NewAttachmentFilesystemFinder(cfg.Server.AttachmentsDir)

	// rate limiting
	policy := ratelimit.Policy{
		Threshold:     cfg.RateLimit.Threshold,
		Window:        cfg.RateLimit.Window,
		BlockDuration: cfg.RateLimit.BlockDuration,
		FailurePolicy: ratelimit.FailurePolicy(cfg.RateLimit.FailurePolicy),
	}
	limiterOpts := []appRatelimit.Option{
		appRatelimit.WithStoreTimeout(cfg.RateLimit.StoreTimeout),
		appRatelimit.WithEventPublisher(c.RedisPublisher),
		appRatelimit.WithLocalBlockCache(localBlockCacheSafe(cfg, c)),
	}
	if cfg.RateLimit.Breaker.Enabled {
		limiterOpts = append(limiterOpts, appRatelimit.WithCircuitBreaker(resilience.NewCircuitBreaker(
			breakerName,
			cfg.RateLimit.Breaker.OpenTimeout,
			cfg.RateLimit.Breaker.MaxFailures,
			di.Logger,
		)))
	}
	c.Limiter, err = appRatelimit.NewLimiter(di.Logger, c.RateLimitStore, policy, limiterOpts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("invalid rate limit policy: %w", err)
	}

	// subscribers
	if c.RedisListener != nil {
		blockedSubscriber := subscriber.NewClientBlockedEventSubscriber(di.Logger, c.Limiter, nil)
		unblockedSubscriber := subscriber.NewClientUnblockedEventSubscriber(di.Logger, c.Limiter)
		cache.RegisterEventSubscriber[event.ClientBlockedEvent](c.RedisListener, blockedSubscriber)
		cache.RegisterEventSubscriber[event.ClientUnblockedEvent](c.RedisListener, unblockedSubscriber)
	}

	// identities
	c.JWTManager = jwt.NewJwtManager(&cfg.Server)
	c.GuestService = appIdentity.NewGuestService(di.Logger, c.IdentityRepository, c.JWTManager, cfg.Identity.GuestTTL)
	c.CodeAttemptLimiter, err = appRatelimit.NewLimiter(di.Logger, c.RateLimitStore, ratelimit.Policy{
		Threshold:     cfg.Identity.MaxCodeAttempts,
		Window:        cfg.Identity.VerificationCodeTTL,
		BlockDuration: cfg.Identity.VerificationCodeTTL,
		FailurePolicy: ratelimit.FailClosed,
	}, appRatelimit.WithStoreTimeout(cfg.RateLimit.StoreTimeout))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("invalid verification attempt policy: %w", err)
	}
	c.CodeService = appIdentity.NewVerificationCodeService(
		di.Logger,
		c.IdentityRepository,
		cfg.Identity.VerificationCodeTTL,
		appIdentity.WithAttemptLimiter(c.CodeAttemptLimiter),
	)
	c.CodeSender = appIdentity.NewLogCodeSender(di.Logger)

	// sweeps
	c.Sweeper, err = sweep.NewScheduler(di.Logger, []sweep.Job{
		sweep.NewRateLimitJob(c.RateLimitStore, cfg.Sweep.RateLimitInterval),
		sweep.NewGuestJob(c.IdentityRepository, cfg.Sweep.GuestInterval),
		sweep.NewVerificationCodeJob(c.IdentityRepository, cfg.Sweep.VerificationCodeInterval),
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	c.HandlerTransport = &handlers.HandlerTransport{
		DownloadAttachmentHandler:     handlers.NewDownloadAttachmentHandler(di.Logger, c.Limiter, c.AttachmentFinder),
		CreateGuestHandler:            handlers.NewCreateGuestHandler(di.Logger, c.GuestService),
		CreateVerificationCodeHandler: handlers.NewCreateVerificationCodeHandler(di.Logger, c.CodeService, c.CodeSender),
		VerifyVerificationCodeHandler: handlers.NewVerifyVerificationCodeHandler(di.Logger, c.CodeService),
		GetRateLimitHandler:           handlers.NewGetRateLimitHandler(di.Logger, c.Limiter),
		ResetRateLimitHandler:         handlers.NewResetRateLimitHandler(di.Logger, c.Limiter),
		TriggerSweepHandler:           handlers.NewTriggerSweepHandler(di.Logger, c.Sweeper),
		GetVersionHandler:             handlers.NewGetVersionHandler(di.Logger),
	}
	c.MiddlewareTransport = &middleware.Transport{
		ClientKeyMiddleware:    middleware.NewClientKeyMiddleware(),
		ThrottleMiddleware:     middleware.NewThrottleMiddleware(di.Logger, cfg.Server.MaxRPS, cfg.Server.Burst),
		MetricsMiddleware:      middleware.NewMetricsMiddleware(di.Logger),
		PanicRecoverMiddleware: middleware.NewPanicRecoverMiddleware(di.Logger),
		AdminAuthMiddleware:    middleware.NewAdminAuthMiddleware(di.Logger, c.JWTManager),
	}

	return c, nil
}

// connect opens only the backends the configured stores need.
func (c *Container) connect(di ContainerDI) error {
	cfg := di.Cfg
	uses := func(store string) bool {
		return cfg.RateLimit.Store == store || cfg.Identity.Store == store
	}

	if c.Cache == nil && uses(config.StoreRedis) {
		cacheInstance, err := cache.NewClient(cache.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		}, di.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		c.Cache = cacheInstance
	}
	if c.Cache != nil {
		c.RedisPublisher = cache.NewRedisEventPublisher(c.Cache)
		c.RedisListener = cache.NewRedisEventListener(di.Logger, c.Cache, di.EventsRegistry)
	}

	if c.DB == nil && uses(config.StorePostgres) {
		db, err := database.NewDB(di.Logger, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db
	}
	if c.DB != nil {
		if err := c.DB.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return nil
}

func newRateLimitStore(cfg *config.Config, c *Container) (ratelimit.Store, error) {
	switch cfg.RateLimit.Store {
	case config.StoreMemory:
		return repository.NewRateLimitMemoryStore(cfg.RateLimit.Shards), nil
	case config.StoreRedis:
		if c.Cache == nil {
			return nil, ErrRedisRequired
		}
		return repository.NewRateLimitRedisStore(c.Cache.RedisClient(), repository.RedisStoreConfig{
			SafetyTTL:  cfg.RateLimit.Window + cfg.RateLimit.BlockDuration,
			SweepBatch: cfg.RateLimit.SweepBatch,
		}), nil
	case config.StorePostgres:
		return repository.NewRateLimitGormStore(c.DB.DB), nil
	}
	return nil, fmt.Errorf("%w: ratelimit.store=%q", config.ErrInvalidStore, cfg.RateLimit.Store)
}

func newIdentityRepository(cfg *config.Config, c *Container) (identity.Repository, error) {
	switch cfg.Identity.Store {
	case config.StoreMemory:
		return repository.NewIdentityMemoryRepository(cache.NewTTLMap()), nil
	case config.StoreRedis:
		if c.Cache == nil {
			return nil, ErrRedisRequired
		}
		return repository.NewIdentityRedisRepository(c.Cache.RedisClient()), nil
	case config.StorePostgres:
		return repository.NewIdentityGormRepository(c.DB.DB), nil
	}
	return nil, fmt.Errorf("%w: identity.store=%q", config.ErrInvalidStore, cfg.Identity.Store)
}

// localBlockCacheSafe reports whether every instance that can reset a block
// will also hear about it: either the store lives in this process or block
// events travel over redis.
func localBlockCacheSafe(cfg *config.Config, c *Container) bool {
	return cfg.RateLimit.Store == config.StoreMemory || c.RedisListener != nil
}

func (c *Container) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close() //nolint:errcheck
	}
	if c.DB != nil {
		_ = c.DB.Close() //nolint:errcheck
	}
}
