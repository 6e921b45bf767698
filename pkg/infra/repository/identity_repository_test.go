package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"github.com/inkpress/gatekeeper/pkg/infra/cache"
	"github.com/inkpress/gatekeeper/pkg/infra/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type identityFactory func(t *testing.T) identity.Repository

func identityRepositories() map[string]identityFactory {
	return map[string]identityFactory{
		"memory": func(t *testing.T) identity.Repository {
			return repository.NewIdentityMemoryRepository(cache.NewTTLMap(cache.WithClock(func() time.Time { return t0 })))
		},
		"redis": func(t *testing.T) identity.Repository {
			_, rdb := newMiniredis(t)
			return repository.NewIdentityRedisRepository(rdb)
		},
		"gorm": func(t *testing.T) identity.Repository {
			return repository.NewIdentityGormRepository(newSQLiteDB(t))
		},
	}
}

func TestIdentityRepositories(t *testing.T) {
	for name, factory := range identityRepositories() {
		t.Run(name, func(t *testing.T) {
			t.Run("expiry is authoritative on lookup", func(t *testing.T) {
				repo := factory(t)
				ctx := context.Background()

				require.NoError(t, repo.Save(ctx, &identity.Record{
					Kind:      identity.KindGuest,
					Key:       "guest_1",
					Payload:   "secret",
					ExpireAt:  t0.Add(time.Hour),
					CreatedAt: t0,
				}))

				rec, err := repo.Get(ctx, identity.KindGuest, "guest_1", t0.Add(59*time.Minute))
				require.NoError(t, err)
				assert.Equal(t, "secret", rec.Payload)
				assert.Equal(t, t0.Add(time.Hour), rec.ExpireAt)

				_, err = repo.Get(ctx, identity.KindGuest, "guest_1", t0.Add(time.Hour))
				assert.True(t, domain.IsNotFoundError(err))

				_, err = repo.Get(ctx, identity.KindVerificationCode, "guest_1", t0)
				assert.True(t, domain.IsNotFoundError(err))
			})

			t.Run("save replaces the previous record", func(t *testing.T) {
				repo := factory(t)
				ctx := context.Background()

				for _, code := range []string{"111111", "222222"} {
					require.NoError(t, repo.Save(ctx, &identity.Record{
						Kind:      identity.KindVerificationCode,
						Key:       "user@example.com",
						Payload:   code,
						ExpireAt:  t0.Add(5 * time.Minute),
						CreatedAt: t0,
					}))
				}
				rec, err := repo.Get(ctx, identity.KindVerificationCode, "user@example.com", t0)
				require.NoError(t, err)
				assert.Equal(t, "222222", rec.Payload)
			})

			t.Run("consume is single use", func(t *testing.T) {
				repo := factory(t)
				ctx := context.Background()

				require.NoError(t, repo.Save(ctx, &identity.Record{
					Kind:      identity.KindVerificationCode,
					Key:       "user@example.com",
					Payload:   "123456",
					ExpireAt:  t0.Add(5 * time.Minute),
					CreatedAt: t0,
				}))

				ok, err := repo.Consume(ctx, identity.KindVerificationCode, "user@example.com", "000000", t0)
				require.NoError(t, err)
				assert.False(t, ok)

				var wins int32
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						ok, err := repo.Consume(ctx, identity.KindVerificationCode, "user@example.com", "123456", t0.Add(time.Minute))
						if assert.NoError(t, err) && ok {
							atomic.AddInt32(&wins, 1)
						}
					}()
				}
				wg.Wait()
				assert.Equal(t, int32(1), wins)
			})

			t.Run("consume rejects expired codes", func(t *testing.T) {
				repo := factory(t)
				ctx := context.Background()

				require.NoError(t, repo.Save(ctx, &identity.Record{
					Kind:      identity.KindVerificationCode,
					Key:       "late@example.com",
					Payload:   "123456",
					ExpireAt:  t0.Add(5 * time.Minute),
					CreatedAt: t0,
				}))
				ok, err := repo.Consume(ctx, identity.KindVerificationCode, "late@example.com", "123456", t0.Add(5*time.Minute))
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("delete expired is scoped by kind and idempotent", func(t *testing.T) {
				repo := factory(t)
				ctx := context.Background()

				records := []*identity.Record{
					{Kind: identity.KindGuest, Key: "guest_old", Payload: "p", ExpireAt: t0.Add(time.Minute), CreatedAt: t0},
					{Kind: identity.KindGuest, Key: "guest_new", Payload: "p", ExpireAt: t0.Add(time.Hour), CreatedAt: t0},
					{Kind: identity.KindVerificationCode, Key: "a@example.com", Payload: "1", ExpireAt: t0.Add(time.Minute), CreatedAt: t0},
				}
				for _, rec := range records {
					require.NoError(t, repo.Save(ctx, rec))
				}

				now := t0.Add(30 * time.Minute)
				removed, err := repo.DeleteExpired(ctx, identity.KindGuest, now)
				require.NoError(t, err)
				assert.Equal(t, int64(1), removed)

				removed, err = repo.DeleteExpired(ctx, identity.KindGuest, now)
				require.NoError(t, err)
				assert.Equal(t, int64(0), removed)

				_, err = repo.Get(ctx, identity.KindGuest, "guest_new", now)
				assert.NoError(t, err)

				removed, err = repo.DeleteExpired(ctx, identity.KindVerificationCode, now)
				require.NoError(t, err)
				assert.Equal(t, int64(1), removed)
			})

			t.Run("delete", func(t *testing.T) {
				repo := factory(t)
				ctx := context.Background()

				require.NoError(t, repo.Save(ctx, &identity.Record{
					Kind: identity.KindGuest, Key: "guest_x", Payload: "p", ExpireAt: t0.Add(time.Hour), CreatedAt: t0,
				}))
				require.NoError(t, repo.Delete(ctx, identity.KindGuest, "guest_x"))
				_, err := repo.Get(ctx, identity.KindGuest, "guest_x", t0)
				assert.True(t, domain.IsNotFoundError(err))
			})

			t.Run("rejects invalid records", func(t *testing.T) {
				repo := factory(t)
				err := repo.Save(context.Background(), &identity.Record{Kind: "session", Key: "x", ExpireAt: t0})
				assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
			})
		})
	}
}
