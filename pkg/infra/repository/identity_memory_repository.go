package repository

import (
	"context"
	"time"

	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/identity"
	"github.com/inkpress/gatekeeper/pkg/infra/cache"
)

type identityMemoryRepository struct {
	entries *cache.TTLMap
}

// NewIdentityMemoryRepository stores identities in a TTLMap. Every record
// carries its own expiry, so the map's default TTL is never used.
func NewIdentityMemoryRepository(entries *cache.TTLMap) identity.Repository {
	return &identityMemoryRepository{entries: entries}
}

func identityMapKey(kind identity.Kind, key string) string {
	return string(kind) + ":" + key
}

func (r *identityMemoryRepository) Save(ctx context.Context, rec *identity.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	stored := *rec
	r.entries.SetWithExpiry(identityMapKey(rec.Kind, rec.Key), &stored, rec.ExpireAt)
	return nil
}

func (r *identityMemoryRepository) Get(ctx context.Context, kind identity.Kind, key string, now time.Time) (*identity.Record, error) {
	value, ok := r.entries.Get(identityMapKey(kind, key))
	if !ok {
		return nil, domain.NewNotFoundError(identity.EntityType, key)
	}
	rec, ok := value.(*identity.Record)
	if !ok || rec.IsExpiredAt(now) {
		return nil, domain.NewNotFoundError(identity.EntityType, key)
	}
	out := *rec
	return &out, nil
}

func (r *identityMemoryRepository) Consume(
	ctx context.Context,
	kind identity.Kind,
	key, payload string,
	now time.Time,
) (bool, error) {
	return r.entries.DeleteIf(identityMapKey(kind, key), func(value interface{}) bool {
		rec, ok := value.(*identity.Record)
		return ok && !rec.IsExpiredAt(now) && rec.Payload == payload
	}), nil
}

func (r *identityMemoryRepository) Delete(ctx context.Context, kind identity.Kind, key string) error {
	r.entries.Delete(identityMapKey(kind, key))
	return nil
}

func (r *identityMemoryRepository) DeleteExpired(ctx context.Context, kind identity.Kind, now time.Time) (int64, error) {
	return int64(r.entries.DeleteExpired(string(kind)+":", now)), nil
}
