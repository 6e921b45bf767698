package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/identity"
)

const (
	IdentityKeyPattern      = "identity:%s:%s"
	IdentityIndexKeyPattern = "identity:%s:index"
)

// KEYS[1] record, KEYS[2] index
// ARGV[1] payload, ARGV[2] now, ARGV[3] identity key
var consumeIdentityScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'payload', 'expire_at')
if not rec[1] then
	return 0
end
if tonumber(ARGV[2]) >= tonumber(rec[2]) then
	return 0
end
if rec[1] ~= ARGV[1] then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[3])
return 1
`)

// KEYS[1] record, KEYS[2] index
// ARGV[1] now, ARGV[2] identity key
var sweepIdentityScript = redis.NewScript(`
local expireAt = redis.call('HGET', KEYS[1], 'expire_at')
if not expireAt then
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 0
end
if tonumber(ARGV[1]) < tonumber(expireAt) then
	return -1
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

type identityRedisRepository struct {
	client redis.UniversalClient
}

func NewIdentityRedisRepository(client redis.UniversalClient) identity.Repository {
	return &identityRedisRepository{client: client}
}

func identityKey(kind identity.Kind, key string) string {
	return fmt.Sprintf(IdentityKeyPattern, kind, key)
}

func identityIndexKey(kind identity.Kind) string {
	return fmt.Sprintf(IdentityIndexKeyPattern, kind)
}

func (r *identityRedisRepository) Save(ctx context.Context, rec *identity.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	k := identityKey(rec.Kind, rec.Key)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k,
		"payload", rec.Payload,
		"expire_at", millis(rec.ExpireAt),
		"created_at", millis(rec.CreatedAt),
	)
	pipe.PExpireAt(ctx, k, rec.ExpireAt)
	pipe.ZAdd(ctx, identityIndexKey(rec.Kind), &redis.Z{
		Score:  float64(rec.ExpireAt.UnixMilli()),
		Member: rec.Key,
	})
	_, err := pipe.Exec(ctx)
	return err
}

func (r *identityRedisRepository) Get(ctx context.Context, kind identity.Kind, key string, now time.Time) (*identity.Record, error) {
	values, err := r.client.HMGet(ctx, identityKey(kind, key), "payload", "expire_at", "created_at").Result()
	if err != nil {
		return nil, err
	}
	if len(values) != 3 || values[0] == nil || values[1] == nil {
		return nil, domain.NewNotFoundError(identity.EntityType, key)
	}
	payload, _ := values[0].(string)   //nolint:errcheck
	expireAt, _ := values[1].(string)  //nolint:errcheck
	createdAt, _ := values[2].(string) //nolint:errcheck

	rec := &identity.Record{Kind: kind, Key: key, Payload: payload}
	if rec.ExpireAt, err = fromMillis(expireAt); err != nil {
		return nil, fmt.Errorf("decode expire_at: %w", err)
	}
	if createdAt != "" {
		if rec.CreatedAt, err = fromMillis(createdAt); err != nil {
			return nil, fmt.Errorf("decode created_at: %w", err)
		}
	}
	if rec.IsExpiredAt(now) {
		return nil, domain.NewNotFoundError(identity.EntityType, key)
	}
	return rec, nil
}

func (r *identityRedisRepository) Consume(
	ctx context.Context,
	kind identity.Kind,
	key, payload string,
	now time.Time,
) (bool, error) {
	res, err := consumeIdentityScript.Run(ctx, r.client,
		[]string{identityKey(kind, key), identityIndexKey(kind)},
		payload,
		millis(now),
		key,
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (r *identityRedisRepository) Delete(ctx context.Context, kind identity.Kind, key string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, identityKey(kind, key))
	pipe.ZRem(ctx, identityIndexKey(kind), key)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *identityRedisRepository) DeleteExpired(ctx context.Context, kind identity.Kind, now time.Time) (int64, error) {
	var (
		removed int64
		offset  int64
		errs    []error
	)
	indexKey := identityIndexKey(kind)
	for {
		members, err := r.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    strconv.FormatInt(now.UnixMilli(), 10),
			Offset: offset,
			Count:  defaultSweepBatch,
		}).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("scan index: %w", err))
			break
		}
		for _, key := range members {
			res, err := sweepIdentityScript.Run(ctx, r.client,
				[]string{identityKey(kind, key), indexKey},
				millis(now),
				key,
			).Int64()
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("sweep %s: %w", key, err))
				offset++
			case res == 1:
				removed++
			case res == -1:
				offset++
			}
		}
		if len(members) < defaultSweepBatch || ctx.Err() != nil {
			break
		}
	}
	return removed, errors.Join(errs...)
}
