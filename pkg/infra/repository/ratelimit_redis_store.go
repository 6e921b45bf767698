package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
)

const (
	RateLimitRecordKeyPattern = "ratelimit:rec:%s"
	RateLimitIndexKey         = "ratelimit:index"

	defaultSweepBatch = 500
)

var recordFields = []string{"window_start", "window_end", "count", "blocked", "block_until", "updated_at"}

// KEYS[1] record, KEYS[2] index
// ARGV[1] now, ARGV[2] window end for a fresh window, ARGV[3] safety ttl, ARGV[4] client key
var incrementScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local rec = redis.call('HMGET', KEYS[1], 'window_end', 'blocked', 'block_until')
local windowEnd = tonumber(rec[1])
local blocked = rec[2] == '1'
local blockUntil = tonumber(rec[3]) or 0
local activeBlock = blocked and now < blockUntil
if windowEnd == nil or (not activeBlock and (now >= windowEnd or blocked)) then
	redis.call('HSET', KEYS[1],
		'window_start', ARGV[1],
		'window_end', ARGV[2],
		'count', '1',
		'blocked', '0',
		'block_until', '0',
		'updated_at', ARGV[1])
	redis.call('ZADD', KEYS[2], ARGV[2], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[3])
else
	redis.call('HINCRBY', KEYS[1], 'count', 1)
	redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
end
return redis.call('HMGET', KEYS[1], 'window_start', 'window_end', 'count', 'blocked', 'block_until', 'updated_at')
`)

// KEYS[1] record, KEYS[2] index
// ARGV[1] now, ARGV[2] block until, ARGV[3] absolute expiry, ARGV[4] client key
var blockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local now = tonumber(ARGV[1])
local rec = redis.call('HMGET', KEYS[1], 'window_end', 'blocked', 'block_until')
if rec[2] == '1' and now < (tonumber(rec[3]) or 0) then
	return 0
end
redis.call('HSET', KEYS[1], 'blocked', '1', 'block_until', ARGV[2], 'updated_at', ARGV[1])
local score = ARGV[2]
if (tonumber(rec[1]) or 0) > tonumber(ARGV[2]) then
	score = rec[1]
end
redis.call('ZADD', KEYS[2], score, ARGV[4])
redis.call('PEXPIREAT', KEYS[1], ARGV[3])
return 1
`)

// KEYS[1] record, KEYS[2] index
// ARGV[1] now, ARGV[2] client key
var sweepScript = redis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'window_end', 'blocked', 'block_until')
if not rec[1] then
	redis.call('ZREM', KEYS[2], ARGV[2])
	return 0
end
local now = tonumber(ARGV[1])
if now < tonumber(rec[1]) then
	return -1
end
if rec[2] == '1' and now < (tonumber(rec[3]) or 0) then
	return -1
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

type RedisStoreConfig struct {
	// SafetyTTL bounds how long an abandoned record can outlive its window or
	// block if the sweep never runs.
	SafetyTTL  time.Duration
	SweepBatch int64
}

// rateLimitRedisStore keeps one hash per client plus a sorted set index scored
// by the instant the record becomes sweepable.
type rateLimitRedisStore struct {
	client redis.UniversalClient
	cfg    RedisStoreConfig
}

func NewRateLimitRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) ratelimit.Store {
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = defaultSweepBatch
	}
	if cfg.SafetyTTL <= 0 {
		cfg.SafetyTTL = ratelimit.DefaultWindow + ratelimit.DefaultBlockDuration
	}
	return &rateLimitRedisStore{client: client, cfg: cfg}
}

func recordKey(clientKey string) string {
	return fmt.Sprintf(RateLimitRecordKeyPattern, clientKey)
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func fromMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if ms == 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms).UTC(), nil
}

func (s *rateLimitRedisStore) Get(ctx context.Context, clientKey string) (*ratelimit.Record, error) {
	values, err := s.client.HMGet(ctx, recordKey(clientKey), recordFields...).Result()
	if err != nil {
		return nil, err
	}
	return decodeRecord(clientKey, values)
}

func (s *rateLimitRedisStore) IncrementAndGet(
	ctx context.Context,
	clientKey string,
	now time.Time,
	window time.Duration,
) (*ratelimit.Record, error) {
	ttl := s.cfg.SafetyTTL
	if ttl < window {
		ttl = window
	}
	values, err := incrementScript.Run(ctx, s.client,
		[]string{recordKey(clientKey), RateLimitIndexKey},
		millis(now),
		millis(now.Add(window)),
		strconv.FormatInt(ttl.Milliseconds(), 10),
		clientKey,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("increment %s: %w", clientKey, err)
	}
	return decodeRecord(clientKey, values)
}

func (s *rateLimitRedisStore) SetBlocked(ctx context.Context, clientKey string, now, until time.Time) (bool, error) {
	res, err := blockScript.Run(ctx, s.client,
		[]string{recordKey(clientKey), RateLimitIndexKey},
		millis(now),
		millis(until),
		millis(until.Add(s.cfg.SafetyTTL)),
		clientKey,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("block %s: %w", clientKey, err)
	}
	switch res {
	case -1:
		return false, domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	case 1:
		return true, nil
	default:
		return false, nil
	}
}

func (s *rateLimitRedisStore) Delete(ctx context.Context, clientKey string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, recordKey(clientKey))
	pipe.ZRem(ctx, RateLimitIndexKey, clientKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	}
	return nil
}

// DeleteExpired walks the index up to now. Each candidate is re-checked and
// removed by a script, so a record revived between the range read and the
// delete survives. Per-record failures are collected and the walk continues.
func (s *rateLimitRedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var (
		removed int64
		offset  int64
		errs    []error
	)
	for {
		members, err := s.client.ZRangeByScore(ctx, RateLimitIndexKey, &redis.ZRangeBy{
			Min:    "-inf",
			Max:    millis(now),
			Offset: offset,
			Count:  s.cfg.SweepBatch,
		}).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("scan index: %w", err))
			break
		}
		for _, clientKey := range members {
			res, err := sweepScript.Run(ctx, s.client,
				[]string{recordKey(clientKey), RateLimitIndexKey},
				millis(now),
				clientKey,
			).Int64()
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("sweep %s: %w", clientKey, err))
				offset++
			case res == 1:
				removed++
			case res == -1:
				offset++
			}
		}
		if int64(len(members)) < s.cfg.SweepBatch || ctx.Err() != nil {
			break
		}
	}
	return removed, errors.Join(errs...)
}

func decodeRecord(clientKey string, values []interface{}) (*ratelimit.Record, error) {
	if len(values) != len(recordFields) || values[1] == nil {
		return nil, domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	}
	fields := make([]string, len(values))
	for i, v := range values {
		switch tv := v.(type) {
		case string:
			fields[i] = tv
		case int64:
			fields[i] = strconv.FormatInt(tv, 10)
		case nil:
			fields[i] = "0"
		default:
			return nil, fmt.Errorf("unexpected %s value type %T", recordFields[i], v)
		}
	}

	rec := &ratelimit.Record{ClientKey: clientKey, Blocked: fields[3] == "1"}
	var err error
	if rec.WindowStart, err = fromMillis(fields[0]); err != nil {
		return nil, fmt.Errorf("decode window_start: %w", err)
	}
	if rec.WindowEnd, err = fromMillis(fields[1]); err != nil {
		return nil, fmt.Errorf("decode window_end: %w", err)
	}
	if rec.RequestCount, err = strconv.ParseInt(fields[2], 10, 64); err != nil {
		return nil, fmt.Errorf("decode count: %w", err)
	}
	if rec.BlockUntil, err = fromMillis(fields[4]); err != nil {
		return nil, fmt.Errorf("decode block_until: %w", err)
	}
	if rec.UpdatedAt, err = fromMillis(fields[5]); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return rec, nil
}
