package repository

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/inkpress/gatekeeper/pkg/domain"
	"github.com/inkpress/gatekeeper/pkg/domain/ratelimit"
)

const DefaultMemoryShards = 64

type rateLimitShard struct {
	mu      sync.Mutex
	records map[string]*ratelimit.Record
}

// rateLimitMemoryStore keeps records in process memory. Keys are spread over
// independently locked shards so unrelated clients never share a lock.
type rateLimitMemoryStore struct {
	shards []*rateLimitShard
}

func NewRateLimitMemoryStore(shards int) ratelimit.Store {
	if shards <= 0 {
		shards = DefaultMemoryShards
	}
	s := &rateLimitMemoryStore{shards: make([]*rateLimitShard, shards)}
	for i := range s.shards {
		s.shards[i] = &rateLimitShard{records: make(map[string]*ratelimit.Record)}
	}
	return s
}

func (s *rateLimitMemoryStore) shard(clientKey string) *rateLimitShard {
	return s.shards[xxhash.Sum64String(clientKey)%uint64(len(s.shards))]
}

func (s *rateLimitMemoryStore) Get(ctx context.Context, clientKey string) (*ratelimit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := s.shard(clientKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[clientKey]
	if !ok {
		return nil, domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	}
	return rec.Clone(), nil
}

func (s *rateLimitMemoryStore) IncrementAndGet(
	ctx context.Context,
	clientKey string,
	now time.Time,
	window time.Duration,
) (*ratelimit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sh := s.shard(clientKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[clientKey]
	if !ok {
		rec = ratelimit.NewRecord(clientKey, now, window)
		sh.records[clientKey] = rec
		return rec.Clone(), nil
	}
	rec.Advance(now, window)
	return rec.Clone(), nil
}

func (s *rateLimitMemoryStore) SetBlocked(ctx context.Context, clientKey string, now, until time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	sh := s.shard(clientKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[clientKey]
	if !ok {
		return false, domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	}
	return rec.Escalate(now, until.Sub(now)), nil
}

func (s *rateLimitMemoryStore) Delete(ctx context.Context, clientKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sh := s.shard(clientKey)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.records[clientKey]; !ok {
		return domain.NewNotFoundError(ratelimit.EntityType, clientKey)
	}
	delete(sh.records, clientKey)
	return nil
}

func (s *rateLimitMemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var removed int64
	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		sh.mu.Lock()
		for key, rec := range sh.records {
			if rec.IsSweepableAt(now) {
				delete(sh.records, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}
