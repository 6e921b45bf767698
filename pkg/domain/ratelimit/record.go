package ratelimit

import (
	"time"
)

const EntityType = "rate_limit_record"

// Record is the per-client counter and block state. There is at most one
// Record per ClientKey.
type Record struct {
	ClientKey    string    `json:"client_key"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	RequestCount int64     `json:"request_count"`
	Blocked      bool      `json:"blocked"`
	BlockUntil   time.Time `json:"block_until,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewRecord(clientKey string, now time.Time, window time.Duration) *Record {
	return &Record{
		ClientKey:    clientKey,
		WindowStart:  now,
		WindowEnd:    now.Add(window),
		RequestCount: 1,
		UpdatedAt:    now,
	}
}

// IsBlockedAt reports whether the block is still in force at now.
func (r *Record) IsBlockedAt(now time.Time) bool {
	return r.Blocked && now.Before(r.BlockUntil)
}

// Advance counts one request at now. The window restarts when it has elapsed
// or when a previous block has lapsed; an active block is never cleared here.
func (r *Record) Advance(now time.Time, window time.Duration) {
	if !r.IsBlockedAt(now) && (!now.Before(r.WindowEnd) || r.Blocked) {
		r.WindowStart = now
		r.WindowEnd = now.Add(window)
		r.RequestCount = 1
		r.Blocked = false
		r.BlockUntil = time.Time{}
		r.UpdatedAt = now
		return
	}
	r.RequestCount++
	r.UpdatedAt = now
}

// ShouldEscalate reports whether the window count went strictly past threshold.
func (r *Record) ShouldEscalate(threshold int64) bool {
	return r.RequestCount > threshold
}

// Escalate blocks the record until now+blockDuration. It returns false and
// leaves the record untouched when a block is already in force.
func (r *Record) Escalate(now time.Time, blockDuration time.Duration) bool {
	if r.IsBlockedAt(now) {
		return false
	}
	r.Blocked = true
	r.BlockUntil = now.Add(blockDuration)
	r.UpdatedAt = now
	return true
}

// IsSweepableAt reports whether neither the window nor a block is active at now.
func (r *Record) IsSweepableAt(now time.Time) bool {
	if now.Before(r.WindowEnd) {
		return false
	}
	return !r.Blocked || !now.Before(r.BlockUntil)
}

// ExpiresAt is the earliest instant at which the record becomes sweepable.
func (r *Record) ExpiresAt() time.Time {
	if r.Blocked && r.BlockUntil.After(r.WindowEnd) {
		return r.BlockUntil
	}
	return r.WindowEnd
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
