package cache

import (
	"strings"
	"sync"
	"time"
)

// TTLEntry represents an entry in TTLMap
type TTLEntry struct {
	Value     interface{}
	ExpiresAt time.Time
}

func (e *TTLEntry) expiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

type TTLMapOption func(*TTLMap)

// WithClock replaces time.Now as the source of the current instant.
func WithClock(now func() time.Time) TTLMapOption {
	return func(m *TTLMap) {
		m.now = now
	}
}

// TTLMap is a thread-safe map where every entry carries its own expiry
type TTLMap struct {
	Data map[string]*TTLEntry
	Mu   sync.RWMutex
	now  func() time.Time
}

func NewTTLMap(opts ...TTLMapOption) *TTLMap {
	m := &TTLMap{
		Data: make(map[string]*TTLEntry),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get retrieves a value from the TTLMap if it hasn't expired
func (m *TTLMap) Get(key string) (interface{}, bool) {
	now := m.now()
	m.Mu.RLock()
	entry, exists := m.Data[key]
	if !exists {
		m.Mu.RUnlock()
		return nil, false
	}
	isExpired := entry.expiredAt(now)
	value := entry.Value
	m.Mu.RUnlock()

	if isExpired {
		m.Mu.Lock()
		if current, ok := m.Data[key]; ok && current.expiredAt(now) {
			delete(m.Data, key)
		}
		m.Mu.Unlock()
		return nil, false
	}

	return value, true
}

// SetWithExpiry adds or updates a value that expires at the given instant
func (m *TTLMap) SetWithExpiry(key string, value interface{}, expiresAt time.Time) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	m.Data[key] = &TTLEntry{
		Value:     value,
		ExpiresAt: expiresAt,
	}
}

// DeleteIf removes the key when it is unexpired and match accepts its value.
func (m *TTLMap) DeleteIf(key string, match func(value interface{}) bool) bool {
	now := m.now()
	m.Mu.Lock()
	defer m.Mu.Unlock()

	entry, ok := m.Data[key]
	if !ok || entry.expiredAt(now) || !match(entry.Value) {
		return false
	}
	delete(m.Data, key)
	return true
}

// Delete removes a key from the TTLMap
func (m *TTLMap) Delete(key string) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	delete(m.Data, key)
}

// DeleteExpired drops every entry under prefix that has expired at now.
func (m *TTLMap) DeleteExpired(prefix string, now time.Time) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	removed := 0
	for key, entry := range m.Data {
		if strings.HasPrefix(key, prefix) && entry.expiredAt(now) {
			delete(m.Data, key)
			removed++
		}
	}
	return removed
}

func (m *TTLMap) Len() int {
	m.Mu.RLock()
	defer m.Mu.RUnlock()
	return len(m.Data)
}
