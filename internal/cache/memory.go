package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-process key-value cache with per-entry TTL, selected
// with recommendation.caching.backend=memory for single-instance deployments.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
	done chan struct{}
	once sync.Once
}

type entry struct {
	value    []byte
	expireAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	m := &MemoryCache{
		data: make(map[string]entry),
		now:  time.Now,
		done: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go m.cleanup(cleanupInterval)
	}
	return m
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok || e.expired(m.now()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores value under key. A non-positive ttl never expires.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

// DeleteByPattern removes keys matching a Redis MATCH pattern.
func (m *MemoryCache) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for k := range m.data {
		if matchGlob(pattern, k) {
			delete(m.data, k)
			deleted++
		}
	}
	return deleted, nil
}

// matchGlob follows Redis glob rules: '*' and '?' match any byte including
// '/', '[...]' sets take '^' and ranges, and a backslash escapes the next byte.
func matchGlob(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchGlob(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
		case '[':
			if len(s) == 0 {
				return false
			}
			rest, ok := matchClass(pattern[1:], s[0])
			if !ok {
				return false
			}
			pattern, s = rest, s[1:]
			continue
		case '\\':
			if len(pattern) > 1 {
				pattern = pattern[1:]
			}
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
		default:
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
		}
		pattern, s = pattern[1:], s[1:]
	}
	return len(s) == 0
}

// matchClass matches c against the set starting after '[' and returns the
// pattern following the closing ']'.
func matchClass(p string, c byte) (string, bool) {
	negate := len(p) > 0 && p[0] == '^'
	if negate {
		p = p[1:]
	}

	matched := false
	for len(p) > 0 && p[0] != ']' {
		switch {
		case p[0] == '\\' && len(p) > 1:
			matched = matched || p[1] == c
			p = p[2:]
		case len(p) > 2 && p[1] == '-' && p[2] != ']':
			lo, hi := p[0], p[2]
			if lo > hi {
				lo, hi = hi, lo
			}
			matched = matched || (c >= lo && c <= hi)
			p = p[3:]
		default:
			matched = matched || p[0] == c
			p = p[1:]
		}
	}
	if len(p) > 0 {
		p = p[1:]
	}
	return p, matched != negate
}

func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryCache) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for k, e := range m.data {
				if e.expired(now) {
					delete(m.data, k)
				}
			}
			m.mu.Unlock()
		case <-m.done:
			return
		}
	}
}
