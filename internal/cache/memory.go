package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	val []byte
	exp time.Time
}

// Memory is an in-process backend. Entries are only evicted by TTL or Clear.
type Memory struct {
	mu  sync.Mutex
	m   map[string]entry
	now func() time.Time
}

// NewMemory creates an empty in-memory backend
func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

// Get returns a copy of the stored value when it has not expired
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.exp) {
		delete(c.m, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

// Set stores a copy of val
func (c *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m[key] = entry{val: append([]byte(nil), val...), exp: c.now().Add(ttl)}
	return nil
}

// Clear drops every entry
func (c *Memory) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m = make(map[string]entry)
	return nil
}

// Len reports the number of stored entries, fresh or not
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}
