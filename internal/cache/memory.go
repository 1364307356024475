package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ritetech/rcm-intake/internal/store"
)

// Memory is the default in-process cache backend.
type Memory struct {
	c *gocache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{c: gocache.New(ttl, 2*ttl)}
}

func (m *Memory) Get(_ context.Context, table string) ([]store.Row, bool) {
	v, ok := m.c.Get(table)
	if !ok {
		return nil, false
	}
	return v.([]store.Row), true
}

func (m *Memory) Set(_ context.Context, table string, rows []store.Row) {
	m.c.Set(table, rows, gocache.DefaultExpiration)
}

func (m *Memory) Delete(_ context.Context, table string) {
	m.c.Delete(table)
}
