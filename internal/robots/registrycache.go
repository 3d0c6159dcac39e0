package robots

import (
	"time"

	"github.com/rohmanhakim/sitecrawl/internal/registry"
	"github.com/rohmanhakim/sitecrawl/internal/robots/cache"
)

// RegistryCache adapts the registry's robots cache to the cache.Cache port,
// so a resumed crawl can skip re-fetching robots.txt for hosts whose
// decision is still within TTL instead of starting every host back at
// UNFETCHED. The TTL check itself lives in Registry.RobotsCacheGet; this
// adapter just shuttles the raw cached body through the port.
type RegistryCache struct {
	reg *registry.Registry
	ttl time.Duration
}

// NewRegistryCache wraps reg, persisting entries for ttl.
func NewRegistryCache(reg *registry.Registry, ttl time.Duration) *RegistryCache {
	return &RegistryCache{reg: reg, ttl: ttl}
}

func (c *RegistryCache) Get(key string) (string, bool) {
	rec, found, err := c.reg.RobotsCacheGet(key)
	if err != nil || !found {
		return "", false
	}
	return rec.RulesRaw, true
}

func (c *RegistryCache) Put(key string, value string) {
	c.reg.RobotsCachePut(registry.RobotsRecord{
		Host:       key,
		RulesRaw:   value,
		TTLSeconds: int64(c.ttl.Seconds()),
	})
}

var _ cache.Cache = (*RegistryCache)(nil)
