// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/wneessen/waybar-locate/internal/position"
)

// coordPrecision is the precision used to quantize coordinates (0.0001 degrees ≈ 11 m).
// Readings within the same quantization cell resolve to the same address entry.
const coordPrecision = 1e-4

type cacheKey struct {
	Provider string
	LatQ     int32
	LonQ     int32
}

type cacheEntry struct {
	Address Address
	Expiry  time.Time
}

// CachedResolver wraps a Resolver with a TTL-based in-memory cache keyed on quantized
// coordinates. Periodic re-locates from an unchanged position are answered from the
// cache instead of hitting the geocoding backend again.
type CachedResolver struct {
	resolver Resolver
	ttlHit   time.Duration
	ttlMiss  time.Duration

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry
}

// NewCachedResolver returns a caching wrapper around the given resolver. Successful
// lookups are kept for ttlHit, lookups that found no address for ttlMiss.
func NewCachedResolver(resolver Resolver, ttlHit, ttlMiss time.Duration) *CachedResolver {
	return &CachedResolver{
		resolver: resolver,
		ttlHit:   ttlHit,
		ttlMiss:  ttlMiss,
		cache:    make(map[cacheKey]cacheEntry),
	}
}

func (c *CachedResolver) Name() string {
	return "resolver cache using " + c.resolver.Name()
}

func (c *CachedResolver) Reverse(ctx context.Context, reading position.Reading) (Address, error) {
	key := newKey(c.resolver.Name(), reading.Lat, reading.Lon)

	c.mu.RLock()
	entry, ok := c.cache[key]
	if ok && time.Now().Before(entry.Expiry) {
		addr := entry.Address
		c.mu.RUnlock()
		addr.CacheHit = true
		return addr, nil
	}
	c.mu.RUnlock()

	addr, err := c.resolver.Reverse(ctx, reading)
	if err != nil {
		return addr, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttlHit
	if !addr.Found {
		ttl = c.ttlMiss
	}
	c.cache[key] = cacheEntry{
		Address: addr,
		Expiry:  time.Now().Add(ttl),
	}

	return addr, nil
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func newKey(provider string, lat, lon float64) cacheKey {
	return cacheKey{
		Provider: provider,
		LatQ:     quantizeCoord(lat),
		LonQ:     quantizeCoord(lon),
	}
}
