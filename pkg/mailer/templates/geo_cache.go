package templates

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedResolver remembers lookups so a burst of notices from one address
// costs a single upstream call. Failures are kept for a shorter time.
type CachedResolver struct {
	next      GeoResolver
	cache     *cache.Cache
	failedTTL time.Duration
}

type geoResult struct {
	geo Geo
	err error
}

func NewCachedResolver(next GeoResolver, ttl time.Duration) *CachedResolver {
	return &CachedResolver{
		next:      next,
		cache:     cache.New(ttl, 2*ttl),
		failedTTL: ttl / 10,
	}
}

func (r *CachedResolver) Lookup(ctx context.Context, ip string) (Geo, error) {
	if v, ok := r.cache.Get(ip); ok {
		res := v.(geoResult)
		return res.geo, res.err
	}
	g, err := r.next.Lookup(ctx, ip)
	if ctx.Err() != nil {
		return g, err
	}
	ttl := cache.DefaultExpiration
	if err != nil {
		ttl = r.failedTTL
	}
	r.cache.Set(ip, geoResult{geo: g, err: err}, ttl)
	return g, err
}
