package endpoint

import (
	"context"
	"sync"
	"time"
)

// ServiceKind identifies which API family an Endpoints list serves.
// Grounded on original_source/http-client/src/regions/region.rs, which
// maps each service kind to its own Endpoints.
type ServiceKind int

const (
	ServiceUpload ServiceKind = iota
	ServiceIO
	ServiceBucketManagement
	ServiceAPI
)

// Region maps each service kind to its own Endpoints (spec §3).
type Region struct {
	RegionID  string
	Services  map[ServiceKind]Endpoints
	TTL       time.Duration // 0 means "does not expire"
	createdAt time.Time
}

// NewRegion builds a Region, stamping its creation time for TTL
// purposes.
func NewRegion(id string, services map[ServiceKind]Endpoints, ttl time.Duration) Region {
	return Region{RegionID: id, Services: services, TTL: ttl, createdAt: time.Now()}
}

// Endpoints returns the endpoints for kind, and whether the region
// defines any for it.
func (r Region) Endpoints(kind ServiceKind) (Endpoints, bool) {
	e, ok := r.Services[kind]
	return e, ok
}

func (r Region) expired(now time.Time) bool {
	if r.TTL <= 0 {
		return false
	}
	return now.After(r.createdAt.Add(r.TTL))
}

// RegionsProvider resolves a bucket (or other scoping key) to the set
// of candidate Regions that may serve it.
type RegionsProvider interface {
	Regions(ctx context.Context, bucket string) ([]Region, error)
}

// RegionsProviderFunc adapts a function to a RegionsProvider.
type RegionsProviderFunc func(ctx context.Context, bucket string) ([]Region, error)

func (f RegionsProviderFunc) Regions(ctx context.Context, bucket string) ([]Region, error) {
	return f(ctx, bucket)
}

// CachedRegionsProvider is a TTL-caching decorator over a
// RegionsProvider, grounded on
// original_source/http-client/src/regions/provider/cached_regions_provider.rs
// and cached_all_regions_provider.rs (supplemented feature, see
// SPEC_FULL.md §13.2).
type CachedRegionsProvider struct {
	inner RegionsProvider
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	regions []Region
	at      time.Time
}

// NewCachedRegionsProvider wraps inner with a TTL cache keyed on bucket.
func NewCachedRegionsProvider(inner RegionsProvider, ttl time.Duration) *CachedRegionsProvider {
	return &CachedRegionsProvider{
		inner: inner,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedEntry),
	}
}

// Regions implements RegionsProvider, serving from cache when fresh.
func (c *CachedRegionsProvider) Regions(ctx context.Context, bucket string) ([]Region, error) {
	now := c.now()
	c.mu.Lock()
	if entry, ok := c.cache[bucket]; ok && now.Sub(entry.at) < c.ttl {
		c.mu.Unlock()
		return entry.regions, nil
	}
	c.mu.Unlock()

	regions, err := c.inner.Regions(ctx, bucket)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache[bucket] = cachedEntry{regions: regions, at: now}
	c.mu.Unlock()
	return regions, nil
}

// EndpointsProvider resolves to a single Endpoints for a given service,
// the contract the request executor (C6) consumes directly.
type EndpointsProvider interface {
	EndpointsFor(ctx context.Context, kind ServiceKind) (Endpoints, error)
}

// Static is an EndpointsProvider returning a fixed Endpoints regardless
// of service kind — the common case when a caller already knows the
// endpoint (spec §4.5's "EndpointsProvider" input).
type Static Endpoints

func (s Static) EndpointsFor(_ context.Context, _ ServiceKind) (Endpoints, error) {
	return Endpoints(s), nil
}

// FromRegion adapts a Region (optionally refreshed from a
// RegionsProvider) into an EndpointsProvider for a single service kind.
type FromRegion struct {
	Provider RegionsProvider
	Bucket   string
	Kind     ServiceKind
}

func (f FromRegion) EndpointsFor(ctx context.Context, kind ServiceKind) (Endpoints, error) {
	regions, err := f.Provider.Regions(ctx, f.Bucket)
	if err != nil {
		return Endpoints{}, err
	}
	now := time.Now()
	for _, r := range regions {
		if r.expired(now) {
			continue
		}
		if e, ok := r.Endpoints(kind); ok {
			return e, nil
		}
	}
	return Endpoints{}, nil
}
