// Package resolver turns domain names into candidate IPs (spec §4.1,
// component C2). Implementations compose via decorators, the same way
// the teacher composes pacer calculators and rclone backends wrap
// io.Reader chains: a narrow single-method interface plus small
// wrapping structs, never a single mega-interface.
package resolver

import (
	"context"
	"math/rand"
	"net"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/qiniu/go-sdk-core/internal/qlog"
	"github.com/qiniu/go-sdk-core/qerr"
)

// Options carries per-call resolution hints.
type Options struct {
	// Reserved for future per-call knobs (e.g. address family
	// preference); present so Resolver's signature doesn't need to
	// change if one is added.
}

// Resolver resolves a domain name to its candidate IPs.
type Resolver interface {
	Resolve(ctx context.Context, domain string, opts Options) ([]net.IP, error)
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(ctx context.Context, domain string, opts Options) ([]net.IP, error)

func (f ResolverFunc) Resolve(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
	return f(ctx, domain, opts)
}

// System resolves via the standard library's resolver (system DNS, or
// Go's pure-Go resolver depending on GOOS/build settings).
type System struct {
	Resolver *net.Resolver // nil means net.DefaultResolver
}

func (s System) Resolve(ctx context.Context, domain string, _ Options) ([]net.IP, error) {
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupIPAddr(ctx, domain)
	if err != nil {
		return nil, qerr.New(classifyLookupError(err), err)
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

func classifyLookupError(err error) qerr.Kind {
	var dnsErr *net.DNSError
	if asDNSError(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return qerr.KindUnknownHost
		}
		if dnsErr.IsTimeout {
			return qerr.KindTimeout
		}
		return qerr.KindDNSServerError
	}
	return qerr.KindUnknownHost
}

func asDNSError(err error, target **net.DNSError) bool {
	for err != nil {
		if d, ok := err.(*net.DNSError); ok {
			*target = d
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Shuffled decorates a Resolver, randomizing the order of the returned
// IPs so repeated calls don't hammer the first address in the list.
type Shuffled struct {
	Inner Resolver
	Rand  *rand.Rand // nil builds a new time-seeded source per call
}

func (s Shuffled) Resolve(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
	ips, err := s.Inner.Resolve(ctx, domain, opts)
	if err != nil {
		return nil, err
	}
	out := make([]net.IP, len(ips))
	copy(out, ips)
	r := s.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out, nil
}

// Timeout decorates a Resolver, bounding every call by d and converting
// a deadline exceeded into qerr.KindTimeout (spec §4.1).
type Timeout struct {
	Inner   Resolver
	Timeout time.Duration // default 5s, per spec §6
}

const defaultResolveTimeout = 5 * time.Second

func (t Timeout) Resolve(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
	d := t.Timeout
	if d <= 0 {
		d = defaultResolveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		ips []net.IP
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ips, err := t.Inner.Resolve(ctx, domain, opts)
		ch <- result{ips, err}
	}()
	select {
	case <-ctx.Done():
		return nil, qerr.New(qerr.KindTimeout, ctx.Err())
	case r := <-ch:
		return r.ips, r.err
	}
}

// Cached decorates a Resolver with a TTL cache keyed on domain name.
// Concurrent misses on the same domain are deduplicated via
// singleflight so N callers resolving the same cold domain issue one
// lookup, matching spec §5's "reads lock-free, misses take a per-key
// lock to deduplicate resolution" requirement.
type Cached struct {
	Inner Resolver
	cache *gocache.Cache
	group singleflight.Group
}

// NewCached wraps inner with a TTL cache. ttl is the lifetime applied
// to every entry (spec §6's "cache lifetime" knob); cleanupInterval
// controls how often expired entries are swept.
func NewCached(inner Resolver, ttl, cleanupInterval time.Duration) *Cached {
	return &Cached{
		Inner: inner,
		cache: gocache.New(ttl, cleanupInterval),
	}
}

func (c *Cached) Resolve(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
	if v, ok := c.cache.Get(domain); ok {
		return v.([]net.IP), nil
	}
	v, err, _ := c.group.Do(domain, func() (any, error) {
		ips, err := c.Inner.Resolve(ctx, domain, opts)
		if err != nil {
			return nil, err
		}
		c.cache.SetDefault(domain, ips)
		return ips, nil
	})
	if err != nil {
		qlog.Debugf(domain, "resolve failed: %v", err)
		return nil, err
	}
	return v.([]net.IP), nil
}
