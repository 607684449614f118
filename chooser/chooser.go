// Package chooser filters and orders candidate IPs using a blacklist
// with positive/negative feedback (spec §4.2, component C3).
package chooser

import (
	"context"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"
)

// Feedback reports the outcome of using a set of IPs for an attempt.
type Feedback struct {
	IPs     []net.IP
	Retried int
	Error   error // non-nil means the attempt failed
	Metrics map[string]any
}

// Chooser narrows and orders a set of candidate IPs and learns from
// feedback about which ones are currently bad (spec §4.2).
type Chooser interface {
	// Choose never returns more peers than given, and — per invariant 3
	// — never returns an empty set for a non-empty input; that guarantee
	// is provided by wrapping with NeverEmptyHanded, not by every
	// Chooser individually.
	Choose(ctx context.Context, ips []net.IP) []net.IP
	Feedback(ctx context.Context, fb Feedback)
}

// key identifies a blacklist entry: a single IP or a subnet, plus an
// optional port (blacklisting is sometimes port-specific, e.g. when a
// single service on a shared host is down).
type key struct {
	network string // string form of net.IPNet or net.IP, whichever applies
	port    int
}

type blacklistEntry struct {
	blockedAt time.Time
}

// blacklist is the shared, lock-light map described in spec §5: reads
// are lock-free (sync.Map), and the shrink decision is additionally
// guarded by a try-lock so it never blocks readers or writers.
type blacklist struct {
	m             sync.Map // key -> blacklistEntry
	blockDuration time.Duration
	shrinkEvery   time.Duration
	shrinkSize    int

	shrinkMu     sync.Mutex // held only while a shrink is in flight
	shrinkBusy   int32
	lastShrinkAt atomicTime
	now          func() time.Time
}

const (
	defaultBlockDuration = 30 * time.Second
	defaultShrinkEvery   = 120 * time.Second
	defaultShrinkSize    = 100
)

func newBlacklist(blockDuration, shrinkEvery time.Duration, shrinkSize int) *blacklist {
	if blockDuration <= 0 {
		blockDuration = defaultBlockDuration
	}
	if shrinkEvery <= 0 {
		shrinkEvery = defaultShrinkEvery
	}
	if shrinkSize <= 0 {
		shrinkSize = defaultShrinkSize
	}
	b := &blacklist{
		blockDuration: blockDuration,
		shrinkEvery:   shrinkEvery,
		shrinkSize:    shrinkSize,
		now:           time.Now,
	}
	b.lastShrinkAt.store(b.now())
	return b
}

func (b *blacklist) insert(k key) {
	b.m.Store(k, blacklistEntry{blockedAt: b.now()})
}

func (b *blacklist) remove(k key) {
	b.m.Delete(k)
}

// blocked reports whether k is currently blocked, and as a side effect
// may trigger an asynchronous shrink if an expired entry was observed
// and the size/interval conditions of spec §4.2 hold.
func (b *blacklist) blocked(k key) bool {
	v, ok := b.m.Load(k)
	if !ok {
		return false
	}
	entry := v.(blacklistEntry)
	now := b.now()
	if now.After(entry.blockedAt.Add(b.blockDuration)) {
		b.maybeShrink(now)
		return false
	}
	return true
}

// size counts entries; O(n), only used by the shrink gate and tests.
func (b *blacklist) size() int {
	n := 0
	b.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// maybeShrink spawns a background sweep when both the size threshold
// and the minimum interval have elapsed (spec's "stricter union" of the
// two source cadences — see DESIGN.md Open Question 3). It never blocks
// the caller: if a shrink is already running, or the try-lock can't be
// acquired, it's a no-op.
func (b *blacklist) maybeShrink(now time.Time) {
	if b.size() < b.shrinkSize {
		return
	}
	if now.Sub(b.lastShrinkAt.load()) < b.shrinkEvery {
		return
	}
	if !b.shrinkMu.TryLock() {
		return
	}
	b.lastShrinkAt.store(now)
	go func() {
		defer b.shrinkMu.Unlock()
		b.shrink(now)
	}()
}

// shrink removes every expired entry. Idempotent: a second call right
// after the first finds nothing left to remove (invariant 4 test).
func (b *blacklist) shrink(now time.Time) {
	b.m.Range(func(k, v any) bool {
		entry := v.(blacklistEntry)
		if now.After(entry.blockedAt.Add(b.blockDuration)) {
			b.m.Delete(k)
		}
		return true
	})
}

// ShrinkNow forces an immediate synchronous shrink, used by tests to
// verify invariant 4 (shrink idempotence) deterministically.
func (b *blacklist) ShrinkNow() {
	b.shrink(b.now())
}

// atomicTime is a tiny helper since time.Time isn't safe to share via
// atomic.Value across goroutines without boxing.
type atomicTime struct {
	mu sync.Mutex
	t  time.Time
}

func (a *atomicTime) store(t time.Time) {
	a.mu.Lock()
	a.t = t
	a.mu.Unlock()
}

func (a *atomicTime) load() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.t
}

// shuffle returns a shuffled copy of ips.
func shuffle(ips []net.IP, r *rand.Rand) []net.IP {
	out := make([]net.IP, len(ips))
	copy(out, ips)
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ceilRatio computes ceil(r*n), clamped to [0, n].
func ceilRatio(r float64, n int) int {
	if n <= 0 {
		return 0
	}
	v := int(math.Ceil(r * float64(n)))
	if v > n {
		v = n
	}
	if v < 0 {
		v = 0
	}
	return v
}
