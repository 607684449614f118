// Package backoff computes the sleep duration between retries (spec
// §4.4, component C5). Shaped after the teacher's lib/pacer.Calculator:
// a narrow interface plus small decorators, configured with functional
// options rather than a monolithic struct literal.
package backoff

import (
	"math/rand"
	"time"

	"github.com/qiniu/go-sdk-core/retrier"
)

// Attempt carries what a Backoff needs to compute a sleep duration.
type Attempt struct {
	Decision                 retrier.Decision
	Err                      error
	RetriedOnCurrentEndpoint int
	RetriedTotal             int
}

// Backoff computes how long to sleep before the next attempt.
type Backoff interface {
	Time(a Attempt) time.Duration
}

// BackoffFunc adapts a function to a Backoff.
type BackoffFunc func(a Attempt) time.Duration

func (f BackoffFunc) Time(a Attempt) time.Duration { return f(a) }

// Fixed always returns the same duration, regardless of attempt count.
type Fixed struct {
	Duration time.Duration
}

func (f Fixed) Time(Attempt) time.Duration { return f.Duration }

// Exponential computes base * 2^retried_on_current_endpoint, per spec
// §4.4. Base defaults to 100ms, matching the teacher's defaultMinSleep.
type Exponential struct {
	Base time.Duration
}

const defaultExponentialBase = 100 * time.Millisecond

func (e Exponential) Time(a Attempt) time.Duration {
	base := e.Base
	if base <= 0 {
		base = defaultExponentialBase
	}
	shift := a.RetriedOnCurrentEndpoint
	if shift > 32 {
		shift = 32 // guard against overflow for pathologically long retry runs
	}
	return base << uint(shift)
}

// Randomized decorates a Backoff, jittering its result uniformly over
// [Min*d, Max*d). Defaults (1/2, 3/2) per spec §4.4.
type Randomized struct {
	Inner Backoff
	Min   float64
	Max   float64
	Rand  *rand.Rand
}

const (
	defaultRandomizedMin = 0.5
	defaultRandomizedMax = 1.5
)

func (r Randomized) Time(a Attempt) time.Duration {
	d := r.Inner.Time(a)
	min := r.Min
	if min <= 0 {
		min = defaultRandomizedMin
	}
	max := r.Max
	if max <= 0 {
		max = defaultRandomizedMax
	}
	rnd := r.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	lo := float64(d) * min
	hi := float64(d) * max
	if hi <= lo {
		return time.Duration(lo)
	}
	return time.Duration(lo + rnd.Float64()*(hi-lo))
}

// Limited decorates a Backoff, capping its result at Max.
type Limited struct {
	Inner Backoff
	Max   time.Duration
}

func (l Limited) Time(a Attempt) time.Duration {
	d := l.Inner.Time(a)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Option configures a Default backoff built via NewDefault, mirroring
// the teacher's functional-options pacer construction
// (pacer.MinSleep/MaxSleep/DecayConstant).
type Option func(*defaultConfig)

type defaultConfig struct {
	minSleep      time.Duration
	maxSleep      time.Duration
	decayConstant uint
}

// MinSleep sets the exponential backoff's base duration.
func MinSleep(d time.Duration) Option {
	return func(c *defaultConfig) { c.minSleep = d }
}

// MaxSleep caps the final computed duration.
func MaxSleep(d time.Duration) Option {
	return func(c *defaultConfig) { c.maxSleep = d }
}

// DecayConstant divides the MinSleep base (0 is treated as 1); bigger
// values give shorter delays. The doubling per retry is unchanged.
func DecayConstant(n uint) Option {
	return func(c *defaultConfig) { c.decayConstant = n }
}

// NewDefault builds the exponential + randomized + limited composition.
// httpclient.Executor does not fall back to it: the caller sets
// Executor.Backoff explicitly.
func NewDefault(opts ...Option) Backoff {
	cfg := defaultConfig{
		minSleep:      defaultExponentialBase,
		maxSleep:      10 * time.Second,
		decayConstant: 1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	decay := cfg.decayConstant
	if decay == 0 {
		decay = 1
	}
	base := cfg.minSleep / time.Duration(decay)
	return Limited{
		Inner: Randomized{Inner: Exponential{Base: base}},
		Max:   cfg.maxSleep,
	}
}
