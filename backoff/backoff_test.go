package backoff

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qiniu/go-sdk-core/retrier"
)

func TestFixed(t *testing.T) {
	f := Fixed{Duration: 250 * time.Millisecond}
	assert.Equal(t, 250*time.Millisecond, f.Time(Attempt{RetriedOnCurrentEndpoint: 5}))
}

func TestExponentialDoublesPerRetryOnCurrentEndpoint(t *testing.T) {
	e := Exponential{Base: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, e.Time(Attempt{RetriedOnCurrentEndpoint: 0}))
	assert.Equal(t, 200*time.Millisecond, e.Time(Attempt{RetriedOnCurrentEndpoint: 1}))
	assert.Equal(t, 400*time.Millisecond, e.Time(Attempt{RetriedOnCurrentEndpoint: 2}))
}

func TestRandomizedStaysWithinBounds(t *testing.T) {
	inner := Fixed{Duration: time.Second}
	r := Randomized{Inner: inner, Min: 0.5, Max: 1.5, Rand: rand.New(rand.NewSource(1))}
	for i := 0; i < 100; i++ {
		d := r.Time(Attempt{})
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}

func TestLimitedCaps(t *testing.T) {
	l := Limited{Inner: Fixed{Duration: time.Hour}, Max: time.Second}
	assert.Equal(t, time.Second, l.Time(Attempt{}))
}

func TestLimitedPassesThroughWhenUnderCap(t *testing.T) {
	l := Limited{Inner: Fixed{Duration: time.Millisecond}, Max: time.Second}
	assert.Equal(t, time.Millisecond, l.Time(Attempt{}))
}

func TestNewDefaultRespectsOptions(t *testing.T) {
	b := NewDefault(MinSleep(100*time.Millisecond), MaxSleep(time.Second), DecayConstant(2))
	for i := 0; i < 20; i++ {
		d := b.Time(Attempt{Decision: retrier.RetryRequest, RetriedOnCurrentEndpoint: 10})
		assert.LessOrEqual(t, d, time.Second)
	}
}
