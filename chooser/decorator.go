package chooser

import (
	"context"
	"math/rand"
	"net"
	"time"
)

// Shuffled decorates a Chooser, randomizing the order of whatever the
// inner Chooser returns.
type Shuffled struct {
	Inner Chooser
	Rand  *rand.Rand // nil uses a time-seeded source
}

func (s Shuffled) Choose(ctx context.Context, ips []net.IP) []net.IP {
	chosen := s.Inner.Choose(ctx, ips)
	r := s.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return shuffle(chosen, r)
}

func (s Shuffled) Feedback(ctx context.Context, fb Feedback) {
	s.Inner.Feedback(ctx, fb)
}

// defaultNeverEmptyHandedRatio is the r in ceil(r*n), per spec §4.2.
const defaultNeverEmptyHandedRatio = 0.5

// NeverEmptyHanded decorates a Chooser to satisfy invariant 3: given a
// non-empty input, Choose never returns an empty slice. If the inner
// Chooser blacklists every candidate, it falls back to a random subset
// of size ceil(Ratio * n) from the original input rather than leaving
// the caller with nothing to try.
type NeverEmptyHanded struct {
	Inner Chooser
	Ratio float64 // default 0.5
	Rand  *rand.Rand
}

func (n NeverEmptyHanded) Choose(ctx context.Context, ips []net.IP) []net.IP {
	chosen := n.Inner.Choose(ctx, ips)
	if len(chosen) > 0 || len(ips) == 0 {
		return chosen
	}
	r := n.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ratio := n.Ratio
	if ratio <= 0 {
		ratio = defaultNeverEmptyHandedRatio
	}
	shuffled := shuffle(ips, r)
	count := ceilRatio(ratio, len(ips))
	if count == 0 {
		count = 1
	}
	return shuffled[:count]
}

func (n NeverEmptyHanded) Feedback(ctx context.Context, fb Feedback) {
	n.Inner.Feedback(ctx, fb)
}
