package uploader

import "sync"

// PartitionFeedback reports how one part upload went, letting an
// adaptive DataPartitionProvider tune future part sizes (spec §4.6
// "Part-size selection... Feedback may adapt future sizes").
type PartitionFeedback struct {
	OkBytes int64
	Elapsed int64 // nanoseconds
	Err     error
}

// DataPartitionProvider returns the size of the next part to slice off
// the data source.
type DataPartitionProvider interface {
	NextSize() int64
	Feedback(PartitionFeedback)
}

// FixedPartition always returns the same size.
type FixedPartition struct {
	Size int64
}

func (f FixedPartition) NextSize() int64          { return f.Size }
func (FixedPartition) Feedback(PartitionFeedback) {}

// MultipliedPartition snaps every returned size to a multiple of M,
// rounding the base size up (spec: "multiplied (snap to a multiple of
// M, typical M = 4 MiB)").
type MultipliedPartition struct {
	Base     int64
	Multiple int64
}

func (m MultipliedPartition) NextSize() int64 {
	if m.Multiple <= 0 {
		return m.Base
	}
	rem := m.Base % m.Multiple
	if rem == 0 {
		return m.Base
	}
	return m.Base + (m.Multiple - rem)
}

func (MultipliedPartition) Feedback(PartitionFeedback) {}

// LimitedPartition clamps an inner provider's size to [Min, Max].
type LimitedPartition struct {
	Inner    DataPartitionProvider
	Min, Max int64
}

func (l LimitedPartition) NextSize() int64 {
	size := l.Inner.NextSize()
	if l.Min > 0 && size < l.Min {
		size = l.Min
	}
	if l.Max > 0 && size > l.Max {
		size = l.Max
	}
	return size
}

func (l LimitedPartition) Feedback(fb PartitionFeedback) { l.Inner.Feedback(fb) }

// ConcurrencyFeedback mirrors PartitionFeedback for concurrency-level
// adaptation.
type ConcurrencyFeedback struct {
	OkBytes int64
	Elapsed int64
	Err     error
}

// ConcurrencyProvider returns the permitted number of concurrent part
// uploads.
type ConcurrencyProvider interface {
	Level() int
	Feedback(ConcurrencyFeedback)
}

// FixedConcurrency always returns the same level.
type FixedConcurrency struct {
	N int
}

func (f FixedConcurrency) Level() int                 { return f.N }
func (FixedConcurrency) Feedback(ConcurrencyFeedback) {}

// AdjustableConcurrency is a FixedConcurrency that can be changed
// concurrently, used by tests and by callers who want to throttle
// dynamically without implementing a full adaptive strategy.
type AdjustableConcurrency struct {
	mu sync.Mutex
	n  int
}

func NewAdjustableConcurrency(n int) *AdjustableConcurrency {
	return &AdjustableConcurrency{n: n}
}

func (a *AdjustableConcurrency) Level() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

func (a *AdjustableConcurrency) Set(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n = n
}

func (a *AdjustableConcurrency) Feedback(ConcurrencyFeedback) {}

var _ ConcurrencyProvider = (*AdjustableConcurrency)(nil)
var _ DataPartitionProvider = FixedPartition{}
var _ DataPartitionProvider = MultipliedPartition{}
var _ DataPartitionProvider = LimitedPartition{}
