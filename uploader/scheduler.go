package uploader

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qiniu/go-sdk-core/uploader/source"
)

// Scheduler drives the part-by-part upload loop over a DataSource
// (spec §4.7): Serial collects sequentially, Concurrent fans out
// across a pool of workers.
type Scheduler interface {
	// Run slices src via partition, uploading each part through
	// session. resumed maps a slice's Offset to an already-persisted
	// UploadedPart (spec §4.6 "emit it... without network I/O");
	// onPartDone fires once per freshly uploaded (non-resumed) part, in
	// completion order, so the caller can append it to the recorder
	// journal and invoke user callbacks.
	Run(ctx context.Context, src source.DataSource, session Session, partition DataPartitionProvider, concurrency ConcurrencyProvider, resumed map[int64]UploadedPart, onPartDone func(UploadedPart)) ([]UploadedPart, error)
}

// Serial uploads one part at a time and completes in slice order
// (spec §4.7 "While upload_part returns Some, collect").
type Serial struct{}

func (Serial) Run(ctx context.Context, src source.DataSource, session Session, partition DataPartitionProvider, _ ConcurrencyProvider, resumed map[int64]UploadedPart, onPartDone func(UploadedPart)) ([]UploadedPart, error) {
	var parts []UploadedPart
	for {
		slice, ok, err := src.Slice(partition.NextSize())
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if persisted, found := resumed[slice.Offset]; found {
			parts = append(parts, persisted)
			continue
		}

		start := time.Now()
		data, err := readSlice(slice)
		if err != nil {
			return nil, err
		}
		part, err := session.UploadPart(ctx, slice.PartNumber, slice.Offset, slice.Length, data)
		partition.Feedback(PartitionFeedback{OkBytes: slice.Length, Elapsed: int64(time.Since(start)), Err: err})
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		if onPartDone != nil {
			onPartDone(part)
		}
	}
	return parts, nil
}

// Concurrent runs N workers pulling slices under a shared mutex,
// uploading in parallel, and collecting results under a second mutex
// (spec §4.7 "Concurrent"). The first non-retryable error observed by
// any worker cancels the rest via the group's context.
type Concurrent struct{}

func (Concurrent) Run(ctx context.Context, src source.DataSource, session Session, partition DataPartitionProvider, concurrency ConcurrencyProvider, resumed map[int64]UploadedPart, onPartDone func(UploadedPart)) ([]UploadedPart, error) {
	n := concurrency.Level()
	if n < 1 {
		n = 1
	}

	var sliceMu sync.Mutex
	var resultMu sync.Mutex
	var parts []UploadedPart

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for {
				sliceMu.Lock()
				slice, ok, err := src.Slice(partition.NextSize())
				sliceMu.Unlock()
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}

				if persisted, found := resumed[slice.Offset]; found {
					resultMu.Lock()
					parts = append(parts, persisted)
					resultMu.Unlock()
					continue
				}

				start := time.Now()
				data, err := readSlice(slice)
				if err != nil {
					return err
				}
				part, err := session.UploadPart(gctx, slice.PartNumber, slice.Offset, slice.Length, data)
				partition.Feedback(PartitionFeedback{OkBytes: slice.Length, Elapsed: int64(time.Since(start)), Err: err})
				if err != nil {
					return err
				}

				resultMu.Lock()
				parts = append(parts, part)
				resultMu.Unlock()
				if onPartDone != nil {
					onPartDone(part)
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func readSlice(s source.Slice) ([]byte, error) {
	r, err := s.Reader()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, s.Length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

var _ Scheduler = Serial{}
var _ Scheduler = Concurrent{}
