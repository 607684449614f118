// Package recorder implements the resumable upload journal of spec
// §4.8: an append-only, line-oriented JSON log keyed by a data
// source's digest, letting an interrupted multi-part upload resume
// without re-sending already-committed parts.
package recorder

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/qiniu/go-sdk-core/uploader/source"
)

// ErrUnsupported is returned by every method of Dummy, and by any
// implementation that cannot honor a recorder operation.
var ErrUnsupported = errors.New("recorder: unsupported")

// PartRecord is one completed part, persisted after every successful
// upload of a chunk so a later run can skip it.
type PartRecord struct {
	PartNumber int             `json:"part_number"`
	Offset     int64           `json:"offset"`
	Size       int64           `json:"size"`
	RecordedAt int64           `json:"recorded_at"` // unix seconds
	Payload    json.RawMessage `json:"payload"`     // protocol-specific (ctx, etag, ...)
}

// Expired reports whether this record is older than ttl as of now.
func (p PartRecord) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Unix()-p.RecordedAt > int64(ttl.Seconds())
}

// ReadMedium exposes a previously persisted journal for a source key.
type ReadMedium interface {
	// Identity returns the first-line identity record (upload-id,
	// bucket, key, etc. — protocol specific), if any was written.
	Identity() (json.RawMessage, bool)
	// Parts returns every part record parsed from the log, in file
	// order. A malformed line truncates the result but does not error.
	Parts() []PartRecord
	Close() error
}

// AppendMedium is a handle open for writing: either a brand-new
// journal (identity not yet written) or an existing one being
// appended to.
type AppendMedium interface {
	// WriteIdentity writes the first line. Only valid once, on a
	// freshly created medium.
	WriteIdentity(identity json.RawMessage) error
	// AppendPart appends one part record line.
	AppendPart(rec PartRecord) error
	Close() error
}

// Recorder is the storage-agnostic contract of spec §4.8.
type Recorder interface {
	OpenForRead(key source.Key) (ReadMedium, bool, error)
	OpenForAppend(key source.Key) (AppendMedium, error)
	OpenForCreateNew(key source.Key) (AppendMedium, error)
	Delete(key source.Key) error
}

// Dummy never persists anything; every call reports ErrUnsupported so
// callers degrade to a non-resumable run (spec §4.8 failure mode).
type Dummy struct{}

func (Dummy) OpenForRead(source.Key) (ReadMedium, bool, error)  { return nil, false, ErrUnsupported }
func (Dummy) OpenForAppend(source.Key) (AppendMedium, error)    { return nil, ErrUnsupported }
func (Dummy) OpenForCreateNew(source.Key) (AppendMedium, error) { return nil, ErrUnsupported }
func (Dummy) Delete(source.Key) error                           { return ErrUnsupported }

var _ Recorder = Dummy{}
