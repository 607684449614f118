package uploader

import (
	"context"
	"encoding/json"
)

// UploadedPart is the abstract per-part record of spec §3
// ("`UploadedPart{offset, size, resumed?}` interface"), wrapping
// whichever protocol-specific payload (v1 ctx or v2 etag) the
// recorder persists and Complete later needs.
type UploadedPart struct {
	PartNumber int             `json:"part_number"`
	Offset     int64           `json:"offset"`
	Size       int64           `json:"size"`
	RecordedAt int64           `json:"recorded_at"`
	Resumed    bool            `json:"-"`
	Payload    json.RawMessage `json:"payload"`
}

// Session drives one in-progress upload against a specific protocol
// (v1 or v2), hiding the block/ctx vs upload-id/part-number mechanics
// behind a uniform shape the scheduler and UploadManager can share.
type Session interface {
	// UploadPart submits one slice's bytes for partNumber/offset and
	// returns the resulting UploadedPart.
	UploadPart(ctx context.Context, partNumber int, offset, size int64, data []byte) (UploadedPart, error)
	// Complete finishes the upload. parts must be sorted by PartNumber
	// and dense over the completed prefix (spec §4.6).
	Complete(ctx context.Context, parts []UploadedPart) (json.RawMessage, error)
	// Abort cancels an abandoned session; a no-op where the protocol
	// has no server-side session to cancel (v1).
	Abort(ctx context.Context) error
	// Identity returns the JSON payload persisted as the recorder's
	// first line, letting a later run rebuild this same Session.
	Identity() json.RawMessage
}

// Protocol starts or resumes a Session for a given object. totalSize
// may be 0 if unknown (an unseekable source).
type Protocol interface {
	Start(ctx context.Context, params ObjectParams, totalSize int64) (Session, error)
	Resume(ctx context.Context, params ObjectParams, totalSize int64, identity json.RawMessage) (Session, bool, error)
}
