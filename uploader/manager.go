// Package uploader implements the resumable multi-part upload engine
// of spec §4.6/§4.7: a state machine (Fresh → Initialized →
// Uploading → Completed|Failed) built on top of a Session (v1 or v2
// protocol), a DataSource, a Scheduler, and a ResumableRecorder.
package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/qiniu/go-sdk-core/internal/qlog"
	"github.com/qiniu/go-sdk-core/qerr"
	"github.com/qiniu/go-sdk-core/uploader/recorder"
	"github.com/qiniu/go-sdk-core/uploader/source"
)

// identityRecord is the recorder's first-line payload (spec §3
// "Resumable record... identity record {source_size, source_mtime,
// upload_id-or-equivalent, endpoints}"); Protocol wraps its own
// session identity inside Session.
type identityRecord struct {
	SourceSize  int64           `json:"source_size"`
	SourceMTime int64           `json:"source_mtime"`
	Session     json.RawMessage `json:"session"`
}

// UploadManager builds an Uploader bound to a fixed Protocol,
// Scheduler, and Recorder, letting a caller reuse the same wiring
// across many uploads (spec §3 "Data flow").
type UploadManager struct {
	Protocol    Protocol
	Recorder    recorder.Recorder
	Scheduler   Scheduler
	Partition   DataPartitionProvider
	Concurrency ConcurrencyProvider
	PartTTL     time.Duration
}

// NewUploader builds an Uploader for src, ready to run Upload.
func (m *UploadManager) NewUploader(src source.DataSource, callbacks Callbacks) *Uploader {
	rec := m.Recorder
	if rec == nil {
		rec = recorder.Dummy{}
	}
	return &Uploader{
		protocol:    m.Protocol,
		source:      src,
		recorder:    rec,
		scheduler:   m.Scheduler,
		partition:   m.Partition,
		concurrency: m.Concurrency,
		partTTL:     m.PartTTL,
		callbacks:   callbacks,
	}
}

// Uploader drives one upload through Fresh → Initialized →
// Uploading → Completed|Failed.
type Uploader struct {
	protocol    Protocol
	source      source.DataSource
	recorder    recorder.Recorder
	scheduler   Scheduler
	partition   DataPartitionProvider
	concurrency ConcurrencyProvider
	partTTL     time.Duration
	callbacks   Callbacks
}

// Upload runs the whole state machine to completion and returns the
// parsed final-object JSON.
func (u *Uploader) Upload(ctx context.Context, params ObjectParams) (json.RawMessage, error) {
	key := u.source.SourceKey()
	totalSize, _ := u.source.TotalSize()

	session, resumedParts, appendMedium, err := u.initialize(ctx, key, params, totalSize)
	if err != nil {
		return nil, err
	}
	if appendMedium != nil {
		defer appendMedium.Close()
	}

	onPartDone := func(p UploadedPart) {
		p.RecordedAt = nowUnix()
		if appendMedium != nil {
			if err := appendMedium.AppendPart(recorder.PartRecord{
				PartNumber: p.PartNumber,
				Offset:     p.Offset,
				Size:       p.Size,
				RecordedAt: p.RecordedAt,
				Payload:    p.Payload,
			}); err != nil {
				qlog.Debugf(nil, "uploader: recorder append failed, continuing non-resumable: %v", err)
			}
		}
		u.callbacks.firePartUploaded(p)
	}

	parts, err := u.scheduler.Run(ctx, u.source, session, u.partition, u.concurrency, resumedParts, onPartDone)
	if err != nil {
		if isDeadSession(err) {
			_ = session.Abort(ctx)
			if key.Present {
				_ = u.recorder.Delete(key)
			}
		}
		return nil, err
	}

	result, err := session.Complete(ctx, parts)
	if err != nil {
		// Record is left on disk for a later retry, unless the
		// upload-id is dead, in which case it is deleted.
		if isDeadSession(err) && key.Present {
			_ = u.recorder.Delete(key)
		}
		return nil, err
	}
	if key.Present {
		if err := u.recorder.Delete(key); err != nil {
			qlog.Debugf(nil, "uploader: recorder cleanup failed: %v", err)
		}
	}
	return result, nil
}

// initialize implements spec §4.6 "Initialize": load and validate any
// existing record, or start a fresh session, opening a medium for
// appending newly completed parts when the recorder is usable.
func (u *Uploader) initialize(ctx context.Context, key source.Key, params ObjectParams, totalSize int64) (Session, map[int64]UploadedPart, recorder.AppendMedium, error) {
	resumed := map[int64]UploadedPart{}

	if !key.Present {
		session, err := u.protocol.Start(ctx, params, totalSize)
		return session, resumed, nil, err
	}

	if read, ok, err := u.recorder.OpenForRead(key); err == nil && ok {
		identity, idPresent := read.Identity()
		parts := read.Parts()
		read.Close()

		if idPresent {
			var ident identityRecord
			if err := json.Unmarshal(identity, &ident); err == nil &&
				ident.SourceSize == u.source.Size() && ident.SourceMTime == u.source.ModTime() {
				session, ok, err := u.protocol.Resume(ctx, params, totalSize, ident.Session)
				if err == nil && ok {
					now := time.Now()
					for _, p := range parts {
						if p.Expired(now, u.partTTL) {
							continue
						}
						up := UploadedPart{
							PartNumber: p.PartNumber,
							Offset:     p.Offset,
							Size:       p.Size,
							RecordedAt: p.RecordedAt,
							Resumed:    true,
							Payload:    p.Payload,
						}
						resumed[p.Offset] = up
						u.callbacks.fireResumed(up)
					}
					appendMedium, err := u.recorder.OpenForAppend(key)
					if err != nil {
						qlog.Debugf(nil, "uploader: cannot reopen recorder for append, continuing non-resumable: %v", err)
						return session, resumed, nil, nil
					}
					return session, resumed, appendMedium, nil
				}
			}
		}
		// Mismatch or unreadable: discard and start fresh (spec §3
		// invariant 5: "the record is discarded (not mutated)").
		_ = u.recorder.Delete(key)
	} else if err != nil {
		qlog.Debugf(nil, "uploader: recorder read failed, continuing non-resumable: %v", err)
	}

	session, err := u.protocol.Start(ctx, params, totalSize)
	if err != nil {
		return nil, resumed, nil, err
	}
	ident := identityRecord{SourceSize: u.source.Size(), SourceMTime: u.source.ModTime(), Session: session.Identity()}
	identJSON, err := json.Marshal(ident)
	if err != nil {
		return session, resumed, nil, nil
	}
	create, err := u.recorder.OpenForCreateNew(key)
	if err != nil {
		qlog.Debugf(nil, "uploader: recorder create failed, continuing non-resumable: %v", err)
		return session, resumed, nil, nil
	}
	if err := create.WriteIdentity(identJSON); err != nil {
		qlog.Debugf(nil, "uploader: recorder identity write failed, continuing non-resumable: %v", err)
		create.Close()
		return session, resumed, nil, nil
	}
	return session, resumed, create, nil
}

// isDeadSession reports whether err indicates the server-side upload
// session itself is gone (vs. a single part failing), in which case
// the local record should be discarded rather than retried (spec §4.6
// "Complete... unless the failure kind indicates the upload-id is
// dead, in which case the record is deleted").
func isDeadSession(err error) bool {
	var qe *qerr.Error
	if errors.As(err, &qe) {
		return qe.StatusCode == 612 || qe.StatusCode == 404
	}
	return false
}

func nowUnix() int64 { return time.Now().Unix() }
