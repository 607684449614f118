package recorder

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/qiniu/go-sdk-core/internal/qlog"
	"github.com/qiniu/go-sdk-core/uploader/source"
)

// FS is a filesystem-backed Recorder: one file per source key under
// Base, advisory-locked for the duration of a medium handle (spec
// §4.8, §5 "Recorder medium").
type FS struct {
	Base string
}

// NewFS builds an FS recorder rooted at base, creating the directory
// if it does not already exist.
func NewFS(base string) (*FS, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("recorder: mkdir %s: %w", base, err)
	}
	return &FS{Base: base}, nil
}

func (f *FS) pathFor(key source.Key) (string, error) {
	if !key.Present {
		return "", ErrUnsupported
	}
	name := hex.EncodeToString([]byte(key.Digest))
	if len(name) > 128 {
		name = name[:128]
	}
	return filepath.Join(f.Base, name), nil
}

func (f *FS) OpenForRead(key source.Key) (ReadMedium, bool, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return nil, false, err
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryRLockContext(context.Background(), lockRetryInterval)
	if err != nil {
		return nil, false, fmt.Errorf("recorder: lock %s: %w", path, err)
	}
	if !locked {
		return nil, false, fmt.Errorf("recorder: lock %s: timed out", path)
	}

	file, err := os.Open(path)
	if err != nil {
		lock.Unlock()
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("recorder: open %s: %w", path, err)
	}

	identity, parts := parseLog(file)
	file.Close()
	return &fsReadMedium{lock: lock, identity: identity, identityOK: identity != nil, parts: parts}, true, nil
}

func (f *FS) OpenForAppend(key source.Key) (AppendMedium, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return nil, err
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(context.Background(), lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("recorder: lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("recorder: lock %s: timed out", path)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	return &fsAppendMedium{lock: lock, file: file, enc: json.NewEncoder(file)}, nil
}

func (f *FS) OpenForCreateNew(key source.Key) (AppendMedium, error) {
	path, err := f.pathFor(key)
	if err != nil {
		return nil, err
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(context.Background(), lockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("recorder: lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("recorder: lock %s: timed out", path)
	}
	file, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("recorder: create %s: %w", path, err)
	}
	return &fsAppendMedium{lock: lock, file: file, enc: json.NewEncoder(file)}, nil
}

func (f *FS) Delete(key source.Key) error {
	path, err := f.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("recorder: delete %s: %w", path, err)
	}
	_ = os.Remove(path + ".lock")
	return nil
}

var _ Recorder = (*FS)(nil)

type fsReadMedium struct {
	lock       *flock.Flock
	identity   json.RawMessage
	identityOK bool
	parts      []PartRecord
}

func (m *fsReadMedium) Identity() (json.RawMessage, bool) { return m.identity, m.identityOK }
func (m *fsReadMedium) Parts() []PartRecord               { return m.parts }
func (m *fsReadMedium) Close() error                      { return m.lock.Unlock() }

type fsAppendMedium struct {
	lock         *flock.Flock
	file         *os.File
	enc          *json.Encoder
	identityDone bool
}

func (m *fsAppendMedium) WriteIdentity(identity json.RawMessage) error {
	if m.identityDone {
		return fmt.Errorf("recorder: identity already written")
	}
	m.identityDone = true
	return m.enc.Encode(identity)
}

func (m *fsAppendMedium) AppendPart(rec PartRecord) error {
	return m.enc.Encode(rec)
}

func (m *fsAppendMedium) Close() error {
	syncErr := m.file.Sync()
	closeErr := m.file.Close()
	unlockErr := m.lock.Unlock()
	if syncErr != nil {
		return syncErr
	}
	if closeErr != nil {
		return closeErr
	}
	return unlockErr
}

// parseLog parses the line-oriented JSON format of spec §4.8/§6: the
// first line is the identity record, subsequent lines are part
// records. A malformed line truncates parsing but keeps everything
// read so far (spec §6 "a malformed line terminates the load").
func parseLog(r *os.File) (identity json.RawMessage, parts []PartRecord) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			var raw json.RawMessage
			if err := json.Unmarshal(line, &raw); err != nil {
				qlog.Debugf(nil, "recorder: malformed identity line: %v", err)
				return nil, nil
			}
			identity = raw
			continue
		}
		var rec PartRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			qlog.Debugf(nil, "recorder: malformed part line, stopping: %v", err)
			break
		}
		parts = append(parts, rec)
	}
	return identity, parts
}

const lockRetryInterval = 10 * time.Millisecond
