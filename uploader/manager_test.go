package uploader

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/qiniu/go-sdk-core/qerr"
	"github.com/qiniu/go-sdk-core/uploader/recorder"
	"github.com/qiniu/go-sdk-core/uploader/source"
)

// fakeProtocol counts Start/Resume calls and always hands out the same
// underlying fakeSession, optionally failing or declining to resume.
type fakeProtocol struct {
	session     *fakeSession
	startCalls  int
	resumeCalls int
	resumeOK    bool
	resumeErr   error
}

func (p *fakeProtocol) Start(ctx context.Context, params ObjectParams, totalSize int64) (Session, error) {
	p.startCalls++
	return p.session, nil
}

func (p *fakeProtocol) Resume(ctx context.Context, params ObjectParams, totalSize int64, identity json.RawMessage) (Session, bool, error) {
	p.resumeCalls++
	if p.resumeErr != nil {
		return nil, false, p.resumeErr
	}
	return p.session, p.resumeOK, nil
}

var _ Protocol = (*fakeProtocol)(nil)

// fakeScheduler lets a test dictate exactly what Upload sees back from
// the part-upload loop, independent of any real slicing.
type fakeScheduler struct {
	err   error
	parts []UploadedPart
}

func (f fakeScheduler) Run(ctx context.Context, src source.DataSource, session Session, partition DataPartitionProvider, concurrency ConcurrencyProvider, resumed map[int64]UploadedPart, onPartDone func(UploadedPart)) ([]UploadedPart, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.parts {
		if onPartDone != nil {
			onPartDone(p)
		}
	}
	return f.parts, nil
}

var _ Scheduler = fakeScheduler{}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-src-*")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()
	return f.Name()
}

func TestUploadFreshRunWithoutRecorderCompletes(t *testing.T) {
	path := writeTempFile(t, "hello world")
	fsrc, err := source.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	session := &fakeSession{}
	proto := &fakeProtocol{session: session}
	mgr := &UploadManager{
		Protocol:    proto,
		Scheduler:   Serial{},
		Partition:   FixedPartition{Size: 1 << 20},
		Concurrency: FixedConcurrency{N: 1},
	}
	up := mgr.NewUploader(fsrc, Callbacks{})

	result, err := up.Upload(context.Background(), ObjectParams{Bucket: "b", Key: "k"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Fatalf("result = %s", result)
	}
	if proto.startCalls != 1 || proto.resumeCalls != 0 {
		t.Fatalf("startCalls=%d resumeCalls=%d, want 1/0 (dummy recorder never resumes)", proto.startCalls, proto.resumeCalls)
	}
}

func TestUploadWritesAndClearsRecordOnSuccess(t *testing.T) {
	path := writeTempFile(t, "some file contents for a resumable upload")
	fsrc, err := source.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	rec, err := recorder.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	session := &fakeSession{}
	proto := &fakeProtocol{session: session}
	mgr := &UploadManager{
		Protocol:    proto,
		Recorder:    rec,
		Scheduler:   Serial{},
		Partition:   FixedPartition{Size: 8},
		Concurrency: FixedConcurrency{N: 1},
	}
	up := mgr.NewUploader(fsrc, Callbacks{})

	if _, err := up.Upload(context.Background(), ObjectParams{Bucket: "b", Key: "k"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	key := fsrc.SourceKey()
	if _, ok, err := rec.OpenForRead(key); err != nil {
		t.Fatalf("OpenForRead after success: %v", err)
	} else if ok {
		t.Fatal("record should have been deleted after a successful Complete")
	}
	if proto.startCalls != 1 {
		t.Fatalf("startCalls = %d, want 1", proto.startCalls)
	}
}

func TestUploadResumesPersistedPartsWithoutReupload(t *testing.T) {
	content := "0123456789abcdefghij" // 20 bytes, two 10-byte parts
	path := writeTempFile(t, content)
	fsrc, err := source.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	base := t.TempDir()
	rec, err := recorder.NewFS(base)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	key := fsrc.SourceKey()

	create, err := rec.OpenForCreateNew(key)
	if err != nil {
		t.Fatalf("OpenForCreateNew: %v", err)
	}
	identity, _ := json.Marshal(struct {
		SourceSize  int64           `json:"source_size"`
		SourceMTime int64           `json:"source_mtime"`
		Session     json.RawMessage `json:"session"`
	}{SourceSize: info.Size(), SourceMTime: info.ModTime().Unix(), Session: json.RawMessage(`{}`)})
	if err := create.WriteIdentity(identity); err != nil {
		t.Fatalf("WriteIdentity: %v", err)
	}
	if err := create.AppendPart(recorder.PartRecord{
		PartNumber: 1,
		Offset:     0,
		Size:       10,
		RecordedAt: time.Now().Unix(),
		Payload:    json.RawMessage(`"resumed-part-1"`),
	}); err != nil {
		t.Fatalf("AppendPart: %v", err)
	}
	if err := create.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	session := &fakeSession{}
	proto := &fakeProtocol{session: session, resumeOK: true}
	var resumedSeen []UploadedPart
	mgr := &UploadManager{
		Protocol:    proto,
		Recorder:    rec,
		Scheduler:   Serial{},
		Partition:   FixedPartition{Size: 10},
		Concurrency: FixedConcurrency{N: 1},
		PartTTL:     time.Hour,
	}
	up := mgr.NewUploader(fsrc, Callbacks{OnResumed: func(p UploadedPart) { resumedSeen = append(resumedSeen, p) }})

	if _, err := up.Upload(context.Background(), ObjectParams{Bucket: "b", Key: "k"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if proto.resumeCalls != 1 || proto.startCalls != 0 {
		t.Fatalf("resumeCalls=%d startCalls=%d, want 1/0", proto.resumeCalls, proto.startCalls)
	}
	if len(resumedSeen) != 1 || resumedSeen[0].PartNumber != 1 {
		t.Fatalf("resumedSeen = %+v, want exactly part 1", resumedSeen)
	}
	// Only the second 10-byte part (offset 10) should have gone over the
	// fake network; the first was resumed from the journal.
	if session.uploadedCount() != 1 {
		t.Fatalf("session uploaded %d parts, want 1 (part 1 should have been skipped)", session.uploadedCount())
	}
}

func TestUploadDiscardsRecordOnSizeMismatch(t *testing.T) {
	path := writeTempFile(t, "current contents, different from the stale record")
	fsrc, err := source.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	rec, err := recorder.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	key := fsrc.SourceKey()

	create, err := rec.OpenForCreateNew(key)
	if err != nil {
		t.Fatalf("OpenForCreateNew: %v", err)
	}
	stale, _ := json.Marshal(struct {
		SourceSize  int64           `json:"source_size"`
		SourceMTime int64           `json:"source_mtime"`
		Session     json.RawMessage `json:"session"`
	}{SourceSize: 999999, SourceMTime: 1, Session: json.RawMessage(`{}`)})
	if err := create.WriteIdentity(stale); err != nil {
		t.Fatalf("WriteIdentity: %v", err)
	}
	if err := create.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	session := &fakeSession{}
	proto := &fakeProtocol{session: session, resumeOK: true}
	mgr := &UploadManager{
		Protocol:    proto,
		Recorder:    rec,
		Scheduler:   Serial{},
		Partition:   FixedPartition{Size: 1 << 20},
		Concurrency: FixedConcurrency{N: 1},
	}
	up := mgr.NewUploader(fsrc, Callbacks{})

	if _, err := up.Upload(context.Background(), ObjectParams{Bucket: "b", Key: "k"}); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if proto.resumeCalls != 0 || proto.startCalls != 1 {
		t.Fatalf("resumeCalls=%d startCalls=%d, want 0/1 (mismatch must discard, not resume)", proto.resumeCalls, proto.startCalls)
	}
}

func TestUploadDeletesRecordOnDeadSession(t *testing.T) {
	path := writeTempFile(t, "some contents")
	fsrc, err := source.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	rec, err := recorder.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	session := &fakeSession{}
	proto := &fakeProtocol{session: session}
	deadErr := qerr.New(qerr.KindUnexpectedStatusCode, os.ErrNotExist).WithDiagnostics(612, "", "", nil, "")
	mgr := &UploadManager{
		Protocol:    proto,
		Recorder:    rec,
		Scheduler:   fakeScheduler{err: deadErr},
		Partition:   FixedPartition{Size: 1 << 20},
		Concurrency: FixedConcurrency{N: 1},
	}
	up := mgr.NewUploader(fsrc, Callbacks{})

	_, err = up.Upload(context.Background(), ObjectParams{Bucket: "b", Key: "k"})
	if err == nil {
		t.Fatal("expected error from dead session")
	}

	key := fsrc.SourceKey()
	if _, ok, rerr := rec.OpenForRead(key); rerr != nil {
		t.Fatalf("OpenForRead: %v", rerr)
	} else if ok {
		t.Fatal("record should have been deleted after a dead-session (612) failure")
	}
}

func TestUploadKeepsRecordOnOrdinaryFailure(t *testing.T) {
	path := writeTempFile(t, "some contents")
	fsrc, err := source.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	rec, err := recorder.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	session := &fakeSession{}
	proto := &fakeProtocol{session: session}
	ordinaryErr := qerr.New(qerr.KindUnexpectedStatusCode, os.ErrNotExist).WithDiagnostics(500, "", "", nil, "")
	mgr := &UploadManager{
		Protocol:    proto,
		Recorder:    rec,
		Scheduler:   fakeScheduler{err: ordinaryErr},
		Partition:   FixedPartition{Size: 1 << 20},
		Concurrency: FixedConcurrency{N: 1},
	}
	up := mgr.NewUploader(fsrc, Callbacks{})

	_, err = up.Upload(context.Background(), ObjectParams{Bucket: "b", Key: "k"})
	if err == nil {
		t.Fatal("expected propagated error")
	}

	key := fsrc.SourceKey()
	if _, ok, rerr := rec.OpenForRead(key); rerr != nil {
		t.Fatalf("OpenForRead: %v", rerr)
	} else if !ok {
		t.Fatal("record should survive an ordinary (non-dead-session) failure for a later retry")
	}
}

func TestIsDeadSessionRecognizesQiniuStatusCodes(t *testing.T) {
	for _, code := range []int{612, 404} {
		err := qerr.New(qerr.KindUnexpectedStatusCode, os.ErrNotExist).WithDiagnostics(code, "", "", nil, "")
		if !isDeadSession(err) {
			t.Fatalf("isDeadSession(%d) = false, want true", code)
		}
	}
	err := qerr.New(qerr.KindUnexpectedStatusCode, os.ErrNotExist).WithDiagnostics(500, "", "", nil, "")
	if isDeadSession(err) {
		t.Fatal("isDeadSession(500) = true, want false")
	}
	if isDeadSession(nil) {
		t.Fatal("isDeadSession(nil) = true, want false")
	}
}
