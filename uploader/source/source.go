// Package source implements DataSource (spec §3/§4.6, component C7): a
// uniform view over an in-memory buffer, seekable reader, unseekable
// reader, or file, yielding sequential parts.
package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

// Slice is one sequential chunk handed to the executor for upload. It
// carries a reset so the executor may replay it on a retried attempt
// (spec §3 "Reader of a part").
type Slice struct {
	PartNumber int // 1-based, monotone
	Offset     int64
	Length     int64
	reset      func() (io.Reader, error)
}

// Reader returns a fresh io.Reader over the slice's bytes. It may be
// called more than once; every call starts from the beginning of the
// slice.
func (s Slice) Reader() (io.Reader, error) { return s.reset() }

// Key identifies a DataSource for recorder lookup; the zero value
// (Present == false) means the source is unseekable and has no key
// (spec §3: "returns None if unseekable").
type Key struct {
	Digest  string
	Present bool
}

func newKey(parts ...string) Key {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return Key{Digest: hex.EncodeToString(h.Sum(nil)), Present: true}
}

// DataSource is the logical contract of spec §3/§4.6.
type DataSource interface {
	// Slice returns the next partSize-sized chunk, or ok=false when the
	// source is exhausted.
	Slice(partSize int64) (slice Slice, ok bool, err error)
	// Reset rewinds the source so a fresh upload attempt can restart
	// from the beginning; only meaningful for seekable sources.
	Reset() error
	// SourceKey identifies the source for recorder lookup.
	SourceKey() Key
	// TotalSize returns the source's total size, or (0, false) when
	// unknown (e.g. a streaming unseekable reader).
	TotalSize() (int64, bool)
	// Size and ModTime feed the recorder's invalidation check (spec §3
	// invariant 5); zero values are fine for sources with no stable
	// identity.
	Size() int64
	ModTime() int64
}

// fileSource is a seekable, path-hashed DataSource backed by an
// *os.File, reopened per-slice reader so concurrent workers can each
// hold an independent read position.
type fileSource struct {
	mu      sync.Mutex
	path    string
	size    int64
	modTime int64
	offset  int64
}

// NewFile builds a DataSource over the file at path.
func NewFile(path string) (DataSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("source: stat %s: %w", path, err)
	}
	return &fileSource{path: path, size: info.Size(), modTime: info.ModTime().Unix()}, nil
}

func (f *fileSource) Slice(partSize int64) (Slice, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offset >= f.size {
		return Slice{}, false, nil
	}
	offset := f.offset
	length := partSize
	if offset+length > f.size {
		length = f.size - offset
	}
	partNumber := int(offset/partSize) + 1
	f.offset += length
	path := f.path
	return Slice{
		PartNumber: partNumber,
		Offset:     offset,
		Length:     length,
		reset: func() (io.Reader, error) {
			file, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			if _, err := file.Seek(offset, io.SeekStart); err != nil {
				file.Close()
				return nil, err
			}
			return &closingLimitReader{f: file, r: io.LimitReader(file, length)}, nil
		},
	}, true, nil
}

func (f *fileSource) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset = 0
	return nil
}

func (f *fileSource) SourceKey() Key {
	return newKey("file", f.path, fmt.Sprint(f.size), fmt.Sprint(f.modTime))
}

func (f *fileSource) TotalSize() (int64, bool) { return f.size, true }
func (f *fileSource) Size() int64              { return f.size }
func (f *fileSource) ModTime() int64           { return f.modTime }

// closingLimitReader closes the underlying file once the slice has
// been fully read or the reader is explicitly closed.
type closingLimitReader struct {
	f *os.File
	r io.Reader
}

func (c *closingLimitReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.f.Close()
	}
	return n, err
}

func (c *closingLimitReader) Close() error { return c.f.Close() }

// seekableReaderSource wraps an io.ReadSeeker whose total size is
// known but which isn't backed by a stable file path; SourceKey is
// unavailable (zero value) since there is nothing stable to hash.
type seekableReaderSource struct {
	mu     sync.Mutex
	r      io.ReadSeeker
	size   int64
	offset int64
}

// NewSeekableReader builds a DataSource over r, whose total length is
// size.
func NewSeekableReader(r io.ReadSeeker, size int64) DataSource {
	return &seekableReaderSource{r: r, size: size}
}

func (s *seekableReaderSource) Slice(partSize int64) (Slice, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offset >= s.size {
		return Slice{}, false, nil
	}
	offset := s.offset
	length := partSize
	if offset+length > s.size {
		length = s.size - offset
	}
	partNumber := int(offset/partSize) + 1
	s.offset += length
	r := s.r
	return Slice{
		PartNumber: partNumber,
		Offset:     offset,
		Length:     length,
		reset: func() (io.Reader, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, err := r.Seek(offset, io.SeekStart); err != nil {
				return nil, err
			}
			buf := make([]byte, length)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			return bytes.NewReader(buf), nil
		},
	}, true, nil
}

func (s *seekableReaderSource) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offset = 0
	return nil
}

func (s *seekableReaderSource) SourceKey() Key           { return Key{} }
func (s *seekableReaderSource) TotalSize() (int64, bool) { return s.size, true }
func (s *seekableReaderSource) Size() int64              { return s.size }
func (s *seekableReaderSource) ModTime() int64           { return 0 }

// unseekableSource wraps a one-shot io.Reader: no key, no resume, no
// reset (spec §8 scenario E6). It is fed sequentially: each Slice call
// consumes the next partSize bytes and cannot be replayed, so any
// retry path requiring a body reset must downgrade to DontRetry.
type unseekableSource struct {
	mu      sync.Mutex
	r       io.Reader
	partNum int
	done    bool
}

// NewUnseekable builds a DataSource over a one-shot stream of unknown
// total size.
func NewUnseekable(r io.Reader) DataSource {
	return &unseekableSource{r: r}
}

func (u *unseekableSource) Slice(partSize int64) (Slice, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return Slice{}, false, nil
	}
	buf := make([]byte, partSize)
	n, err := io.ReadFull(u.r, buf)
	if n == 0 && err != nil {
		u.done = true
		if err == io.EOF {
			return Slice{}, false, nil
		}
		return Slice{}, false, err
	}
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		u.done = true
	} else if err != nil {
		return Slice{}, false, err
	}
	u.partNum++
	data := buf[:n]
	read := false
	return Slice{
		PartNumber: u.partNum,
		Offset:     -1, // unknown, not meaningful for an unseekable stream
		Length:     int64(n),
		reset: func() (io.Reader, error) {
			if read {
				return nil, ErrNotSeekable
			}
			read = true
			return bytes.NewReader(data), nil
		},
	}, true, nil
}

func (u *unseekableSource) Reset() error             { return ErrNotSeekable }
func (u *unseekableSource) SourceKey() Key           { return Key{} }
func (u *unseekableSource) TotalSize() (int64, bool) { return 0, false }
func (u *unseekableSource) Size() int64              { return 0 }
func (u *unseekableSource) ModTime() int64           { return 0 }

// ErrNotSeekable is returned by an unseekable source's Reset, and by a
// Slice's reset func after the first read.
var ErrNotSeekable = notSeekableError{}

type notSeekableError struct{}

func (notSeekableError) Error() string { return "source: not seekable, cannot reset" }
