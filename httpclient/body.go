package httpclient

import (
	"bytes"
	"io"
	"os"
)

// Body is the sum type over the ways a request body can be supplied
// (spec §3's "body (sync or async, seekable iff retries allowed)").
// Reset rebuilds a fresh reader for the next physical attempt; Seekable
// reports whether Reset can actually be called more than once.
type Body interface {
	Reset() (io.Reader, error)
	Len() int64
	Seekable() bool
}

// BytesBody wraps an in-memory buffer. Always seekable.
type BytesBody struct {
	Data []byte
}

func (b BytesBody) Reset() (io.Reader, error) { return bytes.NewReader(b.Data), nil }
func (b BytesBody) Len() int64                { return int64(len(b.Data)) }
func (b BytesBody) Seekable() bool            { return true }

// FileBody wraps a path on disk, reopened on every Reset so each
// physical attempt gets an independent, fully-rewound handle.
type FileBody struct {
	Path string
	size int64
}

// NewFileBody stats path once to learn its size.
func NewFileBody(path string) (*FileBody, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &FileBody{Path: path, size: info.Size()}, nil
}

func (f *FileBody) Reset() (io.Reader, error) { return os.Open(f.Path) }
func (f *FileBody) Len() int64                { return f.size }
func (f *FileBody) Seekable() bool            { return true }

// UnseekableBody wraps a one-shot io.Reader (e.g. a network stream)
// that cannot be replayed; per spec §8 invariant 5, any retry path
// requiring a body reset must downgrade to DontRetry when wrapping one
// of these.
type UnseekableBody struct {
	Reader io.Reader
	used   bool
}

func (u *UnseekableBody) Reset() (io.Reader, error) {
	if u.used {
		return nil, ErrBodyNotSeekable
	}
	u.used = true
	return u.Reader, nil
}

func (u *UnseekableBody) Len() int64     { return -1 }
func (u *UnseekableBody) Seekable() bool { return false }

// ErrBodyNotSeekable is returned by UnseekableBody.Reset on the second
// and subsequent calls.
var ErrBodyNotSeekable = bodyNotSeekableError{}

type bodyNotSeekableError struct{}

func (bodyNotSeekableError) Error() string { return "httpclient: body is not seekable, cannot retry" }
