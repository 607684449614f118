// Package uploadv1 implements the block-and-ctx upload protocol of
// spec §4.6/§6 (component C9): a sequence of `mkblk`/`bput` calls
// builds up server-side context tokens for each block, and `mkfile`
// joins them into the final object.
package uploadv1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/qiniu/go-sdk-core/httpclient"
	"github.com/qiniu/go-sdk-core/qerr"
)

// UploadedPart is the v1 record of one completed block: its server
// context token and the block size it was built from. It satisfies
// the abstract UploadedPart{offset, size, resumed} shape used by the
// recorder (spec §3 "Uploaded part").
type UploadedPart struct {
	Ctx       string `json:"ctx"`
	BlockSize int64  `json:"block_size"`
	Offset    int64  `json:"offset"`
	Resumed   bool   `json:"-"`
}

// blockResponse is the JSON envelope shared by mkblk and bput.
type blockResponse struct {
	Ctx       string `json:"ctx"`
	Checksum  string `json:"checksum"`
	Crc32     uint32 `json:"crc32"`
	Offset    int64  `json:"offset"`
	Host      string `json:"host"`
	ExpiredAt int64  `json:"expired_at"`
}

// Block accumulates chunks for a single block, exposing UploadChunk so
// more than one bput call can be issued per block even though Uploader
// itself only ever sends one (spec's Open Question #1: "expose the
// ability but may default to one chunk per block").
type Block struct {
	exec *httpclient.Executor
	ctx  string
}

// UploadChunk sends one bput chunk, updating the block's running ctx.
func (b *Block) UploadChunk(ctx context.Context, token string, offset int64, chunk []byte) error {
	resp, _, err := b.exec.Execute(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/bput/%s/%d", b.ctx, offset),
		Headers: http.Header{
			"Content-Type":  []string{"application/octet-stream"},
			"Authorization": []string{"UpToken " + token},
		},
		Body:       httpclient.BytesBody{Data: chunk},
		Idempotent: httpclient.IdempotencyNever, // ctx is single-use; a replay must re-derive from mkblk
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var br blockResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return qerr.New(qerr.KindParseResponse, err)
	}
	b.ctx = br.Ctx
	return nil
}

// Uploader drives the mkblk/bput/mkfile sequence against a single
// Executor. Each call takes the UpToken explicitly and sets it as the
// request's Authorization header itself, because UpToken scope is
// per-object, not per-client (the policy embeds key/bucket/deadline).
type Uploader struct {
	Exec *httpclient.Executor
}

// MkBlk starts a new block of blockSize bytes, sending firstChunk (the
// whole block, by default — see Block.UploadChunk for the multi-chunk
// path) as its body.
func (u *Uploader) MkBlk(ctx context.Context, token string, blockSize int64, firstChunk []byte) (*Block, UploadedPart, error) {
	resp, _, err := u.Exec.Execute(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/mkblk/%d", blockSize),
		Headers: http.Header{
			"Content-Type":  []string{"application/octet-stream"},
			"Authorization": []string{"UpToken " + token},
		},
		Body:       httpclient.BytesBody{Data: firstChunk},
		Idempotent: httpclient.IdempotencyNever,
	})
	if err != nil {
		return nil, UploadedPart{}, err
	}
	defer resp.Body.Close()
	var br blockResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, UploadedPart{}, qerr.New(qerr.KindParseResponse, err)
	}
	block := &Block{exec: u.Exec, ctx: br.Ctx}
	return block, UploadedPart{Ctx: br.Ctx, BlockSize: blockSize}, nil
}

// MkFileParams carries the object metadata §6's mkfile path segments
// encode.
type MkFileParams struct {
	Key        string
	FileName   string
	MimeType   string
	Metadata   map[string]string // x-qn-meta-{k}
	CustomVars map[string]string // x:{k}
}

// MkFile finishes the upload, joining ctxs (in block order) into the
// final object. Response body is the raw completed-object JSON,
// returned undecoded since its schema is caller-defined.
func (u *Uploader) MkFile(ctx context.Context, token string, totalSize int64, params MkFileParams, ctxs []string) (json.RawMessage, error) {
	var path strings.Builder
	fmt.Fprintf(&path, "/mkfile/%d", totalSize)
	if params.Key != "" {
		fmt.Fprintf(&path, "/key/%s", b64(params.Key))
	}
	if params.FileName != "" {
		fmt.Fprintf(&path, "/fname/%s", b64(params.FileName))
	}
	if params.MimeType != "" {
		fmt.Fprintf(&path, "/mimeType/%s", b64(params.MimeType))
	}
	for k, v := range params.Metadata {
		fmt.Fprintf(&path, "/x-qn-meta-%s/%s", k, b64(v))
	}
	for k, v := range params.CustomVars {
		fmt.Fprintf(&path, "/x:%s/%s", k, b64(v))
	}

	resp, _, err := u.Exec.Execute(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   path.String(),
		Headers: http.Header{
			"Content-Type":  []string{"text/plain"},
			"Authorization": []string{"UpToken " + token},
		},
		Body:       httpclient.BytesBody{Data: []byte(strings.Join(ctxs, ","))},
		Idempotent: httpclient.IdempotencyNever,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, qerr.New(qerr.KindParseResponse, err)
	}
	return raw, nil
}

func b64(s string) string {
	return httpclient.UrlsafeB64([]byte(s))
}
