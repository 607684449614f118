// Package uploadv2 implements the upload-id/part-number protocol of
// spec §4.6/§6 (component C10): initiate an upload-id, PUT each part
// by number, then complete (or abort) it.
package uploadv2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/qiniu/go-sdk-core/httpclient"
	"github.com/qiniu/go-sdk-core/qerr"
)

// UploadedPart is the v2 record of one completed part (spec §3
// "Uploaded part": `{etag, part_number}`).
type UploadedPart struct {
	Etag       string `json:"etag"`
	PartNumber int    `json:"part_number"`
	Offset     int64  `json:"-"`
	Size       int64  `json:"-"`
	Resumed    bool   `json:"-"`
}

// Initiated identifies an in-progress v2 upload.
type Initiated struct {
	Bucket   string
	Key      string
	UploadID string
}

type initiateResponse struct {
	UploadID string `json:"uploadId"`
	ExpireAt int64  `json:"expireAt"`
}

type partResponse struct {
	Etag string `json:"etag"`
	MD5  string `json:"md5"`
}

// CompleteParams carries the object metadata the complete call's JSON
// body accepts.
type CompleteParams struct {
	FileName   string            `json:"fname,omitempty"`
	MimeType   string            `json:"mimeType,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CustomVars map[string]string `json:"customVars,omitempty"`
}

type completeRequestBody struct {
	Parts []completePart `json:"parts"`
	CompleteParams
}

type completePart struct {
	Etag       string `json:"etag"`
	PartNumber int    `json:"partNumber"`
}

// Uploader drives the initiate/upload-part/complete/abort sequence
// against a single Executor.
type Uploader struct {
	Exec *httpclient.Executor
}

func objectPath(bucket, key string) string {
	return fmt.Sprintf("/buckets/%s/objects/%s/uploads", bucket, httpclient.UrlsafeB64([]byte(key)))
}

// Initiate starts a new multi-part upload for bucket/key.
func (u *Uploader) Initiate(ctx context.Context, bucket, key string) (Initiated, error) {
	resp, _, err := u.Exec.Execute(ctx, httpclient.Request{
		Method:     http.MethodPost,
		Path:       objectPath(bucket, key),
		Idempotent: httpclient.IdempotencyAlways, // initiate has no side effect to duplicate
	})
	if err != nil {
		return Initiated{}, err
	}
	defer resp.Body.Close()
	var ir initiateResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return Initiated{}, qerr.New(qerr.KindParseResponse, err)
	}
	return Initiated{Bucket: bucket, Key: key, UploadID: ir.UploadID}, nil
}

// UploadPart PUTs one part's bytes, returning its etag.
func (u *Uploader) UploadPart(ctx context.Context, up Initiated, partNumber int, data []byte) (UploadedPart, error) {
	path := fmt.Sprintf("%s/%s/%d", objectPath(up.Bucket, up.Key), up.UploadID, partNumber)
	resp, _, err := u.Exec.Execute(ctx, httpclient.Request{
		Method:     http.MethodPut,
		Path:       path,
		Body:       httpclient.BytesBody{Data: data},
		Idempotent: httpclient.IdempotencyAlways, // re-PUTting the same part number is safe
	})
	if err != nil {
		return UploadedPart{}, err
	}
	defer resp.Body.Close()
	var pr partResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return UploadedPart{}, qerr.New(qerr.KindParseResponse, err)
	}
	return UploadedPart{Etag: pr.Etag, PartNumber: partNumber, Size: int64(len(data))}, nil
}

// Complete finishes the upload. parts must be sorted by PartNumber and
// dense over the completed prefix (spec §4.6 "Ordering guarantee").
func (u *Uploader) Complete(ctx context.Context, up Initiated, parts []UploadedPart, params CompleteParams) (json.RawMessage, error) {
	body := completeRequestBody{CompleteParams: params}
	for _, p := range parts {
		body.Parts = append(body.Parts, completePart{Etag: p.Etag, PartNumber: p.PartNumber})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/%s/complete", objectPath(up.Bucket, up.Key), up.UploadID)
	resp, _, err := u.Exec.Execute(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   path,
		Headers: http.Header{
			"Content-Type": []string{"application/json"},
		},
		Body:       httpclient.BytesBody{Data: payload},
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

// Abort deletes an abandoned upload-id so it doesn't linger
// server-side as garbage parts.
func (u *Uploader) Abort(ctx context.Context, up Initiated) error {
	path := fmt.Sprintf("%s/%s", objectPath(up.Bucket, up.Key), up.UploadID)
	resp, _, err := u.Exec.Execute(ctx, httpclient.Request{
		Method:     http.MethodDelete,
		Path:       path,
		Idempotent: httpclient.IdempotencyAlways,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
