package uploader

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/qiniu/go-sdk-core/httpclient"
	"github.com/qiniu/go-sdk-core/uploader/uploadv1"
)

// ProtocolV1 adapts uploadv1's block-and-ctx protocol to the Session
// interface. Start and Resume are identical: v1 has no server-side
// session to create or rebuild (spec §4.6 "the initial call is
// implicit... no server round-trip at initialize time").
type ProtocolV1 struct {
	Uploader *uploadv1.Uploader
	Token    httpclient.UpTokenProvider
}

func (p *ProtocolV1) Start(ctx context.Context, params ObjectParams, totalSize int64) (Session, error) {
	token, err := p.Token.UpToken(ctx)
	if err != nil {
		return nil, err
	}
	return &v1Session{uploader: p.Uploader, token: token, params: params, totalSize: totalSize}, nil
}

func (p *ProtocolV1) Resume(ctx context.Context, params ObjectParams, totalSize int64, _ json.RawMessage) (Session, bool, error) {
	s, err := p.Start(ctx, params, totalSize)
	return s, true, err
}

var _ Protocol = (*ProtocolV1)(nil)

type v1Session struct {
	uploader  *uploadv1.Uploader
	token     string
	params    ObjectParams
	totalSize int64
}

func (s *v1Session) UploadPart(ctx context.Context, partNumber int, offset, size int64, data []byte) (UploadedPart, error) {
	_, part, err := s.uploader.MkBlk(ctx, s.token, size, data)
	if err != nil {
		return UploadedPart{}, err
	}
	part.Offset = offset
	payload, err := json.Marshal(part)
	if err != nil {
		return UploadedPart{}, err
	}
	return UploadedPart{PartNumber: partNumber, Offset: offset, Size: size, Payload: payload}, nil
}

func (s *v1Session) Complete(ctx context.Context, parts []UploadedPart) (json.RawMessage, error) {
	sorted := append([]UploadedPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	ctxs := make([]string, 0, len(sorted))
	for _, p := range sorted {
		var vp uploadv1.UploadedPart
		if err := json.Unmarshal(p.Payload, &vp); err != nil {
			return nil, err
		}
		ctxs = append(ctxs, vp.Ctx)
	}
	return s.uploader.MkFile(ctx, s.token, s.totalSize, uploadv1.MkFileParams{
		Key:        s.params.Key,
		FileName:   s.params.FileName,
		MimeType:   s.params.ContentType,
		Metadata:   s.params.Metadata,
		CustomVars: s.params.CustomVars,
	}, ctxs)
}

// Abort is a no-op: v1 has no server-side session to cancel, only
// blocks whose ctx tokens expire on their own (spec §6 "expired_at").
func (s *v1Session) Abort(context.Context) error { return nil }

func (s *v1Session) Identity() json.RawMessage { return json.RawMessage(`{}`) }

var _ Session = (*v1Session)(nil)
