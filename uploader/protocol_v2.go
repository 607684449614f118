package uploader

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/qiniu/go-sdk-core/uploader/uploadv2"
)

// ProtocolV2 adapts uploadv2's upload-id protocol to the Session
// interface.
type ProtocolV2 struct {
	Uploader *uploadv2.Uploader
}

func (p *ProtocolV2) Start(ctx context.Context, params ObjectParams, totalSize int64) (Session, error) {
	initiated, err := p.Uploader.Initiate(ctx, params.Bucket, params.Key)
	if err != nil {
		return nil, err
	}
	return &v2Session{uploader: p.Uploader, initiated: initiated, params: params}, nil
}

func (p *ProtocolV2) Resume(ctx context.Context, params ObjectParams, totalSize int64, identity json.RawMessage) (Session, bool, error) {
	var initiated uploadv2.Initiated
	if err := json.Unmarshal(identity, &initiated); err != nil {
		return nil, false, err
	}
	return &v2Session{uploader: p.Uploader, initiated: initiated, params: params}, true, nil
}

var _ Protocol = (*ProtocolV2)(nil)

type v2Session struct {
	uploader  *uploadv2.Uploader
	initiated uploadv2.Initiated
	params    ObjectParams
}

func (s *v2Session) UploadPart(ctx context.Context, partNumber int, offset, size int64, data []byte) (UploadedPart, error) {
	part, err := s.uploader.UploadPart(ctx, s.initiated, partNumber, data)
	if err != nil {
		return UploadedPart{}, err
	}
	payload, err := json.Marshal(part)
	if err != nil {
		return UploadedPart{}, err
	}
	return UploadedPart{PartNumber: partNumber, Offset: offset, Size: size, Payload: payload}, nil
}

func (s *v2Session) Complete(ctx context.Context, parts []UploadedPart) (json.RawMessage, error) {
	sorted := append([]UploadedPart(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	vparts := make([]uploadv2.UploadedPart, 0, len(sorted))
	for _, p := range sorted {
		var vp uploadv2.UploadedPart
		if err := json.Unmarshal(p.Payload, &vp); err != nil {
			return nil, err
		}
		vparts = append(vparts, vp)
	}
	return s.uploader.Complete(ctx, s.initiated, vparts, uploadv2.CompleteParams{
		FileName:   s.params.FileName,
		MimeType:   s.params.ContentType,
		Metadata:   s.params.Metadata,
		CustomVars: s.params.CustomVars,
	})
}

func (s *v2Session) Abort(ctx context.Context) error {
	return s.uploader.Abort(ctx, s.initiated)
}

func (s *v2Session) Identity() json.RawMessage {
	raw, _ := json.Marshal(s.initiated)
	return raw
}

var _ Session = (*v2Session)(nil)
