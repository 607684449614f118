package uploader

import "time"

// ObjectParams is the immutable per-upload configuration of spec §3
// ("ObjectParams: object name, file name, content-type, custom vars,
// metadata, region override, part TTL, transport extensions").
type ObjectParams struct {
	Bucket         string
	Key            string
	FileName       string
	ContentType    string
	CustomVars     map[string]string
	Metadata       map[string]string
	RegionOverride string
	PartTTL        time.Duration
	Extensions     map[string]any
}
