package uploader

// Callbacks are the upload-level observation hooks of component C11,
// distinct from httpclient.Callbacks' per-attempt hooks: these fire at
// part and upload granularity.
type Callbacks struct {
	// OnPartUploaded fires once per freshly uploaded (non-resumed) part,
	// in completion order — which under Concurrent scheduling is not
	// part-number order (spec §5 "Ordering guarantees").
	OnPartUploaded func(UploadedPart)
	// OnUploadingProgress is accepted but Uploader.Upload and the
	// schedulers never invoke it; byte-level progress is not reported.
	// OnPartUploaded and OnResumed are the per-part signals.
	OnUploadingProgress func(uploadedBytes, totalBytes int64)
	// OnResumed fires once per part recovered from the recorder without
	// a network call.
	OnResumed func(UploadedPart)
}

func (c Callbacks) firePartUploaded(p UploadedPart) {
	if c.OnPartUploaded != nil {
		c.OnPartUploaded(p)
	}
}

func (c Callbacks) fireResumed(p UploadedPart) {
	if c.OnResumed != nil {
		c.OnResumed(p)
	}
}

func (c Callbacks) fireProgress(uploaded, total int64) {
	if c.OnUploadingProgress != nil {
		c.OnUploadingProgress(uploaded, total)
	}
}
