package httpclient

import (
	"fmt"
	"io"
	"net/http"

	"github.com/qiniu/go-sdk-core/internal/rest"
	"github.com/qiniu/go-sdk-core/qerr"
)

const maxBodySample = 1024 // spec §7: "up to 1024 bytes are preserved as a sample"

// judge inspects a completed HTTP response and turns it into either a
// nil error (success) or a classified *qerr.Error (spec §4.5's "judge
// response" step). host is the server IP/port that actually served the
// attempt, for diagnostics.
func judge(resp *http.Response, host string) (sample []byte, err *qerr.Error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, nil
	}
	sample = rest.ReadBodySample(resp.Body, maxBodySample)
	kind := qerr.KindStatusCode
	if !isKnownStatus(resp.StatusCode) {
		kind = qerr.KindUnexpectedStatusCode
	}
	e := qerr.New(kind, fmt.Errorf("unexpected status %d", resp.StatusCode))
	e.WithDiagnostics(resp.StatusCode, resp.Header.Get("X-Reqid"), resp.Header.Get("X-Log"), sample, host)
	return sample, e
}

func isKnownStatus(code int) bool {
	return code >= 400 && code < 600
}

// drainAndClose discards any remaining body and closes it, so the
// underlying connection can be reused by the transport's connection
// pool even when the caller never read the full body.
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
