package uploadv2

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiniu/go-sdk-core/backoff"
	"github.com/qiniu/go-sdk-core/chooser"
	"github.com/qiniu/go-sdk-core/endpoint"
	"github.com/qiniu/go-sdk-core/httpclient"
	"github.com/qiniu/go-sdk-core/resolver"
	"github.com/qiniu/go-sdk-core/retrier"
)

type passthroughChooser struct{}

func (passthroughChooser) Choose(_ context.Context, ips []net.IP) []net.IP { return ips }
func (passthroughChooser) Feedback(context.Context, chooser.Feedback)      {}

func newTestExecutor(t *testing.T, handler http.HandlerFunc) *httpclient.Executor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	eps := endpoint.Static{Preferred: []endpoint.Endpoint{endpoint.IP(net.ParseIP(host), port)}}
	return &httpclient.Executor{
		Endpoints: eps,
		Resolver:  resolver.System{},
		Chooser:   passthroughChooser{},
		Retrier:   retrier.ErrorRetrier{},
		Backoff:   backoff.Fixed{Duration: time.Millisecond},
		Caller:    httpclient.DefaultCaller{Client: http.DefaultClient},
	}
}

func TestFullV2Sequence(t *testing.T) {
	var seen []string
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/uploads"):
			json.NewEncoder(w).Encode(initiateResponse{UploadID: "u1"})
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "A", string(body))
			json.NewEncoder(w).Encode(partResponse{Etag: "e1"})
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]string{"hash": "h", "key": "o"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	u := &Uploader{Exec: exec}
	initiated, err := u.Initiate(context.Background(), "b", "o")
	require.NoError(t, err)
	assert.Equal(t, "u1", initiated.UploadID)

	part, err := u.UploadPart(context.Background(), initiated, 1, []byte("A"))
	require.NoError(t, err)
	assert.Equal(t, "e1", part.Etag)

	raw, err := u.Complete(context.Background(), initiated, []UploadedPart{part}, CompleteParams{})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"key\":\"o\"")

	require.Len(t, seen, 3)
	assert.Contains(t, seen[0], "POST")
	assert.Contains(t, seen[1], "PUT")
	assert.Contains(t, seen[2], "POST")
}

func TestAbortSendsDelete(t *testing.T) {
	var method string
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	})
	u := &Uploader{Exec: exec}
	require.NoError(t, u.Abort(context.Background(), Initiated{Bucket: "b", Key: "o", UploadID: "u1"}))
	assert.Equal(t, http.MethodDelete, method)
}
