package uploadv1

import (
	"context"
	"encoding/json"
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

func TestMkBlkAndMkFile(t *testing.T) {
	var gotPaths []string
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		switch {
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/mkblk/"):
			json.NewEncoder(w).Encode(blockResponse{Ctx: "ctx1"})
		case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/mkfile/"):
			json.NewEncoder(w).Encode(map[string]string{"key": "o", "hash": "h"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	u := &Uploader{Exec: exec}
	_, part, err := u.MkBlk(context.Background(), "tok", 4, []byte("abcd"))
	require.NoError(t, err)
	assert.Equal(t, "ctx1", part.Ctx)

	raw, err := u.MkFile(context.Background(), "tok", 4, MkFileParams{Key: "o"}, []string{"ctx1"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"key\":\"o\"")
	assert.Contains(t, gotPaths, "/mkblk/4")
}

func TestBlockUploadChunkUpdatesCtx(t *testing.T) {
	exec := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(blockResponse{Ctx: "ctx-next"})
	})
	b := &Block{exec: exec, ctx: "ctx-prev"}
	require.NoError(t, b.UploadChunk(context.Background(), "tok", 4, []byte("efgh")))
	assert.Equal(t, "ctx-next", b.ctx)
}
