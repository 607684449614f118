package httpclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpTokenAuthorizationSetsHeader(t *testing.T) {
	a := UpTokenAuthorization{Provider: staticUpToken{"tok123"}}
	req, _ := http.NewRequest(http.MethodPut, "https://example.com/x", nil)
	require.NoError(t, a.Sign(context.Background(), req, nil))
	assert.Equal(t, "UpToken tok123", req.Header.Get("Authorization"))
}

func TestV1AuthorizationIsDeterministic(t *testing.T) {
	a := V1Authorization{Credentials: StaticCredential{AccessKey: "ak", SecretKey: "sk"}}
	req1, _ := http.NewRequest(http.MethodPost, "https://example.com/path?q=1", nil)
	req1.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req2, _ := http.NewRequest(http.MethodPost, "https://example.com/path?q=1", nil)
	req2.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	require.NoError(t, a.Sign(context.Background(), req1, []byte("a=b")))
	require.NoError(t, a.Sign(context.Background(), req2, []byte("a=b")))
	assert.Equal(t, req1.Header.Get("Authorization"), req2.Header.Get("Authorization"))
	assert.Contains(t, req1.Header.Get("Authorization"), "QBox ak:")
}

func TestV1AuthorizationIgnoresBodyForNonForm(t *testing.T) {
	a := V1Authorization{Credentials: StaticCredential{AccessKey: "ak", SecretKey: "sk"}}
	req1, _ := http.NewRequest(http.MethodPost, "https://example.com/path", nil)
	req1.Header.Set("Content-Type", "application/json")
	req2, _ := http.NewRequest(http.MethodPost, "https://example.com/path", nil)
	req2.Header.Set("Content-Type", "application/json")

	require.NoError(t, a.Sign(context.Background(), req1, []byte("some-json-body")))
	require.NoError(t, a.Sign(context.Background(), req2, []byte("a-totally-different-body")))
	assert.Equal(t, req1.Header.Get("Authorization"), req2.Header.Get("Authorization"))
}

func TestV2AuthorizationIsDeterministic(t *testing.T) {
	a := V2Authorization{Credentials: StaticCredential{AccessKey: "ak", SecretKey: "sk"}}
	req1, _ := http.NewRequest(http.MethodPut, "https://example.com/path", nil)
	req2, _ := http.NewRequest(http.MethodPut, "https://example.com/path", nil)

	require.NoError(t, a.Sign(context.Background(), req1, []byte("body")))
	require.NoError(t, a.Sign(context.Background(), req2, []byte("body")))
	assert.Equal(t, req1.Header.Get("Authorization"), req2.Header.Get("Authorization"))
	assert.Contains(t, req1.Header.Get("Authorization"), "Qiniu ak:")
}

type staticUpToken struct{ token string }

func (s staticUpToken) UpToken(context.Context) (string, error) { return s.token, nil }
