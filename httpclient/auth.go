package httpclient

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// Authorization signs an outgoing request in place (spec §4.5: "a
// single Sign(&mut Request) -> Result capability"). It never inspects
// response data; signing happens per physical attempt so credential
// rotation and body hashing always see the final URL and headers.
type Authorization interface {
	Sign(ctx context.Context, req *http.Request, bodySample []byte) error
}

// CredentialProvider supplies the access/secret key pair used by the
// V1 and V2 signers. Abstracted so key rotation or STS-style temporary
// credentials can be plugged in without touching the signer.
type CredentialProvider interface {
	Credential(ctx context.Context) (accessKey, secretKey string, err error)
}

// StaticCredential is the common case: a fixed access/secret pair.
type StaticCredential struct {
	AccessKey string
	SecretKey string
}

func (c StaticCredential) Credential(context.Context) (string, string, error) {
	return c.AccessKey, c.SecretKey, nil
}

func UrlsafeB64(b []byte) string {
	return base64.URLEncoding.EncodeToString(b)
}

func hmacSHA1(secret, data []byte) []byte {
	mac := hmac.New(sha1.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

// UpTokenProvider supplies a ready-to-use upload token string, e.g.
// produced by a caller-owned policy signer outside this module's scope
// (spec §1 excludes signing algorithms themselves).
type UpTokenProvider interface {
	UpToken(ctx context.Context) (string, error)
}

// UpTokenAuthorization writes `Authorization: UpToken <token>`.
type UpTokenAuthorization struct {
	Provider UpTokenProvider
}

func (a UpTokenAuthorization) Sign(ctx context.Context, req *http.Request, _ []byte) error {
	token, err := a.Provider.UpToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "UpToken "+token)
	return nil
}

// V1Authorization implements the QBox signing scheme: HMAC-SHA1 over
// the path(+query), and the body when the content-type is a form.
type V1Authorization struct {
	Credentials CredentialProvider
}

func (a V1Authorization) Sign(ctx context.Context, req *http.Request, bodySample []byte) error {
	ak, sk, err := a.Credentials.Credential(ctx)
	if err != nil {
		return err
	}
	data := req.URL.Path
	if req.URL.RawQuery != "" {
		data += "?" + req.URL.RawQuery
	}
	data += "\n"
	if isFormContentType(req.Header.Get("Content-Type")) {
		data += string(bodySample)
	}
	sign := hmacSHA1([]byte(sk), []byte(data))
	req.Header.Set("Authorization", "QBox "+ak+":"+UrlsafeB64(sign))
	return nil
}

// V2Authorization implements the Qiniu signing scheme: HMAC-SHA1 over
// method, URL, a canonical subset of headers, and the body.
type V2Authorization struct {
	Credentials   CredentialProvider
	SignedHeaders []string // headers included in the canonical form, in order
}

var defaultV2SignedHeaders = []string{"X-Qiniu-"}

func (a V2Authorization) Sign(ctx context.Context, req *http.Request, bodySample []byte) error {
	ak, sk, err := a.Credentials.Credential(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(req.Method)
	b.WriteString(" ")
	b.WriteString(req.URL.Path)
	if req.URL.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(req.URL.RawQuery)
	}
	b.WriteString("\nHost: ")
	b.WriteString(req.URL.Host)
	b.WriteString("\n")
	for _, prefix := range a.signedHeaderPrefixes() {
		for k, vs := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), strings.ToLower(prefix)) {
				for _, v := range vs {
					b.WriteString(k)
					b.WriteString(": ")
					b.WriteString(v)
					b.WriteString("\n")
				}
			}
		}
	}
	b.WriteString("\n")
	b.Write(bodySample)

	sign := hmacSHA1([]byte(sk), []byte(b.String()))
	req.Header.Set("Authorization", "Qiniu "+ak+":"+UrlsafeB64(sign))
	return nil
}

func (a V2Authorization) signedHeaderPrefixes() []string {
	if len(a.SignedHeaders) > 0 {
		return a.SignedHeaders
	}
	return defaultV2SignedHeaders
}

func isFormContentType(ct string) bool {
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded")
}

// upTokenPolicy is the subset of an upload-token policy JSON this
// module cares about for diagnostics (spec §13.4): bucket name and
// deadline, recovered without validating the token's signature.
type upTokenPolicy struct {
	Scope    string `json:"scope"`
	Deadline int64  `json:"deadline"`
}

// DescribeUpToken extracts the bucket and deadline embedded in an
// UpToken's policy segment for logging purposes. It does not validate
// the token's signature — signing itself is out of scope (spec §1).
func DescribeUpToken(token string) (bucket string, deadline time.Time, ok bool) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", time.Time{}, false
	}
	policyJSON, err := base64.URLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", time.Time{}, false
	}
	var policy upTokenPolicy
	if err := json.Unmarshal(policyJSON, &policy); err != nil {
		return "", time.Time{}, false
	}
	scope := policy.Scope
	if idx := strings.IndexByte(scope, ':'); idx >= 0 {
		scope = scope[:idx]
	}
	return scope, time.Unix(policy.Deadline, 0), true
}
