// Package rest is a thin HTTP envelope for issuing a single physical
// request. httpclient.Executor builds its own requests and uses only
// ReadBodySample from here. It is grounded on the Opts/Call/CallJSON
// shape used throughout the teacher's backends (e.g.
// backend/b2/upload.go's rest.Opts{Method, Path, RootURL, Body,
// ExtraHeaders, ContentLength} literals).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Opts describes a single HTTP request. RootURL, when set, overrides
// the client's base URL entirely (used for pre-signed upload URLs);
// otherwise Path is joined onto the client's base URL.
type Opts struct {
	Method        string
	Path          string
	RootURL       string
	Body          io.Reader
	ExtraHeaders  map[string]string
	ContentLength *int64
	ContentType   string
	Parameters    url.Values
}

// Client issues requests built from Opts against a fixed base URL.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	UserAgent  string
}

// NewClient builds a Client. A nil httpClient falls back to
// http.DefaultClient.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTPClient: httpClient, BaseURL: strings.TrimRight(baseURL, "/")}
}

// buildURL joins Opts against the client's base URL, or returns
// opts.RootURL verbatim when set.
func (c *Client) buildURL(opts *Opts) (string, error) {
	if opts.RootURL != "" {
		if len(opts.Parameters) == 0 {
			return opts.RootURL, nil
		}
		u, err := url.Parse(opts.RootURL)
		if err != nil {
			return "", fmt.Errorf("rest: parse root url: %w", err)
		}
		u.RawQuery = opts.Parameters.Encode()
		return u.String(), nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("rest: parse base url: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(opts.Path, "/")
	if len(opts.Parameters) > 0 {
		u.RawQuery = opts.Parameters.Encode()
	}
	return u.String(), nil
}

// NewRequest builds an *http.Request from opts without sending it, so
// a caller can sign or otherwise adjust it before Call.
func (c *Client) NewRequest(ctx context.Context, opts *Opts) (*http.Request, error) {
	fullURL, err := c.buildURL(opts)
	if err != nil {
		return nil, err
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, opts.Body)
	if err != nil {
		return nil, fmt.Errorf("rest: new request: %w", err)
	}
	for k, v := range opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	}
	if opts.ContentLength != nil {
		req.ContentLength = *opts.ContentLength
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// Call sends req and returns the raw response; the caller owns
// resp.Body and must close it.
func (c *Client) Call(req *http.Request) (*http.Response, error) {
	return c.HTTPClient.Do(req)
}

// CallJSON sends a request built from opts with in JSON-encoded as the
// body (skipped if in is nil and opts.Body is already set), and decodes
// the JSON response into out (skipped if out is nil).
func (c *Client) CallJSON(ctx context.Context, opts *Opts, in, out any) (*http.Response, error) {
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("rest: encode request body: %w", err)
		}
		opts.Body = bytes.NewReader(body)
		opts.ContentType = "application/json"
		n := int64(len(body))
		opts.ContentLength = &n
	}
	req, err := c.NewRequest(ctx, opts)
	if err != nil {
		return nil, err
	}
	resp, err := c.Call(req)
	if err != nil {
		return resp, err
	}
	if out == nil {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp, fmt.Errorf("rest: decode response body: %w", err)
	}
	return resp, nil
}

// ReadBodySample reads up to max bytes of resp.Body for diagnostics
// (spec §7's response-body sample). The sampled bytes are consumed
// from body; only what lies beyond max is left unread.
func ReadBodySample(body io.Reader, max int64) []byte {
	b, _ := io.ReadAll(io.LimitReader(body, max))
	return b
}
