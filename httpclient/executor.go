// Package httpclient implements the request executor (spec §4.5,
// component C6): it drives a single logical API call through retries
// across endpoints, re-signing each physical attempt and classifying
// every outcome via the retrier.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/qiniu/go-sdk-core/backoff"
	"github.com/qiniu/go-sdk-core/chooser"
	"github.com/qiniu/go-sdk-core/endpoint"
	"github.com/qiniu/go-sdk-core/internal/metrics"
	"github.com/qiniu/go-sdk-core/internal/qlog"
	"github.com/qiniu/go-sdk-core/qerr"
	"github.com/qiniu/go-sdk-core/resolver"
	"github.com/qiniu/go-sdk-core/retrier"
)

// HttpCaller is the concrete HTTP transport capability (spec §1: "out
// of scope ... consumed as a HttpCaller.call(request) capability").
// DefaultCaller adapts any *http.Client to it.
type HttpCaller interface {
	Call(req *http.Request) (*http.Response, error)
}

// DefaultCaller adapts a *http.Client to HttpCaller.
type DefaultCaller struct {
	Client *http.Client
}

func (c DefaultCaller) Call(req *http.Request) (*http.Response, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// Executor orchestrates C1-C5 around each physical call.
type Executor struct {
	Endpoints endpoint.EndpointsProvider
	Service   endpoint.ServiceKind
	Resolver  resolver.Resolver
	Chooser   chooser.Chooser
	Retrier   retrier.Retrier
	Backoff   backoff.Backoff
	Auth      Authorization
	Caller    HttpCaller
	Callbacks Callbacks
	Metrics   *metrics.Collectors
	UseHTTPS  bool
	UserAgent string
}

// Execute drives req through the full try_endpoints algorithm of spec
// §4.5, including the preferred→alternative fallback.
func (e *Executor) Execute(ctx context.Context, req Request) (*http.Response, *qerr.RetriedStatsInfo, error) {
	eps, err := e.Endpoints.EndpointsFor(ctx, e.Service)
	if err != nil {
		return nil, nil, err
	}
	stats := &qerr.RetriedStatsInfo{}

	resp, qe, decision := e.tryEndpoints(ctx, req, eps.Preferred, stats)
	if qe == nil {
		return resp, stats, nil
	}
	if decision == retrier.TryAlternativeEndpoints && len(eps.Alternative) > 0 {
		stats.SwitchedToAlternativeEndpoints = true
		resp, qe, _ = e.tryEndpoints(ctx, req, eps.Alternative, stats)
		if qe == nil {
			return resp, stats, nil
		}
	}
	return nil, stats, qe
}

// tryEndpoints walks list in order, trying every candidate IP of every
// endpoint until one succeeds or the list is exhausted. It returns the
// terminal retry Decision alongside the error so Execute can decide
// whether to fall back to the alternative endpoint list.
func (e *Executor) tryEndpoints(ctx context.Context, req Request, list []endpoint.Endpoint, stats *qerr.RetriedStatsInfo) (*http.Response, *qerr.Error, retrier.Decision) {
	triedIPs := map[string]bool{}
	var lastErr *qerr.Error
	lastDecision := retrier.TryNextServer

	for _, ep := range list {
		var candidates []net.IP
		if ep.IsDomain() {
			ips, err := e.Resolver.Resolve(ctx, ep.DomainName(), resolver.Options{})
			if err != nil {
				lastErr = qerr.New(qerr.KindOf(err), err)
				continue
			}
			for _, ip := range ips {
				if !triedIPs[net.JoinHostPort(ip.String(), portOf(ep))] {
					candidates = append(candidates, ip)
				}
			}
		} else {
			if triedIPs[net.JoinHostPort(ep.IPAddr().String(), portOf(ep))] {
				continue
			}
			candidates = []net.IP{ep.IPAddr()}
		}
		if len(candidates) == 0 {
			continue
		}
		chosen := e.Chooser.Choose(ctx, candidates)
		if len(chosen) == 0 {
			continue
		}

		for _, ip := range chosen {
			resp, qe := e.attemptUntilEndpointExhausted(ctx, req, ep, ip, stats)
			if qe == nil {
				e.Chooser.Feedback(ctx, chooser.Feedback{IPs: []net.IP{ip}})
				return resp, nil, 0
			}
			lastErr = qe
			triedIPs[net.JoinHostPort(ip.String(), portOf(ep))] = true
			e.Chooser.Feedback(ctx, chooser.Feedback{IPs: []net.IP{ip}, Error: qe})

			lastDecision = e.classify(req, qe, stats)
			qlog.Debugf(ep, "attempt against %s failed: %v, decision=%s", ip, qe, lastDecision)
			switch lastDecision {
			case retrier.DontRetry:
				return nil, qe, lastDecision
			case retrier.TryAlternativeEndpoints:
				return nil, qe, lastDecision
			default: // TryNextServer: move on to the next candidate IP / endpoint
				stats.OnEndpointSwitch()
			}
		}
	}
	if lastErr == nil {
		lastErr = qerr.New(qerr.KindUnknownHost, fmt.Errorf("no candidate endpoints available"))
	}
	return nil, lastErr, lastDecision
}

// attemptUntilEndpointExhausted repeats the same IP while the retrier
// keeps returning RetryRequest/Throttled, sleeping a backoff between
// attempts, and stops as soon as a terminal decision or success occurs.
func (e *Executor) attemptUntilEndpointExhausted(ctx context.Context, req Request, ep endpoint.Endpoint, ip net.IP, stats *qerr.RetriedStatsInfo) (*http.Response, *qerr.Error) {
	host := net.JoinHostPort(ip.String(), portOf(ep))
	for {
		resp, qe := e.attempt(ctx, req, ep, ip, host)
		if qe == nil {
			return resp, nil
		}
		decision := e.classify(req, qe, stats)
		stats.OnAttemptFailed()
		e.Callbacks.fireError(qe)
		if decision != retrier.RetryRequest && decision != retrier.Throttled {
			return nil, qe
		}
		stats.OnSameEndpointRetry()
		delay := e.Backoff.Time(backoff.Attempt{
			Decision:                 decision,
			Err:                      qe,
			RetriedOnCurrentEndpoint: stats.RetriedOnCurrentEndpoint,
			RetriedTotal:             stats.RetriedTotal,
		})
		e.Metrics.ObserveRetry(decision.String())
		e.Callbacks.fireBeforeBackoff(stats.RetriedTotal, delay)
		select {
		case <-ctx.Done():
			return nil, qerr.New(qerr.KindUserCanceled, ctx.Err())
		case <-time.After(delay):
		}
		e.Callbacks.fireAfterBackoff(stats.RetriedTotal, delay)
	}
}

// classify turns a *qerr.Error into a retry Decision, consulting the
// request's idempotency label.
func (e *Executor) classify(req Request, qe *qerr.Error, stats *qerr.RetriedStatsInfo) retrier.Decision {
	return e.Retrier.Retry(retrier.Attempt{
		Method:                   req.Method,
		Idempotent:               req.isIdempotent(retrier.MethodIsSafe),
		Err:                      qe,
		StatusCode:               qe.StatusCode,
		RetriedOnCurrentEndpoint: stats.RetriedOnCurrentEndpoint,
		RetriedTotal:             stats.RetriedTotal,
	})
}

func portOf(ep endpoint.Endpoint) string {
	if ep.Port() == 0 {
		return "443"
	}
	return fmt.Sprintf("%d", ep.Port())
}

// attempt performs exactly one physical HTTP round-trip against ip,
// signing, sending and judging the response (spec §4.5 step 3).
func (e *Executor) attempt(ctx context.Context, req Request, ep endpoint.Endpoint, ip net.IP, host string) (*http.Response, *qerr.Error) {
	httpReq, bodySample, err := e.buildRequest(ctx, req, ep, host)
	if err == ErrBodyNotSeekable {
		return nil, qerr.New(qerr.KindLocalIO, err)
	}
	if err != nil {
		return nil, qerr.New(qerr.KindInvalidURL, err)
	}

	if err := e.Callbacks.fireBeforeSign(httpReq); err != nil {
		return nil, classifyCallbackErr(err)
	}
	if e.Auth != nil {
		if err := e.Auth.Sign(ctx, httpReq, bodySample); err != nil {
			return nil, qerr.New(qerr.KindCallbackError, err)
		}
	}
	if err := e.Callbacks.fireAfterSign(httpReq); err != nil {
		return nil, classifyCallbackErr(err)
	}
	if req.Body != nil && req.Body.Seekable() {
		fresh, err := req.Body.Reset()
		if err != nil {
			return nil, qerr.New(qerr.KindLocalIO, err)
		}
		httpReq.Body = toReadCloser(fresh)
	}

	start := time.Now()
	resp, err := e.Caller.Call(httpReq)
	duration := time.Since(start)
	if err != nil {
		qe := classifyTransportError(err)
		qe.Host = host
		e.Callbacks.fireRequestLog(req.Method, httpReq.URL.String(), 0, duration, "")
		return nil, qe
	}

	if err := e.Callbacks.fireReceiveStatus(resp.StatusCode); err != nil {
		drainAndClose(resp)
		return nil, classifyCallbackErr(err)
	}
	if err := e.Callbacks.fireReceiveHeaders(resp.Header); err != nil {
		drainAndClose(resp)
		return nil, classifyCallbackErr(err)
	}

	reqid := resp.Header.Get("X-Reqid")
	e.Callbacks.fireRequestLog(req.Method, httpReq.URL.String(), resp.StatusCode, duration, reqid)

	_, qe := judge(resp, host)
	if qe != nil {
		qe.Host = host
		drainAndClose(resp)
		return nil, qe
	}
	e.Callbacks.fireSuccess(resp)
	return resp, nil
}

func classifyCallbackErr(err error) *qerr.Error {
	if _, ok := err.(Cancel); ok {
		return qerr.New(qerr.KindUserCanceled, err)
	}
	return qerr.New(qerr.KindCallbackError, err)
}

func (e *Executor) buildRequest(ctx context.Context, req Request, ep endpoint.Endpoint, host string) (*http.Request, []byte, error) {
	scheme := "https"
	if !e.UseHTTPS {
		scheme = "http"
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   req.Path,
	}
	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var bodySample []byte
	if req.Body != nil {
		r, err := req.Body.Reset()
		if err != nil {
			return nil, nil, err
		}
		if bb, ok := req.Body.(BytesBody); ok {
			bodySample = bb.Data
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), r)
		if err != nil {
			return nil, nil, err
		}
		applyHeaders(httpReq, req, ep)
		if httpReq.ContentLength == 0 {
			httpReq.ContentLength = req.Body.Len()
		}
		return httpReq, bodySample, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	applyHeaders(httpReq, req, ep)
	return httpReq, nil, nil
}

func applyHeaders(httpReq *http.Request, req Request, ep endpoint.Endpoint) {
	if ep.IsDomain() {
		httpReq.Host = ep.DomainName()
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	// A fresh ID per physical attempt lets server-side logs be
	// correlated with a specific retry even when RetriedStatsInfo never
	// reaches them.
	httpReq.Header.Set("X-Qn-Client-Attempt-Id", uuid.New().String())
}

func toReadCloser(r io.Reader) io.ReadCloser {
	if rc, ok := r.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(r)
}
