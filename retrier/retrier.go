// Package retrier classifies a failed attempt into a retry decision
// (spec §4.3, component C4).
package retrier

import (
	"net/http"

	"github.com/qiniu/go-sdk-core/qerr"
)

// Decision is the outcome of classifying a failed attempt.
type Decision int

const (
	// DontRetry means the error is final; bubble it up.
	DontRetry Decision = iota
	// RetryRequest means retry the same endpoint after a backoff sleep.
	RetryRequest
	// Throttled is like RetryRequest but signals the failure was a
	// rate-limit response rather than a transient fault.
	Throttled
	// TryNextServer means give up on this IP/endpoint and move to the
	// next one in the current (preferred or alternative) list.
	TryNextServer
	// TryAlternativeEndpoints means the preferred list is exhausted or
	// untrustworthy; switch to the alternative endpoint list.
	TryAlternativeEndpoints
)

func (d Decision) String() string {
	switch d {
	case DontRetry:
		return "dont-retry"
	case RetryRequest:
		return "retry-request"
	case Throttled:
		return "throttled"
	case TryNextServer:
		return "try-next-server"
	case TryAlternativeEndpoints:
		return "try-alternative-endpoints"
	default:
		return "decision(?)"
	}
}

// Attempt carries everything a Retrier needs to classify a failure.
type Attempt struct {
	Method                   string
	Idempotent               bool // true if the method is safe, or the caller declared Always-idempotent
	Err                      error
	StatusCode               int // 0 if the failure was transport-level, no response received
	RetriedOnCurrentEndpoint int
	RetriedTotal             int
}

// Retrier classifies a failed Attempt into a Decision.
type Retrier interface {
	Retry(a Attempt) Decision
}

// RetrierFunc adapts a function to a Retrier.
type RetrierFunc func(a Attempt) Decision

func (f RetrierFunc) Retry(a Attempt) Decision { return f(a) }

// ErrorRetrier implements the status/kind decision table of spec §4.3.
// It is the default, wire-compatibility-sensitive retrier: the mapping
// from vendor status codes to decisions must not change independently
// of the upstream services that define them.
type ErrorRetrier struct{}

// statusDontRetry lists status codes that are always final, beyond the
// generic 400-501 range. 630/631/632/640 are a discrete vendor list, not
// a continuous range; codes 633-639, like every other unlisted code of
// 500 or above, fall through to the generic try-next-server bucket.
var statusDontRetry = map[int]bool{
	579: true, 599: true,
	608: true, 612: true, 614: true, 616: true, 618: true,
	630: true, 631: true, 632: true, 640: true,
	701: true,
}

func (ErrorRetrier) Retry(a Attempt) Decision {
	if a.StatusCode != 0 {
		return retryByStatus(a.StatusCode)
	}
	return retryByKind(a)
}

func retryByStatus(code int) Decision {
	switch {
	case code == 509 || code == 573:
		return Throttled
	case code >= 400 && code <= 501:
		return DontRetry
	case statusDontRetry[code]:
		return DontRetry
	case code >= 500:
		return TryNextServer
	default:
		return DontRetry
	}
}

func retryByKind(a Attempt) Decision {
	kind := qerr.KindOf(a.Err)
	switch kind {
	case qerr.KindProtocolError, qerr.KindProxyError, qerr.KindDNSServerError,
		qerr.KindSendError, qerr.KindTimeout, qerr.KindMaliciousResponse:
		return RetryRequest
	case qerr.KindInvalidURL, qerr.KindUnknownHost, qerr.KindConnectError:
		return TryNextServer
	case qerr.KindServerCert:
		return TryAlternativeEndpoints
	case qerr.KindClientCert, qerr.KindTooManyRedirect, qerr.KindLocalIO,
		qerr.KindCallbackError, qerr.KindUserCanceled:
		return DontRetry
	case qerr.KindReceiveError, qerr.KindUnknown, qerr.KindParseResponse, qerr.KindUnexpectedEOF:
		if a.Idempotent {
			return RetryRequest
		}
		return DontRetry
	default:
		return DontRetry
	}
}

// MethodIsSafe reports whether method is one of the HTTP methods
// considered idempotent by default (GET/HEAD/OPTIONS/PUT/DELETE),
// matching the "method-safe, or Always" clause of spec §4.3.
func MethodIsSafe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// LimitedRetrier wraps an inner Retrier and downgrades RetryRequest and
// Throttled decisions once the per-endpoint or total attempt budget is
// spent, so a persistently flaky endpoint doesn't loop forever.
type LimitedRetrier struct {
	Inner                 Retrier
	MaxRetriesPerEndpoint int // default 2
	MaxTotalRetries       int // default: unlimited (0)
}

const defaultMaxRetriesPerEndpoint = 2

func (l LimitedRetrier) Retry(a Attempt) Decision {
	d := l.Inner.Retry(a)
	if d != RetryRequest && d != Throttled {
		return d
	}
	maxPerEndpoint := l.MaxRetriesPerEndpoint
	if maxPerEndpoint <= 0 {
		maxPerEndpoint = defaultMaxRetriesPerEndpoint
	}
	if l.MaxTotalRetries > 0 && a.RetriedTotal >= l.MaxTotalRetries {
		return DontRetry
	}
	if a.RetriedOnCurrentEndpoint >= maxPerEndpoint {
		return TryNextServer
	}
	return d
}
