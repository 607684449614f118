package qerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error is the error type that crosses the resolver/chooser/retrier/
// executor boundary. It carries enough diagnostic context (spec §7)
// for a caller to understand why a logical call failed without having
// to unwrap transport-specific error types.
type Error struct {
	Kind       Kind
	StatusCode int    // only meaningful for KindStatusCode/KindUnexpectedStatusCode
	Reqid      string // x-reqid response header, if any
	Log        string // x-log response header, if any
	Sample     []byte // up to 1KiB of response body, for diagnostics
	Host       string // server IP/port of the attempt that failed
	cause      error
}

// New builds an Error wrapping cause with the given Kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: errors.WithStack(cause)}
}

// Newf builds an Error with a formatted message and no further cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, cause: errors.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Reqid != "" {
		return fmt.Sprintf("%s (reqid=%s): %v", e.Kind, e.Reqid, e.cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// WithDiagnostics attaches the response-derived diagnostic fields and
// returns the receiver for chaining.
func (e *Error) WithDiagnostics(statusCode int, reqid, log string, sample []byte, host string) *Error {
	e.StatusCode = statusCode
	e.Reqid = reqid
	e.Log = log
	e.Sample = sample
	e.Host = host
	return e
}

// Cause returns the innermost error captured by Error, mirroring the
// rest of the corpus's use of github.com/pkg/errors for annotated
// causes. If err is not a *qerr.Error, err itself is returned.
func Cause(err error) error {
	var qe *Error
	if errors.As(err, &qe) {
		return errors.Cause(qe.cause)
	}
	return err
}

// KindOf extracts the Kind carried by err, or KindUnknown if err was
// never classified.
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindUnknown
}

// RetriedStatsInfo tracks attempt counters for a single logical call,
// per spec §3.
type RetriedStatsInfo struct {
	RetriedTotal                   int
	RetriedOnCurrentEndpoint       int
	SwitchedToAlternativeEndpoints bool
	AbandonedEndpointsCount        int
}

// OnAttemptFailed records that one physical attempt finished with a
// non-success decision, regardless of what that decision was. Called
// exactly once per failed attempt, before branching on its decision.
func (s *RetriedStatsInfo) OnAttemptFailed() {
	s.RetriedTotal++
}

// OnSameEndpointRetry records an attempt that will be retried against
// the same endpoint (decision RetryRequest or Throttled).
func (s *RetriedStatsInfo) OnSameEndpointRetry() {
	s.RetriedOnCurrentEndpoint++
}

// OnEndpointSwitch records a move to a new endpoint: the per-endpoint
// counter resets to 0, per invariant 2.
func (s *RetriedStatsInfo) OnEndpointSwitch() {
	s.RetriedOnCurrentEndpoint = 0
	s.AbandonedEndpointsCount++
}
