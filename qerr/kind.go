// Package qerr defines the error taxonomy shared by the resolver,
// chooser, retrier and request executor.
//
// Kind is deliberately coarse: it classifies failures the way the
// retrier needs to see them, not the way a particular transport
// library reports them. Transports and callers convert into a Kind at
// the boundary (see httpclient's judge) and everything above that layer
// only ever looks at Kind.
package qerr

import "strconv"

// Kind classifies a failure for retry purposes. See spec §7.
type Kind int

// Transport-level kinds.
const (
	KindUnknown Kind = iota
	KindInvalidURL
	KindProtocolError
	KindConnectError
	KindProxyError
	KindDNSServerError
	KindUnknownHost
	KindSendError
	KindReceiveError
	KindLocalIO
	KindTimeout
	KindTooManyRedirect
	KindServerCert
	KindClientCert
	KindCallbackError
	KindUserCanceled
)

// Protocol-level kinds, derived from an HTTP response rather than the
// transport.
const (
	KindStatusCode Kind = iota + 100
	KindUnexpectedStatusCode
	KindParseResponse
	KindUnexpectedEOF
	KindMaliciousResponse
	KindSystemCall
	KindNoTry
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindInvalidURL:
		return "invalid-url"
	case KindProtocolError:
		return "protocol-error"
	case KindConnectError:
		return "connect-error"
	case KindProxyError:
		return "proxy-error"
	case KindDNSServerError:
		return "dns-server-error"
	case KindUnknownHost:
		return "unknown-host"
	case KindSendError:
		return "send-error"
	case KindReceiveError:
		return "receive-error"
	case KindLocalIO:
		return "local-io-error"
	case KindTimeout:
		return "timeout"
	case KindTooManyRedirect:
		return "too-many-redirects"
	case KindServerCert:
		return "server-cert-error"
	case KindClientCert:
		return "client-cert-error"
	case KindCallbackError:
		return "callback-error"
	case KindUserCanceled:
		return "user-canceled"
	case KindStatusCode:
		return "status-code-error"
	case KindUnexpectedStatusCode:
		return "unexpected-status-code"
	case KindParseResponse:
		return "parse-response-error"
	case KindUnexpectedEOF:
		return "unexpected-eof"
	case KindMaliciousResponse:
		return "malicious-response"
	case KindSystemCall:
		return "system-call-error"
	case KindNoTry:
		return "no-try"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}
