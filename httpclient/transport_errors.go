package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"

	"github.com/qiniu/go-sdk-core/qerr"
)

// classifyTransportError maps a raw error returned by an HttpCaller
// (before any HTTP response was received) to a qerr.Kind, per spec §7's
// transport-level kind list.
func classifyTransportError(err error) *qerr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return qerr.New(qerr.KindUserCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return qerr.New(qerr.KindTimeout, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return qerr.New(qerr.KindTimeout, err)
		}
		if _, ok := errors.Unwrap(urlErr).(Cancel); ok {
			return qerr.New(qerr.KindUserCanceled, err)
		}
	}
	if _, ok := err.(Cancel); ok {
		return qerr.New(qerr.KindUserCanceled, err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return qerr.New(qerr.KindUnknownHost, err)
		}
		if dnsErr.IsTimeout {
			return qerr.New(qerr.KindTimeout, err)
		}
		return qerr.New(qerr.KindDNSServerError, err)
	}

	var certErr x509.UnknownAuthorityError
	if errors.As(err, &certErr) {
		return qerr.New(qerr.KindServerCert, err)
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return qerr.New(qerr.KindServerCert, err)
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return qerr.New(qerr.KindServerCert, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return qerr.New(qerr.KindConnectError, err)
		}
		if opErr.Timeout() {
			return qerr.New(qerr.KindTimeout, err)
		}
		if opErr.Op == "read" {
			return qerr.New(qerr.KindReceiveError, err)
		}
		return qerr.New(qerr.KindSendError, err)
	}

	return qerr.New(qerr.KindUnknown, err)
}
