package retrier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qiniu/go-sdk-core/qerr"
)

func TestErrorRetrierStatusTable(t *testing.T) {
	r := ErrorRetrier{}
	for _, test := range []struct {
		code int
		want Decision
	}{
		{509, Throttled},
		{573, Throttled},
		{400, DontRetry},
		{404, DontRetry},
		{501, DontRetry},
		{502, TryNextServer},
		{503, TryNextServer},
		{579, DontRetry},
		{599, DontRetry},
		{608, DontRetry},
		{630, DontRetry},
		{631, DontRetry},
		{632, DontRetry},
		{633, TryNextServer},
		{635, TryNextServer},
		{639, TryNextServer},
		{640, DontRetry},
		{701, DontRetry},
	} {
		got := r.Retry(Attempt{StatusCode: test.code})
		assert.Equal(t, test.want, got, "status %d", test.code)
	}
}

func TestErrorRetrierKindTable(t *testing.T) {
	r := ErrorRetrier{}
	for _, test := range []struct {
		kind qerr.Kind
		want Decision
	}{
		{qerr.KindProtocolError, RetryRequest},
		{qerr.KindProxyError, RetryRequest},
		{qerr.KindDNSServerError, RetryRequest},
		{qerr.KindSendError, RetryRequest},
		{qerr.KindTimeout, RetryRequest},
		{qerr.KindMaliciousResponse, RetryRequest},
		{qerr.KindInvalidURL, TryNextServer},
		{qerr.KindUnknownHost, TryNextServer},
		{qerr.KindConnectError, TryNextServer},
		{qerr.KindServerCert, TryAlternativeEndpoints},
		{qerr.KindClientCert, DontRetry},
		{qerr.KindTooManyRedirect, DontRetry},
		{qerr.KindLocalIO, DontRetry},
		{qerr.KindCallbackError, DontRetry},
		{qerr.KindUserCanceled, DontRetry},
	} {
		err := qerr.New(test.kind, assertErr)
		got := r.Retry(Attempt{Err: err})
		assert.Equal(t, test.want, got, test.kind.String())
	}
}

func TestErrorRetrierIdempotencyGatesReceiveErrors(t *testing.T) {
	r := ErrorRetrier{}
	err := qerr.New(qerr.KindReceiveError, assertErr)

	got := r.Retry(Attempt{Err: err, Idempotent: true})
	assert.Equal(t, RetryRequest, got)

	got = r.Retry(Attempt{Err: err, Idempotent: false})
	assert.Equal(t, DontRetry, got)
}

func TestMethodIsSafe(t *testing.T) {
	assert.True(t, MethodIsSafe("GET"))
	assert.True(t, MethodIsSafe("PUT"))
	assert.False(t, MethodIsSafe("POST"))
}

func TestLimitedRetrierDowngradesToTryNextServer(t *testing.T) {
	l := LimitedRetrier{Inner: RetrierFunc(func(Attempt) Decision { return RetryRequest }), MaxRetriesPerEndpoint: 2}

	assert.Equal(t, RetryRequest, l.Retry(Attempt{RetriedOnCurrentEndpoint: 0}))
	assert.Equal(t, RetryRequest, l.Retry(Attempt{RetriedOnCurrentEndpoint: 1}))
	assert.Equal(t, TryNextServer, l.Retry(Attempt{RetriedOnCurrentEndpoint: 2}))
}

func TestLimitedRetrierDowngradesToDontRetryOnTotalCap(t *testing.T) {
	l := LimitedRetrier{Inner: RetrierFunc(func(Attempt) Decision { return RetryRequest }), MaxTotalRetries: 3}

	assert.Equal(t, RetryRequest, l.Retry(Attempt{RetriedTotal: 2}))
	assert.Equal(t, DontRetry, l.Retry(Attempt{RetriedTotal: 3}))
}

func TestLimitedRetrierPassesThroughNonRetryDecisions(t *testing.T) {
	l := LimitedRetrier{Inner: RetrierFunc(func(Attempt) Decision { return DontRetry })}
	assert.Equal(t, DontRetry, l.Retry(Attempt{}))
}

var assertErr = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
