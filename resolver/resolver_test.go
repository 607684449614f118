package resolver

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ips(ss ...string) []net.IP {
	out := make([]net.IP, len(ss))
	for i, s := range ss {
		out[i] = net.ParseIP(s)
	}
	return out
}

func TestShuffledPreservesSet(t *testing.T) {
	base := ResolverFunc(func(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
		return ips("10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"), nil
	})
	r := Shuffled{Inner: base}
	got, err := r.Resolve(context.Background(), "example.com", Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, ips("10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"), got)
}

func TestTimeoutPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	base := ResolverFunc(func(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
		return nil, wantErr
	})
	r := Timeout{Inner: base, Timeout: time.Second}
	_, err := r.Resolve(context.Background(), "example.com", Options{})
	assert.ErrorIs(t, err, wantErr)
}

func TestTimeoutExceeded(t *testing.T) {
	base := ResolverFunc(func(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r := Timeout{Inner: base, Timeout: 10 * time.Millisecond}
	_, err := r.Resolve(context.Background(), "example.com", Options{})
	require.Error(t, err)
}

func TestCachedServesRepeatLookupFromCache(t *testing.T) {
	var calls int32
	base := ResolverFunc(func(ctx context.Context, domain string, opts Options) ([]net.IP, error) {
		calls++
		return ips("10.0.0.1"), nil
	})
	c := NewCached(base, time.Minute, time.Minute)

	got, err := c.Resolve(context.Background(), "example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, ips("10.0.0.1"), got)

	got2, err := c.Resolve(context.Background(), "example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, ips("10.0.0.1"), got2)
	assert.EqualValues(t, 1, calls, "second call should be served from cache")
}
