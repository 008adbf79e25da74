package ssl

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/hostfake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticDNS(ips ...string) LookupFunc {
	return func(context.Context, string, string) ([]netip.Addr, error) {
		var out []netip.Addr
		for _, ip := range ips {
			out = append(out, netip.MustParseAddr(ip))
		}
		return out, nil
	}
}

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) Fetch(ctx context.Context, url string) (string, error) { return f(ctx, url) }

func staticIP(ip string) Fetcher {
	return fetcherFunc(func(context.Context, string) (string, error) { return ip + "\n", nil })
}

func newProvisioner(t *testing.T, dns LookupFunc, ip Fetcher) (*Provisioner, *hostfake.Host) {
	t.Helper()
	h := hostfake.New(t)
	pub := NewPublicIP([]string{"https://a.example", "https://b.example"}, ip)
	pub.Delay = time.Millisecond
	return &Provisioner{
		Host:    h,
		DNS:     NewDNSChecker(nil, time.Second).WithLookup(dns),
		IP:      pub,
		Timeout: time.Minute,
		Out:     formatter.NewWriter(&bytes.Buffer{}, false, true),
	}, h
}

func TestProvision_SkipsOnMismatch(t *testing.T) {
	t.Parallel()

	p, h := newProvisioner(t, staticDNS("203.0.113.10"), staticIP("198.51.100.7"))
	res := p.Provision(context.Background(), "shop.example.com")

	assert.Equal(t, StatusSkipped, res.Status)
	assert.Contains(t, res.Reason, "203.0.113.10")
	assert.False(t, h.Ran("certbot"), "certbot must not run on a mismatch")
}

func TestProvision_SkipsOnLookupFailure(t *testing.T) {
	t.Parallel()

	failing := func(context.Context, string, string) ([]netip.Addr, error) { return nil, errors.New("no such host") }
	p, h := newProvisioner(t, failing, staticIP("198.51.100.7"))
	res := p.Provision(context.Background(), "shop.example.com")

	assert.Equal(t, StatusSkipped, res.Status)
	assert.Contains(t, res.Reason, "DNS lookup failed")
	assert.False(t, h.Ran("certbot"))
}

func TestProvision_Issues(t *testing.T) {
	t.Parallel()

	p, h := newProvisioner(t, staticDNS("198.51.100.7", "198.51.100.8"), staticIP("198.51.100.7"))
	p.Email = "ops@example.com"
	res := p.Provision(context.Background(), "shop.example.com")

	assert.Equal(t, StatusIssued, res.Status)
	assert.True(t, res.Secure())
	assert.True(t, h.Ran("certbot --nginx -d shop.example.com --non-interactive --agree-tos --redirect --email ops@example.com"))
}

func TestProvision_IssueFailed(t *testing.T) {
	t.Parallel()

	p, h := newProvisioner(t, staticDNS("198.51.100.7"), staticIP("198.51.100.7"))
	h.Fail("certbot", "too many certificates already issued")
	res := p.Provision(context.Background(), "shop.example.com")
	assert.Equal(t, StatusIssueFailed, res.Status)
	assert.False(t, res.Secure())
}

func TestCertbotArgs_WithoutEmail(t *testing.T) {
	t.Parallel()
	assert.Contains(t, CertbotArgs("a.example", ""), "--register-unsafely-without-email")
}

func TestLookupA_FallsThroughResolvers(t *testing.T) {
	t.Parallel()

	var calls []string
	c := NewDNSChecker([]string{"10.0.0.1:53", "10.0.0.2:53"}, time.Second).WithLookup(
		func(_ context.Context, resolver, _ string) ([]netip.Addr, error) {
			calls = append(calls, resolver)
			if resolver == "10.0.0.1:53" {
				return nil, errors.New("i/o timeout")
			}
			return []netip.Addr{netip.MustParseAddr("198.51.100.9"), netip.MustParseAddr("198.51.100.1")}, nil
		})

	ips, err := c.LookupA(context.Background(), "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"198.51.100.1", "198.51.100.9"}, ips)
	assert.Equal(t, []string{"10.0.0.1:53", "10.0.0.2:53"}, calls)
}

func TestPublicIP_FallsBackToNextService(t *testing.T) {
	t.Parallel()

	var aCalls atomic.Int32
	f := fetcherFunc(func(_ context.Context, url string) (string, error) {
		if url == "https://a.example" {
			aCalls.Add(1)
			return "", errors.New("connection refused")
		}
		return "198.51.100.7", nil
	})
	p := NewPublicIP([]string{"https://a.example", "https://b.example"}, f)
	p.Delay = time.Millisecond

	ip, err := p.Lookup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)
	assert.Equal(t, int32(2), aCalls.Load(), "the open breaker drops the remaining retries")
	assert.True(t, p.breakers["https://a.example"].IsOpen())

	// A later lookup on the same PublicIP goes straight to the next service.
	ip, err = p.Lookup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)
	assert.Equal(t, int32(2), aCalls.Load())
}

func TestPublicIP_RejectsGarbage(t *testing.T) {
	t.Parallel()

	p := NewPublicIP([]string{"https://a.example"}, staticIP("<html>rate limited</html>"))
	p.Delay = time.Millisecond
	_, err := p.Lookup(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an IPv4 address")
}

func TestHTTPFetcher(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("198.51.100.7\n"))
	}))
	defer srv.Close()

	p := NewPublicIP([]string{srv.URL}, HTTPFetcher{Client: srv.Client()})
	ip, err := p.Lookup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", ip)
}

func TestHostFetcher(t *testing.T) {
	t.Parallel()

	h := hostfake.New(t).On("curl", "198.51.100.7", nil)
	body, err := HostFetcher{Host: h, Timeout: 5 * time.Second}.Fetch(context.Background(), "https://api.ipify.org")
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.7", body)
	assert.True(t, h.Ran("curl -4 -fsS --max-time 5 https://api.ipify.org"))
}
