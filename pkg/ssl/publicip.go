package ssl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/httputil"
	"github.com/redentordev/laravel-vps/pkg/resilience"
	"github.com/redentordev/laravel-vps/pkg/telemetry"
	"github.com/redentordev/laravel-vps/pkg/utils"
)

// Fetcher returns the body of a plain-text URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches from this process. Only correct when laravel-vps runs
// on the server being provisioned.
type HTTPFetcher struct {
	Client *http.Client
}

func (f HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	ctx, span := telemetry.TraceHTTP(ctx, http.MethodGet, url)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", resilience.PermanentError(err)
	}
	req.Header.Set("User-Agent", "laravel-vps")
	client := f.Client
	if client == nil {
		client = httputil.NewClientWithTimeout(10 * time.Second)
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	return string(body), err
}

// HostFetcher fetches with curl on the host, so remote runs see the
// server's address instead of the workstation's.
type HostFetcher struct {
	Host    host.Host
	Timeout time.Duration
}

func (f HostFetcher) Fetch(ctx context.Context, url string) (string, error) {
	secs := int(f.Timeout.Seconds())
	if secs < 1 {
		secs = 10
	}
	return f.Host.Exec(ctx, host.Query("curl", "-4", "-fsS", "--max-time", fmt.Sprint(secs), url))
}

// PublicIP discovers the server's public IPv4 address through echo services.
// Every attempt goes through the service's circuit breaker; once it opens,
// the service's remaining retries are dropped and the next service is tried.
type PublicIP struct {
	Services []string
	Fetcher  Fetcher
	Retries  uint64
	Delay    time.Duration
	// FailureThreshold is how many consecutive failures open a breaker.
	FailureThreshold uint32

	breakers map[string]*resilience.ServiceBreaker
}

// NewPublicIP creates a PublicIP.
func NewPublicIP(services []string, f Fetcher) *PublicIP {
	return &PublicIP{Services: services, Fetcher: f, Retries: 3, Delay: 500 * time.Millisecond, FailureThreshold: 2}
}

// Lookup returns the first valid address any service reports.
func (p *PublicIP) Lookup(ctx context.Context) (string, error) {
	var errs utils.MultiError
	for _, svc := range p.Services {
		ip, err := p.fetch(ctx, svc, p.breaker(svc))
		if err == nil {
			return ip, nil
		}
		errs.Add(fmt.Errorf("%s: %w", svc, err))
	}
	return "", fmt.Errorf("could not determine public IP: %w", errs.ErrorOrNil())
}

func (p *PublicIP) breaker(svc string) *resilience.ServiceBreaker {
	if p.breakers == nil {
		p.breakers = map[string]*resilience.ServiceBreaker{}
	}
	br, ok := p.breakers[svc]
	if !ok {
		var opts []resilience.BreakerOption
		if p.FailureThreshold > 0 {
			opts = append(opts, resilience.WithFailureThreshold(p.FailureThreshold))
		}
		br = resilience.NewServiceBreaker("public-ip:"+svc, opts...)
		p.breakers[svc] = br
	}
	return br
}

func (p *PublicIP) fetch(ctx context.Context, svc string, br *resilience.ServiceBreaker) (string, error) {
	var ip string
	err := resilience.RetryWithBackoff(ctx, func() error {
		addr, err := resilience.ExecuteWithResult(br, func() (string, error) {
			return p.fetchOnce(ctx, svc)
		})
		if resilience.IsOpenError(err) {
			return resilience.PermanentError(err)
		}
		if err != nil {
			return err
		}
		ip = addr
		return nil
	},
		resilience.WithMaxRetries(p.Retries),
		resilience.WithInitialDelay(p.Delay),
		resilience.WithMaxElapsed(30*time.Second),
	)
	return ip, err
}

func (p *PublicIP) fetchOnce(ctx context.Context, svc string) (string, error) {
	body, err := p.Fetcher.Fetch(ctx, svc)
	if err != nil {
		return "", err
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(body))
	if err != nil || !addr.Is4() {
		return "", resilience.PermanentError(fmt.Errorf("not an IPv4 address: %q", strings.TrimSpace(body)))
	}
	return addr.String(), nil
}
