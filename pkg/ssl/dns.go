package ssl

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"time"

	"github.com/redentordev/laravel-vps/pkg/utils"
)

// LookupFunc resolves the IPv4 addresses of domain using one resolver.
type LookupFunc func(ctx context.Context, resolver, domain string) ([]netip.Addr, error)

// DNSChecker resolves domains against public resolvers rather than the
// server's own, so stale local caches or split horizon setups do not hide
// what the certificate authority will see.
type DNSChecker struct {
	resolvers []string
	timeout   time.Duration
	lookup    LookupFunc
}

// NewDNSChecker creates a new DNS checker. With no resolvers it uses
// Cloudflare, Google and Quad9.
func NewDNSChecker(resolvers []string, timeout time.Duration) *DNSChecker {
	if len(resolvers) == 0 {
		resolvers = []string{
			"1.1.1.1:53", // Cloudflare
			"8.8.8.8:53", // Google
			"9.9.9.9:53", // Quad9
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &DNSChecker{resolvers: resolvers, timeout: timeout}
	c.lookup = c.lookupA
	return c
}

// WithLookup replaces the resolver, for tests.
func (c *DNSChecker) WithLookup(fn LookupFunc) *DNSChecker {
	c.lookup = fn
	return c
}

// LookupA returns the sorted A records of domain from the first resolver
// that answers.
func (c *DNSChecker) LookupA(ctx context.Context, domain string) ([]string, error) {
	var errs utils.MultiError
	for _, resolver := range c.resolvers {
		addrs, err := c.lookup(ctx, resolver, domain)
		if err != nil {
			errs.Add(fmt.Errorf("%s: %w", resolver, err))
			continue // Try next resolver
		}
		if len(addrs) == 0 {
			errs.Add(fmt.Errorf("%s: no A records", resolver))
			continue
		}
		ips := make([]string, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, a.String())
		}
		sort.Strings(ips)
		return ips, nil
	}
	return nil, fmt.Errorf("resolve %s: %w", domain, errs.ErrorOrNil())
}

// lookupA performs an A lookup using a specific resolver
func (c *DNSChecker) lookupA(ctx context.Context, resolver, domain string) ([]netip.Addr, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			d := net.Dialer{Timeout: c.timeout}
			return d.DialContext(ctx, "udp", resolver)
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 2*c.timeout)
	defer cancel()

	addrs, err := r.LookupNetIP(ctx, "ip4", domain)
	if err != nil {
		return nil, err
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	return addrs, nil
}
