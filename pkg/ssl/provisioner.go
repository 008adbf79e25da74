// Package ssl obtains a Let's Encrypt certificate for the site, but only
// when the domain already points at the server.
package ssl

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
)

// Status is the outcome of a certificate request.
type Status string

const (
	StatusSkipped     Status = "skipped"
	StatusIssued      Status = "issued"
	StatusIssueFailed Status = "issue_failed"
)

// Result explains a Status.
type Result struct {
	Status   Status
	Reason   string
	ServerIP string
	DNS      []string
}

// Secure reports whether the site now serves HTTPS.
func (r Result) Secure() bool { return r.Status == StatusIssued }

// Provisioner requests certificates with certbot's nginx plugin.
type Provisioner struct {
	Host    host.Host
	DNS     *DNSChecker
	IP      *PublicIP
	Email   string
	Timeout time.Duration
	Out     *formatter.Output
}

// Provision never returns an error: any failure degrades to a skipped or
// failed Result and the install carries on over plain HTTP.
func (p *Provisioner) Provision(ctx context.Context, domain string) Result {
	records, err := p.DNS.LookupA(ctx, domain)
	if err != nil {
		return p.skip(Result{Reason: "DNS lookup failed: " + err.Error()})
	}

	serverIP, err := p.IP.Lookup(ctx)
	if err != nil {
		return p.skip(Result{DNS: records, Reason: err.Error()})
	}

	res := Result{ServerIP: serverIP, DNS: records}
	if !slices.Contains(records, serverIP) {
		res.Reason = fmt.Sprintf("%s resolves to %s, this server is %s", domain, strings.Join(records, ", "), serverIP)
		return p.skip(res)
	}

	p.Out.Step("Requesting a certificate for %s", domain)
	if _, err := p.Host.Exec(ctx, host.Cmd("certbot", CertbotArgs(domain, p.Email)...).WithTimeout(p.Timeout)); err != nil {
		res.Status = StatusIssueFailed
		res.Reason = err.Error()
		p.Out.Warning("Certificate request failed, the site stays on HTTP: %v", err)
		return res
	}
	res.Status = StatusIssued
	p.Out.Success("Certificate issued for %s", domain)
	return res
}

func (p *Provisioner) skip(res Result) Result {
	res.Status = StatusSkipped
	p.Out.Warning("Skipping certificate: %s", res.Reason)
	return res
}

// CertbotArgs builds the certbot command line.
func CertbotArgs(domain, email string) []string {
	args := []string{"--nginx", "-d", domain, "--non-interactive", "--agree-tos", "--redirect"}
	if email != "" {
		return append(args, "--email", email)
	}
	return append(args, "--register-unsafely-without-email")
}
