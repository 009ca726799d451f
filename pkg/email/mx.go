package email

import (
	"context"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

// MXChecker reports whether a mail domain publishes MX records.
// Lookup failures count as no records.
type MXChecker interface {
	HasMX(ctx context.Context, domain string) bool
}

// DNSChecker queries MX records from a single resolver
type DNSChecker struct {
	client *dns.Client
	server string // host:port
	log    *logrus.Entry
}

// NewDNSChecker creates a DNSChecker against server (e.g. "8.8.8.8:53")
func NewDNSChecker(server string, timeout time.Duration, log *logrus.Logger) *DNSChecker {
	return &DNSChecker{
		client: &dns.Client{Timeout: timeout},
		server: server,
		log:    log.WithField("component", "mx_checker"),
	}
}

// HasMX implements MXChecker
func (c *DNSChecker) HasMX(ctx context.Context, domain string) bool {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return false
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), dns.TypeMX)
	msg.RecursionDesired = true

	resp, _, err := c.client.ExchangeContext(ctx, msg, c.server)
	if err != nil {
		c.log.WithField("domain", domain).Debugf("MX lookup failed: %v", err)
		return false
	}
	if resp == nil || resp.Rcode != dns.RcodeSuccess {
		return false
	}
	for _, rr := range resp.Answer {
		if _, ok := rr.(*dns.MX); ok {
			return true
		}
	}
	return false
}
