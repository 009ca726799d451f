package parse

import (
	"net"
	"net/url"
	"strings"
)

// EnsureScheme prefixes https:// when domain carries no http(s) scheme
func EnsureScheme(domain string) string {
	d := strings.TrimSpace(domain)
	lower := strings.ToLower(d)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return d
	}
	return "https://" + d
}

// Origin returns the lowercase scheme://host[:port] of rawURL, dropping default ports.
// Returns "" when rawURL has no scheme or host.
func Origin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
		}
	}
	return scheme + "://" + host
}

// TrimOrigin removes a trailing slash from an origin or base URL
func TrimOrigin(origin string) string {
	return strings.TrimSuffix(strings.TrimSpace(origin), "/")
}

// ResolveReference resolves href against base and returns the absolute URL.
// Only http(s) results are accepted; the fragment is removed.
func ResolveReference(base, href string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", false
	}
	abs := baseURL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

// StripFragment removes everything from the first '#'
func StripFragment(s string) string {
	if idx := strings.Index(s, "#"); idx >= 0 {
		return s[:idx]
	}
	return s
}
