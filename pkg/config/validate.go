package config

import (
	"fmt"
	"time"

	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.AcceptHeader == "" {
		c.AcceptHeader = DefaultAcceptHeader
	}

	// Concurrency
	if c.Concurrency <= 0 {
		if c.Concurrency < 0 {
			warnings = append(warnings, "concurrency should be > 0, defaulting to 6")
		}
		c.Concurrency = 6
	}

	// RequestTimeout
	if c.RequestTimeout < 0 {
		warnings = append(warnings, "request_timeout cannot be negative, defaulting to 15s")
		c.RequestTimeout = 0
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 15 * time.Second
	}

	// Retries: 0 disables retrying; the default of 2 is preset by Load
	if c.Retries < 0 {
		warnings = append(warnings, "retries cannot be negative, setting to 0")
		c.Retries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 250 * time.Millisecond
	}
	if c.RetryJitter < 0 {
		warnings = append(warnings, "retry_jitter cannot be negative, setting to 0")
		c.RetryJitter = 0
	} else if c.RetryJitter == 0 {
		c.RetryJitter = 500 * time.Millisecond
	}

	// SemaphoreAcquireTimeout must outlast a full retry sequence
	if c.SemaphoreAcquireTimeout <= 0 {
		c.SemaphoreAcquireTimeout = 2 * time.Minute
	}

	if c.MaxBodyBytes < 0 {
		warnings = append(warnings, "max_body_bytes cannot be negative, setting to 0 (unlimited)")
		c.MaxBodyBytes = 0
	}

	// Per-host politeness
	if c.HostRate < 0 {
		warnings = append(warnings, "host_rate cannot be negative, disabling per-host limit")
		c.HostRate = 0
	}
	if c.HostRate > 0 && c.HostBurst <= 0 {
		c.HostBurst = 1
	}

	if c.RobotsTTL < 0 {
		warnings = append(warnings, "robots_ttl cannot be negative, cached robots.txt will not expire")
		c.RobotsTTL = 0
	}

	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	switch c.LogFormat {
	case "":
		c.LogFormat = "text"
	case "text", "json":
	default:
		warnings = append(warnings, fmt.Sprintf("unknown log_format '%s', defaulting to 'text'", c.LogFormat))
		c.LogFormat = "text"
	}

	if c.DNSServer == "" {
		c.DNSServer = "8.8.8.8:53"
	}
	if c.DNSTimeout <= 0 {
		c.DNSTimeout = 5 * time.Second
	}

	c.validateHTTPClientSettings()
	warnings = append(warnings, c.Limits.applyDefaults()...)
	warnings = append(warnings, c.validateServices()...)

	return warnings, nil // AppConfig validation never fails fatally
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 10 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
	if h.MaxRedirects <= 0 {
		h.MaxRedirects = 10
	}
}

func (l *StageLimits) applyDefaults() (warnings []string) {
	set := func(name string, v *int, def int) {
		if *v < 0 {
			warnings = append(warnings, fmt.Sprintf("limits.%s cannot be negative, defaulting to %d", name, def))
		}
		if *v <= 0 {
			*v = def
		}
	}
	set("resolve", &l.Resolve, 20)
	set("discover", &l.Discover, 10)
	set("max_products_per_merchant", &l.MaxProductsPerMerchant, 50)
	set("extract", &l.Extract, 50)
	set("policies", &l.Policies, 15)
	set("emails", &l.Emails, 10)
	set("verify", &l.Verify, 50)
	set("social", &l.Social, 10)
	set("aggregate", &l.Aggregate, 25)
	return warnings
}

func (c *AppConfig) validateServices() (warnings []string) {
	if c.MillionVerifier.Enabled && c.MillionVerifier.APIKey == "" {
		warnings = append(warnings, "millionverifier is enabled but api_key is empty, verification disabled")
	}
	if c.MillionVerifier.BaseURL == "" {
		c.MillionVerifier.BaseURL = "https://api.millionverifier.com/api/v3/"
	}
	if c.MillionVerifier.TimeoutSecs == 0 {
		c.MillionVerifier.TimeoutSecs = 10
	}
	if c.DeBounce.Enabled && c.DeBounce.APIKey == "" {
		warnings = append(warnings, "debounce is enabled but api_key is empty, verification disabled")
	}
	if c.DeBounce.BaseURL == "" {
		c.DeBounce.BaseURL = "https://api.debounce.io/v1/"
	}
	if c.DeBounce.TimeoutSecs <= 0 {
		c.DeBounce.TimeoutSecs = 30
	}
	if c.VerifyTTLDays <= 0 {
		c.VerifyTTLDays = 90
	}

	if c.Apify.BaseURL == "" {
		c.Apify.BaseURL = "https://api.apify.com"
	}
	if c.Apify.WaitForFinish <= 0 {
		c.Apify.WaitForFinish = 60 * time.Second
	}
	if c.Apify.RequestTimeout <= 0 {
		c.Apify.RequestTimeout = 30 * time.Second
	}
	if c.Apify.LookbackDays <= 0 {
		c.Apify.LookbackDays = 30
	}
	return warnings
}

// Validate checks a seed merchant entry.
func (s *SeedMerchant) Validate() error {
	if s.Name == "" && s.Domain == "" {
		return fmt.Errorf("%w: seed merchant needs a name or a domain", utils.ErrConfigValidation)
	}
	if s.Name == "" {
		s.Name = s.Domain
	}
	return nil
}
