package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	DefaultUserAgent    = "ratings-crawler/1.0 (+contact@example.com)"
	DefaultAcceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultRetries      = 2
)

// AppConfig holds the global application configuration.
// Values come from an optional YAML file, then environment variables override them.
type AppConfig struct {
	UserAgent               string           `yaml:"user_agent" env:"USER_AGENT"`
	AcceptHeader            string           `yaml:"accept_header" env:"ACCEPT_HEADER"`
	Concurrency             int              `yaml:"concurrency" env:"CONCURRENCY"`           // Global in-flight request ceiling
	RequestTimeout          time.Duration    `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`   // Per attempt
	Retries                 int              `yaml:"retries" env:"RETRIES"`                   // Retries after the first attempt, transport errors only
	RetryBaseDelay          time.Duration    `yaml:"retry_base_delay" env:"RETRY_BASE_DELAY"` // Backoff unit before jitter
	RetryJitter             time.Duration    `yaml:"retry_jitter" env:"RETRY_JITTER"`         // Upper bound of random jitter added to the unit
	SemaphoreAcquireTimeout time.Duration    `yaml:"semaphore_acquire_timeout" env:"SEMAPHORE_ACQUIRE_TIMEOUT"`
	MaxBodyBytes            int64            `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"` // 0 = unlimited
	HostRate                float64          `yaml:"host_rate" env:"HOST_RATE"`           // Requests per second per host, 0 = no per-host limit
	HostBurst               int              `yaml:"host_burst" env:"HOST_BURST"`
	DisableRobots           bool             `yaml:"disable_robots" env:"DISABLE_ROBOTS"`
	RobotsTTL               time.Duration    `yaml:"robots_ttl" env:"ROBOTS_TTL"` // 0 = cached robots.txt never expires
	StateDir                string           `yaml:"state_dir" env:"STATE_DIR"`
	LogLevel                string           `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat               string           `yaml:"log_format" env:"LOG_FORMAT"` // "text" or "json"
	MetricsAddr             string           `yaml:"metrics_addr" env:"METRICS_ADDR"`
	DNSServer               string           `yaml:"dns_server" env:"DNS_SERVER"`
	DNSTimeout              time.Duration    `yaml:"dns_timeout" env:"DNS_TIMEOUT"`
	HTTPClientSettings      HTTPClientConfig `yaml:"http_client_settings"`
	Limits                  StageLimits      `yaml:"limits"`
	MillionVerifier         VerifierConfig   `yaml:"millionverifier" env-prefix:"MILLIONVERIFIER_"`
	DeBounce                VerifierConfig   `yaml:"debounce" env-prefix:"DEBOUNCE_"`
	VerifyTTLDays           int              `yaml:"verify_ttl_days" env:"VERIFY_TTL_DAYS"`
	Apify                   ApifyConfig      `yaml:"apify"`
}

// RespectRobots reports whether robots.txt rules gate outbound requests
func (c *AppConfig) RespectRobots() bool {
	return !c.DisableRobots
}

// HTTPClientConfig holds settings for the shared HTTP client transport
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
	MaxRedirects          int           `yaml:"max_redirects,omitempty"`
}

// StageLimits bounds how many items each batch stage handles per run
type StageLimits struct {
	Resolve                int `yaml:"resolve" env:"RESOLVE_LIMIT"`
	Discover               int `yaml:"discover" env:"DISCOVER_LIMIT"`
	MaxProductsPerMerchant int `yaml:"max_products_per_merchant" env:"MAX_PRODUCTS_PER_MERCHANT"`
	Extract                int `yaml:"extract" env:"EXTRACT_LIMIT"`
	Policies               int `yaml:"policies" env:"POLICIES_LIMIT"`
	Emails                 int `yaml:"emails" env:"EMAILS_LIMIT"`
	Verify                 int `yaml:"verify" env:"VERIFY_LIMIT"`
	Social                 int `yaml:"social" env:"SOCIAL_LIMIT"`
	Aggregate              int `yaml:"aggregate" env:"AGGREGATE_LIMIT"`
}

// VerifierConfig configures an email verification service
type VerifierConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	APIKey      string `yaml:"api_key" env:"API_KEY"`
	BaseURL     string `yaml:"base_url" env:"BASE_URL"`
	TimeoutSecs int    `yaml:"timeout_secs" env:"TIMEOUT_SECS"`
}

// Active reports whether the verifier is both enabled and has credentials
func (v VerifierConfig) Active() bool {
	return v.Enabled && v.APIKey != ""
}

// ApifyConfig configures the social last-post lookup
type ApifyConfig struct {
	Token          string        `yaml:"token" env:"APIFY_TOKEN"`
	BaseURL        string        `yaml:"base_url" env:"APIFY_BASE_URL"`
	WaitForFinish  time.Duration `yaml:"wait_for_finish" env:"APIFY_WAIT_FOR_FINISH"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"APIFY_REQUEST_TIMEOUT"` // Added to WaitForFinish for the run call
	LookbackDays   int           `yaml:"lookback_days" env:"IG_LOOKBACK_DAYS"`
}

// Load reads configuration from path (if non-empty) and the environment.
// Only Retries is preset here, since zero is a meaningful value for it;
// the remaining defaults are applied by Validate.
func Load(path string) (*AppConfig, error) {
	// Preset before decoding so an explicit "retries: 0" or RETRIES=0 survives
	cfg := AppConfig{Retries: DefaultRetries}
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config '%s': %w", path, err)
	}
	return &cfg, nil
}
