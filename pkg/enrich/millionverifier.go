package enrich

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
)

const (
	ProviderMillionVerifier = "millionverifier"
	mvMinTimeout            = 2
	mvMaxTimeout            = 60
)

type millionVerifierResponse struct {
	Email     string `json:"email"`
	Quality   string `json:"quality"`
	Result    string `json:"result"`
	Subresult string `json:"subresult"`
	Error     string `json:"error"`
}

// MillionVerifier calls the MillionVerifier v3 single-address API
type MillionVerifier struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout int // seconds, passed to the API
}

// NewMillionVerifier creates a MillionVerifier. The API timeout is clamped to 2..60 seconds.
func NewMillionVerifier(client *http.Client, cfg config.VerifierConfig) *MillionVerifier {
	timeout := cfg.TimeoutSecs
	if timeout < mvMinTimeout {
		timeout = mvMinTimeout
	}
	if timeout > mvMaxTimeout {
		timeout = mvMaxTimeout
	}
	return &MillionVerifier{client: client, baseURL: cfg.BaseURL, apiKey: cfg.APIKey, timeout: timeout}
}

// Name implements EmailVerifier
func (m *MillionVerifier) Name() string { return ProviderMillionVerifier }

// Verify implements EmailVerifier
func (m *MillionVerifier) Verify(ctx context.Context, address string) (*Verification, error) {
	q := url.Values{}
	q.Set("api", m.apiKey)
	q.Set("email", address)
	q.Set("timeout", strconv.Itoa(m.timeout))

	// The API holds the request for up to timeout seconds
	ctx, cancel := context.WithTimeout(ctx, time.Duration(m.timeout+5)*time.Second)
	defer cancel()

	var body millionVerifierResponse
	if err := getJSON(ctx, m.client, withQuery(m.baseURL, q), &body); err != nil {
		return nil, err
	}
	return &Verification{
		Status:   millionVerifierStatus(body.Result, body.Subresult),
		Provider: ProviderMillionVerifier,
	}, nil
}

func millionVerifierStatus(result, subresult string) models.VerificationStatus {
	r := strings.ToLower(result)
	s := strings.ToLower(subresult)
	switch r {
	case "ok", "valid", "good", "passed":
		return models.VerificationValid
	case "invalid", "bad", "failed":
		return models.VerificationInvalid
	case "catch-all", "catch_all":
		return models.VerificationCatchAll
	}
	switch {
	case r == "unknown" || s == "unknown":
		return models.VerificationUnknown
	case r == "risky":
		return models.VerificationRisky
	case r == "disposable" || s == "disposable":
		return models.VerificationDisposable
	}
	return models.VerificationUnknown
}

// withQuery appends q to base, keeping any query base already carries
func withQuery(base string, q url.Values) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}
