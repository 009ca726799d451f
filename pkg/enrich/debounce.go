package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
)

const (
	ProviderDeBounce       = "debounce"
	defaultDeBounceTimeout = 30 * time.Second
)

type deBounceResponse struct {
	DeBounce struct {
		Result string          `json:"result"`
		Reason string          `json:"reason"`
		Score  json.RawMessage `json:"score"`
	} `json:"debounce"`
}

// DeBounce calls the DeBounce v1 single-address API
type DeBounce struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration // Whole-request deadline
}

// NewDeBounce creates a DeBounce verifier. TimeoutSecs bounds each request, 30s when unset.
func NewDeBounce(client *http.Client, cfg config.VerifierConfig) *DeBounce {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = defaultDeBounceTimeout
	}
	return &DeBounce{client: client, baseURL: cfg.BaseURL, apiKey: cfg.APIKey, timeout: timeout}
}

// Name implements EmailVerifier
func (d *DeBounce) Name() string { return ProviderDeBounce }

// Verify implements EmailVerifier
func (d *DeBounce) Verify(ctx context.Context, address string) (*Verification, error) {
	q := url.Values{}
	q.Set("email", address)
	q.Set("api", d.apiKey)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var body deBounceResponse
	if err := getJSON(ctx, d.client, withQuery(strings.TrimSuffix(d.baseURL, "/")+"/verify", q), &body); err != nil {
		return nil, err
	}

	// Results come as labels like "Safe to Send" or "Accept All"
	label := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(body.DeBounce.Result)), " ", "_")
	return &Verification{
		Status:   models.NormalizeVerification(label),
		Score:    parseScore(body.DeBounce.Score),
		Provider: ProviderDeBounce,
	}, nil
}

// parseScore accepts a JSON number or a numeric string
func parseScore(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f
		}
	}
	return nil
}
