// Package enrich wraps the optional paid services: email verification and social post lookup.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// maxServiceBody caps how much of a service response is read
const maxServiceBody = 1 << 20

// Verification is a provider verdict for one address
type Verification struct {
	Status   models.VerificationStatus
	Score    *float64
	Provider string
}

// EmailVerifier checks deliverability of an address.
// Transport failures and non-2xx answers return an error wrapping utils.ErrServiceResponse.
type EmailVerifier interface {
	Name() string
	Verify(ctx context.Context, address string) (*Verification, error)
}

// getJSON performs a GET and decodes a 2xx JSON body into out
func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("Accept", "application/json")
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", utils.ErrServiceResponse, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxServiceBody))
		return fmt.Errorf("%w: status %d", utils.ErrServiceResponse, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxServiceBody)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", utils.ErrParsing, err)
	}
	return nil
}

// NewVerifier returns the first active verifier (MillionVerifier, then DeBounce), or nil when none is configured
func NewVerifier(client *http.Client, cfg *config.AppConfig) EmailVerifier {
	switch {
	case cfg.MillionVerifier.Active():
		return NewMillionVerifier(client, cfg.MillionVerifier)
	case cfg.DeBounce.Active():
		return NewDeBounce(client, cfg.DeBounce)
	}
	return nil
}
