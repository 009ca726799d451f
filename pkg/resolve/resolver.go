package resolve

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/detect"
	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/parse"
)

// Merchant notes written after a resolve attempt
const (
	NoteShopify    = "Shopify detected"
	NoteNotShopify = "Shopify not detected"
	NoteUnresolved = "Domain unresolved"
)

// Resolution is the outcome of resolving one merchant
type Resolution struct {
	Resolved  bool
	Origin    string   // scheme://host of the redirect-resolved URL
	IsShopify bool     // Meaningful only when Resolved
	Signal    string   // Which check detected the platform: header, html, cart_probe, products_probe
	Tried     []string // Candidate URLs in the order attempted
}

// Note returns the merchant note for this resolution
func (r Resolution) Note() string {
	switch {
	case !r.Resolved:
		return NoteUnresolved
	case r.IsShopify:
		return NoteShopify
	default:
		return NoteNotShopify
	}
}

// Resolver probes candidate origins through the shared fetcher
type Resolver struct {
	fetcher fetch.PageFetcher
	log     *logrus.Entry
}

// NewResolver creates a Resolver
func NewResolver(fetcher fetch.PageFetcher, log *logrus.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, log: log.WithField("component", "resolver")}
}

// Resolve tries the known domain once, or the name-derived candidates in order,
// stopping at the first response with a status in [200,400).
func (r *Resolver) Resolve(ctx context.Context, name, domain string) Resolution {
	var candidates []string
	if strings.TrimSpace(domain) != "" {
		candidates = []string{parse.EnsureScheme(domain)}
	} else {
		candidates = CandidateURLs(name)
	}

	res := Resolution{}
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		res.Tried = append(res.Tried, candidate)
		origin, shopify, signal, ok := r.try(ctx, candidate)
		if !ok {
			continue
		}
		res.Resolved = true
		res.Origin = origin
		res.IsShopify = shopify
		res.Signal = signal
		r.log.WithFields(logrus.Fields{"merchant": name, "origin": origin, "shopify": shopify, "signal": signal}).Info("Resolved merchant domain")
		return res
	}

	r.log.WithFields(logrus.Fields{"merchant": name, "tried": len(res.Tried)}).Warn("Merchant domain unresolved")
	return res
}

// try fetches one candidate and runs the Shopify detection chain when it is reachable
func (r *Resolver) try(ctx context.Context, candidate string) (origin string, shopify bool, signal string, ok bool) {
	candLog := r.log.WithField("url", candidate)

	resp, err := r.fetcher.Fetch(ctx, candidate, &fetch.Options{MaxBodyBytes: detect.ShopifyHTMLLimit})
	if err != nil {
		candLog.Debugf("Candidate unreachable: %v", err)
		return "", false, "", false
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		candLog.WithField("status_code", resp.StatusCode).Debug("Candidate rejected")
		return "", false, "", false
	}

	origin = parse.Origin(resp.FinalURL)
	if origin == "" {
		origin = parse.TrimOrigin(candidate)
	}

	if detect.ShopifyFromHeaders(resp.Header) {
		return origin, true, "header", true
	}
	if detect.IsLikelyHTML(resp.Header.Get("Content-Type")) && detect.ShopifyFromHTML(resp.Text()) {
		return origin, true, "html", true
	}

	// Inconclusive but reachable: probe the Shopify JSON endpoints
	if r.probe(ctx, origin+detect.CartProbePath, detect.CartProbeMatches) {
		return origin, true, "cart_probe", true
	}
	if r.probe(ctx, origin+detect.ProductsProbePath, detect.ProductsProbeMatches) {
		return origin, true, "products_probe", true
	}
	return origin, false, "", true
}

// probe is best-effort: any failure counts as no signal
func (r *Resolver) probe(ctx context.Context, probeURL string, matches func(string) bool) bool {
	resp, err := r.fetcher.Fetch(ctx, probeURL, &fetch.Options{Headers: map[string]string{"Accept": "application/json"}})
	if err != nil {
		r.log.WithField("url", probeURL).Debugf("Probe failed: %v", err)
		return false
	}
	return resp.OK() && matches(resp.Text())
}
