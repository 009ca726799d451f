package policy

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/detect"
	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/parse"
	"github.com/Sriram-PR/ratings-crawler/pkg/robots"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const evidenceLimit = 800

// Result is what one collection pass learned about a merchant's policies
type Result struct {
	Links    Links
	Return   *ReturnTerms   // nil when the return page was not fetched
	Shipping *ShippingTerms // nil when the shipping page was not fetched
}

// Collector fetches policy pages for a storefront
type Collector struct {
	fetcher fetch.PageFetcher
	respect bool
	log     *logrus.Entry
}

// NewCollector creates a Collector
func NewCollector(fetcher fetch.PageFetcher, respect bool, log *logrus.Logger) *Collector {
	return &Collector{
		fetcher: fetcher,
		respect: respect,
		log:     log.WithField("component", "policy"),
	}
}

// Collect reuses the URLs already on the snapshot, discovers missing ones from the homepage,
// then parses each allowed policy page that returns HTML.
func (c *Collector) Collect(ctx context.Context, origin string, rules *robots.Rules, snap *models.PolicySnapshot) *Result {
	origin = parse.TrimOrigin(origin)
	colLog := c.log.WithField("origin", origin)

	res := &Result{}
	if snap != nil {
		res.Links = Links{ReturnURL: snap.ReturnPolicyURL, ShippingURL: snap.ShippingPolicyURL}
	}

	if res.Links.ReturnURL == "" || res.Links.ShippingURL == "" {
		if robots.IsAllowed(origin, rules, c.respect) {
			if html, ok := c.FetchHTML(ctx, origin); ok {
				found := DiscoverLinks(html, origin)
				if res.Links.ReturnURL == "" {
					res.Links.ReturnURL = found.ReturnURL
				}
				if res.Links.ShippingURL == "" {
					res.Links.ShippingURL = found.ShippingURL
				}
			}
		} else {
			colLog.Debug("Homepage disallowed by robots.txt, skipping link discovery")
		}
	}

	if u := res.Links.ReturnURL; u != "" && robots.IsAllowed(u, rules, c.respect) {
		if html, ok := c.FetchHTML(ctx, u); ok {
			terms := ParseReturn(html)
			res.Return = &terms
		}
	}
	if u := res.Links.ShippingURL; u != "" && robots.IsAllowed(u, rules, c.respect) {
		if html, ok := c.FetchHTML(ctx, u); ok {
			terms := ParseShipping(html)
			res.Shipping = &terms
		}
	}

	colLog.WithFields(logrus.Fields{
		"return_url":   res.Links.ReturnURL,
		"shipping_url": res.Links.ShippingURL,
	}).Debug("Policy collection finished")
	return res
}

// FetchHTML returns the body of pageURL when it answers 2xx with an HTML content type
func (c *Collector) FetchHTML(ctx context.Context, pageURL string) (string, bool) {
	resp, err := c.fetcher.Fetch(ctx, pageURL, &fetch.Options{Headers: map[string]string{"Accept": "text/html,application/xhtml+xml"}})
	if err != nil {
		c.log.WithField("url", pageURL).Warnf("Fetching policy page failed: %v", err)
		return "", false
	}
	if !resp.OK() || !detect.IsLikelyHTML(resp.Header.Get("Content-Type")) {
		c.log.WithFields(logrus.Fields{"url": pageURL, "status_code": resp.StatusCode}).Debug("Policy page not usable")
		return "", false
	}
	return resp.Text(), true
}

// Apply merges res into snap. Only known values overwrite stored ones; notes accumulate
// space-joined without repeats and evidence is replaced by this pass's newline-joined snippets.
func Apply(snap *models.PolicySnapshot, res *Result, now time.Time) {
	if res.Links.ReturnURL != "" {
		snap.ReturnPolicyURL = res.Links.ReturnURL
	}
	if res.Links.ShippingURL != "" {
		snap.ShippingPolicyURL = res.Links.ShippingURL
	}

	var evidence []string
	notes := snap.Notes
	if r := res.Return; r != nil {
		if r.WindowDays != nil {
			snap.ReturnWindowDays = r.WindowDays
		}
		if r.Evidence != "" {
			evidence = append(evidence, r.Evidence)
		}
	}
	if s := res.Shipping; s != nil {
		if s.Free != nil {
			snap.FreeShipping = s.Free
		}
		if s.AlwaysFree != nil {
			snap.FreeShippingAlways = s.AlwaysFree
		}
		if s.Threshold != nil {
			snap.FreeShippingThreshold = s.Threshold
		}
		if s.Currency != "" {
			snap.ShippingCurrency = s.Currency
		}
		if s.Notes != "" && !strings.Contains(notes, s.Notes) {
			notes = strings.TrimSpace(notes + " " + s.Notes)
		}
		if s.Evidence != "" {
			evidence = append(evidence, s.Evidence)
		}
	}
	snap.Notes = notes
	if len(evidence) > 0 {
		snap.Evidence = utils.Truncate(strings.Join(evidence, "\n"), evidenceLimit)
	}
	snap.ComputedAt = models.TimePtr(now.UTC())
}
