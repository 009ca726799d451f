// Package discover finds product page URLs for a resolved storefront.
package discover

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/parse"
	"github.com/Sriram-PR/ratings-crawler/pkg/robots"
	"github.com/Sriram-PR/ratings-crawler/pkg/sitemap"
)

const (
	productPathMarker = "/products/"
	collectionAllPath = "/collections/all"
	// sitemapSufficient is the URL count at which the sitemap result is used without HTML fallback
	sitemapSufficient = 10
)

// Discoverer combines sitemap reading with homepage and catalog anchor scraping
type Discoverer struct {
	fetcher fetch.PageFetcher
	sitemap *sitemap.Reader
	respect bool
	log     *logrus.Entry
}

// NewDiscoverer creates a Discoverer
func NewDiscoverer(fetcher fetch.PageFetcher, respect bool, log *logrus.Logger) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		sitemap: sitemap.NewReader(fetcher, respect, log),
		respect: respect,
		log:     log.WithField("component", "discover"),
	}
}

// Discover returns up to max robots-allowed product URLs for origin, sitemap entries first.
// The caller dedups against URLs it already knows and computes the per-merchant budget.
func (d *Discoverer) Discover(ctx context.Context, origin string, rules *robots.Rules, max int) []string {
	if max <= 0 {
		return nil
	}
	origin = parse.TrimOrigin(origin)
	discLog := d.log.WithField("origin", origin)

	fromSitemap := d.sitemap.ProductURLs(ctx, origin, rules, max)
	if len(fromSitemap) >= min(max, sitemapSufficient) {
		discLog.Debugf("Sitemap yielded %d URLs, skipping HTML fallback", len(fromSitemap))
		return fromSitemap
	}

	found := newOrderedSet()
	d.scrapeAnchors(ctx, origin+"/", rules, found, discLog)
	if found.Len() < max && ctx.Err() == nil {
		d.scrapeAnchors(ctx, origin+collectionAllPath, rules, found, discLog)
	}
	discLog.Debugf("Discovery: %d from sitemap, %d from HTML", len(fromSitemap), found.Len())

	return Merge(max, fromSitemap, found.Items())
}

// scrapeAnchors adds every allowed /products/ link on pageURL to found
func (d *Discoverer) scrapeAnchors(ctx context.Context, pageURL string, rules *robots.Rules, found *orderedSet, discLog *logrus.Entry) {
	pageLog := discLog.WithField("url", pageURL)
	if !robots.IsAllowed(pageURL, rules, d.respect) {
		pageLog.Debug("Page disallowed by robots.txt, skipping")
		return
	}

	resp, err := d.fetcher.Fetch(ctx, pageURL, nil)
	if err != nil {
		pageLog.Warnf("Fetching page for product links failed: %v", err)
		return
	}
	if !resp.OK() {
		pageLog.WithField("status_code", resp.StatusCode).Debug("Page not available")
		return
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		pageLog.Warnf("Parsing HTML failed: %v", err)
		return
	}

	base := resp.FinalURL
	if base == "" {
		base = pageURL
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, productPathMarker) {
			return
		}
		abs, ok := parse.ResolveReference(base, href)
		if !ok || !robots.IsAllowed(abs, rules, d.respect) {
			return
		}
		found.Add(abs)
	})
}

// Merge unions lists in order without duplicates and truncates to max
func Merge(max int, lists ...[]string) []string {
	set := newOrderedSet()
	for _, list := range lists {
		for _, u := range list {
			set.Add(u)
		}
	}
	out := set.Items()
	if max < 0 {
		max = 0
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// SlotBudget returns how many new product URLs a merchant may still receive
func SlotBudget(maxPerMerchant, existing int) int {
	if remaining := maxPerMerchant - existing; remaining > 0 {
		return remaining
	}
	return 0
}

// FilterKnown drops URLs already present in known, keeping order
func FilterKnown(urls []string, known map[string]struct{}) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := known[u]; ok {
			continue
		}
		out = append(out, u)
	}
	return out
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) Add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) Len() int { return len(s.items) }

func (s *orderedSet) Items() []string { return s.items }
