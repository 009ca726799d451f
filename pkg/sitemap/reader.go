// Package sitemap reads product URLs from a storefront's sitemap files.
package sitemap

import (
	"context"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/parse"
	"github.com/Sriram-PR/ratings-crawler/pkg/robots"
)

// productChild selects the product-oriented child of a sitemap index
var productChild = regexp.MustCompile(`(?i)sitemap_products|product`)

// Reader fetches and parses sitemaps through the shared fetcher
type Reader struct {
	fetcher fetch.PageFetcher
	respect bool
	log     *logrus.Entry
}

// NewReader creates a Reader. respect gates URLs through robots rules.
func NewReader(fetcher fetch.PageFetcher, respect bool, log *logrus.Logger) *Reader {
	return &Reader{
		fetcher: fetcher,
		respect: respect,
		log:     log.WithField("component", "sitemap_reader"),
	}
}

// ProductURLs reads {origin}/sitemap.xml (then any Sitemap directives from rules when
// that yields nothing) and returns up to max robots-allowed page URLs in document order.
func (r *Reader) ProductURLs(ctx context.Context, origin string, rules *robots.Rules, max int) []string {
	if max <= 0 {
		return nil
	}
	origin = parse.TrimOrigin(origin)

	locations := []string{origin + "/sitemap.xml"}
	if rules != nil {
		for _, sm := range rules.Sitemaps {
			if sm != locations[0] {
				locations = append(locations, sm)
			}
		}
	}

	for _, loc := range locations {
		if ctx.Err() != nil {
			return nil
		}
		urls := r.fromLocation(ctx, loc, rules, max)
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}

// fromLocation reads one sitemap. An index is followed one level into its product child.
func (r *Reader) fromLocation(ctx context.Context, loc string, rules *robots.Rules, max int) []string {
	smLog := r.log.WithField("sitemap_url", loc)

	sm := r.read(ctx, loc, smLog)
	if sm == nil {
		return nil
	}

	if sm.IsIndex() {
		child := sm.Children[0]
		for _, c := range sm.Children {
			if productChild.MatchString(c) {
				child = c
				break
			}
		}
		smLog.Debugf("Sitemap index with %d children, following %s", len(sm.Children), child)
		sm = r.read(ctx, child, smLog.WithField("child_sitemap", child))
		if sm == nil || sm.IsIndex() {
			return nil
		}
	}

	var out []string
	for _, u := range sm.URLs {
		if !robots.IsAllowed(u, rules, r.respect) {
			continue
		}
		out = append(out, u)
		if len(out) >= max {
			break
		}
	}
	smLog.Debugf("Sitemap yielded %d of %d URLs", len(out), len(sm.URLs))
	return out
}

func (r *Reader) read(ctx context.Context, loc string, smLog *logrus.Entry) *parse.Sitemap {
	resp, err := r.fetcher.Fetch(ctx, loc, &fetch.Options{Headers: map[string]string{"Accept": "application/xml,text/xml;q=0.9,*/*;q=0.5"}})
	if err != nil {
		smLog.Warnf("Sitemap fetch failed: %v", err)
		return nil
	}
	if !resp.OK() {
		smLog.WithField("status_code", resp.StatusCode).Debug("Sitemap not available")
		return nil
	}
	sm, err := parse.ParseSitemap(resp.Body)
	if err != nil {
		smLog.Debugf("Sitemap unparsable: %v", err)
		return nil
	}
	return sm
}
