package email

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/parse"
	"github.com/Sriram-PR/ratings-crawler/pkg/robots"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const (
	evidenceLimit  = 500
	mxLookupLimit  = 4
	htmlAcceptType = "text/html,application/xhtml+xml"
)

// CandidatePaths are crawled in order for every origin
var CandidatePaths = []string{"", "/about", "/team", "/contact", "/support", "/help", "/customer-service", "/faq", "/press", "/careers"}

// Found is a validated, classified address
type Found struct {
	Address        string // lowercase
	Type           models.EmailType
	SourceURL      string
	Evidence       string
	VerifiedSyntax bool
	VerifiedMX     bool
}

// Discoverer crawls the candidate contact pages of a storefront
type Discoverer struct {
	fetcher fetch.PageFetcher
	mx      MXChecker
	respect bool
	log     *logrus.Entry
}

// NewDiscoverer creates a Discoverer
func NewDiscoverer(fetcher fetch.PageFetcher, mx MXChecker, respect bool, log *logrus.Logger) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		mx:      mx,
		respect: respect,
		log:     log.WithField("component", "email_discovery"),
	}
}

// Discover returns the distinct valid addresses found on the candidate pages of origin, in discovery order.
// Unreachable pages are skipped; MX is looked up once per mail domain.
func (d *Discoverer) Discover(ctx context.Context, origin string, rules *robots.Rules) []Found {
	origin = parse.TrimOrigin(origin)
	discLog := d.log.WithField("origin", origin)

	seen := make(map[string]struct{})
	var found []Found
	for _, path := range CandidatePaths {
		if ctx.Err() != nil {
			break
		}
		pageURL := origin + "/"
		if path != "" {
			pageURL = origin + path
		}
		if !robots.IsAllowed(pageURL, rules, d.respect) {
			discLog.WithField("url", pageURL).Debug("Contact page disallowed by robots.txt, skipping")
			continue
		}

		resp, err := d.fetcher.Fetch(ctx, pageURL, &fetch.Options{Headers: map[string]string{"Accept": htmlAcceptType}})
		if err != nil {
			discLog.WithField("url", pageURL).Warnf("Fetching contact page failed: %v", err)
			continue
		}
		if !resp.OK() {
			continue
		}

		for _, c := range ExtractFromPage(resp.Text(), pageURL) {
			addr := strings.ToLower(c.Address)
			if !ValidSyntax(addr) {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			found = append(found, Found{
				Address:        addr,
				Type:           Classify(addr),
				SourceURL:      c.SourceURL,
				Evidence:       utils.Truncate(c.Evidence, evidenceLimit),
				VerifiedSyntax: true,
			})
		}
	}

	d.checkMX(ctx, found)
	discLog.Debugf("Found %d addresses", len(found))
	return found
}

// checkMX fills VerifiedMX, one lookup per distinct domain with bounded parallelism
func (d *Discoverer) checkMX(ctx context.Context, found []Found) {
	if d.mx == nil || len(found) == 0 {
		return
	}

	var mu sync.Mutex
	hasMX := make(map[string]bool)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(mxLookupLimit)
	for _, f := range found {
		domain := Domain(f.Address)
		mu.Lock()
		_, queued := hasMX[domain]
		hasMX[domain] = false
		mu.Unlock()
		if queued {
			continue
		}
		g.Go(func() error {
			ok := d.mx.HasMX(gCtx, domain)
			mu.Lock()
			hasMX[domain] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i := range found {
		found[i].VerifiedMX = hasMX[Domain(found[i].Address)]
	}
}
