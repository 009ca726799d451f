package robots

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/metrics"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/storage"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// Cache fetches robots.txt once per domain and persists the raw text in the store.
// Concurrent first lookups for one domain may both fetch; the stored content is identical.
type Cache struct {
	fetcher fetch.PageFetcher
	store   storage.RobotsStore
	respect bool
	ttl     time.Duration // 0 = never refetch
	log     *logrus.Entry
	now     func() time.Time
}

// NewCache creates a Cache
func NewCache(fetcher fetch.PageFetcher, store storage.RobotsStore, cfg *config.AppConfig, log *logrus.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		store:   store,
		respect: cfg.RespectRobots(),
		ttl:     cfg.RobotsTTL,
		log:     log.WithField("component", "robots"),
		now:     time.Now,
	}
}

// Respect reports whether robots rules are enforced
func (c *Cache) Respect() bool {
	return c.respect
}

// Allowed checks rawURL against rules using the cache's respect switch
func (c *Cache) Allowed(rawURL string, rules *Rules) bool {
	return IsAllowed(rawURL, rules, c.respect)
}

// BareDomain strips scheme, path and trailing slash: "https://Shop.com/" -> "shop.com"
func BareDomain(domain string) string {
	d := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(domain), "/"))
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil && u.Host != "" {
			return strings.ToLower(u.Host)
		}
	}
	if idx := strings.Index(d, "/"); idx >= 0 {
		d = d[:idx]
	}
	return strings.ToLower(d)
}

// RobotsURL builds the robots.txt location for domain, defaulting to https
func RobotsURL(domain string) string {
	d := strings.TrimSuffix(strings.TrimSpace(domain), "/")
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		if u, err := url.Parse(d); err == nil && u.Host != "" {
			return u.Scheme + "://" + u.Host + "/robots.txt"
		}
		return d + "/robots.txt"
	}
	return "https://" + d + "/robots.txt"
}

// GetPolicy returns the rules for domain, or nil when unknown (respect off,
// fetch failure or non-2xx). Callers treat nil as "no restriction known".
func (c *Cache) GetPolicy(ctx context.Context, domain string) *Rules {
	if !c.respect || strings.TrimSpace(domain) == "" {
		return nil
	}
	key := BareDomain(domain)
	domainLog := c.log.WithField("domain", key)

	cached, err := c.store.GetRobots(key)
	switch {
	case err == nil:
		if c.ttl <= 0 || c.now().Sub(cached.FetchedAt) < c.ttl {
			metrics.ObserveRobots("cached")
			return ParseRules(cached.Content)
		}
		domainLog.Debug("Cached robots.txt expired, refetching")
	case errors.Is(err, utils.ErrNotFound):
		cached = nil
	default:
		domainLog.Warnf("Robots cache read failed: %v", err)
		cached = nil
	}

	content, ok := c.fetchRobots(ctx, domain, domainLog)
	if !ok {
		if cached != nil {
			domainLog.Info("Robots refetch failed, serving stale entry")
			metrics.ObserveRobots("stale")
			return ParseRules(cached.Content)
		}
		metrics.ObserveRobots("unavailable")
		return nil
	}

	entry := &models.RobotsCacheEntry{Domain: key, Content: content, FetchedAt: c.now().UTC()}
	if err := c.store.PutRobots(entry); err != nil {
		domainLog.Errorf("Persisting robots.txt failed: %v", err)
	}
	metrics.ObserveRobots("fetched")
	return ParseRules(content)
}

func (c *Cache) fetchRobots(ctx context.Context, domain string, domainLog *logrus.Entry) (string, bool) {
	robotsURL := RobotsURL(domain)
	domainLog.WithField("robots_url", robotsURL).Debug("Fetching robots.txt...")

	resp, err := c.fetcher.Fetch(ctx, robotsURL, &fetch.Options{Headers: map[string]string{"Accept": "text/plain"}})
	if err != nil {
		domainLog.Warnf("Fetching robots.txt failed: %v", err)
		return "", false
	}
	if !resp.OK() {
		domainLog.WithField("status_code", resp.StatusCode).Debug("robots.txt not available")
		return "", false
	}
	return resp.Text(), true
}
