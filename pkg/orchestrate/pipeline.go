// Package orchestrate runs the batch stages of the ratings pipeline over stored merchants.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/ratings-crawler/pkg/aggregate"
	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/discover"
	"github.com/Sriram-PR/ratings-crawler/pkg/email"
	"github.com/Sriram-PR/ratings-crawler/pkg/enrich"
	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/policy"
	"github.com/Sriram-PR/ratings-crawler/pkg/resolve"
	"github.com/Sriram-PR/ratings-crawler/pkg/robots"
	"github.com/Sriram-PR/ratings-crawler/pkg/storage"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// Stage names, also used as metric labels
const (
	StageImport    = "import"
	StageResolve   = "resolve"
	StageDiscover  = "discover"
	StageExtract   = "extract"
	StagePolicies  = "policies"
	StageEmails    = "emails"
	StageVerify    = "verify"
	StageSocial    = "social"
	StageAggregate = "aggregate"
)

// Deps are the collaborators shared by every stage. Verifier and Social are optional.
type Deps struct {
	Fetcher  fetch.PageFetcher
	MX       email.MXChecker
	Verifier enrich.EmailVerifier
	Social   enrich.SocialClient
}

// Pipeline runs the batch stages against the state store
type Pipeline struct {
	cfg   *config.AppConfig
	store storage.Store
	log   *logrus.Entry

	fetcher    fetch.PageFetcher
	robots     *robots.Cache
	resolver   *resolve.Resolver
	products   *discover.Discoverer
	policies   *policy.Collector
	emails     *email.Discoverer
	aggregator *aggregate.Engine
	verifier   enrich.EmailVerifier
	social     enrich.SocialClient

	now func() time.Time
}

// NewPipeline creates a Pipeline. cfg is expected to have passed Validate.
func NewPipeline(cfg *config.AppConfig, store storage.Store, deps Deps, log *logrus.Logger) *Pipeline {
	respect := cfg.RespectRobots()
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		log:        log.WithField("component", "pipeline"),
		fetcher:    deps.Fetcher,
		robots:     robots.NewCache(deps.Fetcher, store, cfg, log),
		resolver:   resolve.NewResolver(deps.Fetcher, log),
		products:   discover.NewDiscoverer(deps.Fetcher, respect, log),
		policies:   policy.NewCollector(deps.Fetcher, respect, log),
		emails:     email.NewDiscoverer(deps.Fetcher, deps.MX, respect, log),
		aggregator: aggregate.NewEngine(store, store, log),
		verifier:   deps.Verifier,
		social:     deps.Social,
		now:        time.Now,
	}
}

// ImportMerchants stores seed merchants as pending. Names already present are skipped.
func (p *Pipeline) ImportMerchants(ctx context.Context, seeds []config.SeedMerchant) (*StageReport, error) {
	report := newStageReport(StageImport)
	defer report.logSummary(p.log.WithField("stage", StageImport))

	existing, err := p.store.ListMerchants(ctx, nil)
	if err != nil {
		return report.finish(err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, m := range existing {
		known[m.Name] = struct{}{}
	}

	for _, seed := range seeds {
		if _, dup := known[seed.Name]; dup {
			report.skip("", seed.Name, "duplicate")
			continue
		}
		m := &models.Merchant{
			Name:      seed.Name,
			Domain:    seed.Domain,
			Instagram: enrich.NormalizeHandle(seed.Instagram),
			Notes:     seed.Notes,
			Status:    models.MerchantStatusPending,
		}
		if err := p.store.CreateMerchant(m); err != nil {
			report.fail("", seed.Name, err)
			continue
		}
		known[seed.Name] = struct{}{}
		report.ok(m.ID, m.Name, m.Domain)
	}
	return report.finish(nil)
}

// RunAll runs every stage in dependency order. Policies and emails only read the
// resolved merchants and write disjoint records, so they run concurrently.
func (p *Pipeline) RunAll(ctx context.Context) (*RunReport, error) {
	run := &RunReport{StartedAt: p.now().UTC()}
	started := time.Now()
	limits := p.cfg.Limits

	sequential := []func(context.Context) (*StageReport, error){
		func(ctx context.Context) (*StageReport, error) { return p.ResolveDomains(ctx, nil, limits.Resolve) },
		func(ctx context.Context) (*StageReport, error) { return p.DiscoverProducts(ctx, nil, limits.Discover) },
		func(ctx context.Context) (*StageReport, error) { return p.ExtractRatings(ctx, limits.Extract) },
	}
	for _, stage := range sequential {
		report, err := stage(ctx)
		run.Stages = append(run.Stages, report)
		if err != nil {
			run.Duration = time.Since(started)
			return run, err
		}
	}

	var policyReport, emailReport *StageReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		policyReport, err = p.ParsePolicies(gctx, nil, limits.Policies)
		return err
	})
	g.Go(func() error {
		var err error
		emailReport, err = p.DiscoverEmails(gctx, nil, limits.Emails)
		return err
	})
	err := g.Wait()
	run.Stages = append(run.Stages, policyReport, emailReport)
	if err != nil {
		run.Duration = time.Since(started)
		return run, err
	}

	tail := []func(context.Context) (*StageReport, error){
		func(ctx context.Context) (*StageReport, error) { return p.VerifyEmails(ctx, limits.Verify) },
		func(ctx context.Context) (*StageReport, error) { return p.EnrichSocial(ctx, nil, limits.Social) },
		func(ctx context.Context) (*StageReport, error) {
			return p.AggregateMerchants(ctx, nil, limits.Aggregate)
		},
	}
	for _, stage := range tail {
		report, err := stage(ctx)
		run.Stages = append(run.Stages, report)
		if err != nil {
			run.Duration = time.Since(started)
			return run, err
		}
	}

	run.Duration = time.Since(started)
	p.log.Infof("Pipeline run completed in %v", run.Duration)
	return run, nil
}

// selectMerchants returns the merchants named by ids, or, when ids is empty,
// the oldest merchants accepted by keep. The result is capped at limit when limit > 0.
func (p *Pipeline) selectMerchants(ctx context.Context, ids []string, limit int, keep func(*models.Merchant) bool) ([]*models.Merchant, error) {
	var merchants []*models.Merchant
	if len(ids) > 0 {
		for _, id := range ids {
			m, err := p.store.GetMerchant(id)
			if err != nil {
				if errors.Is(err, utils.ErrNotFound) {
					p.log.WithField("merchant_id", id).Warn("Requested merchant not found, skipping")
					continue
				}
				return nil, err
			}
			merchants = append(merchants, m)
		}
	} else {
		var err error
		merchants, err = p.store.ListMerchants(ctx, keep)
		if err != nil {
			return nil, err
		}
	}
	if limit > 0 && len(merchants) > limit {
		merchants = merchants[:limit]
	}
	return merchants, nil
}

// resolvedMerchant accepts merchants with a resolved origin
func resolvedMerchant(m *models.Merchant) bool {
	return m.Status == models.MerchantStatusDone && m.Domain != ""
}

// rulesFor returns the robots rules of a merchant origin, nil when unknown
func (p *Pipeline) rulesFor(ctx context.Context, origin string) *robots.Rules {
	if origin == "" {
		return nil
	}
	return p.robots.GetPolicy(ctx, origin)
}

func merchantLabel(m *models.Merchant) string {
	if m.Domain != "" {
		return fmt.Sprintf("%s <%s>", m.Name, m.Domain)
	}
	return m.Name
}
