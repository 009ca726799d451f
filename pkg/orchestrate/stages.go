package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/ratings-crawler/pkg/discover"
	"github.com/Sriram-PR/ratings-crawler/pkg/enrich"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/policy"
	"github.com/Sriram-PR/ratings-crawler/pkg/ratings"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// ResolveDomains resolves pending merchants (or the listed ones) to a live origin and
// detects Shopify. Resolved merchants end "done" with the origin stored, others end "error".
func (p *Pipeline) ResolveDomains(ctx context.Context, ids []string, limit int) (*StageReport, error) {
	report := newStageReport(StageResolve)
	stageLog := p.log.WithField("stage", StageResolve)
	defer report.logSummary(stageLog)

	merchants, err := p.selectMerchants(ctx, ids, limit, func(m *models.Merchant) bool {
		return m.Status == models.MerchantStatusPending
	})
	if err != nil {
		return report.finish(err)
	}

	for _, m := range merchants {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		m.Status = models.MerchantStatusProcessing
		if err := p.store.UpdateMerchant(m); err != nil {
			report.fail(m.ID, m.Name, err)
			continue
		}

		res := p.resolver.Resolve(ctx, m.Name, m.Domain)
		if err := ctx.Err(); err != nil {
			// Interrupted, not unresolved: leave it for the next run
			m.Status = models.MerchantStatusPending
			if saveErr := p.store.UpdateMerchant(m); saveErr != nil {
				stageLog.WithField("merchant_id", m.ID).Errorf("Restoring pending status failed: %v", saveErr)
			}
			return report.finish(err)
		}
		m.Notes = res.Note()
		if res.Resolved {
			m.Domain = res.Origin
			m.IsShopify = res.IsShopify
			m.Status = models.MerchantStatusDone
		} else {
			m.Status = models.MerchantStatusError
		}
		if err := p.store.UpdateMerchant(m); err != nil {
			report.fail(m.ID, m.Name, err)
			continue
		}

		if !res.Resolved {
			report.fail(m.ID, m.Name, fmt.Errorf("%w: tried %d candidates", utils.ErrUnresolved, len(res.Tried)))
			continue
		}
		// Warm the robots cache for the new origin
		p.robots.GetPolicy(ctx, m.Domain)
		report.ok(m.ID, m.Name, m.Domain)
	}
	return report.finish(nil)
}

// DiscoverProducts stores new product URLs for resolved merchants, up to the per-merchant cap
func (p *Pipeline) DiscoverProducts(ctx context.Context, ids []string, limit int) (*StageReport, error) {
	report := newStageReport(StageDiscover)
	stageLog := p.log.WithField("stage", StageDiscover)
	defer report.logSummary(stageLog)

	merchants, err := p.selectMerchants(ctx, ids, limit, resolvedMerchant)
	if err != nil {
		return report.finish(err)
	}
	maxPerMerchant := p.cfg.Limits.MaxProductsPerMerchant

	for _, m := range merchants {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		if !resolvedMerchant(m) {
			report.skip(m.ID, m.Name, SkipUnresolved)
			continue
		}

		existing, err := p.store.ListProducts(ctx, m.ID)
		if err != nil {
			report.fail(m.ID, merchantLabel(m), err)
			continue
		}
		slots := discover.SlotBudget(maxPerMerchant, len(existing))
		if slots == 0 {
			report.skip(m.ID, merchantLabel(m), SkipFull)
			continue
		}

		known := make(map[string]struct{}, len(existing))
		for _, s := range existing {
			known[s.URL] = struct{}{}
		}
		candidates := p.products.Discover(ctx, m.Domain, p.rulesFor(ctx, m.Domain), maxPerMerchant)
		fresh := discover.FilterKnown(candidates, known)
		if len(fresh) > slots {
			fresh = fresh[:slots]
		}

		inserted := 0
		var insertErr error
		for _, u := range fresh {
			added, err := p.store.AddProductURL(m.ID, u)
			if err != nil {
				insertErr = err
				break
			}
			if added {
				inserted++
			}
		}
		if insertErr != nil {
			report.fail(m.ID, merchantLabel(m), insertErr)
			continue
		}

		stageLog.WithFields(logrus.Fields{"merchant_id": m.ID, "discovered": len(candidates), "inserted": inserted}).Info("Product discovery finished")
		report.ok(m.ID, merchantLabel(m), fmt.Sprintf("discovered %d, inserted %d", len(candidates), inserted))
	}
	return report.finish(nil)
}

// ExtractRatings fetches samples still missing a rating or count, oldest fetch first
// (never-fetched samples lead), and stores what the extraction chain finds.
func (p *Pipeline) ExtractRatings(ctx context.Context, limit int) (*StageReport, error) {
	report := newStageReport(StageExtract)
	stageLog := p.log.WithField("stage", StageExtract)
	defer report.logSummary(stageLog)

	samples, err := p.store.ListAllProducts(ctx, (*models.ProductSample).NeedsExtraction)
	if err != nil {
		return report.finish(err)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		a, b := samples[i].FetchedAt, samples[j].FetchedAt
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
	if limit > 0 && len(samples) > limit {
		samples = samples[:limit]
	}

	origins := make(map[string]string)
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		origin, ok := origins[s.MerchantID]
		if !ok {
			if m, err := p.store.GetMerchant(s.MerchantID); err == nil {
				origin = m.Domain
			}
			origins[s.MerchantID] = origin
		}

		if rules := p.rulesFor(ctx, origin); !p.robots.Allowed(s.URL, rules) {
			report.skip(s.ID, s.URL, SkipRobots)
			continue
		}

		resp, err := p.fetcher.Fetch(ctx, s.URL, nil)
		if err != nil {
			report.fail(s.ID, s.URL, err)
			continue
		}
		if !resp.OK() {
			report.failReason(s.ID, s.URL, fmt.Sprintf("status %d", resp.StatusCode))
			continue
		}

		now := p.now().UTC()
		s.FetchedAt = &now
		ex := ratings.Extract(resp.Text(), s.URL)
		if ex == nil {
			// Touch the fetch time so the sample moves to the back of the queue
			if err := p.store.UpdateProduct(s); err != nil {
				report.fail(s.ID, s.URL, err)
				continue
			}
			report.skip(s.ID, s.URL, SkipNoRating)
			continue
		}

		applyExtraction(s, ex)
		if err := p.store.UpdateProduct(s); err != nil {
			report.fail(s.ID, s.URL, err)
			continue
		}
		stageLog.WithFields(logrus.Fields{"url": s.URL, "source": ex.Source, "widget": ex.Widget}).Debug("Rating extracted")
		report.ok(s.ID, s.URL, string(ex.Source))
	}
	return report.finish(nil)
}

// applyExtraction copies the found values onto the sample; missing values keep what is stored
func applyExtraction(s *models.ProductSample, ex *ratings.Extraction) {
	if ex.Title != "" {
		s.Title = ex.Title
	}
	if ex.Rating != nil {
		s.Rating = ex.Rating
	}
	if ex.ReviewCount != nil {
		s.ReviewCount = ex.ReviewCount
	}
	if ex.Widget != "" {
		s.Widget = ex.Widget
	}
	if ex.Evidence != "" {
		s.Evidence = ex.Evidence
	}
	s.Source = ex.Source
}

// ParsePolicies discovers and parses return and shipping policy pages for resolved merchants
func (p *Pipeline) ParsePolicies(ctx context.Context, ids []string, limit int) (*StageReport, error) {
	report := newStageReport(StagePolicies)
	stageLog := p.log.WithField("stage", StagePolicies)
	defer report.logSummary(stageLog)

	merchants, err := p.selectMerchants(ctx, ids, limit, resolvedMerchant)
	if err != nil {
		return report.finish(err)
	}

	for _, m := range merchants {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		if !resolvedMerchant(m) {
			report.skip(m.ID, m.Name, SkipUnresolved)
			continue
		}

		snap, err := p.store.GetPolicy(m.ID)
		if errors.Is(err, utils.ErrNotFound) {
			snap = &models.PolicySnapshot{MerchantID: m.ID}
		} else if err != nil {
			report.fail(m.ID, merchantLabel(m), err)
			continue
		}

		res := p.policies.Collect(ctx, m.Domain, p.rulesFor(ctx, m.Domain), snap)
		policy.Apply(snap, res, p.now().UTC())
		if err := p.store.PutPolicy(snap); err != nil {
			report.fail(m.ID, merchantLabel(m), err)
			continue
		}

		if res.Links.ReturnURL == "" && res.Links.ShippingURL == "" {
			report.skip(m.ID, merchantLabel(m), SkipNoMatch)
			continue
		}
		report.ok(m.ID, merchantLabel(m), fmt.Sprintf("return=%s shipping=%s", res.Links.ReturnURL, res.Links.ShippingURL))
	}
	return report.finish(nil)
}

// DiscoverEmails crawls the contact pages of resolved merchants and upserts what it finds
func (p *Pipeline) DiscoverEmails(ctx context.Context, ids []string, limit int) (*StageReport, error) {
	report := newStageReport(StageEmails)
	stageLog := p.log.WithField("stage", StageEmails)
	defer report.logSummary(stageLog)

	merchants, err := p.selectMerchants(ctx, ids, limit, resolvedMerchant)
	if err != nil {
		return report.finish(err)
	}

	for _, m := range merchants {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		if !resolvedMerchant(m) {
			report.skip(m.ID, m.Name, SkipUnresolved)
			continue
		}

		found := p.emails.Discover(ctx, m.Domain, p.rulesFor(ctx, m.Domain))
		created := 0
		var upsertErr error
		for _, f := range found {
			isNew, err := p.store.UpsertEmail(&models.ContactEmail{
				MerchantID:     m.ID,
				Address:        f.Address,
				Type:           f.Type,
				SourceURL:      f.SourceURL,
				Evidence:       f.Evidence,
				VerifiedSyntax: f.VerifiedSyntax,
				VerifiedMX:     f.VerifiedMX,
			})
			if err != nil {
				upsertErr = err
				break
			}
			if isNew {
				created++
			}
		}
		if upsertErr != nil {
			report.fail(m.ID, merchantLabel(m), upsertErr)
			continue
		}
		if len(found) == 0 {
			report.skip(m.ID, merchantLabel(m), SkipNoMatch)
			continue
		}
		report.ok(m.ID, merchantLabel(m), fmt.Sprintf("found %d, new %d", len(found), created))
	}
	return report.finish(nil)
}

// VerifyEmails sends personal addresses with valid syntax and MX to the configured verifier.
// Addresses verified within the TTL are skipped.
func (p *Pipeline) VerifyEmails(ctx context.Context, limit int) (*StageReport, error) {
	report := newStageReport(StageVerify)
	stageLog := p.log.WithField("stage", StageVerify)
	defer report.logSummary(stageLog)

	if p.verifier == nil {
		report.Disabled = true
		return report.finish(nil)
	}

	candidates, err := p.store.ListAllEmails(ctx, func(e *models.ContactEmail) bool {
		return e.Type == models.EmailPersonal && e.VerifiedSyntax && e.VerifiedMX
	})
	if err != nil {
		return report.finish(err)
	}

	ttl := time.Duration(p.cfg.VerifyTTLDays) * 24 * time.Hour
	now := p.now().UTC()
	sent := 0
	for _, e := range candidates {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		if e.VerificationStatus != models.VerificationUnset && e.VerifiedAt != nil && now.Sub(*e.VerifiedAt) < ttl {
			report.skip(e.ID, e.Address, SkipFresh)
			continue
		}
		if limit > 0 && sent >= limit {
			break
		}
		sent++

		v, err := p.verifier.Verify(ctx, e.Address)
		if err != nil {
			report.fail(e.ID, e.Address, err)
			continue
		}
		verifiedAt := now
		e.VerificationStatus = v.Status
		e.VerificationScore = v.Score
		e.VerificationProvider = v.Provider
		e.VerifiedAt = &verifiedAt
		if err := p.store.UpdateEmail(e); err != nil {
			report.fail(e.ID, e.Address, err)
			continue
		}
		report.ok(e.ID, e.Address, string(v.Status))
	}
	return report.finish(nil)
}

// EnrichSocial records the latest Instagram post time and 30-day activity of merchants with a handle
func (p *Pipeline) EnrichSocial(ctx context.Context, ids []string, limit int) (*StageReport, error) {
	report := newStageReport(StageSocial)
	stageLog := p.log.WithField("stage", StageSocial)
	defer report.logSummary(stageLog)

	if p.social == nil {
		report.Disabled = true
		return report.finish(nil)
	}

	merchants, err := p.selectMerchants(ctx, ids, limit, func(m *models.Merchant) bool {
		return enrich.NormalizeHandle(m.Instagram) != ""
	})
	if err != nil {
		return report.finish(err)
	}

	lookback := p.cfg.Apify.LookbackDays
	for _, m := range merchants {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		if enrich.NormalizeHandle(m.Instagram) == "" {
			report.skip(m.ID, m.Name, SkipNoHandle)
			continue
		}

		last, lookupErr := p.social.LastPost(ctx, m.Instagram)
		m.InstagramSource = p.social.Source()
		if lookupErr != nil {
			m.InstagramActive30d = models.BoolPtr(false)
			m.InstagramError = lookupErr.Error()
		} else {
			m.InstagramLastPostAt = models.TimePtr(last.UTC())
			m.InstagramActive30d = models.BoolPtr(enrich.Active(last, p.now(), lookback))
			m.InstagramError = ""
		}
		if err := p.store.UpdateMerchant(m); err != nil {
			report.fail(m.ID, m.Name, err)
			continue
		}
		if lookupErr != nil {
			report.fail(m.ID, m.Name, lookupErr)
			continue
		}
		report.ok(m.ID, m.Name, last.UTC().Format(time.RFC3339))
	}
	return report.finish(nil)
}

// AggregateMerchants recomputes the rating statistics of merchants that have samples
func (p *Pipeline) AggregateMerchants(ctx context.Context, ids []string, limit int) (*StageReport, error) {
	report := newStageReport(StageAggregate)
	stageLog := p.log.WithField("stage", StageAggregate)
	defer report.logSummary(stageLog)

	withSamples := make(map[string]struct{})
	all, err := p.store.ListAllProducts(ctx, nil)
	if err != nil {
		return report.finish(err)
	}
	for _, s := range all {
		withSamples[s.MerchantID] = struct{}{}
	}

	keep := func(m *models.Merchant) bool {
		_, ok := withSamples[m.ID]
		return ok
	}
	merchants, err := p.selectMerchants(ctx, ids, 0, keep)
	if err != nil {
		return report.finish(err)
	}

	done := 0
	for _, m := range merchants {
		if err := ctx.Err(); err != nil {
			return report.finish(err)
		}
		if limit > 0 && done >= limit {
			break
		}
		if !keep(m) {
			report.skip(m.ID, m.Name, SkipNoSamples)
			continue
		}
		done++

		agg, err := p.aggregator.Aggregate(ctx, m.ID)
		if err != nil {
			report.fail(m.ID, m.Name, err)
			continue
		}
		if agg == nil {
			report.skip(m.ID, m.Name, SkipNoSamples)
			continue
		}
		detail := fmt.Sprintf("products %d, reviews %d", agg.ProductCount, agg.SumReviewCount)
		report.ok(m.ID, m.Name, detail)
	}
	return report.finish(nil)
}
