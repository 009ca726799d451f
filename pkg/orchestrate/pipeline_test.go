package orchestrate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/enrich"
	"github.com/Sriram-PR/ratings-crawler/pkg/fetch"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/resolve"
	"github.com/Sriram-PR/ratings-crawler/pkg/robots"
	"github.com/Sriram-PR/ratings-crawler/pkg/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		StateDir:       t.TempDir(),
		RequestTimeout: 2 * time.Second,
		RetryBaseDelay: time.Millisecond,
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

type fakeMX struct{}

func (fakeMX) HasMX(ctx context.Context, domain string) bool { return true }

type fakeVerifier struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeVerifier) Name() string { return "fake" }

func (f *fakeVerifier) Verify(ctx context.Context, address string) (*enrich.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, address)
	return &enrich.Verification{Status: models.VerificationValid, Score: models.Float64Ptr(0.9), Provider: "fake"}, nil
}

type fakeSocial struct {
	last time.Time
	err  error
}

func (f *fakeSocial) Source() string { return "fake:instagram" }

func (f *fakeSocial) LastPost(ctx context.Context, handle string) (time.Time, error) {
	if f.err != nil {
		return time.Time{}, f.err
	}
	return f.last, nil
}

func newTestPipeline(t *testing.T, cfg *config.AppConfig, deps Deps) (*Pipeline, *storage.BadgerStore) {
	t.Helper()
	log := testLogger()
	store, err := storage.NewBadgerStore(t.TempDir(), "test", false, logrus.NewEntry(log))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if deps.Fetcher == nil {
		deps.Fetcher = fetch.NewFetcher(http.DefaultClient, cfg, log)
	}
	return NewPipeline(cfg, store, deps, log), store
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

// storefront serves a small Shopify-like shop with one rated product, one unrated
// product, policy pages and two contact addresses
func storefront(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Shopify-Stage", "production")
		writeHTML(w, `<html><body>
			<a href="/products/a">Trail Boot</a>
			<a href="/pages/returns">Returns</a>
			<a href="/policies/shipping-policy">Shipping</a>
			<a href="mailto:jane.doe@shop.test">Email Jane</a>
			<p>Questions? Write to info@shop.test</p>
		</body></html>`)
	})
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "User-agent: *\nDisallow: /products/private\n")
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
<url><loc>%[1]s/products/a</loc></url>
<url><loc>%[1]s/products/b</loc></url>
<url><loc>%[1]s/products/private</loc></url>
</urlset>`, srv.URL)
	})
	mux.HandleFunc("/products/a", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><head><script type="application/ld+json">
			{"@context": "https://schema.org", "@type": "Product", "name": "Trail Boot",
			 "aggregateRating": {"@type": "AggregateRating", "ratingValue": "4.5", "reviewCount": "10"}}
		</script></head><body><h1>Trail Boot</h1></body></html>`)
	})
	mux.HandleFunc("/products/b", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body><h1>Plain Sock</h1></body></html>`)
	})
	mux.HandleFunc("/products/private", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("robots-disallowed page fetched: %s", r.URL.Path)
	})
	mux.HandleFunc("/pages/returns", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body><p>We offer 30-day returns on unworn items.</p></body></html>`)
	})
	mux.HandleFunc("/policies/shipping-policy", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body><p>Enjoy free shipping on all orders.</p></body></html>`)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func productByURL(products []*models.ProductSample, u string) *models.ProductSample {
	for _, p := range products {
		if p.URL == u {
			return p
		}
	}
	return nil
}

func emailByAddress(emails []*models.ContactEmail, addr string) *models.ContactEmail {
	for _, e := range emails {
		if e.Address == addr {
			return e
		}
	}
	return nil
}

func TestPipeline_RunAll(t *testing.T) {
	srv := storefront(t)
	cfg := testConfig(t)
	verifier := &fakeVerifier{}
	social := &fakeSocial{last: time.Now().Add(-48 * time.Hour)}
	p, store := newTestPipeline(t, cfg, Deps{MX: fakeMX{}, Verifier: verifier, Social: social})
	ctx := context.Background()

	imported, err := p.ImportMerchants(ctx, []config.SeedMerchant{{Name: "Trail Shop", Domain: srv.URL, Instagram: "@trailshop"}})
	require.NoError(t, err)
	require.Equal(t, 1, imported.OK)
	merchantID := imported.Items[0].ID

	run, err := p.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, run.Stages, 8)
	for _, name := range []string{StageResolve, StageDiscover, StageExtract, StagePolicies, StageEmails, StageVerify, StageSocial, StageAggregate} {
		require.NotNil(t, run.Stage(name), name)
		assert.Empty(t, run.Stage(name).Err, name)
	}

	t.Run("merchant resolved and enriched", func(t *testing.T) {
		m, err := store.GetMerchant(merchantID)
		require.NoError(t, err)
		assert.Equal(t, models.MerchantStatusDone, m.Status)
		assert.Equal(t, srv.URL, m.Domain)
		assert.True(t, m.IsShopify)
		assert.Equal(t, resolve.NoteShopify, m.Notes)
		assert.Equal(t, "trailshop", m.Instagram)
		require.NotNil(t, m.InstagramActive30d)
		assert.True(t, *m.InstagramActive30d)
		assert.Equal(t, "fake:instagram", m.InstagramSource)
		assert.Empty(t, m.InstagramError)
	})

	t.Run("robots cached at resolve", func(t *testing.T) {
		entry, err := store.GetRobots(robots.BareDomain(srv.URL))
		require.NoError(t, err)
		assert.Contains(t, entry.Content, "/products/private")
	})

	t.Run("products discovered and extracted", func(t *testing.T) {
		products, err := store.ListProducts(ctx, merchantID)
		require.NoError(t, err)
		require.Len(t, products, 2)

		a := productByURL(products, srv.URL+"/products/a")
		require.NotNil(t, a)
		require.NotNil(t, a.Rating)
		require.NotNil(t, a.ReviewCount)
		assert.Equal(t, 4.5, *a.Rating)
		assert.Equal(t, 10, *a.ReviewCount)
		assert.Equal(t, "Trail Boot", a.Title)
		assert.Equal(t, models.SourceStructuredData, a.Source)
		assert.NotNil(t, a.FetchedAt)

		b := productByURL(products, srv.URL+"/products/b")
		require.NotNil(t, b)
		assert.Nil(t, b.Rating)
		assert.Equal(t, models.SourceUnset, b.Source)
		assert.NotNil(t, b.FetchedAt, "a miss still touches the fetch time")

		item := run.Stage(StageExtract).Find(b.ID)
		require.NotNil(t, item)
		assert.Equal(t, ItemSkipped, item.Status)
		assert.Equal(t, SkipNoRating, item.Reason)
	})

	t.Run("policy snapshot", func(t *testing.T) {
		snap, err := store.GetPolicy(merchantID)
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/pages/returns", snap.ReturnPolicyURL)
		assert.Equal(t, srv.URL+"/policies/shipping-policy", snap.ShippingPolicyURL)
		require.NotNil(t, snap.ReturnWindowDays)
		assert.Equal(t, 30, *snap.ReturnWindowDays)
		require.NotNil(t, snap.FreeShipping)
		assert.True(t, *snap.FreeShipping)
		require.NotNil(t, snap.FreeShippingAlways)
		assert.True(t, *snap.FreeShippingAlways)
		assert.NotNil(t, snap.ComputedAt)
	})

	t.Run("emails discovered and verified", func(t *testing.T) {
		emails, err := store.ListEmails(ctx, merchantID)
		require.NoError(t, err)
		require.Len(t, emails, 2)

		jane := emailByAddress(emails, "jane.doe@shop.test")
		require.NotNil(t, jane)
		assert.Equal(t, models.EmailPersonal, jane.Type)
		assert.True(t, jane.VerifiedMX)
		assert.Equal(t, models.VerificationValid, jane.VerificationStatus)
		assert.Equal(t, "fake", jane.VerificationProvider)
		assert.NotNil(t, jane.VerifiedAt)

		info := emailByAddress(emails, "info@shop.test")
		require.NotNil(t, info)
		assert.Equal(t, models.EmailGeneric, info.Type)
		assert.Equal(t, models.VerificationUnset, info.VerificationStatus, "generic addresses are never sent")

		assert.Equal(t, []string{"jane.doe@shop.test"}, verifier.calls)
	})

	t.Run("aggregate", func(t *testing.T) {
		agg, err := store.GetAggregate(merchantID)
		require.NoError(t, err)
		assert.Equal(t, 2, agg.ProductCount)
		assert.Equal(t, 10, agg.SumReviewCount)
		require.NotNil(t, agg.WeightedAvgRating)
		assert.Equal(t, 4.5, *agg.WeightedAvgRating)
	})

	t.Run("second run adds nothing", func(t *testing.T) {
		again, err := p.RunAll(ctx)
		require.NoError(t, err)

		assert.Equal(t, 0, again.Stage(StageResolve).Processed)
		discoverItem := again.Stage(StageDiscover).Find(merchantID)
		require.NotNil(t, discoverItem)
		assert.Contains(t, discoverItem.Detail, "inserted 0")

		products, err := store.ListProducts(ctx, merchantID)
		require.NoError(t, err)
		assert.Len(t, products, 2)

		emails, err := store.ListEmails(ctx, merchantID)
		require.NoError(t, err)
		assert.Len(t, emails, 2)

		verify := again.Stage(StageVerify)
		assert.Equal(t, 1, verify.Skipped)
		assert.Equal(t, SkipFresh, verify.Items[0].Reason)
		assert.Len(t, verifier.calls, 1)
	})
}

func TestImportMerchants_SkipsDuplicateNames(t *testing.T) {
	p, store := newTestPipeline(t, testConfig(t), Deps{})
	ctx := context.Background()

	report, err := p.ImportMerchants(ctx, []config.SeedMerchant{{Name: "Acme"}, {Name: "Beta", Domain: "beta.test"}, {Name: "Acme"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.OK)
	assert.Equal(t, 1, report.Skipped)

	report, err = p.ImportMerchants(ctx, []config.SeedMerchant{{Name: "Beta"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)

	merchants, err := store.ListMerchants(ctx, nil)
	require.NoError(t, err)
	require.Len(t, merchants, 2)
	for _, m := range merchants {
		assert.Equal(t, models.MerchantStatusPending, m.Status)
	}
}

func TestResolveDomains_Unresolved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, store := newTestPipeline(t, testConfig(t), Deps{})
	m := &models.Merchant{Name: "Down Shop", Domain: srv.URL}
	require.NoError(t, store.CreateMerchant(m))

	report, err := p.ResolveDomains(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "Resolve_Unresolved", report.Items[0].Reason)

	got, err := store.GetMerchant(m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MerchantStatusError, got.Status)
	assert.Equal(t, resolve.NoteUnresolved, got.Notes)
	assert.Equal(t, srv.URL, got.Domain, "the seed domain is kept when unresolved")
}

func TestResolveDomains_CancelledKeepsPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	p, store := newTestPipeline(t, testConfig(t), Deps{})
	m := &models.Merchant{Name: "Slow Shop", Domain: srv.URL}
	require.NoError(t, store.CreateMerchant(m))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	report, err := p.ResolveDomains(ctx, nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEmpty(t, report.Err)
	assert.Equal(t, 0, report.Failed)

	got, err := store.GetMerchant(m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MerchantStatusPending, got.Status)
	assert.Empty(t, got.Notes)

	// The merchant is selected again on the next run
	report, err = p.ResolveDomains(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
}

func TestResolveDomains_ExplicitIDsAndLimit(t *testing.T) {
	srv := storefront(t)
	p, store := newTestPipeline(t, testConfig(t), Deps{})

	first := &models.Merchant{Name: "First", Domain: srv.URL}
	second := &models.Merchant{Name: "Second", Domain: srv.URL}
	require.NoError(t, store.CreateMerchant(first))
	require.NoError(t, store.CreateMerchant(second))

	report, err := p.ResolveDomains(context.Background(), []string{second.ID, "missing-id"}, 5)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	assert.Equal(t, second.ID, report.Items[0].ID)

	report, err = p.ResolveDomains(context.Background(), nil, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	assert.Equal(t, first.ID, report.Items[0].ID)
}

func TestDiscoverProducts_SkipsFullAndUnresolved(t *testing.T) {
	srv := storefront(t)
	cfg := testConfig(t)
	cfg.Limits.MaxProductsPerMerchant = 1
	p, store := newTestPipeline(t, cfg, Deps{})

	full := &models.Merchant{Name: "Full", Domain: srv.URL, Status: models.MerchantStatusDone}
	pending := &models.Merchant{Name: "Pending", Domain: srv.URL}
	require.NoError(t, store.CreateMerchant(full))
	require.NoError(t, store.CreateMerchant(pending))
	_, err := store.AddProductURL(full.ID, srv.URL+"/products/a")
	require.NoError(t, err)

	report, err := p.DiscoverProducts(context.Background(), []string{full.ID, pending.ID}, 0)
	require.NoError(t, err)
	require.Equal(t, 2, report.Skipped)
	assert.Equal(t, SkipFull, report.Find(full.ID).Reason)
	assert.Equal(t, SkipUnresolved, report.Find(pending.ID).Reason)
}

func TestDiscoverProducts_RespectsSlotBudget(t *testing.T) {
	srv := storefront(t)
	cfg := testConfig(t)
	cfg.Limits.MaxProductsPerMerchant = 1
	p, store := newTestPipeline(t, cfg, Deps{})

	m := &models.Merchant{Name: "Shop", Domain: srv.URL, Status: models.MerchantStatusDone}
	require.NoError(t, store.CreateMerchant(m))

	report, err := p.DiscoverProducts(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)

	products, err := store.ListProducts(context.Background(), m.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, srv.URL+"/products/a", products[0].URL)
	assert.Equal(t, models.SourceUnset, products[0].Source)
}

func TestExtractRatings_RobotsStatusAndOrder(t *testing.T) {
	srv := storefront(t)
	p, store := newTestPipeline(t, testConfig(t), Deps{})
	ctx := context.Background()

	m := &models.Merchant{Name: "Shop", Domain: srv.URL, Status: models.MerchantStatusDone}
	require.NoError(t, store.CreateMerchant(m))
	for _, path := range []string{"/products/private", "/products/missing", "/products/a"} {
		_, err := store.AddProductURL(m.ID, srv.URL+path)
		require.NoError(t, err)
	}

	// Mark the first two as fetched earlier so /products/a, never fetched, leads the queue
	products, err := store.ListProducts(ctx, m.ID)
	require.NoError(t, err)
	yesterday := time.Now().Add(-24 * time.Hour)
	for _, s := range products {
		if !strings.HasSuffix(s.URL, "/products/a") {
			s.FetchedAt = models.TimePtr(yesterday)
			require.NoError(t, store.UpdateProduct(s))
		}
	}

	report, err := p.ExtractRatings(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	assert.Equal(t, srv.URL+"/products/a", report.Items[0].Label)
	assert.Equal(t, ItemOK, report.Items[0].Status)

	report, err = p.ExtractRatings(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed, "the rated sample is no longer selected")

	byLabel := make(map[string]ItemResult)
	for _, item := range report.Items {
		byLabel[item.Label] = item
	}
	private := byLabel[srv.URL+"/products/private"]
	assert.Equal(t, ItemSkipped, private.Status)
	assert.Equal(t, SkipRobots, private.Reason)

	missing := byLabel[srv.URL+"/products/missing"]
	assert.Equal(t, ItemError, missing.Status)
	assert.Equal(t, "status 404", missing.Reason)
}

func TestVerifyEmails_DisabledWithoutVerifier(t *testing.T) {
	p, store := newTestPipeline(t, testConfig(t), Deps{})
	_, err := store.UpsertEmail(&models.ContactEmail{
		MerchantID: "m1", Address: "jane.doe@shop.test", Type: models.EmailPersonal,
		VerifiedSyntax: true, VerifiedMX: true,
	})
	require.NoError(t, err)

	report, err := p.VerifyEmails(context.Background(), 0)
	require.NoError(t, err)
	assert.True(t, report.Disabled)
	assert.Equal(t, 0, report.Processed)
}

func TestVerifyEmails_FiltersCandidates(t *testing.T) {
	verifier := &fakeVerifier{}
	p, store := newTestPipeline(t, testConfig(t), Deps{Verifier: verifier})

	for _, e := range []*models.ContactEmail{
		{MerchantID: "m1", Address: "jane.doe@shop.test", Type: models.EmailPersonal, VerifiedSyntax: true, VerifiedMX: true},
		{MerchantID: "m1", Address: "no.mx@shop.test", Type: models.EmailPersonal, VerifiedSyntax: true},
		{MerchantID: "m1", Address: "info@shop.test", Type: models.EmailGeneric, VerifiedSyntax: true, VerifiedMX: true},
	} {
		_, err := store.UpsertEmail(e)
		require.NoError(t, err)
	}

	report, err := p.VerifyEmails(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.OK)
	assert.Equal(t, []string{"jane.doe@shop.test"}, verifier.calls)
}

func TestEnrichSocial(t *testing.T) {
	t.Run("disabled without client", func(t *testing.T) {
		p, _ := newTestPipeline(t, testConfig(t), Deps{})
		report, err := p.EnrichSocial(context.Background(), nil, 0)
		require.NoError(t, err)
		assert.True(t, report.Disabled)
	})

	t.Run("lookup error recorded on merchant", func(t *testing.T) {
		p, store := newTestPipeline(t, testConfig(t), Deps{Social: &fakeSocial{err: enrich.ErrNoPosts}})
		m := &models.Merchant{Name: "Quiet", Instagram: "quietshop"}
		skipped := &models.Merchant{Name: "No Handle"}
		require.NoError(t, store.CreateMerchant(m))
		require.NoError(t, store.CreateMerchant(skipped))

		report, err := p.EnrichSocial(context.Background(), nil, 0)
		require.NoError(t, err)
		require.Equal(t, 1, report.Processed)
		assert.Equal(t, 1, report.Failed)

		got, err := store.GetMerchant(m.ID)
		require.NoError(t, err)
		assert.Equal(t, "no posts", got.InstagramError)
		require.NotNil(t, got.InstagramActive30d)
		assert.False(t, *got.InstagramActive30d)
		assert.Nil(t, got.InstagramLastPostAt)
	})

	t.Run("stale post is inactive", func(t *testing.T) {
		last := time.Now().Add(-45 * 24 * time.Hour)
		p, store := newTestPipeline(t, testConfig(t), Deps{Social: &fakeSocial{last: last}})
		m := &models.Merchant{Name: "Old", Instagram: "oldshop", InstagramError: "no posts"}
		require.NoError(t, store.CreateMerchant(m))

		_, err := p.EnrichSocial(context.Background(), nil, 0)
		require.NoError(t, err)

		got, err := store.GetMerchant(m.ID)
		require.NoError(t, err)
		require.NotNil(t, got.InstagramActive30d)
		assert.False(t, *got.InstagramActive30d)
		require.NotNil(t, got.InstagramLastPostAt)
		assert.WithinDuration(t, last, *got.InstagramLastPostAt, time.Second)
		assert.Empty(t, got.InstagramError)
	})
}

func TestAggregateMerchants_OnlyWithSamples(t *testing.T) {
	p, store := newTestPipeline(t, testConfig(t), Deps{})
	ctx := context.Background()

	rated := &models.Merchant{Name: "Rated", Status: models.MerchantStatusDone}
	empty := &models.Merchant{Name: "Empty", Status: models.MerchantStatusDone}
	require.NoError(t, store.CreateMerchant(rated))
	require.NoError(t, store.CreateMerchant(empty))

	for i, r := range []float64{4.0, 5.0} {
		u := fmt.Sprintf("https://rated.test/products/%d", i)
		_, err := store.AddProductURL(rated.ID, u)
		require.NoError(t, err)
		require.NoError(t, store.UpdateProduct(&models.ProductSample{
			MerchantID: rated.ID, URL: u, Rating: models.Float64Ptr(r), ReviewCount: models.IntPtr(10),
		}))
	}

	report, err := p.AggregateMerchants(ctx, nil, 0)
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	assert.Equal(t, rated.ID, report.Items[0].ID)

	agg, err := store.GetAggregate(rated.ID)
	require.NoError(t, err)
	require.NotNil(t, agg.MedianRating)
	assert.Equal(t, 4.5, *agg.MedianRating)

	_, err = store.GetAggregate(empty.ID)
	assert.Error(t, err)

	report, err = p.AggregateMerchants(ctx, []string{empty.ID}, 0)
	require.NoError(t, err)
	assert.Equal(t, SkipNoSamples, report.Items[0].Reason)
}

func TestRunReport_WriteYAML(t *testing.T) {
	stage := newStageReport(StageExtract)
	stage.ok("p1", "https://shop.test/products/a", "structured-data")
	stage.failReason("p2", "https://shop.test/products/b", "status 404")
	_, err := stage.finish(nil)
	require.NoError(t, err)

	run := &RunReport{StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Stages: []*StageReport{stage}}
	path := filepath.Join(t.TempDir(), "report.yaml")
	require.NoError(t, run.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "stage: extract")
	assert.Contains(t, out, "reason: status 404")
	assert.Contains(t, out, "failed: 1")
	assert.NotContains(t, out, "started:")
}

func TestStageReport_Counts(t *testing.T) {
	r := newStageReport(StageEmails)
	r.ok("a", "A", "")
	r.skip("b", "B", SkipNoMatch)
	r.fail("c", "C", fmt.Errorf("boom"))

	assert.Equal(t, 3, r.Processed)
	assert.Equal(t, 1, r.OK)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, "boom", r.Find("c").Detail)
	assert.Nil(t, r.Find("zzz"))
}
