package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/metrics"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// Options customizes a single fetch. A nil *Options means a plain GET with the configured defaults.
type Options struct {
	Method       string            // HTTP method, defaults to GET
	Headers      map[string]string // Extra request headers; caller values win over the default User-Agent and Accept
	MaxBodyBytes int64             // Overrides the configured body cap when > 0 (e.g. only the head of a homepage is needed)
}

// Response is a fully read HTTP response. The body is already drained and closed,
// so callers never manage connections. Non-2xx statuses are returned as-is, not as errors.
type Response struct {
	URL        string      // URL as requested by the caller
	FinalURL   string      // URL after following redirects; differs from URL on e.g. www or locale redirects
	StatusCode int         // HTTP status code of the final response
	Header     http.Header // Headers of the final response (Shopify detection reads these)
	Body       []byte      // Body, truncated at the effective MaxBodyBytes when a cap applies
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsHTML reports whether the response declares an HTML content type
func (r *Response) IsHTML() bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "text/html")
}

// Text returns the body as a string
func (r *Response) Text() string {
	return string(r.Body)
}

// PageFetcher is the fetch contract consumed by the pipeline components.
// Tests substitute their own implementations; production code uses *Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts *Options) (*Response, error)
}

// Fetcher performs outbound requests under a process-wide concurrency ceiling,
// a per-attempt timeout, and retry with linear jittered backoff on transport failures.
// A single Fetcher is shared by every stage so the ceiling holds across the whole run.
type Fetcher struct {
	client *http.Client        // The configured HTTP client (transport tuning, redirect cap)
	cfg    *config.AppConfig   // Timeout, retry, body cap and header settings
	sem    *semaphore.Weighted // Global in-flight ceiling, sized by cfg.Concurrency
	hosts  *HostLimiter        // Optional per-host politeness, nil when disabled
	log    *logrus.Entry
}

// NewFetcher creates a Fetcher. cfg is expected to have passed Validate.
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Logger) *Fetcher {
	concurrency := cfg.Concurrency
	if concurrency <= 0 { // Validate normally prevents this; never build a zero-weight semaphore
		concurrency = 1
	}
	var hosts *HostLimiter
	if cfg.HostRate > 0 {
		hosts = NewHostLimiter(cfg.HostRate, cfg.HostBurst, log)
	}
	return &Fetcher{
		client: client,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		hosts:  hosts,
		log:    log.WithField("component", "fetcher"),
	}
}

// Backoff returns the wait before retry number attempt+1.
// The delay grows linearly with the attempt: (attempt+1) * (RetryBaseDelay + random(0, RetryJitter)).
// With a zero jitter the delay is deterministic, which the tests rely on.
func (f *Fetcher) Backoff(attempt int) time.Duration {
	unit := f.cfg.RetryBaseDelay
	if f.cfg.RetryJitter > 0 {
		// rand.Int63n panics on 0, hence the guard
		unit += time.Duration(rand.Int63n(int64(f.cfg.RetryJitter)))
	}
	return time.Duration(attempt+1) * unit
}

// Fetch requests rawURL and reads the whole body.
//
// Error contract:
//   - Transport failures (DNS, TCP, TLS, per-attempt timeouts) are retried up to cfg.Retries
//     times, then returned wrapped in utils.ErrRetryFailed.
//   - HTTP error statuses (4xx, 5xx) are NOT retried and come back as a Response with a nil error;
//     callers decide what a non-2xx means for them.
//   - Request creation failures (utils.ErrRequestCreation) and semaphore acquire timeouts
//     (utils.ErrSemaphoreTimeout) are returned immediately without retrying.
//   - Cancellation of ctx stops the loop and returns the context error, wrapping the last
//     transport error when there was one.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	reqLog := f.log.WithField("url", rawURL)
	start := time.Now() // Duration metric covers all attempts and backoff waits

	var lastErr error // Error from the most recent failed attempt

	// Initial attempt + cfg.Retries retries
	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {

		// --- Backoff Delay ---
		// Applied only before retries, never before the first attempt
		if attempt > 0 {
			delay := f.Backoff(attempt - 1)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.cfg.Retries, "delay": delay}).Warn("Retrying request...")
			metrics.ObserveRetry()
			select {
			case <-time.After(delay):
				// Sleep completed normally
			case <-ctx.Done():
				// Cancelled while waiting; report what we were retrying
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		// --- Context Check ---
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) after error: %w", err, lastErr)
			}
			return nil, err
		}

		// --- Perform Attempt ---
		resp, err := f.attempt(ctx, rawURL, opts)
		if err == nil {
			// Any HTTP status counts as a completed fetch
			metrics.ObserveFetch(resp.StatusCode, time.Since(start))
			reqLog.WithFields(logrus.Fields{"status_code": resp.StatusCode, "attempt": attempt}).Debug("Fetched")
			return resp, nil
		}

		// --- Non-Retryable Failures ---
		if errors.Is(err, utils.ErrRequestCreation) || errors.Is(err, utils.ErrSemaphoreTimeout) {
			// A malformed URL or a saturated pool will not improve by retrying
			metrics.ObserveFetch(0, time.Since(start))
			return nil, err
		}
		if ctx.Err() != nil {
			// Parent cancellation, not a per-attempt timeout
			metrics.ObserveFetch(0, time.Since(start))
			return nil, fmt.Errorf("%w: %w", ctx.Err(), err)
		}

		// --- Transport Error, Retry ---
		lastErr = err
		reqLog.WithField("attempt", attempt).Warnf("Transport error: %v", err)
	}

	// --- All Attempts Failed ---
	metrics.ObserveFetch(0, time.Since(start))
	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", f.cfg.Retries+1, lastErr)
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// attempt performs one request while holding a slot of the global pool.
// The per-host wait happens before the slot is taken so a slow host never pins global capacity.
func (f *Fetcher) attempt(ctx context.Context, rawURL string, opts *Options) (*Response, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	// --- Per-Attempt Timeout ---
	// Derived from ctx so parent cancellation still propagates
	var attemptCtx context.Context
	var cancel context.CancelFunc
	if f.cfg.RequestTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, f.cfg.RequestTimeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// --- Build Request ---
	req, err := http.NewRequestWithContext(attemptCtx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", f.cfg.AcceptHeader)
	}

	// --- Per-Host Politeness ---
	// No-op when the limiter is nil (host_rate = 0)
	if err := f.hosts.Wait(ctx, req.URL.Hostname()); err != nil {
		return nil, err
	}

	// --- Global Slot ---
	semTimeout := f.cfg.SemaphoreAcquireTimeout
	if semTimeout <= 0 {
		semTimeout = time.Minute
	}
	acquireCtx, cancelAcquire := context.WithTimeout(ctx, semTimeout)
	err = f.sem.Acquire(acquireCtx, 1)
	cancelAcquire()
	if err != nil {
		if ctx.Err() != nil {
			// Parent cancelled while queued; not a pool problem
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", utils.ErrSemaphoreTimeout, err)
	}
	defer f.sem.Release(1)
	metrics.TrackInFlight(1)
	defer metrics.TrackInFlight(-1)

	// --- Perform HTTP Request ---
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err // Transport error, retried by Fetch
	}
	defer resp.Body.Close()

	// --- Read Body ---
	limit := f.cfg.MaxBodyBytes
	if opts.MaxBodyBytes > 0 {
		limit = opts.MaxBodyBytes
	}
	var reader io.Reader = resp.Body
	if limit > 0 {
		reader = io.LimitReader(resp.Body, limit) // Truncates silently; callers only need the head
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}

	return &Response{
		URL:        rawURL,
		FinalURL:   resp.Request.URL.String(), // resp.Request is the last request after redirects
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
