package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays for testing
func testConfig(retries int) *config.AppConfig {
	return &config.AppConfig{
		UserAgent:               config.DefaultUserAgent,
		AcceptHeader:            config.DefaultAcceptHeader,
		Concurrency:             6,
		RequestTimeout:          2 * time.Second,
		Retries:                 retries,
		RetryBaseDelay:          5 * time.Millisecond,
		RetryJitter:             5 * time.Millisecond,
		SemaphoreAcquireTimeout: 5 * time.Second,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestFetcher(cfg *config.AppConfig) *Fetcher {
	return NewFetcher(&http.Client{Timeout: 30 * time.Second}, cfg, testLogger())
}

// dropConnections closes the first n connections without a response, then serves 200 OK
func dropConnections(t *testing.T, n int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= n {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	t.Cleanup(server.Close)
	return server, attempts
}

func TestFetch_Success(t *testing.T) {
	server, attempts := dropConnections(t, 0)
	f := newTestFetcher(testConfig(2))

	resp, err := f.Fetch(context.Background(), server.URL+"/page", nil)

	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.True(t, resp.IsHTML())
	assert.Equal(t, "<html>ok</html>", resp.Text())
	assert.Equal(t, server.URL+"/page", resp.FinalURL)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetch_HTTPErrorStatusNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			attempts := &atomic.Int32{}
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.WriteHeader(status)
			}))
			defer server.Close()

			resp, err := newTestFetcher(testConfig(3)).Fetch(context.Background(), server.URL, nil)

			require.NoError(t, err)
			assert.Equal(t, status, resp.StatusCode)
			assert.False(t, resp.OK())
			assert.Equal(t, int32(1), attempts.Load())
		})
	}
}

func TestFetch_TransportErrorRetrySuccess(t *testing.T) {
	server, attempts := dropConnections(t, 2)

	resp, err := newTestFetcher(testConfig(2)).Fetch(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetch_TransportErrorAllRetriesFail(t *testing.T) {
	server, attempts := dropConnections(t, 100)

	resp, err := newTestFetcher(testConfig(2)).Fetch(context.Background(), server.URL, nil)

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, utils.ErrRetryFailed)
	assert.Equal(t, int32(3), attempts.Load(), "initial attempt + 2 retries")
}

func TestFetch_TimeoutConsumesRetry(t *testing.T) {
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte("late but fine"))
	}))
	defer server.Close()

	cfg := testConfig(1)
	cfg.RequestTimeout = 100 * time.Millisecond

	resp, err := newTestFetcher(cfg).Fetch(context.Background(), server.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, "late but fine", resp.Text())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestFetch_DefaultHeaders(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
	}))
	defer server.Close()
	f := newTestFetcher(testConfig(0))

	_, err := f.Fetch(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultUserAgent, gotUA)
	assert.Equal(t, config.DefaultAcceptHeader, gotAccept)

	_, err = f.Fetch(context.Background(), server.URL, &Options{Headers: map[string]string{"User-Agent": "custom/2.0"}})
	require.NoError(t, err)
	assert.Equal(t, "custom/2.0", gotUA)
	assert.Equal(t, config.DefaultAcceptHeader, gotAccept)
}

func TestFetch_ConcurrencyCeiling(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer server.Close()

	cfg := testConfig(0)
	cfg.Concurrency = 2
	f := newTestFetcher(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Fetch(context.Background(), server.URL, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
	assert.GreaterOrEqual(t, maxInFlight.Load(), int32(1))
}

func TestFetch_CancelledContext(t *testing.T) {
	server, attempts := dropConnections(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(testConfig(2)).Fetch(ctx, server.URL, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetch_BodyCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	resp, err := newTestFetcher(testConfig(0)).Fetch(context.Background(), server.URL, &Options{MaxBodyBytes: 4})

	require.NoError(t, err)
	assert.Equal(t, "0123", resp.Text())
}

func TestFetch_InvalidURL(t *testing.T) {
	_, err := newTestFetcher(testConfig(2)).Fetch(context.Background(), "http://[::1]:namedport", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrRequestCreation)
}

func TestBackoff(t *testing.T) {
	cfg := testConfig(2)
	cfg.RetryBaseDelay = 250 * time.Millisecond
	cfg.RetryJitter = 0
	f := newTestFetcher(cfg)

	assert.Equal(t, 250*time.Millisecond, f.Backoff(0))
	assert.Equal(t, 500*time.Millisecond, f.Backoff(1))

	cfg.RetryJitter = 500 * time.Millisecond
	for i := 0; i < 20; i++ {
		d := f.Backoff(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.Less(t, d, 1500*time.Millisecond)
	}
}

func TestFetch_FinalURLAfterRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := newTestFetcher(testConfig(0)).Fetch(context.Background(), server.URL+"/old", nil)

	require.NoError(t, err)
	assert.Equal(t, server.URL+"/old", resp.URL)
	assert.Equal(t, server.URL+"/new", resp.FinalURL)
	assert.Equal(t, "moved", resp.Text())
}
