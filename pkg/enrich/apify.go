package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sriram-PR/ratings-crawler/pkg/config"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const (
	// SourceApifyInstagram tags merchants enriched through the Apify instagram scraper
	SourceApifyInstagram = "apify:instagram-scraper"

	defaultApifyRequestTimeout = 30 * time.Second
)

var (
	ErrTokenMissing     = fmt.Errorf("%w: APIFY_TOKEN missing", utils.ErrServiceDisabled)
	ErrEmptyUsername    = errors.New("empty username")
	ErrNoPosts          = errors.New("no posts")
	ErrInvalidTimestamp = errors.New("invalid post timestamp")
	ErrMissingDataset   = fmt.Errorf("%w: apify missing dataset id", utils.ErrServiceResponse)
)

// timestampFields are tried in order on the first dataset item
var timestampFields = []string{"takenAt", "timestamp", "taken_at", "taken_at_timestamp"}

// SocialClient looks up when an account last posted
type SocialClient interface {
	Source() string
	LastPost(ctx context.Context, handle string) (time.Time, error)
}

// ApifyInstagram runs the Apify instagram scraper actor for one profile
type ApifyInstagram struct {
	client        *http.Client
	baseURL       string
	token         string
	waitForFinish time.Duration
	reqTimeout    time.Duration // Deadline of the dataset read, and slack on top of waitForFinish for the run
}

// NewApifyInstagram creates an ApifyInstagram client
func NewApifyInstagram(client *http.Client, cfg config.ApifyConfig) *ApifyInstagram {
	reqTimeout := cfg.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = defaultApifyRequestTimeout
	}
	return &ApifyInstagram{
		client:        client,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		token:         cfg.Token,
		waitForFinish: cfg.WaitForFinish,
		reqTimeout:    reqTimeout,
	}
}

// Source implements SocialClient
func (a *ApifyInstagram) Source() string { return SourceApifyInstagram }

// NormalizeHandle strips a leading '@' and surrounding space
func NormalizeHandle(handle string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// LastPost implements SocialClient
func (a *ApifyInstagram) LastPost(ctx context.Context, handle string) (time.Time, error) {
	username := NormalizeHandle(handle)
	if username == "" {
		return time.Time{}, ErrEmptyUsername
	}
	if a.token == "" {
		return time.Time{}, ErrTokenMissing
	}

	datasetID, err := a.runActor(ctx, username)
	if err != nil {
		return time.Time{}, err
	}

	q := url.Values{}
	q.Set("token", a.token)
	q.Set("clean", "true")
	q.Set("limit", "1")
	q.Set("format", "json")

	readCtx, cancel := context.WithTimeout(ctx, a.reqTimeout)
	defer cancel()
	var items []map[string]any
	if err := getJSON(readCtx, a.client, a.baseURL+"/v2/datasets/"+url.PathEscape(datasetID)+"/items?"+q.Encode(), &items); err != nil {
		return time.Time{}, err
	}
	if len(items) == 0 {
		return time.Time{}, ErrNoPosts
	}
	return postTime(items[0])
}

func (a *ApifyInstagram) runActor(ctx context.Context, username string) (string, error) {
	input := map[string]any{
		"directNavigation":  true,
		"maxRequestRetries": 1,
		"resultsLimit":      1,
		"proxy":             map[string]any{"useApifyProxy": true},
		"addParentData":     false,
		"searchType":        "user",
		"usernames":         []string{username},
		"resultsType":       "posts",
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrParsing, err)
	}

	q := url.Values{}
	q.Set("token", a.token)
	q.Set("waitForFinish", strconv.Itoa(int(a.waitForFinish.Seconds())))

	// The run call is held open by the API for up to waitForFinish
	ctx, cancel := context.WithTimeout(ctx, a.waitForFinish+a.reqTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/acts/apify~instagram-scraper/runs?"+q.Encode(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var run struct {
		Data struct {
			DefaultDatasetID string `json:"defaultDatasetId"`
		} `json:"data"`
	}
	if err := doJSON(a.client, req, &run); err != nil {
		return "", err
	}
	if run.Data.DefaultDatasetID == "" {
		return "", ErrMissingDataset
	}
	return run.Data.DefaultDatasetID, nil
}

// postTime reads the first present timestamp field: an RFC 3339 string or a unix time
// (seconds, or milliseconds when the value is too large to be seconds)
func postTime(item map[string]any) (time.Time, error) {
	for _, field := range timestampFields {
		v, ok := item[field]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t == "" {
				continue
			}
			if ts, err := time.Parse(time.RFC3339, t); err == nil {
				return ts.UTC(), nil
			}
			if n, err := strconv.ParseFloat(t, 64); err == nil {
				return unixTime(n)
			}
			return time.Time{}, ErrInvalidTimestamp
		case float64:
			if t == 0 {
				continue
			}
			return unixTime(t)
		}
		return time.Time{}, ErrInvalidTimestamp
	}
	return time.Time{}, ErrInvalidTimestamp
}

func unixTime(n float64) (time.Time, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return time.Time{}, ErrInvalidTimestamp
	}
	if n >= 1e12 {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	return time.Unix(int64(n), 0).UTC(), nil
}

// Active reports whether last falls within lookbackDays of now
func Active(last, now time.Time, lookbackDays int) bool {
	return !last.IsZero() && now.Sub(last) <= time.Duration(lookbackDays)*24*time.Hour
}
