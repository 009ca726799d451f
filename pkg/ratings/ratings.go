// Package ratings extracts star ratings and review counts from product pages.
package ratings

import (
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/ratings-crawler/pkg/metrics"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
)

const (
	maxRating = 5.5
	maxCount  = math.MaxInt32 // Upper bound for a plausible review count
	// WidgetNone marks a rating read from structured data
	WidgetNone = "none"
)

// Extraction is the rating signal found on one product page.
// At least one of Rating and ReviewCount is set.
type Extraction struct {
	Title       string
	Rating      *float64
	ReviewCount *int
	Widget      string
	Source      models.ExtractionSource
	Evidence    string
}

// Extractor is one tier of the extraction chain
type Extractor func(doc *goquery.Document, pageURL string) *Extraction

// chain is evaluated in order, first non-nil result wins
var chain = []Extractor{FromStructuredData, FromWidgets}

// Extract runs the extraction chain over html. Returns nil when no tier finds a rating or count.
func Extract(html, pageURL string) *Extraction {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		metrics.ObserveExtraction("none")
		return nil
	}
	for _, tier := range chain {
		if ex := tier(doc, pageURL); ex != nil {
			metrics.ObserveExtraction(ex.Source.String())
			return ex
		}
	}
	metrics.ObserveExtraction("none")
	return nil
}

// ClampRating accepts a number or numeric string within [0, 5.5] and rounds it to two decimals
func ClampRating(v any) *float64 {
	var x float64
	switch t := v.(type) {
	case float64:
		x = t
	case int:
		x = float64(t)
	case string:
		f, ok := leadingFloat(t)
		if !ok {
			return nil
		}
		x = f
	default:
		return nil
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || x > maxRating {
		return nil
	}
	rounded := math.Round(x*100) / 100
	return &rounded
}

// ParseCount accepts a number or a string with thousands separators and returns a non-negative integer.
// Values above math.MaxInt32 are rejected.
func ParseCount(v any) *int {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t > maxCount {
			return nil
		}
		n := int(math.Floor(t))
		return &n
	case int:
		if t < 0 || t > maxCount {
			return nil
		}
		return &t
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
				return -1
			}
			return r
		}, t)
		n, ok := leadingInt(cleaned)
		if !ok || n < 0 || n > maxCount {
			return nil
		}
		return &n
	}
	return nil
}

// leadingFloat parses the longest numeric prefix of s ("4.5 stars" -> 4.5)
func leadingFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	seenDot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !seenDot:
			seenDot = true
		case (r == '-' || r == '+') && i == 0:
		default:
			return parsePrefix(s[:end])
		}
		end = i + 1
	}
	return parsePrefix(s[:end])
}

func parsePrefix(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// leadingInt parses the integer prefix of s ("1200+" -> 1200)
func leadingInt(s string) (int, bool) {
	end := 0
	for i, r := range s {
		if (r >= '0' && r <= '9') || ((r == '-' || r == '+') && i == 0) {
			end = i + 1
			continue
		}
		break
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
