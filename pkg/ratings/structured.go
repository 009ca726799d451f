package ratings

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/parse"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const structuredEvidenceLimit = 500

// FromStructuredData reads Product objects from ld+json blocks and returns the rating of the best match
func FromStructuredData(doc *goquery.Document, pageURL string) *Extraction {
	var products []map[string]any
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		var tree any
		if err := json5.Unmarshal([]byte(text), &tree); err != nil {
			return
		}
		products = append(products, collectProducts(tree)...)
	})
	if len(products) == 0 {
		return nil
	}

	product := pickBest(products, pageURL)
	agg := asObject(product["aggregateRating"])
	title, _ := product["name"].(string)
	rating := ClampRating(agg["ratingValue"])
	count := ParseCount(agg["reviewCount"])
	if rating == nil && count == nil {
		return nil
	}

	return &Extraction{
		Title:       title,
		Rating:      rating,
		ReviewCount: count,
		Widget:      WidgetNone,
		Source:      models.SourceStructuredData,
		Evidence:    structuredEvidence(product),
	}
}

// collectProducts returns the Product objects of a top-level value: the value itself,
// the items of a top-level array, or the members of an @graph wrapper
func collectProducts(tree any) []map[string]any {
	var items []any
	if arr, ok := tree.([]any); ok {
		items = arr
	} else {
		items = []any{tree}
	}

	var out []map[string]any
	for _, item := range items {
		obj := asObject(item)
		if obj == nil {
			continue
		}
		if isProduct(obj) {
			out = append(out, obj)
			continue
		}
		graph, ok := obj["@graph"]
		if !ok {
			continue
		}
		members, ok := graph.([]any)
		if !ok {
			members = []any{graph}
		}
		for _, m := range members {
			if g := asObject(m); g != nil && isProduct(g) {
				out = append(out, g)
			}
		}
	}
	return out
}

func isProduct(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return t == "Product"
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

// pickBest prefers the candidate whose identifier appears in the page URL, then the highest review count
func pickBest(candidates []map[string]any, pageURL string) map[string]any {
	page := parse.StripFragment(pageURL)
	for _, c := range candidates {
		if id, ok := identifier(c); ok && strings.Contains(page, parse.StripFragment(id)) {
			return c
		}
	}

	best := candidates[0]
	bestCount := reviewCountOf(best)
	for _, c := range candidates[1:] {
		if rc := reviewCountOf(c); rc > bestCount {
			best, bestCount = c, rc
		}
	}
	return best
}

// identifier returns @id, then url, then offers.url
func identifier(c map[string]any) (string, bool) {
	for _, key := range []string{"@id", "url"} {
		if s, ok := c[key].(string); ok && s != "" {
			return s, true
		}
	}
	if s, ok := asObject(c["offers"])["url"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func reviewCountOf(c map[string]any) int {
	if n := ParseCount(asObject(c["aggregateRating"])["reviewCount"]); n != nil {
		return *n
	}
	return 0
}

func asObject(v any) map[string]any {
	obj, _ := v.(map[string]any)
	return obj
}

func structuredEvidence(product map[string]any) string {
	payload := struct {
		Name            any `json:"name"`
		AggregateRating any `json:"aggregateRating"`
	}{product["name"], product["aggregateRating"]}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return utils.Truncate(string(data), structuredEvidenceLimit)
}
