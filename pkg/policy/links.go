package policy

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/ratings-crawler/pkg/parse"
)

var (
	returnKeys   = []string{"return", "returns", "refund", "refunds", "exchange", "exchanges"}
	shippingKeys = []string{"shipping", "delivery", "postage", "freight"}
)

// Links holds the discovered policy page URLs; empty when not found
type Links struct {
	ReturnURL   string
	ShippingURL string
}

// DiscoverLinks scans anchors on a page for return and shipping policy links.
// A link counts when its href or text contains a key; the shortest absolute URL wins per kind.
func DiscoverLinks(html, base string) Links {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Links{}
	}
	return discoverLinks(doc, base)
}

func discoverLinks(doc *goquery.Document, base string) Links {
	var returns, shipping []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		abs, ok := parse.ResolveReference(base, href)
		if !ok {
			return
		}
		hrefLower := strings.ToLower(href)
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if containsAny(hrefLower, text, returnKeys) {
			returns = append(returns, abs)
		}
		if containsAny(hrefLower, text, shippingKeys) {
			shipping = append(shipping, abs)
		}
	})
	return Links{ReturnURL: shortest(returns), ShippingURL: shortest(shipping)}
}

func containsAny(href, text string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(href, k) || strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func shortest(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	sort.SliceStable(urls, func(i, j int) bool { return len(urls[i]) < len(urls[j]) })
	return urls[0]
}
