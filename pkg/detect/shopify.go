package detect

import (
	"net/http"
	"regexp"
	"strings"
)

// ShopifyHTMLLimit is how much of a homepage body is inspected for Shopify markers
const ShopifyHTMLLimit = 20000

var (
	// shopifyMarkup identifies storefront themes by their assets and globals
	shopifyMarkup = Signature{
		Name:         "shopify",
		HTMLPatterns: []string{"cdn.shopify.com"},
	}
	shopifyGlobals   = regexp.MustCompile(`Shopify\.theme|ShopifyAnalytics|window\.__st\s*=`)
	cartProbeShape   = regexp.MustCompile(`\{"token":|"items"\s*:\s*\[`)
	productsProbe    = regexp.MustCompile(`"products"\s*:\s*\[`)
	htmlContentTypes = regexp.MustCompile(`(?i)text/html|application/(xhtml\+xml|html)`)
)

// Probe paths fired when headers and markup are inconclusive
const (
	CartProbePath     = "/cart.js"
	ProductsProbePath = "/products.json?limit=1"
)

// IsLikelyHTML reports whether a Content-Type header declares an HTML document
func IsLikelyHTML(contentType string) bool {
	return contentType != "" && htmlContentTypes.MatchString(contentType)
}

// ShopifyFromHeaders checks for x-shopify-* response headers or a Shopify Server header
func ShopifyFromHeaders(h http.Header) bool {
	for key := range h {
		if strings.HasPrefix(strings.ToLower(key), "x-shopify-") {
			return true
		}
	}
	return strings.Contains(strings.ToLower(h.Get("Server")), "shopify")
}

// ShopifyFromHTML checks the first ShopifyHTMLLimit bytes of a page for CDN assets or theme globals
func ShopifyFromHTML(html string) bool {
	if len(html) > ShopifyHTMLLimit {
		html = html[:ShopifyHTMLLimit]
	}
	if html == "" {
		return false
	}
	return shopifyMarkup.Matches(nil, html) || shopifyGlobals.MatchString(html)
}

// CartProbeMatches reports whether a /cart.js body has the Shopify cart shape
func CartProbeMatches(body string) bool {
	return cartProbeShape.MatchString(body)
}

// ProductsProbeMatches reports whether a /products.json body has the Shopify catalog shape
func ProductsProbeMatches(body string) bool {
	return productsProbe.MatchString(body)
}
