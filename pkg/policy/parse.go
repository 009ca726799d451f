// Package policy finds return and shipping policy pages and reads their terms.
package policy

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const (
	snippetRadius   = 120
	invisibleMarkup = "script, style, noscript, svg"
)

// NoteFreeShippingUnclear is attached when free shipping is mentioned without terms
const NoteFreeShippingUnclear = "Free shipping mentioned without conditions."

var (
	returnWindow   = regexp.MustCompile(`(?i)(\bwithin\s+)?(\d{1,3})\s*[-\s]?day(s)?\s+(return|returns|refunds?|exchange)`)
	freeAllOrders  = regexp.MustCompile(`(?i)free\s+shipping\s+(on\s+)?all\s+orders`)
	freeOver       = regexp.MustCompile(`(?i)free\s+shipping\s+on\s+orders?\s+(over|above|from)\s+([^\s,.]+)`)
	freeMention    = regexp.MustCompile(`(?i)free\s+shipping`)
	currencyAmount = regexp.MustCompile(`(?i)(USD|CAD|AUD|EUR|GBP|\$|£|€)\s?([0-9]+(?:\.[0-9]{1,2})?)`)
)

// ReturnTerms is the parsed return policy. WindowDays is nil when no window was found.
type ReturnTerms struct {
	WindowDays *int
	Evidence   string
}

// ShippingTerms is the parsed shipping policy. A nil field means unknown.
type ShippingTerms struct {
	Free       *bool
	AlwaysFree *bool
	Threshold  *float64
	Currency   string
	Notes      string
	Evidence   string
}

// VisibleText returns the whitespace-collapsed body text of html without script, style, noscript and svg content
func VisibleText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return visibleText(doc)
}

func visibleText(doc *goquery.Document) string {
	doc.Find(invisibleMarkup).Remove()
	return utils.CollapseWhitespace(doc.Find("body").Text())
}

// ParseReturn finds the first "N-day returns" style statement
func ParseReturn(html string) ReturnTerms {
	text := VisibleText(html)
	m := returnWindow.FindStringSubmatchIndex(text)
	if m == nil {
		return ReturnTerms{}
	}
	var terms ReturnTerms
	if days, err := strconv.Atoi(text[m[4]:m[5]]); err == nil {
		terms.WindowDays = &days
	}
	terms.Evidence = utils.Snippet(text, m[0], m[0], snippetRadius)
	return terms
}

// shippingRule is one step of the shipping chain; ok reports a match
type shippingRule func(text string) (terms ShippingTerms, ok bool)

// shippingChain is evaluated in order, first match wins
var shippingChain = []shippingRule{allOrdersFree, freeOverThreshold, freeMentioned}

// ParseShipping reads free-shipping terms. No match returns an empty ShippingTerms.
func ParseShipping(html string) ShippingTerms {
	text := VisibleText(html)
	for _, rule := range shippingChain {
		if terms, ok := rule(text); ok {
			return terms
		}
	}
	return ShippingTerms{}
}

func allOrdersFree(text string) (ShippingTerms, bool) {
	loc := freeAllOrders.FindStringIndex(text)
	if loc == nil {
		return ShippingTerms{}, false
	}
	return ShippingTerms{
		Free:       models.BoolPtr(true),
		AlwaysFree: models.BoolPtr(true),
		Evidence:   utils.Snippet(text, loc[0], loc[0], snippetRadius),
	}, true
}

func freeOverThreshold(text string) (ShippingTerms, bool) {
	m := freeOver.FindStringSubmatchIndex(text)
	if m == nil {
		return ShippingTerms{}, false
	}
	terms := ShippingTerms{
		Free:       models.BoolPtr(true),
		AlwaysFree: models.BoolPtr(false),
		Evidence:   utils.Snippet(text, m[0], m[0], snippetRadius),
	}
	if currency, amount, ok := ParseCurrencyAmount(text[m[4]:m[5]]); ok {
		terms.Currency = currency
		terms.Threshold = &amount
	}
	return terms, true
}

func freeMentioned(text string) (ShippingTerms, bool) {
	loc := freeMention.FindStringIndex(text)
	if loc == nil {
		return ShippingTerms{}, false
	}
	return ShippingTerms{
		Free:     models.BoolPtr(true),
		Notes:    NoteFreeShippingUnclear,
		Evidence: utils.Snippet(text, loc[0], loc[0], snippetRadius),
	}, true
}

// ParseCurrencyAmount reads "$50", "USD 50", "£40.5". Currency codes are uppercased; "$" stays a symbol.
func ParseCurrencyAmount(s string) (currency string, amount float64, ok bool) {
	m := currencyAmount.FindStringSubmatch(s)
	if m == nil {
		return "", 0, false
	}
	amount, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return "", 0, false
	}
	currency = m[1]
	if currency != "$" {
		currency = strings.ToUpper(currency)
	}
	return currency, amount, true
}
