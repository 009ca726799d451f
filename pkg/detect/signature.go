// Package detect recognizes platforms and embedded widgets from response headers and HTML markup.
package detect

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Signature defines the markup patterns that identify a platform or widget family
type Signature struct {
	Name         string
	Selectors    []string // CSS selectors whose presence is a match
	Attributes   []string // HTML attributes to look for (e.g., "data-oke-reviews")
	Classes      []string // CSS classes to look for; a trailing '*' matches by prefix
	Scripts      []string // Script src substrings to look for
	HTMLPatterns []string // Case-insensitive substrings to look for in raw HTML
}

// Matches returns true if the document matches any pattern of this signature
func (sig *Signature) Matches(doc *goquery.Document, html string) bool {
	if doc != nil {
		for _, sel := range sig.Selectors {
			if doc.Find(sel).Length() > 0 {
				return true
			}
		}

		for _, attr := range sig.Attributes {
			if doc.Find("["+attr+"]").Length() > 0 {
				return true
			}
		}

		for _, class := range sig.Classes {
			if strings.HasSuffix(class, "*") {
				if hasClassPrefix(doc, strings.TrimSuffix(class, "*")) {
					return true
				}
			} else if doc.Find("."+class).Length() > 0 {
				return true
			}
		}

		for _, pattern := range sig.Scripts {
			found := false
			doc.Find("script[src]").EachWithBreak(func(i int, s *goquery.Selection) bool {
				src, _ := s.Attr("src")
				found = strings.Contains(src, pattern)
				return !found
			})
			if found {
				return true
			}
		}
	}

	if len(sig.HTMLPatterns) > 0 {
		htmlLower := strings.ToLower(html)
		for _, pattern := range sig.HTMLPatterns {
			if strings.Contains(htmlLower, strings.ToLower(pattern)) {
				return true
			}
		}
	}

	return false
}

// hasClassPrefix reports whether any element carries a class starting with prefix
func hasClassPrefix(doc *goquery.Document, prefix string) bool {
	found := false
	doc.Find("[class]").EachWithBreak(func(i int, s *goquery.Selection) bool {
		classAttr, _ := s.Attr("class")
		for _, c := range strings.Fields(classAttr) {
			if strings.HasPrefix(c, prefix) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// FirstMatch returns the first signature in order that matches, or nil.
// Order matters: more specific signatures should come first.
func FirstMatch(sigs []Signature, doc *goquery.Document, html string) *Signature {
	for i := range sigs {
		if sigs[i].Matches(doc, html) {
			return &sigs[i]
		}
	}
	return nil
}
