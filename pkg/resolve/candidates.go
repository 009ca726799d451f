// Package resolve finds the live storefront origin of a merchant and detects its platform.
package resolve

import (
	"regexp"
	"strings"
)

// CandidateTLDs are tried in order when only a merchant name is known
var CandidateTLDs = []string{".com", ".co", ".shop"}

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and collapses every non-alphanumeric run into a single hyphen
func Slugify(name string) string {
	slug := nonAlnumRun.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}

// CandidateURLs crosses the merchant slug with CandidateTLDs and a www. variant,
// yielding up to six https URLs in try order. Returns nil for an empty slug.
func CandidateURLs(name string) []string {
	slug := Slugify(name)
	if slug == "" {
		return nil
	}
	out := make([]string, 0, len(CandidateTLDs)*2)
	for _, tld := range CandidateTLDs {
		out = append(out, "https://"+slug+tld, "https://www."+slug+tld)
	}
	return out
}
