package email

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const contextRadius = 80

var addressPattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

// Candidate is an address seen on a page, before validation
type Candidate struct {
	Address   string
	SourceURL string
	Evidence  string
}

// ExtractFromPage collects mailto targets first, then addresses in the visible body text.
// Each address appears once (case-insensitive); mailto evidence is the link text.
func ExtractFromPage(html, pageURL string) []Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	doc.Find("script, style, noscript").Remove()

	seen := make(map[string]struct{})
	var out []Candidate
	add := func(addr, evidence string) {
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, Candidate{Address: addr, SourceURL: pageURL, Evidence: evidence})
	}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr, _, _ := strings.Cut(strings.TrimPrefix(href, "mailto:"), "?")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		evidence := strings.TrimSpace(s.Text())
		if evidence == "" {
			evidence = addr
		}
		add(addr, evidence)
	})

	text := utils.CollapseWhitespace(doc.Find("body").Text())
	for _, loc := range addressPattern.FindAllStringIndex(text, -1) {
		addr := text[loc[0]:loc[1]]
		add(addr, utils.Snippet(text, loc[0], loc[0], contextRadius))
	}
	return out
}
