// Package robots parses robots.txt and caches it per domain in the state store.
package robots

import (
	"bufio"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
)

// Rules holds the Allow/Disallow prefixes of the wildcard user-agent group
type Rules struct {
	Allow    []string
	Disallow []string
	Sitemaps []string // Sitemap directives, independent of user-agent groups
}

// ParseRules reads robots.txt content. Only directives inside a `User-agent: *`
// block are kept; blank lines and comments are skipped.
func ParseRules(raw string) *Rules {
	rules := &Rules{}
	inWildcard := false

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch {
		case key == "user-agent":
			inWildcard = value == "*"
		case inWildcard && key == "allow":
			rules.Allow = append(rules.Allow, value)
		case inWildcard && key == "disallow":
			rules.Disallow = append(rules.Disallow, value)
		}
	}

	// Sitemap lines are group-independent; robotstxt already collects them
	if data, err := robotstxt.FromString(raw); err == nil {
		rules.Sitemaps = data.Sitemaps
	}
	return rules
}

// longestMatch returns the length of the longest non-empty rule that prefixes path, 0 if none
func longestMatch(path string, rules []string) int {
	longest := 0
	for _, r := range rules {
		if r == "" {
			continue
		}
		if strings.HasPrefix(path, r) && len(r) > longest {
			longest = len(r)
		}
	}
	return longest
}

// IsAllowed reports whether rawURL may be fetched under rules.
// With respect off or nil rules everything is allowed. The longest matching Allow
// prefix wins over the longest matching Disallow prefix when at least as long.
func IsAllowed(rawURL string, rules *Rules, respect bool) bool {
	if !respect || rules == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return longestMatch(path, rules.Allow) >= longestMatch(path, rules.Disallow)
}
