package robots

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleRobots = `# Shopify robots
User-agent: Googlebot
Disallow: /google-only

User-agent: *
Disallow: /admin
Disallow: /cart
Allow: /cart/public
Disallow: /search?q=
Disallow:
Sitemap: https://shop.com/sitemap.xml

User-agent: Bingbot
Disallow: /bing-only
`

func TestParseRules(t *testing.T) {
	rules := ParseRules(sampleRobots)

	assert.Equal(t, []string{"/cart/public"}, rules.Allow)
	assert.Equal(t, []string{"/admin", "/cart", "/search?q=", ""}, rules.Disallow)
	assert.Equal(t, []string{"https://shop.com/sitemap.xml"}, rules.Sitemaps)
}

func TestParseRules_IgnoresNonWildcardAndCaseInsensitiveKeys(t *testing.T) {
	rules := ParseRules("DISALLOW: /before-any-group\nUSER-AGENT: *\nALLOW: /x\r\nDisAllow: /y\n")
	assert.Equal(t, []string{"/x"}, rules.Allow)
	assert.Equal(t, []string{"/y"}, rules.Disallow)
}

func TestIsAllowed(t *testing.T) {
	rules := ParseRules(sampleRobots)

	tests := []struct {
		name string
		url  string
		want bool
	}{
		{"unrestricted path", "https://shop.com/products/a", true},
		{"disallowed prefix", "https://shop.com/admin/orders", false},
		{"longer allow wins", "https://shop.com/cart/public/x", true},
		{"shorter disallow applies", "https://shop.com/cart/private", false},
		{"query is part of path", "https://shop.com/search?q=shoes", false},
		{"without query allowed", "https://shop.com/search", true},
		{"non-wildcard group ignored", "https://shop.com/google-only", true},
		{"empty disallow never matches", "https://shop.com/", true},
		{"unparsable url allowed", "://bad", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsAllowed(tt.url, rules, true))
		})
	}
}

func TestIsAllowed_TieFavorsAllow(t *testing.T) {
	rules := &Rules{Allow: []string{"/page"}, Disallow: []string{"/page"}}
	assert.True(t, IsAllowed("https://shop.com/page", rules, true))
}

func TestIsAllowed_RespectOffOrNilRules(t *testing.T) {
	rules := &Rules{Disallow: []string{"/"}}
	assert.False(t, IsAllowed("https://shop.com/x", rules, true))
	assert.True(t, IsAllowed("https://shop.com/x", rules, false))
	assert.True(t, IsAllowed("https://shop.com/x", nil, true))
}

// Adding a longer Allow rule that matches a path never turns an allowed path into a disallowed one
// and always allows the path when it is longer than every matching Disallow rule.
func TestIsAllowed_MonotonicInAllowRules(t *testing.T) {
	segments := []string{"a", "b", "products", "cart", "x1", "?q=1"}
	rng := rand.New(rand.NewSource(42))

	randomPath := func(n int) string {
		p := ""
		for i := 0; i < n; i++ {
			p += "/" + segments[rng.Intn(len(segments))]
		}
		return p
	}

	for i := 0; i < 500; i++ {
		path := randomPath(1 + rng.Intn(4))
		rules := &Rules{}
		for j := 0; j < rng.Intn(5); j++ {
			rules.Allow = append(rules.Allow, randomPath(1+rng.Intn(3)))
		}
		for j := 0; j < rng.Intn(5); j++ {
			rules.Disallow = append(rules.Disallow, randomPath(1+rng.Intn(3)))
		}
		url := "https://shop.com" + path
		before := IsAllowed(url, rules, true)

		// A prefix of the path that is longer than any existing matching Allow rule
		extra := path[:1+rng.Intn(len(path))]
		if extra == "/" || len(extra) <= longestMatch(path, rules.Allow) {
			continue
		}
		widened := &Rules{Allow: append(append([]string{}, rules.Allow...), extra), Disallow: rules.Disallow}
		after := IsAllowed(url, widened, true)

		if before {
			assert.True(t, after, "path %q became disallowed after adding allow %q to %+v", path, extra, rules)
		}
		if len(extra) >= longestMatch(path, rules.Disallow) {
			assert.True(t, after, "path %q should be allowed by %q", path, extra)
		}
	}
}
