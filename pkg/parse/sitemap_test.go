package parse

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

func TestParseSitemap_Index(t *testing.T) {
	data := `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://shop.com/sitemap_pages_1.xml</loc></sitemap>
  <sitemap><loc></loc></sitemap>
  <sitemap><loc>https://shop.com/sitemap_products_1.xml?from=1&amp;to=99</loc><lastmod>2024-01-15</lastmod></sitemap>
</sitemapindex>`

	sm, err := ParseSitemap([]byte(data))
	if err != nil {
		t.Fatalf("ParseSitemap() error = %v", err)
	}
	if !sm.IsIndex() {
		t.Fatal("expected a sitemap index")
	}
	want := []string{"https://shop.com/sitemap_pages_1.xml", "https://shop.com/sitemap_products_1.xml?from=1&to=99"}
	if !reflect.DeepEqual(sm.Children, want) {
		t.Errorf("Children = %v, want %v", sm.Children, want)
	}
	if len(sm.URLs) != 0 {
		t.Errorf("URLs = %v, want none", sm.URLs)
	}
}

func TestParseSitemap_URLSet(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want []string
	}{
		{
			name: "MultipleURLs",
			xml: `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://shop.com/products/a</loc></url>
  <url><loc>https://shop.com/products/b</loc><lastmod>2024-01-15</lastmod></url>
</urlset>`,
			want: []string{"https://shop.com/products/a", "https://shop.com/products/b"},
		},
		{
			name: "EmptyLocDropped",
			xml:  `<urlset><url><loc></loc></url><url><loc>https://shop.com/products/c</loc></url></urlset>`,
			want: []string{"https://shop.com/products/c"},
		},
		{
			name: "EmptySet",
			xml:  `<urlset></urlset>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := ParseSitemap([]byte(tt.xml))
			if err != nil {
				t.Fatalf("ParseSitemap() error = %v", err)
			}
			if sm.IsIndex() {
				t.Error("URL set reported as index")
			}
			if !reflect.DeepEqual(sm.URLs, tt.want) {
				t.Errorf("URLs = %v, want %v", sm.URLs, tt.want)
			}
		})
	}
}

func TestParseSitemap_Invalid(t *testing.T) {
	for _, input := range []string{"", "<html><body>Not found</body></html>", "<urlset><url>"} {
		_, err := ParseSitemap([]byte(input))
		if err == nil {
			t.Errorf("ParseSitemap(%q) expected error", input)
			continue
		}
		if !errors.Is(err, utils.ErrParsing) {
			t.Errorf("ParseSitemap(%q) error = %v, want ErrParsing", input, err)
		}
	}
}
