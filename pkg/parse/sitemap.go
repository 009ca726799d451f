package parse

import (
	"encoding/xml"
	"fmt"

	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// --- XML Structs for Sitemap Parsing ---

// XMLURL represents a <url> element in a sitemap
type XMLURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLURLSet represents a <urlset> element in a sitemap
type XMLURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// Sitemap is a parsed sitemap document: either an index of child sitemaps or a URL set
type Sitemap struct {
	Children []string // Child sitemap locations, non-empty only for an index
	URLs     []string // Page locations, non-empty only for a URL set
}

// IsIndex reports whether the document was a sitemap index
func (s *Sitemap) IsIndex() bool {
	return len(s.Children) > 0
}

// ParseSitemap decodes a sitemap document, trying the index form first.
// Entries with an empty <loc> are dropped.
func ParseSitemap(data []byte) (*Sitemap, error) {
	var index XMLSitemapIndex
	errIndex := xml.Unmarshal(data, &index)
	if errIndex == nil && len(index.Sitemaps) > 0 {
		out := &Sitemap{}
		for _, sm := range index.Sitemaps {
			if sm.Loc != "" {
				out.Children = append(out.Children, sm.Loc)
			}
		}
		return out, nil
	}

	var urlSet XMLURLSet
	if errURLSet := xml.Unmarshal(data, &urlSet); errURLSet != nil {
		return nil, fmt.Errorf("%w: not a sitemap index (%v) or URL set (%v)", utils.ErrParsing, errIndex, errURLSet)
	}
	out := &Sitemap{}
	for _, u := range urlSet.URLs {
		if u.Loc != "" {
			out.URLs = append(out.URLs, u.Loc)
		}
	}
	return out, nil
}
