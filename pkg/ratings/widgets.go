package ratings

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/ratings-crawler/pkg/detect"
	"github.com/Sriram-PR/ratings-crawler/pkg/models"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

const widgetEvidenceLimit = 300

var (
	outOfFive   = regexp.MustCompile(`(?i)([0-9]+(\.[0-9]+)?)\s*out of\s*5`)
	slashFive   = regexp.MustCompile(`([0-9]+(\.[0-9]+)?)\s*\/\s*5`)
	ratedPrefix = regexp.MustCompile(`(?i)Rated\s*([0-9]+(\.[0-9]+)?)`)
	reviewCount = regexp.MustCompile(`(?i)([0-9,]+)\s*reviews?`)
)

// WidgetFamily describes a third-party review widget: how to detect it and where its summary text lives
type WidgetFamily struct {
	detect.Signature
	TextSelector  string
	RatingPattern *regexp.Regexp
}

// WidgetFamilies in detection order
var WidgetFamilies = []WidgetFamily{
	{
		Signature:     detect.Signature{Name: "judgeme", Selectors: []string{`.jdgm-prev-badge, .jdgm-widget, [class*="jdgm-"]`}},
		TextSelector:  `.jdgm-prev-badge__text, .jdgm-rev-widg__summary`,
		RatingPattern: outOfFive,
	},
	{
		Signature:     detect.Signature{Name: "yotpo", Selectors: []string{`[class*="yotpo"], script[src*="yotpo"]`}},
		TextSelector:  `[class*="yotpo"], .yotpo-review, .yotpo-stars`,
		RatingPattern: slashFive,
	},
	{
		Signature:     detect.Signature{Name: "okendo", Selectors: []string{`script[src*="okendo"], [class*="oke-"], [data-oke-reviews]`}},
		TextSelector:  `[class*="oke-"], [data-oke-reviews]`,
		RatingPattern: slashFive,
	},
	{
		Signature:     detect.Signature{Name: "stamped", Selectors: []string{`script[src*="stamped"], [class*="stamped-"], .stamped-product-reviews-badge`}},
		TextSelector:  `[class*="stamped-"], .stamped-product-reviews-badge`,
		RatingPattern: slashFive,
	},
}

// FromWidgets returns the first detected widget family whose summary text yields a rating or a count
func FromWidgets(doc *goquery.Document, _ string) *Extraction {
	for i := range WidgetFamilies {
		family := &WidgetFamilies[i]
		if !family.Matches(doc, "") {
			continue
		}
		if ex := family.read(doc); ex != nil {
			return ex
		}
	}
	return nil
}

func (w *WidgetFamily) read(doc *goquery.Document) *Extraction {
	text := doc.Find(w.TextSelector).Text()

	var rating *float64
	if m := w.RatingPattern.FindStringSubmatch(text); m != nil {
		rating = ClampRating(m[1])
	} else if m := ratedPrefix.FindStringSubmatch(text); m != nil {
		rating = ClampRating(m[1])
	}
	var count *int
	if m := reviewCount.FindStringSubmatch(text); m != nil {
		count = ParseCount(m[1])
	}
	if rating == nil && count == nil {
		return nil
	}

	return &Extraction{
		Rating:      rating,
		ReviewCount: count,
		Widget:      w.Name,
		Source:      models.SourceWidget,
		Evidence:    utils.Truncate(strings.TrimSpace(text), widgetEvidenceLimit),
	}
}
