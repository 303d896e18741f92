package olx

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"olx-scraper/models"
)

// previewPricePatterns cover the price shapes seen on search cards: symbol
// first, symbol last with dot/space thousands, and the compact mobile form.
var previewPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`€\s*\d{1,3}(?:[.\s]\d{3})*(?:,\d+)?`),
	regexp.MustCompile(`\d{1,3}(?:[.\s]\d{3})*(?:,\d+)?\s*€`),
	regexp.MustCompile(`\d+(?:,\d+)?€`),
}

var yearRe = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)

// extractPreview pulls best-effort summary fields from a discovered card
// element and its surrounding markup. It never fails the caller; whatever
// cannot be parsed simply stays absent.
func extractPreview(el *goquery.Selection) *models.Preview {
	container := el.Parent()
	if container.Length() == 0 {
		container = el
	}

	p := &models.Preview{}

	p.Title = strings.TrimSpace(el.AttrOr("title", ""))
	if p.Title == "" {
		alt := strings.TrimSpace(container.Find("img[alt]").First().AttrOr("alt", ""))
		if len(alt) > 10 {
			p.Title = alt
		}
	}
	if p.Title == "" {
		text := strings.TrimSpace(el.Text())
		if len(text) > 5 && len(text) < 200 {
			p.Title = text
		}
	}

	if img := container.Find("img").First(); img.Length() > 0 {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		if src == "" {
			src = img.AttrOr("data-original", "")
		}
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		p.ImageURL = src
	}

	text := container.Text()

	if raw := findPreviewPrice(text); raw != "" {
		p.PriceRaw = raw
		if val, _ := parsePrice(raw); val != nil {
			p.Price = val
		}
	}

	if m := yearRe.FindString(text); m != "" {
		if year, err := strconv.Atoi(m); err == nil {
			p.Year = &year
		}
	}

	return p
}

// findPreviewPrice returns the first price-looking token in the card text.
func findPreviewPrice(text string) string {
	for _, re := range previewPricePatterns {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}
