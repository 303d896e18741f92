package olx

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"olx-scraper/models"
)

const siteBase = "https://www.olx.pt"

var (
	detailLinkRe = regexp.MustCompile(`/d/anuncio/.*ID[A-Za-z0-9]+\.html`)
	altLinkRe    = regexp.MustCompile(`/anuncio/.*ID[A-Za-z0-9]+`)
	looseIDRe    = regexp.MustCompile(`ID[A-Za-z0-9]+`)
	listingIDRe  = regexp.MustCompile(`ID([A-Za-z0-9]+)`)
)

// A strategy extracts listing candidates from one parsed search page.
// Strategies are pure: the same document always yields the same candidates.
type strategy struct {
	name    string
	applies func(resolvedURL string) bool
	extract func(doc *goquery.Document) []*models.ListingRef
}

// strategies in priority order. Layout drifts per device and template, so
// the most specific link shape goes first and the loose fallback never gets
// a chance to produce false positives when a stricter pattern matches.
var strategies = []strategy{
	{"d_anuncio", anyPage, extractDetailAnchors},
	{"regular_anuncio", anyPage, extractAltAnchors},
	{"mobile_card", isMobilePage, extractMobileCards},
	{"fallback", anyPage, extractLooseAnchors},
}

func anyPage(string) bool { return true }

// isMobilePage reports whether the fetch was redirected to the mobile site.
func isMobilePage(resolvedURL string) bool {
	return strings.Contains(resolvedURL, "m.olx.pt")
}

// extractDetailAnchors matches the canonical /d/anuncio/...IDxxxx.html link
// shape.
func extractDetailAnchors(doc *goquery.Document) []*models.ListingRef {
	var refs []*models.ListingRef
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !detailLinkRe.MatchString(href) {
			return
		}
		if ref := refFromElement(a, href); ref != nil {
			refs = append(refs, ref)
		}
	})
	return refs
}

// extractAltAnchors matches the older /anuncio/...IDxxxx link shape.
func extractAltAnchors(doc *goquery.Document) []*models.ListingRef {
	var refs []*models.ListingRef
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !altLinkRe.MatchString(href) {
			return
		}
		if ref := refFromElement(a, href); ref != nil {
			refs = append(refs, ref)
		}
	})
	return refs
}

// extractMobileCards walks the obfuscated-class card containers of the
// mobile site and pulls the listing link out of each.
func extractMobileCards(doc *goquery.Document) []*models.ListingRef {
	var refs []*models.ListingRef
	doc.Find(`a[class*="css-"], div[class*="css-"]`).Each(func(_ int, card *goquery.Selection) {
		el := card
		if !card.Is("a") {
			el = card.Find("a[href]").First()
			if el.Length() == 0 {
				return
			}
		}
		href, _ := el.Attr("href")
		if !strings.Contains(href, "/anuncio") {
			return
		}
		if ref := refFromElement(card, href); ref != nil {
			refs = append(refs, ref)
		}
	})
	return refs
}

// extractLooseAnchors is the last resort: any anchor carrying an ID token on
// a car-related path.
func extractLooseAnchors(doc *goquery.Document) []*models.ListingRef {
	var refs []*models.ListingRef
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !looseIDRe.MatchString(href) {
			return
		}
		if !strings.Contains(href, "/anuncio") && !strings.Contains(href, "/carros/") {
			return
		}
		if ref := refFromElement(a, href); ref != nil {
			refs = append(refs, ref)
		}
	})
	return refs
}

// refFromElement builds a ListingRef from a matched element, or nil when the
// href does not survive validation. Page number and strategy tag are filled
// in by the caller.
func refFromElement(el *goquery.Selection, href string) *models.ListingRef {
	listingURL := absolutize(href)
	if listingURL == "" || !isListingURL(listingURL) {
		return nil
	}

	ref := &models.ListingRef{
		URL:     listingURL,
		Preview: extractPreview(el),
	}
	if m := listingIDRe.FindStringSubmatch(listingURL); m != nil {
		ref.SourceID = m[1]
	}
	return ref
}

// absolutize resolves a listing href against the desktop site host.
// Anything that is neither absolute nor host-relative is unusable.
func absolutize(href string) string {
	switch {
	case strings.HasPrefix(href, "/"):
		return siteBase + href
	case strings.HasPrefix(href, "http"):
		return href
	default:
		return ""
	}
}

// isListingURL validates a candidate URL: it must point at an ad and carry
// an ID token.
func isListingURL(url string) bool {
	return strings.Contains(url, "anuncio") && looseIDRe.MatchString(url)
}
