package olx

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"olx-scraper/models"
)

// Selector candidates ordered most to least specific; the first one
// producing non-empty text wins.
var titleSelectors = []string{
	`h1[data-cy="ad_title"]`,
	`h1[data-testid="listing-title"]`,
	`h1.css-r9zjja-Text`,
	`h1`,
	`[data-testid="listing-title"]`,
	`h1[class*="title"]`,
}

var priceSelectors = []string{
	`[data-testid="ad-price-container"]`,
	`h3[data-testid="ad-price"]`,
	`[data-testid*="price"]`,
	`h3[data-testid*="price"]`,
	`span[data-testid*="price"]`,
	`h3.css-okktvh-Text`,
	`[class*="price"]`,
	`h3[class*="price"]`,
	`.price`,
}

var descriptionSelectors = []string{
	`[data-cy="ad_description"]`,
	`[data-testid="ad_description"]`,
	`div[class*="description"]`,
}

var sellerSelectors = []string{
	`[data-testid="user-profile-user-name"]`,
	`[data-cy="seller_card"] h4`,
	`h4[class*="user"]`,
}

// attributeKeys maps the Portuguese labels of the ad parameter table to
// canonical record fields. Accented and plain spellings both occur.
var attributeKeys = map[string]string{
	"marca":               "brand",
	"modelo":              "model",
	"ano":                 "year",
	"quilómetros":         "mileage",
	"quilometros":         "mileage",
	"combustível":         "fuel_type",
	"combustivel":         "fuel_type",
	"caixa":               "transmission",
	"potência":            "power",
	"potencia":            "power",
	"cilindrada":          "engine_size",
	"portas":              "doors",
	"lugares":             "seats",
	"cor":                 "color",
	"condição":            "condition",
	"condicao":            "condition",
	"segmento":            "body_type",
	"registo":             "first_registration",
	"inspeção válida até": "inspection",
	"inspecao valida ate": "inspection",
	"origem":              "origin",
	"tipo de caixa":       "transmission",
	"anunciante":          "seller_type",
}

var (
	negotiableRe = regexp.MustCompile(`(?i)negoci[áa]vel`)
	priceDotRe   = regexp.MustCompile(`\d{1,3}(?:\.\d{3})+(?:,\d+)?`)
	priceSpaceRe = regexp.MustCompile(`\d{1,3}(?:\s\d{3})+(?:,\d+)?`)
	pricePlainRe = regexp.MustCompile(`\d+(?:,\d+)?`)

	numberRe  = regexp.MustCompile(`\d[\d.,\s]*\d|\d`)
	pubDateRe = regexp.MustCompile(`"datePosted"\s*:\s*"([^"]+)"`)
)

// ScrapeDetail fetches one listing's detail page and extracts every field it
// can find into a raw bag. It never fails the caller: on fetch or parse
// failure the returned bag carries only url, error and scraped_at, which the
// pipeline counts as that item's failure.
func (s *Scraper) ScrapeDetail(ctx context.Context, listingURL string) models.CarData {
	var page *Page
	err := s.retry.Do(ctx, "detail-page", func() error {
		p, err := s.fetcher.Fetch(ctx, listingURL)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		s.logger.Error("[olx] Detail fetch failed for %s: %v", listingURL, err)
		return detailFailure(listingURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		perr := &models.ParseError{What: "detail page", Err: err}
		s.logger.Error("[olx] Detail parse failed for %s: %v", listingURL, perr)
		return detailFailure(listingURL, perr)
	}

	data := models.CarData{
		"url":        listingURL,
		"scraped_at": time.Now().UTC().Format(time.RFC3339),
	}

	if m := listingIDRe.FindStringSubmatch(listingURL); m != nil {
		data["listing_id"] = m[1]
	}

	if title := firstText(doc, titleSelectors); title != "" {
		data["title"] = title
	}

	if raw := findPriceElement(doc); raw != "" {
		data["price_raw"] = raw
		value, negotiable := parsePrice(raw)
		if value != nil {
			data["price"] = *value
		}
		data["price_negotiable"] = negotiable
	}

	s.extractAttributes(doc, data)
	extractDescription(doc, data)
	extractLocationDate(doc, data)
	extractImages(doc, data)
	extractSeller(doc, data)
	extractPhone(doc, data)

	return data
}

func detailFailure(listingURL string, err error) models.CarData {
	return models.CarData{
		"url":        listingURL,
		"error":      err.Error(),
		"scraped_at": time.Now().UTC().Format(time.RFC3339),
	}
}

// firstText returns the first selector's non-empty trimmed text.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// findPriceElement walks the price selector candidates and keeps the first
// text that plausibly is a price.
func findPriceElement(doc *goquery.Document) string {
	for _, sel := range priceSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text == "" {
			continue
		}
		if strings.Contains(text, "€") || strings.ContainsAny(text, "0123456789") {
			return text
		}
	}
	return ""
}

// parsePrice extracts a numeric price and the negotiable flag from raw price
// text. Thousands separators appear as dots or spaces depending on template;
// decimals always use a comma. A nil value with negotiable=true means the ad
// only said "Negociável".
func parsePrice(raw string) (*float64, bool) {
	negotiable := negotiableRe.MatchString(raw)

	text := negotiableRe.ReplaceAllString(raw, "")
	text = strings.ReplaceAll(text, " ", " ")

	for _, re := range []*regexp.Regexp{priceDotRe, priceSpaceRe, pricePlainRe} {
		m := re.FindString(text)
		if m == "" {
			continue
		}
		normalized := strings.NewReplacer(".", "", " ", "", ",", ".").Replace(m)
		value, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			continue
		}
		return &value, negotiable
	}

	return nil, negotiable
}

// extractAttributes reads the ad parameter table ("Marca: BMW",
// "Quilómetros: 152 000 km", ...) into canonical bag keys. Numeric-ish
// attributes keep their original text under a _raw key.
func (s *Scraper) extractAttributes(doc *goquery.Document, data models.CarData) {
	doc.Find(`[data-testid="ad-parameters-container"] p, [data-testid="main"] li, ul li p`).Each(func(_ int, el *goquery.Selection) {
		text := strings.TrimSpace(el.Text())
		parts := strings.SplitN(text, ":", 2)
		if len(parts) != 2 {
			return
		}

		label := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if value == "" {
			return
		}

		key, ok := attributeKeys[label]
		if !ok {
			s.logger.Debug("[olx] Unmapped attribute %q", label)
			return
		}
		if _, exists := data[key]; exists {
			return
		}

		switch key {
		case "mileage", "power":
			data[key+"_raw"] = value
			if num := numberRe.FindString(value); num != "" {
				data[key] = num
			}
		case "year", "engine_size", "doors", "seats":
			if num := numberRe.FindString(value); num != "" {
				data[key] = num
			}
		default:
			data[key] = value
		}
	})
}

func extractDescription(doc *goquery.Document, data models.CarData) {
	for _, sel := range descriptionSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		text = strings.TrimSpace(strings.TrimPrefix(text, "Descrição"))
		if len(text) > 20 {
			data["description"] = text
			return
		}
	}
}

// extractLocationDate splits the "Lisboa, Benfica - 12 de agosto de 2025"
// line into location and raw publication date. The machine-readable date, if
// present, comes from the embedded structured data.
func extractLocationDate(doc *goquery.Document, data models.CarData) {
	text := strings.TrimSpace(doc.Find(`p[data-testid="location-date"], [data-cy="ad-location"]`).First().Text())
	if text != "" {
		parts := strings.SplitN(text, " - ", 2)
		data["location"] = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			data["publication_date_raw"] = strings.TrimSpace(parts[1])
		}
	}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sc *goquery.Selection) bool {
		if m := pubDateRe.FindStringSubmatch(sc.Text()); m != nil {
			data["publication_date"] = m[1]
			return false
		}
		return true
	})
}

func extractImages(doc *goquery.Document, data models.CarData) {
	var urls []string
	seen := make(map[string]struct{})

	doc.Find(`[data-testid="image-galery"] img, [data-testid="ad-photo"] img, div[class*="swiper"] img`).Each(func(_ int, img *goquery.Selection) {
		src := img.AttrOr("src", "")
		if src == "" {
			src = img.AttrOr("data-src", "")
		}
		if strings.HasPrefix(src, "//") {
			src = "https:" + src
		}
		if !strings.HasPrefix(src, "http") {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		urls = append(urls, src)
	})

	if len(urls) == 0 {
		if og := doc.Find(`meta[property="og:image"]`).AttrOr("content", ""); og != "" {
			urls = append(urls, og)
		}
	}

	if len(urls) > 0 {
		data["images"] = urls
		data["main_image"] = urls[0]
	}
}

func extractSeller(doc *goquery.Document, data models.CarData) {
	if name := firstText(doc, sellerSelectors); name != "" {
		data["seller_name"] = name
	}

	if _, ok := data["seller_type"]; !ok {
		if doc.Find(`[data-testid="trader-title"]`).Length() > 0 {
			data["seller_type"] = "Profissional"
		}
	}

	var features []string
	doc.Find(`[data-testid="ad-features"] li, ul[class*="equipment"] li`).Each(func(_ int, li *goquery.Selection) {
		if f := strings.TrimSpace(li.Text()); f != "" {
			features = append(features, f)
		}
	})
	if len(features) > 0 {
		data["features"] = features
	}
}

// extractPhone captures the seller's phone when the page exposes it as a
// tel: link. Most ads require a click-through, so absence is the norm.
func extractPhone(doc *goquery.Document, data models.CarData) {
	href := doc.Find(`a[href^="tel:"]`).First().AttrOr("href", "")
	if href == "" {
		return
	}

	phone := strings.TrimSpace(strings.TrimPrefix(href, "tel:"))
	if phone == "" {
		return
	}

	data["phone_number"] = phone
	data["phone_available"] = true
}
