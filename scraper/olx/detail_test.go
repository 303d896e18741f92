package olx

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"olx-scraper/models"
)

const detailPageHTML = `<!DOCTYPE html>
<html><head>
<meta property="og:image" content="https://apollo.olxcdn.com/v1/files/og.jpg">
<script type="application/ld+json">{"@type":"Product","datePosted":"2024-03-08T11:22:33Z"}</script>
</head><body>
<h1 data-cy="ad_title">BMW 320d Pack M Nacional</h1>
<div data-testid="ad-price-container"><h3>14.000 €</h3><p>Negociável</p></div>
<p data-testid="location-date">Lisboa, Benfica - 12 de agosto de 2025</p>
<div data-testid="ad-parameters-container">
  <p>Anunciante: Particular</p>
  <p>Marca: BMW</p>
  <p>Modelo: Série 3</p>
  <p>Ano: 2015</p>
  <p>Quilómetros: 152 000 km</p>
  <p>Combustível: Diesel</p>
  <p>Caixa: Manual</p>
  <p>Potência: 190 cv</p>
  <p>Cilindrada: 1 995 cm3</p>
  <p>Portas: 5</p>
  <p>Cor: Preto</p>
  <p>Condição: Usado</p>
  <p>Segmento: Sedan</p>
</div>
<div data-cy="ad_description"><div>Descrição</div><div>Carro em excelente estado, único dono, revisões feitas na marca.</div></div>
<div data-testid="image-galery">
  <img src="https://apollo.olxcdn.com/v1/files/a.jpg">
  <img data-src="//apollo.olxcdn.com/v1/files/b.jpg">
  <img src="https://apollo.olxcdn.com/v1/files/a.jpg">
</div>
<ul data-testid="ad-features"><li>Ar condicionado</li><li>GPS</li></ul>
<div data-cy="seller_card"><h4>João Silva</h4><a href="tel:+351929816076">Ligar</a></div>
</body></html>`

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw        string
		want       float64
		wantNone   bool
		negotiable bool
	}{
		{"14.000 €", 14000, false, false},
		{"14 000,50 €", 14000.50, false, false},
		{"Negociável 9.500€", 9500, false, true},
		{"9.500€ Negociavel", 9500, false, true},
		{"1.234.567 €", 1234567, false, false},
		{"123€", 123, false, false},
		{"899,99 €", 899.99, false, false},
		{"Sob consulta", 0, true, false},
		{"Negociável", 0, true, true},
		{"", 0, true, false},
	}

	for _, tt := range tests {
		got, negotiable := parsePrice(tt.raw)
		if tt.wantNone {
			if got != nil {
				t.Errorf("parsePrice(%q) = %v; want no value", tt.raw, *got)
			}
		} else if got == nil || *got != tt.want {
			t.Errorf("parsePrice(%q) = %v; want %.2f", tt.raw, got, tt.want)
		}
		if negotiable != tt.negotiable {
			t.Errorf("parsePrice(%q) negotiable = %v; want %v", tt.raw, negotiable, tt.negotiable)
		}
	}
}

func TestScrapeDetailFullPage(t *testing.T) {
	url := "https://www.olx.pt/d/anuncio/bmw-320d-pack-m-IDa1b2c.html"
	f := &stubFetcher{pages: map[string]*Page{
		url: {HTML: detailPageHTML, ResolvedURL: url},
	}}
	s := newTestScraper(f)

	data := s.ScrapeDetail(context.Background(), url)
	if data.Err() != "" {
		t.Fatalf("ScrapeDetail reported error: %s", data.Err())
	}

	strTests := []struct {
		key  string
		want string
	}{
		{"url", url},
		{"listing_id", "a1b2c"},
		{"title", "BMW 320d Pack M Nacional"},
		{"brand", "BMW"},
		{"model", "Série 3"},
		{"year", "2015"},
		{"mileage", "152 000"},
		{"mileage_raw", "152 000 km"},
		{"fuel_type", "Diesel"},
		{"transmission", "Manual"},
		{"power", "190"},
		{"power_raw", "190 cv"},
		{"engine_size", "1 995"},
		{"doors", "5"},
		{"color", "Preto"},
		{"condition", "Usado"},
		{"body_type", "Sedan"},
		{"seller_type", "Particular"},
		{"seller_name", "João Silva"},
		{"phone_number", "+351929816076"},
		{"location", "Lisboa, Benfica"},
		{"publication_date_raw", "12 de agosto de 2025"},
		{"publication_date", "2024-03-08T11:22:33Z"},
		{"main_image", "https://apollo.olxcdn.com/v1/files/a.jpg"},
	}
	for _, tt := range strTests {
		got, _ := data[tt.key].(string)
		if got != tt.want {
			t.Errorf("data[%q] = %q; want %q", tt.key, got, tt.want)
		}
	}

	if price, _ := data["price"].(float64); price != 14000 {
		t.Errorf("price = %v; want 14000", data["price"])
	}
	if negotiable, _ := data["price_negotiable"].(bool); !negotiable {
		t.Errorf("price_negotiable = %v; want true", data["price_negotiable"])
	}
	if available, _ := data["phone_available"].(bool); !available {
		t.Errorf("phone_available = %v; want true", data["phone_available"])
	}

	images, _ := data["images"].([]string)
	if len(images) != 2 {
		t.Fatalf("images = %v; want 2 deduplicated urls", images)
	}
	if images[1] != "https://apollo.olxcdn.com/v1/files/b.jpg" {
		t.Errorf("images[1] = %q; want protocol-relative src resolved to https", images[1])
	}

	features, _ := data["features"].([]string)
	if len(features) != 2 || features[0] != "Ar condicionado" {
		t.Errorf("features = %v; want [Ar condicionado GPS]", features)
	}

	desc, _ := data["description"].(string)
	if !strings.HasPrefix(desc, "Carro em excelente estado") {
		t.Errorf("description = %q; want the Descrição heading stripped", desc)
	}
}

func TestScrapeDetailTransportFailure(t *testing.T) {
	url := "https://www.olx.pt/d/anuncio/fiat-punto-IDzz9xx.html"
	f := &stubFetcher{errs: map[string]error{
		url: &models.TransportError{URL: url, Err: errors.New("timeout")},
	}}
	s := newTestScraper(f)

	data := s.ScrapeDetail(context.Background(), url)
	if data.Err() == "" {
		t.Fatal("ScrapeDetail on dead page returned no error field")
	}
	if data["url"] != url {
		t.Errorf("data[url] = %v; want %q", data["url"], url)
	}
	if _, ok := data["scraped_at"]; !ok {
		t.Error("failure bag is missing scraped_at")
	}
	if len(data) != 3 {
		t.Errorf("failure bag has %d keys; want exactly url, error, scraped_at", len(data))
	}
}

func TestExtractPreviewFromCard(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(searchPageOneHTML))
	if err != nil {
		t.Fatalf("parsing fixture: %v", err)
	}

	p := extractPreview(doc.Find(`a[href*="IDa1b2c"]`))
	if p.Title != "BMW 320d Pack M" {
		t.Errorf("Title = %q; want the anchor title attribute", p.Title)
	}
	if p.PriceRaw != "14.000 €" {
		t.Errorf("PriceRaw = %q; want %q", p.PriceRaw, "14.000 €")
	}
	if p.Price == nil || *p.Price != 14000 {
		t.Errorf("Price = %v; want 14000", p.Price)
	}
	if p.Year == nil || *p.Year != 2015 {
		t.Errorf("Year = %v; want 2015", p.Year)
	}
	if p.ImageURL != "https://apollo.olxcdn.com/v1/files/1.jpg" {
		t.Errorf("ImageURL = %q; want protocol-relative src resolved", p.ImageURL)
	}

	// Second card has no title attribute: the image alt text wins.
	p = extractPreview(doc.Find(`a[href*="IDd3e4f"]`))
	if p.Title != "Renault Clio 1.0 TCe 90cv" {
		t.Errorf("Title = %q; want the img alt fallback", p.Title)
	}
	if p.Price == nil || *p.Price != 9500 {
		t.Errorf("Price = %v; want 9500", p.Price)
	}
}
