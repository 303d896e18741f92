package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"olx-scraper/models"
	"olx-scraper/utils"
)

const defaultWebsite = "olx.pt"

// knownBrands is scanned in order against titles; the first hit wins and is
// returned with this exact casing.
var knownBrands = []string{
	"BMW", "Mercedes", "Audi", "Volkswagen", "VW", "Ford", "Opel",
	"Renault", "Peugeot", "Citroën", "Honda", "Toyota", "Nissan",
	"Mazda", "Hyundai", "Kia", "Volvo", "Skoda", "SEAT", "Fiat",
}

// timestampLayouts are tried in order when parsing scraped datetime text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Transformer reconciles the raw detail bag of a listing with its discovery
// preview into a canonical Car record. Detail values win over preview values,
// which win over derived fallbacks.
type Transformer struct {
	logger *utils.Logger
}

func NewTransformer(logger *utils.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Transform builds a Car from whatever the scrape produced. The only hard
// requirement is a non-empty url; every other field is optional and simply
// stays absent when the raw value is missing or unusable. A panic anywhere
// in the field coercion is converted into a ValidationError so one bad
// payload can never take down a run.
func (t *Transformer) Transform(data models.CarData, preview *models.Preview) (car *models.Car, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("[transform] Recovered: %v", r)
			car = nil
			err = &models.ValidationError{Field: "record", Reason: fmt.Sprintf("unexpected: %v", r)}
		}
	}()

	url, ok := cleanString(data["url"])
	if !ok {
		return nil, &models.ValidationError{Field: "url", Reason: "missing or empty"}
	}
	if preview == nil {
		preview = &models.Preview{}
	}

	car = &models.Car{URL: url, Website: defaultWebsite}

	rawTitle, _ := cleanString(data["title"])
	previewTitle, _ := cleanString(preview.Title)
	baseTitle := rawTitle
	if baseTitle == "" {
		baseTitle = previewTitle
	}

	if brand, ok := cleanString(data["brand"]); ok {
		car.Brand = brand
	} else {
		car.Brand = brandFromTitle(baseTitle)
	}
	car.Model, _ = cleanString(data["model"])

	if year, ok := toInt(data["year"]); ok {
		car.Year = &year
	} else if preview.Year != nil {
		year := *preview.Year
		car.Year = &year
	}

	car.FuelType, _ = cleanString(data["fuel_type"])

	if baseTitle != "" {
		car.Title = baseTitle
	} else {
		car.Title = synthesizeTitle(car.Brand, car.Model, car.Year, car.FuelType)
		t.logger.Debug("[transform] No title for %s — synthesized %q", url, car.Title)
	}

	if raw, ok := cleanString(data["price_raw"]); ok {
		car.PriceRaw = raw
	} else if preview.PriceRaw != "" {
		car.PriceRaw = preview.PriceRaw
	}
	if price, ok := toFloat(data["price"]); ok {
		car.Price = &price
	} else if preview.Price != nil {
		price := *preview.Price
		car.Price = &price
	}
	if negotiable, ok := toBool(data["price_negotiable"]); ok {
		car.PriceNegotiable = &negotiable
	}

	if mileage, ok := toInt(data["mileage"]); ok {
		car.Mileage = &mileage
	}
	car.MileageRaw, _ = cleanString(data["mileage_raw"])
	car.Transmission, _ = cleanString(data["transmission"])
	if power, ok := toInt(data["power"]); ok {
		car.Power = &power
	}
	car.PowerRaw, _ = cleanString(data["power_raw"])
	if engine, ok := toInt(data["engine_size"]); ok {
		car.EngineSize = &engine
	}
	if doors, ok := toInt(data["doors"]); ok {
		car.Doors = &doors
	}
	if seats, ok := toInt(data["seats"]); ok {
		car.Seats = &seats
	}
	car.Color, _ = cleanString(data["color"])
	car.BodyType, _ = cleanString(data["body_type"])
	car.Condition, _ = cleanString(data["condition"])

	if location, ok := cleanString(data["location"]); ok {
		car.Location = location
		parts := strings.SplitN(location, ",", 2)
		car.City = strings.TrimSpace(parts[0])
		if len(parts) == 2 {
			car.District = strings.TrimSpace(parts[1])
		}
	}

	car.Description, _ = cleanString(data["description"])
	car.Features = toStringSlice(data["features"])

	originals := toStringSlice(data["images"])
	if len(originals) == 0 && preview.ImageURL != "" {
		originals = []string{preview.ImageURL}
	}
	car.Images = models.ImageSet{OriginalURLs: originals}

	if main, ok := cleanString(data["main_image"]); ok {
		car.MainImage = main
	} else if len(originals) > 0 {
		car.MainImage = originals[0]
	}

	if pub, ok := cleanString(data["publication_date"]); ok {
		ts := parseTimestamp(pub)
		car.PublicationDate = &ts
	}

	car.SellerName, _ = cleanString(data["seller_name"])
	car.SellerType, _ = cleanString(data["seller_type"])
	car.PhoneNumber, _ = cleanString(data["phone_number"])
	if available, ok := toBool(data["phone_available"]); ok {
		car.PhoneAvailable = &available
	}
	car.ListingID, _ = cleanString(data["listing_id"])
	car.FirstRegistration, _ = cleanString(data["first_registration"])
	car.Inspection, _ = cleanString(data["inspection"])
	car.Origin, _ = cleanString(data["origin"])
	car.Category, _ = cleanString(data["category"])

	if at, ok := cleanString(data["scraped_at"]); ok {
		car.ScrapedAt = parseTimestamp(at)
	} else {
		car.ScrapedAt = time.Now().UTC()
	}

	return car, nil
}

// brandFromTitle scans the fixed brand list first; failing that, the title's
// leading word is taken when it is alphabetic and long enough to plausibly
// be a make.
func brandFromTitle(title string) string {
	if title == "" {
		return ""
	}
	upper := strings.ToUpper(title)
	for _, brand := range knownBrands {
		if strings.Contains(upper, strings.ToUpper(brand)) {
			return brand
		}
	}
	fields := strings.Fields(title)
	if len(fields) > 0 && len(fields[0]) > 2 && isAlpha(fields[0]) {
		return titleCase(fields[0])
	}
	return ""
}

// synthesizeTitle assembles "brand model year fuel" from whatever survived
// coercion, with a fixed placeholder when nothing did.
func synthesizeTitle(brand, model string, year *int, fuel string) string {
	parts := make([]string, 0, 4)
	if brand != "" {
		parts = append(parts, brand)
	}
	if model != "" {
		parts = append(parts, model)
	}
	if year != nil {
		parts = append(parts, strconv.Itoa(*year))
	}
	if fuel != "" {
		parts = append(parts, fuel)
	}
	if len(parts) == 0 {
		return "Carro Usado"
	}
	return strings.Join(parts, " ")
}

// cleanString coerces a raw bag value to text, collapsing runs of whitespace.
// Empty or absent values report ok=false so callers can leave fields unset.
func cleanString(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		s = val
	default:
		s = fmt.Sprint(val)
	}
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	if len(fields) == 0 {
		return "", false
	}
	return strings.Join(fields, " "), true
}

// toInt accepts native numbers and digit strings, tolerating thousands
// separators. "152 000" and "1.995" both coerce; "190cv" does not.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		cleaned := strings.NewReplacer(".", "", ",", "", " ", "").Replace(strings.TrimSpace(n))
		if cleaned == "" {
			return 0, false
		}
		i, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

// toFloat accepts native numbers and decimal strings written either way
// round ("1,5" or "1.5").
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(n), ",", ".")
		cleaned = strings.ReplaceAll(cleaned, " ", "")
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// toBool recognizes localized truthy and falsy tokens alongside native
// bools and numbers.
func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case nil:
		return false, false
	case bool:
		return b, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "sim", "verdadeiro":
			return true, true
		case "false", "0", "no", "não", "nao", "falso":
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}

// toStringSlice flattens whatever shape the images or features arrived in.
// Strings are tried as JSON arrays first, then as comma-separated lists.
func toStringSlice(v any) []string {
	switch s := v.(type) {
	case nil:
		return nil
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := cleanString(item); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return nil
		}
		if strings.HasPrefix(trimmed, "[") {
			var decoded []string
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return decoded
			}
		}
		var out []string
		for _, part := range strings.Split(trimmed, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// parseTimestamp tries the known layouts; anything unparsable becomes the
// current time so a record never carries a zero timestamp.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC()
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return s != ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
