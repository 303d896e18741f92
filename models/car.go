package models

import "time"

// ListingRef points at a single car advert found on a discovery page,
// before its detail page has been visited.
type ListingRef struct {
	URL      string
	SourceID string
	Page     int
	Strategy string
	Preview  *Preview
}

// Preview holds the best-effort fields visible on a discovery card.
type Preview struct {
	Title    string
	PriceRaw string
	Price    *float64
	Year     *int
	ImageURL string
}

// CarData is the raw field bag produced by detail scraping. Keys and value
// types are unreliable; a failed fetch leaves only url, error and scraped_at.
type CarData map[string]any

// Err returns the scrape error recorded in the bag, or "" if the scrape
// succeeded.
func (d CarData) Err() string {
	if s, ok := d["error"].(string); ok {
		return s
	}
	return ""
}

// ImageSet tracks a car's gallery across migration. MigratedURLs stays empty
// until the migrator has run; ProcessedAt marks when it did.
type ImageSet struct {
	OriginalURLs []string   `json:"original_urls"`
	MigratedURLs []string   `json:"migrated_urls"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
}

// Car is the normalized record ready for PostgreSQL storage. Optional fields
// are pointers (or empty strings/slices) so that absence survives into
// Fields().
type Car struct {
	ID        int64
	URL       string
	Website   string
	ListingID string
	ScrapedAt time.Time

	Title string
	Brand string
	Model string
	Year  *int

	Price           *float64
	PriceRaw        string
	PriceNegotiable *bool

	Mileage      *int
	MileageRaw   string
	FuelType     string
	Transmission string
	Power        *int
	PowerRaw     string
	EngineSize   *int
	Doors        *int
	Seats        *int
	Color        string
	BodyType     string
	Condition    string

	Location string
	City     string
	District string

	Description string
	Features    []string

	Images    ImageSet
	MainImage string

	PublicationDate *time.Time
	SellerName      string
	SellerType      string
	PhoneNumber     string
	PhoneAvailable  *bool

	FirstRegistration string
	Inspection        string
	Origin            string
	Category          string

	UserID *int64
}

// Fields returns the flat column map handed to the record store. Absent
// optionals are left out entirely; the store must never receive an explicit
// NULL for an optional column.
func (c *Car) Fields() map[string]any {
	f := map[string]any{
		"url":        c.URL,
		"website":    c.Website,
		"title":      c.Title,
		"scraped_at": c.ScrapedAt,
	}

	putStr := func(key, val string) {
		if val != "" {
			f[key] = val
		}
	}
	putInt := func(key string, val *int) {
		if val != nil {
			f[key] = *val
		}
	}
	putBool := func(key string, val *bool) {
		if val != nil {
			f[key] = *val
		}
	}

	putStr("listing_id", c.ListingID)
	putStr("brand", c.Brand)
	putStr("model", c.Model)
	putInt("year", c.Year)

	if c.Price != nil {
		f["price"] = *c.Price
	}
	putStr("price_raw", c.PriceRaw)
	putBool("price_negotiable", c.PriceNegotiable)

	putInt("mileage", c.Mileage)
	putStr("mileage_raw", c.MileageRaw)
	putStr("fuel_type", c.FuelType)
	putStr("transmission", c.Transmission)
	putInt("power", c.Power)
	putStr("power_raw", c.PowerRaw)
	putInt("engine_size", c.EngineSize)
	putInt("doors", c.Doors)
	putInt("seats", c.Seats)
	putStr("color", c.Color)
	putStr("body_type", c.BodyType)
	putStr("condition", c.Condition)

	putStr("location", c.Location)
	putStr("city", c.City)
	putStr("district", c.District)
	putStr("description", c.Description)

	if len(c.Features) > 0 {
		f["features"] = c.Features
	}
	if len(c.Images.OriginalURLs) > 0 || len(c.Images.MigratedURLs) > 0 {
		f["images"] = c.Images
	}
	putStr("main_image", c.MainImage)

	if c.PublicationDate != nil {
		f["publication_date"] = *c.PublicationDate
	}
	putStr("seller_name", c.SellerName)
	putStr("seller_type", c.SellerType)
	putStr("phone_number", c.PhoneNumber)
	putBool("phone_available", c.PhoneAvailable)

	putStr("first_registration", c.FirstRegistration)
	putStr("inspection", c.Inspection)
	putStr("origin", c.Origin)
	putStr("category", c.Category)

	return f
}

// User is the seller entity keyed by its normalized phone number.
type User struct {
	ID        int64
	Phone     string
	Name      string
	City      string
	FirstSeen time.Time
	LastSeen  time.Time
	TotalCars int
}

// Report holds the computed analytics over the stored dataset.
type Report struct {
	TotalCars     int
	WithPrice     int
	AveragePrice  float64
	MinPrice      float64
	MaxPrice      float64
	MostExpensive *Car
	CarsByBrand   map[string]int
	CarsByCity    map[string]int
}
