package services

import (
	"fmt"
	"sort"
	"strings"

	"olx-scraper/models"
	"olx-scraper/utils"
)

// Reporter computes aggregate statistics over the stored car records.
type Reporter struct {
	logger *utils.Logger
}

func NewReporter(logger *utils.Logger) *Reporter {
	return &Reporter{logger: logger}
}

func (r *Reporter) Generate(cars []*models.Car) *models.Report {
	report := &models.Report{
		CarsByBrand: make(map[string]int),
		CarsByCity:  make(map[string]int),
	}

	if len(cars) == 0 {
		return report
	}

	report.TotalCars = len(cars)

	var priced []*models.Car
	for _, c := range cars {
		if c.Price != nil && *c.Price > 0 {
			priced = append(priced, c)
		}
		if c.Brand != "" {
			report.CarsByBrand[c.Brand]++
		}
		if c.City != "" {
			report.CarsByCity[c.City]++
		}
	}
	report.WithPrice = len(priced)

	// Price stats (only cars with a positive parsed price)
	if len(priced) > 0 {
		report.MinPrice = *priced[0].Price
		report.MaxPrice = *priced[0].Price
		report.MostExpensive = priced[0]
		var total float64
		for _, c := range priced {
			total += *c.Price
			if *c.Price < report.MinPrice {
				report.MinPrice = *c.Price
			}
			if *c.Price > report.MaxPrice {
				report.MaxPrice = *c.Price
				report.MostExpensive = c
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	return report
}

func (r *Reporter) Print(rep *models.Report) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Printf("\n\033[1;35m%s\033[0m\n", sep)
	fmt.Printf("\033[1;35m  📊 OLX CAR MARKET REPORT\033[0m\n")
	fmt.Printf("\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Printf("\033[1;33m  Overview\033[0m\n")
	fmt.Printf("  %s\n", thin)
	fmt.Printf("  Total cars stored : \033[1m%d\033[0m\n", rep.TotalCars)
	fmt.Printf("  Cars with price   : \033[1m%d\033[0m\n", rep.WithPrice)
	fmt.Println()

	// Price Stats
	fmt.Printf("\033[1;33m  Price Statistics\033[0m\n")
	fmt.Printf("  %s\n", thin)
	if rep.WithPrice > 0 {
		fmt.Printf("  Average price : \033[1;32m%.2f €\033[0m\n", rep.AveragePrice)
		fmt.Printf("  Minimum price : \033[1;32m%.2f €\033[0m\n", rep.MinPrice)
		fmt.Printf("  Maximum price : \033[1;32m%.2f €\033[0m\n", rep.MaxPrice)
	} else {
		fmt.Printf("  No price data available\n")
	}
	fmt.Println()

	// Most Expensive
	if rep.MostExpensive != nil && rep.MostExpensive.Price != nil {
		fmt.Printf("\033[1;33m  Most Expensive Car\033[0m\n")
		fmt.Printf("  %s\n", thin)
		fmt.Printf("  %s\n", truncate(rep.MostExpensive.Title, 50))
		if rep.MostExpensive.City != "" {
			fmt.Printf("  City  : %s\n", rep.MostExpensive.City)
		}
		fmt.Printf("  Price : \033[1;31m%.2f €\033[0m\n", *rep.MostExpensive.Price)
		fmt.Println()
	}

	printCountSection("Cars by Brand", rep.CarsByBrand, thin)
	printCountSection("Cars by City", rep.CarsByCity, thin)

	fmt.Printf("\n\033[1;35m%s\033[0m\n\n", sep)
}

// printCountSection renders a count map as a descending bar chart, capped at
// the ten largest buckets.
func printCountSection(title string, counts map[string]int, thin string) {
	fmt.Printf("\033[1;33m  %s\033[0m\n", title)
	fmt.Printf("  %s\n", thin)
	if len(counts) == 0 {
		fmt.Printf("  No data\n")
		fmt.Println()
		return
	}

	type bucket struct {
		key   string
		count int
	}
	var buckets []bucket
	for key, cnt := range counts {
		buckets = append(buckets, bucket{key, cnt})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].count != buckets[j].count {
			return buckets[i].count > buckets[j].count
		}
		return buckets[i].key < buckets[j].key
	})
	if len(buckets) > 10 {
		buckets = buckets[:10]
	}
	for _, b := range buckets {
		bar := strings.Repeat("█", b.count)
		fmt.Printf("  %-30s %s (%d)\n", truncate(b.key, 28), bar, b.count)
	}
	fmt.Println()
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
