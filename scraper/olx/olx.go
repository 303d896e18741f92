package olx

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"olx-scraper/config"
	"olx-scraper/models"
	"olx-scraper/utils"
)

// Scraper discovers car listings on OLX search pages and scrapes their
// detail pages. One Scraper serves one run; it owns its fetcher and its
// seen-URL set.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	fetcher Fetcher
	seen    *utils.URLSet
	retry   *utils.RetryConfig
	delay   utils.DelayFunc
}

// New creates a ready-to-use OLX Scraper on top of the given fetcher.
func New(cfg *config.Config, logger *utils.Logger, fetcher Fetcher) *Scraper {
	return &Scraper{
		cfg:     cfg,
		logger:  logger,
		fetcher: fetcher,
		seen:    utils.NewURLSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		delay: utils.RandomDelay(
			time.Duration(cfg.DelayMinMs)*time.Millisecond,
			time.Duration(cfg.DelayMaxMs)*time.Millisecond,
		),
	}
}

// SetDelay replaces the politeness delay policy.
func (s *Scraper) SetDelay(d utils.DelayFunc) { s.delay = d }

// Discover walks up to maxPages search pages and returns the unique listing
// references found, in first-seen order. A page yielding no candidates at
// all is taken as the end of the results and stops the walk early.
func (s *Scraper) Discover(ctx context.Context, startURL string, maxPages int) ([]*models.ListingRef, error) {
	s.logger.Info("[olx] Starting discovery — target: %d pages from %s", maxPages, startURL)

	var refs []*models.ListingRef

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return refs, err
		}

		pageURL := buildPageURL(startURL, page)
		s.logger.Info("[olx] Scraping page %d — URL: %s", page, pageURL)

		var fetched *Page
		err := s.retry.Do(ctx, fmt.Sprintf("discover-page-%d", page), func() error {
			p, err := s.fetcher.Fetch(ctx, pageURL)
			if err != nil {
				return err
			}
			fetched = p
			return nil
		})
		if err != nil {
			if page == 1 {
				return nil, err
			}
			s.logger.Error("[olx] Page %d failed: %v", page, err)
			break
		}

		pageRefs := s.extractListings(fetched, page)
		if len(pageRefs) == 0 {
			s.logger.Warn("[olx] Page %d returned 0 listings — stopping", page)
			break
		}

		added := 0
		for _, ref := range pageRefs {
			if !s.seen.Add(ref.URL) {
				s.logger.Debug("[olx] Skipping duplicate: %s", ref.URL)
				continue
			}
			refs = append(refs, ref)
			added++
		}

		s.logger.Info("[olx] Page %d done — %d new listings, %d total", page, added, len(refs))

		if page < maxPages {
			time.Sleep(s.delay())
		}
	}

	s.logger.Info("[olx] Discovery complete — total unique listings: %d", len(refs))
	return refs, nil
}

// extractListings applies the fallback strategies in priority order and
// stops at the first one yielding candidates for this page.
func (s *Scraper) extractListings(page *Page, pageNum int) []*models.ListingRef {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		s.logger.Error("[olx] Page %d parse failed: %v", pageNum, err)
		return nil
	}

	for _, st := range strategies {
		if !st.applies(page.ResolvedURL) {
			continue
		}
		refs := st.extract(doc)
		if len(refs) == 0 {
			continue
		}

		s.logger.Debug("[olx] Page %d — strategy %s found %d candidates", pageNum, st.name, len(refs))
		for _, ref := range refs {
			ref.Page = pageNum
			ref.Strategy = st.name
		}
		return refs
	}

	return nil
}

// buildPageURL returns the start URL verbatim for page 1 and sets the page
// query parameter for later pages.
func buildPageURL(startURL string, page int) string {
	if page <= 1 {
		return startURL
	}

	u, err := url.Parse(startURL)
	if err != nil {
		return startURL
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
