package olx

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"olx-scraper/config"
	"olx-scraper/models"
	"olx-scraper/utils"
)

// Page is one fetched document plus the URL the navigation actually landed
// on. OLX sometimes redirects to its mobile site, and the resolved URL is
// what tells the extraction layer which markup to expect.
type Page struct {
	HTML        string
	ResolvedURL string
}

// Fetcher retrieves rendered pages.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Close() error
}

// NewFetcher builds the fetcher selected by FETCH_MODE.
func NewFetcher(cfg *config.Config, logger *utils.Logger) (Fetcher, error) {
	switch cfg.FetchMode {
	case "http":
		return NewHTTPFetcher(cfg), nil
	default:
		return NewBrowserFetcher(cfg, logger)
	}
}

// BrowserFetcher drives a headless Chrome instance. Each Fetch opens a fresh
// tab so a crashed page never poisons later fetches.
type BrowserFetcher struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	logger      *utils.Logger
}

// NewBrowserFetcher starts the shared Chrome allocator.
func NewBrowserFetcher(cfg *config.Config, logger *utils.Logger) (*BrowserFetcher, error) {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	logger.Info("[fetch] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise
	silentCtx, cancelSilent := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return &BrowserFetcher{
		allocCtx: silentCtx,
		cancelAlloc: func() {
			cancelSilent()
			cancelAlloc()
		},
		timeout: time.Duration(cfg.FetchTimeoutSec) * time.Second,
		logger:  logger,
	}, nil
}

// Fetch navigates to the URL in a new tab and returns the rendered document.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(f.allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTimeout()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancelTab()
		case <-done:
		}
	}()

	var html, resolved string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(2*time.Second),
		chromedp.Location(&resolved),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, &models.TransportError{URL: pageURL, Err: err}
	}
	if resolved == "" {
		resolved = pageURL
	}

	return &Page{HTML: html, ResolvedURL: resolved}, nil
}

// Close tears down the Chrome allocator and every tab it owns.
func (f *BrowserFetcher) Close() error {
	f.cancelAlloc()
	return nil
}

// HTTPFetcher retrieves pages with a plain HTTP client. Cheaper than the
// browser but only sees server-rendered markup.
type HTTPFetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
}

// NewHTTPFetcher creates a rate-limited HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	client := resty.New().
		SetTimeout(time.Duration(cfg.FetchTimeoutSec)*time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept-Language", "pt-PT,pt;q=0.9,en;q=0.8").
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &HTTPFetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}
}

// Fetch downloads the URL, following redirects. The resolved URL comes from
// the final request in the redirect chain.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, &models.TransportError{URL: pageURL, Err: err}
	}
	if resp.StatusCode() >= 400 {
		return nil, &models.TransportError{URL: pageURL, Err: fmt.Errorf("status %d", resp.StatusCode())}
	}

	resolved := pageURL
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		resolved = raw.Request.URL.String()
	}

	return &Page{HTML: string(resp.Body()), ResolvedURL: resolved}, nil
}

func (f *HTTPFetcher) Close() error { return nil }

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
