package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"olx-scraper/config"
	"olx-scraper/models"
	"olx-scraper/storage"
	"olx-scraper/utils"
)

// maxItemsCeiling is the hard upper bound on detail pages per run, whatever
// the configuration asks for.
const maxItemsCeiling = 100

// Discoverer is the scraping surface the workflow drives.
type Discoverer interface {
	Discover(ctx context.Context, startURL string, maxPages int) ([]*models.ListingRef, error)
	ScrapeDetail(ctx context.Context, listingURL string) models.CarData
}

// Workflow runs the full pipeline for one start URL: discover listing refs,
// scrape each detail page, normalize, persist, link the seller and migrate
// images. Items are processed sequentially and isolated from each other; a
// failed item is recorded in the run stats and skipped, never fatal for the
// run. A single goroutine drives each Workflow.
type Workflow struct {
	scraper     Discoverer
	transformer *Transformer
	linker      *Linker
	migrator    *Migrator
	cars        storage.RecordStore
	logger      *utils.Logger
	delay       utils.DelayFunc
	state       models.RunState
}

// NewWorkflow wires the pipeline. migrator may be nil when no object store
// is configured; image migration is then skipped.
func NewWorkflow(cfg *config.Config, logger *utils.Logger, scraper Discoverer, transformer *Transformer,
	linker *Linker, migrator *Migrator, cars storage.RecordStore) *Workflow {
	return &Workflow{
		scraper:     scraper,
		transformer: transformer,
		linker:      linker,
		migrator:    migrator,
		cars:        cars,
		logger:      logger,
		delay: utils.RandomDelay(
			time.Duration(cfg.DelayMinMs)*time.Millisecond,
			time.Duration(cfg.DelayMaxMs)*time.Millisecond,
		),
		state: models.StateIdle,
	}
}

// SetDelay overrides the pause between detail scrapes. Tests use this to
// avoid sleeping.
func (w *Workflow) SetDelay(d utils.DelayFunc) { w.delay = d }

// State reports the lifecycle phase of the most recent Run call.
func (w *Workflow) State() models.RunState { return w.state }

// Run executes one full scrape of startURL. maxItems is clamped to the hard
// ceiling; zero or negative means ceiling. The result is always non-nil and
// finalized, including when discovery itself fails.
func (w *Workflow) Run(ctx context.Context, startURL string, maxPages, maxItems int) *models.RunResult {
	stats := &models.RunStats{
		RunID:     uuid.NewString(),
		StartURL:  startURL,
		StartedAt: time.Now().UTC(),
	}
	if maxItems <= 0 || maxItems > maxItemsCeiling {
		maxItems = maxItemsCeiling
	}

	w.state = models.StateDiscovering
	w.logger.Info("[workflow] Run %s — discovering from %s (max %d pages, %d items)",
		stats.RunID, startURL, maxPages, maxItems)

	refs, err := w.scraper.Discover(ctx, startURL, maxPages)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("discovery: %v", err))
		w.logger.Error("[workflow] Run %s — discovery failed: %v", stats.RunID, err)
		return w.finalize(stats)
	}
	stats.Discovered = len(refs)
	if len(refs) > maxItems {
		w.logger.Info("[workflow] Run %s — capping %d listings to %d", stats.RunID, len(refs), maxItems)
		refs = refs[:maxItems]
	}

	w.state = models.StateProcessing
	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("run aborted: %v", err))
			w.logger.Warn("[workflow] Run %s aborted after %d items: %v", stats.RunID, i, err)
			break
		}
		if i > 0 {
			time.Sleep(w.delay())
		}
		w.logger.Info("[workflow] Item %d/%d — %s", i+1, len(refs), ref.URL)
		w.processItem(ctx, ref, stats)
	}

	return w.finalize(stats)
}

// processItem takes one listing all the way from detail scrape to storage.
// Every failure path appends to stats.Errors and returns; soft steps (seller
// link, image migration) never undo the persisted car.
func (w *Workflow) processItem(ctx context.Context, ref *models.ListingRef, stats *models.RunStats) {
	data := w.scraper.ScrapeDetail(ctx, ref.URL)
	if msg := data.Err(); msg != "" {
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %s", ref.URL, msg))
		return
	}

	car, err := w.transformer.Transform(data, ref.Preview)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", ref.URL, err))
		return
	}

	id, existed, err := w.cars.Save(car)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", ref.URL, err))
		return
	}
	if existed {
		stats.Skipped++
		w.logger.Debug("[workflow] Already stored %s (car %d)", car.URL, id)
		return
	}
	stats.Persisted++

	if car.PhoneNumber != "" {
		res, err := w.linker.Link(id, car.PhoneNumber, car.SellerName, car.City)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			w.logger.Warn("[workflow] Seller link failed for car %d: %v", id, err)
		} else if res.Created {
			stats.UsersCreated++
		} else {
			stats.UsersLinked++
		}
	}

	if w.migrator != nil && len(car.Images.OriginalURLs) > 0 {
		w.migrateImages(id, car, stats)
	}
}

func (w *Workflow) migrateImages(id int64, car *models.Car, stats *models.RunStats) {
	res := w.migrator.Migrate(id, car.Images.OriginalURLs)
	for _, src := range res.Failures {
		stats.Errors = append(stats.Errors, fmt.Sprintf("migrate image %s", src))
	}
	if len(res.Migrated) == 0 {
		return
	}

	migrated := make([]string, 0, len(res.Migrated))
	for _, img := range res.Migrated {
		migrated = append(migrated, img.NewURL)
	}
	now := time.Now().UTC()
	images := models.ImageSet{
		OriginalURLs: car.Images.OriginalURLs,
		MigratedURLs: migrated,
		ProcessedAt:  &now,
	}
	if err := w.cars.UpdateImages(id, images); err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("update images for car %d: %v", id, err))
		return
	}
	stats.ImagesMigrated += len(migrated)
}

func (w *Workflow) finalize(stats *models.RunStats) *models.RunResult {
	w.state = models.StateFinalized
	stats.CompletedAt = time.Now().UTC()
	stats.DurationSeconds = stats.CompletedAt.Sub(stats.StartedAt).Seconds()

	res := &models.RunResult{Success: stats.Persisted >= 1, Stats: stats}
	w.logger.Info("[workflow] Run %s finished — discovered %d, persisted %d, skipped %d, errors %d (%.1fs)",
		stats.RunID, stats.Discovered, stats.Persisted, stats.Skipped, len(stats.Errors), stats.DurationSeconds)
	return res
}
