package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"olx-scraper/config"
	"olx-scraper/scraper/olx"
	"olx-scraper/services"
	"olx-scraper/storage"
	"olx-scraper/utils"
)

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	logger.Info("=== OLX Car Scraping System starting ===")
	logger.Info("Config — start URLs: %d | pages: %d | items/run: %d | fetch mode: %s",
		len(cfg.StartURLs), cfg.MaxPages, cfg.MaxItems, cfg.FetchMode)

	db, err := storage.NewPostgres(cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Error("Make sure Docker is running: docker compose up -d")
		os.Exit(1)
	}
	defer db.Close()

	var objects storage.ObjectStore
	if cfg.S3Bucket == "" {
		logger.Warn("No S3 bucket configured — image migration disabled")
	} else {
		store, err := storage.NewMinioStore(cfg.S3Endpoint, cfg.S3AccessKey,
			cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Region, cfg.S3UseSSL)
		if err != nil {
			logger.Error("Failed to reach object store: %v", err)
			os.Exit(1)
		}
		objects = store
	}

	results, err := storage.NewRunWriter(cfg.ResultsDir)
	if err != nil {
		logger.Error("Failed to prepare results directory: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transformer := services.NewTransformer(logger)
	linker := services.NewLinker(db, db, logger)
	var migrator *services.Migrator
	if objects != nil {
		migrator = services.NewMigrator(objects, cfg, logger)
	}

	var mu sync.Mutex
	succeeded := 0

	runOne := func(startURL string) {
		fetcher, err := olx.NewFetcher(cfg, logger)
		if err != nil {
			logger.Error("Failed to start fetcher for %s: %v", startURL, err)
			return
		}
		defer fetcher.Close()

		scraper := olx.New(cfg, logger, fetcher)
		workflow := services.NewWorkflow(cfg, logger, scraper, transformer, linker, migrator, db)

		res := workflow.Run(ctx, startURL, cfg.MaxPages, cfg.MaxItems)
		if path, err := results.Write(res); err != nil {
			logger.Error("Failed to write run results: %v", err)
		} else {
			logger.Info("Run results saved to %s", path)
		}

		mu.Lock()
		if res.Success {
			succeeded++
		}
		mu.Unlock()
	}

	if len(cfg.StartURLs) > 1 && cfg.RunConcurrency > 1 {
		pool := utils.NewWorkerPool(cfg.RunConcurrency, 1000)
		for _, startURL := range cfg.StartURLs {
			url := startURL
			pool.Submit(func() { runOne(url) })
		}
		pool.Wait()
	} else {
		for _, startURL := range cfg.StartURLs {
			runOne(startURL)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if succeeded == 0 {
		logger.Error("No run persisted a single car. Exiting.")
		os.Exit(1)
	}

	cars, err := db.FetchAll()
	if err != nil {
		logger.Error("Failed to fetch cars for the report: %v", err)
		return
	}

	reporter := services.NewReporter(logger)
	reporter.Print(reporter.Generate(cars))
}
