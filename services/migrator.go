package services

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"olx-scraper/config"
	"olx-scraper/models"
	"olx-scraper/storage"
	"olx-scraper/utils"
)

// maxDownloadBytes caps a single image download.
const maxDownloadBytes = 20 << 20

// MigratedImage maps a source image URL to its rehosted object-store URL.
type MigratedImage struct {
	Original string
	NewURL   string
}

// MigrationResult summarizes one car's gallery migration. Failures list the
// source URLs that could not be rehosted.
type MigrationResult struct {
	Migrated []MigratedImage
	Failures []string
}

// Migrator downloads listing images, recompresses them as JPEG and rehosts
// them in the object store under a stable per-car key layout.
type Migrator struct {
	store     storage.ObjectStore
	client    *resty.Client
	logger    *utils.Logger
	maxImages int
	maxDim    int
	quality   int
}

func NewMigrator(store storage.ObjectStore, cfg *config.Config, logger *utils.Logger) *Migrator {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(3))

	return &Migrator{
		store:     store,
		client:    client,
		logger:    logger,
		maxImages: cfg.MaxImagesPerCar,
		maxDim:    cfg.ImageMaxSize,
		quality:   cfg.ImageQuality,
	}
}

// Migrate rehosts up to maxImages of the given URLs as
// cars/{carID}/image_{n}.jpg, numbered from 1 in gallery order. Every image
// is handled independently; one bad download never blocks the rest.
func (m *Migrator) Migrate(carID int64, urls []string) *MigrationResult {
	res := &MigrationResult{}
	if len(urls) > m.maxImages {
		urls = urls[:m.maxImages]
	}

	for i, src := range urls {
		key := fmt.Sprintf("cars/%d/image_%d.jpg", carID, i+1)
		newURL, err := m.migrateOne(src, key)
		if err != nil {
			m.logger.Warn("[migrator] %v", err)
			res.Failures = append(res.Failures, src)
			continue
		}
		res.Migrated = append(res.Migrated, MigratedImage{Original: src, NewURL: newURL})
	}

	m.logger.Info("[migrator] Car %d — migrated %d/%d images", carID, len(res.Migrated), len(urls))
	return res
}

func (m *Migrator) migrateOne(src, key string) (string, error) {
	raw, err := m.download(src)
	if err != nil {
		return "", &models.AssetError{URL: src, Err: err}
	}

	data, contentType := m.optimize(raw)
	newURL, err := m.store.Put(key, data, contentType)
	if err != nil {
		return "", &models.AssetError{URL: src, Err: err}
	}
	return newURL, nil
}

func (m *Migrator) download(src string) ([]byte, error) {
	resp, err := m.client.R().Get(src)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if len(body) > maxDownloadBytes {
		return nil, fmt.Errorf("image too large: %d bytes", len(body))
	}
	return body, nil
}

// optimize re-encodes the image as JPEG, downscaling so the longest side
// fits maxDim. Payloads that cannot be decoded or re-encoded are passed
// through untouched with their sniffed content type.
func (m *Migrator) optimize(raw []byte) ([]byte, string) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return raw, http.DetectContentType(raw)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest > m.maxDim {
		scale := float64(m.maxDim) / float64(longest)
		tw := int(float64(w)*scale + 0.5)
		th := int(float64(h)*scale + 0.5)
		if tw < 1 {
			tw = 1
		}
		if th < 1 {
			th = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, tw, th))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: m.quality}); err != nil {
		return raw, http.DetectContentType(raw)
	}
	return buf.Bytes(), "image/jpeg"
}
