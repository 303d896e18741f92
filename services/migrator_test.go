package services

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"olx-scraper/config"
)

type fakeObjectStore struct {
	data  map[string][]byte
	types map[string]string
	err   error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{data: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeObjectStore) Put(key string, data []byte, contentType string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.data[key] = data
	s.types[key] = contentType
	return "https://cdn.test/cars-images/" + key, nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testImageServer(t *testing.T, pic []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken.jpg":
			http.NotFound(w, r)
		case "/junk.bin":
			w.Write([]byte("definitely not an image"))
		default:
			w.Header().Set("Content-Type", "image/png")
			w.Write(pic)
		}
	}))
}

func testMigratorConfig() *config.Config {
	return &config.Config{
		MaxImagesPerCar: 2,
		ImageMaxSize:    100,
		ImageQuality:    80,
		UserAgent:       "test-agent",
	}
}

func TestMigrateCapsGalleryAndKeysByPosition(t *testing.T) {
	srv := testImageServer(t, pngBytes(t, 40, 30))
	defer srv.Close()

	store := newFakeObjectStore()
	m := NewMigrator(store, testMigratorConfig(), newTestLogger())

	res := m.Migrate(42, []string{srv.URL + "/a.png", srv.URL + "/b.png", srv.URL + "/c.png"})

	if len(res.Migrated) != 2 {
		t.Fatalf("migrated %d images; want 2 (capped)", len(res.Migrated))
	}
	if len(res.Failures) != 0 {
		t.Errorf("failures = %v; want none", res.Failures)
	}
	for i, key := range []string{"cars/42/image_1.jpg", "cars/42/image_2.jpg"} {
		if _, ok := store.data[key]; !ok {
			t.Errorf("object %q was not stored", key)
		}
		if store.types[key] != "image/jpeg" {
			t.Errorf("content type of %q = %q; want image/jpeg", key, store.types[key])
		}
		if res.Migrated[i].NewURL != "https://cdn.test/cars-images/"+key {
			t.Errorf("new URL = %q; want store URL for %q", res.Migrated[i].NewURL, key)
		}
	}
	if res.Migrated[0].Original != srv.URL+"/a.png" {
		t.Errorf("original = %q; want source order preserved", res.Migrated[0].Original)
	}
}

func TestMigrateDownscalesToFit(t *testing.T) {
	srv := testImageServer(t, pngBytes(t, 400, 200))
	defer srv.Close()

	store := newFakeObjectStore()
	m := NewMigrator(store, testMigratorConfig(), newTestLogger())

	res := m.Migrate(7, []string{srv.URL + "/big.png"})
	if len(res.Migrated) != 1 {
		t.Fatalf("migrated %d images; want 1", len(res.Migrated))
	}

	stored := store.data["cars/7/image_1.jpg"]
	img, format, err := image.Decode(bytes.NewReader(stored))
	if err != nil {
		t.Fatalf("stored object is not an image: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("stored format = %q; want jpeg", format)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("stored size = %dx%d; want 100x50", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestMigratePassesThroughUndecodable(t *testing.T) {
	srv := testImageServer(t, nil)
	defer srv.Close()

	store := newFakeObjectStore()
	m := NewMigrator(store, testMigratorConfig(), newTestLogger())

	res := m.Migrate(9, []string{srv.URL + "/junk.bin"})
	if len(res.Migrated) != 1 {
		t.Fatalf("migrated %d images; want 1 (raw passthrough)", len(res.Migrated))
	}
	stored := store.data["cars/9/image_1.jpg"]
	if !bytes.Equal(stored, []byte("definitely not an image")) {
		t.Errorf("stored bytes were altered: %q", stored)
	}
	if store.types["cars/9/image_1.jpg"] == "image/jpeg" {
		t.Error("content type claims jpeg for a non-image payload")
	}
}

func TestMigrateRecordsFailuresIndependently(t *testing.T) {
	srv := testImageServer(t, pngBytes(t, 40, 30))
	defer srv.Close()

	store := newFakeObjectStore()
	m := NewMigrator(store, testMigratorConfig(), newTestLogger())

	res := m.Migrate(5, []string{srv.URL + "/broken.jpg", srv.URL + "/ok.png"})

	if len(res.Failures) != 1 || res.Failures[0] != srv.URL+"/broken.jpg" {
		t.Errorf("failures = %v; want the broken URL only", res.Failures)
	}
	if len(res.Migrated) != 1 {
		t.Fatalf("migrated %d images; want 1", len(res.Migrated))
	}
	if _, ok := store.data["cars/5/image_2.jpg"]; !ok {
		t.Error("surviving image lost its gallery position")
	}
}
