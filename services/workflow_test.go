package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"olx-scraper/config"
	"olx-scraper/models"
	"olx-scraper/utils"
)

type stubDiscoverer struct {
	refs        []*models.ListingRef
	discoverErr error
	details     map[string]models.CarData
	detailCalls int
}

func (s *stubDiscoverer) Discover(ctx context.Context, startURL string, maxPages int) ([]*models.ListingRef, error) {
	if s.discoverErr != nil {
		return nil, s.discoverErr
	}
	return s.refs, nil
}

func (s *stubDiscoverer) ScrapeDetail(ctx context.Context, listingURL string) models.CarData {
	s.detailCalls++
	if d, ok := s.details[listingURL]; ok {
		return d
	}
	return models.CarData{
		"url":        listingURL,
		"title":      "Carro de Teste",
		"scraped_at": time.Now().UTC().Format(time.RFC3339),
	}
}

func makeRefs(n int) []*models.ListingRef {
	refs := make([]*models.ListingRef, 0, n)
	for i := 0; i < n; i++ {
		refs = append(refs, &models.ListingRef{
			URL:      fmt.Sprintf("https://www.olx.pt/d/anuncio/carro-%d-ID%04d.html", i, i),
			SourceID: fmt.Sprintf("%04d", i),
			Page:     i/10 + 1,
			Strategy: "d_anuncio",
		})
	}
	return refs
}

func newTestWorkflow(d Discoverer, cars *fakeRecordStore, users *fakeUserStore, m *Migrator) *Workflow {
	logger := newTestLogger()
	w := NewWorkflow(&config.Config{DelayMinMs: 0, DelayMaxMs: 1}, logger, d,
		NewTransformer(logger), NewLinker(users, cars, logger), m, cars)
	w.SetDelay(utils.NoDelay)
	return w
}

func TestWorkflowCapsItemsAtMax(t *testing.T) {
	stub := &stubDiscoverer{refs: makeRefs(15)}
	cars := newFakeRecordStore()
	w := newTestWorkflow(stub, cars, newFakeUserStore(), nil)

	res := w.Run(context.Background(), "https://www.olx.pt/carros/", 2, 10)

	if !res.Success {
		t.Error("expected a successful run")
	}
	if res.Stats.Discovered != 15 {
		t.Errorf("discovered = %d; want 15", res.Stats.Discovered)
	}
	if res.Stats.Persisted != 10 {
		t.Errorf("persisted = %d; want 10", res.Stats.Persisted)
	}
	if stub.detailCalls != 10 {
		t.Errorf("detail scrapes = %d; want 10", stub.detailCalls)
	}
	if w.State() != models.StateFinalized {
		t.Errorf("state = %q; want finalized", w.State())
	}
	if res.Stats.RunID == "" {
		t.Error("run id is empty")
	}
	if res.Stats.CompletedAt.Before(res.Stats.StartedAt) {
		t.Error("completed_at precedes started_at")
	}
}

func TestWorkflowIsolatesFailedItems(t *testing.T) {
	refs := makeRefs(10)
	stub := &stubDiscoverer{
		refs: refs,
		details: map[string]models.CarData{
			refs[2].URL: {
				"url":        refs[2].URL,
				"error":      "fetch timed out",
				"scraped_at": time.Now().UTC().Format(time.RFC3339),
			},
			refs[4].URL: {"title": "bag sem url"},
		},
	}
	cars := newFakeRecordStore()
	w := newTestWorkflow(stub, cars, newFakeUserStore(), nil)

	res := w.Run(context.Background(), "https://www.olx.pt/carros/", 1, 0)

	if res.Stats.Persisted != 8 {
		t.Errorf("persisted = %d; want 8", res.Stats.Persisted)
	}
	if len(res.Stats.Errors) != 2 {
		t.Errorf("errors = %v; want 2 entries", res.Stats.Errors)
	}
	if !res.Success {
		t.Error("run with surviving items should still succeed")
	}
}

func TestWorkflowSkipsExistingListings(t *testing.T) {
	refs := makeRefs(5)
	cars := newFakeRecordStore()
	cars.nextID = 100
	cars.byURL[refs[0].URL] = 100

	w := newTestWorkflow(&stubDiscoverer{refs: refs}, cars, newFakeUserStore(), nil)
	res := w.Run(context.Background(), "https://www.olx.pt/carros/", 1, 0)

	if res.Stats.Skipped != 1 {
		t.Errorf("skipped = %d; want 1", res.Stats.Skipped)
	}
	if res.Stats.Persisted != 4 {
		t.Errorf("persisted = %d; want 4", res.Stats.Persisted)
	}
	if len(cars.saved) != 4 {
		t.Errorf("stored cars = %d; want 4", len(cars.saved))
	}
}

func TestWorkflowDiscoveryFailure(t *testing.T) {
	stub := &stubDiscoverer{discoverErr: errors.New("first page unreachable")}
	w := newTestWorkflow(stub, newFakeRecordStore(), newFakeUserStore(), nil)

	res := w.Run(context.Background(), "https://www.olx.pt/carros/", 3, 0)

	if res.Success {
		t.Error("run without a single persisted car must not succeed")
	}
	if len(res.Stats.Errors) != 1 {
		t.Errorf("errors = %v; want the discovery failure", res.Stats.Errors)
	}
	if w.State() != models.StateFinalized {
		t.Errorf("state = %q; want finalized even after failure", w.State())
	}
}

func TestWorkflowHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubDiscoverer{refs: makeRefs(5)}
	w := newTestWorkflow(stub, newFakeRecordStore(), newFakeUserStore(), nil)
	res := w.Run(ctx, "https://www.olx.pt/carros/", 1, 0)

	if stub.detailCalls != 0 {
		t.Errorf("detail scrapes after cancellation = %d; want 0", stub.detailCalls)
	}
	if res.Success {
		t.Error("cancelled run must not succeed")
	}
	if len(res.Stats.Errors) == 0 {
		t.Error("cancellation was not recorded in the run errors")
	}
}

func TestWorkflowLinksSellers(t *testing.T) {
	refs := makeRefs(2)
	details := map[string]models.CarData{}
	for _, ref := range refs {
		details[ref.URL] = models.CarData{
			"url":          ref.URL,
			"title":        "BMW 320d",
			"phone_number": "929 816 076",
			"seller_name":  "João Silva",
			"location":     "Lisboa, Benfica",
			"scraped_at":   time.Now().UTC().Format(time.RFC3339),
		}
	}
	cars := newFakeRecordStore()
	users := newFakeUserStore()
	w := newTestWorkflow(&stubDiscoverer{refs: refs, details: details}, cars, users, nil)

	res := w.Run(context.Background(), "https://www.olx.pt/carros/", 1, 0)

	if res.Stats.UsersCreated != 1 {
		t.Errorf("users created = %d; want 1", res.Stats.UsersCreated)
	}
	if res.Stats.UsersLinked != 1 {
		t.Errorf("users linked = %d; want 1 (second car, same seller)", res.Stats.UsersLinked)
	}
	user := users.byPhone["+351929816076"]
	if user == nil {
		t.Fatal("seller was not created under the normalized phone")
	}
	if users.counts[user.ID] != 2 {
		t.Errorf("seller car count = %d; want 2", users.counts[user.ID])
	}
}

func TestWorkflowMigratesImages(t *testing.T) {
	srv := testImageServer(t, pngBytes(t, 40, 30))
	defer srv.Close()

	refs := makeRefs(1)
	details := map[string]models.CarData{
		refs[0].URL: {
			"url":        refs[0].URL,
			"title":      "Toyota Yaris",
			"images":     []string{srv.URL + "/a.png", srv.URL + "/broken.jpg"},
			"scraped_at": time.Now().UTC().Format(time.RFC3339),
		},
	}

	cars := newFakeRecordStore()
	objects := newFakeObjectStore()
	m := NewMigrator(objects, testMigratorConfig(), newTestLogger())
	w := newTestWorkflow(&stubDiscoverer{refs: refs, details: details}, cars, newFakeUserStore(), m)

	res := w.Run(context.Background(), "https://www.olx.pt/carros/", 1, 0)

	if res.Stats.ImagesMigrated != 1 {
		t.Errorf("images migrated = %d; want 1", res.Stats.ImagesMigrated)
	}
	carID := cars.byURL[refs[0].URL]
	images, ok := cars.images[carID]
	if !ok {
		t.Fatal("image set was never written back to the store")
	}
	if len(images.OriginalURLs) != 2 {
		t.Errorf("original urls = %v; want both sources preserved", images.OriginalURLs)
	}
	if len(images.MigratedURLs) != 1 {
		t.Errorf("migrated urls = %v; want 1", images.MigratedURLs)
	}
	if images.ProcessedAt == nil {
		t.Error("processed_at was not stamped")
	}
	if len(res.Stats.Errors) != 1 {
		t.Errorf("errors = %v; want the one broken image", res.Stats.Errors)
	}
}
