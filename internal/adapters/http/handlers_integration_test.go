//go:build integration
// +build integration

package http_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samirrijal/tripsim/internal/adapters/http"
	"github.com/samirrijal/tripsim/internal/adapters/postgres"
	"github.com/samirrijal/tripsim/internal/core/domain"
	"github.com/samirrijal/tripsim/internal/core/usecases"
	"github.com/samirrijal/tripsim/internal/pkg/config"
)

// setupTestDB connects to the test database and applies the schema.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("tripsim-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	schema, err := os.ReadFile(findMigration(t, "001_geocode_cache.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, `DELETE FROM geocode_cache WHERE query LIKE 'it-%'`); err != nil {
		t.Fatalf("clean geocode cache: %v", err)
	}
	return db
}

func findMigration(t *testing.T, name string) string {
	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "migrations", name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		dir = filepath.Dir(dir)
	}
	t.Fatalf("could not find migrations/%s", name)
	return ""
}

type countingGeocoder struct {
	calls int
}

func (g *countingGeocoder) Search(ctx context.Context, query string, limit int) ([]domain.Place, error) {
	g.calls++
	return []domain.Place{{Lat: 43.318, Lon: -1.981, DisplayName: "Donostia, Gipuzkoa, Spain", ShortName: "Donostia", Type: "city"}}, nil
}

// TestSearch_Integration_PersistsGeocodeCache checks search answers survive in Postgres.
func TestSearch_Integration_PersistsGeocodeCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	repo := postgres.NewGeocodeRepo(db)
	geo := &countingGeocoder{}

	app := setupApp(t, func(d *http.Dependencies) {
		d.DB = db
		d.Search = usecases.NewSearchService(geo, repo, 5, time.Hour)
	})

	for i := 0; i < 2; i++ {
		resp := do(t, app, "GET", "/v1/search?q=it-donostia", nil)
		expectStatus(t, resp, 200)
		places := decode[[]domain.Place](t, resp)
		if len(places) != 1 || places[0].ShortName != "Donostia" {
			t.Fatalf("unexpected places %+v", places)
		}
	}
	if geo.calls != 1 {
		t.Errorf("expected second search served from postgres, geocoder called %d times", geo.calls)
	}

	entry, err := repo.Get(context.Background(), "it-donostia")
	if err != nil || entry == nil {
		t.Fatalf("expected stored entry, got %v, %v", entry, err)
	}

	n, err := repo.Purge(context.Background(), time.Now().Add(time.Minute))
	if err != nil || n < 1 {
		t.Errorf("expected purge to remove the entry, got %d, %v", n, err)
	}

	resp := do(t, app, "GET", "/v1/ready", nil)
	expectStatus(t, resp, 200)
}

// TestGeocodeRepo_Integration_Miss checks a missing key is not an error.
func TestGeocodeRepo_Integration_Miss(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	repo := postgres.NewGeocodeRepo(setupTestDB(t))
	entry, err := repo.Get(context.Background(), "it-nowhere")
	if err != nil || entry != nil {
		t.Fatalf("expected nil, nil for a miss, got %v, %v", entry, err)
	}
}
