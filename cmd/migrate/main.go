package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/tripsim/internal/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("tripsim-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	switch os.Args[1] {
	case "up":
		runMigrations(ctx, pool, "up")
	case "down":
		runMigrations(ctx, pool, "down")
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

// runMigrations applies migrations/*.<direction>.sql, in reverse order for down.
func runMigrations(ctx context.Context, pool *pgxpool.Pool, direction string) {
	files, err := filepath.Glob(filepath.Join("migrations", "*."+direction+".sql"))
	if err != nil {
		log.Fatalf("glob migrations: %v", err)
	}
	if len(files) == 0 {
		log.Fatalf("no %s migrations found in ./migrations", direction)
	}
	slices.Sort(files)
	if direction == "down" {
		slices.Reverse(files)
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}

		if _, err := pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}

		fmt.Printf("OK  %s\n", f)
	}

	log.Printf("all %s migrations applied", direction)
}
