package main

import (
	"context"
	"log"

	"github.com/oggyb/tindecisos/internal/config"
	"github.com/oggyb/tindecisos/internal/db"
	"github.com/oggyb/tindecisos/internal/docstore"
	"github.com/oggyb/tindecisos/internal/lists"
	"github.com/oggyb/tindecisos/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	if err := db.SeedTestData(database); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	// Write the default public lists unless someone already did. Watchers
	// are notified through redis when it is reachable.
	feed := docstore.NewRedisFeed(cfg)
	defer feed.Close()
	store := docstore.NewSQLStore(database, feed, logger.L())

	ctx := context.Background()
	snap, err := store.Get(ctx, lists.PublicPath)
	if err != nil {
		log.Fatalf("failed to read public lists: %v", err)
	}
	if !snap.Exists {
		if err := store.Set(ctx, lists.PublicPath, lists.Defaults().Fields()); err != nil {
			log.Fatalf("failed to seed public lists: %v", err)
		}
		log.Println("Seeded default public lists.")
	}

	log.Println("Seeding completed.")
}
