package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"binday/internal/config"
	"binday/internal/firestore"
	"binday/internal/model"
	"binday/internal/scraper"
	"binday/internal/store"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	projectID := os.Getenv("GCP_PROJECT_ID")
	if projectID == "" {
		log.Fatal("GCP_PROJECT_ID environment variable is required")
	}
	firestoreCollection := config.Getenv("FIRESTORE_COLLECTION", config.DefaultCollection)

	// Snapshot store (GCS or local)
	var s store.Store
	if gcsBucket := os.Getenv("GCS_BUCKET"); gcsBucket != "" {
		gcsStore, err := store.NewGCS(ctx, gcsBucket)
		if err != nil {
			log.Fatalf("Failed to initialize GCS store: %v", err)
		}
		defer gcsStore.Close()
		s = gcsStore
		log.Printf("Store: GCS bucket %s", gcsBucket)
	} else {
		storeDir := config.Getenv("STORE_DIR", config.DefaultStoreDir)
		localStore, err := store.NewLocal(storeDir)
		if err != nil {
			log.Fatalf("Failed to initialize local store: %v", err)
		}
		s = localStore
		log.Printf("Store: local directory %s", storeDir)
	}

	fsClient, err := firestore.New(ctx, projectID, firestoreCollection)
	if err != nil {
		log.Fatalf("Failed to initialize Firestore client: %v", err)
	}
	defer fsClient.Close()
	log.Printf("Firestore: project %s, collection %s", projectID, firestoreCollection)

	council, err := scraper.FromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize scraper: %v", err)
	}

	batchID := time.Now().UTC().Format("20060102-150405")
	log.Printf("Starting ingestion for UPRN %s with batch ID: %s", cfg.UPRN, batchID)

	if err := ingest(ctx, council, s, fsClient, batchID); err != nil {
		log.Printf("ERROR: %v", err)
		os.Exit(1)
	}
	fmt.Println("Ingestion completed successfully")
}

type collectionWriter interface {
	ReplaceCollectionsForProperty(ctx context.Context, uprn string, collections []model.Collection, batchID string) error
}

// ingest snapshots the raw payload before parsing it, so a format change
// upstream leaves the offending response behind for inspection.
func ingest(ctx context.Context, council *scraper.CouncilScraper, s store.Store, w collectionWriter, batchID string) error {
	raw, err := council.FetchRaw(ctx)
	if err != nil {
		return fmt.Errorf("fetching collection data: %w", err)
	}

	key := store.PayloadKey(council.UPRN(), batchID)
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("storing payload snapshot: %w", err)
	}
	log.Printf("Stored payload snapshot %s (%d bytes)", key, len(raw))

	collections, err := scraper.ParseAll(raw, time.Local)
	if err != nil {
		return fmt.Errorf("parsing snapshot %s: %w", key, err)
	}
	log.Printf("Parsed %d collections", len(collections))

	if err := w.ReplaceCollectionsForProperty(ctx, council.UPRN(), collections, batchID); err != nil {
		return fmt.Errorf("storing collections: %w", err)
	}
	log.Printf("Stored %d collections for UPRN %s", len(collections), council.UPRN())
	return nil
}
