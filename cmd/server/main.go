package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"binday/internal/cache"
	"binday/internal/config"
	"binday/internal/firestore"
	"binday/internal/scraper"
	"binday/internal/web"
)

const defaultCacheTTL = 6 * time.Hour

func main() {
	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := cfg.NewLogger()

	port := config.Getenv("PORT", config.DefaultPort)
	cacheDir := config.Getenv("CACHE_DIR", config.DefaultCacheDir)

	c, err := cache.New(cacheDir, defaultCacheTTL)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	s, err := scraper.FromConfig(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize scraper: %v", err)
	}

	opts := web.Options{
		Window:  cfg.Window,
		Limiter: rate.NewLimiter(rate.Every(time.Minute), 2),
		Logger:  logger,
		UPRN:    cfg.UPRN,
	}

	if projectID := config.Getenv("GCP_PROJECT_ID", ""); projectID != "" {
		collection := config.Getenv("FIRESTORE_COLLECTION", config.DefaultCollection)
		fs, err := firestore.New(context.Background(), projectID, collection)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer fs.Close()
		opts.Archive = fs
		log.Printf("Archive fallback: Firestore %s/%s", projectID, collection)
	}

	handler := web.New(s, c, opts)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	log.Printf("Server starting on port %s", port)
	log.Printf("Cache directory: %s", cacheDir)
	log.Printf("Property: UPRN %s (session mode %s)", cfg.UPRN, cfg.SessionMode)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
