package main

import (
	"flag"
	"log"

	"eve-market-hand/internal/config"
	"eve-market-hand/internal/database"

	"github.com/joho/godotenv"
)

// Retention pruning entry point. Must not run while a fetch cycle is
// writing the same file: schedule it in a non-overlapping slot.
func main() {
	dbPath := flag.String("db", "", "market database file to prune (required)")
	ageDays := flag.Int("age", 0, "retention window in days (default: PRUNE_AGE_DAYS)")
	keepInterval := flag.Int("keep-interval", 0, "keep every Nth aged row per commodity (default: PRUNE_KEEP_INTERVAL)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("-db is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	if *ageDays == 0 {
		*ageDays = cfg.PruneAgeDays
	}
	if *keepInterval == 0 {
		*keepInterval = cfg.PruneKeepInterval
	}

	store, err := database.Initialize(*dbPath)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer store.Close()

	deleted, err := store.Prune(*ageDays, *keepInterval)
	if err != nil {
		log.Fatal("Prune failed: ", err)
	}
	log.Printf("[DataPrune] pruned %d entries older than %d days (kept every %dth row)",
		deleted, *ageDays, *keepInterval)
}
