package main

import (
	"flag"
	"log"

	"eve-market-hand/internal/database"
)

// Space reclamation entry point: returns freed pages to the filesystem in
// bounded chunks so a multi-gigabyte file never blocks on one compaction.
// Like pruning, never run it against a file mid-fetch-cycle.
func main() {
	dbPath := flag.String("db", "", "market database file to vacuum (required)")
	reclaimMB := flag.Int64("reclaim-size", 500, "max MB to reclaim per pass")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("-db is required")
	}

	store, err := database.Initialize(*dbPath)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer store.Close()

	log.Printf("[Vacuum] processing %s (max %d MB per pass)", *dbPath, *reclaimMB)
	if err := store.ReclaimAll(*reclaimMB * 1024 * 1024); err != nil {
		log.Fatal("Vacuum failed: ", err)
	}
}
