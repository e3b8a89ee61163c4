package main

import (
	"flag"
	"fmt"
	"log"

	"eve-market-hand/internal/config"
	"eve-market-hand/internal/database"
	"eve-market-hand/internal/refdata"

	"github.com/joho/godotenv"
)

// Quick lookup of a commodity's most recent recorded price in one market.
func main() {
	typeID := flag.Int64("type-id", 0, "commodity type id (required)")
	market := flag.String("market", "jita", "market name")
	flag.Parse()

	if *typeID == 0 {
		log.Fatal("-type-id is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	ref, err := refdata.Load(refdata.Files{
		ItemIDs:   cfg.ItemIDsFile,
		OreList:   cfg.OreListFile,
		IceList:   cfg.IceListFile,
		Yields:    cfg.YieldFile,
		Priceable: cfg.PriceableFile,
	})
	if err != nil {
		log.Fatal("Failed to load reference data: ", err)
	}

	name := ref.NameForID(*typeID)
	if name == "" {
		name = fmt.Sprintf("Unknown Item %d", *typeID)
	}

	m := cfg.MarketByName(*market)
	store, err := database.Initialize(m.DBPath)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer store.Close()

	row, err := store.MostRecentPrice(*typeID)
	if err != nil {
		log.Fatal("Price lookup failed: ", err)
	}
	if row == nil {
		fmt.Printf("No price recorded in %s for %s.\n", m.Name, name)
		return
	}

	fmt.Printf("The current price in %s for %s is %.2f (observed %s).\n",
		m.Name, name, row.Price, row.Timestamp.Format("2006-01-02 15:04:05"))
}
