package main

import (
	"flag"
	"fmt"
	"log"

	"eve-market-hand/internal/config"
	"eve-market-hand/internal/database"
	"eve-market-hand/internal/refdata"

	"github.com/joho/godotenv"
	"github.com/xuri/excelize/v2"
)

// Exports day-bucketed price summaries for the configured query list into
// an xlsx workbook, one sheet per commodity. Chart rendering itself lives
// downstream; this is the data hand-off for it.
func main() {
	market := flag.String("market", "jita", "market name")
	out := flag.String("out", "market_summary.xlsx", "output workbook path")
	days := flag.Int("days", 30, "trailing window in days")
	flag.Parse()

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

	var queryList []int64
	if err := refdata.LoadJSONFile(cfg.QueryListFile, &queryList); err != nil {
		log.Fatal("Failed to load query list: ", err)
	}

	m := cfg.MarketByName(*market)
	store, err := database.Initialize(m.DBPath)
	if err != nil {
		log.Fatal("Failed to open database: ", err)
	}
	defer store.Close()

	book := excelize.NewFile()
	defer book.Close()

	header := []interface{}{"Day", "Average", "Min", "Max", "Samples"}
	sheets := 0
	for _, typeID := range queryList {
		rows, err := store.DailyPriceSummary(typeID, *days)
		if err != nil {
			log.Printf("[Summary] skipping type %d: %v", typeID, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}

		name := ref.NameForID(typeID)
		if name == "" {
			name = fmt.Sprintf("type_%d", typeID)
		}
		sheet := sanitizeSheetName(name)
		if sheets == 0 {
			// reuse the default sheet for the first commodity
			if err := book.SetSheetName("Sheet1", sheet); err != nil {
				log.Fatal("Failed to name sheet: ", err)
			}
		} else if _, err := book.NewSheet(sheet); err != nil {
			log.Printf("[Summary] skipping type %d: %v", typeID, err)
			continue
		}

		if err := book.SetSheetRow(sheet, "A1", &header); err != nil {
			log.Fatal("Failed to write header: ", err)
		}
		for i, r := range rows {
			cell := fmt.Sprintf("A%d", i+2)
			row := []interface{}{r.Day, r.AvgPrice, r.MinPrice, r.MaxPrice, r.Samples}
			if err := book.SetSheetRow(sheet, cell, &row); err != nil {
				log.Fatal("Failed to write row: ", err)
			}
		}
		sheets++
	}

	if sheets == 0 {
		log.Fatal("No data found for any commodity in the query list")
	}
	if err := book.SaveAs(*out); err != nil {
		log.Fatal("Failed to save workbook: ", err)
	}
	log.Printf("[Summary] wrote %d sheet(s) to %s", sheets, *out)
}

// sanitizeSheetName keeps names within Excel's 31-char limit and strips the
// characters the format forbids.
func sanitizeSheetName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			continue
		}
		out = append(out, r)
	}
	if len(out) > 31 {
		out = out[:31]
	}
	return string(out)
}
