package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"eve-market-hand/internal/config"
	"eve-market-hand/internal/fetcher"
	"eve-market-hand/internal/models"
	"eve-market-hand/internal/pipeline"
	"eve-market-hand/internal/refdata"
	"eve-market-hand/internal/session"
	"eve-market-hand/internal/valuation"

	"github.com/joho/godotenv"
)

// One scheduled run cycle: fetch every configured market, persist orders,
// derive and persist composite valuations. An external scheduler (cron,
// systemd timer) invokes this at fixed wall-clock offsets.
func main() {
	marketFlag := flag.String("market", "all", "market to sample (all, jita, gsf)")
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

	var markets []models.Market
	if *marketFlag == "all" {
		markets = cfg.Markets()
	} else {
		markets = []models.Market{cfg.MarketByName(*marketFlag)}
	}

	sess := session.NewManager(cfg)
	states := fetcher.NewCacheStateStore(cfg.RuntimeDir)
	f := fetcher.New(cfg.ESIBaseURL, cfg.ESIUserAgent, states)
	f.SetMaxPagesOverride(cfg.OverrideMaxPages)
	engine := valuation.NewEngine(ref, cfg.ValuationPercentile, cfg.RefineEfficiency)

	p := pipeline.New(cfg, sess, f, ref, engine)

	// SIGINT/SIGTERM cancel at page granularity; completed pages are
	// persisted on the way out.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("[Sampler] starting run cycle for %s", *marketFlag)
	if err := p.Run(ctx, markets); err != nil {
		log.Printf("[Sampler] run cycle finished with errors: %v", err)
		os.Exit(1)
	}
	log.Println("[Sampler] run cycle complete")
}
