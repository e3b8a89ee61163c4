package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"eve-market-hand/internal/models"
)

type Config struct {
	Port        string
	Environment string

	// ESI endpoints and SSO application credentials
	ESIBaseURL      string
	ESITokenURL     string
	ESIClientID     string
	ESIClientSecret string
	ESIUserAgent    string

	// How long a successful status probe stays valid
	StatusCacheDuration time.Duration

	// 0 means fetch every page the server reports
	OverrideMaxPages int

	// Retention and valuation tuning
	PruneAgeDays        int
	PruneKeepInterval   int
	ValuationPercentile float64
	RefineEfficiency    float64

	// Directories and files
	DataDir       string
	RuntimeDir    string
	TokenFile     string
	ItemIDsFile   string
	OreListFile   string
	IceListFile   string
	YieldFile     string
	PriceableFile string
	QueryListFile string
	JitaDBPath    string
	GSFDBPath     string

	// Market identifiers
	JitaRegionID   int64
	JitaStationID  int64
	GSFStructureID int64
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "data")
	runtimeDir := getEnv("RUNTIME_DIR", "runtime")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		ESIBaseURL:      getEnv("ESI_BASE_URL", "https://esi.evetech.net"),
		ESITokenURL:     getEnv("ESI_TOKEN_URL", "https://login.eveonline.com/v2/oauth/token"),
		ESIClientID:     getEnv("ESI_CLIENT_ID", ""),
		ESIClientSecret: getEnv("ESI_CLIENT_SECRET", ""),
		ESIUserAgent:    getEnv("ESI_USER_AGENT", "eve-market-hand (admin contact: see repo)"),

		StatusCacheDuration: time.Duration(getEnvInt("ESI_STATUS_CACHE_DURATION", 300)) * time.Second,
		OverrideMaxPages:    getEnvInt("OVERRIDE_MAX_ESI_PAGES", 0),

		PruneAgeDays:        getEnvInt("PRUNE_AGE_DAYS", 30),
		PruneKeepInterval:   getEnvInt("PRUNE_KEEP_INTERVAL", 4),
		ValuationPercentile: getEnvFloat("VALUATION_PERCENTILE", 0.05),
		RefineEfficiency:    getEnvFloat("REFINE_EFFICIENCY", 0.9062),

		DataDir:       dataDir,
		RuntimeDir:    runtimeDir,
		TokenFile:     getEnv("ESI_TOKEN_FILE", filepath.Join(runtimeDir, "token.json")),
		ItemIDsFile:   getEnv("ITEM_IDS_FILE", filepath.Join(dataDir, "Item_IDs.csv")),
		OreListFile:   getEnv("ORE_LIST_FILE", filepath.Join(dataDir, "ore_list.json")),
		IceListFile:   getEnv("ICE_LIST_FILE", filepath.Join(dataDir, "ice_product_list.json")),
		YieldFile:     getEnv("REPROCESS_YIELD_FILE", filepath.Join(dataDir, "reprocess_yield.json")),
		PriceableFile: getEnv("REPROCESS_IDS_FILE", filepath.Join(dataDir, "reprocess_item_ids.json")),
		QueryListFile: getEnv("QUERY_LIST_FILE", filepath.Join(dataDir, "query_list.json")),
		JitaDBPath:    getEnv("JITA_DB_PATH", filepath.Join(dataDir, "jita_market_prices.db")),
		GSFDBPath:     getEnv("GSF_DB_PATH", filepath.Join(dataDir, "gsf_market_prices.db")),

		JitaRegionID:   getEnvInt64("JITA_REGION_ID", 10000002),       // The Forge
		JitaStationID:  getEnvInt64("JITA_STATION_ID", 60003760),      // Jita 4-4
		GSFStructureID: getEnvInt64("GSF_STRUCTURE_ID", 1049588174021), // C-J Keepstar
	}
}

// Markets returns every configured fetch target. Jita is a hub market
// filtered to its station; the GSF market is structure-scoped.
func (c *Config) Markets() []models.Market {
	return []models.Market{
		{
			Name:      "jita",
			RegionID:  c.JitaRegionID,
			StationID: c.JitaStationID,
			DBPath:    c.JitaDBPath,
		},
		{
			Name:        "gsf",
			StructureID: c.GSFStructureID,
			DBPath:      c.GSFDBPath,
		},
	}
}

// MarketByName resolves a configured market, defaulting to Jita when the
// name is not recognized.
func (c *Config) MarketByName(name string) models.Market {
	for _, m := range c.Markets() {
		if m.Name == name {
			return m
		}
	}
	return c.Markets()[0]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
