package main

import (
	"log"
	"net/http"

	"eve-market-hand/internal/api"
	"eve-market-hand/internal/config"
	"eve-market-hand/internal/database"
	"eve-market-hand/internal/refdata"
	"eve-market-hand/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
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

	// One store per configured market; the sampler writes them, this
	// server only reads (WAL keeps the two from blocking each other).
	stores := make(map[string]*database.Store)
	for _, market := range cfg.Markets() {
		store, err := database.Initialize(market.DBPath)
		if err != nil {
			log.Fatal("Failed to open market database: ", err)
		}
		stores[market.Name] = store
	}

	sess := session.NewManager(cfg)

	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"esi_online": sess.ProbeStatus(c.Request.Context()),
		})
	})

	apiGroup := r.Group("/api/v1")
	api.SetupRoutes(r, apiGroup, stores, sess, ref)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
