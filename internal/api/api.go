package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"eve-market-hand/internal/database"
	"eve-market-hand/internal/refdata"
	"eve-market-hand/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// APIHandler serves read-only market data to downstream consumers (bots,
// dashboards, chart generators). It never writes: the sampler owns all
// writes and WAL mode keeps these readers from blocking it.
type APIHandler struct {
	stores  map[string]*database.Store
	session *session.Manager
	ref     *refdata.Store
}

var upgrader = websocket.Upgrader{
	// single-tenant deployment behind its own reverse proxy
	CheckOrigin: func(r *http.Request) bool { return true },
}

func SetupRoutes(r *gin.Engine, apiGroup *gin.RouterGroup, stores map[string]*database.Store, sess *session.Manager, ref *refdata.Store) *APIHandler {
	handler := &APIHandler{
		stores:  stores,
		session: sess,
		ref:     ref,
	}

	apiGroup.GET("/price/:market/:type_id", handler.GetPrice)
	apiGroup.GET("/daily/:market/:type_id", handler.GetDailySummary)
	r.GET("/ws/prices", handler.StreamPrices)

	return handler
}

func (h *APIHandler) store(c *gin.Context) (*database.Store, bool) {
	market := c.Param("market")
	store, ok := h.stores[market]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown market: " + market})
		return nil, false
	}
	return store, true
}

func (h *APIHandler) typeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("type_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type_id"})
		return 0, false
	}
	return id, true
}

// GetPrice returns the most recent sell-side observation for a commodity.
func (h *APIHandler) GetPrice(c *gin.Context) {
	store, ok := h.store(c)
	if !ok {
		return
	}
	typeID, ok := h.typeID(c)
	if !ok {
		return
	}

	row, err := store.MostRecentPrice(typeID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no price recorded for this commodity"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"type_id":   row.TypeID,
		"name":      h.ref.NameForID(row.TypeID),
		"price":     row.Price,
		"timestamp": row.Timestamp,
	})
}

// GetDailySummary returns day-bucketed sell-price aggregates over the
// trailing window (?days=N, default 30).
func (h *APIHandler) GetDailySummary(c *gin.Context) {
	store, ok := h.store(c)
	if !ok {
		return
	}
	typeID, ok := h.typeID(c)
	if !ok {
		return
	}

	days := 30
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	rows, err := store.DailyPriceSummary(typeID, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"type_id": typeID,
		"name":    h.ref.NameForID(typeID),
		"days":    days,
		"series":  rows,
	})
}

// StreamPrices pushes the latest price for one commodity over a websocket
// at a fixed interval until the client goes away.
// Query params: market, type_id, interval (seconds, default 60).
func (h *APIHandler) StreamPrices(c *gin.Context) {
	market := c.Query("market")
	store, ok := h.stores[market]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown market: " + market})
		return
	}
	typeID, err := strconv.ParseInt(c.Query("type_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type_id"})
		return
	}
	interval := 60
	if v := c.Query("interval"); v != "" {
		if n, aerr := strconv.Atoi(v); aerr == nil && n > 0 {
			interval = n
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[API] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	send := func() error {
		row, qerr := store.MostRecentPrice(typeID)
		if qerr != nil {
			return conn.WriteJSON(gin.H{"error": qerr.Error()})
		}
		if row == nil {
			return conn.WriteJSON(gin.H{"type_id": typeID, "price": nil})
		}
		return conn.WriteJSON(gin.H{
			"type_id":   row.TypeID,
			"name":      h.ref.NameForID(row.TypeID),
			"price":     row.Price,
			"timestamp": row.Timestamp,
		})
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}
