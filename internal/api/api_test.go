package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"eve-market-hand/internal/config"
	"eve-market-hand/internal/database"
	"eve-market-hand/internal/models"
	"eve-market-hand/internal/refdata"
	"eve-market-hand/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRef(t *testing.T) *refdata.Store {
	t.Helper()
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	s, err := refdata.Load(refdata.Files{
		ItemIDs:   write("Item_IDs.csv", "typeID,groupID,typeName\n34,18,Tritanium\n"),
		OreList:   write("ore_list.json", "[]"),
		IceList:   write("ice_product_list.json", "[]"),
		Yields:    write("reprocess_yield.json", "{}"),
		Priceable: write("reprocess_item_ids.json", "[34]"),
	})
	require.NoError(t, err)
	return s
}

func setupRouter(t *testing.T) (*gin.Engine, *database.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := database.Initialize(filepath.Join(t.TempDir(), "jita_market_prices.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sess := session.NewManager(&config.Config{
		ESIBaseURL:          "http://127.0.0.1:0",
		StatusCacheDuration: time.Hour,
		TokenFile:           filepath.Join(t.TempDir(), "token.json"),
	})

	r := gin.New()
	group := r.Group("/api/v1")
	SetupRoutes(r, group, map[string]*database.Store{"jita": store}, sess, testRef(t))
	return r, store
}

func doRequest(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetPrice(t *testing.T) {
	r, store := setupRouter(t)
	require.NoError(t, store.SaveOrders([]models.MarketOrder{
		{TypeID: 34, Price: 5.0, VolumeRemain: 1000},
	}, time.Now().UTC()))

	w := doRequest(r, http.MethodGet, "/api/v1/price/jita/34")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price":5`)
	assert.Contains(t, w.Body.String(), `"name":"Tritanium"`)
}

func TestGetPriceUnknownCommodity(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/price/jita/999999")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPriceUnknownMarket(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/price/amarr/34")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPriceBadTypeID(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/price/jita/not-a-number")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDailySummary(t *testing.T) {
	r, store := setupRouter(t)
	now := time.Now().UTC()
	require.NoError(t, store.SaveOrders([]models.MarketOrder{
		{TypeID: 34, Price: 5.0, VolumeRemain: 1000},
	}, now.Add(-2*time.Hour)))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{
		{TypeID: 34, Price: 10.0, VolumeRemain: 500},
	}, now.Add(-time.Hour)))

	w := doRequest(r, http.MethodGet, "/api/v1/daily/jita/34?days=7")

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"series"`)
	assert.Contains(t, body, `"samples"`)
}

func TestStreamPricesPushesLatest(t *testing.T) {
	r, store := setupRouter(t)
	require.NoError(t, store.SaveOrders([]models.MarketOrder{
		{TypeID: 34, Price: 5.0, VolumeRemain: 1000},
	}, time.Now().UTC()))

	server := httptest.NewServer(r)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/prices?market=jita&type_id=34&interval=60"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, float64(34), msg["type_id"])
	assert.Equal(t, 5.0, msg["price"])
	assert.Equal(t, "Tritanium", msg["name"])
}

func TestStreamPricesUnknownMarket(t *testing.T) {
	r, _ := setupRouter(t)

	w := doRequest(r, http.MethodGet, "/ws/prices?market=amarr&type_id=34")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
