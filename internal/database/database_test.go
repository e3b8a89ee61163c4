package database

import (
	"path/filepath"
	"testing"
	"time"

	"eve-market-hand/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Initialize(filepath.Join(t.TempDir(), "test_market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func countRows(t *testing.T, s *Store, typeID int64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.DB().Model(&models.MarketOrder{}).Where("type_id = ?", typeID).Count(&n).Error)
	return n
}

func sellRow(typeID int64, price float64) models.MarketOrder {
	return models.MarketOrder{TypeID: typeID, Price: price, VolumeRemain: 100}
}

func TestInitializeIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test_market.db")

	store, err := Initialize(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 5.0)}, time.Now().UTC()))
	require.NoError(t, store.Close())

	// reopening an initialized file must not disturb existing rows
	store, err = Initialize(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, int64(1), countRows(t, store, 34))
}

func TestSaveOrdersStampsBatchTimestamp(t *testing.T) {
	store := newTestStore(t)
	fetchedAt := time.Now().UTC().Truncate(time.Second)

	orders := []models.MarketOrder{
		sellRow(34, 5.0),
		{TypeID: 35, Price: 10.0, VolumeRemain: 50, IsBuyOrder: true},
	}
	// stale per-row timestamps must be overwritten with the batch stamp
	orders[0].Timestamp = fetchedAt.Add(-time.Hour)

	require.NoError(t, store.SaveOrders(orders, fetchedAt))

	var rows []models.MarketOrder
	require.NoError(t, store.DB().Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.True(t, fetchedAt.Equal(r.Timestamp.UTC()))
	}
}

func TestSaveOrdersDropsInvalidRows(t *testing.T) {
	store := newTestStore(t)

	orders := []models.MarketOrder{
		sellRow(34, 5.0),
		{TypeID: 0, Price: 5.0, VolumeRemain: 100},   // missing type
		{TypeID: 35, Price: -1.0, VolumeRemain: 100}, // negative price
	}
	require.NoError(t, store.SaveOrders(orders, time.Now().UTC()))

	var n int64
	require.NoError(t, store.DB().Model(&models.MarketOrder{}).Count(&n).Error)
	assert.Equal(t, int64(1), n, "invalid rows are skipped, not fatal")
}

func TestSaveOrdersEmptyBatch(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.SaveOrders(nil, time.Now().UTC()))
}

func TestMostRecentPriceIsSellSideOnly(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 10.0)}, base))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{
		{TypeID: 34, Price: 99.0, VolumeRemain: 10, IsBuyOrder: true},
	}, base.Add(30*time.Minute)))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 12.0)}, base.Add(20*time.Minute)))

	row, err := store.MostRecentPrice(34)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 12.0, row.Price, "the newer buy order must not win")
}

func TestMostRecentPriceUnknownType(t *testing.T) {
	store := newTestStore(t)

	row, err := store.MostRecentPrice(999999)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestSaveValuationsStoredAsSellRows(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	vals := []models.DerivedValuation{{TypeID: 1230, Price: 27.186, Timestamp: now}}
	require.NoError(t, store.SaveValuations(vals, now))

	row, err := store.MostRecentPrice(1230)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.InDelta(t, 27.186, row.Price, 1e-9)
	assert.Zero(t, row.VolumeRemain)
	assert.False(t, row.IsBuyOrder)
}

func TestPruneKeepsEveryKthAgedRow(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	// 8 aged observations for type 34, one per hour, plus 2 recent ones
	for i := 0; i < 8; i++ {
		ts := now.AddDate(0, 0, -40).Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, float64(i))}, ts))
	}
	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 100.0)}, now.Add(-2*time.Hour)))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 101.0)}, now.Add(-time.Hour)))

	// 3 aged observations for a second commodity
	for i := 0; i < 3; i++ {
		ts := now.AddDate(0, 0, -35).Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(35, float64(i))}, ts))
	}

	deleted, err := store.Prune(30, 4)
	require.NoError(t, err)

	// type 34 keeps aged rows 1 and 5 of 8; type 35 keeps row 1 of 3
	assert.Equal(t, int64(8), deleted)
	assert.Equal(t, int64(4), countRows(t, store, 34), "2 aged survivors + 2 recent rows")
	assert.Equal(t, int64(1), countRows(t, store, 35))

	// the survivors are the chronologically first of each interval
	var survivors []models.MarketOrder
	require.NoError(t, store.DB().
		Where("type_id = ? AND timestamp < ?", 34, now.AddDate(0, 0, -30)).
		Order("timestamp ASC").
		Find(&survivors).Error)
	require.Len(t, survivors, 2)
	assert.Equal(t, 0.0, survivors[0].Price)
	assert.Equal(t, 4.0, survivors[1].Price)
}

func TestPruneLeavesRecentRowsUntouched(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		ts := now.Add(-time.Duration(i) * time.Hour)
		require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, float64(i))}, ts))
	}

	deleted, err := store.Prune(30, 4)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, int64(10), countRows(t, store, 34))
}

func TestDailyPriceSummaryAggregatesSellSide(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 5.0)}, now.Add(-3*time.Hour)))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 10.0)}, now.Add(-2*time.Hour)))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 20.0)}, now.Add(-time.Hour)))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{
		{TypeID: 34, Price: 500.0, VolumeRemain: 1, IsBuyOrder: true},
	}, now.Add(-time.Hour)))

	rows, err := store.DailyPriceSummary(34, 7)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	var samples int64
	globalMax := 0.0
	for _, r := range rows {
		samples += r.Samples
		if r.MaxPrice > globalMax {
			globalMax = r.MaxPrice
		}
	}
	assert.Equal(t, int64(3), samples, "buy orders must not feed the summary")
	assert.Equal(t, 20.0, globalMax)
}

func TestDailyPriceSummaryWindowExcludesOldRows(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 5.0)}, now.AddDate(0, 0, -20)))
	require.NoError(t, store.SaveOrders([]models.MarketOrder{sellRow(34, 10.0)}, now.Add(-time.Hour)))

	rows, err := store.DailyPriceSummary(34, 7)
	require.NoError(t, err)

	var samples int64
	for _, r := range rows {
		samples += r.Samples
	}
	assert.Equal(t, int64(1), samples)
}

func TestReclaimSpaceEmptiesFreelist(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	rows := make([]models.MarketOrder, 0, 2000)
	for i := 0; i < 2000; i++ {
		rows = append(rows, sellRow(34, float64(i)))
	}
	require.NoError(t, store.SaveOrders(rows, now))
	require.NoError(t, store.DB().Exec("DELETE FROM market_orders").Error)

	require.NoError(t, store.ReclaimAll(1024*1024))

	var freePages int64
	require.NoError(t, store.DB().Raw("PRAGMA freelist_count;").Scan(&freePages).Error)
	assert.Zero(t, freePages)
}
