package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"eve-market-hand/internal/models"

	"gorm.io/gorm"
)

const insertBatchSize = 500

// SaveOrders appends the batch in a single transaction, stamping every row
// with fetchedAt. Rows failing the persistence invariants are dropped with
// a warning rather than aborting the batch. Existing rows are never updated.
func (s *Store) SaveOrders(orders []models.MarketOrder, fetchedAt time.Time) error {
	rows := make([]models.MarketOrder, 0, len(orders))
	skipped := 0
	for _, o := range orders {
		o.ID = 0
		o.Timestamp = fetchedAt
		if !o.Valid() {
			skipped++
			continue
		}
		rows = append(rows, o)
	}
	if skipped > 0 {
		log.Printf("[Database] skipped %d invalid rows in batch for %s", skipped, s.path)
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("failed to insert %d orders: %w", len(rows), err)
	}
	return nil
}

// SaveValuations appends derived prices through the same order pathway.
func (s *Store) SaveValuations(vals []models.DerivedValuation, fetchedAt time.Time) error {
	orders := make([]models.MarketOrder, 0, len(vals))
	for _, v := range vals {
		orders = append(orders, v.Order())
	}
	return s.SaveOrders(orders, fetchedAt)
}

// MostRecentPrice returns the latest sell-side observation for a commodity,
// or nil when none has been recorded. Buy orders are stored but never feed
// price derivation.
func (s *Store) MostRecentPrice(typeID int64) (*models.MarketOrder, error) {
	var row models.MarketOrder
	err := s.db.
		Where("type_id = ? AND is_buy_order = ?", typeID, false).
		Order("timestamp DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query recent price for type %d: %w", typeID, err)
	}
	return &row, nil
}

// DailyPriceSummary buckets a commodity's sell-side history by calendar day
// over the trailing window, for dashboards and report exports.
func (s *Store) DailyPriceSummary(typeID int64, days int) ([]models.DailyPrice, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var out []models.DailyPrice
	err := s.db.Raw(`
		SELECT
			date(timestamp) AS day,
			AVG(price) AS avg_price,
			MIN(price) AS min_price,
			MAX(price) AS max_price,
			COUNT(*) AS samples
		FROM market_orders
		WHERE type_id = ? AND is_buy_order = 0 AND timestamp >= ?
		GROUP BY date(timestamp)
		ORDER BY day ASC
	`, typeID, since).Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to build daily summary for type %d: %w", typeID, err)
	}
	return out, nil
}
