package models

import (
	"time"
)

// MarketOrder is one observed order-book entry. Rows are append-only: the
// same (type, timestamp, price) observation is never updated in place.
// Derived valuations are written through the same shape so storage holds a
// single price series per commodity.
type MarketOrder struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	Timestamp    time.Time `json:"timestamp" gorm:"index;not null"`
	TypeID       int64     `json:"type_id" gorm:"index;not null"`
	VolumeRemain int64     `json:"volume_remain" gorm:"not null"`
	Price        float64   `json:"price" gorm:"not null"`
	IsBuyOrder   bool      `json:"is_buy_order" gorm:"not null"`
}

func (MarketOrder) TableName() string {
	return "market_orders"
}

// Valid reports whether the row satisfies the persistence invariants:
// non-zero type, non-negative price, well-formed timestamp.
func (o MarketOrder) Valid() bool {
	return o.TypeID != 0 && o.Price >= 0 && !o.Timestamp.IsZero()
}

// DerivedValuation is a computed price for a composite commodity. It is
// persisted as a sell-side MarketOrder row with zero volume.
type DerivedValuation struct {
	TypeID    int64
	Price     float64
	Timestamp time.Time
}

// Order converts the valuation into its storage representation.
func (v DerivedValuation) Order() MarketOrder {
	return MarketOrder{
		Timestamp:    v.Timestamp,
		TypeID:       v.TypeID,
		VolumeRemain: 0,
		Price:        v.Price,
		IsBuyOrder:   false,
	}
}

// DailyPrice is one day-bucketed aggregation row for a commodity.
type DailyPrice struct {
	Day      string  `json:"day"`
	AvgPrice float64 `json:"avg_price"`
	MinPrice float64 `json:"min_price"`
	MaxPrice float64 `json:"max_price"`
	Samples  int64   `json:"samples"`
}

// CacheState is the per-market throttle record persisted between runs so a
// restart does not re-violate the upstream cache window. Losing it only
// costs one premature fetch, never correctness.
type CacheState struct {
	LastFetchTime    time.Time `json:"last_fetch_time"`
	NextAllowedFetch time.Time `json:"next_allowed_fetch"`
}

// Token is the stored ESI SSO credential. The interactive authorization
// flow that mints the first token lives outside this repository; here the
// file is only loaded, refreshed and atomically rewritten.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Expired reports whether the access token is past (or within margin of)
// its recorded expiry. Tokens without expiry metadata are treated as live
// until the server says otherwise.
func (t Token) Expired(margin time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return time.Now().Add(margin).Unix() >= t.ExpiresAt
}

// Market describes one configured fetch target.
type Market struct {
	Name        string
	RegionID    int64
	StationID   int64 // hub markets only: orders are filtered to this station
	StructureID int64 // non-zero for structure-scoped markets
	DBPath      string
}

// IsStructure reports whether the market is structure-scoped. Structure
// endpoints only return that structure's orders, so no location filtering
// is needed.
func (m Market) IsStructure() bool {
	return m.StructureID != 0
}
