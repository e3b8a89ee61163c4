package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMarketOrderValid(t *testing.T) {
	now := time.Now().UTC()

	assert.True(t, MarketOrder{TypeID: 34, Price: 5, Timestamp: now}.Valid())
	assert.True(t, MarketOrder{TypeID: 34, Price: 0, Timestamp: now}.Valid(), "free listings are legal")
	assert.False(t, MarketOrder{TypeID: 0, Price: 5, Timestamp: now}.Valid())
	assert.False(t, MarketOrder{TypeID: 34, Price: -1, Timestamp: now}.Valid())
	assert.False(t, MarketOrder{TypeID: 34, Price: 5}.Valid())
}

func TestDerivedValuationOrder(t *testing.T) {
	now := time.Now().UTC()
	o := DerivedValuation{TypeID: 1230, Price: 27.186, Timestamp: now}.Order()

	assert.Equal(t, int64(1230), o.TypeID)
	assert.Zero(t, o.VolumeRemain, "derived rows carry no volume")
	assert.False(t, o.IsBuyOrder)
	assert.True(t, now.Equal(o.Timestamp))
}

func TestTokenExpired(t *testing.T) {
	assert.False(t, Token{}.Expired(time.Minute), "no expiry metadata means live")
	assert.False(t, Token{ExpiresAt: time.Now().Add(time.Hour).Unix()}.Expired(time.Minute))
	assert.True(t, Token{ExpiresAt: time.Now().Add(-time.Minute).Unix()}.Expired(time.Minute))
	assert.True(t, Token{ExpiresAt: time.Now().Add(30 * time.Second).Unix()}.Expired(time.Minute),
		"tokens inside the margin count as expired")
}

func TestMarketIsStructure(t *testing.T) {
	assert.False(t, Market{RegionID: 10000002, StationID: 60003760}.IsStructure())
	assert.True(t, Market{StructureID: 1049588174021}.IsStructure())
}
