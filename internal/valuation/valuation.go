// Package valuation prices composite commodities (ores, ice) that have no
// reliable direct market price by decomposing them into their reprocessing
// yields and pricing each material off the current run's order snapshot.
package valuation

import (
	"log"
	"sort"

	"eve-market-hand/internal/models"
	"eve-market-hand/internal/refdata"
)

// standardBatch is how many units go into one reprocessing run for ordinary
// composites. Ice products reprocess one unit at a time.
const standardBatch = 100.0

type Engine struct {
	ref *refdata.Store
	// Percentile of sell prices used as a material's unit cost. A low
	// percentile damps single-outlier manipulation while still tracking
	// genuine cheap liquidity; the strict minimum does not.
	Percentile float64
	// Maximum achievable refining yield.
	Efficiency float64
}

func NewEngine(ref *refdata.Store, percentile, efficiency float64) *Engine {
	return &Engine{
		ref:        ref,
		Percentile: percentile,
		Efficiency: efficiency,
	}
}

// ValueComposite computes a composite's derived price from the fetched
// snapshot. It never fails: unknown names, missing yield entries,
// unpriceable materials and absent prices all contribute zero and are
// logged, because a partial valuation is strictly more useful downstream
// than no valuation.
func (e *Engine) ValueComposite(typeID int64, orders []models.MarketOrder) float64 {
	name := e.ref.NameForID(typeID)
	if name == "" {
		log.Printf("[Valuation] no name known for type %d, valuing at 0", typeID)
		return 0
	}

	yields := e.ref.YieldFor(name)
	if len(yields) == 0 {
		log.Printf("[Valuation] no reprocess data found for %s", name)
		return 0
	}

	batch := standardBatch
	if e.ref.IsIceProduct(typeID) {
		// ice reprocesses per unit, not per 100
		batch = 1
	}

	total := 0.0
	for material, qty := range yields {
		materialID, ok := e.ref.IDForName(material)
		if !ok {
			log.Printf("[Valuation] material %s (from %s) has no known type id, contributing 0", material, name)
			continue
		}
		if !e.ref.IsPriceable(materialID) {
			log.Printf("[Valuation] material %s is not in the priceable set, contributing 0", material)
			continue
		}

		prices := sellPrices(orders, materialID)
		if len(prices) == 0 {
			log.Printf("[Valuation] no sell orders for material %s in this snapshot, contributing 0", material)
			continue
		}

		unit := percentile(prices, e.Percentile)
		total += unit * (qty / batch) * e.Efficiency
	}
	return total
}

func sellPrices(orders []models.MarketOrder, typeID int64) []float64 {
	var prices []float64
	for _, o := range orders {
		if o.TypeID == typeID && !o.IsBuyOrder {
			prices = append(prices, o.Price)
		}
	}
	return prices
}

// percentile returns the value at the p-quantile (0..1) of prices using the
// nearest-rank method on the ascending ordering.
func percentile(prices []float64, p float64) float64 {
	sorted := make([]float64, len(prices))
	copy(sorted, prices)
	sort.Float64s(sorted)

	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
