// Package pipeline wires one scheduled run cycle together: credential,
// per-market page walks, persistence, and composite valuation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"eve-market-hand/internal/config"
	"eve-market-hand/internal/database"
	"eve-market-hand/internal/fetcher"
	"eve-market-hand/internal/models"
	"eve-market-hand/internal/refdata"
	"eve-market-hand/internal/session"
	"eve-market-hand/internal/valuation"
)

type Pipeline struct {
	cfg     *config.Config
	session *session.Manager
	fetcher *fetcher.Fetcher
	ref     *refdata.Store
	engine  *valuation.Engine
}

func New(cfg *config.Config, sess *session.Manager, f *fetcher.Fetcher, ref *refdata.Store, engine *valuation.Engine) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		session: sess,
		fetcher: f,
		ref:     ref,
		engine:  engine,
	}
}

// Run executes one cycle over the given markets concurrently. Each market
// walks its own pages, writes its own database file and fails on its own:
// one market's failure never prevents the others from being attempted.
func (p *Pipeline) Run(ctx context.Context, markets []models.Market) error {
	if !p.session.ProbeStatus(ctx) {
		log.Println("[Pipeline] ESI reports offline; attempting the run anyway")
	}

	token, err := p.session.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("cannot start run cycle: %w", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(markets))
	for i, market := range markets {
		wg.Add(1)
		go func(i int, market models.Market) {
			defer wg.Done()
			if err := p.runMarket(ctx, token, market); err != nil {
				log.Printf("[Pipeline] %s run failed: %v", market.Name, err)
				errs[i] = fmt.Errorf("%s: %w", market.Name, err)
			} else {
				log.Printf("[Pipeline] completed %s query", market.Name)
			}
		}(i, market)
	}
	wg.Wait()

	return errors.Join(errs...)
}

// runMarket fetches one market, resuming once from the failed page after a
// session expiry, and persists whatever pages completed, then derives and
// persists composite valuations from the same snapshot.
func (p *Pipeline) runMarket(ctx context.Context, token *models.Token, market models.Market) error {
	res, fetchErr := p.fetcher.FetchOrders(ctx, token, market, 1)

	var sessErr *fetcher.SessionExpiredError
	if errors.As(fetchErr, &sessErr) {
		log.Printf("[Pipeline] session expired on %s page %d, refreshing and resuming", market.Name, sessErr.Page)
		p.session.ForceProbeStatus(ctx)

		refreshed, rerr := p.session.Refresh(ctx, token)
		if rerr != nil {
			// still persist the pages that completed before the 401
			if serr := p.persist(market, res); serr != nil {
				return errors.Join(rerr, serr)
			}
			return rerr
		}

		resumed, rerr := p.fetcher.FetchOrders(ctx, refreshed, market, sessErr.Page)
		// pages fetched before the expiry and after the resume belong to
		// the same logical snapshot
		res.Orders = append(res.Orders, resumed.Orders...)
		res.FetchedAt = resumed.FetchedAt
		fetchErr = rerr
	}

	if fetchErr != nil {
		// budget exhaustion, cancellation and terminal transients are all
		// partial-result outcomes: persist completed pages, then report
		if serr := p.persist(market, res); serr != nil {
			return errors.Join(fetchErr, serr)
		}
		return fetchErr
	}

	return p.persist(market, res)
}

// persist writes the snapshot and its derived valuations in one store
// session. Storage failures are fatal for the market: partial-write
// corruption is never tolerated, which is what the transactions are for.
func (p *Pipeline) persist(market models.Market, res fetcher.Result) error {
	if len(res.Orders) == 0 {
		log.Printf("[Pipeline] nothing to persist for %s", market.Name)
		return nil
	}

	store, err := database.Initialize(market.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveOrders(res.Orders, res.FetchedAt); err != nil {
		return err
	}
	log.Printf("[Pipeline] saved %d orders for %s", len(res.Orders), market.Name)

	vals := make([]models.DerivedValuation, 0, len(p.ref.OreIDs()))
	for _, oreID := range p.ref.OreIDs() {
		price := p.engine.ValueComposite(oreID, res.Orders)
		vals = append(vals, models.DerivedValuation{
			TypeID:    oreID,
			Price:     price,
			Timestamp: res.FetchedAt,
		})
	}
	if err := store.SaveValuations(vals, res.FetchedAt); err != nil {
		return err
	}
	log.Printf("[Pipeline] saved %d derived valuations for %s", len(vals), market.Name)
	return nil
}
