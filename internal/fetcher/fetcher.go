// Package fetcher drives the page-by-page retrieval of market orders from
// the ESI API. Pagination within a market is strictly sequential: every
// response's rate-limit and cache headers decide the next action, so pages
// cannot be parallelized without racing the error budget.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"eve-market-hand/internal/models"

	"github.com/go-resty/resty/v2"
)

// ErrErrorBudgetExhausted is terminal for the current run; orders already
// accumulated for completed pages are still returned alongside it.
var ErrErrorBudgetExhausted = fmt.Errorf("ESI error budget exhausted")

// SessionExpiredError reports a 401 mid-pagination. It carries the page the
// fetch failed on so the caller can refresh the credential and resume from
// exactly there: no page skipped, no page double-counted.
type SessionExpiredError struct {
	Page int
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("ESI token invalid on page %d", e.Page)
}

// Result is what one market fetch produced, possibly partial when the run
// ended in an error.
type Result struct {
	Orders    []models.MarketOrder
	FetchedAt time.Time
}

// esiOrder is the wire shape of one order entry.
type esiOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       int64   `json:"type_id"`
	LocationID   int64   `json:"location_id"`
	Price        float64 `json:"price"`
	VolumeRemain int64   `json:"volume_remain"`
	IsBuyOrder   bool    `json:"is_buy_order"`
}

type Fetcher struct {
	client  *resty.Client
	states  *CacheStateStore
	retry   RetryPolicy
	baseURL string

	// 0 means no page cap
	overrideMaxPages int
	// pause threshold for the upstream error budget
	lowWaterMark int
	// safety margin added on top of the Expires header
	cacheGrace time.Duration
}

func New(baseURL, userAgent string, states *CacheStateStore) *Fetcher {
	client := resty.New()
	client.SetTimeout(10 * time.Second)
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Content-Type", "application/json")

	return &Fetcher{
		client:       client,
		states:       states,
		retry:        DefaultRetryPolicy(),
		baseURL:      baseURL,
		lowWaterMark: 5,
		cacheGrace:   3 * time.Second,
	}
}

// SetRetryPolicy replaces the transient-failure policy.
func (f *Fetcher) SetRetryPolicy(p RetryPolicy) {
	f.retry = p
}

// SetMaxPagesOverride caps how many pages one fetch walks (0 = no cap).
func (f *Fetcher) SetMaxPagesOverride(n int) {
	f.overrideMaxPages = n
}

// SetCacheGrace adjusts the safety margin added to the upstream expiry.
func (f *Fetcher) SetCacheGrace(d time.Duration) {
	f.cacheGrace = d
}

func (f *Fetcher) pageURL(market models.Market, page int) string {
	if market.IsStructure() {
		return fmt.Sprintf("%s/markets/structures/%d?page=%d", f.baseURL, market.StructureID, page)
	}
	return fmt.Sprintf("%s/latest/markets/%d/orders/?order_type=all&page=%d", f.baseURL, market.RegionID, page)
}

// FetchOrders walks the market's pages starting at resumePage and returns
// every order accumulated, already filtered to the market's location. The
// Result is valid even when err is non-nil: completed pages are never
// discarded, whatever ends the walk.
func (f *Fetcher) FetchOrders(ctx context.Context, token *models.Token, market models.Market, resumePage int) (Result, error) {
	if resumePage < 1 {
		resumePage = 1
	}
	page := resumePage
	pagesCompleted := resumePage - 1
	// placeholder until the first response reports X-Pages; must cover the
	// resume page so a resumed walk actually issues its first request
	maxPages := resumePage
	etag := ""
	attempts := 0
	var raw []esiOrder
	var fetchedAt time.Time

	// Respect the upstream's declared freshness window before touching it.
	// Compliance requirement, not an optimization.
	state := f.states.Load(market.Name)
	if wait := time.Until(state.NextAllowedFetch); wait > 0 {
		log.Printf("[Fetcher] respecting ESI cache for %s: sleeping %.1fs before page %d",
			market.Name, (wait + f.cacheGrace).Seconds(), page)
		if err := sleepCtx(ctx, wait+f.cacheGrace); err != nil {
			return f.buildResult(raw, market, fetchedAt), err
		}
	}

	for pagesCompleted < maxPages && (f.overrideMaxPages == 0 || pagesCompleted < f.overrideMaxPages) {
		if ctx.Err() != nil {
			// cancellation is safe at page granularity: hand back what
			// completed pages accumulated so the caller can persist it
			return f.buildResult(raw, market, fetchedAt), ctx.Err()
		}

		resp, err := f.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token.AccessToken).
			SetHeader("If-None-Match", etag).
			Get(f.pageURL(market, page))
		if err != nil {
			// timeout or transport failure: transient, budgeted upstream
			// only once it sees the request, but still bounded here
			attempts++
			log.Printf("[Fetcher] error fetching %s page %d (attempt %d): %v", market.Name, page, attempts, err)
			if attempts >= f.retry.MaxAttempts {
				return f.buildResult(raw, market, fetchedAt),
					fmt.Errorf("page %d failed after %d attempts: %w", page, attempts, err)
			}
			if werr := f.retry.Wait(ctx, attempts); werr != nil {
				return f.buildResult(raw, market, fetchedAt), werr
			}
			continue
		}

		if resp.StatusCode() == http.StatusUnauthorized {
			log.Printf("[Fetcher] received 401 on %s page %d, token is invalid", market.Name, page)
			return f.buildResult(raw, market, fetchedAt), &SessionExpiredError{Page: page}
		}

		budgetLeft := headerInt(resp, "X-ESI-Error-Limit-Remain", -1)
		budgetReset := headerInt(resp, "X-ESI-Error-Limit-Reset", 0)

		if pages := headerInt(resp, "X-Pages", 0); pages > 0 {
			// re-read every page: volatile books change page count mid-walk
			maxPages = pages
		}

		// The new throttle always derives from the response's own expiry,
		// never from a locally computed offset.
		if expires, perr := http.ParseTime(resp.Header().Get("Expires")); perr == nil {
			state.LastFetchTime = time.Now().UTC()
			state.NextAllowedFetch = expires.Add(f.cacheGrace)
		}

		if newTag := resp.Header().Get("ETag"); newTag != "" && newTag != etag {
			etag = newTag
		}

		switch resp.StatusCode() {
		case http.StatusOK:
			var pageData []esiOrder
			if uerr := json.Unmarshal(resp.Body(), &pageData); uerr != nil {
				attempts++
				log.Printf("[Fetcher] unparseable body on %s page %d: %v", market.Name, page, uerr)
				if attempts >= f.retry.MaxAttempts {
					return f.buildResult(raw, market, fetchedAt),
						fmt.Errorf("page %d failed after %d attempts: %w", page, attempts, uerr)
				}
				if werr := f.retry.Wait(ctx, attempts); werr != nil {
					return f.buildResult(raw, market, fetchedAt), werr
				}
				continue
			}
			raw = append(raw, pageData...)
			fetchedAt = time.Now().UTC()

		case http.StatusNotModified:
			// content unchanged since the last walk; nothing to accumulate
			log.Printf("[Fetcher] received 304 for %s page %d", market.Name, page)
			fetchedAt = time.Now().UTC()

		default:
			attempts++
			log.Printf("[Fetcher] unhandled response code %d on %s page %d (attempt %d)",
				resp.StatusCode(), market.Name, page, attempts)
			if budgetLeft == 0 {
				f.saveState(market, state)
				return f.buildResult(raw, market, fetchedAt), ErrErrorBudgetExhausted
			}
			if attempts >= f.retry.MaxAttempts {
				return f.buildResult(raw, market, fetchedAt),
					fmt.Errorf("page %d failed after %d attempts: unhandled response code %d", page, attempts, resp.StatusCode())
			}
			if werr := f.retry.Wait(ctx, attempts); werr != nil {
				return f.buildResult(raw, market, fetchedAt), werr
			}
			continue
		}

		// Persist the throttle after every successful page so a crash
		// between pages does not lose it.
		f.saveState(market, state)

		if budgetLeft == 0 {
			log.Printf("[Fetcher] ESI error budget exhausted on %s page %d", market.Name, page)
			return f.buildResult(raw, market, fetchedAt), ErrErrorBudgetExhausted
		}
		if budgetLeft > 0 && budgetLeft <= f.lowWaterMark {
			log.Printf("[Fetcher] approaching ESI error limit (%d left), pausing %ds", budgetLeft, budgetReset+1)
			if werr := sleepCtx(ctx, time.Duration(budgetReset+1)*time.Second); werr != nil {
				return f.buildResult(raw, market, fetchedAt), werr
			}
		}

		log.Printf("[Fetcher] %s page %d of %d done", market.Name, page, maxPages)
		attempts = 0
		pagesCompleted++
		page++
	}

	return f.buildResult(raw, market, fetchedAt), nil
}

func (f *Fetcher) saveState(market models.Market, state models.CacheState) {
	if err := f.states.Save(market.Name, state); err != nil {
		// throttle only; a missed save costs a premature fetch, not data
		log.Printf("[Fetcher] failed to save cache state for %s: %v", market.Name, err)
	}
}

// buildResult converts raw entries to typed orders, keeping only the hub
// station's orders for hub markets. Structure results belong to the
// structure by construction. Both sides are kept; the sell-only rule is
// applied where prices are derived, not here.
func (f *Fetcher) buildResult(raw []esiOrder, market models.Market, fetchedAt time.Time) Result {
	orders := make([]models.MarketOrder, 0, len(raw))
	for _, o := range raw {
		if !market.IsStructure() && o.LocationID != market.StationID {
			continue
		}
		orders = append(orders, models.MarketOrder{
			TypeID:       o.TypeID,
			VolumeRemain: o.VolumeRemain,
			Price:        o.Price,
			IsBuyOrder:   o.IsBuyOrder,
		})
	}
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	return Result{Orders: orders, FetchedAt: fetchedAt}
}

func headerInt(resp *resty.Response, name string, fallback int) int {
	v := resp.Header().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
