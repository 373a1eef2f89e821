package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultRatesURL = "https://www.bot.go.tz/api/exchangerates"

// RateStore keeps the last live rate across restarts.
type RateStore interface {
	LastUSDRate(ctx context.Context) (decimal.Decimal, error)
	SaveUSDRate(ctx context.Context, rate decimal.Decimal) error
}

// RateSource serves the TZS per USD rate published by the Bank of Tanzania.
// Lookups are cached for ttl. When a fetch fails the last stored rate is used,
// then the configured fallback.
type RateSource struct {
	url      string
	fallback decimal.Decimal
	ttl      time.Duration
	client   *http.Client
	store    RateStore
	log      *zap.Logger
	now      func() time.Time

	mu        sync.Mutex
	rate      decimal.Decimal
	fetchedAt time.Time
}

func NewRateSource(url string, fallback decimal.Decimal, ttl time.Duration, logger *zap.Logger) *RateSource {
	if url == "" {
		url = defaultRatesURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateSource{
		url:      url,
		fallback: fallback,
		ttl:      ttl,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      logger.Named("rates"),
		now:      time.Now,
	}
}

// WithStore makes the source remember live rates in store.
func (r *RateSource) WithStore(store RateStore) *RateSource {
	r.store = store
	return r
}

type botRates struct {
	Rates struct {
		USD json.Number `json:"USD"`
	} `json:"rates"`
}

// USDRate returns TZS per 1 USD and whether it came from the live source.
func (r *RateSource) USDRate(ctx context.Context) (decimal.Decimal, bool) {
	r.mu.Lock()
	if !r.rate.IsZero() && r.now().Sub(r.fetchedAt) < r.ttl {
		rate := r.rate
		r.mu.Unlock()
		return rate, true
	}
	r.mu.Unlock()

	rate, err := r.fetch(ctx)
	if err != nil {
		if r.store != nil {
			if last, serr := r.store.LastUSDRate(ctx); serr == nil && last.IsPositive() {
				r.log.Warn("exchange rate unavailable, using last stored rate", zap.Error(err), zap.String("rate", last.String()))
				return last, false
			}
		}
		r.log.Warn("exchange rate unavailable, using fallback", zap.Error(err), zap.String("fallback", r.fallback.String()))
		return r.fallback, false
	}
	r.mu.Lock()
	r.rate, r.fetchedAt = rate, r.now()
	r.mu.Unlock()
	if r.store != nil {
		if err := r.store.SaveUSDRate(ctx, rate); err != nil {
			r.log.Warn("store exchange rate", zap.Error(err))
		}
	}
	return rate, true
}

func (r *RateSource) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rates: status %d", resp.StatusCode)
	}
	var body botRates
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("rates: %w", err)
	}
	rate, err := decimal.NewFromString(body.Rates.USD.String())
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("rates: bad USD rate %q", body.Rates.USD)
	}
	return rate, nil
}

// ConvertTZSToUSD divides by the rate and rounds to cents.
func ConvertTZSToUSD(tzs, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return tzs.DivRound(rate, 8).Round(2)
}
