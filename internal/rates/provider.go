// Package rates supplies the USD to INR conversion rate. Fetched rates are
// persisted by date and cached; when the remote quote service is unreachable
// the provider degrades to a fixed fallback instead of failing the caller.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"rovledger/internal/core"
)

// FallbackRate is returned when the remote fetch fails for any reason. The
// ledger keeps functioning on a stale or default rate rather than blocking on
// a network dependency.
const FallbackRate = 83.0

const DefaultAPIURL = "https://api.frankfurter.app/latest?from=USD&to=INR"

const cacheKey = "usd-inr"

// Store is the slice of the ledger store the provider needs.
type Store interface {
	LatestRate(ctx context.Context) (core.ExchangeRate, error)
	UpsertRate(ctx context.Context, date core.Date, rate float64) error
}

type Provider struct {
	store  Store
	client *http.Client
	apiURL string
	cache  *cache.Cache
	now    func() time.Time
}

func NewProvider(store Store, apiURL string, timeout time.Duration) *Provider {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Provider{
		store:  store,
		client: &http.Client{Timeout: timeout},
		apiURL: apiURL,
		cache:  cache.New(24*time.Hour, 48*time.Hour),
		now:    time.Now,
	}
}

// Latest returns the most recent stored rate by date, fetching and storing a
// fresh one when nothing is stored yet. The error covers store failures only;
// fetch failures are absorbed into the fallback.
func (p *Provider) Latest(ctx context.Context) (float64, error) {
	if v, found := p.cache.Get(cacheKey); found {
		return v.(float64), nil
	}

	stored, err := p.store.LatestRate(ctx)
	if err == nil {
		p.cache.Set(cacheKey, stored.USDToINR, cache.DefaultExpiration)
		return stored.USDToINR, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return 0, fmt.Errorf("read stored rate: %w", err)
	}

	return p.Refresh(ctx), nil
}

// frankfurterResponse is the shape of the quote service payload.
type frankfurterResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// Refresh fetches the current rate from the quote service and upserts it
// under today's date. It never returns an error: transport or parse failures
// are logged and mapped to FallbackRate, leaving the store untouched.
func (p *Provider) Refresh(ctx context.Context) float64 {
	rate, err := p.fetch(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Exchange rate fetch failed, using fallback",
			"error", err, "fallback", FallbackRate)
		return FallbackRate
	}

	today := core.Date{Time: p.now().UTC().Truncate(24 * time.Hour)}
	if err := p.store.UpsertRate(ctx, today, rate); err != nil {
		slog.WarnContext(ctx, "Failed to store fetched exchange rate", "error", err)
	}
	p.cache.Set(cacheKey, rate, cache.DefaultExpiration)

	slog.InfoContext(ctx, "Fetched exchange rate", "usd_to_inr", rate)
	return rate
}

func (p *Provider) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote service returned %s", resp.Status)
	}

	var payload frankfurterResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode rate response: %w", err)
	}

	rate, ok := payload.Rates["INR"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("rate response missing INR quote")
	}
	return rate, nil
}

// RunRefresher re-fetches the rate on an interval until the context ends.
// Meant to be run under an errgroup alongside the HTTP server.
func (p *Provider) RunRefresher(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}
