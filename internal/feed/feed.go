// Package feed pulls live prices from a KIS-style brokerage REST API.
// When a feed is configured it is authoritative and the daily price
// simulation is not started; the poller refreshes catalog prices at
// most once per minute during market hours.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/metrics"
	"github.com/classstock/trading-engine/internal/simclock"
)

// ErrNotConfigured is returned when the feed is used without
// credentials.
var ErrNotConfigured = errors.New("feed: app key and secret not configured")

// Client is a minimal KIS open-API client: bearer tokens with cached
// expiry, one quote endpoint.
type Client struct {
	baseURL   string
	appKey    string
	appSecret string
	cli       *http.Client
	now       func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates a feed client. Returns ErrNotConfigured when either
// credential is empty so the caller can fall back to simulation.
func NewClient(baseURL, appKey, appSecret string) (*Client, error) {
	if appKey == "" || appSecret == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		appKey:    appKey,
		appSecret: appSecret,
		cli:       &http.Client{Timeout: 8 * time.Second},
		now:       time.Now,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// accessToken returns a cached token, refreshing when within an hour of
// expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	body := fmt.Sprintf(`{"grant_type":"client_credentials","appkey":%q,"appsecret":%q}`,
		c.appKey, c.appSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth2/tokenP", strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.cli.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("feed: token request failed: %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}

	c.token = tok.AccessToken
	// Refresh an hour early.
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn-3600) * time.Second)
	return c.token, nil
}

type quoteResponse struct {
	Output struct {
		Price string `json:"stck_prpr"` // current price, won
	} `json:"output"`
}

// FetchPrices returns current prices for the given codes. Codes the
// feed cannot quote are omitted from the result rather than failing
// the whole batch.
func (c *Client) FetchPrices(ctx context.Context, codes []string) (map[string]decimal.Decimal, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(codes))
	for _, code := range codes {
		price, err := c.fetchQuote(ctx, token, code)
		if err != nil {
			slog.Warn("feed quote failed", "code", code, "err", err)
			continue
		}
		prices[code] = price
	}
	return prices, nil
}

func (c *Client) fetchQuote(ctx context.Context, token, code string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/uapi/domestic-stock/v1/quotations/inquire-price?"+params.Encode(), nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	req.Header.Set("tr_id", "FHKST01010100")

	resp, err := c.cli.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("feed: quote failed: %d", resp.StatusCode)
	}

	var q quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return decimal.Decimal{}, err
	}
	price, err := decimal.NewFromString(q.Output.Price)
	if err != nil || !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("feed: bad price %q for %s", q.Output.Price, code)
	}
	return price, nil
}

// MarketOpen reports whether the KRX market is open at t:
// Monday–Friday, 09:00–15:30 KST.
func MarketOpen(t time.Time) bool {
	t = t.In(simclock.KST)
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := t.Hour()*60 + t.Minute()
	return minutes >= 9*60 && minutes <= 15*60+30
}

// Run refreshes catalog prices once per minute while the market is
// open, until the context is cancelled. Must be called in a goroutine.
func (c *Client) Run(ctx context.Context, cat *catalog.Catalog) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !MarketOpen(c.now()) {
				continue
			}
			prices, err := c.FetchPrices(ctx, cat.Codes())
			if err != nil {
				slog.Error("feed refresh failed", "err", err)
				continue
			}
			for code, price := range prices {
				if err := cat.SetPrice(code, price); err != nil {
					slog.Warn("feed price skipped", "code", code, "err", err)
				}
			}
			metrics.FeedRefreshesTotal.Inc()
			slog.Info("catalog refreshed from feed", "quotes", len(prices))
		}
	}
}
