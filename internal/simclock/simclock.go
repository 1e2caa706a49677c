// Package simclock advances catalog prices once per elapsed trading
// day, modeling end-of-day settlement when no live price feed is
// configured.
//
// Day boundaries are evaluated in KST regardless of the host timezone,
// with a 16:10 cutoff. The clock is idempotent per calendar day: it is
// safe to trigger redundantly, and duplicate triggers after a day has
// already advanced are no-ops.
package simclock

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/metrics"
)

// KST is the fixed market timezone. All day-boundary and activity
// window decisions are made against it.
var KST = time.FixedZone("KST", 9*60*60)

// DateFormat is the calendar-date format used for the advance gate.
// Dates in this format compare correctly as plain strings.
const DateFormat = "2006-01-02"

// Cutoff: prices settle at 16:10 KST, after market close.
const (
	cutoffHour   = 16
	cutoffMinute = 10
)

var (
	hundred  = decimal.NewFromInt(100)
	minPrice = decimal.NewFromInt(100)
)

// SaveFunc persists the last-advance date. The clock never fails on a
// save error; it is logged and retried implicitly on the next advance.
type SaveFunc func(ctx context.Context, date string) error

// Clock drives the daily price movement. Now and Rand are injectable
// for tests and default to the wall clock and a time-seeded source.
type Clock struct {
	Now  func() time.Time
	Rand *rand.Rand

	cat  *catalog.Catalog
	save SaveFunc

	mu          sync.Mutex
	lastAdvance string // YYYY-MM-DD in KST, "" if never advanced
}

// New creates a clock over the catalog. lastAdvance is the persisted
// date read once at process start, or "" when no state exists — the
// clock then assumes "never advanced" and proceeds.
func New(cat *catalog.Catalog, lastAdvance string, save SaveFunc) *Clock {
	return &Clock{
		Now:         time.Now,
		Rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		cat:         cat,
		save:        save,
		lastAdvance: lastAdvance,
	}
}

// LastAdvance returns the date of the most recent advance, "" if none.
func (c *Clock) LastAdvance() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAdvance
}

// Advance moves every catalog price by a bounded random percentage if a
// trading day has elapsed past the cutoff. Returns true when prices
// moved. At most one movement happens per elapsed KST day.
func (c *Clock) Advance(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.Now().In(KST)
	today := now.Format(DateFormat)
	cutoffPassed := now.Hour() > cutoffHour ||
		(now.Hour() == cutoffHour && now.Minute() >= cutoffMinute)

	needsAdvance := cutoffPassed && (c.lastAdvance == "" || c.lastAdvance < today)
	if !needsAdvance {
		if c.lastAdvance == "" {
			// First run before cutoff: mark yesterday so a later call
			// on the same day still triggers exactly once after cutoff.
			c.setLastAdvance(ctx, now.AddDate(0, 0, -1).Format(DateFormat))
		}
		return false
	}

	for _, stock := range c.cat.Snapshot() {
		// Uniform in [-4.5%, +5.5%]. The asymmetry, biasing slightly
		// upward over many days, is intentional.
		pct := (c.Rand.Float64() - 0.45) * 0.1
		newPrice := drift(stock.Price, pct)
		if err := c.cat.SetPrice(stock.Code, newPrice); err != nil {
			slog.Error("price advance skipped", "code", stock.Code, "err", err)
		}
	}

	c.setLastAdvance(ctx, today)
	metrics.PriceAdvancesTotal.Inc()
	slog.Info("daily prices advanced", "date", today, "stocks", len(c.cat.Snapshot()))
	return true
}

// drift applies a percentage move, rounds to the nearest 100 won and
// floors at 100 won.
func drift(price decimal.Decimal, pct float64) decimal.Decimal {
	moved := price.Mul(decimal.NewFromFloat(1 + pct))
	rounded := moved.Div(hundred).Round(0).Mul(hundred)
	if rounded.LessThan(minPrice) {
		return minPrice
	}
	return rounded
}

func (c *Clock) setLastAdvance(ctx context.Context, date string) {
	c.lastAdvance = date
	if c.save == nil {
		return
	}
	if err := c.save(ctx, date); err != nil {
		slog.Error("failed to persist clock state", "date", date, "err", err)
	}
}

// Run triggers Advance every minute until the context is cancelled.
// onAdvance, if non-nil, runs after each actual price movement. Must be
// called in a goroutine.
func (c *Clock) Run(ctx context.Context, onAdvance func()) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Advance(ctx) && onAdvance != nil {
				onAdvance()
			}
		}
	}
}
