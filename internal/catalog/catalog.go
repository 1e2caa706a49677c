// Package catalog holds the current price for every tradable stock.
//
// The catalog is an explicit dependency threaded into every consumer —
// never ambient global state — so the single-writer requirement on
// price mutation stays auditable. It never talks to persistence itself;
// the caller decides whether a price change is persisted.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/model"
)

// ErrUnknownStock is returned when a code is not in the catalog.
var ErrUnknownStock = errors.New("catalog: unknown stock code")

// Catalog is a concurrency-safe in-memory price table. Reads happen on
// every valuation; writes only from the simulation clock or a feed.
type Catalog struct {
	mu     sync.RWMutex
	stocks map[string]model.Stock
	order  []string // insertion order, for stable snapshots
}

// New creates a catalog seeded with the given stocks.
func New(stocks []model.Stock) *Catalog {
	c := &Catalog{stocks: make(map[string]model.Stock, len(stocks))}
	for _, s := range stocks {
		if _, ok := c.stocks[s.Code]; !ok {
			c.order = append(c.order, s.Code)
		}
		c.stocks[s.Code] = s
	}
	return c
}

// Get returns the current price for a stock code.
func (c *Catalog) Get(code string) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stocks[code]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrUnknownStock, code)
	}
	return s.Price, nil
}

// Lookup returns the full stock entry for a code.
func (c *Catalog) Lookup(code string) (model.Stock, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stocks[code]
	if !ok {
		return model.Stock{}, fmt.Errorf("%w: %s", ErrUnknownStock, code)
	}
	return s, nil
}

// SetPrice replaces the price of a single entry.
func (c *Catalog) SetPrice(code string, price decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stocks[code]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStock, code)
	}
	s.Price = price
	c.stocks[code] = s
	return nil
}

// Snapshot returns all entries in insertion order.
func (c *Catalog) Snapshot() []model.Stock {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Stock, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.stocks[code])
	}
	return out
}

// Codes returns all stock codes, sorted.
func (c *Catalog) Codes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	codes := make([]string, 0, len(c.stocks))
	for code := range c.stocks {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
