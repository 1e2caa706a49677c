// Package model defines the core domain types shared across the trading
// engine. All monetary values use shopspring/decimal — never float64 for
// money. Amounts are whole won.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction kinds. BonusStockCode is the sentinel code recorded on
// bonus transactions, which carry no real stock.
const (
	KindBuy   = "buy"
	KindSell  = "sell"
	KindBonus = "bonus"

	BonusStockCode = "BONUS"
)

// Stock is one tradable entry in the price catalog. The code is the
// identity and never changes; only the price is mutated, by the daily
// simulation clock or an external feed.
type Stock struct {
	Code  string          `json:"code" db:"code"`
	Name  string          `json:"name" db:"name"`
	Price decimal.Decimal `json:"price" db:"price"`
}

// Commission holds a class's commission terms. RatePercent is a
// percentage of trade value, e.g. 0.1 for 0.1%.
type Commission struct {
	Enabled     bool            `json:"enabled"`
	RatePercent decimal.Decimal `json:"rate_percent"`
}

// ClassConfig is a teacher-created class. SeedMoney becomes immutable
// once a student has enrolled: changing it retroactively would corrupt
// every already-computed profit baseline.
type ClassConfig struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	ActivityStart string          `json:"activity_start" db:"activity_start"` // YYYY-MM-DD, KST
	ActivityEnd   string          `json:"activity_end" db:"activity_end"`     // YYYY-MM-DD, KST, inclusive
	SeedMoney     decimal.Decimal `json:"seed_money" db:"seed_money"`
	AllowedStocks []string        `json:"allowed_stocks"` // stock codes, at most 10
	Commission    Commission      `json:"commission"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Holding is one position in a student's portfolio. A holding exists
// only while Quantity > 0; selling down to zero removes the entry.
// AverageCost is the quantity-weighted mean of all buy prices merged
// into the position; sells never change it.
type Holding struct {
	StockCode   string          `json:"stock_code"`
	Quantity    int64           `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// StudentAccount is the persisted account entity. It carries only real
// state — cash and holdings. Derived valuation numbers live in
// ValuationView and are never written back onto the account.
type StudentAccount struct {
	ID       string             `json:"id" db:"id"`
	Nickname string             `json:"nickname" db:"nickname"`
	ClassID  string             `json:"class_id" db:"class_id"`
	Cash     decimal.Decimal    `json:"cash" db:"cash"`
	Holdings map[string]Holding `json:"holdings"` // stock code → holding
}

// Transaction is an immutable record of a trade or bonus grant. Once
// created, these are never modified or reordered, only appended — and
// bulk-removed when a teacher deletes the account.
//
// Bonus grants are recorded with StockCode = BonusStockCode,
// Quantity = 1 and UnitPrice = the granted amount, so the bonus total
// can be reconstructed from the history alone.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	StudentID string          `json:"student_id" db:"student_id"`
	Kind      string          `json:"kind" db:"kind"` // buy | sell | bonus
	StockCode string          `json:"stock_code" db:"stock_code"`
	StockName string          `json:"stock_name" db:"stock_name"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
	Reason    string          `json:"reason,omitempty" db:"reason"`
}

// ValuationView is the computed, non-persisted valuation of one account
// against current catalog prices. It is a pure function of
// (account, class, catalog, history) and is recomputed by every
// consumer that needs a fresh snapshot.
type ValuationView struct {
	Account              StudentAccount  `json:"account"`
	TotalAssets          decimal.Decimal `json:"total_assets"`
	TotalProfit          decimal.Decimal `json:"total_profit"`
	TotalProfitRate      decimal.Decimal `json:"total_profit_rate"`
	BonusTotal           decimal.Decimal `json:"bonus_total"`
	InvestmentProfit     decimal.Decimal `json:"investment_profit"`
	InvestmentProfitRate decimal.Decimal `json:"investment_profit_rate"`
}
