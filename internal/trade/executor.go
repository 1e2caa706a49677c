// Package trade validates and executes buy/sell orders and bonus
// grants, delegating account mutation to the ledger and recording
// immutable transactions.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/ledger"
	"github.com/classstock/trading-engine/internal/metrics"
	"github.com/classstock/trading-engine/internal/model"
	"github.com/classstock/trading-engine/internal/simclock"
	"github.com/classstock/trading-engine/internal/store"
)

var (
	// ErrOutsideActivityWindow is returned when "now" is outside the
	// class's activity date range.
	ErrOutsideActivityWindow = errors.New("trade: outside class activity window")

	// ErrInvalidKind is returned for a trade kind that is neither buy
	// nor sell.
	ErrInvalidKind = errors.New("trade: kind must be buy or sell")

	// ErrInvalidBonusAmount is returned when a bonus amount falls
	// outside the 1..10,000,000 policy bounds.
	ErrInvalidBonusAmount = errors.New("trade: bonus amount must be between 1 and 10,000,000")

	// ErrStockNotAllowed is returned when a buy targets a stock outside
	// the class's allowed list.
	ErrStockNotAllowed = errors.New("trade: stock not in class allowed list")
)

// Bonus amount policy bounds. These live at this boundary, not in the
// invariant-bearing ledger core.
var (
	minBonus = decimal.NewFromInt(1)
	maxBonus = decimal.NewFromInt(10_000_000)
)

var pctDivisor = decimal.NewFromInt(100)

// Service executes trades and bonus grants against the store-backed
// accounts and the price catalog. A single mutex serializes account
// mutations (single-instance deployment). For horizontal scaling,
// replace with per-account locking or store-level optimistic
// concurrency.
type Service struct {
	store store.Store
	cat   *catalog.Catalog
	now   func() time.Time
	mu    sync.Mutex
	wsHub *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new trade service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, cat *catalog.Catalog, hub *WSHub) *Service {
	return &Service{
		store: st,
		cat:   cat,
		now:   time.Now,
		wsHub: hub,
	}
}

// Execute validates and applies one buy/sell order:
//
//  1. reject outside the class activity window
//  2. look up the current catalog price
//  3. compute commission, truncated toward zero so it never exceeds
//     the nominal percentage of trade value
//  4. delegate the mutation to the ledger
//  5. persist the account, then append the immutable transaction
//
// Business failures come back as sentinel errors; persistence failures
// are wrapped separately so callers can retry the write without
// re-validating business rules.
func (s *Service) Execute(ctx context.Context, studentID, stockCode string, quantity int64, kind string) (*model.Transaction, error) {
	if kind != model.KindBuy && kind != model.KindSell {
		return nil, ErrInvalidKind
	}
	if quantity <= 0 {
		return nil, ledger.ErrInvalidQuantity
	}

	start := time.Now()
	defer func() {
		metrics.TradeLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	// Serialize account mutations.
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	class, err := s.store.GetClass(ctx, acct.ClassID)
	if err != nil {
		return nil, err
	}

	if !activityActive(class, s.now()) {
		return nil, ErrOutsideActivityWindow
	}

	stock, err := s.cat.Lookup(stockCode)
	if err != nil {
		return nil, err
	}

	// Only buys are filtered by the class universe; a student can
	// always exit a position even after the code is removed from the
	// list.
	if kind == model.KindBuy && !stockAllowed(class, stockCode) {
		return nil, ErrStockNotAllowed
	}

	commission := Commission(class, stock.Price, quantity)

	switch kind {
	case model.KindBuy:
		err = ledger.ApplyBuy(acct, stockCode, quantity, stock.Price, commission)
	case model.KindSell:
		err = ledger.ApplySell(acct, stockCode, quantity, stock.Price, commission)
	}
	if err != nil {
		metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	if err := s.store.UpdateStudent(ctx, acct); err != nil {
		return nil, fmt.Errorf("persist account: %w", err)
	}

	tx := &model.Transaction{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Kind:      kind,
		StockCode: stockCode,
		StockName: stock.Name,
		Quantity:  quantity,
		UnitPrice: stock.Price,
		Timestamp: s.now().UTC(),
	}
	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}

	metrics.TradesTotal.WithLabelValues(kind).Inc()
	slog.Info("trade executed",
		"tx_id", tx.ID,
		"student", studentID,
		"stock", stockCode,
		"kind", kind,
		"qty", quantity,
		"unit_price", stock.Price.String(),
		"commission", commission.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "trade_executed",
			StudentID: studentID,
			StockCode: stockCode,
			Kind:      kind,
			Quantity:  quantity,
			UnitPrice: stock.Price.String(),
		})
	}
	return tx, nil
}

// GrantBonus injects cash into each recipient account and records one
// bonus transaction per recipient. The grant is not deduplicated —
// calling twice grants twice; the caller controls fan-out. Recipients
// that no longer exist are skipped.
func (s *Service) GrantBonus(ctx context.Context, studentIDs []string, amount decimal.Decimal, reason string) ([]model.Transaction, error) {
	if amount.LessThan(minBonus) || amount.GreaterThan(maxBonus) {
		return nil, ErrInvalidBonusAmount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var granted []model.Transaction
	for _, studentID := range studentIDs {
		acct, err := s.store.GetStudent(ctx, studentID)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				continue
			}
			return granted, err
		}

		acct.Cash = acct.Cash.Add(amount)
		if err := s.store.UpdateStudent(ctx, acct); err != nil {
			return granted, fmt.Errorf("persist account: %w", err)
		}

		tx := model.Transaction{
			ID:        uuid.New().String(),
			StudentID: studentID,
			Kind:      model.KindBonus,
			StockCode: model.BonusStockCode,
			StockName: "Class Bonus",
			Quantity:  1,
			UnitPrice: amount,
			Timestamp: s.now().UTC(),
			Reason:    reason,
		}
		if err := s.store.InsertTransaction(ctx, &tx); err != nil {
			return granted, fmt.Errorf("record transaction: %w", err)
		}

		granted = append(granted, tx)
		metrics.BonusGrantsTotal.Inc()
	}

	slog.Info("bonus granted",
		"recipients", len(granted),
		"amount", amount.String(),
		"reason", reason,
	)

	if s.wsHub != nil && len(granted) > 0 {
		s.wsHub.Broadcast(WSMessage{
			Type:      "bonus_granted",
			Quantity:  int64(len(granted)),
			UnitPrice: amount.String(),
		})
	}
	return granted, nil
}

// Commission returns trunc(price*quantity*rate/100) when the class has
// commission enabled, zero otherwise.
func Commission(class *model.ClassConfig, price decimal.Decimal, quantity int64) decimal.Decimal {
	if !class.Commission.Enabled {
		return decimal.Zero
	}
	return price.
		Mul(decimal.NewFromInt(quantity)).
		Mul(class.Commission.RatePercent).
		Div(pctDivisor).
		Truncate(0)
}

// stockAllowed reports whether the class universe permits buying code.
// An empty list means the whole catalog is tradable.
func stockAllowed(class *model.ClassConfig, code string) bool {
	if len(class.AllowedStocks) == 0 {
		return true
	}
	for _, c := range class.AllowedStocks {
		if c == code {
			return true
		}
	}
	return false
}

// activityActive reports whether now falls inside the class's activity
// window: [start 00:00, end 24:00) in KST, i.e. the whole end day is
// included.
func activityActive(class *model.ClassConfig, now time.Time) bool {
	start, err := time.ParseInLocation(simclock.DateFormat, class.ActivityStart, simclock.KST)
	if err != nil {
		return false
	}
	end, err := time.ParseInLocation(simclock.DateFormat, class.ActivityEnd, simclock.KST)
	if err != nil {
		return false
	}

	now = now.In(simclock.KST)
	return !now.Before(start) && now.Before(end.AddDate(0, 0, 1))
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrInsufficientHoldings):
		return "insufficient_holdings"
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return "invalid_quantity"
	default:
		return "other"
	}
}
