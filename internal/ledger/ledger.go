// Package ledger applies buy/sell mutations to a student account under
// the money-conservation invariants: cash never goes negative, holding
// quantities never go negative, and a zero-quantity holding never stays
// in the map.
//
// Both operations are atomic from the caller's perspective — the full
// precondition set passes and the full effect is applied, or the
// account is left untouched and a sentinel error is returned. Partial
// fills are not supported.
package ledger

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/model"
)

var (
	// ErrInvalidQuantity is returned for non-positive trade quantities.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

	// ErrInsufficientFunds is returned when cash cannot cover
	// quantity*unitPrice + commission on a buy, or when a sell's
	// commission exceeds its gross proceeds.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientHoldings is returned when the account holds fewer
	// shares than the sell quantity, or none at all.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")
)

// ApplyBuy debits quantity*unitPrice + commission from cash and merges
// the shares into the holding for code.
//
// When a holding already exists its average cost is recomputed as the
// quantity-weighted mean of the old position and the new lot:
//
//	newAvg = (oldAvg*oldQty + unitPrice*qty) / (oldQty + qty)
func ApplyBuy(acct *model.StudentAccount, code string, quantity int64, unitPrice, commission decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	qty := decimal.NewFromInt(quantity)
	totalCost := unitPrice.Mul(qty).Add(commission)
	if acct.Cash.LessThan(totalCost) {
		return ErrInsufficientFunds
	}

	acct.Cash = acct.Cash.Sub(totalCost)

	if acct.Holdings == nil {
		acct.Holdings = make(map[string]model.Holding)
	}

	h, ok := acct.Holdings[code]
	if ok {
		newQty := h.Quantity + quantity
		merged := h.AverageCost.Mul(decimal.NewFromInt(h.Quantity)).Add(unitPrice.Mul(qty))
		h.Quantity = newQty
		h.AverageCost = merged.Div(decimal.NewFromInt(newQty))
	} else {
		h = model.Holding{StockCode: code, Quantity: quantity, AverageCost: unitPrice}
	}
	acct.Holdings[code] = h
	return nil
}

// ApplySell credits quantity*unitPrice - commission to cash and removes
// the shares from the holding. The average cost of the remaining
// position is never recomputed on a sell; only the quantity shrinks.
// Selling the full position deletes the holding entry — a retained
// zero-quantity entry would corrupt "owns this stock" checks and leak
// entries over many round-trip trades.
func ApplySell(acct *model.StudentAccount, code string, quantity int64, unitPrice, commission decimal.Decimal) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	h, ok := acct.Holdings[code]
	if !ok || h.Quantity < quantity {
		return ErrInsufficientHoldings
	}

	proceeds := unitPrice.Mul(decimal.NewFromInt(quantity)).Sub(commission)
	if proceeds.IsNegative() {
		// A commission above the gross proceeds would pull cash below
		// zero. The rate is bounded at the API boundary; this guard
		// keeps the invariant even for a direct caller.
		return ErrInsufficientFunds
	}
	acct.Cash = acct.Cash.Add(proceeds)

	if h.Quantity == quantity {
		delete(acct.Holdings, code)
		return nil
	}
	h.Quantity -= quantity
	acct.Holdings[code] = h
	return nil
}
