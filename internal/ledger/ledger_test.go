package ledger_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/ledger"
	"github.com/classstock/trading-engine/internal/model"
)

func d(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

func newAccount(cash int64) *model.StudentAccount {
	return &model.StudentAccount{
		ID:       "s1",
		Nickname: "mina",
		ClassID:  "c1",
		Cash:     d(cash),
		Holdings: map[string]model.Holding{},
	}
}

func TestApplyBuy_NewHolding(t *testing.T) {
	acct := newAccount(1_000_000)

	// 10 shares at 70,000 with 700 commission (0.1% of 700,000).
	if err := ledger.ApplyBuy(acct, "005930", 10, d(70_000), d(700)); err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if !acct.Cash.Equal(d(299_300)) {
		t.Errorf("cash = %s, want 299300", acct.Cash)
	}
	h, ok := acct.Holdings["005930"]
	if !ok {
		t.Fatal("expected holding for 005930")
	}
	if h.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", h.Quantity)
	}
	if !h.AverageCost.Equal(d(70_000)) {
		t.Errorf("average cost = %s, want 70000", h.AverageCost)
	}
}

func TestApplyBuy_WeightedAverage(t *testing.T) {
	acct := newAccount(10_000_000)

	if err := ledger.ApplyBuy(acct, "005930", 10, d(70_000), decimal.Zero); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	// Unrelated trade in between must not disturb the average.
	if err := ledger.ApplyBuy(acct, "000660", 3, d(150_000), decimal.Zero); err != nil {
		t.Fatalf("unrelated buy: %v", err)
	}
	if err := ledger.ApplyBuy(acct, "005930", 5, d(82_000), decimal.Zero); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	h := acct.Holdings["005930"]
	if h.Quantity != 15 {
		t.Fatalf("quantity = %d, want 15", h.Quantity)
	}
	// (10*70000 + 5*82000) / 15 = 74000
	if !h.AverageCost.Equal(d(74_000)) {
		t.Errorf("average cost = %s, want 74000", h.AverageCost)
	}
}

func TestApplyBuy_InsufficientFunds(t *testing.T) {
	acct := newAccount(1_000_000)

	err := ledger.ApplyBuy(acct, "005930", 20, d(70_000), decimal.Zero)
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	// Account must be untouched on failure.
	if !acct.Cash.Equal(d(1_000_000)) {
		t.Errorf("cash changed on failed buy: %s", acct.Cash)
	}
	if len(acct.Holdings) != 0 {
		t.Errorf("holdings created on failed buy: %v", acct.Holdings)
	}
}

func TestApplyBuy_InvalidQuantity(t *testing.T) {
	acct := newAccount(1_000_000)

	for _, qty := range []int64{0, -5} {
		if err := ledger.ApplyBuy(acct, "005930", qty, d(70_000), decimal.Zero); !errors.Is(err, ledger.ErrInvalidQuantity) {
			t.Errorf("qty %d: err = %v, want ErrInvalidQuantity", qty, err)
		}
	}
}

func TestApplySell_Partial(t *testing.T) {
	acct := newAccount(0)
	acct.Holdings["005930"] = model.Holding{StockCode: "005930", Quantity: 10, AverageCost: d(70_000)}

	// Sell 4 at 80,000 with no commission.
	if err := ledger.ApplySell(acct, "005930", 4, d(80_000), decimal.Zero); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if !acct.Cash.Equal(d(320_000)) {
		t.Errorf("cash = %s, want 320000", acct.Cash)
	}
	h := acct.Holdings["005930"]
	if h.Quantity != 6 {
		t.Errorf("quantity = %d, want 6", h.Quantity)
	}
	// Sells never recompute the average.
	if !h.AverageCost.Equal(d(70_000)) {
		t.Errorf("average cost = %s, want 70000", h.AverageCost)
	}
}

func TestApplySell_FullPositionPrunesHolding(t *testing.T) {
	acct := newAccount(0)
	acct.Holdings["005930"] = model.Holding{StockCode: "005930", Quantity: 10, AverageCost: d(70_000)}

	if err := ledger.ApplySell(acct, "005930", 10, d(70_000), decimal.Zero); err != nil {
		t.Fatalf("sell failed: %v", err)
	}

	if _, ok := acct.Holdings["005930"]; ok {
		t.Error("zero-quantity holding must be removed from the map")
	}
}

func TestApplySell_CommissionAboveProceeds(t *testing.T) {
	acct := newAccount(0)
	acct.Holdings["005930"] = model.Holding{StockCode: "005930", Quantity: 1, AverageCost: d(70_000)}

	// Commission triple the sale value must not pull cash below zero.
	err := ledger.ApplySell(acct, "005930", 1, d(70_000), d(210_000))
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	if !acct.Cash.IsZero() {
		t.Errorf("cash = %s, want 0", acct.Cash)
	}
	if h := acct.Holdings["005930"]; h.Quantity != 1 {
		t.Errorf("holding mutated on rejected sell: %+v", h)
	}
}

func TestApplySell_InsufficientHoldings(t *testing.T) {
	acct := newAccount(50_000)
	acct.Holdings["005930"] = model.Holding{StockCode: "005930", Quantity: 3, AverageCost: d(70_000)}

	if err := ledger.ApplySell(acct, "005930", 5, d(70_000), decimal.Zero); !errors.Is(err, ledger.ErrInsufficientHoldings) {
		t.Fatalf("err = %v, want ErrInsufficientHoldings", err)
	}
	if err := ledger.ApplySell(acct, "035420", 1, d(70_000), decimal.Zero); !errors.Is(err, ledger.ErrInsufficientHoldings) {
		t.Fatalf("unheld stock: err = %v, want ErrInsufficientHoldings", err)
	}

	if !acct.Cash.Equal(d(50_000)) {
		t.Errorf("cash changed on failed sell: %s", acct.Cash)
	}
	if acct.Holdings["005930"].Quantity != 3 {
		t.Errorf("quantity changed on failed sell")
	}
}

// TestConservation round-trips a sequence of trades at fixed prices and
// checks that cash plus position value differs from the start by
// exactly the commissions paid — no principal appears or vanishes.
func TestConservation(t *testing.T) {
	acct := newAccount(1_000_000)
	price := d(50_000)
	commission := d(100) // flat per trade for the test

	steps := []struct {
		kind string
		qty  int64
	}{
		{"buy", 8}, {"sell", 3}, {"buy", 5}, {"sell", 10},
	}

	var commissionPaid decimal.Decimal
	for _, step := range steps {
		var err error
		if step.kind == "buy" {
			err = ledger.ApplyBuy(acct, "005930", step.qty, price, commission)
		} else {
			err = ledger.ApplySell(acct, "005930", step.qty, price, commission)
		}
		if err != nil {
			t.Fatalf("%s %d failed: %v", step.kind, step.qty, err)
		}
		commissionPaid = commissionPaid.Add(commission)
	}

	positionValue := decimal.Zero
	if h, ok := acct.Holdings["005930"]; ok {
		positionValue = price.Mul(d(h.Quantity))
	}

	total := acct.Cash.Add(positionValue)
	want := d(1_000_000).Sub(commissionPaid)
	if !total.Equal(want) {
		t.Errorf("cash+position = %s, want %s (start minus commissions)", total, want)
	}
}
