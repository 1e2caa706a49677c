package simclock_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/model"
	"github.com/classstock/trading-engine/internal/simclock"
)

func d(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

func testCatalog() *catalog.Catalog {
	return catalog.New([]model.Stock{
		{Code: "005930", Name: "Samsung Electronics", Price: d(71_000)},
		{Code: "000660", Name: "SK Hynix", Price: d(178_000)},
		{Code: "035720", Name: "Kakao", Price: d(48_800)},
	})
}

// at builds a KST wall-clock instant.
func at(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, simclock.KST)
}

func newTestClock(cat *catalog.Catalog, lastAdvance string, now time.Time, saves *[]string) *simclock.Clock {
	c := simclock.New(cat, lastAdvance, func(_ context.Context, date string) error {
		if saves != nil {
			*saves = append(*saves, date)
		}
		return nil
	})
	c.Now = func() time.Time { return now }
	c.Rand = rand.New(rand.NewSource(1))
	return c
}

func TestAdvance_AfterCutoffMovesPricesOnce(t *testing.T) {
	cat := testCatalog()
	before := cat.Snapshot()
	var saves []string

	clock := newTestClock(cat, "", at(2026, time.March, 5, 17, 0), &saves)

	if !clock.Advance(context.Background()) {
		t.Fatal("expected first post-cutoff call to advance")
	}
	if clock.LastAdvance() != "2026-03-05" {
		t.Errorf("last advance = %q, want 2026-03-05", clock.LastAdvance())
	}
	if len(saves) != 1 || saves[0] != "2026-03-05" {
		t.Errorf("saves = %v, want one save of 2026-03-05", saves)
	}

	after := cat.Snapshot()
	for i, s := range after {
		old := before[i].Price

		if s.Price.Mod(d(100)).Sign() != 0 {
			t.Errorf("%s price %s not a multiple of 100", s.Code, s.Price)
		}
		if s.Price.LessThan(d(100)) {
			t.Errorf("%s price %s below floor", s.Code, s.Price)
		}
		// Rounding to the nearest 100 adds at most 50 won beyond the
		// [-4.5%, +5.5%] drift bounds.
		low := old.Mul(decimal.NewFromFloat(0.955)).Sub(d(50))
		high := old.Mul(decimal.NewFromFloat(1.055)).Add(d(50))
		if s.Price.LessThan(low) || s.Price.GreaterThan(high) {
			t.Errorf("%s drifted %s → %s, outside bounds [%s, %s]", s.Code, old, s.Price, low, high)
		}
	}
}

func TestAdvance_IdempotentWithinSameDay(t *testing.T) {
	cat := testCatalog()
	clock := newTestClock(cat, "", at(2026, time.March, 5, 16, 10), nil)

	if !clock.Advance(context.Background()) {
		t.Fatal("expected advance at cutoff")
	}
	moved := cat.Snapshot()

	// Second trigger on the same day, still after cutoff: no-op.
	if clock.Advance(context.Background()) {
		t.Fatal("second advance on the same day must be a no-op")
	}
	for i, s := range cat.Snapshot() {
		if !s.Price.Equal(moved[i].Price) {
			t.Errorf("%s price moved twice: %s → %s", s.Code, moved[i].Price, s.Price)
		}
	}
}

func TestAdvance_BeforeCutoffNoOp(t *testing.T) {
	cat := testCatalog()
	before := cat.Snapshot()
	var saves []string

	clock := newTestClock(cat, "", at(2026, time.March, 5, 10, 0), &saves)

	if clock.Advance(context.Background()) {
		t.Fatal("must not advance before 16:10")
	}
	// First run before cutoff initializes state to yesterday so that a
	// later run the same day still triggers exactly once.
	if clock.LastAdvance() != "2026-03-04" {
		t.Errorf("last advance = %q, want 2026-03-04", clock.LastAdvance())
	}
	if len(saves) != 1 || saves[0] != "2026-03-04" {
		t.Errorf("saves = %v, want one save of 2026-03-04", saves)
	}
	for i, s := range cat.Snapshot() {
		if !s.Price.Equal(before[i].Price) {
			t.Errorf("%s price moved before cutoff", s.Code)
		}
	}

	// Same day, after cutoff: now it advances.
	clock.Now = func() time.Time { return at(2026, time.March, 5, 16, 10) }
	if !clock.Advance(context.Background()) {
		t.Fatal("expected advance after cutoff on the same day")
	}
}

func TestAdvance_AlreadyAdvancedToday(t *testing.T) {
	cat := testCatalog()
	clock := newTestClock(cat, "2026-03-05", at(2026, time.March, 5, 23, 59), nil)

	if clock.Advance(context.Background()) {
		t.Fatal("must not advance twice on the same date")
	}
}

func TestAdvance_ElapsedDayTriggers(t *testing.T) {
	cat := testCatalog()
	clock := newTestClock(cat, "2026-03-04", at(2026, time.March, 5, 16, 30), nil)

	if !clock.Advance(context.Background()) {
		t.Fatal("expected advance after an elapsed day")
	}
	if clock.LastAdvance() != "2026-03-05" {
		t.Errorf("last advance = %q, want 2026-03-05", clock.LastAdvance())
	}
}

func TestAdvance_FloorHoldsAtMinimumPrice(t *testing.T) {
	cat := catalog.New([]model.Stock{
		{Code: "225570", Name: "Nexon Games", Price: d(100)},
	})
	clock := newTestClock(cat, "", at(2026, time.March, 5, 17, 0), nil)
	clock.Advance(context.Background())

	price, err := cat.Get("225570")
	if err != nil {
		t.Fatal(err)
	}
	if price.LessThan(d(100)) {
		t.Errorf("price %s fell below the 100 won floor", price)
	}
}
