package catalog_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/model"
)

func d(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

func TestGetAndSetPrice(t *testing.T) {
	cat := catalog.New([]model.Stock{
		{Code: "005930", Name: "Samsung Electronics", Price: d(71_000)},
	})

	price, err := cat.Get("005930")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !price.Equal(d(71_000)) {
		t.Errorf("price = %s, want 71000", price)
	}

	if err := cat.SetPrice("005930", d(72_500)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	price, _ = cat.Get("005930")
	if !price.Equal(d(72_500)) {
		t.Errorf("price after set = %s, want 72500", price)
	}
}

func TestUnknownCode(t *testing.T) {
	cat := catalog.New(nil)

	if _, err := cat.Get("999999"); !errors.Is(err, catalog.ErrUnknownStock) {
		t.Errorf("get err = %v, want ErrUnknownStock", err)
	}
	if err := cat.SetPrice("999999", d(100)); !errors.Is(err, catalog.ErrUnknownStock) {
		t.Errorf("set err = %v, want ErrUnknownStock", err)
	}
}

func TestSnapshotKeepsInsertionOrder(t *testing.T) {
	stocks := []model.Stock{
		{Code: "005930", Name: "Samsung Electronics", Price: d(71_000)},
		{Code: "000660", Name: "SK Hynix", Price: d(178_000)},
		{Code: "035420", Name: "NAVER", Price: d(189_500)},
	}
	cat := catalog.New(stocks)

	snap := cat.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	for i, s := range snap {
		if s.Code != stocks[i].Code {
			t.Errorf("snapshot[%d] = %s, want %s", i, s.Code, stocks[i].Code)
		}
	}
}

func TestDefaultUniverse(t *testing.T) {
	cat := catalog.New(catalog.DefaultUniverse())

	if got := len(cat.Snapshot()); got != 20 {
		t.Errorf("universe size = %d, want 20", got)
	}
	for _, s := range cat.Snapshot() {
		if len(s.Code) != 6 {
			t.Errorf("code %q is not a 6-digit KRX code", s.Code)
		}
		if !s.Price.IsPositive() {
			t.Errorf("%s has non-positive price %s", s.Code, s.Price)
		}
	}
}
