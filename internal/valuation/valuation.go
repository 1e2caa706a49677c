// Package valuation computes derived asset metrics and rankings. Every
// function here is a pure function of (account, class, catalog prices,
// transaction history) — nothing is cached and nothing is written back
// onto the persisted account.
package valuation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/catalog"
	"github.com/classstock/trading-engine/internal/model"
)

// SortKey selects the ranking order.
type SortKey string

const (
	// ByTotalAssets ranks by cash plus mark-to-market holdings.
	ByTotalAssets SortKey = "total_assets"

	// ByInvestmentProfitRate ranks by trading performance alone,
	// with teacher-granted bonuses stripped out.
	ByInvestmentProfitRate SortKey = "investment_profit_rate"
)

var hundred = decimal.NewFromInt(100)

// TotalAssets returns cash plus the current market value of every
// holding. Holdings whose code is missing from the catalog contribute
// zero — a delisted stock simply stops counting.
func TotalAssets(acct *model.StudentAccount, cat *catalog.Catalog) decimal.Decimal {
	total := acct.Cash
	for code, h := range acct.Holdings {
		price, err := cat.Get(code)
		if err != nil {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total
}

// BonusTotal sums the granted amounts across all bonus transactions in
// a student's history.
func BonusTotal(txs []model.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Kind == model.KindBonus {
			total = total.Add(tx.UnitPrice)
		}
	}
	return total
}

// Snapshot computes the full valuation view for one account.
//
// TotalProfit is truncated toward zero. Profit rates are defined as 0
// when seed money is 0, never a divide-by-zero. InvestmentProfit
// isolates trading performance by subtracting the bonus total.
func Snapshot(acct *model.StudentAccount, class *model.ClassConfig, cat *catalog.Catalog, txs []model.Transaction) model.ValuationView {
	totalAssets := TotalAssets(acct, cat)
	totalProfit := totalAssets.Sub(class.SeedMoney).Truncate(0)

	totalProfitRate := decimal.Zero
	if class.SeedMoney.IsPositive() {
		totalProfitRate = totalProfit.Div(class.SeedMoney).Mul(hundred)
	}

	bonusTotal := BonusTotal(txs)
	investmentProfit := totalProfit.Sub(bonusTotal)

	investmentProfitRate := decimal.Zero
	if class.SeedMoney.IsPositive() {
		investmentProfitRate = investmentProfit.Div(class.SeedMoney).Mul(hundred)
	}

	return model.ValuationView{
		Account:              *acct,
		TotalAssets:          totalAssets,
		TotalProfit:          totalProfit,
		TotalProfitRate:      totalProfitRate,
		BonusTotal:           bonusTotal,
		InvestmentProfit:     investmentProfit,
		InvestmentProfitRate: investmentProfitRate,
	}
}

// Rank orders views descending by the sort key. The sort is stable:
// ties keep their input order, which is the only tie-break.
func Rank(views []model.ValuationView, key SortKey) []model.ValuationView {
	ranked := make([]model.ValuationView, len(views))
	copy(ranked, views)

	sort.SliceStable(ranked, func(i, j int) bool {
		switch key {
		case ByInvestmentProfitRate:
			return ranked[i].InvestmentProfitRate.GreaterThan(ranked[j].InvestmentProfitRate)
		default:
			return ranked[i].TotalAssets.GreaterThan(ranked[j].TotalAssets)
		}
	})
	return ranked
}
