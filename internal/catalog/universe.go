package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/classstock/trading-engine/internal/model"
)

// DefaultUniverse returns the built-in KRX blue-chip universe used when
// no external feed supplies a stock list. Prices are plausible starting
// values in won; the simulation clock moves them from there.
func DefaultUniverse() []model.Stock {
	entries := []struct {
		code  string
		name  string
		price int64
	}{
		{"005930", "Samsung Electronics", 71000},
		{"000660", "SK Hynix", 178000},
		{"005380", "Hyundai Motor", 251000},
		{"000270", "Kia", 98700},
		{"373220", "LG Energy Solution", 412000},
		{"096770", "SK Innovation", 112000},
		{"035420", "NAVER", 189500},
		{"035720", "Kakao", 48850},
		{"207940", "Samsung Biologics", 731000},
		{"068270", "Celltrion", 179800},
		{"105560", "KB Financial Group", 67300},
		{"005490", "POSCO Holdings", 389500},
		{"329180", "HD Hyundai Heavy Industries", 128900},
		{"000720", "Hyundai E&C", 34550},
		{"139480", "E-mart", 63800},
		{"097950", "CJ CheilJedang", 321500},
		{"003490", "Korean Air", 21850},
		{"017670", "SK Telecom", 51300},
		{"352820", "HYBE", 231000},
		{"225570", "Nexon Games", 17420},
	}

	stocks := make([]model.Stock, 0, len(entries))
	for _, e := range entries {
		stocks = append(stocks, model.Stock{
			Code:  e.code,
			Name:  e.name,
			Price: decimal.NewFromInt(e.price),
		})
	}
	return stocks
}
