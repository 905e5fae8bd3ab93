package model

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Value is the holding's worth at the current price.
func (h StockHolding) Value() decimal.Decimal {
	return h.Shares.Mul(h.CurrentPrice)
}

// Cost is what was paid for the holding.
func (h StockHolding) Cost() decimal.Decimal {
	return h.Shares.Mul(h.AvgPrice)
}

func (h StockHolding) Gain() decimal.Decimal {
	return h.Value().Sub(h.Cost())
}

// GainPercent returns the gain relative to cost, rounded to two places.
// A zero cost yields zero.
func (h StockHolding) GainPercent() decimal.Decimal {
	cost := h.Cost()
	if cost.IsZero() {
		return decimal.Zero
	}
	return h.Gain().Div(cost).Mul(hundred).Round(2)
}

// PortfolioSummary aggregates a set of holdings.
type PortfolioSummary struct {
	Value decimal.Decimal
	Cost  decimal.Decimal
	Gain  decimal.Decimal
}

func SummarizePortfolio(holdings []StockHolding) PortfolioSummary {
	var s PortfolioSummary
	for _, h := range holdings {
		s.Value = s.Value.Add(h.Value())
		s.Cost = s.Cost.Add(h.Cost())
	}
	s.Gain = s.Value.Sub(s.Cost)
	return s
}

// ExpenseTotals sums expenses per category. Records whose date does not
// start with prefix are skipped; an empty prefix keeps everything, and a
// prefix like "2024-05" selects one month.
func ExpenseTotals(records []ExpenseRecord, prefix string) (map[string]decimal.Decimal, decimal.Decimal) {
	byCategory := make(map[string]decimal.Decimal)
	total := decimal.Zero
	for _, r := range records {
		if len(r.Date) < len(prefix) || r.Date[:len(prefix)] != prefix {
			continue
		}
		byCategory[r.Category] = byCategory[r.Category].Add(r.Amount)
		total = total.Add(r.Amount)
	}
	return byCategory, total
}
