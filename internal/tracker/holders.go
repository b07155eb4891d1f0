package tracker

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/liamashdown/whaletracker/internal/classifier"
	"github.com/liamashdown/whaletracker/internal/explorer"
	"github.com/liamashdown/whaletracker/internal/whale"
)

// buildHolders converts raw balance rows into holders. Share is each balance as a
// percentage of the listed balances; USD falls back to balance x token price.
func buildHolders(raws []explorer.HolderEntry, info whale.Token, t whale.Thresholds) []whale.Holder {
	fallbackDecimals := info.Decimals
	if fallbackDecimals == 0 {
		fallbackDecimals = classifier.DefaultDecimalsFor(info.Symbol)
	}

	amounts := make([]decimal.Decimal, len(raws))
	total := decimal.Zero
	out := make([]whale.Holder, len(raws))
	for i, r := range raws {
		decimals := fallbackDecimals
		if r.Decimals != nil {
			decimals = *r.Decimals
		}
		amount, _ := classifier.TokenAmount(r.Balance, decimals)
		amounts[i] = amount
		total = total.Add(amount)

		usd := 0.0
		switch {
		case r.ValueUSD != nil:
			usd = *r.ValueUSD
		case info.PriceUSD > 0:
			usd = amount.Mul(decimal.NewFromFloat(info.PriceUSD)).InexactFloat64()
		}

		out[i] = whale.Holder{
			Address:    r.Address,
			Balance:    r.Balance,
			Decimals:   decimals,
			BalanceUSD: usd,
			Tier:       t.Tier(usd),
		}
	}

	if total.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for i := range out {
			out[i].Share = amounts[i].Div(total).Mul(hundred).Round(4).InexactFloat64()
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].BalanceUSD > out[j].BalanceUSD })
	return out
}
