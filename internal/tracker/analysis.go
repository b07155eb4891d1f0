package tracker

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/liamashdown/whaletracker/internal/whale"
)

const (
	// RecentInAnalysis bounds the transactions carried in a token analysis
	RecentInAnalysis = 10

	highConcentration   = 70.0
	mediumConcentration = 40.0
	poorConcentration   = 80.0
	fairConcentration   = 50.0
	poorManipulation    = 70
)

// analyzeToken derives concentration and risk classifications from whale transactions.
// Concentration is the percentage of whale volume carried by large and mega transfers.
func analyzeToken(token whale.Token, txs []whale.Transaction, now time.Time) whale.TokenAnalysis {
	var total, large float64
	critical := 0
	hasMega := false
	whales := map[string]bool{}

	for _, tx := range txs {
		total += tx.AmountUSD
		if tx.WhaleType == whale.TierMega || tx.WhaleType == whale.TierLarge {
			large += tx.AmountUSD
		}
		if tx.WhaleType == whale.TierMega {
			hasMega = true
		}
		if tx.Impact == whale.ImpactCritical && tx.Type == whale.TxTransfer {
			critical++
		}
		for _, a := range []string{tx.From, tx.To} {
			if a = strings.ToLower(a); a != "" && a != whale.ZeroAddress {
				whales[a] = true
			}
		}
	}

	concentration := 0.0
	if total > 0 {
		concentration = 100 * large / total
	}
	avg := 0.0
	if len(whales) > 0 {
		avg = total / float64(len(whales))
	}
	manipulation := manipulationRisk(concentration, critical)

	return whale.TokenAnalysis{
		Token:               token,
		WhaleConcentration:  math.Round(concentration*100) / 100,
		WhaleCount:          len(whales),
		AverageWhaleHolding: avg,
		TotalVolumeUSD:      total,
		RecentTransactions:  newest(txs, RecentInAnalysis),
		PriceImpactRisk:     priceImpactRisk(concentration, hasMega),
		ManipulationRisk:    manipulation,
		LiquidityHealth:     liquidityHealth(concentration, manipulation),
		GeneratedAt:         now.UTC(),
	}
}

func priceImpactRisk(concentration float64, hasMega bool) whale.RiskLevel {
	switch {
	case concentration >= highConcentration || hasMega:
		return whale.RiskHigh
	case concentration >= mediumConcentration:
		return whale.RiskMedium
	}
	return whale.RiskLow
}

// manipulationRisk scores 0-100 from concentration plus up to 40 points for critical transfers
func manipulationRisk(concentration float64, criticalTransfers int) int {
	score := 0.6*concentration + math.Min(40, 8*float64(criticalTransfers))
	return int(math.Min(100, math.Round(score)))
}

func liquidityHealth(concentration float64, manipulation int) whale.LiquidityHealth {
	switch {
	case concentration >= poorConcentration || manipulation >= poorManipulation:
		return whale.LiquidityPoor
	case concentration >= fairConcentration:
		return whale.LiquidityFair
	}
	return whale.LiquidityGood
}

// newest returns up to n transactions, latest first
func newest(txs []whale.Transaction, n int) []whale.Transaction {
	out := make([]whale.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// sortByImpact orders by impact level, then newest first
func sortByImpact(txs []whale.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		ri, rj := txs[i].Impact.Rank(), txs[j].Impact.Rank()
		if ri != rj {
			return ri > rj
		}
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}
