package classifier

import (
	"strings"

	"github.com/liamashdown/whaletracker/internal/explorer"
	"github.com/liamashdown/whaletracker/internal/whale"
)

// Profile builds a whale profile from an address summary and the recent
// transactions it took part in
func Profile(raw explorer.AddressInfo, recent []whale.Transaction, t whale.Thresholds) whale.Address {
	balance := 0.0
	if amount, ok := TokenAmount(raw.CoinBalance, DefaultDecimals); ok {
		balance = amount.InexactFloat64()
	}
	balanceUSD := 0.0
	if raw.ExchangeRate != nil {
		balanceUSD = balance * *raw.ExchangeRate
	}

	tier := t.Tier(balanceUSD)
	pattern, involved := activityPattern(raw.Address, recent)

	last := raw.LastSeen
	for _, tx := range involved {
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}

	rank := tierRank(tier)
	return whale.Address{
		Address:          raw.Address,
		Balance:          balance,
		BalanceUSD:       balanceUSD,
		TokenCount:       raw.TokenCount,
		TransactionCount: raw.TransactionCount,
		FirstSeen:        raw.FirstSeen,
		LastActivity:     last,
		IsContract:       raw.IsContract,
		Tier:             tier,
		WhaleRank:        rank,
		RiskLevel:        riskLevel(rank, pattern),
		ActivityPattern:  pattern,
		Influence:        influence(tier, len(involved), raw.TransactionCount),
	}
}

// activityPattern compares inflow and outflow USD across the transactions address took part in
func activityPattern(address string, recent []whale.Transaction) (whale.ActivityPattern, []whale.Transaction) {
	var in, out float64
	var involved []whale.Transaction
	for _, tx := range recent {
		switch {
		case strings.EqualFold(tx.To, address):
			in += tx.AmountUSD
		case strings.EqualFold(tx.From, address):
			out += tx.AmountUSD
		default:
			continue
		}
		involved = append(involved, tx)
	}

	switch {
	case len(involved) == 0:
		return whale.PatternHolder, nil
	case in >= 2*out:
		return whale.PatternAccumulator, involved
	case out >= 2*in:
		return whale.PatternDistributor, involved
	}
	return whale.PatternTrader, involved
}

// tierRank is 1 for mega down to 4 for small; 0 when unranked
func tierRank(tier whale.Tier) int {
	switch tier {
	case whale.TierMega:
		return 1
	case whale.TierLarge:
		return 2
	case whale.TierMedium:
		return 3
	case whale.TierSmall:
		return 4
	}
	return 0
}

func riskLevel(rank int, pattern whale.ActivityPattern) whale.RiskLevel {
	switch {
	case rank == 1, pattern == whale.PatternDistributor && rank == 2:
		return whale.RiskHigh
	case rank == 2, rank == 3, pattern == whale.PatternDistributor:
		return whale.RiskMedium
	}
	return whale.RiskLow
}

func influence(tier whale.Tier, recentTxs, lifetimeTxs int) int {
	score := map[whale.Tier]int{
		whale.TierMega:   60,
		whale.TierLarge:  45,
		whale.TierMedium: 30,
		whale.TierSmall:  15,
	}[tier]
	if score == 0 {
		score = 5
	}
	score += min(25, 5*recentTxs)
	score += min(15, lifetimeTxs/100)
	return min(100, score)
}
