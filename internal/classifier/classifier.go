package classifier

import (
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liamashdown/whaletracker/internal/explorer"
	"github.com/liamashdown/whaletracker/internal/metrics"
	"github.com/liamashdown/whaletracker/internal/rng"
	"github.com/liamashdown/whaletracker/internal/whale"
)

const (
	// DefaultDecimals applies when neither the transfer nor its token reports decimals
	DefaultDecimals = 18

	// StableDecimals applies to stablecoin-like symbols with unknown decimals
	StableDecimals = 6

	baseConfidence = 70
	maxJitter      = 5
	minConfidence  = 60
	maxConfidence  = 100
)

var stableSymbols = map[string]bool{"USDC": true, "USDT": true, "USDC.E": true, "BUSD": true, "TUSD": true}

// Classifier turns raw transfers into whale transactions
type Classifier struct {
	jitter   *rand.Rand
	estimate *rand.Rand
	now      func() time.Time
}

// New creates a classifier drawing jitter and fallback estimates from rf
func New(rf *rng.Factory) *Classifier {
	return &Classifier{
		jitter:   rf.R(rng.ConfJitter),
		estimate: rf.R(rng.USDEstimate),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Classify maps one raw transfer onto a whale transaction. It never fails:
// missing price data falls back to an estimate.
func (c *Classifier) Classify(raw explorer.Transfer, t whale.Thresholds) whale.Transaction {
	decimals := resolveDecimals(raw)
	usd := c.resolveUSD(raw, decimals, t)
	tier := t.Tier(usd)

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}

	metrics.RecordClassification(string(tier))

	return whale.Transaction{
		Hash:        raw.Hash,
		From:        raw.From,
		To:          raw.To,
		Amount:      raw.Value,
		Decimals:    decimals,
		AmountUSD:   usd,
		Timestamp:   ts.UTC(),
		BlockNumber: raw.BlockNumber,
		Token: whale.Token{
			Address:  raw.Token.Address,
			Symbol:   raw.Token.Symbol,
			Name:     raw.Token.Name,
			Decimals: decimals,
			PriceUSD: derefFloat(raw.Token.PriceUSD),
		},
		Type:            InferType(raw.From, raw.To),
		Impact:          t.Impact(usd),
		WhaleType:       tier,
		IsWhale:         tier != whale.TierNone,
		ConfidenceScore: c.confidence(tier),
	}
}

// ClassifyAll classifies a batch against one threshold snapshot
func (c *Classifier) ClassifyAll(raws []explorer.Transfer, t whale.Thresholds) []whale.Transaction {
	out := make([]whale.Transaction, 0, len(raws))
	for _, raw := range raws {
		out = append(out, c.Classify(raw, t))
	}
	return out
}

// resolveUSD prefers an explicit USD value, then amount x price, then an estimate in [small, large)
func (c *Classifier) resolveUSD(raw explorer.Transfer, decimals int, t whale.Thresholds) float64 {
	if raw.ValueUSD != nil && *raw.ValueUSD >= 0 {
		return *raw.ValueUSD
	}
	if raw.Token.PriceUSD != nil && *raw.Token.PriceUSD > 0 {
		if amount, ok := TokenAmount(raw.Value, decimals); ok {
			return amount.Mul(decimal.NewFromFloat(*raw.Token.PriceUSD)).InexactFloat64()
		}
	}
	if t.Large <= t.Small {
		return t.Small
	}
	return t.Small + c.estimate.Float64()*(t.Large-t.Small)
}

func (c *Classifier) confidence(tier whale.Tier) int {
	score := baseConfidence + tierBonus(tier) + c.jitter.Intn(2*maxJitter+1) - maxJitter
	if score < minConfidence {
		return minConfidence
	}
	if score > maxConfidence {
		return maxConfidence
	}
	return score
}

func tierBonus(tier whale.Tier) int {
	switch tier {
	case whale.TierMega:
		return 25
	case whale.TierLarge:
		return 20
	case whale.TierMedium:
		return 15
	}
	return 10
}

// InferType labels mints as buys and burns as sells
func InferType(from, to string) whale.TxType {
	switch {
	case strings.EqualFold(from, whale.ZeroAddress):
		return whale.TxBuy
	case strings.EqualFold(to, whale.ZeroAddress):
		return whale.TxSell
	}
	return whale.TxTransfer
}

// TokenAmount scales a base-unit integer string into whole tokens
func TokenAmount(value string, decimals int) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Shift(int32(-decimals)), true
}

func resolveDecimals(raw explorer.Transfer) int {
	if raw.Decimals != nil {
		return *raw.Decimals
	}
	if raw.Token.Decimals != nil {
		return *raw.Token.Decimals
	}
	return DefaultDecimalsFor(raw.Token.Symbol)
}

// DefaultDecimalsFor returns the fallback decimals for a token symbol
func DefaultDecimalsFor(symbol string) int {
	if stableSymbols[strings.ToUpper(symbol)] {
		return StableDecimals
	}
	return DefaultDecimals
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
