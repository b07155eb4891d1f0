package whale

import "time"

// TxType is the inferred direction of a transfer
type TxType string

const (
	TxBuy      TxType = "buy"
	TxSell     TxType = "sell"
	TxTransfer TxType = "transfer"
)

// Impact is how strongly a transaction could move price
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactHigh     Impact = "high"
	ImpactMedium   Impact = "medium"
	ImpactLow      Impact = "low"
)

// Rank orders impact levels, critical highest
func (i Impact) Rank() int {
	switch i {
	case ImpactCritical:
		return 4
	case ImpactHigh:
		return 3
	case ImpactMedium:
		return 2
	case ImpactLow:
		return 1
	}
	return 0
}

// Tier is a whale size class
type Tier string

const (
	TierMega   Tier = "mega"
	TierLarge  Tier = "large"
	TierMedium Tier = "medium"
	TierSmall  Tier = "small"
	TierNone   Tier = "none"
)

// Severity of an insight
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// InsightType categorises a detected pattern
type InsightType string

const (
	InsightAccumulation   InsightType = "accumulation"
	InsightDistribution   InsightType = "distribution"
	InsightManipulation   InsightType = "manipulation"
	InsightLiquidityEvent InsightType = "liquidity_event"
	InsightSmartMoney     InsightType = "smart_money"
)

// Signal is an optional trading hint attached to an insight
type Signal string

const (
	SignalBuy     Signal = "buy"
	SignalSell    Signal = "sell"
	SignalHold    Signal = "hold"
	SignalCaution Signal = "caution"
)

// RiskLevel for addresses and tokens
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ActivityPattern describes how an address moves funds
type ActivityPattern string

const (
	PatternAccumulator ActivityPattern = "accumulator"
	PatternDistributor ActivityPattern = "distributor"
	PatternTrader      ActivityPattern = "trader"
	PatternHolder      ActivityPattern = "holder"
)

// LiquidityHealth of a token's whale flow
type LiquidityHealth string

const (
	LiquidityGood LiquidityHealth = "good"
	LiquidityFair LiquidityHealth = "fair"
	LiquidityPoor LiquidityHealth = "poor"
)

// ZeroAddress is the mint/burn counterparty
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Token identifies an ERC-20 asset
type Token struct {
	Address  string  `json:"address"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Decimals int     `json:"decimals"`
	PriceUSD float64 `json:"priceUsd,omitempty"`
}

// Transaction is a classified transfer. Never mutated after classification.
type Transaction struct {
	Hash            string    `json:"hash"`
	From            string    `json:"from"`
	To              string    `json:"to"`
	Amount          string    `json:"amount"` // base units
	Decimals        int       `json:"decimals"`
	AmountUSD       float64   `json:"amountUsd"`
	Timestamp       time.Time `json:"timestamp"`
	BlockNumber     uint64    `json:"blockNumber"`
	Token           Token     `json:"token"`
	Type            TxType    `json:"type"`
	Impact          Impact    `json:"impact"`
	WhaleType       Tier      `json:"whaleType"`
	IsWhale         bool      `json:"isWhale"`
	ConfidenceScore int       `json:"confidenceScore"`
}

// Address is a whale profile built on demand
type Address struct {
	Address          string          `json:"address"`
	Balance          float64         `json:"balance"` // native units
	BalanceUSD       float64         `json:"balanceUsd"`
	TokenCount       int             `json:"tokenCount"`
	TransactionCount int             `json:"transactionCount"`
	FirstSeen        time.Time       `json:"firstSeen"`
	LastActivity     time.Time       `json:"lastActivity"`
	IsContract       bool            `json:"isContract"`
	Tier             Tier            `json:"tier"`
	WhaleRank        int             `json:"whaleRank"` // 1 = mega ... 4 = small, 0 = unranked
	RiskLevel        RiskLevel       `json:"riskLevel"`
	ActivityPattern  ActivityPattern `json:"activityPattern"`
	Influence        int             `json:"influence"`
}

// Holder is a token balance entry
type Holder struct {
	Address    string  `json:"address"`
	Balance    string  `json:"balance"` // base units
	Decimals   int     `json:"decimals"`
	BalanceUSD float64 `json:"balanceUsd"`
	Share      float64 `json:"share"` // percent of listed supply
	Tier       Tier    `json:"tier"`
}

// TokenAnalysis aggregates whale flow for one token
type TokenAnalysis struct {
	Token               Token           `json:"token"`
	WhaleConcentration  float64         `json:"whaleConcentration"`
	WhaleCount          int             `json:"whaleCount"`
	AverageWhaleHolding float64         `json:"averageWhaleHolding"`
	TotalVolumeUSD      float64         `json:"totalVolumeUsd"`
	RecentTransactions  []Transaction   `json:"recentTransactions"`
	PriceImpactRisk     RiskLevel       `json:"priceImpactRisk"`
	ManipulationRisk    int             `json:"manipulationRisk"`
	LiquidityHealth     LiquidityHealth `json:"liquidityHealth"`
	Baseline            bool            `json:"baseline"` // true when mainnet activity stood in for the token
	GeneratedAt         time.Time       `json:"generatedAt"`
}

// Insight is a scored finding over a batch of transactions
type Insight struct {
	ID               string      `json:"id"`
	Type             InsightType `json:"type"`
	Severity         Severity    `json:"severity"`
	Title            string      `json:"title"`
	Description      string      `json:"description"`
	Confidence       int         `json:"confidence"`
	RelatedAddresses []string    `json:"relatedAddresses"`
	RelatedTokens    []string    `json:"relatedTokens"`
	Signal           Signal      `json:"signal,omitempty"`
	ExpectedImpact   string      `json:"expectedImpact"`
	Timeframe        string      `json:"timeframe"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Alerts groups findings into dashboard buckets
type Alerts struct {
	LargeTransfers  []Transaction `json:"largeTransfers"`
	NewWhales       []Address     `json:"newWhales"`
	UnusualActivity []Insight     `json:"unusualActivity"`
	RiskAlerts      []Insight     `json:"riskAlerts"`
	GeneratedAt     time.Time     `json:"generatedAt"`
}
