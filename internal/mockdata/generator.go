package mockdata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/liamashdown/whaletracker/internal/explorer"
	"github.com/liamashdown/whaletracker/internal/rng"
	"github.com/liamashdown/whaletracker/internal/whale"
)

const (
	// Window is how far back synthetic timestamps reach
	Window = 24 * time.Hour

	// PoolSize is the number of distinct synthetic whale addresses
	PoolSize = 40

	headBlock     = 19_500_000
	blockInterval = 12 * time.Second
	ethPriceUSD   = 3200.0
)

// KnownTokens are the assets synthetic activity is spread across
var KnownTokens = []explorer.TokenInfo{
	knownToken("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", "WETH", "Wrapped Ether", 18, 3200),
	knownToken("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", "USDC", "USD Coin", 6, 1),
	knownToken("0xdac17f958d2ee523a2206206994597c13d831ec7", "USDT", "Tether USD", 6, 1),
	knownToken("0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", "WBTC", "Wrapped BTC", 8, 65000),
	knownToken("0x514910771af9ca656af840dff83e8264ecf986ca", "LINK", "ChainLink Token", 18, 15),
	knownToken("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984", "UNI", "Uniswap", 18, 8),
}

func knownToken(addr, symbol, name string, decimals int, price float64) explorer.TokenInfo {
	return explorer.TokenInfo{Address: addr, Symbol: symbol, Name: name, Decimals: &decimals, PriceUSD: &price}
}

// Generator synthesizes structurally valid upstream records. Values are random,
// shapes and ranges are fixed. Each concern draws from its own stream.
type Generator struct {
	rTier    *rand.Rand
	rAmt     *rand.Rand
	rAddr    *rand.Rand
	rHash    *rand.Rand
	rTime    *rand.Rand
	rProfile *rand.Rand

	pool []string
	now  func() time.Time
}

// New creates a generator over the named streams of rf
func New(rf *rng.Factory) *Generator {
	g := &Generator{
		rTier:    rf.R(rng.MockTier),
		rAmt:     rf.R(rng.MockAmount),
		rAddr:    rf.R(rng.MockAddress),
		rHash:    rf.R(rng.MockHash),
		rTime:    rf.R(rng.MockTime),
		rProfile: rf.R(rng.MockProfile),
		now:      func() time.Time { return time.Now().UTC() },
	}
	g.pool = make([]string, PoolSize)
	for i := range g.pool {
		g.pool[i] = g.Address()
	}
	return g
}

// Address returns a fresh 20-byte hex address
func (g *Generator) Address() string {
	return "0x" + hexString(g.rAddr, 20)
}

// hash fingerprints the generated fields plus a random nonce into a 32-byte hex hash
func (g *Generator) hash(from, to, value string, ts time.Time) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d", from, to, value, ts.UnixNano(), g.rHash.Uint64())))
	return "0x" + hex.EncodeToString(h[:])
}

// Token returns metadata for address: the known asset when it is one, otherwise a synthetic token
func (g *Generator) Token(address string) explorer.TokenInfo {
	address = strings.ToLower(address)
	for _, t := range KnownTokens {
		if t.Address == address {
			return t
		}
	}
	decimals := 18
	price := 0.05 + g.rProfile.Float64()*50
	suffix := strings.TrimPrefix(address, "0x")
	if len(suffix) > 4 {
		suffix = suffix[:4]
	}
	return explorer.TokenInfo{
		Address:  address,
		Symbol:   "TKN" + strings.ToUpper(suffix),
		Name:     "Token " + address,
		Decimals: &decimals,
		PriceUSD: &price,
	}
}

// AmountUSD draws a tiered USD value: 5% mega, 15% large, 30% medium, 50% small.
// Every draw is at least t.Floor().
func (g *Generator) AmountUSD(t whale.Thresholds) float64 {
	var usd float64
	switch p := g.rTier.Float64(); {
	case p < 0.05:
		usd = g.between(t.Mega, t.Mega*3)
	case p < 0.20:
		usd = g.between(t.Large, t.Mega)
	case p < 0.50:
		usd = g.between(t.Medium, t.Large)
	default:
		usd = g.between(t.Floor(), t.Medium)
	}
	return math.Max(usd, t.Floor())
}

// between draws from [lo, hi); a degenerate band yields lo
func (g *Generator) between(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + g.rAmt.Float64()*(hi-lo)
}

// Timestamp draws a time within the last Window
func (g *Generator) Timestamp() time.Time {
	ago := time.Duration(g.rTime.Int63n(int64(Window)))
	return g.now().Add(-ago).Truncate(time.Second)
}

// Transfers synthesizes n transfers of token
func (g *Generator) Transfers(t whale.Thresholds, token explorer.TokenInfo, n int) []explorer.Transfer {
	out := make([]explorer.Transfer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.transfer(t, token))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// RecentWhaleTransactions synthesizes n chain-wide whale transfers across the known tokens
func (g *Generator) RecentWhaleTransactions(t whale.Thresholds, n int) []explorer.Transfer {
	out := make([]explorer.Transfer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.transfer(t, KnownTokens[g.rProfile.Intn(len(KnownTokens))]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func (g *Generator) transfer(t whale.Thresholds, token explorer.TokenInfo) explorer.Transfer {
	usd := g.AmountUSD(t)
	from, to := g.counterparties()
	ts := g.Timestamp()
	value := baseUnits(usd, token)

	return explorer.Transfer{
		Hash:        g.hash(from, to, value, ts),
		From:        from,
		To:          to,
		Value:       value,
		Decimals:    token.Decimals,
		ValueUSD:    &usd,
		Timestamp:   ts,
		BlockNumber: blockAt(g.now(), ts),
		Token:       token,
	}
}

// counterparties picks a sender and receiver from the pool; one in ten is a mint and one in ten a burn
func (g *Generator) counterparties() (string, string) {
	from := g.pool[g.rAddr.Intn(len(g.pool))]
	to := g.pool[g.rAddr.Intn(len(g.pool))]
	for to == from {
		to = g.pool[g.rAddr.Intn(len(g.pool))]
	}
	switch g.rAddr.Intn(10) {
	case 0:
		from = whale.ZeroAddress
	case 1:
		to = whale.ZeroAddress
	}
	return from, to
}

// Holders synthesizes the top n holders of token, largest first
func (g *Generator) Holders(t whale.Thresholds, token explorer.TokenInfo, n int) []explorer.HolderEntry {
	out := make([]explorer.HolderEntry, 0, n)
	for i := 0; i < n; i++ {
		usd := g.AmountUSD(t)
		out = append(out, explorer.HolderEntry{
			Address:  g.Address(),
			Balance:  baseUnits(usd, token),
			Decimals: token.Decimals,
			ValueUSD: &usd,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].ValueUSD > *out[j].ValueUSD })
	return out
}

// AddressProfile synthesizes the explorer summary of address
func (g *Generator) AddressProfile(t whale.Thresholds, address string) explorer.AddressInfo {
	usd := g.AmountUSD(t)
	rate := ethPriceUSD
	now := g.now()
	wei := decimal.NewFromFloat(usd / ethPriceUSD).Shift(18).Truncate(0)

	return explorer.AddressInfo{
		Address:          strings.ToLower(address),
		CoinBalance:      wei.String(),
		ExchangeRate:     &rate,
		IsContract:       g.rProfile.Intn(10) == 0,
		TokenCount:       1 + g.rProfile.Intn(50),
		TransactionCount: 10 + g.rProfile.Intn(5000),
		FirstSeen:        now.Add(-time.Duration(30+g.rProfile.Intn(1065)) * 24 * time.Hour).Truncate(time.Second),
		LastSeen:         now.Add(-time.Duration(g.rProfile.Int63n(int64(7 * 24 * time.Hour)))).Truncate(time.Second),
	}
}

// baseUnits converts usd into an integer amount of token
func baseUnits(usd float64, token explorer.TokenInfo) string {
	price := 1.0
	if token.PriceUSD != nil && *token.PriceUSD > 0 {
		price = *token.PriceUSD
	}
	decimals := 18
	if token.Decimals != nil {
		decimals = *token.Decimals
	}
	return decimal.NewFromFloat(usd).
		Div(decimal.NewFromFloat(price)).
		Shift(int32(decimals)).
		Truncate(0).
		String()
}

func blockAt(now, ts time.Time) uint64 {
	return uint64(headBlock - int64(now.Sub(ts)/blockInterval))
}

func hexString(r *rand.Rand, n int) string {
	var b strings.Builder
	for b.Len() < n*2 {
		fmt.Fprintf(&b, "%016x", r.Uint64())
	}
	return b.String()[:n*2]
}
