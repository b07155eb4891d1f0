package insights

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/liamashdown/whaletracker/internal/metrics"
	"github.com/liamashdown/whaletracker/internal/whale"
)

const (
	// AccumulationWindow bounds how far apart accumulating transfers may be
	AccumulationWindow = 7 * 24 * time.Hour

	minAccumulationTxs   = 3
	minDistributionTxs   = 2
	minDistributionPeers = 2
	manipulationMinCount = 3 // strictly more than this many critical transfers
	smartMoneyConfidence = 85
	manipulationConf     = 75
	maxRelated           = 10
)

// Engine scans classified transactions for whale behaviour patterns
type Engine struct {
	now   func() time.Time
	newID func() string
}

// NewEngine creates an insight engine
func NewEngine() *Engine {
	return &Engine{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// Analyze runs the accumulation, distribution, smart money and manipulation passes
// and returns their findings ordered by descending confidence
func (e *Engine) Analyze(txs []whale.Transaction, t whale.Thresholds) []whale.Insight {
	var out []whale.Insight
	out = append(out, e.accumulation(txs, t)...)
	out = append(out, e.distribution(txs, t)...)
	out = append(out, e.smartMoney(txs, t)...)
	out = append(out, e.manipulation(txs)...)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })

	for _, in := range out {
		metrics.RecordInsight(string(in.Type), string(in.Severity))
	}
	if out == nil {
		out = []whale.Insight{}
	}
	return out
}

// groupBy buckets transactions by key, skipping the zero address and empty keys.
// Keys are returned sorted for stable output.
func groupBy(txs []whale.Transaction, key func(whale.Transaction) string) ([]string, map[string][]whale.Transaction) {
	groups := make(map[string][]whale.Transaction)
	for _, tx := range txs {
		k := strings.ToLower(key(tx))
		if k == "" || k == whale.ZeroAddress {
			continue
		}
		groups[k] = append(groups[k], tx)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, groups
}

type window struct {
	txs   []whale.Transaction
	total float64
}

// bestWindow finds the qualifying AccumulationWindow span with the largest total
func bestWindow(txs []whale.Transaction, minCount int, minTotal float64) (window, bool) {
	sorted := append([]whale.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var best window
	found := false
	left := 0
	total := 0.0
	for right, tx := range sorted {
		total += tx.AmountUSD
		for tx.Timestamp.Sub(sorted[left].Timestamp) > AccumulationWindow {
			total -= sorted[left].AmountUSD
			left++
		}
		count := right - left + 1
		if count >= minCount && total >= minTotal && (!found || total > best.total) {
			best = window{txs: sorted[left : right+1], total: total}
			found = true
		}
	}
	return best, found
}

func (e *Engine) accumulation(txs []whale.Transaction, t whale.Thresholds) []whale.Insight {
	keys, groups := groupBy(txs, func(tx whale.Transaction) string { return tx.To })

	var out []whale.Insight
	for _, addr := range keys {
		w, ok := bestWindow(groups[addr], minAccumulationTxs, t.Medium)
		if !ok {
			continue
		}

		n := len(w.txs)
		severity := whale.SeverityWarning
		if w.total >= t.Large {
			severity = whale.SeverityCritical
		}
		span := w.txs[n-1].Timestamp.Sub(w.txs[0].Timestamp)

		out = append(out, whale.Insight{
			ID:       e.newID(),
			Type:     whale.InsightAccumulation,
			Severity: severity,
			Title:    fmt.Sprintf("Whale accumulation by %s", shortAddr(addr)),
			Description: fmt.Sprintf("%s received %d transfers totalling %s over %s, suggesting a position being built",
				addr, n, formatUSD(w.total), formatSpan(span)),
			Confidence:       min(95, 60+5*n),
			RelatedAddresses: []string{addr},
			RelatedTokens:    tokenSymbols(w.txs),
			Signal:           whale.SignalBuy,
			ExpectedImpact:   fmt.Sprintf("Sustained buy pressure; %s removed from circulating supply", formatUSD(w.total)),
			Timeframe:        formatSpan(span),
			CreatedAt:        e.now(),
		})
	}
	return out
}

func (e *Engine) distribution(txs []whale.Transaction, t whale.Thresholds) []whale.Insight {
	keys, groups := groupBy(txs, func(tx whale.Transaction) string { return tx.From })

	var out []whale.Insight
	for _, addr := range keys {
		sent := groups[addr]
		if len(sent) < minDistributionTxs {
			continue
		}

		receivers := map[string]bool{}
		total := 0.0
		for _, tx := range sent {
			receivers[strings.ToLower(tx.To)] = true
			total += tx.AmountUSD
		}
		if len(receivers) < minDistributionPeers || total < t.Medium {
			continue
		}

		severity := whale.SeverityWarning
		if total >= t.Large {
			severity = whale.SeverityCritical
		}

		out = append(out, whale.Insight{
			ID:       e.newID(),
			Type:     whale.InsightDistribution,
			Severity: severity,
			Title:    fmt.Sprintf("Whale distribution from %s", shortAddr(addr)),
			Description: fmt.Sprintf("%s sent %d transfers totalling %s to %d distinct addresses",
				addr, len(sent), formatUSD(total), len(receivers)),
			Confidence:       min(90, 50+10*len(receivers)),
			RelatedAddresses: append([]string{addr}, limit(sortedKeys(receivers), maxRelated-1)...),
			RelatedTokens:    tokenSymbols(sent),
			Signal:           whale.SignalSell,
			ExpectedImpact:   fmt.Sprintf("Possible sell pressure as %s moves toward exchanges or new holders", formatUSD(total)),
			Timeframe:        formatSpan(spanOf(sent)),
			CreatedAt:        e.now(),
		})
	}
	return out
}

func (e *Engine) smartMoney(txs []whale.Transaction, t whale.Thresholds) []whale.Insight {
	var smart []whale.Transaction
	for _, tx := range txs {
		if tx.AmountUSD > t.Large && tx.ConfidenceScore > 80 {
			smart = append(smart, tx)
		}
	}
	if len(smart) == 0 {
		return nil
	}

	total := 0.0
	buys, sells := 0, 0
	addrs := map[string]bool{}
	for _, tx := range smart {
		total += tx.AmountUSD
		switch tx.Type {
		case whale.TxBuy:
			buys++
		case whale.TxSell:
			sells++
		}
		for _, a := range []string{tx.From, tx.To} {
			if a = strings.ToLower(a); a != "" && a != whale.ZeroAddress {
				addrs[a] = true
			}
		}
	}

	signal := whale.SignalHold
	if buys > sells {
		signal = whale.SignalBuy
	}

	return []whale.Insight{{
		ID:       e.newID(),
		Type:     whale.InsightSmartMoney,
		Severity: whale.SeverityInfo,
		Title:    "Smart money movement detected",
		Description: fmt.Sprintf("%d high-confidence transfers above %s moved %s in total (%d buys, %d sells)",
			len(smart), formatUSD(t.Large), formatUSD(total), buys, sells),
		Confidence:       smartMoneyConfidence,
		RelatedAddresses: limit(sortedKeys(addrs), maxRelated),
		RelatedTokens:    tokenSymbols(smart),
		Signal:           signal,
		ExpectedImpact:   "Sophisticated actors repositioning; watch for follow-through",
		Timeframe:        formatSpan(spanOf(smart)),
		CreatedAt:        e.now(),
	}}
}

func (e *Engine) manipulation(txs []whale.Transaction) []whale.Insight {
	var critical []whale.Transaction
	for _, tx := range txs {
		if tx.Impact == whale.ImpactCritical && tx.Type == whale.TxTransfer {
			critical = append(critical, tx)
		}
	}
	if len(critical) <= manipulationMinCount {
		return nil
	}

	addrs := map[string]bool{}
	total := 0.0
	for _, tx := range critical {
		total += tx.AmountUSD
		addrs[strings.ToLower(tx.From)] = true
		addrs[strings.ToLower(tx.To)] = true
	}

	return []whale.Insight{{
		ID:       e.newID(),
		Type:     whale.InsightManipulation,
		Severity: whale.SeverityCritical,
		Title:    "Potential market manipulation",
		Description: fmt.Sprintf("%d critical-impact transfers moved %s between %d addresses",
			len(critical), formatUSD(total), len(addrs)),
		Confidence:       manipulationConf,
		RelatedAddresses: limit(sortedKeys(addrs), maxRelated),
		RelatedTokens:    tokenSymbols(critical),
		Signal:           whale.SignalCaution,
		ExpectedImpact:   "Elevated volatility and slippage risk",
		Timeframe:        formatSpan(spanOf(critical)),
		CreatedAt:        e.now(),
	}}
}

func tokenSymbols(txs []whale.Transaction) []string {
	seen := map[string]bool{}
	for _, tx := range txs {
		sym := tx.Token.Symbol
		if sym == "" {
			sym = tx.Token.Address
		}
		if sym != "" {
			seen[sym] = true
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func limit(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func spanOf(txs []whale.Transaction) time.Duration {
	if len(txs) == 0 {
		return 0
	}
	lo, hi := txs[0].Timestamp, txs[0].Timestamp
	for _, tx := range txs[1:] {
		if tx.Timestamp.Before(lo) {
			lo = tx.Timestamp
		}
		if tx.Timestamp.After(hi) {
			hi = tx.Timestamp
		}
	}
	return hi.Sub(lo)
}

func formatSpan(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	}
	return "under 2 hours"
}

func formatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	}
	return fmt.Sprintf("$%.0f", v)
}

func shortAddr(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:6] + "..." + a[len(a)-4:]
}
