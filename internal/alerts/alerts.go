package alerts

import (
	"context"
	"time"

	"github.com/liamashdown/whaletracker/internal/whale"
)

// Severity represents alert severity
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityAlert Severity = "ALERT"
)

// Kind is what triggered an alert
type Kind string

const (
	KindLargeTransfer Kind = "large_transfer"
	KindNewWhale      Kind = "new_whale"
	KindRisk          Kind = "risk"
)

// AlertPayload contains all information for an alert
type AlertPayload struct {
	Kind            Kind
	Severity        Severity
	Title           string
	Summary         string
	Address         string
	AddressShort    string // Shortened for display
	TokenSymbol     string
	AmountUSD       float64
	Tier            whale.Tier
	Impact          whale.Impact
	InsightType     whale.InsightType
	Confidence      int
	Signal          whale.Signal
	TransactionHash string
	TxHashShort     string // Shortened for display
	Timestamp       time.Time
	Environment     string
}

// Sender defines the interface for alert senders
type Sender interface {
	Send(ctx context.Context, payload *AlertPayload) error
}

// FromTransaction builds a large-transfer alert
func FromTransaction(tx whale.Transaction, env string) *AlertPayload {
	severity := SeverityWarn
	if tx.Impact == whale.ImpactCritical {
		severity = SeverityAlert
	}
	return &AlertPayload{
		Kind:            KindLargeTransfer,
		Severity:        severity,
		Title:           "Large " + tokenLabel(tx.Token) + " transfer",
		Summary:         ShortenAddress(tx.From) + " -> " + ShortenAddress(tx.To),
		Address:         tx.From,
		AddressShort:    ShortenAddress(tx.From),
		TokenSymbol:     tokenLabel(tx.Token),
		AmountUSD:       tx.AmountUSD,
		Tier:            tx.WhaleType,
		Impact:          tx.Impact,
		Confidence:      tx.ConfidenceScore,
		TransactionHash: tx.Hash,
		TxHashShort:     ShortenHash(tx.Hash),
		Timestamp:       tx.Timestamp,
		Environment:     env,
	}
}

// FromInsight builds a risk alert from a critical or warning insight
func FromInsight(in whale.Insight, env string) *AlertPayload {
	severity := SeverityInfo
	switch in.Severity {
	case whale.SeverityCritical:
		severity = SeverityAlert
	case whale.SeverityWarning:
		severity = SeverityWarn
	}

	p := &AlertPayload{
		Kind:        KindRisk,
		Severity:    severity,
		Title:       in.Title,
		Summary:     in.Description,
		InsightType: in.Type,
		Confidence:  in.Confidence,
		Signal:      in.Signal,
		Timestamp:   in.CreatedAt,
		Environment: env,
	}
	if len(in.RelatedAddresses) > 0 {
		p.Address = in.RelatedAddresses[0]
		p.AddressShort = ShortenAddress(p.Address)
	}
	if len(in.RelatedTokens) > 0 {
		p.TokenSymbol = in.RelatedTokens[0]
	}
	return p
}

// FromNewWhale builds an alert for a newly surfaced whale address
func FromNewWhale(a whale.Address, env string, at time.Time) *AlertPayload {
	return &AlertPayload{
		Kind:         KindNewWhale,
		Severity:     SeverityInfo,
		Title:        "New " + string(a.Tier) + " whale",
		Summary:      string(a.ActivityPattern) + ", " + string(a.RiskLevel) + " risk",
		Address:      a.Address,
		AddressShort: ShortenAddress(a.Address),
		AmountUSD:    a.BalanceUSD,
		Tier:         a.Tier,
		Confidence:   a.Influence,
		Timestamp:    at,
		Environment:  env,
	}
}

func tokenLabel(t whale.Token) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	if t.Address != "" {
		return ShortenAddress(t.Address)
	}
	return "token"
}

// ShortenAddress renders 0x1234...abcd
func ShortenAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// ShortenHash keeps the first and last eight characters
func ShortenHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "..." + hash[len(hash)-8:]
}
