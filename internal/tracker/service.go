package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/liamashdown/whaletracker/internal/cache"
	"github.com/liamashdown/whaletracker/internal/classifier"
	"github.com/liamashdown/whaletracker/internal/config"
	"github.com/liamashdown/whaletracker/internal/explorer"
	"github.com/liamashdown/whaletracker/internal/insights"
	"github.com/liamashdown/whaletracker/internal/mockdata"
	"github.com/liamashdown/whaletracker/internal/rng"
	"github.com/liamashdown/whaletracker/internal/whale"
)

const (
	// DefaultRecentLimit is used when a caller passes a non-positive limit
	DefaultRecentLimit = 20
	// MaxRecentLimit caps a single recent-transactions query
	MaxRecentLimit = 200
	// InsightBatch is the transaction batch scanned for insights
	InsightBatch = 100
	// AlertBatch is the transaction batch scanned for large transfers
	AlertBatch = 50

	tokenBatch         = 100
	defaultHolderLimit = 20
	maxLargeTransfers  = 10
	maxNewWhaleLookups = 10
	lookupConcurrency  = 4
)

// Upstream is the explorer surface the service depends on
type Upstream interface {
	Transfers(ctx context.Context, params explorer.TransferParams) ([]explorer.Transfer, error)
	Holders(ctx context.Context, token string, limit int) ([]explorer.HolderEntry, error)
	Address(ctx context.Context, address string) (*explorer.AddressInfo, error)
	Token(ctx context.Context, token string) (*explorer.TokenInfo, error)
}

// Service answers whale queries from upstream data, falling back to mock data.
// It never returns upstream errors; only threshold validation fails.
type Service struct {
	upstream   Upstream
	mock       *mockdata.Generator
	classifier *classifier.Classifier
	engine     *insights.Engine
	thresholds *whale.ThresholdStore
	cache      *cache.Cache
	mode       *ModeController
	flight     singleflight.Group
	hasAPIKey  bool
	log        *logrus.Logger
	now        func() time.Time
}

// NewService wires the service. upstream may be nil when the configuration forces mock data.
func NewService(cfg *config.Config, upstream Upstream, c *cache.Cache, rf *rng.Factory, log *logrus.Logger) (*Service, error) {
	store, err := whale.NewThresholdStore(cfg.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("initial thresholds: %w", err)
	}

	forced := cfg.MockOnly() || upstream == nil
	s := &Service{
		upstream:   upstream,
		mock:       mockdata.New(rf),
		classifier: classifier.New(rf),
		engine:     insights.NewEngine(),
		thresholds: store,
		cache:      c,
		mode:       NewModeController(forced, cfg.UpstreamRecoveryProbe, log),
		hasAPIKey:  cfg.ExplorerAPIKey != "",
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}

	log.WithFields(logrus.Fields{
		"mode":           s.mode.Mode(),
		"api_key_set":    s.hasAPIKey,
		"recovery_probe": cfg.UpstreamRecoveryProbe,
	}).Info("Whale tracker service initialized")

	return s, nil
}

// fromUpstream runs call when the mode allows it and reports the outcome to the mode
// controller. A failure after ctx ended falls back to mock data without degrading.
func (s *Service) fromUpstream(ctx context.Context, op string, call func() error) bool {
	if s.upstream == nil || !s.mode.AllowUpstream() {
		return false
	}
	if err := call(); err != nil {
		if ctx.Err() != nil {
			s.log.WithError(err).WithField("operation", op).Debug("Caller gone, upstream call abandoned")
			s.mode.Release()
			return false
		}
		s.log.WithError(err).WithField("operation", op).Warn("Falling back to mock data")
		s.mode.ReportFailure(err)
		return false
	}
	s.mode.ReportSuccess()
	return true
}

// built is one shared result of a memoized build
type built[T any] struct {
	raw []byte
	v   T
}

// memoize serves a service query from the cache, or builds it once for all concurrent
// callers of the same key. Keys carry the threshold generation: a build that straddles
// a threshold update is stored under a key no later query reads. Builds ignore caller
// cancellation. Each caller decodes its own copy of the stored form, so a miss and a
// later hit yield identical values.
func memoize[T any](ctx context.Context, s *Service, prefix string, params map[string]string, build func(ctx context.Context, t whale.Thresholds) T) T {
	t, gen := s.thresholds.Snapshot()
	params["gen"] = strconv.FormatUint(gen, 10)
	key := cache.Key(prefix, params)

	var out T
	if s.cache.GetJSON(ctx, key, &out) {
		return out
	}

	res, _, _ := s.flight.Do(key, func() (interface{}, error) {
		bctx := context.WithoutCancel(ctx)
		if raw, ok := s.cache.Get(bctx, key); ok && json.Valid(raw) {
			return built[T]{raw: raw}, nil
		}

		v := build(bctx, t)
		raw, err := s.cache.SetJSON(bctx, key, v)
		if err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Result not cached")
			return built[T]{v: v}, nil
		}
		return built[T]{raw: raw, v: v}, nil
	})

	b := res.(built[T])
	if b.raw == nil {
		return b.v
	}
	var stored T
	if err := json.Unmarshal(b.raw, &stored); err != nil {
		return b.v
	}
	return stored
}

func (s *Service) transfers(ctx context.Context, token string, n int, t whale.Thresholds) []explorer.Transfer {
	var raws []explorer.Transfer
	ok := s.fromUpstream(ctx, "transfers", func() error {
		var err error
		raws, err = s.upstream.Transfers(ctx, explorer.TransferParams{Token: token, Limit: n})
		return err
	})
	if ok {
		return raws
	}
	if token == "" {
		return s.mock.RecentWhaleTransactions(t, n)
	}
	return s.mock.Transfers(t, s.mock.Token(token), n)
}

// whalesOnly keeps transactions at or above the whale floor
func whalesOnly(txs []whale.Transaction, t whale.Thresholds) []whale.Transaction {
	out := make([]whale.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsWhale && tx.AmountUSD >= t.Floor() {
			out = append(out, tx)
		}
	}
	return out
}

// GetRecentWhaleTransactions returns up to limit whale transactions ordered by impact, then recency
func (s *Service) GetRecentWhaleTransactions(ctx context.Context, limit int) []whale.Transaction {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	params := map[string]string{"limit": strconv.Itoa(limit)}
	return memoize(ctx, s, "service:recent", params, func(ctx context.Context, t whale.Thresholds) []whale.Transaction {
		superset := min(max(2*limit, 50), 2*MaxRecentLimit)

		txs := whalesOnly(s.classifier.ClassifyAll(s.transfers(ctx, "", superset, t), t), t)
		sortByImpact(txs)
		if len(txs) > limit {
			txs = txs[:limit]
		}
		return txs
	})
}

// GetTokenWhaleAnalysis aggregates whale flow for token. When the token has no whale
// activity, chain-wide activity stands in and the result is marked as a baseline.
func (s *Service) GetTokenWhaleAnalysis(ctx context.Context, token string) whale.TokenAnalysis {
	token = strings.ToLower(strings.TrimSpace(token))

	params := map[string]string{"token": token}
	return memoize(ctx, s, "service:token", params, func(ctx context.Context, t whale.Thresholds) whale.TokenAnalysis {
		info := s.tokenInfo(ctx, token)

		txs := whalesOnly(s.classifier.ClassifyAll(s.transfers(ctx, token, tokenBatch, t), t), t)
		baseline := false
		if len(txs) == 0 {
			baseline = true
			txs = whalesOnly(s.classifier.ClassifyAll(s.transfers(ctx, "", tokenBatch, t), t), t)
		}

		analysis := analyzeToken(info, txs, s.now())
		analysis.Baseline = baseline
		return analysis
	})
}

func (s *Service) tokenInfo(ctx context.Context, token string) whale.Token {
	var raw *explorer.TokenInfo
	if token != "" {
		ok := s.fromUpstream(ctx, "token", func() error {
			var err error
			raw, err = s.upstream.Token(ctx, token)
			return err
		})
		if !ok {
			mock := s.mock.Token(token)
			raw = &mock
		}
	} else {
		raw = &explorer.TokenInfo{Symbol: "ETH", Name: "Ethereum mainnet activity"}
	}

	decimals := classifier.DefaultDecimalsFor(raw.Symbol)
	if raw.Decimals != nil {
		decimals = *raw.Decimals
	}
	out := whale.Token{Address: raw.Address, Symbol: raw.Symbol, Name: raw.Name, Decimals: decimals}
	if out.Address == "" {
		out.Address = token
	}
	if raw.PriceUSD != nil {
		out.PriceUSD = *raw.PriceUSD
	}
	return out
}

// GetTokenHolders returns the largest holders of token with USD balances and supply share
func (s *Service) GetTokenHolders(ctx context.Context, token string, limit int) []whale.Holder {
	token = strings.ToLower(strings.TrimSpace(token))
	if limit <= 0 {
		limit = defaultHolderLimit
	}
	limit = min(limit, MaxRecentLimit)

	params := map[string]string{"token": token, "limit": strconv.Itoa(limit)}
	return memoize(ctx, s, "service:holders", params, func(ctx context.Context, t whale.Thresholds) []whale.Holder {
		var raws []explorer.HolderEntry
		ok := s.fromUpstream(ctx, "holders", func() error {
			var err error
			raws, err = s.upstream.Holders(ctx, token, limit)
			return err
		})
		var info whale.Token
		if !ok {
			mock := s.mock.Token(token)
			raws = s.mock.Holders(t, mock, limit)
		}

		needPrice := false
		for _, r := range raws {
			if r.ValueUSD == nil {
				needPrice = true
				break
			}
		}
		if needPrice {
			info = s.tokenInfo(ctx, token)
		}
		return buildHolders(raws, info, t)
	})
}

// GetWhaleAddress profiles address against the recent whale activity
func (s *Service) GetWhaleAddress(ctx context.Context, address string) whale.Address {
	address = strings.ToLower(strings.TrimSpace(address))

	params := map[string]string{"address": address}
	return memoize(ctx, s, "service:address", params, func(ctx context.Context, t whale.Thresholds) whale.Address {
		var raw *explorer.AddressInfo
		ok := s.fromUpstream(ctx, "address", func() error {
			var err error
			raw, err = s.upstream.Address(ctx, address)
			return err
		})
		if !ok {
			mock := s.mock.AddressProfile(t, address)
			raw = &mock
		}
		if raw.Address == "" {
			raw.Address = address
		}

		return classifier.Profile(*raw, s.GetRecentWhaleTransactions(ctx, InsightBatch), t)
	})
}

// GetWhaleInsights scans a recent batch for accumulation, distribution,
// smart money and manipulation patterns
func (s *Service) GetWhaleInsights(ctx context.Context) []whale.Insight {
	txs := s.GetRecentWhaleTransactions(ctx, InsightBatch)
	return s.engine.Analyze(txs, s.thresholds.Get())
}

// GetWhaleAlerts bundles large transfers, newly seen whales, unusual activity and risk alerts
func (s *Service) GetWhaleAlerts(ctx context.Context) whale.Alerts {
	var (
		recent []whale.Transaction
		found  []whale.Insight
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recent = s.GetRecentWhaleTransactions(gctx, AlertBatch)
		return nil
	})
	g.Go(func() error {
		found = s.GetWhaleInsights(gctx)
		return nil
	})
	_ = g.Wait()

	alerts := whale.Alerts{
		LargeTransfers:  []whale.Transaction{},
		UnusualActivity: []whale.Insight{},
		RiskAlerts:      []whale.Insight{},
		GeneratedAt:     s.now(),
	}

	for _, tx := range recent {
		if tx.Impact == whale.ImpactCritical || tx.Impact == whale.ImpactHigh {
			alerts.LargeTransfers = append(alerts.LargeTransfers, tx)
			if len(alerts.LargeTransfers) == maxLargeTransfers {
				break
			}
		}
	}

	for _, in := range found {
		if in.Type == whale.InsightManipulation || in.Type == whale.InsightLiquidityEvent {
			alerts.UnusualActivity = append(alerts.UnusualActivity, in)
		}
		if in.Severity == whale.SeverityCritical || in.Severity == whale.SeverityWarning {
			alerts.RiskAlerts = append(alerts.RiskAlerts, in)
		}
	}

	alerts.NewWhales = s.newWhales(ctx, recent)
	return alerts
}

// newWhales profiles the counterparties of the top recent transactions concurrently;
// each lookup still queues on the shared rate limiter
func (s *Service) newWhales(ctx context.Context, recent []whale.Transaction) []whale.Address {
	var candidates []string
	seen := map[string]bool{}
	for _, tx := range recent {
		for _, a := range []string{tx.From, tx.To} {
			a = strings.ToLower(a)
			if a == "" || a == whale.ZeroAddress || seen[a] {
				continue
			}
			seen[a] = true
			candidates = append(candidates, a)
		}
		if len(candidates) >= maxNewWhaleLookups {
			break
		}
	}
	if len(candidates) > maxNewWhaleLookups {
		candidates = candidates[:maxNewWhaleLookups]
	}

	profiles := make([]whale.Address, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, addr := range candidates {
		i, addr := i, addr
		g.Go(func() error {
			profiles[i] = s.GetWhaleAddress(gctx, addr)
			return nil
		})
	}
	_ = g.Wait()

	medium := s.thresholds.Get().Medium
	out := []whale.Address{}
	for _, p := range profiles {
		if p.BalanceUSD > medium {
			out = append(out, p)
		}
	}
	return out
}

// GetWhaleThresholds returns the current tier thresholds
func (s *Service) GetWhaleThresholds() whale.Thresholds {
	return s.thresholds.Get()
}

// SetWhaleThresholds applies a partial update. Invalid orderings are rejected and
// leave the thresholds unchanged. A successful update moves service queries to a new
// cache generation; the clear drops entries of the old one.
func (s *Service) SetWhaleThresholds(ctx context.Context, u whale.ThresholdsUpdate) (whale.Thresholds, error) {
	next, err := s.thresholds.Update(u)
	if err != nil {
		return next, err
	}

	if err := s.cache.Clear(ctx); err != nil {
		s.log.WithError(err).Error("Failed to clear cache after threshold update")
	}

	s.log.WithFields(logrus.Fields{
		"mega":   next.Mega,
		"large":  next.Large,
		"medium": next.Medium,
		"small":  next.Small,
		"min_tx": next.MinWhaleTx,
	}).Info("Whale thresholds updated")
	return next, nil
}

// IsUsingMockData reports whether queries are currently answered from mock data
func (s *Service) IsUsingMockData() bool {
	return s.mode.Mode() != ModeLive
}

// APIKeyStatus describes the upstream credentials and data mode
type APIKeyStatus struct {
	HasAPIKey     bool   `json:"hasApiKey"`
	UsingMockData bool   `json:"usingMockData"`
	Mode          Status `json:"mode"`
}

// GetAPIKeyStatus reports credential presence and the data mode
func (s *Service) GetAPIKeyStatus() APIKeyStatus {
	st := s.mode.Status()
	return APIKeyStatus{
		HasAPIKey:     s.hasAPIKey,
		UsingMockData: st.Mode != ModeLive,
		Mode:          st,
	}
}
