package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamashdown/whaletracker/internal/cache"
	"github.com/liamashdown/whaletracker/internal/config"
	"github.com/liamashdown/whaletracker/internal/explorer"
	"github.com/liamashdown/whaletracker/internal/ratelimit"
	"github.com/liamashdown/whaletracker/internal/rng"
	"github.com/liamashdown/whaletracker/internal/whale"
)

var (
	addrRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	hashRe = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

type fakeUpstream struct {
	mu    sync.Mutex
	calls map[string]int

	err       error
	failFirst int           // fail this many calls before succeeding
	gate      chan struct{} // when set, Transfers blocks until it is closed
	transfers map[string][]explorer.Transfer
	holders   []explorer.HolderEntry
	addresses map[string]*explorer.AddressInfo
	token     *explorer.TokenInfo
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		calls:     map[string]int{},
		transfers: map[string][]explorer.Transfer{},
		addresses: map[string]*explorer.AddressInfo{},
	}
}

func (f *fakeUpstream) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failFirst > 0 {
		f.failFirst--
		return errors.New("connection refused")
	}
	return f.err
}

func (f *fakeUpstream) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeUpstream) Transfers(_ context.Context, p explorer.TransferParams) ([]explorer.Transfer, error) {
	if err := f.record("transfers"); err != nil {
		return nil, err
	}
	if f.gate != nil {
		<-f.gate
	}
	return f.transfers[p.Token], nil
}

func (f *fakeUpstream) Holders(_ context.Context, _ string, _ int) ([]explorer.HolderEntry, error) {
	if err := f.record("holders"); err != nil {
		return nil, err
	}
	return f.holders, nil
}

func (f *fakeUpstream) Address(_ context.Context, address string) (*explorer.AddressInfo, error) {
	if err := f.record("address"); err != nil {
		return nil, err
	}
	if a, ok := f.addresses[address]; ok {
		cp := *a
		return &cp, nil
	}
	return &explorer.AddressInfo{Address: address, CoinBalance: "0"}, nil
}

func (f *fakeUpstream) Token(_ context.Context, token string) (*explorer.TokenInfo, error) {
	if err := f.record("token"); err != nil {
		return nil, err
	}
	if f.token != nil {
		cp := *f.token
		return &cp, nil
	}
	return &explorer.TokenInfo{Address: token}, nil
}

func fptr(v float64) *float64 { return &v }

var txBase = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func transfer(hash, from, to string, usd float64, ago time.Duration) explorer.Transfer {
	return explorer.Transfer{
		Hash:      hash,
		From:      from,
		To:        to,
		Value:     "1",
		ValueUSD:  fptr(usd),
		Timestamp: txBase.Add(-ago),
		Token:     explorer.TokenInfo{Address: "0xtoken", Symbol: "TKN"},
	}
}

func testConfig(apiKey string) *config.Config {
	return &config.Config{
		ExplorerAPIKey: apiKey,
		Thresholds:     whale.DefaultThresholds(),
	}
}

func newTestService(t *testing.T, cfg *config.Config, up Upstream) *Service {
	t.Helper()
	log := quietLogger()
	s, err := NewService(cfg, up, cache.New(cache.NewMemory(), time.Minute, log), rng.New(rng.Deterministic, 7), log)
	require.NoError(t, err)
	return s
}

func TestRecentWithoutAPIKeyIsMock(t *testing.T) {
	s := newTestService(t, testConfig(""), nil)
	require.True(t, s.IsUsingMockData())
	assert.False(t, s.GetAPIKeyStatus().HasAPIKey)
	assert.Equal(t, ModeForcedMock, s.GetAPIKeyStatus().Mode.Mode)

	txs := s.GetRecentWhaleTransactions(context.Background(), 10)
	require.Len(t, txs, 10)
	for _, tx := range txs {
		assert.True(t, tx.IsWhale)
		assert.Regexp(t, hashRe, tx.Hash)
		assert.Regexp(t, addrRe, tx.From)
		assert.Regexp(t, addrRe, tx.To)
		assert.NotEqual(t, whale.TierNone, tx.WhaleType)
		assert.GreaterOrEqual(t, tx.ConfidenceScore, 60)
		assert.LessOrEqual(t, tx.ConfidenceScore, 100)
		assert.False(t, tx.Timestamp.IsZero())
	}
}

func TestRecentWithRejectedAPIKeyDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	log := quietLogger()
	cfg := testConfig("bad-key")
	cfg.ExplorerBaseURL = srv.URL
	cfg.ChainID = "1"
	cfg.RequestTimeout = time.Second
	c := cache.New(cache.NewMemory(), time.Minute, log)
	client := explorer.NewClient(cfg, ratelimit.New(45, time.Minute, 0), c, log)

	s, err := NewService(cfg, client, c, rng.New(rng.Deterministic, 3), log)
	require.NoError(t, err)
	require.False(t, s.IsUsingMockData())

	txs := s.GetRecentWhaleTransactions(context.Background(), 10)
	assert.True(t, s.IsUsingMockData())
	assert.Equal(t, ModeDegraded, s.GetAPIKeyStatus().Mode.Mode)
	require.Len(t, txs, 10)
	for _, tx := range txs {
		assert.True(t, tx.IsWhale)
	}
}

func TestRecentOrderedByImpactThenTime(t *testing.T) {
	s := newTestService(t, testConfig(""), nil)

	txs := s.GetRecentWhaleTransactions(context.Background(), 50)
	require.Len(t, txs, 50)
	for i := 1; i < len(txs); i++ {
		prev, cur := txs[i-1], txs[i]
		require.GreaterOrEqual(t, prev.Impact.Rank(), cur.Impact.Rank(), "impact first")
		if prev.Impact == cur.Impact {
			require.False(t, cur.Timestamp.After(prev.Timestamp), "then newest first")
		}
	}
}

func TestRecentFiltersAndSortsLiveData(t *testing.T) {
	up := newFakeUpstream()
	up.transfers[""] = []explorer.Transfer{
		transfer("0x01", "0xa", "0xb", 10_000, time.Minute),
		transfer("0x02", "0xa", "0xb", 75_000, 2*time.Minute),
		transfer("0x03", "0xa", "0xb", 20_000_000, 10*time.Minute),
		transfer("0x04", "0xa", "0xb", 2_000_000, 3*time.Minute),
		transfer("0x05", "0xa", "0xb", 30_000_000, 30*time.Second),
	}
	s := newTestService(t, testConfig("key"), up)

	txs := s.GetRecentWhaleTransactions(context.Background(), 10)
	require.False(t, s.IsUsingMockData())

	var hashes []string
	for _, tx := range txs {
		hashes = append(hashes, tx.Hash)
	}
	// 0x01 is under the floor; critical before high before low, newest first within a level
	assert.Equal(t, []string{"0x05", "0x03", "0x04", "0x02"}, hashes)

	assert.Len(t, s.GetRecentWhaleTransactions(context.Background(), 2), 2)
}

func TestUpstreamFailureLatchesMockMode(t *testing.T) {
	up := newFakeUpstream()
	up.err = errors.New("timeout")
	s := newTestService(t, testConfig("key"), up)
	ctx := context.Background()

	txs := s.GetRecentWhaleTransactions(ctx, 5)
	assert.Len(t, txs, 5)
	assert.True(t, s.IsUsingMockData())
	assert.Equal(t, 1, up.count("transfers"))

	up.err = nil
	_ = s.GetTokenWhaleAnalysis(ctx, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	_ = s.GetWhaleAddress(ctx, "0x1111111111111111111111111111111111111111")
	_ = s.GetTokenHolders(ctx, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", 5)

	assert.Equal(t, 1, up.count("transfers"), "no further upstream calls once degraded")
	assert.Zero(t, up.count("token"))
	assert.Zero(t, up.count("address"))
	assert.Zero(t, up.count("holders"))
	assert.True(t, s.IsUsingMockData())
}

func TestRecoveryProbeReturnsToLive(t *testing.T) {
	up := newFakeUpstream()
	up.failFirst = 1
	up.transfers[""] = []explorer.Transfer{transfer("0x01", "0xa", "0xb", 2_000_000, time.Minute)}

	cfg := testConfig("key")
	cfg.UpstreamRecoveryProbe = true
	s := newTestService(t, cfg, up)
	ctx := context.Background()

	_ = s.GetRecentWhaleTransactions(ctx, 5)
	require.True(t, s.IsUsingMockData())

	later := time.Now().Add(time.Hour)
	s.mode.now = func() time.Time { return later }
	_, err := s.SetWhaleThresholds(ctx, whale.ThresholdsUpdate{}) // clears cached mock results
	require.NoError(t, err)

	txs := s.GetRecentWhaleTransactions(ctx, 5)
	assert.False(t, s.IsUsingMockData())
	require.Len(t, txs, 1)
	assert.Equal(t, "0x01", txs[0].Hash)
}

func TestTokenAnalysisIsIdempotent(t *testing.T) {
	s := newTestService(t, testConfig(""), nil)
	ctx := context.Background()

	a := s.GetTokenWhaleAnalysis(ctx, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	b := s.GetTokenWhaleAnalysis(ctx, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	assert.Equal(t, a, b)
	assert.Equal(t, "WETH", a.Token.Symbol)
	assert.NotEmpty(t, a.RecentTransactions)
	assert.LessOrEqual(t, len(a.RecentTransactions), RecentInAnalysis)
	assert.GreaterOrEqual(t, a.ManipulationRisk, 0)
	assert.LessOrEqual(t, a.ManipulationRisk, 100)
}

func TestThresholdUpdateInvalidatesCache(t *testing.T) {
	up := newFakeUpstream()
	up.transfers[""] = []explorer.Transfer{
		transfer("0x01", "0xa", "0xb", 60_000, time.Minute),
		transfer("0x02", "0xa", "0xb", 200_000, 2*time.Minute),
		transfer("0x03", "0xa", "0xb", 2_000_000, 3*time.Minute),
	}
	s := newTestService(t, testConfig("key"), up)
	ctx := context.Background()

	require.Len(t, s.GetRecentWhaleTransactions(ctx, 10), 3)
	require.Len(t, s.GetRecentWhaleTransactions(ctx, 10), 3)
	assert.Equal(t, 1, up.count("transfers"), "second query is a cache hit")

	small, medium := 150_000.0, 500_000.0
	got, err := s.SetWhaleThresholds(ctx, whale.ThresholdsUpdate{Small: &small, Medium: &medium, MinWhaleTx: &small})
	require.NoError(t, err)
	assert.Equal(t, 150_000.0, got.Small)
	assert.Equal(t, got, s.GetWhaleThresholds())

	txs := s.GetRecentWhaleTransactions(ctx, 10)
	assert.Equal(t, 2, up.count("transfers"))
	require.Len(t, txs, 2)
	assert.Equal(t, whale.TierSmall, txs[1].WhaleType, "200K is now the small tier")
}

func TestInvalidThresholdsRejected(t *testing.T) {
	up := newFakeUpstream()
	up.transfers[""] = []explorer.Transfer{transfer("0x01", "0xa", "0xb", 60_000, time.Minute)}
	s := newTestService(t, testConfig("key"), up)
	ctx := context.Background()

	before := s.GetWhaleThresholds()
	_ = s.GetRecentWhaleTransactions(ctx, 10)

	tooBig := before.Mega * 2
	_, err := s.SetWhaleThresholds(ctx, whale.ThresholdsUpdate{Large: &tooBig})
	require.Error(t, err)
	assert.True(t, errors.Is(err, whale.ErrInvalidThresholds))
	assert.Equal(t, before, s.GetWhaleThresholds())

	_ = s.GetRecentWhaleTransactions(ctx, 10)
	assert.Equal(t, 1, up.count("transfers"), "rejected update keeps the cache")
}

func TestTokenAnalysisFallsBackToBaseline(t *testing.T) {
	up := newFakeUpstream()
	up.token = &explorer.TokenInfo{Address: "0xquiet", Symbol: "QUIET"}
	up.transfers[""] = []explorer.Transfer{
		transfer("0x01", "0xa", "0xb", 2_000_000, time.Minute),
		transfer("0x02", "0xc", "0xd", 200_000, time.Minute),
	}
	s := newTestService(t, testConfig("key"), up)

	a := s.GetTokenWhaleAnalysis(context.Background(), "0xquiet")
	assert.True(t, a.Baseline)
	assert.Equal(t, "QUIET", a.Token.Symbol)
	assert.Equal(t, 2, up.count("transfers"))
	assert.Len(t, a.RecentTransactions, 2)
	assert.Equal(t, 4, a.WhaleCount)
	assert.InDelta(t, 100*2_000_000.0/2_200_000.0, a.WhaleConcentration, 0.01)
	assert.False(t, s.IsUsingMockData())
}

func TestGetTokenHoldersLive(t *testing.T) {
	up := newFakeUpstream()
	dec := 6
	up.token = &explorer.TokenInfo{Address: "0xusdc", Symbol: "USDC", Decimals: &dec, PriceUSD: fptr(1)}
	up.holders = []explorer.HolderEntry{
		{Address: "0xsmall", Balance: "1000000000000"},
		{Address: "0xbig", Balance: "3000000000000"},
		{Address: "0xpriced", Balance: "0", ValueUSD: fptr(5)},
	}
	s := newTestService(t, testConfig("key"), up)

	holders := s.GetTokenHolders(context.Background(), "0xUSDC", 3)
	require.Len(t, holders, 3)
	assert.Equal(t, "0xbig", holders[0].Address)
	assert.InDelta(t, 3_000_000, holders[0].BalanceUSD, 1e-6)
	assert.InDelta(t, 75, holders[0].Share, 1e-9)
	assert.Equal(t, whale.TierLarge, holders[0].Tier)
	assert.InDelta(t, 25, holders[1].Share, 1e-9)
	assert.Equal(t, 5.0, holders[2].BalanceUSD)
	assert.Equal(t, 1, up.count("token"))
}

func TestGetWhaleAddressLive(t *testing.T) {
	up := newFakeUpstream()
	up.transfers[""] = []explorer.Transfer{
		transfer("0x01", "0xother", "0xwhale", 500_000, time.Minute),
	}
	up.addresses["0xwhale"] = &explorer.AddressInfo{
		Address:      "0xwhale",
		CoinBalance:  "1000000000000000000000",
		ExchangeRate: fptr(3000),
	}
	s := newTestService(t, testConfig("key"), up)

	p := s.GetWhaleAddress(context.Background(), "0xWHALE")
	assert.Equal(t, "0xwhale", p.Address)
	assert.Equal(t, whale.TierLarge, p.Tier)
	assert.Equal(t, whale.PatternAccumulator, p.ActivityPattern)
	assert.Equal(t, txBase.Add(-time.Minute), p.LastActivity)
}

func TestGetWhaleAlerts(t *testing.T) {
	up := newFakeUpstream()
	var raws []explorer.Transfer
	// four critical transfers between distinct parties
	for i := 1; i <= 4; i++ {
		raws = append(raws, transfer(fmt.Sprintf("0xc%d", i), fmt.Sprintf("0xf%d", i), fmt.Sprintf("0xt%d", i),
			15_000_000, time.Duration(i-1)*time.Minute))
	}
	// accumulation into 0xacc
	for i := 1; i <= 3; i++ {
		raws = append(raws, transfer(fmt.Sprintf("0xa%d", i), fmt.Sprintf("0xs%d", i), "0xacc",
			200_000, time.Hour+time.Duration(i)*time.Minute))
	}
	up.transfers[""] = raws
	up.addresses["0xf1"] = &explorer.AddressInfo{Address: "0xf1", CoinBalance: "1000000000000000000000", ExchangeRate: fptr(3000)}

	s := newTestService(t, testConfig("key"), up)
	alerts := s.GetWhaleAlerts(context.Background())

	require.Len(t, alerts.LargeTransfers, 4)
	for _, tx := range alerts.LargeTransfers {
		assert.Equal(t, whale.ImpactCritical, tx.Impact)
	}

	require.Len(t, alerts.UnusualActivity, 1)
	assert.Equal(t, whale.InsightManipulation, alerts.UnusualActivity[0].Type)

	var riskTypes []whale.InsightType
	for _, in := range alerts.RiskAlerts {
		assert.Contains(t, []whale.Severity{whale.SeverityCritical, whale.SeverityWarning}, in.Severity)
		riskTypes = append(riskTypes, in.Type)
	}
	assert.Contains(t, riskTypes, whale.InsightManipulation)
	assert.Contains(t, riskTypes, whale.InsightAccumulation)

	require.Len(t, alerts.NewWhales, 1)
	assert.Equal(t, "0xf1", alerts.NewWhales[0].Address)
	assert.Greater(t, alerts.NewWhales[0].BalanceUSD, whale.DefaultThresholds().Medium)
	assert.False(t, alerts.GeneratedAt.IsZero())
}

func TestGetWhaleAlertsMockShape(t *testing.T) {
	s := newTestService(t, testConfig(""), nil)
	alerts := s.GetWhaleAlerts(context.Background())
	medium := s.GetWhaleThresholds().Medium

	assert.LessOrEqual(t, len(alerts.LargeTransfers), maxLargeTransfers)
	for _, tx := range alerts.LargeTransfers {
		assert.Contains(t, []whale.Impact{whale.ImpactCritical, whale.ImpactHigh}, tx.Impact)
	}
	for _, a := range alerts.NewWhales {
		assert.Greater(t, a.BalanceUSD, medium)
	}
	for _, in := range alerts.UnusualActivity {
		assert.Contains(t, []whale.InsightType{whale.InsightManipulation, whale.InsightLiquidityEvent}, in.Type)
	}
	assert.NotNil(t, alerts.RiskAlerts)
}

func TestConcurrentQueries(t *testing.T) {
	s := newTestService(t, testConfig(""), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.GetWhaleAlerts(ctx)
			_ = s.GetTokenWhaleAnalysis(ctx, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
		}()
	}
	wg.Wait()

	assert.Len(t, s.GetRecentWhaleTransactions(ctx, 10), 10)
}

func TestCancelledCallerDoesNotDegrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"transaction_hash":"0x01","from_address":"0xa","to_address":"0xb",
			"value":"1","value_usd":"2000000","block_timestamp":"2026-06-01T11:59:00Z"}]}`))
	}))
	defer srv.Close()

	log := quietLogger()
	cfg := testConfig("key")
	cfg.ExplorerBaseURL = srv.URL
	cfg.ChainID = "1"
	cfg.RequestTimeout = time.Second
	c := cache.New(cache.NewMemory(), time.Minute, log)
	client := explorer.NewClient(cfg, ratelimit.New(45, time.Minute, 0), c, log)

	s, err := NewService(cfg, client, c, rng.New(rng.Deterministic, 3), log)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	txs := s.GetRecentWhaleTransactions(ctx, 5)
	assert.False(t, s.IsUsingMockData())
	assert.Equal(t, ModeLive, s.GetAPIKeyStatus().Mode.Mode)
	require.Len(t, txs, 1)
	assert.Equal(t, "0x01", txs[0].Hash)
}

func TestThresholdUpdateDuringBuildIsNotCached(t *testing.T) {
	up := newFakeUpstream()
	up.gate = make(chan struct{})
	up.transfers[""] = []explorer.Transfer{
		transfer("0x01", "0xa", "0xb", 75_000, time.Minute),
		transfer("0x02", "0xa", "0xb", 2_000_000, 2*time.Minute),
	}
	s := newTestService(t, testConfig("key"), up)
	ctx := context.Background()

	inflight := make(chan []whale.Transaction, 1)
	go func() { inflight <- s.GetRecentWhaleTransactions(ctx, 10) }()
	require.Eventually(t, func() bool { return up.count("transfers") == 1 }, time.Second, 5*time.Millisecond)

	small := 80_000.0
	_, err := s.SetWhaleThresholds(ctx, whale.ThresholdsUpdate{Small: &small})
	require.NoError(t, err)
	close(up.gate)

	assert.Len(t, <-inflight, 2, "the in-flight query answers with the thresholds it started with")

	txs := s.GetRecentWhaleTransactions(ctx, 10)
	assert.Equal(t, 2, up.count("transfers"), "rebuilt under the new thresholds")
	require.Len(t, txs, 1)
	assert.Equal(t, "0x02", txs[0].Hash)
}

func TestConcurrentColdQueriesShareOneBuild(t *testing.T) {
	up := newFakeUpstream()
	up.gate = make(chan struct{})
	up.transfers[""] = []explorer.Transfer{transfer("0x01", "0xa", "0xb", 2_000_000, time.Minute)}
	s := newTestService(t, testConfig("key"), up)
	ctx := context.Background()

	addrs := []string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
		"0x3333333333333333333333333333333333333333",
		"0x4444444444444444444444444444444444444444",
	}
	var wg sync.WaitGroup
	for _, a := range addrs {
		a := a
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.GetWhaleAddress(ctx, a)
		}()
	}

	require.Eventually(t, func() bool {
		return up.count("address") == len(addrs) && up.count("transfers") == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(up.gate)
	wg.Wait()

	assert.Equal(t, 1, up.count("transfers"), "profiles share one recent-transactions fetch")
	assert.False(t, s.IsUsingMockData())
}
