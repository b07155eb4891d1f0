package explorer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamashdown/whaletracker/internal/cache"
	"github.com/liamashdown/whaletracker/internal/config"
	"github.com/liamashdown/whaletracker/internal/ratelimit"
)

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		ExplorerBaseURL: baseURL,
		ExplorerAPIKey:  "test-key",
		ChainID:         "1",
		RequestTimeout:  timeout,
	}
	return NewClient(cfg, ratelimit.New(100, time.Minute, 0), cache.New(cache.NewMemory(), time.Minute, log), log)
}

func TestRequestSendsKeyAndChain(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "1", r.URL.Query().Get("chain_id"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, EndpointTransfers, r.URL.Path)
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	ctx := context.Background()

	body, err := c.Request(ctx, EndpointTransfers, map[string]string{"limit": "25"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[]}`, string(body))

	// Second call within TTL is served from cache
	_, err = c.Request(ctx, EndpointTransfers, map[string]string{"limit": "25"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestRequestFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusUnauthorized)
			},
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "not valid JSON")
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				_, _ = w.Write([]byte(`{}`))
			},
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, 50*time.Millisecond)
			_, err := c.Request(context.Background(), EndpointHolders, nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "failures are not retried")

			// Failures are not cached
			_, err = c.Request(context.Background(), EndpointHolders, nil)
			require.Error(t, err)
			assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
		})
	}
}

func TestTransfersDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0xtoken", r.URL.Query().Get("contract_address"))
		_, _ = w.Write([]byte(`{"items":[
			{"transaction_hash":"0xAA","from_address":"0xFROM","to_address":"0xTO","value":"1500000000000000000000",
			 "block_timestamp":"2026-03-01T10:00:00Z","block_number":"19000000",
			 "token":{"address":"0xTOKEN","symbol":"WETH","name":"Wrapped Ether","decimals":"18","exchange_rate":"3000.5"}},
			{"from_address":"0x1","to_address":"0x2","value":1000000,"decimals":6,"value_usd":"1.0","block_timestamp":1767225600},
			{"from_address":"0x3","to_address":"0x4","value":"","decimals":"","block_timestamp":null}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	transfers, err := c.Transfers(context.Background(), TransferParams{Token: "0xtoken", Limit: 3})
	require.NoError(t, err)
	require.Len(t, transfers, 3)

	first := transfers[0]
	assert.Equal(t, "0xAA", first.Hash)
	assert.Equal(t, "0xfrom", first.From)
	assert.Equal(t, "1500000000000000000000", first.Value)
	assert.Equal(t, uint64(19000000), first.BlockNumber)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, "0xtoken", first.Token.Address)
	require.NotNil(t, first.Decimals)
	assert.Equal(t, 18, *first.Decimals)
	require.NotNil(t, first.Token.PriceUSD)
	assert.InDelta(t, 3000.5, *first.Token.PriceUSD, 1e-9)
	assert.Nil(t, first.ValueUSD)

	second := transfers[1]
	assert.Equal(t, "1000000", second.Value)
	require.NotNil(t, second.ValueUSD)
	assert.Equal(t, 1.0, *second.ValueUSD)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), second.Timestamp)
	assert.Len(t, second.Hash, 66, "missing hash is derived")

	third := transfers[2]
	assert.Equal(t, "0", third.Value)
	assert.Nil(t, third.Decimals)
	assert.True(t, third.Timestamp.IsZero())
}

func TestDecodeListShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"items envelope", `{"items":[{"address":"0x1","value":"10"}]}`, 1},
		{"data envelope", `{"data":[{"wallet_address":"0x1","amount":"10"},{"address":"0x2"}]}`, 2},
		{"bare array", `[{"address":"0x1"}]`, 1},
		{"empty object", `{}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holders, err := DecodeHolders([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, holders, tt.want)
		})
	}

	holders, err := DecodeHolders([]byte(`{"data":[{"wallet_address":"0xABC","amount":"10"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "0xabc", holders[0].Address)
	assert.Equal(t, "10", holders[0].Balance)
}

func TestAddressAndToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(EndpointAddresses+"/0xabc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hash":"0xABC","coin_balance":"2000000000000000000","exchange_rate":"2500",
			"is_contract":false,"token_count":4,"transaction_count":"120","first_seen":"2024-01-01T00:00:00Z"}`))
	})
	mux.HandleFunc(EndpointTokens+"/0xdef", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"contract_address":"0xDEF","symbol":"USDC","name":"USD Coin","decimals":6}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv.URL, time.Second)
	ctx := context.Background()

	addr, err := c.Address(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", addr.Address)
	assert.Equal(t, "2000000000000000000", addr.CoinBalance)
	assert.Equal(t, 4, addr.TokenCount)
	assert.Equal(t, 120, addr.TransactionCount)
	assert.True(t, addr.LastSeen.IsZero())

	tok, err := c.Token(ctx, "0xdef")
	require.NoError(t, err)
	assert.Equal(t, "0xdef", tok.Address)
	assert.Equal(t, "USDC", tok.Symbol)
	require.NotNil(t, tok.Decimals)
	assert.Equal(t, 6, *tok.Decimals)
	assert.Nil(t, tok.PriceUSD)
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, EndpointAddresses, endpointLabel(EndpointAddresses+"/0xabc"))
	assert.Equal(t, EndpointTokens, endpointLabel(EndpointTokens+"/0xabc"))
	assert.Equal(t, EndpointTransfers, endpointLabel(EndpointTransfers))
}
