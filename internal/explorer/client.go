package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/liamashdown/whaletracker/internal/cache"
	"github.com/liamashdown/whaletracker/internal/config"
	"github.com/liamashdown/whaletracker/internal/metrics"
	"github.com/liamashdown/whaletracker/internal/ratelimit"
)

// maxBody caps how much of a response is read
const maxBody = 8 << 20

// StatusError is returned for non-2xx upstream responses
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Client talks to the blockchain explorer API. Every network call is gated by the
// shared limiter and successful bodies are cached.
type Client struct {
	baseURL    string
	apiKey     string
	chainID    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      *cache.Cache
	log        *logrus.Logger
}

// NewClient creates a new explorer client
func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, c *cache.Cache, log *logrus.Logger) *Client {
	return &Client{
		baseURL:    cfg.ExplorerBaseURL,
		apiKey:     cfg.ExplorerAPIKey,
		chainID:    cfg.ChainID,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    limiter,
		cache:      c,
		log:        log,
	}
}

// Request performs a GET against endpoint and returns the raw JSON body.
// Failures are returned as errors and never retried.
func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("chain_id", c.chainID)

	key := cache.Key("upstream:"+endpoint, flatten(q))
	if body, ok := c.cache.Get(ctx, key); ok {
		return body, nil
	}

	waitStart := time.Now()
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	metrics.RecordRateLimitWait(time.Since(waitStart))

	start := time.Now()
	body, err := c.do(ctx, endpoint, q)
	metrics.RecordUpstreamRequest(endpointLabel(endpoint), time.Since(start), err)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"error":    err,
		}).Warn("Upstream request failed")
		return nil, err
	}

	c.cache.Set(ctx, key, body)
	return body, nil
}

func (c *Client) do(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: snippet}
	}

	if !json.Valid(body) {
		return nil, fmt.Errorf("%s: response is not valid JSON", endpoint)
	}

	return body, nil
}

// TransferParams holds parameters for the Transfers call
type TransferParams struct {
	Token string // contract address; empty lists chain-wide transfers
	Limit int
}

// Transfers fetches recent ERC-20 transfers
func (c *Client) Transfers(ctx context.Context, params TransferParams) ([]Transfer, error) {
	p := map[string]string{}
	if params.Token != "" {
		p["contract_address"] = params.Token
	}
	if params.Limit > 0 {
		p["limit"] = strconv.Itoa(params.Limit)
	}

	body, err := c.Request(ctx, EndpointTransfers, p)
	if err != nil {
		return nil, err
	}
	return DecodeTransfers(body)
}

// Holders fetches the top holders of token
func (c *Client) Holders(ctx context.Context, token string, limit int) ([]HolderEntry, error) {
	p := map[string]string{"contract_address": token}
	if limit > 0 {
		p["limit"] = strconv.Itoa(limit)
	}

	body, err := c.Request(ctx, EndpointHolders, p)
	if err != nil {
		return nil, err
	}
	return DecodeHolders(body)
}

// Address fetches the summary of one address
func (c *Client) Address(ctx context.Context, address string) (*AddressInfo, error) {
	body, err := c.Request(ctx, EndpointAddresses+"/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}
	return DecodeAddress(body)
}

// Token fetches token metadata
func (c *Client) Token(ctx context.Context, token string) (*TokenInfo, error) {
	body, err := c.Request(ctx, EndpointTokens+"/"+url.PathEscape(token), nil)
	if err != nil {
		return nil, err
	}
	return DecodeToken(body)
}

// endpointLabel drops path parameters to keep metric cardinality bounded
func endpointLabel(endpoint string) string {
	for _, prefix := range []string{EndpointAddresses, EndpointTokens} {
		if strings.HasPrefix(endpoint, prefix+"/") {
			return prefix
		}
	}
	return endpoint
}

func flatten(q url.Values) map[string]string {
	m := make(map[string]string, len(q))
	for k := range q {
		m[k] = q.Get(k)
	}
	return m
}
