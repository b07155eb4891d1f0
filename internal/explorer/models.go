package explorer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Upstream endpoints
const (
	EndpointTransfers = "/token/erc20/transfers"
	EndpointHolders   = "/token/erc20/holders"
	EndpointAddresses = "/addresses"
	EndpointTokens    = "/tokens"
)

// TokenInfo is token metadata after defaulting. Nil pointers mean the upstream omitted the field.
type TokenInfo struct {
	Address  string
	Symbol   string
	Name     string
	Decimals *int
	PriceUSD *float64
}

// Transfer is one raw ERC-20 transfer after defaulting.
// Missing value becomes "0", a missing hash is derived from the other fields,
// a missing timestamp stays zero and addresses are lowercased.
type Transfer struct {
	Hash        string
	From        string
	To          string
	Value       string // base units
	Decimals    *int
	ValueUSD    *float64
	Timestamp   time.Time
	BlockNumber uint64
	Token       TokenInfo
}

// HolderEntry is one raw balance row
type HolderEntry struct {
	Address  string
	Balance  string // base units
	Decimals *int
	ValueUSD *float64
}

// AddressInfo is the raw address summary
type AddressInfo struct {
	Address          string
	CoinBalance      string // wei
	ExchangeRate     *float64
	IsContract       bool
	TokenCount       int
	TransactionCount int
	FirstSeen        time.Time
	LastSeen         time.Time
}

// num accepts a JSON number, a numeric string or null. Anything else decodes as absent.
type num string

func (n *num) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, string(b) == "null":
		*n = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = num(strings.TrimSpace(s))
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		*n = num(b)
	default:
		*n = ""
	}
	return nil
}

type wireToken struct {
	Address      string `json:"address"`
	ContractAddr string `json:"contract_address"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Decimals     num    `json:"decimals"`
	PriceUSD     num    `json:"price_usd"`
	ExchangeRate num    `json:"exchange_rate"`
}

type wireTransfer struct {
	TransactionHash string          `json:"transaction_hash"`
	Hash            string          `json:"hash"`
	FromAddress     string          `json:"from_address"`
	ToAddress       string          `json:"to_address"`
	Value           num             `json:"value"`
	Decimals        num             `json:"decimals"`
	ValueUSD        num             `json:"value_usd"`
	BlockTimestamp  json.RawMessage `json:"block_timestamp"`
	BlockNumber     num             `json:"block_number"`
	Token           *wireToken      `json:"token"`
	ContractAddress string          `json:"contract_address"`
	Symbol          string          `json:"symbol"`
}

type wireHolder struct {
	Address  string `json:"address"`
	Wallet   string `json:"wallet_address"`
	Value    num    `json:"value"`
	Amount   num    `json:"amount"`
	Decimals num    `json:"decimals"`
	ValueUSD num    `json:"usd_value"`
}

type wireAddress struct {
	Hash             string          `json:"hash"`
	Address          string          `json:"address"`
	CoinBalance      num             `json:"coin_balance"`
	ExchangeRate     num             `json:"exchange_rate"`
	IsContract       bool            `json:"is_contract"`
	TokenCount       num             `json:"token_count"`
	TransactionCount num             `json:"transaction_count"`
	FirstSeen        json.RawMessage `json:"first_seen"`
	LastSeen         json.RawMessage `json:"last_seen"`
}

// items extracts the list payload: either {"items": [...]}, {"data": [...]} or a bare array
func items(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode list: %w", err)
		}
		return list, nil
	}

	var env struct {
		Items []json.RawMessage `json:"items"`
		Data  []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Items != nil {
		return env.Items, nil
	}
	return env.Data, nil
}

// single extracts an object payload, unwrapping {"data": {...}} when present
func single(body []byte) (json.RawMessage, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if len(env.Data) > 0 && bytes.TrimSpace(env.Data)[0] == '{' {
		return env.Data, nil
	}
	return body, nil
}

// DecodeTransfers parses a transfers response. Undecodable items are skipped.
func DecodeTransfers(body []byte) ([]Transfer, error) {
	raw, err := items(body)
	if err != nil {
		return nil, err
	}
	out := make([]Transfer, 0, len(raw))
	for _, item := range raw {
		var w wireTransfer
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		out = append(out, w.normalize())
	}
	return out, nil
}

func (w wireTransfer) normalize() Transfer {
	t := Transfer{
		Hash:        firstNonEmpty(w.TransactionHash, w.Hash),
		From:        strings.ToLower(w.FromAddress),
		To:          strings.ToLower(w.ToAddress),
		Value:       intString(w.Value),
		Decimals:    optInt(w.Decimals),
		ValueUSD:    optFloat(w.ValueUSD),
		Timestamp:   parseTime(w.BlockTimestamp),
		BlockNumber: uint64(optIntDefault(w.BlockNumber, 0)),
	}
	if w.Token != nil {
		t.Token = w.Token.normalize()
	}
	if t.Token.Address == "" {
		t.Token.Address = strings.ToLower(w.ContractAddress)
	}
	if t.Token.Symbol == "" {
		t.Token.Symbol = w.Symbol
	}
	if t.Decimals == nil {
		t.Decimals = t.Token.Decimals
	}
	if t.Hash == "" {
		t.Hash = derivedHash(t)
	}
	return t
}

func (w wireToken) normalize() TokenInfo {
	price := optFloat(w.PriceUSD)
	if price == nil {
		price = optFloat(w.ExchangeRate)
	}
	return TokenInfo{
		Address:  strings.ToLower(firstNonEmpty(w.Address, w.ContractAddr)),
		Symbol:   w.Symbol,
		Name:     w.Name,
		Decimals: optInt(w.Decimals),
		PriceUSD: price,
	}
}

// DecodeHolders parses a holders response
func DecodeHolders(body []byte) ([]HolderEntry, error) {
	raw, err := items(body)
	if err != nil {
		return nil, err
	}
	out := make([]HolderEntry, 0, len(raw))
	for _, item := range raw {
		var w wireHolder
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		balance := w.Value
		if balance == "" {
			balance = w.Amount
		}
		out = append(out, HolderEntry{
			Address:  strings.ToLower(firstNonEmpty(w.Address, w.Wallet)),
			Balance:  intString(balance),
			Decimals: optInt(w.Decimals),
			ValueUSD: optFloat(w.ValueUSD),
		})
	}
	return out, nil
}

// DecodeAddress parses an address summary response
func DecodeAddress(body []byte) (*AddressInfo, error) {
	obj, err := single(body)
	if err != nil {
		return nil, err
	}
	var w wireAddress
	if err := json.Unmarshal(obj, &w); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	return &AddressInfo{
		Address:          strings.ToLower(firstNonEmpty(w.Hash, w.Address)),
		CoinBalance:      intString(w.CoinBalance),
		ExchangeRate:     optFloat(w.ExchangeRate),
		IsContract:       w.IsContract,
		TokenCount:       optIntDefault(w.TokenCount, 0),
		TransactionCount: optIntDefault(w.TransactionCount, 0),
		FirstSeen:        parseTime(w.FirstSeen),
		LastSeen:         parseTime(w.LastSeen),
	}, nil
}

// DecodeToken parses a token metadata response
func DecodeToken(body []byte) (*TokenInfo, error) {
	obj, err := single(body)
	if err != nil {
		return nil, err
	}
	var w wireToken
	if err := json.Unmarshal(obj, &w); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	info := w.normalize()
	return &info, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// intString keeps integer base-unit strings and defaults everything else to "0"
func intString(n num) string {
	s := string(n)
	if s == "" {
		return "0"
	}
	if _, err := strconv.ParseUint(s, 10, 64); err == nil {
		return s
	}
	// Values beyond uint64 are still plain digit strings
	for _, r := range s {
		if r < '0' || r > '9' {
			return "0"
		}
	}
	return s
}

func optInt(n num) *int {
	if n == "" {
		return nil
	}
	v, err := strconv.Atoi(string(n))
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func optIntDefault(n num, def int) int {
	if v := optInt(n); v != nil {
		return *v
	}
	return def
}

func optFloat(n num) *float64 {
	if n == "" {
		return nil
	}
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil
	}
	return &v
}

// parseTime accepts RFC 3339 strings and unix seconds as number or string
func parseTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// derivedHash fingerprints a transfer the upstream sent without a hash
func derivedHash(t Transfer) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d", t.From, t.To, t.Value, t.Token.Address, t.Timestamp.Unix())))
	return "0x" + hex.EncodeToString(h[:])
}
