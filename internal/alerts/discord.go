package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DiscordSender sends alerts to Discord via webhook
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordSender creates a new Discord sender
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends the alert to Discord
func (s *DiscordSender) Send(ctx context.Context, payload *AlertPayload) error {
	webhookPayload := map[string]interface{}{
		"embeds": []interface{}{buildEmbed(payload)},
	}

	body, err := json.Marshal(webhookPayload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func buildEmbed(payload *AlertPayload) map[string]interface{} {
	var color int
	switch payload.Severity {
	case SeverityAlert:
		color = 0xFF0000 // Red
	case SeverityWarn:
		color = 0xFFA500 // Orange
	default:
		color = 0x0099FF // Blue
	}

	fields := []map[string]interface{}{}
	addField := func(name, value string) {
		if value != "" {
			fields = append(fields, map[string]interface{}{"name": name, "value": value, "inline": true})
		}
	}

	if payload.AddressShort != "" {
		addField("Address", fmt.Sprintf("`%s`", payload.AddressShort))
	}
	addField("Token", payload.TokenSymbol)
	if payload.AmountUSD > 0 {
		addField("Value", fmt.Sprintf("$%.2f", payload.AmountUSD))
	}
	if payload.Tier != "" {
		addField("Tier", string(payload.Tier))
	}
	if payload.Impact != "" {
		addField("Impact", string(payload.Impact))
	}
	if payload.InsightType != "" {
		addField("Pattern", string(payload.InsightType))
	}
	if payload.Signal != "" {
		addField("Signal", strings.ToUpper(string(payload.Signal)))
	}
	addField("Confidence", fmt.Sprintf("**%d/100**", payload.Confidence))
	if payload.TxHashShort != "" {
		addField("Tx", fmt.Sprintf("`%s`", payload.TxHashShort))
	}

	footer := map[string]interface{}{
		"text": fmt.Sprintf("Whale Tracker • %s • %s", payload.Environment, payload.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")),
	}

	return map[string]interface{}{
		"title":       fmt.Sprintf("%s %s (%s)", severityIcon(payload.Severity), payload.Title, payload.Severity),
		"description": truncate(payload.Summary, 1000),
		"color":       color,
		"fields":      fields,
		"footer":      footer,
		"timestamp":   payload.Timestamp.Format(time.RFC3339),
	}
}

func severityIcon(s Severity) string {
	switch s {
	case SeverityAlert:
		return "🚨"
	case SeverityWarn:
		return "⚠️"
	}
	return "🐋"
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
