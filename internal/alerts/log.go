package alerts

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSender sends alerts to the logger
type LogSender struct {
	log *logrus.Logger
}

// NewLogSender creates a new log sender
func NewLogSender(log *logrus.Logger) *LogSender {
	return &LogSender{log: log}
}

// Send logs the alert
func (s *LogSender) Send(ctx context.Context, payload *AlertPayload) error {
	fields := logrus.Fields{
		"kind":       payload.Kind,
		"severity":   payload.Severity,
		"title":      payload.Title,
		"confidence": payload.Confidence,
	}
	if payload.AddressShort != "" {
		fields["address"] = payload.AddressShort
	}
	if payload.AmountUSD > 0 {
		fields["amount_usd"] = payload.AmountUSD
	}
	if payload.TokenSymbol != "" {
		fields["token"] = payload.TokenSymbol
	}
	if payload.TxHashShort != "" {
		fields["tx_hash"] = payload.TxHashShort
	}
	if payload.InsightType != "" {
		fields["insight"] = payload.InsightType
	}
	s.log.WithFields(fields).Info("Alert generated")
	return nil
}
