package alerts

import (
	"context"
	"errors"
	"fmt"
)

// MultiSender sends alerts to multiple destinations
type MultiSender struct {
	senders []Sender
}

// NewMultiSender creates a new multi-sender
func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
	}
}

// Send delivers to every sender, even after one fails
func (s *MultiSender) Send(ctx context.Context, payload *AlertPayload) error {
	var errs []error
	for i, sender := range s.senders {
		if err := sender.Send(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("sender %d: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("multi-sender: %w", errors.Join(errs...))
	}

	return nil
}
