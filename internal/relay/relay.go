// Package relay delivers verified messages to their recipients.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/whisper-relay/internal/messenger"
	"github.com/ashureev/whisper-relay/internal/metrics"
)

// Relay performs one-shot deliveries. It never retries or queues.
type Relay struct {
	msgr    messenger.Messenger
	metrics *metrics.Metrics
}

// New creates a Relay sending through msgr.
func New(msgr messenger.Messenger, m *metrics.Metrics) *Relay {
	return &Relay{msgr: msgr, metrics: m}
}

// Deliver sends text verbatim to the recipient's private chat. Transport
// errors are returned to the caller unchanged apart from wrapping.
func (r *Relay) Deliver(ctx context.Context, recipientID int64, text string) error {
	if _, err := r.msgr.Send(ctx, messenger.Message{ChatID: recipientID, Text: text}); err != nil {
		r.metrics.RecordDelivery("error")
		return fmt.Errorf("deliver to %d: %w", recipientID, err)
	}
	r.metrics.RecordDelivery("ok")
	slog.Info("Message relayed", "recipient_id", recipientID, "length", len(text))
	return nil
}
