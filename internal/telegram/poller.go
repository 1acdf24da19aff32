package telegram

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Poller receives updates through long polling.
type Poller struct {
	api        *tgbotapi.BotAPI
	dispatcher Dispatcher
	timeout    int
}

// NewPoller creates a Poller. timeout is the long-poll wait in seconds.
func NewPoller(c *Client, d Dispatcher, timeout int) *Poller {
	return &Poller{api: c.api, dispatcher: d, timeout: timeout}
}

// Run polls until ctx is cancelled and waits for in-flight updates before
// returning. Updates of one sender are handled in the order they were
// received; different senders are handled concurrently.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.timeout
	updates := p.api.GetUpdatesChan(cfg)

	queues := newSenderQueues()
	defer queues.wait()

	slog.Info("Long polling started", "timeout_seconds", p.timeout)
	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			slog.Info("Long polling stopped")
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := ToEvent(u)
			if !ok {
				slog.Debug("Skipping unsupported update", "update_id", u.UpdateID)
				continue
			}
			queues.submit(ev.Sender.ID, func() {
				dispatchEvent(context.WithoutCancel(ctx), p.dispatcher, u.UpdateID, ev)
			})
		}
	}
}
