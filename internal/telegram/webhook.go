package telegram

import (
	"context"
	"log/slog"
	"net/http"
)

// WebhookHandler serves updates pushed by Telegram.
type WebhookHandler struct {
	client     *Client
	dispatcher Dispatcher
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(c *Client, d Dispatcher) *WebhookHandler {
	return &WebhookHandler{client: c, dispatcher: d}
}

// ServeHTTP decodes one update and dispatches it before replying. Handling
// failures are logged and still acknowledged so Telegram does not redeliver.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	update, err := h.client.api.HandleUpdate(r)
	if err != nil {
		slog.Warn("Rejecting malformed webhook update", "error", err)
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	dispatchUpdate(context.WithoutCancel(r.Context()), h.dispatcher, *update)
	w.WriteHeader(http.StatusOK)
}
