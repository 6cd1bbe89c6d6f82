// ABOUTME: HTTP handler for LINE webhook deliveries on /callback
// ABOUTME: Verifies the signature, drops redeliveries, and feeds events to the machine in order

package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/2389/photoid-gateway/internal/line"
)

// handleCallback handles POST /callback. Every event of a verified batch is
// handled before the 200 is written, in the order LINE sent them.
func (g *Gateway) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)

	events, err := line.ParseRequest(g.config.LINE.ChannelSecret, r)
	if err != nil {
		if errors.Is(err, line.ErrInvalidSignature) {
			g.logger.Warn("rejected webhook with invalid signature", "remote", r.RemoteAddr)
		} else {
			g.logger.Warn("rejected malformed webhook", "remote", r.RemoteAddr, "error", err)
		}
		g.metrics.ObserveWebhook(http.StatusBadRequest)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Once accepted, a batch runs to completion even if LINE hangs up.
	ctx := context.WithoutCancel(r.Context())

	for _, ev := range events {
		if g.dedupe.Seen(ev.ID) {
			g.logger.Debug("dropping redelivered event", "event_id", ev.ID)
			g.metrics.ObserveDuplicate()
			continue
		}
		g.machine.Handle(ctx, ev)
	}

	g.metrics.ObserveWebhook(http.StatusOK)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
