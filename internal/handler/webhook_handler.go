// internal/handler/webhook_handler.go
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/b2stos/nexuszap-sub000/internal/queue"
	"github.com/b2stos/nexuszap-sub000/internal/service"
)

// WebhookHandler is the provider's callback endpoint. It stores the raw
// event and hands processing to the worker; the provider only needs a fast
// 200 so it does not retry against a slow consumer.
type WebhookHandler struct {
	Reconciler *service.Reconciler
	Queue      queue.Queue
	Log        *zap.Logger
}

const maxWebhookBody = 64 << 10

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	channelID, err := strconv.Atoi(chi.URLParam(r, "channelID"))
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	ev, inserted, err := h.Reconciler.Ingest(channelID, payload)
	if err != nil {
		h.Log.Error("webhook ingest failed", zap.Int("channel", channelID), zap.Error(err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	if inserted {
		if err := h.Queue.Publish(queue.TopicWebhookEvents, ev.ID); err != nil {
			// the event row is already persisted; a sweep can reprocess it
			h.Log.Warn("webhook event enqueue failed", zap.Int("event", ev.ID), zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"received":  true,
		"duplicate": !inserted,
	})
}
