package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/james2654817/dingtalk-notion-sync/internal/dingtalk"
	"github.com/james2654817/dingtalk-notion-sync/internal/metrics"
	"github.com/james2654817/dingtalk-notion-sync/internal/model"
	"github.com/james2654817/dingtalk-notion-sync/internal/sync"
	"github.com/james2654817/dingtalk-notion-sync/internal/translate"
	"github.com/james2654817/dingtalk-notion-sync/pkg/respond"
)

// Dispatcher consumes the canonical changes decoded from webhook events.
type Dispatcher interface {
	HandleChange(ctx context.Context, ch model.TodoChange) (sync.Outcome, error)
}

// Handler terminates DingTalk push notifications: verify the signature,
// decrypt, dispatch, acknowledge. A request walks
// Received → SignatureVerified → Decrypted → Dispatched → Acknowledged and is
// rejected at the first failing step.
type Handler struct {
	crypto     *Crypto
	dispatcher Dispatcher
	logger     *zap.Logger
}

func NewHandler(crypto *Crypto, dispatcher Dispatcher, logger *zap.Logger) *Handler {
	return &Handler{
		crypto:     crypto,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/webhook/dingtalk", h.Handle)
}

type envelope struct {
	Encrypt string `json:"encrypt"`
}

type ack struct {
	MsgSignature string `json:"msg_signature"`
	TimeStamp    string `json:"timeStamp"`
	Nonce        string `json:"nonce"`
	Encrypt      string `json:"encrypt"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	signature := q.Get("signature")
	timestamp := q.Get("timestamp")
	nonce := q.Get("nonce")

	var env envelope
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil && !errors.Is(err, io.EOF) {
			h.logger.Error("malformed webhook body", zap.Error(err))
			metrics.WebhookRequests.WithLabelValues("error").Inc()
			respond.Text(w, r, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	// URL-validation probe: no encrypted body, nothing to process.
	if env.Encrypt == "" {
		metrics.WebhookRequests.WithLabelValues("handshake").Inc()
		respond.Text(w, r, http.StatusOK, "ok")
		return
	}

	// Verify before decrypting. The response for a bad signature is the
	// same benign "ok" as a handshake so probers learn nothing.
	if h.crypto.Signature(timestamp, nonce, env.Encrypt) != signature {
		h.logger.Warn("webhook signature mismatch")
		metrics.WebhookRequests.WithLabelValues("rejected").Inc()
		respond.Text(w, r, http.StatusOK, "ok")
		return
	}

	body, err := h.crypto.Decrypt(env.Encrypt)
	if err != nil {
		h.logger.Error("webhook decrypt failed", zap.Error(err))
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		respond.Text(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	var ev dingtalk.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger.Error("malformed webhook event", zap.Error(err))
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		respond.Text(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	ch, err := translate.ChangeFromEvent(ev)
	if err != nil {
		// Authenticated but not a type we mirror; acknowledge so DingTalk
		// stops redelivering.
		h.logger.Warn("dropping webhook event", zap.Error(err))
		metrics.WebhookRequests.WithLabelValues("dropped").Inc()
		h.acknowledge(w, r, timestamp, nonce, env.Encrypt)
		return
	}

	if _, err := h.dispatcher.HandleChange(r.Context(), ch); err != nil {
		// Transport failure downstream; a 500 makes DingTalk redeliver.
		h.logger.Error("dispatch failed",
			zap.String("task_id", ch.TaskID),
			zap.Error(err))
		metrics.WebhookRequests.WithLabelValues("error").Inc()
		respond.Text(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	metrics.WebhookRequests.WithLabelValues("ok").Inc()
	h.acknowledge(w, r, timestamp, nonce, env.Encrypt)
}

// acknowledge echoes the encrypted body back under a fresh signature; the
// protocol does not require re-encrypting a different payload.
func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request, timestamp, nonce, encrypt string) {
	respond.JSON(w, r, http.StatusOK, ack{
		MsgSignature: h.crypto.Signature(timestamp, nonce, encrypt),
		TimeStamp:    timestamp,
		Nonce:        nonce,
		Encrypt:      encrypt,
	})
}
