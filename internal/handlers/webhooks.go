package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/meridian-commerce/api/internal/platform/httpx"
)

const maxWebhookBodySize = 1 << 20

// PaymentEventSink receives verified payment gateway events. Delivery is at
// least once; sinks must tolerate duplicates.
type PaymentEventSink func(ctx context.Context, eventType string, authorizationRef string, payload map[string]any)

// WebhookHandlers receives payment gateway callbacks. Signature verification
// happens here; the HMAC middleware on the group covers non-PSP callers.
type WebhookHandlers struct {
	stripeSecret string
	sink         PaymentEventSink
}

// NewWebhookHandlers constructs the webhook endpoints.
func NewWebhookHandlers(stripeSecret string, sink PaymentEventSink) *WebhookHandlers {
	return &WebhookHandlers{stripeSecret: stripeSecret, sink: sink}
}

// Routes wires the webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stripeSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "stripe webhook is not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled", "charge.refunded":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_payload", "malformed event payload", http.StatusBadRequest))
			return
		}
		if h.sink != nil {
			payload := map[string]any{
				"eventId":  event.ID,
				"amount":   intent.Amount,
				"currency": string(intent.Currency),
				"status":   string(intent.Status),
			}
			h.sink(ctx, string(event.Type), intent.ID, payload)
		}
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"received": true})
}
