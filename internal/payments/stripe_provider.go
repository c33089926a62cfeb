package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Update(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripePaymentMethodAPI interface {
	Get(id string, params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

type stripeClients struct {
	intents        stripePaymentIntentAPI
	refunds        stripeRefundAPI
	paymentMethods stripePaymentMethodAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// StripeProvider implements the Provider interface using uncaptured Stripe
// Payment Intents as the authorization hold.
type StripeProvider struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents:        sc.PaymentIntents,
			refunds:        sc.Refunds,
			paymentMethods: sc.PaymentMethods,
		}
	}

	if clients.intents == nil || clients.refunds == nil || clients.paymentMethods == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Authorize creates and confirms a manual-capture Payment Intent, holding the
// amount against the customer's saved payment method without settling.
func (p *StripeProvider) Authorize(ctx context.Context, req AuthorizationRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.PaymentMethodRef != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodRef)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return PaymentDetails{}, p.wrapStripeError("authorize payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.authorized", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"status":        intent.Status,
	})
	return stripePaymentDetails(intent), nil
}

// Capture settles a held Payment Intent. When the final amount differs from
// the authorized amount the hold is adjusted via AmountToCapture.
func (p *StripeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(req.Amount),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}
	intent, err := p.api.intents.Capture(req.AuthorizationRef, params)
	if err != nil {
		return PaymentDetails{}, p.wrapStripeError("capture payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return stripePaymentDetails(intent), nil
}

// CancelAuthorization releases the hold on an uncaptured Payment Intent.
func (p *StripeProvider) CancelAuthorization(ctx context.Context, req CancelRequest) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if reason := mapStripeCancellationReason(req.Reason); reason != "" {
		params.CancellationReason = stripe.String(reason)
	}
	intent, err := p.api.intents.Cancel(req.AuthorizationRef, params)
	if err != nil {
		return p.wrapStripeError("cancel payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.canceled", map[string]any{
		"paymentIntent": intent.ID,
	})
	return nil
}

// Refund creates a refund for the provided Payment Intent.
func (p *StripeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.AuthorizationRef),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(*req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}
	if _, err := p.api.refunds.New(params); err != nil {
		return PaymentDetails{}, p.wrapStripeError("refund payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": req.AuthorizationRef,
	})
	return p.LookupPayment(ctx, LookupRequest{AuthorizationRef: req.AuthorizationRef})
}

// LookupPayment retrieves a Stripe Payment Intent.
func (p *StripeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.api.intents.Get(req.AuthorizationRef, params)
	if err != nil {
		return PaymentDetails{}, p.wrapStripeError("lookup payment intent", err)
	}
	return stripePaymentDetails(intent), nil
}

// wrapStripeError converts card declines into DeclinedError so callers can
// surface the gateway reason; everything else is wrapped verbatim.
func (p *StripeProvider) wrapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Code == stripe.ErrorCodeCardDeclined {
			code := string(stripeErr.DeclineCode)
			if code == "" {
				code = string(stripeErr.Code)
			}
			return &DeclinedError{
				Provider: "stripe",
				Code:     code,
				Message:  stripeErr.Msg,
			}
		}
	}
	return fmt.Errorf("stripe: %s: %w", op, err)
}

func stripePaymentDetails(intent *stripe.PaymentIntent) PaymentDetails {
	if intent == nil {
		return PaymentDetails{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusRequiresCapture:
		status = StatusAuthorized
	case stripe.PaymentIntentStatusCanceled:
		status = StatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		status = StatusPending
	}

	var capturedAt *time.Time
	var refundedAt *time.Time
	captured := intent.Status == stripe.PaymentIntentStatusSucceeded

	if charge := intent.LatestCharge; charge != nil {
		if charge.Captured {
			t := time.Unix(charge.Created, 0).UTC()
			capturedAt = &t
			captured = true
		}
		if charge.Refunded || charge.AmountRefunded > 0 {
			t := time.Unix(charge.Created, 0).UTC()
			refundedAt = &t
			if charge.AmountRefunded >= charge.Amount && charge.Amount > 0 {
				status = StatusRefunded
			}
		}
	}

	if intent.Status == stripe.PaymentIntentStatusSucceeded && status != StatusRefunded {
		status = StatusSucceeded
	}

	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}

	raw := map[string]any{}
	if data, err := json.Marshal(intent); err == nil {
		_ = json.Unmarshal(data, &raw)
	} else {
		raw["payment_intent"] = intent
	}

	return PaymentDetails{
		Provider:         "stripe",
		AuthorizationRef: intent.ID,
		Status:           status,
		Amount:           intent.Amount,
		Currency:         currency,
		Captured:         captured,
		CapturedAt:       capturedAt,
		RefundedAt:       refundedAt,
		Raw:              raw,
	}
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func mapStripeCancellationReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.PaymentIntentCancellationReasonDuplicate):
		return string(stripe.PaymentIntentCancellationReasonDuplicate)
	case string(stripe.PaymentIntentCancellationReasonFraudulent):
		return string(stripe.PaymentIntentCancellationReasonFraudulent)
	case string(stripe.PaymentIntentCancellationReasonRequestedByCustomer):
		return string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)
	case string(stripe.PaymentIntentCancellationReasonAbandoned):
		return string(stripe.PaymentIntentCancellationReasonAbandoned)
	default:
		return ""
	}
}
