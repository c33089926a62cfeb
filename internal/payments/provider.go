package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusAuthorized indicates funds are held but not yet captured.
	StatusAuthorized Status = "authorized"
	// StatusSucceeded indicates the PSP reports the payment as successfully captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the PSP reports a failure and no further action is possible.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the authorization was released without capture.
	StatusCanceled Status = "canceled"
	// StatusRefunded indicates the payment has been refunded (partially or fully).
	StatusRefunded Status = "refunded"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// DeclinedError carries the PSP decline reason for a failed authorization or
// capture, so callers can store and surface it verbatim.
type DeclinedError struct {
	Provider string
	Code     string
	Message  string
}

func (e *DeclinedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments: %s declined (%s): %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("payments: %s declined: %s", e.Provider, e.Message)
}

// DeclineReason extracts the human-readable decline reason from err, if it
// wraps a DeclinedError.
func DeclineReason(err error) (string, bool) {
	var declined *DeclinedError
	if errors.As(err, &declined) {
		if declined.Message != "" {
			return declined.Message, true
		}
		return declined.Code, true
	}
	return "", false
}

// AuthorizationRequest places a hold on the customer's payment method without
// capturing funds.
type AuthorizationRequest struct {
	Amount           int64
	Currency         string
	CustomerID       string
	PaymentMethodRef string
	Description      string
	Metadata         map[string]string
	IdempotencyKey   string
}

// CaptureRequest settles a previously placed authorization. Amount is the
// final total; providers must adjust the held amount before capturing when it
// differs from the authorized amount.
type CaptureRequest struct {
	AuthorizationRef string
	Amount           int64
	IdempotencyKey   string
	Metadata         map[string]string
}

// CancelRequest releases an authorization without capturing.
type CancelRequest struct {
	AuthorizationRef string
	Reason           string
}

// RefundRequest defines a PSP refund attempt against a captured payment.
type RefundRequest struct {
	AuthorizationRef string
	Amount           *int64
	Reason           string
	IdempotencyKey   string
	Metadata         map[string]string
}

// LookupRequest returns provider specific payment details for reconciliation.
type LookupRequest struct {
	AuthorizationRef string
}

// PaymentDetails normalises PSP specific fields for storage.
type PaymentDetails struct {
	Provider         string
	AuthorizationRef string
	Status           Status
	Amount           int64
	Currency         string
	Captured         bool
	CapturedAt       *time.Time
	RefundedAt       *time.Time
	Raw              map[string]any
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (PaymentDetails, error)
	Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error)
	CancelAuthorization(ctx context.Context, req CancelRequest) error
	Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error)
	LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
// Providers are resolved per request by currency route, falling back to the
// default provider.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(currency string) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	if normalized != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[normalized]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Authorize delegates to the provider resolved for the request currency.
func (m *Manager) Authorize(ctx context.Context, req AuthorizationRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(req.Currency)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.Authorize(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

// Capture delegates to the resolved provider.
func (m *Manager) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider("")
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Capture(ctx, req)
}

// CancelAuthorization delegates to the resolved provider.
func (m *Manager) CancelAuthorization(ctx context.Context, req CancelRequest) error {
	_, provider, err := m.resolveProvider("")
	if err != nil {
		return err
	}
	return provider.CancelAuthorization(ctx, req)
}

// Refund delegates to the resolved provider.
func (m *Manager) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider("")
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Refund(ctx, req)
}

// LookupPayment delegates to the resolved provider.
func (m *Manager) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider("")
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.LookupPayment(ctx, req)
}
