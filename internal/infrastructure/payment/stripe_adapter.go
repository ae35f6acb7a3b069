package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/tenant"
)

// ProviderStripe is the provider name expected in tenant payment settings
const ProviderStripe = "stripe"

var (
	ErrProviderMismatch = errors.New("payment: tenant is not configured for stripe")
	ErrMissingAPIKey    = errors.New("payment: tenant has no stripe api key")
)

// zeroDecimalCurrencies have no minor unit; amounts are sent as-is.
var zeroDecimalCurrencies = map[string]struct{}{
	"jpy": {}, "krw": {}, "vnd": {}, "clp": {}, "xof": {}, "xaf": {},
}

// StripeAdapter charges and refunds through Stripe using each tenant's own
// API key. It holds no per-tenant state; the key travels with every call.
type StripeAdapter struct {
	backends *stripe.Backends // nil selects the default HTTP backends
	logger   *zap.Logger
}

// AdapterOption configures a StripeAdapter
type AdapterOption func(*StripeAdapter)

// WithBackends overrides the Stripe transport. Used by tests.
func WithBackends(backends *stripe.Backends) AdapterOption {
	return func(a *StripeAdapter) {
		a.backends = backends
	}
}

// NewStripeAdapter creates a new Stripe adapter
func NewStripeAdapter(logger *zap.Logger, opts ...AdapterOption) *StripeAdapter {
	a := &StripeAdapter{logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// clientFor builds a Stripe client bound to the tenant's API key
func (a *StripeAdapter) clientFor(settings tenant.PaymentSettings) (*client.API, error) {
	if settings.Provider != ProviderStripe {
		return nil, ErrProviderMismatch
	}
	if settings.StripeAPIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return client.New(settings.StripeAPIKey, a.backends), nil
}

// MinorUnits converts a decimal amount to the currency's smallest unit as
// Stripe expects it.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if _, zero := zeroDecimalCurrencies[strings.ToLower(currency)]; zero {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// ChargeInput describes a payment to collect
type ChargeInput struct {
	TenantID      uuid.UUID
	OrderID       string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	PaymentMethod string
	CustomerEmail string
}

// ChargeOutput is the adapter's view of a created payment intent
type ChargeOutput struct {
	IntentID     string
	ClientSecret string
	Status       string
	Amount       decimal.Decimal
	Currency     string
	CreatedAt    time.Time
}

// Charge creates a payment intent with the tenant's key. The order id is
// carried in metadata so webhooks can be matched back.
func (a *StripeAdapter) Charge(ctx context.Context, settings tenant.PaymentSettings, input ChargeInput) (*ChargeOutput, error) {
	api, err := a.clientFor(settings)
	if err != nil {
		return nil, err
	}
	if input.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("payment: non-positive amount %s", input.Amount)
	}
	currency := strings.ToLower(input.Currency)

	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(MinorUnits(input.Amount, currency)),
		Currency: stripe.String(currency),
		Metadata: map[string]string{
			"tenant_id": input.TenantID.String(),
			"order_id":  input.OrderID,
		},
	}
	if input.Description != "" {
		params.Description = stripe.String(input.Description)
	}
	if input.PaymentMethod != "" {
		params.PaymentMethod = stripe.String(input.PaymentMethod)
		params.Confirm = stripe.Bool(true)
	}
	if input.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(input.CustomerEmail)
	}

	intent, err := api.PaymentIntents.New(params)
	if err != nil {
		a.logger.Error("stripe charge failed",
			zap.String("tenant_id", input.TenantID.String()),
			zap.String("order_id", input.OrderID),
			zap.Error(err))
		return nil, fmt.Errorf("payment: create intent: %w", err)
	}

	a.logger.Info("stripe intent created",
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("intent_id", intent.ID),
		zap.String("status", string(intent.Status)))

	return &ChargeOutput{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		Amount:       input.Amount,
		Currency:     currency,
		CreatedAt:    time.Unix(intent.Created, 0),
	}, nil
}

// RefundInput describes a refund against an earlier intent. A zero Amount
// refunds the full charge.
type RefundInput struct {
	TenantID uuid.UUID
	IntentID string
	Amount   decimal.Decimal
	Currency string
	Reason   string
}

// RefundOutput is the adapter's view of a created refund
type RefundOutput struct {
	RefundID string
	Status   string
}

// Refund reverses a payment, fully or partially
func (a *StripeAdapter) Refund(ctx context.Context, settings tenant.PaymentSettings, input RefundInput) (*RefundOutput, error) {
	api, err := a.clientFor(settings)
	if err != nil {
		return nil, err
	}

	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(input.IntentID),
	}
	if input.Amount.Sign() > 0 {
		params.Amount = stripe.Int64(MinorUnits(input.Amount, input.Currency))
	}
	if input.Reason != "" {
		params.Reason = stripe.String(input.Reason)
	}

	refund, err := api.Refunds.New(params)
	if err != nil {
		a.logger.Error("stripe refund failed",
			zap.String("tenant_id", input.TenantID.String()),
			zap.String("intent_id", input.IntentID),
			zap.Error(err))
		return nil, fmt.Errorf("payment: create refund: %w", err)
	}

	return &RefundOutput{
		RefundID: refund.ID,
		Status:   string(refund.Status),
	}, nil
}

// GetIntent fetches the current state of a payment intent
func (a *StripeAdapter) GetIntent(ctx context.Context, settings tenant.PaymentSettings, intentID string) (*ChargeOutput, error) {
	api, err := a.clientFor(settings)
	if err != nil {
		return nil, err
	}

	intent, err := api.PaymentIntents.Get(intentID, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("payment: get intent: %w", err)
	}

	currency := string(intent.Currency)
	amount := decimal.NewFromInt(intent.Amount)
	if _, zero := zeroDecimalCurrencies[currency]; !zero {
		amount = amount.Shift(-2)
	}

	return &ChargeOutput{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
		Amount:       amount,
		Currency:     currency,
		CreatedAt:    time.Unix(intent.Created, 0),
	}, nil
}
