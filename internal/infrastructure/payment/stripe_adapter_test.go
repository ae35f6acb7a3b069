package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/form"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/tenant"
)

// mockBackend implements stripe.Backend for testing
type mockBackend struct {
	lastMethod string
	lastPath   string
	lastKey    string
	response   any
	err        error
}

func (m *mockBackend) Call(method, path, key string, params stripe.ParamsContainer, v stripe.LastResponseSetter) error {
	m.lastMethod = method
	m.lastPath = path
	m.lastKey = key
	if m.err != nil {
		return m.err
	}
	data, err := json.Marshal(m.response)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (m *mockBackend) CallStreaming(method, path, key string, params stripe.ParamsContainer, v stripe.StreamingLastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallRaw(method, path, key string, body *form.Values, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) CallMultipart(method, path, key, boundary string, body *bytes.Buffer, params *stripe.Params, v stripe.LastResponseSetter) error {
	return nil
}

func (m *mockBackend) SetMaxNetworkRetries(maxNetworkRetries int64) {}

func newMockAdapter(response any) (*StripeAdapter, *mockBackend) {
	backend := &mockBackend{response: response}
	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}
	return NewStripeAdapter(zap.NewNop(), WithBackends(backends)), backend
}

func stripeSettings() tenant.PaymentSettings {
	return tenant.PaymentSettings{
		Provider:     ProviderStripe,
		StripeAPIKey: "sk_test_tenant_a",
	}
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"19.99", "usd", 1999},
		{"19.99", "USD", 1999},
		{"0.01", "eur", 1},
		{"100", "usd", 10000},
		{"1500", "jpy", 1500},
		{"1500.4", "jpy", 1500},
	}
	for _, tt := range tests {
		amount := decimal.RequireFromString(tt.amount)
		assert.Equal(t, tt.want, MinorUnits(amount, tt.currency), "%s %s", tt.amount, tt.currency)
	}
}

func TestStripeAdapter_Charge(t *testing.T) {
	ctx := context.Background()

	t.Run("creates an intent with the tenant key", func(t *testing.T) {
		adapter, backend := newMockAdapter(map[string]any{
			"id":            "pi_123",
			"client_secret": "pi_123_secret",
			"status":        "requires_payment_method",
			"created":       1700000000,
		})

		out, err := adapter.Charge(ctx, stripeSettings(), ChargeInput{
			TenantID: uuid.New(),
			OrderID:  "order-1",
			Amount:   decimal.RequireFromString("19.99"),
			Currency: "USD",
		})
		require.NoError(t, err)

		assert.Equal(t, "pi_123", out.IntentID)
		assert.Equal(t, "pi_123_secret", out.ClientSecret)
		assert.Equal(t, "requires_payment_method", out.Status)
		assert.Equal(t, "usd", out.Currency)
		assert.Equal(t, "sk_test_tenant_a", backend.lastKey, "call signed with the tenant's key")
		assert.Equal(t, "/v1/payment_intents", backend.lastPath)
	})

	t.Run("tenant keys do not leak across calls", func(t *testing.T) {
		adapter, backend := newMockAdapter(map[string]any{"id": "pi_1", "status": "succeeded"})

		other := stripeSettings()
		other.StripeAPIKey = "sk_test_tenant_b"

		_, err := adapter.Charge(ctx, stripeSettings(), ChargeInput{TenantID: uuid.New(), Amount: decimal.NewFromInt(5), Currency: "usd"})
		require.NoError(t, err)
		_, err = adapter.Charge(ctx, other, ChargeInput{TenantID: uuid.New(), Amount: decimal.NewFromInt(5), Currency: "usd"})
		require.NoError(t, err)

		assert.Equal(t, "sk_test_tenant_b", backend.lastKey)
	})

	t.Run("rejects non-stripe tenants", func(t *testing.T) {
		adapter, _ := newMockAdapter(nil)
		settings := tenant.PaymentSettings{Provider: "manual"}

		_, err := adapter.Charge(ctx, settings, ChargeInput{Amount: decimal.NewFromInt(1), Currency: "usd"})
		assert.ErrorIs(t, err, ErrProviderMismatch)
	})

	t.Run("rejects a missing key", func(t *testing.T) {
		adapter, _ := newMockAdapter(nil)
		settings := tenant.PaymentSettings{Provider: ProviderStripe}

		_, err := adapter.Charge(ctx, settings, ChargeInput{Amount: decimal.NewFromInt(1), Currency: "usd"})
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("rejects non-positive amounts", func(t *testing.T) {
		adapter, _ := newMockAdapter(nil)

		_, err := adapter.Charge(ctx, stripeSettings(), ChargeInput{Amount: decimal.Zero, Currency: "usd"})
		assert.Error(t, err)
	})
}

func TestStripeAdapter_Refund(t *testing.T) {
	ctx := context.Background()
	adapter, backend := newMockAdapter(map[string]any{
		"id":     "re_123",
		"status": "succeeded",
	})

	out, err := adapter.Refund(ctx, stripeSettings(), RefundInput{
		TenantID: uuid.New(),
		IntentID: "pi_123",
		Amount:   decimal.RequireFromString("5.00"),
		Currency: "usd",
	})
	require.NoError(t, err)

	assert.Equal(t, "re_123", out.RefundID)
	assert.Equal(t, "succeeded", out.Status)
	assert.Equal(t, "/v1/refunds", backend.lastPath)
}

func TestStripeAdapter_GetIntent(t *testing.T) {
	ctx := context.Background()
	adapter, _ := newMockAdapter(map[string]any{
		"id":       "pi_123",
		"status":   "succeeded",
		"amount":   1999,
		"currency": "usd",
		"created":  1700000000,
	})

	out, err := adapter.GetIntent(ctx, stripeSettings(), "pi_123")
	require.NoError(t, err)

	assert.Equal(t, "pi_123", out.IntentID)
	assert.Equal(t, "succeeded", out.Status)
	assert.True(t, out.Amount.Equal(decimal.RequireFromString("19.99")), "minor units converted back, got %s", out.Amount)
}
