// Package provider abstracts external payment backends behind a uniform
// invoice contract.
//
// Two adapters exist: a fiat redirect-link backend (Stripe Checkout) and a
// multi-currency crypto address backend. Both normalize their provider's
// status vocabulary into the four-way State, so the reconciliation engine
// never sees provider-specific strings.
package provider

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the backend could not be reached or returned a
// server-side failure. The invoice was not created; the user may retry.
var ErrUnavailable = errors.New("provider: payment backend unavailable")

// State is the normalized payment status.
//
// Unknown means the provider has no record of the invoice. It is never
// conflated with Failed: an unknown invoice may simply not have propagated
// yet, while a failed one is definitively dead.
type State string

const (
	StateUnknown   State = "unknown"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// MethodFiat selects the fiat redirect-link backend. Any other method value
// is a crypto currency code (eth, sol, btc, xrp, ltc).
const MethodFiat = "fiat"

// CryptoCurrencies lists the supported crypto pay currencies.
var CryptoCurrencies = []string{"eth", "sol", "btc", "xrp", "ltc"}

// Invoice is a provider-issued request for payment.
type Invoice struct {
	ID         string // provider-assigned, globally unique
	PayAddress string // crypto address or redirect URL
	PayAmount  string // amount in the pay currency, provider units
	Currency   string // pay currency ("eur" for fiat)
}

// Provider creates invoices and reports their status.
type Provider interface {
	// CreateInvoice issues an invoice for amount cents in the reference
	// currency. Amount bounds are validated by the caller.
	CreateInvoice(ctx context.Context, amount int64, currency string) (*Invoice, error)

	// QueryStatus reports the normalized state of an invoice.
	QueryStatus(ctx context.Context, invoiceID string) (State, error)
}

// IsCryptoCurrency reports whether method names a supported pay currency.
func IsCryptoCurrency(method string) bool {
	for _, c := range CryptoCurrencies {
		if c == method {
			return true
		}
	}
	return false
}
