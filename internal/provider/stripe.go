package provider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
)

// StripeProvider issues fiat invoices as Stripe Checkout Sessions. The
// invoice PayAddress is the hosted payment page URL; the user pays in the
// browser and the session flips to paid server-side.
type StripeProvider struct {
	successURL string
	cancelURL  string
	logger     *slog.Logger
}

// NewStripeProvider configures the Stripe client. The API key is process
// global, matching the stripe-go client model.
func NewStripeProvider(apiKey, successURL, cancelURL string, logger *slog.Logger) *StripeProvider {
	stripe.Key = apiKey
	return &StripeProvider{
		successURL: successURL,
		cancelURL:  cancelURL,
		logger:     logger.With("component", "stripe"),
	}
}

func (s *StripeProvider) CreateInvoice(ctx context.Context, amount int64, currency string) (*Invoice, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String("eur"),
				UnitAmount: stripe.Int64(amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Balance top-up"),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(s.successURL),
		CancelURL:  stripe.String(s.cancelURL),
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		s.logger.Error("checkout session creation failed", "error", err)
		return nil, ErrUnavailable
	}

	return &Invoice{
		ID:         sess.ID,
		PayAddress: sess.URL,
		PayAmount:  "",
		Currency:   "eur",
	}, nil
}

func (s *StripeProvider) QueryStatus(ctx context.Context, invoiceID string) (State, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := session.Get(invoiceID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return StateUnknown, nil
		}
		s.logger.Error("checkout session lookup failed", "invoice_id", invoiceID, "error", err)
		return StateUnknown, ErrUnavailable
	}

	return normalizeStripeStatus(sess.PaymentStatus, sess.Status), nil
}

// normalizeStripeStatus maps Stripe's two-axis session state onto State.
// Payment status wins: a paid session is confirmed even while the session
// itself still reports open.
func normalizeStripeStatus(payment stripe.CheckoutSessionPaymentStatus, status stripe.CheckoutSessionStatus) State {
	if payment == stripe.CheckoutSessionPaymentStatusPaid {
		return StateConfirmed
	}
	switch status {
	case stripe.CheckoutSessionStatusComplete:
		return StateConfirmed
	case stripe.CheckoutSessionStatusExpired:
		return StateFailed
	case stripe.CheckoutSessionStatusOpen:
		return StatePending
	}
	return StateUnknown
}
