package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ozerovd/linemart/internal/money"
	"github.com/ozerovd/linemart/internal/retry"
)

// NowPayProvider issues crypto invoices through a NOWPayments-style HTTP API.
// One provider instance serves all supported pay currencies; the currency is
// chosen per invoice.
type NowPayProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewNowPayProvider creates a crypto payment provider client.
func NewNowPayProvider(baseURL, apiKey string, logger *slog.Logger) *NowPayProvider {
	return &NowPayProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With("component", "nowpay"),
	}
}

type nowPayCreateRequest struct {
	PriceAmount   string `json:"price_amount"`
	PriceCurrency string `json:"price_currency"`
	PayCurrency   string `json:"pay_currency"`
}

type nowPayCreateResponse struct {
	PaymentID  string `json:"payment_id"`
	PayAddress string `json:"pay_address"`
	PayAmount  string `json:"pay_amount"`
}

type nowPayStatusResponse struct {
	PaymentStatus string `json:"payment_status"`
}

func (n *NowPayProvider) CreateInvoice(ctx context.Context, amount int64, currency string) (*Invoice, error) {
	if !IsCryptoCurrency(currency) {
		return nil, retry.Permanent(fmt.Errorf("provider: unsupported pay currency %q", currency))
	}

	body, err := json.Marshal(nowPayCreateRequest{
		PriceAmount:   money.Format(amount),
		PriceCurrency: "eur",
		PayCurrency:   currency,
	})
	if err != nil {
		return nil, err
	}

	var created nowPayCreateResponse
	err = retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/v1/payment", bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("x-api-key", n.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider: create returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return retry.Permanent(fmt.Errorf("provider: create returned %d", resp.StatusCode))
		}
		return json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&created)
	})
	if err != nil {
		n.logger.Error("crypto invoice creation failed", "currency", currency, "error", err)
		return nil, ErrUnavailable
	}

	return &Invoice{
		ID:         created.PaymentID,
		PayAddress: created.PayAddress,
		PayAmount:  created.PayAmount,
		Currency:   currency,
	}, nil
}

func (n *NowPayProvider) QueryStatus(ctx context.Context, invoiceID string) (State, error) {
	var status nowPayStatusResponse
	notFound := false

	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/v1/payment/"+invoiceID, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("x-api-key", n.apiKey)

		resp, err := n.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			notFound = true
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("provider: status returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return retry.Permanent(fmt.Errorf("provider: status returned %d", resp.StatusCode))
		}
		return json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&status)
	})
	if err != nil {
		n.logger.Error("crypto status lookup failed", "invoice_id", invoiceID, "error", err)
		return StateUnknown, ErrUnavailable
	}
	if notFound {
		return StateUnknown, nil
	}

	return normalizeCryptoStatus(status.PaymentStatus), nil
}

// normalizeCryptoStatus maps the provider's payment_status vocabulary onto
// State. "sending" counts as confirmed: funds are received and the payout
// leg is the provider's problem.
func normalizeCryptoStatus(s string) State {
	switch s {
	case "finished", "confirmed", "sending":
		return StateConfirmed
	case "waiting", "confirming", "partially_paid":
		return StatePending
	case "failed", "refunded", "expired":
		return StateFailed
	}
	return StateUnknown
}
