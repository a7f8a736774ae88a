// Package settlement defines the payment capability used to settle approved
// transactions.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/viant/agentpay/model"
)

// ErrInsufficientFunds is returned when the wallet cannot cover a payment.
var ErrInsufficientFunds = errors.New("settlement: insufficient funds")

// Request describes one payment.
type Request struct {
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Recipient string          `json:"recipient"`
	Reference string          `json:"reference"`
}

// NewRequest builds the settlement request for tx.
func NewRequest(tx *model.Transaction) *Request {
	return &Request{Amount: tx.Amount, Currency: tx.Currency, Recipient: tx.Merchant, Reference: tx.ID}
}

// Receipt is the proof of payment appended to transaction metadata.
type Receipt struct {
	TransactionHash string          `json:"transactionHash"`
	Network         string          `json:"network"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Recipient       string          `json:"recipient"`
	Status          string          `json:"status"`
	BlockNumber     int64           `json:"blockNumber,omitempty"`
	ExplorerURL     string          `json:"explorerUrl,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Provider performs payments. Settle is never retried by the caller for the
// same transaction.
type Provider interface {
	Settle(ctx context.Context, request *Request) (*Receipt, error)
}

// WalletProvider is implemented by providers exposing the paying wallet.
type WalletProvider interface {
	Wallet(ctx context.Context) (*model.Wallet, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, request *Request) (*Receipt, error)

// Settle calls fn.
func (fn ProviderFunc) Settle(ctx context.Context, request *Request) (*Receipt, error) {
	return fn(ctx, request)
}
