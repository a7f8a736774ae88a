package model

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var amountExpr = regexp.MustCompile(`^\d+\.?\d*$`)

// TransactionRequest is the create-transaction input.
type TransactionRequest struct {
	Amount         string                 `json:"amount"`
	Currency       string                 `json:"currency,omitempty"`
	Type           TransactionType        `json:"type"`
	Merchant       string                 `json:"merchant"`
	Description    string                 `json:"description,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
}

// Validate checks the request and returns the parsed amount.
func (r *TransactionRequest) Validate() (decimal.Decimal, error) {
	var errs ValidationErrors
	var amount decimal.Decimal
	raw := strings.TrimSpace(r.Amount)
	switch {
	case !amountExpr.MatchString(raw):
		errs = append(errs, &ValidationError{Field: "amount", Message: "must be a valid number"})
	default:
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, &ValidationError{Field: "amount", Message: "must be a valid number"})
		} else if !parsed.IsPositive() {
			errs = append(errs, &ValidationError{Field: "amount", Message: "must be greater than 0"})
		}
		amount = parsed
	}
	if !r.Type.IsValid() {
		errs = append(errs, &ValidationError{Field: "type", Message: "must be one of purchase, subscription, payment, transfer"})
	}
	if strings.TrimSpace(r.Merchant) == "" {
		errs = append(errs, &ValidationError{Field: "merchant", Message: "is required"})
	}
	if len(errs) > 0 {
		return decimal.Zero, errs
	}
	return amount, nil
}

// NewTransaction builds a pending transaction from a validated request.
func (r *TransactionRequest) NewTransaction(id string, amount decimal.Decimal, at time.Time) *Transaction {
	currency := strings.TrimSpace(r.Currency)
	if currency == "" {
		currency = DefaultCurrency
	}
	ret := &Transaction{
		ID:             id,
		Amount:         amount,
		Currency:       currency,
		Type:           r.Type,
		Merchant:       strings.TrimSpace(r.Merchant),
		Description:    r.Description,
		Status:         TransactionPending,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      at,
	}
	for k, v := range r.Metadata {
		ret.SetMetadata(k, v)
	}
	return ret
}
