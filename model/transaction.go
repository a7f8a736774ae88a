package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents a transaction lifecycle state.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionApproved  TransactionStatus = "approved"
	TransactionRejected  TransactionStatus = "rejected"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionRejected, TransactionCompleted, TransactionFailed:
		return true
	}
	return false
}

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:  {TransactionApproved, TransactionRejected, TransactionCompleted, TransactionFailed},
	TransactionApproved: {TransactionCompleted, TransactionFailed},
}

// TransactionType is the requested kind of spend.
type TransactionType string

const (
	TypePurchase     TransactionType = "purchase"
	TypeSubscription TransactionType = "subscription"
	TypePayment      TransactionType = "payment"
	TypeTransfer     TransactionType = "transfer"
)

// IsValid reports whether t is one of the supported transaction types.
func (t TransactionType) IsValid() bool {
	switch t {
	case TypePurchase, TypeSubscription, TypePayment, TypeTransfer:
		return true
	}
	return false
}

// DefaultCurrency is used when a request omits the currency.
const DefaultCurrency = "USDC"

// Terminal classifications recorded in Transaction.Reason.
const (
	ReasonConfirmationRejected = "confirmation-rejected"
	ReasonConfirmationTimeout  = "confirmation-timeout"
	ReasonConfirmationFailed   = "confirmation-failed"
	ReasonCancelled            = "cancelled"
	ReasonConfigurationError   = "configuration-error"
	ReasonPolicyFailed         = "policy-failed"
	ReasonDecisionFailed       = "decision-failed"
	ReasonInterrupted          = "interrupted"
	ReasonSettlementFailed     = "settlement-failed"
)

// Metadata keys written by the orchestrator.
const (
	MetadataSettlement      = "settlement"
	MetadataSettlementError = "settlementError"
	MetadataError           = "error"
)

// Transaction represents a proposed spend submitted by the agent.
type Transaction struct {
	ID               string                 `json:"id"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	Type             TransactionType        `json:"type"`
	Merchant         string                 `json:"merchant,omitempty"`
	Description      string                 `json:"description,omitempty"`
	Status           TransactionStatus      `json:"status"`
	RequiresApproval bool                   `json:"requiresApproval"`
	ApprovedViaVoice bool                   `json:"approvedViaVoice"`
	VoiceCallID      string                 `json:"voiceCallId,omitempty"`
	Reason           string                 `json:"reason,omitempty"`
	IdempotencyKey   string                 `json:"idempotencyKey,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	CompletedAt      *time.Time             `json:"completedAt,omitempty"`
}

// RecordID returns the storage key.
func (t *Transaction) RecordID() string { return t.ID }

// State returns the status as string, used by storage filters.
func (t *Transaction) State() string { return string(t.Status) }

// Created returns the creation time, used by storage backends.
func (t *Transaction) Created() time.Time { return t.CreatedAt }

// Transition moves the transaction to the next status. Reaching completed or
// failed stamps CompletedAt.
func (t *Transaction) Transition(to TransactionStatus, at time.Time) error {
	allowed := transactionTransitions[t.Status]
	for _, candidate := range allowed {
		if candidate != to {
			continue
		}
		t.Status = to
		if to == TransactionCompleted || to == TransactionFailed {
			ts := at
			t.CompletedAt = &ts
		}
		return nil
	}
	return fmt.Errorf("transaction %s: invalid transition %s -> %s", t.ID, t.Status, to)
}

// LinkVoiceCall sets the voice approval reference; it can be set only once.
func (t *Transaction) LinkVoiceCall(id string) error {
	if t.VoiceCallID != "" && t.VoiceCallID != id {
		return fmt.Errorf("transaction %s already linked to voice call %s", t.ID, t.VoiceCallID)
	}
	t.VoiceCallID = id
	return nil
}

// SetMetadata stores a metadata value, allocating the map on first use.
func (t *Transaction) SetMetadata(key string, value interface{}) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]interface{})
	}
	t.Metadata[key] = value
}

// Clone returns a deep enough copy so that callers cannot mutate shared state.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	ret := *t
	if t.Metadata != nil {
		ret.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			ret.Metadata[k] = v
		}
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		ret.CompletedAt = &ts
	}
	return &ret
}

// TransactionWithCall is a transaction together with its voice approval (if any).
type TransactionWithCall struct {
	*Transaction
	VoiceCall *VoiceApproval `json:"voiceCall,omitempty"`
}
