package event

import (
	"time"

	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/internal/idgen"
	"github.com/viant/agentpay/model"
)

// Type tags a lifecycle event.
type Type string

const (
	TransactionCreated   Type = "transaction_created"
	TransactionRejected  Type = "transaction_rejected"
	TransactionApproved  Type = "transaction_approved"
	TransactionCompleted Type = "transaction_completed"
	TransactionFailed    Type = "transaction_failed"
	VoiceCallRequested   Type = "voice_call_requested"
	VoiceCallCompleted   Type = "voice_call_completed"
	ConfigUpdated        Type = "config_updated"
)

// Event is an immutable notification carrying full state snapshots. Consumers
// must treat it as a state replacement, not a delta.
type Event struct {
	ID            string               `json:"id"`
	Type          Type                 `json:"type"`
	CreatedAt     time.Time            `json:"createdAt"`
	Transaction   *model.Transaction   `json:"transaction,omitempty"`
	VoiceApproval *model.VoiceApproval `json:"call,omitempty"`
	Config        *model.AgentConfig   `json:"config,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

// NewEvent creates an event with cloned snapshots of the supplied records.
func NewEvent(eventType Type, tx *model.Transaction, approval *model.VoiceApproval) *Event {
	return &Event{
		ID:            idgen.New(),
		Type:          eventType,
		CreatedAt:     clock.Now(),
		Transaction:   tx.Clone(),
		VoiceApproval: approval.Clone(),
	}
}

// WithReason sets the reason and returns the event.
func (e *Event) WithReason(reason string) *Event {
	e.Reason = reason
	return e
}
