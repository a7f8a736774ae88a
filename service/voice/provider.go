package voice

import (
	"context"

	"github.com/viant/agentpay/model"
)

// CallRequest asks the provider to place a call.
type CallRequest struct {
	Purpose       model.VoicePurpose `json:"purpose"`
	PhoneNumber   string             `json:"phoneNumber,omitempty"`
	TransactionID string             `json:"transactionId,omitempty"`
	Script        *Script            `json:"script,omitempty"`
}

// CallHandle identifies a call at the provider.
type CallHandle struct {
	ID string `json:"id"`
}

// CallStatus is the provider view of a call. Approved is the recorded human
// decision and stays nil when the provider has none.
type CallStatus struct {
	Handle     CallHandle        `json:"handle"`
	Status     model.VoiceStatus `json:"status"`
	Transcript string            `json:"transcript,omitempty"`
	Duration   *float64          `json:"duration,omitempty"`
	Approved   *bool             `json:"approved,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// Provider places confirmation calls.
type Provider interface {
	RequestCall(ctx context.Context, request *CallRequest) (*CallHandle, error)
	GetStatus(ctx context.Context, handle CallHandle) (*CallStatus, error)
}

// Terminator is implemented by providers able to hang up a call that was
// concluded outside the provider (cancelled, timed out or completed through
// the administrative surface).
type Terminator interface {
	EndCall(ctx context.Context, handle CallHandle) error
}
