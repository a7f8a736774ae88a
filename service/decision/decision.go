// Package decision determines whether an admitted transaction needs human
// confirmation before settlement.
package decision

import (
	"context"
	"fmt"

	"github.com/viant/agentpay/model"
)

// Recommended actions.
const (
	ActionRequestVoiceApproval = "request_voice_approval"
	ActionAutoApprove          = "auto_approve"
)

// Decision is the engine outcome. Only RequiresApproval drives the pipeline;
// the remaining fields are explanatory.
type Decision struct {
	RequiresApproval  bool   `json:"requiresApproval"`
	Reasoning         string `json:"reasoning"`
	RecommendedAction string `json:"recommendedAction"`
}

// Decider decides whether a transaction requires approval.
type Decider interface {
	Decide(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig) (*Decision, error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig) (*Decision, error)

// Decide calls fn.
func (fn DeciderFunc) Decide(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig) (*Decision, error) {
	return fn(ctx, tx, cfg)
}

// Threshold requires approval when the amount reaches the configured
// approval threshold.
type Threshold struct{}

// NewThreshold creates a threshold engine
func NewThreshold() *Threshold { return &Threshold{} }

// Decide returns a deterministic decision for tx.
func (t *Threshold) Decide(_ context.Context, tx *model.Transaction, cfg *model.AgentConfig) (*Decision, error) {
	if cfg == nil || !cfg.ApprovalThreshold.Valid {
		return nil, &model.ConfigurationError{Field: "approvalThreshold"}
	}
	threshold := cfg.ApprovalThreshold.Decimal
	if tx.Amount.GreaterThanOrEqual(threshold) {
		return &Decision{
			RequiresApproval:  true,
			Reasoning:         fmt.Sprintf("transaction amount (%s %s) reaches approval threshold (%s); voice confirmation required", tx.Amount.StringFixed(2), tx.Currency, threshold.StringFixed(2)),
			RecommendedAction: ActionRequestVoiceApproval,
		}, nil
	}
	return &Decision{
		Reasoning:         fmt.Sprintf("transaction amount (%s %s) is within auto-approval limit (%s); processing automatically", tx.Amount.StringFixed(2), tx.Currency, threshold.StringFixed(2)),
		RecommendedAction: ActionAutoApprove,
	}, nil
}

var _ Decider = (*Threshold)(nil)
