package decision

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/agentpay/model"
)

func TestThreshold_Decide(t *testing.T) {
	testCases := []struct {
		description string
		amount      string
		required    bool
		action      string
	}{
		{description: "below threshold", amount: "45.99", required: false, action: ActionAutoApprove},
		{description: "equal to threshold", amount: "100.00", required: true, action: ActionRequestVoiceApproval},
		{description: "above threshold", amount: "150.00", required: true, action: ActionRequestVoiceApproval},
	}
	cfg := &model.AgentConfig{ApprovalThreshold: model.MustAmount("100.00")}
	engine := NewThreshold()
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			tx := &model.Transaction{Amount: decimal.RequireFromString(tc.amount), Currency: "USDC"}
			first, err := engine.Decide(context.Background(), tx, cfg)
			require.NoError(t, err)
			second, err := engine.Decide(context.Background(), tx, cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.required, first.RequiresApproval)
			assert.Equal(t, tc.action, first.RecommendedAction)
			assert.Equal(t, first, second)
			assert.NotEmpty(t, first.Reasoning)
		})
	}
}

func TestThreshold_MissingThreshold(t *testing.T) {
	tx := &model.Transaction{Amount: decimal.NewFromInt(1)}
	_, err := NewThreshold().Decide(context.Background(), tx, &model.AgentConfig{})
	configErr := &model.ConfigurationError{}
	require.True(t, errors.As(err, &configErr))
	assert.Equal(t, "approvalThreshold", configErr.Field)
}
