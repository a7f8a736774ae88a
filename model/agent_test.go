package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConfigPatch_Apply(t *testing.T) {
	cfg := &AgentConfig{
		Name:              "Transaction Agent",
		ApprovalThreshold: MustAmount("100"),
		DailySpendLimit:   MustAmount("1000"),
		BlockedMerchants:  []string{"a"},
	}
	threshold := decimal.RequireFromString("250")
	stop := true
	blocked := []string{"b", "c"}
	patch := &ConfigPatch{ApprovalThreshold: &threshold, EmergencyStopActive: &stop, BlockedMerchants: &blocked}

	updated := cfg.Clone()
	patch.Apply(updated)

	assert.True(t, updated.ApprovalThreshold.Decimal.Equal(threshold))
	assert.True(t, updated.DailySpendLimit.Decimal.Equal(decimal.RequireFromString("1000")))
	assert.True(t, updated.EmergencyStopActive)
	assert.Equal(t, []string{"b", "c"}, updated.BlockedMerchants)
	assert.Equal(t, []string{"a"}, cfg.BlockedMerchants)
	assert.False(t, cfg.EmergencyStopActive)
}

func TestAgentConfig_Validate(t *testing.T) {
	cfg := &AgentConfig{DailySpendLimit: MustAmount("-1")}
	assert.Error(t, cfg.Validate())
	cfg.DailySpendLimit = MustAmount("0")
	assert.NoError(t, cfg.Validate())
}
