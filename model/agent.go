package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AgentConfig is the process wide agent configuration. A published record is
// immutable; updates replace the whole record.
type AgentConfig struct {
	ID                        string              `json:"id"`
	Name                      string              `json:"name"`
	ApprovalThreshold         decimal.NullDecimal `json:"approvalThreshold"`
	DailySpendLimit           decimal.NullDecimal `json:"dailySpendLimit"`
	MonthlySpendLimit         decimal.NullDecimal `json:"monthlySpendLimit"`
	AuthorizedMerchants       []string            `json:"authorizedMerchants"`
	BlockedMerchants          []string            `json:"blockedMerchants"`
	AutoApprovalEnabled       bool                `json:"autoApprovalEnabled"`
	VoiceNotificationsEnabled bool                `json:"voiceNotificationsEnabled"`
	EmergencyStopActive       bool                `json:"emergencyStopActive"`
	Version                   int64               `json:"version"`
	UpdatedAt                 time.Time           `json:"updatedAt"`
}

// Amount wraps a decimal into a valid NullDecimal.
func Amount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// MustAmount parses s into a valid NullDecimal, panicking on malformed input.
func MustAmount(s string) decimal.NullDecimal {
	return Amount(decimal.RequireFromString(s))
}

// Clone returns a copy with independent merchant lists.
func (c *AgentConfig) Clone() *AgentConfig {
	if c == nil {
		return nil
	}
	ret := *c
	ret.AuthorizedMerchants = append([]string(nil), c.AuthorizedMerchants...)
	ret.BlockedMerchants = append([]string(nil), c.BlockedMerchants...)
	return &ret
}

// Validate checks numeric settings that are present.
func (c *AgentConfig) Validate() error {
	for name, value := range map[string]decimal.NullDecimal{
		"approvalThreshold": c.ApprovalThreshold,
		"dailySpendLimit":   c.DailySpendLimit,
		"monthlySpendLimit": c.MonthlySpendLimit,
	} {
		if value.Valid && value.Decimal.IsNegative() {
			return &ValidationError{Field: name, Message: "must not be negative"}
		}
	}
	return nil
}

// ConfigPatch is a partial configuration update; nil fields are left unchanged.
type ConfigPatch struct {
	Name                      *string          `json:"name,omitempty"`
	ApprovalThreshold         *decimal.Decimal `json:"approvalThreshold,omitempty"`
	DailySpendLimit           *decimal.Decimal `json:"dailySpendLimit,omitempty"`
	MonthlySpendLimit         *decimal.Decimal `json:"monthlySpendLimit,omitempty"`
	AuthorizedMerchants       *[]string        `json:"authorizedMerchants,omitempty"`
	BlockedMerchants          *[]string        `json:"blockedMerchants,omitempty"`
	AutoApprovalEnabled       *bool            `json:"autoApprovalEnabled,omitempty"`
	VoiceNotificationsEnabled *bool            `json:"voiceNotificationsEnabled,omitempty"`
	EmergencyStopActive       *bool            `json:"emergencyStopActive,omitempty"`
}

// Apply writes the patch onto c.
func (p *ConfigPatch) Apply(c *AgentConfig) {
	if p == nil || c == nil {
		return
	}
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.ApprovalThreshold != nil {
		c.ApprovalThreshold = Amount(*p.ApprovalThreshold)
	}
	if p.DailySpendLimit != nil {
		c.DailySpendLimit = Amount(*p.DailySpendLimit)
	}
	if p.MonthlySpendLimit != nil {
		c.MonthlySpendLimit = Amount(*p.MonthlySpendLimit)
	}
	if p.AuthorizedMerchants != nil {
		c.AuthorizedMerchants = append([]string(nil), (*p.AuthorizedMerchants)...)
	}
	if p.BlockedMerchants != nil {
		c.BlockedMerchants = append([]string(nil), (*p.BlockedMerchants)...)
	}
	if p.AutoApprovalEnabled != nil {
		c.AutoApprovalEnabled = *p.AutoApprovalEnabled
	}
	if p.VoiceNotificationsEnabled != nil {
		c.VoiceNotificationsEnabled = *p.VoiceNotificationsEnabled
	}
	if p.EmergencyStopActive != nil {
		c.EmergencyStopActive = *p.EmergencyStopActive
	}
}

// Spend holds derived spend aggregates for one currency.
type Spend struct {
	Currency string          `json:"currency"`
	Today    decimal.Decimal `json:"today"`
	Month    decimal.Decimal `json:"month"`
}

func (s Spend) String() string {
	return fmt.Sprintf("%s today=%s month=%s", s.Currency, s.Today.StringFixed(2), s.Month.StringFixed(2))
}

// Wallet describes the settlement wallet.
type Wallet struct {
	Address   string          `json:"address"`
	Network   string          `json:"network"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Stats is the dashboard summary.
type Stats struct {
	TotalTransactions int    `json:"totalTransactions"`
	PendingApprovals  int    `json:"pendingApprovals"`
	ActiveCalls       int    `json:"activeCalls"`
	TotalSpentToday   string `json:"totalSpentToday"`
	TotalSpentMonth   string `json:"totalSpentMonth"`
	InFlight          int    `json:"inFlight"`
}
