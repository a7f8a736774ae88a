package policy

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/viant/agentpay/model"
)

// Denial reasons, reported in priority order.
const (
	ReasonEmergencyStop        = "emergency-stop"
	ReasonDailyLimit           = "daily-limit"
	ReasonMonthlyLimit         = "monthly-limit"
	ReasonBlockedMerchant      = "blocked-merchant"
	ReasonUnauthorizedMerchant = "unauthorized-merchant"
	approvedMessage            = "transaction within all spending limits"
)

// Evaluator admits or denies a proposed transaction. Implementations must not
// mutate their inputs and must be safe for concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig, spend *model.Spend) (*Verdict, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig, spend *model.Spend) (*Verdict, error)

// Evaluate calls fn.
func (fn EvaluatorFunc) Evaluate(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig, spend *model.Spend) (*Verdict, error) {
	return fn(ctx, tx, cfg, spend)
}

// Verdict is the policy outcome.
type Verdict struct {
	Approved  bool       `json:"approved"`
	Reason    string     `json:"reason,omitempty"`
	Message   string     `json:"message"`
	Breakdown *Breakdown `json:"breakdown"`
}

// Denial converts a negative verdict into the user facing error.
func (v *Verdict) Denial() error {
	if v == nil || v.Approved {
		return nil
	}
	return &model.PolicyDenied{Reason: v.Reason, Message: v.Message, Breakdown: v.Breakdown}
}

// Window describes one spend limit window.
type Window struct {
	Spent     decimal.Decimal `json:"spent"`
	Limit     decimal.Decimal `json:"limit"`
	Remaining decimal.Decimal `json:"remaining"`
	Projected decimal.Decimal `json:"projected"`
	Within    bool            `json:"within"`
}

func newWindow(spent, limit, amount decimal.Decimal) Window {
	projected := spent.Add(amount)
	return Window{
		Spent:     spent,
		Limit:     limit,
		Remaining: limit.Sub(spent),
		Projected: projected,
		Within:    projected.LessThanOrEqual(limit),
	}
}

// Breakdown carries every check so that a denial can be explained.
type Breakdown struct {
	Currency            string `json:"currency"`
	Daily               Window `json:"daily"`
	Monthly             Window `json:"monthly"`
	MerchantBlocked     bool   `json:"merchantBlocked"`
	MerchantAuthorized  bool   `json:"merchantAuthorized"`
	EmergencyStopActive bool   `json:"emergencyStopActive"`
}

// Limits is the spend-limit and merchant-rule evaluator.
type Limits struct{}

// NewLimits creates a limits evaluator
func NewLimits() *Limits { return &Limits{} }

// Evaluate checks the emergency stop, the daily and monthly windows and the
// merchant lists, reporting the first failing check.
func (l *Limits) Evaluate(_ context.Context, tx *model.Transaction, cfg *model.AgentConfig, spend *model.Spend) (*Verdict, error) {
	if cfg == nil {
		return nil, &model.ConfigurationError{Field: "agent configuration"}
	}
	if !cfg.DailySpendLimit.Valid {
		return nil, &model.ConfigurationError{Field: "dailySpendLimit"}
	}
	if !cfg.MonthlySpendLimit.Valid {
		return nil, &model.ConfigurationError{Field: "monthlySpendLimit"}
	}
	if spend == nil {
		spend = &model.Spend{Currency: tx.Currency}
	}
	rules := &Rules{AllowList: cfg.AuthorizedMerchants, BlockList: cfg.BlockedMerchants}
	breakdown := &Breakdown{
		Currency:            tx.Currency,
		Daily:               newWindow(spend.Today, cfg.DailySpendLimit.Decimal, tx.Amount),
		Monthly:             newWindow(spend.Month, cfg.MonthlySpendLimit.Decimal, tx.Amount),
		MerchantBlocked:     rules.IsBlocked(tx.Merchant),
		MerchantAuthorized:  rules.IsAuthorized(tx.Merchant),
		EmergencyStopActive: cfg.EmergencyStopActive,
	}
	verdict := &Verdict{Breakdown: breakdown}
	switch {
	case breakdown.EmergencyStopActive:
		verdict.Reason, verdict.Message = ReasonEmergencyStop, "emergency stop is active"
	case !breakdown.Daily.Within:
		verdict.Reason = ReasonDailyLimit
		verdict.Message = fmt.Sprintf("daily spending limit exceeded: %s + %s > %s %s",
			breakdown.Daily.Spent.StringFixed(2), tx.Amount.StringFixed(2), breakdown.Daily.Limit.StringFixed(2), tx.Currency)
	case !breakdown.Monthly.Within:
		verdict.Reason = ReasonMonthlyLimit
		verdict.Message = fmt.Sprintf("monthly spending limit exceeded: %s + %s > %s %s",
			breakdown.Monthly.Spent.StringFixed(2), tx.Amount.StringFixed(2), breakdown.Monthly.Limit.StringFixed(2), tx.Currency)
	case breakdown.MerchantBlocked:
		verdict.Reason, verdict.Message = ReasonBlockedMerchant, fmt.Sprintf("merchant %q is blocked", tx.Merchant)
	case !breakdown.MerchantAuthorized:
		verdict.Reason, verdict.Message = ReasonUnauthorizedMerchant, fmt.Sprintf("merchant %q is not authorized", tx.Merchant)
	default:
		verdict.Approved, verdict.Message = true, approvedMessage
	}
	return verdict, nil
}

var _ Evaluator = (*Limits)(nil)
