package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfirmationTimeout matches a ConfirmationError caused by the wait window elapsing.
	ErrConfirmationTimeout = errors.New("voice confirmation timed out")
	// ErrConfirmationRejected matches a ConfirmationError for any other negative outcome.
	ErrConfirmationRejected = errors.New("voice confirmation rejected")
)

// ValidationError reports a malformed request; no state is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Message)
}

// ValidationErrors aggregates field level validation failures.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, item := range e {
		messages = append(messages, item.Error())
	}
	return strings.Join(messages, "; ")
}

// ConfigurationError reports a misconfigured agent; fatal for the transaction, not retried.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("agent configuration is missing %s", e.Field)
}

// PolicyDenied is a user facing denial carrying the structured reason.
type PolicyDenied struct {
	Reason    string
	Message   string
	Breakdown interface{}
}

func (e *PolicyDenied) Error() string {
	return fmt.Sprintf("transaction blocked: %s", e.Message)
}

// ConfirmationError reports a voice confirmation that did not approve the transaction.
type ConfirmationError struct {
	TransactionID string
	Outcome       VoiceOutcome
	Reason        string
}

func (e *ConfirmationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("transaction %s not confirmed: %s (%s)", e.TransactionID, e.Outcome, e.Reason)
	}
	return fmt.Sprintf("transaction %s not confirmed: %s", e.TransactionID, e.Outcome)
}

// Is supports errors.Is with ErrConfirmationTimeout and ErrConfirmationRejected.
func (e *ConfirmationError) Is(target error) bool {
	switch target {
	case ErrConfirmationTimeout:
		return e.Reason == FailureTimeout
	case ErrConfirmationRejected:
		return e.Reason != FailureTimeout
	}
	return false
}

// SettlementError reports a failed payment; the transaction moves to failed.
type SettlementError struct {
	TransactionID string
	Err           error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement of transaction %s failed: %v", e.TransactionID, e.Err)
}

func (e *SettlementError) Unwrap() error { return e.Err }

// DuplicateError reports a repeated idempotency key.
type DuplicateError struct {
	Key string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate submission for idempotency key %q", e.Key)
}
