package voice

import (
	"fmt"
	"strings"

	"github.com/viant/agentpay/model"
)

// Script is what the voice agent says during an approval call.
type Script struct {
	Greeting  string   `json:"greeting"`
	Message   string   `json:"message"`
	Questions []string `json:"questions"`
	Closing   string   `json:"closing"`
}

// NewScript builds the approval call script for tx.
func NewScript(tx *model.Transaction) *Script {
	merchant := tx.Merchant
	if merchant == "" {
		merchant = "merchant"
	}
	return &Script{
		Greeting: "Hello, this is your AI transaction agent.",
		Message: fmt.Sprintf("I need your approval for a %s transaction of %s %s to %s.",
			tx.Type, tx.Amount.StringFixed(2), tx.Currency, merchant),
		Questions: []string{
			"Do you approve this transaction?",
			"Would you like me to proceed with the payment?",
		},
		Closing: "Thank you for your confirmation.",
	}
}

// NewEmergencyScript builds the emergency stop notification script.
func NewEmergencyScript(active bool) *Script {
	message := "Emergency stop has been activated. All transactions have been halted."
	if !active {
		message = "Emergency stop has been lifted. Transactions will resume."
	}
	return &Script{
		Greeting: "Hello, this is your AI transaction agent.",
		Message:  message,
		Closing:  "Goodbye.",
	}
}

// Transcript renders what the agent said on a call nobody had to answer.
func (s *Script) Transcript() string {
	if s == nil {
		return ""
	}
	lines := make([]string, 0, 3)
	for _, line := range []string{s.Greeting, s.Message, s.Closing} {
		if line != "" {
			lines = append(lines, "Agent: "+line)
		}
	}
	return strings.Join(lines, "\n")
}
