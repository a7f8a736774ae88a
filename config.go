package agentpay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
	"github.com/viant/afs"
	"github.com/viant/agentpay/internal/logging"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/tracing"
	"gopkg.in/yaml.v3"
)

// Storage kinds.
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageSQLite = "sqlite"
)

// Auto answer modes of the simulated voice provider.
const (
	AnswerNone    = ""
	AnswerApprove = "approve"
	AnswerReject  = "reject"
)

// Config is a serialisable representation of the service configuration. It is
// populated from YAML and overridden by environment variables; the zero value
// of any section inherits DefaultConfig.
type Config struct {
	Voice       VoiceConfig       `json:"voice" yaml:"voice"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Agent       AgentConfig       `json:"agent" yaml:"agent"`
	Events      EventsConfig      `json:"events" yaml:"events"`
	Idempotency IdempotencyConfig `json:"idempotency" yaml:"idempotency"`
	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Wallet      WalletConfig      `json:"wallet" yaml:"wallet"`
	Logging     logging.Config    `json:"logging" yaml:"logging"`
	Tracing     tracing.Config    `json:"tracing" yaml:"tracing"`
}

// VoiceConfig controls voice confirmation.
type VoiceConfig struct {
	WaitWindow   time.Duration `json:"waitWindow" yaml:"waitWindow" env:"AGENTPAY_VOICE_WAIT_WINDOW"`
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval" env:"AGENTPAY_VOICE_POLL_INTERVAL"`
	PhoneNumber  string        `json:"phoneNumber,omitempty" yaml:"phoneNumber,omitempty" env:"AGENTPAY_VOICE_PHONE_NUMBER"`
	// AutoAnswer makes the simulated provider decide connected calls: approve|reject
	AutoAnswer  string        `json:"autoAnswer,omitempty" yaml:"autoAnswer,omitempty" env:"AGENTPAY_VOICE_AUTO_ANSWER"`
	AnswerAfter time.Duration `json:"answerAfter" yaml:"answerAfter" env:"AGENTPAY_VOICE_ANSWER_AFTER"`
}

// StorageConfig selects the record store.
type StorageConfig struct {
	Kind string `json:"kind" yaml:"kind" env:"AGENTPAY_STORAGE_KIND"`
	// Path is a base URL for fs and a database file for sqlite
	Path string `json:"path,omitempty" yaml:"path,omitempty" env:"AGENTPAY_STORAGE_PATH"`
}

// AgentConfig holds the initial agent configuration. Amounts are decimal strings.
type AgentConfig struct {
	Name                      string   `json:"name" yaml:"name" env:"AGENTPAY_AGENT_NAME"`
	ApprovalThreshold         string   `json:"approvalThreshold" yaml:"approvalThreshold" env:"AGENTPAY_APPROVAL_THRESHOLD"`
	DailySpendLimit           string   `json:"dailySpendLimit" yaml:"dailySpendLimit" env:"AGENTPAY_DAILY_SPEND_LIMIT"`
	MonthlySpendLimit         string   `json:"monthlySpendLimit" yaml:"monthlySpendLimit" env:"AGENTPAY_MONTHLY_SPEND_LIMIT"`
	AuthorizedMerchants       []string `json:"authorizedMerchants,omitempty" yaml:"authorizedMerchants,omitempty" env:"AGENTPAY_AUTHORIZED_MERCHANTS" envSeparator:","`
	BlockedMerchants          []string `json:"blockedMerchants,omitempty" yaml:"blockedMerchants,omitempty" env:"AGENTPAY_BLOCKED_MERCHANTS" envSeparator:","`
	AutoApprovalEnabled       bool     `json:"autoApprovalEnabled" yaml:"autoApprovalEnabled" env:"AGENTPAY_AUTO_APPROVAL_ENABLED"`
	VoiceNotificationsEnabled bool     `json:"voiceNotificationsEnabled" yaml:"voiceNotificationsEnabled" env:"AGENTPAY_VOICE_NOTIFICATIONS_ENABLED"`
	EmergencyStopActive       bool     `json:"emergencyStopActive" yaml:"emergencyStopActive" env:"AGENTPAY_EMERGENCY_STOP_ACTIVE"`
}

// EventsConfig controls event fan-out.
type EventsConfig struct {
	SubscriberBuffer int `json:"subscriberBuffer" yaml:"subscriberBuffer" env:"AGENTPAY_EVENTS_SUBSCRIBER_BUFFER"`
}

// IdempotencyConfig controls duplicate submission detection.
type IdempotencyConfig struct {
	TTL time.Duration `json:"ttl" yaml:"ttl" env:"AGENTPAY_IDEMPOTENCY_TTL"`
}

// HTTPConfig controls the administrative HTTP surface.
type HTTPConfig struct {
	Addr      string  `json:"addr" yaml:"addr" env:"AGENTPAY_HTTP_ADDR"`
	RateLimit float64 `json:"rateLimit" yaml:"rateLimit" env:"AGENTPAY_HTTP_RATE_LIMIT"`
	Burst     int     `json:"burst" yaml:"burst" env:"AGENTPAY_HTTP_BURST"`
}

// WalletConfig describes the simulated settlement wallet.
type WalletConfig struct {
	Address  string        `json:"address" yaml:"address" env:"AGENTPAY_WALLET_ADDRESS"`
	Network  string        `json:"network" yaml:"network" env:"AGENTPAY_WALLET_NETWORK"`
	Currency string        `json:"currency" yaml:"currency" env:"AGENTPAY_WALLET_CURRENCY"`
	Balance  string        `json:"balance" yaml:"balance" env:"AGENTPAY_WALLET_BALANCE"`
	Latency  time.Duration `json:"latency" yaml:"latency" env:"AGENTPAY_WALLET_LATENCY"`
}

// DefaultConfig returns a Config populated with the service defaults. Callers
// may modify the returned struct before passing it to New.
func DefaultConfig() *Config {
	return &Config{
		Voice: VoiceConfig{
			WaitWindow:   2 * time.Minute,
			PollInterval: 500 * time.Millisecond,
			AnswerAfter:  2 * time.Second,
		},
		Storage: StorageConfig{Kind: StorageMemory},
		Agent: AgentConfig{
			Name:                      "Transaction Agent",
			ApprovalThreshold:         "100.00",
			DailySpendLimit:           "1000.00",
			MonthlySpendLimit:         "5000.00",
			AutoApprovalEnabled:       true,
			VoiceNotificationsEnabled: true,
		},
		Events:      EventsConfig{SubscriberBuffer: 100},
		Idempotency: IdempotencyConfig{TTL: 24 * time.Hour},
		HTTP:        HTTPConfig{Addr: ":8080", RateLimit: 20, Burst: 40},
		Wallet: WalletConfig{
			Address:  "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb",
			Network:  "base-sepolia",
			Currency: model.DefaultCurrency,
			Balance:  "500.00",
		},
		Logging: logging.Config{Level: "info", Format: "text"},
	}
}

// LoadConfig reads the YAML document at URL (any afs location; empty URL
// skips the file) over the defaults, then applies environment overrides.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	cfg := DefaultConfig()
	if URL != "" {
		data, err := afs.New().DownloadWithURL(ctx, URL)
		if err != nil {
			return nil, fmt.Errorf("failed to download config %v: %w", URL, err)
		}
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Voice.WaitWindow <= 0 {
		errs = append(errs, fmt.Errorf("voice.waitWindow must be > 0"))
	}
	if c.Voice.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("voice.pollInterval must be > 0"))
	}
	switch strings.ToLower(c.Voice.AutoAnswer) {
	case AnswerNone, AnswerApprove, AnswerReject:
	default:
		errs = append(errs, fmt.Errorf("voice.autoAnswer must be approve or reject, got %q", c.Voice.AutoAnswer))
	}
	switch c.Storage.Kind {
	case StorageMemory:
	case StorageFS, StorageSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for %s", c.Storage.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage.kind %q", c.Storage.Kind))
	}
	if _, err := c.Agent.config(); err != nil {
		errs = append(errs, err)
	}
	if c.Events.SubscriberBuffer <= 0 {
		errs = append(errs, fmt.Errorf("events.subscriberBuffer must be > 0"))
	}
	if c.HTTP.RateLimit < 0 || c.HTTP.Burst < 0 {
		errs = append(errs, fmt.Errorf("http rate limit must not be negative"))
	}
	if _, err := parseAmount("wallet.balance", c.Wallet.Balance); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// config converts the section into the agent configuration record. Empty
// amounts stay unset and are reported when a transaction needs them.
func (c *AgentConfig) config() (*model.AgentConfig, error) {
	ret := &model.AgentConfig{
		Name:                      c.Name,
		AuthorizedMerchants:       c.AuthorizedMerchants,
		BlockedMerchants:          c.BlockedMerchants,
		AutoApprovalEnabled:       c.AutoApprovalEnabled,
		VoiceNotificationsEnabled: c.VoiceNotificationsEnabled,
		EmergencyStopActive:       c.EmergencyStopActive,
	}
	for _, item := range []struct {
		name  string
		value string
		dest  *decimal.NullDecimal
	}{
		{"agent.approvalThreshold", c.ApprovalThreshold, &ret.ApprovalThreshold},
		{"agent.dailySpendLimit", c.DailySpendLimit, &ret.DailySpendLimit},
		{"agent.monthlySpendLimit", c.MonthlySpendLimit, &ret.MonthlySpendLimit},
	} {
		if strings.TrimSpace(item.value) == "" {
			continue
		}
		amount, err := parseAmount(item.name, item.value)
		if err != nil {
			return nil, err
		}
		*item.dest = model.Amount(amount)
	}
	return ret, ret.Validate()
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	ret, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", name, value)
	}
	if ret.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", name)
	}
	return ret, nil
}
