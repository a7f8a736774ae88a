package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/policy"
	"github.com/viant/agentpay/progress"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/dao/store"
	"github.com/viant/agentpay/service/decision"
	"github.com/viant/agentpay/service/event"
	"github.com/viant/agentpay/service/settlement"
	"github.com/viant/agentpay/service/spend"
	"github.com/viant/agentpay/service/voice"
	"github.com/viant/agentpay/tracing"
)

// ErrNotCancellable is returned when a transaction is not awaiting voice
// confirmation.
var ErrNotCancellable = errors.New("transaction is not awaiting voice confirmation")

// PreCheck runs before a transaction is created; an error rejects the request
// without creating any state. A non-nil release is called when the request
// passed every check but the transaction could not be created.
type PreCheck func(ctx context.Context, request *model.TransactionRequest) (release func(), err error)

// ConfigSource provides the current agent configuration snapshot.
type ConfigSource interface {
	Snapshot() *model.AgentConfig
}

// Config holds orchestrator settings.
type Config struct {
	AgentID           string
	VoiceWaitWindow   time.Duration
	VoicePollInterval time.Duration
	PhoneNumber       string
}

// DefaultConfig returns the default settings
func DefaultConfig() Config {
	return Config{
		AgentID:           "default",
		VoiceWaitWindow:   2 * time.Minute,
		VoicePollInterval: 500 * time.Millisecond,
	}
}

// Service is the transaction lifecycle orchestrator.
type Service struct {
	agents       ConfigSource
	voice        *voice.Service
	settlement   settlement.Provider
	transactions dao.Service[string, model.Transaction]
	policy       policy.Evaluator
	decider      decision.Decider
	publisher    event.Publisher
	ledger       *spend.Ledger
	preChecks    []PreCheck
	progress     *progress.Progress
	logger       *slog.Logger
	config       Config

	mux  sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

func transactionKey(t *model.Transaction) string { return t.ID }

// New creates an orchestrator. Voice and settlement providers are required;
// every other collaborator has an in-memory default.
func New(agents ConfigSource, voiceService *voice.Service, settlementProvider settlement.Provider, opts ...Option) (*Service, error) {
	if agents == nil {
		return nil, fmt.Errorf("agent configuration source was nil")
	}
	if voiceService == nil {
		return nil, fmt.Errorf("voice service was nil")
	}
	if settlementProvider == nil {
		return nil, fmt.Errorf("settlement provider was nil")
	}
	ret := &Service{
		agents:     agents,
		voice:      voiceService,
		settlement: settlementProvider,
		policy:     policy.NewLimits(),
		decider:    decision.NewThreshold(),
		publisher:  event.Nop(),
		progress:   progress.New(),
		logger:     slog.Default(),
		config:     DefaultConfig(),
		runs:       make(map[string]*run),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.transactions == nil {
		ret.transactions = store.NewMemoryStore[string, model.Transaction](transactionKey)
	}
	if ret.ledger == nil {
		ret.ledger = spend.New(ret.transactions)
	}
	if ret.config.AgentID == "" {
		ret.config.AgentID = DefaultConfig().AgentID
	}
	return ret, nil
}

// Progress returns the live pipeline counters.
func (s *Service) Progress() progress.Progress {
	return s.progress.Snapshot()
}

// Ledger returns the spend ledger.
func (s *Service) Ledger() *spend.Ledger {
	return s.ledger
}

// Shutdown waits for in-flight voice confirmations to finish or ctx to be done.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// save persists the transaction and publishes the event describing its
// current state.
func (s *Service) save(ctx context.Context, tx *model.Transaction, eventType event.Type, approval *model.VoiceApproval) error {
	if err := s.transactions.Save(ctx, tx); err != nil {
		s.logger.Error("failed to save transaction", "tx", tx.ID, "status", tx.Status, "error", err)
		return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
	}
	tracing.RecordTransition(ctx, tx.ID, string(tx.Status), tx.Reason)
	if eventType != "" {
		s.publisher.Publish(ctx, event.NewEvent(eventType, tx, approval).WithReason(tx.Reason))
	}
	return nil
}

func terminalEvent(status model.TransactionStatus) event.Type {
	switch status {
	case model.TransactionRejected:
		return event.TransactionRejected
	case model.TransactionCompleted:
		return event.TransactionCompleted
	case model.TransactionFailed:
		return event.TransactionFailed
	case model.TransactionApproved:
		return event.TransactionApproved
	}
	return ""
}

// finish moves tx to a terminal status, releases its reservation and
// publishes the outcome.
func (s *Service) finish(ctx context.Context, tx *model.Transaction, status model.TransactionStatus, reason string, approval *model.VoiceApproval) error {
	if err := tx.Transition(status, clock.Now()); err != nil {
		return err
	}
	if reason != "" {
		tx.Reason = reason
	}
	err := s.save(ctx, tx, terminalEvent(status), approval)
	// a settled transaction that failed to persist keeps its reservation
	switch {
	case status != model.TransactionCompleted:
		s.ledger.Release(tx.ID)
	case err == nil:
		s.ledger.Commit(tx.ID)
	}
	s.logger.Info("transaction finished", "tx", tx.ID, "status", tx.Status, "reason", tx.Reason)
	return err
}
