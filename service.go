package agentpay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/viant/afs/url"
	"github.com/viant/agentpay/internal/logging"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/progress"
	"github.com/viant/agentpay/runtime/orchestrator"
	"github.com/viant/agentpay/service/agent"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/dao/store"
	"github.com/viant/agentpay/service/event"
	"github.com/viant/agentpay/service/idempotency"
	"github.com/viant/agentpay/service/messaging/memory"
	"github.com/viant/agentpay/service/settlement"
	smemory "github.com/viant/agentpay/service/settlement/memory"
	"github.com/viant/agentpay/service/voice"
	vmemory "github.com/viant/agentpay/service/voice/memory"
)

// ErrWalletUnavailable is returned when the settlement provider does not
// expose a wallet.
var ErrWalletUnavailable = errors.New("settlement provider does not expose a wallet")

// Service wires every component and exposes the operations of the
// administrative surface.
type Service struct {
	config        *Config
	logger        *slog.Logger
	agents        *agent.Store
	events        *event.Service
	voice         *voice.Service
	voiceProvider voice.Provider
	settlement    settlement.Provider
	guard         *idempotency.Guard
	orchestrator  *orchestrator.Service
	transactions  dao.Service[string, model.Transaction]
	approvals     dao.Service[string, model.VoiceApproval]
	db            *sql.DB
	stopAnswer    func()
	wg            sync.WaitGroup
}

func transactionKey(t *model.Transaction) string { return t.ID }
func approvalKey(v *model.VoiceApproval) string { return v.ID }

// New creates the service from config and recovers transactions left
// non-terminal by a previous process.
func New(ctx context.Context, config *Config, options ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{config: config}
	for _, option := range options {
		option(ret)
	}
	if err := ret.init(ctx); err != nil {
		ret.close()
		return nil, err
	}
	if recovered, err := ret.orchestrator.Recover(ctx); err != nil {
		ret.close()
		return nil, fmt.Errorf("failed to recover transactions: %w", err)
	} else if recovered > 0 {
		ret.logger.Info("recovered transactions", "count", recovered)
	}
	return ret, nil
}

func (s *Service) init(ctx context.Context) error {
	if s.logger == nil {
		s.logger = logging.New(s.config.Logging)
	}
	if err := s.ensureStores(ctx); err != nil {
		return err
	}
	s.events = event.New(
		event.WithQueueConfig(memory.Config{QueueBuffer: s.config.Events.SubscriberBuffer}),
		event.WithLogger(s.logger))

	initial, err := s.config.Agent.config()
	if err != nil {
		return err
	}
	initial.ID = agent.DefaultID
	if s.agents, err = agent.New(initial, agent.WithPublisher(s.events)); err != nil {
		return err
	}

	if s.voiceProvider == nil {
		s.voiceProvider = vmemory.New(vmemory.WithAnswerAfter(s.config.Voice.AnswerAfter))
	}
	s.voice = voice.New(s.voiceProvider, voice.WithStore(s.approvals), voice.WithLogger(s.logger))
	switch strings.ToLower(s.config.Voice.AutoAnswer) {
	case AnswerApprove:
		s.stopAnswer = voice.AutoApprove(context.Background(), s.voice, s.config.Voice.PollInterval)
	case AnswerReject:
		s.stopAnswer = voice.AutoReject(context.Background(), s.voice, s.config.Voice.PollInterval)
	}

	if s.settlement == nil {
		balance, _ := parseAmount("wallet.balance", s.config.Wallet.Balance)
		s.settlement = smemory.New(smemory.Config{
			Address:  s.config.Wallet.Address,
			Network:  s.config.Wallet.Network,
			Currency: s.config.Wallet.Currency,
			Balance:  balance,
			Latency:  s.config.Wallet.Latency,
		})
	}

	s.guard = idempotency.New(s.config.Idempotency.TTL)
	s.orchestrator, err = orchestrator.New(s.agents, s.voice, s.settlement,
		orchestrator.WithTransactionStore(s.transactions),
		orchestrator.WithPublisher(s.events),
		orchestrator.WithLogger(s.logger),
		orchestrator.WithPreCheck(func(ctx context.Context, request *model.TransactionRequest) (func(), error) {
			return s.guard.Claim(ctx, request.IdempotencyKey)
		}),
		orchestrator.WithConfig(orchestrator.Config{
			AgentID:           agent.DefaultID,
			VoiceWaitWindow:   s.config.Voice.WaitWindow,
			VoicePollInterval: s.config.Voice.PollInterval,
			PhoneNumber:       s.config.Voice.PhoneNumber,
		}))
	return err
}

// ensureStores builds the record stores selected by Config.Storage unless
// supplied as options.
func (s *Service) ensureStores(ctx context.Context) error {
	if s.transactions != nil && s.approvals != nil {
		return nil
	}
	switch s.config.Storage.Kind {
	case StorageFS:
		if s.transactions == nil {
			transactions, err := store.NewFileStore[model.Transaction](ctx, url.Join(s.config.Storage.Path, "transactions"), transactionKey)
			if err != nil {
				return err
			}
			s.transactions = transactions
		}
		if s.approvals == nil {
			approvals, err := store.NewFileStore[model.VoiceApproval](ctx, url.Join(s.config.Storage.Path, "calls"), approvalKey)
			if err != nil {
				return err
			}
			s.approvals = approvals
		}
	case StorageSQLite:
		db, err := store.OpenSQLite(s.config.Storage.Path)
		if err != nil {
			return err
		}
		s.db = db
		if s.transactions == nil {
			s.transactions = store.NewSQLStore[model.Transaction](db, "transaction")
		}
		if s.approvals == nil {
			s.approvals = store.NewSQLStore[model.VoiceApproval](db, "voice_approval")
		}
	default:
		if s.transactions == nil {
			s.transactions = store.NewMemoryStore[string, model.Transaction](transactionKey)
		}
		if s.approvals == nil {
			s.approvals = store.NewMemoryStore[string, model.VoiceApproval](approvalKey)
		}
	}
	return nil
}

// Submit starts a transaction; see orchestrator.Service.Submit.
func (s *Service) Submit(ctx context.Context, request *model.TransactionRequest) (*orchestrator.Submission, error) {
	return s.orchestrator.Submit(ctx, request)
}

// Process submits a transaction and waits for its terminal status.
func (s *Service) Process(ctx context.Context, request *model.TransactionRequest) (*model.Transaction, error) {
	return s.orchestrator.Process(ctx, request)
}

// Cancel rejects a transaction awaiting voice confirmation.
func (s *Service) Cancel(ctx context.Context, id string) (*model.Transaction, error) {
	return s.orchestrator.Cancel(ctx, id)
}

// Transaction returns a transaction with its voice call.
func (s *Service) Transaction(ctx context.Context, id string) (*model.TransactionWithCall, error) {
	return s.orchestrator.Transaction(ctx, id)
}

// Transactions lists transactions, newest first, optionally filtered by status.
func (s *Service) Transactions(ctx context.Context, statuses ...string) ([]*model.Transaction, error) {
	if len(statuses) == 0 {
		return s.orchestrator.Transactions(ctx)
	}
	return s.orchestrator.Transactions(ctx, dao.WithStatus(statuses...))
}

// RecentTransactions returns up to limit newest transactions with their calls.
func (s *Service) RecentTransactions(ctx context.Context, limit int) ([]*model.TransactionWithCall, error) {
	return s.orchestrator.Recent(ctx, limit)
}

// VoiceCalls lists voice calls, newest first.
func (s *Service) VoiceCalls(ctx context.Context) ([]*model.VoiceApproval, error) {
	return s.voice.List(ctx)
}

// RecentCalls returns up to limit newest voice calls.
func (s *Service) RecentCalls(ctx context.Context, limit int) ([]*model.VoiceApproval, error) {
	calls, err := s.voice.List(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(calls) > limit {
		calls = calls[:limit]
	}
	return calls, nil
}

// CompleteVoiceCall records the human decision for the call identified by its
// id or provider handle. Completing a terminal call returns it unchanged.
func (s *Service) CompleteVoiceCall(ctx context.Context, handle, transcript string, approved bool, duration *float64) (*model.VoiceApproval, error) {
	call, err := s.voice.LookupByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	call, changed, err := s.voice.Complete(ctx, call.ID, transcript, approved, duration)
	if err != nil {
		return nil, err
	}
	if !changed {
		s.logger.Debug("voice call already terminal", "call", call.ID, "status", call.Status)
	}
	return call, nil
}

// Config returns the current agent configuration.
func (s *Service) Config() *model.AgentConfig {
	return s.agents.Snapshot().Clone()
}

// UpdateConfig applies a partial update; subsequent submissions see it.
func (s *Service) UpdateConfig(ctx context.Context, patch *model.ConfigPatch) (*model.AgentConfig, error) {
	return s.agents.Update(ctx, patch)
}

// EmergencyStop toggles the emergency stop. When voice notifications are
// enabled an emergency call announces the change; its failure does not undo
// the toggle.
func (s *Service) EmergencyStop(ctx context.Context, active bool) (*model.AgentConfig, error) {
	cfg, err := s.agents.Update(ctx, &model.ConfigPatch{EmergencyStopActive: &active})
	if err != nil {
		return nil, err
	}
	s.logger.Warn("emergency stop toggled", "active", active)
	if cfg.VoiceNotificationsEnabled {
		s.notify(ctx, model.PurposeEmergency, voice.NewEmergencyScript(active))
	}
	return cfg, nil
}

// notify places a call not linked to any transaction and delivers its
// message in the background once the call connects.
func (s *Service) notify(ctx context.Context, purpose model.VoicePurpose, script *voice.Script) {
	call, err := s.voice.Create(ctx, "", purpose)
	if err != nil {
		s.logger.Warn("failed to create notification call", "purpose", purpose, "error", err)
		return
	}
	dialed, err := s.voice.Dial(ctx, call.ID, &voice.CallRequest{
		Purpose:     purpose,
		PhoneNumber: s.config.Voice.PhoneNumber,
		Script:      script,
	})
	if err != nil || dialed == nil || dialed.Status.IsTerminal() {
		s.logger.Warn("failed to place notification call", "call", call.ID, "error", err)
		return
	}
	s.events.Publish(ctx, event.NewEvent(event.VoiceCallRequested, nil, dialed))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx := context.WithoutCancel(ctx)
		ended, err := s.voice.Deliver(ctx, call.ID, script, s.config.Voice.WaitWindow, s.config.Voice.PollInterval)
		if err != nil {
			s.logger.Warn("notification call failed", "call", call.ID, "error", err)
			return
		}
		s.events.Publish(ctx, event.NewEvent(event.VoiceCallCompleted, nil, ended))
	}()
}

// Stats returns the dashboard summary.
func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	transactions, err := s.transactions.List(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.voice.Pending(ctx)
	if err != nil {
		return nil, err
	}
	spend, err := s.orchestrator.Ledger().Totals(ctx, s.config.Wallet.Currency)
	if err != nil {
		return nil, err
	}
	return &model.Stats{
		TotalTransactions: len(transactions),
		PendingApprovals:  len(s.orchestrator.Awaiting()),
		ActiveCalls:       len(active),
		TotalSpentToday:   spend.Today.StringFixed(2),
		TotalSpentMonth:   spend.Month.StringFixed(2),
		InFlight:          s.orchestrator.Progress().InFlight(),
	}, nil
}

// Progress returns the live pipeline counters.
func (s *Service) Progress() progress.Progress {
	return s.orchestrator.Progress()
}

// Wallet returns the settlement wallet.
func (s *Service) Wallet(ctx context.Context) (*model.Wallet, error) {
	provider, ok := s.settlement.(settlement.WalletProvider)
	if !ok {
		return nil, ErrWalletUnavailable
	}
	return provider.Wallet(ctx)
}

// Subscribe registers a lifecycle event handler and returns a function
// removing it.
func (s *Service) Subscribe(name string, handler event.Handler) func() {
	return s.events.Subscribe(name, handler)
}

// Voice returns the voice approval service.
func (s *Service) Voice() *voice.Service {
	return s.voice
}

// HTTPConfig returns the HTTP surface settings.
func (s *Service) HTTPConfig() HTTPConfig {
	return s.config.HTTP
}

// Shutdown waits for in-flight confirmations and notification calls, then
// releases resources.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.orchestrator.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}
	s.events.Close()
	return errors.Join(err, s.close())
}

func (s *Service) close() error {
	if s.stopAnswer != nil {
		s.stopAnswer()
		s.stopAnswer = nil
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
