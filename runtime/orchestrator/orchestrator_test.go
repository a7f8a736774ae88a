package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/internal/logging"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/policy"
	"github.com/viant/agentpay/service/agent"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/dao/store"
	"github.com/viant/agentpay/service/event"
	"github.com/viant/agentpay/service/idempotency"
	settlementmem "github.com/viant/agentpay/service/settlement/memory"
	"github.com/viant/agentpay/service/voice"
	voicemem "github.com/viant/agentpay/service/voice/memory"
)

type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) Publish(_ context.Context, e *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]event.Type, 0, len(r.events))
	for _, e := range r.events {
		ret = append(ret, e.Type)
	}
	return ret
}

type fixture struct {
	service      *Service
	agents       *agent.Store
	voice        *voice.Service
	phone        *voicemem.Provider
	wallet       *settlementmem.Provider
	transactions *store.MemoryStore[string, model.Transaction]
	events       *recorder
}

func newFixture(t *testing.T, window time.Duration, configure func(c *model.AgentConfig), opts ...Option) *fixture {
	t.Helper()
	cfg := &model.AgentConfig{
		Name:                "Test agent",
		ApprovalThreshold:   model.MustAmount("100.00"),
		DailySpendLimit:     model.MustAmount("1000.00"),
		MonthlySpendLimit:   model.MustAmount("10000.00"),
		AutoApprovalEnabled: true,
	}
	if configure != nil {
		configure(cfg)
	}
	agents, err := agent.New(cfg)
	require.NoError(t, err)

	ret := &fixture{
		agents:       agents,
		phone:        voicemem.New(voicemem.WithAnswerAfter(time.Hour)),
		wallet:       settlementmem.New(settlementmem.Config{Balance: decimal.NewFromInt(100000)}),
		transactions: store.NewMemoryStore[string, model.Transaction](transactionKey),
		events:       &recorder{},
	}
	ret.voice = voice.New(ret.phone, voice.WithLogger(logging.Discard()))
	options := append([]Option{
		WithTransactionStore(ret.transactions),
		WithPublisher(ret.events),
		WithLogger(logging.Discard()),
		WithConfig(Config{AgentID: "test", VoiceWaitWindow: window, VoicePollInterval: 5 * time.Millisecond}),
	}, opts...)
	ret.service, err = New(agents, ret.voice, ret.wallet, options...)
	require.NoError(t, err)
	return ret
}

func request(amount, merchant string) *model.TransactionRequest {
	return &model.TransactionRequest{Amount: amount, Type: model.TypePurchase, Merchant: merchant}
}

func (f *fixture) seedCompleted(t *testing.T, amount string) {
	t.Helper()
	now := clock.Now()
	require.NoError(t, f.transactions.Save(context.Background(), &model.Transaction{
		ID:          "seed-" + amount,
		Amount:      decimal.RequireFromString(amount),
		Currency:    model.DefaultCurrency,
		Type:        model.TypePurchase,
		Status:      model.TransactionCompleted,
		CreatedAt:   now,
		CompletedAt: &now,
	}))
}

func assertCompletedAtInvariant(t *testing.T, tx *model.Transaction) {
	t.Helper()
	switch tx.Status {
	case model.TransactionCompleted, model.TransactionFailed:
		assert.NotNil(t, tx.CompletedAt, "completedAt expected for %s", tx.Status)
	default:
		assert.Nil(t, tx.CompletedAt, "completedAt unexpected for %s", tx.Status)
	}
}

func TestService_AutoApproved(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	submission, err := f.service.Submit(context.Background(), request("45.99", "Amazon"))
	require.NoError(t, err)
	assert.False(t, submission.Pending())
	assert.Nil(t, submission.VoiceCall)

	tx := submission.Transaction
	assert.Equal(t, model.TransactionCompleted, tx.Status)
	assert.False(t, tx.RequiresApproval)
	assert.Empty(t, tx.VoiceCallID)
	assert.Contains(t, tx.Metadata, model.MetadataSettlement)
	assertCompletedAtInvariant(t, tx)
	assert.Equal(t, 0, f.phone.Requests())
	assert.EqualValues(t, 1, f.wallet.Settled())
	assert.Equal(t, []event.Type{event.TransactionCreated, event.TransactionCompleted}, f.events.types())

	stored, err := f.service.Transaction(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCompleted, stored.Status)
	assert.Nil(t, stored.VoiceCall)
	assert.Equal(t, 0, f.service.Ledger().Reserved())
}

func TestService_VoiceApproved(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	submission, err := f.service.Submit(ctx, request("150.00", "Anthropic"))
	require.NoError(t, err)
	require.True(t, submission.Pending())
	require.NotNil(t, submission.VoiceCall)
	assert.Equal(t, model.TransactionPending, submission.Transaction.Status)
	assert.True(t, submission.Transaction.RequiresApproval)
	assert.Equal(t, submission.VoiceCall.ID, submission.Transaction.VoiceCallID)
	assert.Equal(t, model.VoiceRinging, submission.VoiceCall.Status)

	require.NoError(t, f.phone.Answer(submission.VoiceCall.ProviderCallID, true, "User: Yes, approved."))
	tx, err := submission.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCompleted, tx.Status)
	assert.True(t, tx.ApprovedViaVoice)
	assertCompletedAtInvariant(t, tx)

	stored, err := f.service.Transaction(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VoiceCall)
	assert.Equal(t, model.VoiceCompleted, stored.VoiceCall.Status)
	assert.Equal(t, model.OutcomeApproved, stored.VoiceCall.Outcome)
	assert.Equal(t, tx.ID, stored.VoiceCall.TransactionID)
	assert.Equal(t, 1, f.phone.Requests())

	assert.Equal(t, []event.Type{
		event.TransactionCreated,
		event.VoiceCallRequested,
		event.VoiceCallCompleted,
		event.TransactionApproved,
		event.TransactionCompleted,
	}, f.events.types())
}

func TestService_VoiceRejected(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	submission, err := f.service.Submit(ctx, request("100.00", "Anthropic"))
	require.NoError(t, err)

	_, changed, err := f.voice.Complete(ctx, submission.VoiceCall.ID, "User: No.", false, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	tx, err := submission.Wait(ctx)
	assert.True(t, errors.Is(err, model.ErrConfirmationRejected))
	assert.Equal(t, model.TransactionRejected, tx.Status)
	assert.Equal(t, model.ReasonConfirmationRejected, tx.Reason)
	assertCompletedAtInvariant(t, tx)
	assert.EqualValues(t, 0, f.wallet.Settled())

	// replaying the completion is a no-op
	approval, changed, err := f.voice.Complete(ctx, submission.VoiceCall.ID, "User: Yes.", true, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, model.OutcomeRejected, approval.Outcome)
}

func TestService_PolicyDenials(t *testing.T) {
	testCases := []struct {
		description string
		amount      string
		seed        string
		configure   func(c *model.AgentConfig)
		reason      string
	}{
		{description: "daily limit", amount: "45.99", seed: "980.00", reason: policy.ReasonDailyLimit},
		{
			description: "emergency stop wins regardless of spend",
			amount:      "1.00",
			seed:        "980.00",
			configure:   func(c *model.AgentConfig) { c.EmergencyStopActive = true },
			reason:      policy.ReasonEmergencyStop,
		},
		{
			description: "blocked merchant",
			amount:      "1.00",
			configure:   func(c *model.AgentConfig) { c.BlockedMerchants = []string{"Shady"} },
			reason:      policy.ReasonBlockedMerchant,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			f := newFixture(t, time.Second, tc.configure)
			if tc.seed != "" {
				f.seedCompleted(t, tc.seed)
			}
			tx, err := f.service.Process(context.Background(), request(tc.amount, "Shady"))
			denied := &model.PolicyDenied{}
			require.True(t, errors.As(err, &denied), "%v", err)
			assert.Equal(t, tc.reason, denied.Reason)
			assert.Equal(t, model.TransactionRejected, tx.Status)
			assert.Equal(t, PolicyReasonPrefix+tc.reason, tx.Reason)
			assertCompletedAtInvariant(t, tx)
			assert.Equal(t, 0, f.phone.Requests())
			assert.EqualValues(t, 0, f.wallet.Settled())
			assert.Equal(t, []event.Type{event.TransactionCreated, event.TransactionRejected}, f.events.types())
			assert.Equal(t, 0, f.service.Ledger().Reserved())
		})
	}
}

func TestService_VoiceTimeout(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond, nil)
	tx, err := f.service.Process(context.Background(), request("150.00", "Anthropic"))
	assert.True(t, errors.Is(err, model.ErrConfirmationTimeout), "%v", err)
	assert.Equal(t, model.TransactionRejected, tx.Status)
	assert.Equal(t, model.ReasonConfirmationTimeout, tx.Reason)
	assertCompletedAtInvariant(t, tx)
	assert.EqualValues(t, 0, f.wallet.Settled())

	approval, err := f.voice.Load(context.Background(), tx.VoiceCallID)
	require.NoError(t, err)
	assert.Equal(t, model.VoiceFailed, approval.Status)
	assert.Equal(t, model.FailureTimeout, approval.FailureReason)
	assert.Equal(t, 0, f.service.Ledger().Reserved())
}

func TestService_Cancel(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	ctx := context.Background()
	submission, err := f.service.Submit(ctx, request("150.00", "Anthropic"))
	require.NoError(t, err)
	assert.Equal(t, []string{submission.Transaction.ID}, f.service.Awaiting())

	tx, err := f.service.Cancel(ctx, submission.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionRejected, tx.Status)
	assert.Equal(t, model.ReasonCancelled, tx.Reason)

	approval, err := f.voice.Load(ctx, tx.VoiceCallID)
	require.NoError(t, err)
	assert.Equal(t, model.FailureCancelled, approval.FailureReason)

	_, err = f.service.Cancel(ctx, tx.ID)
	assert.Equal(t, ErrNotCancellable, err)
	_, waitErr := submission.Wait(ctx)
	assert.True(t, errors.Is(waitErr, model.ErrConfirmationRejected))
	assert.EqualValues(t, 0, f.wallet.Settled())
}

func TestService_CancelAfterApproval(t *testing.T) {
	f := newFixture(t, time.Minute, nil)
	ctx := context.Background()
	submission, err := f.service.Submit(ctx, request("150.00", "Anthropic"))
	require.NoError(t, err)
	_, _, err = f.voice.Complete(ctx, submission.VoiceCall.ID, "yes", true, nil)
	require.NoError(t, err)

	_, err = f.service.Cancel(ctx, submission.Transaction.ID)
	assert.Equal(t, ErrNotCancellable, err)
	tx, err := submission.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCompleted, tx.Status)

	auto, err := f.service.Process(ctx, request("1.00", "Amazon"))
	require.NoError(t, err)
	_, err = f.service.Cancel(ctx, auto.ID)
	assert.Equal(t, ErrNotCancellable, err)
}

func TestService_SettlementFailure(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.wallet.SetFailure(errors.New("network congested"))
	tx, err := f.service.Process(context.Background(), request("10.00", "Amazon"))
	settlementErr := &model.SettlementError{}
	require.True(t, errors.As(err, &settlementErr))
	assert.Equal(t, tx.ID, settlementErr.TransactionID)
	assert.Equal(t, model.TransactionFailed, tx.Status)
	assert.Equal(t, model.ReasonSettlementFailed, tx.Reason)
	assert.Equal(t, "network congested", tx.Metadata[model.MetadataSettlementError])
	assert.NotContains(t, tx.Metadata, model.MetadataSettlement)
	assertCompletedAtInvariant(t, tx)
	assert.Equal(t, []event.Type{event.TransactionCreated, event.TransactionFailed}, f.events.types())

	totals, err := f.service.Ledger().Totals(context.Background(), model.DefaultCurrency)
	require.NoError(t, err)
	assert.True(t, totals.Today.IsZero())
	assert.Equal(t, 0, f.service.Ledger().Reserved())
}

func TestService_ConfigurationError(t *testing.T) {
	f := newFixture(t, time.Second, func(c *model.AgentConfig) { c.ApprovalThreshold = decimal.NullDecimal{} })
	tx, err := f.service.Process(context.Background(), request("10.00", "Amazon"))
	configErr := &model.ConfigurationError{}
	require.True(t, errors.As(err, &configErr))
	require.NotNil(t, tx)
	assert.Equal(t, model.TransactionFailed, tx.Status)
	assert.Equal(t, model.ReasonConfigurationError, tx.Reason)
	assertCompletedAtInvariant(t, tx)
	assert.EqualValues(t, 0, f.wallet.Settled())
	assert.Equal(t, 0, f.service.Ledger().Reserved())
}

func TestService_ValidationCreatesNothing(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	for _, req := range []*model.TransactionRequest{
		request("-5", "Amazon"),
		request("0", "Amazon"),
		request("abc", "Amazon"),
		request("10", " "),
		{Amount: "10", Type: "gift", Merchant: "Amazon"},
		nil,
	} {
		submission, err := f.service.Submit(context.Background(), req)
		assert.Nil(t, submission)
		assert.Error(t, err)
	}
	transactions, err := f.service.Transactions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, transactions)
	assert.Empty(t, f.events.types())
}

func TestService_IdempotencyPreCheck(t *testing.T) {
	guard := idempotency.New(time.Minute)
	f := newFixture(t, time.Second, nil, WithPreCheck(func(ctx context.Context, request *model.TransactionRequest) (func(), error) {
		return guard.Claim(ctx, request.IdempotencyKey)
	}))
	req := request("10.00", "Amazon")
	req.IdempotencyKey = "order-1"
	_, err := f.service.Process(context.Background(), req)
	require.NoError(t, err)
	_, err = f.service.Process(context.Background(), req)
	duplicate := &model.DuplicateError{}
	assert.True(t, errors.As(err, &duplicate))

	transactions, err := f.service.Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
}

// flakyStore fails its first saves.
type flakyStore struct {
	dao.Service[string, model.Transaction]
	failures int
}

func (s *flakyStore) Save(ctx context.Context, tx *model.Transaction) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("disk full")
	}
	return s.Service.Save(ctx, tx)
}

func TestService_IdempotencyKeyReleasedWhenCreateFails(t *testing.T) {
	guard := idempotency.New(time.Minute)
	transactions := &flakyStore{Service: store.NewMemoryStore[string, model.Transaction](transactionKey), failures: 1}
	f := newFixture(t, time.Second, nil,
		WithTransactionStore(transactions),
		WithPreCheck(func(ctx context.Context, request *model.TransactionRequest) (func(), error) {
			return guard.Claim(ctx, request.IdempotencyKey)
		}))
	req := request("10.00", "Amazon")
	req.IdempotencyKey = "order-42"

	submission, err := f.service.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, submission)
	assert.Equal(t, 0, guard.Len())

	tx, err := f.service.Process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCompleted, tx.Status)

	_, err = f.service.Process(context.Background(), req)
	duplicate := &model.DuplicateError{}
	assert.True(t, errors.As(err, &duplicate))

	stored, err := f.service.Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestService_FailedPreCheckReleasesEarlierClaims(t *testing.T) {
	released := 0
	f := newFixture(t, time.Second, nil,
		WithPreCheck(func(context.Context, *model.TransactionRequest) (func(), error) {
			return func() { released++ }, nil
		}),
		WithPreCheck(func(context.Context, *model.TransactionRequest) (func(), error) {
			return nil, errors.New("quota exceeded")
		}))

	_, err := f.service.Submit(context.Background(), request("10.00", "Amazon"))
	assert.EqualError(t, err, "quota exceeded")
	assert.Equal(t, 1, released)
}

func TestService_ProviderErrorRejects(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.phone.SetRequestError(errors.New("vendor down"))
	tx, err := f.service.Process(context.Background(), request("500.00", "Anthropic"))
	assert.True(t, errors.Is(err, model.ErrConfirmationRejected))
	assert.Equal(t, model.TransactionRejected, tx.Status)
	assert.Equal(t, model.ReasonConfirmationFailed, tx.Reason)

	approval, err := f.voice.Load(context.Background(), tx.VoiceCallID)
	require.NoError(t, err)
	assert.Equal(t, model.FailureProviderError, approval.FailureReason)
}

func TestService_ConcurrentSubmissionsRespectDailyLimit(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	f.seedCompleted(t, "900.00")

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.service.Process(context.Background(), request("30.00", fmt.Sprintf("merchant-%d", i)))
		}(i)
	}
	wg.Wait()

	completed, err := f.service.Transactions(context.Background(), dao.WithStatus(string(model.TransactionCompleted)))
	require.NoError(t, err)
	total := decimal.Zero
	for _, tx := range completed {
		total = total.Add(tx.Amount)
	}
	assert.True(t, total.LessThanOrEqual(decimal.NewFromInt(1000)), total.String())
	assert.Len(t, completed, 4)

	rejected, err := f.service.Transactions(context.Background(), dao.WithStatus(string(model.TransactionRejected)))
	require.NoError(t, err)
	assert.Len(t, rejected, 22)
	snapshot := f.service.Progress()
	assert.Equal(t, 25, snapshot.Submitted)
	assert.Equal(t, 0, snapshot.InFlight())
}

func TestService_EveryVoiceRequiredTransactionHasOneApproval(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	stop := voice.AutoApprove(ctx, f.voice, 5*time.Millisecond)
	defer stop()

	for _, amount := range []string{"5", "100", "250", "99.99"} {
		_, err := f.service.Process(ctx, request(amount, "Amazon"))
		require.NoError(t, err)
	}
	approvals, err := f.voice.List(ctx)
	require.NoError(t, err)
	assert.Len(t, approvals, 2)

	transactions, err := f.service.Transactions(ctx)
	require.NoError(t, err)
	for _, tx := range transactions {
		assert.Equal(t, tx.RequiresApproval, tx.VoiceCallID != "", tx.Amount.String())
		assertCompletedAtInvariant(t, tx)
	}
	require.NoError(t, f.service.Shutdown(ctx))
}

func TestService_Recover(t *testing.T) {
	f := newFixture(t, time.Second, nil)
	ctx := context.Background()
	require.NoError(t, f.transactions.Save(ctx, &model.Transaction{ID: "stale", Amount: decimal.NewFromInt(1), Currency: "USDC", Status: model.TransactionApproved, CreatedAt: clock.Now()}))

	recovered, err := f.service.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	stale, err := f.service.Transaction(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionFailed, stale.Status)
	assert.Equal(t, model.ReasonInterrupted, stale.Reason)
	assertCompletedAtInvariant(t, stale.Transaction)
}

func TestService_RecoverWithMissingVoiceCall(t *testing.T) {
	logs := &bytes.Buffer{}
	f := newFixture(t, time.Second, nil, WithLogger(logging.NewWithWriter(logging.Config{Level: "info"}, logs)))
	ctx := context.Background()
	require.NoError(t, f.transactions.Save(ctx, &model.Transaction{ID: "stale", Amount: decimal.NewFromInt(150), Currency: "USDC", Status: model.TransactionPending, VoiceCallID: "call-gone", CreatedAt: clock.Now()}))

	recovered, err := f.service.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	stale, err := f.service.Transaction(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, model.TransactionRejected, stale.Status)
	assert.Equal(t, model.ReasonConfirmationFailed, stale.Reason)
	assert.Contains(t, logs.String(), "failed to close interrupted voice call")
	assert.Contains(t, logs.String(), "call-gone")
}
