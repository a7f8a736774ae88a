package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/internal/idgen"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/dao/store"
)

// ErrNoProvider is returned when dialing without a configured provider.
var ErrNoProvider = errors.New("voice: provider not configured")

const defaultPollInterval = 500 * time.Millisecond

// Service owns every voice approval record and drives it through its state
// machine. All mutations are serialised so that an approval reaches a
// terminal state exactly once.
type Service struct {
	provider Provider
	store    dao.Service[string, model.VoiceApproval]
	logger   *slog.Logger

	mux     sync.Mutex
	waiters map[string]chan struct{}
}

func approvalKey(v *model.VoiceApproval) string { return v.ID }

// New creates a voice approval service
func New(provider Provider, opts ...Option) *Service {
	ret := &Service{
		provider: provider,
		store:    store.NewMemoryStore[string, model.VoiceApproval](approvalKey),
		logger:   slog.Default(),
		waiters:  make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Create records a new outgoing approval in the requested state.
func (s *Service) Create(ctx context.Context, transactionID string, purpose model.VoicePurpose) (*model.VoiceApproval, error) {
	approval := &model.VoiceApproval{
		ID:            idgen.Prefixed("call"),
		Direction:     model.DirectionOutgoing,
		Purpose:       purpose,
		Status:        model.VoiceRequested,
		TransactionID: transactionID,
		StartedAt:     clock.Now(),
	}
	if err := s.store.Save(ctx, approval); err != nil {
		return nil, fmt.Errorf("failed to save voice approval: %w", err)
	}
	return approval.Clone(), nil
}

// Dial asks the provider to place the call. A provider error fails the
// approval with provider-error and is returned together with the failed record.
func (s *Service) Dial(ctx context.Context, id string, request *CallRequest) (*model.VoiceApproval, error) {
	if s.provider == nil {
		approval, _, err := s.Fail(ctx, id, model.FailureProviderError)
		if err != nil {
			return nil, err
		}
		return approval, ErrNoProvider
	}
	handle, callErr := s.provider.RequestCall(ctx, request)
	if callErr != nil {
		s.logger.Warn("voice call request failed", "call", id, "error", callErr)
		approval, _, err := s.Fail(ctx, id, model.FailureProviderError)
		if err != nil {
			return nil, err
		}
		return approval, fmt.Errorf("failed to request voice call: %w", callErr)
	}
	approval, _, err := s.mutate(ctx, id, false, func(v *model.VoiceApproval) (bool, error) {
		if v.Status != model.VoiceRequested {
			return false, nil
		}
		v.ProviderCallID = handle.ID
		return true, v.Transition(model.VoiceRinging)
	})
	return approval, err
}

// Advance applies a status polled from the provider.
func (s *Service) Advance(ctx context.Context, id string, status *CallStatus) (*model.VoiceApproval, bool, error) {
	if status == nil {
		return s.unchanged(ctx, id)
	}
	switch status.Status {
	case model.VoiceActive:
		return s.mutate(ctx, id, false, func(v *model.VoiceApproval) (bool, error) {
			if v.Status != model.VoiceRinging {
				return false, nil
			}
			return true, v.Transition(model.VoiceActive)
		})
	case model.VoiceCompleted:
		// a completion without a recorded decision is a rejection
		approved := status.Approved != nil && *status.Approved
		return s.complete(ctx, id, status.Transcript, approved, status.Duration, false)
	case model.VoiceFailed:
		reason := status.Reason
		if reason == "" {
			reason = model.FailureDropped
		}
		return s.fail(ctx, id, reason, false)
	}
	return s.unchanged(ctx, id)
}

// Complete records the human decision. Completing an approval that is already
// terminal is a no-op returning the recorded state with changed=false.
func (s *Service) Complete(ctx context.Context, id string, transcript string, approved bool, duration *float64) (*model.VoiceApproval, bool, error) {
	return s.complete(ctx, id, transcript, approved, duration, true)
}

// Fail closes the approval without a decision. Failing an approval that is
// already terminal is a no-op returning the recorded state with changed=false.
func (s *Service) Fail(ctx context.Context, id string, reason string) (*model.VoiceApproval, bool, error) {
	return s.fail(ctx, id, reason, true)
}

func (s *Service) complete(ctx context.Context, id string, transcript string, approved bool, duration *float64, hangup bool) (*model.VoiceApproval, bool, error) {
	return s.mutate(ctx, id, hangup, func(v *model.VoiceApproval) (bool, error) {
		if v.Status.IsTerminal() {
			return false, nil
		}
		if v.Status == model.VoiceRinging {
			if err := v.Transition(model.VoiceActive); err != nil {
				return false, err
			}
		}
		if v.Purpose != model.PurposeTransactionApproval {
			return true, v.Conclude(transcript, duration, clock.Now())
		}
		return true, v.Complete(transcript, approved, duration, clock.Now())
	})
}

func (s *Service) fail(ctx context.Context, id string, reason string, hangup bool) (*model.VoiceApproval, bool, error) {
	return s.mutate(ctx, id, hangup, func(v *model.VoiceApproval) (bool, error) {
		if v.Status.IsTerminal() {
			return false, nil
		}
		return true, v.Fail(reason, clock.Now())
	})
}

// mutate runs a read-modify-write under the service lock and wakes waiters
// once the approval becomes terminal.
func (s *Service) mutate(ctx context.Context, id string, hangup bool, fn func(v *model.VoiceApproval) (bool, error)) (*model.VoiceApproval, bool, error) {
	s.mux.Lock()
	approval, err := s.store.Load(ctx, id)
	if err != nil {
		s.mux.Unlock()
		return nil, false, fmt.Errorf("failed to load voice approval %s: %w", id, err)
	}
	changed, err := fn(approval)
	if err != nil {
		s.mux.Unlock()
		return nil, false, err
	}
	if !changed {
		s.mux.Unlock()
		return approval, false, nil
	}
	if err = s.store.Save(ctx, approval); err != nil {
		s.mux.Unlock()
		return nil, false, fmt.Errorf("failed to save voice approval %s: %w", id, err)
	}
	if approval.Status.IsTerminal() {
		if ch, ok := s.waiters[id]; ok {
			close(ch)
			delete(s.waiters, id)
		}
	}
	s.mux.Unlock()

	if hangup && approval.Status.IsTerminal() && approval.ProviderCallID != "" {
		s.hangup(ctx, approval)
	}
	return approval, true, nil
}

func (s *Service) hangup(ctx context.Context, approval *model.VoiceApproval) {
	terminator, ok := s.provider.(Terminator)
	if !ok {
		return
	}
	if err := terminator.EndCall(ctx, CallHandle{ID: approval.ProviderCallID}); err != nil {
		s.logger.Debug("failed to end voice call", "call", approval.ID, "error", err)
	}
}

// done returns a channel closed when the approval becomes terminal.
func (s *Service) done(id string) <-chan struct{} {
	s.mux.Lock()
	defer s.mux.Unlock()
	ch, ok := s.waiters[id]
	if !ok {
		ch = make(chan struct{})
		s.waiters[id] = ch
	}
	return ch
}

func (s *Service) forget(id string) {
	s.mux.Lock()
	delete(s.waiters, id)
	s.mux.Unlock()
}

// Await blocks until the approval is terminal. The provider is polled every
// poll interval; once window elapses the approval fails with timeout, and a
// done ctx fails it with cancelled.
func (s *Service) Await(ctx context.Context, id string, window, poll time.Duration) (*model.VoiceApproval, error) {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	done := s.done(id)
	approval, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if approval.Status.IsTerminal() {
		s.forget(id)
		return approval, nil
	}

	var deadline <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return s.Load(context.WithoutCancel(ctx), id)
		case <-deadline:
			approval, _, err = s.Fail(context.WithoutCancel(ctx), id, model.FailureTimeout)
			return approval, err
		case <-ctx.Done():
			approval, _, err = s.Fail(context.WithoutCancel(ctx), id, model.FailureCancelled)
			return approval, err
		case <-ticker.C:
			if approval, err = s.poll(ctx, id); err != nil {
				s.logger.Debug("voice status poll failed", "call", id, "error", err)
				continue
			}
			if approval.Status.IsTerminal() {
				return approval, nil
			}
		}
	}
}

// Deliver waits for a notification call to connect, records script as its
// transcript and hangs up. A call still not connected when window elapses
// fails with timeout; a done ctx fails it with cancelled.
func (s *Service) Deliver(ctx context.Context, id string, script *Script, window, poll time.Duration) (*model.VoiceApproval, error) {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	var deadline <-chan time.Time
	if window > 0 {
		timer := time.NewTimer(window)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		approval, err := s.poll(ctx, id)
		switch {
		case err != nil:
			s.logger.Debug("voice status poll failed", "call", id, "error", err)
		case approval.Status.IsTerminal():
			return approval, nil
		case approval.Status == model.VoiceActive:
			approval, _, err = s.complete(context.WithoutCancel(ctx), id, script.Transcript(), false, nil, true)
			return approval, err
		}
		select {
		case <-deadline:
			approval, _, err = s.Fail(context.WithoutCancel(ctx), id, model.FailureTimeout)
			return approval, err
		case <-ctx.Done():
			approval, _, err = s.Fail(context.WithoutCancel(ctx), id, model.FailureCancelled)
			return approval, err
		case <-ticker.C:
		}
	}
}

func (s *Service) poll(ctx context.Context, id string) (*model.VoiceApproval, error) {
	approval, err := s.Load(ctx, id)
	if err != nil || s.provider == nil || approval.ProviderCallID == "" || approval.Status.IsTerminal() {
		return approval, err
	}
	status, err := s.provider.GetStatus(ctx, CallHandle{ID: approval.ProviderCallID})
	if err != nil {
		return approval, err
	}
	approval, _, err = s.Advance(ctx, id, status)
	return approval, err
}

// Load returns the approval with the given id.
func (s *Service) Load(ctx context.Context, id string) (*model.VoiceApproval, error) {
	approval, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice approval %s: %w", id, err)
	}
	return approval, nil
}

func (s *Service) unchanged(ctx context.Context, id string) (*model.VoiceApproval, bool, error) {
	approval, err := s.Load(ctx, id)
	return approval, false, err
}

// List returns approvals matching parameters, newest first.
func (s *Service) List(ctx context.Context, parameters ...*dao.Parameter) ([]*model.VoiceApproval, error) {
	approvals, err := s.store.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	store.SortNewestFirst(approvals, func(v *model.VoiceApproval) int64 { return v.StartedAt.UnixNano() })
	return approvals, nil
}

// Pending returns approvals that have not reached a terminal state.
func (s *Service) Pending(ctx context.Context) ([]*model.VoiceApproval, error) {
	return s.List(ctx, dao.WithStatus(string(model.VoiceRequested), string(model.VoiceRinging), string(model.VoiceActive)))
}

// LookupByHandle finds the approval by its call handle, falling back to the
// approval id.
func (s *Service) LookupByHandle(ctx context.Context, handle string) (*model.VoiceApproval, error) {
	if approval, err := s.store.Load(ctx, handle); err == nil {
		return approval, nil
	}
	approvals, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, candidate := range approvals {
		if candidate.ProviderCallID == handle {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("voice call %s: %w", handle, dao.ErrNotFound)
}
