package orchestrator

import (
	"context"

	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/progress"
	"github.com/viant/agentpay/service/event"
	"github.com/viant/agentpay/service/voice"
	"github.com/viant/agentpay/tracing"
)

// run tracks a pipeline waiting for voice confirmation.
type run struct {
	txID   string
	callID string
	done   chan struct{}
	result *model.Transaction
	err    error
}

// Submission is the handle returned by Submit.
type Submission struct {
	// Transaction is the state when Submit returned.
	Transaction *model.Transaction
	// VoiceCall is set when confirmation was requested.
	VoiceCall *model.VoiceApproval

	run *run
	err error
}

// Pending reports whether the pipeline is still waiting for voice confirmation.
func (s *Submission) Pending() bool {
	if s.run == nil {
		return false
	}
	select {
	case <-s.run.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the pipeline is terminal and returns the final state. A
// done ctx stops waiting but does not cancel the pipeline.
func (s *Submission) Wait(ctx context.Context) (*model.Transaction, error) {
	if s.run == nil {
		return s.Transaction, s.err
	}
	select {
	case <-s.run.done:
		return s.run.result.Clone(), s.run.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// requestConfirmation creates and dials the single voice approval for tx and
// hands the wait over to a background run.
func (s *Service) requestConfirmation(ctx context.Context, tx *model.Transaction) (*Submission, error) {
	delta := progress.Delta{Running: -1, Failed: 1}
	approval, err := s.voice.Create(ctx, tx.ID, model.PurposeTransactionApproval)
	if err != nil {
		return s.completed(tx, s.abort(ctx, tx, err, model.ReasonConfirmationFailed, delta))
	}
	if err = tx.LinkVoiceCall(approval.ID); err != nil {
		return s.completed(tx, s.abort(ctx, tx, err, model.ReasonConfirmationFailed, delta))
	}
	if err = s.save(ctx, tx, "", nil); err != nil {
		return s.completed(tx, s.abort(ctx, tx, err, model.ReasonConfirmationFailed, delta))
	}

	dialed, dialErr := s.voice.Dial(ctx, approval.ID, &voice.CallRequest{
		Purpose:       model.PurposeTransactionApproval,
		PhoneNumber:   s.config.PhoneNumber,
		TransactionID: tx.ID,
		Script:        voice.NewScript(tx),
	})
	if dialed == nil {
		return s.completed(tx, s.abort(ctx, tx, dialErr, model.ReasonConfirmationFailed, delta))
	}
	s.publisher.Publish(ctx, event.NewEvent(event.VoiceCallRequested, tx, dialed))
	s.progress.Update(progress.Delta{Running: -1, AwaitingVoice: 1})

	if dialed.Status.IsTerminal() {
		s.logger.Warn("voice confirmation could not be placed", "tx", tx.ID, "call", dialed.ID, "error", dialErr)
		return s.completed(tx, s.conclude(ctx, tx, dialed))
	}

	r := &run{txID: tx.ID, callID: dialed.ID, done: make(chan struct{})}
	s.mux.Lock()
	s.runs[tx.ID] = r
	s.mux.Unlock()

	submission := &Submission{Transaction: tx.Clone(), VoiceCall: dialed.Clone(), run: r}
	s.wg.Add(1)
	go s.await(context.WithoutCancel(ctx), r, tx)
	return submission, nil
}

func (s *Service) await(ctx context.Context, r *run, tx *model.Transaction) {
	defer s.wg.Done()
	defer func() {
		s.mux.Lock()
		delete(s.runs, r.txID)
		s.mux.Unlock()
		close(r.done)
	}()

	ctx, span := tracing.StartSpan(ctx, "voice.await", tracing.KindClient)
	span.WithAttributes(map[string]string{tracing.AttrTransactionID: tx.ID, tracing.AttrCallID: r.callID})
	approval, err := s.voice.Await(ctx, r.callID, s.config.VoiceWaitWindow, s.config.VoicePollInterval)
	tracing.EndSpan(span, err)
	if err != nil {
		r.err = s.abort(ctx, tx, err, model.ReasonConfirmationFailed, progress.Delta{AwaitingVoice: -1, Failed: 1})
		r.result = tx.Clone()
		return
	}
	r.err = s.conclude(ctx, tx, approval)
	r.result = tx.Clone()
}

// conclude applies a terminal voice approval to tx: approved continues to
// settlement, anything else rejects the transaction.
func (s *Service) conclude(ctx context.Context, tx *model.Transaction, approval *model.VoiceApproval) error {
	s.publisher.Publish(ctx, event.NewEvent(event.VoiceCallCompleted, tx, approval))
	if approval.Outcome == model.OutcomeApproved {
		tx.ApprovedViaVoice = true
		if err := tx.Transition(model.TransactionApproved, clock.Now()); err != nil {
			return err
		}
		if err := s.save(ctx, tx, event.TransactionApproved, approval); err != nil {
			return s.abort(ctx, tx, err, model.ReasonConfirmationFailed, progress.Delta{AwaitingVoice: -1, Failed: 1})
		}
		s.progress.Update(progress.Delta{AwaitingVoice: -1, Settling: 1})
		return s.settle(ctx, tx, approval)
	}

	finishErr := s.finish(ctx, tx, model.TransactionRejected, confirmationReason(approval), approval)
	s.progress.Update(progress.Delta{AwaitingVoice: -1, Rejected: 1})
	confirmationErr := &model.ConfirmationError{TransactionID: tx.ID, Outcome: approval.Outcome, Reason: approval.FailureReason}
	return joinErr(confirmationErr, finishErr)
}

func confirmationReason(approval *model.VoiceApproval) string {
	switch {
	case approval.Outcome == model.OutcomeRejected:
		return model.ReasonConfirmationRejected
	case approval.FailureReason == model.FailureTimeout:
		return model.ReasonConfirmationTimeout
	case approval.FailureReason == model.FailureCancelled:
		return model.ReasonCancelled
	}
	return model.ReasonConfirmationFailed
}

// Cancel rejects a transaction that is awaiting voice confirmation: the voice
// approval fails with cancelled and the transaction moves to rejected. Once
// the approval is terminal (settlement may have begun) ErrNotCancellable is
// returned.
func (s *Service) Cancel(ctx context.Context, txID string) (*model.Transaction, error) {
	s.mux.Lock()
	r, ok := s.runs[txID]
	s.mux.Unlock()
	if !ok {
		return nil, ErrNotCancellable
	}
	_, changed, err := s.voice.Fail(ctx, r.callID, model.FailureCancelled)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, ErrNotCancellable
	}
	select {
	case <-r.done:
		return r.result.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Awaiting returns the ids of transactions waiting for voice confirmation.
func (s *Service) Awaiting() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	ret := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ret = append(ret, id)
	}
	return ret
}
