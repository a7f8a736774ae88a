package orchestrator

import (
	"context"
	"errors"

	"github.com/viant/agentpay/internal/clock"
	"github.com/viant/agentpay/internal/idgen"
	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/policy"
	"github.com/viant/agentpay/progress"
	"github.com/viant/agentpay/service/decision"
	"github.com/viant/agentpay/service/event"
	"github.com/viant/agentpay/service/settlement"
	"github.com/viant/agentpay/tracing"
)

// PolicyReasonPrefix prefixes the policy denial reason recorded on a rejected
// transaction.
const PolicyReasonPrefix = "policy:"

// Submit validates the request and runs the pipeline. Validation and pre-check
// failures return before any state is created. Policy denials, configuration
// errors and auto-approved settlements are resolved synchronously; when voice
// confirmation is required the returned submission is pending and Wait blocks
// until the pipeline reaches a terminal status.
//
// Whenever a transaction was created the submission is returned, even
// together with an error.
func (s *Service) Submit(ctx context.Context, request *model.TransactionRequest) (*Submission, error) {
	if request == nil {
		return nil, &model.ValidationError{Message: "request was nil"}
	}
	amount, err := request.Validate()
	if err != nil {
		return nil, err
	}
	var releases []func()
	release := func() {
		for _, fn := range releases {
			fn()
		}
	}
	for _, check := range s.preChecks {
		fn, err := check(ctx, request)
		if err != nil {
			release()
			return nil, err
		}
		if fn != nil {
			releases = append(releases, fn)
		}
	}

	ctx, span := tracing.StartSpan(ctx, "orchestrator.submit", tracing.KindInternal)
	tx := request.NewTransaction(idgen.New(), amount, clock.Now())
	span.WithTransaction(tx.ID, tx.Amount.String(), tx.Currency)
	if err = s.save(ctx, tx, event.TransactionCreated, nil); err != nil {
		release()
		tracing.EndSpan(span, err)
		return nil, err
	}
	s.progress.Update(progress.Delta{Submitted: 1, Running: 1})
	s.logger.Debug("transaction created", "tx", tx.ID, "amount", tx.Amount.String(), "currency", tx.Currency, "merchant", tx.Merchant)

	submission, err := s.pipeline(ctx, tx)
	tracing.EndSpan(span, err)
	return submission, err
}

// Process submits the request and waits for the terminal status.
func (s *Service) Process(ctx context.Context, request *model.TransactionRequest) (*model.Transaction, error) {
	submission, err := s.Submit(ctx, request)
	if err != nil {
		if submission != nil {
			return submission.Transaction, err
		}
		return nil, err
	}
	return submission.Wait(ctx)
}

func (s *Service) pipeline(ctx context.Context, tx *model.Transaction) (*Submission, error) {
	cfg := s.agents.Snapshot()
	verdict, err := s.evaluate(ctx, tx, cfg)
	if err != nil {
		return s.completed(tx, s.abort(ctx, tx, err, model.ReasonPolicyFailed, progress.Delta{Running: -1, Failed: 1}))
	}
	if !verdict.Approved {
		tx.SetMetadata("policy", verdict.Breakdown)
		finishErr := s.finish(ctx, tx, model.TransactionRejected, PolicyReasonPrefix+verdict.Reason, nil)
		s.progress.Update(progress.Delta{Running: -1, Rejected: 1})
		return s.completed(tx, joinErr(verdict.Denial(), finishErr))
	}

	outcome, err := s.decide(ctx, tx, cfg)
	if err != nil {
		return s.completed(tx, s.abort(ctx, tx, err, model.ReasonDecisionFailed, progress.Delta{Running: -1, Failed: 1}))
	}
	tx.RequiresApproval = outcome.RequiresApproval
	if err = s.save(ctx, tx, "", nil); err != nil {
		return s.completed(tx, s.abort(ctx, tx, err, model.ReasonDecisionFailed, progress.Delta{Running: -1, Failed: 1}))
	}
	if !outcome.RequiresApproval {
		s.progress.Update(progress.Delta{Running: -1, Settling: 1})
		return s.completed(tx, s.settle(ctx, tx, nil))
	}
	return s.requestConfirmation(ctx, tx)
}

func (s *Service) completed(tx *model.Transaction, err error) (*Submission, error) {
	return &Submission{Transaction: tx.Clone(), err: err}, err
}

// evaluate runs the policy under the spend ledger lock and reserves the
// amount when admitted.
func (s *Service) evaluate(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig) (*policy.Verdict, error) {
	ctx, span := tracing.StartSpan(ctx, "policy.evaluate", tracing.KindInternal)
	var verdict *policy.Verdict
	_, _, err := s.ledger.Reserve(ctx, s.config.AgentID, tx, func(current *model.Spend) (bool, error) {
		var err error
		if verdict, err = s.policy.Evaluate(ctx, tx, cfg, current); err != nil {
			return false, err
		}
		return verdict.Approved, nil
	})
	tracing.EndSpan(span, err)
	return verdict, err
}

func (s *Service) decide(ctx context.Context, tx *model.Transaction, cfg *model.AgentConfig) (*decision.Decision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.decide", tracing.KindInternal)
	outcome, err := s.decider.Decide(ctx, tx, cfg)
	tracing.EndSpan(span, err)
	if err == nil {
		s.logger.Debug("approval decision", "tx", tx.ID, "requiresApproval", outcome.RequiresApproval, "reasoning", outcome.Reasoning)
	}
	return outcome, err
}

// settle pays an admitted transaction. It runs to completion regardless of
// the caller's cancellation and is never retried.
func (s *Service) settle(ctx context.Context, tx *model.Transaction, approval *model.VoiceApproval) error {
	ctx, span := tracing.StartSpan(context.WithoutCancel(ctx), "settlement.settle", tracing.KindClient)
	receipt, err := s.settlement.Settle(ctx, settlement.NewRequest(tx))
	if err != nil {
		tx.SetMetadata(model.MetadataSettlementError, err.Error())
		finishErr := s.finish(ctx, tx, model.TransactionFailed, model.ReasonSettlementFailed, approval)
		s.progress.Update(progress.Delta{Settling: -1, Failed: 1})
		settleErr := &model.SettlementError{TransactionID: tx.ID, Err: err}
		tracing.EndSpan(span, settleErr)
		return joinErr(settleErr, finishErr)
	}
	tx.SetMetadata(model.MetadataSettlement, receipt)
	err = s.finish(ctx, tx, model.TransactionCompleted, "", approval)
	s.progress.Update(progress.Delta{Settling: -1, Completed: 1})
	tracing.EndSpan(span, err)
	return err
}

// abort fails a transaction whose pipeline cannot continue. Configuration
// errors are classified as such; anything else uses fallback.
func (s *Service) abort(ctx context.Context, tx *model.Transaction, cause error, fallback string, delta progress.Delta) error {
	reason := fallback
	var configErr *model.ConfigurationError
	if errors.As(cause, &configErr) {
		reason = model.ReasonConfigurationError
	}
	tx.SetMetadata(model.MetadataError, cause.Error())
	s.logger.Warn("transaction aborted", "tx", tx.ID, "reason", reason, "error", cause)
	finishErr := s.finish(ctx, tx, model.TransactionFailed, reason, nil)
	s.progress.Update(delta)
	return joinErr(cause, finishErr)
}

func joinErr(primary, secondary error) error {
	if secondary == nil {
		return primary
	}
	return errors.Join(primary, secondary)
}
