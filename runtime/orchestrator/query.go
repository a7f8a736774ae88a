package orchestrator

import (
	"context"
	"fmt"

	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/dao/store"
	"github.com/viant/agentpay/service/event"
)

// Transaction returns the transaction together with its voice approval.
func (s *Service) Transaction(ctx context.Context, id string) (*model.TransactionWithCall, error) {
	tx, err := s.transactions.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	return s.withCall(ctx, tx), nil
}

// Transactions returns transactions matching parameters, newest first.
func (s *Service) Transactions(ctx context.Context, parameters ...*dao.Parameter) ([]*model.Transaction, error) {
	transactions, err := s.transactions.List(ctx, parameters...)
	if err != nil {
		return nil, err
	}
	store.SortNewestFirst(transactions, func(t *model.Transaction) int64 { return t.CreatedAt.UnixNano() })
	return transactions, nil
}

// Recent returns up to limit newest transactions with their voice approvals.
func (s *Service) Recent(ctx context.Context, limit int) ([]*model.TransactionWithCall, error) {
	transactions, err := s.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(transactions) > limit {
		transactions = transactions[:limit]
	}
	ret := make([]*model.TransactionWithCall, 0, len(transactions))
	for _, tx := range transactions {
		ret = append(ret, s.withCall(ctx, tx))
	}
	return ret, nil
}

func (s *Service) withCall(ctx context.Context, tx *model.Transaction) *model.TransactionWithCall {
	ret := &model.TransactionWithCall{Transaction: tx}
	if tx.VoiceCallID == "" {
		return ret
	}
	if approval, err := s.voice.Load(ctx, tx.VoiceCallID); err == nil {
		ret.VoiceCall = approval
	}
	return ret
}

// Recover terminates transactions left non-terminal by a previous process:
// their pipelines are gone, so a pending transaction is rejected (its voice
// approval failed) and an approved one, whose settlement outcome is unknown,
// is marked failed. Call it before accepting submissions.
func (s *Service) Recover(ctx context.Context) (int, error) {
	stale, err := s.transactions.List(ctx, dao.WithStatus(string(model.TransactionPending), string(model.TransactionApproved)))
	if err != nil {
		return 0, err
	}
	s.mux.Lock()
	live := make(map[string]bool, len(s.runs))
	for id := range s.runs {
		live[id] = true
	}
	s.mux.Unlock()

	recovered := 0
	for _, tx := range stale {
		if live[tx.ID] {
			continue
		}
		var approval *model.VoiceApproval
		if tx.VoiceCallID != "" {
			var failErr error
			if approval, _, failErr = s.voice.Fail(ctx, tx.VoiceCallID, model.FailureDropped); failErr != nil {
				s.logger.Warn("failed to close interrupted voice call", "tx", tx.ID, "call", tx.VoiceCallID, "error", failErr)
			}
			if approval != nil {
				s.publisher.Publish(ctx, event.NewEvent(event.VoiceCallCompleted, tx, approval))
			}
		}
		status := model.TransactionFailed
		reason := model.ReasonInterrupted
		if tx.Status == model.TransactionPending && tx.VoiceCallID != "" {
			status, reason = model.TransactionRejected, model.ReasonConfirmationFailed
		}
		tx.SetMetadata(model.MetadataError, "processing interrupted by restart")
		if err = s.finish(ctx, tx, status, reason, approval); err != nil {
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Warn("recovered interrupted transactions", "count", recovered)
	}
	return recovered, nil
}
