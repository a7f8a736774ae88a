package orchestrator

import (
	"log/slog"

	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/policy"
	"github.com/viant/agentpay/progress"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/decision"
	"github.com/viant/agentpay/service/event"
	"github.com/viant/agentpay/service/spend"
)

type Option func(s *Service)

// WithTransactionStore sets the transaction store
func WithTransactionStore(store dao.Service[string, model.Transaction]) Option {
	return func(s *Service) {
		s.transactions = store
	}
}

// WithPolicy sets the policy evaluator
func WithPolicy(evaluator policy.Evaluator) Option {
	return func(s *Service) {
		s.policy = evaluator
	}
}

// WithDecider sets the decision engine
func WithDecider(decider decision.Decider) Option {
	return func(s *Service) {
		s.decider = decider
	}
}

// WithPublisher sets the lifecycle event publisher
func WithPublisher(publisher event.Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithLedger sets the spend ledger; it must read the transaction store
func WithLedger(ledger *spend.Ledger) Option {
	return func(s *Service) {
		s.ledger = ledger
	}
}

// WithPreCheck adds a hook run before a transaction is created
func WithPreCheck(check PreCheck) Option {
	return func(s *Service) {
		s.preChecks = append(s.preChecks, check)
	}
}

// WithProgress sets the pipeline counters
func WithProgress(p *progress.Progress) Option {
	return func(s *Service) {
		s.progress = p
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithConfig sets the runtime settings
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}
