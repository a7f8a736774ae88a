package voice

import (
	"log/slog"

	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/dao"
)

type Option func(s *Service)

// WithStore sets the voice approval store
func WithStore(store dao.Service[string, model.VoiceApproval]) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
