package event

import (
	"log/slog"

	"github.com/viant/agentpay/service/messaging/memory"
)

type Option func(s *Service)

// WithQueueConfig sets the per-subscriber queue configuration
func WithQueueConfig(config memory.Config) Option {
	return func(s *Service) {
		s.queueConfig = config
	}
}

// WithLogger sets the logger used for delivery failures
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}
