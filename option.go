package agentpay

import (
	"log/slog"

	"github.com/viant/agentpay/model"
	"github.com/viant/agentpay/service/dao"
	"github.com/viant/agentpay/service/settlement"
	"github.com/viant/agentpay/service/voice"
	"github.com/viant/agentpay/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option configures the Service.
type Option func(s *Service)

// WithLogger sets the logger shared by every component
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithVoiceProvider replaces the simulated voice provider
func WithVoiceProvider(provider voice.Provider) Option {
	return func(s *Service) {
		s.voiceProvider = provider
	}
}

// WithSettlementProvider replaces the simulated settlement provider
func WithSettlementProvider(provider settlement.Provider) Option {
	return func(s *Service) {
		s.settlement = provider
	}
}

// WithTransactionStore sets the transaction store, overriding Config.Storage
func WithTransactionStore(store dao.Service[string, model.Transaction]) Option {
	return func(s *Service) {
		s.transactions = store
	}
}

// WithVoiceStore sets the voice approval store, overriding Config.Storage
func WithVoiceStore(store dao.Service[string, model.VoiceApproval]) Option {
	return func(s *Service) {
		s.approvals = store
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom
// SpanExporter. The first successful initialisation wins.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		if err := tracing.InitWithExporter(serviceName, serviceVersion, exporter); err != nil && s.logger != nil {
			s.logger.Warn("failed to init tracing", "error", err)
		}
	}
}
